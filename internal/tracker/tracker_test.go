package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "github.com/gmsas95/medtracker/internal/errors"
	"github.com/gmsas95/medtracker/internal/medication"
	"github.com/gmsas95/medtracker/internal/metrics"
	"github.com/gmsas95/medtracker/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testLoc = time.FixedZone("UTC+2", 2*60*60)

func at(day, hour, minute int) time.Time {
	return time.Date(2024, 3, day, hour, minute, 0, 0, testLoc)
}

type fixture struct {
	tracker *Tracker
	repo    *store.MemoryRepository
	metrics *metrics.Metrics
	now     time.Time
	mu      sync.Mutex
	changes []Change
}

func (f *fixture) setNow(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

func (f *fixture) recorded() []Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Change(nil), f.changes...)
}

func newFixture(t *testing.T, initial store.State) *fixture {
	t.Helper()
	f := &fixture{repo: store.NewMemoryWith(initial), metrics: metrics.New(), now: at(4, 7, 0)}
	seq := 0
	tr, err := New(context.Background(), f.repo, zap.NewNop(), Options{
		Location: testLoc,
		Clock: func() time.Time {
			f.mu.Lock()
			defer f.mu.Unlock()
			return f.now
		},
		NewID: func() string {
			seq++
			return fmt.Sprintf("med-%d", seq)
		},
		Metrics: f.metrics,
	})
	require.NoError(t, err)
	tr.Subscribe(func(c Change) {
		f.mu.Lock()
		f.changes = append(f.changes, c)
		f.mu.Unlock()
	})
	f.tracker = tr
	return f
}

func bloodPressure() medication.Config {
	return medication.Config{
		Name:      "Blood Pressure Medication",
		Dosage:    "5mg",
		Frequency: medication.FrequencyDaily,
		Times:     []string{"20:00", "08:00"},
	}
}

func TestAdd(t *testing.T) {
	f := newFixture(t, store.State{})
	ctx := context.Background()

	m, err := f.tracker.Add(ctx, bloodPressure())
	require.NoError(t, err)
	assert.Equal(t, "med-1", m.ID)
	assert.Equal(t, []medication.TimeOfDay{{Hour: 8}, {Hour: 20}}, m.Times)
	assert.Empty(t, m.History)
	assert.True(t, m.CreatedAt.Equal(at(4, 7, 0)))

	assert.Equal(t, 1, f.repo.Saves())
	assert.Equal(t, []Change{{Kind: ChangeAdded, MedicationID: "med-1"}}, f.recorded())
	assert.EqualValues(t, 1, f.metrics.Snapshot().Medications)

	status, err := f.tracker.Status("med-1", at(4, 7, 0))
	require.NoError(t, err)
	assert.Equal(t, medication.StatusNotDue, status)

	next, err := f.tracker.NextDue("med-1", at(4, 7, 0))
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.Equal(at(4, 8, 0)))
}

func TestAddRejectsInvalidConfig(t *testing.T) {
	f := newFixture(t, store.State{})
	cfg := bloodPressure()
	cfg.Times = nil

	_, err := f.tracker.Add(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.GetCode(err))
	assert.Empty(t, f.tracker.List())
	assert.Equal(t, 0, f.repo.Saves())
	assert.Empty(t, f.recorded())
	assert.EqualValues(t, 1, f.metrics.Snapshot().CommandsFailed)
}

func TestUnknownIDIsNotFound(t *testing.T) {
	f := newFixture(t, store.State{})
	ctx := context.Background()

	_, err := f.tracker.Get("nope")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = f.tracker.Update(ctx, "nope", medication.Patch{})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.True(t, errors.Is(f.tracker.Remove(ctx, "nope"), apperrors.ErrNotFound))
	_, err = f.tracker.Take(ctx, "nope", nil, "")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = f.tracker.Skip(ctx, "nope", nil, "")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = f.tracker.Status("nope", at(4, 8, 0))
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = f.tracker.History("nope", nil, nil)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestTakeAndSkip(t *testing.T) {
	f := newFixture(t, store.State{})
	ctx := context.Background()
	m, err := f.tracker.Add(ctx, bloodPressure())
	require.NoError(t, err)

	f.setNow(at(4, 8, 10))
	ev, err := f.tracker.Take(ctx, m.ID, nil, "with food")
	require.NoError(t, err)
	assert.Equal(t, medication.ActionTaken, ev.Action)
	assert.True(t, ev.Timestamp.Equal(at(4, 8, 10)))

	snap, err := f.tracker.Snapshot(m.ID, at(4, 9, 0))
	require.NoError(t, err)
	assert.Equal(t, medication.StatusTaken, snap.Status)
	require.NotNil(t, snap.LastTaken)
	assert.True(t, snap.LastTaken.Equal(at(4, 8, 10)))
	require.NotNil(t, snap.NextDue)
	assert.True(t, snap.NextDue.Equal(at(4, 20, 0)))

	ts := at(4, 20, 5)
	_, err = f.tracker.Skip(ctx, m.ID, &ts, "")
	require.NoError(t, err)
	status, err := f.tracker.Status(m.ID, at(4, 21, 0))
	require.NoError(t, err)
	assert.Equal(t, medication.StatusSkipped, status)

	last, err := f.tracker.LastTaken(m.ID)
	require.NoError(t, err)
	assert.True(t, last.Equal(at(4, 8, 10)))

	kinds := []ChangeKind{}
	for _, c := range f.recorded() {
		kinds = append(kinds, c.Kind)
	}
	assert.Equal(t, []ChangeKind{ChangeAdded, ChangeTaken, ChangeSkipped}, kinds)
}

func TestTakeRejectsImplausibleTimestamp(t *testing.T) {
	f := newFixture(t, store.State{})
	ctx := context.Background()
	m, err := f.tracker.Add(ctx, bloodPressure())
	require.NoError(t, err)

	ts := time.Date(1, time.January, 1, 8, 0, 0, 0, time.UTC)
	_, err = f.tracker.Take(ctx, m.ID, &ts, "")
	assert.Equal(t, apperrors.CodeConfiguration, apperrors.GetCode(err))

	h, err := f.tracker.History(m.ID, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestAdherenceAndMissedDoses(t *testing.T) {
	f := newFixture(t, store.State{})
	ctx := context.Background()
	cfg := bloodPressure()
	start := medication.Date{Year: 2024, Month: time.March, Day: 4}
	cfg.StartDate = &start
	m, err := f.tracker.Add(ctx, cfg)
	require.NoError(t, err)

	ts := at(4, 8, 5)
	_, err = f.tracker.Take(ctx, m.ID, &ts, "")
	require.NoError(t, err)

	// the 08:00 slot was taken, the 20:00 slot was missed
	rate, err := f.tracker.Adherence(m.ID, at(5, 7, 0))
	require.NoError(t, err)
	assert.Equal(t, 50.0, rate)
	missed, err := f.tracker.MissedDoses(m.ID, at(5, 7, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, missed)
}

func TestUpdateKeepsHistory(t *testing.T) {
	f := newFixture(t, store.State{})
	ctx := context.Background()
	m, err := f.tracker.Add(ctx, bloodPressure())
	require.NoError(t, err)
	_, err = f.tracker.Take(ctx, m.ID, nil, "")
	require.NoError(t, err)

	dosage := "10mg"
	f.setNow(at(5, 7, 0))
	updated, err := f.tracker.Update(ctx, m.ID, medication.Patch{Dosage: &dosage, Times: []string{"09:00"}})
	require.NoError(t, err)
	assert.Equal(t, "10mg", updated.Dosage)
	assert.Equal(t, []medication.TimeOfDay{{Hour: 9}}, updated.Times)
	assert.Len(t, updated.History, 1)
	assert.True(t, updated.UpdatedAt.Equal(at(5, 7, 0)))
	assert.True(t, updated.CreatedAt.Equal(at(4, 7, 0)))

	freq := medication.Frequency("hourly")
	_, err = f.tracker.Update(ctx, m.ID, medication.Patch{Frequency: &freq})
	assert.Equal(t, apperrors.CodeValidation, apperrors.GetCode(err))

	got, err := f.tracker.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, medication.FrequencyDaily, got.Frequency)
}

func TestRemove(t *testing.T) {
	f := newFixture(t, store.State{})
	ctx := context.Background()
	a, err := f.tracker.Add(ctx, bloodPressure())
	require.NoError(t, err)
	b, err := f.tracker.Add(ctx, medication.Config{Name: "Ibuprofen", Dosage: "200mg", Frequency: medication.FrequencyAsNeeded})
	require.NoError(t, err)

	require.NoError(t, f.tracker.Remove(ctx, a.ID))
	meds := f.tracker.List()
	require.Len(t, meds, 1)
	assert.Equal(t, b.ID, meds[0].ID)
	assert.EqualValues(t, 1, f.metrics.Snapshot().Medications)

	err = f.tracker.Remove(ctx, a.ID)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))
}

func TestFailedSaveLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, store.State{})
	ctx := context.Background()
	m, err := f.tracker.Add(ctx, bloodPressure())
	require.NoError(t, err)

	f.repo.FailSaves(errors.New("disk full"))

	_, err = f.tracker.Take(ctx, m.ID, nil, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrStorage))
	_, err = f.tracker.Add(ctx, bloodPressure())
	require.Error(t, err)
	require.Error(t, f.tracker.Remove(ctx, m.ID))

	meds := f.tracker.List()
	require.Len(t, meds, 1)
	assert.Empty(t, meds[0].History)
	assert.Len(t, f.recorded(), 1)

	f.repo.FailSaves(nil)
	_, err = f.tracker.Take(ctx, m.ID, nil, "")
	require.NoError(t, err)
	h, err := f.tracker.History(m.ID, nil, nil)
	require.NoError(t, err)
	assert.Len(t, h, 1)
}

func TestLoadsPersistedState(t *testing.T) {
	created := at(1, 8, 0)
	initial := store.State{Medications: []medication.Medication{{
		ID:        "vitd",
		Name:      "Vitamin D",
		Dosage:    "1000 IU",
		Frequency: medication.FrequencyDaily,
		Times:     []medication.TimeOfDay{{Hour: 9}},
		History: []medication.DoseEvent{
			{Timestamp: at(3, 9, 2), Action: medication.ActionTaken},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}}}
	f := newFixture(t, initial)

	snaps := f.tracker.Snapshots(at(4, 9, 30))
	require.Len(t, snaps, 1)
	assert.Equal(t, "vitd", snaps[0].ID)
	assert.Equal(t, medication.StatusDue, snaps[0].Status)
	assert.EqualValues(t, 1, f.metrics.Snapshot().Medications)
}

func TestQueriesReturnCopies(t *testing.T) {
	f := newFixture(t, store.State{})
	ctx := context.Background()
	m, err := f.tracker.Add(ctx, bloodPressure())
	require.NoError(t, err)
	_, err = f.tracker.Take(ctx, m.ID, nil, "original")
	require.NoError(t, err)

	got, err := f.tracker.Get(m.ID)
	require.NoError(t, err)
	got.History[0].Notes = "changed"
	got.Times[0].Hour = 3

	again, err := f.tracker.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", again.History[0].Notes)
	assert.Equal(t, 8, again.Times[0].Hour)
}

func TestHistoryRange(t *testing.T) {
	f := newFixture(t, store.State{})
	ctx := context.Background()
	m, err := f.tracker.Add(ctx, bloodPressure())
	require.NoError(t, err)

	for _, ts := range []time.Time{at(3, 20, 0), at(2, 8, 0), at(3, 8, 0)} {
		ts := ts
		_, err := f.tracker.Take(ctx, m.ID, &ts, "")
		require.NoError(t, err)
	}

	all, err := f.tracker.History(m.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].Timestamp.Equal(at(2, 8, 0)))
	assert.True(t, all[2].Timestamp.Equal(at(3, 20, 0)))

	from, to := at(3, 0, 0), at(3, 20, 0)
	ranged, err := f.tracker.History(m.ID, &from, &to)
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.True(t, ranged[0].Timestamp.Equal(at(3, 8, 0)))

	ranged, err = f.tracker.History(m.ID, &from, nil)
	require.NoError(t, err)
	assert.Len(t, ranged, 2)
}

func TestImport(t *testing.T) {
	f := newFixture(t, store.State{})
	ctx := context.Background()
	existing, err := f.tracker.Add(ctx, bloodPressure())
	require.NoError(t, err)

	meds := []medication.Medication{
		{ID: existing.ID, Name: "Renamed", Dosage: "5mg", Frequency: medication.FrequencyDaily,
			Times: []medication.TimeOfDay{{Hour: 8}}},
		{Name: "Ibuprofen", Dosage: "200mg", Frequency: medication.FrequencyAsNeeded},
	}
	n, err := f.tracker.Import(ctx, meds, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list := f.tracker.List()
	require.Len(t, list, 2)
	assert.Equal(t, "Renamed", list[0].Name)
	assert.Equal(t, "med-2", list[1].ID)
	assert.False(t, list[1].CreatedAt.IsZero())
	assert.Equal(t, ChangeImported, f.recorded()[1].Kind)

	_, err = f.tracker.Import(ctx, []medication.Medication{{Name: "Broken", Dosage: "1", Frequency: medication.FrequencyDaily}}, true)
	assert.Equal(t, apperrors.CodeValidation, apperrors.GetCode(err))
	assert.Len(t, f.tracker.List(), 2)

	_, err = f.tracker.Import(ctx, meds[1:], true)
	require.NoError(t, err)
	assert.Len(t, f.tracker.List(), 1)
}

func TestConcurrentCommands(t *testing.T) {
	f := newFixture(t, store.State{})
	ctx := context.Background()
	m, err := f.tracker.Add(ctx, bloodPressure())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.tracker.Take(ctx, m.ID, nil, "")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_ = f.tracker.Snapshots(at(4, 9, 0))
		}()
	}
	wg.Wait()

	h, err := f.tracker.History(m.ID, nil, nil)
	require.NoError(t, err)
	assert.Len(t, h, 20)
	assert.Equal(t, 21, f.repo.Saves())
}
