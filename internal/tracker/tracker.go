// Package tracker is the command and query surface over the medication
// engine. Commands are serialized and persisted before they become visible;
// queries read an immutable snapshot and may run concurrently.
package tracker

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/gmsas95/medtracker/internal/errors"
	"github.com/gmsas95/medtracker/internal/medication"
	"github.com/gmsas95/medtracker/internal/metrics"
	"github.com/gmsas95/medtracker/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChangeKind says what a committed command did.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeUpdated  ChangeKind = "updated"
	ChangeRemoved  ChangeKind = "removed"
	ChangeTaken    ChangeKind = "taken"
	ChangeSkipped  ChangeKind = "skipped"
	ChangeImported ChangeKind = "imported"
)

// Change tells listeners that derived state of a medication may differ
// from what they last fetched.
type Change struct {
	Kind         ChangeKind
	MedicationID string
}

// Listener receives committed changes. It runs on the caller's goroutine
// after the command lock is released.
type Listener func(Change)

// Options configures a Tracker.
type Options struct {
	Location *time.Location
	Clock    func() time.Time
	NewID    func() string
	Metrics  *metrics.Metrics
}

// Tracker owns the medication state.
type Tracker struct {
	repo    store.Repository
	logger  *zap.Logger
	loc     *time.Location
	now     func() time.Time
	newID   func() string
	metrics *metrics.Metrics

	cmdMu sync.Mutex // serializes commands

	mu    sync.RWMutex
	state store.State

	listenersMu sync.RWMutex
	listeners   []Listener
}

// New loads the persisted state and returns a ready Tracker.
func New(ctx context.Context, repo store.Repository, logger *zap.Logger, opts Options) (*Tracker, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	state, err := repo.Load(ctx)
	if err != nil {
		return nil, err
	}

	t := &Tracker{
		repo:    repo,
		logger:  logger,
		loc:     opts.Location,
		now:     opts.Clock,
		newID:   opts.NewID,
		metrics: opts.Metrics,
		state:   state,
	}
	t.metrics.SetMedications(len(state.Medications))

	logger.Info("Tracker loaded",
		zap.Int("medications", len(state.Medications)),
		zap.String("timezone", t.loc.String()))
	return t, nil
}

// Location is the timezone dose times are read in.
func (t *Tracker) Location() *time.Location { return t.loc }

// Now returns the tracker clock in its location.
func (t *Tracker) Now() time.Time { return t.now().In(t.loc) }

// Subscribe registers fn for every committed change.
func (t *Tracker) Subscribe(fn Listener) {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	t.listeners = append(t.listeners, fn)
}

func (t *Tracker) notify(c Change) {
	t.listenersMu.RLock()
	listeners := append([]Listener(nil), t.listeners...)
	t.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(c)
	}
}

func (t *Tracker) snapshot() store.State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// commit runs mutate on a copy of the state, persists the copy and only
// then makes it current. A failed save leaves the current state untouched.
func (t *Tracker) commit(ctx context.Context, name string, mutate func(*store.State) (Change, error)) (Change, error) {
	t.cmdMu.Lock()

	next := t.snapshot().Clone()
	change, err := mutate(&next)
	if err != nil {
		t.cmdMu.Unlock()
		t.metrics.RecordCommand(name, apperrors.GetCode(err))
		return change, err
	}

	if err := t.repo.Save(ctx, next); err != nil {
		t.cmdMu.Unlock()
		if !apperrors.IsAppError(err) {
			err = apperrors.Storage("save medications", err)
		}
		t.logger.Error("Failed to persist command",
			zap.String("command", name),
			zap.String("medication_id", change.MedicationID),
			zap.Error(err))
		t.metrics.RecordCommand(name, apperrors.GetCode(err))
		return change, err
	}

	t.mu.Lock()
	t.state = next
	t.mu.Unlock()
	t.cmdMu.Unlock()

	t.metrics.RecordCommand(name, "ok")
	t.metrics.SetMedications(len(next.Medications))
	t.notify(change)
	return change, nil
}

// Add validates cfg and stores a new medication with a fresh id.
func (t *Tracker) Add(ctx context.Context, cfg medication.Config) (medication.Medication, error) {
	var added medication.Medication
	_, err := t.commit(ctx, "add_medication", func(s *store.State) (Change, error) {
		m, err := medication.New(t.newID(), cfg, t.Now())
		if err != nil {
			return Change{}, err
		}
		s.Medications = append(s.Medications, m)
		added = m
		return Change{Kind: ChangeAdded, MedicationID: m.ID}, nil
	})
	if err != nil {
		return medication.Medication{}, err
	}

	t.logger.Info("Medication added",
		zap.String("medication_id", added.ID),
		zap.String("name", added.Name),
		zap.String("frequency", string(added.Frequency)))
	return added.Clone(), nil
}

// Update applies a partial configuration change. History is kept.
func (t *Tracker) Update(ctx context.Context, id string, patch medication.Patch) (medication.Medication, error) {
	var updated medication.Medication
	_, err := t.commit(ctx, "update_medication", func(s *store.State) (Change, error) {
		i, ok := s.Index(id)
		if !ok {
			return Change{}, apperrors.NotFound(id)
		}
		m, err := s.Medications[i].Apply(patch, t.Now())
		if err != nil {
			return Change{}, err
		}
		s.Medications[i] = m
		updated = m
		return Change{Kind: ChangeUpdated, MedicationID: id}, nil
	})
	if err != nil {
		return medication.Medication{}, err
	}

	t.logger.Info("Medication updated", zap.String("medication_id", id))
	return updated.Clone(), nil
}

// Remove deletes a medication and its history.
func (t *Tracker) Remove(ctx context.Context, id string) error {
	_, err := t.commit(ctx, "remove_medication", func(s *store.State) (Change, error) {
		i, ok := s.Index(id)
		if !ok {
			return Change{}, apperrors.NotFound(id)
		}
		s.Medications = append(s.Medications[:i], s.Medications[i+1:]...)
		return Change{Kind: ChangeRemoved, MedicationID: id}, nil
	})
	if err != nil {
		return err
	}

	t.logger.Info("Medication removed", zap.String("medication_id", id))
	return nil
}

// Take records a taken dose at ts, or now when ts is nil.
func (t *Tracker) Take(ctx context.Context, id string, ts *time.Time, notes string) (medication.DoseEvent, error) {
	return t.record(ctx, "take_medication", id, medication.ActionTaken, ts, notes)
}

// Skip records a skipped dose at ts, or now when ts is nil.
func (t *Tracker) Skip(ctx context.Context, id string, ts *time.Time, notes string) (medication.DoseEvent, error) {
	return t.record(ctx, "skip_medication", id, medication.ActionSkipped, ts, notes)
}

func (t *Tracker) record(ctx context.Context, name, id string, action medication.Action, ts *time.Time, notes string) (medication.DoseEvent, error) {
	ev := medication.DoseEvent{Action: action, Notes: notes}
	if ts != nil {
		ev.Timestamp = *ts
	} else {
		ev.Timestamp = t.Now()
	}
	if err := medication.CheckInstant("timestamp", ev.Timestamp); err != nil {
		return medication.DoseEvent{}, err
	}

	kind := ChangeTaken
	if action == medication.ActionSkipped {
		kind = ChangeSkipped
	}

	_, err := t.commit(ctx, name, func(s *store.State) (Change, error) {
		i, ok := s.Index(id)
		if !ok {
			return Change{}, apperrors.NotFound(id)
		}
		s.Medications[i].Record(ev)
		return Change{Kind: kind, MedicationID: id}, nil
	})
	if err != nil {
		return medication.DoseEvent{}, err
	}

	t.logger.Info("Dose recorded",
		zap.String("medication_id", id),
		zap.String("action", string(action)),
		zap.Time("timestamp", ev.Timestamp))
	return ev, nil
}

// Import merges meds into the state, replacing medications with the same
// id. With replace set, medications not in meds are dropped. Every
// medication is validated before anything is written.
func (t *Tracker) Import(ctx context.Context, meds []medication.Medication, replace bool) (int, error) {
	_, err := t.commit(ctx, "import_medications", func(s *store.State) (Change, error) {
		if replace {
			s.Medications = nil
		}
		now := t.Now()
		for _, m := range meds {
			m = m.Clone()
			if m.ID == "" {
				m.ID = t.newID()
			}
			if err := medication.Validate(m); err != nil {
				return Change{}, apperrors.Validation("medication %q: %v", m.Name, err)
			}
			if m.CreatedAt.IsZero() {
				m.CreatedAt = now
			}
			m.UpdatedAt = now
			if i, ok := s.Index(m.ID); ok {
				s.Medications[i] = m
			} else {
				s.Medications = append(s.Medications, m)
			}
		}
		return Change{Kind: ChangeImported}, nil
	})
	if err != nil {
		return 0, err
	}

	t.logger.Info("Medications imported", zap.Int("count", len(meds)), zap.Bool("replace", replace))
	return len(meds), nil
}
