package tracker

import (
	"time"

	apperrors "github.com/gmsas95/medtracker/internal/errors"
	"github.com/gmsas95/medtracker/internal/medication"
)

func (t *Tracker) find(id string) (medication.Medication, error) {
	state := t.snapshot()
	i, ok := state.Index(id)
	if !ok {
		return medication.Medication{}, apperrors.NotFound(id)
	}
	return state.Medications[i], nil
}

// Get returns a copy of the medication with id.
func (t *Tracker) Get(id string) (medication.Medication, error) {
	m, err := t.find(id)
	if err != nil {
		return medication.Medication{}, err
	}
	return m.Clone(), nil
}

// List returns copies of all medications in insertion order.
func (t *Tracker) List() []medication.Medication {
	state := t.snapshot()
	out := make([]medication.Medication, len(state.Medications))
	for i, m := range state.Medications {
		out[i] = m.Clone()
	}
	return out
}

// Status returns the status of id at now.
func (t *Tracker) Status(id string, now time.Time) (medication.Status, error) {
	m, err := t.find(id)
	if err != nil {
		return "", err
	}
	return m.Status(now, t.loc), nil
}

// NextDue returns the next due instant of id at now, nil when no dose is
// expected.
func (t *Tracker) NextDue(id string, now time.Time) (*time.Time, error) {
	m, err := t.find(id)
	if err != nil {
		return nil, err
	}
	return m.NextDue(now, t.loc), nil
}

// LastTaken returns the latest taken dose of id.
func (t *Tracker) LastTaken(id string) (*time.Time, error) {
	m, err := t.find(id)
	if err != nil {
		return nil, err
	}
	return m.LastTaken(), nil
}

// Adherence returns the adherence percentage of id at now.
func (t *Tracker) Adherence(id string, now time.Time) (float64, error) {
	m, err := t.find(id)
	if err != nil {
		return 0, err
	}
	return m.Adherence(now, t.loc), nil
}

// MissedDoses returns the number of missed cycles of id at now.
func (t *Tracker) MissedDoses(id string, now time.Time) (int, error) {
	m, err := t.find(id)
	if err != nil {
		return 0, err
	}
	return m.MissedDoses(now, t.loc), nil
}

// Snapshot returns every derived value of id at now.
func (t *Tracker) Snapshot(id string, now time.Time) (medication.Snapshot, error) {
	m, err := t.find(id)
	if err != nil {
		return medication.Snapshot{}, err
	}
	return m.Evaluate(now, t.loc), nil
}

// Snapshots evaluates every medication at now.
func (t *Tracker) Snapshots(now time.Time) []medication.Snapshot {
	state := t.snapshot()
	out := make([]medication.Snapshot, len(state.Medications))
	for i, m := range state.Medications {
		out[i] = m.Evaluate(now, t.loc)
	}
	return out
}

// History returns the dose events of id in timestamp order, limited to
// [from, to) when bounds are given.
func (t *Tracker) History(id string, from, to *time.Time) ([]medication.DoseEvent, error) {
	m, err := t.find(id)
	if err != nil {
		return nil, err
	}
	h := medication.SortedHistory(m.History)
	if len(h) == 0 {
		return []medication.DoseEvent{}, nil
	}
	lo := h[0].Timestamp
	hi := h[len(h)-1].Timestamp.Add(time.Nanosecond)
	if from != nil {
		lo = *from
	}
	if to != nil {
		hi = *to
	}
	return append([]medication.DoseEvent{}, h.Between(lo, hi)...), nil
}
