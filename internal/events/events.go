// Package events carries status transitions out of the process.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/gmsas95/medtracker/internal/medication"
)

// Event is emitted once per status transition of a medication.
type Event struct {
	MedicationID  string               `json:"medication_id"`
	Name          string               `json:"name"`
	Dosage        string               `json:"dosage"`
	Frequency     medication.Frequency `json:"frequency"`
	Notes         string               `json:"notes,omitempty"`
	OldStatus     medication.Status    `json:"old_status"`
	NewStatus     medication.Status    `json:"new_status"`
	NextDue       *time.Time           `json:"next_due"`
	LastTaken     *time.Time           `json:"last_taken"`
	MissedDoses   int                  `json:"missed_doses"`
	AdherenceRate float64              `json:"adherence_rate"`
	Timestamp     time.Time            `json:"timestamp"`
}

// NewEvent builds the transition event from old to the snapshot's status.
func NewEvent(s medication.Snapshot, old medication.Status) Event {
	return Event{
		MedicationID:  s.ID,
		Name:          s.Name,
		Dosage:        s.Dosage,
		Frequency:     s.Frequency,
		Notes:         s.Notes,
		OldStatus:     old,
		NewStatus:     s.Status,
		NextDue:       s.NextDue,
		LastTaken:     s.LastTaken,
		MissedDoses:   s.MissedDoses,
		AdherenceRate: s.AdherenceRate,
		Timestamp:     s.EvaluatedAt,
	}
}

// Publisher delivers events to one sink.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, ev Event) error
}

// Recorder receives the outcome of every delivery. *metrics.Metrics
// satisfies it.
type Recorder interface {
	RecordEvent(sink string, err error)
}

// Multi publishes to every sink and joins their errors. One failing sink
// does not stop the others.
type Multi struct {
	sinks    []Publisher
	recorder Recorder
}

func NewMulti(recorder Recorder, sinks ...Publisher) *Multi {
	return &Multi{sinks: sinks, recorder: recorder}
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, sink := range m.sinks {
		err := sink.Publish(ctx, ev)
		if m.recorder != nil {
			m.recorder.RecordEvent(sink.Name(), err)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sinks returns the names of the configured sinks.
func (m *Multi) Sinks() []string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return names
}
