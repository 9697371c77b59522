package store

import (
	"fmt"
	"time"

	"github.com/gmsas95/medtracker/internal/medication"
	"go.uber.org/zap"
)

// medicationRecord is the stored form of a medication. Every field is kept
// loosely typed so one bad value can be reported and skipped instead of
// failing the whole load.
type medicationRecord struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Dosage    string        `json:"dosage"`
	Notes     string        `json:"notes,omitempty"`
	Frequency string        `json:"frequency"`
	Times     []string      `json:"times"`
	StartDate string        `json:"start_date,omitempty"`
	EndDate   string        `json:"end_date,omitempty"`
	History   []eventRecord `json:"history"`
	CreatedAt string        `json:"created_at,omitempty"`
	UpdatedAt string        `json:"updated_at,omitempty"`
}

// eventRecord is the stored form of a dose event. Older data stored a
// "taken" flag instead of an action.
type eventRecord struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action,omitempty"`
	Taken     *bool  `json:"taken,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

func encodeMedication(m medication.Medication) medicationRecord {
	rec := medicationRecord{
		ID:        m.ID,
		Name:      m.Name,
		Dosage:    m.Dosage,
		Notes:     m.Notes,
		Frequency: string(m.Frequency),
		Times:     make([]string, len(m.Times)),
		History:   make([]eventRecord, len(m.History)),
	}
	for i, t := range m.Times {
		rec.Times[i] = t.String()
	}
	if m.StartDate != nil {
		rec.StartDate = m.StartDate.String()
	}
	if m.EndDate != nil {
		rec.EndDate = m.EndDate.String()
	}
	for i, ev := range m.History {
		rec.History[i] = encodeEvent(ev)
	}
	if !m.CreatedAt.IsZero() {
		rec.CreatedAt = m.CreatedAt.Format(time.RFC3339Nano)
	}
	if !m.UpdatedAt.IsZero() {
		rec.UpdatedAt = m.UpdatedAt.Format(time.RFC3339Nano)
	}
	return rec
}

func encodeEvent(ev medication.DoseEvent) eventRecord {
	return eventRecord{
		Timestamp: ev.Timestamp.Format(time.RFC3339Nano),
		Action:    string(ev.Action),
		Notes:     ev.Notes,
	}
}

// decoder turns stored records back into medications, logging and
// skipping whatever it cannot read.
type decoder struct {
	loc    *time.Location
	logger *zap.Logger
}

func (d decoder) decodeMedication(rec medicationRecord) (medication.Medication, error) {
	if rec.ID == "" {
		return medication.Medication{}, fmt.Errorf("record has no id")
	}
	m := medication.Medication{
		ID:        rec.ID,
		Name:      rec.Name,
		Dosage:    rec.Dosage,
		Notes:     rec.Notes,
		Frequency: medication.Frequency(rec.Frequency),
		History:   make([]medication.DoseEvent, 0, len(rec.History)),
	}
	if !m.Frequency.Valid() {
		return medication.Medication{}, fmt.Errorf("unsupported frequency %q", rec.Frequency)
	}

	times := make([]medication.TimeOfDay, 0, len(rec.Times))
	for _, raw := range rec.Times {
		t, err := medication.ParseTimeOfDay(raw)
		if err != nil {
			return medication.Medication{}, err
		}
		times = append(times, t)
	}
	m.Times = times

	var err error
	if m.StartDate, err = optionalDate(rec.StartDate); err != nil {
		return medication.Medication{}, err
	}
	if m.EndDate, err = optionalDate(rec.EndDate); err != nil {
		return medication.Medication{}, err
	}
	m.CreatedAt = d.instant(rec.CreatedAt)
	m.UpdatedAt = d.instant(rec.UpdatedAt)

	for i, raw := range rec.History {
		ev, err := d.decodeEvent(raw)
		if err != nil {
			d.logger.Warn("Skipping malformed dose event",
				zap.String("medication_id", rec.ID),
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		m.History = append(m.History, ev)
	}
	return m, nil
}

func (d decoder) decodeEvent(rec eventRecord) (medication.DoseEvent, error) {
	ts, err := medication.ParseTimestamp(rec.Timestamp, d.loc)
	if err != nil {
		return medication.DoseEvent{}, err
	}
	action := medication.Action(rec.Action)
	if action == "" && rec.Taken != nil {
		action = medication.ActionSkipped
		if *rec.Taken {
			action = medication.ActionTaken
		}
	}
	if !action.Valid() {
		return medication.DoseEvent{}, fmt.Errorf("unknown action %q", rec.Action)
	}
	return medication.DoseEvent{Timestamp: ts, Action: action, Notes: rec.Notes}, nil
}

func (d decoder) instant(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := medication.ParseTimestamp(s, d.loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

func optionalDate(s string) (*medication.Date, error) {
	if s == "" {
		return nil, nil
	}
	date, err := medication.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &date, nil
}

// decodeAll decodes records, skipping the malformed ones.
func (d decoder) decodeAll(records []medicationRecord) State {
	state := State{Medications: make([]medication.Medication, 0, len(records))}
	for _, rec := range records {
		m, err := d.decodeMedication(rec)
		if err != nil {
			d.logger.Warn("Skipping malformed medication record",
				zap.String("medication_id", rec.ID),
				zap.Error(err))
			continue
		}
		state.Medications = append(state.Medications, m)
	}
	return state
}
