package store

import (
	"encoding/json"
	"time"
)

// MedicationRow is the medications table
type MedicationRow struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	Dosage    string
	Notes     string
	Frequency string `gorm:"index"`
	TimesJSON string `gorm:"type:text"` // ["08:00","20:00"]
	StartDate string
	EndDate   string
	Position  int
	CreatedAt string
	UpdatedAt string
}

func (MedicationRow) TableName() string { return "medications" }

// DoseEventRow is the dose_events table
type DoseEventRow struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	MedicationID string `gorm:"index:idx_med_seq"`
	Seq          int    `gorm:"index:idx_med_seq"`
	Timestamp    string
	Action       string
	Notes        string
	RecordedAt   time.Time
}

func (DoseEventRow) TableName() string { return "dose_events" }

func toRows(rec medicationRecord, position int, now time.Time) (MedicationRow, []DoseEventRow) {
	times, _ := json.Marshal(rec.Times)
	row := MedicationRow{
		ID:        rec.ID,
		Name:      rec.Name,
		Dosage:    rec.Dosage,
		Notes:     rec.Notes,
		Frequency: rec.Frequency,
		TimesJSON: string(times),
		StartDate: rec.StartDate,
		EndDate:   rec.EndDate,
		Position:  position,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	events := make([]DoseEventRow, len(rec.History))
	for i, ev := range rec.History {
		events[i] = DoseEventRow{
			MedicationID: rec.ID,
			Seq:          i,
			Timestamp:    ev.Timestamp,
			Action:       ev.Action,
			Notes:        ev.Notes,
			RecordedAt:   now,
		}
	}
	return row, events
}

func fromRow(row MedicationRow, events []DoseEventRow) (medicationRecord, error) {
	rec := medicationRecord{
		ID:        row.ID,
		Name:      row.Name,
		Dosage:    row.Dosage,
		Notes:     row.Notes,
		Frequency: row.Frequency,
		StartDate: row.StartDate,
		EndDate:   row.EndDate,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		History:   make([]eventRecord, len(events)),
	}
	if row.TimesJSON != "" {
		if err := json.Unmarshal([]byte(row.TimesJSON), &rec.Times); err != nil {
			return rec, err
		}
	}
	for i, ev := range events {
		rec.History[i] = eventRecord{Timestamp: ev.Timestamp, Action: ev.Action, Notes: ev.Notes}
	}
	return rec, nil
}
