package medication

import (
	"strings"
	"time"

	apperrors "github.com/gmsas95/medtracker/internal/errors"
)

// Config is the user-supplied configuration of a new medication.
type Config struct {
	Name      string    `json:"name" yaml:"name"`
	Dosage    string    `json:"dosage" yaml:"dosage"`
	Notes     string    `json:"notes,omitempty" yaml:"notes,omitempty"`
	Frequency Frequency `json:"frequency" yaml:"frequency"`
	Times     []string  `json:"times,omitempty" yaml:"times,omitempty"`
	StartDate *Date     `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate   *Date     `json:"end_date,omitempty" yaml:"end_date,omitempty"`
}

// DateField is an optional date update. Set with a nil Value clears the
// date.
type DateField struct {
	Set   bool
	Value *Date
}

// Patch is a partial update. Nil fields keep their current value.
type Patch struct {
	Name      *string
	Dosage    *string
	Notes     *string
	Frequency *Frequency
	Times     []string
	StartDate DateField
	EndDate   DateField
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Dosage == nil && p.Notes == nil && p.Frequency == nil &&
		p.Times == nil && !p.StartDate.Set && !p.EndDate.Set
}

// ParseTimes parses and normalizes a list of "HH:MM" strings.
func ParseTimes(raw []string) ([]TimeOfDay, error) {
	out := make([]TimeOfDay, 0, len(raw))
	for _, s := range raw {
		t, err := ParseTimeOfDay(s)
		if err != nil {
			return nil, apperrors.Configuration("%v", err)
		}
		out = append(out, t)
	}
	return normalizeTimes(out), nil
}

// New validates cfg and builds a medication with an empty history.
func New(id string, cfg Config, now time.Time) (Medication, error) {
	times, err := ParseTimes(cfg.Times)
	if err != nil {
		return Medication{}, err
	}
	m := Medication{
		ID:        id,
		Name:      strings.TrimSpace(cfg.Name),
		Dosage:    strings.TrimSpace(cfg.Dosage),
		Notes:     cfg.Notes,
		Frequency: cfg.Frequency,
		Times:     times,
		StartDate: cfg.StartDate,
		EndDate:   cfg.EndDate,
		History:   []DoseEvent{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := Validate(m); err != nil {
		return Medication{}, err
	}
	return m, nil
}

// Start and end dates must fall within these years.
const (
	MinYear = 1900
	MaxYear = 9999
)

// Validate checks the configuration of m.
func Validate(m Medication) error {
	if strings.TrimSpace(m.Name) == "" {
		return apperrors.Validation("name is required")
	}
	if strings.TrimSpace(m.Dosage) == "" {
		return apperrors.Validation("dosage is required")
	}
	if m.Frequency == "" {
		return apperrors.Validation("frequency is required")
	}
	if !m.Frequency.Valid() {
		return apperrors.Validation("unsupported frequency %q", m.Frequency)
	}
	if m.Frequency.RequiresTimes() && len(m.Times) == 0 {
		return apperrors.Validation("at least one time is required for %s medications", m.Frequency)
	}
	for _, t := range m.Times {
		if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
			return apperrors.Configuration("invalid time of day %s", t)
		}
	}
	for _, d := range []struct {
		key  string
		date *Date
	}{{"start_date", m.StartDate}, {"end_date", m.EndDate}} {
		if d.date != nil && !plausibleYear(d.date.Year) {
			return apperrors.Configuration("%s %s is outside %d-%d", d.key, d.date, MinYear, MaxYear)
		}
	}
	if !m.CreatedAt.IsZero() {
		if err := CheckInstant("created_at", m.CreatedAt); err != nil {
			return err
		}
	}
	for _, ev := range m.History {
		if err := CheckInstant("timestamp", ev.Timestamp); err != nil {
			return err
		}
	}
	if m.StartDate != nil && m.EndDate != nil && m.EndDate.Before(*m.StartDate) {
		return apperrors.Configuration("end_date %s is before start_date %s", m.EndDate, m.StartDate)
	}
	return nil
}

func plausibleYear(y int) bool { return y >= MinYear && y <= MaxYear }

// CheckInstant rejects a timestamp outside MinYear-MaxYear.
func CheckInstant(key string, t time.Time) error {
	if !plausibleYear(t.Year()) {
		return apperrors.Configuration("%s %s is outside %d-%d", key, t.Format(time.RFC3339), MinYear, MaxYear)
	}
	return nil
}

// Apply returns a copy of m with p applied. History is untouched.
func (m Medication) Apply(p Patch, now time.Time) (Medication, error) {
	out := m.Clone()
	if p.Name != nil {
		out.Name = strings.TrimSpace(*p.Name)
	}
	if p.Dosage != nil {
		out.Dosage = strings.TrimSpace(*p.Dosage)
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	if p.Frequency != nil {
		out.Frequency = *p.Frequency
	}
	if p.Times != nil {
		times, err := ParseTimes(p.Times)
		if err != nil {
			return Medication{}, err
		}
		out.Times = times
	}
	if p.StartDate.Set {
		out.StartDate = p.StartDate.Value
	}
	if p.EndDate.Set {
		out.EndDate = p.EndDate.Value
	}
	if err := Validate(out); err != nil {
		return Medication{}, err
	}
	out.UpdatedAt = now
	return out, nil
}
