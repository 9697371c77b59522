// Package medication holds the medication model and the scheduling engine
// that derives status, next due time, last taken time, missed doses and
// adherence from a medication's configuration and dose history.
//
// Nothing in this package performs I/O or reads the wall clock: every
// derived value is a function of (medication, now, location).
package medication

import (
	"fmt"
	"strings"
	"time"
)

// Frequency is the recurrence class of a medication.
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyMonthly  Frequency = "monthly"
	FrequencyAsNeeded Frequency = "as_needed"
)

// Frequencies lists the supported frequencies in display order.
var Frequencies = []Frequency{FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyAsNeeded}

// Valid reports whether f is a supported frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyAsNeeded:
		return true
	}
	return false
}

// RequiresTimes reports whether dose times are mandatory for f.
func (f Frequency) RequiresTimes() bool {
	return f != FrequencyAsNeeded
}

// Status is the derived state of a medication at a given instant.
type Status string

const (
	StatusNotDue  Status = "not_due"
	StatusDue     Status = "due"
	StatusOverdue Status = "overdue"
	StatusTaken   Status = "taken"
	StatusSkipped Status = "skipped"
)

// Action is what a dose event records.
type Action string

const (
	ActionTaken   Action = "taken"
	ActionSkipped Action = "skipped"
)

func (a Action) Valid() bool {
	return a == ActionTaken || a == ActionSkipped
}

// OverdueThreshold is the grace period after a due instant before the
// status escalates from due to overdue.
const OverdueThreshold = 2 * time.Hour

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts "HH:MM" and "HH:MM:SS". Seconds are dropped.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day %q, expected HH:MM", s)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns the instant of t on day d in loc.
func (t TimeOfDay) On(d Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, 0, 0, loc)
}

func (t TimeOfDay) Before(o TimeOfDay) bool {
	if t.Hour != o.Hour {
		return t.Hour < o.Hour
	}
	return t.Minute < o.Minute
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Date is a calendar date without a time or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// ParseDate accepts "YYYY-MM-DD". Values carrying a time part
// ("YYYY-MM-DDTHH:MM:SS...") keep only their date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(dateLayout) && (s[len(dateLayout)] == 'T' || s[len(dateLayout)] == ' ') {
		s = s[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Start returns local midnight of d.
func (d Date) Start(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

func (d Date) Before(o Date) bool {
	return d.Start(time.UTC).Before(o.Start(time.UTC))
}

func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// daysBetween returns b - a in whole days.
func daysBetween(a, b Date) int {
	return int(b.Start(time.UTC).Sub(a.Start(time.UTC)).Hours() / 24)
}

// ParseTimestamp parses an RFC 3339 instant. Timestamps without a zone
// offset are read as wall-clock time in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04",
	} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// ParseBound reads an optional range bound given as a timestamp or as a
// date, which means the start of that day in loc. Empty input yields nil.
func ParseBound(raw string, loc *time.Location) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	if t, err := ParseTimestamp(raw, loc); err == nil {
		return &t, nil
	}
	d, err := ParseDate(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid time bound %q", raw)
	}
	t := d.Start(loc)
	return &t, nil
}

// DoseEvent records a dose being taken or skipped.
type DoseEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	Notes     string    `json:"notes,omitempty"`
}

// Medication is a configured medication together with its dose history.
// Derived values are never stored on it.
type Medication struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Dosage    string      `json:"dosage"`
	Notes     string      `json:"notes,omitempty"`
	Frequency Frequency   `json:"frequency"`
	Times     []TimeOfDay `json:"times"`
	StartDate *Date       `json:"start_date,omitempty"`
	EndDate   *Date       `json:"end_date,omitempty"`
	History   []DoseEvent `json:"history"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Clone returns a deep copy of m.
func (m Medication) Clone() Medication {
	c := m
	c.Times = append([]TimeOfDay(nil), m.Times...)
	c.History = append([]DoseEvent(nil), m.History...)
	if m.StartDate != nil {
		d := *m.StartDate
		c.StartDate = &d
	}
	if m.EndDate != nil {
		d := *m.EndDate
		c.EndDate = &d
	}
	return c
}

// Record appends a dose event. History order is irrelevant to every
// derived value.
func (m *Medication) Record(ev DoseEvent) {
	m.History = append(m.History, ev)
}

// Snapshot is the full derived state of a medication at an instant.
type Snapshot struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Dosage        string      `json:"dosage"`
	Notes         string      `json:"notes,omitempty"`
	Frequency     Frequency   `json:"frequency"`
	Times         []TimeOfDay `json:"times"`
	StartDate     *Date       `json:"start_date,omitempty"`
	EndDate       *Date       `json:"end_date,omitempty"`
	Status        Status      `json:"status"`
	NextDue       *time.Time  `json:"next_due"`
	LastTaken     *time.Time  `json:"last_taken"`
	MissedDoses   int         `json:"missed_doses"`
	AdherenceRate float64     `json:"adherence_rate"`
	EvaluatedAt   time.Time   `json:"evaluated_at"`
}
