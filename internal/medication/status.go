package medication

import (
	"time"
)

// activeRange is the [start, end) instant range covered by a medication's
// inclusive start and end dates. A nil bound is unbounded.
type activeRange struct {
	start *time.Time
	end   *time.Time
}

func rangeOf(m Medication, loc *time.Location) activeRange {
	var r activeRange
	if m.StartDate != nil {
		s := m.StartDate.Start(loc)
		r.start = &s
	}
	if m.EndDate != nil {
		e := m.EndDate.AddDays(1).Start(loc)
		r.end = &e
	}
	return r
}

func (r activeRange) contains(t time.Time) bool {
	if r.start != nil && t.Before(*r.start) {
		return false
	}
	if r.end != nil && !t.Before(*r.end) {
		return false
	}
	return true
}

func (r activeRange) notStarted(now time.Time) bool {
	return r.start != nil && now.Before(*r.start)
}

func (r activeRange) ended(now time.Time) bool {
	return r.end != nil && !now.Before(*r.end)
}

// following returns the due instant of the first cycle after t, or nil if
// it falls outside the range.
func (r activeRange) following(s Schedule, t time.Time) *time.Time {
	c, ok := s.Next(t)
	if !ok || !r.contains(c.Start) {
		return nil
	}
	return &c.Start
}

// evaluation is the derived state of one medication at one instant.
type evaluation struct {
	med      Medication
	loc      *time.Location
	now      time.Time
	history  History
	schedule Schedule
	active   activeRange
	status   Status
	nextDue  *time.Time
}

func evaluate(m Medication, now time.Time, loc *time.Location) *evaluation {
	if loc == nil {
		loc = time.Local
	}
	e := &evaluation{
		med:     m,
		loc:     loc,
		now:     now,
		history: SortedHistory(m.History),
		active:  rangeOf(m, loc),
		status:  StatusNotDue,
	}
	sched, err := ScheduleFor(m, loc, now)
	if err != nil {
		return e
	}
	e.schedule = sched

	switch {
	case e.active.notStarted(now):
		e.nextDue = e.active.following(sched, e.active.start.Add(-time.Nanosecond))
		return e
	case e.active.ended(now):
		return e
	}

	st := sched.resolve(e.history, now, e.active)
	e.nextDue = st.next
	switch {
	case st.settled != "":
		e.status = st.settled
	case st.next == nil || now.Before(*st.next):
		e.status = StatusNotDue
	case now.Sub(*st.next) < OverdueThreshold:
		e.status = StatusDue
	default:
		e.status = StatusOverdue
	}
	return e
}

// Evaluate computes every derived value of m at now.
func (m Medication) Evaluate(now time.Time, loc *time.Location) Snapshot {
	e := evaluate(m, now, loc)
	missed, adherence := e.cycleStats()
	return Snapshot{
		ID:            m.ID,
		Name:          m.Name,
		Dosage:        m.Dosage,
		Notes:         m.Notes,
		Frequency:     m.Frequency,
		Times:         normalizeTimes(m.Times),
		StartDate:     m.StartDate,
		EndDate:       m.EndDate,
		Status:        e.status,
		NextDue:       e.nextDue,
		LastTaken:     m.LastTaken(),
		MissedDoses:   missed,
		AdherenceRate: adherence,
		EvaluatedAt:   now,
	}
}

func (m Medication) Status(now time.Time, loc *time.Location) Status {
	return evaluate(m, now, loc).status
}

// NextDue returns the next due instant, or nil when no further dose is
// expected.
func (m Medication) NextDue(now time.Time, loc *time.Location) *time.Time {
	return evaluate(m, now, loc).nextDue
}

// LastTaken returns the instant of the chronologically latest taken dose.
func (m Medication) LastTaken() *time.Time {
	if ev := SortedHistory(m.History).LastTaken(); ev != nil {
		t := ev.Timestamp
		return &t
	}
	return nil
}
