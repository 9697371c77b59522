package medication

import (
	"math"
	"time"
)

// MissedDoses counts fully elapsed cycles since the start date (or the
// first recorded dose, or creation) with neither a taken nor a skipped dose.
func (m Medication) MissedDoses(now time.Time, loc *time.Location) int {
	missed, _ := evaluate(m, now, loc).cycleStats()
	return missed
}

// Adherence returns the percentage of fully elapsed cycles that contain a
// taken dose. Skipped cycles count against it. With no elapsed cycles the
// rate is 100.
func (m Medication) Adherence(now time.Time, loc *time.Location) float64 {
	_, rate := evaluate(m, now, loc).cycleStats()
	return rate
}

// origin is where cycle counting begins: the start date, else the first
// recorded dose, else the first cycle starting at or after creation.
func (e *evaluation) origin() (time.Time, bool) {
	if e.active.start != nil {
		return *e.active.start, true
	}
	if first := e.history.First(); first != nil && !first.Timestamp.After(e.now) {
		return first.Timestamp, true
	}
	created := e.med.CreatedAt
	if created.IsZero() || created.After(e.now) || e.schedule == nil {
		return time.Time{}, false
	}
	c, ok := e.schedule.Next(created.Add(-time.Nanosecond))
	if !ok {
		return time.Time{}, false
	}
	return c.Start, true
}

// cycleStats walks every completed cycle between the origin and now. The
// cycle an overdue dose is still owed for is in progress, not missed.
func (e *evaluation) cycleStats() (missed int, adherence float64) {
	if e.schedule == nil {
		return 0, 100
	}
	origin, ok := e.origin()
	if !ok {
		return 0, 100
	}

	c, ok := e.schedule.Current(origin)
	if !ok {
		c, ok = e.schedule.Next(origin)
	}

	expected, adherent := 0, 0
	for ok {
		if e.active.end != nil && !c.Start.Before(*e.active.end) {
			break
		}
		end := c.End
		if e.active.end != nil && e.active.end.Before(end) {
			end = *e.active.end
		}
		if end.After(e.now) {
			break
		}
		if e.active.contains(c.Start) && !e.owed(c) {
			expected++
			resolved, taken := e.history.tally(c.Start, end)
			if !resolved {
				missed++
			}
			if taken {
				adherent++
			}
		}
		c, ok = e.schedule.Next(c.Start)
	}

	if expected == 0 {
		return missed, 100
	}
	rate := float64(adherent) / float64(expected) * 100
	return missed, math.Round(rate*10) / 10
}

// owed reports whether c is the unresolved cycle next due points at.
func (e *evaluation) owed(c Cycle) bool {
	return e.nextDue != nil && !e.nextDue.After(e.now) && c.Start.Equal(*e.nextDue)
}
