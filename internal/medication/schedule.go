package medication

import (
	"fmt"
	"sort"
	"time"
)

// Cycle is one dosing period [Start, End). Start is the due instant.
type Cycle struct {
	Start time.Time
	End   time.Time
}

// Schedule is the recurrence rule of a medication. The set of
// implementations is closed: Daily, Weekly, Monthly and AsNeeded.
type Schedule interface {
	Frequency() Frequency
	// Current returns the cycle containing t, if any.
	Current(t time.Time) (Cycle, bool)
	// Next returns the first cycle whose due instant is strictly after t.
	Next(t time.Time) (Cycle, bool)

	resolve(h History, now time.Time, r activeRange) dueState
}

// dueState is what a schedule decides for an active medication at now.
type dueState struct {
	next    *time.Time
	settled Status
}

// ScheduleFor builds the recurrence rule of m. Weekly and monthly cycles
// are anchored on the start date, else the first recorded dose, else the
// creation date, else the date of now. Without a start date the first
// cycle is never due before the medication was created.
func ScheduleFor(m Medication, loc *time.Location, now time.Time) (Schedule, error) {
	times := normalizeTimes(m.Times)
	var since time.Time
	if m.StartDate == nil {
		since = m.CreatedAt
	}
	switch m.Frequency {
	case FrequencyDaily:
		return Daily{Times: times, Loc: loc}, nil
	case FrequencyWeekly:
		return Weekly{Anchor: anchorDate(m, loc, now), Since: since, Times: times, Loc: loc}, nil
	case FrequencyMonthly:
		return Monthly{Anchor: anchorDate(m, loc, now), Since: since, Times: times, Loc: loc}, nil
	case FrequencyAsNeeded:
		return AsNeeded{Loc: loc}, nil
	}
	return nil, fmt.Errorf("unsupported frequency %q", m.Frequency)
}

func anchorDate(m Medication, loc *time.Location, now time.Time) Date {
	if m.StartDate != nil {
		return *m.StartDate
	}
	if first := SortedHistory(m.History).First(); first != nil {
		return DateOf(first.Timestamp.In(loc))
	}
	if !m.CreatedAt.IsZero() {
		return DateOf(m.CreatedAt.In(loc))
	}
	return DateOf(now.In(loc))
}

// normalizeTimes sorts and de-duplicates times.
func normalizeTimes(times []TimeOfDay) []TimeOfDay {
	out := append([]TimeOfDay(nil), times...)
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	n := 0
	for i, t := range out {
		if i > 0 && t == out[n-1] {
			continue
		}
		out[n] = t
		n++
	}
	return out[:n]
}

// Daily has one slot per configured time on every day. A slot's window
// runs until the next slot that day or until local midnight, so a dose
// only resolves a slot on the slot's own calendar day.
type Daily struct {
	Times []TimeOfDay
	Loc   *time.Location
}

func (Daily) Frequency() Frequency { return FrequencyDaily }

func (d Daily) slot(day Date, i int) Cycle {
	start := d.Times[i].On(day, d.Loc)
	end := day.AddDays(1).Start(d.Loc)
	if i+1 < len(d.Times) {
		end = d.Times[i+1].On(day, d.Loc)
	}
	return Cycle{Start: start, End: end}
}

func (d Daily) Current(t time.Time) (Cycle, bool) {
	if len(d.Times) == 0 {
		return Cycle{}, false
	}
	day := DateOf(t.In(d.Loc))
	for i := len(d.Times) - 1; i >= 0; i-- {
		c := d.slot(day, i)
		if !c.Start.After(t) {
			return c, true
		}
	}
	// before the first slot of the day
	return Cycle{}, false
}

func (d Daily) Next(t time.Time) (Cycle, bool) {
	if len(d.Times) == 0 {
		return Cycle{}, false
	}
	day := DateOf(t.In(d.Loc))
	for offset := 0; offset < 2; offset++ {
		for i := range d.Times {
			c := d.slot(day.AddDays(offset), i)
			if c.Start.After(t) {
				return c, true
			}
		}
	}
	return Cycle{}, false
}

func (d Daily) resolve(h History, now time.Time, r activeRange) dueState {
	cur, ok := d.Current(now)
	if ok && r.contains(cur.Start) {
		if ev := h.LatestIn(cur.Start, cur.End, now); ev != nil {
			return dueState{next: r.following(d, now), settled: Status(ev.Action)}
		}
		return dueState{next: &cur.Start}
	}
	return dueState{next: r.following(d, now)}
}

// Weekly expects one dose per seven-day cycle, due at the earliest
// configured time on Anchor + 7k days. With nothing recorded, the first
// cycle due is the first one starting at or after Since.
type Weekly struct {
	Anchor Date
	Since  time.Time
	Times  []TimeOfDay
	Loc    *time.Location
}

func (Weekly) Frequency() Frequency { return FrequencyWeekly }

func (w Weekly) slot(k int) time.Time {
	return w.Times[0].On(w.Anchor.AddDays(7*k), w.Loc)
}

func (w Weekly) Current(t time.Time) (Cycle, bool) {
	if len(w.Times) == 0 {
		return Cycle{}, false
	}
	k := floorDiv(daysBetween(w.Anchor, DateOf(t.In(w.Loc))), 7)
	if w.slot(k).After(t) {
		k--
	}
	return Cycle{Start: w.slot(k), End: w.slot(k + 1)}, true
}

func (w Weekly) Next(t time.Time) (Cycle, bool) {
	cur, ok := w.Current(t)
	if !ok {
		return Cycle{}, false
	}
	return w.Current(cur.End)
}

func (w Weekly) resolve(h History, now time.Time, r activeRange) dueState {
	return resolveCatchUp(w, h, now, r, firstFrom(w.Anchor.Start(w.Loc), w.Since))
}

// Monthly expects one dose per calendar month, due at the earliest
// configured time on the anchor's day of month, clamped to the last day of
// shorter months. Since bounds the first cycle as for Weekly.
type Monthly struct {
	Anchor Date
	Since  time.Time
	Times  []TimeOfDay
	Loc    *time.Location
}

func (Monthly) Frequency() Frequency { return FrequencyMonthly }

func (m Monthly) slot(k int) time.Time {
	first := time.Date(m.Anchor.Year, m.Anchor.Month+time.Month(k), 1, 0, 0, 0, 0, time.UTC)
	day := m.Anchor.Day
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return m.Times[0].On(Date{Year: first.Year(), Month: first.Month(), Day: day}, m.Loc)
}

func (m Monthly) Current(t time.Time) (Cycle, bool) {
	if len(m.Times) == 0 {
		return Cycle{}, false
	}
	local := DateOf(t.In(m.Loc))
	k := (local.Year-m.Anchor.Year)*12 + int(local.Month) - int(m.Anchor.Month)
	if m.slot(k).After(t) {
		k--
	}
	return Cycle{Start: m.slot(k), End: m.slot(k + 1)}, true
}

func (m Monthly) Next(t time.Time) (Cycle, bool) {
	cur, ok := m.Current(t)
	if !ok {
		return Cycle{}, false
	}
	return m.Current(cur.End)
}

func (m Monthly) resolve(h History, now time.Time, r activeRange) dueState {
	return resolveCatchUp(m, h, now, r, firstFrom(m.Anchor.Start(m.Loc), m.Since))
}

// AsNeeded has no cycles. It reads as taken on any local day with a
// recorded dose.
type AsNeeded struct {
	Loc *time.Location
}

func (AsNeeded) Frequency() Frequency { return FrequencyAsNeeded }

func (AsNeeded) Current(time.Time) (Cycle, bool) { return Cycle{}, false }

func (AsNeeded) Next(time.Time) (Cycle, bool) { return Cycle{}, false }

func (a AsNeeded) resolve(h History, now time.Time, _ activeRange) dueState {
	today := DateOf(now.In(a.Loc))
	if ev := h.LatestIn(today.Start(a.Loc), today.AddDays(1).Start(a.Loc), now); ev != nil {
		return dueState{settled: StatusTaken}
	}
	return dueState{}
}

// firstFrom is the later of the anchor instant and since.
func firstFrom(anchor, since time.Time) time.Time {
	if since.After(anchor) {
		return since
	}
	return anchor
}

// resolveCatchUp keeps the oldest unresolved cycle due until a dose is
// recorded: next due is the first cycle after the latest event, or the
// first cycle starting at or after from when nothing has been recorded.
func resolveCatchUp(s Schedule, h History, now time.Time, r activeRange, from time.Time) dueState {
	var ev *DoseEvent
	if latest := h.Latest(now); latest != nil && r.contains(latest.Timestamp) {
		ev = latest
	}

	var (
		next Cycle
		ok   bool
	)
	switch {
	case ev != nil:
		next, ok = s.Next(ev.Timestamp)
	case r.start != nil:
		next, ok = s.Next(r.start.Add(-time.Nanosecond))
	default:
		next, ok = s.Next(from.Add(-time.Nanosecond))
	}

	st := dueState{}
	if ok && r.contains(next.Start) {
		st.next = &next.Start
	}
	if ev != nil && (st.next == nil || now.Before(*st.next)) {
		st.settled = Status(ev.Action)
	}
	return st
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
