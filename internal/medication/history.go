package medication

import (
	"sort"
	"time"
)

// History is a timestamp-ordered view over a medication's dose events.
// Insertion order of the underlying log never matters.
type History []DoseEvent

// SortedHistory copies events and orders them by timestamp. Events with
// equal timestamps keep their log order.
func SortedHistory(events []DoseEvent) History {
	h := make(History, len(events))
	copy(h, events)
	sort.SliceStable(h, func(i, j int) bool {
		return h[i].Timestamp.Before(h[j].Timestamp)
	})
	return h
}

// searchFrom returns the index of the first event at or after t.
func (h History) searchFrom(t time.Time) int {
	return sort.Search(len(h), func(i int) bool {
		return !h[i].Timestamp.Before(t)
	})
}

// LastTaken returns the most recent taken event, if any.
func (h History) LastTaken() *DoseEvent {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Action == ActionTaken {
			return &h[i]
		}
	}
	return nil
}

// First returns the earliest event, if any.
func (h History) First() *DoseEvent {
	if len(h) == 0 {
		return nil
	}
	return &h[0]
}

// Latest returns the most recent event at or before now.
func (h History) Latest(now time.Time) *DoseEvent {
	i := sort.Search(len(h), func(i int) bool {
		return h[i].Timestamp.After(now)
	})
	if i == 0 {
		return nil
	}
	return &h[i-1]
}

// LatestIn returns the most recent event in [from, to) that is not after
// now.
func (h History) LatestIn(from, to, now time.Time) *DoseEvent {
	if now.Before(to) {
		to = now.Add(time.Nanosecond)
	}
	var found *DoseEvent
	for i := h.searchFrom(from); i < len(h) && h[i].Timestamp.Before(to); i++ {
		found = &h[i]
	}
	return found
}

// Between returns the events in [from, to).
func (h History) Between(from, to time.Time) History {
	start := h.searchFrom(from)
	end := h.searchFrom(to)
	if end < start {
		end = start
	}
	return h[start:end]
}

// tally reports whether [from, to) holds any event, and any taken event.
func (h History) tally(from, to time.Time) (resolved, taken bool) {
	for i := h.searchFrom(from); i < len(h) && h[i].Timestamp.Before(to); i++ {
		resolved = true
		if h[i].Action == ActionTaken {
			return true, true
		}
	}
	return resolved, false
}
