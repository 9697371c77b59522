package medication

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdherenceFromStartDate(t *testing.T) {
	m := newMed(t, FrequencyDaily, "09:00")
	m.StartDate = date(t, "2024-03-01")
	record(&m, ActionTaken, at(t, "2024-03-01 09:05"))
	record(&m, ActionTaken, at(t, "2024-03-02 10:00"))
	record(&m, ActionSkipped, at(t, "2024-03-03 09:30"))
	// nothing on 2024-03-04

	snap := m.Evaluate(at(t, "2024-03-05 12:00"), testLoc)
	assert.Equal(t, StatusOverdue, snap.Status)
	assert.Equal(t, 1, snap.MissedDoses)
	assert.Equal(t, 50.0, snap.AdherenceRate)
}

func TestAdherenceFromFirstDose(t *testing.T) {
	m := newMed(t, FrequencyDaily, "09:00")
	record(&m, ActionTaken, at(t, "2024-03-01 09:30"))

	now := at(t, "2024-03-03 12:00")
	assert.Equal(t, 1, m.MissedDoses(now, testLoc))
	assert.Equal(t, 50.0, m.Adherence(now, testLoc))
}

func TestAdherenceWithoutCompletedCycles(t *testing.T) {
	m := newMed(t, FrequencyDaily, "09:00")
	assert.Equal(t, 100.0, m.Adherence(at(t, "2024-03-04 12:00"), testLoc))
	assert.Equal(t, 0, m.MissedDoses(at(t, "2024-03-04 12:00"), testLoc))

	m.StartDate = date(t, "2024-03-04")
	assert.Equal(t, 100.0, m.Adherence(at(t, "2024-03-04 10:00"), testLoc))
	assert.Equal(t, 0, m.MissedDoses(at(t, "2024-03-04 10:00"), testLoc))
}

func TestAdherenceFromCreation(t *testing.T) {
	m := newMed(t, FrequencyDaily, "09:00")
	m.CreatedAt = at(t, "2024-03-04 10:00")

	// the slot that passed before creation is not counted
	now := at(t, "2024-03-04 23:00")
	assert.Equal(t, 0, m.MissedDoses(now, testLoc))
	assert.Equal(t, 100.0, m.Adherence(now, testLoc))

	now = at(t, "2024-03-06 12:00")
	assert.Equal(t, 1, m.MissedDoses(now, testLoc))
	assert.Equal(t, 0.0, m.Adherence(now, testLoc))
}

func TestWeeklyAdherenceFromCreation(t *testing.T) {
	m := newMed(t, FrequencyWeekly, "08:00")
	m.CreatedAt = at(t, "2025-03-03 10:00")

	// the first cycle is still owed, the second was missed
	now := at(t, "2025-03-25 09:00")
	assert.Equal(t, StatusOverdue, m.Status(now, testLoc))
	assert.Equal(t, 1, m.MissedDoses(now, testLoc))
	assert.Equal(t, 0.0, m.Adherence(now, testLoc))
}

func TestAdherenceCountsEverySlot(t *testing.T) {
	m := newMed(t, FrequencyDaily, "08:00", "20:00")
	m.StartDate = date(t, "2024-03-04")
	record(&m, ActionTaken, at(t, "2024-03-04 08:10"))
	record(&m, ActionTaken, at(t, "2024-03-04 20:10"))
	record(&m, ActionTaken, at(t, "2024-03-05 08:10"))

	// the 2024-03-05 20:00 slot has not elapsed yet
	now := at(t, "2024-03-05 21:00")
	assert.Equal(t, 0, m.MissedDoses(now, testLoc))
	assert.Equal(t, 100.0, m.Adherence(now, testLoc))

	now = at(t, "2024-03-06 09:00")
	assert.Equal(t, 1, m.MissedDoses(now, testLoc))
	assert.Equal(t, 75.0, m.Adherence(now, testLoc))
}

func TestAdherenceStopsAtEndDate(t *testing.T) {
	m := newMed(t, FrequencyDaily, "09:00")
	m.StartDate = date(t, "2024-03-01")
	m.EndDate = date(t, "2024-03-02")
	record(&m, ActionTaken, at(t, "2024-03-01 09:00"))

	now := at(t, "2024-03-20 09:00")
	assert.Equal(t, 1, m.MissedDoses(now, testLoc))
	assert.Equal(t, 50.0, m.Adherence(now, testLoc))
}

func TestAdherenceRounding(t *testing.T) {
	m := newMed(t, FrequencyDaily, "09:00")
	m.StartDate = date(t, "2024-03-01")
	record(&m, ActionTaken, at(t, "2024-03-01 09:00"))

	// one of three completed cycles taken
	assert.Equal(t, 33.3, m.Adherence(at(t, "2024-03-04 08:00"), testLoc))
}
