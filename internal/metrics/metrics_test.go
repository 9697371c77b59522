package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestRecordCommand(t *testing.T) {
	m := New()
	m.RecordCommand("add_medication", "ok")
	m.RecordCommand("add_medication", "ok")
	m.RecordCommand("take_medication", "MED_002")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commands.WithLabelValues("add_medication", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("take_medication", "MED_002")))

	snap := m.Snapshot()
	assert.EqualValues(t, 3, snap.CommandsTotal)
	assert.EqualValues(t, 1, snap.CommandsFailed)
}

func TestRecordTransitionAndEvents(t *testing.T) {
	m := New()
	m.RecordTransition("due")
	m.RecordTransition("overdue")
	m.RecordTransition("due")
	m.RecordEvent("redis", nil)
	m.RecordEvent("redis", errors.New("down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("due")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsPublished.WithLabelValues("redis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsFailed.WithLabelValues("redis")))
	assert.EqualValues(t, 3, m.Snapshot().Transitions)
}

func TestGauges(t *testing.T) {
	m := New()
	m.SetMedications(4)
	m.IncrementWebSocketClients()
	m.IncrementWebSocketClients()
	m.DecrementWebSocketClients()

	assert.Equal(t, 4.0, testutil.ToFloat64(m.medications))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.wsClients))
	assert.EqualValues(t, 4, m.Snapshot().Medications)
}

func TestRecordPoll(t *testing.T) {
	m := New()
	assert.Nil(t, m.Snapshot().LastPoll)

	m.RecordPoll(3 * time.Millisecond)
	snap := m.Snapshot()
	assert.EqualValues(t, 1, snap.Polls)
	require.NotNil(t, snap.LastPoll)
	assert.Equal(t, 1, testutil.CollectAndCount(m.pollDuration))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCommand("add_medication", "ok")
		m.RecordTransition("due")
		m.RecordEvent("log", nil)
		m.RecordPoll(time.Second)
		m.SetMedications(1)
		m.IncrementWebSocketClients()
		m.DecrementWebSocketClients()
	})
	assert.Nil(t, m.Registry())
	assert.Equal(t, &Snapshot{}, m.Snapshot())
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.SetMedications(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "medtracker_medications 2"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
