package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gmsas95/medtracker/internal/config"
	"github.com/gmsas95/medtracker/internal/medication"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func sampleEvent() Event {
	next := time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC)
	snap := medication.Snapshot{
		ID:            "bp",
		Name:          "Blood Pressure Medication",
		Dosage:        "5mg",
		Frequency:     medication.FrequencyDaily,
		Status:        medication.StatusDue,
		NextDue:       &next,
		MissedDoses:   1,
		AdherenceRate: 66.7,
		EvaluatedAt:   next.Add(30 * time.Minute),
	}
	return NewEvent(snap, medication.StatusNotDue)
}

func TestNewEvent(t *testing.T) {
	ev := sampleEvent()
	assert.Equal(t, "bp", ev.MedicationID)
	assert.Equal(t, medication.StatusNotDue, ev.OldStatus)
	assert.Equal(t, medication.StatusDue, ev.NewStatus)
	assert.Nil(t, ev.LastTaken)
	assert.Equal(t, 1, ev.MissedDoses)
	assert.Equal(t, 66.7, ev.AdherenceRate)

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"medication_id", "name", "dosage", "frequency", "old_status",
		"new_status", "next_due", "last_taken", "missed_doses", "adherence_rate", "timestamp"} {
		assert.Contains(t, fields, key)
	}
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogPublisher(zap.New(core))

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Medication status changed", entry.Message)
	assert.Equal(t, "due", entry.ContextMap()["new_status"])
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *RedisPublisher) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := config.RedisConfig{
		Addr:            mr.Addr(),
		Stream:          "medtracker:events",
		MaxLen:          100,
		BreakerFailures: 2,
		BreakerTimeout:  "1m",
	}
	client := NewRedisClient(cfg)
	p := NewRedisPublisher(client, cfg, zap.NewNop())
	t.Cleanup(func() { p.Close() })
	return mr, p
}

func TestRedisPublisherAppendsToStream(t *testing.T) {
	mr, p := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, p.Ping(ctx))
	require.NoError(t, p.Publish(ctx, sampleEvent()))

	entries, err := p.client.XRange(ctx, "medtracker:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bp", entries[0].Values["medication_id"])
	assert.Equal(t, "due", entries[0].Values["new_status"])

	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["data"].(string)), &decoded))
	assert.Equal(t, medication.StatusNotDue, decoded.OldStatus)
	assert.True(t, mr.Exists("medtracker:events"))
}

func TestRedisPublisherOpensCircuit(t *testing.T) {
	mr, p := setupRedis(t)
	ctx := context.Background()
	mr.Close()

	assert.Error(t, p.Publish(ctx, sampleEvent()))
	assert.Error(t, p.Publish(ctx, sampleEvent()))
	assert.Equal(t, "open", p.State())

	err := p.Publish(ctx, sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := NewHub(1, zap.NewNop())
	a, cancelA := hub.Subscribe()
	b, cancelB := hub.Subscribe()
	defer cancelB()
	assert.Equal(t, 2, hub.Subscribers())

	require.NoError(t, hub.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, "bp", (<-a).MedicationID)
	assert.Equal(t, "bp", (<-b).MedicationID)

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, hub.Subscribers())
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub(1, zap.NewNop())
	ch, cancel := hub.Subscribe()
	defer cancel()

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, sampleEvent()))
	require.NoError(t, hub.Publish(ctx, sampleEvent()))
	assert.Len(t, ch, 1)
}

type failingSink struct{ err error }

func (f failingSink) Name() string                         { return "failing" }
func (f failingSink) Publish(context.Context, Event) error { return f.err }

type recorded struct {
	sink string
	err  error
}

type fakeRecorder struct{ calls []recorded }

func (r *fakeRecorder) RecordEvent(sink string, err error) {
	r.calls = append(r.calls, recorded{sink, err})
}

func TestMultiPublishesToAllSinks(t *testing.T) {
	hub := NewHub(4, zap.NewNop())
	ch, cancel := hub.Subscribe()
	defer cancel()

	boom := errors.New("boom")
	rec := &fakeRecorder{}
	multi := NewMulti(rec, failingSink{err: boom}, hub)

	err := multi.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, ch, 1)
	assert.Equal(t, []string{"failing", "hub"}, multi.Sinks())
	require.Len(t, rec.calls, 2)
	assert.Equal(t, "failing", rec.calls[0].sink)
	assert.NoError(t, rec.calls[1].err)
}
