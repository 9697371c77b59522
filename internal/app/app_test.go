package app

import (
	"context"
	"testing"

	"github.com/gmsas95/medtracker/internal/config"
	"github.com/gmsas95/medtracker/internal/medication"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("MEDTRACKER_STORAGE_BACKEND", "memory")
	cfg, err := config.Load("", t.TempDir())
	require.NoError(t, err)
	return cfg
}

func TestNew(t *testing.T) {
	cfg := memoryConfig(t)
	level := zap.NewAtomicLevel()

	app, err := New(context.Background(), cfg, zap.NewNop(), level, "1.0.0")
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, "1.0.0", app.Version)
	assert.Len(t, app.Services.List(), 7)

	_, err = app.Tracker.Add(context.Background(), medication.Config{
		Name: "Ibuprofen", Dosage: "200mg", Frequency: medication.FrequencyAsNeeded,
	})
	require.NoError(t, err)
	assert.Len(t, app.Tracker.List(), 1)
}

func TestPublisherFollowsConfig(t *testing.T) {
	cfg := memoryConfig(t)
	app, err := New(context.Background(), cfg, zap.NewNop(), zap.NewAtomicLevel(), "test")
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, []string{"log", "hub"}, app.Publisher().Sinks())
	assert.NotNil(t, app.Hub())

	cfg.Events.Log = false
	cfg.Events.WebSocket = false
	app.hub = nil
	assert.Empty(t, app.Publisher().Sinks())
	assert.Nil(t, app.Hub())
}

func TestReloadChangesLogLevel(t *testing.T) {
	cfg := memoryConfig(t)
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	app, err := New(context.Background(), cfg, zap.NewNop(), level, "test")
	require.NoError(t, err)
	defer app.Close()

	next := *cfg
	next.Log.Level = "debug"
	app.reload(&next)
	assert.Equal(t, zapcore.DebugLevel, level.Level())
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Storage.Backend = "mongo"
	_, err := New(context.Background(), cfg, zap.NewNop(), zap.NewAtomicLevel(), "test")
	assert.Error(t, err)
}
