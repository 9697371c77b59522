// Package store persists medications and their dose history.
package store

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gmsas95/medtracker/internal/config"
	"github.com/gmsas95/medtracker/internal/medication"
	"go.uber.org/zap"
)

// State is everything the repository persists. Each medication carries
// its own dose history, so State is equivalent to a medication list plus a
// history map keyed by medication id.
type State struct {
	Medications []medication.Medication `json:"medications" yaml:"medications"`
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := State{Medications: make([]medication.Medication, len(s.Medications))}
	for i, m := range s.Medications {
		out.Medications[i] = m.Clone()
	}
	return out
}

// Index returns the position of the medication with id.
func (s State) Index(id string) (int, bool) {
	for i := range s.Medications {
		if s.Medications[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

// Histories returns the dose history of every medication keyed by id.
func (s State) Histories() map[string][]medication.DoseEvent {
	out := make(map[string][]medication.DoseEvent, len(s.Medications))
	for _, m := range s.Medications {
		out[m.ID] = m.History
	}
	return out
}

// Repository loads and saves the full medication state. Load on a fresh
// store returns an empty State. Malformed records are skipped and logged.
type Repository interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
	Close() error
}

// Open creates the repository selected by cfg.Backend.
func Open(cfg config.StorageConfig, loc *time.Location, logger *zap.Logger) (Repository, error) {
	switch cfg.Backend {
	case "sqlite", "":
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.DataDir, "medtracker.db")
		}
		return OpenSQLite(path, loc, logger)
	case "badger":
		path := cfg.BadgerPath
		if path == "" {
			path = filepath.Join(cfg.DataDir, "badger")
		}
		return OpenBadger(path, loc, logger)
	case "memory":
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
