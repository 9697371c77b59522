package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	apperrors "github.com/gmsas95/medtracker/internal/errors"
	"go.uber.org/zap"
)

const medicationPrefix = "medication:"

// BadgerRepository stores one JSON document per medication under
// "medication:<id>".
type BadgerRepository struct {
	db     *badger.DB
	dec    decoder
	logger *zap.Logger
}

// OpenBadger opens the key-value store at path. An empty path keeps
// everything in memory.
func OpenBadger(path string, loc *time.Location, log *zap.Logger) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil). // Disable verbose logging
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(16 << 20). // 16MB value log files
		WithMemTableSize(16 << 20)      // 16MB memtable
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &BadgerRepository{
		db:     db,
		dec:    decoder{loc: loc, logger: log},
		logger: log,
	}, nil
}

func medicationKey(id string) []byte {
	return []byte(medicationPrefix + id)
}

// Load reads every medication document.
func (r *BadgerRepository) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, apperrors.Storage("load medications", err)
	}

	var docs []storedDocument
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(medicationPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(val []byte) error {
				var doc storedDocument
				if err := json.Unmarshal(val, &doc); err != nil {
					r.logger.Warn("Skipping unreadable medication document",
						zap.String("key", key),
						zap.Error(err))
					return nil
				}
				if doc.ID == "" {
					doc.ID = strings.TrimPrefix(key, medicationPrefix)
				}
				docs = append(docs, doc)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return State{}, apperrors.Storage("load medications", err)
	}

	return r.dec.decodeAll(sortDocuments(docs)), nil
}

// Save writes every medication and deletes documents of removed ones in
// the same transaction.
func (r *BadgerRepository) Save(ctx context.Context, state State) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Storage("save medications", err)
	}

	keep := make(map[string]bool, len(state.Medications))
	err := r.db.Update(func(txn *badger.Txn) error {
		for i, m := range state.Medications {
			doc := storedDocument{medicationRecord: encodeMedication(m), Position: i}
			data, err := json.Marshal(doc)
			if err != nil {
				return err
			}
			if err := txn.Set(medicationKey(m.ID), data); err != nil {
				return err
			}
			keep[m.ID] = true
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(medicationPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if !keep[strings.TrimPrefix(string(key), medicationPrefix)] {
				stale = append(stale, key)
			}
		}
		it.Close()

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.Storage("save medications", err)
	}
	return nil
}

// Close closes the key-value store.
func (r *BadgerRepository) Close() error {
	return r.db.Close()
}

// storedDocument is a medication record plus its list position.
type storedDocument struct {
	medicationRecord
	Position int `json:"position"`
}

func sortDocuments(docs []storedDocument) []medicationRecord {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Position != docs[j].Position {
			return docs[i].Position < docs[j].Position
		}
		return docs[i].ID < docs[j].ID
	})
	out := make([]medicationRecord, len(docs))
	for i, d := range docs {
		out[i] = d.medicationRecord
	}
	return out
}
