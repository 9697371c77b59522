package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	apperrors "github.com/gmsas95/medtracker/internal/errors"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteRepository stores medications in two SQLite tables through GORM.
type SQLiteRepository struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	dec    decoder
	logger *zap.Logger
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string, loc *time.Location, log *zap.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open SQLite with optimizations
	sqliteDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// single writer
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqliteDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		sqliteDB.Close()
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	return NewSQLite(db, sqliteDB, loc, log)
}

// NewSQLite wraps an open GORM handle and migrates the schema. sqlDB may
// be nil when the caller owns the connection.
func NewSQLite(db *gorm.DB, sqlDB *sql.DB, loc *time.Location, log *zap.Logger) (*SQLiteRepository, error) {
	if err := db.AutoMigrate(&MedicationRow{}, &DoseEventRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &SQLiteRepository{
		db:     db,
		sqlDB:  sqlDB,
		dec:    decoder{loc: loc, logger: log},
		logger: log,
	}, nil
}

// Load reads every medication and its dose events.
func (r *SQLiteRepository) Load(ctx context.Context) (State, error) {
	db := r.db.WithContext(ctx)

	var rows []MedicationRow
	if err := db.Order("position, id").Find(&rows).Error; err != nil {
		return State{}, apperrors.Storage("load medications", err)
	}

	var events []DoseEventRow
	if err := db.Order("medication_id, seq").Find(&events).Error; err != nil {
		return State{}, apperrors.Storage("load dose events", err)
	}

	byMed := make(map[string][]DoseEventRow, len(rows))
	for _, ev := range events {
		byMed[ev.MedicationID] = append(byMed[ev.MedicationID], ev)
	}

	records := make([]medicationRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow(row, byMed[row.ID])
		if err != nil {
			r.logger.Warn("Skipping medication with unreadable times",
				zap.String("medication_id", row.ID),
				zap.Error(err))
			continue
		}
		records = append(records, rec)
	}

	state := r.dec.decodeAll(records)
	r.logger.Debug("Loaded medications from sqlite",
		zap.Int("count", len(state.Medications)),
		zap.Int("events", len(events)))
	return state, nil
}

// Save replaces the stored state in one transaction.
func (r *SQLiteRepository) Save(ctx context.Context, state State) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&DoseEventRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&MedicationRow{}).Error; err != nil {
			return err
		}
		for i, m := range state.Medications {
			row, events := toRows(encodeMedication(m), i, now)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			if len(events) > 0 {
				if err := tx.CreateInBatches(events, 200).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.Storage("save medications", err)
	}
	return nil
}

// Close releases the database connection.
func (r *SQLiteRepository) Close() error {
	if r.sqlDB != nil {
		return r.sqlDB.Close()
	}
	return nil
}
