package services

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/gmsas95/medtracker/internal/errors"
	"github.com/gmsas95/medtracker/internal/medication"
	"github.com/gmsas95/medtracker/internal/security"
	"github.com/gmsas95/medtracker/internal/tracker"
	"go.uber.org/zap"
)

// MedicationServices binds the tracker commands and queries to service
// calls.
type MedicationServices struct {
	tracker *tracker.Tracker
	logger  *zap.Logger
}

func NewMedicationServices(t *tracker.Tracker, logger *zap.Logger) *MedicationServices {
	return &MedicationServices{tracker: t, logger: logger.Named("services")}
}

// Register adds every medication service to r.
func (s *MedicationServices) Register(r *Registry) error {
	return r.Register(s.Services()...)
}

func (s *MedicationServices) Services() []Service {
	frequencies := make([]string, len(medication.Frequencies))
	for i, f := range medication.Frequencies {
		frequencies[i] = string(f)
	}

	medicationID := map[string]interface{}{
		"type":        "string",
		"description": "ID of the medication",
	}
	dose := func(verb string) map[string]interface{} {
		return map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"medication_id": medicationID,
				"datetime": map[string]interface{}{
					"type":        "string",
					"description": fmt.Sprintf("When it was %s (RFC 3339, or local time without offset). Default: now", verb),
				},
				"notes": map[string]interface{}{
					"type":        "string",
					"description": "Any notes about this dose",
				},
			},
			"required": []string{"medication_id"},
		}
	}
	fields := func() map[string]interface{} {
		return map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Medication name",
			},
			"dosage": map[string]interface{}{
				"type":        "string",
				"description": "Dose per intake (e.g., '5mg', '1000 IU')",
			},
			"frequency": map[string]interface{}{
				"type": "string",
				"enum": frequencies,
			},
			"times": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Local times of day as HH:MM. Required unless frequency is as_needed",
			},
			"start_date": map[string]interface{}{
				"type":        "string",
				"description": "First active day, YYYY-MM-DD",
			},
			"end_date": map[string]interface{}{
				"type":        "string",
				"description": "Last active day, YYYY-MM-DD",
			},
			"notes": map[string]interface{}{
				"type": "string",
			},
		}
	}

	updateProps := fields()
	updateProps["medication_id"] = medicationID

	return []Service{
		{
			Name:        "add_medication",
			Description: "Add a new medication with its schedule",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": fields(),
				"required":   []string{"name", "dosage", "frequency"},
			},
			Handler: s.handleAdd,
		},
		{
			Name:        "update_medication",
			Description: "Change the configuration of a medication. Omitted fields keep their value; a null date clears it. History is kept",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": updateProps,
				"required":   []string{"medication_id"},
			},
			Handler: s.handleUpdate,
		},
		{
			Name:        "remove_medication",
			Description: "Delete a medication and its dose history",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"medication_id": medicationID},
				"required":   []string{"medication_id"},
			},
			Handler: s.handleRemove,
		},
		{
			Name:        "take_medication",
			Description: "Record that a dose was taken",
			Parameters:  dose("taken"),
			Handler:     s.handleTake,
		},
		{
			Name:        "skip_medication",
			Description: "Record that a dose was deliberately skipped",
			Parameters:  dose("skipped"),
			Handler:     s.handleSkip,
		},
		{
			Name:        "get_medication_status",
			Description: "Get status, next due time, last taken, missed doses and adherence of a medication",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"medication_id": medicationID},
				"required":   []string{"medication_id"},
			},
			Handler: s.handleStatus,
		},
		{
			Name:        "list_medications",
			Description: "List all medications with their current status",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
			Handler: s.handleList,
		},
	}
}

func (s *MedicationServices) handleAdd(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	cfg, err := configArg(args)
	if err != nil {
		return nil, err
	}
	m, err := s.tracker.Add(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return m.Evaluate(s.tracker.Now(), s.tracker.Location()), nil
}

func (s *MedicationServices) handleUpdate(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := requiredString(args, "medication_id")
	if err != nil {
		return nil, err
	}
	patch, err := patchArg(args)
	if err != nil {
		return nil, err
	}
	m, err := s.tracker.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return m.Evaluate(s.tracker.Now(), s.tracker.Location()), nil
}

func (s *MedicationServices) handleRemove(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := requiredString(args, "medication_id")
	if err != nil {
		return nil, err
	}
	if err := s.tracker.Remove(ctx, id); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success":       true,
		"medication_id": id,
	}, nil
}

func (s *MedicationServices) handleTake(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.record(ctx, args, s.tracker.Take)
}

func (s *MedicationServices) handleSkip(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.record(ctx, args, s.tracker.Skip)
}

type recordFunc func(ctx context.Context, id string, ts *time.Time, notes string) (medication.DoseEvent, error)

func (s *MedicationServices) record(ctx context.Context, args map[string]interface{}, fn recordFunc) (interface{}, error) {
	id, err := requiredString(args, "medication_id")
	if err != nil {
		return nil, err
	}
	ts, err := timestampArg(args, "datetime", s.tracker.Location())
	if err != nil {
		return nil, err
	}
	ev, err := fn(ctx, id, ts, stringArg(args, "notes", ""))
	if err != nil {
		return nil, err
	}
	snap, err := s.tracker.Snapshot(id, s.tracker.Now())
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"event":      ev,
		"medication": snap,
	}, nil
}

func (s *MedicationServices) handleStatus(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := requiredString(args, "medication_id")
	if err != nil {
		return nil, err
	}
	return s.tracker.Snapshot(id, s.tracker.Now())
}

func (s *MedicationServices) handleList(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	snaps := s.tracker.Snapshots(s.tracker.Now())
	return map[string]interface{}{
		"count":       len(snaps),
		"medications": snaps,
	}, nil
}

func configArg(args map[string]interface{}) (medication.Config, error) {
	var cfg medication.Config
	var err error
	cfg.Name = stringArg(args, "name", "")
	cfg.Dosage = stringArg(args, "dosage", "")
	cfg.Notes = stringArg(args, "notes", "")
	cfg.Frequency = medication.Frequency(stringArg(args, "frequency", ""))
	if err := security.ValidateFields(&cfg.Name, &cfg.Dosage, &cfg.Notes); err != nil {
		return cfg, apperrors.Validation("%v", err)
	}
	if cfg.Times, err = stringsArg(args, "times"); err != nil {
		return cfg, err
	}
	start, err := dateArg(args, "start_date")
	if err != nil {
		return cfg, err
	}
	cfg.StartDate = start.Value
	end, err := dateArg(args, "end_date")
	if err != nil {
		return cfg, err
	}
	cfg.EndDate = end.Value
	return cfg, nil
}

func patchArg(args map[string]interface{}) (medication.Patch, error) {
	var p medication.Patch
	var err error
	p.Name = optionalString(args, "name")
	p.Dosage = optionalString(args, "dosage")
	p.Notes = optionalString(args, "notes")
	if err := security.ValidateFields(p.Name, p.Dosage, p.Notes); err != nil {
		return p, apperrors.Validation("%v", err)
	}
	if f := optionalString(args, "frequency"); f != nil {
		freq := medication.Frequency(*f)
		p.Frequency = &freq
	}
	if p.Times, err = stringsArg(args, "times"); err != nil {
		return p, err
	}
	if p.StartDate, err = dateArg(args, "start_date"); err != nil {
		return p, err
	}
	if p.EndDate, err = dateArg(args, "end_date"); err != nil {
		return p, err
	}
	return p, nil
}

func stringArg(args map[string]interface{}, key string, defaultVal string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return defaultVal
}

func optionalString(args map[string]interface{}, key string) *string {
	if v, ok := args[key].(string); ok {
		return &v
	}
	return nil
}

func requiredString(args map[string]interface{}, key string) (string, error) {
	v := stringArg(args, key, "")
	if v == "" {
		return "", apperrors.Validation("%s is required", key)
	}
	return v, nil
}

// stringsArg accepts a JSON array of strings or a single string.
func stringsArg(args map[string]interface{}, key string) ([]string, error) {
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, apperrors.Validation("%s must be a list of strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, apperrors.Validation("%s must be a list of strings", key)
	}
}

// dateArg distinguishes an absent key from an explicit null.
func dateArg(args map[string]interface{}, key string) (medication.DateField, error) {
	raw, present := args[key]
	if !present {
		return medication.DateField{}, nil
	}
	if raw == nil {
		return medication.DateField{Set: true}, nil
	}
	s, ok := raw.(string)
	if !ok {
		return medication.DateField{}, apperrors.Validation("%s must be a date string", key)
	}
	if s == "" {
		return medication.DateField{Set: true}, nil
	}
	d, err := medication.ParseDate(s)
	if err != nil {
		return medication.DateField{}, apperrors.Configuration("invalid %s %q", key, s)
	}
	return medication.DateField{Set: true, Value: &d}, nil
}

func timestampArg(args map[string]interface{}, key string, loc *time.Location) (*time.Time, error) {
	s := stringArg(args, key, "")
	if s == "" {
		return nil, nil
	}
	ts, err := medication.ParseTimestamp(s, loc)
	if err != nil {
		return nil, apperrors.Validation("invalid %s %q", key, s)
	}
	return &ts, nil
}
