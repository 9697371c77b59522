package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	apperrors "github.com/gmsas95/medtracker/internal/errors"
	"github.com/gmsas95/medtracker/internal/medication"
	"github.com/gmsas95/medtracker/internal/security"
	"gopkg.in/yaml.v3"
)

const exportVersion = 1

// document is the YAML export format. Values are kept as strings so a
// file can be edited by hand and stays readable.
type document struct {
	Version     int                  `yaml:"version"`
	Timezone    string               `yaml:"timezone"`
	ExportedAt  string               `yaml:"exported_at"`
	Medications []documentMedication `yaml:"medications"`
}

type documentMedication struct {
	ID        string          `yaml:"id,omitempty"`
	Name      string          `yaml:"name"`
	Dosage    string          `yaml:"dosage"`
	Frequency string          `yaml:"frequency"`
	Times     []string        `yaml:"times,omitempty"`
	StartDate string          `yaml:"start_date,omitempty"`
	EndDate   string          `yaml:"end_date,omitempty"`
	Notes     string          `yaml:"notes,omitempty"`
	CreatedAt string          `yaml:"created_at,omitempty"`
	History   []documentEvent `yaml:"history,omitempty"`
}

type documentEvent struct {
	Timestamp string `yaml:"timestamp"`
	Action    string `yaml:"action"`
	Notes     string `yaml:"notes,omitempty"`
}

func toDocument(meds []medication.Medication, loc *time.Location, now time.Time) document {
	doc := document{
		Version:     exportVersion,
		Timezone:    loc.String(),
		ExportedAt:  now.In(loc).Format(time.RFC3339),
		Medications: make([]documentMedication, 0, len(meds)),
	}
	for _, m := range meds {
		dm := documentMedication{
			ID:        m.ID,
			Name:      m.Name,
			Dosage:    m.Dosage,
			Frequency: string(m.Frequency),
			Notes:     m.Notes,
			CreatedAt: m.CreatedAt.In(loc).Format(time.RFC3339),
		}
		for _, t := range m.Times {
			dm.Times = append(dm.Times, t.String())
		}
		if m.StartDate != nil {
			dm.StartDate = m.StartDate.String()
		}
		if m.EndDate != nil {
			dm.EndDate = m.EndDate.String()
		}
		for _, ev := range medication.SortedHistory(m.History) {
			dm.History = append(dm.History, documentEvent{
				Timestamp: ev.Timestamp.In(loc).Format(time.RFC3339Nano),
				Action:    string(ev.Action),
				Notes:     ev.Notes,
			})
		}
		doc.Medications = append(doc.Medications, dm)
	}
	return doc
}

func optionalDate(s string) (*medication.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := medication.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// fromDocument converts a parsed document. Timestamps without an offset
// are read in loc.
func fromDocument(doc document, loc *time.Location) ([]medication.Medication, error) {
	if doc.Version > exportVersion {
		return nil, apperrors.Validation("unsupported export version %d", doc.Version)
	}

	meds := make([]medication.Medication, 0, len(doc.Medications))
	for i, dm := range doc.Medications {
		where := fmt.Sprintf("medication %d (%s)", i+1, dm.Name)
		if err := security.ValidateFields(&dm.Name, &dm.Dosage, &dm.Notes); err != nil {
			return nil, apperrors.Validation("%s: %v", where, err)
		}
		times, err := medication.ParseTimes(dm.Times)
		if err != nil {
			return nil, apperrors.Configuration("%s: %v", where, err)
		}
		m := medication.Medication{
			ID:        dm.ID,
			Name:      dm.Name,
			Dosage:    dm.Dosage,
			Notes:     dm.Notes,
			Frequency: medication.Frequency(dm.Frequency),
			Times:     times,
			History:   make([]medication.DoseEvent, 0, len(dm.History)),
		}
		if m.StartDate, err = optionalDate(dm.StartDate); err != nil {
			return nil, apperrors.Configuration("%s: %v", where, err)
		}
		if m.EndDate, err = optionalDate(dm.EndDate); err != nil {
			return nil, apperrors.Configuration("%s: %v", where, err)
		}
		if dm.CreatedAt != "" {
			if m.CreatedAt, err = medication.ParseTimestamp(dm.CreatedAt, loc); err != nil {
				return nil, apperrors.Validation("%s: %v", where, err)
			}
		}
		for _, de := range dm.History {
			ts, err := medication.ParseTimestamp(de.Timestamp, loc)
			if err != nil {
				return nil, apperrors.Validation("%s: %v", where, err)
			}
			action := medication.Action(de.Action)
			if !action.Valid() {
				return nil, apperrors.Validation("%s: unknown action %q", where, de.Action)
			}
			m.History = append(m.History, medication.DoseEvent{Timestamp: ts, Action: action, Notes: de.Notes})
		}
		meds = append(meds, m)
	}
	return meds, nil
}

func runExport(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet(env, "export")
	output := fs.String("o", "", "write to FILE instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	doc := toDocument(env.App.Tracker.List(), env.App.Location, env.App.Tracker.Now())
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}

	if *output == "" {
		_, err = env.Out.Write(data)
		return err
	}
	if err := os.WriteFile(*output, data, 0600); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	fmt.Fprintf(env.Out, "Exported %d medications to %s\n", len(doc.Medications), *output)
	return nil
}

func runImport(ctx context.Context, env *Env, args []string) error {
	path, rest := splitID(args)
	fs := newFlagSet(env, "import")
	replace := fs.Bool("replace", false, "drop medications that are not in the file")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	if path == "" && fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if path == "" {
		return fmt.Errorf("import: file is required, use - for stdin")
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(env.In)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read import: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return apperrors.Validation("invalid import file: %v", err)
	}
	meds, err := fromDocument(doc, env.App.Location)
	if err != nil {
		return err
	}

	n, err := env.App.Tracker.Import(ctx, meds, *replace)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "Imported %d medications\n", n)
	return nil
}
