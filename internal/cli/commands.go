package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/gmsas95/medtracker/internal/medication"
)

func newFlagSet(env *Env, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.Out)
	return fs
}

// splitID takes a leading positional id so flags may follow it.
func splitID(args []string) (string, []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:]
	}
	return "", args
}

func requireID(fs *flag.FlagSet, id string) (string, error) {
	if id == "" && fs.NArg() > 0 {
		id = fs.Arg(0)
	}
	if id == "" {
		return "", fmt.Errorf("%s: medication id is required", fs.Name())
	}
	return id, nil
}

func splitTimes(s string) []interface{} {
	var out []interface{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if out == nil {
		return []interface{}{}
	}
	return out
}

func call(ctx context.Context, env *Env, name string, args map[string]interface{}) (interface{}, error) {
	return env.App.Services.Call(ctx, name, args)
}

func runAdd(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet(env, "add")
	name := fs.String("name", "", "medication name")
	dosage := fs.String("dosage", "", "dose per intake, e.g. 5mg")
	frequency := fs.String("frequency", string(medication.FrequencyDaily), "daily, weekly, monthly or as_needed")
	times := fs.String("times", "", "comma separated HH:MM dose times")
	start := fs.String("start", "", "first active day, YYYY-MM-DD")
	end := fs.String("end", "", "last active day, YYYY-MM-DD")
	notes := fs.String("notes", "", "free text notes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	callArgs := map[string]interface{}{
		"name":      *name,
		"dosage":    *dosage,
		"frequency": *frequency,
		"times":     splitTimes(*times),
		"notes":     *notes,
	}
	if *start != "" {
		callArgs["start_date"] = *start
	}
	if *end != "" {
		callArgs["end_date"] = *end
	}

	result, err := call(ctx, env, "add_medication", callArgs)
	if err != nil {
		return err
	}
	snap := result.(medication.Snapshot)
	fmt.Fprintf(env.Out, "Added %s (%s)\n", snap.Name, snap.ID)
	printDetail(env.Out, snap, env.App.Location)
	return nil
}

func runUpdate(ctx context.Context, env *Env, args []string) error {
	id, rest := splitID(args)
	fs := newFlagSet(env, "update")
	fs.String("name", "", "medication name")
	fs.String("dosage", "", "dose per intake")
	fs.String("frequency", "", "daily, weekly, monthly or as_needed")
	fs.String("times", "", "comma separated HH:MM dose times")
	fs.String("start", "", "first active day, YYYY-MM-DD")
	fs.String("end", "", "last active day, YYYY-MM-DD")
	fs.String("notes", "", "free text notes")
	clearStart := fs.Bool("clear-start", false, "remove the start date")
	clearEnd := fs.Bool("clear-end", false, "remove the end date")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	id, err := requireID(fs, id)
	if err != nil {
		return err
	}

	callArgs := map[string]interface{}{"medication_id": id}
	keys := map[string]string{"start": "start_date", "end": "end_date"}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "clear-start", "clear-end":
		case "times":
			callArgs["times"] = splitTimes(f.Value.String())
		default:
			key := f.Name
			if k, ok := keys[key]; ok {
				key = k
			}
			callArgs[key] = f.Value.String()
		}
	})
	if *clearStart {
		callArgs["start_date"] = nil
	}
	if *clearEnd {
		callArgs["end_date"] = nil
	}
	if len(callArgs) == 1 {
		return errors.New("update: nothing to change")
	}

	result, err := call(ctx, env, "update_medication", callArgs)
	if err != nil {
		return err
	}
	snap := result.(medication.Snapshot)
	fmt.Fprintf(env.Out, "Updated %s (%s)\n", snap.Name, snap.ID)
	printDetail(env.Out, snap, env.App.Location)
	return nil
}

func runRemove(ctx context.Context, env *Env, args []string) error {
	id, rest := splitID(args)
	fs := newFlagSet(env, "remove")
	yes := fs.Bool("y", false, "do not ask for confirmation")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	id, err := requireID(fs, id)
	if err != nil {
		return err
	}

	m, err := env.App.Tracker.Get(id)
	if err != nil {
		return err
	}
	if !*yes {
		if !env.Interactive {
			return errors.New("remove: pass -y to confirm when not running in a terminal")
		}
		question := fmt.Sprintf("Remove %s and %d history entries?", m.Name, len(m.History))
		if !confirm(env, question) {
			fmt.Fprintln(env.Out, "Cancelled")
			return nil
		}
	}

	if _, err := call(ctx, env, "remove_medication", map[string]interface{}{"medication_id": id}); err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "Removed %s (%s)\n", m.Name, id)
	return nil
}

func runTake(ctx context.Context, env *Env, args []string) error {
	return runDose(ctx, env, "take", "take_medication", args)
}

func runSkip(ctx context.Context, env *Env, args []string) error {
	return runDose(ctx, env, "skip", "skip_medication", args)
}

func runDose(ctx context.Context, env *Env, name, service string, args []string) error {
	id, rest := splitID(args)
	fs := newFlagSet(env, name)
	at := fs.String("at", "", "when, RFC 3339 or local 'YYYY-MM-DD HH:MM'; default now")
	notes := fs.String("notes", "", "notes about this dose")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	id, err := requireID(fs, id)
	if err != nil {
		return err
	}

	callArgs := map[string]interface{}{"medication_id": id, "notes": *notes}
	if *at != "" {
		callArgs["datetime"] = *at
	}
	result, err := call(ctx, env, service, callArgs)
	if err != nil {
		return err
	}

	out := result.(map[string]interface{})
	ev := out["event"].(medication.DoseEvent)
	snap := out["medication"].(medication.Snapshot)
	fmt.Fprintf(env.Out, "Recorded %s %s at %s\n", snap.Name, ev.Action,
		ev.Timestamp.In(env.App.Location).Format(timeLayout))
	printDetail(env.Out, snap, env.App.Location)
	return nil
}

func runStatus(ctx context.Context, env *Env, args []string) error {
	now := env.App.Tracker.Now()
	if len(args) > 0 {
		snap, err := env.App.Tracker.Snapshot(args[0], now)
		if err != nil {
			return err
		}
		printDetail(env.Out, snap, env.App.Location)
		return nil
	}

	snaps := env.App.Tracker.Snapshots(now)
	if len(snaps) == 0 {
		fmt.Fprintln(env.Out, "No medications. Add one with 'medtracker add' or try 'medtracker demo'.")
		return nil
	}
	printTable(env.Out, snaps, env.App.Location)
	return nil
}

func runHistory(ctx context.Context, env *Env, args []string) error {
	id, rest := splitID(args)
	fs := newFlagSet(env, "history")
	from := fs.String("from", "", "earliest timestamp or date")
	to := fs.String("to", "", "timestamp or date to stop before")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	id, err := requireID(fs, id)
	if err != nil {
		return err
	}

	loc := env.App.Location
	lo, err := medication.ParseBound(*from, loc)
	if err != nil {
		return err
	}
	hi, err := medication.ParseBound(*to, loc)
	if err != nil {
		return err
	}
	h, err := env.App.Tracker.History(id, lo, hi)
	if err != nil {
		return err
	}
	if len(h) == 0 {
		fmt.Fprintln(env.Out, "No doses recorded")
		return nil
	}
	printHistory(env.Out, h, loc)
	return nil
}

func runCall(ctx context.Context, env *Env, args []string) error {
	if len(args) == 0 {
		for _, svc := range env.App.Services.List() {
			fmt.Fprintf(env.Out, "%-24s %s\n", svc.Name, svc.Description)
		}
		return nil
	}

	raw := json.RawMessage("{}")
	if len(args) > 1 {
		raw = json.RawMessage(strings.Join(args[1:], " "))
	}
	result, err := env.App.Services.CallJSON(ctx, args[0], raw)
	if err != nil {
		return err
	}
	return writeJSON(env.Out, result)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type demoMedication struct {
	name, dosage, notes string
	times               []interface{}
}

var demoMedications = []demoMedication{
	{"Vitamin D", "1000 IU", "Take with breakfast for better absorption", []interface{}{"09:00"}},
	{"Blood Pressure Medication", "5mg", "Take with food", []interface{}{"08:00", "20:00"}},
}

func runDemo(ctx context.Context, env *Env, args []string) error {
	for _, d := range demoMedications {
		result, err := call(ctx, env, "add_medication", map[string]interface{}{
			"name":      d.name,
			"dosage":    d.dosage,
			"frequency": string(medication.FrequencyDaily),
			"times":     d.times,
			"notes":     d.notes,
		})
		if err != nil {
			return err
		}
		snap := result.(medication.Snapshot)
		fmt.Fprintf(env.Out, "Added %s (%s)\n", snap.Name, snap.ID)
	}
	return runStatus(ctx, env, nil)
}
