package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gmsas95/medtracker/internal/medication"
)

const timeLayout = "2006-01-02 15:04"

var statusColors = map[medication.Status]lipgloss.Color{
	medication.StatusNotDue:  lipgloss.Color("8"),
	medication.StatusDue:     lipgloss.Color("11"),
	medication.StatusOverdue: lipgloss.Color("9"),
	medication.StatusTaken:   lipgloss.Color("10"),
	medication.StatusSkipped: lipgloss.Color("13"),
}

// styles renders for w, so writers that are not terminals get plain text.
type styles struct {
	r      *lipgloss.Renderer
	header lipgloss.Style
	label  lipgloss.Style
	cell   lipgloss.Style
	border lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		r:      r,
		header: r.NewStyle().Bold(true).Padding(0, 1),
		label:  r.NewStyle().Bold(true).Width(12),
		cell:   r.NewStyle().Padding(0, 1),
		border: r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (s styles) status(st medication.Status) string {
	return s.r.NewStyle().Foreground(statusColors[st]).Bold(st == medication.StatusOverdue).Render(string(st))
}

func formatInstant(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	return t.In(loc).Format(timeLayout)
}

func formatTimes(times []medication.TimeOfDay) string {
	if len(times) == 0 {
		return "-"
	}
	parts := make([]string, len(times))
	for i, t := range times {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

func formatAdherence(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate)
}

func printTable(w io.Writer, snaps []medication.Snapshot, loc *time.Location) {
	s := newStyles(w)
	rows := make([][]string, len(snaps))
	for i, snap := range snaps {
		rows[i] = []string{
			snap.ID,
			snap.Name,
			snap.Dosage,
			string(snap.Frequency),
			s.status(snap.Status),
			formatInstant(snap.NextDue, loc),
			formatInstant(snap.LastTaken, loc),
			fmt.Sprintf("%d", snap.MissedDoses),
			formatAdherence(snap.AdherenceRate),
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.border).
		Headers("ID", "NAME", "DOSAGE", "FREQUENCY", "STATUS", "NEXT DUE", "LAST TAKEN", "MISSED", "ADHERENCE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.header
			}
			return s.cell
		})
	fmt.Fprintln(w, t.String())
}

func printDetail(w io.Writer, snap medication.Snapshot, loc *time.Location) {
	s := newStyles(w)
	line := func(label, value string) {
		fmt.Fprintf(w, "  %s %s\n", s.label.Render(label), value)
	}
	line("Name", snap.Name)
	line("ID", snap.ID)
	line("Dosage", snap.Dosage)
	line("Frequency", string(snap.Frequency))
	line("Times", formatTimes(snap.Times))
	if snap.StartDate != nil {
		line("Start", snap.StartDate.String())
	}
	if snap.EndDate != nil {
		line("End", snap.EndDate.String())
	}
	if snap.Notes != "" {
		line("Notes", snap.Notes)
	}
	line("Status", s.status(snap.Status))
	line("Next due", formatInstant(snap.NextDue, loc))
	line("Last taken", formatInstant(snap.LastTaken, loc))
	line("Missed", fmt.Sprintf("%d", snap.MissedDoses))
	line("Adherence", formatAdherence(snap.AdherenceRate))
}

func printHistory(w io.Writer, h []medication.DoseEvent, loc *time.Location) {
	s := newStyles(w)
	rows := make([][]string, len(h))
	for i, ev := range h {
		rows[i] = []string{ev.Timestamp.In(loc).Format(timeLayout), string(ev.Action), ev.Notes}
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.border).
		Headers("TIME", "ACTION", "NOTES").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.header
			}
			return s.cell
		})
	fmt.Fprintln(w, t.String())
}
