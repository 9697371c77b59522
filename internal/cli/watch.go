package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gmsas95/medtracker/internal/medication"
)

type tickMsg time.Time

type doseMsg struct {
	text string
	err  error
}

type watchModel struct {
	ctx     context.Context
	env     *Env
	refresh time.Duration
	table   table.Model
	snaps   []medication.Snapshot
	message string
	styles  styles
}

var watchColumns = []table.Column{
	{Title: "Name", Width: 28},
	{Title: "Dosage", Width: 10},
	{Title: "Frequency", Width: 10},
	{Title: "Status", Width: 9},
	{Title: "Next due", Width: 16},
	{Title: "Last taken", Width: 16},
	{Title: "Missed", Width: 6},
	{Title: "Adherence", Width: 9},
}

func newWatchModel(ctx context.Context, env *Env, refresh time.Duration) *watchModel {
	t := table.New(
		table.WithColumns(watchColumns),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	st := table.DefaultStyles()
	st.Header = st.Header.Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	st.Selected = st.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	t.SetStyles(st)

	m := &watchModel{ctx: ctx, env: env, refresh: refresh, table: t, styles: newStyles(env.Out)}
	m.reload()
	return m
}

func (m *watchModel) reload() {
	loc := m.env.App.Location
	m.snaps = m.env.App.Tracker.Snapshots(m.env.App.Tracker.Now())
	rows := make([]table.Row, len(m.snaps))
	for i, s := range m.snaps {
		rows[i] = table.Row{
			s.Name,
			s.Dosage,
			string(s.Frequency),
			string(s.Status),
			formatInstant(s.NextDue, loc),
			formatInstant(s.LastTaken, loc),
			fmt.Sprintf("%d", s.MissedDoses),
			formatAdherence(s.AdherenceRate),
		}
	}
	m.table.SetRows(rows)
}

func (m *watchModel) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *watchModel) selected() (medication.Snapshot, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.snaps) {
		return medication.Snapshot{}, false
	}
	return m.snaps[i], true
}

func (m *watchModel) dose(service string) tea.Cmd {
	snap, ok := m.selected()
	if !ok {
		return nil
	}
	return func() tea.Msg {
		result, err := m.env.App.Services.Call(m.ctx, service, map[string]interface{}{"medication_id": snap.ID})
		if err != nil {
			return doseMsg{err: err}
		}
		ev := result.(map[string]interface{})["event"].(medication.DoseEvent)
		return doseMsg{text: fmt.Sprintf("%s %s at %s", snap.Name, ev.Action,
			ev.Timestamp.In(m.env.App.Location).Format("15:04"))}
	}
}

func (m *watchModel) Init() tea.Cmd {
	return m.tick()
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "t":
			return m, m.dose("take_medication")
		case "s":
			return m, m.dose("skip_medication")
		case "r":
			m.reload()
			return m, nil
		}
	case tickMsg:
		m.reload()
		return m, m.tick()
	case doseMsg:
		if msg.err != nil {
			m.message = "Error: " + msg.err.Error()
		} else {
			m.message = "Recorded " + msg.text
		}
		m.reload()
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *watchModel) View() string {
	var b strings.Builder
	b.WriteString(m.styles.header.Render("Medications") + "  " + m.env.App.Tracker.Now().Format(timeLayout) + "\n\n")
	if len(m.snaps) == 0 {
		b.WriteString("No medications.\n")
	} else {
		b.WriteString(m.table.View() + "\n")
	}
	if snap, ok := m.selected(); ok {
		b.WriteString("\n" + m.styles.status(snap.Status) + "  " + snap.Notes + "\n")
	}
	if m.message != "" {
		b.WriteString("\n" + m.message + "\n")
	}
	b.WriteString("\nt take  s skip  r refresh  q quit\n")
	return b.String()
}

func runWatch(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet(env, "watch")
	refresh := fs.Duration("refresh", 30*time.Second, "how often statuses are re-evaluated")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !env.Interactive {
		return errors.New("watch: needs an interactive terminal")
	}
	if *refresh <= 0 {
		*refresh = 30 * time.Second
	}

	p := tea.NewProgram(newWatchModel(ctx, env, *refresh),
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithInput(env.In),
		tea.WithOutput(env.Out))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
