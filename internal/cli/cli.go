// Package cli implements the medtracker subcommands.
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/gmsas95/medtracker/internal/app"
)

// Env is what a command runs against.
type Env struct {
	App *app.App
	In  io.Reader
	Out io.Writer
	// Interactive is set when stdin and stdout are a terminal.
	Interactive bool
}

type command struct {
	usage string
	help  string
	run   func(ctx context.Context, env *Env, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"add":     {"add -name N -dosage D -frequency F [-times HH:MM,...] [-start DATE] [-end DATE] [-notes TEXT]", "Add a medication", runAdd},
		"update":  {"update <id> [-name N] [-dosage D] [-frequency F] [-times ...] [-start DATE|-clear-start] [-end DATE|-clear-end] [-notes TEXT]", "Change a medication, keeping its history", runUpdate},
		"remove":  {"remove <id> [-y]", "Delete a medication and its history", runRemove},
		"take":    {"take <id> [-at TIME] [-notes TEXT]", "Record a taken dose", runTake},
		"skip":    {"skip <id> [-at TIME] [-notes TEXT]", "Record a skipped dose", runSkip},
		"status":  {"status [id]", "Show status, next due, missed doses and adherence", runStatus},
		"list":    {"list", "List medications with their current status", runStatus},
		"history": {"history <id> [-from TIME] [-to TIME]", "Show the dose history of a medication", runHistory},
		"call":    {"call <service> [JSON]", "Call a named service, or list services without arguments", runCall},
		"export":  {"export [-o FILE]", "Write all medications and history as YAML", runExport},
		"import":  {"import <FILE> [-replace]", "Load medications from a YAML export", runImport},
		"demo":    {"demo", "Add two sample medications", runDemo},
		"watch":   {"watch [-refresh DURATION]", "Live dashboard; t takes, s skips the selected medication", runWatch},
	}
}

// Has reports whether name is a known command.
func Has(name string) bool {
	_, ok := commands[name]
	return ok
}

// Run executes the named command.
func Run(ctx context.Context, env *Env, name string, args []string) error {
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, run 'medtracker help'", name)
	}
	if len(args) > 0 && (args[0] == "-h" || args[0] == "--help" || args[0] == "help") {
		fmt.Fprintf(env.Out, "Usage: medtracker %s\n\n%s\n", cmd.usage, cmd.help)
		return nil
	}
	err := cmd.run(ctx, env, args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

var commandOrder = []string{
	"add", "update", "remove", "take", "skip", "status", "list",
	"history", "call", "export", "import", "demo", "watch",
}

func helpMarkdown() string {
	var b strings.Builder
	b.WriteString("# medtracker\n\n")
	b.WriteString("Track medications, their dose schedule and adherence.\n\n")
	b.WriteString("## Usage\n\n")
	b.WriteString("    medtracker [-config FILE] [-data DIR] <command> [arguments]\n\n")
	b.WriteString("## Commands\n\n")
	b.WriteString("| Command | Description |\n|---|---|\n")
	b.WriteString("| `serve` | Run the HTTP API and the status poller |\n")
	for _, name := range commandOrder {
		fmt.Fprintf(&b, "| `%s` | %s |\n", name, commands[name].help)
	}
	b.WriteString("| `version` | Print the version |\n")
	b.WriteString("\nTimes without a zone offset are read in the configured timezone. ")
	b.WriteString("Frequencies: `daily`, `weekly`, `monthly`, `as_needed`.\n")
	return b.String()
}

// PrintHelp writes the command overview, rendered for the terminal when
// interactive.
func PrintHelp(w io.Writer, interactive bool) {
	md := helpMarkdown()
	if interactive {
		if out, err := glamour.Render(md, "auto"); err == nil {
			fmt.Fprint(w, out)
			return
		}
	}
	fmt.Fprint(w, md)
}

// confirm asks a yes/no question. Non-interactive sessions never confirm.
func confirm(env *Env, question string) bool {
	if !env.Interactive {
		return false
	}
	fmt.Fprintf(env.Out, "%s (y/N): ", question)
	reader := bufio.NewReader(env.In)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
