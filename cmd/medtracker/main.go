package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/gmsas95/medtracker/internal/app"
	"github.com/gmsas95/medtracker/internal/cli"
	"github.com/gmsas95/medtracker/internal/config"
	"github.com/gmsas95/medtracker/internal/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

func main() {
	flag.Usage = func() {
		cli.PrintHelp(os.Stderr, false)
	}
	flag.Parse()

	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintHelp(os.Stdout, interactive)
		return
	}

	command := args[0]
	switch command {
	case "help", "--help", "-h":
		cli.PrintHelp(os.Stdout, interactive)
		return
	case "version", "--version", "-v":
		fmt.Printf("medtracker version %s\n", version)
		return
	}
	if command != "serve" && !cli.Has(command) {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		cli.PrintHelp(os.Stderr, false)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, level, err := logger.New(cfg.Log.Level, cfg.Log.Format, "medtracker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Commands print their own results; only problems are logged.
	if command != "serve" && level.Level() > zapcore.DebugLevel {
		level.SetLevel(zapcore.WarnLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log, level, version)
	if err != nil {
		log.Fatal("Failed to initialize", zap.Error(err))
	}

	if command == "serve" {
		log.Info("Starting medtracker",
			zap.String("version", version),
			zap.String("storage", cfg.Storage.Backend),
			zap.String("timezone", application.Location.String()))
		stop()
		application.RunServer()
		return
	}

	env := &cli.Env{App: application, In: os.Stdin, Out: os.Stdout, Interactive: interactive}
	err = cli.Run(ctx, env, command, args[1:])
	application.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
