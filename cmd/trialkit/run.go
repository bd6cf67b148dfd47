package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spachava753/trialkit/internal/clock"
	"github.com/spachava753/trialkit/internal/input"
	"github.com/spachava753/trialkit/internal/logging"
	"github.com/spachava753/trialkit/internal/models"
	"github.com/spachava753/trialkit/internal/render"
	"github.com/spachava753/trialkit/internal/session"
	"github.com/spachava753/trialkit/internal/stimulus"
	"github.com/spachava753/trialkit/internal/trial"
	"github.com/spachava753/trialkit/internal/trigger"
)

type runFlags struct {
	name        string
	participant string
	outputDir   string
	logLevel    string
	inputMode   string
	noTrigger   bool
}

func newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run <session.yaml>",
		Short: "Run every trial of a session and write its results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), args[0], flags)
		},
	}
	cmd.Flags().StringVar(&flags.name, "name", "", "session directory name (overrides session file)")
	cmd.Flags().StringVarP(&flags.participant, "participant", "p", "", "participant identifier")
	cmd.Flags().StringVarP(&flags.outputDir, "output-dir", "o", "", "directory for session results")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")
	cmd.Flags().StringVar(&flags.inputMode, "input", "", "keyboard input mode: raw or line")
	cmd.Flags().BoolVar(&flags.noTrigger, "no-trigger", false, "ignore the trigger box configuration")
	return cmd
}

func (f runFlags) apply(cfg *models.SessionConfig) {
	if f.name != "" {
		cfg.Name = &f.name
	}
	if f.participant != "" {
		cfg.Participant = f.participant
	}
	if f.outputDir != "" {
		cfg.OutputDir = f.outputDir
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.inputMode != "" {
		cfg.InputMode = models.InputMode(f.inputMode)
	}
	if f.noTrigger {
		cfg.Trigger = nil
	}
}

func runSession(parent context.Context, path string, flags runFlags) error {
	cfg, trials, err := session.Load(path)
	if err != nil {
		return err
	}
	flags.apply(&cfg)

	logger, closer, err := logging.Setup(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	// Setup context with manual signal handling
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	defer func() {
		signal.Stop(sigChan)
		cancel()
	}()

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("interrupt received, aborting session...", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var out io.Writer = os.Stdout
	restore := func() {}
	if cfg.InputMode == models.InputRaw && input.IsTerminal(os.Stdin) {
		restore, err = input.MakeRaw(os.Stdin)
		if err != nil {
			return err
		}
		out = render.CRLF(os.Stdout)
	}
	defer restore()

	kb := input.NewKeyboard(os.Stdin, cfg.InputMode, clock.Real)
	kb.OnInterrupt = func() {
		slog.Info("ctrl-c received, aborting session...")
		cancel()
	}
	go func() {
		if err := kb.Run(ctx); err != nil {
			slog.Debug("keyboard stopped", "error", err)
		}
	}()

	canvas := render.DefaultCanvas()
	width, height := input.Size(os.Stdout)
	var renderer trial.Renderer = render.NewTerminal(out, canvas, width, height)

	if cfg.Trigger != nil {
		box, err := trigger.Open(cfg.Trigger.Device, cfg.Trigger.Baud)
		if err != nil {
			return err
		}
		defer box.Close()
		renderer = trigger.NewRenderer(renderer, box, cfg.Trigger.Lines)
		slog.Debug("trigger box ready", "device", cfg.Trigger.Device)
	}

	runner := session.NewRunner(cfg, trials, session.Deps{
		Renderer: renderer,
		Input:    kb,
		Clock:    clock.Real,
		Loader:   stimulus.NewLoader(canvas),
		Logger:   logger,
	})

	result, err := runner.Run(ctx)
	restore()
	if err != nil {
		return fmt.Errorf("session failed: %w", err)
	}

	printSummary(os.Stdout, result)

	if result.FailedTrials > 0 || result.Cancelled {
		return errIncomplete
	}
	return nil
}

func printSummary(w io.Writer, result *models.SessionResult) {
	fmt.Fprintf(w, "\nSession: %s\n", result.SessionName)
	if result.Participant != "" {
		fmt.Fprintf(w, "Participant: %s\n", result.Participant)
	}
	fmt.Fprintf(w, "Total trials: %d\n", result.TotalTrials)
	fmt.Fprintf(w, "Responded: %d\n", result.RespondedTrials)
	fmt.Fprintf(w, "Timed out: %d\n", result.TimedOutTrials)
	fmt.Fprintf(w, "Aborted: %d\n", result.AbortedTrials)
	fmt.Fprintf(w, "Failed: %d\n", result.FailedTrials)
	if result.SkippedTrials > 0 {
		fmt.Fprintf(w, "Skipped: %d\n", result.SkippedTrials)
	}
	fmt.Fprintf(w, "Mean RT: %.1fms\n", result.MeanRTMS)

	plugins := make([]string, 0, len(result.Plugins))
	for p := range result.Plugins {
		plugins = append(plugins, string(p))
	}
	sort.Strings(plugins)
	for _, p := range plugins {
		s := result.Plugins[models.Plugin(p)]
		fmt.Fprintf(w, "  %s: %d trials, %d responded, mean RT %.1fms\n", p, s.TotalTrials, s.RespondedTrials, s.MeanRTMS)
	}
	fmt.Fprintf(w, "Duration: %.2fs\n", result.TotalDurationSec)
}
