package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/parallel/internal/config"
	"github.com/roach88/parallel/internal/engine"
	"github.com/roach88/parallel/internal/harness"
	"github.com/roach88/parallel/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Config   string

	// Sessions allows overriding the session generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	Sessions engine.SessionGenerator
}

// RunSummary is the run command's success payload.
type RunSummary struct {
	Scenario string         `json:"scenario"`
	Session  string         `json:"session"`
	Pass     bool           `json:"pass"`
	Ticks    int64          `json:"ticks"`
	Patches  int            `json:"patches"`
	Digest   string         `json:"digest"`
	Calls    map[string]int `json:"calls,omitempty"`
	Errors   []string       `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a scenario on a live host loop",
		Long: `Run a scenario against a live host loop ticking at the configured
interval, journaling every applied patch.

With --db (or database in --config) the patches are written to a SQLite
journal under a fresh UUIDv7 session, readable later with "parallel trace".

Examples:
  parallel run ./scenarios/toggle.yaml
  parallel run --db ./journal.db ./scenarios/toggle.yaml
  parallel run --config ./parallel.cue ./scenarios/toggle.yaml --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioLive(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (overrides config)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to CUE configuration file")

	return cmd
}

func runScenarioLive(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	sessions := opts.Sessions
	if sessions == nil {
		sessions = engine.UUIDv7Generator{}
	}
	session := sessions.Generate()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	runOpts := []harness.Option{harness.WithSession(session), harness.WithConfig(cfg)}

	if cfg.Database != "" {
		slog.Info("opening journal", "path", cfg.Database)
		st, err := store.Open(cfg.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()

		if err := st.BeginSession(ctx, session, scenario.Name); err != nil {
			return WrapExitError(ExitCommandError, "failed to begin session", err)
		}
		runOpts = append(runOpts, harness.WithSink(st))
	}

	formatter.VerboseLog("Running %s (session %s, tick %s)", scenario.Name, session, cfg.Tick)

	result, err := harness.RunLive(ctx, scenario, cfg.Tick, runOpts...)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return WrapExitError(ExitFailure, "run interrupted", err)
		}
		return WrapExitError(ExitFailure, "scenario execution failed", err)
	}

	summary := RunSummary{
		Scenario: scenario.Name,
		Session:  session,
		Pass:     result.Pass,
		Ticks:    result.Ticks,
		Patches:  len(result.Trace),
		Digest:   result.Digest,
		Calls:    result.Calls,
		Errors:   result.Errors,
	}

	failed := fmt.Sprintf("scenario %s failed", scenario.Name)
	if formatter.JSON() {
		if !result.Pass {
			return formatter.Fail(ErrCodeRunFailed, failed, summary)
		}
		return formatter.Success(summary)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "%s %s\n", mark(result.Pass), scenario.Name)
	fmt.Fprintf(w, "  session: %s\n", session)
	fmt.Fprintf(w, "  ticks: %d, patches: %d\n", result.Ticks, len(result.Trace))
	fmt.Fprintf(w, "  digest: %s\n", result.Digest)
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, failed)
	}
	return nil
}
