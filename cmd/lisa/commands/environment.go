// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/lisa/cmd/lisa/cli"
	"github.com/bureau-foundation/lisa/lib/backend"
	"github.com/bureau-foundation/lisa/lib/config"
	"github.com/bureau-foundation/lisa/lib/decisionui"
	"github.com/bureau-foundation/lisa/lib/git"
	"github.com/bureau-foundation/lisa/lib/session"
	"github.com/bureau-foundation/lisa/lib/termrender"
	"github.com/bureau-foundation/lisa/lib/tracker"
)

// debugLogFile receives every record at debug level with --debug,
// including raw backend outputs.
const debugLogFile = ".lisa/debug.log"

// logFlags are shared by every command that talks to the tracker or
// the backend.
type logFlags struct {
	verbose bool
	debug   bool
}

func (f *logFlags) register(flagSet *pflag.FlagSet) {
	flagSet.BoolVar(&f.verbose, "verbose", false, "log at debug level")
	flagSet.BoolVar(&f.debug, "debug", false, "also write every log record, raw backend outputs included, to "+debugLogFile)
}

// environment is what a command needs to build a session.
type environment struct {
	dir      string
	settings *config.Config
	logger   *slog.Logger
	closers  []io.Closer
}

// openEnvironment finds the repository root, sets logging up, and
// loads the layered configuration with overrides applied.
func openEnvironment(ctx context.Context, flags logFlags, overrides config.Overrides) (*environment, error) {
	level := slog.LevelInfo
	if flags.verbose {
		level = slog.LevelDebug
	}
	env := &environment{logger: cli.NewCommandLogger(level)}

	workingDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	env.dir, err = git.NewRepository(workingDir).TopLevel(ctx)
	if err != nil {
		return nil, fmt.Errorf("lisa must run inside a git repository: %w", err)
	}

	if flags.debug {
		path := filepath.Join(env.dir, debugLogFile)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening debug log: %w", err)
		}
		env.closers = append(env.closers, file)
		env.logger = cli.Tee(env.logger, file)
		env.logger.Info("debug logging", "path", path)
	}

	loaded, err := config.Load(env.dir)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.settings = loaded.WithOverrides(overrides)
	if err := env.settings.Validate(); err != nil {
		env.Close()
		return nil, err
	}
	env.logger.Debug("configuration loaded", "sources", env.settings.Sources())
	return env, nil
}

// Close releases the debug log.
func (env *environment) Close() {
	for _, closer := range env.closers {
		closer.Close()
	}
	env.closers = nil
}

// sessionConfig assembles a session over the real tracker, backend
// and terminal.
func (env *environment) sessionConfig(options session.Options) (session.Config, error) {
	client, err := newTracker(env.settings, os.Getenv, env.logger)
	if err != nil {
		return session.Config{}, err
	}
	meter := &backend.Meter{}
	assembled := session.Config{
		Settings: env.settings,
		Options:  options,
		Tracker:  client,
		Backend:  backendFactory(env.settings, meter, env.logger),
		Meter:    meter,
		Dir:      env.dir,
		Display:  termrender.New(os.Stdout),
		Logger:   env.logger,
	}
	if options.Interactive || options.AlwaysInteractive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return session.Config{}, fmt.Errorf("interactive mode needs a terminal on stdin")
		}
		assembled.Editor = &decisionui.Editor{In: os.Stdin, Out: os.Stderr}
	}
	return assembled, nil
}

func (env *environment) session(options session.Options) (*session.Session, error) {
	assembled, err := env.sessionConfig(options)
	if err != nil {
		return nil, err
	}
	return session.New(assembled)
}

// newTracker authenticates with the API key variable when it is set,
// and with the stored login token otherwise.
func newTracker(settings *config.Config, getenv func(string) string, logger *slog.Logger) (*tracker.Client, error) {
	trackerConfig := tracker.Config{
		Endpoint: settings.Tracker.Endpoint,
		Timeout:  settings.Tracker.Timeout,
		Logger:   logger,
	}
	if key := apiKey(settings, getenv); key != "" {
		trackerConfig.APIKey = key
	} else {
		tokens := tokenSource(settings, logger)
		if !tokens.Exists() {
			return nil, tracker.ErrNotAuthenticated
		}
		trackerConfig.Tokens = tokens
	}
	return tracker.NewClient(trackerConfig)
}

func apiKey(settings *config.Config, getenv func(string) string) string {
	if settings.Tracker.APIKeyEnv == "" {
		return ""
	}
	return getenv(settings.Tracker.APIKeyEnv)
}

func tokenSource(settings *config.Config, logger *slog.Logger) *tracker.FileTokenSource {
	return tracker.NewFileTokenSource(tracker.FileTokenConfig{
		Path:   settings.Tracker.TokenFile,
		Logger: logger,
	})
}

// backendFactory creates one CLI backend per working directory, all
// feeding the same meter.
func backendFactory(settings *config.Config, meter *backend.Meter, logger *slog.Logger) session.BackendFactory {
	return func(dir string) (backend.Backend, error) {
		toolMode, err := backend.ParseToolMode(settings.ToolMode)
		if err != nil {
			return nil, err
		}
		effort, err := backend.ParseEffort(settings.Effort)
		if err != nil {
			return nil, err
		}
		return backend.NewCLI(backend.CLIConfig{
			Binary:        settings.Backend.Binary,
			Dir:           dir,
			Model:         settings.Model,
			LightModel:    settings.LightModel,
			ToolMode:      toolMode,
			FallbackTools: settings.FallbackTools,
			EffortCap:     effort,
			Timeout:       settings.Backend.Timeout,
			Meter:         meter,
			Logger:        logger,
		})
	}
}

// oneUnit checks that args name exactly one unit.
func oneUnit(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected one unit ID, got %d", len(args))
	}
	return args[0], nil
}
