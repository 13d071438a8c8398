// Package cli parses the command line and wires the session and task engine
// for the command being run.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/oauth2"

	"todo/internal/commands"
	"todo/internal/config"
	"todo/internal/exitcode"
	"todo/internal/kvstore"
	"todo/internal/service"
	"todo/internal/session"
	"todo/internal/tasksync"
)

// ServiceFactory creates a Service from config.
// tokens yields the current session token for each request.
// Used to inject the backend during dispatch.
type ServiceFactory func(ctx context.Context, cfg *config.Config, tokens oauth2.TokenSource, logger *slog.Logger) (service.Service, error)

// StoreFactory opens the session store. Defaults to a file store at
// cfg.SessionPath().
type StoreFactory func(cfg *config.Config) kvstore.Store

// Dispatcher handles command-line parsing and dispatch.
type Dispatcher struct {
	registry *commands.Registry
	factory  ServiceFactory
	stores   StoreFactory
}

// NewDispatcher creates a new dispatcher with the given registry and service factory.
func NewDispatcher(registry *commands.Registry, factory ServiceFactory) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		factory:  factory,
		stores: func(cfg *config.Config) kvstore.Store {
			return kvstore.NewFileStore(cfg.SessionPath())
		},
	}
}

// WithStore replaces the session store factory.
func (d *Dispatcher) WithStore(f StoreFactory) *Dispatcher {
	d.stores = f
	return d
}

// Run parses arguments and dispatches to the appropriate command.
// Returns the exit code.
func (d *Dispatcher) Run(ctx context.Context, args []string, out, errOut io.Writer) int {
	// No args -> dispatch to "list" command with no args
	if len(args) == 0 {
		return d.dispatch(ctx, "list", nil, out, errOut)
	}

	cmdName := args[0]

	// If first token starts with -, it's an error (flags require a command)
	if strings.HasPrefix(cmdName, "-") {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", cmdName)
		return exitcode.UserError
	}

	return d.dispatch(ctx, cmdName, args[1:], out, errOut)
}

func (d *Dispatcher) dispatch(ctx context.Context, cmdName string, args []string, out, errOut io.Writer) int {
	cmd, ok := d.registry.Find(cmdName)
	if !ok {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", cmdName)
		return exitcode.UserError
	}
	return d.dispatchCommand(ctx, cmd, args, out, errOut)
}

func (d *Dispatcher) dispatchCommand(ctx context.Context, cmd commands.Command, args []string, out, errOut io.Writer) int {
	// Create flag set with custom error handling
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(io.Discard) // We handle errors ourselves

	// Common flags
	var configDir, apiURL string
	var quiet, debug bool

	fs.StringVar(&configDir, "config", "", "")
	fs.StringVar(&apiURL, "api", "", "")
	fs.BoolVar(&quiet, "quiet", false, "")
	fs.BoolVar(&debug, "debug", false, "")

	// Register command-specific flags
	cmd.RegisterFlags(fs)

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(errOut, flagError(err))
		return exitcode.UserError
	}

	// Check if first positional arg starts with - (should have been parsed as flag)
	positionalArgs := fs.Args()
	if len(positionalArgs) > 0 && strings.HasPrefix(positionalArgs[0], "-") {
		fmt.Fprintf(errOut, "error: unknown flag: %s\n", positionalArgs[0])
		return exitcode.UserError
	}

	cfg, err := config.New(configDir)
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.UserError
	}
	cfg.Quiet = quiet
	cfg.Debug = debug
	if apiURL != "" {
		cfg.APIURL = strings.TrimRight(apiURL, "/")
	}

	if lo, ok := cmd.(commands.LocalOnly); ok && lo.LocalOnly() {
		return cmd.Run(ctx, cfg, nil, positionalArgs, out, errOut)
	}

	logger := newLogger(cfg, errOut)
	rt, code := d.runtime(ctx, cfg, logger, errOut)
	if code != exitcode.Success {
		return code
	}

	if cmd.NeedsAuth() {
		if _, ok := rt.Session.Current(); !ok {
			fmt.Fprintln(errOut, "error: not logged in (run: todo login)")
			return exitcode.AuthError
		}
	}

	return cmd.Run(ctx, cfg, rt, positionalArgs, out, errOut)
}

// runtime builds the backend, restores the session and creates the engine.
func (d *Dispatcher) runtime(ctx context.Context, cfg *config.Config, logger *slog.Logger, errOut io.Writer) (*commands.Runtime, int) {
	// The backend needs the session's tokens and the session needs the
	// backend to authenticate; tokens is bound once the manager exists.
	tokens := &sessionTokens{}

	svc, err := d.factory(ctx, cfg, tokens, logger)
	if err != nil {
		fmt.Fprintf(errOut, "error: backend error: %s\n", err)
		return nil, exitcode.BackendError
	}

	mgr := session.NewManager(d.stores(cfg), svc, session.WithLogger(logger))
	tokens.m = mgr
	if err := mgr.Start(ctx); err != nil {
		logger.Warn("could not restore session", "err", err)
	}

	return &commands.Runtime{
		Session: mgr,
		Tasks:   tasksync.New(svc, tasksync.WithLogger(logger)),
		Logger:  logger,
	}, exitcode.Success
}

// flagError turns a flag parse error into the printed message.
func flagError(err error) string {
	errStr := err.Error()

	// Missing flag value
	if strings.Contains(errStr, "needs a value") || strings.Contains(errStr, "flag needs an argument") {
		parts := strings.Split(errStr, ":")
		flagPart := strings.TrimSpace(parts[len(parts)-1])
		return "error: flag needs an argument: " + flagPart
	}

	if strings.HasPrefix(errStr, "flag provided but not defined:") {
		flagName := strings.TrimPrefix(errStr, "flag provided but not defined: ")
		return "error: unknown flag: " + flagName
	}

	return "error: " + errStr
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	if cfg.Quiet && !cfg.Debug {
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// sessionTokens defers to the session manager once it is bound.
type sessionTokens struct {
	m *session.Manager
}

func (t *sessionTokens) Token() (*oauth2.Token, error) {
	if t.m == nil {
		return &oauth2.Token{}, nil
	}
	return t.m.TokenSource().Token()
}
