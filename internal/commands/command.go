// Package commands provides the command interface and implementations.
package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"todo/internal/config"
	"todo/internal/exitcode"
	"todo/internal/service"
	"todo/internal/session"
	"todo/internal/tasksync"
)

// Command defines the interface for CLI commands.
type Command interface {
	// Name returns the primary command name.
	Name() string

	// Aliases returns alternative names for the command.
	Aliases() []string

	// Synopsis returns a short description for help output.
	Synopsis() string

	// Usage returns the usage string for help output.
	Usage() string

	// NeedsAuth returns true if the command requires an authenticated session.
	// Commands like help, version, login, logout return false.
	NeedsAuth() bool

	// RegisterFlags registers command-specific flags.
	RegisterFlags(fs *flag.FlagSet)

	// Run executes the command.
	// cfg is always provided (config dir, paths).
	// rt is nil for commands that need neither a session nor a backend.
	// args contains positional arguments after flag parsing.
	// Returns exit code.
	Run(ctx context.Context, cfg *config.Config, rt *Runtime, args []string, out, errOut io.Writer) int
}

// Runtime holds the state objects a command acts on.
// The session has already been started when a command runs.
type Runtime struct {
	Session *session.Manager
	Tasks   *tasksync.Engine
	Logger  *slog.Logger
}

// LocalOnly is implemented by commands that run without a Runtime.
type LocalOnly interface {
	LocalOnly() bool
}

// ExitCode maps an error to the exit code for its kind.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return exitcode.Success
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrNotFound):
		return exitcode.UserError
	case errors.Is(err, service.ErrAuth), errors.Is(err, service.ErrStorage):
		return exitcode.AuthError
	default:
		return exitcode.BackendError
	}
}

// fail prints err and returns its exit code.
func fail(errOut io.Writer, err error) int {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrNotFound):
		fmt.Fprintf(errOut, "error: %v\n", err)
	case errors.Is(err, service.ErrAuth):
		fmt.Fprintf(errOut, "error: auth error: %v\n", err)
	case errors.Is(err, service.ErrStorage):
		fmt.Fprintf(errOut, "error: storage error: %v\n", err)
	default:
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
	}
	return ExitCode(err)
}

// ok prints the success marker unless quiet.
func ok(cfg *config.Config, out io.Writer) int {
	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
