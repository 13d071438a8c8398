package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"todo/internal/config"
	"todo/internal/exitcode"
	"todo/internal/session"
)

// PasswordEnv supplies the password when --password is not given.
const PasswordEnv = "TODO_PASSWORD"

func init() {
	Register(&LoginCmd{})
	Register(&RegisterCmd{})
}

// LoginCmd implements the login command.
type LoginCmd struct {
	password string
}

// SetPassword sets the password (for testing).
func (c *LoginCmd) SetPassword(p string) {
	c.password = p
}

func (c *LoginCmd) Name() string      { return "login" }
func (c *LoginCmd) Aliases() []string { return nil }
func (c *LoginCmd) Synopsis() string  { return "Sign in to the task backend" }
func (c *LoginCmd) Usage() string     { return "todo login [--password <secret>] <email>" }
func (c *LoginCmd) NeedsAuth() bool   { return false }

func (c *LoginCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.password, "password", "", "")
	fs.StringVar(&c.password, "p", "", "")
}

func (c *LoginCmd) Run(ctx context.Context, cfg *config.Config, rt *Runtime, args []string, out, errOut io.Writer) int {
	identity, password, code := credentialsFrom(args, c.password, errOut)
	if code != exitcode.Success {
		return code
	}

	// Already signed in as the same identity: nothing to do
	if s, ok := rt.Session.Current(); ok && strings.EqualFold(s.Identity, identity) {
		if !cfg.Quiet {
			fmt.Fprintln(out, "already logged in")
		}
		return exitcode.Success
	}

	return authenticate(ctx, cfg, rt.Session.Login, identity, password, out, errOut)
}

// RegisterCmd implements the register command.
type RegisterCmd struct {
	password string
}

// SetPassword sets the password (for testing).
func (c *RegisterCmd) SetPassword(p string) {
	c.password = p
}

func (c *RegisterCmd) Name() string      { return "register" }
func (c *RegisterCmd) Aliases() []string { return nil }
func (c *RegisterCmd) Synopsis() string  { return "Create an account and sign in" }
func (c *RegisterCmd) Usage() string     { return "todo register [--password <secret>] <email>" }
func (c *RegisterCmd) NeedsAuth() bool   { return false }

func (c *RegisterCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.password, "password", "", "")
	fs.StringVar(&c.password, "p", "", "")
}

func (c *RegisterCmd) Run(ctx context.Context, cfg *config.Config, rt *Runtime, args []string, out, errOut io.Writer) int {
	identity, password, code := credentialsFrom(args, c.password, errOut)
	if code != exitcode.Success {
		return code
	}
	return authenticate(ctx, cfg, rt.Session.Register, identity, password, out, errOut)
}

// credentialsFrom validates the email argument and resolves the password.
func credentialsFrom(args []string, password string, errOut io.Writer) (string, string, int) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		fmt.Fprintln(errOut, "error: email required")
		return "", "", exitcode.UserError
	}
	if password == "" {
		password = os.Getenv(PasswordEnv)
	}
	if password == "" {
		fmt.Fprintf(errOut, "error: password required (--password or %s)\n", PasswordEnv)
		return "", "", exitcode.UserError
	}
	return strings.TrimSpace(args[0]), password, exitcode.Success
}

type authFunc func(ctx context.Context, identity, secret string) (session.Session, error)

func authenticate(ctx context.Context, cfg *config.Config, call authFunc, identity, password string, out, errOut io.Writer) int {
	s, err := call(ctx, identity, password)
	if err != nil {
		return fail(errOut, err)
	}
	if !cfg.Quiet {
		fmt.Fprintf(out, "logged in as %s\n", s.Identity)
	}
	return exitcode.Success
}
