package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"todo/internal/config"
	"todo/internal/exitcode"
)

func init() {
	Register(&HelpCmd{})
}

// HelpCmd implements the help command.
type HelpCmd struct{}

func (c *HelpCmd) Name() string      { return "help" }
func (c *HelpCmd) Aliases() []string { return nil }
func (c *HelpCmd) Synopsis() string  { return "Print usage" }
func (c *HelpCmd) Usage() string     { return "todo help" }
func (c *HelpCmd) NeedsAuth() bool   { return false }
func (c *HelpCmd) LocalOnly() bool   { return true }

func (c *HelpCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *HelpCmd) Run(ctx context.Context, cfg *config.Config, rt *Runtime, args []string, out, errOut io.Writer) int {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintf(out, "  %-64s %s\n", "todo", "List tasks")
	for _, cmd := range DefaultRegistry.All() {
		fmt.Fprintf(out, "  %-64s %s\n", cmd.Usage(), cmd.Synopsis())
	}
	fmt.Fprint(out, helpFooter)
	return exitcode.Success
}

const helpFooter = `
<ref> is the number shown by 'todo list' or a task id.
The password may also be given in TODO_PASSWORD.

Common flags:
  --config <dir>   Override config directory
  --api <url>      Override backend URL
  --quiet          Suppress informational output
  --debug          Print debug logs to stderr
`
