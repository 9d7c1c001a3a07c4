package restorecmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/keshon/hoard/internal/command"
	"github.com/keshon/hoard/internal/progress"
)

type Command struct {
	target  string
	timeout time.Duration
}

func (c *Command) Name() string      { return "restore" }
func (c *Command) Aliases() []string { return nil }
func (c *Command) Usage() string     { return "restore [options] <version-id>" }
func (c *Command) Brief() string     { return "Materialize a stored version on disk" }
func (c *Command) Help() string {
	return `Restore a stored version.

Reads the version index (preferring the local copy under
.hoard/versions), fetches each file's block from the repository,
decodes it through the configured decode-command, and writes the tree
under the target directory (default: the working tree root).

Options:
      --target <dir>   Restore into this directory.
      --timeout <dur>  Per-file decoder timeout (default 60s).
      --repo <name>    Repository section to read blocks from.

Examples:
  hoard restore 20201204-01482-abcde
  hoard restore --target /tmp/check 20201204-01482-abcde`
}

func (c *Command) Flags(fs *flag.FlagSet) {
	fs.StringVar(&c.target, "target", "", "restore target directory")
	fs.DurationVar(&c.timeout, "timeout", 0, "decoder timeout")
}

func (c *Command) Run(ctx *command.Context) error {
	if len(ctx.Args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	id := ctx.Args[0]

	opts := ctx.Options
	opts.Timeout = c.timeout

	engine, err := command.OpenEngine(opts)
	if err != nil {
		return err
	}

	if !opts.Quiet {
		spinner := progress.NewSpinner("restore " + id)
		defer spinner.Finish()
		engine.Reporter = spinner
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return engine.Restore(runCtx, id, c.target)
}

func init() {
	command.Register(&Command{})
}
