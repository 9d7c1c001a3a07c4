package snapshotcmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/keshon/hoard/internal/command"
	"github.com/keshon/hoard/internal/progress"
)

type Command struct {
	timeout time.Duration
}

func (c *Command) Name() string      { return "snapshot" }
func (c *Command) Aliases() []string { return []string{"snap"} }
func (c *Command) Usage() string     { return "snapshot [options]" }
func (c *Command) Brief() string     { return "Record a new version of the working tree" }
func (c *Command) Help() string {
	return `Record a new version of the working tree into the repository.

Walks the tree honoring .hoard/ignore, reuses blocks already present
in the repository, encodes changed files through the configured
encode-command, and appends a version to the archive.

Options:
      --repo <name>       Repository section to snapshot into.
      --jobs <n>          Parallel block encodes (default 1).
      --timeout <dur>     Per-file encoder timeout (default 60s).
      --quiet             No progress output.

Examples:
  hoard snapshot
  hoard snapshot --jobs 4 --repo offsite`
}

func (c *Command) Flags(fs *flag.FlagSet) {
	fs.DurationVar(&c.timeout, "timeout", 0, "encoder timeout")
}

func (c *Command) Run(ctx *command.Context) error {
	opts := ctx.Options
	opts.Timeout = c.timeout

	engine, err := command.OpenEngine(opts)
	if err != nil {
		return err
	}

	if !opts.Quiet {
		spinner := progress.NewSpinner("snapshot")
		defer spinner.Finish()
		engine.Reporter = spinner
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	v, err := engine.Create(runCtx)
	if err != nil {
		return err
	}

	fmt.Printf("%s  %d entries, %s tree, %s stored\n",
		v.ID, v.TreeCount,
		humanize.IBytes(uint64(v.TreeSize)),
		humanize.IBytes(uint64(v.Size)))
	return nil
}

func init() {
	command.Register(&Command{})
}
