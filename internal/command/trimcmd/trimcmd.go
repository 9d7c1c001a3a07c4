package trimcmd

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/keshon/hoard/internal/command"
	"github.com/keshon/hoard/internal/snapshot"
)

type Command struct {
	keepVersions int
	keepDays     int
	dryRun       bool
}

func (c *Command) Name() string      { return "trim" }
func (c *Command) Aliases() []string { return []string{"prune"} }
func (c *Command) Usage() string     { return "trim [options]" }
func (c *Command) Brief() string     { return "Remove versions beyond the retention policy" }
func (c *Command) Help() string {
	return `Remove old versions from the repository.

The retention policy comes from trim.keep-versions and trim.keep-days
in the archive config; flags override it. A version survives when
either rule keeps it. Blocks are left in place for reuse.

Options:
      --keep-versions <n>  Keep the newest N versions.
      --keep-days <d>      Keep versions newer than D days.
      --dry-run            Only print what would be removed.
      --repo <name>        Repository section to trim.

Examples:
  hoard trim
  hoard trim --keep-versions 30 --dry-run`
}

func (c *Command) Flags(fs *flag.FlagSet) {
	fs.IntVar(&c.keepVersions, "keep-versions", 0, "keep newest N versions")
	fs.IntVar(&c.keepDays, "keep-days", 0, "keep versions newer than D days")
	fs.BoolVar(&c.dryRun, "dry-run", false, "print removals without applying")
}

func (c *Command) Run(ctx *command.Context) error {
	engine, err := command.OpenEngine(ctx.Options)
	if err != nil {
		return err
	}

	policy := snapshot.TrimPolicy{
		KeepVersions: engine.Archive.Repo.TrimKeepVersions,
		KeepDays:     engine.Archive.Repo.TrimKeepDays,
	}
	if c.keepVersions > 0 {
		policy.KeepVersions = c.keepVersions
	}
	if c.keepDays > 0 {
		policy.KeepDays = c.keepDays
	}
	if !policy.Enabled() {
		return fmt.Errorf("no retention policy configured; set trim.keep-versions or trim.keep-days")
	}

	now := time.Now()
	runCtx := context.Background()

	if c.dryRun {
		info, err := engine.Versions.GetArchive(runCtx, engine.Archive.Name)
		if err != nil {
			return err
		}
		for _, meta := range snapshot.PlanTrim(info.Versions, policy, now) {
			fmt.Printf("would remove %s\n", meta.ID)
		}
		return nil
	}

	removed, err := engine.Trim(runCtx, policy, now)
	for _, id := range removed {
		fmt.Printf("removed %s\n", id)
	}
	return err
}

func init() {
	command.Register(&Command{})
}
