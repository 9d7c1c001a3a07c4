package versionscmd

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/keshon/hoard/internal/command"
)

type Command struct {
	limit int
}

func (c *Command) Name() string      { return "versions" }
func (c *Command) Aliases() []string { return []string{"list", "log"} }
func (c *Command) Usage() string     { return "versions [options]" }
func (c *Command) Brief() string     { return "List the archive's stored versions" }
func (c *Command) Help() string {
	return `List the versions stored for this archive, oldest first.

Options:
  -n <count>       Show only the newest N versions.
      --repo <name>  Repository section to read.

Examples:
  hoard versions
  hoard versions -n 10`
}

func (c *Command) Flags(fs *flag.FlagSet) {
	fs.IntVar(&c.limit, "n", 0, "limit to newest N versions")
}

func (c *Command) Run(ctx *command.Context) error {
	engine, err := command.OpenEngine(ctx.Options)
	if err != nil {
		return err
	}

	versions, err := engine.List(context.Background())
	if err != nil {
		return err
	}

	if c.limit > 0 && c.limit < len(versions) {
		versions = versions[len(versions)-c.limit:]
	}

	if len(versions) == 0 {
		fmt.Println("No versions stored yet")
		return nil
	}
	for _, v := range versions {
		fmt.Printf("%s  %s  %s\n",
			v.ID,
			v.CreatedAt.UTC().Format(time.RFC3339),
			humanize.IBytes(uint64(v.Size)))
	}
	return nil
}

func init() {
	command.Register(&Command{})
}
