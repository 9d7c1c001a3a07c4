package initcmd

import (
	"flag"
	"fmt"
	"os"

	"github.com/keshon/hoard/internal/command"
	"github.com/keshon/hoard/internal/config"
)

type Command struct {
	name string
	repo string
}

func (c *Command) Name() string      { return "init" }
func (c *Command) Aliases() []string { return []string{"initialize"} }
func (c *Command) Usage() string     { return "init --repo-root <path> [--name <name>]" }
func (c *Command) Brief() string     { return "Initialize a working tree for snapshots" }
func (c *Command) Help() string {
	return `Initialize the current directory as a hoard working tree.

Creates the .hoard control directory with a config file, an ignore
file holding only a comment line, a local versions directory, and the
tree cache location.

Options:
      --name <name>       Archive name (default: directory basename).
      --repo-root <path>  Filesystem repository root to snapshot into.

Examples:
  hoard init --repo-root ~/backups/repo
  hoard init --repo-root /mnt/vault --name notes`
}

func (c *Command) Flags(fs *flag.FlagSet) {
	fs.StringVar(&c.name, "name", "", "archive name")
	fs.StringVar(&c.repo, "repo-root", "", "repository root path")
}

func (c *Command) Run(ctx *command.Context) error {
	if c.repo == "" {
		return fmt.Errorf("a repository root is required (--repo-root <path>)")
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	if err := config.InitArchive(cwd, c.name, c.repo); err != nil {
		return err
	}

	fmt.Printf("Initialized archive in %s\n", config.ControlPath(cwd))
	return nil
}

func init() {
	command.Register(&Command{})
}
