package command

import (
	"flag"

	"github.com/keshon/hoard/internal/config"
)

// Command represents one cli subcommand.
type Command interface {
	Name() string
	Aliases() []string
	Usage() string
	Brief() string
	Help() string
	Flags(fs *flag.FlagSet)
	Run(ctx *Context) error
}

// Context carries the parsed invocation into a command.
type Context struct {
	Args    []string
	Flags   *flag.FlagSet
	Options config.Options
}
