package command

import (
	"flag"
	"fmt"
	"os"

	"github.com/keshon/hoard/internal/config"
)

// RunCLI parses arguments, resolves the subcommand, applies its
// flags, and runs it. Returns the process exit code.
func RunCLI(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 0
	}

	name := args[0]
	if name == "help" || name == "-h" || name == "--help" {
		if len(args) > 1 {
			if cmd, ok := Get(args[1]); ok {
				fmt.Println(cmd.Help())
				return 0
			}
		}
		printUsage()
		return 0
	}

	cmd, ok := Get(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", name)
		printUsage()
		return 1
	}

	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	opts := config.DefaultOptions()
	fs.StringVar(&opts.Repository, "repo", "", "repository name from the archive config")
	fs.IntVar(&opts.Concurrency, "jobs", 1, "parallel block encodes")
	fs.BoolVar(&opts.Quiet, "quiet", false, "suppress progress output")
	cmd.Flags(fs)

	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}

	ctx := &Context{
		Args:    fs.Args(),
		Flags:   fs,
		Options: opts,
	}

	if err := cmd.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Println("Usage: hoard <command> [options] [args...]")
	fmt.Println("Commands:")
	for _, cmd := range All() {
		fmt.Printf("  %-10s %s\n", cmd.Name(), cmd.Brief())
	}
	fmt.Println("Run 'hoard help <command>' for details.")
}
