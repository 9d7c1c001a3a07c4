package command

import "sort"

var registry = map[string]Command{}

// Register adds a command under its name and aliases. Called from the
// command packages' init functions.
func Register(cmd Command) {
	registry[cmd.Name()] = cmd
	for _, alias := range cmd.Aliases() {
		registry[alias] = cmd
	}
}

// Get resolves a command by name or alias.
func Get(name string) (Command, bool) {
	cmd, ok := registry[name]
	return cmd, ok
}

// All returns the registered commands, deduplicated and sorted by
// name.
func All() []Command {
	seen := map[string]bool{}
	var cmds []Command
	for _, cmd := range registry {
		if seen[cmd.Name()] {
			continue
		}
		seen[cmd.Name()] = true
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name() < cmds[j].Name() })
	return cmds
}
