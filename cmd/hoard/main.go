package main

import (
	"os"

	"github.com/keshon/hoard/internal/command"
	_ "github.com/keshon/hoard/internal/command/initcmd"
	_ "github.com/keshon/hoard/internal/command/restorecmd"
	_ "github.com/keshon/hoard/internal/command/snapshotcmd"
	_ "github.com/keshon/hoard/internal/command/trimcmd"
	_ "github.com/keshon/hoard/internal/command/versionscmd"
	"github.com/keshon/hoard/internal/logging"
)

func main() {
	logging.Init()
	os.Exit(command.RunCLI(os.Args[1:]))
}
