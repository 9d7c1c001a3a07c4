package command

import (
	"os"

	"github.com/keshon/hoard/internal/config"
	"github.com/keshon/hoard/internal/fs"
	"github.com/keshon/hoard/internal/progress"
	"github.com/keshon/hoard/internal/snapshot"
)

// OpenEngine discovers the working tree above the current directory,
// loads its archive, and wires a snapshot engine over the configured
// repository.
func OpenEngine(opts config.Options) (*snapshot.Engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root, err := config.DiscoverRoot(cwd)
	if err != nil {
		return nil, err
	}

	archive, err := config.LoadArchive(root, opts)
	if err != nil {
		return nil, err
	}

	fsys := fs.NewOSFS()
	blocks, versions, err := config.OpenStores(archive, fsys)
	if err != nil {
		return nil, err
	}

	engine := snapshot.NewEngine(archive, blocks, versions, opts, progress.Discard{})
	return engine, nil
}
