// Package walk produces a depth-first sequence of file stats for a
// working tree, honoring the compiled ignore rules.
package walk

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/keshon/hoard/internal/ignore"
	"github.com/keshon/hoard/internal/logging"
	"github.com/keshon/hoard/internal/progress"
	"github.com/keshon/hoard/internal/tree"
)

var log = logging.For("walk")

// Func receives each stat in traversal order. Returning an error stops
// the walk.
type Func func(st tree.Stat) error

// Tree walks root depth-first and calls fn for every entry that is not
// ignored. The root itself is emitted first with an empty relative
// path. Ignored directories are pruned. Symlinks are never followed.
// Errors reading a subdirectory skip that subtree, emit a progress
// event, and continue.
func Tree(root string, matcher *ignore.Matcher, reporter progress.Reporter, fn Func) error {
	rootStat, err := tree.Lstat(root, "")
	if err != nil {
		return err
	}
	if err := fn(rootStat); err != nil {
		return err
	}
	return walkDir(root, "", matcher, reporter, fn)
}

func walkDir(absDir, relDir string, matcher *ignore.Matcher, reporter progress.Reporter, fn Func) error {
	entries, err := os.ReadDir(absDir)
	if err != nil {
		log.WithError(err).WithField("dir", absDir).Warn("skipping unreadable directory")
		progress.Emit(reporter, progress.Event{Kind: progress.EventSkipped, Path: absDir, Err: err})
		return nil
	}

	// stable traversal order
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		abs := filepath.Join(absDir, e.Name())
		rel := filepath.Join(relDir, e.Name())

		if matcher != nil && matcher.Match(abs) {
			continue
		}

		st, err := tree.Lstat(abs, rel)
		if err != nil {
			log.WithError(err).WithField("path", abs).Warn("skipping unreadable entry")
			progress.Emit(reporter, progress.Event{Kind: progress.EventSkipped, Path: abs, Err: err})
			continue
		}

		if err := fn(st); err != nil {
			return err
		}

		// Descend into real directories only; a symlink to a directory
		// is recorded but never entered.
		if st.Kind == tree.KindDir {
			if err := walkDir(abs, rel, matcher, reporter, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
