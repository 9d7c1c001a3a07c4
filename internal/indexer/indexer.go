// Package indexer turns a working tree walk into the deterministic,
// sorted plaintext index that the version orchestrator stores.
package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/multiformats/go-multihash"

	"github.com/keshon/hoard/internal/cache"
	"github.com/keshon/hoard/internal/config"
	"github.com/keshon/hoard/internal/fs"
	"github.com/keshon/hoard/internal/identity"
	"github.com/keshon/hoard/internal/ignore"
	"github.com/keshon/hoard/internal/logging"
	"github.com/keshon/hoard/internal/progress"
	"github.com/keshon/hoard/internal/tree"
	"github.com/keshon/hoard/internal/version"
	"github.com/keshon/hoard/internal/walk"
)

var log = logging.For("indexer")

// priorVersions bounds how many recent versions feed the coded-id
// lookup.
const priorVersions = 3

// Indexer builds plaintext indexes for one working tree.
type Indexer struct {
	Root     string
	Matcher  *ignore.Matcher
	FS       fs.FS
	Reporter progress.Reporter
}

// New returns an Indexer over the OS filesystem.
func New(root string, matcher *ignore.Matcher, reporter progress.Reporter) *Indexer {
	return &Indexer{Root: root, Matcher: matcher, FS: fs.NewOSFS(), Reporter: reporter}
}

// Build walks the tree and produces the sorted index. Content
// identities come from the tree cache when (size, mtime) match and
// from streaming the file otherwise. Known coded-ids from recent
// versions are attached speculatively.
func (ix *Indexer) Build() ([]version.Entry, error) {
	treeCache := cache.Load(ix.FS, config.TreeCachePath(ix.Root))
	coded := ix.codedLookup()

	var entries []version.Entry
	first := true

	err := walk.Tree(ix.Root, ix.Matcher, ix.Reporter, func(st tree.Stat) error {
		if first {
			// the walker yields the root itself first; the index
			// starts below it
			first = false
			return nil
		}

		e := version.FromStat(st)
		if st.Kind == tree.KindFile && st.Size > 0 {
			id, err := ix.contentID(treeCache, st)
			if err != nil {
				return err
			}
			e.ContentID = id
			if codedID, ok := coded[idKey(id)]; ok {
				e.CodedID = codedID
			}
		}
		progress.Emit(ix.Reporter, progress.Event{Kind: progress.EventScanned, Path: st.Path, Bytes: st.Size})
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}

	version.SortIndex(entries)

	ix.saveCache(treeCache, entries)
	return entries, nil
}

func (ix *Indexer) contentID(treeCache *cache.Tree, st tree.Stat) (multihash.Multihash, error) {
	if id, ok := treeCache.Lookup(st.Path, st.Size, st.ModifiedAt); ok {
		return id, nil
	}

	f, err := os.Open(filepath.Join(ix.Root, st.Path))
	if err != nil {
		return nil, fmt.Errorf("hash %q: %w", st.Path, err)
	}
	defer f.Close()

	id, n, err := identity.Sum(f)
	if err != nil {
		return nil, fmt.Errorf("hash %q: %w", st.Path, err)
	}
	progress.Emit(ix.Reporter, progress.Event{Kind: progress.EventHashed, Path: st.Path, Bytes: n})
	return id, nil
}

// codedLookup folds the most recent local versions into a
// content-id → coded-id map; entries from newer versions win.
func (ix *Indexer) codedLookup() map[string]multihash.Multihash {
	coded := make(map[string]multihash.Multihash)

	ids, err := LocalVersionIDs(ix.Root)
	if err != nil {
		log.WithError(err).Debug("no local versions for coded-id reuse")
		return coded
	}
	if len(ids) > priorVersions {
		ids = ids[len(ids)-priorVersions:]
	}

	// oldest first, so newer versions overwrite duplicates
	for _, id := range ids {
		index, err := ReadLocalIndex(ix.Root, id)
		if err != nil {
			log.WithError(err).WithField("version", id).Warn("skipping unreadable local version")
			continue
		}
		for _, e := range index {
			if len(e.ContentID) > 0 && len(e.CodedID) > 0 {
				coded[idKey(e.ContentID)] = e.CodedID
			}
		}
	}
	return coded
}

func (ix *Indexer) saveCache(loaded *cache.Tree, entries []version.Entry) {
	rebuilt := cache.NewTree()
	for _, e := range entries {
		if len(e.ContentID) == 0 {
			continue
		}
		rebuilt.Put(e.Path, cache.Entry{Size: e.Size, ModifiedAt: e.ModifiedAt, ContentID: e.ContentID})
	}

	// write only when the rebuilt cache differs from what was loaded
	rebuilt.SetBaseline(loaded)
	if _, err := rebuilt.Save(ix.FS, config.TreeCachePath(ix.Root)); err != nil {
		log.WithError(err).Warn("tree cache not persisted")
	}
}

func idKey(id multihash.Multihash) string {
	return id.HexString()
}

// LocalVersionIDs lists the version ids retained in the working
// tree's versions directory, sorted ascending (oldest first).
func LocalVersionIDs(root string) ([]string, error) {
	entries, err := os.ReadDir(config.VersionsPath(root))
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := version.ParseID(e.Name()); err != nil {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// ReadLocalIndex parses the plaintext index retained at
// .hoard/versions/<id>.
func ReadLocalIndex(root, id string) ([]version.Entry, error) {
	f, err := os.Open(config.VersionPath(root, id))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return version.ReadIndex(f)
}
