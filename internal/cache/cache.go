// Package cache keeps the persistent path → (size, mtime, content-id)
// map that lets repeat snapshots skip re-hashing unchanged files. The
// cache is best-effort: load failures fall back to an empty cache and
// never abort a snapshot.
package cache

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/multiformats/go-multihash"
	"github.com/zeebo/xxh3"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/keshon/hoard/internal/fs"
	"github.com/keshon/hoard/internal/logging"
	"github.com/keshon/hoard/internal/tsv"
)

var log = logging.For("cache")

// Entry is one cached identity.
type Entry struct {
	Size       int64
	ModifiedAt time.Time
	ContentID  multihash.Multihash
}

// Tree maps working-tree relative paths to cached identities.
type Tree struct {
	entries map[string]Entry
	// fingerprint of the serialized form at load time; zero for a
	// cache that did not exist on disk
	loadedSum xxh3.Uint128
}

// NewTree returns an empty cache.
func NewTree() *Tree {
	return &Tree{entries: make(map[string]Entry)}
}

// Lookup returns the cached content-id for path, but only when both
// size and mtime match the live stat exactly.
func (t *Tree) Lookup(path string, size int64, modifiedAt time.Time) (multihash.Multihash, bool) {
	e, ok := t.entries[path]
	if !ok {
		return nil, false
	}
	if e.Size != size || !e.ModifiedAt.Equal(modifiedAt) {
		return nil, false
	}
	return e.ContentID, true
}

// Put records an identity. Entries without a content-id are dropped on
// save, so callers may skip those.
func (t *Tree) Put(path string, e Entry) {
	t.entries[path] = e
}

// Len reports the number of cached entries.
func (t *Tree) Len() int {
	return len(t.entries)
}

const (
	colPath       = "path"
	colSize       = "size"
	colModifiedAt = "modified-at"
	colContentID  = "content-id"
)

// Load reads the cache file at path. A missing or unreadable file
// yields an empty cache; rows with blank cells are dropped.
func Load(fsys fs.FS, path string) *Tree {
	t := NewTree()
	rc, err := fsys.Open(path)
	if err != nil {
		if !fsys.IsNotExist(err) {
			log.WithError(err).WithField("path", path).Warn("tree cache unreadable, rescanning")
		}
		return t
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("tree cache unreadable, rescanning")
		return t
	}

	if err := t.parse(data); err != nil {
		log.WithError(err).WithField("path", path).Warn("tree cache malformed, rescanning")
		return NewTree()
	}
	t.loadedSum = xxh3.Hash128(data)
	return t
}

func (t *Tree) parse(data []byte) error {
	r, err := tsv.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if err := r.Columns(colPath, colSize, colModifiedAt, colContentID); err != nil {
		return err
	}
	for {
		row, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		path := row.String(colPath)
		size, sizeOK, err := row.Int64(colSize)
		if err != nil {
			return err
		}
		mod, modOK, err := row.Time(colModifiedAt)
		if err != nil {
			return err
		}
		id, err := row.Multihash(colContentID)
		if err != nil {
			return err
		}
		if path == "" || !sizeOK || !modOK || len(id) == 0 {
			continue
		}
		t.entries[path] = Entry{Size: size, ModifiedAt: mod, ContentID: id}
	}
}

func (t *Tree) serialize() ([]byte, error) {
	var buf bytes.Buffer
	w, err := tsv.NewWriter(&buf, colPath, colSize, colModifiedAt, colContentID)
	if err != nil {
		return nil, err
	}

	paths := maps.Keys(t.entries)
	slices.Sort(paths)
	for _, p := range paths {
		e := t.entries[p]
		if len(e.ContentID) == 0 {
			continue
		}
		err := w.WriteRow(p, tsv.FormatInt(e.Size), tsv.FormatTime(e.ModifiedAt), tsv.FormatMultihash(e.ContentID))
		if err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SetBaseline adopts the load-time fingerprint of another cache, so
// that Save compares against what that cache saw on disk. Used when a
// snapshot rebuilds the cache from scratch.
func (t *Tree) SetBaseline(from *Tree) {
	t.loadedSum = from.loadedSum
}

// Save persists the cache to path, but only when its serialized form
// differs from what Load saw. Returns true when a write happened.
func (t *Tree) Save(fsys fs.FS, path string) (bool, error) {
	data, err := t.serialize()
	if err != nil {
		return false, fmt.Errorf("serialize tree cache: %w", err)
	}
	if xxh3.Hash128(data) == t.loadedSum {
		return false, nil
	}
	if err := fs.WriteFileAtomic(fsys, path, data, 0o644); err != nil {
		return false, fmt.Errorf("write tree cache %q: %w", path, err)
	}
	return true, nil
}
