package version

import (
	"fmt"
	"time"

	"github.com/multiformats/go-multihash"

	"github.com/keshon/hoard/internal/identity"
	"github.com/keshon/hoard/internal/tree"
)

// Entry is one row of a version index. Size is meaningful for files,
// Target for symlinks; ContentID is set for files with content and
// CodedID pairs with it once the encoded block is known or planned.
type Entry struct {
	Path       string
	Kind       tree.Kind
	Size       int64
	Perm       tree.Permissions
	ModifiedAt time.Time
	ContentID  multihash.Multihash
	CodedID    multihash.Multihash
	Target     string
}

// FromStat lifts a walker stat into an index entry.
func FromStat(st tree.Stat) Entry {
	return Entry{
		Path:       st.Path,
		Kind:       st.Kind,
		Size:       st.Size,
		Perm:       st.Perm,
		ModifiedAt: st.ModifiedAt,
		Target:     st.Target,
	}
}

// InvalidIndexError reports an entry that fails validation before
// write.
type InvalidIndexError struct {
	Path   string
	Reason string
}

func (e *InvalidIndexError) Error() string {
	return fmt.Sprintf("invalid index entry %q: %s", e.Path, e.Reason)
}

// Validate checks the required fields. Unknown entries carry only a
// path; every other kind needs a modification time, and symlinks a
// target.
func (e Entry) Validate() error {
	if e.Path == "" {
		return &InvalidIndexError{Path: e.Path, Reason: "missing path"}
	}
	if e.Kind == tree.KindUnknown {
		return nil
	}
	if e.ModifiedAt.IsZero() {
		return &InvalidIndexError{Path: e.Path, Reason: "missing modified-at"}
	}
	switch e.Kind {
	case tree.KindSymlink:
		if e.Target == "" {
			return &InvalidIndexError{Path: e.Path, Reason: "symlink without target"}
		}
	case tree.KindFile:
		if e.Size < 0 {
			return &InvalidIndexError{Path: e.Path, Reason: "negative size"}
		}
		if len(e.CodedID) > 0 && len(e.ContentID) == 0 {
			return &InvalidIndexError{Path: e.Path, Reason: "coded-id without content-id"}
		}
	}
	return nil
}

// Equal compares all recorded fields of two entries.
func (e Entry) Equal(other Entry) bool {
	return e.Path == other.Path &&
		e.Kind == other.Kind &&
		e.Size == other.Size &&
		e.Perm == other.Perm &&
		e.ModifiedAt.Equal(other.ModifiedAt) &&
		identity.Equal(e.ContentID, other.ContentID) &&
		identity.Equal(e.CodedID, other.CodedID) &&
		e.Target == other.Target
}

// Version is an immutable snapshot of a working tree.
type Version struct {
	ID        string
	CreatedAt time.Time
	// Size is the stored (encoded) byte size of the version file.
	Size int64
	// TreeCount is the number of index entries.
	TreeCount int
	// TreeSize is the sum of plaintext file sizes.
	TreeSize int64
	Index    []Entry
}

// Totals recomputes TreeCount and TreeSize from the index.
func (v *Version) Totals() {
	v.TreeCount = len(v.Index)
	v.TreeSize = 0
	for _, e := range v.Index {
		if e.Kind == tree.KindFile {
			v.TreeSize += e.Size
		}
	}
}
