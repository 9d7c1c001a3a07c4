package version

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/keshon/hoard/internal/tree"
	"github.com/keshon/hoard/internal/tsv"
)

// FormatTag is the first line of every serialized version index.
const FormatTag = "hoard.data.version/v1"

const formatPrefix = "hoard.data.version/"

// UnsupportedFormatError reports an unrecognized version file tag.
type UnsupportedFormatError struct {
	Tag string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported version format %q", e.Tag)
}

var columns = []string{
	"path", "type", "size", "permissions", "modified-at",
	"content-id", "coded-id", "target",
}

// WriteIndex serializes entries in their given order: format tag,
// header row, one TSV row per entry. Entries are validated first and
// an invalid one aborts the write.
func WriteIndex(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(FormatTag + "\n"); err != nil {
		return err
	}
	tw, err := tsv.NewWriter(bw, columns...)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := tw.WriteRow(encodeEntry(e)...); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return bw.Flush()
}

func encodeEntry(e Entry) []string {
	size := ""
	if e.Kind == tree.KindFile {
		size = tsv.FormatInt(e.Size)
	}
	perm := ""
	mod := ""
	if e.Kind != tree.KindUnknown {
		perm = tsv.FormatInt(int64(e.Perm))
		mod = tsv.FormatTime(e.ModifiedAt)
	}
	target := ""
	if e.Kind == tree.KindSymlink {
		target = e.Target
	}
	return []string{
		e.Path,
		e.Kind.String(),
		size,
		perm,
		mod,
		tsv.FormatMultihash(e.ContentID),
		tsv.FormatMultihash(e.CodedID),
		target,
	}
}

// ReadIndex parses a serialized version index. The format tag is
// checked first; unknown tags fail with UnsupportedFormatError.
func ReadIndex(r io.Reader) ([]Entry, error) {
	br := bufio.NewReader(r)
	tag, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	tag = strings.TrimSuffix(tag, "\n")
	if tag != FormatTag {
		return nil, &UnsupportedFormatError{Tag: strings.TrimPrefix(tag, formatPrefix)}
	}

	tr, err := tsv.NewReader(br)
	if err != nil {
		return nil, err
	}
	if err := tr.Columns(columns...); err != nil {
		return nil, err
	}

	var entries []Entry
	for {
		row, err := tr.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		e, err := decodeEntry(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
}

func decodeEntry(row tsv.Row) (Entry, error) {
	var e Entry

	path, err := row.RequireString("path")
	if err != nil {
		return e, err
	}
	kindName, err := row.RequireString("type")
	if err != nil {
		return e, err
	}
	kind, err := tree.ParseKind(kindName)
	if err != nil {
		return e, &tsv.MalformedRowError{Column: "type", Reason: err.Error()}
	}

	e.Path = path
	e.Kind = kind

	if size, ok, err := row.Int64("size"); err != nil {
		return e, err
	} else if ok {
		e.Size = size
	}
	if perm, ok, err := row.Int64("permissions"); err != nil {
		return e, err
	} else if ok {
		e.Perm = tree.Permissions(perm)
	}
	if mod, ok, err := row.Time("modified-at"); err != nil {
		return e, err
	} else if ok {
		e.ModifiedAt = mod
	}
	if e.ContentID, err = row.Multihash("content-id"); err != nil {
		return e, err
	}
	if e.CodedID, err = row.Multihash("coded-id"); err != nil {
		return e, err
	}
	e.Target = row.String("target")

	return e, nil
}

// SortIndex orders entries by path ascending, the canonical index
// order.
func SortIndex(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
}
