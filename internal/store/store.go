// Package store defines the two repository capabilities the snapshot
// engine consumes: a content-addressed BlockStore and a per-archive
// VersionStore. Memory and filesystem implementations are provided.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/multiformats/go-multihash"
)

var (
	ErrBlockNotFound   = errors.New("block not found")
	ErrArchiveNotFound = errors.New("archive not found")
	ErrVersionNotFound = errors.New("version not found")
	ErrVersionExists   = errors.New("version already exists")
)

// ConfigName is the reserved entry name inside an archive directory.
const ConfigName = "config"

// ReservedNameError reports an attempt to store a version under a
// reserved name.
type ReservedNameError struct {
	Name string
}

func (e *ReservedNameError) Error() string {
	return fmt.Sprintf("version name %q is reserved", e.Name)
}

// BlockStore is a set-like content-addressed object repository. Put
// assigns the address; duplicate puts are idempotent.
type BlockStore interface {
	// Get returns the block bytes for id, or ErrBlockNotFound.
	Get(ctx context.Context, id multihash.Multihash) (io.ReadCloser, error)

	// GetBatch reports which of the given ids exist, keyed by hex
	// form.
	GetBatch(ctx context.Context, ids []multihash.Multihash) (map[string]struct{}, error)

	// Put stores the stream and returns its assigned content address.
	Put(ctx context.Context, r io.Reader) (multihash.Multihash, error)
}

// VersionMeta describes one stored version.
type VersionMeta struct {
	ID        string
	Size      int64
	CreatedAt time.Time
}

// ArchiveInfo describes one archive and its versions, oldest first.
type ArchiveInfo struct {
	Name     string
	Versions []VersionMeta
}

// VersionStore keeps named, append-only version files per archive.
type VersionStore interface {
	// ListArchives returns archives whose name contains query (empty
	// query matches all), sorted by name.
	ListArchives(ctx context.Context, query string) ([]ArchiveInfo, error)

	// GetArchive returns one archive, or ErrArchiveNotFound.
	GetArchive(ctx context.Context, name string) (*ArchiveInfo, error)

	// StatVersion returns metadata for one version, or
	// ErrVersionNotFound.
	StatVersion(ctx context.Context, archive, id string) (*VersionMeta, error)

	// ReadVersion opens the stored version bytes, or
	// ErrVersionNotFound.
	ReadVersion(ctx context.Context, archive, id string) (io.ReadCloser, error)

	// StoreVersion writes the version bytes under id. Storing a
	// reserved name fails with ReservedNameError; an existing id
	// fails with ErrVersionExists. The write is atomic: readers never
	// observe a partial version.
	StoreVersion(ctx context.Context, archive, id string, r io.Reader) (*VersionMeta, error)

	// RemoveVersion deletes one version, reporting whether it
	// existed.
	RemoveVersion(ctx context.Context, archive, id string) (bool, error)
}

// BlockKey is the canonical map key for a block id.
func BlockKey(id multihash.Multihash) string {
	return id.HexString()
}
