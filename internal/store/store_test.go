package store

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"

	"github.com/keshon/hoard/internal/fs"
	"github.com/keshon/hoard/internal/identity"
	"github.com/keshon/hoard/internal/version"
)

func newFileStores(t *testing.T) (BlockStore, VersionStore) {
	t.Helper()
	fsys := fs.NewMemoryFS()
	require.NoError(t, InitFileRepository(fsys, "repo"))
	return NewFileBlockStore(fsys, "repo"), NewFileVersionStore(fsys, "repo")
}

func blockStores(t *testing.T) map[string]BlockStore {
	blocks, _ := newFileStores(t)
	return map[string]BlockStore{
		"memory": NewMemoryBlockStore(),
		"file":   blocks,
	}
}

func versionStores(t *testing.T) map[string]VersionStore {
	_, versions := newFileStores(t)
	return map[string]VersionStore{
		"memory": NewMemoryVersionStore(),
		"file":   versions,
	}
}

func TestBlockStorePutGet(t *testing.T) {
	for name, blocks := range blockStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			payload := []byte("some encoded bytes")

			id, err := blocks.Put(ctx, bytes.NewReader(payload))
			require.NoError(t, err)

			want, err := identity.SumBytes(payload)
			require.NoError(t, err)
			require.True(t, identity.Equal(want, id), "put must assign the content address")

			rc, err := blocks.Get(ctx, id)
			require.NoError(t, err)
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			require.Equal(t, payload, got)
		})
	}
}

func TestBlockStorePutIdempotent(t *testing.T) {
	for name, blocks := range blockStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, err := blocks.Put(ctx, strings.NewReader("same"))
			require.NoError(t, err)
			b, err := blocks.Put(ctx, strings.NewReader("same"))
			require.NoError(t, err)
			require.True(t, identity.Equal(a, b), "second put must return the prior id")
		})
	}
}

func TestBlockStoreGetMissing(t *testing.T) {
	for name, blocks := range blockStores(t) {
		t.Run(name, func(t *testing.T) {
			id, err := identity.SumBytes([]byte("never stored"))
			require.NoError(t, err)
			_, err = blocks.Get(context.Background(), id)
			require.ErrorIs(t, err, ErrBlockNotFound)
		})
	}
}

func TestBlockStoreGetBatch(t *testing.T) {
	for name, blocks := range blockStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			stored, err := blocks.Put(ctx, strings.NewReader("present"))
			require.NoError(t, err)
			missing, err := identity.SumBytes([]byte("absent"))
			require.NoError(t, err)

			present, err := blocks.GetBatch(ctx, []multihash.Multihash{stored, missing})
			require.NoError(t, err)
			require.Contains(t, present, BlockKey(stored))
			require.NotContains(t, present, BlockKey(missing))
		})
	}
}

func versionID(t *testing.T, at time.Time) string {
	t.Helper()
	id, err := version.NewID(at)
	require.NoError(t, err)
	return id
}

func TestVersionStoreRoundTrip(t *testing.T) {
	for name, versions := range versionStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			at := time.Date(2024, 3, 10, 6, 30, 0, 0, time.UTC)
			id := versionID(t, at)

			meta, err := versions.StoreVersion(ctx, "docs", id, strings.NewReader("payload"))
			require.NoError(t, err)
			require.Equal(t, id, meta.ID)
			require.EqualValues(t, 7, meta.Size)
			require.Equal(t, at, meta.CreatedAt)

			stat, err := versions.StatVersion(ctx, "docs", id)
			require.NoError(t, err)
			require.EqualValues(t, 7, stat.Size)

			rc, err := versions.ReadVersion(ctx, "docs", id)
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			require.Equal(t, "payload", string(data))
		})
	}
}

func TestVersionStoreReservedName(t *testing.T) {
	for name, versions := range versionStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := versions.StoreVersion(context.Background(), "docs", ConfigName, strings.NewReader("x"))
			var reserved *ReservedNameError
			require.ErrorAs(t, err, &reserved)
		})
	}
}

func TestVersionStoreDuplicateID(t *testing.T) {
	for name, versions := range versionStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := versionID(t, time.Now())
			_, err := versions.StoreVersion(ctx, "docs", id, strings.NewReader("a"))
			require.NoError(t, err)
			_, err = versions.StoreVersion(ctx, "docs", id, strings.NewReader("b"))
			require.ErrorIs(t, err, ErrVersionExists)
		})
	}
}

func TestVersionStoreRemove(t *testing.T) {
	for name, versions := range versionStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := versionID(t, time.Now())
			_, err := versions.StoreVersion(ctx, "docs", id, strings.NewReader("a"))
			require.NoError(t, err)

			ok, err := versions.RemoveVersion(ctx, "docs", id)
			require.NoError(t, err)
			require.True(t, ok)

			ok, err = versions.RemoveVersion(ctx, "docs", id)
			require.NoError(t, err)
			require.False(t, ok)

			_, err = versions.StatVersion(ctx, "docs", id)
			require.ErrorIs(t, err, ErrVersionNotFound)
		})
	}
}

func TestVersionStoreListArchives(t *testing.T) {
	for name, versions := range versionStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := versions.StoreVersion(ctx, "alpha", versionID(t, time.Now()), strings.NewReader("a"))
			require.NoError(t, err)
			_, err = versions.StoreVersion(ctx, "beta", versionID(t, time.Now()), strings.NewReader("b"))
			require.NoError(t, err)

			all, err := versions.ListArchives(ctx, "")
			require.NoError(t, err)
			require.Len(t, all, 2)
			require.Equal(t, "alpha", all[0].Name)

			filtered, err := versions.ListArchives(ctx, "bet")
			require.NoError(t, err)
			require.Len(t, filtered, 1)
			require.Equal(t, "beta", filtered[0].Name)

			_, err = versions.GetArchive(ctx, "gamma")
			require.ErrorIs(t, err, ErrArchiveNotFound)
		})
	}
}

func TestVersionStoreVersionsSortedOldestFirst(t *testing.T) {
	for name, versions := range versionStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			older := versionID(t, time.Date(2023, 1, 1, 8, 0, 0, 0, time.UTC))
			newer := versionID(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))

			// store newest first to prove ordering comes from the ids
			_, err := versions.StoreVersion(ctx, "docs", newer, strings.NewReader("n"))
			require.NoError(t, err)
			_, err = versions.StoreVersion(ctx, "docs", older, strings.NewReader("o"))
			require.NoError(t, err)

			info, err := versions.GetArchive(ctx, "docs")
			require.NoError(t, err)
			require.Len(t, info.Versions, 2)
			require.Equal(t, older, info.Versions[0].ID)
			require.Equal(t, newer, info.Versions[1].ID)
		})
	}
}
