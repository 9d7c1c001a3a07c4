package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keshon/hoard/internal/config"
	"github.com/keshon/hoard/internal/identity"
	"github.com/keshon/hoard/internal/indexer"
	"github.com/keshon/hoard/internal/pipe"
	"github.com/keshon/hoard/internal/progress"
	"github.com/keshon/hoard/internal/store"
	"github.com/keshon/hoard/internal/tree"
	"github.com/keshon/hoard/internal/version"
)

func newTestEngine(t *testing.T, encode, decode []string) (*Engine, *store.MemoryBlockStore, *store.MemoryVersionStore) {
	t.Helper()
	root := t.TempDir()
	for _, d := range []string{
		config.VersionsPath(root),
		filepath.Join(config.ControlPath(root), config.CacheDir),
	} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}

	archive := &config.Archive{
		Name: "test",
		Root: root,
		Repo: config.RepositoryConfig{
			Name:          "mem",
			Type:          config.RepoTypeMemory,
			EncodeCommand: encode,
			DecodeCommand: decode,
		},
	}

	blocks := store.NewMemoryBlockStore()
	versions := store.NewMemoryVersionStore()
	engine := NewEngine(archive, blocks, versions, config.DefaultOptions(), progress.Discard{})
	return engine, blocks, versions
}

func catEngine(t *testing.T) (*Engine, *store.MemoryBlockStore, *store.MemoryVersionStore) {
	return newTestEngine(t, []string{"cat"}, []string{"cat"})
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func TestCreateEmptyTree(t *testing.T) {
	engine, blocks, _ := catEngine(t)

	v, err := engine.Create(context.Background())
	require.NoError(t, err)

	require.Empty(t, v.Index)
	require.Equal(t, 0, v.TreeCount)
	require.EqualValues(t, 0, v.TreeSize)
	require.Equal(t, 0, blocks.Len())
	require.Positive(t, v.Size, "the version file itself has stored bytes")

	createdAt, err := version.ParseID(v.ID)
	require.NoError(t, err)
	require.Equal(t, createdAt, v.CreatedAt)
}

func TestCreateSingleFile(t *testing.T) {
	engine, blocks, versions := catEngine(t)
	writeFile(t, engine.Archive.Root, "hello.txt", "hi\n")

	v, err := engine.Create(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, v.TreeCount)
	require.EqualValues(t, 3, v.TreeSize)
	require.Len(t, v.Index, 1)

	e := v.Index[0]
	require.Equal(t, "hello.txt", e.Path)
	require.Equal(t, tree.KindFile, e.Kind)
	require.EqualValues(t, 3, e.Size)

	contentID, err := identity.SumBytes([]byte("hi\n"))
	require.NoError(t, err)
	require.True(t, identity.Equal(contentID, e.ContentID))

	// cat is the identity encoder, so the coded block is the plaintext
	require.True(t, identity.Equal(contentID, e.CodedID))
	require.Equal(t, 1, blocks.Len())

	// version landed in the repository
	info, err := versions.GetArchive(context.Background(), "test")
	require.NoError(t, err)
	require.Len(t, info.Versions, 1)
	require.Equal(t, v.ID, info.Versions[0].ID)

	// and the plaintext index was retained locally
	local, err := indexer.ReadLocalIndex(engine.Archive.Root, v.ID)
	require.NoError(t, err)
	require.Len(t, local, 1)
	require.True(t, local[0].Equal(e))
}

func TestSecondSnapshotStoresNoNewBlocks(t *testing.T) {
	engine, blocks, versions := catEngine(t)
	writeFile(t, engine.Archive.Root, "hello.txt", "hi\n")

	v1, err := engine.Create(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, blocks.Len())

	v2, err := engine.Create(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, v1.ID, v2.ID)
	require.Equal(t, 1, blocks.Len(), "an unchanged tree stores zero new blocks")

	info, err := versions.GetArchive(context.Background(), "test")
	require.NoError(t, err)
	require.Len(t, info.Versions, 2)

	// the reused entry still references the same coded block
	require.True(t, identity.Equal(v1.Index[0].CodedID, v2.Index[0].CodedID))
}

func TestCreateDeduplicatesIdenticalFiles(t *testing.T) {
	engine, blocks, _ := catEngine(t)
	writeFile(t, engine.Archive.Root, "a.txt", "same content\n")
	writeFile(t, engine.Archive.Root, "b.txt", "same content\n")

	v, err := engine.Create(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, v.TreeCount)
	require.Equal(t, 1, blocks.Len(), "identical content stores one block")
}

func TestCreateEncoderFailureAbortsBeforeVersionWrite(t *testing.T) {
	engine, _, versions := newTestEngine(t,
		[]string{"sh", "-c", "echo broken key >&2; exit 2"},
		[]string{"cat"})
	writeFile(t, engine.Archive.Root, "hello.txt", "hi\n")

	_, err := engine.Create(context.Background())
	var sub *pipe.SubprocessError
	require.ErrorAs(t, err, &sub)
	require.Equal(t, 2, sub.ExitCode)
	require.Contains(t, sub.Stderr, "broken key")

	// no version may exist, in the repository or locally
	_, err = versions.GetArchive(context.Background(), "test")
	require.ErrorIs(t, err, store.ErrArchiveNotFound)
	ids, err := indexer.LocalVersionIDs(engine.Archive.Root)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestInterruptedRunResumesToIdenticalIndex(t *testing.T) {
	engine, blocks, versions := catEngine(t)
	writeFile(t, engine.Archive.Root, "a.txt", "aaa\n")
	writeFile(t, engine.Archive.Root, "b.txt", "bbb\n")

	// simulate a run cancelled after block storage but before the
	// version write: plan and store blocks, then stop
	ctx := context.Background()
	plan, err := engine.Plan(ctx)
	require.NoError(t, err)
	_, err = engine.storeBlocks(ctx, plan)
	require.NoError(t, err)
	require.Equal(t, 2, blocks.Len())
	_, err = versions.GetArchive(ctx, "test")
	require.ErrorIs(t, err, store.ErrArchiveNotFound)

	// the rerun reuses the stored blocks and produces the same index
	v, err := engine.Create(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, blocks.Len(), "rerun must reuse already-stored blocks")
	require.Equal(t, 2, v.TreeCount)

	fresh, _, _ := catEngine(t)
	writeFile(t, fresh.Archive.Root, "a.txt", "aaa\n")
	writeFile(t, fresh.Archive.Root, "b.txt", "bbb\n")
	uninterrupted, err := fresh.Create(ctx)
	require.NoError(t, err)

	require.Equal(t, len(uninterrupted.Index), len(v.Index))
	for i := range v.Index {
		a, b := v.Index[i], uninterrupted.Index[i]
		require.Equal(t, a.Path, b.Path)
		require.True(t, identity.Equal(a.ContentID, b.ContentID))
		require.True(t, identity.Equal(a.CodedID, b.CodedID))
	}
}

func TestCreateHonorsIgnoreRules(t *testing.T) {
	engine, _, _ := catEngine(t)
	engine.Archive.Ignore = []string{"skipme"}
	writeFile(t, engine.Archive.Root, "keep.txt", "k\n")
	writeFile(t, engine.Archive.Root, "skipme", "s\n")

	v, err := engine.Create(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, v.TreeCount)
	require.Equal(t, "keep.txt", v.Index[0].Path)
}

func TestRestoreRoundTrip(t *testing.T) {
	engine, _, _ := catEngine(t)
	writeFile(t, engine.Archive.Root, "docs/readme.md", "content here\n")
	writeFile(t, engine.Archive.Root, "empty.txt", "")
	require.NoError(t, os.Symlink("docs/readme.md", filepath.Join(engine.Archive.Root, "link")))

	v, err := engine.Create(context.Background())
	require.NoError(t, err)

	target := t.TempDir()
	require.NoError(t, engine.Restore(context.Background(), v.ID, target))

	data, err := os.ReadFile(filepath.Join(target, "docs", "readme.md"))
	require.NoError(t, err)
	require.Equal(t, "content here\n", string(data))

	empty, err := os.ReadFile(filepath.Join(target, "empty.txt"))
	require.NoError(t, err)
	require.Empty(t, empty)

	linkTarget, err := os.Readlink(filepath.Join(target, "link"))
	require.NoError(t, err)
	require.Equal(t, "docs/readme.md", linkTarget)
}

func TestRestoreReadsRepositoryWhenLocalCopyMissing(t *testing.T) {
	engine, _, _ := catEngine(t)
	writeFile(t, engine.Archive.Root, "f.txt", "payload\n")

	v, err := engine.Create(context.Background())
	require.NoError(t, err)

	// drop the local plaintext copy to force the decode path
	require.NoError(t, os.Remove(config.VersionPath(engine.Archive.Root, v.ID)))

	index, err := engine.ReadVersionIndex(context.Background(), v.ID)
	require.NoError(t, err)
	require.Len(t, index, 1)
	require.Equal(t, "f.txt", index[0].Path)
}

func TestReadVersionIndexUnknownID(t *testing.T) {
	engine, _, _ := catEngine(t)
	_, err := engine.ReadVersionIndex(context.Background(), "20200101-00000-bcdef")
	require.Error(t, err)
}

func TestPlanActions(t *testing.T) {
	engine, blocks, _ := catEngine(t)
	writeFile(t, engine.Archive.Root, "stored.txt", "already stored\n")
	writeFile(t, engine.Archive.Root, "fresh.txt", "brand new\n")
	require.NoError(t, os.MkdirAll(filepath.Join(engine.Archive.Root, "dir"), 0o755))

	// first snapshot stores both, so "stored.txt" can be planned as
	// reuse afterwards
	_, err := engine.Create(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, blocks.Len())

	writeFile(t, engine.Archive.Root, "fresh2.txt", "even newer\n")
	plan, err := engine.Plan(context.Background())
	require.NoError(t, err)

	actions := map[string]Action{}
	for _, pe := range plan {
		actions[pe.Path] = pe.Action
	}
	require.Equal(t, ActionReuse, actions["stored.txt"])
	require.Equal(t, ActionReuse, actions["fresh.txt"])
	require.Equal(t, ActionStore, actions["fresh2.txt"])
	require.Equal(t, ActionNone, actions["dir"])
}

func TestTrimPolicy(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	metas := []store.VersionMeta{
		{ID: "a", CreatedAt: now.AddDate(0, 0, -40)},
		{ID: "b", CreatedAt: now.AddDate(0, 0, -20)},
		{ID: "c", CreatedAt: now.AddDate(0, 0, -5)},
		{ID: "d", CreatedAt: now.AddDate(0, 0, -1)},
	}

	cases := []struct {
		name    string
		policy  TrimPolicy
		removed []string
	}{
		{"disabled", TrimPolicy{}, nil},
		{"keep newest two", TrimPolicy{KeepVersions: 2}, []string{"a", "b"}},
		{"keep a month", TrimPolicy{KeepDays: 30}, []string{"a"}},
		{"either rule keeps", TrimPolicy{KeepVersions: 1, KeepDays: 30}, []string{"a"}},
		{"keep everything", TrimPolicy{KeepVersions: 10}, nil},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, m := range PlanTrim(metas, tt.policy, now) {
				got = append(got, m.ID)
			}
			require.Equal(t, tt.removed, got)
		})
	}
}

func TestTrimRemovesFromStoreAndLocal(t *testing.T) {
	engine, _, versions := catEngine(t)
	writeFile(t, engine.Archive.Root, "f.txt", "x\n")

	ctx := context.Background()
	_, err := engine.Create(ctx)
	require.NoError(t, err)
	_, err = engine.Create(ctx)
	require.NoError(t, err)

	removed, err := engine.Trim(ctx, TrimPolicy{KeepVersions: 1}, time.Now())
	require.NoError(t, err)
	require.Len(t, removed, 1)

	// both snapshots may share a second, so "oldest" is whichever id
	// sorts first; assert on the survivor instead
	info, err := versions.GetArchive(ctx, "test")
	require.NoError(t, err)
	require.Len(t, info.Versions, 1)
	require.NotEqual(t, removed[0], info.Versions[0].ID)

	_, err = os.Stat(config.VersionPath(engine.Archive.Root, removed[0]))
	require.True(t, os.IsNotExist(err), "local retained copy must be pruned")
}
