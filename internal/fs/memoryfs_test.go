package fs

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryFSWriteReadRoundTrip(t *testing.T) {
	m := NewMemoryFS()
	require.NoError(t, m.MkdirAll("a/b", 0o755))
	require.NoError(t, m.WriteFile("a/b/f.txt", []byte("data"), 0o644))

	data, err := m.ReadFile("a/b/f.txt")
	require.NoError(t, err)
	require.Equal(t, "data", string(data))

	rc, err := m.Open("a/b/f.txt")
	require.NoError(t, err)
	streamed, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "data", string(streamed))
}

func TestMemoryFSWriteRequiresDir(t *testing.T) {
	m := NewMemoryFS()
	require.Error(t, m.WriteFile("missing/f.txt", []byte("x"), 0o644))
}

func TestMemoryFSStat(t *testing.T) {
	m := NewMemoryFS()
	require.NoError(t, m.MkdirAll("d", 0o755))
	require.NoError(t, m.WriteFile("d/f", []byte("abc"), 0o644))

	fi, err := m.Stat("d/f")
	require.NoError(t, err)
	require.EqualValues(t, 3, fi.Size())
	require.False(t, fi.IsDir())

	di, err := m.Stat("d")
	require.NoError(t, err)
	require.True(t, di.IsDir())

	_, err = m.Stat("nope")
	require.True(t, m.IsNotExist(err))
}

func TestMemoryFSReadDir(t *testing.T) {
	m := NewMemoryFS()
	require.NoError(t, m.MkdirAll("top/sub", 0o755))
	require.NoError(t, m.WriteFile("top/f1", []byte("1"), 0o644))
	require.NoError(t, m.WriteFile("top/sub/deep", []byte("2"), 0o644))

	entries, err := m.ReadDir("top")
	require.NoError(t, err)

	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name()] = e.IsDir()
	}
	require.Len(t, names, 2)
	require.True(t, names["sub"])
	require.False(t, names["f1"])
}

func TestMemoryFSRename(t *testing.T) {
	m := NewMemoryFS()
	require.NoError(t, m.MkdirAll("d", 0o755))
	require.NoError(t, m.WriteFile("d/a", []byte("x"), 0o644))
	require.NoError(t, m.Rename("d/a", "d/b"))

	require.False(t, m.Exists("d/a"))
	data, err := m.ReadFile("d/b")
	require.NoError(t, err)
	require.Equal(t, "x", string(data))
}

func TestWriteFileAtomic(t *testing.T) {
	m := NewMemoryFS()
	require.NoError(t, m.MkdirAll("d", 0o755))
	require.NoError(t, WriteFileAtomic(m, "d/f", []byte("atomic"), 0o644))

	data, err := m.ReadFile("d/f")
	require.NoError(t, err)
	require.Equal(t, "atomic", string(data))

	// no temp files left behind
	entries, err := m.ReadDir("d")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestCreateTempMaterializesOnClose(t *testing.T) {
	m := NewMemoryFS()
	require.NoError(t, m.MkdirAll("d", 0o755))

	wc, path, err := m.CreateTemp("d", "tmp-*")
	require.NoError(t, err)
	_, err = wc.Write([]byte("pending"))
	require.NoError(t, err)
	require.False(t, m.Exists(path), "temp file must not be visible before close")
	require.NoError(t, wc.Close())
	require.True(t, m.Exists(path))
}
