package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/keshon/hoard/internal/fs"
	"github.com/keshon/hoard/internal/ignore"
	"github.com/keshon/hoard/internal/store"
	"github.com/keshon/hoard/internal/tree"
)

// Archive is a named working tree plus its snapshot settings. Root is
// absolute and canonical; the command vectors are frozen after load.
type Archive struct {
	Name      string
	Root      string
	CreatedAt time.Time
	Ignore    []string

	Repo RepositoryConfig
}

// EncodeCommand returns the encoder argv.
func (a *Archive) EncodeCommand() []string { return a.Repo.EncodeCommand }

// DecodeCommand returns the decoder argv.
func (a *Archive) DecodeCommand() []string { return a.Repo.DecodeCommand }

// Matcher compiles the archive's ignore rules.
func (a *Archive) Matcher() *ignore.Matcher {
	return ignore.Compile(a.Root, a.Ignore)
}

// DiscoverRoot walks upward from dir until it finds a directory
// containing .hoard.
func DiscoverRoot(dir string) (string, error) {
	cur, err := tree.Canonical(dir)
	if err != nil {
		return "", err
	}
	for {
		if fi, err := os.Stat(ControlPath(cur)); err == nil && fi.IsDir() {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("no %s directory found above %q", ControlDir, dir)
		}
		cur = parent
	}
}

// LoadArchive reads the archive rooted at root: its config file and
// ignore rules.
func LoadArchive(root string, opts Options) (*Archive, error) {
	canonical, err := tree.Canonical(root)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(ConfigPath(canonical))
	if err != nil {
		return nil, fmt.Errorf("read archive config: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}

	name := f.ArchiveName
	if name == "" {
		name = filepath.Base(canonical)
	}

	repo, err := f.Repository(opts.Repository)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		Name:      name,
		Root:      canonical,
		CreatedAt: f.ArchiveCreatedAt,
		Repo:      *repo,
	}

	if rules, err := os.ReadFile(IgnorePath(canonical)); err == nil {
		a.Ignore, err = ignore.ReadRules(bytes.NewReader(rules))
		if err != nil {
			return nil, fmt.Errorf("read ignore file: %w", err)
		}
	}

	return a, nil
}

// InitArchive creates the control directory layout for a new archive
// and writes its initial config.
func InitArchive(root, name, repoRoot string) error {
	canonical, err := tree.Canonical(root)
	if err != nil {
		return err
	}
	if _, err := os.Stat(ControlPath(canonical)); err == nil {
		return fmt.Errorf("archive already initialized at %q", canonical)
	}

	dirs := []string{
		ControlPath(canonical),
		VersionsPath(canonical),
		filepath.Join(ControlPath(canonical), CacheDir),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %q: %w", d, err)
		}
	}

	if name == "" {
		name = filepath.Base(canonical)
	}

	cfg := fmt.Sprintf(`[archive]
name = %s
created-at = %s

[defaults]
encode-command = cat
decode-command = cat

[repository.%s]
type = %s
root = %s
`, name, time.Now().UTC().Format(time.RFC3339), "origin", RepoTypeFile, repoRoot)

	if err := os.WriteFile(ConfigPath(canonical), []byte(cfg), 0o644); err != nil {
		return fmt.Errorf("write archive config: %w", err)
	}

	ignoreHeader := "# one rule per line; blank lines and lines starting with # are skipped\n"
	if err := os.WriteFile(IgnorePath(canonical), []byte(ignoreHeader), 0o644); err != nil {
		return fmt.Errorf("write ignore file: %w", err)
	}

	return nil
}

// OpenStores builds the block and version stores for the archive's
// repository.
func OpenStores(a *Archive, fsys fs.FS) (store.BlockStore, store.VersionStore, error) {
	switch a.Repo.Type {
	case RepoTypeMemory:
		return store.NewMemoryBlockStore(), store.NewMemoryVersionStore(), nil
	case RepoTypeFile:
		if err := store.InitFileRepository(fsys, a.Repo.Root); err != nil {
			return nil, nil, err
		}
		return store.NewFileBlockStore(fsys, a.Repo.Root), store.NewFileVersionStore(fsys, a.Repo.Root), nil
	default:
		return nil, nil, fmt.Errorf("unknown repository type %q", a.Repo.Type)
	}
}
