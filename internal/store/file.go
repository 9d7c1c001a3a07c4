package store

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/multiformats/go-multihash"

	"github.com/keshon/hoard/internal/fs"
	"github.com/keshon/hoard/internal/logging"
	"github.com/keshon/hoard/internal/version"
)

var log = logging.For("store")

const (
	archiveDirName = "archive"
	dataDirName    = "data"
	blocksDirName  = "blocks"
	metaFileName   = "meta.properties"
)

// InitFileRepository creates the on-disk repository layout under root.
// Calling it on an existing repository is a no-op.
func InitFileRepository(fsys fs.FS, root string) error {
	dirs := []string{
		filepath.Join(root, archiveDirName),
		filepath.Join(root, dataDirName, blocksDirName),
	}
	for _, d := range dirs {
		if err := fsys.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create repository dir %q: %w", d, err)
		}
	}

	metaPath := filepath.Join(root, dataDirName, metaFileName)
	if !fsys.Exists(metaPath) {
		meta := fmt.Sprintf("format=hoard/v1\ncreated-at=%s\n", time.Now().UTC().Format(time.RFC3339))
		if err := fsys.WriteFile(metaPath, []byte(meta), 0o644); err != nil {
			return fmt.Errorf("write %q: %w", metaPath, err)
		}
	}
	return nil
}

// FileBlockStore keeps blocks under root/data/blocks, sharded by the
// hex of the multihash code and length bytes.
type FileBlockStore struct {
	root string
	fsys fs.FS
}

func NewFileBlockStore(fsys fs.FS, root string) *FileBlockStore {
	return &FileBlockStore{root: root, fsys: fsys}
}

func (s *FileBlockStore) blocksDir() string {
	return filepath.Join(s.root, dataDirName, blocksDirName)
}

func (s *FileBlockStore) blockPath(id multihash.Multihash) string {
	hex := BlockKey(id)
	prefix := "00"
	if len(hex) >= 4 {
		prefix = hex[:4]
	}
	return filepath.Join(s.blocksDir(), prefix, hex)
}

func (s *FileBlockStore) Get(ctx context.Context, id multihash.Multihash) (io.ReadCloser, error) {
	rc, err := s.fsys.Open(s.blockPath(id))
	if err != nil {
		if s.fsys.IsNotExist(err) {
			return nil, ErrBlockNotFound
		}
		return nil, fmt.Errorf("block store: %w", err)
	}
	return rc, nil
}

func (s *FileBlockStore) GetBatch(ctx context.Context, ids []multihash.Multihash) (map[string]struct{}, error) {
	present := make(map[string]struct{})
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.fsys.Exists(s.blockPath(id)) {
			present[BlockKey(id)] = struct{}{}
		}
	}
	return present, nil
}

func (s *FileBlockStore) Put(ctx context.Context, r io.Reader) (multihash.Multihash, error) {
	if err := s.fsys.MkdirAll(s.blocksDir(), 0o755); err != nil {
		return nil, fmt.Errorf("block store: %w", err)
	}

	tmp, tmpPath, err := s.fsys.CreateTemp(s.blocksDir(), ".tmp-block-*")
	if err != nil {
		return nil, fmt.Errorf("block store: %w", err)
	}

	h := sha256.New()
	_, err = io.Copy(io.MultiWriter(tmp, h), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.fsys.Remove(tmpPath)
		return nil, fmt.Errorf("block store: %w", err)
	}

	encoded, err := multihash.Encode(h.Sum(nil), multihash.SHA2_256)
	if err != nil {
		s.fsys.Remove(tmpPath)
		return nil, fmt.Errorf("block store: %w", err)
	}
	id := multihash.Multihash(encoded)

	dst := s.blockPath(id)
	if s.fsys.Exists(dst) {
		// duplicate put: keep the prior block
		s.fsys.Remove(tmpPath)
		return id, nil
	}
	if err := s.fsys.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		s.fsys.Remove(tmpPath)
		return nil, fmt.Errorf("block store: %w", err)
	}
	if err := s.fsys.Rename(tmpPath, dst); err != nil {
		s.fsys.Remove(tmpPath)
		return nil, fmt.Errorf("block store: %w", err)
	}
	return id, nil
}

// FileVersionStore keeps version files under root/archive/<name>/.
// The entry name "config" is reserved for the archive's settings.
type FileVersionStore struct {
	root string
	fsys fs.FS
}

func NewFileVersionStore(fsys fs.FS, root string) *FileVersionStore {
	return &FileVersionStore{root: root, fsys: fsys}
}

func (s *FileVersionStore) archiveDir(name string) string {
	return filepath.Join(s.root, archiveDirName, name)
}

func (s *FileVersionStore) ListArchives(ctx context.Context, query string) ([]ArchiveInfo, error) {
	entries, err := s.fsys.ReadDir(filepath.Join(s.root, archiveDirName))
	if err != nil {
		if s.fsys.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("version store: %w", err)
	}

	var infos []ArchiveInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if query != "" && !strings.Contains(e.Name(), query) {
			continue
		}
		info, err := s.archiveInfo(e.Name())
		if err != nil {
			return nil, err
		}
		infos = append(infos, *info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (s *FileVersionStore) archiveInfo(name string) (*ArchiveInfo, error) {
	entries, err := s.fsys.ReadDir(s.archiveDir(name))
	if err != nil {
		if s.fsys.IsNotExist(err) {
			return nil, ErrArchiveNotFound
		}
		return nil, fmt.Errorf("version store: %w", err)
	}

	info := &ArchiveInfo{Name: name}
	for _, e := range entries {
		if e.IsDir() || e.Name() == ConfigName || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		meta, err := s.statFile(name, e.Name())
		if err != nil {
			log.WithError(err).WithField("version", e.Name()).Warn("skipping unreadable version")
			continue
		}
		info.Versions = append(info.Versions, *meta)
	}
	sort.Slice(info.Versions, func(i, j int) bool { return info.Versions[i].ID < info.Versions[j].ID })
	return info, nil
}

func (s *FileVersionStore) GetArchive(ctx context.Context, name string) (*ArchiveInfo, error) {
	return s.archiveInfo(name)
}

func (s *FileVersionStore) statFile(archive, id string) (*VersionMeta, error) {
	fi, err := s.fsys.Stat(filepath.Join(s.archiveDir(archive), id))
	if err != nil {
		return nil, err
	}
	createdAt, err := version.ParseID(id)
	if err != nil {
		createdAt = fi.ModTime().UTC()
	}
	return &VersionMeta{ID: id, Size: fi.Size(), CreatedAt: createdAt}, nil
}

func (s *FileVersionStore) StatVersion(ctx context.Context, archive, id string) (*VersionMeta, error) {
	meta, err := s.statFile(archive, id)
	if err != nil {
		if s.fsys.IsNotExist(err) {
			return nil, ErrVersionNotFound
		}
		return nil, fmt.Errorf("version store: %w", err)
	}
	return meta, nil
}

func (s *FileVersionStore) ReadVersion(ctx context.Context, archive, id string) (io.ReadCloser, error) {
	rc, err := s.fsys.Open(filepath.Join(s.archiveDir(archive), id))
	if err != nil {
		if s.fsys.IsNotExist(err) {
			return nil, ErrVersionNotFound
		}
		return nil, fmt.Errorf("version store: %w", err)
	}
	return rc, nil
}

func (s *FileVersionStore) StoreVersion(ctx context.Context, archive, id string, r io.Reader) (*VersionMeta, error) {
	if id == ConfigName {
		return nil, &ReservedNameError{Name: id}
	}

	dir := s.archiveDir(archive)
	if err := s.fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("version store: %w", err)
	}

	dst := filepath.Join(dir, id)
	if s.fsys.Exists(dst) {
		return nil, ErrVersionExists
	}

	tmp, tmpPath, err := s.fsys.CreateTemp(dir, ".tmp-version-*")
	if err != nil {
		return nil, fmt.Errorf("version store: %w", err)
	}

	size, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.fsys.Remove(tmpPath)
		return nil, fmt.Errorf("version store: %w", err)
	}

	// rename-into-place keeps the write atomic for readers
	if err := s.fsys.Rename(tmpPath, dst); err != nil {
		s.fsys.Remove(tmpPath)
		return nil, fmt.Errorf("version store: %w", err)
	}

	createdAt, err := version.ParseID(id)
	if err != nil {
		createdAt = time.Now().UTC()
	}
	return &VersionMeta{ID: id, Size: size, CreatedAt: createdAt}, nil
}

func (s *FileVersionStore) RemoveVersion(ctx context.Context, archive, id string) (bool, error) {
	if id == ConfigName {
		return false, &ReservedNameError{Name: id}
	}
	path := filepath.Join(s.archiveDir(archive), id)
	if !s.fsys.Exists(path) {
		return false, nil
	}
	if err := s.fsys.Remove(path); err != nil {
		return false, fmt.Errorf("version store: %w", err)
	}
	return true, nil
}
