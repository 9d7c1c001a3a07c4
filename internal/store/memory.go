package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/multiformats/go-multihash"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/keshon/hoard/internal/identity"
	"github.com/keshon/hoard/internal/version"
)

// MemoryBlockStore keeps blocks in a map. Intended for tests.
type MemoryBlockStore struct {
	mu     sync.Mutex
	blocks map[string][]byte
}

func NewMemoryBlockStore() *MemoryBlockStore {
	return &MemoryBlockStore{blocks: make(map[string][]byte)}
}

func (s *MemoryBlockStore) Get(ctx context.Context, id multihash.Multihash) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blocks[BlockKey(id)]
	if !ok {
		return nil, ErrBlockNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryBlockStore) GetBatch(ctx context.Context, ids []multihash.Multihash) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	present := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := s.blocks[BlockKey(id)]; ok {
			present[BlockKey(id)] = struct{}{}
		}
	}
	return present, nil
}

func (s *MemoryBlockStore) Put(ctx context.Context, r io.Reader) (multihash.Multihash, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("block store: %w", err)
	}
	id, err := identity.SumBytes(data)
	if err != nil {
		return nil, fmt.Errorf("block store: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocks[BlockKey(id)]; !ok {
		s.blocks[BlockKey(id)] = data
	}
	return id, nil
}

// Len reports the number of stored blocks.
func (s *MemoryBlockStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blocks)
}

// MemoryVersionStore keeps archives and versions in maps. Intended
// for tests.
type MemoryVersionStore struct {
	mu       sync.Mutex
	archives map[string]map[string]memVersion
}

type memVersion struct {
	data      []byte
	createdAt time.Time
}

func NewMemoryVersionStore() *MemoryVersionStore {
	return &MemoryVersionStore{archives: make(map[string]map[string]memVersion)}
}

func (s *MemoryVersionStore) ListArchives(ctx context.Context, query string) ([]ArchiveInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := maps.Keys(s.archives)
	slices.Sort(names)

	var infos []ArchiveInfo
	for _, name := range names {
		if query != "" && !strings.Contains(name, query) {
			continue
		}
		infos = append(infos, s.archiveInfoLocked(name))
	}
	return infos, nil
}

func (s *MemoryVersionStore) archiveInfoLocked(name string) ArchiveInfo {
	versions := s.archives[name]
	ids := maps.Keys(versions)
	slices.Sort(ids)

	info := ArchiveInfo{Name: name}
	for _, id := range ids {
		v := versions[id]
		info.Versions = append(info.Versions, VersionMeta{
			ID:        id,
			Size:      int64(len(v.data)),
			CreatedAt: v.createdAt,
		})
	}
	return info
}

func (s *MemoryVersionStore) GetArchive(ctx context.Context, name string) (*ArchiveInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.archives[name]; !ok {
		return nil, ErrArchiveNotFound
	}
	info := s.archiveInfoLocked(name)
	return &info, nil
}

func (s *MemoryVersionStore) StatVersion(ctx context.Context, archive, id string) (*VersionMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.archives[archive][id]
	if !ok {
		return nil, ErrVersionNotFound
	}
	return &VersionMeta{ID: id, Size: int64(len(v.data)), CreatedAt: v.createdAt}, nil
}

func (s *MemoryVersionStore) ReadVersion(ctx context.Context, archive, id string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.archives[archive][id]
	if !ok {
		return nil, ErrVersionNotFound
	}
	return io.NopCloser(bytes.NewReader(v.data)), nil
}

func (s *MemoryVersionStore) StoreVersion(ctx context.Context, archive, id string, r io.Reader) (*VersionMeta, error) {
	if id == ConfigName {
		return nil, &ReservedNameError{Name: id}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("version store: %w", err)
	}

	createdAt, err := version.ParseID(id)
	if err != nil {
		createdAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.archives[archive]; !ok {
		s.archives[archive] = make(map[string]memVersion)
	}
	if _, ok := s.archives[archive][id]; ok {
		return nil, ErrVersionExists
	}
	s.archives[archive][id] = memVersion{data: data, createdAt: createdAt}
	return &VersionMeta{ID: id, Size: int64(len(data)), CreatedAt: createdAt}, nil
}

func (s *MemoryVersionStore) RemoveVersion(ctx context.Context, archive, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.archives[archive][id]; !ok {
		return false, nil
	}
	delete(s.archives[archive], id)
	return true, nil
}
