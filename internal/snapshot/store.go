package snapshot

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Info describes a stored snapshot.
type Info struct {
	ID         string
	CenterID   string
	CapturedAt time.Time
	Size       int
}

// Store persists encoded snapshot documents.
type Store interface {
	Save(ctx context.Context, doc *Document) (Info, error)
	Load(ctx context.Context, id string) (*Document, error)
	Latest(ctx context.Context, centerID string) (*Document, error)
	List(ctx context.Context, centerID string) ([]Info, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	codec Codec
	blobs map[string][]byte
	infos map[string]Info
}

// NewMemoryStore creates an empty in-memory store using the binary codec.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		codec: BinaryCodec{},
		blobs: make(map[string][]byte),
		infos: make(map[string]Info),
	}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, doc *Document) (Info, error) {
	data, err := encode(s.codec, doc)
	if err != nil {
		return Info{}, err
	}
	info := infoFor(doc, len(data))

	s.mu.Lock()
	s.blobs[doc.ID] = data
	s.infos[doc.ID] = info
	s.mu.Unlock()
	return info, nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, id string) (*Document, error) {
	s.mu.RLock()
	data, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(s.codec, data)
}

// Latest implements Store.
func (s *MemoryStore) Latest(ctx context.Context, centerID string) (*Document, error) {
	infos, _ := s.List(ctx, centerID)
	if len(infos) == 0 {
		return nil, ErrNotFound
	}
	return s.Load(ctx, infos[0].ID)
}

// List implements Store. Newest first.
func (s *MemoryStore) List(_ context.Context, centerID string) ([]Info, error) {
	s.mu.RLock()
	out := make([]Info, 0, len(s.infos))
	for _, info := range s.infos {
		if centerID == "" || info.CenterID == centerID {
			out = append(out, info)
		}
	}
	s.mu.RUnlock()
	sortInfos(out)
	return out, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		return ErrNotFound
	}
	delete(s.blobs, id)
	delete(s.infos, id)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

func infoFor(doc *Document, size int) Info {
	return Info{
		ID:         doc.ID,
		CenterID:   doc.CenterID,
		CapturedAt: fromMillis(doc.CapturedAtMs),
		Size:       size,
	}
}

func sortInfos(infos []Info) {
	slices.SortFunc(infos, func(a, b Info) int {
		if c := b.CapturedAt.Compare(a.CapturedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
