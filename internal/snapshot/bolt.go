package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	blobsBucket = "snapshots"
	infoBucket  = "snapshot_info"
)

// BoltStore persists snapshots in a local bbolt file.
type BoltStore struct {
	db    *bbolt.DB
	codec Codec
}

type boltInfo struct {
	CenterID     string `json:"center_id"`
	CapturedAtMs int64  `json:"captured_at_ms"`
	Size         int    `json:"size"`
}

// NewBoltStore opens or creates the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{blobsBucket, infoBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, codec: BinaryCodec{}}, nil
}

// Save implements Store.
func (s *BoltStore) Save(_ context.Context, doc *Document) (Info, error) {
	data, err := encode(s.codec, doc)
	if err != nil {
		return Info{}, err
	}
	meta, err := json.Marshal(boltInfo{CenterID: doc.CenterID, CapturedAtMs: doc.CapturedAtMs, Size: len(data)})
	if err != nil {
		return Info{}, fmt.Errorf("marshal snapshot info: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		key := []byte(doc.ID)
		if err := tx.Bucket([]byte(blobsBucket)).Put(key, data); err != nil {
			return err
		}
		return tx.Bucket([]byte(infoBucket)).Put(key, meta)
	})
	if err != nil {
		return Info{}, fmt.Errorf("save snapshot %s: %w", doc.ID, err)
	}
	return infoFor(doc, len(data)), nil
}

// Load implements Store.
func (s *BoltStore) Load(_ context.Context, id string) (*Document, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(blobsBucket)).Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		// bbolt values are only valid for the life of the transaction.
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decode(s.codec, data)
}

// Latest implements Store.
func (s *BoltStore) Latest(ctx context.Context, centerID string) (*Document, error) {
	infos, err := s.List(ctx, centerID)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, ErrNotFound
	}
	return s.Load(ctx, infos[0].ID)
}

// List implements Store. Newest first.
func (s *BoltStore) List(_ context.Context, centerID string) ([]Info, error) {
	var out []Info
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(infoBucket)).ForEach(func(k, v []byte) error {
			var meta boltInfo
			if err := json.Unmarshal(v, &meta); err != nil {
				return fmt.Errorf("unmarshal snapshot info %s: %w", k, err)
			}
			if centerID != "" && meta.CenterID != centerID {
				return nil
			}
			out = append(out, Info{
				ID:         string(k),
				CenterID:   meta.CenterID,
				CapturedAt: fromMillis(meta.CapturedAtMs),
				Size:       meta.Size,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortInfos(out)
	return out, nil
}

// Delete implements Store.
func (s *BoltStore) Delete(_ context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		key := []byte(id)
		blobs := tx.Bucket([]byte(blobsBucket))
		if blobs.Get(key) == nil {
			return ErrNotFound
		}
		if err := blobs.Delete(key); err != nil {
			return err
		}
		return tx.Bucket([]byte(infoBucket)).Delete(key)
	})
}

// Close implements Store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
