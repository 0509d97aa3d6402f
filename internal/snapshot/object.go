package snapshot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// ErrObjectNotFound is returned by a Bucket for a missing key.
var ErrObjectNotFound = errors.New("object not found")

const (
	objectExt    = ".utmsnap"
	millisDigits = 13
)

// Object is one listed bucket entry.
type Object struct {
	Key  string
	Size int64
}

// Bucket is the object storage surface used by ObjectStore.
type Bucket interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]Object, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// ObjectStore keeps snapshots in an object storage bucket, one object per
// snapshot under <prefix>/<center>/<captured millis>-<id>.utmsnap. Keys sort
// by capture time within a center.
type ObjectStore struct {
	bucket Bucket
	prefix string
	codec  Codec
}

// NewObjectStore creates a store writing under prefix in b.
func NewObjectStore(b Bucket, prefix string) *ObjectStore {
	return &ObjectStore{
		bucket: b,
		prefix: strings.Trim(prefix, "/"),
		codec:  BinaryCodec{},
	}
}

func (s *ObjectStore) centerPrefix(centerID string) string {
	if centerID == "" {
		return s.root()
	}
	return path.Join(s.prefix, url.PathEscape(centerID)) + "/"
}

func (s *ObjectStore) root() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

func (s *ObjectStore) key(doc *Document) string {
	name := fmt.Sprintf("%0*d-%s%s", millisDigits, doc.CapturedAtMs, doc.ID, objectExt)
	return s.centerPrefix(doc.CenterID) + name
}

// parseKey recovers the snapshot info encoded in a key.
func (s *ObjectStore) parseKey(obj Object) (Info, bool) {
	rest := strings.TrimPrefix(obj.Key, s.root())
	dir, name := path.Split(rest)
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" || strings.Contains(dir, "/") {
		return Info{}, false
	}
	center, err := url.PathUnescape(dir)
	if err != nil {
		return Info{}, false
	}
	if !strings.HasSuffix(name, objectExt) || len(name) < millisDigits+2+len(objectExt) || name[millisDigits] != '-' {
		return Info{}, false
	}
	ms, err := strconv.ParseInt(name[:millisDigits], 10, 64)
	if err != nil {
		return Info{}, false
	}
	return Info{
		ID:         strings.TrimSuffix(name[millisDigits+1:], objectExt),
		CenterID:   center,
		CapturedAt: fromMillis(ms),
		Size:       int(obj.Size),
	}, true
}

// Save implements Store.
func (s *ObjectStore) Save(ctx context.Context, doc *Document) (Info, error) {
	data, err := encode(s.codec, doc)
	if err != nil {
		return Info{}, err
	}
	if err := s.bucket.Put(ctx, s.key(doc), data, s.codec.ContentType()); err != nil {
		return Info{}, fmt.Errorf("put snapshot %s: %w", doc.ID, err)
	}
	return infoFor(doc, len(data)), nil
}

// find locates the key for id. Object stores cannot look up by suffix, so
// this lists every snapshot under the prefix.
func (s *ObjectStore) find(ctx context.Context, id string) (string, error) {
	objs, err := s.bucket.List(ctx, s.root())
	if err != nil {
		return "", fmt.Errorf("list snapshots: %w", err)
	}
	suffix := "-" + id + objectExt
	for _, o := range objs {
		if strings.HasSuffix(o.Key, suffix) {
			if info, ok := s.parseKey(o); ok && info.ID == id {
				return o.Key, nil
			}
		}
	}
	return "", ErrNotFound
}

func (s *ObjectStore) get(ctx context.Context, key string) (*Document, error) {
	data, err := s.bucket.Get(ctx, key)
	if errors.Is(err, ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return decode(s.codec, data)
}

// Load implements Store.
func (s *ObjectStore) Load(ctx context.Context, id string) (*Document, error) {
	key, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, key)
}

// Latest implements Store.
func (s *ObjectStore) Latest(ctx context.Context, centerID string) (*Document, error) {
	infos, err := s.List(ctx, centerID)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, ErrNotFound
	}
	newest := infos[0]
	key := s.key(&Document{ID: newest.ID, CenterID: newest.CenterID, CapturedAtMs: toMillis(newest.CapturedAt)})
	return s.get(ctx, key)
}

// List implements Store. Newest first; keys that do not parse are skipped.
func (s *ObjectStore) List(ctx context.Context, centerID string) ([]Info, error) {
	objs, err := s.bucket.List(ctx, s.centerPrefix(centerID))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out := make([]Info, 0, len(objs))
	for _, o := range objs {
		if info, ok := s.parseKey(o); ok {
			out = append(out, info)
		}
	}
	sortInfos(out)
	return out, nil
}

// Delete implements Store.
func (s *ObjectStore) Delete(ctx context.Context, id string) error {
	key, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.bucket.Delete(ctx, key); err != nil && !errors.Is(err, ErrObjectNotFound) {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	return nil
}

// Close implements Store.
func (s *ObjectStore) Close() error { return s.bucket.Close() }

// bucketTimeout bounds a single bucket round trip when the caller has no
// deadline.
const bucketTimeout = 30 * time.Second

func withBucketTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, bucketTimeout)
}
