package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSBucket is a Bucket backed by Google Cloud Storage.
type GCSBucket struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// NewGCSBucket opens bucketName. An empty credentialsFile uses application
// default credentials.
func NewGCSBucket(ctx context.Context, bucketName, credentialsFile string) (*GCSBucket, error) {
	if bucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSBucket{client: client, bucket: client.Bucket(bucketName)}, nil
}

// Put implements Bucket.
func (g *GCSBucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, cancel := withBucketTimeout(ctx)
	defer cancel()

	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Get implements Bucket.
func (g *GCSBucket) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := withBucketTimeout(ctx)
	defer cancel()

	r, err := g.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// List implements Bucket.
func (g *GCSBucket) List(ctx context.Context, prefix string) ([]Object, error) {
	ctx, cancel := withBucketTimeout(ctx)
	defer cancel()

	query := &storage.Query{Projection: storage.ProjectionNoACL, Prefix: prefix}
	it := g.bucket.Objects(ctx, query)

	var out []Object
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Object{Key: attrs.Name, Size: attrs.Size})
	}
}

// Delete implements Bucket.
func (g *GCSBucket) Delete(ctx context.Context, key string) error {
	ctx, cancel := withBucketTimeout(ctx)
	defer cancel()

	err := g.bucket.Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrObjectNotFound
	}
	return err
}

// Close implements Bucket.
func (g *GCSBucket) Close() error { return g.client.Close() }
