package minioctrl

import (
	"context"
	"fmt"
)

// Store binds a MinioService to one bucket and exposes it through the
// fsutil.BlobStore contract. URLs are "bucket-name/object-name".
type Store struct {
	svc    *MinioService
	bucket string
}

func NewStore(ctx context.Context, svc *MinioService, bucket string) (*Store, error) {
	if err := svc.EnsureBucketExists(ctx, bucket); err != nil {
		return nil, err
	}
	return &Store{svc: svc, bucket: bucket}, nil
}

func (s *Store) Save(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := s.svc.PutObject(ctx, s.bucket, key, data, contentType); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s", s.bucket, key), nil
}

func (s *Store) Load(ctx context.Context, url string) ([]byte, error) {
	bucket, object := s.svc.GetBucketAndObjectFromURL(url)
	if bucket == "" {
		return nil, fmt.Errorf("malformed object url: %q", url)
	}
	return s.svc.GetObject(ctx, bucket, object)
}

func (s *Store) Delete(ctx context.Context, url string) error {
	bucket, object := s.svc.GetBucketAndObjectFromURL(url)
	if bucket == "" {
		return fmt.Errorf("malformed object url: %q", url)
	}
	return s.svc.DeleteObject(ctx, bucket, object)
}
