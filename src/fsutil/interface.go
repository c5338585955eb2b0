package fsutil

import "context"

// BlobStore stores step artifacts (downloaded product assets, rendered
// concept cards, analysis reports) under caller-chosen keys and
// addresses them by the URL returned from Save.
type BlobStore interface {
	// Save writes a blob and returns its URL.
	Save(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Load reads a blob by the URL Save returned.
	Load(ctx context.Context, url string) ([]byte, error)

	// Delete removes a blob by URL.
	Delete(ctx context.Context, url string) error
}
