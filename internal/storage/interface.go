package storage

import (
	"context"
	"io"
	"path"
	"strings"
)

// ObjectStorage stores uploaded originals and enhanced results.
type ObjectStorage interface {
	// Upload writes an object.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens an object for reading.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the public URL of an object.
	GetURL(key string) string

	// KeyFromURL maps a public URL produced by GetURL back to its key.
	KeyFromURL(url string) (string, bool)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists.
	Exists(ctx context.Context, key string) (bool, error)
}

// BucketEnsurer is implemented by stores that can create their bucket on startup.
type BucketEnsurer interface {
	EnsureBucket(ctx context.Context) error
}

const originalsPrefix = "originals"

// OriginalKey is where a user's uploaded photo lives.
func OriginalKey(userID, recordID, ext string) string {
	return path.Join(originalsPrefix, userID, recordID+ext)
}

// keyUnder strips base from url, returning the remaining object key.
func keyUnder(base, url string) (string, bool) {
	if base == "" || !strings.HasPrefix(url, base+"/") {
		return "", false
	}
	key := strings.TrimPrefix(url, base+"/")
	if key == "" {
		return "", false
	}
	return key, true
}
