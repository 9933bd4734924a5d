// Package blob stores binary objects (cover images, PDFs, podcast audio)
// in named buckets, either in the hosted storage service or on local disk.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var (
	// ErrExists is returned by Put without Upsert when the key is taken.
	ErrExists = errors.New("blob: object already exists")
	// ErrInvalidKey is returned for empty keys or keys escaping the bucket.
	ErrInvalidKey = errors.New("blob: invalid key")
)

// PutOptions control how an object is written.
type PutOptions struct {
	ContentType  string
	CacheControl string // seconds, e.g. "3600"
	Upsert       bool
}

// Bucket is a flat namespace of objects addressed by key.
type Bucket interface {
	Name() string
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) error
	PublicURL(key string) string
}

// APIError is a non-2xx answer from the storage service.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("storage %s %d: %s", e.Op, e.Status, e.Body)
}

// CleanKey validates key and strips one leading slash.
func CleanKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", ErrInvalidKey
		}
	}
	if path.Clean(key) != key {
		return "", ErrInvalidKey
	}
	return key, nil
}
