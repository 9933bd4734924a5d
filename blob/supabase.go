package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	storage "github.com/supabase-community/storage-go"
)

// Supabase is a Bucket in the hosted storage service. Uploads go through
// the storage client authorized with the service role key; existence checks
// hit the public object URL.
type Supabase struct {
	storage *storage.Client
	bucket  string
	head    *http.Client
}

// NewSupabase returns the bucket named bucket on the project at baseURL.
func NewSupabase(baseURL, bucket, serviceKey string) *Supabase {
	endpoint := strings.TrimRight(baseURL, "/") + "/storage/v1"
	return &Supabase{
		storage: storage.NewClient(endpoint, serviceKey, map[string]string{"apikey": serviceKey}),
		bucket:  bucket,
		head:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the bucket name.
func (s *Supabase) Name() string { return s.bucket }

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// PublicURL returns the public object URL. Invalid keys yield "".
func (s *Supabase) PublicURL(key string) string {
	key, err := CleanKey(key)
	if err != nil {
		return ""
	}
	return s.storage.GetPublicUrl(url.PathEscape(s.bucket), escapeKey(key)).SignedURL
}

// Exists issues a HEAD against the public URL.
func (s *Supabase) Exists(ctx context.Context, key string) (bool, error) {
	u := s.PublicURL(key)
	if u == "" {
		return false, ErrInvalidKey
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return false, err
	}
	resp, err := s.head.Do(req)
	if err != nil {
		return false, fmt.Errorf("storage head: %w", err)
	}
	resp.Body.Close()
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	// The storage API answers 400 for missing objects on some routes.
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return false, nil
	default:
		return false, &APIError{Op: "head", Status: resp.StatusCode}
	}
}

// Put uploads r under key. Without Upsert a taken key yields ErrExists.
func (s *Supabase) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	if !opts.Upsert {
		ok, err := s.Exists(ctx, key)
		if err != nil {
			return err
		}
		if ok {
			return ErrExists
		}
	}

	fo := storage.FileOptions{Upsert: &opts.Upsert}
	if opts.ContentType != "" {
		fo.ContentType = &opts.ContentType
	}
	if opts.CacheControl != "" {
		fo.CacheControl = &opts.CacheControl
	}
	if _, err := s.storage.UploadFile(s.bucket, key, r, fo); err != nil {
		if isDuplicate(err) {
			return ErrExists
		}
		return &APIError{Op: "upload", Body: err.Error()}
	}

	// The client does not surface every rejected upload as an error, so
	// confirm the object landed.
	ok, err := s.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return &APIError{Op: "upload", Body: "object missing after upload"}
	}
	return nil
}

func isDuplicate(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "already exists") || strings.Contains(msg, "409")
}
