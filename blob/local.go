package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Local is a Bucket stored as files under Root/<bucket>. Objects are served
// by the application under URLPrefix/<bucket>/<key>.
type Local struct {
	root      string
	bucket    string
	urlPrefix string
}

// NewLocal returns the bucket named bucket under root.
func NewLocal(root, bucket, urlPrefix string) *Local {
	return &Local{root: root, bucket: bucket, urlPrefix: strings.TrimRight(urlPrefix, "/")}
}

// Name returns the bucket name.
func (l *Local) Name() string { return l.bucket }

// Dir returns the directory holding the bucket's objects.
func (l *Local) Dir() string {
	return filepath.Join(l.root, l.bucket)
}

func (l *Local) path(key string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.Dir(), filepath.FromSlash(key)), nil
}

// PublicURL returns the site-relative URL of key. Invalid keys yield "".
func (l *Local) PublicURL(key string) string {
	key, err := CleanKey(key)
	if err != nil {
		return ""
	}
	return l.urlPrefix + "/" + url.PathEscape(l.bucket) + "/" + escapeKey(key)
}

// Exists reports whether key is present.
func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	p, err := l.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Put writes r to key through a temp file so readers never see partial objects.
func (l *Local) Put(_ context.Context, key string, r io.Reader, opts PutOptions) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create bucket dir: %w", err)
	}
	if !opts.Upsert {
		if _, err := os.Stat(p); err == nil {
			return ErrExists
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}
