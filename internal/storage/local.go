package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/soaringjerry/surveyhub/internal/services"
)

// LocalStore keeps uploaded blobs in a directory and exposes them under a URL
// prefix. Existing files are never overwritten.
type LocalStore struct {
	dir       string
	urlPrefix string
}

var _ services.BlobStore = (*LocalStore)(nil)

func NewLocalStore(dir, urlPrefix string) (*LocalStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("upload dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, urlPrefix: "/" + strings.Trim(urlPrefix, "/")}, nil
}

// Save writes r under name and returns the public path. A name collision gets
// a random suffix instead of replacing the earlier file.
func (s *LocalStore) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		return "", errors.New("empty blob name")
	}
	f, final, err := s.create(base)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, readerWithContext(ctx, r)); err != nil {
		_ = f.Close()
		_ = os.Remove(filepath.Join(s.dir, final))
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close blob: %w", err)
	}
	return s.urlPrefix + "/" + final, nil
}

func (s *LocalStore) create(base string) (*os.File, string, error) {
	name := base
	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return f, name, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("create blob: %w", err)
		}
		ext := filepath.Ext(base)
		name = strings.TrimSuffix(base, ext) + "_" + uuid.NewString()[:8] + ext
	}
	return nil, "", fmt.Errorf("create blob %s: too many collisions", base)
}

// Handler serves stored blobs; mount it under the store's URL prefix.
func (s *LocalStore) Handler() http.Handler {
	return http.StripPrefix(s.urlPrefix+"/", http.FileServer(http.Dir(s.dir)))
}

func (s *LocalStore) URLPrefix() string { return s.urlPrefix }

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	if ctx == nil {
		return r
	}
	return ctxReader{ctx: ctx, r: r}
}
