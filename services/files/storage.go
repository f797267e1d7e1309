package filesvc

import (
	"context"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/schoolms/backend/core"
)

// URLPrefix is the path under which stored files are served.
const URLPrefix = "/uploads/"

var (
	ErrInvalidRef = errors.New("invalid file reference")

	allowedExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}
)

// Storage keeps uploaded files in a directory of an afero filesystem.
type Storage struct {
	fs afero.Fs
}

var _ core.FileStorage = (*Storage)(nil)

// NewStorage returns a Storage rooted at dir of fs. dir is created if missing.
func NewStorage(fs afero.Fs, dir string) (*Storage, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating upload directory")
	}
	return &Storage{fs: afero.NewBasePathFs(fs, dir)}, nil
}

// Save stores r under a new random name keeping filename's extension, and returns its reference.
func (s *Storage) Save(_ context.Context, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExts[ext] {
		return "", core.NewValidationError(nil, core.FieldError{Field: "profileImage", Error: "unsupported image type"})
	}
	name := uuid.NewString() + ext

	f, err := s.fs.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", errors.Wrap(err, "creating file")
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(name)
		return "", errors.Wrap(err, "writing file")
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, "closing file")
	}
	return URLPrefix + name, nil
}

// Remove deletes the file behind ref. Missing files are ignored.
func (s *Storage) Remove(_ context.Context, ref string) error {
	name, err := nameFromRef(ref)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(name); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing file")
	}
	return nil
}

// Handler serves stored files; mount it under URLPrefix with the prefix stripped.
// Only plain files are served, the directory itself is never listed.
func (s *Storage) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, err := nameFromRef(URLPrefix + r.URL.Path)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		f, err := s.fs.Open(name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()

		fi, err := f.Stat()
		if err != nil || fi.IsDir() {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, name, fi.ModTime(), f)
	})
}

func nameFromRef(ref string) (string, error) {
	if !strings.HasPrefix(ref, URLPrefix) {
		return "", ErrInvalidRef
	}
	name := strings.TrimPrefix(ref, URLPrefix)
	if name == "" || name != path.Base(name) {
		return "", ErrInvalidRef
	}
	return name, nil
}
