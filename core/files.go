package core

import (
	"context"
	"io"
	"net/http"
)

// FileStorage stores uploaded files (profile images) and returns a stable reference path
// such as "/uploads/<name>" that can be served back to clients.
type FileStorage interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	Remove(ctx context.Context, ref string) error
	// Handler serves stored files by name, with the reference prefix already stripped.
	Handler() http.Handler
}
