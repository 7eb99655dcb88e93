package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/revittco/toolgw/internal/gwerr"
	"github.com/revittco/toolgw/internal/store"
)

// FileFetcher serves generated-file downloads produced by backend tools.
// The gateway only defines the interface; a concrete implementation is
// provided by whichever backend owns the files.
type FileFetcher interface {
	// Open returns the file content and its content type, or
	// store.ErrNotFound when no such file exists.
	Open(ctx context.Context, path string) (io.ReadCloser, string, error)
}

type filesHandler struct {
	fetcher FileFetcher
}

// get implements GET /files/{path...}. With no fetcher configured every
// path is a 404.
func (h *filesHandler) get(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	if h.fetcher == nil {
		writeGatewayError(w, gwerr.New(gwerr.NotFound, "file %q not found", path))
		return
	}

	rc, contentType, err := h.fetcher.Open(r.Context(), path)
	if errors.Is(err, store.ErrNotFound) {
		writeGatewayError(w, gwerr.New(gwerr.NotFound, "file %q not found", path))
		return
	}
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	defer rc.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if _, err := io.Copy(w, rc); err != nil {
		// The response is already in flight; nothing to send the client.
		return
	}
}
