package server

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/plainmed/plainmed/config"
	"go.uber.org/zap"
)

// SPAHandler serves the built client application. Requests that match a
// file on disk get that file; anything else falls back to the entry page so
// client-side routes resolve after a full page load.
type SPAHandler struct {
	dir    string
	index  string
	logger *zap.Logger
}

// NewSPAHandler creates a handler serving cfg.Dir with cfg.Index as the
// fallback page.
func NewSPAHandler(cfg config.StaticConfig, logger *zap.Logger) *SPAHandler {
	return &SPAHandler{
		dir:    cfg.Dir,
		index:  cfg.Index,
		logger: logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Clean against the root first so ".." segments cannot escape the
	// static directory.
	rel := filepath.Clean("/" + r.URL.Path)
	path := filepath.Join(h.dir, rel)

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		h.serveIndex(w, r)
		return
	}

	http.ServeFile(w, r, path)
}

func (h *SPAHandler) serveIndex(w http.ResponseWriter, r *http.Request) {
	index := filepath.Join(h.dir, h.index)
	if _, err := os.Stat(index); err != nil {
		h.logger.Warn("client entry page not found",
			zap.String("path", index),
		)
		http.NotFound(w, r)
		return
	}

	// The entry page answers for every client-side route, so it must not
	// be cached under those routes' URLs.
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, index)
}
