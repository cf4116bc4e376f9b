package server

import (
	"fmt"
	"net/http"
	"strings"
)

// NormalizeBasePath ensures the base path starts and ends with '/'.
func NormalizeBasePath(basePath string) string {
	if basePath == "" {
		return "/"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if !strings.HasSuffix(basePath, "/") {
		basePath = basePath + "/"
	}
	return basePath
}

// BaseHandler serves the application under a public base path. Requests
// under the base have it stripped before reaching inner; the bare base
// without its trailing slash redirects; everything else is a 404 that names
// the base.
type BaseHandler struct {
	basePath string
	inner    http.Handler
}

// NewBaseHandler wraps inner with base path handling. If basePath is "/",
// it returns inner directly.
func NewBaseHandler(basePath string, inner http.Handler) http.Handler {
	bp := NormalizeBasePath(basePath)
	if bp == "/" {
		return inner
	}
	return &BaseHandler{basePath: bp, inner: inner}
}

func (h *BaseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, h.basePath) {
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/" + strings.TrimPrefix(r.URL.Path, h.basePath)
		r2.URL.RawPath = ""
		h.inner.ServeHTTP(w, r2)
		return
	}

	if r.URL.Path+"/" == h.basePath {
		target := h.basePath
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintf(w, "The server is configured with a public base URL of %s - did you mean to visit %s%s instead?\n",
		h.basePath, strings.TrimSuffix(h.basePath, "/"), r.URL.Path)
}
