package server

import (
	"bytes"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const indexFile = "index.html"

// StaticHandler serves project files from a filesystem and falls back to
// index.html for any extensionless path that doesn't match a file, enabling
// SPA client-side routing while returning 404 for missing files with
// extensions. HTML responses can carry an injected script.
type StaticHandler struct {
	filesystem fs.FS
	inject     func(html []byte) []byte
}

// NewStaticHandler creates a handler serving files from fsys. inject may be
// nil; when set it rewrites every HTML document before it is sent.
func NewStaticHandler(fsys fs.FS, inject func(html []byte) []byte) *StaticHandler {
	return &StaticHandler{filesystem: fsys, inject: inject}
}

func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		name = indexFile
	}

	if info, err := fs.Stat(h.filesystem, name); err == nil {
		if !info.IsDir() {
			h.serveFile(w, r, name)
			return
		}
		// Directories resolve to their index; listings are never served.
		if _, err := fs.Stat(h.filesystem, path.Join(name, indexFile)); err == nil {
			h.serveFile(w, r, path.Join(name, indexFile))
			return
		}
	}

	// Paths with extensions (e.g., .css, .js, .png) are real file requests
	// and get a 404 rather than HTML under the wrong MIME type.
	if path.Ext(name) != "" {
		http.NotFound(w, r)
		return
	}

	if _, err := fs.Stat(h.filesystem, indexFile); err != nil {
		http.NotFound(w, r)
		return
	}
	h.serveFile(w, r, indexFile)
}

func (h *StaticHandler) serveFile(w http.ResponseWriter, r *http.Request, name string) {
	f, err := h.filesystem.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")

	isHTML := path.Ext(name) == ".html" || path.Ext(name) == ".htm"
	seeker, seekable := f.(io.ReadSeeker)
	if !isHTML && seekable {
		ctype, err := contentType(name, seeker)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", ctype)
		http.ServeContent(w, r, name, info.ModTime(), seeker)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if isHTML {
		if h.inject != nil {
			data = h.inject(data)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		// The body differs from the file on disk, so conditional requests
		// against the file's mtime would be wrong.
		http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
		return
	}
	w.Header().Set("Content-Type", sniff(name, data))
	http.ServeContent(w, r, name, info.ModTime(), bytes.NewReader(data))
}

// contentType resolves the MIME type by extension, falling back to content
// sniffing for unknown extensions. The reader is rewound afterwards.
func contentType(name string, rs io.ReadSeeker) (string, error) {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t, nil
	}
	m, err := mimetype.DetectReader(rs)
	if err != nil {
		return "", err
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return m.String(), nil
}

func sniff(name string, data []byte) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return mimetype.Detect(data).String()
}
