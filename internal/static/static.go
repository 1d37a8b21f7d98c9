// Package static serves a compiled single-page application bundle from disk.
package static

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	appmiddleware "github.com/janisto/spa-server/internal/middleware"
	"github.com/janisto/spa-server/internal/respond"
)

// AssetsPrefix is where the bundler writes content-hashed output.
const AssetsPrefix = "/assets/"

type options struct {
	fallback    bool
	cacheMaxAge time.Duration
	notFound    http.Handler
}

// Option customizes Handler.
type Option func(*options)

// WithSPAFallback serves the index document for unknown HTML navigations.
func WithSPAFallback(enabled bool) Option {
	return func(o *options) { o.fallback = enabled }
}

// WithCacheMaxAge sets the max-age advertised for files under AssetsPrefix.
func WithCacheMaxAge(d time.Duration) Option {
	return func(o *options) { o.cacheMaxAge = d }
}

// WithNotFound replaces the enveloped 404 handler.
func WithNotFound(h http.Handler) Option {
	return func(o *options) { o.notFound = h }
}

type handler struct {
	root  fs.FS
	index string
	opts  options
}

// Handler serves files from dir. Requests for directories resolve to their
// index file. Only GET and HEAD are accepted.
func Handler(dir, index string, opts ...Option) http.Handler {
	return FS(os.DirFS(dir), index, opts...)
}

// FS is Handler over an arbitrary file system, such as an embedded bundle.
func FS(root fs.FS, index string, opts ...Option) http.Handler {
	o := options{
		fallback:    true,
		cacheMaxAge: 365 * 24 * time.Hour,
		notFound:    respond.NotFoundHandler(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &handler{root: root, index: index, opts: o}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		respond.MethodNotAllowedHandler(http.MethodGet, http.MethodHead)(w, r)
		return
	}

	name := path.Clean("/" + r.URL.Path)
	if name == "/" {
		name = "/" + h.index
	}

	f, info, err := h.open(name)
	if err == nil && info.IsDir() {
		f.Close()
		name = path.Join(name, h.index)
		f, info, err = h.open(name)
	}
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			appmiddleware.LogWarn(r.Context(), "static open failed", zap.String("path", name), zap.Error(err))
		}
		if h.opts.fallback && wantsDocument(r) {
			h.serveIndex(w, r)
			return
		}
		h.opts.notFound.ServeHTTP(w, r)
		return
	}
	defer f.Close()

	h.setCacheControl(w, name)
	serveFile(w, r, f, info)
}

func (h *handler) serveIndex(w http.ResponseWriter, r *http.Request) {
	name := "/" + h.index
	f, info, err := h.open(name)
	if err != nil {
		appmiddleware.LogError(r.Context(), "index document unavailable", err, zap.String("index", h.index))
		h.opts.notFound.ServeHTTP(w, r)
		return
	}
	defer f.Close()

	h.setCacheControl(w, name)
	serveFile(w, r, f, info)
}

func (h *handler) open(name string) (fs.File, fs.FileInfo, error) {
	f, err := h.root.Open(strings.TrimPrefix(name, "/"))
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, info, nil
}

// setCacheControl makes hashed assets long-lived and everything else revalidate.
func (h *handler) setCacheControl(w http.ResponseWriter, name string) {
	if strings.HasPrefix(name, AssetsPrefix) && h.opts.cacheMaxAge > 0 {
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d, immutable", int64(h.opts.cacheMaxAge.Seconds())))
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
}

// serveFile goes through ServeContent so ranges and conditional requests work.
// Files that cannot seek are buffered first.
func serveFile(w http.ResponseWriter, r *http.Request, f fs.File, info fs.FileInfo) {
	rs, ok := f.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(f)
		if err != nil {
			_ = respond.WriteError(w, r.Context(), http.StatusInternalServerError, "", "", nil, err)
			return
		}
		rs = bytes.NewReader(data)
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), rs)
}

// wantsDocument reports whether r looks like a browser navigation:
// no file extension in the last segment and an Accept header that allows HTML.
func wantsDocument(r *http.Request) bool {
	if path.Ext(r.URL.Path) != "" {
		return false
	}
	accept := r.Header.Get("Accept")
	return accept == "" || strings.Contains(accept, "text/html") || strings.Contains(accept, "*/*")
}
