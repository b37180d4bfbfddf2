package caldav

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kodcaldav/kodcaldav/internal/cache"
)

// depthInfinity is any depth beyond what PROPFIND supports here
const depthInfinity = 100

// RequestContext holds parsed information about an incoming request
type RequestContext struct {
	Resource Resource
	Depth    int
}

// Handler serves the CalDAV surface under a path prefix. All reads come
// from the cache store; no request ever waits on upstream.
type Handler struct {
	Prefix string
	Store  *cache.Store
	Logger *slog.Logger
}

// Option configures a Handler
type Option func(*Handler)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.Logger = logger
	}
}

// NewHandler creates a handler reading from store, serving under prefix
func NewHandler(prefix string, store *cache.Store, opts ...Option) *Handler {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}
	h := &Handler{
		Prefix: prefix,
		Store:  store,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	relativePath := strings.TrimPrefix(r.URL.Path, strings.TrimSuffix(h.Prefix, "/"))

	resource, err := ParsePath(relativePath)
	if err != nil {
		h.sendError(w, NewHTTPError(http.StatusNotFound, "resource not found", err))
		return
	}

	depth, err := parseDepth(r.Header.Get("Depth"))
	if err != nil {
		h.sendError(w, NewHTTPError(http.StatusBadRequest, "invalid Depth header", err))
		return
	}

	ctx := &RequestContext{
		Resource: resource,
		Depth:    depth,
	}

	h.Logger.Debug("caldav request",
		"method", r.Method,
		"path", r.URL.Path,
		"type", resource.Type.String(),
		"depth", ctx.Depth)

	switch r.Method {
	case "PROPFIND":
		h.handlePropfind(w, r, ctx)
	case "REPORT":
		h.handleReport(w, r, ctx)
	case http.MethodGet, http.MethodHead:
		h.handleGet(w, r, ctx)
	case http.MethodOptions:
		h.handleOptions(w, r, ctx)
	case http.MethodPut, http.MethodDelete, http.MethodPost,
		"PROPPATCH", "MKCOL", "MKCALENDAR", "COPY", "MOVE":
		// The bridge is read-only; upstream is the single writer.
		w.Header().Set("Allow", allowedMethods)
		h.sendError(w, NewHTTPError(http.StatusMethodNotAllowed, "read-only collection", nil))
	default:
		h.sendError(w, NewHTTPError(http.StatusMethodNotAllowed, "method not allowed", nil))
	}
}

// href renders a resource's full path including the handler prefix
func (h *Handler) href(res Resource) string {
	p, err := EncodePath(res)
	if err != nil {
		return h.Prefix
	}
	return strings.TrimSuffix(h.Prefix, "/") + p
}

// parseDepth accepts the three Depth values RFC 4918 defines; anything
// else is a client error rather than an implicit depth 0.
func parseDepth(value string) (int, error) {
	switch value {
	case "", "0":
		return 0, nil
	case "1":
		return 1, nil
	case "infinity":
		return depthInfinity, nil
	}
	return 0, fmt.Errorf("invalid depth: %s", value)
}
