package caldav

import (
	"net/http"
	"strings"
	"time"
)

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, ctx *RequestContext) {
	env := &propEnv{h: h, res: ctx.Resource, snap: h.Store.Load()}

	var data []byte
	var etag string
	var modified time.Time

	switch ctx.Resource.Type {
	case ResourceObject:
		ev, ok := env.event()
		if !ok {
			h.sendError(w, NewHTTPError(http.StatusNotFound, "object not found", nil))
			return
		}
		data, etag, modified = ev.Data, ev.ETag, ev.LastModified
	case ResourceAggregate:
		cal, ok := env.calendar()
		if !ok {
			h.sendError(w, NewHTTPError(http.StatusNotFound, "calendar not found", nil))
			return
		}
		data, etag, modified = cal.Aggregate, cal.AggregateETag, cal.LastSynced
	default:
		h.sendError(w, NewHTTPError(http.StatusMethodNotAllowed, "GET is only supported on calendar files", nil))
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	if !modified.IsZero() {
		w.Header().Set("Last-Modified", modified.UTC().Format(http.TimeFormat))
	}

	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// etagMatches evaluates an If-None-Match header against the current tag:
// a literal * matches anything, otherwise each member of the
// comma-separated list is compared, ignoring a weak-validator prefix.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
