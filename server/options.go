package caldav

import "net/http"

// allowedMethods lists everything the read-only surface answers
const allowedMethods = "OPTIONS, PROPFIND, REPORT, GET, HEAD"

func (h *Handler) handleOptions(w http.ResponseWriter, r *http.Request, ctx *RequestContext) {
	w.Header().Set("Allow", allowedMethods)
	w.Header().Set("DAV", "1, 3, calendar-access")
	w.WriteHeader(http.StatusOK)
}
