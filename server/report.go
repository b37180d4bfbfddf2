package caldav

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/kodcaldav/kodcaldav/internal/cache"
	"github.com/kodcaldav/kodcaldav/internal/xml"
)

// syncTokenPrefix namespaces the snapshot sequence inside sync tokens
const syncTokenPrefix = "http://kodcaldav.dev/ns/sync/"

func formatSyncToken(seq uint64) string {
	return syncTokenPrefix + strconv.FormatUint(seq, 10)
}

func parseSyncToken(token string) (uint64, error) {
	rest, ok := strings.CutPrefix(token, syncTokenPrefix)
	if !ok {
		return 0, fmt.Errorf("unrecognized sync token: %s", token)
	}
	seq, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unrecognized sync token: %s", token)
	}
	return seq, nil
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request, ctx *RequestContext) {
	if ctx.Resource.Type != ResourceCollection {
		h.sendError(w, NewHTTPError(http.StatusMethodNotAllowed, "REPORT is only supported on calendars", nil))
		return
	}

	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r.Body); err != nil {
		h.sendError(w, NewHTTPError(http.StatusBadRequest, "malformed request body", err))
		return
	}

	var req xml.ReportRequest
	if err := req.Parse(doc); err != nil {
		h.sendError(w, NewHTTPError(http.StatusBadRequest, "unsupported report", err))
		return
	}

	env := &propEnv{h: h, res: ctx.Resource, snap: h.Store.Load()}
	cal, ok := env.calendar()
	if !ok {
		h.sendError(w, NewHTTPError(http.StatusNotFound, "calendar not found", nil))
		return
	}

	switch {
	case req.Query != nil:
		h.reportQuery(w, env, cal, req.Query)
	case req.MultiGet != nil:
		h.reportMultiget(w, env, req.MultiGet)
	case req.Sync != nil:
		h.reportSync(w, env, cal, req.Sync)
	default:
		h.sendError(w, NewHTTPError(http.StatusBadRequest, "empty report", nil))
	}
}

// reportQuery serves calendar-query: the calendar's members filtered by
// component type and time range.
func (h *Handler) reportQuery(w http.ResponseWriter, env *propEnv, cal *cache.Calendar, query *xml.CalendarQuery) {
	multi := xml.MultistatusResponse{}

	for i := range cal.Events {
		ev := &cal.Events[i]
		if !matchesFilter(ev, &query.Filter) {
			continue
		}
		res := Resource{Type: ResourceObject, ProjectID: env.res.ProjectID, TaskID: ev.TaskID}
		objEnv := &propEnv{h: h, res: res, snap: env.snap}
		multi.Responses = append(multi.Responses, xml.Response{
			Href:      h.href(res),
			PropStats: h.resolveProps(objEnv, reportProps(query.Props)),
		})
	}

	h.sendMultistatus(w, &multi)
}

// reportMultiget serves calendar-multiget: one response per requested
// href, 404 for members that do not exist.
func (h *Handler) reportMultiget(w http.ResponseWriter, env *propEnv, multiget *xml.CalendarMultiget) {
	multi := xml.MultistatusResponse{}
	props := reportProps(multiget.Props)

	for _, href := range multiget.Hrefs {
		relative := strings.TrimPrefix(href, strings.TrimSuffix(h.Prefix, "/"))
		res, err := ParsePath(relative)

		found := err == nil && res.Type == ResourceObject && res.ProjectID == env.res.ProjectID
		objEnv := &propEnv{h: h, res: res, snap: env.snap}
		if found {
			_, found = objEnv.event()
		}

		if !found {
			multi.Responses = append(multi.Responses, xml.Response{
				Href:   href,
				Status: "HTTP/1.1 404 Not Found",
			})
			continue
		}

		multi.Responses = append(multi.Responses, xml.Response{
			Href:      href,
			PropStats: h.resolveProps(objEnv, props),
		})
	}

	h.sendMultistatus(w, &multi)
}

// reportSync serves sync-collection per RFC 6578. An empty token means
// initial sync and lists every member.
func (h *Handler) reportSync(w http.ResponseWriter, env *propEnv, cal *cache.Calendar, sync *xml.SyncCollection) {
	props := sync.Props
	if len(props) == 0 {
		props = []string{"getetag"}
	}

	var changed, removed []string
	if sync.SyncToken == "" {
		for _, ev := range cal.Events {
			changed = append(changed, ev.TaskID)
		}
	} else {
		since, err := parseSyncToken(sync.SyncToken)
		if err != nil {
			h.sendPreconditionError(w, http.StatusForbidden, "valid-sync-token")
			return
		}
		changed, removed, err = h.Store.DiffSince(env.res.ProjectID, since)
		if err != nil {
			h.sendPreconditionError(w, http.StatusForbidden, "valid-sync-token")
			return
		}
	}

	multi := xml.MultistatusResponse{SyncToken: formatSyncToken(env.snap.Seq)}

	for _, taskID := range changed {
		res := Resource{Type: ResourceObject, ProjectID: env.res.ProjectID, TaskID: taskID}
		objEnv := &propEnv{h: h, res: res, snap: env.snap}
		if _, ok := objEnv.event(); !ok {
			// Changed earlier in the window but gone now
			multi.Responses = append(multi.Responses, xml.Response{
				Href:   h.href(res),
				Status: "HTTP/1.1 404 Not Found",
			})
			continue
		}
		multi.Responses = append(multi.Responses, xml.Response{
			Href:      h.href(res),
			PropStats: h.resolveProps(objEnv, props),
		})
	}

	for _, taskID := range removed {
		res := Resource{Type: ResourceObject, ProjectID: env.res.ProjectID, TaskID: taskID}
		multi.Responses = append(multi.Responses, xml.Response{
			Href:   h.href(res),
			Status: "HTTP/1.1 404 Not Found",
		})
	}

	h.sendMultistatus(w, &multi)
}

// reportProps defaults to etag plus data when the request names none
func reportProps(props []string) []string {
	if len(props) == 0 {
		return []string{"getetag", "calendar-data"}
	}
	return props
}

// matchesFilter applies a calendar-query filter to a cached event. The
// top-level VCALENDAR filter always matches; a nested component filter
// restricts by component name and time range.
func matchesFilter(ev *cache.Event, filter *xml.Filter) bool {
	if filter.ComponentName == "" {
		return true
	}
	if filter.ComponentName != "VCALENDAR" {
		return componentMatches(ev, filter)
	}
	if filter.SubFilter == nil {
		return true
	}
	return componentMatches(ev, filter.SubFilter)
}

func componentMatches(ev *cache.Event, filter *xml.Filter) bool {
	if filter.ComponentName != ev.Component {
		return false
	}
	if filter.TimeRange == nil {
		return true
	}
	return overlapsRange(ev, filter.TimeRange)
}

// overlapsRange checks the event's scheduled span against a time range.
// Undated members never match a time-range filter. Per RFC 4791 a
// zero-duration span matches when range-start <= t < range-end, so an
// instant sitting exactly on the range start is included.
func overlapsRange(ev *cache.Event, tr *xml.TimeRange) bool {
	start, end := ev.Start, ev.Due
	if start.IsZero() && end.IsZero() {
		return false
	}
	if start.IsZero() {
		start = end
	}
	if end.IsZero() {
		end = start
	}
	if tr.End != nil && !start.Before(*tr.End) {
		return false
	}
	if tr.Start == nil {
		return true
	}
	if start.Equal(end) {
		return !start.Before(*tr.Start)
	}
	return end.After(*tr.Start)
}
