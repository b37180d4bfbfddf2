package caldav

import (
	"errors"
	"io"
	"net/http"

	"github.com/beevik/etree"
	"github.com/samber/mo"

	"github.com/kodcaldav/kodcaldav/internal/cache"
	"github.com/kodcaldav/kodcaldav/internal/xml"
)

// errPropNotFound marks a property this resource does not carry
var errPropNotFound = errors.New("property not found")

// propEnv carries the resources a resolver may need
type propEnv struct {
	h    *Handler
	res  Resource
	snap *cache.Snapshot
}

func (e *propEnv) calendar() (*cache.Calendar, bool) {
	return e.snap.Calendar(e.res.ProjectID)
}

func (e *propEnv) event() (*cache.Event, bool) {
	cal, ok := e.calendar()
	if !ok {
		return nil, false
	}
	return cal.Event(e.res.TaskID)
}

// Resolver resolves a single property for the given environment
type Resolver func(env *propEnv) mo.Result[xml.Property]

func textProp(name, value string) mo.Result[xml.Property] {
	return mo.Ok(xml.Property{Name: name, TextContent: value})
}

func hrefProp(name, href string) mo.Result[xml.Property] {
	return mo.Ok(xml.Property{
		Name:     name,
		Children: []xml.Property{{Name: "href", TextContent: href}},
	})
}

// principalHref is shared by several identity properties
func principalHref(env *propEnv, name string) mo.Result[xml.Property] {
	return hrefProp(name, env.h.href(Resource{Type: ResourcePrincipal}))
}

// commonResolvers apply to every resource type
var commonResolvers = map[string]Resolver{
	"current-user-principal": func(env *propEnv) mo.Result[xml.Property] {
		return principalHref(env, "current-user-principal")
	},
	"principal-url": func(env *propEnv) mo.Result[xml.Property] {
		return principalHref(env, "principal-url")
	},
	"owner": func(env *propEnv) mo.Result[xml.Property] {
		return principalHref(env, "owner")
	},
	"calendar-home-set": func(env *propEnv) mo.Result[xml.Property] {
		return hrefProp("calendar-home-set", env.h.href(Resource{Type: ResourceHomeSet}))
	},
}

var rootResolvers = map[string]Resolver{
	"resourcetype": func(env *propEnv) mo.Result[xml.Property] {
		return mo.Ok(xml.Property{
			Name:     "resourcetype",
			Children: []xml.Property{{Name: "collection"}},
		})
	},
	"displayname": func(env *propEnv) mo.Result[xml.Property] {
		return textProp("displayname", "KodBox CalDAV Bridge")
	},
}

var principalResolvers = map[string]Resolver{
	"resourcetype": func(env *propEnv) mo.Result[xml.Property] {
		return mo.Ok(xml.Property{
			Name:     "resourcetype",
			Children: []xml.Property{{Name: "collection"}, {Name: "principal"}},
		})
	},
	"displayname": func(env *propEnv) mo.Result[xml.Property] {
		return textProp("displayname", principalName)
	},
}

var homeSetResolvers = map[string]Resolver{
	"resourcetype": func(env *propEnv) mo.Result[xml.Property] {
		return mo.Ok(xml.Property{
			Name:     "resourcetype",
			Children: []xml.Property{{Name: "collection"}},
		})
	},
	"displayname": func(env *propEnv) mo.Result[xml.Property] {
		return textProp("displayname", "Calendars")
	},
}

var collectionResolvers = map[string]Resolver{
	"resourcetype": func(env *propEnv) mo.Result[xml.Property] {
		return mo.Ok(xml.Property{
			Name:     "resourcetype",
			Children: []xml.Property{{Name: "collection"}, {Name: "calendar"}},
		})
	},
	"displayname": func(env *propEnv) mo.Result[xml.Property] {
		cal, ok := env.calendar()
		if !ok {
			return mo.Err[xml.Property](errPropNotFound)
		}
		return textProp("displayname", cal.DisplayName)
	},
	"calendar-description": func(env *propEnv) mo.Result[xml.Property] {
		cal, ok := env.calendar()
		if !ok || cal.Description == "" {
			return mo.Err[xml.Property](errPropNotFound)
		}
		return textProp("calendar-description", cal.Description)
	},
	"getctag": func(env *propEnv) mo.Result[xml.Property] {
		cal, ok := env.calendar()
		if !ok {
			return mo.Err[xml.Property](errPropNotFound)
		}
		return textProp("getctag", cal.CTag)
	},
	"sync-token": func(env *propEnv) mo.Result[xml.Property] {
		return textProp("sync-token", formatSyncToken(env.snap.Seq))
	},
	"supported-calendar-component-set": func(env *propEnv) mo.Result[xml.Property] {
		return mo.Ok(xml.Property{
			Name: "supported-calendar-component-set",
			Children: []xml.Property{
				{Name: "comp", Attributes: map[string]string{"name": "VEVENT"}},
				{Name: "comp", Attributes: map[string]string{"name": "VTODO"}},
			},
		})
	},
}

var objectResolvers = map[string]Resolver{
	"resourcetype": func(env *propEnv) mo.Result[xml.Property] {
		return mo.Ok(xml.Property{Name: "resourcetype"})
	},
	"getetag": func(env *propEnv) mo.Result[xml.Property] {
		ev, ok := env.event()
		if !ok {
			return mo.Err[xml.Property](errPropNotFound)
		}
		return textProp("getetag", ev.ETag)
	},
	"getcontenttype": func(env *propEnv) mo.Result[xml.Property] {
		return textProp("getcontenttype", "text/calendar; charset=utf-8")
	},
	"getlastmodified": func(env *propEnv) mo.Result[xml.Property] {
		ev, ok := env.event()
		if !ok || ev.LastModified.IsZero() {
			return mo.Err[xml.Property](errPropNotFound)
		}
		return textProp("getlastmodified", ev.LastModified.UTC().Format(http.TimeFormat))
	},
	"calendar-data": func(env *propEnv) mo.Result[xml.Property] {
		ev, ok := env.event()
		if !ok {
			return mo.Err[xml.Property](errPropNotFound)
		}
		return textProp("calendar-data", string(ev.Data))
	},
}

var aggregateResolvers = map[string]Resolver{
	"resourcetype": func(env *propEnv) mo.Result[xml.Property] {
		return mo.Ok(xml.Property{Name: "resourcetype"})
	},
	"getetag": func(env *propEnv) mo.Result[xml.Property] {
		cal, ok := env.calendar()
		if !ok {
			return mo.Err[xml.Property](errPropNotFound)
		}
		return textProp("getetag", cal.AggregateETag)
	},
	"getcontenttype": func(env *propEnv) mo.Result[xml.Property] {
		return textProp("getcontenttype", "text/calendar; charset=utf-8")
	},
	"getlastmodified": func(env *propEnv) mo.Result[xml.Property] {
		cal, ok := env.calendar()
		if !ok || cal.LastSynced.IsZero() {
			return mo.Err[xml.Property](errPropNotFound)
		}
		return textProp("getlastmodified", cal.LastSynced.UTC().Format(http.TimeFormat))
	},
	"calendar-data": func(env *propEnv) mo.Result[xml.Property] {
		cal, ok := env.calendar()
		if !ok {
			return mo.Err[xml.Property](errPropNotFound)
		}
		return textProp("calendar-data", string(cal.Aggregate))
	},
}

func resolversFor(t ResourceType) map[string]Resolver {
	switch t {
	case ResourceRoot:
		return rootResolvers
	case ResourcePrincipal:
		return principalResolvers
	case ResourceHomeSet:
		return homeSetResolvers
	case ResourceCollection:
		return collectionResolvers
	case ResourceObject:
		return objectResolvers
	case ResourceAggregate:
		return aggregateResolvers
	default:
		return nil
	}
}

// defaultProps is the allprop set per resource type
func defaultProps(t ResourceType) []string {
	switch t {
	case ResourceCollection:
		return []string{"resourcetype", "displayname", "calendar-description",
			"getctag", "sync-token", "supported-calendar-component-set", "owner"}
	case ResourceObject, ResourceAggregate:
		return []string{"resourcetype", "getetag", "getcontenttype", "getlastmodified"}
	default:
		return []string{"resourcetype", "displayname", "current-user-principal"}
	}
}

func (h *Handler) handlePropfind(w http.ResponseWriter, r *http.Request, ctx *RequestContext) {
	if ctx.Depth >= depthInfinity {
		h.sendPreconditionError(w, http.StatusForbidden, "propfind-finite-depth")
		return
	}

	names, err := parsePropfindBody(r.Body, ctx.Resource.Type)
	if err != nil {
		h.sendError(w, NewHTTPError(http.StatusBadRequest, "malformed request body", err))
		return
	}

	env := &propEnv{h: h, res: ctx.Resource, snap: h.Store.Load()}

	// The addressed resource must exist before any multistatus is built
	if !h.resourceExists(env) {
		h.sendError(w, NewHTTPError(http.StatusNotFound, "resource not found", nil))
		return
	}

	multi := xml.MultistatusResponse{}
	multi.Responses = append(multi.Responses, h.propfindResponse(env, names))

	if ctx.Depth >= 1 {
		for _, child := range h.children(env) {
			childEnv := &propEnv{h: h, res: child, snap: env.snap}
			multi.Responses = append(multi.Responses, h.propfindResponse(childEnv, names))
		}
	}

	h.sendMultistatus(w, &multi)
}

func (h *Handler) resourceExists(env *propEnv) bool {
	switch env.res.Type {
	case ResourceCollection, ResourceAggregate:
		_, ok := env.calendar()
		return ok
	case ResourceObject:
		_, ok := env.event()
		return ok
	default:
		return true
	}
}

// children lists the direct members of a resource for depth 1 listings.
// Aggregate files are a fetch convenience and are not listed as members.
func (h *Handler) children(env *propEnv) []Resource {
	switch env.res.Type {
	case ResourceRoot:
		return []Resource{
			{Type: ResourcePrincipal},
			{Type: ResourceHomeSet},
		}
	case ResourceHomeSet:
		children := make([]Resource, 0, len(env.snap.Order))
		for _, id := range env.snap.Order {
			children = append(children, Resource{Type: ResourceCollection, ProjectID: id})
		}
		return children
	case ResourceCollection:
		cal, ok := env.calendar()
		if !ok {
			return nil
		}
		children := make([]Resource, 0, len(cal.Events))
		for _, ev := range cal.Events {
			children = append(children, Resource{
				Type:      ResourceObject,
				ProjectID: env.res.ProjectID,
				TaskID:    ev.TaskID,
			})
		}
		return children
	default:
		return nil
	}
}

func (h *Handler) propfindResponse(env *propEnv, names []string) xml.Response {
	return xml.Response{
		Href:      h.href(env.res),
		PropStats: h.resolveProps(env, names),
	}
}

// resolveProps splits requested properties into found and missing propstats
func (h *Handler) resolveProps(env *propEnv, names []string) []xml.PropStat {
	resolvers := resolversFor(env.res.Type)

	var found []xml.Property
	var missing []string
	for _, name := range names {
		resolver, ok := resolvers[name]
		if !ok {
			resolver, ok = commonResolvers[name]
		}
		if !ok {
			missing = append(missing, name)
			continue
		}
		if prop, err := resolver(env).Get(); err == nil {
			found = append(found, prop)
		} else {
			missing = append(missing, name)
		}
	}

	var stats []xml.PropStat
	if len(found) > 0 || len(missing) == 0 {
		stats = append(stats, xml.OKPropStat(found))
	}
	if len(missing) > 0 {
		stats = append(stats, xml.NotFoundPropStat(missing))
	}
	return stats
}

// parsePropfindBody returns the requested property names. An empty body or
// allprop request falls back to the resource type's default set.
func parsePropfindBody(body io.Reader, t ResourceType) ([]string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return defaultProps(t), nil
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, err
	}

	var req xml.PropfindRequest
	if err := req.Parse(doc); err != nil {
		return nil, err
	}
	if req.AllProp || req.PropNames || len(req.Prop) == 0 {
		names := defaultProps(t)
		return append(names, req.Include...), nil
	}
	return req.Prop, nil
}

func (h *Handler) sendMultistatus(w http.ResponseWriter, multi *xml.MultistatusResponse) {
	body, err := multi.WriteToString()
	if err != nil {
		h.sendError(w, NewHTTPError(http.StatusInternalServerError, "failed to encode response", err))
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	io.WriteString(w, body)
}
