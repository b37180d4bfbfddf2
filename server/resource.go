package caldav

import (
	"fmt"
	"strings"
)

// ResourceType identifies what kind of node a request path addresses
type ResourceType int

const (
	ResourceUnknown ResourceType = iota
	// ResourceRoot is the service root
	ResourceRoot
	// ResourcePrincipal is the single principal resource
	ResourcePrincipal
	// ResourceHomeSet is the calendar home collection
	ResourceHomeSet
	// ResourceCollection is one project's calendar
	ResourceCollection
	// ResourceObject is one task rendered as a calendar object
	ResourceObject
	// ResourceAggregate is a whole project rendered as one .ics file
	ResourceAggregate
)

func (t ResourceType) String() string {
	switch t {
	case ResourceRoot:
		return "root"
	case ResourcePrincipal:
		return "principal"
	case ResourceHomeSet:
		return "homeset"
	case ResourceCollection:
		return "collection"
	case ResourceObject:
		return "object"
	case ResourceAggregate:
		return "aggregate"
	default:
		return "unknown"
	}
}

// principalName is the path segment of the single served principal.
// Upstream data is fetched with one account, so the bridge exposes exactly
// one principal regardless of the authenticated username.
const principalName = "kodbox"

// aggregateName is the file name of a project's combined calendar
const aggregateName = "calendar.ics"

// Resource is a parsed request path
type Resource struct {
	Type      ResourceType
	ProjectID string
	TaskID    string
	// URI is the path the resource was parsed from, if any
	URI string
}

// ParsePath maps a path relative to the handler prefix onto a Resource
func ParsePath(path string) (Resource, error) {
	res := Resource{URI: path}

	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		res.Type = ResourceRoot
		return res, nil
	}

	segments := strings.Split(trimmed, "/")
	switch segments[0] {
	case "principals":
		switch len(segments) {
		case 1:
			res.Type = ResourcePrincipal
			return res, nil
		case 2:
			if segments[1] == principalName {
				res.Type = ResourcePrincipal
				return res, nil
			}
		}
	case "calendars":
		switch len(segments) {
		case 1:
			res.Type = ResourceHomeSet
			return res, nil
		case 2:
			res.Type = ResourceCollection
			res.ProjectID = segments[1]
			return res, nil
		case 3:
			res.ProjectID = segments[1]
			if segments[2] == aggregateName {
				res.Type = ResourceAggregate
				return res, nil
			}
			if taskID, ok := strings.CutSuffix(segments[2], ".ics"); ok && taskID != "" {
				res.Type = ResourceObject
				res.TaskID = taskID
				return res, nil
			}
		}
	}

	return Resource{}, fmt.Errorf("unrecognized path: %s", path)
}

// EncodePath renders a resource as a path relative to the handler prefix
func EncodePath(res Resource) (string, error) {
	switch res.Type {
	case ResourceRoot:
		return "/", nil
	case ResourcePrincipal:
		return fmt.Sprintf("/principals/%s/", principalName), nil
	case ResourceHomeSet:
		return "/calendars/", nil
	case ResourceCollection:
		return fmt.Sprintf("/calendars/%s/", res.ProjectID), nil
	case ResourceObject:
		return fmt.Sprintf("/calendars/%s/%s.ics", res.ProjectID, res.TaskID), nil
	case ResourceAggregate:
		return fmt.Sprintf("/calendars/%s/%s", res.ProjectID, aggregateName), nil
	default:
		return "", fmt.Errorf("cannot encode resource type %s", res.Type)
	}
}
