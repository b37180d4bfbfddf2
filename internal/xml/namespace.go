package xml

import "github.com/beevik/etree"

// Namespace definitions for CalDAV and WebDAV
const (
	// DAV is the WebDAV namespace
	DAV = "DAV:"
	// CalDAV is the CalDAV namespace
	CalDAV = "urn:ietf:params:xml:ns:caldav"
	// CalendarServer is the Calendar Server namespace (used by some implementations)
	CalendarServer = "http://calendarserver.org/ns/"
)

// PropPrefix maps property and child element names to their namespace prefix.
// Names not listed here default to the WebDAV prefix.
var PropPrefix = map[string]string{
	// WebDAV properties
	"displayname":            "d",
	"resourcetype":           "d",
	"getetag":                "d",
	"getlastmodified":        "d",
	"getcontenttype":         "d",
	"owner":                  "d",
	"current-user-principal": "d",
	"principal-url":          "d",
	"sync-token":             "d",
	"status":                 "d",
	"collection":             "d",
	"principal":              "d",
	"href":                   "d",

	// CalDAV properties
	"calendar-description":             "cal",
	"calendar-data":                    "cal",
	"supported-calendar-component-set": "cal",
	"calendar-home-set":                "cal",
	"calendar":                         "cal",
	"comp":                             "cal",

	// Calendar Server extensions
	"getctag": "cs",
}

// AddNamespaces declares the standard CalDAV namespaces on the document root.
func AddNamespaces(doc *etree.Document) {
	root := doc.Root()
	if root == nil {
		return
	}
	root.CreateAttr("xmlns:d", DAV)
	root.CreateAttr("xmlns:cal", CalDAV)
	root.CreateAttr("xmlns:cs", CalendarServer)
}

// CreateElementWithNS creates a child element with the prefix taken from
// PropPrefix. Unknown names default to the WebDAV prefix.
func CreateElementWithNS(parent *etree.Element, name string) *etree.Element {
	prefix, ok := PropPrefix[name]
	if !ok {
		prefix = "d"
	}
	elem := etree.NewElement(name)
	elem.Space = prefix
	parent.AddChild(elem)
	return elem
}

// FindElementWithNS finds a direct child element by local tag name,
// ignoring any namespace prefix.
func FindElementWithNS(parent *etree.Element, name string) *etree.Element {
	for _, child := range parent.ChildElements() {
		if child.Tag == name {
			return child
		}
	}
	return nil
}
