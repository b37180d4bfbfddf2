// Package caldav implements the read-only CalDAV surface over the cached
// project snapshots.
package caldav

import (
	"fmt"
	"net/http"

	"github.com/beevik/etree"

	"github.com/kodcaldav/kodcaldav/internal/xml"
)

// HTTPError pairs an HTTP status with a message and an optional cause
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// NewHTTPError creates an error with the given status and cause
func NewHTTPError(status int, message string, err error) *HTTPError {
	return &HTTPError{Status: status, Message: message, Err: err}
}

// sendError writes an HTTPError to the response. A non-HTTPError is
// reported as a 500.
func (h *Handler) sendError(w http.ResponseWriter, err error) {
	httpErr, ok := err.(*HTTPError)
	if !ok {
		httpErr = &HTTPError{Status: http.StatusInternalServerError, Message: "internal server error", Err: err}
	}

	if httpErr.Status >= 500 {
		h.Logger.Error("request failed", "status", httpErr.Status, "error", httpErr)
	} else {
		h.Logger.Debug("request rejected", "status", httpErr.Status, "error", httpErr)
	}

	http.Error(w, httpErr.Message, httpErr.Status)
}

// sendPreconditionError writes a WebDAV error body naming the failed
// precondition, per RFC 4918 section 16.
func (h *Handler) sendPreconditionError(w http.ResponseWriter, status int, condition string) {
	davErr := xml.Error{Tag: condition}
	doc := docWithRoot(davErr.ToElement())

	body, err := doc.WriteToString()
	if err != nil {
		http.Error(w, condition, status)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

// docWithRoot wraps an element in a document with an XML declaration and
// the standard namespace attributes
func docWithRoot(root *etree.Element) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root.CreateAttr("xmlns:d", xml.DAV)
	root.CreateAttr("xmlns:cal", xml.CalDAV)
	root.CreateAttr("xmlns:cs", xml.CalendarServer)
	doc.AddChild(root)
	return doc
}
