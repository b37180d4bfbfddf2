// Package cache holds the immutable in-memory view of upstream data that
// request handlers read from.
//
// The sync engine builds a complete set of calendars each cycle and
// publishes it as a new Snapshot. Readers load the current snapshot with a
// single atomic pointer read and never observe a half-updated view.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// Event is one rendered task, ready to serve
type Event struct {
	TaskID       string
	Summary      string
	Component    string
	Start        time.Time
	Due          time.Time
	LastModified time.Time
	ETag         string
	Data         []byte
}

// Calendar is the rendered state of one project
type Calendar struct {
	ProjectID   string
	DisplayName string
	Description string
	CTag        string

	// Events is sorted by TaskID
	Events []Event

	// Aggregate is the whole project rendered as a single VCALENDAR
	Aggregate     []byte
	AggregateETag string

	// Stale marks a calendar carried forward after its project failed to
	// refresh. StaleSince is the time of the first failed refresh.
	Stale      bool
	StaleSince time.Time
	LastSynced time.Time
}

// Event looks up a rendered task by ID
func (c *Calendar) Event(taskID string) (*Event, bool) {
	i := sort.Search(len(c.Events), func(i int) bool {
		return c.Events[i].TaskID >= taskID
	})
	if i < len(c.Events) && c.Events[i].TaskID == taskID {
		return &c.Events[i], true
	}
	return nil, false
}

// CarryForward clones the calendar as stale, keeping the previously served
// data intact. The first failure sets StaleSince; later ones keep it.
func (c *Calendar) CarryForward(now time.Time) *Calendar {
	clone := *c
	if !clone.Stale {
		clone.Stale = true
		clone.StaleSince = now
	}
	return &clone
}

// Snapshot is one immutable published view. Seq increases by one with
// every publication.
type Snapshot struct {
	Seq       uint64
	Calendars map[string]*Calendar

	// Order lists project IDs sorted lexicographically
	Order []string

	SyncedAt time.Time
}

// Calendar looks up a project's calendar
func (s *Snapshot) Calendar(projectID string) (*Calendar, bool) {
	c, ok := s.Calendars[projectID]
	return c, ok
}

// ETagFor derives the entity tag for rendered calendar object data
func ETagFor(data []byte) string {
	sum := sha256.Sum256(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// CTagFor derives a collection tag from the member set. It is a pure
// function of the members' IDs and entity tags, so an unchanged project
// keeps its ctag across sync cycles.
func CTagFor(events []Event) string {
	h := sha256.New()
	for _, ev := range events {
		h.Write([]byte(ev.TaskID))
		h.Write([]byte{0})
		h.Write([]byte(ev.ETag))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
