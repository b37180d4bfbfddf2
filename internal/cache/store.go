package cache

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStaleToken indicates a sync token too old to compute a delta for
var ErrStaleToken = errors.New("stale sync token")

// historyLimit bounds the number of per-project deltas kept for
// sync-collection reports
const historyLimit = 32

// Delta records which members of one calendar changed in one publication
type Delta struct {
	Seq     uint64
	Changed []string
	Removed []string
}

type projectHistory struct {
	// floor is the highest seq whose delta has been discarded; tokens at
	// or below it can no longer be diffed
	floor  uint64
	deltas []Delta
}

// Store publishes and serves immutable snapshots.
//
// Load is wait-free. Publish is serialized and assumed to be called by a
// single sync engine.
type Store struct {
	cur atomic.Pointer[Snapshot]

	mu      sync.Mutex
	history map[string]*projectHistory
}

// NewStore creates a store holding an empty snapshot at sequence zero
func NewStore() *Store {
	s := &Store{history: make(map[string]*projectHistory)}
	s.cur.Store(&Snapshot{Calendars: map[string]*Calendar{}})
	return s
}

// Load returns the current snapshot
func (s *Store) Load() *Snapshot {
	return s.cur.Load()
}

// Publish installs a new snapshot built from the given calendars. Each
// calendar's CTag is computed here, and per-project deltas against the
// previous snapshot are recorded for sync-collection reports.
func (s *Store) Publish(calendars map[string]*Calendar, syncedAt time.Time) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cur.Load()
	next := &Snapshot{
		Seq:       prev.Seq + 1,
		Calendars: calendars,
		SyncedAt:  syncedAt,
	}

	for id, cal := range calendars {
		cal.CTag = CTagFor(cal.Events)
		next.Order = append(next.Order, id)

		changed, removed := diffCalendars(prev.Calendars[id], cal)
		if len(changed) > 0 || len(removed) > 0 {
			s.record(id, Delta{Seq: next.Seq, Changed: changed, Removed: removed})
		}
	}
	sort.Strings(next.Order)

	// Dropped projects lose their history; their tokens go stale.
	for id := range s.history {
		if _, ok := calendars[id]; !ok {
			delete(s.history, id)
		}
	}

	s.cur.Store(next)
	return next
}

// DiffSince reports which members of a project changed after the snapshot
// with sequence since. It returns ErrStaleToken when the token is ahead of
// the current snapshot or predates the retained history.
func (s *Store) DiffSince(projectID string, since uint64) (changed, removed []string, err error) {
	cur := s.cur.Load()
	if since > cur.Seq {
		return nil, nil, ErrStaleToken
	}
	if _, ok := cur.Calendars[projectID]; !ok {
		return nil, nil, ErrStaleToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ph := s.history[projectID]
	if ph == nil {
		// No changes recorded since the calendar appeared.
		return nil, nil, nil
	}
	if since < ph.floor {
		return nil, nil, ErrStaleToken
	}

	state := make(map[string]bool)
	for _, d := range ph.deltas {
		if d.Seq <= since {
			continue
		}
		for _, id := range d.Changed {
			state[id] = true
		}
		for _, id := range d.Removed {
			state[id] = false
		}
	}

	for id, present := range state {
		if present {
			changed = append(changed, id)
		} else {
			removed = append(removed, id)
		}
	}
	sort.Strings(changed)
	sort.Strings(removed)
	return changed, removed, nil
}

// record appends a delta, trimming the oldest entries past historyLimit.
// Caller holds s.mu.
func (s *Store) record(projectID string, d Delta) {
	ph := s.history[projectID]
	if ph == nil {
		ph = &projectHistory{}
		s.history[projectID] = ph
	}
	ph.deltas = append(ph.deltas, d)
	for len(ph.deltas) > historyLimit {
		ph.floor = ph.deltas[0].Seq
		ph.deltas = ph.deltas[1:]
	}
}

// diffCalendars lists task IDs added or re-rendered in next, and those
// present in prev but gone from next
func diffCalendars(prev, next *Calendar) (changed, removed []string) {
	if prev == nil {
		for _, ev := range next.Events {
			changed = append(changed, ev.TaskID)
		}
		return changed, nil
	}

	prevTags := make(map[string]string, len(prev.Events))
	for _, ev := range prev.Events {
		prevTags[ev.TaskID] = ev.ETag
	}

	for _, ev := range next.Events {
		tag, ok := prevTags[ev.TaskID]
		if !ok || tag != ev.ETag {
			changed = append(changed, ev.TaskID)
		}
		delete(prevTags, ev.TaskID)
	}
	for id := range prevTags {
		removed = append(removed, id)
	}
	sort.Strings(removed)
	return changed, removed
}
