package caldav

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kodcaldav/kodcaldav/internal/cache"
)

type healthCalendar struct {
	ProjectID  string     `json:"project_id"`
	Name       string     `json:"name"`
	Events     int        `json:"events"`
	Stale      bool       `json:"stale"`
	StaleSince *time.Time `json:"stale_since,omitempty"`
	LastSynced time.Time  `json:"last_synced"`
}

type healthReply struct {
	Status    string           `json:"status"`
	Seq       uint64           `json:"seq"`
	SyncedAt  *time.Time       `json:"synced_at,omitempty"`
	Calendars []healthCalendar `json:"calendars"`
}

// HealthHandler reports sync status as JSON. It is not authenticated, so it
// exposes no task data beyond project names and counts.
func HealthHandler(store *cache.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		snap := store.Load()

		reply := healthReply{
			Status:    "ok",
			Seq:       snap.Seq,
			Calendars: make([]healthCalendar, 0, len(snap.Order)),
		}
		if !snap.SyncedAt.IsZero() {
			t := snap.SyncedAt
			reply.SyncedAt = &t
		}
		if snap.Seq == 0 {
			reply.Status = "starting"
		}

		for _, id := range snap.Order {
			cal := snap.Calendars[id]
			hc := healthCalendar{
				ProjectID:  cal.ProjectID,
				Name:       cal.DisplayName,
				Events:     len(cal.Events),
				Stale:      cal.Stale,
				LastSynced: cal.LastSynced,
			}
			if cal.Stale {
				reply.Status = "degraded"
				if !cal.StaleSince.IsZero() {
					t := cal.StaleSince
					hc.StaleSince = &t
				}
			}
			reply.Calendars = append(reply.Calendars, hc)
		}

		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		_ = json.NewEncoder(w).Encode(reply)
	})
}
