package api

import (
	"net/http"
	"time"
)

// deviceHealthWindow is how recently a device must have been seen to be
// reported "online"; past that it's "offline" rather than "unknown" since
// every record in the identity registry has been seen at least once.
const deviceHealthWindow = 5 * time.Minute

// DeviceSummary is the read-only introspection view of one registered
// Android device: no credentials, no live state, just enough to confirm
// the system knows about it and when it was last reachable.
type DeviceSummary struct {
	StableDeviceID string    `json:"stable_device_id"`
	Manufacturer   string    `json:"manufacturer"`
	Model          string    `json:"model"`
	Health         string    `json:"health"`
	LastSeenAt     time.Time `json:"last_seen_at"`
}

// handleListDevices returns every device the identity registry knows
// about, with a coarse health classification derived from LastSeenAt.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	records, err := s.resolver.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}

	now := time.Now()
	summaries := make([]DeviceSummary, 0, len(records))
	for _, rec := range records {
		health := "offline"
		if now.Sub(rec.LastSeenAt) < deviceHealthWindow {
			health = "online"
		}
		summaries = append(summaries, DeviceSummary{
			StableDeviceID: rec.SDID,
			Manufacturer:   rec.Manufacturer,
			Model:          rec.Model,
			Health:         health,
			LastSeenAt:     rec.LastSeenAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": summaries})
}
