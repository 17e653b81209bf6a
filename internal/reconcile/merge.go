// Package reconcile merges a server job snapshot with the locally held
// slot state. The rule is conservative: a slot with in-flight local
// candidates is authoritative locally, because the server cannot yet
// know about photos still sitting in the durable queue. Everything else
// adopts the server view while keeping local-only transients the server
// never stores.
package reconcile

import (
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/models"
)

// Merge combines serverSlots with localSlots into the state the registry
// should hold after a refetch. Ordering follows the server, with
// local-only slots appended in their local order.
func Merge(serverSlots, localSlots []models.DocumentationSlot) []models.DocumentationSlot {
	localByID := make(map[string]*models.DocumentationSlot, len(localSlots))
	for i := range localSlots {
		localByID[localSlots[i].ID] = &localSlots[i]
	}

	merged := make([]models.DocumentationSlot, 0, len(serverSlots))
	seen := make(map[string]bool, len(serverSlots))

	for i := range serverSlots {
		server := serverSlots[i]
		seen[server.ID] = true

		local, ok := localByID[server.ID]
		if !ok {
			merged = append(merged, server)
			continue
		}
		if local.HasInFlight() {
			// The queue still owes the server photos from this slot;
			// overwriting now would make them vanish from the UI until
			// the next drain. Keep the local slot untouched.
			merged = append(merged, *local)
			continue
		}
		merged = append(merged, adoptServer(server, local))
	}

	// Slots the server does not know about yet (captured against a stale
	// catalog, or created offline) survive the merge.
	for i := range localSlots {
		if !seen[localSlots[i].ID] {
			merged = append(merged, localSlots[i])
		}
	}
	return merged
}

// adoptServer takes the server slot as truth and copies back the
// client-side transients the server never persists: thumbnails, retained
// payloads and operator inputs the server has no value for.
func adoptServer(server models.DocumentationSlot, local *models.DocumentationSlot) models.DocumentationSlot {
	for i := range server.Candidates {
		sc := &server.Candidates[i]
		lc := matchCandidate(local, sc)
		if lc == nil {
			continue
		}
		if len(sc.Thumbnail) == 0 {
			sc.Thumbnail = lc.Thumbnail
		}
		if len(sc.Payload) == 0 {
			sc.Payload = lc.Payload
		}
		if sc.Sharpness == 0 && lc.Sharpness != 0 {
			sc.Sharpness = lc.Sharpness
		}
	}

	if server.SerialNumber == "" {
		server.SerialNumber = local.SerialNumber
	}
	if server.CableMeters == 0 {
		server.CableMeters = local.CableMeters
	}
	// The announcement marker is client bookkeeping; losing it would make
	// the registry re-announce a representative the backend already knows.
	server.AnnouncedServerID = local.AnnouncedServerID
	return server
}

// matchCandidate pairs a server candidate with its local counterpart,
// by durable server id first and by local id as fallback: the server may
// echo either depending on whether the upload went through the gateway
// or the drain path.
func matchCandidate(local *models.DocumentationSlot, sc *models.PhotoEntry) *models.PhotoEntry {
	for i := range local.Candidates {
		lc := &local.Candidates[i]
		if sc.ServerID != "" && sc.ServerID == lc.ServerID {
			return lc
		}
		if sc.ID != "" && sc.ID == lc.ID {
			return lc
		}
	}
	return nil
}
