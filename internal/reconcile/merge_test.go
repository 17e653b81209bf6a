package reconcile

import (
	"testing"
	"time"

	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/models"
)

func slot(id string, candidates ...models.PhotoEntry) models.DocumentationSlot {
	return models.DocumentationSlot{ID: id, Name: id, Candidates: candidates}
}

func entry(id, state string) models.PhotoEntry {
	return models.PhotoEntry{ID: id, UploadState: state, CreatedAt: time.Now()}
}

func TestMergeLocalWinsWhileUploadInFlight(t *testing.T) {
	// The server snapshot predates the in-flight upload, so it lacks the
	// uploading candidate entirely. The merge must not drop it.
	uploaded := entry("p1", models.UploadStateUploaded)
	uploaded.ServerID = "srv-1"
	uploading := entry("p2", models.UploadStateUploading)
	uploading.Thumbnail = []byte("thumb-p2")

	local := []models.DocumentationSlot{slot("ont", uploaded, uploading)}
	server := []models.DocumentationSlot{slot("ont", uploaded)}

	merged := Merge(server, local)
	if len(merged) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(merged))
	}
	if len(merged[0].Candidates) != 2 {
		t.Fatalf("in-flight candidate lost: %+v", merged[0].Candidates)
	}
	if merged[0].Candidate("p2") == nil {
		t.Fatalf("uploading candidate p2 must survive the merge")
	}
}

func TestMergeServerWinsWhenSlotSettled(t *testing.T) {
	localEntry := entry("p1", models.UploadStateUploaded)
	localEntry.ServerID = "srv-1"
	localEntry.Thumbnail = []byte("local-thumb")
	localEntry.Sharpness = 17.5

	serverEntry := entry("p1", models.UploadStateUploaded)
	serverEntry.ServerID = "srv-1"
	serverEntry.RemoteURL = "https://cdn.example/p1.jpg"

	local := []models.DocumentationSlot{slot("router", localEntry)}
	local[0].SerialNumber = "SN-42"
	local[0].AnnouncedServerID = "srv-1"
	server := []models.DocumentationSlot{slot("router", serverEntry)}
	server[0].RepresentativeID = "p1"

	merged := Merge(server, local)
	got := merged[0]

	if got.RepresentativeID != "p1" {
		t.Fatalf("server representative must be adopted, got %q", got.RepresentativeID)
	}
	c := got.Candidate("p1")
	if c == nil {
		t.Fatalf("candidate p1 missing")
	}
	if c.RemoteURL != "https://cdn.example/p1.jpg" {
		t.Fatalf("server fields must win, got %q", c.RemoteURL)
	}
	if string(c.Thumbnail) != "local-thumb" {
		t.Fatalf("local thumbnail must be preserved, got %q", c.Thumbnail)
	}
	if c.Sharpness != 17.5 {
		t.Fatalf("local sharpness must be preserved, got %v", c.Sharpness)
	}
	if got.SerialNumber != "SN-42" {
		t.Fatalf("local serial number must survive when server has none, got %q", got.SerialNumber)
	}
	if got.AnnouncedServerID != "srv-1" {
		t.Fatalf("announcement marker must survive the merge, got %q", got.AnnouncedServerID)
	}
}

func TestMergeServerOnlyAndLocalOnlySlots(t *testing.T) {
	server := []models.DocumentationSlot{slot("a"), slot("b")}
	local := []models.DocumentationSlot{slot("b"), slot("c", entry("p9", models.UploadStateQueued))}

	merged := Merge(server, local)
	if len(merged) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(merged))
	}
	// Server ordering first, local-only appended.
	for i, want := range []string{"a", "b", "c"} {
		if merged[i].ID != want {
			t.Fatalf("slot %d: expected %s, got %s", i, want, merged[i].ID)
		}
	}
}

func TestMergeMatchesByServerID(t *testing.T) {
	// After a drain the local id may differ from what the server stores
	// under; the durable id still pairs them.
	localEntry := entry("local-1", models.UploadStateUploaded)
	localEntry.ServerID = "srv-9"
	localEntry.Thumbnail = []byte("t")

	serverEntry := entry("srv-9", models.UploadStateUploaded)
	serverEntry.ServerID = "srv-9"

	merged := Merge(
		[]models.DocumentationSlot{slot("s", serverEntry)},
		[]models.DocumentationSlot{slot("s", localEntry)},
	)
	if string(merged[0].Candidates[0].Thumbnail) != "t" {
		t.Fatalf("thumbnail not carried over via server id match")
	}
}
