package models

import "time"

// Upload states of a single photo candidate. Transitions are forward-only
// except error->queued (retry) and uploading->queued (client timeout).
const (
	UploadStateQueued    = "queued"
	UploadStateUploading = "uploading"
	UploadStateUploaded  = "uploaded"
	UploadStateError     = "error"
)

// PhotoEntry is one captured image proposed for a documentation slot.
// The entry is local-first: ID is generated at capture time and becomes
// durable only once the server echoes it back.
type PhotoEntry struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	// Thumbnail is always retained; the full-resolution payload is
	// dropped after a confirmed upload to save memory.
	Thumbnail []byte `json:"thumbnail,omitempty"`
	Payload   []byte `json:"-"`

	RemoteURL string  `json:"remote_url,omitempty"`
	Sharpness float64 `json:"sharpness"`

	UploadState string `json:"upload_state"`
	// QueueID correlates to a QueueRecord while UploadState is queued.
	QueueID string `json:"queue_id,omitempty"`
	// ServerID is the durable id assigned by the backend, empty until
	// the upload is acknowledged.
	ServerID string `json:"server_id,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
}

// Durable reports whether the server has acknowledged this entry.
func (p *PhotoEntry) Durable() bool {
	return p.ServerID != ""
}

// InFlight reports whether the entry still has work outstanding.
func (p *PhotoEntry) InFlight() bool {
	return p.UploadState == UploadStateQueued || p.UploadState == UploadStateUploading
}

// DocumentationSlot is one named photo category within a job. Candidates
// keep capture order; RepresentativeID references an element of
// Candidates whenever the slot is non-empty and at least one candidate
// has a durable id.
type DocumentationSlot struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	RequiresSerialNumber bool         `json:"requires_serial_number"`
	Candidates           []PhotoEntry `json:"candidates,omitempty"`
	RepresentativeID     string       `json:"representative_id,omitempty"`
	// AnnouncedServerID is the durable id of the representative last
	// reported to the backend, so the choice is announced exactly once.
	AnnouncedServerID string `json:"announced_server_id,omitempty"`

	SerialNumber string  `json:"serial_number,omitempty"`
	CableMeters  float64 `json:"cable_meters,omitempty"`
}

// Candidate returns the candidate with the given local id, or nil.
func (s *DocumentationSlot) Candidate(id string) *PhotoEntry {
	for i := range s.Candidates {
		if s.Candidates[i].ID == id {
			return &s.Candidates[i]
		}
	}
	return nil
}

// AggregateUploadState derives the slot-level delivery state: uploaded
// only when no candidate still requires delivery.
func (s *DocumentationSlot) AggregateUploadState() string {
	state := UploadStateUploaded
	for i := range s.Candidates {
		switch s.Candidates[i].UploadState {
		case UploadStateError:
			return UploadStateError
		case UploadStateQueued, UploadStateUploading:
			state = UploadStateUploading
		}
	}
	return state
}

// HasInFlight reports whether any candidate is queued or uploading.
func (s *DocumentationSlot) HasInFlight() bool {
	for i := range s.Candidates {
		if s.Candidates[i].InFlight() {
			return true
		}
	}
	return false
}

// JobSnapshot is the serialized per-job slot collection persisted to the
// local snapshot store after every registry mutation.
type JobSnapshot struct {
	JobID   string              `json:"job_id"`
	Slots   []DocumentationSlot `json:"slots"`
	SavedAt time.Time           `json:"saved_at"`
}

// SlotCategory describes one entry of the documentation catalog loaded
// from configuration: which slots a job starts with.
type SlotCategory struct {
	ID                   string `yaml:"id" json:"id"`
	Name                 string `yaml:"name" json:"name"`
	RequiresSerialNumber bool   `yaml:"requires_serial_number" json:"requires_serial_number"`
}
