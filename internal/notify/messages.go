package notify

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types emitted by the sync daemon towards foreground pages.
const (
	MsgUploadSynced    = "upload-synced"
	MsgSyncComplete    = "sync-complete"
	MsgUploadError     = "upload-error"
	MsgPersistNow      = "persist-now"
	MsgUploadOnlineAck = "upload-online-ack"
)

// Control message types sent by foreground pages towards the daemon.
const (
	MsgForceSync = "force-sync"
	MsgHeartbeat = "heartbeat"
)

// Message is the closed, tagged record exchanged between the daemon and
// foreground pages. Exactly the fields belonging to the tagged type are
// set; everything else stays zero and is omitted on the wire.
type Message struct {
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`

	// upload-synced, upload-error
	QueueID string `json:"queue_id,omitempty"`
	// sync-complete
	QueueIDs []string `json:"queue_ids,omitempty"`
	// upload-error
	Status       int    `json:"status,omitempty"`
	ErrorMessage string `json:"message,omitempty"`

	// upload-online-ack
	CategoryID   string  `json:"category_id,omitempty"`
	ThumbURL     string  `json:"thumb_url,omitempty"`
	SerialNumber string  `json:"serial_number,omitempty"`
	Meter        float64 `json:"meter,omitempty"`
}

// UploadSynced builds the per-item delivery confirmation.
func UploadSynced(queueID string) Message {
	return Message{Type: MsgUploadSynced, QueueID: queueID, CreatedAt: time.Now()}
}

// SyncComplete builds the batch confirmation for one drain pass.
func SyncComplete(queueIDs []string) Message {
	return Message{Type: MsgSyncComplete, QueueIDs: queueIDs, CreatedAt: time.Now()}
}

// UploadError reports one failed delivery attempt; the item stays queued.
func UploadError(queueID string, status int, message string) Message {
	return Message{Type: MsgUploadError, QueueID: queueID, Status: status, ErrorMessage: message, CreatedAt: time.Now()}
}

// PersistNow asks foregrounds to force-flush their in-memory snapshot.
func PersistNow() Message {
	return Message{Type: MsgPersistNow, CreatedAt: time.Now()}
}

// UploadOnlineAck reports an immediate, non-queued delivery so the
// foreground can fast-patch its view.
func UploadOnlineAck(categoryID, thumbURL, serialNumber string, meter float64) Message {
	return Message{
		Type:         MsgUploadOnlineAck,
		CategoryID:   categoryID,
		ThumbURL:     thumbURL,
		SerialNumber: serialNumber,
		Meter:        meter,
		CreatedAt:    time.Now(),
	}
}

// Encode serializes a message for the wire.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a wire message and rejects untagged payloads.
func Decode(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("decode notify message: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("notify message without type tag")
	}
	return m, nil
}
