// Package registry holds the per-job candidate photo state: which photos
// were captured against which documentation slot, how sharp they are,
// which one represents the slot, and how far each upload has progressed.
// Every mutation is written through to the snapshot store before the
// call returns, so a crash or restart resumes from the last mutation.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/domain"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/metrics"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/models"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/notify"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/reconcile"
)

var (
	ErrUnknownJob      = errors.New("registry: unknown job")
	ErrUnknownSlot     = errors.New("registry: unknown slot")
	ErrUnknownEntry    = errors.New("registry: unknown candidate")
	ErrDurableEntry    = errors.New("registry: candidate already acknowledged by the server")
	ErrNotRetryable    = errors.New("registry: candidate is not in the error state")
	ErrPayloadRequired = errors.New("registry: candidate payload is empty")
	ErrUndecodable     = errors.New("registry: candidate image cannot be decoded")
)

// Registry manages documentation slots and their photo candidates for
// all currently open jobs.
type Registry struct {
	mu   sync.Mutex
	jobs map[string][]models.DocumentationSlot

	snapshots  domain.SnapshotStore
	queue      domain.QueueStore
	gateway    domain.Submitter
	scorer     domain.Scorer
	notifier   domain.Notifier
	routes     Routes
	categories []models.SlotCategory
	logger     zerolog.Logger
}

func New(snapshots domain.SnapshotStore, queue domain.QueueStore, gw domain.Submitter, scorer domain.Scorer, notifier domain.Notifier, routes Routes, categories []models.SlotCategory, logger *zerolog.Logger) *Registry {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "registry").Logger()
	}
	return &Registry{
		jobs:       make(map[string][]models.DocumentationSlot),
		snapshots:  snapshots,
		queue:      queue,
		gateway:    gw,
		scorer:     scorer,
		notifier:   notifier,
		routes:     routes,
		categories: categories,
		logger:     l,
	}
}

// OpenJob loads a job into the registry: from the snapshot store when a
// previous session left one, otherwise fresh from the slot catalog.
func (r *Registry) OpenJob(ctx context.Context, jobID string) ([]models.DocumentationSlot, error) {
	if jobID == "" {
		return nil, fmt.Errorf("registry: job id is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if slots, ok := r.jobs[jobID]; ok {
		return copySlots(slots), nil
	}

	snapshot, err := r.snapshots.GetSnapshot(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("restore job %s: %w", jobID, err)
	}
	if snapshot != nil {
		slots := snapshot.Slots
		for i := range slots {
			for j := range slots[i].Candidates {
				c := &slots[i].Candidates[j]
				// The full payload is not serialized, so an upload that
				// was interrupted mid-flight cannot resume. Queued
				// entries are fine: their payload sits in the queue
				// record and the daemon delivers it.
				if c.UploadState == models.UploadStateUploading {
					c.UploadState = models.UploadStateError
					c.ErrorMessage = "upload interrupted by restart"
				}
			}
		}
		r.jobs[jobID] = slots
		r.logger.Info().Str("job_id", jobID).Int("slots", len(slots)).Msg("job restored from snapshot")
		return copySlots(slots), nil
	}

	slots := make([]models.DocumentationSlot, 0, len(r.categories))
	for _, cat := range r.categories {
		slots = append(slots, models.DocumentationSlot{
			ID:                   cat.ID,
			Name:                 cat.Name,
			RequiresSerialNumber: cat.RequiresSerialNumber,
		})
	}
	r.jobs[jobID] = slots
	if err := r.persistLocked(ctx, jobID); err != nil {
		return nil, err
	}
	r.logger.Info().Str("job_id", jobID).Int("slots", len(slots)).Msg("job opened")
	return copySlots(slots), nil
}

// Slots returns a copy of the job's current slot state.
func (r *Registry) Slots(jobID string) ([]models.DocumentationSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slots, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrUnknownJob
	}
	return copySlots(slots), nil
}

// uploadAck is the backend's response body for an accepted photo.
type uploadAck struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// AddCandidate scores a captured photo, records it against the slot and
// hands the upload to the submission gateway in the background; the
// caller gets the uploading entry back immediately. The candidate is
// persisted before any network activity, so an offline capture is never
// lost. An image the scorer cannot decode is rejected outright.
func (r *Registry) AddCandidate(ctx context.Context, jobID, slotID string, payload, thumbnail []byte) (*models.PhotoEntry, error) {
	if len(payload) == 0 {
		return nil, ErrPayloadRequired
	}
	sharpness, err := r.scorer.ScoreBytes(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	slot, err := r.slotLocked(jobID, slotID)
	if err != nil {
		return nil, err
	}

	entry := models.PhotoEntry{
		ID:          uuid.Must(uuid.NewV7()).String(),
		CreatedAt:   time.Now().UTC(),
		Payload:     payload,
		Thumbnail:   thumbnail,
		Sharpness:   sharpness,
		UploadState: models.UploadStateUploading,
	}
	slot.Candidates = append(slot.Candidates, entry)
	// Sharpness is known at capture time, so the representative can be
	// recomputed before the upload settles.
	r.refreshRepresentativeLocked(jobID, slot)
	if err := r.persistLocked(ctx, jobID); err != nil {
		return nil, err
	}

	go r.completeSubmission(jobID, slotID, entry.ID)

	out := entry
	return &out, nil
}

// completeSubmission runs the gateway call for one candidate outside the
// registry lock and applies the outcome afterwards.
func (r *Registry) completeSubmission(jobID, slotID, entryID string) {
	ctx := context.Background()

	r.mu.Lock()
	slot, err := r.slotLocked(jobID, slotID)
	if err != nil {
		r.mu.Unlock()
		return
	}
	entry := slot.Candidate(entryID)
	if entry == nil {
		r.mu.Unlock()
		return
	}
	req := &models.SubmissionRequest{
		TargetURL: r.routes.PhotoUpload(jobID, slotID),
		Method:    "POST",
		Headers:   map[string]string{"Content-Type": "application/octet-stream"},
		Body:      entry.Payload,
		Kind:      models.SubmissionKindPhoto,
	}
	r.mu.Unlock()

	result, submitErr := r.gateway.Submit(ctx, req)

	r.mu.Lock()
	defer r.mu.Unlock()

	slot, err = r.slotLocked(jobID, slotID)
	if err != nil {
		return
	}
	entry = slot.Candidate(entryID)
	if entry == nil {
		// Removed while the upload was running; nothing to record.
		return
	}

	switch {
	case submitErr != nil:
		entry.UploadState = models.UploadStateError
		entry.ErrorMessage = submitErr.Error()
		r.logger.Error().Err(submitErr).Str("photo_id", entry.ID).Msg("candidate submission failed")
	case result.Queued:
		entry.UploadState = models.UploadStateQueued
		entry.QueueID = result.QueueID
		r.logger.Info().Str("photo_id", entry.ID).Str("queue_id", result.QueueID).Msg("candidate queued for background sync")
	default:
		entry.UploadState = models.UploadStateUploaded
		var ack uploadAck
		if err := json.Unmarshal(result.Response, &ack); err == nil {
			entry.ServerID = ack.ID
			entry.RemoteURL = ack.URL
		}
		// Full payload is no longer needed once the server holds the image.
		entry.Payload = nil
		r.publish(notify.UploadOnlineAck(slot.ID, entry.RemoteURL, slot.SerialNumber, slot.CableMeters))
		r.logger.Info().Str("photo_id", entry.ID).Str("server_id", entry.ServerID).Msg("candidate uploaded")
	}

	r.refreshRepresentativeLocked(jobID, slot)
	if err := r.persistLocked(ctx, jobID); err != nil {
		r.logger.Error().Err(err).Str("job_id", jobID).Msg("snapshot after submission failed")
	}
}

// RemoveCandidate discards a candidate that the server has not yet
// acknowledged. Acknowledged photos can only be superseded, not removed,
// so the local view never disagrees with the server about what exists.
func (r *Registry) RemoveCandidate(ctx context.Context, jobID, slotID, entryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, err := r.slotLocked(jobID, slotID)
	if err != nil {
		return err
	}
	idx := -1
	for i := range slot.Candidates {
		if slot.Candidates[i].ID == entryID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrUnknownEntry
	}
	entry := &slot.Candidates[idx]
	if entry.Durable() {
		return ErrDurableEntry
	}
	if entry.QueueID != "" && r.queue != nil {
		// Delete is a no-op when the drain already consumed the record.
		if err := r.queue.Delete(ctx, entry.QueueID); err != nil {
			r.logger.Warn().Err(err).Str("queue_id", entry.QueueID).Msg("orphaned queue record not removed")
		}
	}
	slot.Candidates = append(slot.Candidates[:idx], slot.Candidates[idx+1:]...)
	r.refreshRepresentativeLocked(jobID, slot)
	return r.persistLocked(ctx, jobID)
}

// RetryCandidate re-submits a candidate that ended in the error state.
func (r *Registry) RetryCandidate(ctx context.Context, jobID, slotID, entryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, err := r.slotLocked(jobID, slotID)
	if err != nil {
		return err
	}
	entry := slot.Candidate(entryID)
	if entry == nil {
		return ErrUnknownEntry
	}
	if entry.UploadState != models.UploadStateError {
		return ErrNotRetryable
	}
	if len(entry.Payload) == 0 {
		return ErrPayloadRequired
	}
	entry.UploadState = models.UploadStateUploading
	entry.ErrorMessage = ""
	if err := r.persistLocked(ctx, jobID); err != nil {
		return err
	}
	go r.completeSubmission(jobID, slotID, entryID)
	return nil
}

// SetSerialNumber records the operator-entered serial number and sends
// the update to the backend through the gateway.
func (r *Registry) SetSerialNumber(ctx context.Context, jobID, slotID, serial string) error {
	return r.updateMetadata(ctx, jobID, slotID, func(slot *models.DocumentationSlot) any {
		slot.SerialNumber = serial
		return map[string]string{"serial_number": serial}
	})
}

// SetMeasurement records the cable-length measurement for the slot.
func (r *Registry) SetMeasurement(ctx context.Context, jobID, slotID string, meters float64) error {
	return r.updateMetadata(ctx, jobID, slotID, func(slot *models.DocumentationSlot) any {
		slot.CableMeters = meters
		return map[string]float64{"cable_meters": meters}
	})
}

func (r *Registry) updateMetadata(ctx context.Context, jobID, slotID string, apply func(*models.DocumentationSlot) any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, err := r.slotLocked(jobID, slotID)
	if err != nil {
		return err
	}
	body, err := json.Marshal(apply(slot))
	if err != nil {
		return fmt.Errorf("encode metadata update: %w", err)
	}
	if err := r.persistLocked(ctx, jobID); err != nil {
		return err
	}

	req := &models.SubmissionRequest{
		TargetURL: r.routes.SlotMetadata(jobID, slot.ID),
		Method:    "PUT",
		Headers:   map[string]string{"Content-Type": "application/json"},
		Body:      body,
		Kind:      models.SubmissionKindMetadata,
	}
	slotID = slot.ID
	// The gateway queues the update itself on failure, so the outcome
	// only needs logging.
	go func() {
		if _, err := r.gateway.Submit(context.Background(), req); err != nil {
			r.logger.Error().Err(err).Str("slot_id", slotID).Msg("metadata submission failed")
		}
	}()
	return nil
}

// ApplyServerState reconciles a freshly fetched server snapshot with the
// local state. Slots with in-flight uploads keep their local view.
func (r *Registry) ApplyServerState(ctx context.Context, jobID string, serverSlots []models.DocumentationSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	local, ok := r.jobs[jobID]
	if !ok {
		return ErrUnknownJob
	}
	merged := reconcile.Merge(serverSlots, local)
	r.jobs[jobID] = merged
	// Candidates drained in the background pick up their durable id
	// here, so the representative choice may become announceable now.
	for i := range merged {
		r.refreshRepresentativeLocked(jobID, &merged[i])
	}
	return r.persistLocked(ctx, jobID)
}

// PersistNow flushes every open job to the snapshot store. Triggered by
// the persist-now broadcast when connectivity drops.
func (r *Registry) PersistNow(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for jobID := range r.jobs {
		if err := r.persistLocked(ctx, jobID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AttachBus wires the registry to sync-daemon broadcasts so drain
// outcomes update candidate states.
func (r *Registry) AttachBus(bus *notify.Bus) {
	bus.Subscribe(notify.MsgUploadSynced, func(msg notify.Message) {
		r.resolveQueued(msg.QueueID, true, 0, "")
	})
	bus.Subscribe(notify.MsgUploadError, func(msg notify.Message) {
		r.resolveQueued(msg.QueueID, false, msg.Status, msg.ErrorMessage)
	})
	bus.Subscribe(notify.MsgPersistNow, func(notify.Message) {
		if err := r.PersistNow(context.Background()); err != nil {
			r.logger.Error().Err(err).Msg("persist-now flush failed")
		}
	})
}

// resolveQueued applies one drain outcome to whichever candidate the
// queue record belonged to.
func (r *Registry) resolveQueued(queueID string, synced bool, status int, message string) {
	if queueID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for jobID, slots := range r.jobs {
		for i := range slots {
			slot := &slots[i]
			for j := range slot.Candidates {
				entry := &slot.Candidates[j]
				if entry.QueueID != queueID {
					continue
				}
				switch {
				case synced:
					entry.UploadState = models.UploadStateUploaded
					entry.QueueID = ""
					entry.ErrorMessage = ""
					entry.Payload = nil
				case status == 0:
					// Network-level failure, no verdict from the backend.
					// The record stays queued and the daemon keeps trying;
					// the user only ever sees a pending indicator.
					r.logger.Debug().Str("queue_id", queueID).Str("reason", message).Msg("transient delivery failure, candidate stays queued")
					return
				default:
					entry.UploadState = models.UploadStateError
					entry.ErrorMessage = fmt.Sprintf("status %d: %s", status, message)
				}
				r.refreshRepresentativeLocked(jobID, slot)
				if err := r.persistLocked(context.Background(), jobID); err != nil {
					r.logger.Error().Err(err).Str("job_id", jobID).Msg("snapshot after drain outcome failed")
				}
				return
			}
		}
	}
	r.logger.Debug().Str("queue_id", queueID).Msg("drain outcome for unknown queue record")
}

// refreshRepresentativeLocked recomputes the slot representative and
// announces it to the backend outside the lock. The announcement fires
// when a durable candidate takes over the slot and also when the
// current representative's own upload settles with a server id, since
// the local choice is made before the ack arrives.
func (r *Registry) refreshRepresentativeLocked(jobID string, slot *models.DocumentationSlot) {
	slot.RepresentativeID = SelectRepresentative(slot.Candidates)

	entry := slot.Candidate(slot.RepresentativeID)
	if entry == nil || !entry.Durable() {
		// Announced on a later recompute once the upload settles.
		return
	}
	if slot.AnnouncedServerID == entry.ServerID {
		return
	}
	slot.AnnouncedServerID = entry.ServerID
	go r.pushRepresentative(jobID, slot.ID, entry.ServerID)
}

func (r *Registry) pushRepresentative(jobID, slotID, serverID string) {
	body, err := json.Marshal(map[string]string{"photo_id": serverID})
	if err != nil {
		return
	}
	if _, err := r.gateway.Submit(context.Background(), &models.SubmissionRequest{
		TargetURL: r.routes.Representative(jobID, slotID),
		Method:    "POST",
		Headers:   map[string]string{"Content-Type": "application/json"},
		Body:      body,
		Kind:      models.SubmissionKindMetadata,
	}); err != nil {
		r.logger.Error().Err(err).Str("slot_id", slotID).Msg("representative submission failed")
	}
}

func (r *Registry) slotLocked(jobID, slotID string) (*models.DocumentationSlot, error) {
	slots, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrUnknownJob
	}
	for i := range slots {
		if slots[i].ID == slotID {
			return &slots[i], nil
		}
	}
	return nil, ErrUnknownSlot
}

func (r *Registry) persistLocked(ctx context.Context, jobID string) error {
	err := r.snapshots.SaveSnapshot(ctx, &models.JobSnapshot{
		JobID:   jobID,
		Slots:   r.jobs[jobID],
		SavedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("persist job %s: %w", jobID, err)
	}
	metrics.IncSnapshotWrite()
	return nil
}

func (r *Registry) publish(msg notify.Message) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Publish(msg); err != nil {
		r.logger.Warn().Err(err).Str("type", msg.Type).Msg("notify publish failed")
	}
}

func copySlots(slots []models.DocumentationSlot) []models.DocumentationSlot {
	out := make([]models.DocumentationSlot, len(slots))
	copy(out, slots)
	for i := range out {
		out[i].Candidates = append([]models.PhotoEntry(nil), slots[i].Candidates...)
	}
	return out
}
