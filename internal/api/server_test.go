package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/config"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/models"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/registry"
)

type fakeSync struct {
	mu         sync.Mutex
	forced     int
	heartbeats int
	online     bool
}

func (f *fakeSync) ForceSync() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forced++
}

func (f *fakeSync) Heartbeat(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
}

func (f *fakeSync) Online() bool { return f.online }

type fakeQueue struct {
	records []*models.QueueRecord
}

func (f *fakeQueue) Put(context.Context, *models.QueueRecord) error { return nil }
func (f *fakeQueue) Get(context.Context, string) (*models.QueueRecord, error) {
	return nil, errors.New("not found")
}
func (f *fakeQueue) List(context.Context) ([]*models.QueueRecord, error) { return f.records, nil }
func (f *fakeQueue) Delete(context.Context, string) error                { return nil }
func (f *fakeQueue) Len(context.Context) (int, error)                    { return len(f.records), nil }
func (f *fakeQueue) RecordAttempt(context.Context, string, int, string) error {
	return nil
}

type fakeSnapshots struct {
	mu    sync.Mutex
	saved map[string]*models.JobSnapshot
}

func (f *fakeSnapshots) SaveSnapshot(_ context.Context, s *models.JobSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[string]*models.JobSnapshot)
	}
	f.saved[s.JobID] = s
	return nil
}
func (f *fakeSnapshots) GetSnapshot(context.Context, string) (*models.JobSnapshot, error) {
	return nil, nil
}
func (f *fakeSnapshots) DeleteSnapshot(context.Context, string) error { return nil }

type fakeGateway struct{}

func (fakeGateway) Submit(_ context.Context, _ *models.SubmissionRequest) (*models.SubmissionResult, error) {
	body, _ := json.Marshal(map[string]string{"id": "srv-1", "url": "https://cdn.example/1.jpg"})
	return &models.SubmissionResult{OK: true, StatusCode: 201, Response: body}, nil
}

type fakeScorer struct{}

func (fakeScorer) ScoreBytes(data []byte) (float64, error) {
	if string(data) == "garbage" {
		return 0, errors.New("undecodable")
	}
	return float64(len(data)), nil
}

func newTestServer(t *testing.T, cfg config.APIConfig, sync SyncController, queue *fakeQueue) *Server {
	t.Helper()
	categories := []models.SlotCategory{{ID: "ont", Name: "ONT"}}
	reg := registry.New(&fakeSnapshots{}, queue, fakeGateway{}, fakeScorer{}, nil, registry.Routes{BaseURL: "http://backend"}, categories, nil)
	return NewServer(cfg, reg, queue, sync, nil)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func doJSON(t *testing.T, handler http.Handler, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthzNeedsNoKey(t *testing.T) {
	cfg := config.APIConfig{
		Port: 0,
		Auth: config.APIAuthConfig{Enabled: true, APIKeys: []config.APIClientKey{{Key: "secret", Name: "test"}}},
	}
	srv := newTestServer(t, cfg, &fakeSync{online: true}, &fakeQueue{})

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["online"] != true {
		t.Fatalf("expected online=true, got %v", resp)
	}
}

func TestAuthRejectsBadKey(t *testing.T) {
	cfg := config.APIConfig{
		Auth: config.APIAuthConfig{Enabled: true, APIKeys: []config.APIClientKey{{Key: "secret", Name: "test"}}},
	}
	srv := newTestServer(t, cfg, &fakeSync{}, &fakeQueue{})

	if rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/queue", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: expected 401, got %d", rec.Code)
	}
	if rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/queue", "wrong", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: expected 401, got %d", rec.Code)
	}
	if rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/queue", "secret", nil); rec.Code != http.StatusOK {
		t.Fatalf("valid key: expected 200, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := config.APIConfig{
		RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 1},
	}
	srv := newTestServer(t, cfg, &fakeSync{}, &fakeQueue{})

	if rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/queue", "client", nil); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	if rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/queue", "client", nil); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rec.Code)
	}
}

func TestPhotoLifecycle(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{}, &fakeSync{}, &fakeQueue{})
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/jobs/job-1/slots/ont/photos", "", map[string]any{
		"payload":   []byte("a real photo payload"),
		"thumbnail": []byte("thumb"),
	})
	if rec.Code != http.StatusNotFound {
		// Job must be opened before photos are accepted.
		t.Fatalf("expected 404 before job open, got %d", rec.Code)
	}

	if rec := doJSON(t, h, http.MethodGet, "/api/v1/jobs/job-1/slots", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("open job: %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/jobs/job-1/slots/ont/photos", "", map[string]any{
		"payload":   []byte("a real photo payload"),
		"thumbnail": []byte("thumb"),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add photo: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var entry models.PhotoEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.UploadState != models.UploadStateUploading {
		t.Fatalf("capture must return an uploading entry, got %+v", entry)
	}

	// The background upload settles shortly after.
	waitFor(t, func() bool {
		rec := doJSON(t, h, http.MethodGet, "/api/v1/jobs/job-1/slots", "", nil)
		var resp struct {
			Slots []models.DocumentationSlot `json:"slots"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			return false
		}
		for _, slot := range resp.Slots {
			if c := slot.Candidate(entry.ID); c != nil {
				return c.UploadState == models.UploadStateUploaded && c.ServerID == "srv-1"
			}
		}
		return false
	})

	// Undecodable payloads are rejected.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/jobs/job-1/slots/ont/photos", "", map[string]any{
		"payload": []byte("garbage"),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("garbage payload: expected 400, got %d", rec.Code)
	}

	// Unknown slot is 404.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/jobs/job-1/slots/nope/photos", "", map[string]any{
		"payload": []byte("x"),
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown slot: expected 404, got %d", rec.Code)
	}

	// An acknowledged photo cannot be deleted.
	rec = doJSON(t, h, http.MethodDelete, "/api/v1/jobs/job-1/slots/ont/photos/"+entry.ID, "", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("delete durable: expected 409, got %d", rec.Code)
	}
}

func TestMetadataEndpoints(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{}, &fakeSync{}, &fakeQueue{})
	h := srv.Handler()
	doJSON(t, h, http.MethodGet, "/api/v1/jobs/job-1/slots", "", nil)

	rec := doJSON(t, h, http.MethodPut, "/api/v1/jobs/job-1/slots/ont/serial-number", "", map[string]string{"serial_number": "SN-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("serial: %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, h, http.MethodPut, "/api/v1/jobs/job-1/slots/ont/serial-number", "", map[string]string{"serial_number": "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank serial: expected 400, got %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPut, "/api/v1/jobs/job-1/slots/ont/measurement", "", map[string]float64{"cable_meters": -1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative meters: expected 400, got %d", rec.Code)
	}
}

func TestSyncAndHeartbeat(t *testing.T) {
	sync := &fakeSync{}
	srv := newTestServer(t, config.APIConfig{}, sync, &fakeQueue{})
	h := srv.Handler()

	if rec := doJSON(t, h, http.MethodPost, "/api/v1/sync", "", nil); rec.Code != http.StatusAccepted {
		t.Fatalf("sync: %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, "/api/v1/heartbeat", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("heartbeat: %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/api/v1/sync", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET sync: expected 405, got %d", rec.Code)
	}

	sync.mu.Lock()
	defer sync.mu.Unlock()
	if sync.forced != 1 || sync.heartbeats != 1 {
		t.Fatalf("controller calls: forced=%d heartbeats=%d", sync.forced, sync.heartbeats)
	}
}

func TestQueueListing(t *testing.T) {
	lastAttempt := time.Now().UTC().Truncate(time.Second)
	queue := &fakeQueue{records: []*models.QueueRecord{
		{ID: "q1", Kind: models.SubmissionKindPhoto, TargetURL: "http://b/1", CreatedAt: time.Now(), Attempts: 2, LastStatus: 502, LastAttemptAt: &lastAttempt},
		{ID: "q2", Kind: models.SubmissionKindMetadata, TargetURL: "http://b/2", CreatedAt: time.Now()},
	}}
	srv := newTestServer(t, config.APIConfig{}, &fakeSync{}, queue)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/queue", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("queue: %d", rec.Code)
	}
	var resp struct {
		Pending int `json:"pending"`
		Records []struct {
			ID            string     `json:"id"`
			Attempts      int        `json:"attempts"`
			LastAttemptAt *time.Time `json:"last_attempt_at"`
		} `json:"records"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Pending != 2 || resp.Records[0].ID != "q1" || resp.Records[0].Attempts != 2 {
		t.Fatalf("unexpected queue payload: %+v", resp)
	}
	if resp.Records[0].LastAttemptAt == nil || !resp.Records[0].LastAttemptAt.Equal(lastAttempt) {
		t.Fatalf("attempt timestamp not reported: %+v", resp.Records[0])
	}
	if resp.Records[1].LastAttemptAt != nil {
		t.Fatalf("untried record must not carry an attempt timestamp")
	}
}
