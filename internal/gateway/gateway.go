package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/domain"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/metrics"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/models"
)

// Headers never replayed from a queued record. Hop-by-hop values belong
// to the original connection, not the retried one.
var hopByHopHeaders = []string{
	"Connection",
	"Content-Length",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// IdempotencyHeader carries the queue record id so a backend wanting
// exactly-once semantics can dedupe redeliveries. The client itself
// stays at-least-once.
const IdempotencyHeader = "X-Idempotency-Key"

// Waker is poked after every enqueue so the sync daemon registers for a
// future delivery attempt.
type Waker interface {
	RequestSync()
}

// Gateway tries an immediate network send bounded by a short timeout and
// durably queues anything that cannot be delivered. Slow calls are
// deliberately treated as failures: the caller gets a synchronous
// "queued" answer instead of a hanging request.
type Gateway struct {
	client  *http.Client
	store   domain.QueueStore
	waker   Waker
	timeout time.Duration
	logger  zerolog.Logger
}

func New(store domain.QueueStore, waker Waker, timeout time.Duration, logger *zerolog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = 2500 * time.Millisecond
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "gateway").Logger()
	}
	return &Gateway{
		// The client timeout is a backstop; the per-attempt context is
		// the authoritative budget.
		client:  &http.Client{Timeout: timeout + time.Second},
		store:   store,
		waker:   waker,
		timeout: timeout,
		logger:  l,
	}
}

// Submit attempts the delivery once and enqueues on any rejection:
// thrown error, non-2xx status, or timeout. The returned result is
// always synchronous; an error is only returned when even enqueueing
// failed (local disk trouble).
func (g *Gateway) Submit(ctx context.Context, req *models.SubmissionRequest) (*models.SubmissionResult, error) {
	if req == nil || req.TargetURL == "" {
		return nil, errors.New("submission requires a target url")
	}
	if req.Method == "" {
		req.Method = http.MethodPost
	}

	// The record id doubles as the idempotency key and is fixed before
	// the first attempt, so a timed-out call that lands anyway and the
	// later drain redelivery present the same key to the backend.
	recordID := uuid.Must(uuid.NewV7()).String()

	body, status, err := g.attempt(ctx, recordID, req)
	if err == nil {
		metrics.IncSubmission(req.Kind, "delivered")
		return &models.SubmissionResult{OK: true, StatusCode: status, Response: body}, nil
	}

	queueID, qErr := g.enqueue(ctx, recordID, req)
	if qErr != nil {
		return nil, fmt.Errorf("enqueue after failed delivery: %w", qErr)
	}

	g.logger.Info().
		Str("queue_id", queueID).
		Str("kind", req.Kind).
		Str("target", req.TargetURL).
		Err(err).
		Msg("delivery failed, submission queued")
	metrics.IncSubmission(req.Kind, "queued")

	if g.waker != nil {
		g.waker.RequestSync()
	}
	return &models.SubmissionResult{Queued: true, QueueID: queueID}, nil
}

// attempt performs one bounded network call. A timed-out request is
// abandoned; its eventual resolution, if any, is ignored.
func (g *Gateway) attempt(ctx context.Context, recordID string, req *models.SubmissionRequest) ([]byte, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, req.TargetURL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set(IdempotencyHeader, recordID)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("backend returned %d", resp.StatusCode)
	}
	return body, resp.StatusCode, nil
}

func (g *Gateway) enqueue(ctx context.Context, recordID string, req *models.SubmissionRequest) (string, error) {
	record := &models.QueueRecord{
		ID:        recordID,
		TargetURL: req.TargetURL,
		Method:    req.Method,
		Headers:   SanitizeHeaders(req.Headers),
		Body:      req.Body,
		Kind:      req.Kind,
		CreatedAt: time.Now(),
	}
	if err := g.store.Put(ctx, record); err != nil {
		return "", err
	}
	return record.ID, nil
}

// SanitizeHeaders copies the header map with hop-by-hop entries removed.
func SanitizeHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if isHopByHop(k) {
			continue
		}
		out[k] = v
	}
	return out
}

func isHopByHop(name string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}
