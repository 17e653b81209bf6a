package daemon

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/database"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/domain"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/gateway"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/metrics"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/models"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/notify"
)

// DeliveryLogger records drain outcomes for the local audit trail.
type DeliveryLogger interface {
	LogDelivery(ctx context.Context, entry *database.DeliveryEntry) error
}

// Options tunes the daemon; zero values get sane defaults.
type Options struct {
	// HealthURL is probed to detect connectivity transitions.
	HealthURL string
	// DeliveryTimeout bounds one drain delivery attempt.
	DeliveryTimeout time.Duration
	// HeartbeatInterval is the online re-drain check period.
	HeartbeatInterval time.Duration
	// ProbePolicy paces offline connectivity probes.
	ProbePolicy RetryPolicy
	// AlertAfterAttempts triggers the operator alerter once a record has
	// failed this many deliveries; zero disables it.
	AlertAfterAttempts int
}

// Daemon drains the durable queue whenever connectivity returns, a
// foreground forces a sync, or the heartbeat finds leftover work. It is
// a single long-lived process per installation and may run while zero
// foreground pages are attached.
type Daemon struct {
	store    domain.QueueStore
	notifier domain.Notifier
	alerter  domain.Alerter
	audit    DeliveryLogger
	client   *http.Client
	redis    *redis.Client
	opts     Options
	logger   zerolog.Logger

	online   atomic.Bool
	wakeCh   chan struct{}
	draining atomic.Bool
}

func New(store domain.QueueStore, notifier domain.Notifier, audit DeliveryLogger, alerter domain.Alerter, redisClient *redis.Client, opts Options, logger *zerolog.Logger) *Daemon {
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 10 * time.Second
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.ProbePolicy.InitialDelay <= 0 {
		opts.ProbePolicy.InitialDelay = 2 * time.Second
	}
	if opts.ProbePolicy.MaxDelay <= 0 {
		opts.ProbePolicy.MaxDelay = time.Minute
	}

	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "sync-daemon").Logger()
	}

	d := &Daemon{
		store:    store,
		notifier: notifier,
		alerter:  alerter,
		audit:    audit,
		client:   &http.Client{Timeout: opts.DeliveryTimeout + time.Second},
		redis:    redisClient,
		opts:     opts,
		logger:   l,
		wakeCh:   make(chan struct{}, 1),
	}
	// Assume online until the first probe says otherwise.
	d.online.Store(true)
	return d
}

// RequestSync registers a wake-up; called by the gateway after every
// enqueue and by the force-sync control path. Never blocks.
func (d *Daemon) RequestSync() {
	select {
	case d.wakeCh <- struct{}{}:
	default:
	}
}

// ForceSync drains regardless of the heartbeat schedule.
func (d *Daemon) ForceSync() {
	d.RequestSync()
}

// Heartbeat drains only when the queue is non-empty.
func (d *Daemon) Heartbeat(ctx context.Context) {
	n, err := d.store.Len(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("heartbeat queue check failed")
		return
	}
	metrics.SetQueueDepth(n)
	if n > 0 {
		d.RequestSync()
	}
}

// Online reports the prober's current connectivity belief.
func (d *Daemon) Online() bool {
	return d.online.Load()
}

// Start launches the drain loop, the connectivity prober and, when a
// redis client is configured, the control-channel listener. Blocks until
// ctx is done.
func (d *Daemon) Start(ctx context.Context) {
	d.logger.Info().Msg("sync daemon started")
	defer d.logger.Info().Msg("sync daemon stopped")

	if d.opts.HealthURL != "" {
		go d.probeLoop(ctx)
	}
	if d.redis != nil {
		go d.controlLoop(ctx)
	}

	heartbeat := time.NewTicker(d.opts.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.wakeCh:
			d.Drain(ctx)
		case <-heartbeat.C:
			if d.online.Load() {
				d.Heartbeat(ctx)
			}
		}
	}
}

// Drain reads all queue records and attempts delivery of each,
// sequentially and oldest first. Successes are deleted and confirmed per
// item; failures stay queued with their attempt recorded. One poisoned
// record never blocks the rest. Returns the ids delivered this pass.
func (d *Daemon) Drain(ctx context.Context) []string {
	// Overlapping drains are tolerated (idempotent deletes), but running
	// them concurrently just burns duplicate deliveries.
	if !d.draining.CompareAndSwap(false, true) {
		return nil
	}
	defer d.draining.Store(false)

	records, err := d.store.List(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("drain: list queue")
		return nil
	}
	if len(records) == 0 {
		metrics.SetQueueDepth(0)
		return nil
	}

	d.logger.Info().Int("pending", len(records)).Msg("drain pass started")

	var synced []string
	for _, record := range records {
		if ctx.Err() != nil {
			break
		}
		status, err := d.deliver(ctx, record)
		if err != nil {
			d.reportFailure(ctx, record, status, err)
			continue
		}

		if err := d.store.Delete(ctx, record.ID); err != nil {
			d.logger.Error().Err(err).Str("queue_id", record.ID).Msg("drain: delete delivered record")
		}
		synced = append(synced, record.ID)
		metrics.IncDrainDelivery("synced")
		d.publish(notify.UploadSynced(record.ID))
		d.auditLog(ctx, &database.DeliveryEntry{QueueID: record.ID, Kind: record.Kind, Outcome: database.DeliveryOutcomeSynced, Status: status})
	}

	if len(synced) > 0 {
		d.publish(notify.SyncComplete(synced))
	}
	metrics.IncDrainPass()
	if n, err := d.store.Len(ctx); err == nil {
		metrics.SetQueueDepth(n)
	}

	d.logger.Info().Int("synced", len(synced)).Int("remaining", len(records)-len(synced)).Msg("drain pass finished")
	return synced
}

// deliver replays one queued record against its original target.
func (d *Daemon) deliver(ctx context.Context, record *models.QueueRecord) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.opts.DeliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, record.Method, record.TargetURL, bytes.NewReader(record.Body))
	if err != nil {
		return 0, err
	}
	for k, v := range record.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set(gateway.IdempotencyHeader, record.ID)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &statusError{code: resp.StatusCode}
	}
	return resp.StatusCode, nil
}

func (d *Daemon) reportFailure(ctx context.Context, record *models.QueueRecord, status int, cause error) {
	d.logger.Warn().
		Str("queue_id", record.ID).
		Int("status", status).
		Err(cause).
		Msg("drain: delivery failed, record stays queued")

	if err := d.store.RecordAttempt(ctx, record.ID, status, cause.Error()); err != nil {
		d.logger.Error().Err(err).Str("queue_id", record.ID).Msg("drain: record attempt")
	}

	metrics.IncDrainDelivery("error")
	d.publish(notify.UploadError(record.ID, status, cause.Error()))
	d.auditLog(ctx, &database.DeliveryEntry{QueueID: record.ID, Kind: record.Kind, Outcome: database.DeliveryOutcomeError, Status: status, Message: cause.Error()})

	if d.alerter != nil && d.opts.AlertAfterAttempts > 0 && record.Attempts+1 == d.opts.AlertAfterAttempts {
		d.alerter.DeliveryStuck(ctx, record)
	}
}

func (d *Daemon) publish(msg notify.Message) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.Publish(msg); err != nil {
		d.logger.Warn().Err(err).Str("type", msg.Type).Msg("notify publish failed")
	}
}

func (d *Daemon) auditLog(ctx context.Context, entry *database.DeliveryEntry) {
	if d.audit == nil {
		return
	}
	if err := d.audit.LogDelivery(ctx, entry); err != nil {
		d.logger.Warn().Err(err).Str("queue_id", entry.QueueID).Msg("delivery audit write failed")
	}
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return http.StatusText(e.code)
}
