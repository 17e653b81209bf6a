package daemon

import (
	"context"
	"net/http"
	"time"

	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/notify"
)

const probeTimeout = 3 * time.Second

// probeLoop watches backend reachability. While offline the probe
// interval backs off exponentially; an offline-to-online edge triggers a
// drain, an online-to-offline edge asks foregrounds to persist their
// snapshots before they lose the chance.
func (d *Daemon) probeLoop(ctx context.Context) {
	attempt := 0
	for {
		ok := d.probe(ctx)

		wasOnline := d.online.Load()
		switch {
		case ok && !wasOnline:
			d.online.Store(true)
			attempt = 0
			d.logger.Info().Msg("connectivity restored")
			d.RequestSync()
		case !ok && wasOnline:
			d.online.Store(false)
			d.logger.Warn().Msg("connectivity lost")
			d.publish(notify.PersistNow())
		case ok:
			attempt = 0
		}

		var wait time.Duration
		if ok {
			wait = d.opts.HeartbeatInterval
		} else {
			attempt++
			wait = d.opts.ProbePolicy.NextDelay(attempt)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (d *Daemon) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, d.opts.HealthURL, nil)
	if err != nil {
		return false
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// controlLoop receives force-sync and heartbeat requests published by
// foreground pages on the redis control channel.
func (d *Daemon) controlLoop(ctx context.Context) {
	for {
		err := notify.Subscribe(ctx, d.redis, notify.ControlChannel, &d.logger, func(msg notify.Message) {
			switch msg.Type {
			case notify.MsgForceSync:
				d.ForceSync()
			case notify.MsgHeartbeat:
				d.Heartbeat(ctx)
			}
		})
		if ctx.Err() != nil {
			return
		}
		d.logger.Warn().Err(err).Msg("control channel subscription lost, retrying")

		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}
