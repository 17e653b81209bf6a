package notify

import "github.com/rs/zerolog"

// Publisher is the one-way, fire-and-forget outbound side of the
// notifier contract.
type Publisher interface {
	Publish(msg Message) error
}

// Fanout feeds the in-process bus and, when configured, the
// cross-context redis channel. Messages are fire-and-forget: a down
// redis is logged and tolerated, the local bus always gets the message.
type Fanout struct {
	bus    *Bus
	remote Publisher
	logger zerolog.Logger
}

func NewFanout(bus *Bus, remote Publisher, logger *zerolog.Logger) *Fanout {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "notifier").Logger()
	}
	return &Fanout{bus: bus, remote: remote, logger: l}
}

// Bus exposes the local bus so in-process consumers can subscribe.
func (f *Fanout) Bus() *Bus {
	return f.bus
}

func (f *Fanout) Publish(msg Message) error {
	if f.bus != nil {
		_ = f.bus.Publish(msg)
	}
	if f.remote != nil {
		if err := f.remote.Publish(msg); err != nil {
			f.logger.Warn().Err(err).Str("type", msg.Type).Msg("cross-context publish failed")
		}
	}
	return nil
}
