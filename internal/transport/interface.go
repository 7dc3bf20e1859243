package transport

import (
	"context"

	"github.com/eleven-am/voice-client/internal/audio"
)

// Channel is a duplex stream to the remote model. Send must not block on
// network I/O; Events is closed once the channel has shut down.
type Channel interface {
	Send(ctx context.Context, chunk audio.EncodedChunk) error
	Events() <-chan ServerEvent
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, cfg SessionConfig) (Channel, error)
}

type DialerFunc func(ctx context.Context, cfg SessionConfig) (Channel, error)

func (f DialerFunc) Dial(ctx context.Context, cfg SessionConfig) (Channel, error) {
	return f(ctx, cfg)
}
