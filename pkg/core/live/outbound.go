package live

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// OutboundStream buffers encoded microphone frames and forwards them to the
// remote channel in capture order. Frames enqueued before the channel
// finishes its handshake are held, never dropped, and flushed as soon as the
// channel reports ready.
type OutboundStream struct {
	log zerolog.Logger

	mu     sync.Mutex
	queue  [][]byte
	signal chan struct{}
}

// NewOutboundStream creates an empty stream.
func NewOutboundStream(log zerolog.Logger) *OutboundStream {
	return &OutboundStream{
		log:    log.With().Str("component", "outbound").Logger(),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends a frame to the stream. Safe to call from audio callbacks.
func (o *OutboundStream) Enqueue(frame []byte) {
	o.mu.Lock()
	o.queue = append(o.queue, frame)
	o.mu.Unlock()

	select {
	case o.signal <- struct{}{}:
	default:
	}
}

// Pending returns the number of frames waiting to be sent.
func (o *OutboundStream) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Run forwards frames to ch until ctx is cancelled or a send fails. It blocks
// until the channel handshake completes before sending anything, so frames
// captured while connecting are delivered first and in order.
func (o *OutboundStream) Run(ctx context.Context, ch Channel) error {
	select {
	case <-ch.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		frame, ok := o.dequeue()
		if !ok {
			select {
			case <-o.signal:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := ch.Send(frame); err != nil {
			o.log.Debug().Err(err).Msg("frame send failed")
			return err
		}
	}
}

func (o *OutboundStream) dequeue() ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return nil, false
	}
	frame := o.queue[0]
	o.queue = o.queue[1:]
	return frame, true
}
