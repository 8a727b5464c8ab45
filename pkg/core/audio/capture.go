package audio

import (
	"sync"
	"sync/atomic"
)

// FrameSink receives encoded wire-format frames in capture order.
type FrameSink interface {
	Enqueue(frame []byte)
}

// CaptureLine re-chunks device callback batches into fixed-size frames,
// converts them to the wire format, and hands them to the sink in capture
// order. Frames captured while the line is disarmed are discarded.
//
// Samples arrive on the hardware callback goroutine; the line keeps no state
// beyond the partial frame currently being assembled.
type CaptureLine struct {
	sink  FrameSink
	armed atomic.Bool

	mu      sync.Mutex
	pending []float32
}

// NewCaptureLine creates a line feeding the given sink.
func NewCaptureLine(sink FrameSink) *CaptureLine {
	return &CaptureLine{
		sink:    sink,
		pending: make([]float32, 0, FrameSamples),
	}
}

// Arm starts forwarding captured frames.
func (l *CaptureLine) Arm() { l.armed.Store(true) }

// Disarm stops forwarding and drops the partial frame so a later re-arm
// does not emit stale audio.
func (l *CaptureLine) Disarm() {
	l.armed.Store(false)
	l.mu.Lock()
	l.pending = l.pending[:0]
	l.mu.Unlock()
}

// Armed reports whether the line is currently forwarding.
func (l *CaptureLine) Armed() bool { return l.armed.Load() }

// Push accepts one device callback batch. Complete frames are encoded and
// forwarded; the remainder is kept for the next batch.
func (l *CaptureLine) Push(samples []float32) {
	if !l.armed.Load() {
		return
	}

	l.mu.Lock()
	l.pending = append(l.pending, samples...)
	var frames [][]byte
	for len(l.pending) >= FrameSamples {
		frames = append(frames, EncodeFrame(l.pending[:FrameSamples]))
		l.pending = l.pending[FrameSamples:]
	}
	if len(frames) > 0 && len(l.pending) == 0 {
		l.pending = make([]float32, 0, FrameSamples)
	}
	l.mu.Unlock()

	for _, f := range frames {
		l.sink.Enqueue(f)
	}
}
