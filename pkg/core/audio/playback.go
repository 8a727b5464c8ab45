package audio

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// handle is one scheduled chunk: a decoded buffer with an absolute start
// position on the render clock. Owned by the Scheduler from schedule time
// until the clock passes its end.
type handle struct {
	id      string
	start   int64 // absolute sample position
	samples []int16
}

func (h *handle) end() int64 { return h.start + int64(len(h.samples)) }

// Scheduler plays decoded agent speech chunks back to back with no gaps and
// no overlap. Chunks are placed on an absolute sample clock advanced by the
// output device's render callback:
//
//	start_i = max(nextStart, clock)
//	nextStart = start_i + len_i
//
// so a chunk never starts before the previous one ends and never reorders.
//
// The notify callback reports speaking/silence transitions; the session
// controller wires it to post a message onto its control queue rather than
// mutating state in place.
type Scheduler struct {
	cfg    Config
	log    zerolog.Logger
	notify func(speaking bool)

	mu        sync.Mutex
	clock     int64
	nextStart int64
	handles   []*handle // schedule order; starts are strictly increasing
	speaking  bool
}

// NewScheduler creates a scheduler for the given output format.
func NewScheduler(cfg Config, log zerolog.Logger, notify func(speaking bool)) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		log:    log.With().Str("component", "playback").Logger(),
		notify: notify,
	}
}

// Schedule decodes one inbound chunk and queues it for gapless playback.
// A malformed chunk is logged and skipped; the session continues.
func (s *Scheduler) Schedule(data []byte) (string, error) {
	samples, err := DecodePCM16(data)
	if err != nil {
		s.log.Warn().Err(err).Msg("skipping undecodable audio chunk")
		return "", err
	}
	if len(samples) == 0 {
		return "", nil
	}

	h := &handle{id: uuid.NewString(), samples: samples}

	s.mu.Lock()
	start := s.nextStart
	if s.clock > start {
		start = s.clock
	}
	h.start = start
	s.nextStart = h.end()
	s.handles = append(s.handles, h)
	startedSpeaking := !s.speaking
	s.speaking = true
	s.mu.Unlock()

	if startedSpeaking && s.notify != nil {
		s.notify(true)
	}
	return h.id, nil
}

// Render is the output device callback: it fills out with scheduled audio at
// the current clock position and advances the clock. Completed handles are
// released; when the last one finishes the silence transition is reported.
func (s *Scheduler) Render(out []int16) {
	s.mu.Lock()
	from := s.clock
	to := from + int64(len(out))

	for _, h := range s.handles {
		if h.end() <= from || h.start >= to {
			continue
		}
		// Overlap of [h.start, h.end) with [from, to).
		srcOff := int64(0)
		dstOff := h.start - from
		if dstOff < 0 {
			srcOff = -dstOff
			dstOff = 0
		}
		copy(out[dstOff:], h.samples[srcOff:])
	}

	s.clock = to

	remaining := s.handles[:0]
	for _, h := range s.handles {
		if h.end() > to {
			remaining = append(remaining, h)
		}
	}
	released := len(s.handles) - len(remaining)
	s.handles = remaining

	wentSilent := released > 0 && len(s.handles) == 0 && s.speaking
	if wentSilent {
		s.speaking = false
	}
	s.mu.Unlock()

	if wentSilent && s.notify != nil {
		s.notify(false)
	}
}

// ForceStopAll stops every outstanding handle immediately, clears the set,
// and resets the schedule origin. Teardown only.
func (s *Scheduler) ForceStopAll() {
	s.mu.Lock()
	s.handles = nil
	s.nextStart = 0
	s.clock = 0
	s.speaking = false
	s.mu.Unlock()
}

// Outstanding returns the number of scheduled-but-unfinished handles.
func (s *Scheduler) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Speaking reports whether agent audio is currently scheduled or playing.
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Starts returns the scheduled start positions in schedule order. Test hook.
func (s *Scheduler) Starts() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.handles))
	for i, h := range s.handles {
		out[i] = h.start
	}
	return out
}
