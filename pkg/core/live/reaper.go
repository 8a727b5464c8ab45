package live

import "github.com/rs/zerolog"

// ReapStep is one piece of session teardown. Run must tolerate being called
// when the resource was never acquired or is already released.
type ReapStep struct {
	Name string
	Run  func() error
}

// Reaper releases session resources in a fixed order. Every step always
// runs; a failing step is logged and teardown continues, so a half-built
// session can be torn down the same way as a live one.
type Reaper struct {
	log zerolog.Logger
}

// NewReaper creates a reaper that logs step failures to log.
func NewReaper(log zerolog.Logger) *Reaper {
	return &Reaper{log: log.With().Str("component", "reaper").Logger()}
}

// Reap runs every step in order. Calling it again with the same steps is a
// no-op as long as each step is idempotent.
func (r *Reaper) Reap(steps []ReapStep) {
	for _, step := range steps {
		if step.Run == nil {
			continue
		}
		if err := step.Run(); err != nil {
			r.log.Warn().Err(err).Str("step", step.Name).Msg("teardown step failed")
		}
	}
}
