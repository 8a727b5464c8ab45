package live

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/konxu/rehearsal/pkg/core/audio"
	"github.com/konxu/rehearsal/pkg/core/transcript"
	"github.com/konxu/rehearsal/pkg/core/tutor"
)

// ControllerConfig configures a session controller.
type ControllerConfig struct {
	// Language is the BCP-47 tag of the language being rehearsed.
	Language string

	// VoiceName selects the agent voice. Empty uses the service default.
	VoiceName string

	// CaptureDevice selects the input device. Nil uses the platform default.
	CaptureDevice *audio.DeviceInfo

	// HintDelay is how long the user may stay silent after the agent's turn
	// before a hint is offered. Zero means DefaultHintDelay.
	HintDelay time.Duration
}

// resources holds everything a live conversation acquires. Owned exclusively
// by the controller goroutine; released by the reaper on every path out of
// the active state.
type resources struct {
	channel        Channel
	outbound       *OutboundStream
	outboundCancel context.CancelFunc
	captureLine    *audio.CaptureLine
	captureDev     audio.CaptureDevice
	scheduler      *audio.Scheduler
	playbackDev    audio.PlaybackDevice
}

// Controller is the orchestrator for rehearsal sessions. All state lives on
// a single goroutine; device callbacks, channel reads, timer expiries and
// collaborator results are posted to it as commands, so no session state is
// ever mutated concurrently.
type Controller struct {
	config ControllerConfig
	log    zerolog.Logger

	dialer Dialer
	tutor  Tutor
	system audio.System

	// Guarded by mu: state is the only field read off the control goroutine.
	mu    sync.RWMutex
	state SessionState

	// Control-goroutine-only state.
	sessionID string
	scenario  *tutor.Scenario
	summary   *tutor.Summary
	rec       *transcript.Reconciler
	res       resources
	recording bool
	// epoch invalidates async results posted after a teardown.
	epoch uint64

	watchdog *Watchdog
	reaper   *Reaper

	commands chan func()
	events   chan Event
	done     chan struct{}
	closed   atomic.Bool
}

// NewController creates an idle controller and starts its control goroutine.
func NewController(config ControllerConfig, dialer Dialer, tut Tutor, system audio.System, log zerolog.Logger) *Controller {
	if config.HintDelay == 0 {
		config.HintDelay = DefaultHintDelay
	}
	c := &Controller{
		config:   config,
		log:      log.With().Str("component", "controller").Logger(),
		dialer:   dialer,
		tutor:    tut,
		system:   system,
		state:    StateIdle,
		rec:      transcript.New(),
		reaper:   NewReaper(log),
		commands: make(chan func(), 100),
		events:   make(chan Event, 100),
		done:     make(chan struct{}),
	}
	c.watchdog = NewWatchdog(func() {
		c.post(c.onHintDue)
	})
	go c.run()
	return c
}

// Events returns the channel for receiving session events.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// SessionID returns the identifier of the current session, or "" before the
// first Start.
func (c *Controller) SessionID() string {
	out := make(chan string, 1)
	if !c.post(func() { out <- c.sessionID }) {
		return ""
	}
	select {
	case id := <-out:
		return id
	case <-c.done:
		return ""
	}
}

// State returns the current session state.
func (c *Controller) State() SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Scenario returns the current scenario, or nil before one is generated.
func (c *Controller) Scenario() *tutor.Scenario {
	out := make(chan *tutor.Scenario, 1)
	if !c.post(func() { out <- c.scenario }) {
		return nil
	}
	select {
	case sc := <-out:
		return sc
	case <-c.done:
		return nil
	}
}

// Summary returns the feedback report, or nil before one is generated.
func (c *Controller) Summary() *tutor.Summary {
	out := make(chan *tutor.Summary, 1)
	if !c.post(func() { out <- c.summary }) {
		return nil
	}
	select {
	case sum := <-out:
		return sum
	case <-c.done:
		return nil
	}
}

// Entries returns a snapshot of the transcript.
func (c *Controller) Entries() []transcript.Entry {
	out := make(chan []transcript.Entry, 1)
	if !c.post(func() { out <- c.rec.Entries() }) {
		return nil
	}
	select {
	case entries := <-out:
		return entries
	case <-c.done:
		return nil
	}
}

// Start generates a scenario for the given location and moves the session to
// the briefing. Valid from Idle.
func (c *Controller) Start(ctx context.Context, location, userContext string) {
	c.post(func() {
		if c.state != StateIdle {
			c.log.Warn().Stringer("state", c.state).Msg("start ignored")
			return
		}
		c.sessionID = uuid.NewString()
		c.setState(StateGenerating)
		epoch := c.epoch
		go func() {
			sc, err := c.tutor.Scenario(ctx, location, userContext)
			c.post(func() { c.onScenario(epoch, sc, err) })
		}()
	})
}

// Begin acquires audio devices and connects the remote channel. Valid from
// Briefing.
func (c *Controller) Begin(ctx context.Context) {
	c.post(func() {
		if c.state != StateBriefing {
			c.log.Warn().Stringer("state", c.state).Msg("begin ignored")
			return
		}
		if err := c.acquire(); err != nil {
			c.fail(err)
			return
		}
		c.setState(StateReady)
		epoch := c.epoch
		opts := DialOptions{
			SystemInstruction: personaInstruction(c.scenario),
			VoiceName:         c.config.VoiceName,
			Language:          c.config.Language,
		}
		go func() {
			ch, err := c.dialer.Dial(ctx, opts)
			c.post(func() { c.onDialed(epoch, ch, err) })
		}()
	})
}

// StartRecording arms the capture line. Valid while Active.
func (c *Controller) StartRecording() {
	c.post(func() {
		if c.state != StateActive || c.recording {
			return
		}
		c.recording = true
		c.res.captureLine.Arm()
		c.watchdog.Disarm()
		c.emit(&RecordingEvent{Recording: true})
	})
}

// StopRecording disarms the capture line.
func (c *Controller) StopRecording() {
	c.post(func() {
		if !c.recording {
			return
		}
		c.recording = false
		if c.res.captureLine != nil {
			c.res.captureLine.Disarm()
		}
		c.emit(&RecordingEvent{Recording: false})
	})
}

// EndConversation ends the live conversation and requests feedback. With an
// empty transcript the session returns straight to Idle and the feedback
// collaborator is never called. Valid while Active.
func (c *Controller) EndConversation(ctx context.Context) {
	c.post(func() {
		if c.state != StateActive {
			c.log.Warn().Stringer("state", c.state).Msg("end ignored")
			return
		}
		c.finishConversation(ctx)
	})
}

// Retry returns to the briefing with the same scenario. Valid from
// PausedForFeedback.
func (c *Controller) Retry() {
	c.post(func() {
		if c.state != StatePausedForFeedback {
			return
		}
		c.summary = nil
		c.rec = transcript.New()
		c.setState(StateBriefing)
		c.emit(&ScenarioReadyEvent{Scenario: c.scenario})
	})
}

// Continue requests a similar scenario and returns to the briefing once it
// arrives. Valid from PausedForFeedback.
func (c *Controller) Continue(ctx context.Context) {
	c.post(func() {
		if c.state != StatePausedForFeedback {
			return
		}
		c.summary = nil
		c.rec = transcript.New()
		c.setState(StateGenerating)
		epoch := c.epoch
		base := c.scenario
		go func() {
			sc, err := c.tutor.SimilarScenario(ctx, base)
			c.post(func() { c.onScenario(epoch, sc, err) })
		}()
	})
}

// Reset discards the session and returns to Idle. Valid from
// PausedForFeedback, Briefing and Error.
func (c *Controller) Reset() {
	c.post(func() {
		switch c.state {
		case StatePausedForFeedback, StateBriefing, StateError:
		default:
			return
		}
		c.scenario = nil
		c.summary = nil
		c.rec = transcript.New()
		c.setState(StateIdle)
	})
}

// Close tears the controller down from any state and closes the events
// channel. Safe to call multiple times.
func (c *Controller) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	flushed := make(chan struct{})
	c.post(func() {
		c.teardown()
		close(flushed)
	})
	select {
	case <-flushed:
	case <-c.done:
	}
	close(c.done)
	c.emitFinal(&SessionClosedEvent{Reason: "closed"})
	close(c.events)
	return nil
}

// run is the control goroutine. Every piece of session state is mutated
// here and nowhere else.
func (c *Controller) run() {
	for {
		select {
		case fn := <-c.commands:
			fn()
		case <-c.done:
			return
		}
	}
}

// post queues fn on the control goroutine. Returns false if the controller
// is shut down. Safe from any goroutine, including audio callbacks.
func (c *Controller) post(fn func()) bool {
	select {
	case c.commands <- fn:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) setState(next SessionState) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	c.mu.Unlock()

	if prev != next {
		c.log.Debug().Stringer("from", prev).Stringer("to", next).Msg("state")
		c.emit(&StateChangedEvent{From: prev, To: next})
	}
}

// emit sends an event without ever blocking the control goroutine.
func (c *Controller) emit(event Event) {
	if c.closed.Load() {
		return
	}
	c.emitFinal(event)
}

func (c *Controller) emitFinal(event Event) {
	select {
	case c.events <- event:
	case <-c.done:
	default:
		// Consumer is behind, drop the event.
	}
}

// --- scenario and connection flow ---

func (c *Controller) onScenario(epoch uint64, sc *tutor.Scenario, err error) {
	if epoch != c.epoch || c.state != StateGenerating {
		return
	}
	if err != nil {
		c.fail(NewError(ErrGeneration, "scenario generation failed", err))
		return
	}
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	if sc.Language == "" {
		sc.Language = c.config.Language
	}
	c.scenario = sc
	c.setState(StateBriefing)
	c.emit(&ScenarioReadyEvent{Scenario: sc})
}

// acquire opens the playback path and the capture path. The channel itself
// is dialed asynchronously afterwards; frames captured in the meantime wait
// in the outbound queue.
func (c *Controller) acquire() error {
	c.res.scheduler = audio.NewScheduler(audio.PlaybackConfig(), c.log, func(speaking bool) {
		c.post(func() { c.onSpeaking(speaking) })
	})
	playbackDev, err := c.system.OpenPlayback(audio.PlaybackConfig(), c.res.scheduler.Render)
	if err != nil {
		return NewError(ErrDeviceAccessDenied, "open output device", err)
	}
	c.res.playbackDev = playbackDev

	c.res.outbound = NewOutboundStream(c.log)
	c.res.captureLine = audio.NewCaptureLine(c.res.outbound)
	captureDev, err := c.system.OpenCapture(c.config.CaptureDevice, audio.CaptureConfig(), c.res.captureLine.Push)
	if err != nil {
		return NewError(ErrDeviceAccessDenied, "open capture device", err)
	}
	c.res.captureDev = captureDev

	if err := playbackDev.Start(); err != nil {
		return NewError(ErrDeviceAccessDenied, "start output device", err)
	}
	if err := captureDev.Start(); err != nil {
		return NewError(ErrDeviceAccessDenied, "start capture device", err)
	}
	return nil
}

func (c *Controller) onDialed(epoch uint64, ch Channel, err error) {
	if epoch != c.epoch || c.state != StateReady {
		if ch != nil {
			ch.Close()
		}
		return
	}
	if err != nil {
		c.fail(err)
		return
	}
	c.res.channel = ch

	octx, cancel := context.WithCancel(context.Background())
	c.res.outboundCancel = cancel
	go func() {
		if err := c.res.outbound.Run(octx, ch); err != nil && octx.Err() == nil {
			c.post(func() {
				if epoch == c.epoch && c.state == StateActive {
					c.fail(err)
				}
			})
		}
	}()
	go c.readPump(epoch, ch)

	opening := openingMessage(c.scenario)
	go func() {
		if err := ch.SendText(opening); err != nil {
			c.log.Debug().Err(err).Msg("opening message failed")
		}
	}()

	c.setState(StateActive)
}

// readPump forwards inbound channel messages to the control goroutine. It
// exits when the channel closes its message stream.
func (c *Controller) readPump(epoch uint64, ch Channel) {
	for msg := range ch.Messages() {
		m := msg
		if !c.post(func() {
			if epoch == c.epoch {
				c.onChannelMessage(m)
			}
		}) {
			return
		}
	}
}

func (c *Controller) onChannelMessage(msg Message) {
	if c.state != StateActive {
		if msg.Kind == KindError || msg.Kind == KindClosed {
			// Silent teardown: the conversation is already over.
			c.log.Debug().Stringer("kind", msg.Kind).Msg("channel ended outside active state")
			c.teardown()
		}
		return
	}

	switch msg.Kind {
	case KindUserTranscript:
		c.watchdog.Disarm()
		c.rec.Append(transcript.SpeakerUser, msg.Text)
		c.emit(&TranscriptUpdatedEvent{Entries: c.rec.Entries()})

	case KindAgentTranscript:
		c.rec.Append(transcript.SpeakerAgent, msg.Text)
		c.emit(&TranscriptUpdatedEvent{Entries: c.rec.Entries()})

	case KindAudioChunk:
		if _, err := c.res.scheduler.Schedule(msg.Audio); err != nil {
			// Malformed chunk, already logged by the scheduler.
			return
		}

	case KindTurnComplete:
		c.rec.FinalizeTurn()
		c.requestVisuals(c.rec.ExtractVisuals())
		c.emit(&TranscriptUpdatedEvent{Entries: c.rec.Entries()})
		if !c.recording {
			c.watchdog.Arm(c.config.HintDelay)
		}

	case KindInterrupted:
		c.log.Debug().Msg("agent interrupted by user speech")

	case KindError:
		c.fail(msg.Err)

	case KindClosed:
		// A remote close of a live conversation is the agent hanging up.
		c.log.Info().Msg("remote closed the conversation")
		c.finishConversation(context.Background())
	}
}

func (c *Controller) onSpeaking(speaking bool) {
	if c.state != StateActive {
		return
	}
	c.emit(&AgentSpeakingEvent{Speaking: speaking})
	if speaking {
		c.watchdog.Disarm()
	} else if !c.recording {
		c.watchdog.Arm(c.config.HintDelay)
	}
}

// --- visuals and hints ---

func (c *Controller) requestVisuals(reqs []transcript.VisualRequest) {
	epoch := c.epoch
	lang := c.scenario.Language
	for _, req := range reqs {
		req := req
		go func() {
			url, err := c.tutor.Image(context.Background(), req.Prompt, lang)
			c.post(func() {
				if epoch != c.epoch {
					return
				}
				if err != nil {
					c.log.Warn().Err(err).Str("prompt", req.Prompt).Msg("image generation failed")
				}
				c.rec.ResolveVisual(req.Index, url, err == nil)
				entries := c.rec.Entries()
				if req.Index < len(entries) {
					c.emit(&VisualUpdatedEvent{Index: req.Index, Entry: entries[req.Index]})
				}
			})
		}()
	}
}

func (c *Controller) onHintDue() {
	if c.state != StateActive || c.recording {
		return
	}
	if c.res.scheduler != nil && c.res.scheduler.Speaking() {
		// Agent audio still playing; the silence transition re-arms the timer.
		return
	}
	epoch := c.epoch
	sc := c.scenario
	entries := c.rec.Entries()
	go func() {
		hint, err := c.tutor.Hint(context.Background(), sc, entries)
		c.post(func() {
			if epoch != c.epoch || c.state != StateActive {
				return
			}
			if err != nil {
				c.log.Warn().Err(err).Msg("hint generation failed")
				return
			}
			c.emit(&HintEvent{Hint: hint})
		})
	}()
}

// --- ending, errors and teardown ---

// finishConversation leaves Active: teardown first, then either the
// feedback flow or, for a conversation with no transcript, straight to Idle.
func (c *Controller) finishConversation(ctx context.Context) {
	c.teardown()

	if c.rec.Len() == 0 {
		c.setState(StateIdle)
		return
	}

	c.setState(StateSummarizing)
	epoch := c.epoch
	sc := c.scenario
	entries := c.rec.Entries()
	go func() {
		sum, err := c.tutor.Summarize(ctx, sc, entries)
		c.post(func() { c.onSummary(epoch, sum, err) })
	}()
}

func (c *Controller) onSummary(epoch uint64, sum *tutor.Summary, err error) {
	if epoch != c.epoch || c.state != StateSummarizing {
		return
	}
	if err != nil {
		c.fail(NewError(ErrGeneration, "summary generation failed", err))
		return
	}
	c.summary = sum
	c.setState(StatePausedForFeedback)
	c.emit(&SummaryReadyEvent{Summary: sum})
}

// fail handles a fatal error: teardown always runs, then the session lands
// in Error with a user-facing message.
func (c *Controller) fail(err error) {
	kind := KindOf(err)
	c.log.Error().Err(err).Str("kind", string(kind)).Msg("session failed")
	c.teardown()
	c.setState(StateError)
	c.emit(&SessionErrorEvent{Kind: kind, Message: UserMessage(kind)})
}

// teardown releases every acquired resource through the reaper and bumps the
// epoch so in-flight async results are discarded. Safe to call on a session
// that never fully started, and safe to call repeatedly.
func (c *Controller) teardown() {
	c.epoch++
	c.recording = false
	c.watchdog.Disarm()

	res := c.res
	c.res = resources{}
	c.reaper.Reap(reapSteps(res))
}

// reapSteps is the fixed teardown order: stop feeding the channel, close it,
// then silence and release the audio path. Nil resources reap to no-ops.
func reapSteps(res resources) []ReapStep {
	return []ReapStep{
		{Name: "disarm_capture", Run: func() error {
			if res.captureLine != nil {
				res.captureLine.Disarm()
			}
			return nil
		}},
		{Name: "stop_capture_device", Run: func() error {
			if res.captureDev != nil {
				res.captureDev.Stop()
				res.captureDev.Close()
			}
			return nil
		}},
		{Name: "cancel_outbound", Run: func() error {
			if res.outboundCancel != nil {
				res.outboundCancel()
			}
			return nil
		}},
		{Name: "close_channel", Run: func() error {
			if res.channel != nil {
				return res.channel.Close()
			}
			return nil
		}},
		{Name: "stop_playback", Run: func() error {
			if res.scheduler != nil {
				res.scheduler.ForceStopAll()
			}
			return nil
		}},
		{Name: "stop_playback_device", Run: func() error {
			if res.playbackDev != nil {
				res.playbackDev.Stop()
				res.playbackDev.Close()
			}
			return nil
		}},
	}
}

// personaInstruction builds the roleplay system instruction for a scenario.
func personaInstruction(sc *tutor.Scenario) string {
	return fmt.Sprintf(
		"You are %s, %s, in the following setting: %s. "+
			"Stay in character for the whole conversation and speak only %s, "+
			"using short, natural spoken sentences suited to a %s learner. "+
			"The learner's objective: %s. "+
			"When you mention a concrete object, dish or place worth seeing, you may "+
			"include a marker of the form [IMAGE: short English description] once per mention.",
		sc.PersonaName, sc.PersonaRole, sc.Setting, sc.Language, sc.Difficulty, sc.Objective,
	)
}

// openingMessage is the text turn that prompts the agent to speak first.
func openingMessage(sc *tutor.Scenario) string {
	return fmt.Sprintf(
		"Begin the roleplay now. Greet me in %s as %s would, with one short opening line.",
		sc.Language, sc.PersonaName,
	)
}
