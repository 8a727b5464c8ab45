package live

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/konxu/rehearsal/pkg/core/audio"
	"github.com/konxu/rehearsal/pkg/core/transcript"
	"github.com/konxu/rehearsal/pkg/core/tutor"
)

// --- fakes ---

type fakeChannel struct {
	ready     chan struct{}
	msgs      chan Message
	readyOnce sync.Once
	finOnce   sync.Once

	mu      sync.Mutex
	sent    [][]byte
	texts   []string
	sendErr error
	closes  int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		ready: make(chan struct{}),
		msgs:  make(chan Message, 32),
	}
}

func (c *fakeChannel) Ready() <-chan struct{} { return c.ready }

func (c *fakeChannel) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, frame)
	return nil
}

func (c *fakeChannel) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *fakeChannel) Messages() <-chan Message { return c.msgs }

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.finOnce.Do(func() { close(c.msgs) })
	return nil
}

func (c *fakeChannel) setReady() { c.readyOnce.Do(func() { close(c.ready) }) }

func (c *fakeChannel) setSendErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

func (c *fakeChannel) push(msg Message) { c.msgs <- msg }

// finish closes the message stream, as a real channel does after its final
// message.
func (c *fakeChannel) finish() { c.finOnce.Do(func() { close(c.msgs) }) }

func (c *fakeChannel) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeChannel) sentFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeChannel) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeChannel) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.texts))
	copy(out, c.texts)
	return out
}

type fakeDialer struct {
	mu   sync.Mutex
	ch   Channel
	err  error
	opts DialOptions
}

func (d *fakeDialer) Dial(_ context.Context, opts DialOptions) (Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opts = opts
	if d.err != nil {
		return nil, d.err
	}
	return d.ch, nil
}

func (d *fakeDialer) dialOpts() DialOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opts
}

type fakeTutor struct {
	mu sync.Mutex

	scenario    *tutor.Scenario
	scenarioErr error
	similar     *tutor.Scenario

	summary      *tutor.Summary
	summarizeErr error

	hint     *tutor.Hint
	imageURL string
	imageErr error

	scenarioCalls  int
	similarCalls   int
	summarizeCalls int
	hintCalls      int
	imageCalls     int

	summarized []transcript.Entry
}

func (f *fakeTutor) Scenario(_ context.Context, _, _ string) (*tutor.Scenario, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scenarioCalls++
	if f.scenarioErr != nil {
		return nil, f.scenarioErr
	}
	sc := *f.scenario
	return &sc, nil
}

func (f *fakeTutor) SimilarScenario(_ context.Context, _ *tutor.Scenario) (*tutor.Scenario, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.similarCalls++
	sc := *f.similar
	return &sc, nil
}

func (f *fakeTutor) Summarize(_ context.Context, _ *tutor.Scenario, entries []transcript.Entry) (*tutor.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summarizeCalls++
	f.summarized = entries
	if f.summarizeErr != nil {
		return nil, f.summarizeErr
	}
	return f.summary, nil
}

func (f *fakeTutor) Hint(_ context.Context, _ *tutor.Scenario, _ []transcript.Entry) (*tutor.Hint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hintCalls++
	return f.hint, nil
}

func (f *fakeTutor) Image(_ context.Context, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageCalls++
	if f.imageErr != nil {
		return "", f.imageErr
	}
	return f.imageURL, nil
}

func (f *fakeTutor) calls() (scenario, similar, summarize, hint, image int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scenarioCalls, f.similarCalls, f.summarizeCalls, f.hintCalls, f.imageCalls
}

// --- event recording and wait helpers ---

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func recordEvents(c *Controller) *eventRecorder {
	r := &eventRecorder{}
	go func() {
		for ev := range c.Events() {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		}
	}()
	return r
}

func (r *eventRecorder) count(pred func(Event) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if pred(ev) {
			n++
		}
	}
	return n
}

func (r *eventRecorder) find(pred func(Event) bool) Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if pred(ev) {
			return ev
		}
	}
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitState(t *testing.T, c *Controller, want SessionState) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return c.State() == want })
}

// --- rig ---

type testRig struct {
	c      *Controller
	ch     *fakeChannel
	dialer *fakeDialer
	tut    *fakeTutor
	sys    *audio.FakeSystem
	events *eventRecorder
}

func testScenario() *tutor.Scenario {
	return &tutor.Scenario{
		Title:       "Ordering at a café",
		Location:    "Paris",
		Language:    "fr-FR",
		PersonaName: "Camille",
		PersonaRole: "a barista",
		Setting:     "a small café near the Canal Saint-Martin",
		Objective:   "order a coffee and a croissant",
		OpeningHint: "Bonjour !",
		Difficulty:  "beginner",
	}
}

func newRig(t *testing.T, cfg ControllerConfig) *testRig {
	t.Helper()
	ch := newFakeChannel()
	rig := &testRig{
		ch:     ch,
		dialer: &fakeDialer{ch: ch},
		tut: &fakeTutor{
			scenario: testScenario(),
			similar:  &tutor.Scenario{Title: "Ordering at a boulangerie", Location: "Paris", Language: "fr-FR", PersonaName: "Luc", PersonaRole: "a baker", Difficulty: "beginner"},
			summary:  &tutor.Summary{Overall: "Solid effort.", Score: 7},
			hint:     &tutor.Hint{Text: "Je voudrais un café, s'il vous plaît.", Translation: "I would like a coffee, please."},
			imageURL: "data:image/png;base64,aGk=",
		},
		sys: audio.NewFakeSystem(),
	}
	if cfg.Language == "" {
		cfg.Language = "fr-FR"
	}
	rig.c = NewController(cfg, rig.dialer, rig.tut, rig.sys, zerolog.Nop())
	rig.events = recordEvents(rig.c)
	t.Cleanup(func() { rig.c.Close() })
	return rig
}

func (r *testRig) toBriefing(t *testing.T) {
	t.Helper()
	r.c.Start(context.Background(), "Paris", "")
	waitState(t, r.c, StateBriefing)
}

func (r *testRig) toActive(t *testing.T) {
	t.Helper()
	r.toBriefing(t)
	r.c.Begin(context.Background())
	waitState(t, r.c, StateActive)
	r.ch.setReady()
}

func (r *testRig) startRecording(t *testing.T) {
	t.Helper()
	r.c.StartRecording()
	waitFor(t, "recording to start", func() bool {
		return r.events.count(func(e Event) bool {
			rec, ok := e.(*RecordingEvent)
			return ok && rec.Recording
		}) > 0
	})
}

func captureFrame(value float32) []float32 {
	samples := make([]float32, audio.FrameSamples)
	for i := range samples {
		samples[i] = value
	}
	return samples
}

// --- tests ---

func TestController_ScenarioFlow(t *testing.T) {
	rig := newRig(t, ControllerConfig{})
	rig.toBriefing(t)

	sc := rig.c.Scenario()
	if sc == nil || sc.Title != "Ordering at a café" {
		t.Fatalf("Scenario = %+v", sc)
	}
	if sc.ID == "" {
		t.Fatal("scenario was not assigned an ID")
	}
	if rig.events.find(func(e Event) bool { _, ok := e.(*ScenarioReadyEvent); return ok }) == nil {
		t.Fatal("no ScenarioReadyEvent emitted")
	}
}

func TestController_ScenarioFailureIsFatal(t *testing.T) {
	rig := newRig(t, ControllerConfig{})
	rig.tut.scenarioErr = errors.New("model unavailable")

	rig.c.Start(context.Background(), "Paris", "")
	waitState(t, rig.c, StateError)

	ev := rig.events.find(func(e Event) bool { _, ok := e.(*SessionErrorEvent); return ok })
	if ev == nil {
		t.Fatal("no SessionErrorEvent emitted")
	}
	if kind := ev.(*SessionErrorEvent).Kind; kind != ErrGeneration {
		t.Fatalf("error kind = %s, want %s", kind, ErrGeneration)
	}
}

func TestController_BeginConnects(t *testing.T) {
	rig := newRig(t, ControllerConfig{VoiceName: "Aoede"})
	rig.toActive(t)

	opts := rig.dialer.dialOpts()
	if !strings.Contains(opts.SystemInstruction, "Camille") {
		t.Fatalf("system instruction does not carry the persona: %q", opts.SystemInstruction)
	}
	if opts.VoiceName != "Aoede" || opts.Language != "fr-FR" {
		t.Fatalf("dial options = %+v", opts)
	}
	waitFor(t, "opening message", func() bool { return len(rig.ch.sentTexts()) == 1 })
}

func TestController_DeviceDeniedIsFatal(t *testing.T) {
	rig := newRig(t, ControllerConfig{})
	rig.sys.CaptureErr = errors.New("permission denied")
	rig.toBriefing(t)

	rig.c.Begin(context.Background())
	waitState(t, rig.c, StateError)

	ev := rig.events.find(func(e Event) bool { _, ok := e.(*SessionErrorEvent); return ok })
	if ev == nil {
		t.Fatal("no SessionErrorEvent emitted")
	}
	if kind := ev.(*SessionErrorEvent).Kind; kind != ErrDeviceAccessDenied {
		t.Fatalf("error kind = %s, want %s", kind, ErrDeviceAccessDenied)
	}
}

func TestController_ForwardsFramesOnlyWhileRecording(t *testing.T) {
	rig := newRig(t, ControllerConfig{})
	rig.toActive(t)

	frame := captureFrame(0.25)
	rig.sys.Capture().FeedCapture(frame)
	time.Sleep(30 * time.Millisecond)
	if n := rig.ch.sentCount(); n != 0 {
		t.Fatalf("%d frames forwarded while disarmed", n)
	}

	rig.startRecording(t)
	rig.sys.Capture().FeedCapture(frame)
	waitFor(t, "armed frame to arrive", func() bool { return rig.ch.sentCount() == 1 })
	if want := audio.EncodeFrame(frame); !bytes.Equal(rig.ch.sentFrames()[0], want) {
		t.Fatal("forwarded frame does not match the encoded capture frame")
	}

	rig.c.StopRecording()
	waitFor(t, "recording to stop", func() bool {
		return rig.events.count(func(e Event) bool {
			rec, ok := e.(*RecordingEvent)
			return ok && !rec.Recording
		}) > 0
	})
	rig.sys.Capture().FeedCapture(frame)
	time.Sleep(30 * time.Millisecond)
	if n := rig.ch.sentCount(); n != 1 {
		t.Fatalf("%d frames forwarded after stop, want 1", n)
	}
}

func TestController_QueuesFramesUntilChannelReady(t *testing.T) {
	rig := newRig(t, ControllerConfig{})
	rig.toBriefing(t)
	rig.c.Begin(context.Background())
	waitState(t, rig.c, StateActive)
	rig.startRecording(t)

	first := captureFrame(0.25)
	second := captureFrame(-0.25)
	rig.sys.Capture().FeedCapture(first)
	rig.sys.Capture().FeedCapture(second)

	time.Sleep(30 * time.Millisecond)
	if n := rig.ch.sentCount(); n != 0 {
		t.Fatalf("%d frames sent before the channel was ready", n)
	}

	rig.ch.setReady()
	waitFor(t, "queued frames to flush", func() bool { return rig.ch.sentCount() == 2 })
	sent := rig.ch.sentFrames()
	if !bytes.Equal(sent[0], audio.EncodeFrame(first)) || !bytes.Equal(sent[1], audio.EncodeFrame(second)) {
		t.Fatal("frames arrived out of capture order")
	}
}

func TestController_ReconcilesTranscriptMessages(t *testing.T) {
	rig := newRig(t, ControllerConfig{})
	rig.toActive(t)

	rig.ch.push(Message{Kind: KindUserTranscript, Text: "Bon"})
	rig.ch.push(Message{Kind: KindUserTranscript, Text: "jour"})
	rig.ch.push(Message{Kind: KindAgentTranscript, Text: "Bonjour ! Vous désirez ?"})
	rig.ch.push(Message{Kind: KindTurnComplete})

	waitFor(t, "finalized entries", func() bool {
		entries := rig.c.Entries()
		return len(entries) == 2 && entries[1].Final
	})
	entries := rig.c.Entries()
	if entries[0].Speaker != transcript.SpeakerUser || entries[0].Text != "Bonjour" || !entries[0].Final {
		t.Fatalf("entry 0 = %+v", entries[0])
	}
	if entries[1].Speaker != transcript.SpeakerAgent {
		t.Fatalf("entry 1 = %+v", entries[1])
	}
}

func TestController_SchedulesInboundAudio(t *testing.T) {
	rig := newRig(t, ControllerConfig{})
	rig.toActive(t)

	// Two little-endian samples: 16 and 32.
	rig.ch.push(Message{Kind: KindAudioChunk, Audio: []byte{16, 0, 32, 0}})
	waitFor(t, "agent speaking", func() bool {
		return rig.events.find(func(e Event) bool {
			sp, ok := e.(*AgentSpeakingEvent)
			return ok && sp.Speaking
		}) != nil
	})

	out := rig.sys.Playback().RenderNext(2)
	if out[0] != 16 || out[1] != 32 {
		t.Fatalf("rendered %v, want [16 32]", out)
	}
	waitFor(t, "agent silence", func() bool {
		return rig.events.find(func(e Event) bool {
			sp, ok := e.(*AgentSpeakingEvent)
			return ok && !sp.Speaking
		}) != nil
	})
}

func TestController_MalformedChunkDoesNotAbort(t *testing.T) {
	rig := newRig(t, ControllerConfig{})
	rig.toActive(t)

	rig.ch.push(Message{Kind: KindAudioChunk, Audio: []byte{1}}) // odd length
	rig.ch.push(Message{Kind: KindUserTranscript, Text: "Merci"})

	waitFor(t, "session to keep flowing", func() bool { return len(rig.c.Entries()) == 1 })
	if rig.c.State() != StateActive {
		t.Fatalf("state = %s after malformed chunk, want ACTIVE", rig.c.State())
	}
}

func TestController_EmptyConversationEndsToIdle(t *testing.T) {
	rig := newRig(t, ControllerConfig{})
	rig.toActive(t)

	rig.c.EndConversation(context.Background())
	waitState(t, rig.c, StateIdle)

	if _, _, summarize, _, _ := rig.tut.calls(); summarize != 0 {
		t.Fatalf("summarizer called %d times for an empty conversation", summarize)
	}
	if rig.ch.closeCount() == 0 {
		t.Fatal("channel was not closed")
	}
	if !rig.sys.Capture().Closed() {
		t.Fatal("capture device was not released")
	}
}

func TestController_EndWithTranscriptProducesSummary(t *testing.T) {
	rig := newRig(t, ControllerConfig{})
	rig.toActive(t)

	rig.ch.push(Message{Kind: KindUserTranscript, Text: "Bonjour"})
	waitFor(t, "transcript entry", func() bool { return len(rig.c.Entries()) == 1 })

	rig.c.EndConversation(context.Background())
	waitState(t, rig.c, StatePausedForFeedback)

	sum := rig.c.Summary()
	if sum == nil || sum.Score != 7 {
		t.Fatalf("Summary = %+v", sum)
	}
	if rig.events.find(func(e Event) bool { _, ok := e.(*SummaryReadyEvent); return ok }) == nil {
		t.Fatal("no SummaryReadyEvent emitted")
	}
	rig.tut.mu.Lock()
	summarized := rig.tut.summarized
	rig.tut.mu.Unlock()
	if len(summarized) != 1 || summarized[0].Text != "Bonjour" {
		t.Fatalf("summarizer saw %+v", summarized)
	}
}

func TestController_RemoteCloseWhileActiveEndsConversation(t *testing.T) {
	rig := newRig(t, ControllerConfig{})
	rig.toActive(t)

	rig.ch.push(Message{Kind: KindUserTranscript, Text: "Au revoir"})
	waitFor(t, "transcript entry", func() bool { return len(rig.c.Entries()) == 1 })

	rig.ch.push(Message{Kind: KindClosed})
	rig.ch.finish()

	waitState(t, rig.c, StatePausedForFeedback)
}

func TestController_QuotaErrorIsFatal(t *testing.T) {
	rig := newRig(t, ControllerConfig{})
	rig.toActive(t)

	rig.ch.push(Message{Kind: KindError, Err: NewError(ErrQuotaExceeded, "session refused", nil)})
	rig.ch.finish()

	waitState(t, rig.c, StateError)
	ev := rig.events.find(func(e Event) bool { _, ok := e.(*SessionErrorEvent); return ok })
	if ev == nil {
		t.Fatal("no SessionErrorEvent emitted")
	}
	if kind := ev.(*SessionErrorEvent).Kind; kind != ErrQuotaExceeded {
		t.Fatalf("error kind = %s, want %s", kind, ErrQuotaExceeded)
	}
	if !rig.sys.Capture().Closed() {
		t.Fatal("capture device was not released on error")
	}
}

func TestController_HintAfterSilence(t *testing.T) {
	rig := newRig(t, ControllerConfig{HintDelay: 30 * time.Millisecond})
	rig.toActive(t)

	rig.ch.push(Message{Kind: KindTurnComplete})
	waitFor(t, "hint", func() bool {
		return rig.events.find(func(e Event) bool { _, ok := e.(*HintEvent); return ok }) != nil
	})
	if _, _, _, hints, _ := rig.tut.calls(); hints != 1 {
		t.Fatalf("hint generator called %d times, want 1", hints)
	}
}

func TestController_RecordingCancelsHint(t *testing.T) {
	rig := newRig(t, ControllerConfig{HintDelay: 60 * time.Millisecond})
	rig.toActive(t)

	rig.ch.push(Message{Kind: KindTurnComplete})
	time.Sleep(20 * time.Millisecond)
	rig.startRecording(t)

	time.Sleep(120 * time.Millisecond)
	if rig.events.find(func(e Event) bool { _, ok := e.(*HintEvent); return ok }) != nil {
		t.Fatal("hint delivered after recording started")
	}
}

func TestController_NoHintWhileAgentStillAudible(t *testing.T) {
	rig := newRig(t, ControllerConfig{HintDelay: 30 * time.Millisecond})
	rig.toActive(t)

	// Ten seconds of scheduled agent audio that the fake output never drains.
	long := make([]byte, audio.PlaybackConfig().SampleRate*2*10)
	rig.ch.push(Message{Kind: KindAudioChunk, Audio: long})
	waitFor(t, "speaking event", func() bool {
		return rig.events.find(func(e Event) bool {
			sp, ok := e.(*AgentSpeakingEvent)
			return ok && sp.Speaking
		}) != nil
	})

	rig.ch.push(Message{Kind: KindTurnComplete})
	time.Sleep(120 * time.Millisecond)
	if rig.events.find(func(e Event) bool { _, ok := e.(*HintEvent); return ok }) != nil {
		t.Fatal("hint delivered while agent audio was still playing")
	}
	if _, _, _, hints, _ := rig.tut.calls(); hints != 0 {
		t.Fatalf("hint generator called %d times, want 0", hints)
	}
}

func TestController_VisualDirectiveResolvedOnce(t *testing.T) {
	rig := newRig(t, ControllerConfig{})
	rig.toActive(t)

	rig.ch.push(Message{Kind: KindAgentTranscript, Text: "Voici notre croissant [IMAGE: a golden croissant on a plate]"})
	rig.ch.push(Message{Kind: KindTurnComplete})

	waitFor(t, "visual to resolve", func() bool {
		entries := rig.c.Entries()
		return len(entries) == 1 && entries[0].Visual == transcript.VisualReady
	})
	entry := rig.c.Entries()[0]
	if entry.VisualURL == "" {
		t.Fatal("resolved entry has no URL")
	}
	if strings.Contains(entry.Text, "[IMAGE:") {
		t.Fatalf("directive marker left in text: %q", entry.Text)
	}
	if rig.events.find(func(e Event) bool { _, ok := e.(*VisualUpdatedEvent); return ok }) == nil {
		t.Fatal("no VisualUpdatedEvent emitted")
	}

	// A later turn boundary must not re-request the same visual.
	rig.ch.push(Message{Kind: KindTurnComplete})
	time.Sleep(30 * time.Millisecond)
	if _, _, _, _, images := rig.tut.calls(); images != 1 {
		t.Fatalf("image generator called %d times, want 1", images)
	}
}

func TestController_RetryKeepsScenario(t *testing.T) {
	rig := newRig(t, ControllerConfig{})
	rig.toActive(t)
	rig.ch.push(Message{Kind: KindUserTranscript, Text: "Bonjour"})
	waitFor(t, "transcript entry", func() bool { return len(rig.c.Entries()) == 1 })
	rig.c.EndConversation(context.Background())
	waitState(t, rig.c, StatePausedForFeedback)

	before := rig.c.Scenario()
	rig.c.Retry()
	waitState(t, rig.c, StateBriefing)

	if after := rig.c.Scenario(); after.ID != before.ID {
		t.Fatal("retry replaced the scenario")
	}
	if n := len(rig.c.Entries()); n != 0 {
		t.Fatalf("transcript carried %d entries into the retry", n)
	}
}

func TestController_ContinueRequestsSimilarScenario(t *testing.T) {
	rig := newRig(t, ControllerConfig{})
	rig.toActive(t)
	rig.ch.push(Message{Kind: KindUserTranscript, Text: "Bonjour"})
	waitFor(t, "transcript entry", func() bool { return len(rig.c.Entries()) == 1 })
	rig.c.EndConversation(context.Background())
	waitState(t, rig.c, StatePausedForFeedback)

	rig.c.Continue(context.Background())
	waitState(t, rig.c, StateBriefing)

	if sc := rig.c.Scenario(); sc.Title != "Ordering at a boulangerie" {
		t.Fatalf("scenario after continue = %+v", sc)
	}
	if _, similar, _, _, _ := rig.tut.calls(); similar != 1 {
		t.Fatalf("similar-scenario generator called %d times, want 1", similar)
	}
}

func TestController_CloseIsIdempotent(t *testing.T) {
	rig := newRig(t, ControllerConfig{})
	rig.toActive(t)

	if err := rig.c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rig.c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if rig.ch.closeCount() == 0 {
		t.Fatal("channel was not closed")
	}
}
