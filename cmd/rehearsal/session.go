package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/konxu/rehearsal/internal/config"
	"github.com/konxu/rehearsal/pkg/core/audio"
	"github.com/konxu/rehearsal/pkg/core/live"
	"github.com/konxu/rehearsal/pkg/core/providers/gemini"
	"github.com/konxu/rehearsal/pkg/core/transcript"
	"github.com/konxu/rehearsal/pkg/core/tutor"
)

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).With().Timestamp().Logger()
}

func listDevices(w io.Writer) error {
	sys, err := audio.NewSystem()
	if err != nil {
		return fmt.Errorf("audio backend: %w", err)
	}
	defer sys.Close()

	devices, err := sys.Devices()
	if err != nil {
		return fmt.Errorf("enumerate devices: %w", err)
	}
	for _, d := range devices {
		fmt.Fprintln(w, d.Name)
	}
	return nil
}

func runSession(cfg config.Config, location, about string) error {
	log := newLogger(cfg.LogLevel)
	ctx := context.Background()

	tut, err := tutor.NewClient(ctx, tutor.Config{
		APIKey:      cfg.APIKey,
		TextModel:   cfg.TextModel,
		ImageModel:  cfg.ImageModel,
		SpeechModel: cfg.SpeechModel,
	}, log)
	if err != nil {
		return err
	}

	sys, err := audio.NewSystem()
	if err != nil {
		return fmt.Errorf("audio backend: %w", err)
	}
	defer sys.Close()

	captureDev, err := pickCaptureDevice(sys, cfg.CaptureDevice)
	if err != nil {
		return err
	}

	dialer := gemini.NewDialer(gemini.Config{APIKey: cfg.APIKey, Model: cfg.LiveModel}, log)
	ctrl := live.NewController(live.ControllerConfig{
		Language:      cfg.Language,
		VoiceName:     cfg.Voice,
		CaptureDevice: captureDev,
		HintDelay:     cfg.HintDelay,
	}, dialer, tut, sys, log)
	defer ctrl.Close()

	u := &ui{ctrl: ctrl, tut: tut, sys: sys, voice: cfg.Voice, out: os.Stdout}
	go u.consumeEvents()

	fmt.Printf("Setting up a scenario in %s...\n", location)
	ctrl.Start(ctx, location, about)

	return u.inputLoop(ctx, bufio.NewScanner(os.Stdin))
}

func pickCaptureDevice(sys audio.System, name string) (*audio.DeviceInfo, error) {
	if name == "" {
		return nil, nil
	}
	devices, err := sys.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].Name), strings.ToLower(name)) {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("no capture device matching %q", name)
}

// ui owns the terminal: one goroutine prints events, the main goroutine
// reads commands.
type ui struct {
	ctrl  *live.Controller
	tut   *tutor.Client
	sys   audio.System
	voice string
	out   io.Writer

	mu        sync.Mutex
	recording bool
	printed   int // transcript entries fully printed
}

func (u *ui) consumeEvents() {
	for ev := range u.ctrl.Events() {
		switch e := ev.(type) {
		case *live.ScenarioReadyEvent:
			u.printBriefing(e.Scenario)
		case *live.RecordingEvent:
			u.mu.Lock()
			u.recording = e.Recording
			u.mu.Unlock()
			if e.Recording {
				fmt.Fprintln(u.out, "● recording — press Enter to stop")
			} else {
				fmt.Fprintln(u.out, "■ stopped")
			}
		case *live.TranscriptUpdatedEvent:
			u.printTranscript(e.Entries)
		case *live.HintEvent:
			fmt.Fprintf(u.out, "\n💡 You could say: %s\n   (%s)\n", e.Hint.Text, e.Hint.Translation)
		case *live.VisualUpdatedEvent:
			if e.Entry.Visual == transcript.VisualReady {
				fmt.Fprintf(u.out, "🖼  illustration ready (%d bytes)\n", len(e.Entry.VisualURL))
			}
		case *live.SummaryReadyEvent:
			u.printSummary(e.Summary)
		case *live.SessionErrorEvent:
			fmt.Fprintf(u.out, "\n✗ %s\n", e.Message)
			fmt.Fprintln(u.out, `Type "quit" to exit.`)
		case *live.StateChangedEvent:
			if e.To == live.StateActive {
				fmt.Fprintln(u.out, "\nConnected. Press Enter to start talking; \"end\" finishes the conversation.")
			}
			if e.To == live.StateIdle {
				fmt.Fprintln(u.out, "Session over.")
			}
		}
	}
}

func (u *ui) printBriefing(sc *tutor.Scenario) {
	fmt.Fprintf(u.out, "\n— %s —\n", sc.Title)
	fmt.Fprintf(u.out, "You are in %s, talking to %s, %s.\n", sc.Location, sc.PersonaName, sc.PersonaRole)
	fmt.Fprintf(u.out, "%s\n", sc.Setting)
	fmt.Fprintf(u.out, "Your goal: %s\n", sc.Objective)
	if sc.OpeningHint != "" {
		fmt.Fprintf(u.out, "Opening line if you are stuck: %s\n", sc.OpeningHint)
	}
	fmt.Fprintln(u.out, "\nPress Enter to begin, or type \"hear\" to hear the opening line.")

	// The place label arrives whenever generation finishes; skipped on failure.
	go func() {
		title, err := u.tut.MarkerTitle(context.Background(), sc.Location, sc.Language)
		if err != nil {
			return
		}
		fmt.Fprintf(u.out, "📍 %s\n", title)
	}()
}

// printTranscript prints finalized entries once and skips ones already shown.
func (u *ui) printTranscript(entries []transcript.Entry) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i := u.printed; i < len(entries); i++ {
		if !entries[i].Final {
			break
		}
		tag := "you"
		if entries[i].Speaker == transcript.SpeakerAgent {
			tag = "them"
		}
		fmt.Fprintf(u.out, "  %s: %s\n", tag, entries[i].Text)
		u.printed = i + 1
	}
}

func (u *ui) printSummary(sum *tutor.Summary) {
	fmt.Fprintf(u.out, "\n— Feedback —\n%s\nScore: %d/10\n", sum.Overall, sum.Score)
	for _, cor := range sum.Corrections {
		fmt.Fprintf(u.out, "  · %q → %q  (%s)\n", cor.Original, cor.Corrected, cor.Note)
	}
	fmt.Fprintln(u.out, `Commands: "retry" same scenario, "next" a similar one, "cards" study phrases, "quit".`)
}

func (u *ui) inputLoop(ctx context.Context, in *bufio.Scanner) error {
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		switch line {
		case "":
			u.handleEnter(ctx)
		case "end":
			u.ctrl.EndConversation(ctx)
		case "retry":
			u.resetPrinted()
			u.ctrl.Retry()
		case "next":
			u.resetPrinted()
			u.ctrl.Continue(ctx)
		case "cards":
			u.printCards(ctx)
		case "translate":
			u.translateLast(ctx)
		case "hear":
			u.playOpening(ctx)
		case "quit", "exit":
			return nil
		case "help":
			fmt.Fprintln(u.out, `Enter toggles recording (or begins from the briefing); "hear", "translate", "end", "retry", "next", "cards", "quit".`)
		default:
			fmt.Fprintf(u.out, "unknown command %q — try \"help\"\n", line)
		}
	}
	return in.Err()
}

func (u *ui) handleEnter(ctx context.Context) {
	switch u.ctrl.State() {
	case live.StateBriefing:
		u.ctrl.Begin(ctx)
	case live.StateActive:
		u.mu.Lock()
		recording := u.recording
		u.mu.Unlock()
		if recording {
			u.ctrl.StopRecording()
		} else {
			u.ctrl.StartRecording()
		}
	}
}

// translateLast renders the agent's most recent line into English.
func (u *ui) translateLast(ctx context.Context) {
	sc := u.ctrl.Scenario()
	var text string
	for entries := u.ctrl.Entries(); len(entries) > 0; entries = entries[:len(entries)-1] {
		if last := entries[len(entries)-1]; last.Speaker == transcript.SpeakerAgent {
			text = last.Text
			break
		}
	}
	if sc == nil || text == "" {
		fmt.Fprintln(u.out, "nothing to translate yet")
		return
	}
	tr, err := u.tut.Translate(ctx, text, sc.Language)
	if err != nil {
		fmt.Fprintf(u.out, "translation unavailable: %v\n", err)
		return
	}
	fmt.Fprintf(u.out, "  %s\n  → %s\n", text, tr.Text)
}

func (u *ui) printCards(ctx context.Context) {
	sc := u.ctrl.Scenario()
	entries := u.ctrl.Entries()
	if sc == nil || len(entries) == 0 {
		fmt.Fprintln(u.out, "nothing to study yet")
		return
	}
	cards, err := u.tut.StudyCards(ctx, sc, entries)
	if err != nil {
		fmt.Fprintf(u.out, "study cards unavailable: %v\n", err)
		return
	}
	fmt.Fprintln(u.out, "\n— Study cards —")
	for _, card := range cards {
		fmt.Fprintf(u.out, "  %s — %s\n", card.Front, card.Back)
	}
}

// playOpening pronounces the scenario's opening line. Generation failures
// degrade this feature only.
func (u *ui) playOpening(ctx context.Context) {
	sc := u.ctrl.Scenario()
	if sc == nil || sc.OpeningHint == "" {
		fmt.Fprintln(u.out, "no opening line yet")
		return
	}
	pcm, err := u.tut.Speech(ctx, sc.OpeningHint, u.voice)
	if err != nil {
		fmt.Fprintf(u.out, "speech unavailable: %v\n", err)
		return
	}

	cfg := audio.PlaybackConfig()
	done := make(chan struct{})
	sched := audio.NewScheduler(cfg, zerolog.Nop(), func(speaking bool) {
		if !speaking {
			close(done)
		}
	})
	dev, err := u.sys.OpenPlayback(cfg, sched.Render)
	if err != nil {
		fmt.Fprintf(u.out, "playback unavailable: %v\n", err)
		return
	}
	defer dev.Close()
	if _, err := sched.Schedule(pcm); err != nil {
		fmt.Fprintf(u.out, "playback unavailable: %v\n", err)
		return
	}
	if err := dev.Start(); err != nil {
		fmt.Fprintf(u.out, "playback unavailable: %v\n", err)
		return
	}
	select {
	case <-done:
	case <-time.After(time.Duration(cfg.DurationMs(len(pcm))+500) * time.Millisecond):
	}
	dev.Stop()
}

func (u *ui) resetPrinted() {
	u.mu.Lock()
	u.printed = 0
	u.mu.Unlock()
}
