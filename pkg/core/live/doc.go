// Package live orchestrates one real-time spoken rehearsal session against a
// remote conversational agent.
//
// # Architecture
//
// The package provides the session's moving parts:
//
//   - Controller: the single owner of session state; everything else posts
//     commands to its control goroutine
//   - OutboundStream: lossless, ordered delivery of capture frames, buffering
//     across the connection handshake
//   - Watchdog: the inactivity timer behind contextual hints
//   - Reaper: ordered, fault-tolerant teardown run on every path out of a
//     live conversation
//   - Channel / Dialer / Tutor: the interfaces the remote services plug into
//
// # Data Flow
//
//	Microphone → CaptureLine → OutboundStream → Channel (remote agent)
//	Channel → audio chunks   → Scheduler → output device
//	Channel → transcription  → Reconciler → transcript + visuals
//
// # State Machine
//
// A session progresses through these states:
//
//	IDLE → GENERATING → BRIEFING → READY → ACTIVE → SUMMARIZING → PAUSED_FOR_FEEDBACK
//	                        ↑__________________________________________|
//
// Retry and Continue loop back to the briefing; any fatal condition lands in
// ERROR after teardown.
//
// # Usage
//
//	ctrl := live.NewController(cfg, dialer, tutorClient, audioSystem, log)
//	ctrl.Start(ctx, "Paris", "learned French in school")
//
//	for event := range ctrl.Events() {
//	    switch e := event.(type) {
//	    case *live.ScenarioReadyEvent:
//	        show(e.Scenario)
//	        ctrl.Begin(ctx)
//	    case *live.TranscriptUpdatedEvent:
//	        render(e.Entries)
//	    }
//	}
package live
