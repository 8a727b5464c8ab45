package live

import (
	"github.com/konxu/rehearsal/pkg/core/transcript"
	"github.com/konxu/rehearsal/pkg/core/tutor"
)

// Event is the interface for all live session events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// StateChangedEvent is emitted when the session state changes.
type StateChangedEvent struct {
	From SessionState `json:"from"`
	To   SessionState `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// ScenarioReadyEvent is emitted when the briefing scenario is available.
type ScenarioReadyEvent struct {
	Scenario *tutor.Scenario `json:"scenario"`
}

func (e *ScenarioReadyEvent) EventType() string { return "scenario.ready" }

// RecordingEvent is emitted when the microphone is armed or disarmed.
type RecordingEvent struct {
	Recording bool `json:"recording"`
}

func (e *RecordingEvent) EventType() string { return "recording" }

// AgentSpeakingEvent is emitted when scheduled agent audio starts or runs out.
type AgentSpeakingEvent struct {
	Speaking bool `json:"speaking"`
}

func (e *AgentSpeakingEvent) EventType() string { return "agent.speaking" }

// TranscriptUpdatedEvent carries a snapshot of the conversation transcript.
type TranscriptUpdatedEvent struct {
	Entries []transcript.Entry `json:"entries"`
}

func (e *TranscriptUpdatedEvent) EventType() string { return "transcript.updated" }

// VisualUpdatedEvent is emitted when an entry's illustration resolves or fails.
type VisualUpdatedEvent struct {
	Index int              `json:"index"`
	Entry transcript.Entry `json:"entry"`
}

func (e *VisualUpdatedEvent) EventType() string { return "visual.updated" }

// HintEvent is emitted when the inactivity watchdog produces a suggested reply.
type HintEvent struct {
	Hint *tutor.Hint `json:"hint"`
}

func (e *HintEvent) EventType() string { return "hint" }

// SummaryReadyEvent is emitted when post-conversation feedback is available.
type SummaryReadyEvent struct {
	Summary *tutor.Summary `json:"summary"`
}

func (e *SummaryReadyEvent) EventType() string { return "summary.ready" }

// SessionErrorEvent is emitted after a fatal error, once teardown has run.
type SessionErrorEvent struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *SessionErrorEvent) EventType() string { return "session.error" }

// SessionClosedEvent is the final event before the events channel closes.
type SessionClosedEvent struct {
	Reason string `json:"reason,omitempty"`
}

func (e *SessionClosedEvent) EventType() string { return "session.closed" }
