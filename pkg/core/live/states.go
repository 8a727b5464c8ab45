package live

// SessionState is the controller's position in the session lifecycle.
// At most one live session exists at a time; all transitions happen on the
// controller's single control context.
type SessionState int

const (
	// StateIdle: no session. The starting and final state.
	StateIdle SessionState = iota
	// StateGenerating: a scenario is being generated.
	StateGenerating
	// StateBriefing: the scenario is ready and shown to the user.
	StateBriefing
	// StateReady: devices acquired, remote channel connecting.
	StateReady
	// StateActive: the channel is open and the conversation is live.
	StateActive
	// StateSummarizing: the conversation ended, feedback is being generated.
	StateSummarizing
	// StatePausedForFeedback: the summary is ready and shown to the user.
	StatePausedForFeedback
	// StateError: a fatal condition ended the session.
	StateError
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateGenerating:
		return "GENERATING"
	case StateBriefing:
		return "BRIEFING"
	case StateReady:
		return "READY"
	case StateActive:
		return "ACTIVE"
	case StateSummarizing:
		return "SUMMARIZING"
	case StatePausedForFeedback:
		return "PAUSED_FOR_FEEDBACK"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
