package live

import (
	"context"

	"github.com/konxu/rehearsal/pkg/core/transcript"
	"github.com/konxu/rehearsal/pkg/core/tutor"
)

// MessageKind identifies one inbound message from the remote channel.
type MessageKind int

const (
	// KindUserTranscript: a partial transcription fragment of the user.
	KindUserTranscript MessageKind = iota
	// KindAgentTranscript: a partial transcription fragment of the agent.
	KindAgentTranscript
	// KindAudioChunk: one encoded chunk of agent speech.
	KindAudioChunk
	// KindTurnComplete: the agent finished its turn; all current transcript
	// entries are final.
	KindTurnComplete
	// KindInterrupted: the agent was cut off by user speech.
	KindInterrupted
	// KindError: the channel hit a fatal error; Err carries the cause.
	KindError
	// KindClosed: the channel closed; Err is nil for a clean remote close.
	KindClosed
)

func (k MessageKind) String() string {
	switch k {
	case KindUserTranscript:
		return "user_transcript"
	case KindAgentTranscript:
		return "agent_transcript"
	case KindAudioChunk:
		return "audio_chunk"
	case KindTurnComplete:
		return "turn_complete"
	case KindInterrupted:
		return "interrupted"
	case KindError:
		return "error"
	case KindClosed:
		return "closed"
	}
	return "unknown"
}

// Message is one inbound channel message, delivered in arrival order.
type Message struct {
	Kind  MessageKind
	Text  string
	Audio []byte
	Err   error
}

// Channel is one live bidirectional connection to the remote conversational
// agent. Implementations deliver inbound messages in arrival order and must
// close the Messages channel after emitting KindClosed or KindError.
type Channel interface {
	// Ready resolves once the channel accepts media. Frames must not be
	// sent before then; SendText blocks until ready.
	Ready() <-chan struct{}

	// Send transmits one encoded capture frame.
	Send(frame []byte) error

	// SendText submits a text turn (used for the opening context).
	SendText(text string) error

	// Messages yields inbound messages.
	Messages() <-chan Message

	// Close shuts the connection down. Safe to call multiple times.
	Close() error
}

// DialOptions configures a new channel connection.
type DialOptions struct {
	SystemInstruction string
	VoiceName         string
	Language          string
}

// Dialer opens channels. The controller owns exactly one at a time.
type Dialer interface {
	Dial(ctx context.Context, opts DialOptions) (Channel, error)
}

// Tutor is the generation collaborator surface the session depends on.
// Scenario and Summarize failures are fatal to their flows; Hint and Image
// failures degrade only that feature.
type Tutor interface {
	Scenario(ctx context.Context, location, userContext string) (*tutor.Scenario, error)
	SimilarScenario(ctx context.Context, base *tutor.Scenario) (*tutor.Scenario, error)
	Summarize(ctx context.Context, scenario *tutor.Scenario, entries []transcript.Entry) (*tutor.Summary, error)
	Hint(ctx context.Context, scenario *tutor.Scenario, entries []transcript.Entry) (*tutor.Hint, error)
	Image(ctx context.Context, prompt, language string) (string, error)
}
