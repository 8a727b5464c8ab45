package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/konxu/rehearsal/pkg/core/live"
)

const (
	defaultHost  = "generativelanguage.googleapis.com"
	defaultModel = "gemini-2.0-flash-live-001"

	bidiPath = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
)

// Config configures the live dialer.
type Config struct {
	// APIKey authenticates every connection.
	APIKey string

	// Model is the live model name. Empty uses defaultModel.
	Model string

	// Endpoint overrides the full websocket URL, scheme included. Used by
	// tests; empty means the production host.
	Endpoint string
}

// Dialer opens live channels against the Gemini Live API.
type Dialer struct {
	config Config
	log    zerolog.Logger
}

// NewDialer creates a dialer.
func NewDialer(config Config, log zerolog.Logger) *Dialer {
	if config.Model == "" {
		config.Model = defaultModel
	}
	return &Dialer{config: config, log: log.With().Str("component", "gemini_live").Logger()}
}

// Dial connects, sends the session setup and returns the channel. The
// channel becomes ready once the server acknowledges the setup.
func (d *Dialer) Dial(ctx context.Context, opts live.DialOptions) (live.Channel, error) {
	endpoint := d.config.Endpoint
	if endpoint == "" {
		u := url.URL{Scheme: "wss", Host: defaultHost, Path: bidiPath}
		endpoint = u.String()
	}
	endpoint = withKey(endpoint, d.config.APIKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == 429 {
			return nil, live.NewError(live.ErrQuotaExceeded, "live session refused", err)
		}
		return nil, live.NewError(live.ErrConnection, "dial live endpoint", err)
	}

	c := &channel{
		conn:    conn,
		log:     d.log,
		ready:   make(chan struct{}),
		msgs:    make(chan live.Message, 64),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	if err := c.sendJSON(clientMessage{Setup: setupFor(d.config.Model, opts)}); err != nil {
		conn.Close()
		return nil, live.NewError(live.ErrConnection, "send session setup", err)
	}
	go c.readLoop()
	return c, nil
}

func withKey(endpoint, key string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	q.Set("key", key)
	u.RawQuery = q.Encode()
	return u.String()
}

func setupFor(model string, opts live.DialOptions) *setup {
	s := &setup{
		Model: "models/" + model,
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}
	if opts.VoiceName != "" || opts.Language != "" {
		sc := &speechConfig{LanguageCode: opts.Language}
		if opts.VoiceName != "" {
			sc.VoiceConfig = &voiceConfig{PrebuiltVoiceConfig: &prebuiltVoiceConfig{VoiceName: opts.VoiceName}}
		}
		s.GenerationConfig.SpeechConfig = sc
	}
	if opts.SystemInstruction != "" {
		s.SystemInstruction = &content{Parts: []part{{Text: opts.SystemInstruction}}}
	}
	return s
}

// channel is one live websocket connection.
type channel struct {
	conn *websocket.Conn
	log  zerolog.Logger

	ready     chan struct{}
	readyOnce sync.Once
	msgs      chan live.Message
	done      chan struct{}
	closing   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

func (c *channel) Ready() <-chan struct{} { return c.ready }

func (c *channel) Send(frame []byte) error {
	return c.sendJSON(clientMessage{RealtimeInput: &realtimeInput{
		MediaChunks: []mediaChunk{{
			MimeType: captureMimeType,
			Data:     base64.StdEncoding.EncodeToString(frame),
		}},
	}})
}

func (c *channel) SendText(text string) error {
	select {
	case <-c.ready:
	case <-c.closing:
		return fmt.Errorf("live channel is closed")
	}
	return c.sendJSON(clientMessage{ClientContent: &clientContent{
		Turns:        []content{{Role: "user", Parts: []part{{Text: text}}}},
		TurnComplete: true,
	}})
}

func (c *channel) Messages() <-chan live.Message { return c.msgs }

func (c *channel) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.closing)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	<-c.done
	return nil
}

func (c *channel) sendJSON(v any) error {
	if c.closed.Load() {
		return fmt.Errorf("live channel is closed")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// emit delivers a message unless the channel is being closed; blocking here
// would wedge the read loop during teardown.
func (c *channel) emit(m live.Message) {
	select {
	case c.msgs <- m:
	case <-c.closing:
	}
}

func (c *channel) readLoop() {
	defer close(c.done)
	defer close(c.msgs)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.emitTerminal(err)
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn().Err(err).Msg("undecodable server message")
			continue
		}

		if msg.SetupComplete != nil {
			c.readyOnce.Do(func() { close(c.ready) })
			continue
		}
		if msg.GoAway != nil {
			c.log.Info().Str("time_left", msg.GoAway.TimeLeft).Msg("server announced disconnect")
			continue
		}
		if msg.ServerContent != nil {
			c.handleContent(msg.ServerContent)
		}
	}
}

func (c *channel) handleContent(sc *serverContent) {
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		c.emit(live.Message{Kind: live.KindUserTranscript, Text: sc.InputTranscription.Text})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		c.emit(live.Message{Kind: live.KindAgentTranscript, Text: sc.OutputTranscription.Text})
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			audio, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				c.log.Warn().Err(err).Msg("undecodable audio chunk")
				continue
			}
			c.emit(live.Message{Kind: live.KindAudioChunk, Audio: audio})
		}
	}
	if sc.Interrupted {
		c.emit(live.Message{Kind: live.KindInterrupted})
	}
	if sc.TurnComplete {
		c.emit(live.Message{Kind: live.KindTurnComplete})
	}
}

// emitTerminal translates a read error into the channel's final message.
func (c *channel) emitTerminal(err error) {
	classified := classifyClose(err)
	if classified.Kind == live.ErrRemoteClose {
		c.emit(live.Message{Kind: live.KindClosed})
		return
	}
	c.emit(live.Message{Kind: live.KindError, Err: classified})
}
