package tutor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/konxu/rehearsal/pkg/core/transcript"
)

// Default model assignments. Text work goes to the cheap flash model; images
// and speech go to the modality-specific ones.
const (
	defaultTextModel   = "gemini-2.5-flash"
	defaultImageModel  = "gemini-2.0-flash-preview-image-generation"
	defaultSpeechModel = "gemini-2.5-flash-preview-tts"
)

// Config configures the tutor client.
type Config struct {
	APIKey      string
	TextModel   string
	ImageModel  string
	SpeechModel string
}

// generator is the slice of the genai SDK the client calls. *genai.Models
// satisfies it; tests substitute canned responses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client talks to the generation models.
type Client struct {
	config Config
	models generator
	log    zerolog.Logger
}

// NewClient creates a tutor client backed by the Gemini API.
func NewClient(ctx context.Context, config Config, log zerolog.Logger) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newClient(config, gc.Models, log), nil
}

func newClient(config Config, models generator, log zerolog.Logger) *Client {
	if config.TextModel == "" {
		config.TextModel = defaultTextModel
	}
	if config.ImageModel == "" {
		config.ImageModel = defaultImageModel
	}
	if config.SpeechModel == "" {
		config.SpeechModel = defaultSpeechModel
	}
	return &Client{
		config: config,
		models: models,
		log:    log.With().Str("component", "tutor").Logger(),
	}
}

// Scenario generates a fresh roleplay scenario for a location.
func (c *Client) Scenario(ctx context.Context, location, userContext string) (*Scenario, error) {
	var sc Scenario
	if err := c.generateJSON(ctx, scenarioPrompt(location, userContext), &sc); err != nil {
		return nil, fmt.Errorf("generate scenario: %w", err)
	}
	return &sc, nil
}

// SimilarScenario generates a scenario in the same location and register as
// base, with a different situation.
func (c *Client) SimilarScenario(ctx context.Context, base *Scenario) (*Scenario, error) {
	var sc Scenario
	if err := c.generateJSON(ctx, similarScenarioPrompt(base), &sc); err != nil {
		return nil, fmt.Errorf("generate similar scenario: %w", err)
	}
	if sc.Language == "" {
		sc.Language = base.Language
	}
	return &sc, nil
}

// Summarize produces the post-conversation feedback report.
func (c *Client) Summarize(ctx context.Context, scenario *Scenario, entries []transcript.Entry) (*Summary, error) {
	var sum Summary
	if err := c.generateJSON(ctx, summaryPrompt(scenario, entries), &sum); err != nil {
		return nil, fmt.Errorf("generate summary: %w", err)
	}
	return &sum, nil
}

// Hint suggests what the user could say next.
func (c *Client) Hint(ctx context.Context, scenario *Scenario, entries []transcript.Entry) (*Hint, error) {
	var hint Hint
	if err := c.generateJSON(ctx, hintPrompt(scenario, entries), &hint); err != nil {
		return nil, fmt.Errorf("generate hint: %w", err)
	}
	return &hint, nil
}

// Translate renders one transcript line into English.
func (c *Client) Translate(ctx context.Context, text, language string) (*Translation, error) {
	var tr Translation
	if err := c.generateJSON(ctx, translatePrompt(text, language), &tr); err != nil {
		return nil, fmt.Errorf("translate: %w", err)
	}
	return &tr, nil
}

// MarkerTitle names a place marker for a rehearsed location: a short label
// in the local language, suitable for a map pin.
func (c *Client) MarkerTitle(ctx context.Context, location, language string) (string, error) {
	var out struct {
		Title string `json:"title"`
	}
	if err := c.generateJSON(ctx, markerTitlePrompt(location, language), &out); err != nil {
		return "", fmt.Errorf("generate marker title: %w", err)
	}
	if strings.TrimSpace(out.Title) == "" {
		return "", fmt.Errorf("generate marker title: empty title")
	}
	return strings.TrimSpace(out.Title), nil
}

// StudyCards distills the conversation into phrases worth memorizing.
func (c *Client) StudyCards(ctx context.Context, scenario *Scenario, entries []transcript.Entry) ([]StudyCard, error) {
	var out struct {
		Cards []StudyCard `json:"cards"`
	}
	if err := c.generateJSON(ctx, studyCardsPrompt(scenario, entries), &out); err != nil {
		return nil, fmt.Errorf("generate study cards: %w", err)
	}
	return out.Cards, nil
}

// Speech synthesizes one line of speech and returns raw PCM.
func (c *Client) Speech(ctx context.Context, text, voiceName string) ([]byte, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
	}
	if voiceName != "" {
		config.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voiceName},
			},
		}
	}
	resp, err := c.models.GenerateContent(ctx, c.config.SpeechModel, genai.Text(text), config)
	if err != nil {
		return nil, fmt.Errorf("generate speech: %w", err)
	}
	data, _ := firstInlineData(resp)
	if len(data) == 0 {
		return nil, fmt.Errorf("generate speech: no audio in response")
	}
	return data, nil
}

// Image generates an illustration and returns it as a data URL.
func (c *Client) Image(ctx context.Context, prompt, language string) (string, error) {
	resp, err := c.models.GenerateContent(ctx, c.config.ImageModel, genai.Text(imagePrompt(prompt, language)), &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		return "", fmt.Errorf("generate image: %w", err)
	}
	data, mime := firstInlineData(resp)
	if len(data) == 0 {
		return "", fmt.Errorf("generate image: no image in response")
	}
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// generateJSON runs a text prompt in JSON mode and decodes the reply into v.
func (c *Client) generateJSON(ctx context.Context, prompt string, v any) error {
	resp, err := c.models.GenerateContent(ctx, c.config.TextModel, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return err
	}
	text := stripFences(resp.Text())
	if text == "" {
		return fmt.Errorf("empty model response")
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		c.log.Debug().Str("response", text).Msg("unparseable model response")
		return fmt.Errorf("decode model response: %w", err)
	}
	return nil
}

// firstInlineData returns the first inline blob in the response.
func firstInlineData(resp *genai.GenerateContentResponse) ([]byte, string) {
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				return p.InlineData.Data, p.InlineData.MIMEType
			}
		}
	}
	return nil, ""
}

// stripFences removes a markdown code fence the model sometimes wraps JSON
// in despite the response MIME type.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
