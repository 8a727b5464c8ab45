// Package config loads the application configuration: defaults, then an
// optional YAML file, then environment variables, each layer overriding the
// previous one. A .env file in the working directory is honored.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	// APIKey authenticates against the Gemini API. Required.
	APIKey string `yaml:"api_key"`

	// Language is the BCP-47 tag of the language to rehearse.
	Language string `yaml:"language"`

	// Voice selects the agent voice for live conversations.
	Voice string `yaml:"voice"`

	// CaptureDevice names the input device. Empty uses the default.
	CaptureDevice string `yaml:"capture_device"`

	LiveModel   string `yaml:"live_model"`
	TextModel   string `yaml:"text_model"`
	ImageModel  string `yaml:"image_model"`
	SpeechModel string `yaml:"speech_model"`

	// HintDelay is the silence period before a hint is offered.
	HintDelay time.Duration `yaml:"hint_delay"`

	// LogLevel is a zerolog level name: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Language:  "fr-FR",
		Voice:     "Aoede",
		HintDelay: 12 * time.Second,
		LogLevel:  "info",
	}
}

// Load builds the configuration. path names a YAML file and may be empty; a
// missing file at the default location is not an error.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = "rehearsal.yaml"
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file, defaults apply.
	default:
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}

	applyEnv(&cfg)

	if cfg.APIKey == "" {
		return Config{}, fmt.Errorf("no API key: set GEMINI_API_KEY or api_key in the config file")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	setString(&cfg.Language, "REHEARSAL_LANGUAGE")
	setString(&cfg.Voice, "REHEARSAL_VOICE")
	setString(&cfg.CaptureDevice, "REHEARSAL_CAPTURE_DEVICE")
	setString(&cfg.LiveModel, "REHEARSAL_LIVE_MODEL")
	setString(&cfg.TextModel, "REHEARSAL_TEXT_MODEL")
	setString(&cfg.ImageModel, "REHEARSAL_IMAGE_MODEL")
	setString(&cfg.SpeechModel, "REHEARSAL_SPEECH_MODEL")
	setString(&cfg.LogLevel, "REHEARSAL_LOG_LEVEL")

	if v := os.Getenv("REHEARSAL_HINT_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.HintDelay = d
		}
	}
}

func setString(dst *string, keys ...string) {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			*dst = v
			return
		}
	}
}
