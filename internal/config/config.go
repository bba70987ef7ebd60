// Package config loads the terminal client's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const Prefix = "SIVA"

const (
	ChatBackendSupabase = "supabase"
	ChatBackendGroq     = "groq"
)

const (
	AudioBackendMiniaudio = "miniaudio"
	AudioBackendPortaudio = "portaudio"
	AudioBackendNone      = "none"
)

var (
	ErrMissingSetting = errors.New("missing setting")
	ErrInvalidSetting = errors.New("invalid setting")
)

type Config struct {
	// Chat backend, GROQ_API_KEY is read without the prefix as well
	ChatBackend    string        `envconfig:"CHAT_BACKEND" default:"supabase"`
	SupabaseURL    string        `envconfig:"SUPABASE_URL"`
	SupabaseKey    string        `envconfig:"SUPABASE_KEY"`
	GroqAPIKey     string        `envconfig:"GROQ_API_KEY"`
	GroqURL        string        `envconfig:"GROQ_URL"`
	GroqModel      string        `envconfig:"GROQ_MODEL"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`

	// Conversation
	UserName    string `envconfig:"USER_NAME"`
	Greeting    string `envconfig:"GREETING"`
	RecordVoice bool   `envconfig:"RECORD_VOICE" default:"true"`

	// Voice mode
	WakePhrase      string `envconfig:"WAKE_PHRASE" default:"hey siva"`
	Acknowledgement string `envconfig:"ACKNOWLEDGEMENT" default:"Yes?"`
	Locale          string `envconfig:"LOCALE" default:"en-US"`

	// Speech
	SpeechRate   float64 `envconfig:"SPEECH_RATE" default:"1.0"`
	SpeechPitch  float64 `envconfig:"SPEECH_PITCH" default:"1.0"`
	SpeechVolume float64 `envconfig:"SPEECH_VOLUME" default:"1.0"`

	// Speech engines, DEEPGRAM_API_KEY is read without the prefix as well
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY"`
	AudioBackend   string `envconfig:"AUDIO_BACKEND" default:"miniaudio"`
	STTModel       string `envconfig:"STT_MODEL" default:"nova-3"`
	TTSVoice       string `envconfig:"TTS_VOICE" default:"aura-2-thalia-en"`

	LogFile string `envconfig:"LOG_FILE" default:"siva.log"`
}

// Load reads an optional .env file, then the environment, and validates the
// result.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv is Load without the .env file.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.ChatBackend {
	case ChatBackendSupabase:
		if c.SupabaseURL == "" {
			errs = append(errs, fmt.Errorf("%w: %s_SUPABASE_URL", ErrMissingSetting, Prefix))
		}
		if c.SupabaseKey == "" {
			errs = append(errs, fmt.Errorf("%w: %s_SUPABASE_KEY", ErrMissingSetting, Prefix))
		}
	case ChatBackendGroq:
		if c.GroqAPIKey == "" {
			errs = append(errs, fmt.Errorf("%w: GROQ_API_KEY is required for the groq chat backend", ErrMissingSetting))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown chat backend %q", ErrInvalidSetting, c.ChatBackend))
	}

	switch c.AudioBackend {
	case AudioBackendMiniaudio, AudioBackendPortaudio:
		if c.DeepgramAPIKey == "" {
			errs = append(errs, fmt.Errorf("%w: DEEPGRAM_API_KEY is required for the %s audio backend", ErrMissingSetting, c.AudioBackend))
		}
	case AudioBackendNone:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown audio backend %q", ErrInvalidSetting, c.AudioBackend))
	}

	if c.SpeechRate <= 0 {
		errs = append(errs, fmt.Errorf("%w: speech rate must be positive, got %v", ErrInvalidSetting, c.SpeechRate))
	}
	if c.SpeechPitch <= 0 {
		errs = append(errs, fmt.Errorf("%w: speech pitch must be positive, got %v", ErrInvalidSetting, c.SpeechPitch))
	}
	if c.SpeechVolume < 0 || c.SpeechVolume > 1 {
		errs = append(errs, fmt.Errorf("%w: speech volume must be within [0, 1], got %v", ErrInvalidSetting, c.SpeechVolume))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: negative request timeout %v", ErrInvalidSetting, c.RequestTimeout))
	}

	return errors.Join(errs...)
}

// SpeechEnabled reports whether a microphone and speaker should be opened.
func (c *Config) SpeechEnabled() bool {
	return c.AudioBackend != AudioBackendNone
}
