// Package config reads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"mendan-go/internal/sheet"
)

// Config holds all service configuration.
type Config struct {
	Server        ServerConfig
	GCPProject    string
	Secrets       SecretsConfig
	Extractor     ExtractorConfig
	Webhook       WebhookConfig
	Transcription TranscriptionConfig
	Sheets        SheetsConfig
}

// ServerConfig holds HTTP settings. ENVIRONMENT and LOG_LEVEL are read by
// logger.New directly.
type ServerConfig struct {
	Port string
	// PipelineTimeout bounds one /process_audio run.
	PipelineTimeout time.Duration
	// InternalAPIKey guards the mutating endpoints. Empty disables the check.
	InternalAPIKey string
}

type SecretsConfig struct {
	Backend string // "gcp" or "env"
}

type ExtractorConfig struct {
	Provider        string // "claude", "gemini" or "mock"
	ClaudeKeySecret string
	ClaudeModel     string
	ClaudeMaxTokens int
	GeminiKeySecret string
	GeminiModel     string
}

type WebhookConfig struct {
	URLSecret      string
	TokenSecret    string
	SlackURLSecret string
	Timeout        time.Duration
	SlackTimeout   time.Duration
}

type TranscriptionConfig struct {
	Provider     string // "google", "http" or "mock"
	LanguageCode string
	SampleRate   int
	URL          string
	Timeout      time.Duration
}

type SheetsConfig struct {
	Backend  string // "google", "xlsx" or "memory"
	XLSXRoot string
	Layout   sheet.Layout
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		Server: ServerConfig{
			Port:            getenv("PORT", "8080"),
			PipelineTimeout: getenvDuration("PIPELINE_TIMEOUT", 12*time.Minute),
			InternalAPIKey:  os.Getenv("INTERNAL_API_KEY"),
		},
		GCPProject: getenv("GCP_PROJECT", "technobrain-mendan"),
		Secrets: SecretsConfig{
			Backend: strings.ToLower(getenv("SECRETS_BACKEND", "gcp")),
		},
		Extractor: ExtractorConfig{
			Provider:        strings.ToLower(getenv("EXTRACTOR_PROVIDER", "claude")),
			ClaudeKeySecret: getenv("ANTHROPIC_API_KEY_SECRET_NAME", "anthropic-api-key"),
			ClaudeModel:     getenv("CLAUDE_MODEL", "claude-sonnet-4-20250514"),
			ClaudeMaxTokens: getenvInt("CLAUDE_MAX_TOKENS", 4096),
			GeminiKeySecret: getenv("GEMINI_API_KEY_SECRET_NAME", "gemini-api-key"),
			GeminiModel:     os.Getenv("GEMINI_MODEL"),
		},
		Webhook: WebhookConfig{
			URLSecret:      getenv("WEBHOOK_URL_SECRET_NAME", "webhook-url"),
			TokenSecret:    getenv("WEBHOOK_TOKEN_SECRET_NAME", "webhook-token"),
			SlackURLSecret: getenv("SLACK_WEBHOOK_URL_SECRET_NAME", "slack-webhook-url"),
			Timeout:        getenvDuration("WEBHOOK_TIMEOUT", 30*time.Second),
			SlackTimeout:   getenvDuration("SLACK_TIMEOUT", 10*time.Second),
		},
		Transcription: TranscriptionConfig{
			Provider:     strings.ToLower(getenv("TRANSCRIBE_PROVIDER", "google")),
			LanguageCode: getenv("SPEECH_LANGUAGE_CODE", "ja-JP"),
			SampleRate:   getenvInt("SPEECH_SAMPLE_RATE", 16000),
			URL:          os.Getenv("TRANSCRIBE_URL"),
			Timeout:      getenvDuration("TRANSCRIBE_TIMEOUT", 10*time.Minute),
		},
		Sheets: SheetsConfig{
			Backend:  strings.ToLower(getenv("SHEETS_BACKEND", "google")),
			XLSXRoot: getenv("XLSX_ROOT", "data"),
			Layout:   sheet.DefaultLayout,
		},
	}
	cfg.Sheets.Layout.DataStartRow = getenvInt("SHEET_DATA_START_ROW", sheet.DefaultLayout.DataStartRow)

	// historical switches of the service
	if os.Getenv("USE_MOCK_TRANSCRIBE") == "true" {
		cfg.Transcription.Provider = "mock"
	}
	if os.Getenv("USE_MOCK_LLM") == "true" {
		cfg.Extractor.Provider = "mock"
	}
	return cfg
}

// Validate reports every setting that cannot work.
func (c Config) Validate() error {
	var errs []error
	check := func(name, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s=%q: want one of %s", name, value, strings.Join(allowed, ", ")))
	}
	check("SECRETS_BACKEND", c.Secrets.Backend, "gcp", "env")
	check("EXTRACTOR_PROVIDER", c.Extractor.Provider, "claude", "gemini", "mock")
	check("TRANSCRIBE_PROVIDER", c.Transcription.Provider, "google", "http", "mock")
	check("SHEETS_BACKEND", c.Sheets.Backend, "google", "xlsx", "memory")

	if c.Transcription.Provider == "http" && c.Transcription.URL == "" {
		errs = append(errs, errors.New("TRANSCRIBE_URL is required when TRANSCRIBE_PROVIDER=http"))
	}
	if c.Server.PipelineTimeout <= c.Transcription.Timeout {
		errs = append(errs, fmt.Errorf("PIPELINE_TIMEOUT (%s) must exceed TRANSCRIBE_TIMEOUT (%s)",
			c.Server.PipelineTimeout, c.Transcription.Timeout))
	}
	if c.Sheets.Layout.DataStartRow < 1 {
		errs = append(errs, errors.New("SHEET_DATA_START_ROW must be at least 1"))
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

// getenvDuration accepts Go durations ("30s") or plain seconds ("30").
func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(n * float64(time.Second))
	}
	return fallback
}
