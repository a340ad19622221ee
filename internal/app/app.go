// Package app builds the service's collaborators from configuration.
package app

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"mendan-go/internal/config"
	"mendan-go/internal/extractor"
	"mendan-go/internal/pipeline"
	"mendan-go/internal/porters"
	"mendan-go/internal/secrets"
	"mendan-go/internal/sheet"
	"mendan-go/internal/sheet/gsheets"
	"mendan-go/internal/sheet/xlsx"
	"mendan-go/internal/transcription"
	"mendan-go/internal/webhook"
)

// App is the wired service.
type App struct {
	Secrets secrets.Store
	Store   sheet.Store
	Writer  *sheet.Writer
	Audio   *pipeline.Audio
	Import  *pipeline.Import
	Webhook *webhook.Channel
	Model   string

	closers []io.Closer
}

// Build wires every component. Remote clients are created lazily, so Build
// itself makes no network calls.
func Build(cfg config.Config, log *logrus.Entry) (*App, error) {
	a := &App{}

	a.Secrets = a.secretStore(cfg, log)

	store, err := a.sheetStore(cfg, log)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.Writer = sheet.NewWriter(store, cfg.Sheets.Layout, log)

	tr, err := a.transcriber(cfg, log)
	if err != nil {
		return nil, err
	}
	gen, err := a.generator(cfg, log)
	if err != nil {
		return nil, err
	}
	a.Model = gen.Model()

	a.Audio = pipeline.NewAudio(a.Writer, tr, extractor.New(gen, log), log,
		pipeline.WithDefaultLanguage(cfg.Transcription.LanguageCode),
		pipeline.WithTimeout(cfg.Server.PipelineTimeout),
	)
	a.Import = pipeline.NewImport(a.Writer, porters.NewStubClient(log), log)
	a.Webhook = webhook.NewChannel(
		webhook.NewSender(a.Secrets, cfg.Webhook.URLSecret, cfg.Webhook.TokenSecret, log, webhook.WithTimeout(cfg.Webhook.Timeout)),
		webhook.NewNotifier(a.Secrets, cfg.Webhook.SlackURLSecret, cfg.Webhook.SlackTimeout, log),
		log,
	)
	return a, nil
}

func (a *App) secretStore(cfg config.Config, log *logrus.Entry) secrets.Store {
	if cfg.Secrets.Backend == "env" {
		return secrets.EnvStore{}
	}
	sm := secrets.NewSecretManager(cfg.GCPProject, log)
	a.closers = append(a.closers, sm)
	return sm
}

func (a *App) sheetStore(cfg config.Config, log *logrus.Entry) (sheet.Store, error) {
	switch cfg.Sheets.Backend {
	case "google":
		return gsheets.New(log), nil
	case "xlsx":
		return xlsx.New(cfg.Sheets.XLSXRoot), nil
	case "memory":
		return sheet.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown sheets backend %q", cfg.Sheets.Backend)
	}
}

func (a *App) transcriber(cfg config.Config, log *logrus.Entry) (transcription.Transcriber, error) {
	t := cfg.Transcription
	switch t.Provider {
	case "google":
		g := transcription.NewGoogle(log,
			transcription.WithSampleRate(t.SampleRate),
			transcription.WithLongRunningTimeout(t.Timeout),
		)
		a.closers = append(a.closers, g)
		return g, nil
	case "http":
		objects := transcription.NewGCSReader()
		a.closers = append(a.closers, objects)
		return transcription.NewHTTP(t.URL, objects, log, transcription.WithPolling(0, t.Timeout)), nil
	case "mock":
		return transcription.Mock{}, nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", t.Provider)
	}
}

func (a *App) generator(cfg config.Config, log *logrus.Entry) (extractor.Generator, error) {
	e := cfg.Extractor
	switch e.Provider {
	case "claude":
		return extractor.NewClaude(e.ClaudeModel, secrets.KeyFunc(a.Secrets, e.ClaudeKeySecret), log,
			extractor.WithMaxTokens(e.ClaudeMaxTokens)), nil
	case "gemini":
		return extractor.NewGemini(e.GeminiModel, secrets.KeyFunc(a.Secrets, e.GeminiKeySecret)), nil
	case "mock":
		return extractor.Mock{}, nil
	default:
		return nil, fmt.Errorf("unknown extractor provider %q", e.Provider)
	}
}

// Close releases every remote client that was created.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
