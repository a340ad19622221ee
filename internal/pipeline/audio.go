package pipeline

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"mendan-go/internal/logger"
	"mendan-go/internal/piimask"
	"mendan-go/internal/sheet"
	"mendan-go/internal/transcription"
	"mendan-go/internal/types"
)

const DefaultLanguage = "ja-JP"

// Extractor turns a transcript into per-label results.
type Extractor interface {
	Extract(ctx context.Context, transcript string, labels []string, metadata map[string]any) (map[string]types.ExtractionResult, error)
}

// AudioRequest is one run of the audio pipeline.
type AudioRequest struct {
	Sheet        sheet.Ref
	GCSURI       string
	LanguageCode string
	RecordID     string
	Metadata     map[string]any
}

// AudioSummary is returned by /process_audio.
type AudioSummary struct {
	RecordID         string         `json:"record_id,omitempty"`
	TranscriptLength int            `json:"transcript_length"`
	ExtractedFields  int            `json:"extracted_fields"`
	UpdatedRows      int            `json:"updated_rows"`
	Metadata         map[string]any `json:"metadata"`
	DurationMs       int64          `json:"duration_ms"`
}

// Audio runs GCS audio -> transcript -> extraction -> sheet columns E/J/K.
type Audio struct {
	writer      *sheet.Writer
	transcriber transcription.Transcriber
	extractor   Extractor
	language    string
	timeout     time.Duration
	log         *logrus.Entry
}

type AudioOption func(*Audio)

// WithTimeout bounds a whole run. Zero means no bound beyond the
// collaborators' own.
func WithTimeout(d time.Duration) AudioOption {
	return func(a *Audio) { a.timeout = d }
}

// WithDefaultLanguage sets the language used when a request names none.
func WithDefaultLanguage(code string) AudioOption {
	return func(a *Audio) {
		if code != "" {
			a.language = code
		}
	}
}

func NewAudio(w *sheet.Writer, t transcription.Transcriber, e Extractor, log *logrus.Entry, opts ...AudioOption) *Audio {
	a := &Audio{
		writer:      w,
		transcriber: t,
		extractor:   e,
		language:    DefaultLanguage,
		log:         logger.OrDiscard(log).WithField("component", "audio-pipeline"),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Audio) Run(ctx context.Context, req AudioRequest) (*AudioSummary, error) {
	start := time.Now()
	log := a.log.WithFields(logrus.Fields{"sheet": req.Sheet.String(), "record_id": req.RecordID})

	loc, err := transcription.ParseGCSURI(req.GCSURI)
	if err != nil {
		return nil, &ValidationError{Err: err}
	}
	lang := req.LanguageCode
	if lang == "" {
		lang = a.language
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	log.WithField("uri", loc.String()).Info("starting audio pipeline")

	labels, err := a.writer.Labels(ctx, req.Sheet)
	if err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, &ValidationError{Err: fmt.Errorf("%s: %w", req.Sheet, sheet.ErrEmptySchema)}
	}
	log.WithField("labels", len(labels)).Info("found labels in sheet")

	transcript, err := a.transcriber.Transcribe(ctx, loc, lang)
	if err != nil {
		return nil, fmt.Errorf("transcription error: %w", err)
	}
	transcriptLen := utf8.RuneCountInString(transcript)
	log.WithField("characters", transcriptLen).Info("transcription completed")

	extracted, err := a.extractor.Extract(ctx, transcript, labels, req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("extraction error: %w", err)
	}
	log.WithField("fields", len(extracted)).Info("extraction completed")
	log.Debugf("extracted data (masked): %s", piimask.SafeLogString(extracted, piimask.DefaultMaxLength))

	updated, err := a.writer.WriteAudioResults(ctx, req.Sheet, extracted)
	if err != nil {
		return nil, err
	}

	sum := &AudioSummary{
		RecordID:         req.RecordID,
		TranscriptLength: transcriptLen,
		ExtractedFields:  len(extracted),
		UpdatedRows:      updated,
		Metadata:         req.Metadata,
		DurationMs:       time.Since(start).Milliseconds(),
	}
	log.WithFields(logrus.Fields{"updated_rows": updated, "duration_ms": sum.DurationMs}).Info("audio pipeline finished")
	return sum, nil
}
