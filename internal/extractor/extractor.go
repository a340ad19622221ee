package extractor

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"mendan-go/internal/logger"
	"mendan-go/internal/piimask"
	"mendan-go/internal/types"
)

//go:embed prompt.md
var promptTemplate string

// Generator sends a prompt to a language model and returns its text reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Service turns a transcript into per-label extraction results.
type Service struct {
	gen Generator
	log *logrus.Entry
}

func New(gen Generator, log *logrus.Entry) *Service {
	return &Service{gen: gen, log: logger.OrDiscard(log).WithField("component", "extractor")}
}

// Extract asks the model for every label and parses the reply. An empty
// transcript short-circuits to an empty map without calling the model.
func (s *Service) Extract(ctx context.Context, transcript string, labels []string, metadata map[string]any) (map[string]types.ExtractionResult, error) {
	if s == nil || s.gen == nil {
		return nil, errors.New("extractor is not configured")
	}
	if strings.TrimSpace(transcript) == "" {
		s.log.Warn("empty transcript provided")
		return map[string]types.ExtractionResult{}, nil
	}

	prompt, err := BuildPrompt(transcript, labels, metadata)
	if err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{
		"model":         s.gen.Model(),
		"label_count":   len(labels),
		"prompt_length": utf8.RuneCountInString(prompt),
	})
	log.Info("sending extraction request")

	raw, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm extraction failed: %w", err)
	}
	log.WithField("response_length", utf8.RuneCountInString(raw)).Debug("extraction response received")

	extracted := ParseResponse(s.log, raw, labels)
	s.log.WithField("extracted", piimask.SafeLogString(extracted, piimask.DefaultMaxLength)).Debug("parsed extraction")
	return extracted, nil
}

// ExtractSingle extracts one label. A label the model skipped comes back
// as an empty result.
func (s *Service) ExtractSingle(ctx context.Context, transcript, label string, metadata map[string]any) (types.ExtractionResult, error) {
	results, err := s.Extract(ctx, transcript, []string{label}, metadata)
	if err != nil {
		return types.ExtractionResult{}, err
	}
	if r, ok := results[label]; ok {
		return r, nil
	}
	return types.Missing(), nil
}

// BuildPrompt renders the extraction prompt for the given labels.
func BuildPrompt(transcript string, labels []string, metadata map[string]any) (string, error) {
	if labels == nil {
		labels = []string{}
	}
	labelsJSON, err := marshalIndent(labels)
	if err != nil {
		return "", fmt.Errorf("marshal labels: %w", err)
	}

	metadataBlock := ""
	if len(metadata) > 0 {
		metaJSON, err := marshalIndent(metadata)
		if err != nil {
			return "", fmt.Errorf("marshal metadata: %w", err)
		}
		metadataBlock = "\n## メタデータ（参考情報）\n```json\n" + metaJSON + "\n```\n"
	}

	// one pass: substituted text is never scanned for placeholders
	r := strings.NewReplacer(
		"{{LABELS_JSON}}", labelsJSON,
		"{{METADATA_BLOCK}}", metadataBlock,
		"{{TRANSCRIPT}}", transcript,
	)
	return r.Replace(promptTemplate), nil
}

func marshalIndent(v any) (string, error) {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
