package extractor

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"mendan-go/internal/piimask"
	"mendan-go/internal/types"
)

const rawPreviewLength = 500

// ParseResponse recovers a label -> result map from the model's reply.
// Only labels from the requested list survive; malformed JSON yields an
// empty map.
func ParseResponse(log *logrus.Entry, responseText string, labels []string) map[string]types.ExtractionResult {
	body := stripFence(responseText)

	var decoded map[string]any
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		if log != nil {
			log.WithError(err).
				WithField("response_preview", piimask.MaskPatternsInString(truncate(responseText, rawPreviewLength))).
				Error("failed to parse extraction response")
		}
		return map[string]types.ExtractionResult{}
	}

	out := make(map[string]types.ExtractionResult, len(labels))
	for _, label := range labels {
		raw, ok := decoded[label]
		if !ok {
			continue
		}
		entry, ok := raw.(map[string]any)
		if !ok {
			if log != nil {
				log.WithField("label", label).Warn("extraction entry is not an object, skipping")
			}
			continue
		}
		out[label] = types.ExtractionResult{
			Value:      coerceValue(entry["value"]),
			Confidence: coerceConfidence(entry["confidence"]),
			Evidence:   coerceString(entry["evidence"]),
		}
	}
	return out
}

// stripFence keeps only the lines inside a ``` block when the reply starts
// with one. Bare JSON is returned trimmed.
func stripFence(text string) string {
	trimmed := strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	var kept []string
	inside := false
	for _, line := range strings.Split(trimmed, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inside = !inside
			continue
		}
		if inside {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func coerceValue(v any) *string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return &val
	default:
		s := coerceString(val)
		return &s
	}
}

func coerceConfidence(v any) float64 {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func coerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
