// Package piimask redacts personal data before it reaches the logs.
//
// Mask walks generic JSON-shaped values (maps, slices, scalars). Values under
// keys that look sensitive are masked as a whole; every other string is
// scanned for embedded emails, Japanese phone numbers and postal codes.
// SafeLogString is the entry point the rest of the service uses.
package piimask

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxDepth       = 10
	depthSentinel  = "[MAX_DEPTH]"
	shortMask      = "***"
	phoneMask      = "****"
	truncateMarker = "... (truncated)"

	// DefaultMaxLength is the log budget used by SafeLogString callers.
	DefaultMaxLength = 500
)

var sensitiveKeywords = []string{
	"name", "氏名", "名前", "fullname", "full_name",
	"email", "mail", "メール",
	"phone", "tel", "電話", "telephone",
	"address", "住所", "addr",
	"birth", "生年月日", "誕生日",
	"password", "passwd", "pwd", "パスワード",
	"id_number", "license", "マイナンバー",
	"card", "クレジット",
}

var (
	phoneLike   = regexp.MustCompile(`^[\d\-+()]+$`)
	emailInText = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phoneInText = regexp.MustCompile(`\b0\d{1,4}-\d{1,4}-\d{4}\b`)
	postalCode  = regexp.MustCompile(`\b\d{3}-\d{4}\b`)
)

// IsSensitiveField reports whether a field name belongs to the personal data
// vocabulary. Matching is a case-insensitive substring test.
func IsSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Mask returns a masked copy of data. Non-generic values (structs, typed
// maps) are first normalized through their JSON form.
func Mask(data any) any {
	return mask(normalize(data), 0)
}

func mask(data any, depth int) any {
	if depth > maxDepth {
		return depthSentinel
	}

	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			if IsSensitiveField(key) {
				out[key] = MaskValue(value)
			} else {
				out[key] = mask(value, depth+1)
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = mask(item, depth+1)
		}
		return out
	case string:
		return MaskPatternsInString(v)
	default:
		return v
	}
}

// MaskValue masks a single value whose field is known to be sensitive.
// nil passes through; everything else comes back as a masked string.
func MaskValue(value any) any {
	if value == nil {
		return nil
	}
	return maskString(stringify(value))
}

func maskString(s string) string {
	runes := []rune(s)
	if len(runes) <= 1 {
		return s
	}

	if local, domain, ok := strings.Cut(s, "@"); ok && !strings.Contains(domain, "@") {
		masked := shortMask
		if r, size := utf8.DecodeRuneInString(local); size > 0 {
			masked = string(r) + shortMask
		}
		return masked + "@" + domain
	}

	if phoneLike.MatchString(s) {
		if len(runes) > 5 {
			return string(runes[:3]) + phoneMask + string(runes[len(runes)-2:])
		}
		return phoneMask
	}

	if len(runes) <= 3 {
		return shortMask
	}
	return string(runes[0]) + shortMask + string(runes[len(runes)-1])
}

// MaskPatternsInString replaces emails, phone numbers and postal codes
// embedded in free text.
func MaskPatternsInString(text string) string {
	text = emailInText.ReplaceAllStringFunc(text, maskString)
	text = phoneInText.ReplaceAllStringFunc(text, func(m string) string {
		return m[:3] + phoneMask + m[len(m)-4:]
	})
	return postalCode.ReplaceAllString(text, "***-****")
}

// SafeLogString masks data, renders it and cuts it to maxLength runes.
// A non-positive maxLength means DefaultMaxLength.
func SafeLogString(data any, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	out := render(Mask(data))
	runes := []rune(out)
	if len(runes) > maxLength {
		return string(runes[:maxLength]) + truncateMarker
	}
	return out
}

// normalize turns arbitrary values into the map[string]any / []any / scalar
// shape that mask understands.
func normalize(data any) any {
	switch data.(type) {
	case nil, string, bool, float64, map[string]any, []any:
		return data
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return string(raw)
	}
	return out
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case float64, float32, int, int64, int32, bool:
		return fmt.Sprint(val)
	default:
		return render(val)
	}
}

func render(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimRight(buf.String(), "\n")
}
