package piimask

import (
	"strings"
	"testing"
)

func TestMaskValue(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  any
	}{
		{name: "nil passes through", input: nil, want: nil},
		{name: "empty string", input: "", want: ""},
		{name: "single rune", input: "a", want: "a"},
		{name: "email keeps first char and domain", input: "taro@example.com", want: "t***@example.com"},
		{name: "email with empty local part", input: "@example.com", want: "***@example.com"},
		{name: "phone keeps head and tail", input: "090-1234-5678", want: "090****78"},
		{name: "short phone-like", input: "12345", want: "****"},
		{name: "three chars collapse", input: "abc", want: "***"},
		{name: "two chars collapse", input: "ab", want: "***"},
		{name: "four chars keep ends", input: "abcd", want: "a***d"},
		{name: "japanese name", input: "山田太郎", want: "山***郎"},
		{name: "number is stringified", input: float64(1990), want: "****"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskValue(tt.input); got != tt.want {
				t.Fatalf("MaskValue(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsSensitiveField(t *testing.T) {
	sensitive := []string{"氏名", "Email", "phone_number", "現住所", "生年月日(年齢)", "メールアドレス", "FULL_NAME"}
	for _, f := range sensitive {
		if !IsSensitiveField(f) {
			t.Errorf("expected %q to be sensitive", f)
		}
	}
	plain := []string{"希望職種", "status", "最寄り駅", "confidence"}
	for _, f := range plain {
		if IsSensitiveField(f) {
			t.Errorf("expected %q to be plain", f)
		}
	}
}

func TestMaskPatternsInString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "contact yamada@example.com today", want: "contact y***@example.com today"},
		{in: "call 090-1234-5678 please", want: "call 090****5678 please"},
		{in: "zip 150-0002 shibuya", want: "zip ***-**** shibuya"},
		{in: "nothing to see", want: "nothing to see"},
	}
	for _, tt := range tests {
		if got := MaskPatternsInString(tt.in); got != tt.want {
			t.Errorf("MaskPatternsInString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskNested(t *testing.T) {
	data := map[string]any{
		"氏名": "山田 太郎",
		"notes": map[string]any{
			"free_text": "mail me at taro@example.com",
			"phone":     "090-1234-5678",
		},
		"list": []any{"150-0002", float64(3)},
		"ok":   true,
	}

	got := Mask(data).(map[string]any)
	if got["氏名"] != "山***郎" {
		t.Errorf("name = %v", got["氏名"])
	}
	notes := got["notes"].(map[string]any)
	if notes["free_text"] != "mail me at t***@example.com" {
		t.Errorf("free_text = %v", notes["free_text"])
	}
	if notes["phone"] != "090****78" {
		t.Errorf("phone = %v", notes["phone"])
	}
	list := got["list"].([]any)
	if list[0] != "***-****" || list[1] != float64(3) {
		t.Errorf("list = %v", list)
	}
	if got["ok"] != true {
		t.Errorf("ok = %v", got["ok"])
	}
	if data["氏名"] != "山田 太郎" {
		t.Error("input must not be modified")
	}
}

func TestMaskDepthCap(t *testing.T) {
	var deep any = "leaf"
	for i := 0; i < 15; i++ {
		deep = map[string]any{"next": deep}
	}
	out := SafeLogString(deep, 10000)
	if !strings.Contains(out, depthSentinel) {
		t.Fatalf("expected depth sentinel in %s", out)
	}
	if strings.Contains(out, "leaf") {
		t.Fatalf("expected recursion to stop before the leaf: %s", out)
	}
}

func TestMaskNormalizesStructs(t *testing.T) {
	type field struct {
		Value    string  `json:"value"`
		Evidence string  `json:"evidence"`
		Score    float64 `json:"confidence"`
	}
	in := map[string]field{
		"電話番号": {Value: "090-1234-5678", Evidence: "電話は090-1234-5678です"},
	}
	out := SafeLogString(in, 0)
	if strings.Contains(out, "1234") {
		t.Fatalf("phone leaked: %s", out)
	}
}

func TestSafeLogStringTruncates(t *testing.T) {
	data := map[string]any{"summary": strings.Repeat("あ", 600)}
	out := SafeLogString(data, 500)
	if !strings.HasSuffix(out, truncateMarker) {
		t.Fatalf("expected truncate marker, got %q", out[len(out)-20:])
	}
	if n := len([]rune(strings.TrimSuffix(out, truncateMarker))); n != 500 {
		t.Fatalf("expected 500 runes before the marker, got %d", n)
	}

	short := SafeLogString(map[string]any{"a": "b"}, 500)
	if short != `{"a":"b"}` {
		t.Fatalf("short = %q", short)
	}
}
