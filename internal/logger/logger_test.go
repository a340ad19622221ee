package logger

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"":      logrus.InfoLevel,
		"loud":  logrus.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWithRequestUsesHeaderID(t *testing.T) {
	l := &Logger{Entry: Discard()}
	r := httptest.NewRequest("POST", "/process_audio", nil)
	r.Header.Set("X-Request-ID", "abc-123")

	e := l.WithRequest(r)
	if e.Data["req_id"] != "abc-123" {
		t.Fatalf("req_id = %v", e.Data["req_id"])
	}
	if e.Data["path"] != "/process_audio" {
		t.Fatalf("path = %v", e.Data["path"])
	}
}

func TestWithRequestGeneratesID(t *testing.T) {
	l := &Logger{Entry: Discard()}
	r := httptest.NewRequest("GET", "/health", nil)

	e := l.WithRequest(r)
	id, _ := e.Data["req_id"].(string)
	if len(id) != 36 {
		t.Fatalf("expected generated uuid, got %q", id)
	}
}

func TestWithError(t *testing.T) {
	l := &Logger{Entry: Discard()}
	if e := l.WithError(nil); e != l.Entry {
		t.Fatal("nil error should return the base entry")
	}
	e := l.WithError(errors.New("boom"))
	if e.Data["error"] != "boom" {
		t.Fatalf("error field = %v", e.Data["error"])
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("expected a fallback entry")
	}
	e := Discard()
	if OrDiscard(e) != e {
		t.Fatal("expected the same entry back")
	}
}
