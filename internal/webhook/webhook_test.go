package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"mendan-go/internal/secrets"
	"mendan-go/internal/types"
)

type mapSecrets map[string]string

func (m mapSecrets) Get(_ context.Context, name string) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", fmt.Errorf("%s: %w", name, secrets.ErrNotFound)
	}
	return v, nil
}

func testPayload() types.WebhookPayload {
	return types.WebhookPayload{
		RecordID:       "R-1",
		IdempotencyKey: "idem-1",
		MergedAt:       "2026-10-18T10:00:00+09:00",
		Fields: []map[string]any{
			{"label": "氏名", "value": "山田 太郎", "source": "audio"},
			{"label": "電話番号", "value": "090-1234-5678", "source": "porters"},
		},
	}
}

func findEntry(hook *logtest.Hook, msg string) *logrus.Entry {
	for _, e := range hook.AllEntries() {
		if e.Message == msg {
			return e
		}
	}
	return nil
}

func TestDeliverSuccess(t *testing.T) {
	var gotAuth string
	var got types.WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	log, hook := logtest.NewNullLogger()
	s := NewSender(mapSecrets{"webhook-url": srv.URL, "webhook-token": "abc"}, "webhook-url", "webhook-token", log.WithField("t", 1))

	res, err := s.Deliver(context.Background(), testPayload())
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != 200 || !res.Success || res.ResponsePreview != `{"ok":true}` || res.Error != "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if gotAuth != "Bearer abc" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if got.RecordID != "R-1" || len(got.Fields) != 2 || got.Fields[0]["label"] != "氏名" {
		t.Fatalf("unexpected payload %+v", got)
	}

	pre := findEntry(hook, "[AUDIT] webhook send initiated")
	if pre == nil {
		t.Fatal("missing pre-send audit line")
	}
	if pre.Data["record_id"] != "R-1" || pre.Data["idempotency_key"] != "idem-1" || pre.Data["field_count"] != 2 {
		t.Fatalf("audit fields = %v", pre.Data)
	}
	post := findEntry(hook, "[AUDIT] webhook sent successfully")
	if post == nil || post.Level != logrus.InfoLevel || post.Data["status_code"] != 200 {
		t.Fatal("missing post-send audit line")
	}
	for _, e := range hook.AllEntries() {
		if s, _ := e.String(); strings.Contains(s, "090-1234-5678") {
			t.Fatalf("phone number leaked into logs: %s", s)
		}
	}
}

func TestDeliverWithoutTokenOrDefaults(t *testing.T) {
	var gotAuth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Values("Authorization")
	}))
	defer srv.Close()

	log, hook := logtest.NewNullLogger()
	s := NewSender(mapSecrets{"webhook-url": srv.URL}, "webhook-url", "webhook-token", log.WithField("t", 1))
	res, err := s.Deliver(context.Background(), types.WebhookPayload{MergedAt: "now"})
	if err != nil || !res.Success {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if len(gotAuth) != 0 {
		t.Fatalf("unexpected Authorization %v", gotAuth)
	}
	pre := findEntry(hook, "[AUDIT] webhook send initiated")
	if pre.Data["record_id"] != "unknown" || pre.Data["idempotency_key"] != "none" {
		t.Fatalf("audit fields = %v", pre.Data)
	}
}

func TestDeliverFailureStatus(t *testing.T) {
	long := strings.Repeat("x", 800)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(long))
	}))
	defer srv.Close()

	log, hook := logtest.NewNullLogger()
	s := NewSender(mapSecrets{"webhook-url": srv.URL}, "webhook-url", "webhook-token", log.WithField("t", 1))
	res, err := s.Deliver(context.Background(), testPayload())
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.StatusCode != 500 || len(res.ResponsePreview) != 500 {
		t.Fatalf("unexpected result status=%d success=%v preview=%d", res.StatusCode, res.Success, len(res.ResponsePreview))
	}
	e := findEntry(hook, "[AUDIT] webhook failed")
	if e == nil || e.Level != logrus.WarnLevel {
		t.Fatal("missing failure audit line")
	}
	if s, _ := e.Data["error"].(string); len(s) != 200 {
		t.Fatalf("audit error preview length = %d", len(s))
	}
}

func TestDeliverTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	log, hook := logtest.NewNullLogger()
	s := NewSender(mapSecrets{"webhook-url": srv.URL}, "webhook-url", "webhook-token", log.WithField("t", 1), WithTimeout(50*time.Millisecond))
	res, err := s.Deliver(context.Background(), testPayload())
	if err != nil {
		t.Fatalf("timeout must not be an error: %v", err)
	}
	want := types.DeliveryResult{StatusCode: 0, Success: false, Error: "Request timed out"}
	if res != want {
		t.Fatalf("got %+v, want %+v", res, want)
	}
	if e := findEntry(hook, "[AUDIT] webhook timeout"); e == nil || e.Level != logrus.ErrorLevel {
		t.Fatal("missing timeout audit line")
	}
}

func TestDeliverConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := NewSender(mapSecrets{"webhook-url": url}, "webhook-url", "webhook-token", nil)
	res, err := s.Deliver(context.Background(), testPayload())
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.StatusCode != 0 || res.Error == "" || res.Error == timeoutError {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestDeliverMissingURL(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	s := NewSender(mapSecrets{}, "webhook-url", "webhook-token", log.WithField("t", "missing"))
	if _, err := s.Deliver(context.Background(), testPayload()); !errors.Is(err, ErrNoTargetURL) {
		t.Fatalf("expected ErrNoTargetURL, got %v", err)
	}
	e := findEntry(hook, "[AUDIT] webhook not sent")
	if e == nil {
		t.Fatal("attempt must be closed with an audit line")
	}
	if e.Level != logrus.ErrorLevel || e.Data["record_id"] != "R-1" ||
		!strings.Contains(fmt.Sprint(e.Data["error"]), "webhook-url") {
		t.Fatalf("audit entry = %v %v", e.Level, e.Data)
	}
}

func TestDeliverLargeResponseIsBounded(t *testing.T) {
	big := strings.Repeat("x", 1<<20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, big)
	}))
	defer srv.Close()

	s := NewSender(mapSecrets{"webhook-url": srv.URL}, "webhook-url", "t", nil, WithHTTPClient(srv.Client()))
	res, err := s.Deliver(context.Background(), testPayload())
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.StatusCode != http.StatusBadGateway || len(res.ResponsePreview) != previewLimit {
		t.Fatalf("status=%d success=%v preview=%d", res.StatusCode, res.Success, len(res.ResponsePreview))
	}
}

func TestDeliverDoesNotFollowRedirects(t *testing.T) {
	followed := false
	mux := http.NewServeMux()
	mux.HandleFunc("/hook", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	})
	mux.HandleFunc("/elsewhere", func(w http.ResponseWriter, r *http.Request) {
		followed = true
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewSender(mapSecrets{"webhook-url": srv.URL + "/hook"}, "webhook-url", "t", nil, WithHTTPClient(srv.Client()))
	res, err := s.Deliver(context.Background(), testPayload())
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusFound || !res.Success || followed {
		t.Fatalf("status=%d success=%v followed=%v", res.StatusCode, res.Success, followed)
	}
}

func TestBearerHeader(t *testing.T) {
	tests := map[string]string{
		"":           "",
		"  ":         "",
		"abc":        "Bearer abc",
		"Bearer abc": "Bearer abc",
		" tok-1 \n":  "Bearer tok-1",
	}
	for in, want := range tests {
		if got := BearerHeader(in); got != want {
			t.Errorf("BearerHeader(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsSuccess(t *testing.T) {
	for code, want := range map[int]bool{199: false, 200: true, 204: true, 302: true, 399: true, 400: false, 500: false} {
		if IsSuccess(code) != want {
			t.Errorf("IsSuccess(%d) != %v", code, want)
		}
	}
}

type slackRecorder struct {
	mu       sync.Mutex
	messages []slackMessage
	status   int
}

func (s *slackRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m slackMessage
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &m)
		s.mu.Lock()
		s.messages = append(s.messages, m)
		s.mu.Unlock()
		if s.status != 0 {
			w.WriteHeader(s.status)
		}
	}
}

func TestNotify(t *testing.T) {
	rec := &slackRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	n := NewNotifier(mapSecrets{"slack-webhook-url": srv.URL}, "slack-webhook-url", 0, nil)
	res := n.Notify(context.Background(), "done", "#mendan", "U123")
	if !res.Success || res.StatusCode != 200 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(rec.messages) != 1 || rec.messages[0].Text != "<@U123> done" || rec.messages[0].Channel != "#mendan" {
		t.Fatalf("unexpected messages %+v", rec.messages)
	}

	missing := NewNotifier(mapSecrets{}, "slack-webhook-url", 0, nil).Notify(context.Background(), "x", "", "")
	if missing.Success || missing.Error != "Slack webhook not configured" {
		t.Fatalf("unexpected result %+v", missing)
	}
}

func TestChannelAlertsOnFailure(t *testing.T) {
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer hook.Close()
	rec := &slackRecorder{status: http.StatusInternalServerError}
	slack := httptest.NewServer(rec.handler())
	defer slack.Close()

	store := mapSecrets{"webhook-url": hook.URL, "slack-webhook-url": slack.URL}
	ch := NewChannel(
		NewSender(store, "webhook-url", "webhook-token", nil),
		NewNotifier(store, "slack-webhook-url", 0, nil),
		nil,
	)

	res, err := ch.Send(context.Background(), testPayload())
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.StatusCode != http.StatusBadGateway {
		t.Fatalf("fallback must not alter the result: %+v", res)
	}
	if len(rec.messages) != 1 {
		t.Fatalf("expected one alert, got %d", len(rec.messages))
	}
	want := "⚠️ Webhook送信エラー\nRecord ID: R-1\nStatus: 502\nError: upstream down"
	if rec.messages[0].Text != want {
		t.Fatalf("alert = %q", rec.messages[0].Text)
	}
}

func TestChannelAlertsOnException(t *testing.T) {
	rec := &slackRecorder{}
	slack := httptest.NewServer(rec.handler())
	defer slack.Close()

	store := mapSecrets{"slack-webhook-url": slack.URL}
	ch := NewChannel(NewSender(store, "webhook-url", "webhook-token", nil), NewNotifier(store, "slack-webhook-url", 0, nil), nil)

	_, err := ch.Send(context.Background(), testPayload())
	if !errors.Is(err, ErrNoTargetURL) {
		t.Fatalf("expected original error, got %v", err)
	}
	if len(rec.messages) != 1 || !strings.HasPrefix(rec.messages[0].Text, "🔥 Webhook送信で例外発生\nRecord ID: R-1\nError: ") {
		t.Fatalf("unexpected alerts %+v", rec.messages)
	}
}

func TestChannelNoAlertOnSuccess(t *testing.T) {
	hook := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer hook.Close()
	rec := &slackRecorder{}
	slack := httptest.NewServer(rec.handler())
	defer slack.Close()

	store := mapSecrets{"webhook-url": hook.URL, "slack-webhook-url": slack.URL}
	ch := NewChannel(NewSender(store, "webhook-url", "webhook-token", nil), NewNotifier(store, "slack-webhook-url", 0, nil), nil)
	if res, err := ch.Send(context.Background(), testPayload()); err != nil || !res.Success {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if len(rec.messages) != 0 {
		t.Fatal("no alert expected on success")
	}
}

func TestFailureMessageTimeout(t *testing.T) {
	msg := FailureMessage("", types.DeliveryResult{Error: timeoutError})
	if msg != "⚠️ Webhook送信エラー\nRecord ID: unknown\nStatus: 0\nError: Request timed out" {
		t.Fatalf("msg = %q", msg)
	}
}
