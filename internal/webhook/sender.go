// Package webhook delivers merged records downstream and raises chat alerts
// when delivery fails.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"mendan-go/internal/logger"
	"mendan-go/internal/piimask"
	"mendan-go/internal/secrets"
	"mendan-go/internal/types"
)

const (
	DefaultTimeout = 30 * time.Second

	previewLimit = 500
	errorLimit   = 200
	drainLimit   = 64 << 10
	timeoutError = "Request timed out"
)

// ErrNoTargetURL means the webhook URL secret could not be resolved.
var ErrNoTargetURL = errors.New("webhook URL not configured")

// Sender POSTs payloads to the URL stored in the secret store, with an
// optional bearer token from a second secret.
type Sender struct {
	secrets     secrets.Store
	urlSecret   string
	tokenSecret string
	client      *http.Client
	log         *logrus.Entry
}

type SenderOption func(*Sender)

func WithTimeout(d time.Duration) SenderOption {
	return func(s *Sender) {
		if d > 0 {
			s.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the transport. Redirects are still not followed.
func WithHTTPClient(c *http.Client) SenderOption {
	return func(s *Sender) {
		cp := *c
		cp.CheckRedirect = noRedirect
		if cp.Timeout == 0 {
			cp.Timeout = s.client.Timeout
		}
		s.client = &cp
	}
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

func NewSender(store secrets.Store, urlSecret, tokenSecret string, log *logrus.Entry, opts ...SenderOption) *Sender {
	s := &Sender{
		secrets:     store,
		urlSecret:   urlSecret,
		tokenSecret: tokenSecret,
		client:      &http.Client{Timeout: DefaultTimeout, CheckRedirect: noRedirect},
		log:         logger.OrDiscard(log).WithField("component", "webhook"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Deliver sends payload once. Transport failures, timeouts included, are
// reported in the result; an error is returned only when the request could
// not be built, e.g. the target URL is missing.
func (s *Sender) Deliver(ctx context.Context, payload types.WebhookPayload) (types.DeliveryResult, error) {
	audit := s.log.WithFields(logrus.Fields{
		"record_id":       orDefault(payload.RecordID, "unknown"),
		"idempotency_key": orDefault(payload.IdempotencyKey, "none"),
		"field_count":     len(payload.Fields),
	})
	audit.Info("[AUDIT] webhook send initiated")

	target, err := s.secrets.Get(ctx, s.urlSecret)
	if err != nil {
		audit.WithField("error", truncate(err.Error(), errorLimit)).Error("[AUDIT] webhook not sent")
		return types.DeliveryResult{}, fmt.Errorf("%w: %v", ErrNoTargetURL, err)
	}

	token, err := s.secrets.Get(ctx, s.tokenSecret)
	if err != nil {
		s.log.WithError(err).Info("webhook token not configured, proceeding without auth")
		token = ""
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return types.DeliveryResult{}, fmt.Errorf("marshal payload: %w", err)
	}
	s.log.WithField("target", truncate(target, 50)).Info("sending webhook")
	s.log.Debugf("payload (masked): %s", piimask.SafeLogString(payload, piimask.DefaultMaxLength))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return types.DeliveryResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if auth := BearerHeader(token); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			audit.Error("[AUDIT] webhook timeout")
			return types.DeliveryResult{StatusCode: 0, Success: false, Error: timeoutError}, nil
		}
		audit.WithField("error", err.Error()).Error("[AUDIT] webhook error")
		return types.DeliveryResult{StatusCode: 0, Success: false, Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	// only the preview is kept; a bounded tail is drained so the connection
	// can be reused
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4*previewLimit))
	if err != nil {
		audit.WithError(err).Warn("reading webhook response body")
	}
	preview := truncate(string(raw), previewLimit)
	io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))

	res := types.DeliveryResult{
		StatusCode:      resp.StatusCode,
		Success:         IsSuccess(resp.StatusCode),
		ResponsePreview: preview,
	}
	audit = audit.WithField("status_code", resp.StatusCode)
	if res.Success {
		audit.Info("[AUDIT] webhook sent successfully")
	} else {
		audit.WithField("error", truncate(preview, errorLimit)).Warn("[AUDIT] webhook failed")
	}
	return res, nil
}

// BearerHeader returns the Authorization value for token. A token that
// already carries the scheme is used as is.
func BearerHeader(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(token, "Bearer ") {
		return token
	}
	return "Bearer " + token
}

// IsSuccess treats 2xx and 3xx as delivered.
func IsSuccess(code int) bool {
	return code >= 200 && code < 400
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
