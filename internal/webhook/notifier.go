package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"mendan-go/internal/logger"
	"mendan-go/internal/secrets"
	"mendan-go/internal/types"
)

const DefaultSlackTimeout = 10 * time.Second

// Notifier posts messages to a Slack incoming webhook.
type Notifier struct {
	secrets   secrets.Store
	urlSecret string
	client    *http.Client
	log       *logrus.Entry
}

func NewNotifier(store secrets.Store, urlSecret string, timeout time.Duration, log *logrus.Entry) *Notifier {
	if timeout <= 0 {
		timeout = DefaultSlackTimeout
	}
	return &Notifier{
		secrets:   store,
		urlSecret: urlSecret,
		client:    &http.Client{Timeout: timeout},
		log:       logger.OrDiscard(log).WithField("component", "slack"),
	}
}

type slackMessage struct {
	Text    string `json:"text"`
	Channel string `json:"channel,omitempty"`
}

// Notify sends message, prefixed with a mention of mentionID when set. It
// never fails; problems are reported in the result.
func (n *Notifier) Notify(ctx context.Context, message, channel, mentionID string) types.NotifyResult {
	if mentionID != "" {
		message = "<@" + mentionID + "> " + message
	}

	target, err := n.secrets.Get(ctx, n.urlSecret)
	if err != nil {
		n.log.WithError(err).Warn("slack webhook URL not configured")
		return types.NotifyResult{Success: false, Error: "Slack webhook not configured"}
	}

	body, _ := json.Marshal(slackMessage{Text: message, Channel: channel})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		n.log.WithError(err).Error("slack notification error")
		return types.NotifyResult{Success: false, Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.WithError(err).Error("slack notification error")
		return types.NotifyResult{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return types.NotifyResult{StatusCode: resp.StatusCode, Success: IsSuccess(resp.StatusCode)}
}
