package webhook

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"mendan-go/internal/logger"
	"mendan-go/internal/types"
)

// Channel delivers a payload and, when delivery fails, sends a fallback
// alert. The alert's own outcome never changes what Send returns.
type Channel struct {
	sender   *Sender
	notifier *Notifier
	log      *logrus.Entry
}

// NewChannel builds a Channel. notifier may be nil to disable alerts.
func NewChannel(sender *Sender, notifier *Notifier, log *logrus.Entry) *Channel {
	return &Channel{
		sender:   sender,
		notifier: notifier,
		log:      logger.OrDiscard(log).WithField("component", "webhook-channel"),
	}
}

func (c *Channel) Send(ctx context.Context, payload types.WebhookPayload) (types.DeliveryResult, error) {
	res, err := c.sender.Deliver(ctx, payload)
	if err != nil {
		c.log.WithError(err).Error("webhook send error")
		c.alert(ctx, ExceptionMessage(payload.RecordID, err))
		return res, err
	}
	if !res.Success {
		c.alert(ctx, FailureMessage(payload.RecordID, res))
	}
	return res, nil
}

func (c *Channel) alert(ctx context.Context, message string) {
	if c.notifier == nil {
		return
	}
	// the request context may already be done when delivery timed out
	r := c.notifier.Notify(context.WithoutCancel(ctx), message, "", "")
	if !r.Success {
		c.log.WithField("error", r.Error).Warn("slack notification failed")
	}
}

// FailureMessage is the alert for a delivery that got a non-success answer
// or none at all.
func FailureMessage(recordID string, res types.DeliveryResult) string {
	detail := res.Error
	if detail == "" {
		detail = res.ResponsePreview
	}
	if detail == "" {
		detail = "unknown"
	}
	return fmt.Sprintf("⚠️ Webhook送信エラー\nRecord ID: %s\nStatus: %s\nError: %s",
		orDefault(recordID, "unknown"), strconv.Itoa(res.StatusCode), truncate(detail, errorLimit))
}

// ExceptionMessage is the alert for a delivery that could not be attempted.
func ExceptionMessage(recordID string, err error) string {
	return fmt.Sprintf("🔥 Webhook送信で例外発生\nRecord ID: %s\nError: %s",
		orDefault(recordID, "unknown"), truncate(err.Error(), errorLimit))
}
