package types

// ExtractionResult is what the extraction model reported for one label.
// Value is nil when the model found nothing for the label.
type ExtractionResult struct {
	Value      *string `json:"value"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
}

// StringValue returns the value or "" when absent.
func (r ExtractionResult) StringValue() string {
	if r.Value == nil {
		return ""
	}
	return *r.Value
}

// Missing is the result reported for a label the model did not return.
func Missing() ExtractionResult {
	return ExtractionResult{}
}

// ImportRecord is a flat field map fetched from the HR system.
type ImportRecord struct {
	RecordID string            `json:"record_id"`
	Data     map[string]string `json:"data"`
	Mock     bool              `json:"_mock,omitempty"`
}

// WebhookPayload is the merged record forwarded downstream.
// Fields are opaque to this service and forwarded in order.
type WebhookPayload struct {
	RecordID       string           `json:"record_id,omitempty"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
	MergedAt       string           `json:"merged_at"`
	Fields         []map[string]any `json:"fields"`
}

// DeliveryResult is the outcome of a single webhook POST.
type DeliveryResult struct {
	StatusCode      int    `json:"status_code"`
	Success         bool   `json:"success"`
	ResponsePreview string `json:"response_preview,omitempty"`
	Error           string `json:"error,omitempty"`
}

// NotifyResult is the outcome of a chat notification.
type NotifyResult struct {
	StatusCode int    `json:"status_code,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}
