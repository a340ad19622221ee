// Package api exposes the pipelines and webhook delivery over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"mendan-go/internal/logger"
	"mendan-go/internal/pipeline"
	"mendan-go/internal/sheet"
	"mendan-go/internal/types"
)

const (
	DefaultSheetName = "merge_ui"
	APIKeyHeader     = "X-Internal-Api-Key"

	maxBodyBytes = 1 << 20
)

type AudioRunner interface {
	Run(ctx context.Context, req pipeline.AudioRequest) (*pipeline.AudioSummary, error)
}

type ImportRunner interface {
	Run(ctx context.Context, ref sheet.Ref, recordID string) (*pipeline.ImportSummary, error)
}

type WebhookSender interface {
	Send(ctx context.Context, payload types.WebhookPayload) (types.DeliveryResult, error)
}

// Deps are the collaborators behind the endpoints. An empty APIKey turns
// authentication off.
type Deps struct {
	Audio   AudioRunner
	Import  ImportRunner
	Webhook WebhookSender
	APIKey  string
	Log     *logger.Logger
}

type Server struct {
	audio   AudioRunner
	imports ImportRunner
	webhook WebhookSender
	apiKey  string
	log     *logger.Logger
	now     func() time.Time
}

func New(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = &logger.Logger{Entry: logger.Discard()}
	}
	return &Server{
		audio:   d.Audio,
		imports: d.Import,
		webhook: d.Webhook,
		apiKey:  d.APIKey,
		log:     log,
		now:     time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("POST /process_audio", s.authorized(s.processAudio))
	mux.HandleFunc("POST /import_porters", s.authorized(s.importPorters))
	mux.HandleFunc("POST /send_webhook", s.authorized(s.sendWebhook))
	return mux
}

// Response is the envelope of every mutating endpoint.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type errorBody struct {
	Detail string `json:"detail"`
}

type ProcessAudioRequest struct {
	SheetID      string         `json:"sheet_id"`
	SheetName    string         `json:"sheet_name"`
	GCSURI       string         `json:"gcs_uri"`
	LanguageCode string         `json:"language_code"`
	RecordID     string         `json:"record_id"`
	Metadata     map[string]any `json:"metadata"`
}

type ImportPortersRequest struct {
	SheetID         string `json:"sheet_id"`
	SheetName       string `json:"sheet_name"`
	PortersRecordID string `json:"porters_record_id"`
}

type SendWebhookRequest struct {
	RecordID       string           `json:"record_id"`
	IdempotencyKey string           `json:"idempotency_key"`
	MergedAt       string           `json:"merged_at"`
	Fields         []map[string]any `json:"fields"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": s.now().Format(time.RFC3339),
	})
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.WithRequest(r).Warn("INTERNAL_API_KEY is not set - skipping authentication")
			next(w, r)
			return
		}
		got := r.Header.Get(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
			s.log.WithRequest(r).Warn("invalid API key")
			writeJSON(w, http.StatusUnauthorized, errorBody{Detail: "Invalid API key"})
			return
		}
		next(w, r)
	}
}

func (s *Server) processAudio(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "process_audio")

	var req ProcessAudioRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SheetID == "" || req.GCSURI == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: "sheet_id and gcs_uri are required"})
		return
	}
	if req.SheetName == "" {
		req.SheetName = DefaultSheetName
	}
	reqLog = reqLog.WithFields(logrus.Fields{"gcs_uri": req.GCSURI, "record_id": req.RecordID})
	reqLog.Info("processing audio")

	start := time.Now()
	sum, err := s.audio.Run(r.Context(), pipeline.AudioRequest{
		Sheet:        sheet.Ref{SpreadsheetID: req.SheetID, SheetName: req.SheetName},
		GCSURI:       req.GCSURI,
		LanguageCode: req.LanguageCode,
		RecordID:     req.RecordID,
		Metadata:     req.Metadata,
	})
	reqLog = reqLog.WithField("duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		s.fail(w, reqLog, "audio processing error", err)
		return
	}
	reqLog.Info("audio processing finished")
	writeJSON(w, http.StatusOK, Response{Status: "success", Message: "音声処理が完了しました", Data: sum})
}

func (s *Server) importPorters(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "import_porters")

	var req ImportPortersRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SheetID == "" || req.PortersRecordID == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: "sheet_id and porters_record_id are required"})
		return
	}
	if req.SheetName == "" {
		req.SheetName = DefaultSheetName
	}
	reqLog = reqLog.WithField("porters_record_id", req.PortersRecordID)
	reqLog.Info("importing porters data")

	sum, err := s.imports.Run(r.Context(), sheet.Ref{SpreadsheetID: req.SheetID, SheetName: req.SheetName}, req.PortersRecordID)
	if err != nil {
		s.fail(w, reqLog, "porters import error", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "success", Message: "Portersデータのインポートが完了しました", Data: sum})
}

func (s *Server) sendWebhook(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "send_webhook")

	var req SendWebhookRequest
	if !decode(w, r, &req) {
		return
	}
	if req.MergedAt == "" || req.Fields == nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: "merged_at and fields are required"})
		return
	}
	reqLog = reqLog.WithField("record_id", req.RecordID)
	reqLog.Info("sending webhook")

	res, err := s.webhook.Send(r.Context(), types.WebhookPayload{
		RecordID:       req.RecordID,
		IdempotencyKey: req.IdempotencyKey,
		MergedAt:       req.MergedAt,
		Fields:         req.Fields,
	})
	if err != nil {
		s.fail(w, reqLog, "webhook send error", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "success", Message: "Webhook送信が完了しました", Data: res})
}

// fail reports err as a 500 with the error text as detail.
func (s *Server) fail(w http.ResponseWriter, log *logrus.Entry, msg string, err error) {
	if pipeline.IsValidation(err) {
		log.WithError(err).Warn(msg)
	} else {
		log.WithError(err).Error(msg)
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{Detail: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Detail: "request body too large"})
			return false
		}
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}
