package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"mendan-go/internal/logger"
)

// PublishResponse is the /transcribe answer of the HTTP transcription
// service.
type PublishResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		MediaID          string `json:"MediaId"`
		Status           string `json:"Status"`
		TranscriptionURL string `json:"TranscriptionURL"`
		WordsCount       int    `json:"WordsCount"`
	} `json:"Data"`
	Reason string `json:"Reason,omitempty"`
}

// StatusResponse is the /getstatus answer.
type StatusResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		Status               string `json:"Status"` // Success, Queued, Processing, Failed
		TranscriptionTextURL string `json:"TranscriptionTextURL"`
		WordsCount           int    `json:"WordsCount"`
	} `json:"Data"`
	Reason string `json:"Reason,omitempty"`
}

// ObjectReader loads audio bytes.
type ObjectReader interface {
	ReadObject(ctx context.Context, loc Locator) ([]byte, error)
}

// HTTP uploads the audio to an external transcription service, polls
// until the job finishes and downloads the text.
type HTTP struct {
	host         string
	client       *http.Client
	objects      ObjectReader
	pollInterval time.Duration
	pollTimeout  time.Duration
	log          *logrus.Entry
}

type HTTPOption func(*HTTP)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

// WithPolling sets the status poll interval and the overall wait.
func WithPolling(interval, timeout time.Duration) HTTPOption {
	return func(h *HTTP) {
		if interval > 0 {
			h.pollInterval = interval
		}
		if timeout > 0 {
			h.pollTimeout = timeout
		}
	}
}

func NewHTTP(host string, objects ObjectReader, log *logrus.Entry, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		host:         strings.TrimRight(host, "/"),
		client:       &http.Client{Timeout: 2 * time.Minute},
		objects:      objects,
		pollInterval: 1500 * time.Millisecond,
		pollTimeout:  DefaultLongTimeout,
		log:          logger.OrDiscard(log).WithField("component", "transcription"),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *HTTP) Transcribe(ctx context.Context, loc Locator, languageCode string) (string, error) {
	if h.host == "" {
		return "", errors.New("TRANSCRIBE_URL not set")
	}
	log := h.log.WithField("uri", loc.String())

	audio, err := h.objects.ReadObject(ctx, loc)
	if err != nil {
		return "", fmt.Errorf("read audio %s: %w", loc, err)
	}
	log.WithField("bytes", len(audio)).Info("starting transcription")

	mediaID, readyURL, err := h.publish(ctx, loc, audio, languageCode)
	if err != nil {
		return "", err
	}
	if readyURL != "" {
		log.Info("transcription already exists, downloading text")
		return h.download(ctx, readyURL)
	}

	finalURL, err := h.poll(ctx, mediaID, log)
	if err != nil {
		return "", err
	}
	log.WithField("media_id", mediaID).Info("transcription completed, downloading text")
	return h.download(ctx, finalURL)
}

func (h *HTTP) publish(ctx context.Context, loc Locator, audio []byte, languageCode string) (string, string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	w.WriteField("languageCode", languageCode)
	w.WriteField("sourceUri", loc.String())
	part, err := w.CreateFormFile("file", path.Base(loc.Object))
	if err != nil {
		return "", "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", "", err
	}
	if err := w.Close(); err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.host+"/transcribe", &b)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp PublishResponse
	if err := h.doJSON(req, &resp); err != nil {
		return "", "", fmt.Errorf("transcribe publish: %w", err)
	}
	if resp.Code != http.StatusOK {
		return "", "", fmt.Errorf("transcribe publish error: code=%d reason=%s", resp.Code, resp.Reason)
	}
	if resp.Data.TranscriptionURL != "" && strings.EqualFold(strings.TrimSpace(resp.Data.Status), "success") {
		return "", resp.Data.TranscriptionURL, nil
	}
	if resp.Data.MediaID == "" {
		return "", "", errors.New("transcribe publish: no media id in response")
	}
	return resp.Data.MediaID, "", nil
}

func (h *HTTP) poll(ctx context.Context, mediaID string, log *logrus.Entry) (string, error) {
	u, err := url.Parse(h.host + "/getstatus")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("mediaId", mediaID)
	u.RawQuery = q.Encode()

	var finalURL string
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		var s StatusResponse
		if err := h.doJSON(req, &s); err != nil {
			log.WithError(err).Warn("polling failed")
			return err
		}
		log.WithFields(logrus.Fields{"media_id": mediaID, "status": s.Data.Status}).Debug("polling transcription")

		switch s.Data.Status {
		case "Success":
			finalURL = s.Data.TranscriptionTextURL
			return nil
		case "Failed":
			return backoff.Permanent(fmt.Errorf("transcription failed: %s", s.Reason))
		default:
			return fmt.Errorf("transcription %s", strings.ToLower(s.Data.Status))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = h.pollInterval
	bo.MaxInterval = 10 * h.pollInterval
	bo.MaxElapsedTime = h.pollTimeout
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return "", fmt.Errorf("wait for transcription %s: %w", mediaID, err)
	}
	return finalURL, nil
}

func (h *HTTP) download(ctx context.Context, textURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, textURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download transcript: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("download transcript: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("download transcript: status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return strings.TrimSpace(string(body)), nil
}

func (h *HTTP) doJSON(req *http.Request, target any) error {
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("server error: status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if len(body) == 0 {
		return errors.New("empty body")
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("json decode error: %w body=%s", err, truncate(string(body), 200))
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// GCSReader reads objects from Cloud Storage with a lazily created client.
type GCSReader struct {
	opts []option.ClientOption

	mu     sync.Mutex
	client *storage.Client
}

func NewGCSReader(opts ...option.ClientOption) *GCSReader {
	return &GCSReader{opts: opts}
}

func (g *GCSReader) ReadObject(ctx context.Context, loc Locator) ([]byte, error) {
	g.mu.Lock()
	if g.client == nil {
		c, err := storage.NewClient(ctx, g.opts...)
		if err != nil {
			g.mu.Unlock()
			return nil, fmt.Errorf("storage client: %w", err)
		}
		g.client = c
	}
	client := g.client
	g.mu.Unlock()

	r, err := client.Bucket(loc.Bucket).Object(loc.Object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrInvalidLocator, loc)
		}
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (g *GCSReader) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		return nil
	}
	err := g.client.Close()
	g.client = nil
	return err
}
