package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"mendan-go/internal/logger"
)

const (
	DefaultSampleRate  = 16000
	DefaultLongTimeout = 10 * time.Minute
)

type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest) ([]*speechpb.SpeechRecognitionResult, error)
	LongRunningRecognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) ([]*speechpb.SpeechRecognitionResult, error)
}

// Google transcribes with Cloud Speech-to-Text. Short audio goes through
// synchronous recognition; audio the API rejects as too long is retried
// once as a long-running operation.
type Google struct {
	sampleRate  int32
	longTimeout time.Duration
	log         *logrus.Entry

	rec recognizer
}

type GoogleOption func(*Google)

func WithSampleRate(hz int) GoogleOption {
	return func(g *Google) {
		if hz > 0 {
			g.sampleRate = int32(hz)
		}
	}
}

// WithLongRunningTimeout bounds the wait for a long-running operation.
func WithLongRunningTimeout(d time.Duration) GoogleOption {
	return func(g *Google) {
		if d > 0 {
			g.longTimeout = d
		}
	}
}

func withRecognizer(r recognizer) GoogleOption {
	return func(g *Google) { g.rec = r }
}

func NewGoogle(log *logrus.Entry, opts ...GoogleOption) *Google {
	g := &Google{
		sampleRate:  DefaultSampleRate,
		longTimeout: DefaultLongTimeout,
		log:         logger.OrDiscard(log).WithField("component", "transcription"),
		rec:         &speechClient{},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Google) config(languageCode string) *speechpb.RecognitionConfig {
	return &speechpb.RecognitionConfig{
		Encoding:                   speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:            g.sampleRate,
		LanguageCode:               languageCode,
		EnableAutomaticPunctuation: true,
		Model:                      "default",
	}
}

func (g *Google) Transcribe(ctx context.Context, loc Locator, languageCode string) (string, error) {
	log := g.log.WithFields(logrus.Fields{"uri": loc.String(), "language": languageCode})
	log.Info("transcribing audio")

	cfg := g.config(languageCode)
	audio := &speechpb.RecognitionAudio{
		AudioSource: &speechpb.RecognitionAudio_Uri{Uri: loc.String()},
	}

	results, err := g.rec.Recognize(ctx, &speechpb.RecognizeRequest{Config: cfg, Audio: audio})
	if err != nil {
		if !NeedsLongRunning(err) {
			return "", fmt.Errorf("recognize %s: %w", loc, err)
		}
		log.WithError(err).Info("audio too long for sync recognition, using long-running recognize")

		lctx, cancel := context.WithTimeout(ctx, g.longTimeout)
		defer cancel()
		results, err = g.rec.LongRunningRecognize(lctx, &speechpb.LongRunningRecognizeRequest{Config: cfg, Audio: audio})
		if err != nil {
			return "", fmt.Errorf("long-running recognize %s: %w", loc, err)
		}
	}

	transcript := joinResults(results)
	if transcript == "" {
		log.Warn("no transcript generated from audio")
	}
	return transcript, nil
}

// NeedsLongRunning reports whether a synchronous recognize failure means
// the audio exceeds the sync limits, which is the only case worth
// escalating.
func NeedsLongRunning(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	if st.Code() != codes.InvalidArgument && st.Code() != codes.OutOfRange {
		return false
	}
	msg := strings.ToLower(st.Message())
	for _, hint := range []string{"too long", "longrunningrecognize", "long running", "exceeds duration"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

func joinResults(results []*speechpb.SpeechRecognitionResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if alts := r.GetAlternatives(); len(alts) > 0 {
			parts = append(parts, alts[0].GetTranscript())
		}
	}
	return strings.Join(parts, " ")
}

// speechClient creates the Speech client lazily with application default
// credentials and keeps it for the process lifetime.
type speechClient struct {
	mu     sync.Mutex
	client *speech.Client
}

func (s *speechClient) get(ctx context.Context) (*speech.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	s.client = c
	return c, nil
}

func (s *speechClient) Recognize(ctx context.Context, req *speechpb.RecognizeRequest) ([]*speechpb.SpeechRecognitionResult, error) {
	c, err := s.get(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.Recognize(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.GetResults(), nil
}

func (s *speechClient) LongRunningRecognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) ([]*speechpb.SpeechRecognitionResult, error) {
	c, err := s.get(ctx)
	if err != nil {
		return nil, err
	}
	op, err := c.LongRunningRecognize(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return resp.GetResults(), nil
}

// Close releases the Speech client if one was created.
func (g *Google) Close() error {
	sc, ok := g.rec.(*speechClient)
	if !ok {
		return nil
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.client == nil {
		return nil
	}
	err := sc.client.Close()
	sc.client = nil
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
