// Package transcription turns recorded interviews stored in object storage
// into plain text.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidLocator is returned for audio references that are not
// gs://bucket/object URIs.
var ErrInvalidLocator = errors.New("invalid GCS URI")

// Locator names one object in Cloud Storage.
type Locator struct {
	Bucket string
	Object string
}

func (l Locator) String() string {
	return "gs://" + l.Bucket + "/" + l.Object
}

// ParseGCSURI splits gs://bucket/path/to/file.wav.
func ParseGCSURI(uri string) (Locator, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "gs://")
	if !ok {
		return Locator{}, fmt.Errorf("%w: %q", ErrInvalidLocator, uri)
	}
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return Locator{}, fmt.Errorf("%w: %q: expected gs://bucket/object", ErrInvalidLocator, uri)
	}
	return Locator{Bucket: bucket, Object: object}, nil
}

// Transcriber returns the transcript of the audio at loc.
type Transcriber interface {
	Transcribe(ctx context.Context, loc Locator, languageCode string) (string, error)
}
