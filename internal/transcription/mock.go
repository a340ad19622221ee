package transcription

import "context"

// MockTranscript is returned by Mock when no transcript is set.
const MockTranscript = "本日はよろしくお願いします。お名前をお願いできますか。山田太郎と申します。" +
	"ご連絡先は090-1234-5678です。希望職種はエンジニアで、年収は500万円以上を希望しています。"

// Mock returns a fixed transcript without touching any service.
type Mock struct {
	Transcript string
}

func (m Mock) Transcribe(_ context.Context, _ Locator, _ string) (string, error) {
	if m.Transcript == "" {
		return MockTranscript, nil
	}
	return m.Transcript, nil
}
