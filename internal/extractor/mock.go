package extractor

import "context"

const mockResponse = "```json\n" + `{
  "氏名": {"value": "山田 太郎", "confidence": 0.95, "evidence": "山田太郎と申します"},
  "電話番号": {"value": null, "confidence": 0.0, "evidence": ""},
  "希望職種": {"value": "エンジニア", "confidence": 0.8, "evidence": "エンジニア職を希望しています"},
  "希望年収": {"value": "500万円〜", "confidence": 0.7, "evidence": "500万円以上を希望"}
}` + "\n```"

// Mock is the deterministic offline model, enabled with USE_MOCK_LLM=true.
type Mock struct {
	Response string
}

func (m Mock) Model() string { return "mock" }

func (m Mock) Generate(context.Context, string) (string, error) {
	if m.Response != "" {
		return m.Response, nil
	}
	return mockResponse, nil
}
