// Package porters is the client of the Porters HR system. Only a stub
// exists until the Porters API contract is settled.
package porters

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"mendan-go/internal/logger"
	"mendan-go/internal/types"
)

// ErrNoData means the HR system returned no field data for a record.
var ErrNoData = errors.New("no data found for porters record")

// UpdateResult is the answer to UpdateRecord.
type UpdateResult struct {
	Success  bool   `json:"success"`
	RecordID string `json:"record_id"`
	Mock     bool   `json:"_mock,omitempty"`
}

// Client reads and writes candidate records in the HR system.
type Client interface {
	GetRecord(ctx context.Context, recordID string) (*types.ImportRecord, error)
	UpdateRecord(ctx context.Context, recordID string, data map[string]string) (*UpdateResult, error)
}

// StubClient answers every record id with the same sample candidate.
type StubClient struct {
	log *logrus.Entry
}

func NewStubClient(log *logrus.Entry) *StubClient {
	return &StubClient{log: logger.OrDiscard(log).WithField("component", "porters")}
}

func (c *StubClient) GetRecord(_ context.Context, recordID string) (*types.ImportRecord, error) {
	c.log.WithField("record_id", recordID).Info("[STUB] fetching porters record")
	return &types.ImportRecord{
		RecordID: recordID,
		Data:     sampleRecord(),
		Mock:     true,
	}, nil
}

func (c *StubClient) UpdateRecord(_ context.Context, recordID string, data map[string]string) (*UpdateResult, error) {
	c.log.WithFields(logrus.Fields{"record_id": recordID, "fields": len(data)}).Info("[STUB] updating porters record")
	return &UpdateResult{Success: true, RecordID: recordID, Mock: true}, nil
}

func sampleRecord() map[string]string {
	return map[string]string{
		"氏名":        "山田 太郎",
		"生年月日(年齢)":  "1990/01/01（35）",
		"電話番号":      "090-1234-5678",
		"メールアドレス":   "yamada@example.com",
		"現住所":       "東京都渋谷区...",
		"最寄り駅":      "渋谷駅",
		"最終学歴":      "○○大学 工学部",
		"現職/前職":     "株式会社○○",
		"希望職種":      "エンジニア",
		"希望年収":      "500万円〜",
	}
}
