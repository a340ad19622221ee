package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"mendan-go/internal/logger"
	"mendan-go/internal/piimask"
	"mendan-go/internal/porters"
	"mendan-go/internal/sheet"
)

// ImportSummary is returned by /import_porters. IsMock tells operators the
// data came from the stub HR client.
type ImportSummary struct {
	RecordID    string `json:"record_id"`
	UpdatedRows int    `json:"updated_rows"`
	IsMock      bool   `json:"is_mock"`
	DurationMs  int64  `json:"duration_ms"`
}

// Import copies an HR-system record into sheet column C.
type Import struct {
	writer *sheet.Writer
	client porters.Client
	log    *logrus.Entry
}

func NewImport(w *sheet.Writer, c porters.Client, log *logrus.Entry) *Import {
	return &Import{
		writer: w,
		client: c,
		log:    logger.OrDiscard(log).WithField("component", "import-pipeline"),
	}
}

func (p *Import) Run(ctx context.Context, ref sheet.Ref, recordID string) (*ImportSummary, error) {
	start := time.Now()
	log := p.log.WithFields(logrus.Fields{"sheet": ref.String(), "record_id": recordID})
	log.Info("importing porters data")

	rec, err := p.client.GetRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("fetch porters record %s: %w", recordID, err)
	}
	if rec == nil || rec.Data == nil {
		return nil, &ValidationError{Err: fmt.Errorf("%w: %s", porters.ErrNoData, recordID)}
	}
	log.Debugf("porters data (masked): %s", piimask.SafeLogString(rec.Data, piimask.DefaultMaxLength))

	updated, err := p.writer.WriteImportResults(ctx, ref, rec.Data)
	if err != nil {
		return nil, err
	}

	sum := &ImportSummary{
		RecordID:    recordID,
		UpdatedRows: updated,
		IsMock:      rec.Mock,
		DurationMs:  time.Since(start).Milliseconds(),
	}
	log.WithFields(logrus.Fields{"updated_rows": updated, "is_mock": rec.Mock}).Info("porters import finished")
	return sum, nil
}
