// Package xlsx stores merge documents as local .xlsx workbooks. The
// spreadsheet id is the file name under the root directory.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
	"mendan-go/internal/sheet"
)

// Store implements sheet.Store on top of excelize.
type Store struct {
	root string
	mu   sync.Mutex
}

func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) path(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || id != filepath.Base(id) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid spreadsheet id %q", id)
	}
	if !strings.HasSuffix(strings.ToLower(id), ".xlsx") {
		id += ".xlsx"
	}
	return filepath.Join(s.root, id), nil
}

func (s *Store) open(id, sheetName string) (*excelize.File, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("spreadsheet %s: %w", id, sheet.ErrWorksheetNotFound)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	if idx, err := f.GetSheetIndex(sheetName); err != nil || idx < 0 {
		f.Close()
		return nil, fmt.Errorf("%s: %w", sheetName, sheet.ErrWorksheetNotFound)
	}
	return f, nil
}

func (s *Store) ReadColumn(_ context.Context, ref sheet.Ref, col sheet.Column) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open(ref.SpreadsheetID, ref.SheetName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	n, err := excelize.ColumnNameToNumber(string(col))
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", col, err)
	}
	rows, err := f.GetRows(ref.SheetName)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		if n-1 < len(r) {
			out[i] = r[n-1]
		}
	}
	return out, nil
}

func (s *Store) BatchUpdate(_ context.Context, ref sheet.Ref, updates []sheet.CellUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open(ref.SpreadsheetID, ref.SheetName)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, u := range updates {
		if err := f.SetCellValue(ref.SheetName, u.A1(), u.Value); err != nil {
			return fmt.Errorf("set %s: %w", u.A1(), err)
		}
	}
	// written only after every cell was accepted
	if err := f.Save(); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// Create writes a new workbook with one worksheet whose label column holds
// labels from layout.DataStartRow down. The header rows get column titles.
func (s *Store) Create(id, sheetName string, layout sheet.Layout, labels []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create root: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if sheetName != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return fmt.Errorf("drop default sheet: %w", err)
		}
	}

	if layout.DataStartRow > 1 {
		for col, title := range headerTitles(layout) {
			f.SetCellValue(sheetName, fmt.Sprintf("%s%d", col, layout.DataStartRow-1), title)
		}
	}
	for i, label := range labels {
		if label == "" {
			continue
		}
		cell := fmt.Sprintf("%s%d", layout.Label, layout.DataStartRow+i)
		if err := f.SetCellValue(sheetName, cell, label); err != nil {
			return fmt.Errorf("set %s: %w", cell, err)
		}
	}
	if err := f.SaveAs(p); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

func headerTitles(l sheet.Layout) map[sheet.Column]string {
	return map[sheet.Column]string{
		l.Label:       "項目",
		l.ImportCheck: "取込",
		l.ImportValue: "取込値",
		l.AudioCheck:  "音声",
		l.AudioValue:  "音声値",
		l.ManualCheck: "手入力",
		l.ManualValue: "手入力値",
		l.Source:      "採用元",
		l.MergedValue: "確定値",
		l.Confidence:  "確信度",
		l.Evidence:    "根拠",
	}
}
