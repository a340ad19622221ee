// Package sheet resolves schema labels to rows of a row-labeled document and
// merges pipeline results into the columns each pipeline owns.
//
// The label column is re-read on every write. The document is edited by
// people concurrently, so a cached index would go stale between calls.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrWorksheetNotFound is returned by stores when the named worksheet
	// does not exist in the document.
	ErrWorksheetNotFound = errors.New("worksheet not found")
	// ErrEmptySchema means the label column holds no labels.
	ErrEmptySchema = errors.New("no labels found in sheet")
)

// Ref points at one worksheet of one document.
type Ref struct {
	SpreadsheetID string `json:"sheet_id"`
	SheetName     string `json:"sheet_name"`
}

func (r Ref) String() string {
	return r.SpreadsheetID + "/" + r.SheetName
}

// Column is a spreadsheet column letter.
type Column string

// CellUpdate sets one cell.
type CellUpdate struct {
	Column Column
	Row    int
	Value  any
}

// A1 returns the cell address, e.g. "E5".
func (u CellUpdate) A1() string {
	return fmt.Sprintf("%s%d", u.Column, u.Row)
}

// Store is the document backend. ReadColumn returns the column top to
// bottom, index 0 being row 1; missing trailing cells may be omitted.
// BatchUpdate applies all updates in one call, or none of them.
type Store interface {
	ReadColumn(ctx context.Context, ref Ref, col Column) ([]string, error)
	BatchUpdate(ctx context.Context, ref Ref, updates []CellUpdate) error
}

// Pipeline names a data source that writes into the document.
type Pipeline string

const (
	PipelineAudio  Pipeline = "audio"
	PipelineImport Pipeline = "import"
)

// Layout describes where each merge column lives.
type Layout struct {
	DataStartRow int

	Label       Column
	ImportCheck Column
	ImportValue Column
	AudioCheck  Column
	AudioValue  Column
	ManualCheck Column
	ManualValue Column
	Source      Column
	MergedValue Column
	Confidence  Column
	Evidence    Column
}

// DefaultLayout is the merge_ui sheet: labels in A, data from row 3.
var DefaultLayout = Layout{
	DataStartRow: 3,
	Label:        "A",
	ImportCheck:  "B",
	ImportValue:  "C",
	AudioCheck:   "D",
	AudioValue:   "E",
	ManualCheck:  "F",
	ManualValue:  "G",
	Source:       "H",
	MergedValue:  "I",
	Confidence:   "J",
	Evidence:     "K",
}

// Columns returns the columns a pipeline may write.
func (l Layout) Columns(p Pipeline) []Column {
	switch p {
	case PipelineAudio:
		return []Column{l.AudioValue, l.Confidence, l.Evidence}
	case PipelineImport:
		return []Column{l.ImportValue}
	default:
		return nil
	}
}

// Owns reports whether col belongs to pipeline p.
func (l Layout) Owns(p Pipeline, col Column) bool {
	for _, c := range l.Columns(p) {
		if c == col {
			return true
		}
	}
	return false
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
