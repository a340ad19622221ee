package sheet

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/xuri/excelize/v2"
)

// MemoryStore keeps documents in memory. It backs SHEETS_BACKEND=memory and
// the tests.
type MemoryStore struct {
	mu      sync.Mutex
	sheets  map[Ref]map[string]string
	batches int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sheets: make(map[Ref]map[string]string)}
}

// AddSheet creates a worksheet whose label column holds labels starting at
// layout.DataStartRow. An empty label leaves a blank row.
func (m *MemoryStore) AddSheet(ref Ref, layout Layout, labels []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cells := make(map[string]string)
	for i, label := range labels {
		if label == "" {
			continue
		}
		cells[fmt.Sprintf("%s%d", layout.Label, layout.DataStartRow+i)] = label
	}
	m.sheets[ref] = cells
}

// SetCell writes a single cell outside of a batch.
func (m *MemoryStore) SetCell(ref Ref, a1, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sheets[ref] == nil {
		m.sheets[ref] = make(map[string]string)
	}
	m.sheets[ref][a1] = value
}

// Cell returns the value at a1, "" when empty.
func (m *MemoryStore) Cell(ref Ref, a1 string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sheets[ref][a1]
}

// Snapshot copies every non-empty cell of a worksheet.
func (m *MemoryStore) Snapshot(ref Ref) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.sheets[ref]))
	for k, v := range m.sheets[ref] {
		out[k] = v
	}
	return out
}

// Batches counts BatchUpdate calls.
func (m *MemoryStore) Batches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches
}

func (m *MemoryStore) ReadColumn(_ context.Context, ref Ref, col Column) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cells, ok := m.sheets[ref]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref.SheetName, ErrWorksheetNotFound)
	}
	maxRow := 0
	for a1 := range cells {
		c, row, err := excelize.SplitCellName(a1)
		if err != nil || Column(c) != col {
			continue
		}
		if row > maxRow {
			maxRow = row
		}
	}
	out := make([]string, maxRow)
	for i := range out {
		out[i] = cells[string(col)+strconv.Itoa(i+1)]
	}
	return out, nil
}

func (m *MemoryStore) BatchUpdate(_ context.Context, ref Ref, updates []CellUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cells, ok := m.sheets[ref]
	if !ok {
		return fmt.Errorf("%s: %w", ref.SheetName, ErrWorksheetNotFound)
	}
	m.batches++
	for _, u := range updates {
		cells[u.A1()] = fmt.Sprint(u.Value)
	}
	return nil
}
