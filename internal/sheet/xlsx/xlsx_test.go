package xlsx

import (
	"context"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"
	"mendan-go/internal/sheet"
	"mendan-go/internal/types"
)

func TestStoreRoundTripThroughWriter(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	if err := store.Create("candidate-1", "merge_ui", sheet.DefaultLayout, []string{"氏名", "", "電話番号", "住所"}); err != nil {
		t.Fatal(err)
	}

	ref := sheet.Ref{SpreadsheetID: "candidate-1", SheetName: "merge_ui"}
	w := sheet.NewWriter(store, sheet.DefaultLayout, nil)

	labels, err := w.Labels(context.Background(), ref)
	if err != nil {
		t.Fatal(err)
	}
	if len(labels) != 3 || labels[0] != "氏名" || labels[2] != "住所" {
		t.Fatalf("labels = %v", labels)
	}

	name := "山田"
	n, err := w.WriteAudioResults(context.Background(), ref, map[string]types.ExtractionResult{
		"氏名":   {Value: &name, Confidence: 0.9, Evidence: "山田です"},
		"電話番号": {},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("updated = %d", n)
	}

	f, err := excelize.OpenFile(dir + "/candidate-1.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	for cell, want := range map[string]string{"E3": "山田", "J3": "0.9", "K3": "山田です", "J5": "0", "E6": "", "C3": ""} {
		got, err := f.GetCellValue("merge_ui", cell)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("%s = %q, want %q", cell, got, want)
		}
	}
}

func TestMissingWorksheet(t *testing.T) {
	store := New(t.TempDir())
	if err := store.Create("doc", "merge_ui", sheet.DefaultLayout, []string{"氏名"}); err != nil {
		t.Fatal(err)
	}

	_, err := store.ReadColumn(context.Background(), sheet.Ref{SpreadsheetID: "doc", SheetName: "other"}, "A")
	if !errors.Is(err, sheet.ErrWorksheetNotFound) {
		t.Fatalf("expected ErrWorksheetNotFound, got %v", err)
	}
	_, err = store.ReadColumn(context.Background(), sheet.Ref{SpreadsheetID: "missing", SheetName: "merge_ui"}, "A")
	if !errors.Is(err, sheet.ErrWorksheetNotFound) {
		t.Fatalf("expected ErrWorksheetNotFound for missing file, got %v", err)
	}
}

func TestRejectsPathTraversal(t *testing.T) {
	store := New(t.TempDir())
	for _, id := range []string{"../etc/passwd", "a/b", "", ".."} {
		if _, err := store.ReadColumn(context.Background(), sheet.Ref{SpreadsheetID: id, SheetName: "s"}, "A"); err == nil {
			t.Errorf("id %q should be rejected", id)
		}
	}
}
