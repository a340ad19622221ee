package sheet

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"mendan-go/internal/logger"
	"mendan-go/internal/types"
)

// LabelIndex maps a label to its 1-based row.
type LabelIndex map[string]int

// Writer resolves labels and performs the batched merge writes.
type Writer struct {
	store  Store
	layout Layout
	log    *logrus.Entry
}

func NewWriter(store Store, layout Layout, log *logrus.Entry) *Writer {
	return &Writer{
		store:  store,
		layout: layout,
		log:    logger.OrDiscard(log).WithField("component", "sheet-writer"),
	}
}

func (w *Writer) Layout() Layout { return w.layout }

// Labels returns the non-blank labels from the data start row down, in
// sheet order.
func (w *Writer) Labels(ctx context.Context, ref Ref) ([]string, error) {
	col, err := w.store.ReadColumn(ctx, ref, w.layout.Label)
	if err != nil {
		return nil, fmt.Errorf("read labels of %s: %w", ref, err)
	}
	var labels []string
	for i := w.layout.DataStartRow - 1; i < len(col); i++ {
		if i < 0 || isBlank(col[i]) {
			continue
		}
		labels = append(labels, col[i])
	}
	return labels, nil
}

// Resolve builds a fresh label -> row index. A label that appears twice
// maps to its last row.
func (w *Writer) Resolve(ctx context.Context, ref Ref) (LabelIndex, error) {
	col, err := w.store.ReadColumn(ctx, ref, w.layout.Label)
	if err != nil {
		return nil, fmt.Errorf("read labels of %s: %w", ref, err)
	}
	index := make(LabelIndex)
	for i := w.layout.DataStartRow - 1; i < len(col); i++ {
		if i < 0 || isBlank(col[i]) {
			continue
		}
		row := i + 1
		if prev, dup := index[col[i]]; dup {
			w.log.WithFields(logrus.Fields{
				"sheet":      ref.String(),
				"label":      col[i],
				"first_row":  prev,
				"second_row": row,
			}).Warn("duplicate label in sheet, last row wins")
		}
		index[col[i]] = row
	}
	return index, nil
}

// WriteAudioResults writes extraction results into the audio value,
// confidence and evidence columns. It returns the number of labels whose
// row was found.
func (w *Writer) WriteAudioResults(ctx context.Context, ref Ref, results map[string]types.ExtractionResult) (int, error) {
	labels := make([]string, 0, len(results))
	for label := range results {
		labels = append(labels, label)
	}
	return w.write(ctx, ref, PipelineAudio, labels, func(label string, row int) []CellUpdate {
		r := results[label]
		cells := make([]CellUpdate, 0, 3)
		if r.Value != nil {
			cells = append(cells, CellUpdate{Column: w.layout.AudioValue, Row: row, Value: *r.Value})
		}
		cells = append(cells, CellUpdate{Column: w.layout.Confidence, Row: row, Value: r.Confidence})
		if r.Evidence != "" {
			cells = append(cells, CellUpdate{Column: w.layout.Evidence, Row: row, Value: r.Evidence})
		}
		return cells
	})
}

// WriteImportResults writes HR-system values into the import value column.
func (w *Writer) WriteImportResults(ctx context.Context, ref Ref, results map[string]string) (int, error) {
	labels := make([]string, 0, len(results))
	for label := range results {
		labels = append(labels, label)
	}
	return w.write(ctx, ref, PipelineImport, labels, func(label string, row int) []CellUpdate {
		return []CellUpdate{{Column: w.layout.ImportValue, Row: row, Value: results[label]}}
	})
}

func (w *Writer) write(ctx context.Context, ref Ref, p Pipeline, labels []string, cellsFor func(label string, row int) []CellUpdate) (int, error) {
	index, err := w.Resolve(ctx, ref)
	if err != nil {
		return 0, err
	}

	sort.Strings(labels)
	log := w.log.WithFields(logrus.Fields{"sheet": ref.String(), "pipeline": string(p)})

	var updates []CellUpdate
	updated := 0
	for _, label := range labels {
		row, ok := index[label]
		if !ok {
			log.WithField("label", label).Warn("label not found in sheet")
			continue
		}
		for _, cell := range cellsFor(label, row) {
			if !w.layout.Owns(p, cell.Column) {
				return 0, fmt.Errorf("pipeline %s may not write column %s", p, cell.Column)
			}
			updates = append(updates, cell)
		}
		updated++
	}

	if len(updates) > 0 {
		if err := w.store.BatchUpdate(ctx, ref, updates); err != nil {
			return 0, fmt.Errorf("batch update %s: %w", ref, err)
		}
		log.WithFields(logrus.Fields{"rows": updated, "cells": len(updates)}).Info("updated rows in sheet")
	}
	return updated, nil
}
