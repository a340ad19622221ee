// Package gsheets is the Google Sheets backed sheet.Store.
package gsheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
	"mendan-go/internal/logger"
	"mendan-go/internal/sheet"
)

// Store talks to the Sheets v4 API. The service is created on first use
// with application default credentials unless options say otherwise.
type Store struct {
	opts []option.ClientOption
	log  *logrus.Entry

	mu  sync.Mutex
	srv *sheets.Service
}

func New(log *logrus.Entry, opts ...option.ClientOption) *Store {
	return &Store{
		opts: opts,
		log:  logger.OrDiscard(log).WithField("component", "gsheets"),
	}
}

// service returns the cached client. A failed creation is not cached, so
// the next call tries again.
func (s *Store) service() (*sheets.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return s.srv, nil
	}
	opts := append([]option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}, s.opts...)
	// the client outlives any single request
	srv, err := sheets.NewService(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	s.srv = srv
	s.log.Info("sheets client initialized")
	return srv, nil
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func (s *Store) ReadColumn(ctx context.Context, ref sheet.Ref, col sheet.Column) ([]string, error) {
	srv, err := s.service()
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	rng := fmt.Sprintf("%s!%s:%s", quoteSheet(ref.SheetName), col, col)
	vr, err := srv.Spreadsheets.Values.Get(ref.SpreadsheetID, rng).
		MajorDimension("COLUMNS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapError(ref, err)
	}
	if len(vr.Values) == 0 {
		return nil, nil
	}
	out := make([]string, len(vr.Values[0]))
	for i, v := range vr.Values[0] {
		out[i] = fmt.Sprint(v)
	}
	return out, nil
}

func (s *Store) BatchUpdate(ctx context.Context, ref sheet.Ref, updates []sheet.CellUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	srv, err := s.service()
	if err != nil {
		return fmt.Errorf("sheets client: %w", err)
	}
	data := make([]*sheets.ValueRange, 0, len(updates))
	for _, u := range updates {
		data = append(data, &sheets.ValueRange{
			Range:  quoteSheet(ref.SheetName) + "!" + u.A1(),
			Values: [][]interface{}{{u.Value}},
		})
	}
	_, err = srv.Spreadsheets.Values.BatchUpdate(ref.SpreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return mapError(ref, err)
	}
	return nil
}

// mapError turns the API's "Unable to parse range" answer, which is what an
// unknown worksheet name produces, into sheet.ErrWorksheetNotFound.
func mapError(ref sheet.Ref, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusBadRequest &&
		strings.Contains(gerr.Message, "Unable to parse range") {
		return fmt.Errorf("%s: %w", ref.SheetName, sheet.ErrWorksheetNotFound)
	}
	return fmt.Errorf("sheets %s: %w", ref, err)
}
