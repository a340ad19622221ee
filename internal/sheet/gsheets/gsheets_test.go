package gsheets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/option"
	"mendan-go/internal/sheet"
)

func newTestStore(t *testing.T, h http.HandlerFunc) *Store {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(nil, option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication(), option.WithHTTPClient(srv.Client()))
}

var ref = sheet.Ref{SpreadsheetID: "doc-1", SheetName: "merge_ui"}

func TestReadColumn(t *testing.T) {
	var gotPath, gotDim string
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotDim = r.URL.Query().Get("majorDimension")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"range":"merge_ui!A1:A4","majorDimension":"COLUMNS","values":[["項目","","氏名","電話番号"]]}`))
	})

	col, err := s.ReadColumn(context.Background(), ref, "A")
	if err != nil {
		t.Fatal(err)
	}
	if len(col) != 4 || col[2] != "氏名" {
		t.Fatalf("col = %v", col)
	}
	if !strings.Contains(gotPath, "/v4/spreadsheets/doc-1/values/") || gotDim != "COLUMNS" {
		t.Fatalf("path=%q dim=%q", gotPath, gotDim)
	}
}

func TestReadColumnEmpty(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"range":"merge_ui!A1:A1000"}`))
	})
	col, err := s.ReadColumn(context.Background(), ref, "A")
	if err != nil || len(col) != 0 {
		t.Fatalf("col=%v err=%v", col, err)
	}
}

func TestUnknownWorksheet(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"Unable to parse range: 'nope'!A:A","status":"INVALID_ARGUMENT"}}`))
	})
	_, err := s.ReadColumn(context.Background(), ref, "A")
	if !errors.Is(err, sheet.ErrWorksheetNotFound) {
		t.Fatalf("expected ErrWorksheetNotFound, got %v", err)
	}
}

func TestBatchUpdateSingleCall(t *testing.T) {
	calls := 0
	var body struct {
		ValueInputOption string `json:"valueInputOption"`
		Data             []struct {
			Range  string          `json:"range"`
			Values [][]interface{} `json:"values"`
		} `json:"data"`
	}
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if !strings.HasSuffix(r.URL.Path, "/values:batchUpdate") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"spreadsheetId":"doc-1","totalUpdatedCells":2}`))
	})

	err := s.BatchUpdate(context.Background(), ref, []sheet.CellUpdate{
		{Column: "E", Row: 3, Value: "山田"},
		{Column: "J", Row: 3, Value: 0.9},
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
	if body.ValueInputOption != "RAW" || len(body.Data) != 2 || body.Data[0].Range != "'merge_ui'!E3" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestQuoteSheet(t *testing.T) {
	if got := quoteSheet("it's"); got != "'it''s'" {
		t.Fatalf("quoteSheet = %q", got)
	}
}

func TestServiceRetriesAfterFailedInit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"values":[["氏名"]]}`))
	}))
	defer srv.Close()

	s := New(nil, option.WithCredentialsJSON([]byte("not json")))
	if _, err := s.ReadColumn(context.Background(), ref, "A"); err == nil {
		t.Fatal("expected client creation to fail")
	}

	s.opts = []option.ClientOption{option.WithEndpoint(srv.URL + "/"), option.WithoutAuthentication(), option.WithHTTPClient(srv.Client())}
	col, err := s.ReadColumn(context.Background(), ref, "A")
	if err != nil {
		t.Fatalf("second attempt should build a fresh client: %v", err)
	}
	if len(col) != 1 || col[0] != "氏名" {
		t.Fatalf("col = %v", col)
	}
	first, _ := s.service()
	second, _ := s.service()
	if first != second {
		t.Fatal("a working client must be reused")
	}
}
