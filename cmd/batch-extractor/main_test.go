package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Lllllllleong/tableflow/internal/models"
	"github.com/Lllllllleong/tableflow/internal/services"
	"github.com/google/go-cmp/cmp"
)

type fakeProcessor struct {
	res  *models.BatchExtractResponse
	err  error
	reqs []models.BatchExtractRequest
}

func (f *fakeProcessor) Process(_ context.Context, req *models.BatchExtractRequest) (*models.BatchExtractResponse, error) {
	f.reqs = append(f.reqs, *req)
	return f.res, f.err
}

// useExtractor swaps the constructor for one returning p (or err) and counts
// how often it runs.
func useExtractor(t *testing.T, p batchProcessor, err error) *int {
	t.Helper()
	saved := newExtractor
	calls := new(int)
	newExtractor = func(context.Context) (batchProcessor, error) {
		*calls++
		return p, err
	}
	once, extractorInstance, initErr = sync.Once{}, nil, nil
	t.Cleanup(func() {
		newExtractor = saved
		once, extractorInstance, initErr = sync.Once{}, nil, nil
	})
	return calls
}

func TestHandleBatchExtractRejectsBadRequestsBeforeInit(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{name: "malformed JSON", method: http.MethodPost, body: "{bucket", want: http.StatusBadRequest},
		{name: "missing bucket", method: http.MethodPost, body: `{"prefix":"reports/"}`, want: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodGet, body: "", want: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := useExtractor(t, nil, errors.New("no credentials"))
			rec := httptest.NewRecorder()
			handleBatchExtract(rec, httptest.NewRequest(tt.method, "/", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if *calls != 0 {
				t.Errorf("extractor initialized %d times for a rejected request", *calls)
			}
		})
	}
}

func TestHandleBatchExtractStatusCodes(t *testing.T) {
	tests := []struct {
		name    string
		proc    *fakeProcessor
		initErr error
		want    int
	}{
		{name: "init failure", initErr: errors.New("no credentials"), want: http.StatusInternalServerError},
		{name: "no documents", proc: &fakeProcessor{err: fmt.Errorf("listing: %w", services.ErrNoDocuments)}, want: http.StatusNotFound},
		{name: "run failure", proc: &fakeProcessor{err: errors.New("publish failed")}, want: http.StatusInternalServerError},
		{name: "success", proc: &fakeProcessor{res: &models.BatchExtractResponse{Status: "success"}}, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p batchProcessor
			if tt.proc != nil {
				p = tt.proc
			}
			useExtractor(t, p, tt.initErr)
			rec := httptest.NewRecorder()
			handleBatchExtract(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bucket":"scans"}`)))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandleBatchExtractAssignsRunID(t *testing.T) {
	proc := &fakeProcessor{res: &models.BatchExtractResponse{Status: "success", RunID: "r1", Extracted: 2, Rows: 7}}
	calls := useExtractor(t, proc, nil)

	for range 2 {
		rec := httptest.NewRecorder()
		body := `{"bucket":"scans","prefix":"2020/"}`
		handleBatchExtract(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var got models.BatchExtractResponse
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if diff := cmp.Diff(*proc.res, got); diff != "" {
			t.Errorf("response mismatch (-want +got):\n%s", diff)
		}
	}

	if *calls != 1 {
		t.Errorf("extractor initialized %d times, want 1", *calls)
	}
	if len(proc.reqs) != 2 {
		t.Fatalf("Process called %d times, want 2", len(proc.reqs))
	}
	for _, req := range proc.reqs {
		if req.RunID == "" || req.Bucket != "scans" || req.Prefix != "2020/" {
			t.Errorf("Process got request %+v, want a run ID and the decoded bucket and prefix", req)
		}
	}
	if proc.reqs[0].RunID == proc.reqs[1].RunID {
		t.Errorf("both requests got run ID %s", proc.reqs[0].RunID)
	}
}
