package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jwhan/csvlingo/internal/translate"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, runner Runner) (*Server, *Registry) {
	t.Helper()
	reg := NewRegistry(runner, nil, 2, time.Hour)
	srv := New(Options{Addr: "127.0.0.1:0"}, reg, nil, nil, nil, zap.NewNop())
	return srv, reg
}

func uploadRequest(t *testing.T, csv, config string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "input.csv")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(csv)); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteField("config", config); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

const validConfig = `{
	"sourceLanguage": "en",
	"batchSize": 10,
	"columnMappings": [
		{"columnIndex": 0, "columnName": "text", "shouldTranslate": true, "targetLanguage": "ko"}
	]
}`

func TestCreateJobAcceptsUpload(t *testing.T) {
	runner := &fakeRunner{}
	srv, _ := newTestServer(t, runner)

	rec := httptest.NewRecorder()
	srv.handleCreateJob(rec, uploadRequest(t, "text\nhello\nworld\n", validConfig))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		JobID     string `json:"jobId"`
		TotalRows int    `json:"totalRows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response JSON: %v", err)
	}
	if resp.JobID == "" {
		t.Error("response has no job ID")
	}
	if resp.TotalRows != 2 {
		t.Errorf("total rows = %d, want 2", resp.TotalRows)
	}
}

func TestCreateJobRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		csv    string
		config string
		want   int
	}{
		{"empty csv", "", validConfig, http.StatusBadRequest},
		{"config not json", "text\nhello\n", "{not json", http.StatusBadRequest},
		{"missing source language", "text\nhello\n", `{"batchSize":10}`, http.StatusBadRequest},
		{"column index out of range", "text\nhello\n", `{
			"sourceLanguage": "en",
			"batchSize": 10,
			"columnMappings": [{"columnIndex": 5, "shouldTranslate": true, "targetLanguage": "ko"}]
		}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, &fakeRunner{})

			rec := httptest.NewRecorder()
			srv.handleCreateJob(rec, uploadRequest(t, tt.csv, tt.config))

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestCreateJobRefusesWhenFull(t *testing.T) {
	runner := &fakeRunner{}
	srv, reg := newTestServer(t, runner)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		srv.handleCreateJob(rec, uploadRequest(t, "text\nhello\n", validConfig))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("upload %d status = %d", i, rec.Code)
		}
	}
	if reg.ActiveCount() != 2 {
		t.Fatalf("active = %d, want 2", reg.ActiveCount())
	}

	rec := httptest.NewRecorder()
	srv.handleCreateJob(rec, uploadRequest(t, "text\nhello\n", validConfig))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestJobStatusAndDownload(t *testing.T) {
	runner := &fakeRunner{}
	srv, reg := newTestServer(t, runner)

	rec := httptest.NewRecorder()
	srv.handleCreateJob(rec, uploadRequest(t, "text\nhello\n", validConfig))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload status = %d", rec.Code)
	}

	var created struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	job, err := reg.Get(created.JobID)
	if err != nil {
		t.Fatal(err)
	}

	// Download before completion is refused.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID+"/download", nil)
	req.SetPathValue("id", job.ID)
	srv.handleDownload(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("early download status = %d, want 409", rec.Code)
	}

	runner.stream(0) <- translate.Event{
		Seq:       1,
		Type:      translate.EventComplete,
		TotalRows: 1, ProcessedRows: 1,
		Result: smallTable(),
	}
	close(runner.stream(0))
	waitFor(t, func() bool { return job.Status() == JobStatusComplete })

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID, nil)
	req.SetPathValue("id", job.ID)
	srv.handleJobStatus(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(JobStatusComplete)) {
		t.Errorf("status body %s does not report completion", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID+"/download", nil)
	req.SetPathValue("id", job.ID)
	srv.handleDownload(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	if got := rec.Body.String(); got != "text\nhello\n" {
		t.Errorf("downloaded CSV = %q", got)
	}
}

func TestJobStatusUnknownID(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil)
	req.SetPathValue("id", "nope")
	srv.handleJobStatus(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHealthWithoutProvider(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("health body = %s", rec.Body.String())
	}
}

func TestHistoryDisabled(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	srv.handleHistory(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))

	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}
