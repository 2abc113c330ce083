package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rpattn/ngoreports/internal/domain"
	"github.com/rpattn/ngoreports/internal/middleware"

	"github.com/gorilla/mux"
)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T, jobs *stubJobRepo, reports *stubReportRepo, opts ...Option) *mux.Router {
	t.Helper()
	dispatcher := NewDispatcher(NewPipeline(jobs, reports), jobs)
	opts = append([]Option{WithUploadDirectory(t.TempDir())}, opts...)
	service := NewService(jobs, dispatcher, opts...)

	r := mux.NewRouter()
	r.Use(middleware.JobLoaderMiddleware(jobs))
	NewHTTPHandler(service).Register(r)
	return r
}

func multipartBody(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return body, w.FormDataContentType()
}

func serve(t *testing.T, h http.Handler, req *http.Request) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec.Code, env
}

func TestUploadAndPollJobStatus(t *testing.T) {
	jobs := newStubJobRepo()
	reports := newStubReportRepo()
	router := newTestRouter(t, jobs, reports)

	body, contentType := multipartBody(t, "file", "reports.csv", []byte(validRows(120)))
	req := httptest.NewRequest(http.MethodPost, "/reports/upload", body)
	req.Header.Set("Content-Type", contentType)

	code, env := serve(t, router, req)
	if code != http.StatusOK || env.Status != "success" {
		t.Fatalf("unexpected response %d %+v", code, env)
	}
	var accepted struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(env.Data, &accepted); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if accepted.Status != "pending" || accepted.JobID == "" {
		t.Fatalf("unexpected accepted payload %+v", accepted)
	}

	var job domain.Job
	deadline := time.Now().Add(5 * time.Second)
	for {
		code, env = serve(t, router, httptest.NewRequest(http.MethodGet, "/job-status/"+accepted.JobID, nil))
		if code != http.StatusOK {
			t.Fatalf("job status returned %d", code)
		}
		if err := json.Unmarshal(env.Data, &job); err != nil {
			t.Fatalf("decode job: %v", err)
		}
		if job.Status.IsTerminal() || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if job.Status != domain.JobStatusSuccess || job.Processed != 120 || job.Total != 120 {
		t.Fatalf("unexpected final job %+v", job)
	}
	if reports.count() != 120 {
		t.Fatalf("expected 120 reports, got %d", reports.count())
	}
}

func TestUploadRejections(t *testing.T) {
	router := newTestRouter(t, newStubJobRepo(), newStubReportRepo(), WithMaxUploadBytes(64))

	t.Run("no file", func(t *testing.T) {
		body, contentType := multipartBody(t, "other", "reports.csv", []byte(reportHeader))
		req := httptest.NewRequest(http.MethodPost, "/reports/upload", body)
		req.Header.Set("Content-Type", contentType)
		code, env := serve(t, router, req)
		if code != http.StatusBadRequest || env.Message != "No file uploaded" {
			t.Fatalf("unexpected response %d %+v", code, env)
		}
	})

	t.Run("wrong extension", func(t *testing.T) {
		body, contentType := multipartBody(t, "file", "reports.txt", []byte(reportHeader))
		req := httptest.NewRequest(http.MethodPost, "/reports/upload", body)
		req.Header.Set("Content-Type", contentType)
		code, env := serve(t, router, req)
		if code != http.StatusBadRequest || env.Status != "error" {
			t.Fatalf("unexpected response %d %+v", code, env)
		}
	})

	t.Run("too large", func(t *testing.T) {
		body, contentType := multipartBody(t, "file", "reports.csv", bytes.Repeat([]byte("a"), 65))
		req := httptest.NewRequest(http.MethodPost, "/reports/upload", body)
		req.Header.Set("Content-Type", contentType)
		code, env := serve(t, router, req)
		if code != http.StatusBadRequest || env.Status != "error" {
			t.Fatalf("unexpected response %d %+v", code, env)
		}
	})
}

func TestJobStatusNotFound(t *testing.T) {
	router := newTestRouter(t, newStubJobRepo(), newStubReportRepo())
	code, env := serve(t, router, httptest.NewRequest(http.MethodGet, "/job-status/JOB_missing", nil))
	if code != http.StatusNotFound || env.Message != "Job not found" {
		t.Fatalf("unexpected response %d %+v", code, env)
	}
}

func TestListJobs(t *testing.T) {
	jobs := newStubJobRepo()
	router := newTestRouter(t, jobs, newStubReportRepo())

	first := newPendingJob(t, jobs)
	second := newPendingJob(t, jobs)
	if err := jobs.MarkFailed(context.Background(), second, "bad header"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	t.Run("by status", func(t *testing.T) {
		code, env := serve(t, router, httptest.NewRequest(http.MethodGet, "/jobs?status=failed", nil))
		var list []domain.Job
		if err := json.Unmarshal(env.Data, &list); err != nil || code != http.StatusOK {
			t.Fatalf("unexpected response %d %v", code, err)
		}
		if len(list) != 1 || list[0].JobID != second {
			t.Fatalf("unexpected jobs %+v", list)
		}
	})

	t.Run("by ids", func(t *testing.T) {
		code, env := serve(t, router, httptest.NewRequest(http.MethodGet, "/jobs?ids="+first+",JOB_missing,"+second, nil))
		var list []domain.Job
		if err := json.Unmarshal(env.Data, &list); err != nil || code != http.StatusOK {
			t.Fatalf("unexpected response %d %v", code, err)
		}
		if len(list) != 2 || list[0].JobID != first || list[1].JobID != second {
			t.Fatalf("unexpected jobs %+v", list)
		}
	})

	t.Run("bad status", func(t *testing.T) {
		code, _ := serve(t, router, httptest.NewRequest(http.MethodGet, "/jobs?status=done", nil))
		if code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", code)
		}
	})
}
