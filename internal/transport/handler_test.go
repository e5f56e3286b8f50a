package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/anime-shed/blur-inspector-go/internal/config"
	apperrors "github.com/anime-shed/blur-inspector-go/internal/errors"
	"github.com/anime-shed/blur-inspector-go/internal/pipeline"
	"github.com/anime-shed/blur-inspector-go/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubService records requests and returns canned responses
type stubService struct {
	lastRequest models.ScanRequest
	lastLimit   int
	scanErr     error
	runs        map[string]*models.ScanReport
	deletion    *models.DeletionReport
	deleteErr   error
}

func (s *stubService) Scan(ctx context.Context, req models.ScanRequest) (*models.ScanReport, error) {
	s.lastRequest = req
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	return &models.ScanReport{RunID: "run-1", Mode: models.ScanModeDisplay, Total: 2, Blurred: 1,
		BlurredIDs: []models.ImageHandle{"b.jpg"}}, nil
}

func (s *stubService) GetRun(ctx context.Context, runID string) (*models.ScanReport, error) {
	if r, ok := s.runs[runID]; ok {
		return r, nil
	}
	return nil, apperrors.NewNotFoundError("scan run "+runID+" not found", nil)
}

func (s *stubService) ListRuns(ctx context.Context, limit int) ([]*models.ScanReport, error) {
	s.lastLimit = limit
	out := make([]*models.ScanReport, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	return out, nil
}

func (s *stubService) DeleteBlurred(ctx context.Context, runID string, resolver pipeline.ChallengeResolver) (*models.DeletionReport, error) {
	return s.deletion, s.deleteErr
}

func (s *stubService) Source() string { return "stub:images" }

type stubMetrics struct{}

func (stubMetrics) GetMetrics() map[string]interface{} {
	return map[string]interface{}{"scans_completed": int64(3)}
}

func newTestHandler(svc *stubService) http.Handler {
	cfg := config.Default()
	cfg.MaxRequestBodySize = 1024
	return NewHandler(svc, stubMetrics{}, cfg)
}

func doRequest(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	w := doRequest(newTestHandler(&stubService{}), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "available" || body["source"] != "stub:images" {
		t.Errorf("Unexpected health body: %v", body)
	}
}

func TestStartScan(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantStatus    int
		wantThreshold *float64
		wantMode      models.ScanMode
	}{
		{name: "empty body", body: "", wantStatus: http.StatusOK},
		{name: "empty object", body: "{}", wantStatus: http.StatusOK},
		{name: "purge with threshold", body: `{"mode":"purge","threshold":120}`, wantStatus: http.StatusOK,
			wantThreshold: func() *float64 { v := 120.0; return &v }(), wantMode: models.ScanModePurge},
		{name: "malformed json", body: `{"threshold":`, wantStatus: http.StatusBadRequest},
		{name: "wrong type", body: `{"chunk_size":"big"}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{}
			w := doRequest(newTestHandler(svc), http.MethodPost, "/scans", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("Expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var report models.ScanReport
			if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
				t.Fatal(err)
			}
			if report.RunID != "run-1" || len(report.BlurredIDs) != 1 {
				t.Errorf("Unexpected report: %+v", report)
			}
			if svc.lastRequest.Mode != tt.wantMode {
				t.Errorf("Expected mode %q, got %q", tt.wantMode, svc.lastRequest.Mode)
			}
			if tt.wantThreshold != nil && (svc.lastRequest.Threshold == nil || *svc.lastRequest.Threshold != *tt.wantThreshold) {
				t.Errorf("Threshold not passed through: %v", svc.lastRequest.Threshold)
			}
		})
	}
}

func TestStartScan_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", apperrors.NewValidationError("threshold cannot be negative", nil), http.StatusBadRequest},
		{"enumeration", apperrors.NewEnumerationError("failed to list images", nil), http.StatusBadGateway},
		{"timeout", apperrors.NewTimeoutError("scan stopped", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"internal", apperrors.NewInternalError("failed to store scan run", nil), http.StatusInternalServerError},
		{"plain", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(newTestHandler(&stubService{scanErr: tt.err}), http.MethodPost, "/scans", "{}")
			if w.Code != tt.wantStatus {
				t.Errorf("Expected %d, got %d", tt.wantStatus, w.Code)
			}

			var resp models.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if !strings.HasPrefix(resp.Message, "scan failed: ") {
				t.Errorf("Unexpected error message %q", resp.Message)
			}
		})
	}
}

func TestGetScan(t *testing.T) {
	svc := &stubService{runs: map[string]*models.ScanReport{
		"run-1": {RunID: "run-1", Total: 1, Results: []models.ImageResult{{ID: "a.jpg", Score: 12.5}}},
	}}
	h := newTestHandler(svc)

	w := doRequest(h, http.MethodGet, "/scans/run-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var report models.ScanReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if len(report.Results) != 1 || report.Results[0].Score != 12.5 {
		t.Errorf("Unexpected results: %+v", report.Results)
	}

	if w := doRequest(h, http.MethodGet, "/scans/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown run, got %d", w.Code)
	}
}

func TestListScans(t *testing.T) {
	svc := &stubService{runs: map[string]*models.ScanReport{"run-1": {RunID: "run-1"}}}
	h := newTestHandler(svc)

	w := doRequest(h, http.MethodGet, "/scans", "")
	if w.Code != http.StatusOK || svc.lastLimit != defaultListLimit {
		t.Errorf("Expected 200 with default limit, got %d / %d", w.Code, svc.lastLimit)
	}

	w = doRequest(h, http.MethodGet, "/scans?limit=5", "")
	if w.Code != http.StatusOK || svc.lastLimit != 5 {
		t.Errorf("Expected limit 5, got %d / %d", w.Code, svc.lastLimit)
	}

	if w := doRequest(h, http.MethodGet, "/scans?limit=-1", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a negative limit, got %d", w.Code)
	}
}

func TestDeleteBlurred(t *testing.T) {
	svc := &stubService{deletion: &models.DeletionReport{
		RunID: "run-1", Requested: 2, Deleted: 1, Challenged: 1,
		Outcomes: []models.DeletionOutcome{
			{ID: "a.jpg", Status: models.DeletionDeleted},
			{ID: "b.jpg", Status: models.DeletionChallenged, Token: "azblob:photos/b.jpg"},
		},
	}}

	w := doRequest(newTestHandler(svc), http.MethodPost, "/scans/run-1/delete", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var report models.DeletionReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Challenged != 1 || report.Outcomes[1].Token != "azblob:photos/b.jpg" {
		t.Errorf("Expected challenge token in the response, got %+v", report)
	}

	svc.deletion = nil
	svc.deleteErr = apperrors.NewNotFoundError("scan run nope not found", nil)
	if w := doRequest(newTestHandler(svc), http.MethodPost, "/scans/nope/delete", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestMetrics(t *testing.T) {
	w := doRequest(newTestHandler(&stubService{}), http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var body struct {
		Scans  map[string]interface{} `json:"scans"`
		System map[string]interface{} `json:"system"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Scans["scans_completed"] != float64(3) {
		t.Errorf("Unexpected scan metrics: %v", body.Scans)
	}
	if _, ok := body.System["logical_cpus"]; !ok {
		t.Errorf("Expected system snapshot, got %v", body.System)
	}
}

func TestRequestSizeLimit(t *testing.T) {
	big := `{"mode":"display","pad":"` + strings.Repeat("x", 2048) + `"}`
	w := doRequest(newTestHandler(&stubService{}), http.MethodPost, "/scans", big)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an oversized body, got %d", w.Code)
	}
}

func TestDeleteBlurred_InterruptedKeepsOutcomes(t *testing.T) {
	svc := &stubService{
		deletion: &models.DeletionReport{
			RunID: "run-1", Requested: 3, Deleted: 1,
			Outcomes: []models.DeletionOutcome{{ID: "a.jpg", Status: models.DeletionDeleted}},
		},
		deleteErr: apperrors.NewTimeoutError("deletion stopped", context.DeadlineExceeded),
	}

	w := doRequest(newTestHandler(svc), http.MethodPost, "/scans/run-1/delete", "")
	if w.Code != apperrors.GetStatusCode(svc.deleteErr) {
		t.Fatalf("Expected %d, got %d", apperrors.GetStatusCode(svc.deleteErr), w.Code)
	}

	var resp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Deletion == nil {
		t.Fatalf("Expected partial deletion report in the error body, got %s", w.Body.String())
	}
	if resp.Deletion.Deleted != 1 || resp.Deletion.Requested != 3 || len(resp.Deletion.Outcomes) != 1 {
		t.Errorf("Unexpected partial report: %+v", resp.Deletion)
	}
}
