package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"toolusage/ml"
)

type fakePredictor struct {
	result ml.PredictionResult
	err    error
}

func (f *fakePredictor) Predict(c ml.Case) (ml.PredictionResult, error) {
	if f.err != nil {
		return ml.PredictionResult{}, f.err
	}
	if err := c.Validate(); err != nil {
		return ml.PredictionResult{}, err
	}
	return f.result, nil
}

type fakeExplainer struct{}

func (fakeExplainer) Explain(ctx context.Context, c ml.Case, r ml.PredictionResult) string {
	return "expect about 14 uses of " + c.ToolName
}

type fakeRecorder struct {
	mu      sync.Mutex
	version []string
	cases   []ml.Case
}

func (f *fakeRecorder) RecordPrediction(ctx context.Context, version string, c ml.Case, r ml.PredictionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.version = append(f.version, version)
	f.cases = append(f.cases, c)
	return nil
}

const validBody = `{"operation_type":"Appendectomy","tool_name":"Scalpel","surgery_duration_min":90,"complexity_score":3,"surgeon_experience_years":10}`

func newTestServer(p Predictor, opts ...HandlerOption) http.Handler {
	info := ml.ArtifactInfo{ModelVersion: "test-version", Trees: 3}
	cfg := DefaultServerConfig()
	cfg.MaxBodyBytes = 512
	return NewServer(cfg, NewHandlers(p, info, nil, opts...), nil).Handler()
}

func TestHealthHandler(t *testing.T) {
	handler := newTestServer(&fakePredictor{})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	expected := `{"status":"ok"}`
	if strings.TrimSpace(rr.Body.String()) != expected {
		t.Errorf("handler returned unexpected body: got %v want %v", rr.Body.String(), expected)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestHandlePredict(t *testing.T) {
	recorder := &fakeRecorder{}
	handler := newTestServer(&fakePredictor{result: ml.PredictionResult{PredictedUsage: 14, RawPrediction: 13.6}}, WithRecorder(recorder))

	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(validBody))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got ml.PredictionResult
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got.PredictedUsage != 14 || got.RawPrediction != 13.6 {
		t.Fatalf("unexpected result: %+v", got)
	}
	if len(recorder.cases) != 1 || recorder.version[0] != "test-version" {
		t.Fatalf("prediction not recorded: %+v", recorder)
	}
}

func TestHandlePredictValidationError(t *testing.T) {
	handler := newTestServer(&fakePredictor{})
	body := strings.Replace(validBody, `"complexity_score":3`, `"complexity_score":6`, 1)

	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	var got errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got.Field != ml.FeatureComplexity {
		t.Fatalf("expected field %s, got %+v", ml.FeatureComplexity, got)
	}
}

func TestHandlePredictBadRequests(t *testing.T) {
	handler := newTestServer(&fakePredictor{})
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{"operation_type":`, http.StatusBadRequest},
		{"empty", ``, http.StatusBadRequest},
		{"unknown field", `{"operation":"Appendectomy"}`, http.StatusBadRequest},
		{"too large", `{"operation_type":"` + strings.Repeat("a", 1024) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestHandlePredictInternalError(t *testing.T) {
	handler := newTestServer(&fakePredictor{err: errors.New("tree walk failed")})
	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(validBody))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "tree walk") {
		t.Fatalf("internal error leaked: %s", w.Body.String())
	}
}

func TestHandleExplain(t *testing.T) {
	handler := newTestServer(&fakePredictor{result: ml.PredictionResult{PredictedUsage: 14, RawPrediction: 13.6}}, WithExplainer(fakeExplainer{}))
	req := httptest.NewRequest(http.MethodPost, "/api/explain", strings.NewReader(validBody))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got explainResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got.PredictedUsage != 14 || got.Explanation != "expect about 14 uses of Scalpel" {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestHandleExplainDisabled(t *testing.T) {
	handler := newTestServer(&fakePredictor{})
	req := httptest.NewRequest(http.MethodPost, "/api/explain", strings.NewReader(validBody))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestHandleModel(t *testing.T) {
	handler := newTestServer(&fakePredictor{})
	req := httptest.NewRequest(http.MethodGet, "/api/model", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var got ml.ArtifactInfo
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got.ModelVersion != "test-version" || got.Trees != 3 {
		t.Fatalf("unexpected info: %+v", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestServer(&fakePredictor{})
	req := httptest.NewRequest(http.MethodGet, "/api/predict", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestHandlePredictMissingField(t *testing.T) {
	handler := newTestServer(&fakePredictor{result: ml.PredictionResult{PredictedUsage: 3, RawPrediction: 3}})
	tests := []struct {
		field string
		body  string
	}{
		{ml.FeatureSurgeonExperience, `{"operation_type":"Appendectomy","tool_name":"Scalpel","surgery_duration_min":90,"complexity_score":3}`},
		{ml.FeatureOperationType, `{"tool_name":"Scalpel","surgery_duration_min":90,"complexity_score":3,"surgeon_experience_years":10}`},
		{ml.FeatureComplexity, `{"operation_type":"Appendectomy","tool_name":"Scalpel","surgery_duration_min":90,"complexity_score":null,"surgeon_experience_years":10}`},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
			}
			var got errorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if got.Field != tt.field || !strings.Contains(got.Error, "is required") {
				t.Fatalf("unexpected response: %+v", got)
			}
		})
	}
}

func TestHandlePredictAcceptsExplicitZeroExperience(t *testing.T) {
	handler := newTestServer(&fakePredictor{result: ml.PredictionResult{PredictedUsage: 9, RawPrediction: 9.1}})
	body := strings.Replace(validBody, `"surgeon_experience_years":10`, `"surgeon_experience_years":0`, 1)
	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

type slowExplainer struct {
	delay time.Duration
}

func (s slowExplainer) Explain(ctx context.Context, c ml.Case, r ml.PredictionResult) string {
	select {
	case <-time.After(s.delay):
		return "finished"
	case <-ctx.Done():
		return "(explanation unavailable: " + ctx.Err().Error() + ")"
	}
}

func TestHandleExplainFinishesBeforeWriteTimeout(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Timeout = time.Second
	handlers := NewHandlers(&fakePredictor{result: ml.PredictionResult{PredictedUsage: 14, RawPrediction: 13.6}},
		ml.ArtifactInfo{}, nil, WithExplainer(slowExplainer{delay: 1500 * time.Millisecond}))
	srv := httptest.NewUnstartedServer(NewServer(cfg, handlers, nil).Handler())
	srv.Config.WriteTimeout = cfg.Timeout
	srv.Start()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/explain", "application/json", strings.NewReader(validBody))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got explainResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PredictedUsage != 14 || !strings.Contains(got.Explanation, "deadline exceeded") {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestExplainBudget(t *testing.T) {
	tests := []struct {
		timeout, want time.Duration
	}{
		{0, 0},
		{time.Second, 750 * time.Millisecond},
		{30 * time.Second, 25 * time.Second},
	}
	for _, tt := range tests {
		if got := explainBudget(tt.timeout); got != tt.want {
			t.Errorf("explainBudget(%v) = %v, want %v", tt.timeout, got, tt.want)
		}
	}
}
