package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"toolusage/ml"
)

// Predictor answers a single usage prediction.
type Predictor interface {
	Predict(c ml.Case) (ml.PredictionResult, error)
}

// Explainer turns a prediction into prose. It never fails; errors become
// part of the returned text.
type Explainer interface {
	Explain(ctx context.Context, c ml.Case, result ml.PredictionResult) string
}

// PredictionRecorder persists served predictions.
type PredictionRecorder interface {
	RecordPrediction(ctx context.Context, modelVersion string, c ml.Case, result ml.PredictionResult) error
}

// Handlers serves the prediction API for one loaded model.
type Handlers struct {
	predictor      Predictor
	explainer      Explainer
	explainTimeout time.Duration
	recorder       PredictionRecorder
	info           ml.ArtifactInfo
	logger         *zap.Logger
	upgrader       websocket.Upgrader
}

// HandlerOption configures optional Handlers features.
type HandlerOption func(*Handlers)

// WithExplainer enables POST /api/explain.
func WithExplainer(e Explainer) HandlerOption {
	return func(h *Handlers) { h.explainer = e }
}

// WithRecorder stores every served prediction.
func WithRecorder(r PredictionRecorder) HandlerOption {
	return func(h *Handlers) { h.recorder = r }
}

// NewHandlers builds the handlers for predictor. info is served by GET /api/model.
func NewHandlers(predictor Predictor, info ml.ArtifactInfo, logger *zap.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handlers{
		predictor: predictor,
		info:      info,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterHandlers mounts every API route on mux.
func (h *Handlers) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/model", h.handleModel)
	mux.HandleFunc("POST /api/predict", h.handlePredict)
	mux.HandleFunc("POST /api/explain", h.handleExplain)
	mux.HandleFunc("GET /api/ws/predict", h.handleWSPredict)
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type explainResponse struct {
	ml.PredictionResult
	Explanation string `json:"explanation"`
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) handleModel(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.info)
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	c, ok := h.decodeCase(w, r)
	if !ok {
		return
	}
	result, ok := h.predict(w, r.Context(), c)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handlers) handleExplain(w http.ResponseWriter, r *http.Request) {
	if h.explainer == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "explanations are disabled"})
		return
	}
	c, ok := h.decodeCase(w, r)
	if !ok {
		return
	}
	result, ok := h.predict(w, r.Context(), c)
	if !ok {
		return
	}

	// The explanation must arrive before the server's write deadline, or the
	// prediction is lost with it. On expiry the explainer returns its fallback text.
	ctx := r.Context()
	if h.explainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.explainTimeout)
		defer cancel()
	}
	respondJSON(w, http.StatusOK, explainResponse{
		PredictionResult: result,
		Explanation:      h.explainer.Explain(ctx, c, result),
	})
}

// decodeCase writes the error response itself when the body is not a complete
// Case.
func (h *Handlers) decodeCase(w http.ResponseWriter, r *http.Request) (ml.Case, bool) {
	var req caseRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			respondJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
		case errors.Is(err, io.EOF):
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "request body is empty"})
		default:
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		}
		return ml.Case{}, false
	}
	c, err := req.toCase()
	if err != nil {
		status, body := errorStatus(err)
		respondJSON(w, status, body)
		return ml.Case{}, false
	}
	return c, true
}

// predict writes the error response itself and reports whether the caller
// should continue.
func (h *Handlers) predict(w http.ResponseWriter, ctx context.Context, c ml.Case) (ml.PredictionResult, bool) {
	result, err := h.predictCase(ctx, c)
	if err != nil {
		status, body := errorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("prediction failed", zap.Error(err))
		}
		respondJSON(w, status, body)
		return result, false
	}
	return result, true
}

func (h *Handlers) predictCase(ctx context.Context, c ml.Case) (ml.PredictionResult, error) {
	result, err := h.predictor.Predict(c)
	if err != nil {
		return result, err
	}
	if h.recorder != nil {
		if err := h.recorder.RecordPrediction(ctx, h.info.ModelVersion, c.Normalized(), result); err != nil {
			h.logger.Warn("record prediction", zap.Error(err))
		}
	}
	return result, nil
}

func errorStatus(err error) (int, errorResponse) {
	var verr *ml.ValidationError
	if errors.As(err, &verr) {
		return http.StatusUnprocessableEntity, errorResponse{Error: verr.Error(), Field: verr.Field}
	}
	return http.StatusInternalServerError, errorResponse{Error: "prediction failed"}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
