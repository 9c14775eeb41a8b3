package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"penguinapi/db"
	"penguinapi/ml"
	"penguinapi/monitoring"
	"penguinapi/penguin"
)

// 稳定的错误码，不暴露内部细节
const (
	codeValidation       = "validation_error"
	codeModelUnavailable = "model_unavailable"
	codeInternal         = "internal_error"
	codeTooLarge         = "request_too_large"
	codeBadRequest       = "bad_request"
	codeNotFound         = "not_found"

	msgModelUnavailable = "model is not available"
	msgInternal         = "internal server error"

	defaultRecentLimit = 20
	maxRecentLimit     = 200
)

// Predictor 预测接口
type Predictor interface {
	Predict(f penguin.Features) (penguin.Result, error)
}

// PredictionLog 预测审计日志
type PredictionLog interface {
	Record(rec db.PredictionRecord) bool
	Recent(ctx context.Context, limit int) ([]db.PredictionRecord, error)
}

// ServiceInfo 服务元信息
type ServiceInfo struct {
	Name    string
	Version string
}

// API 处理器依赖，Feed 和 Audit 可为空
type API struct {
	Service   ServiceInfo
	Lifecycle *ml.Lifecycle
	Predictor Predictor
	Metrics   *monitoring.Metrics
	Feed      *monitoring.Hub
	Audit     PredictionLog

	logger *zap.Logger
}

// NewAPI 创建处理器
func NewAPI(api API, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	api.logger = logger
	if api.Predictor == nil {
		if api.Lifecycle == nil {
			api.Lifecycle = ml.NewLifecycle()
		}
		api.Predictor = ml.NewPredictor(api.Lifecycle)
	}
	return &api
}

// RegisterHandlers 注册所有路由
func (a *API) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", a.handleRoot)
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("POST /predict", a.handlePredict)
	mux.HandleFunc("GET /predictions/recent", a.handleRecent)
	if a.Metrics != nil {
		mux.Handle("GET /metrics", a.Metrics.Handler())
	}
	if a.Feed != nil {
		mux.Handle("GET /ws/predictions", a.Feed)
	}
}

func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    a.Service.Name,
		"version": a.Service.Version,
		"health":  "/health",
		"predict": "/predict",
	})
}

type healthResponse struct {
	Status       string `json:"status"`
	Healthy      bool   `json:"healthy"`
	ModelVersion string `json:"model_version,omitempty"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: ml.StateUnloaded.String()}
	if a.Lifecycle != nil {
		resp.Status = a.Lifecycle.State().String()
		if model, err := a.Lifecycle.Model(); err == nil {
			resp.Healthy = true
			resp.ModelVersion = model.Version()
		}
	}

	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

type validationResponse struct {
	Code       string              `json:"code"`
	Violations map[string][]string `json:"violations"`
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	rec, err := penguin.DecodeRecord(r.Body)
	if err != nil {
		a.rejectBody(w, requestID, err)
		return
	}
	features, err := penguin.Validate(rec)
	if err != nil {
		a.rejectBody(w, requestID, err)
		return
	}

	result, err := a.Predictor.Predict(features)
	switch {
	case errors.Is(err, ml.ErrModelUnavailable):
		a.observeError(monitoring.ErrorKindModelUnavailable)
		writeError(w, http.StatusServiceUnavailable, codeModelUnavailable, msgModelUnavailable)
		return
	case err != nil:
		a.observeError(monitoring.ErrorKindInternal)
		a.logger.Error("prediction failed on validated input",
			zap.String("request_id", requestID),
			zap.Any("features", features),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, codeInternal, msgInternal)
		return
	}

	if a.Metrics != nil {
		a.Metrics.ObservePrediction(string(result.Species))
	}
	if a.Feed != nil {
		a.Feed.Publish(monitoring.PredictionEvent, requestID, result)
	}
	if a.Audit != nil {
		a.Audit.Record(db.PredictionRecord{
			RequestID: requestID,
			Features:  features,
			Result:    result,
			CreatedAt: time.Now(),
		})
	}
	writeJSON(w, http.StatusOK, result)
}

// rejectBody 处理解码和校验失败
func (a *API) rejectBody(w http.ResponseWriter, requestID string, err error) {
	var verr *penguin.ValidationError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &verr):
		a.observeError(monitoring.ErrorKindValidation)
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
			Code:       codeValidation,
			Violations: verr.Violations,
		})
	case errors.As(err, &tooLarge):
		a.observeError(monitoring.ErrorKindValidation)
		writeError(w, http.StatusRequestEntityTooLarge, codeTooLarge, "request body too large")
	default:
		a.logger.Warn("read request body", zap.String("request_id", requestID), zap.Error(err))
		writeError(w, http.StatusBadRequest, codeBadRequest, "could not read request body")
	}
}

func (a *API) handleRecent(w http.ResponseWriter, r *http.Request) {
	if a.Audit == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "prediction audit log is disabled")
		return
	}

	limit := defaultRecentLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l <= 0 {
			writeError(w, http.StatusBadRequest, codeBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(l, maxRecentLimit)
	}

	records, err := a.Audit.Recent(r.Context(), limit)
	if err != nil {
		a.logger.Error("query audit log", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, msgInternal)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":       len(records),
		"predictions": records,
	})
}

func (a *API) observeError(kind string) {
	if a.Metrics != nil {
		a.Metrics.ObserveError(kind)
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
