package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"rainfall-platform/internal/models"
	"rainfall-platform/internal/repository"
	"rainfall-platform/internal/services"
	"rainfall-platform/pkg/logging"
	"rainfall-platform/pkg/metrics"
)

// Importer stores one uploaded file
type Importer interface {
	Import(ctx context.Context, sess services.Session, filename string, data []byte) (*models.UploadResult, error)
}

// RainfallReader answers the read-only queries
type RainfallReader interface {
	Series(ctx context.Context, stationName string, mode services.SeriesMode) (*models.SeriesResult, error)
	StationDetail(ctx context.Context, id int64) (*models.StationDetailResult, error)
	LatestPerStation(ctx context.Context) ([]models.StationLatest, error)
	HealthCheck(ctx context.Context) error
}

// RainfallHandler handles the rainfall API endpoints
type RainfallHandler struct {
	metadata       Importer
	measurements   Importer
	reader         RainfallReader
	auth           *Authenticator
	maxUploadBytes int64
	logger         *logging.StructuredLogger
	metrics        *metrics.Collector
}

// NewRainfallHandler creates a new rainfall handler
func NewRainfallHandler(
	metadata Importer,
	measurements Importer,
	reader RainfallReader,
	auth *Authenticator,
	maxUploadBytes int64,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *RainfallHandler {
	return &RainfallHandler{
		metadata:       metadata,
		measurements:   measurements,
		reader:         reader,
		auth:           auth,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
		metrics:        metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type seriesResponse struct {
	Status string `json:"status"`
	*models.SeriesResult
}

type detailResponse struct {
	Status string `json:"status"`
	*models.StationDetailResult
}

// UploadMetadata handles POST /api/uploads/metadata
func (h *RainfallHandler) UploadMetadata(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, h.metadata, "/api/uploads/metadata")
}

// UploadMeasurements handles POST /api/uploads/measurements
func (h *RainfallHandler) UploadMeasurements(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, h.measurements, "/api/uploads/measurements")
}

func (h *RainfallHandler) upload(w http.ResponseWriter, r *http.Request, importer Importer, endpoint string) {
	ctx := r.Context()

	sess := h.auth.Session(r)
	if !sess.Authenticated {
		h.writeError(w, r, endpoint, models.ErrUnauthenticated)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		switch {
		case isTooLarge(err):
			h.sendError(w, r, endpoint, "upload exceeds "+strconv.FormatInt(h.maxUploadBytes, 10)+" bytes", http.StatusRequestEntityTooLarge)
		case errors.Is(err, http.ErrMissingFile):
			h.sendError(w, r, endpoint, "multipart field \"file\" is required", http.StatusBadRequest)
		default:
			h.sendError(w, r, endpoint, "invalid multipart request: "+err.Error(), http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	if header.Filename == "" {
		h.sendError(w, r, endpoint, "no file selected", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.sendError(w, r, endpoint, "failed to read upload", http.StatusBadRequest)
		return
	}

	h.logger.Info(ctx, "[API_UPLOAD_RECEIVED] Upload received", logging.Fields{
		"endpoint":  endpoint,
		"filename":  header.Filename,
		"bytes":     len(data),
		"upload_id": sess.UploadID,
	})

	result, err := importer.Import(ctx, sess, header.Filename, data)
	if err != nil {
		h.writeError(w, r, endpoint, err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
	h.sendJSON(w, result, http.StatusOK)
}

func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large")
}

// ListStations handles GET /api/stations
func (h *RainfallHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reader.LatestPerStation(r.Context())
	if err != nil {
		h.writeError(w, r, "/api/stations", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/stations", r.Method, "200")
	h.sendJSON(w, rows, http.StatusOK)
}

// stationRoute is both the mux pattern and the metrics label of the station
// detail endpoint, so handler and middleware series line up.
const stationRoute = "/api/stations/{id:[0-9]+}"

// GetStation handles GET /api/stations/{id}
func (h *RainfallHandler) GetStation(w http.ResponseWriter, r *http.Request) {
	const endpoint = stationRoute

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		h.sendError(w, r, endpoint, "station id must be a positive integer", http.StatusBadRequest)
		return
	}

	detail, err := h.reader.StationDetail(r.Context(), id)
	if err != nil {
		h.writeError(w, r, endpoint, err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
	h.sendJSON(w, detailResponse{Status: models.StatusSuccess, StationDetailResult: detail}, http.StatusOK)
}

// GetRainfall handles GET /api/rainfall?station_name=&mode=
func (h *RainfallHandler) GetRainfall(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/rainfall"

	name := r.URL.Query().Get("station_name")
	if name == "" {
		h.sendError(w, r, endpoint, "station_name is required", http.StatusBadRequest)
		return
	}

	res, err := h.reader.Series(r.Context(), name, services.ParseSeriesMode(r.URL.Query().Get("mode")))
	if err != nil {
		h.writeError(w, r, endpoint, err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
	h.sendJSON(w, seriesResponse{Status: models.StatusSuccess, SeriesResult: res}, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *RainfallHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.reader.HealthCheck(ctx); err != nil {
		h.logger.Error(ctx, "[HEALTH_CHECK_FAILED] Database unreachable", logging.Fields{}, err)
		status["status"] = "unhealthy"
		h.sendJSON(w, status, http.StatusServiceUnavailable)
		return
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, http.StatusOK)
}

// writeError maps service errors to status codes
func (h *RainfallHandler) writeError(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	var (
		fpe *models.FileParseError
		se  *models.SchemaError
		nf  *repository.NotFoundError
		pe  *models.PersistenceError
	)

	switch {
	case errors.Is(err, models.ErrUnauthenticated):
		h.metrics.RecordAPIError("unauthenticated", endpoint)
		h.sendError(w, r, endpoint, err.Error(), http.StatusForbidden)
	case errors.As(err, &fpe), errors.As(err, &se):
		h.metrics.RecordAPIError("bad_upload", endpoint)
		h.sendError(w, r, endpoint, err.Error(), http.StatusBadRequest)
	case errors.As(err, &nf):
		h.sendError(w, r, endpoint, err.Error(), http.StatusNotFound)
	case errors.Is(err, context.Canceled):
		h.sendError(w, r, endpoint, "request canceled", http.StatusServiceUnavailable)
	default:
		fields := logging.Fields{"endpoint": endpoint}
		if errors.As(err, &pe) {
			fields["sqlstate"] = pe.SQLState
		}
		h.logger.Error(r.Context(), "[API_INTERNAL_ERROR] Request failed", fields, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, r, endpoint, "failed to store or read rainfall data", http.StatusInternalServerError)
	}
}

// sendJSON sends a JSON response
func (h *RainfallHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *RainfallHandler) sendError(w http.ResponseWriter, r *http.Request, endpoint, message string, statusCode int) {
	h.metrics.RecordAPIRequest(endpoint, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Status:  models.StatusError,
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all rainfall API routes
func (h *RainfallHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/uploads/metadata", h.UploadMetadata).Methods("POST")
	router.HandleFunc("/api/uploads/measurements", h.UploadMeasurements).Methods("POST")
	router.HandleFunc("/api/stations", h.ListStations).Methods("GET")
	router.HandleFunc(stationRoute, h.GetStation).Methods("GET")
	router.HandleFunc("/api/rainfall", h.GetRainfall).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/api/docs", SwaggerUI).Methods("GET")
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods("GET")
}
