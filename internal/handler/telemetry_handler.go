package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"behavior-risk-service/internal/config"
	"behavior-risk-service/internal/model"
	"behavior-risk-service/internal/repository/scylla"
	"behavior-risk-service/internal/service"
	"behavior-risk-service/internal/util"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// IngestRateLimiter caps telemetry submissions per source.
type IngestRateLimiter interface {
	Allow(ctx context.Context, source string) bool
}

// TelemetryHandler handles HTTP requests for telemetry ingestion and
// risk score reads
type TelemetryHandler struct {
	sessionService *service.SessionService
	sink           *service.AnalyticsSink
	limiter        IngestRateLimiter
	ingestConfig   config.IngestConfig
	logger         *zap.Logger
}

// NewTelemetryHandler creates a new telemetry handler
func NewTelemetryHandler(sessionService *service.SessionService, sink *service.AnalyticsSink, limiter IngestRateLimiter, cfg *config.Config, logger *zap.Logger) *TelemetryHandler {
	return &TelemetryHandler{
		sessionService: sessionService,
		sink:           sink,
		limiter:        limiter,
		ingestConfig:   cfg.Ingest,
		logger:         logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta represents pagination metadata
type Meta struct {
	PageToken string `json:"page_token,omitempty"`
	Total     int    `json:"total,omitempty"`
	PageSize  int    `json:"page_size,omitempty"`
}

// successResponse creates a successful response
func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

// errorResponse creates an error response
func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// RegisterRoutes registers all telemetry and risk routes
func (h *TelemetryHandler) RegisterRoutes(router chi.Router) {
	router.Route("/sessions", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rateLimitMiddleware)
			r.Post("/", h.IngestSession)
			r.Post("/batch", h.IngestSessionBatch)
		})
		r.Get("/{sessionID}", h.GetSessionDetail)
		r.Get("/{sessionID}/risk", h.GetRiskScore)
	})

	router.Route("/users", func(r chi.Router) {
		r.Get("/{userID}/profile", h.GetProfile)
		r.Get("/{userID}/risk-scores", h.ListUserScores)
	})
}

// IngestSession handles a single session telemetry submission
// @Summary Ingest session telemetry
// @Description Score one session's behavioral telemetry and persist the result
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body model.SessionTelemetry true "Session telemetry"
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Failure 422 {object} Response
// @Failure 503 {object} Response
// @Router /sessions [post]
func (h *TelemetryHandler) IngestSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, h.ingestConfig.MaxBodyBytes)

	var telemetry model.SessionTelemetry
	if err := json.NewDecoder(r.Body).Decode(&telemetry); err != nil {
		h.respondWithError(w, h.decodeStatusCode(err), err, "Invalid request body")
		return
	}

	if err := h.validateTelemetry(&telemetry); err != nil {
		h.respondWithError(w, http.StatusUnprocessableEntity, err, "Invalid telemetry")
		return
	}

	result, err := h.sessionService.ProcessSession(ctx, &telemetry)
	if err != nil {
		statusCode := h.getStatusCode(err)
		h.respondWithError(w, statusCode, err, "Failed to score session")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(result, "Session scored successfully"))
	h.logger.Info("Session scored via HTTP",
		util.String("session_id", result.SessionID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "IngestSession"),
	)
}

// IngestSessionBatch handles batch telemetry submission
// @Summary Batch ingest session telemetry
// @Description Score multiple sessions in one request; entries fail independently
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body []model.SessionTelemetry true "Batch of session telemetry"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 413 {object} Response
// @Router /sessions/batch [post]
func (h *TelemetryHandler) IngestSessionBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, h.ingestConfig.MaxBodyBytes)

	var batch []model.SessionTelemetry
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.respondWithError(w, h.decodeStatusCode(err), err, "Invalid request body")
		return
	}

	if len(batch) == 0 {
		h.respondWithError(w, http.StatusBadRequest, errors.New("empty batch"), "No sessions to score")
		return
	}

	if len(batch) > h.ingestConfig.MaxBatchSize {
		h.respondWithError(w, http.StatusRequestEntityTooLarge, errors.New("batch too large"),
			fmt.Sprintf("Batch size cannot exceed %d sessions", h.ingestConfig.MaxBatchSize))
		return
	}

	for i := range batch {
		if err := h.validateTelemetry(&batch[i]); err != nil {
			h.respondWithError(w, http.StatusUnprocessableEntity, err,
				fmt.Sprintf("Invalid telemetry at index %d", i))
			return
		}
	}

	results := h.sessionService.ProcessBatch(ctx, batch)

	h.respondWithJSON(w, http.StatusOK, successResponse(results, "Batch processed"))
	h.logger.Info("Batch scored via HTTP",
		util.Int("batch_size", len(batch)),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "IngestSessionBatch"),
	)
}

// GetRiskScore handles risk score retrieval for one session
// @Summary Get session risk score
// @Description Get the stored risk score for a session
// @Tags sessions
// @Produce json
// @Param sessionID path string true "Session ID"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /sessions/{sessionID}/risk [get]
func (h *TelemetryHandler) GetRiskScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" || util.ContainsSuspicious(sessionID) {
		h.respondWithError(w, http.StatusBadRequest, errors.New("invalid session id"), "Invalid session ID")
		return
	}

	result, err := h.sessionService.GetRiskScore(ctx, sessionID)
	if err != nil {
		statusCode := h.getStatusCode(err)
		h.respondWithError(w, statusCode, err, "Failed to get risk score")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Risk score retrieved successfully"))
	h.logger.Debug("Risk score retrieved via HTTP",
		util.String("session_id", sessionID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "GetRiskScore"),
	)
}

// GetSessionDetail handles full session record retrieval
// @Summary Get calculated session
// @Description Get the full stored record for a session: summaries, behaviors and score
// @Tags sessions
// @Produce json
// @Param sessionID path string true "Session ID"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /sessions/{sessionID} [get]
func (h *TelemetryHandler) GetSessionDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" || util.ContainsSuspicious(sessionID) {
		h.respondWithError(w, http.StatusBadRequest, errors.New("invalid session id"), "Invalid session ID")
		return
	}

	session, err := h.sessionService.GetSessionDetail(ctx, sessionID)
	if err != nil {
		statusCode := h.getStatusCode(err)
		h.respondWithError(w, statusCode, err, "Failed to get session")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(session, "Session retrieved successfully"))
	h.logger.Debug("Session retrieved via HTTP",
		util.String("session_id", sessionID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "GetSessionDetail"),
	)
}

// GetProfile handles behavioral profile retrieval
// @Summary Get user behavioral profile
// @Description Get the accumulated behavioral profile for a user
// @Tags users
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /users/{userID}/profile [get]
func (h *TelemetryHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	userID := chi.URLParam(r, "userID")
	if userID == "" || util.ContainsSuspicious(userID) {
		h.respondWithError(w, http.StatusBadRequest, errors.New("invalid user id"), "Invalid user ID")
		return
	}

	profile, err := h.sessionService.GetProfile(ctx, userID)
	if err != nil {
		h.respondWithError(w, http.StatusNotFound, err, "Profile not found")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(profile, "Profile retrieved successfully"))
	h.logger.Debug("Profile retrieved via HTTP",
		util.String("user_id", userID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "GetProfile"),
	)
}

// ListUserScores handles paginated per-user risk score listing. The search
// index serves the dashboard view when available; the authoritative store
// answers otherwise.
// @Summary List user risk scores
// @Description Get a user's risk scores with pagination, newest first
// @Tags users
// @Produce json
// @Param userID path string true "User ID"
// @Param limit query int false "Page size (default: 50, max: 500)"
// @Param page_token query string false "Page token for pagination"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /users/{userID}/risk-scores [get]
func (h *TelemetryHandler) ListUserScores(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	userID := chi.URLParam(r, "userID")
	if userID == "" || util.ContainsSuspicious(userID) {
		h.respondWithError(w, http.StatusBadRequest, errors.New("invalid user id"), "Invalid user ID")
		return
	}

	limitStr := r.URL.Query().Get("limit")
	pageToken := r.URL.Query().Get("page_token")

	limit := 50
	if limitStr != "" {
		parsedLimit, err := strconv.Atoi(limitStr)
		if err != nil || parsedLimit <= 0 || parsedLimit > 500 {
			h.respondWithError(w, http.StatusBadRequest, errors.New("invalid limit"), "Limit must be between 1 and 500")
			return
		}
		limit = parsedLimit
	}

	// The search index only supports offset pagination, so it serves the
	// first page; token-continued reads go straight to the record store.
	if h.sink != nil && pageToken == "" {
		docs, total, err := h.sink.SearchUserScores(ctx, userID, 0, limit)
		if err == nil {
			response := successResponse(docs, "Risk scores retrieved successfully")
			response.Meta = &Meta{Total: total, PageSize: limit}
			h.respondWithJSON(w, http.StatusOK, response)
			return
		}
		h.logger.Debug("Dashboard search unavailable, using record store",
			util.String("user_id", userID),
			util.ErrorField(err),
		)
	}

	var pageState []byte
	if pageToken != "" {
		decoded, err := base64.URLEncoding.DecodeString(pageToken)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, err, "Invalid page token")
			return
		}
		pageState = decoded
	}

	results, nextPage, err := h.sessionService.ListUserScores(ctx, userID, limit, pageState)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to list risk scores")
		return
	}

	response := successResponse(results, "Risk scores retrieved successfully")
	if len(nextPage) > 0 {
		response.Meta = &Meta{
			PageToken: base64.URLEncoding.EncodeToString(nextPage),
			PageSize:  limit,
			Total:     len(results),
		}
	}

	h.respondWithJSON(w, http.StatusOK, response)
	h.logger.Debug("Risk scores listed via HTTP",
		util.String("user_id", userID),
		util.Int("count", len(results)),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "ListUserScores"),
	)
}

// Helper Methods

// rateLimitMiddleware caps submissions per client address.
func (h *TelemetryHandler) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil && !h.limiter.Allow(r.Context(), r.RemoteAddr) {
			h.respondWithError(w, http.StatusTooManyRequests,
				errors.New("rate limit exceeded"), "Too many submissions, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// validateTelemetry rejects submissions that could not have come from the
// SDK: suspicious identifiers or absurd event volumes.
func (h *TelemetryHandler) validateTelemetry(telemetry *model.SessionTelemetry) error {
	if util.ContainsSuspicious(telemetry.SessionID) {
		return errors.New("session id contains invalid characters")
	}
	if util.ContainsSuspicious(telemetry.UserID) {
		return errors.New("user id contains invalid characters")
	}
	if len(telemetry.Touches) > h.ingestConfig.MaxEventCount {
		return fmt.Errorf("too many touch events: %d exceeds %d", len(telemetry.Touches), h.ingestConfig.MaxEventCount)
	}
	if len(telemetry.Keystrokes) > h.ingestConfig.MaxEventCount {
		return fmt.Errorf("too many keystroke events: %d exceeds %d", len(telemetry.Keystrokes), h.ingestConfig.MaxEventCount)
	}
	loc := telemetry.Location
	if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
		return fmt.Errorf("coordinates out of range: (%f, %f)", loc.Latitude, loc.Longitude)
	}
	telemetry.SessionID = util.SanitizeInput(telemetry.SessionID)
	telemetry.UserID = util.SanitizeInput(telemetry.UserID)
	return nil
}

// respondWithJSON sends a JSON response
func (h *TelemetryHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response
func (h *TelemetryHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

// decodeStatusCode distinguishes an oversized body from malformed JSON
func (h *TelemetryHandler) decodeStatusCode(err error) int {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// getStatusCode determines the appropriate HTTP status code for an error
func (h *TelemetryHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, scylla.ErrRecordNotFound), errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPersistenceFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
