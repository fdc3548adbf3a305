package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/alexnthnz/notification-relay/internal/monitoring"
	"github.com/alexnthnz/notification-relay/internal/notification"
)

// Handler holds dependencies for REST API handlers
type Handler struct {
	notificationService *notification.Service
	webhook             http.Handler
	webhookPath         string
	metrics             *monitoring.Metrics
	logger              *zap.Logger
}

// NewHandler creates a new REST API handler
func NewHandler(
	notificationService *notification.Service,
	webhook http.Handler,
	webhookPath string,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Handler {
	if webhookPath == "" {
		webhookPath = "/webhooks/twilio"
	}
	return &Handler{
		notificationService: notificationService,
		webhook:             webhook,
		webhookPath:         webhookPath,
		metrics:             metrics,
		logger:              logger,
	}
}

// CreateNotificationResponse represents the response for queued notifications
type CreateNotificationResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ConfirmRequest is the optional body of a confirmation
type ConfirmRequest struct {
	UserID string `json:"user_id"`
}

// CreateNotification handles POST /api/v1/notifications
func (h *Handler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req notification.NotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debug("Failed to decode request", zap.Error(err))
		h.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	queued, err := h.notificationService.Enqueue(r.Context(), req)
	if err != nil {
		var verr *notification.ValidationError
		if errors.As(err, &verr) {
			h.writeErrorResponse(w, verr.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("Failed to queue notification", zap.Error(err))
		h.metrics.RecordNotificationFailed(string(req.Channel), "enqueue_error")
		h.writeErrorResponse(w, "Failed to queue notification", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusAccepted, CreateNotificationResponse{
		RequestID: queued.ID,
		Status:    "queued",
		Message:   "Notification queued for delivery",
	})
}

// GetNotificationLogs handles GET /api/v1/notifications/{id}/logs
func (h *Handler) GetNotificationLogs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	logs, err := h.notificationService.Logs(r.Context(), id)
	if err != nil {
		if errors.Is(err, notification.ErrNotFound) {
			h.writeErrorResponse(w, "Notification not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to get notification logs", zap.Error(err), zap.String("id", id))
		h.writeErrorResponse(w, "Failed to retrieve notification logs", http.StatusInternalServerError)
		return
	}
	if logs == nil {
		logs = []notification.NotificationLog{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"notification_id": id,
		"logs":            logs,
	})
}

// ConfirmNotification handles POST /api/v1/notifications/{id}/confirm
func (h *Handler) ConfirmNotification(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	entry, err := h.notificationService.Confirm(r.Context(), id, req.UserID)
	if err != nil {
		if errors.Is(err, notification.ErrNotFound) {
			h.writeErrorResponse(w, "Notification not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to confirm notification", zap.Error(err), zap.String("id", id))
		h.writeErrorResponse(w, "Failed to confirm notification", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, entry)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "notification-relay",
	})
}

// Metrics handles GET /metrics (Prometheus metrics)
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.Handler().ServeHTTP(w, r)
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to encode response", zap.Error(err))
	}
}

// writeErrorResponse writes an error response
func (h *Handler) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	h.writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// SetupRoutes sets up all REST API routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// the gateway answers non-POST methods itself
	router.Handle(h.webhookPath, h.webhook)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/notifications", h.CreateNotification).Methods(http.MethodPost)
	api.HandleFunc("/notifications/{id}/logs", h.GetNotificationLogs).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{id}/confirm", h.ConfirmNotification).Methods(http.MethodPost)

	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/metrics", h.Metrics).Methods(http.MethodGet)

	router.Use(h.loggingMiddleware)
	router.Use(h.corsMiddleware)

	return router
}
