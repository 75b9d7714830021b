package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"hqms/queue-service/internal/models"
	"hqms/queue-service/internal/queue"
	"hqms/queue-service/internal/store"
)

// Service is what the handler needs from the queue engine.
type Service interface {
	AdmitToken(ctx context.Context, input queue.AdmitTokenInput) (models.Token, error)
	DispatchNext(ctx context.Context, counterID, serviceTypeID string) (models.Token, error)
	CompleteToken(ctx context.Context, tokenID string) error
	SkipToken(ctx context.Context, tokenID string) error
	ApproveEmergency(ctx context.Context, tokenID string) (models.Token, error)
	RejectEmergency(ctx context.Context, tokenID string) error
	QueueDepth(ctx context.Context, serviceTypeID string) (int, error)
	EstimateETA(ctx context.Context, tokenID string) (int, error)
	PatientHistory(ctx context.Context, phone string) ([]models.Token, error)
	DashboardSummary(ctx context.Context) ([]queue.DepartmentSummary, error)
	DoctorLoads(ctx context.Context) ([]queue.DoctorLoad, error)
	ServiceStatsFor(ctx context.Context, serviceTypeID string) (queue.ServiceStats, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/tokens", h.handleTokens)
	mux.HandleFunc("/api/tokens/actions/call-next", h.handleCallNext)
	mux.HandleFunc("/api/tokens/", h.handleTokenSubpaths)
	mux.HandleFunc("/api/queue/depth", h.handleQueueDepth)
	mux.HandleFunc("/api/patients/history", h.handlePatientHistory)
	mux.HandleFunc("/api/dashboard", h.handleDashboard)
	mux.HandleFunc("/api/doctors/load", h.handleDoctorLoads)
	mux.HandleFunc("/api/services/stats", h.handleServiceStats)
	return mux
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type createTokenRequest struct {
	ServiceTypeID string `json:"service_type_id"`
	PatientName   string `json:"patient_name"`
	PatientPhone  string `json:"patient_phone"`
	MedicalID     string `json:"medical_id"`
	DoctorID      string `json:"doctor_id"`
	Urgent        bool   `json:"urgent"`
}

func (h *Handler) handleTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req createTokenRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.ServiceTypeID = strings.TrimSpace(req.ServiceTypeID)
	req.PatientName = strings.TrimSpace(req.PatientName)
	req.PatientPhone = strings.TrimSpace(req.PatientPhone)
	req.MedicalID = strings.TrimSpace(req.MedicalID)
	req.DoctorID = strings.TrimSpace(req.DoctorID)

	if req.ServiceTypeID == "" || req.PatientPhone == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_type_id and patient_phone are required")
		return
	}
	if !isValidPhone(req.PatientPhone) {
		writeError(w, http.StatusBadRequest, "invalid_request", "patient_phone must be 8-16 digits")
		return
	}

	token, err := h.service.AdmitToken(r.Context(), queue.AdmitTokenInput{
		ServiceTypeID: req.ServiceTypeID,
		PatientName:   req.PatientName,
		PatientPhone:  req.PatientPhone,
		MedicalID:     req.MedicalID,
		DoctorID:      req.DoctorID,
		Urgent:        req.Urgent,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

func isValidPhone(value string) bool {
	if len(value) < 8 || len(value) > 16 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type callNextRequest struct {
	CounterID     string `json:"counter_id"`
	ServiceTypeID string `json:"service_type_id"`
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req callNextRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.CounterID = strings.TrimSpace(req.CounterID)
	req.ServiceTypeID = strings.TrimSpace(req.ServiceTypeID)
	if req.CounterID == "" || req.ServiceTypeID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "counter_id and service_type_id are required")
		return
	}

	token, err := h.service.DispatchNext(r.Context(), req.CounterID, req.ServiceTypeID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// handleTokenSubpaths covers /api/tokens/{id}/actions/{action} and
// /api/tokens/{id}/eta.
func (h *Handler) handleTokenSubpaths(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tokens/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 2 && parts[1] == "eta":
		h.handleETA(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "actions":
		h.handleTokenAction(w, r, parts[0], parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleTokenAction(w http.ResponseWriter, r *http.Request, tokenID, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if tokenID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token_id is required")
		return
	}

	switch action {
	case "complete":
		if err := h.service.CompleteToken(r.Context(), tokenID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "skip":
		if err := h.service.SkipToken(r.Context(), tokenID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "approve":
		token, err := h.service.ApproveEmergency(r.Context(), tokenID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, token)
	case "reject":
		if err := h.service.RejectEmergency(r.Context(), tokenID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type etaResponse struct {
	TokenID          string `json:"token_id"`
	EstimatedMinutes int    `json:"estimated_minutes"`
}

func (h *Handler) handleETA(w http.ResponseWriter, r *http.Request, tokenID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	eta, err := h.service.EstimateETA(r.Context(), tokenID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, etaResponse{TokenID: tokenID, EstimatedMinutes: eta})
}

type queueDepthResponse struct {
	ServiceTypeID string `json:"service_type_id"`
	Waiting       int    `json:"waiting"`
}

func (h *Handler) handleQueueDepth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	serviceTypeID := strings.TrimSpace(r.URL.Query().Get("service_type_id"))
	if serviceTypeID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_type_id is required")
		return
	}

	depth, err := h.service.QueueDepth(r.Context(), serviceTypeID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, queueDepthResponse{ServiceTypeID: serviceTypeID, Waiting: depth})
}

func (h *Handler) handlePatientHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "phone is required")
		return
	}

	history, err := h.service.PatientHistory(r.Context(), phone)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	summaries, err := h.service.DashboardSummary(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handler) handleDoctorLoads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	loads, err := h.service.DoctorLoads(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, loads)
}

func (h *Handler) handleServiceStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	serviceTypeID := strings.TrimSpace(r.URL.Query().Get("service_type_id"))
	if serviceTypeID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_type_id is required")
		return
	}

	stats, err := h.service.ServiceStatsFor(r.Context(), serviceTypeID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrServiceTypeNotFound):
		return http.StatusNotFound, "service_type_not_found", "service type not found"
	case errors.Is(err, store.ErrTokenNotFound):
		return http.StatusNotFound, "token_not_found", "token not found"
	case errors.Is(err, store.ErrCounterNotFound):
		return http.StatusNotFound, "counter_not_found", "counter not found"
	case errors.Is(err, store.ErrPatientNotFound):
		return http.StatusNotFound, "patient_not_found", "patient not found"
	case errors.Is(err, store.ErrNoToken):
		return http.StatusConflict, "queue_empty", "no tokens available"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "token state does not allow this action"
	case errors.Is(err, store.ErrCounterClosed):
		return http.StatusConflict, "counter_closed", "counter is not open"
	case errors.Is(err, store.ErrAlreadyServing):
		return http.StatusConflict, "already_serving", "counter already has a token in service"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict", "concurrent update, retry the request"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
