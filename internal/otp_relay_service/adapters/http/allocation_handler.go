package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aradsms/otp_relay/internal/otp_relay_service/app"
	"github.com/aradsms/otp_relay/internal/otp_relay_service/domain"
)

// AllocationAPI is the application surface the admin API drives.
type AllocationAPI interface {
	Allocate(ctx context.Context, requesterID, rawRange string) (*domain.Allocation, error)
	Cancel(ctx context.Context, requesterID string, id uuid.UUID) (*domain.Allocation, error)
	Get(ctx context.Context, requesterID string, id uuid.UUID) (*domain.Allocation, error)
	History(ctx context.Context, requesterID string) ([]*domain.Allocation, error)
}

type AllocationHandler struct {
	service  AllocationAPI
	logger   *slog.Logger
	validate *validator.Validate
}

func NewAllocationHandler(service AllocationAPI, logger *slog.Logger, validate *validator.Validate) *AllocationHandler {
	return &AllocationHandler{
		service:  service,
		logger:   logger.With("component", "allocation_handler"),
		validate: validate,
	}
}

// ListRequesterAllocations handles GET /api/v1/requesters/{requesterID}/allocations.
func (h *AllocationHandler) ListRequesterAllocations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)
	requesterID := chi.URLParam(r, "requesterID")

	allocs, err := h.service.History(ctx, requesterID)
	if err != nil {
		h.writeServiceError(w, r, logger, err)
		return
	}
	resp := ListAllocationsResponse{Allocations: make([]AllocationResponse, 0, len(allocs)), Total: len(allocs)}
	for _, a := range allocs {
		resp.Allocations = append(resp.Allocations, toAllocationResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateAllocation handles POST /api/v1/allocations.
func (h *AllocationHandler) CreateAllocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	var req CreateAllocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "Failed to decode create allocation request", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.StructCtx(ctx, req); err != nil {
		logger.WarnContext(ctx, "Validation failed for create allocation request", "error", err)
		writeError(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	alloc, err := h.service.Allocate(ctx, req.RequesterID, req.Range)
	if err != nil {
		h.writeServiceError(w, r, logger, err)
		return
	}
	logger.InfoContext(ctx, "Allocation created via admin API", "allocation_id", alloc.ID, "requester_id", alloc.RequesterID)
	writeJSON(w, http.StatusCreated, toAllocationResponse(alloc))
}

// GetAllocation handles GET /api/v1/allocations/{allocationID}.
func (h *AllocationHandler) GetAllocation(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	id, ok := allocationIDParam(w, r)
	if !ok {
		return
	}
	alloc, err := h.service.Get(r.Context(), "", id)
	if err != nil {
		h.writeServiceError(w, r, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationResponse(alloc))
}

// CancelAllocation handles POST /api/v1/allocations/{allocationID}/cancel.
func (h *AllocationHandler) CancelAllocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)
	id, ok := allocationIDParam(w, r)
	if !ok {
		return
	}
	alloc, err := h.service.Cancel(ctx, "", id)
	if err != nil {
		h.writeServiceError(w, r, logger, err)
		return
	}
	logger.InfoContext(ctx, "Allocation cancelled via admin API", "allocation_id", id)
	writeJSON(w, http.StatusOK, toAllocationResponse(alloc))
}

func (h *AllocationHandler) requestLogger(r *http.Request) *slog.Logger {
	logger := h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))
	if admin, ok := r.Context().Value(AuthenticatedAdminContextKey).(AuthenticatedAdmin); ok {
		logger = logger.With("admin", admin.Subject)
	}
	return logger
}

func allocationIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "allocationID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid allocation id", err.Error())
		return uuid.Nil, false
	}
	return id, true
}

func (h *AllocationHandler) writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var allocErr *app.AllocationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "Allocation not found", "")
	case errors.Is(err, domain.ErrAllocationTerminal):
		writeError(w, http.StatusConflict, "Allocation is no longer pending", "")
	case errors.Is(err, domain.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "Invalid range", err.Error())
	case errors.As(err, &allocErr):
		logger.WarnContext(r.Context(), "Provider allocation failed", "error", err)
		writeError(w, http.StatusBadGateway, "Allocation failed", allocErr.Error())
	default:
		logger.ErrorContext(r.Context(), "Allocation request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, GenericErrorResponse{Error: message, Details: details})
}
