package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"medcourier/internal/shift/models"
	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
	"medcourier/pkg/platform/httputil"
	"medcourier/pkg/platform/middleware/auth"
	"medcourier/pkg/requestcontext"
)

type Service interface {
	ClockIn(ctx context.Context, driverID id.DriverID, odometer *int) (*models.Shift, error)
	ClockOut(ctx context.Context, driverID id.DriverID, odometer *int) (*models.Shift, error)
	Current(ctx context.Context, driverID id.DriverID) (*models.Shift, error)
	History(ctx context.Context, driverID id.DriverID, limit int) ([]*models.Shift, error)
}

// OdometerRequest carries an optional manual odometer entry.
type OdometerRequest struct {
	Odometer *int `json:"odometer,omitempty"`
}

func (r *OdometerRequest) Validate() error {
	if r.Odometer != nil && *r.Odometer < 0 {
		return dErrors.New(dErrors.CodeValidation, "odometer cannot be negative")
	}
	return nil
}

type HistoryResponse struct {
	DriverID id.DriverID     `json:"driver_id"`
	Shifts   []*models.Shift `json:"shifts"`
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts shift endpoints for admins and drivers. The service checks
// that a driver only acts on their own shifts.
func (h *Handler) Register(r chi.Router) {
	r.Route("/shifts/{driverID}", func(r chi.Router) {
		r.Use(auth.RequireRole(requestcontext.RoleAdmin, requestcontext.RoleDriver))
		r.Get("/", h.HandleHistory)
		r.Get("/current", h.HandleCurrent)
		r.Post("/clock-in", h.HandleClockIn)
		r.Post("/clock-out", h.HandleClockOut)
	})
}

func (h *Handler) HandleClockIn(w http.ResponseWriter, r *http.Request) {
	h.handleClock(w, r, "clock-in failed", http.StatusCreated, h.service.ClockIn)
}

func (h *Handler) HandleClockOut(w http.ResponseWriter, r *http.Request) {
	h.handleClock(w, r, "clock-out failed", http.StatusOK, h.service.ClockOut)
}

func (h *Handler) handleClock(w http.ResponseWriter, r *http.Request, failure string, status int,
	op func(context.Context, id.DriverID, *int) (*models.Shift, error)) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	driverID, err := id.ParseDriverID(chi.URLParam(r, "driverID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	// the odometer is optional, so an empty body is accepted
	req := &OdometerRequest{}
	if r.ContentLength != 0 {
		var ok bool
		if req, ok = httputil.DecodeAndPrepare[OdometerRequest](w, r, h.logger, ctx, requestID); !ok {
			return
		}
	}
	sh, err := op(ctx, driverID, req.Odometer)
	if err != nil {
		h.logger.WarnContext(ctx, failure,
			"request_id", requestID,
			"driver_id", driverID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, status, sh)
}

func (h *Handler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	driverID, err := id.ParseDriverID(chi.URLParam(r, "driverID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sh, err := h.service.Current(ctx, driverID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sh)
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	driverID, err := id.ParseDriverID(chi.URLParam(r, "driverID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
			return
		}
	}
	shifts, err := h.service.History(ctx, driverID, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HistoryResponse{DriverID: driverID, Shifts: shifts})
}
