package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medcourier/internal/assignment/models"
	shipmentmodels "medcourier/internal/shipment/models"
	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
	"medcourier/pkg/platform/httputil"
	"medcourier/pkg/platform/middleware/auth"
	"medcourier/pkg/requestcontext"
)

// Service defines the assignment operations the handler needs.
type Service interface {
	Assign(ctx context.Context, shipmentID id.ShipmentID, driverID id.DriverID) (*models.BulkResult, error)
	BulkAssign(ctx context.Context, driverID id.DriverID, shipmentIDs []id.ShipmentID) (*models.BulkResult, error)
	Unassign(ctx context.Context, shipmentID id.ShipmentID, reason string) (*shipmentmodels.Shipment, error)
}

// Handler exposes assignment endpoints. All of them are admin only.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/assignments", func(r chi.Router) {
		r.Use(auth.RequireRole(requestcontext.RoleAdmin))
		r.Post("/bulk", h.HandleBulkAssign)
		r.Post("/{shipmentID}", h.HandleAssign)
		r.Post("/{shipmentID}/release", h.HandleUnassign)
	})
}

func (h *Handler) HandleBulkAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[BulkAssignRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.BulkAssign(ctx, req.driverID, req.shipmentIDs)
	if err != nil {
		h.logFailure(ctx, "bulk assignment failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	shipmentID, err := id.ParseShipmentID(chi.URLParam(r, "shipmentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[AssignRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.Assign(ctx, shipmentID, req.driverID)
	if err != nil {
		h.logFailure(ctx, "assignment failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleUnassign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	shipmentID, err := id.ParseShipmentID(chi.URLParam(r, "shipmentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UnassignRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	sh, err := h.service.Unassign(ctx, shipmentID, req.Reason)
	if err != nil {
		h.logFailure(ctx, "unassignment failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sh)
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}
