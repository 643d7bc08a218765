package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"medcourier/internal/shipment/lifecycle"
	"medcourier/internal/shipment/models"
	"medcourier/internal/shipment/ports"
	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
	"medcourier/pkg/platform/httputil"
	"medcourier/pkg/platform/middleware/auth"
	"medcourier/pkg/requestcontext"
)

const (
	maxPatchBytes    = 64 << 10
	defaultListLimit = 100
	maxListLimit     = 500
)

// Service defines the shipment operations the handler needs.
type Service interface {
	Create(ctx context.Context, d models.Draft) (*models.Shipment, error)
	Get(ctx context.Context, shipmentID id.ShipmentID) (*models.Shipment, error)
	GetByTrackingCode(ctx context.Context, code id.TrackingCode) (*models.Shipment, error)
	List(ctx context.Context, f ports.Filter) ([]*models.Shipment, error)
	Events(ctx context.Context, shipmentID id.ShipmentID) ([]*models.TrackingEvent, error)
	Update(ctx context.Context, shipmentID id.ShipmentID, p models.Patch) (*models.Shipment, error)
	Transition(ctx context.Context, shipmentID id.ShipmentID, to lifecycle.Status, reason string) (*models.Shipment, error)
	Cancel(ctx context.Context, shipmentID id.ShipmentID, reason string) (*models.Shipment, error)
	Deny(ctx context.Context, shipmentID id.ShipmentID, reason string) (*models.Shipment, error)
	HardDelete(ctx context.Context, shipmentID id.ShipmentID, force bool, reason string) error
	RecordPickup(ctx context.Context, shipmentID id.ShipmentID, c models.Capture) (*models.Shipment, error)
	RecordDelivery(ctx context.Context, shipmentID id.ShipmentID, c models.Capture) (*models.Shipment, error)
}

// Handler exposes shipment lifecycle endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts shipment endpoints. Authentication runs upstream; route
// groups narrow by role.
func (h *Handler) Register(r chi.Router) {
	r.Route("/shipments", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Get("/by-code/{code}", h.HandleGetByCode)
		r.Get("/{id}", h.HandleGet)
		r.Get("/{id}/events", h.HandleEvents)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(requestcontext.RoleAdmin, requestcontext.RoleShipper))
			r.Post("/", h.HandleCreate)
			r.Patch("/{id}", h.HandleUpdate)
			r.Post("/{id}/cancel", h.HandleCancel)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(requestcontext.RoleAdmin))
			r.Post("/{id}/transition", h.HandleTransition)
			r.Post("/{id}/deny", h.HandleDeny)
			r.Delete("/{id}", h.HandleHardDelete)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(requestcontext.RoleAdmin, requestcontext.RoleDriver))
			r.Post("/{id}/pickup", h.HandlePickup)
			r.Post("/{id}/delivery", h.HandleDelivery)
		})
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateShipmentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	sh, err := h.service.Create(ctx, req.Draft())
	if err != nil {
		h.logFailure(ctx, "create shipment failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sh)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := scopeFilter(requestcontext.Actor(ctx), &f); err != nil {
		httputil.WriteError(w, err)
		return
	}
	items, err := h.service.List(ctx, f)
	if err != nil {
		h.logFailure(ctx, "list shipments failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Shipments: items, Count: len(items)})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.loadVisible(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sh)
}

func (h *Handler) HandleGetByCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sh, err := h.service.GetByTrackingCode(ctx, id.TrackingCode(chi.URLParam(r, "code")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := authorizeView(requestcontext.Actor(ctx), sh); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sh)
}

func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shipmentID, err := id.ParseShipmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	// Admins may read history that outlived a hard delete.
	if requestcontext.Actor(ctx).Role != requestcontext.RoleAdmin {
		if _, ok := h.loadVisible(w, r); !ok {
			return
		}
	}
	events, err := h.service.Events(ctx, shipmentID)
	if err != nil {
		h.logFailure(ctx, "list tracking events failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, EventsResponse{ShipmentID: shipmentID, Events: events})
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current, ok := h.loadVisible(w, r)
	if !ok {
		return
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPatchBytes)).Decode(&raw); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid json payload"))
		return
	}
	patch, err := DecodePatch(raw)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if patch.IsEmpty() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "patch is empty"))
		return
	}

	sh, err := h.service.Update(ctx, current.ID, patch)
	if err != nil {
		h.logFailure(ctx, "update shipment failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sh)
}

func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shipmentID, err := id.ParseShipmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransitionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	sh, err := h.service.Transition(ctx, shipmentID, req.Target(), req.Reason)
	if err != nil {
		h.logFailure(ctx, "transition failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sh)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current, ok := h.loadVisible(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReasonRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	sh, err := h.service.Cancel(ctx, current.ID, req.Reason)
	if err != nil {
		h.logFailure(ctx, "cancel failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sh)
}

func (h *Handler) HandleDeny(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shipmentID, err := id.ParseShipmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReasonRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	sh, err := h.service.Deny(ctx, shipmentID, req.Reason)
	if err != nil {
		h.logFailure(ctx, "deny failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sh)
}

// HandleHardDelete handles DELETE /shipments/{id}?force=true&reason=...
func (h *Handler) HandleHardDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shipmentID, err := id.ParseShipmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	if err := h.service.HardDelete(ctx, shipmentID, force, r.URL.Query().Get("reason")); err != nil {
		h.logFailure(ctx, "hard delete failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandlePickup(w http.ResponseWriter, r *http.Request) {
	h.handleCapture(w, r, h.service.RecordPickup)
}

func (h *Handler) HandleDelivery(w http.ResponseWriter, r *http.Request) {
	h.handleCapture(w, r, h.service.RecordDelivery)
}

func (h *Handler) handleCapture(w http.ResponseWriter, r *http.Request,
	record func(context.Context, id.ShipmentID, models.Capture) (*models.Shipment, error)) {
	ctx := r.Context()
	start := time.Now()
	shipmentID, err := id.ParseShipmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CaptureRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	sh, err := record(ctx, shipmentID, req.Capture())
	if err != nil {
		h.logFailure(ctx, "custody capture failed", err)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "custody captured",
		"request_id", requestcontext.RequestID(ctx),
		"shipment_id", sh.ID,
		"status", sh.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, sh)
}

// loadVisible fetches the {id} shipment and checks the actor may see it.
func (h *Handler) loadVisible(w http.ResponseWriter, r *http.Request) (*models.Shipment, bool) {
	ctx := r.Context()
	shipmentID, err := id.ParseShipmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	sh, err := h.service.Get(ctx, shipmentID)
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	if err := authorizeView(requestcontext.Actor(ctx), sh); err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	return sh, true
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}

// authorizeView hides other shippers' loads and unassigned loads from drivers.
// Not found is returned instead of forbidden so ids cannot be probed.
func authorizeView(actor requestcontext.ActorInfo, sh *models.Shipment) error {
	switch actor.Role {
	case requestcontext.RoleAdmin:
		return nil
	case requestcontext.RoleShipper:
		if sh.ShipperID.String() == actor.ID {
			return nil
		}
	case requestcontext.RoleDriver:
		if sh.DriverID != nil && sh.DriverID.String() == actor.ID {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeNotFound, "shipment not found")
}

func scopeFilter(actor requestcontext.ActorInfo, f *ports.Filter) error {
	switch actor.Role {
	case requestcontext.RoleAdmin:
		return nil
	case requestcontext.RoleShipper:
		shipperID, err := id.ParseShipperID(actor.ID)
		if err != nil {
			return dErrors.New(dErrors.CodeForbidden, "shipper identity is not valid")
		}
		f.ShipperID = &shipperID
		return nil
	case requestcontext.RoleDriver:
		driverID, err := id.ParseDriverID(actor.ID)
		if err != nil {
			return dErrors.New(dErrors.CodeForbidden, "driver identity is not valid")
		}
		f.DriverID = &driverID
		return nil
	}
	return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
}

func parseFilter(r *http.Request) (ports.Filter, error) {
	q := r.URL.Query()
	f := ports.Filter{Limit: defaultListLimit}
	if v := q.Get("shipper_id"); v != "" {
		shipperID, err := id.ParseShipperID(v)
		if err != nil {
			return f, err
		}
		f.ShipperID = &shipperID
	}
	if v := q.Get("driver_id"); v != "" {
		driverID, err := id.ParseDriverID(v)
		if err != nil {
			return f, err
		}
		f.DriverID = &driverID
	}
	for _, v := range q["status"] {
		st, err := lifecycle.ParseStatus(v)
		if err != nil {
			return f, err
		}
		f.Statuses = append(f.Statuses, st)
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer")
		}
		f.Limit = min(n, maxListLimit)
	}
	return f, nil
}
