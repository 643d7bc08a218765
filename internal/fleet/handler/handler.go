package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medcourier/internal/compliance"
	"medcourier/internal/fleet/models"
	id "medcourier/pkg/domain"
	"medcourier/pkg/platform/httputil"
	"medcourier/pkg/platform/middleware/auth"
	"medcourier/pkg/requestcontext"
)

// Service defines the fleet operations the handler needs.
type Service interface {
	RegisterDriver(ctx context.Context, name string, certs []id.Certification) (*models.Driver, error)
	GetDriver(ctx context.Context, driverID id.DriverID) (*models.Driver, error)
	SetAssignmentOptOut(ctx context.Context, driverID id.DriverID, optedOut bool) (*models.Driver, error)
	AddCertification(ctx context.Context, driverID id.DriverID, cert id.Certification) (*models.Driver, error)
	AddVehicle(ctx context.Context, driverID id.DriverID, draft models.VehicleDraft) (*models.Vehicle, error)
	ListVehicles(ctx context.Context, driverID id.DriverID) ([]*models.Vehicle, error)
	DeactivateVehicle(ctx context.Context, vehicleID id.VehicleID, reason string) (*models.Vehicle, error)
	LogMaintenance(ctx context.Context, vehicleID id.VehicleID, draft models.MaintenanceDraft) (*models.MaintenanceLog, error)
	MaintenanceHistory(ctx context.Context, vehicleID id.VehicleID) ([]*models.MaintenanceLog, error)
	VehicleCompliance(ctx context.Context, vehicleID id.VehicleID) (compliance.Verdict, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts driver and vehicle endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Route("/drivers", func(r chi.Router) {
		r.Get("/{id}", h.HandleGetDriver)
		r.Get("/{id}/vehicles", h.HandleListVehicles)
		r.Put("/{id}/assignment-opt-out", h.HandleSetOptOut)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(requestcontext.RoleAdmin))
			r.Post("/", h.HandleRegisterDriver)
			r.Post("/{id}/certifications", h.HandleAddCertification)
			r.Post("/{id}/vehicles", h.HandleAddVehicle)
		})
	})

	r.Route("/vehicles", func(r chi.Router) {
		r.Use(auth.RequireRole(requestcontext.RoleAdmin))
		r.Get("/{id}/compliance", h.HandleVehicleCompliance)
		r.Get("/{id}/maintenance", h.HandleMaintenanceHistory)
		r.Post("/{id}/maintenance", h.HandleLogMaintenance)
		r.Post("/{id}/deactivate", h.HandleDeactivateVehicle)
	})
}

func (h *Handler) HandleRegisterDriver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[RegisterDriverRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	d, err := h.service.RegisterDriver(ctx, req.Name, req.certs)
	if err != nil {
		h.fail(ctx, w, "register driver failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, d)
}

func (h *Handler) HandleGetDriver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	driverID, err := id.ParseDriverID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.service.GetDriver(ctx, driverID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) HandleSetOptOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	driverID, err := id.ParseDriverID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[OptOutRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	d, err := h.service.SetAssignmentOptOut(ctx, driverID, req.OptedOut)
	if err != nil {
		h.fail(ctx, w, "set opt-out failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) HandleAddCertification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	driverID, err := id.ParseDriverID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CertificationRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	d, err := h.service.AddCertification(ctx, driverID, req.cert)
	if err != nil {
		h.fail(ctx, w, "add certification failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) HandleAddVehicle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	driverID, err := id.ParseDriverID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[AddVehicleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	v, err := h.service.AddVehicle(ctx, driverID, req.Draft())
	if err != nil {
		h.fail(ctx, w, "add vehicle failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, v)
}

func (h *Handler) HandleListVehicles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	driverID, err := id.ParseDriverID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	vehicles, err := h.service.ListVehicles(ctx, driverID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"vehicles": vehicles})
}

func (h *Handler) HandleDeactivateVehicle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vehicleID, err := id.ParseVehicleID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[DeactivateVehicleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	v, err := h.service.DeactivateVehicle(ctx, vehicleID, req.Reason)
	if err != nil {
		h.fail(ctx, w, "deactivate vehicle failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) HandleLogMaintenance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vehicleID, err := id.ParseVehicleID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[LogMaintenanceRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	entry, err := h.service.LogMaintenance(ctx, vehicleID, req.Draft())
	if err != nil {
		h.fail(ctx, w, "log maintenance failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

func (h *Handler) HandleMaintenanceHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vehicleID, err := id.ParseVehicleID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	logs, err := h.service.MaintenanceHistory(ctx, vehicleID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"maintenance": logs})
}

func (h *Handler) HandleVehicleCompliance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vehicleID, err := id.ParseVehicleID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	verdict, err := h.service.VehicleCompliance(ctx, vehicleID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ComplianceResponse{Verdict: verdict, Compliant: verdict.Compliant()})
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}

// ComplianceResponse is the body of GET /vehicles/{id}/compliance.
type ComplianceResponse struct {
	compliance.Verdict
	Compliant bool `json:"compliant"`
}
