package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fleetmodels "medcourier/internal/fleet/models"
	fleetservice "medcourier/internal/fleet/service"
	fleetstore "medcourier/internal/fleet/store"
	"medcourier/internal/shift/models"
	"medcourier/internal/shift/service"
	"medcourier/internal/shift/store"
	shipmentstore "medcourier/internal/shipment/store"
	id "medcourier/pkg/domain"
	"medcourier/pkg/requestcontext"
)

type testEnv struct {
	router   http.Handler
	driverID id.DriverID
	clock    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fleet := fleetservice.New(fleetstore.NewInMemoryStore(), fleetservice.WithLogger(logger))
	env := &testEnv{clock: time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)}

	adminCtx := requestcontext.WithActor(requestcontext.WithTime(t.Context(), env.clock),
		requestcontext.ActorInfo{ID: "admin-1", Role: requestcontext.RoleAdmin})
	d, err := fleet.RegisterDriver(adminCtx, "Ana Ruiz", nil)
	require.NoError(t, err)
	_, err = fleet.AddVehicle(adminCtx, d.ID, fleetmodels.VehicleDraft{Plate: "MC-001", CurrentOdometer: 800})
	require.NoError(t, err)
	env.driverID = d.ID

	svc := service.New(store.NewInMemoryStore(), shipmentstore.NewInMemoryShipmentStore(), fleet, service.WithLogger(logger))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithActor(r.Context(), requestcontext.ActorInfo{
				ID:   r.Header.Get("X-Test-Actor"),
				Role: requestcontext.Role(r.Header.Get("X-Test-Role")),
			})
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(ctx, env.clock)))
		})
	})
	New(svc, logger).Register(r)
	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, role requestcontext.Role, actorID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Test-Role", string(role))
	req.Header.Set("X-Test-Actor", actorID)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestShiftEndpoints(t *testing.T) {
	env := newTestEnv(t)
	base := "/shifts/" + env.driverID.String()
	self := env.driverID.String()

	rec := env.do(t, http.MethodPost, base+"/clock-in", requestcontext.RoleDriver, self, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, base+"/clock-in", requestcontext.RoleDriver, self, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, base+"/current", requestcontext.RoleAdmin, "admin-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/clock-out", requestcontext.RoleDriver, self, map[string]int{"odometer": 700})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	env.clock = env.clock.Add(6 * time.Hour)
	rec = env.do(t, http.MethodPost, base+"/clock-out", requestcontext.RoleDriver, self, map[string]int{"odometer": 950})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var closed models.Shift
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &closed))
	assert.Equal(t, 6.0, *closed.TotalHours)
	assert.Equal(t, 950, *closed.EndOdometer)

	rec = env.do(t, http.MethodGet, base+"?limit=5", requestcontext.RoleDriver, self, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Len(t, history.Shifts, 1)
}

func TestShiftAccess(t *testing.T) {
	env := newTestEnv(t)
	base := "/shifts/" + env.driverID.String()

	rec := env.do(t, http.MethodPost, base+"/clock-in", requestcontext.RoleShipper, "shipper-1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/clock-in", requestcontext.RoleDriver, id.NewDriverID().String(), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/shifts/not-a-uuid/current", requestcontext.RoleAdmin, "admin-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, base+"?limit=abc", requestcontext.RoleAdmin, "admin-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
