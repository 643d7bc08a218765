package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"medcourier/internal/assignment/handler/mocks"
	"medcourier/internal/assignment/models"
	"medcourier/internal/shipment/lifecycle"
	shipmentmodels "medcourier/internal/shipment/models"
	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
	"medcourier/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type AssignmentHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  http.Handler
}

func TestAssignmentHandlerSuite(t *testing.T) {
	suite.Run(t, new(AssignmentHandlerSuite))
}

func (s *AssignmentHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithActor(r.Context(), requestcontext.ActorInfo{
				ID:   "actor-1",
				Role: requestcontext.Role(r.Header.Get("X-Test-Role")),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	New(s.service, logger).Register(r)
	s.router = r
}

func (s *AssignmentHandlerSuite) do(method, path string, role requestcontext.Role, body any) *httptest.ResponseRecorder {
	raw, err := json.Marshal(body)
	s.Require().NoError(err)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(role))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *AssignmentHandlerSuite) TestBulkAssign() {
	driverID := id.NewDriverID()
	vehicleID := id.NewVehicleID()
	first, second := id.NewShipmentID(), id.NewShipmentID()

	s.Run("committed batch", func() {
		s.service.EXPECT().
			BulkAssign(gomock.Any(), driverID, []id.ShipmentID{first, second}).
			Return(&models.BulkResult{DriverID: driverID, Shipments: []models.Assigned{
				{ShipmentID: first, VehicleID: vehicleID, Status: lifecycle.StatusScheduled},
				{ShipmentID: second, VehicleID: vehicleID, Status: lifecycle.StatusScheduled},
			}}, nil)

		rec := s.do(http.MethodPost, "/assignments/bulk", requestcontext.RoleAdmin, map[string]any{
			"driver_id":    driverID.String(),
			"shipment_ids": []string{first.String(), second.String()},
		})
		s.Equal(http.StatusOK, rec.Code)
		var got models.BulkResult
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
		s.Len(got.Shipments, 2)
	})

	s.Run("rejected batch lists every outcome", func() {
		s.service.EXPECT().
			BulkAssign(gomock.Any(), driverID, gomock.Any()).
			Return(nil, models.NewBulkValidationError([]models.Outcome{
				{ShipmentID: first, Passed: true},
				{ShipmentID: second, Reason: "certification_mismatch", Message: "driver lacks un3373 certification"},
			}))

		rec := s.do(http.MethodPost, "/assignments/bulk", requestcontext.RoleAdmin, map[string]any{
			"driver_id":    driverID.String(),
			"shipment_ids": []string{first.String(), second.String()},
		})
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
		var body struct {
			Error   string `json:"error"`
			Details struct {
				Outcomes []models.Outcome `json:"outcomes"`
			} `json:"details"`
		}
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
		s.Equal(string(dErrors.CodeBulkValidationFailed), body.Error)
		s.Require().Len(body.Details.Outcomes, 2)
		s.True(body.Details.Outcomes[0].Passed)
		s.Equal("certification_mismatch", body.Details.Outcomes[1].Reason)
	})

	s.Run("malformed ids never reach the service", func() {
		rec := s.do(http.MethodPost, "/assignments/bulk", requestcontext.RoleAdmin, map[string]any{
			"driver_id":    driverID.String(),
			"shipment_ids": []string{"not-a-uuid"},
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("empty batch", func() {
		rec := s.do(http.MethodPost, "/assignments/bulk", requestcontext.RoleAdmin, map[string]any{
			"driver_id":    driverID.String(),
			"shipment_ids": []string{},
		})
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})

	s.Run("drivers cannot assign", func() {
		rec := s.do(http.MethodPost, "/assignments/bulk", requestcontext.RoleDriver, map[string]any{
			"driver_id":    driverID.String(),
			"shipment_ids": []string{first.String()},
		})
		s.Equal(http.StatusForbidden, rec.Code)
	})
}

func (s *AssignmentHandlerSuite) TestAssign() {
	driverID := id.NewDriverID()
	shipmentID := id.NewShipmentID()
	s.service.EXPECT().
		Assign(gomock.Any(), shipmentID, driverID).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "driver or shipment not found"))

	rec := s.do(http.MethodPost, "/assignments/"+shipmentID.String(), requestcontext.RoleAdmin,
		map[string]string{"driver_id": driverID.String()})
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *AssignmentHandlerSuite) TestUnassign() {
	shipmentID := id.NewShipmentID()

	s.Run("released", func() {
		s.service.EXPECT().
			Unassign(gomock.Any(), shipmentID, "vehicle breakdown").
			Return(&shipmentmodels.Shipment{ID: shipmentID, Status: lifecycle.StatusScheduled}, nil)

		rec := s.do(http.MethodPost, "/assignments/"+shipmentID.String()+"/release", requestcontext.RoleAdmin,
			map[string]string{"reason": "  vehicle breakdown "})
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("reason required", func() {
		rec := s.do(http.MethodPost, "/assignments/"+shipmentID.String()+"/release", requestcontext.RoleAdmin,
			map[string]string{"reason": " "})
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})
}
