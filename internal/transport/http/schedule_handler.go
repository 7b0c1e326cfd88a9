package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/service/booking"
	"slotbook/backend/internal/service/reconcile"
)

type bookingService interface {
	Book(ctx context.Context, in booking.BookInput) (booking.BookingResult, error)
	ListAvailability(ctx context.Context, professionalID string) ([]domain.ScheduleSlot, error)
}

type reconcileService interface {
	Sync(ctx context.Context, in reconcile.SyncInput) (reconcile.SyncResult, error)
}

type ScheduleHandler struct {
	booking   bookingService
	reconcile reconcileService
	validate  *validator.Validate
	log       *slog.Logger
}

func NewScheduleHandler(bookingSvc bookingService, reconcileSvc reconcileService, log *slog.Logger) *ScheduleHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ScheduleHandler{
		booking:   bookingSvc,
		reconcile: reconcileSvc,
		validate:  validator.New(),
		log:       log.With(slog.String("component", "http.schedule")),
	}
}

type bookRequest struct {
	ProfessionalID string `json:"professionalId" validate:"required"`
	ClientID       string `json:"clientId" validate:"required"`
	StartTime      string `json:"startTime" validate:"required"`
	EndTime        string `json:"endTime" validate:"required"`
	Details        string `json:"details"`
}

type bookingResponse struct {
	BookingID      string `json:"bookingId"`
	ProfessionalID string `json:"professionalId"`
	ClientID       string `json:"clientId"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
	Status         string `json:"status"`
	Details        string `json:"details,omitempty"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
}

func (h *ScheduleHandler) Book(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "Book"))

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "professionalId, clientId, startTime and endTime are required")
		return
	}

	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "startTime must be an ISO-8601 timestamp")
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "endTime must be an ISO-8601 timestamp")
		return
	}

	res, err := h.booking.Book(r.Context(), booking.BookInput{
		ProfessionalID: req.ProfessionalID,
		ClientID:       req.ClientID,
		StartTime:      start,
		EndTime:        end,
		Details:        req.Details,
	})
	if err != nil {
		var vErr *booking.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		log.Error("booking failed", slog.Any("err", err), slog.String("professional_id", req.ProfessionalID))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := bookingResponse{
		ProfessionalID: req.ProfessionalID,
		ClientID:       req.ClientID,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Details:        req.Details,
	}

	if !res.Booked {
		resp.Status = "Failure"
		resp.ErrorMessage = res.Message
		log.Info(
			"booking rejected",
			slog.String("reason", string(res.Reason)),
			slog.String("professional_id", req.ProfessionalID),
			slog.String("client_id", req.ClientID),
		)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Status = "Success"
	resp.BookingID = res.Appointment.ID.String()
	log.Info(
		"appointment booked",
		slog.String("booking_id", resp.BookingID),
		slog.String("professional_id", req.ProfessionalID),
		slog.String("client_id", req.ClientID),
	)
	writeJSON(w, http.StatusOK, resp)
}

type timeSlotResponse struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Status    string    `json:"status"`
}

type availabilityResponse struct {
	Availability []timeSlotResponse `json:"availability"`
}

func (h *ScheduleHandler) Availability(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "Availability"))

	professionalID := chi.URLParam(r, "professionalID")
	slots, err := h.booking.ListAvailability(r.Context(), professionalID)
	if err != nil {
		var vErr *booking.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		log.Error("availability listing failed", slog.Any("err", err), slog.String("professional_id", professionalID))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := availabilityResponse{Availability: make([]timeSlotResponse, 0, len(slots))}
	for _, s := range slots {
		out.Availability = append(out.Availability, timeSlotResponse{
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
			Status:    string(s.Status),
		})
	}

	log.Debug("availability listed", slog.String("professional_id", professionalID), slog.Int("count", len(out.Availability)))
	writeJSON(w, http.StatusOK, out)
}

type syncRequest struct {
	ProfessionalID     string `json:"professionalId" validate:"required"`
	ExternalSystemName string `json:"externalSystemName" validate:"required"`
	APIKey             string `json:"apiKey" validate:"required"`
	SyncStartDate      string `json:"syncStartDate" validate:"required"`
	SyncEndDate        string `json:"syncEndDate" validate:"required"`
}

type syncResponse struct {
	Success                 bool     `json:"success"`
	SyncedAppointmentsCount int      `json:"syncedAppointmentsCount"`
	Errors                  []string `json:"errors"`
}

func (h *ScheduleHandler) Sync(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "Sync"))

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "professionalId, externalSystemName, apiKey, syncStartDate and syncEndDate are required")
		return
	}

	rangeStart, err := time.Parse(time.RFC3339, req.SyncStartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "syncStartDate must be an ISO-8601 timestamp")
		return
	}
	rangeEnd, err := time.Parse(time.RFC3339, req.SyncEndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "syncEndDate must be an ISO-8601 timestamp")
		return
	}

	res, err := h.reconcile.Sync(r.Context(), reconcile.SyncInput{
		ProfessionalID: req.ProfessionalID,
		SystemID:       req.ExternalSystemName,
		Credential:     req.APIKey,
		RangeStart:     rangeStart,
		RangeEnd:       rangeEnd,
	})
	if err != nil {
		log.Error("schedule sync failed", slog.Any("err", err), slog.String("professional_id", req.ProfessionalID))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	errs := res.Errors
	if errs == nil {
		errs = []string{}
	}
	writeJSON(w, http.StatusOK, syncResponse{
		Success:                 res.Success,
		SyncedAppointmentsCount: res.SyncedCount,
		Errors:                  errs,
	})
}
