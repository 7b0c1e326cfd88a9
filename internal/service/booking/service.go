package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// FailureReason classifies expected booking outcomes. These are results,
// not errors: a caller must be able to tell "no slot left" apart from
// "the system is broken".
type FailureReason string

const (
	ReasonInvalidTimeRange   FailureReason = "invalid_time_range"
	ReasonNoAvailability     FailureReason = "no_availability"
	ReasonPersistenceFailure FailureReason = "persistence_failure"
)

type BookInput struct {
	ProfessionalID string
	ClientID       string
	StartTime      time.Time
	EndTime        time.Time
	Details        string
}

type BookingResult struct {
	Booked      bool
	Reason      FailureReason
	Message     string
	Appointment domain.Appointment
}

func failure(reason FailureReason, message string) BookingResult {
	return BookingResult{Reason: reason, Message: message}
}

type Service struct {
	store store.ScheduleStore
	log   *slog.Logger
}

func NewService(scheduleStore store.ScheduleStore, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store: scheduleStore,
		log:   log.With(slog.String("component", "booking")),
	}
}

// Book finds an Available slot fully covering the requested window,
// reserves it through the store's compare-and-set, and creates the
// appointment. Losing the CAS to a concurrent booking triggers exactly one
// re-query; a failed appointment insert rolls the slot back to Available.
func (s *Service) Book(ctx context.Context, in BookInput) (BookingResult, error) {
	if strings.TrimSpace(in.ProfessionalID) == "" {
		return BookingResult{}, validationError("professional_id is required")
	}
	if strings.TrimSpace(in.ClientID) == "" {
		return BookingResult{}, validationError("client_id is required")
	}

	start := in.StartTime.UTC()
	end := in.EndTime.UTC()
	if !end.After(start) {
		return failure(ReasonInvalidTimeRange, "end time must be after start time"), nil
	}

	// One retry after a lost CAS, then the caller gets NoAvailability
	// rather than spinning under contention.
	for attempt := 0; attempt < 2; attempt++ {
		slot, err := s.store.FindAvailableSlot(ctx, in.ProfessionalID, start, end)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return failure(ReasonNoAvailability, "professional is not available at the requested time"), nil
			}
			return BookingResult{}, err
		}

		ok, err := s.store.MarkBooked(ctx, slot.ID)
		if err != nil {
			return BookingResult{}, err
		}
		if !ok {
			s.log.Debug(
				"lost booking race, retrying",
				slog.String("slot_id", slot.ID.String()),
				slog.String("professional_id", in.ProfessionalID),
				slog.Int("attempt", attempt),
			)
			continue
		}

		appt, err := s.store.CreateAppointment(ctx, domain.Appointment{
			ScheduleID:     slot.ID,
			ProfessionalID: in.ProfessionalID,
			ClientID:       in.ClientID,
			StartTime:      start,
			EndTime:        end,
			Details:        in.Details,
		})
		if err != nil {
			// Compensating action: the slot must not stay consumed
			// without an appointment behind it.
			if rbErr := s.store.MarkAvailable(ctx, slot.ID); rbErr != nil {
				s.log.Error(
					"slot rollback failed after appointment create error",
					slog.Any("err", rbErr),
					slog.String("slot_id", slot.ID.String()),
				)
			}
			s.log.Error(
				"appointment create failed, slot released",
				slog.Any("err", err),
				slog.String("slot_id", slot.ID.String()),
				slog.String("professional_id", in.ProfessionalID),
			)
			return failure(ReasonPersistenceFailure, "could not persist the appointment"), nil
		}

		return BookingResult{Booked: true, Appointment: appt}, nil
	}

	return failure(ReasonNoAvailability, "professional is not available at the requested time"), nil
}

// ListAvailability returns the professional's open slots ordered by start
// time. No open slots is an empty list, not an error.
func (s *Service) ListAvailability(ctx context.Context, professionalID string) ([]domain.ScheduleSlot, error) {
	if strings.TrimSpace(professionalID) == "" {
		return nil, validationError("professional_id is required")
	}

	slots, err := s.store.ListAvailable(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	if slots == nil {
		slots = []domain.ScheduleSlot{}
	}
	return slots, nil
}
