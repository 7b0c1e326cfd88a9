package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"slotbook/backend/internal/domain"
)

// ScheduleStore owns every mutation of schedule slots. MarkBooked is the
// concurrency boundary: the Available->Booked transition is an atomic
// compare-and-set, so two concurrent bookings can never both consume the
// same slot.
type ScheduleStore interface {
	// FindAvailableSlot returns an Available slot whose window fully
	// contains [start, end), or ErrNotFound.
	FindAvailableSlot(ctx context.Context, professionalID string, start, end time.Time) (domain.ScheduleSlot, error)

	// MarkBooked transitions a slot Available->Booked. It returns false
	// without error when the slot is no longer Available.
	MarkBooked(ctx context.Context, slotID uuid.UUID) (bool, error)

	// MarkAvailable is the compensating transition used when appointment
	// creation fails after a slot was reserved.
	MarkAvailable(ctx context.Context, slotID uuid.UUID) error

	ListAvailable(ctx context.Context, professionalID string) ([]domain.ScheduleSlot, error)
	ListOverlapping(ctx context.Context, professionalID string, start, end time.Time) ([]domain.ScheduleSlot, error)

	// UpsertExternalSlot writes an externally reported slot, keyed by
	// (professional_id, start_time, end_time) so repeated syncs are
	// idempotent. It never overwrites a Booked row; that case is
	// ErrConflict. Reconciliation only.
	UpsertExternalSlot(ctx context.Context, professionalID string, start, end time.Time, status domain.SlotStatus) error

	// UpdateSlotWindow rewrites an existing slot to match an externally
	// reported window and status. It never rewrites a Booked slot: a slot
	// Booked since the caller's snapshot is ErrConflict. Reconciliation
	// only.
	UpdateSlotWindow(ctx context.Context, slotID uuid.UUID, start, end time.Time, status domain.SlotStatus) error

	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
}
