package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available"
	SlotStatusBooked    SlotStatus = "booked"
	SlotStatusCancelled SlotStatus = "cancelled"
)

func (s SlotStatus) Valid() bool {
	switch s {
	case SlotStatusAvailable, SlotStatusBooked, SlotStatusCancelled:
		return true
	}
	return false
}

// ScheduleSlot is a time window in a professional's calendar. Slots are
// mutated only by the booking and reconciliation services, never directly
// by API callers.
type ScheduleSlot struct {
	bun.BaseModel `bun:"table:schedule_slots"`

	ID             uuid.UUID  `bun:"id,pk,type:uuid"`
	ProfessionalID string     `bun:"professional_id,notnull"`
	StartTime      time.Time  `bun:"start_time,notnull"`
	EndTime        time.Time  `bun:"end_time,notnull"`
	Status         SlotStatus `bun:"status,notnull"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
}

func (s *ScheduleSlot) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if s.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			s.ID = id
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		s.UpdatedAt = now
	}
	return nil
}

// Contains reports whether the slot's window fully covers [start, end).
func (s ScheduleSlot) Contains(start, end time.Time) bool {
	return !s.StartTime.After(start) && !s.EndTime.Before(end)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
