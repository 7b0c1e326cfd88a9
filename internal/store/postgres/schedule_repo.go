package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/store"
)

type ScheduleRepo struct {
	db *bun.DB
}

func NewScheduleRepo(db *bun.DB) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

func (r *ScheduleRepo) FindAvailableSlot(ctx context.Context, professionalID string, start, end time.Time) (domain.ScheduleSlot, error) {
	var slot domain.ScheduleSlot
	err := r.db.NewSelect().
		Model(&slot).
		Where("professional_id = ?", professionalID).
		Where("status = ?", domain.SlotStatusAvailable).
		Where("start_time <= ?", start).
		Where("end_time >= ?", end).
		OrderExpr("start_time ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ScheduleSlot{}, store.ErrNotFound
		}
		return domain.ScheduleSlot{}, err
	}
	return slot, nil
}

// MarkBooked is the compare-and-set preventing double-booking: the UPDATE
// only matches while the slot is still Available, so exactly one of any
// number of concurrent callers observes affected == 1.
func (r *ScheduleRepo) MarkBooked(ctx context.Context, slotID uuid.UUID) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*domain.ScheduleSlot)(nil)).
		Set("status = ?", domain.SlotStatusBooked).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", slotID).
		Where("status = ?", domain.SlotStatusAvailable).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *ScheduleRepo) MarkAvailable(ctx context.Context, slotID uuid.UUID) error {
	res, err := r.db.NewUpdate().
		Model((*domain.ScheduleSlot)(nil)).
		Set("status = ?", domain.SlotStatusAvailable).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", slotID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *ScheduleRepo) ListAvailable(ctx context.Context, professionalID string) ([]domain.ScheduleSlot, error) {
	var rows []domain.ScheduleSlot
	err := r.db.NewSelect().
		Model(&rows).
		Where("professional_id = ?", professionalID).
		Where("status = ?", domain.SlotStatusAvailable).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ScheduleRepo) ListOverlapping(ctx context.Context, professionalID string, start, end time.Time) ([]domain.ScheduleSlot, error) {
	var rows []domain.ScheduleSlot
	err := r.db.NewSelect().
		Model(&rows).
		Where("professional_id = ?", professionalID).
		Where("start_time < ?", end).
		Where("end_time > ?", start).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// UpsertExternalSlot never touches a Booked row: the DO UPDATE is guarded
// on the existing status, so a booking that lands on the same natural key
// concurrently survives. A filtered-out update surfaces as ErrConflict.
func (r *ScheduleRepo) UpsertExternalSlot(ctx context.Context, professionalID string, start, end time.Time, status domain.SlotStatus) error {
	m := domain.ScheduleSlot{
		ProfessionalID: professionalID,
		StartTime:      start.UTC(),
		EndTime:        end.UTC(),
		Status:         status,
	}

	res, err := r.db.NewInsert().
		Model(&m).
		On("CONFLICT (professional_id, start_time, end_time) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("updated_at = EXCLUDED.updated_at").
		Where("schedule_slot.status <> ?", domain.SlotStatusBooked).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrConflict
	}
	return nil
}

// UpdateSlotWindow never rewrites a Booked slot, so a booking winning the
// race between the reconciliation read and this write keeps its slot.
// ErrConflict reports the lost race, ErrNotFound a slot that no longer
// exists.
func (r *ScheduleRepo) UpdateSlotWindow(ctx context.Context, slotID uuid.UUID, start, end time.Time, status domain.SlotStatus) error {
	res, err := r.db.NewUpdate().
		Model((*domain.ScheduleSlot)(nil)).
		Set("start_time = ?", start.UTC()).
		Set("end_time = ?", end.UTC()).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", slotID).
		Where("status <> ?", domain.SlotStatusBooked).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		exists, err := r.db.NewSelect().
			Model((*domain.ScheduleSlot)(nil)).
			Where("id = ?", slotID).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return store.ErrConflict
		}
		return store.ErrNotFound
	}
	return nil
}

func (r *ScheduleRepo) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := domain.Appointment{
		ID:             appt.ID,
		ScheduleID:     appt.ScheduleID,
		ProfessionalID: appt.ProfessionalID,
		ClientID:       appt.ClientID,
		StartTime:      appt.StartTime,
		EndTime:        appt.EndTime,
		Details:        appt.Details,
		CreatedAt:      appt.CreatedAt,
		UpdatedAt:      appt.UpdatedAt,
	}

	_, err := r.db.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			// Exclusion constraint on (professional_id, tstzrange) backs
			// the no-overlapping-booked-appointments invariant.
			if pgErr.Code == "23P01" && pgErr.ConstraintName == "appointments_no_overlap" {
				return domain.Appointment{}, store.ErrConflict
			}
		}
		return domain.Appointment{}, err
	}

	return m, nil
}
