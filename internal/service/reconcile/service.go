package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/store"
)

// ExternalSlot is a time window reported by an external scheduling system.
type ExternalSlot struct {
	StartTime time.Time
	EndTime   time.Time
	Status    domain.SlotStatus
}

// ExternalCalendar fetches a professional's slots from an external system.
// Injected so the merge logic can be exercised without any wire protocol.
type ExternalCalendar interface {
	FetchSlots(ctx context.Context, professionalID, systemID, credential string, start, end time.Time) ([]ExternalSlot, error)
}

// SyncResult reports the outcome of one reconciliation run. Conflicts and
// per-slot failures land in Errors without flipping Success; only input
// validation and fetch failures do.
type SyncResult struct {
	Success     bool
	SyncedCount int
	Errors      []string
}

type SyncInput struct {
	ProfessionalID string
	SystemID       string
	Credential     string
	RangeStart     time.Time
	RangeEnd       time.Time
}

type Service struct {
	store    store.ScheduleStore
	external ExternalCalendar
	systems  map[string]struct{}
	log      *slog.Logger
}

// NewService builds a reconciliation service limited to the given set of
// recognized external system names.
func NewService(scheduleStore store.ScheduleStore, external ExternalCalendar, systems []string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	known := make(map[string]struct{}, len(systems))
	for _, s := range systems {
		known[s] = struct{}{}
	}
	return &Service{
		store:    scheduleStore,
		external: external,
		systems:  known,
		log:      log.With(slog.String("component", "reconcile")),
	}
}

func failed(errs ...string) SyncResult {
	return SyncResult{Success: false, Errors: errs}
}

// Sync pulls the professional's calendar from the external system for
// [RangeStart, RangeEnd) and merges it into the schedule store. The external
// system is authoritative for availability; an internally Booked slot always
// wins and is recorded as a non-fatal conflict.
func (s *Service) Sync(ctx context.Context, in SyncInput) (SyncResult, error) {
	if strings.TrimSpace(in.ProfessionalID) == "" {
		return failed("professional_id is required"), nil
	}
	if strings.TrimSpace(in.Credential) == "" {
		return failed("credential is required"), nil
	}
	if _, ok := s.systems[in.SystemID]; !ok {
		return failed(fmt.Sprintf("unknown external system %q", in.SystemID)), nil
	}

	rangeStart := in.RangeStart.UTC()
	rangeEnd := in.RangeEnd.UTC()
	if !rangeEnd.After(rangeStart) {
		return failed("range end must be after range start"), nil
	}

	external, err := s.external.FetchSlots(ctx, in.ProfessionalID, in.SystemID, in.Credential, rangeStart, rangeEnd)
	if err != nil {
		s.log.Warn(
			"external fetch failed",
			slog.Any("err", err),
			slog.String("professional_id", in.ProfessionalID),
			slog.String("system_id", in.SystemID),
		)
		return failed(fmt.Sprintf("external fetch failed: %v", err)), nil
	}

	result := SyncResult{Success: true, Errors: []string{}}
	for _, ext := range external {
		applied, errMsg := s.reconcileSlot(ctx, in.ProfessionalID, ext)
		if errMsg != "" {
			result.Errors = append(result.Errors, errMsg)
		}
		if applied {
			result.SyncedCount++
		}
	}

	s.log.Info(
		"schedule sync finished",
		slog.String("professional_id", in.ProfessionalID),
		slog.String("system_id", in.SystemID),
		slog.Int("external_slots", len(external)),
		slog.Int("synced", result.SyncedCount),
		slog.Int("errors", len(result.Errors)),
	)

	return result, nil
}

// reconcileSlot merges one external slot. A failure here never aborts the
// sync; it is reported back as an error entry.
func (s *Service) reconcileSlot(ctx context.Context, professionalID string, ext ExternalSlot) (applied bool, errMsg string) {
	start := ext.StartTime.UTC()
	end := ext.EndTime.UTC()
	if !end.After(start) {
		return false, fmt.Sprintf("invalid external slot window %s-%s", formatTime(start), formatTime(end))
	}
	if !ext.Status.Valid() {
		return false, fmt.Sprintf("invalid external slot status %q at %s-%s", ext.Status, formatTime(start), formatTime(end))
	}

	overlapping, err := s.store.ListOverlapping(ctx, professionalID, start, end)
	if err != nil {
		return false, fmt.Sprintf("lookup failed for %s-%s: %v", formatTime(start), formatTime(end), err)
	}

	if len(overlapping) == 0 {
		if err := s.store.UpsertExternalSlot(ctx, professionalID, start, end, ext.Status); err != nil {
			// A booking took the same window between the read and the write.
			if errors.Is(err, store.ErrConflict) {
				return false, fmt.Sprintf("conflict at %s-%s", formatTime(start), formatTime(end))
			}
			return false, fmt.Sprintf("create failed for %s-%s: %v", formatTime(start), formatTime(end), err)
		}
		return true, ""
	}

	// An existing client booking always wins over external data.
	for _, internal := range overlapping {
		if internal.Status == domain.SlotStatusBooked {
			return false, fmt.Sprintf("conflict at %s-%s", formatTime(internal.StartTime), formatTime(internal.EndTime))
		}
	}

	target := overlapping[0]
	if err := s.store.UpdateSlotWindow(ctx, target.ID, start, end, ext.Status); err != nil {
		// The store refuses to rewrite a slot that got Booked after our
		// snapshot; the booking wins and the slot is reported as a conflict.
		if errors.Is(err, store.ErrConflict) {
			return false, fmt.Sprintf("conflict at %s-%s", formatTime(target.StartTime), formatTime(target.EndTime))
		}
		return false, fmt.Sprintf("update failed for %s-%s: %v", formatTime(start), formatTime(end), err)
	}
	return true, ""
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
