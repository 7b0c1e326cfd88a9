package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/store"
)

// openTestDB connects with a single pooled connection and points its
// search_path at a throwaway schema, so concurrent test runs never see
// each other's rows.
func openTestDB(t *testing.T) *bun.DB {
	t.Helper()

	databaseURL := strings.TrimSpace(os.Getenv("SLOTBOOK_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("SLOTBOOK_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Open(ctx, databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	schema := "slotbook_test_" + randomHex(t, 8)
	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cleanupCancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(cleanupCtx)
	})

	if _, err := db.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema error: %v", err)
	}
	if _, err := db.NewRaw("SET search_path TO " + schema + ", public").Exec(ctx); err != nil {
		t.Fatalf("set search_path error: %v", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		t.Fatalf("apply migrations error: %v", err)
	}

	return db
}

func TestPostgresIntegration_ScheduleBookingLifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewScheduleRepo(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	professionalID := "prof-1"
	start := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		s := start.Add(time.Duration(i) * 2 * time.Hour)
		if err := repo.UpsertExternalSlot(ctx, professionalID, s, s.Add(time.Hour), domain.SlotStatusAvailable); err != nil {
			t.Fatalf("UpsertExternalSlot error: %v", err)
		}
	}

	open, err := repo.ListAvailable(ctx, professionalID)
	if err != nil {
		t.Fatalf("ListAvailable error: %v", err)
	}
	if len(open) != 3 {
		t.Fatalf("len(open) = %d, want 3", len(open))
	}
	for i := 1; i < len(open); i++ {
		if open[i].StartTime.Before(open[i-1].StartTime) {
			t.Fatalf("open slots not sorted: %v before %v", open[i].StartTime, open[i-1].StartTime)
		}
	}

	// Sub-window request still resolves to the covering slot.
	slot, err := repo.FindAvailableSlot(ctx, professionalID, start.Add(15*time.Minute), start.Add(45*time.Minute))
	if err != nil {
		t.Fatalf("FindAvailableSlot error: %v", err)
	}
	if !slot.StartTime.Equal(start) {
		t.Fatalf("slot.StartTime = %v, want %v", slot.StartTime, start)
	}

	if _, err := repo.FindAvailableSlot(ctx, "prof-unknown", start, start.Add(time.Hour)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("FindAvailableSlot for unknown professional = %v, want %v", err, store.ErrNotFound)
	}

	ok, err := repo.MarkBooked(ctx, slot.ID)
	if err != nil {
		t.Fatalf("MarkBooked error: %v", err)
	}
	if !ok {
		t.Fatal("first MarkBooked = false, want true")
	}

	// The compare-and-set must reject a second taker.
	ok, err = repo.MarkBooked(ctx, slot.ID)
	if err != nil {
		t.Fatalf("second MarkBooked error: %v", err)
	}
	if ok {
		t.Fatal("second MarkBooked = true, want false")
	}

	appt, err := repo.CreateAppointment(ctx, domain.Appointment{
		ScheduleID:     slot.ID,
		ProfessionalID: professionalID,
		ClientID:       "client-1",
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
		Details:        "initial consultation",
	})
	if err != nil {
		t.Fatalf("CreateAppointment error: %v", err)
	}
	if appt.ID == uuid.Nil {
		t.Fatal("expected non-nil appointment id")
	}

	_, err = repo.CreateAppointment(ctx, domain.Appointment{
		ScheduleID:     slot.ID,
		ProfessionalID: professionalID,
		ClientID:       "client-2",
		StartTime:      start.Add(30 * time.Minute),
		EndTime:        start.Add(90 * time.Minute),
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("overlapping CreateAppointment = %v, want %v", err, store.ErrConflict)
	}

	open, err = repo.ListAvailable(ctx, professionalID)
	if err != nil {
		t.Fatalf("ListAvailable error: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("len(open) after booking = %d, want 2", len(open))
	}

	if err := repo.MarkAvailable(ctx, slot.ID); err != nil {
		t.Fatalf("MarkAvailable error: %v", err)
	}
	if err := repo.MarkAvailable(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("MarkAvailable for unknown slot = %v, want %v", err, store.ErrNotFound)
	}
}

func TestPostgresIntegration_ExternalSlotUpsertAndWindowUpdate(t *testing.T) {
	db := openTestDB(t)
	repo := NewScheduleRepo(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	professionalID := "prof-sync"
	start := time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	if err := repo.UpsertExternalSlot(ctx, professionalID, start, end, domain.SlotStatusAvailable); err != nil {
		t.Fatalf("UpsertExternalSlot error: %v", err)
	}
	// Same natural key again must update in place, not add a row.
	if err := repo.UpsertExternalSlot(ctx, professionalID, start, end, domain.SlotStatusCancelled); err != nil {
		t.Fatalf("repeat UpsertExternalSlot error: %v", err)
	}

	rows, err := repo.ListOverlapping(ctx, professionalID, start, end)
	if err != nil {
		t.Fatalf("ListOverlapping error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	if rows[0].Status != domain.SlotStatusCancelled {
		t.Fatalf("status = %s, want %s", rows[0].Status, domain.SlotStatusCancelled)
	}

	newStart := start.Add(30 * time.Minute)
	newEnd := end.Add(30 * time.Minute)
	if err := repo.UpdateSlotWindow(ctx, rows[0].ID, newStart, newEnd, domain.SlotStatusAvailable); err != nil {
		t.Fatalf("UpdateSlotWindow error: %v", err)
	}

	// Touching windows do not overlap.
	rows, err = repo.ListOverlapping(ctx, professionalID, start, newStart)
	if err != nil {
		t.Fatalf("ListOverlapping error: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("len(rows) for touching window = %d, want 0", len(rows))
	}

	rows, err = repo.ListOverlapping(ctx, professionalID, newStart, newEnd)
	if err != nil {
		t.Fatalf("ListOverlapping error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) for moved window = %d, want 1", len(rows))
	}
	if !rows[0].StartTime.Equal(newStart) || !rows[0].EndTime.Equal(newEnd) {
		t.Fatalf("window = [%v, %v], want [%v, %v]", rows[0].StartTime, rows[0].EndTime, newStart, newEnd)
	}

	if err := repo.UpdateSlotWindow(ctx, uuid.New(), newStart, newEnd, domain.SlotStatusAvailable); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("UpdateSlotWindow for unknown slot = %v, want %v", err, store.ErrNotFound)
	}
}

func TestPostgresIntegration_ReconciliationWritesNeverOverrideBookings(t *testing.T) {
	db := openTestDB(t)
	repo := NewScheduleRepo(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	professionalID := "prof-race"
	start := time.Date(2026, 9, 3, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	if err := repo.UpsertExternalSlot(ctx, professionalID, start, end, domain.SlotStatusAvailable); err != nil {
		t.Fatalf("UpsertExternalSlot error: %v", err)
	}
	slot, err := repo.FindAvailableSlot(ctx, professionalID, start, end)
	if err != nil {
		t.Fatalf("FindAvailableSlot error: %v", err)
	}

	// A booking lands after reconciliation has taken its snapshot.
	ok, err := repo.MarkBooked(ctx, slot.ID)
	if err != nil {
		t.Fatalf("MarkBooked error: %v", err)
	}
	if !ok {
		t.Fatal("MarkBooked = false, want true")
	}

	if err := repo.UpdateSlotWindow(ctx, slot.ID, start.Add(30*time.Minute), end.Add(30*time.Minute), domain.SlotStatusAvailable); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("UpdateSlotWindow on booked slot = %v, want %v", err, store.ErrConflict)
	}
	if err := repo.UpsertExternalSlot(ctx, professionalID, start, end, domain.SlotStatusAvailable); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("UpsertExternalSlot onto booked slot = %v, want %v", err, store.ErrConflict)
	}

	rows, err := repo.ListOverlapping(ctx, professionalID, start, end)
	if err != nil {
		t.Fatalf("ListOverlapping error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	if rows[0].Status != domain.SlotStatusBooked {
		t.Fatalf("status = %s, booking must survive reconciliation writes", rows[0].Status)
	}
	if !rows[0].StartTime.Equal(start) || !rows[0].EndTime.Equal(end) {
		t.Fatalf("window = [%v, %v], want unchanged [%v, %v]", rows[0].StartTime, rows[0].EndTime, start, end)
	}
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}

type rawExecutor interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

func applyMigrations(ctx context.Context, exec rawExecutor) error {
	dir, err := migrationsDir()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	type mig struct {
		name string
		path string
	}
	migs := make([]mig, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		migs = append(migs, mig{name: e.Name(), path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].name < migs[j].name })

	for _, m := range migs {
		b, err := os.ReadFile(m.path)
		if err != nil {
			return err
		}
		upSQL, err := extractGooseUp(string(b))
		if err != nil {
			return err
		}
		for _, stmt := range splitSQLStatements(upSQL) {
			if normalized, ok := normalizeExtensionStatement(stmt); ok {
				stmt = normalized
			}
			if _, err := exec.NewRaw(stmt).Exec(ctx); err != nil {
				return fmt.Errorf("%s: %w", m.name, err)
			}
		}
	}

	return nil
}

func migrationsDir() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("runtime.Caller failed")
	}
	base := filepath.Dir(file)
	return filepath.Clean(filepath.Join(base, "..", "..", "..", "migrations")), nil
}

func extractGooseUp(sql string) (string, error) {
	upMarker := "-- +goose Up"
	downMarker := "-- +goose Down"

	upIdx := strings.Index(sql, upMarker)
	if upIdx < 0 {
		return "", fmt.Errorf("missing goose up marker")
	}
	afterUp := strings.TrimLeft(sql[upIdx+len(upMarker):], "\r\n")

	downIdx := strings.Index(afterUp, downMarker)
	if downIdx < 0 {
		return strings.TrimSpace(afterUp), nil
	}
	return strings.TrimSpace(afterUp[:downIdx]), nil
}

// normalizeExtensionStatement pins btree_gist into the public schema so the
// extension survives the throwaway test schema being dropped.
func normalizeExtensionStatement(stmt string) (string, bool) {
	s := strings.TrimSpace(stmt)
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "CREATE EXTENSION") {
		return "", false
	}
	if !strings.Contains(upper, "BTREE_GIST") {
		return "", false
	}
	if strings.Contains(upper, " SCHEMA ") {
		return "", false
	}
	return s + " SCHEMA public", true
}

func splitSQLStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
