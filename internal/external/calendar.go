package external

import (
	"context"
	"sync"
	"time"

	"slotbook/backend/internal/service/reconcile"
)

// StaticCalendar serves externally reported slots from memory. It stands in
// for real integrations until a wire client exists; with no fixtures loaded
// every sync is a successful no-op.
type StaticCalendar struct {
	mu    sync.RWMutex
	slots map[string][]reconcile.ExternalSlot
}

func NewStaticCalendar() *StaticCalendar {
	return &StaticCalendar{slots: make(map[string][]reconcile.ExternalSlot)}
}

// SetSlots replaces the fixtures for one professional on one system.
func (c *StaticCalendar) SetSlots(professionalID, systemID string, slots []reconcile.ExternalSlot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[professionalID+"/"+systemID] = slots
}

func (c *StaticCalendar) FetchSlots(ctx context.Context, professionalID, systemID, credential string, start, end time.Time) ([]reconcile.ExternalSlot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []reconcile.ExternalSlot
	for _, s := range c.slots[professionalID+"/"+systemID] {
		if s.StartTime.Before(end) && s.EndTime.After(start) {
			out = append(out, s)
		}
	}
	return out, nil
}
