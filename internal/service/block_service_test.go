package service

import (
	"testing"
	"time"

	"github.com/kelvyncastro/kairoapp-sub002/internal/domain"
)

type fakeStore struct {
	blocks  map[int64]*domain.CalendarBlock
	nextID  int64
	updates []int64 // block ids in the order UpdateBlockTimes was called
}

func newFakeStore() *fakeStore {
	return &fakeStore{blocks: make(map[int64]*domain.CalendarBlock)}
}

func (f *fakeStore) GetBlock(id int64) (*domain.CalendarBlock, error) {
	return f.blocks[id], nil
}

func (f *fakeStore) ListBlocksInRange(userID int64, from, to time.Time) ([]*domain.CalendarBlock, error) {
	var out []*domain.CalendarBlock
	for _, b := range f.blocks {
		if b.UserID == userID && !b.StartTime.Before(from) && b.StartTime.Before(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) GetBlockBySourceUID(userID int64, sourceUID string) (*domain.CalendarBlock, error) {
	for _, b := range f.blocks {
		if b.UserID == userID && b.SourceUID == sourceUID {
			return b, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateBlock(b *domain.CalendarBlock) error {
	f.nextID++
	b.ID = f.nextID
	f.blocks[b.ID] = b
	return nil
}

func (f *fakeStore) CreateBlocks(blocks []*domain.CalendarBlock) error {
	for _, b := range blocks {
		if err := f.CreateBlock(b); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) UpdateBlockTimes(id int64, start, end time.Time) error {
	f.updates = append(f.updates, id)
	b := f.blocks[id]
	b.StartTime = start
	b.EndTime = end
	return nil
}

func (f *fakeStore) UpdateBlockStatus(id int64, status domain.Status) error {
	f.blocks[id].Status = status
	return nil
}

func (f *fakeStore) CompleteBlock(id int64, completedAt time.Time) error {
	b := f.blocks[id]
	b.Status = domain.StatusCompleted
	b.CompletedAt = &completedAt
	b.ActualEndTime = &completedAt
	return nil
}

func (f *fakeStore) DeleteBlock(id int64) error {
	delete(f.blocks, id)
	return nil
}

func (f *fakeStore) DeleteBlocksByParent(parentID int64) error {
	for id, b := range f.blocks {
		if b.RecurrenceParentID == parentID {
			delete(f.blocks, id)
		}
	}
	return nil
}

func TestCreatePersistsRecurrenceInstances(t *testing.T) {
	store := newFakeStore()
	svc := NewBlockService(store, nil)

	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	parent := &domain.CalendarBlock{
		UserID:         1,
		Title:          "Standup",
		StartTime:      start,
		EndTime:        start.Add(30 * time.Minute),
		RecurrenceType: domain.RecurrenceDaily,
		RecurrenceRule: &domain.RecurrenceRule{
			Frequency: domain.RecurrenceDaily,
			Interval:  1,
			Count:     5,
		},
	}

	created, instances, err := svc.Create(parent)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if instances != 4 {
		t.Fatalf("instances created = %d, want 4", instances)
	}
	if len(store.blocks) != 5 {
		t.Fatalf("store holds %d blocks, want 5 (parent + 4)", len(store.blocks))
	}

	for _, b := range store.blocks {
		if b.ID == created.ID {
			continue
		}
		if b.RecurrenceParentID != created.ID {
			t.Errorf("instance %d does not reference the parent", b.ID)
		}
	}
}

func TestCreateRejectsInvalidBlock(t *testing.T) {
	store := newFakeStore()
	svc := NewBlockService(store, nil)

	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	_, _, err := svc.Create(&domain.CalendarBlock{
		UserID:    1,
		Title:     "Inverted",
		StartTime: start,
		EndTime:   start.Add(-time.Hour),
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if len(store.blocks) != 0 {
		t.Fatal("nothing may be persisted on validation failure")
	}
}

func TestDeleteRecurringCascades(t *testing.T) {
	store := newFakeStore()
	svc := NewBlockService(store, nil)

	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	parent := &domain.CalendarBlock{
		UserID:         1,
		Title:          "Workout",
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
		RecurrenceType: domain.RecurrenceDaily,
		RecurrenceRule: &domain.RecurrenceRule{
			Frequency: domain.RecurrenceDaily,
			Interval:  1,
			Count:     4,
		},
	}
	created, _, err := svc.Create(parent)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Plain delete leaves the instances alone.
	other := store.blocks[created.ID+1]
	if err := svc.Delete(other.ID, 1, false); err != nil {
		t.Fatalf("delete instance: %v", err)
	}
	if len(store.blocks) != 3 {
		t.Fatalf("store holds %d blocks after single delete, want 3", len(store.blocks))
	}

	// Delete-including-recurring cascades to the remaining instances.
	if err := svc.Delete(created.ID, 1, true); err != nil {
		t.Fatalf("delete recurring: %v", err)
	}
	if len(store.blocks) != 0 {
		t.Fatalf("store holds %d blocks after cascade, want 0", len(store.blocks))
	}
}

func TestDeleteChecksOwnership(t *testing.T) {
	store := newFakeStore()
	svc := NewBlockService(store, nil)

	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	created, _, err := svc.Create(&domain.CalendarBlock{
		UserID:    1,
		Title:     "Private",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(created.ID, 2, false); err == nil {
		t.Fatal("expected access denied for another user")
	}
	if len(store.blocks) != 1 {
		t.Fatal("block must survive a denied delete")
	}
}

func TestReorganizeDayAppliesPlacements(t *testing.T) {
	store := newFakeStore()
	svc := NewBlockService(store, nil)

	day := time.Date(2024, 3, 18, 0, 0, 0, 0, time.UTC)
	mk := func(demand domain.DemandType, prio domain.Priority, sh, eh int) *domain.CalendarBlock {
		b := &domain.CalendarBlock{
			UserID:     1,
			Title:      "b",
			StartTime:  day.Add(time.Duration(sh) * time.Hour),
			EndTime:    day.Add(time.Duration(eh) * time.Hour),
			DemandType: demand,
			Priority:   prio,
			Status:     domain.StatusPending,
		}
		store.CreateBlock(b)
		return b
	}

	fixed := mk(domain.DemandFixed, domain.PriorityHigh, 9, 10)
	flex := mk(domain.DemandFlexible, domain.PriorityUrgent, 9, 10) // collides with fixed

	result, applied, err := svc.ReorganizeDay(1, day, domain.WorkdayConfig{})
	if err != nil {
		t.Fatalf("reorganize day: %v", err)
	}
	if applied != len(result.Reorganized) {
		t.Fatalf("applied = %d, want %d", applied, len(result.Reorganized))
	}
	if len(store.updates) != applied {
		t.Fatalf("store saw %d updates, want %d", len(store.updates), applied)
	}

	// The flexible block moved off the fixed one.
	moved := store.blocks[flex.ID]
	still := store.blocks[fixed.ID]
	if moved.StartTime.Before(still.EndTime) && still.StartTime.Before(moved.EndTime) {
		t.Fatal("flexible block still overlaps the fixed block after apply")
	}
	if !still.StartTime.Equal(day.Add(9*time.Hour)) || !still.EndTime.Equal(day.Add(10*time.Hour)) {
		t.Fatal("fixed block moved during apply")
	}
}

func TestPostponeMovesOneDay(t *testing.T) {
	store := newFakeStore()
	svc := NewBlockService(store, nil)

	start := time.Date(2024, 3, 18, 15, 0, 0, 0, time.UTC)
	created, _, err := svc.Create(&domain.CalendarBlock{
		UserID:    1,
		Title:     "Review",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Postpone(created.ID, 1); err != nil {
		t.Fatalf("postpone: %v", err)
	}

	moved := store.blocks[created.ID]
	if !moved.StartTime.Equal(start.AddDate(0, 0, 1)) {
		t.Fatalf("start = %s, want next day same time", moved.StartTime)
	}
	if !moved.EndTime.Equal(start.Add(time.Hour).AddDate(0, 0, 1)) {
		t.Fatalf("end = %s, want next day same time", moved.EndTime)
	}
}
