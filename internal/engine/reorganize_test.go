package engine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kelvyncastro/kairoapp-sub002/internal/domain"
)

var testDay = time.Date(2024, 3, 18, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return time.Date(testDay.Year(), testDay.Month(), testDay.Day(), hour, minute, 0, 0, testDay.Location())
}

var nextBlockID int64

func block(demand domain.DemandType, prio domain.Priority, start, end time.Time) *domain.CalendarBlock {
	nextBlockID++
	return &domain.CalendarBlock{
		ID:         nextBlockID,
		UserID:     1,
		Title:      fmt.Sprintf("block %d", nextBlockID),
		StartTime:  start,
		EndTime:    end,
		DemandType: demand,
		Priority:   prio,
		Status:     domain.StatusPending,
	}
}

// spans collects every occupied interval of the result: placements as
// recorded, unchanged blocks at their original times.
func spans(result ReorganizeResult) []interval {
	var out []interval
	for _, p := range result.Reorganized {
		out = append(out, interval{p.NewStart, p.NewEnd})
	}
	for _, b := range result.Unchanged {
		out = append(out, interval{b.StartTime, b.EndTime})
	}
	return out
}

func assertNoOverlap(t *testing.T, ivs []interval) {
	t.Helper()
	for i := 0; i < len(ivs); i++ {
		for j := i + 1; j < len(ivs); j++ {
			if ivs[i].start.Before(ivs[j].end) && ivs[j].start.Before(ivs[i].end) {
				t.Errorf("intervals overlap: [%s,%s) and [%s,%s)",
					ivs[i].start.Format("15:04"), ivs[i].end.Format("15:04"),
					ivs[j].start.Format("15:04"), ivs[j].end.Format("15:04"))
			}
		}
	}
}

func TestReorganizePacksAroundFixedBlocks(t *testing.T) {
	cfg := domain.WorkdayConfig{
		WorkdayStartHour: 8,
		WorkdayEndHour:   18,
		BreakDuration:    15 * time.Minute,
		LunchStartHour:   12,
		LunchDuration:    60 * time.Minute,
	}

	lunchBlock := block(domain.DemandFixed, domain.PriorityMedium, at(12, 0), at(13, 0))
	meeting := block(domain.DemandFixed, domain.PriorityHigh, at(9, 0), at(10, 0))
	flex1 := block(domain.DemandFlexible, domain.PriorityUrgent, at(8, 0), at(9, 0))
	flex2 := block(domain.DemandFlexible, domain.PriorityUrgent, at(9, 0), at(10, 0))
	flex3 := block(domain.DemandFlexible, domain.PriorityUrgent, at(10, 0), at(11, 0))

	blocks := []*domain.CalendarBlock{lunchBlock, meeting, flex1, flex2, flex3}
	result := Reorganize(testDay, blocks, cfg)

	if len(result.Removed) != 0 {
		t.Fatalf("expected all flexible blocks placed, %d removed", len(result.Removed))
	}
	if len(result.Reorganized) != 3 {
		t.Fatalf("expected 3 placements, got %d", len(result.Reorganized))
	}

	assertNoOverlap(t, spans(result))

	// No placement may touch the lunch window.
	lunchStart, lunchEnd := cfg.LunchWindow(testDay)
	for _, p := range result.Reorganized {
		if p.NewStart.Before(lunchEnd) && lunchStart.Before(p.NewEnd) {
			t.Errorf("placement [%s,%s) overlaps lunch",
				p.NewStart.Format("15:04"), p.NewEnd.Format("15:04"))
		}
	}

	// Every placement stays inside the workday.
	dayStart, dayEnd := cfg.WorkdayWindow(testDay)
	for _, p := range result.Reorganized {
		if p.NewStart.Before(dayStart) || p.NewEnd.After(dayEnd) {
			t.Errorf("placement [%s,%s) escapes the workday",
				p.NewStart.Format("15:04"), p.NewEnd.Format("15:04"))
		}
	}
}

func TestReorganizeFixedBlocksNeverMove(t *testing.T) {
	fixed := block(domain.DemandFixed, domain.PriorityLow, at(14, 0), at(15, 0))
	origStart, origEnd := fixed.StartTime, fixed.EndTime
	flex := block(domain.DemandFlexible, domain.PriorityUrgent, at(14, 0), at(15, 0))

	result := Reorganize(testDay, []*domain.CalendarBlock{fixed, flex}, domain.WorkdayConfig{})

	for _, p := range result.Reorganized {
		if p.BlockID == fixed.ID {
			t.Fatal("fixed block appeared in the reorganized list")
		}
	}
	if !fixed.StartTime.Equal(origStart) || !fixed.EndTime.Equal(origEnd) {
		t.Fatal("fixed block times changed")
	}

	found := false
	for _, b := range result.Unchanged {
		if b.ID == fixed.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("fixed block missing from unchanged")
	}
}

func TestReorganizeLimitedCapacity(t *testing.T) {
	// Fixed obstacles leave three gaps (90, 75 and 75 minutes). A 60
	// minute block needs 75 minutes with its break, so each gap fits
	// exactly one.
	cfg := domain.WorkdayConfig{
		WorkdayStartHour: 8,
		WorkdayEndHour:   14,
		BreakDuration:    15 * time.Minute,
		LunchStartHour:   12, LunchStartMinute: 30,
		LunchDuration: 90 * time.Minute,
	}

	blocks := []*domain.CalendarBlock{
		block(domain.DemandFixed, domain.PriorityHigh, at(9, 30), at(9, 45)),
		block(domain.DemandFixed, domain.PriorityHigh, at(11, 0), at(11, 15)),
	}
	for i := 0; i < 10; i++ {
		blocks = append(blocks, block(domain.DemandFlexible, domain.PriorityLow, at(8, 0), at(9, 0)))
	}

	result := Reorganize(testDay, blocks, cfg)

	if len(result.Reorganized) != 3 {
		t.Fatalf("expected exactly 3 placed, got %d", len(result.Reorganized))
	}
	if len(result.Removed) != 7 {
		t.Fatalf("expected 7 removed, got %d", len(result.Removed))
	}
	assertNoOverlap(t, spans(result))
}

func TestReorganizePriorityOrderWins(t *testing.T) {
	// Single 75 minute gap: only one 60 minute block fits, and it must be
	// the urgent one even though the low block was listed first.
	cfg := domain.WorkdayConfig{
		WorkdayStartHour: 8,
		WorkdayEndHour:   9, WorkdayEndMinute: 15,
		BreakDuration:  15 * time.Minute,
		LunchStartHour: 12,
		LunchDuration:  60 * time.Minute,
	}

	low := block(domain.DemandFlexible, domain.PriorityLow, at(8, 0), at(9, 0))
	urgent := block(domain.DemandFlexible, domain.PriorityUrgent, at(8, 0), at(9, 0))

	result := Reorganize(testDay, []*domain.CalendarBlock{low, urgent}, cfg)

	if len(result.Reorganized) != 1 || result.Reorganized[0].BlockID != urgent.ID {
		t.Fatalf("expected the urgent block to win the only slot: %+v", result.Reorganized)
	}
	if len(result.Removed) != 1 || result.Removed[0].ID != low.ID {
		t.Fatalf("expected the low block in removed: %+v", result.Removed)
	}
}

func TestReorganizeSkipsCompletedAndCancelled(t *testing.T) {
	done := block(domain.DemandFlexible, domain.PriorityHigh, at(8, 0), at(9, 0))
	done.Status = domain.StatusCompleted
	cancelled := block(domain.DemandFlexible, domain.PriorityHigh, at(9, 0), at(10, 0))
	cancelled.Status = domain.StatusCancelled

	result := Reorganize(testDay, []*domain.CalendarBlock{done, cancelled}, domain.WorkdayConfig{})

	if len(result.Reorganized) != 0 || len(result.Removed) != 0 {
		t.Fatalf("completed/cancelled blocks must not be reorganization candidates")
	}
	if len(result.Unchanged) != 1 || result.Unchanged[0].ID != done.ID {
		t.Fatalf("completed block should pass through unchanged, got %+v", result.Unchanged)
	}
}

func TestReorganizeIdempotent(t *testing.T) {
	cfg := domain.WorkdayConfig{
		WorkdayStartHour: 8,
		WorkdayEndHour:   18,
		BreakDuration:    15 * time.Minute,
		LunchStartHour:   12,
		LunchDuration:    60 * time.Minute,
	}

	blocks := []*domain.CalendarBlock{
		block(domain.DemandFixed, domain.PriorityHigh, at(9, 0), at(10, 0)),
		block(domain.DemandFlexible, domain.PriorityUrgent, at(8, 0), at(9, 0)),
		block(domain.DemandFlexible, domain.PriorityMedium, at(10, 0), at(11, 30)),
		block(domain.DemandFlexible, domain.PriorityLow, at(15, 0), at(16, 0)),
	}

	first := Reorganize(testDay, blocks, cfg)

	// Feed the first result back: apply placements to the inputs, re-run,
	// and expect no oscillation.
	byID := make(map[int64]*domain.CalendarBlock)
	for _, b := range blocks {
		byID[b.ID] = b
	}
	for _, p := range first.Reorganized {
		byID[p.BlockID].StartTime = p.NewStart
		byID[p.BlockID].EndTime = p.NewEnd
	}

	second := Reorganize(testDay, blocks, cfg)

	if len(second.Reorganized) != len(first.Reorganized) {
		t.Fatalf("placement count changed on re-run: %d vs %d",
			len(first.Reorganized), len(second.Reorganized))
	}
	if len(second.Removed) != len(first.Removed) {
		t.Fatalf("removed count changed on re-run: %d vs %d",
			len(first.Removed), len(second.Removed))
	}
	firstByID := make(map[int64]Placement)
	for _, p := range first.Reorganized {
		firstByID[p.BlockID] = p
	}
	for _, p := range second.Reorganized {
		prev, ok := firstByID[p.BlockID]
		if !ok {
			t.Fatalf("block %d placed on re-run but not originally", p.BlockID)
		}
		if !p.NewStart.Equal(prev.NewStart) || !p.NewEnd.Equal(prev.NewEnd) {
			t.Errorf("block %d moved on re-run: [%s,%s) -> [%s,%s)", p.BlockID,
				prev.NewStart.Format("15:04"), prev.NewEnd.Format("15:04"),
				p.NewStart.Format("15:04"), p.NewEnd.Format("15:04"))
		}
	}
}

func TestApplyReorganizationSequentialOrder(t *testing.T) {
	result := ReorganizeResult{
		Reorganized: []Placement{
			{BlockID: 3, NewStart: at(8, 0), NewEnd: at(9, 0)},
			{BlockID: 1, NewStart: at(9, 15), NewEnd: at(10, 0)},
			{BlockID: 2, NewStart: at(10, 15), NewEnd: at(11, 0)},
		},
	}

	var order []int64
	applied, err := ApplyReorganization(result, func(id int64, start, end time.Time) error {
		order = append(order, id)
		return nil
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied != 3 {
		t.Fatalf("applied = %d, want 3", applied)
	}
	want := []int64{3, 1, 2}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("update order = %v, want %v", order, want)
		}
	}
}

func TestApplyReorganizationStopsOnError(t *testing.T) {
	result := ReorganizeResult{
		Reorganized: []Placement{
			{BlockID: 1, NewStart: at(8, 0), NewEnd: at(9, 0)},
			{BlockID: 2, NewStart: at(9, 15), NewEnd: at(10, 0)},
			{BlockID: 3, NewStart: at(10, 15), NewEnd: at(11, 0)},
		},
	}

	boom := errors.New("store down")
	var calls int
	applied, err := ApplyReorganization(result, func(id int64, start, end time.Time) error {
		calls++
		if id == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied = %d, want 1", applied)
	}
	if calls != 2 {
		t.Fatalf("update called %d times, want 2 (no retry, no continuation)", calls)
	}
}

func TestSuggestPostponement(t *testing.T) {
	removed := []*domain.CalendarBlock{
		block(domain.DemandFlexible, domain.PriorityLow, at(8, 0), at(9, 0)),
		block(domain.DemandFlexible, domain.PriorityLow, at(9, 0), at(10, 0)),
	}

	suggestions := SuggestPostponement(removed, testDay)
	if len(suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(suggestions))
	}
	want := testDay.AddDate(0, 0, 1)
	for i, s := range suggestions {
		if !s.SuggestedDate.Equal(want) {
			t.Errorf("suggestion %d: date = %s, want %s", i, s.SuggestedDate, want)
		}
		if s.Block != removed[i] {
			t.Errorf("suggestion %d references the wrong block", i)
		}
	}
}

func TestReorganizeSummary(t *testing.T) {
	result := ReorganizeResult{
		Reorganized: []Placement{{BlockID: 1}},
		Removed:     []*domain.CalendarBlock{{ID: 2}, {ID: 3}},
		Unchanged:   []*domain.CalendarBlock{{ID: 4}},
	}
	if got := result.Summary(); got != "1 placed, 2 unplaced, 1 unchanged" {
		t.Fatalf("summary = %q", got)
	}
}
