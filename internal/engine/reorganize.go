package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/kelvyncastro/kairoapp-sub002/internal/domain"
)

// Placement records the new span assigned to a flexible block.
type Placement struct {
	BlockID  int64
	NewStart time.Time
	NewEnd   time.Time
}

// ReorganizeResult is the outcome of a single-day reorganization.
type ReorganizeResult struct {
	Reorganized []Placement             // flexible blocks that found a slot
	Removed     []*domain.CalendarBlock // flexible blocks that did not fit; left untouched
	Unchanged   []*domain.CalendarBlock // fixed and completed blocks
}

// Summary returns a human-readable count line for the caller to display.
func (r *ReorganizeResult) Summary() string {
	return fmt.Sprintf("%d placed, %d unplaced, %d unchanged",
		len(r.Reorganized), len(r.Removed), len(r.Unchanged))
}

type interval struct {
	start time.Time
	end   time.Time
}

// Reorganize packs a day's flexible blocks into the free slots left around
// fixed obligations and the lunch window. The packing is greedy first-fit in
// priority order: fixed obligations never move, and a stable, explainable
// placement is preferred over a globally optimal one.
func Reorganize(date time.Time, blocks []*domain.CalendarBlock, cfg domain.WorkdayConfig) ReorganizeResult {
	cfg = cfg.Normalize()

	var result ReorganizeResult
	var pending, completed []*domain.CalendarBlock
	for _, b := range blocks {
		switch {
		case b.Status == domain.StatusCompleted:
			completed = append(completed, b)
		case b.IsReorganizable():
			pending = append(pending, b)
		}
		// cancelled and postponed blocks take no part in the day
	}

	// Priority first, fixed before flexible on ties, then original start.
	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if a.DemandType != b.DemandType {
			return a.DemandType == domain.DemandFixed
		}
		return a.StartTime.Before(b.StartTime)
	})

	var fixed, flexible []*domain.CalendarBlock
	for _, b := range pending {
		if b.DemandType == domain.DemandFixed {
			fixed = append(fixed, b)
		} else {
			flexible = append(flexible, b)
		}
	}

	lunchStart, lunchEnd := cfg.LunchWindow(date)
	occupied := make([]interval, 0, len(fixed)+1)
	occupied = append(occupied, interval{lunchStart, lunchEnd})
	for _, b := range fixed {
		occupied = append(occupied, interval{b.StartTime, b.EndTime})
	}
	sort.Slice(occupied, func(i, j int) bool {
		return occupied[i].start.Before(occupied[j].start)
	})

	dayStart, dayEnd := cfg.WorkdayWindow(date)
	slots := freeSlots(dayStart, dayEnd, occupied)

	for _, b := range flexible {
		dur := b.Duration()
		need := dur + cfg.BreakDuration

		placed := false
		for i := range slots {
			if slots[i].end.Sub(slots[i].start) < need {
				continue
			}
			newStart := slots[i].start.Add(cfg.BreakDuration / 2)
			newEnd := newStart.Add(dur)
			// Shrink the slot in place: its trailing remainder stays
			// available to later blocks before any slot further down
			// the list is tried.
			slots[i].start = newEnd.Add(cfg.BreakDuration / 2)
			result.Reorganized = append(result.Reorganized, Placement{
				BlockID:  b.ID,
				NewStart: newStart,
				NewEnd:   newEnd,
			})
			placed = true
			break
		}
		if !placed {
			result.Removed = append(result.Removed, b)
		}
	}

	result.Unchanged = append(append([]*domain.CalendarBlock{}, fixed...), completed...)
	return result
}

// freeSlots sweeps the workday window and returns the complement of the
// occupied intervals, in chronological order.
func freeSlots(dayStart, dayEnd time.Time, occupied []interval) []interval {
	var slots []interval
	cursor := dayStart
	for _, occ := range occupied {
		if cursor.Before(occ.start) {
			end := occ.start
			if end.After(dayEnd) {
				end = dayEnd
			}
			if end.After(cursor) {
				slots = append(slots, interval{cursor, end})
			}
		}
		if occ.end.After(cursor) {
			cursor = occ.end
		}
	}
	if cursor.Before(dayEnd) {
		slots = append(slots, interval{cursor, dayEnd})
	}
	return slots
}

// UpdateFunc persists one placement through the block store.
type UpdateFunc func(blockID int64, newStart, newEnd time.Time) error

// ApplyReorganization persists placements strictly in list order, awaiting
// each update before issuing the next. The ordering is a documented
// contract: it keeps the day's final state reproducible and debuggable. It
// is not required for correctness (placements never overlap by
// construction), so a caller may swap in a parallel update function later
// without touching the packing algorithm.
//
// Returns how many placements were applied. On a store error the remainder
// is skipped; already-applied updates are not rolled back.
func ApplyReorganization(result ReorganizeResult, update UpdateFunc) (int, error) {
	for i, p := range result.Reorganized {
		if err := update(p.BlockID, p.NewStart, p.NewEnd); err != nil {
			return i, fmt.Errorf("apply placement %d of %d: %w", i+1, len(result.Reorganized), err)
		}
	}
	return len(result.Reorganized), nil
}

// PostponementSuggestion proposes a new date for a block that did not fit.
type PostponementSuggestion struct {
	Block         *domain.CalendarBlock
	SuggestedDate time.Time
}

// SuggestPostponement maps every unplaced block to the day after the target
// date. This is a suggestion only; nothing is persisted here and the caller
// decides whether to accept.
func SuggestPostponement(removed []*domain.CalendarBlock, targetDate time.Time) []PostponementSuggestion {
	suggestions := make([]PostponementSuggestion, 0, len(removed))
	for _, b := range removed {
		suggestions = append(suggestions, PostponementSuggestion{
			Block:         b,
			SuggestedDate: targetDate.AddDate(0, 0, 1),
		})
	}
	return suggestions
}
