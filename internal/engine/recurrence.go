package engine

import (
	"fmt"
	"time"

	"github.com/kelvyncastro/kairoapp-sub002/internal/domain"
)

const (
	// defaultHorizonMonths bounds expansion when the rule has no until date.
	defaultHorizonMonths = 3
	// defaultOccurrenceCap bounds total occurrences when the rule has no count.
	defaultOccurrenceCap = 90
)

// Expand generates the follow-up instances of a recurring block. The full
// sequence is computed up front so the caller can bulk-insert it in one go.
//
// The first occurrence is the parent itself and is not emitted, but it does
// count against the occurrence cap: a rule with Count=5 yields at most 4
// instances. Expansion stops as soon as either the date horizon or the
// occurrence cap is reached.
func Expand(parent *domain.CalendarBlock, rule *domain.RecurrenceRule) ([]*domain.CalendarBlock, error) {
	if parent == nil {
		return nil, fmt.Errorf("expand: parent block is nil")
	}
	if rule == nil {
		return nil, fmt.Errorf("expand: recurrence rule is nil")
	}
	if !parent.EndTime.After(parent.StartTime) {
		return nil, fmt.Errorf("expand: parent time range is empty or inverted")
	}
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("expand: %w", err)
	}

	duration := parent.EndTime.Sub(parent.StartTime)

	limitDate := parent.StartTime.AddDate(0, defaultHorizonMonths, 0)
	if rule.Until != nil {
		limitDate = *rule.Until
	}
	limitCount := defaultOccurrenceCap
	if rule.Count > 0 {
		limitCount = rule.Count
	}

	var instances []*domain.CalendarBlock
	cursor := parent.StartTime
	for iter := 0; iter < limitCount && cursor.Before(limitDate); iter++ {
		// Iteration zero is the parent's own occurrence.
		if iter > 0 {
			instances = append(instances, instanceAt(parent, cursor, duration))
		}
		cursor = nextOccurrence(cursor, rule)
	}

	return instances, nil
}

// instanceAt copies the parent into a concrete instance at the given start.
// Payload fields (title, description, color, source linkage) are carried
// verbatim; identity and completion metadata are reset.
func instanceAt(parent *domain.CalendarBlock, start time.Time, duration time.Duration) *domain.CalendarBlock {
	return &domain.CalendarBlock{
		UserID:             parent.UserID,
		Title:              parent.Title,
		Description:        parent.Description,
		Color:              parent.Color,
		SourceUID:          parent.SourceUID,
		StartTime:          start,
		EndTime:            start.Add(duration),
		DemandType:         parent.DemandType,
		Priority:           parent.Priority,
		Status:             domain.StatusPending,
		RecurrenceType:     domain.RecurrenceNone,
		RecurrenceParentID: parent.ID,
	}
}

// nextOccurrence advances the cursor by the rule's generation policy.
func nextOccurrence(cur time.Time, rule *domain.RecurrenceRule) time.Time {
	switch rule.Frequency {
	case domain.RecurrenceDaily:
		return cur.AddDate(0, 0, rule.Interval)

	case domain.RecurrenceWeekly:
		if len(rule.DaysOfWeek) == 0 {
			return cur.AddDate(0, 0, 7*rule.Interval)
		}
		// With explicit weekdays the next occurrence is the nearest future
		// calendar day whose weekday is listed, starting the day after the
		// current occurrence. Interval does not apply on this branch.
		next := cur.AddDate(0, 0, 1)
		for i := 0; i < 7; i++ {
			if weekdayListed(next.Weekday(), rule.DaysOfWeek) {
				return next
			}
			next = next.AddDate(0, 0, 1)
		}
		return next

	case domain.RecurrenceMonthly:
		return cur.AddDate(0, rule.Interval, 0)
	}

	// Unreachable after Validate; advance by a day so the loop stays bounded.
	return cur.AddDate(0, 0, 1)
}

func weekdayListed(day time.Weekday, days []time.Weekday) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
