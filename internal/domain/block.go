package domain

import (
	"fmt"
	"time"
)

type DemandType string

const (
	DemandFixed    DemandType = "fixed"
	DemandFlexible DemandType = "flexible"
)

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns the sort rank of a priority: urgent sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

func (p Priority) Emoji() string {
	switch p {
	case PriorityUrgent:
		return "🔴"
	case PriorityHigh:
		return "🟠"
	case PriorityMedium:
		return "🟡"
	case PriorityLow:
		return "🟢"
	default:
		return "⚪"
	}
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusPostponed  Status = "postponed"
)

type RecurrenceType string

const (
	RecurrenceNone    RecurrenceType = "none"
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
)

// RecurrenceRule describes how follow-up instances of a block are generated.
// Interval is in frequency units (days/weeks/months). DaysOfWeek, when
// non-empty on a weekly rule, pins occurrences to those weekdays.
type RecurrenceRule struct {
	Frequency  RecurrenceType
	Interval   int
	DaysOfWeek []time.Weekday
	Until      *time.Time
	Count      int
}

// CalendarBlock is a scheduled unit of work or obligation.
type CalendarBlock struct {
	ID     int64
	UserID int64

	Title       string
	Description string
	Color       string
	SourceUID   string // linkage to an external record, opaque to the engine

	StartTime time.Time
	EndTime   time.Time

	DemandType DemandType
	Priority   Priority
	Status     Status

	RecurrenceType     RecurrenceType
	RecurrenceRule     *RecurrenceRule
	RecurrenceParentID int64 // lookup key only, no ownership

	CompletedAt   *time.Time
	ActualEndTime *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Duration is always derived from the two timestamps, never stored.
func (b *CalendarBlock) Duration() time.Duration {
	return b.EndTime.Sub(b.StartTime)
}

func (b *CalendarBlock) DurationMinutes() int {
	return int(b.Duration().Minutes())
}

// Validate rejects blocks that must never reach the engine or the store.
func (b *CalendarBlock) Validate() error {
	if !b.EndTime.After(b.StartTime) {
		return fmt.Errorf("block time range is empty or inverted: %s >= %s",
			b.StartTime.Format(time.RFC3339), b.EndTime.Format(time.RFC3339))
	}
	if b.RecurrenceType != "" && b.RecurrenceType != RecurrenceNone {
		if b.RecurrenceRule == nil {
			return fmt.Errorf("recurrence type %s requires a rule", b.RecurrenceType)
		}
		if err := b.RecurrenceRule.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (r *RecurrenceRule) Validate() error {
	if r.Interval <= 0 {
		return fmt.Errorf("recurrence interval must be positive, got %d", r.Interval)
	}
	switch r.Frequency {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
	default:
		return fmt.Errorf("unknown recurrence frequency: %s", r.Frequency)
	}
	return nil
}

// IsReorganizable reports whether the block participates in day reorganization.
func (b *CalendarBlock) IsReorganizable() bool {
	return b.Status == StatusPending || b.Status == StatusInProgress
}

// FormatTime returns the block's time range for display.
func (b *CalendarBlock) FormatTime() string {
	return b.StartTime.Format("15:04") + "-" + b.EndTime.Format("15:04")
}

// FormatDateTime returns the block's start for display.
func (b *CalendarBlock) FormatDateTime() string {
	return b.StartTime.Format("02.01.2006 15:04")
}
