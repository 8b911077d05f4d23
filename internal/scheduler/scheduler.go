package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kelvyncastro/kairoapp-sub002/internal/domain"
)

// Thresholds are the lead times, in minutes, at which a reminder may fire
// for a block, checked in this order.
var Thresholds = []int{30, 15, 1}

const (
	// lookahead covers the largest threshold plus the tick tolerance.
	lookahead = 35 * time.Minute

	// ledgerRetention is how long sent-reminder entries are kept.
	ledgerRetention = 24 * time.Hour

	// tickSpec fires every 30 seconds (seconds-enabled cron field set).
	tickSpec = "*/30 * * * * *"
)

// BlockSource is the slice of the block store the scheduler reads.
type BlockSource interface {
	ListUpcomingBlocks(userID int64, now time.Time, lookahead time.Duration) ([]*domain.CalendarBlock, error)
}

// Ledger guards at-most-once dispatch per (block, threshold) pair.
type Ledger interface {
	HasSentReminder(blockID int64, threshold int) (bool, error)
	MarkReminderSent(blockID int64, threshold int) error
	PruneSentReminders(olderThan time.Time) error
}

// Recorder persists durable in-app notification records.
type Recorder interface {
	CreateNotification(userID int64, title, message string, blockID int64) error
}

// Channel delivers transient best-effort notifications.
type Channel interface {
	Notify(userID int64, title, body string) error
}

// Scheduler runs the reminder tick for active user sessions. Each session
// owns one cron entry; stopping the session removes it. An in-flight tick
// is never force-aborted, it is allowed to finish.
type Scheduler struct {
	cron     *cron.Cron
	source   BlockSource
	ledger   Ledger
	recorder Recorder
	channel  Channel

	now func() time.Time // overridable in tests
}

// SessionHandle cancels one user's reminder session.
type SessionHandle struct {
	entry  cron.EntryID
	userID int64
}

func New(tz *time.Location, source BlockSource, ledger Ledger, recorder Recorder, channel Channel) *Scheduler {
	c := cron.New(cron.WithSeconds(), cron.WithLocation(tz))

	return &Scheduler{
		cron:     c,
		source:   source,
		ledger:   ledger,
		recorder: recorder,
		channel:  channel,
		now:      time.Now,
	}
}

// Start runs the cron loop until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron.Start()
	log.Printf("Reminder scheduler started (tick: %s)", tickSpec)

	<-ctx.Done()
	return nil
}

// Stop halts the cron loop and waits for in-flight ticks to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Reminder scheduler stopped")
}

// StartSession begins ticking for a user and returns a cancellable handle.
func (s *Scheduler) StartSession(userID int64) (SessionHandle, error) {
	entry, err := s.cron.AddFunc(tickSpec, func() {
		s.Tick(userID)
	})
	if err != nil {
		return SessionHandle{}, fmt.Errorf("add reminder tick: %w", err)
	}
	log.Printf("Reminder session started for user %d", userID)
	return SessionHandle{entry: entry, userID: userID}, nil
}

// AddDailyJob registers an extra cron job next to the reminder ticks, such
// as the owner's morning replan. The expression uses the seconds-enabled format.
func (s *Scheduler) AddDailyJob(spec string, job func()) error {
	if _, err := s.cron.AddFunc(spec, job); err != nil {
		return fmt.Errorf("add daily job: %w", err)
	}
	return nil
}

// StopSession removes the session's cron entry.
func (s *Scheduler) StopSession(h SessionHandle) {
	s.cron.Remove(h.entry)
	log.Printf("Reminder session stopped for user %d", h.userID)
}

// Tick performs one reminder pass for the user. All failures are local:
// dispatch and record errors are logged and swallowed, and a broken ledger
// read degrades to "never sent" rather than blocking the tick.
func (s *Scheduler) Tick(userID int64) {
	now := s.now()

	blocks, err := s.source.ListUpcomingBlocks(userID, now, lookahead)
	if err != nil {
		log.Printf("Error querying upcoming blocks for user %d: %v", userID, err)
		return
	}

	for _, b := range blocks {
		minutesUntil := b.StartTime.Sub(now).Minutes()

		for _, threshold := range Thresholds {
			// One-minute tolerance window sized to the tick cadence.
			if minutesUntil < float64(threshold-1) || minutesUntil > float64(threshold) {
				continue
			}

			sent, err := s.ledger.HasSentReminder(b.ID, threshold)
			if err != nil {
				log.Printf("Error reading reminder ledger for block %d: %v", b.ID, err)
				sent = false // may re-notify, never blocks the tick
			}
			if sent {
				continue
			}

			title, body := reminderMessage(b, threshold)

			if err := s.channel.Notify(b.UserID, title, body); err != nil {
				log.Printf("Error dispatching reminder for block %d (%dm): %v", b.ID, threshold, err)
			}
			if err := s.recorder.CreateNotification(b.UserID, title, body, b.ID); err != nil {
				log.Printf("Error recording notification for block %d: %v", b.ID, err)
			}

			if err := s.ledger.MarkReminderSent(b.ID, threshold); err != nil {
				log.Printf("Error marking reminder sent for block %d (%dm): %v", b.ID, threshold, err)
			}
		}
	}

	if err := s.ledger.PruneSentReminders(now.Add(-ledgerRetention)); err != nil {
		log.Printf("Error pruning reminder ledger: %v", err)
	}
}

// reminderMessage formats threshold-specific copy.
func reminderMessage(b *domain.CalendarBlock, threshold int) (title, body string) {
	switch threshold {
	case 30:
		title = "⏰ Coming up in 30 minutes"
		body = fmt.Sprintf("%s %s starts at %s. Time to wrap up what you're doing.",
			b.Priority.Emoji(), b.Title, b.StartTime.Format("15:04"))
	case 15:
		title = "⏰ Coming up in 15 minutes"
		body = fmt.Sprintf("%s %s starts at %s.",
			b.Priority.Emoji(), b.Title, b.StartTime.Format("15:04"))
	case 1:
		title = "🔔 Starting now"
		body = fmt.Sprintf("%s %s starts in a minute.", b.Priority.Emoji(), b.Title)
	default:
		title = "⏰ Reminder"
		body = fmt.Sprintf("%s starts at %s.", b.Title, b.StartTime.Format("15:04"))
	}
	return title, body
}
