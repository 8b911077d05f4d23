package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelvyncastro/kairoapp-sub002/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS calendar_blocks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			description TEXT DEFAULT '',
			color TEXT DEFAULT '',
			source_uid TEXT DEFAULT '',
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			demand_type TEXT NOT NULL DEFAULT 'flexible',
			priority TEXT NOT NULL DEFAULT 'medium',
			status TEXT NOT NULL DEFAULT 'pending',
			recurrence_type TEXT NOT NULL DEFAULT 'none',
			recurrence_interval INTEGER DEFAULT 0,
			recurrence_days TEXT DEFAULT '',
			recurrence_until DATETIME,
			recurrence_count INTEGER DEFAULT 0,
			recurrence_parent_id INTEGER DEFAULT 0,
			completed_at DATETIME,
			actual_end_time DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_user_id ON calendar_blocks(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_start ON calendar_blocks(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_parent ON calendar_blocks(recurrence_parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_status ON calendar_blocks(status)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			message TEXT DEFAULT '',
			block_id INTEGER DEFAULT 0,
			read_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id)`,
		// Sent-reminder ledger: one row per (block, threshold) dispatch.
		`CREATE TABLE IF NOT EXISTS sent_reminders (
			block_id INTEGER NOT NULL,
			threshold INTEGER NOT NULL,
			sent_at DATETIME NOT NULL,
			PRIMARY KEY (block_id, threshold)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sent_reminders_sent_at ON sent_reminders(sent_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("exec migration: %w", err)
			}
		}
	}
	return nil
}

// === Calendar Blocks ===

const blockColumns = `id, user_id, title, description, color, source_uid,
	start_time, end_time, demand_type, priority, status,
	recurrence_type, recurrence_interval, recurrence_days, recurrence_until, recurrence_count,
	recurrence_parent_id, completed_at, actual_end_time, created_at, updated_at`

func scanBlock(row interface{ Scan(...any) error }) (*domain.CalendarBlock, error) {
	b := &domain.CalendarBlock{}
	var recInterval, recCount int
	var recDays string
	var recUntil sql.NullTime
	err := row.Scan(
		&b.ID, &b.UserID, &b.Title, &b.Description, &b.Color, &b.SourceUID,
		&b.StartTime, &b.EndTime, &b.DemandType, &b.Priority, &b.Status,
		&b.RecurrenceType, &recInterval, &recDays, &recUntil, &recCount,
		&b.RecurrenceParentID, &b.CompletedAt, &b.ActualEndTime, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if b.RecurrenceType != domain.RecurrenceNone && b.RecurrenceType != "" {
		rule := &domain.RecurrenceRule{
			Frequency:  b.RecurrenceType,
			Interval:   recInterval,
			DaysOfWeek: parseWeekdays(recDays),
			Count:      recCount,
		}
		if recUntil.Valid {
			until := recUntil.Time
			rule.Until = &until
		}
		b.RecurrenceRule = rule
	}
	return b, nil
}

func ruleFields(b *domain.CalendarBlock) (interval int, days string, until *time.Time, count int) {
	if b.RecurrenceRule == nil {
		return 0, "", nil, 0
	}
	r := b.RecurrenceRule
	return r.Interval, formatWeekdays(r.DaysOfWeek), r.Until, r.Count
}

func formatWeekdays(days []time.Weekday) string {
	if len(days) == 0 {
		return ""
	}
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, fmt.Sprintf("%d", int(d)))
	}
	return strings.Join(parts, ",")
}

func parseWeekdays(s string) []time.Weekday {
	if s == "" {
		return nil
	}
	var days []time.Weekday
	for _, part := range strings.Split(s, ",") {
		var d int
		if _, err := fmt.Sscanf(strings.TrimSpace(part), "%d", &d); err == nil {
			days = append(days, time.Weekday(d))
		}
	}
	return days
}

// CreateBlock inserts a new block and assigns its ID.
func (s *Storage) CreateBlock(b *domain.CalendarBlock) error {
	if b.RecurrenceType == "" {
		b.RecurrenceType = domain.RecurrenceNone
	}
	recInterval, recDays, recUntil, recCount := ruleFields(b)
	now := time.Now()
	res, err := s.db.Exec(
		`INSERT INTO calendar_blocks (user_id, title, description, color, source_uid,
			start_time, end_time, demand_type, priority, status,
			recurrence_type, recurrence_interval, recurrence_days, recurrence_until, recurrence_count,
			recurrence_parent_id, completed_at, actual_end_time, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.UserID, b.Title, b.Description, b.Color, b.SourceUID,
		b.StartTime, b.EndTime, b.DemandType, b.Priority, b.Status,
		b.RecurrenceType, recInterval, recDays, recUntil, recCount,
		b.RecurrenceParentID, b.CompletedAt, b.ActualEndTime, now, now,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now
	return nil
}

// CreateBlocks inserts generated instances in one transaction.
func (s *Storage) CreateBlocks(blocks []*domain.CalendarBlock) error {
	if len(blocks) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO calendar_blocks (user_id, title, description, color, source_uid,
			start_time, end_time, demand_type, priority, status,
			recurrence_type, recurrence_interval, recurrence_days, recurrence_until, recurrence_count,
			recurrence_parent_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, b := range blocks {
		if b.RecurrenceType == "" {
			b.RecurrenceType = domain.RecurrenceNone
		}
		recInterval, recDays, recUntil, recCount := ruleFields(b)
		res, err := stmt.Exec(
			b.UserID, b.Title, b.Description, b.Color, b.SourceUID,
			b.StartTime, b.EndTime, b.DemandType, b.Priority, b.Status,
			b.RecurrenceType, recInterval, recDays, recUntil, recCount,
			b.RecurrenceParentID, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert block: %w", err)
		}
		id, _ := res.LastInsertId()
		b.ID = id
		b.CreatedAt = now
		b.UpdatedAt = now
	}

	return tx.Commit()
}

// GetBlock returns a block by ID, or (nil, nil) when it does not exist.
func (s *Storage) GetBlock(id int64) (*domain.CalendarBlock, error) {
	b, err := scanBlock(s.db.QueryRow(
		`SELECT `+blockColumns+` FROM calendar_blocks WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

// ListBlocksInRange returns a user's blocks starting within [from, to).
func (s *Storage) ListBlocksInRange(userID int64, from, to time.Time) ([]*domain.CalendarBlock, error) {
	rows, err := s.db.Query(
		`SELECT `+blockColumns+` FROM calendar_blocks
		 WHERE user_id = ? AND start_time >= ? AND start_time < ?
		 ORDER BY start_time ASC`,
		userID, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []*domain.CalendarBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// ListUpcomingBlocks returns pending/in-progress blocks starting within the
// next lookahead window. This is the reminder scheduler's tick query.
func (s *Storage) ListUpcomingBlocks(userID int64, now time.Time, lookahead time.Duration) ([]*domain.CalendarBlock, error) {
	rows, err := s.db.Query(
		`SELECT `+blockColumns+` FROM calendar_blocks
		 WHERE user_id = ? AND status IN (?, ?) AND start_time >= ? AND start_time <= ?
		 ORDER BY start_time ASC`,
		userID, domain.StatusPending, domain.StatusInProgress, now, now.Add(lookahead),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []*domain.CalendarBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// GetBlockBySourceUID returns a block linked to an external record.
func (s *Storage) GetBlockBySourceUID(userID int64, sourceUID string) (*domain.CalendarBlock, error) {
	b, err := scanBlock(s.db.QueryRow(
		`SELECT `+blockColumns+` FROM calendar_blocks WHERE user_id = ? AND source_uid = ?`,
		userID, sourceUID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

// UpdateBlockTimes moves a block to a new span. Each call is an independent
// last-write-wins field update.
func (s *Storage) UpdateBlockTimes(id int64, start, end time.Time) error {
	res, err := s.db.Exec(
		`UPDATE calendar_blocks SET start_time = ?, end_time = ?, updated_at = ? WHERE id = ?`,
		start, end, time.Now(), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("block %d not found", id)
	}
	return nil
}

// UpdateBlockStatus sets a block's status.
func (s *Storage) UpdateBlockStatus(id int64, status domain.Status) error {
	_, err := s.db.Exec(
		`UPDATE calendar_blocks SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id,
	)
	return err
}

// CompleteBlock records the completion transition. This is the only writer
// of completed_at and actual_end_time.
func (s *Storage) CompleteBlock(id int64, completedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE calendar_blocks SET status = ?, completed_at = ?, actual_end_time = ?, updated_at = ?
		 WHERE id = ?`,
		domain.StatusCompleted, completedAt, completedAt, time.Now(), id,
	)
	return err
}

// DeleteBlock deletes a single block. Instances generated from it keep
// their parent reference; the cascade is DeleteBlocksByParent.
func (s *Storage) DeleteBlock(id int64) error {
	_, err := s.db.Exec(`DELETE FROM calendar_blocks WHERE id = ?`, id)
	return err
}

// DeleteBlocksByParent deletes all instances generated from the given parent.
func (s *Storage) DeleteBlocksByParent(parentID int64) error {
	_, err := s.db.Exec(`DELETE FROM calendar_blocks WHERE recurrence_parent_id = ?`, parentID)
	return err
}

// === Notifications ===

// CreateNotification persists a durable in-app notification record.
func (s *Storage) CreateNotification(userID int64, title, message string, blockID int64) error {
	_, err := s.db.Exec(
		`INSERT INTO notifications (user_id, title, message, block_id) VALUES (?, ?, ?, ?)`,
		userID, title, message, blockID,
	)
	return err
}

// ListNotifications returns a user's notifications, newest first.
func (s *Storage) ListNotifications(userID int64, limit int) ([]*domain.Notification, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, title, message, block_id, read_at, created_at
		 FROM notifications WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		n := &domain.Notification{}
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.BlockID, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// === Sent-Reminder Ledger ===

// HasSentReminder reports whether a (block, threshold) pair was dispatched.
func (s *Storage) HasSentReminder(blockID int64, threshold int) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM sent_reminders WHERE block_id = ? AND threshold = ?`,
		blockID, threshold,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkReminderSent records a dispatch. Replays of the same pair are no-ops.
func (s *Storage) MarkReminderSent(blockID int64, threshold int) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO sent_reminders (block_id, threshold, sent_at) VALUES (?, ?, ?)`,
		blockID, threshold, time.Now(),
	)
	return err
}

// PruneSentReminders drops ledger entries older than the cutoff, whether or
// not their block still exists.
func (s *Storage) PruneSentReminders(olderThan time.Time) error {
	_, err := s.db.Exec(`DELETE FROM sent_reminders WHERE sent_at < ?`, olderThan)
	return err
}
