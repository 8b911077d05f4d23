package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kelvyncastro/kairoapp-sub002/internal/clients/caldav"
	"github.com/kelvyncastro/kairoapp-sub002/internal/domain"
	"github.com/kelvyncastro/kairoapp-sub002/internal/engine"
)

// BlockStore is the persistence surface the service needs. The sqlite
// Storage satisfies it; tests substitute a fake.
type BlockStore interface {
	GetBlock(id int64) (*domain.CalendarBlock, error)
	ListBlocksInRange(userID int64, from, to time.Time) ([]*domain.CalendarBlock, error)
	GetBlockBySourceUID(userID int64, sourceUID string) (*domain.CalendarBlock, error)
	CreateBlock(b *domain.CalendarBlock) error
	CreateBlocks(blocks []*domain.CalendarBlock) error
	UpdateBlockTimes(id int64, start, end time.Time) error
	UpdateBlockStatus(id int64, status domain.Status) error
	CompleteBlock(id int64, completedAt time.Time) error
	DeleteBlock(id int64) error
	DeleteBlocksByParent(parentID int64) error
}

type BlockService struct {
	store  BlockStore
	remote *caldav.Client // nil when CalDAV is not configured
}

func NewBlockService(store BlockStore, remote *caldav.Client) *BlockService {
	return &BlockService{store: store, remote: remote}
}

// Create validates and persists a block. When the block carries a
// recurrence rule its instances are expanded and bulk-inserted in the same
// call; the returned count is the number of instances actually created.
func (s *BlockService) Create(b *domain.CalendarBlock) (*domain.CalendarBlock, int, error) {
	b.Title = strings.TrimSpace(b.Title)
	if b.Title == "" {
		return nil, 0, fmt.Errorf("block title cannot be empty")
	}
	if b.Status == "" {
		b.Status = domain.StatusPending
	}
	if b.DemandType == "" {
		b.DemandType = domain.DemandFlexible
	}
	if b.Priority == "" {
		b.Priority = domain.PriorityMedium
	}
	if err := b.Validate(); err != nil {
		return nil, 0, err
	}

	if err := s.store.CreateBlock(b); err != nil {
		return nil, 0, fmt.Errorf("create block: %w", err)
	}

	if b.RecurrenceType == domain.RecurrenceNone || b.RecurrenceType == "" {
		return b, 0, nil
	}

	instances, err := engine.Expand(b, b.RecurrenceRule)
	if err != nil {
		return nil, 0, fmt.Errorf("expand recurrence: %w", err)
	}
	if err := s.store.CreateBlocks(instances); err != nil {
		return nil, 0, fmt.Errorf("insert instances: %w", err)
	}

	return b, len(instances), nil
}

func (s *BlockService) Get(blockID int64) (*domain.CalendarBlock, error) {
	return s.store.GetBlock(blockID)
}

// ListDay returns a user's blocks for a calendar day.
func (s *BlockService) ListDay(userID int64, date time.Time) ([]*domain.CalendarBlock, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return s.store.ListBlocksInRange(userID, dayStart, dayStart.AddDate(0, 0, 1))
}

// Complete marks a block done. This transition is the only writer of the
// completion metadata.
func (s *BlockService) Complete(blockID, userID int64) error {
	block, err := s.ownedBlock(blockID, userID)
	if err != nil {
		return err
	}
	return s.store.CompleteBlock(block.ID, time.Now())
}

// Cancel marks a block cancelled, excluding it from future reorganization.
func (s *BlockService) Cancel(blockID, userID int64) error {
	block, err := s.ownedBlock(blockID, userID)
	if err != nil {
		return err
	}
	return s.store.UpdateBlockStatus(block.ID, domain.StatusCancelled)
}

// Postpone moves a block to the same time on the next day.
func (s *BlockService) Postpone(blockID, userID int64) error {
	block, err := s.ownedBlock(blockID, userID)
	if err != nil {
		return err
	}
	return s.store.UpdateBlockTimes(block.ID,
		block.StartTime.AddDate(0, 0, 1), block.EndTime.AddDate(0, 0, 1))
}

// Delete removes a block. Deleting a parent never cascades implicitly;
// includeRecurring opts in to deleting every instance generated from it.
func (s *BlockService) Delete(blockID, userID int64, includeRecurring bool) error {
	block, err := s.ownedBlock(blockID, userID)
	if err != nil {
		return err
	}

	if includeRecurring {
		if err := s.store.DeleteBlocksByParent(block.ID); err != nil {
			return fmt.Errorf("delete instances: %w", err)
		}
	}
	return s.store.DeleteBlock(block.ID)
}

func (s *BlockService) ownedBlock(blockID, userID int64) (*domain.CalendarBlock, error) {
	block, err := s.store.GetBlock(blockID)
	if err != nil {
		return nil, fmt.Errorf("get block: %w", err)
	}
	if block == nil {
		return nil, fmt.Errorf("block not found")
	}
	if block.UserID != userID {
		return nil, fmt.Errorf("access denied")
	}
	return block, nil
}

// ReorganizeDay repacks a user's day and applies the placements through the
// store, strictly in placement order. On a store error mid-apply the moved
// blocks stay moved; the result plus applied count tell the caller how far
// it got.
func (s *BlockService) ReorganizeDay(userID int64, date time.Time, cfg domain.WorkdayConfig) (engine.ReorganizeResult, int, error) {
	blocks, err := s.ListDay(userID, date)
	if err != nil {
		return engine.ReorganizeResult{}, 0, fmt.Errorf("list day blocks: %w", err)
	}

	result := engine.Reorganize(date, blocks, cfg)

	applied, err := engine.ApplyReorganization(result, s.store.UpdateBlockTimes)
	if err != nil {
		return result, applied, fmt.Errorf("apply reorganization: %w", err)
	}

	return result, applied, nil
}

// SuggestPostponement proposes next-day dates for blocks that did not fit.
// Nothing is persisted; the caller applies accepted suggestions via Postpone.
func (s *BlockService) SuggestPostponement(removed []*domain.CalendarBlock, date time.Time) []engine.PostponementSuggestion {
	return engine.SuggestPostponement(removed, date)
}

// ImportBusyEvents pulls the day's events from the remote calendar and
// stores them as fixed obstacle blocks, deduplicated by source UID. All-day
// events are skipped: they carry no usable time span for packing.
func (s *BlockService) ImportBusyEvents(ctx context.Context, userID int64, date time.Time) (int, error) {
	if s.remote == nil || !s.remote.IsConfigured() {
		return 0, nil
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	events, err := s.remote.GetEvents(ctx, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return 0, fmt.Errorf("fetch remote events: %w", err)
	}

	imported := 0
	for _, ev := range events {
		if ev.AllDay || !ev.EndTime.After(ev.StartTime) {
			continue
		}

		existing, err := s.store.GetBlockBySourceUID(userID, ev.UID)
		if err != nil {
			return imported, fmt.Errorf("lookup source uid: %w", err)
		}
		if existing != nil {
			continue
		}

		block := &domain.CalendarBlock{
			UserID:      userID,
			Title:       ev.Summary,
			Description: ev.Description,
			SourceUID:   ev.UID,
			StartTime:   ev.StartTime,
			EndTime:     ev.EndTime,
			DemandType:  domain.DemandFixed,
			Priority:    domain.PriorityHigh,
			Status:      domain.StatusPending,
		}
		if err := s.store.CreateBlock(block); err != nil {
			return imported, fmt.Errorf("import event %s: %w", ev.UID, err)
		}
		imported++
	}

	return imported, nil
}

// PublishBlock writes a block's span to the remote calendar as a VEVENT.
func (s *BlockService) PublishBlock(ctx context.Context, blockID, userID int64) error {
	if s.remote == nil || !s.remote.IsConfigured() {
		return fmt.Errorf("remote calendar not configured")
	}

	block, err := s.ownedBlock(blockID, userID)
	if err != nil {
		return err
	}

	return s.remote.PutEvent(ctx, &caldav.RemoteEvent{
		UID:         fmt.Sprintf("kairo-block-%d", block.ID),
		Summary:     block.Title,
		Description: block.Description,
		StartTime:   block.StartTime,
		EndTime:     block.EndTime,
	})
}
