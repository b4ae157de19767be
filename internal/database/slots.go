package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/contributions"
)

// Ensure SlotStorage implements the port.
var _ contributions.Storage = (*SlotStorage)(nil)

// StorageSlot persists one named payload.
type StorageSlot struct {
	Key              string `gorm:"column:slot_key;primaryKey;size:190;not null"`
	PayloadJSON      string `gorm:"column:payload_json;type:text;not null"`
	Revision         int64  `gorm:"column:revision;not null;default:1"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (StorageSlot) TableName() string {
	return "storage_slots"
}

// SlotStorage reads and writes storage slots through GORM.
type SlotStorage struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewSlotStorage wraps db. A nil clock defaults to time.Now.
func NewSlotStorage(db *gorm.DB, clock func() time.Time) (*SlotStorage, error) {
	if db == nil {
		return nil, errors.New("database: db is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &SlotStorage{db: db, clock: clock}, nil
}

// Read returns the payload stored under key.
func (s *SlotStorage) Read(ctx context.Context, key string) ([]byte, bool, error) {
	var slot StorageSlot
	err := s.db.WithContext(ctx).Where("slot_key = ?", key).Take(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("database: read slot: %w", err)
	}
	return []byte(slot.PayloadJSON), true, nil
}

// Write replaces the payload stored under key and increments its revision.
func (s *SlotStorage) Write(ctx context.Context, key string, payload []byte) error {
	updatedAt := s.clock().UTC().Unix()
	return s.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		var existing StorageSlot
		err := transaction.Where("slot_key = ?", key).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return transaction.Create(&StorageSlot{
				Key:              key,
				PayloadJSON:      string(payload),
				Revision:         1,
				UpdatedAtSeconds: updatedAt,
			}).Error
		}
		if err != nil {
			return fmt.Errorf("database: load slot: %w", err)
		}
		return transaction.Model(&StorageSlot{}).
			Where("slot_key = ?", key).
			Updates(map[string]any{
				"payload_json": string(payload),
				"revision":     existing.Revision + 1,
				"updated_at_s": updatedAt,
			}).Error
	})
}

// Revision reports the current revision of key, or zero when absent.
func (s *SlotStorage) Revision(ctx context.Context, key string) (int64, error) {
	var slot StorageSlot
	err := s.db.WithContext(ctx).Where("slot_key = ?", key).Take(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return slot.Revision, nil
}
