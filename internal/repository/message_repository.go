package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"anonchat/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, record *model.MessageRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("create message failed: %w", err)
	}
	return nil
}

// ListAll returns every message in display order.
func (r *MessageRepository) ListAll(ctx context.Context) ([]model.MessageRecord, error) {
	var records []model.MessageRecord
	if err := r.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return records, nil
}

func (r *MessageRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.MessageRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count messages failed: %w", err)
	}
	return n, nil
}
