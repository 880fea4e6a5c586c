// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model, including the duplicate-aware insert the ingestion pipeline's
// idempotency rests on.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-line-crm/internal/domain"
)

// CreateMessage inserts a new message row. A second insert with the same
// line_message_id returns ErrDuplicate; messaging platforms redeliver
// webhook events, and the caller records those as no-op successes.
func CreateMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// CountMessages returns the number of messages for a user.
func CountMessages(ctx context.Context, db *gorm.DB, userID uint) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered deterministically
// (Timestamp ASC, ID ASC).
func ListMessagesPage(ctx context.Context, db *gorm.DB, userID uint, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
