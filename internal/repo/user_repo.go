// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// All functions accept a context and a *gorm.DB handle, making them safe for
// use within transactions or connection-scoped operations. They follow the
// "thin repository" approach: no business logic, only CRUD persistence and
// query composition.
//
// Error semantics:
//   - When a user is not found, functions return ErrNotFound.
//   - CreateUser returns ErrDuplicate when line_user_id already exists,
//     which is how the pipeline resolves concurrent first-message creation.
//   - On other DB errors, the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-line-crm/internal/domain"
)

// UserFilter narrows user listings. Zero values mean "no constraint".
type UserFilter struct {
	// Active filters on the is_active flag when non-nil.
	Active *bool
	// Search matches a substring of display name, ERP code/name, or the
	// LINE user ID.
	Search string
}

func applyUserFilter(q *gorm.DB, f UserFilter) *gorm.DB {
	if f.Active != nil {
		q = q.Where("is_active = ?", *f.Active)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where(
			"display_name LIKE ? OR erp_bi_code LIKE ? OR erp_bi_name LIKE ? OR line_user_id LIKE ?",
			like, like, like, like,
		)
	}
	return q
}

// GetUserByLineID fetches a user by their LINE platform identity.
func GetUserByLineID(ctx context.Context, db *gorm.DB, lineUserID string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).Where("line_user_id = ?", lineUserID).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser fetches a user by internal ID.
func GetUser(ctx context.Context, db *gorm.DB, id uint) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user row. On a line_user_id collision it returns
// ErrDuplicate so the caller can refetch the winner of the race instead of
// failing the event.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// TouchUserMessage applies the per-message user mutation as one atomic
// statement: both counters incremented in SQL and last_message_at moved to
// the event timestamp. Two near-simultaneous messages for the same user
// therefore never lose an increment.
func TouchUserMessage(ctx context.Context, db *gorm.DB, id uint, ts time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"message_count":   gorm.Expr("message_count + 1"),
			"unread_count":    gorm.Expr("unread_count + 1"),
			"last_message_at": ts,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserProfile stores enrichment data fetched from the Profile API.
// Empty strings clear nothing; nil pointers are written as NULL only when
// the platform reported no value.
func UpdateUserProfile(ctx context.Context, db *gorm.DB, id uint, displayName, pictureURL, statusMessage, lang *string) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"display_name":   displayName,
			"picture_url":    pictureURL,
			"status_message": statusMessage,
			"language":       lang,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetUserActive flips the active flag without touching any counter.
func SetUserActive(ctx context.Context, db *gorm.DB, id uint, active bool) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserCRM overwrites the dashboard-owned CRM fields. The Select list
// makes blanking a field possible (plain struct Updates would skip zero
// values).
func UpdateUserCRM(ctx context.Context, db *gorm.DB, id uint, tags []string, notes, erpCode, erpName *string) error {
	res := db.WithContext(ctx).
		Model(&domain.User{ID: id}).
		Select("tags", "notes", "erp_bi_code", "erp_bi_name").
		Updates(domain.User{
			Tags:      tags,
			Notes:     notes,
			ERPBiCode: erpCode,
			ERPBiName: erpName,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkUserRead resets the unread counter to zero. It is the only counter
// write outside the ingestion pipeline.
func MarkUserRead(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Update("unread_count", 0)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUsers returns the number of users matching the filter.
func CountUsers(ctx context.Context, db *gorm.DB, f UserFilter) (int64, error) {
	var total int64
	err := applyUserFilter(db.WithContext(ctx).Model(&domain.User{}), f).Count(&total).Error
	return total, err
}

// ListUsersPage returns a page of users matching the filter, most recently
// contacted first (NULL last_message_at sorts last).
func ListUsersPage(ctx context.Context, db *gorm.DB, f UserFilter, offset, limit int) ([]domain.User, error) {
	var out []domain.User
	err := applyUserFilter(db.WithContext(ctx), f).
		Order("last_message_at IS NULL, last_message_at DESC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
