// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the aggregate queries behind the
// dashboard overview plus the system_stats snapshot and message_limits
// access. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-line-crm/internal/domain"
)

// Overview aggregates the headline counters shown on the dashboard.
type Overview struct {
	TotalUsers    int64 `json:"total_users"`
	ActiveUsers   int64 `json:"active_users"`
	TotalMessages int64 `json:"total_messages"`
	TotalUnread   int64 `json:"total_unread"`
}

// OverviewStats computes the dashboard overview with four lightweight
// aggregate queries. An empty database yields all zeros.
func OverviewStats(ctx context.Context, db *gorm.DB) (Overview, error) {
	var o Overview

	if err := db.WithContext(ctx).Model(&domain.User{}).Count(&o.TotalUsers).Error; err != nil {
		return Overview{}, err
	}
	if err := db.WithContext(ctx).Model(&domain.User{}).
		Where("is_active = ?", true).Count(&o.ActiveUsers).Error; err != nil {
		return Overview{}, err
	}
	if err := db.WithContext(ctx).Model(&domain.Message{}).Count(&o.TotalMessages).Error; err != nil {
		return Overview{}, err
	}

	// COALESCE: SUM over zero rows is NULL in SQLite.
	var row struct{ Total int64 }
	if err := db.WithContext(ctx).Model(&domain.User{}).
		Select("COALESCE(SUM(unread_count), 0) AS total").
		Scan(&row).Error; err != nil {
		return Overview{}, err
	}
	o.TotalUnread = row.Total

	return o, nil
}

// SetSystemStat upserts one named counter in system_stats, keyed by
// stat_name.
func SetSystemStat(ctx context.Context, db *gorm.DB, name string, value int64) error {
	stat := domain.SystemStat{StatName: name, StatValue: value}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stat_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"stat_value", "updated_at"}),
		}).
		Create(&stat).Error
}

// GetSystemStat returns one named counter, or ErrNotFound.
func GetSystemStat(ctx context.Context, db *gorm.DB, name string) (int64, error) {
	var stat domain.SystemStat
	err := db.WithContext(ctx).Where("stat_name = ?", name).First(&stat).Error
	if err != nil {
		return 0, err
	}
	return stat.StatValue, nil
}

// ListMessageLimits returns all configured capacity limits in a stable
// order.
func ListMessageLimits(ctx context.Context, db *gorm.DB) ([]domain.MessageLimit, error) {
	var limits []domain.MessageLimit
	err := db.WithContext(ctx).Order("limit_type ASC").Find(&limits).Error
	return limits, err
}
