// Package services – StatsService
//
// This file implements the dashboard overview: headline counters computed
// from the live tables, the persisted system_stats snapshot, and the
// configured capacity limits.
package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-line-crm/internal/domain"
	"github.com/tbourn/go-line-crm/internal/repo"
)

// System stat names persisted to system_stats.
const (
	StatTotalUsers    = "total_users"
	StatTotalMessages = "total_messages"
)

// OverviewResult is the dashboard overview payload.
type OverviewResult struct {
	repo.Overview
	Limits []domain.MessageLimit `json:"limits"`
}

// StatsService computes the dashboard overview.
type StatsService struct {
	DB *gorm.DB
}

// Overview returns the current headline counters and the configured capacity
// limits. It also refreshes the system_stats snapshot; a failed snapshot
// write is logged, not surfaced — the overview itself is computed live.
func (s *StatsService) Overview(ctx context.Context) (OverviewResult, error) {
	o, err := repo.OverviewStats(ctx, s.DB)
	if err != nil {
		return OverviewResult{}, err
	}

	if err := repo.SetSystemStat(ctx, s.DB, StatTotalUsers, o.TotalUsers); err != nil {
		log.Warn().Err(err).Msg("system_stats snapshot write failed")
	}
	if err := repo.SetSystemStat(ctx, s.DB, StatTotalMessages, o.TotalMessages); err != nil {
		log.Warn().Err(err).Msg("system_stats snapshot write failed")
	}

	limits, err := repo.ListMessageLimits(ctx, s.DB)
	if err != nil {
		return OverviewResult{}, err
	}
	return OverviewResult{Overview: o, Limits: limits}, nil
}
