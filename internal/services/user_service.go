// Package services – UserService
//
// This file implements UserService, the application-level component behind
// the dashboard API. It validates CRM edits (tags, notes, ERP correlation
// fields), pages through users and their message history, resets the unread
// counter on an explicit mark-read, performs on-demand profile refreshes
// against the messaging platform, and streams the user table as CSV with
// columns ordered by the schema registry.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// user identifiers and pagination parameters where applicable.
package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-line-crm/internal/domain"
	"github.com/tbourn/go-line-crm/internal/line"
	"github.com/tbourn/go-line-crm/internal/repo"
	"github.com/tbourn/go-line-crm/internal/schema"
)

// UserRepo defines the repository contract required by UserService.
type UserRepo interface {
	// Get fetches a user by internal ID.
	Get(ctx context.Context, id uint) (*domain.User, error)
	// Count returns the number of users matching the filter.
	Count(ctx context.Context, f repo.UserFilter) (int64, error)
	// ListPage returns a page of users matching the filter.
	ListPage(ctx context.Context, f repo.UserFilter, offset, limit int) ([]domain.User, error)
	// UpdateCRM overwrites the dashboard-owned CRM fields.
	UpdateCRM(ctx context.Context, id uint, tags []string, notes, erpCode, erpName *string) error
	// MarkRead resets the unread counter to zero.
	MarkRead(ctx context.Context, id uint) error
	// UpdateProfile stores refreshed profile data.
	UpdateProfile(ctx context.Context, id uint, displayName, pictureURL, statusMessage, lang *string) error
	// CountMessages returns the number of messages owned by a user.
	CountMessages(ctx context.Context, userID uint) (int64, error)
	// ListMessagesPage returns a page of a user's messages in timeline order.
	ListMessagesPage(ctx context.Context, userID uint, offset, limit int) ([]domain.Message, error)
}

// UserService provides the dashboard's read and CRM-edit operations.
type UserService struct {
	Repo     UserRepo
	Profiles line.ProfileClient

	// MaxTagLen caps individual tag length in runes (default 64).
	MaxTagLen int
}

// NewUserService constructs a UserService with default limits.
func NewUserService(r UserRepo, profiles line.ProfileClient) *UserService {
	return &UserService{Repo: r, Profiles: profiles, MaxTagLen: 64}
}

// Get returns one user or ErrUserNotFound.
func (s *UserService) Get(ctx context.Context, id uint) (*domain.User, error) {
	u, err := s.Repo.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// ListPage returns a page of users and the total count for the filter.
// It applies defaults for invalid page/pageSize.
func (s *UserService) ListPage(ctx context.Context, f repo.UserFilter, page, pageSize int) ([]domain.User, int64, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.User{}, 0, nil
	}

	items, err := s.Repo.ListPage(ctx, f, offset, pageSize)
	return items, total, err
}

// UpdateCRM validates and stores the dashboard-owned fields. Tags are
// trimmed and deduplicated preserving order; a tag that is blank after
// trimming is rejected.
func (s *UserService) UpdateCRM(ctx context.Context, id uint, tags []string, notes, erpCode, erpName *string) (*domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "UpdateCRM",
		trace.WithAttributes(attribute.Int("user.id", int(id))),
	)
	defer span.End()

	clean, err := s.normalizeTags(tags)
	if err != nil {
		return nil, err
	}

	if err := s.Repo.UpdateCRM(ctx, id, clean, notes, erpCode, erpName); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

// MarkRead resets the unread counter. It is the dashboard's only write to
// the counters the pipeline maintains.
func (s *UserService) MarkRead(ctx context.Context, id uint) error {
	err := s.Repo.MarkRead(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// RefreshProfile synchronously fetches the contact's current profile from
// the messaging platform and stores it. A contact that blocked the bot (or
// deleted their account) maps to ErrContactUnreachable.
func (s *UserService) RefreshProfile(ctx context.Context, id uint) (*domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "RefreshProfile",
		trace.WithAttributes(attribute.Int("user.id", int(id))),
	)
	defer span.End()

	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	p, err := s.Profiles.GetProfile(ctx, u.LineUserID)
	if err != nil {
		if errors.Is(err, line.ErrProfileNotFound) {
			return nil, ErrContactUnreachable
		}
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	if err := s.Repo.UpdateProfile(ctx, id,
		optional(p.DisplayName),
		optional(p.PictureURL),
		optional(p.StatusMessage),
		normalizeLanguage(p.Language),
	); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// RefreshResult is the per-user entry of a batch profile refresh.
type RefreshResult struct {
	UserID uint   `json:"user_id"`
	OK     bool   `json:"ok"`
	Err    string `json:"error,omitempty"`
}

// BatchRefresh refreshes several profiles sequentially (the platform rate
// limits the Profile API; fanning out buys nothing here) and reports one
// outcome per requested user.
func (s *UserService) BatchRefresh(ctx context.Context, ids []uint) []RefreshResult {
	out := make([]RefreshResult, 0, len(ids))
	for _, id := range ids {
		res := RefreshResult{UserID: id, OK: true}
		if _, err := s.RefreshProfile(ctx, id); err != nil {
			res.OK = false
			res.Err = err.Error()
		}
		out = append(out, res)
	}
	return out
}

// ListMessages returns a page of a user's message history.
func (s *UserService) ListMessages(ctx context.Context, userID uint, page, pageSize int) ([]domain.Message, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}

	if _, err := s.Get(ctx, userID); err != nil {
		return nil, 0, err
	}

	total, err := s.Repo.CountMessages(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}

	items, err := s.Repo.ListMessagesPage(ctx, userID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// exportPageSize is the page size ExportCSV walks the table with.
const exportPageSize = 200

// ExportCSV streams all users matching the filter as CSV. The header row
// and the cell order follow the schema registry's definition of the users
// table, so exports stay aligned with the documented schema.
func (s *UserService) ExportCSV(ctx context.Context, w io.Writer, f repo.UserFilter) error {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "ExportCSV")
	defer span.End()

	cols, err := schema.Columns(schema.TableUsers)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return err
	}

	for offset := 0; ; offset += exportPageSize {
		page, err := s.Repo.ListPage(ctx, f, offset, exportPageSize)
		if err != nil {
			return err
		}
		for i := range page {
			if err := cw.Write(userRow(&page[i], cols)); err != nil {
				return err
			}
		}
		if len(page) < exportPageSize {
			break
		}
	}

	cw.Flush()
	return cw.Error()
}

// userRow renders one user as CSV cells in the given column order.
func userRow(u *domain.User, cols []string) []string {
	out := make([]string, len(cols))
	for i, col := range cols {
		out[i] = userCell(u, col)
	}
	return out
}

func userCell(u *domain.User, col string) string {
	switch col {
	case "id":
		return strconv.FormatUint(uint64(u.ID), 10)
	case "line_user_id":
		return u.LineUserID
	case "display_name":
		return deref(u.DisplayName)
	case "picture_url":
		return deref(u.PictureURL)
	case "status_message":
		return deref(u.StatusMessage)
	case "language":
		return deref(u.Language)
	case "erp_bi_code":
		return deref(u.ERPBiCode)
	case "erp_bi_name":
		return deref(u.ERPBiName)
	case "is_active":
		return strconv.FormatBool(u.IsActive)
	case "first_message_at":
		return formatTime(u.FirstMessageAt)
	case "last_message_at":
		return formatTime(u.LastMessageAt)
	case "message_count":
		return strconv.Itoa(u.MessageCount)
	case "unread_count":
		return strconv.Itoa(u.UnreadCount)
	case "tags":
		return strings.Join(u.Tags, ";")
	case "notes":
		return deref(u.Notes)
	case "created_at":
		return u.CreatedAt.UTC().Format(time.RFC3339)
	case "updated_at":
		return u.UpdatedAt.UTC().Format(time.RFC3339)
	default:
		return ""
	}
}

// normalizeTags trims, rejects blanks, clips overlong tags, and removes
// duplicates while preserving first-seen order.
func (s *UserService) normalizeTags(tags []string) ([]string, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	maxLen := s.MaxTagLen
	if maxLen <= 0 {
		maxLen = 64
	}

	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, raw := range tags {
		tag := strings.TrimSpace(raw)
		if tag == "" {
			return nil, ErrInvalidTag
		}
		if runes := []rune(tag); len(runes) > maxLen {
			tag = string(runes[:maxLen])
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
