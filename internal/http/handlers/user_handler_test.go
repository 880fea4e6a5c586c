package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-line-crm/internal/domain"
	"github.com/tbourn/go-line-crm/internal/line"
	"github.com/tbourn/go-line-crm/internal/repo"
	"github.com/tbourn/go-line-crm/internal/services"
)

// repoShim adapts repo free functions to services.UserRepo for handler tests.
type repoShim struct{ db *gorm.DB }

func (s repoShim) Get(ctx context.Context, id uint) (*domain.User, error) {
	return repo.GetUser(ctx, s.db, id)
}
func (s repoShim) Count(ctx context.Context, f repo.UserFilter) (int64, error) {
	return repo.CountUsers(ctx, s.db, f)
}
func (s repoShim) ListPage(ctx context.Context, f repo.UserFilter, offset, limit int) ([]domain.User, error) {
	return repo.ListUsersPage(ctx, s.db, f, offset, limit)
}
func (s repoShim) UpdateCRM(ctx context.Context, id uint, tags []string, notes, erpCode, erpName *string) error {
	return repo.UpdateUserCRM(ctx, s.db, id, tags, notes, erpCode, erpName)
}
func (s repoShim) MarkRead(ctx context.Context, id uint) error {
	return repo.MarkUserRead(ctx, s.db, id)
}
func (s repoShim) UpdateProfile(ctx context.Context, id uint, displayName, pictureURL, statusMessage, lang *string) error {
	return repo.UpdateUserProfile(ctx, s.db, id, displayName, pictureURL, statusMessage, lang)
}
func (s repoShim) CountMessages(ctx context.Context, userID uint) (int64, error) {
	return repo.CountMessages(ctx, s.db, userID)
}
func (s repoShim) ListMessagesPage(ctx context.Context, userID uint, offset, limit int) ([]domain.Message, error) {
	return repo.ListMessagesPage(ctx, s.db, userID, offset, limit)
}

// stubProfiles serves canned profiles; unknown IDs report not-found.
type stubProfiles struct {
	profiles map[string]line.Profile
}

func (s *stubProfiles) GetProfile(_ context.Context, lineUserID string) (*line.Profile, error) {
	p, ok := s.profiles[lineUserID]
	if !ok {
		return nil, line.ErrProfileNotFound
	}
	return &p, nil
}

type handlerEnv struct {
	db *gorm.DB
	r  *gin.Engine
}

func newHandlerEnv(t *testing.T, profiles map[string]line.Profile) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := filepath.Join(t.TempDir(), "handlers.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	svc := services.NewUserService(repoShim{db: db}, &stubProfiles{profiles: profiles})
	uh := NewUserHandler(svc)
	sh := &StatsHandler{Svc: &services.StatsService{DB: db}}

	r := gin.New()
	api := r.Group("/api/v1")
	{
		api.GET("/users", uh.List)
		api.GET("/users/export", uh.Export)
		api.POST("/users/batch-refresh", uh.BatchRefresh)
		api.GET("/users/:id", uh.Get)
		api.PUT("/users/:id/crm", uh.UpdateCRM)
		api.POST("/users/:id/read", uh.MarkRead)
		api.POST("/users/:id/refresh-profile", uh.RefreshProfile)
		api.GET("/users/:id/messages", uh.Messages)
		api.GET("/stats", sh.Overview)
	}
	return &handlerEnv{db: db, r: r}
}

func (e *handlerEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *handlerEnv) seedUser(t *testing.T, lineID string) *domain.User {
	t.Helper()
	u := &domain.User{LineUserID: lineID, IsActive: true}
	if err := repo.CreateUser(context.Background(), e.db, u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func TestUserHandler_GetNotFoundAndOK(t *testing.T) {
	env := newHandlerEnv(t, nil)

	if w := env.do(t, http.MethodGet, "/api/v1/users/99", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing contact: status = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/users/abc", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric id: status = %d, want 400", w.Code)
	}

	u := env.seedUser(t, "U1")
	w := env.do(t, http.MethodGet, "/api/v1/users/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got domain.User
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if got.ID != u.ID || got.LineUserID != "U1" {
		t.Fatalf("unexpected body: %+v", got)
	}
}

func TestUserHandler_List(t *testing.T) {
	env := newHandlerEnv(t, nil)
	env.seedUser(t, "U1")
	env.seedUser(t, "U2")

	w := env.do(t, http.MethodGet, "/api/v1/users?page=1&page_size=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var page PageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("json: %v", err)
	}
	if page.Total != 2 || page.Page != 1 || page.PageSize != 1 {
		t.Fatalf("unexpected page meta: %+v", page)
	}
	items, ok := page.Items.([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("unexpected items: %#v", page.Items)
	}
}

func TestUserHandler_UpdateCRM(t *testing.T) {
	env := newHandlerEnv(t, nil)
	env.seedUser(t, "U1")

	w := env.do(t, http.MethodPut, "/api/v1/users/1/crm", CRMUpdateRequest{
		Tags:      []string{" vip ", "wholesale"},
		Notes:     strptr("key account"),
		ERPBiCode: strptr("BI-7"),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body=%s", w.Code, w.Body.String())
	}
	var got domain.User
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "vip" {
		t.Fatalf("tags = %v", got.Tags)
	}
	if got.Notes == nil || *got.Notes != "key account" {
		t.Fatalf("notes = %v", got.Notes)
	}

	// Blank tag rejected
	w = env.do(t, http.MethodPut, "/api/v1/users/1/crm", CRMUpdateRequest{Tags: []string{"  "}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank tag: status = %d, want 400", w.Code)
	}

	// Unknown contact
	w = env.do(t, http.MethodPut, "/api/v1/users/42/crm", CRMUpdateRequest{Tags: []string{"x"}})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown contact: status = %d, want 404", w.Code)
	}
}

func TestUserHandler_MarkRead(t *testing.T) {
	env := newHandlerEnv(t, nil)
	u := env.seedUser(t, "U1")
	env.db.Model(u).Update("unread_count", 9)

	w := env.do(t, http.MethodPost, "/api/v1/users/1/read", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	var reread domain.User
	env.db.First(&reread, u.ID)
	if reread.UnreadCount != 0 {
		t.Fatalf("unread = %d, want 0", reread.UnreadCount)
	}
}

func TestUserHandler_RefreshProfile(t *testing.T) {
	env := newHandlerEnv(t, map[string]line.Profile{
		"U1": {DisplayName: "Alice", Language: "ja"},
	})
	env.seedUser(t, "U1")
	env.seedUser(t, "U2") // not reachable via profiles stub

	w := env.do(t, http.MethodPost, "/api/v1/users/1/refresh-profile", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body=%s", w.Code, w.Body.String())
	}
	var got domain.User
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if got.DisplayName == nil || *got.DisplayName != "Alice" {
		t.Fatalf("display name = %v", got.DisplayName)
	}

	w = env.do(t, http.MethodPost, "/api/v1/users/2/refresh-profile", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("blocked contact: status = %d, want 422", w.Code)
	}
}

func TestUserHandler_BatchRefresh(t *testing.T) {
	env := newHandlerEnv(t, map[string]line.Profile{"U1": {DisplayName: "Alice"}})
	env.seedUser(t, "U1")
	env.seedUser(t, "U2")

	w := env.do(t, http.MethodPost, "/api/v1/users/batch-refresh", BatchRefreshRequest{UserIDs: []uint{1, 2}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var out []services.RefreshResult
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(out) != 2 || !out[0].OK || out[1].OK {
		t.Fatalf("unexpected results: %+v", out)
	}

	w = env.do(t, http.MethodPost, "/api/v1/users/batch-refresh", BatchRefreshRequest{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty ids: status = %d, want 400", w.Code)
	}
}

func TestUserHandler_Messages(t *testing.T) {
	env := newHandlerEnv(t, nil)
	u := env.seedUser(t, "U1")
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"m1", "m2", "m3"} {
		if err := repo.CreateMessage(ctx, env.db, &domain.Message{
			LineMessageID: id, UserID: u.ID, MessageType: domain.MessageText,
			TextContent: strptr("msg"), Timestamp: base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	w := env.do(t, http.MethodGet, "/api/v1/users/1/messages?page=1&page_size=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var page PageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("json: %v", err)
	}
	if page.Total != 3 {
		t.Fatalf("total = %d, want 3", page.Total)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/users/9/messages", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown contact: status = %d, want 404", w.Code)
	}
}

func TestUserHandler_Export(t *testing.T) {
	env := newHandlerEnv(t, nil)
	env.seedUser(t, "U1")
	env.seedUser(t, "U2")

	w := env.do(t, http.MethodGet, "/api/v1/users/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Fatalf("content disposition = %q", cd)
	}

	rows, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "id" || rows[0][1] != "line_user_id" {
		t.Fatalf("header = %v", rows[0])
	}
}

func TestStatsHandler_Overview(t *testing.T) {
	env := newHandlerEnv(t, nil)
	env.seedUser(t, "U1")

	w := env.do(t, http.MethodGet, "/api/v1/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var out services.OverviewResult
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.TotalUsers != 1 || out.ActiveUsers != 1 {
		t.Fatalf("unexpected overview: %+v", out.Overview)
	}
}

func strptr(s string) *string { return &s }
