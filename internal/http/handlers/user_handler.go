// Package handlers provides HTTP handler implementations for the public API.
//
// This file implements the dashboard endpoints: contact listing and detail,
// CRM field edits, read-marking, profile refresh (single and batch), message
// history, and CSV export. Handlers stay thin: parameter parsing and status
// mapping here, business rules in services.UserService.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-line-crm/internal/http/middleware"
	"github.com/tbourn/go-line-crm/internal/repo"
	"github.com/tbourn/go-line-crm/internal/services"
	"github.com/tbourn/go-line-crm/internal/utils"
)

// UserHandler exposes the dashboard's contact API.
type UserHandler struct {
	Svc *services.UserService
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(svc *services.UserService) *UserHandler {
	return &UserHandler{Svc: svc}
}

// PageResponse is the standard paginated list envelope.
type PageResponse struct {
	Items    any   `json:"items"`
	Total    int64 `json:"total" example:"137"`
	Page     int   `json:"page" example:"1"`
	PageSize int   `json:"page_size" example:"20"`
}

// CRMUpdateRequest carries the dashboard-owned fields of a contact. All
// fields are overwritten as submitted; omitting notes clears them.
type CRMUpdateRequest struct {
	Tags      []string `json:"tags"`
	Notes     *string  `json:"notes"`
	ERPBiCode *string  `json:"erp_bi_code"`
	ERPBiName *string  `json:"erp_bi_name"`
}

// BatchRefreshRequest names the contacts to refresh.
type BatchRefreshRequest struct {
	UserIDs []uint `json:"user_ids" binding:"required"`
}

// List handles GET /users.
//
// @Summary      List contacts
// @Description  Returns a page of contacts ordered by most recent inbound message. Supports an active filter and a free-text search over display name, ERP fields, and platform ID.
// @Tags         users
// @Produce      json
// @Param        page       query  int     false  "1-based page"            default(1)
// @Param        page_size  query  int     false  "items per page"          default(20)
// @Param        active     query  bool    false  "filter by active flag"
// @Param        search     query  string  false  "free-text filter"
// @Success      200  {object}  PageResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /users [get]
func (h *UserHandler) List(c *gin.Context) {
	page, pageSize := utils.PageParams(c.Query("page"), c.Query("page_size"), 20, 200)

	f := userFilterFromQuery(c)
	items, total, err := h.Svc.ListPage(c.Request.Context(), f, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "unable to list contacts")
		return
	}
	ok(c, http.StatusOK, PageResponse{Items: items, Total: total, Page: page, PageSize: pageSize})
}

// Get handles GET /users/:id.
//
// @Summary      Get one contact
// @Tags         users
// @Produce      json
// @Param        id   path  int  true  "contact ID"
// @Success      200  {object}  domain.User
// @Failure      404  {object}  ErrorResponse
// @Router       /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	id, done := pathID(c)
	if done {
		return
	}
	u, err := h.Svc.Get(c.Request.Context(), id)
	if err != nil {
		userError(c, err, "unable to load contact")
		return
	}
	ok(c, http.StatusOK, u)
}

// UpdateCRM handles PUT /users/:id/crm.
//
// @Summary      Update CRM fields
// @Description  Overwrites tags, notes, and ERP correlation fields. Tags are trimmed and deduplicated; a blank tag rejects the request.
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        id    path  int               true  "contact ID"
// @Param        body  body  CRMUpdateRequest  true  "CRM fields"
// @Success      200  {object}  domain.User
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /users/{id}/crm [put]
func (h *UserHandler) UpdateCRM(c *gin.Context) {
	id, done := pathID(c)
	if done {
		return
	}
	var req CRMUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	u, err := h.Svc.UpdateCRM(c.Request.Context(), id, req.Tags, req.Notes, req.ERPBiCode, req.ERPBiName)
	if err != nil {
		if errors.Is(err, services.ErrInvalidTag) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "tags must be non-blank")
			return
		}
		userError(c, err, "unable to update contact")
		return
	}
	ok(c, http.StatusOK, u)
}

// MarkRead handles POST /users/:id/read.
//
// @Summary      Mark a contact's messages read
// @Description  Resets the unread counter to zero.
// @Tags         users
// @Produce      json
// @Param        id   path  int  true  "contact ID"
// @Success      204  "no content"
// @Failure      404  {object}  ErrorResponse
// @Router       /users/{id}/read [post]
func (h *UserHandler) MarkRead(c *gin.Context) {
	id, done := pathID(c)
	if done {
		return
	}
	if err := h.Svc.MarkRead(c.Request.Context(), id); err != nil {
		userError(c, err, "unable to mark contact read")
		return
	}
	noContent(c)
}

// RefreshProfile handles POST /users/:id/refresh-profile.
//
// @Summary      Refresh a contact's platform profile
// @Description  Synchronously fetches the current profile from the messaging platform and stores it. A contact that blocked the bot returns 422.
// @Tags         users
// @Produce      json
// @Param        id   path  int  true  "contact ID"
// @Success      200  {object}  domain.User
// @Failure      404  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse "contact unreachable"
// @Router       /users/{id}/refresh-profile [post]
func (h *UserHandler) RefreshProfile(c *gin.Context) {
	id, done := pathID(c)
	if done {
		return
	}
	u, err := h.Svc.RefreshProfile(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrContactUnreachable) {
			fail(c, http.StatusUnprocessableEntity, ErrCodeRefreshFailed, "contact unreachable (blocked or deleted)")
			return
		}
		userError(c, err, "unable to refresh profile")
		return
	}
	ok(c, http.StatusOK, u)
}

// BatchRefresh handles POST /users/batch-refresh.
//
// @Summary      Refresh several profiles
// @Description  Refreshes each named contact sequentially and reports one outcome per contact; individual failures do not abort the batch.
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body  BatchRefreshRequest  true  "contact IDs"
// @Success      200  {array}  services.RefreshResult
// @Failure      400  {object}  ErrorResponse
// @Router       /users/batch-refresh [post]
func (h *UserHandler) BatchRefresh(c *gin.Context) {
	var req BatchRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.UserIDs) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_ids must be a non-empty array")
		return
	}
	ok(c, http.StatusOK, h.Svc.BatchRefresh(c.Request.Context(), req.UserIDs))
}

// Messages handles GET /users/:id/messages.
//
// @Summary      List a contact's message history
// @Description  Returns the contact's messages in timeline order (oldest first).
// @Tags         users
// @Produce      json
// @Param        id         path   int  true   "contact ID"
// @Param        page       query  int  false  "1-based page"    default(1)
// @Param        page_size  query  int  false  "items per page"  default(50)
// @Success      200  {object}  PageResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /users/{id}/messages [get]
func (h *UserHandler) Messages(c *gin.Context) {
	id, done := pathID(c)
	if done {
		return
	}
	page, pageSize := utils.PageParams(c.Query("page"), c.Query("page_size"), 50, 500)

	items, total, err := h.Svc.ListMessages(c.Request.Context(), id, page, pageSize)
	if err != nil {
		userError(c, err, "unable to list messages")
		return
	}
	ok(c, http.StatusOK, PageResponse{Items: items, Total: total, Page: page, PageSize: pageSize})
}

// Export handles GET /users/export.
//
// @Summary      Export contacts as CSV
// @Description  Streams all contacts matching the filter as CSV with columns in documented schema order.
// @Tags         users
// @Produce      text/csv
// @Param        active  query  bool    false  "filter by active flag"
// @Param        search  query  string  false  "free-text filter"
// @Success      200  {string}  string  "CSV payload"
// @Failure      500  {object}  ErrorResponse
// @Router       /users/export [get]
func (h *UserHandler) Export(c *gin.Context) {
	f := userFilterFromQuery(c)

	filename := fmt.Sprintf("users_%s.csv", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)

	if err := h.Svc.ExportCSV(c.Request.Context(), c.Writer, f); err != nil {
		// Headers may already be out; log instead of rewriting the status.
		middleware.LoggerFrom(c).Error().Err(err).Msg("csv export failed")
		if !c.Writer.Written() {
			fail(c, http.StatusInternalServerError, ErrCodeExportFailed, "unable to export contacts")
		}
	}
}

// userFilterFromQuery builds the repository filter from list/export query params.
func userFilterFromQuery(c *gin.Context) repo.UserFilter {
	f := repo.UserFilter{Search: c.Query("search")}
	if raw, set := c.GetQuery("active"); set {
		active := raw == "true" || raw == "1"
		f.Active = &active
	}
	return f
}

// pathID parses the :id path parameter; on failure it writes a 400 and
// reports done=true.
func pathID(c *gin.Context) (uint, bool) {
	id := utils.AtoiDefault(c.Param("id"), 0)
	if id <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be a positive integer")
		return 0, true
	}
	return uint(id), false
}

// userError maps service-layer errors to HTTP responses.
func userError(c *gin.Context, err error, msg string) {
	if errors.Is(err, services.ErrUserNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "contact not found")
		return
	}
	fail(c, http.StatusInternalServerError, ErrCodeInternal, msg)
}
