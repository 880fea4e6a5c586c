// Package handlers provides HTTP handler implementations for the public API.
//
// This file implements the webhook endpoint the messaging platform delivers
// events to. The handler owns the transport-level concerns: reading the raw
// body (the signature covers the exact bytes), verifying X-Line-Signature,
// decoding the event batch, and translating the pipeline's batch result into
// a response. Event semantics live in services.IngestService.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-line-crm/internal/domain"
	"github.com/tbourn/go-line-crm/internal/http/middleware"
	"github.com/tbourn/go-line-crm/internal/line"
	"github.com/tbourn/go-line-crm/internal/services"
)

// maxWebhookBody caps the webhook payload size. The platform batches at most
// a few hundred events per delivery; 1 MiB is generous.
const maxWebhookBody = 1 << 20

// signatureHeader is the platform's HMAC signature header.
const signatureHeader = "X-Line-Signature"

// WebhookHandler verifies, decodes, and dispatches webhook deliveries.
type WebhookHandler struct {
	ChannelSecret string
	Ingest        func(c *gin.Context, events []domain.Event) services.BatchResult
}

// NewWebhookHandler wires the webhook endpoint to the ingestion pipeline.
func NewWebhookHandler(channelSecret string, svc *services.IngestService) *WebhookHandler {
	return &WebhookHandler{
		ChannelSecret: channelSecret,
		Ingest: func(c *gin.Context, events []domain.Event) services.BatchResult {
			return svc.Ingest(c.Request.Context(), events)
		},
	}
}

// WebhookResponse is the acknowledgment body returned to the platform.
type WebhookResponse struct {
	// Number of events evaluated (failed ones included)
	Processed int `json:"processed" example:"3"`
	// Number of events whose persistence failed
	Failed int `json:"failed,omitempty" example:"0"`
	// Per-event outcomes in delivery order
	Results []services.EventResult `json:"results,omitempty"`
}

// Receive handles POST /webhook.
//
// The platform redelivers on non-2xx, so only two conditions reject the
// request: a signature mismatch (401; the payload is not authentic) and a
// structurally malformed body (400; redelivery cannot fix it). Per-event
// persistence failures still acknowledge with 200 — the failed events are
// reported in the body and redelivered payloads dedupe on line_message_id.
//
// @Summary      Receive platform webhook events
// @Description  Verifies the X-Line-Signature HMAC over the raw body, decodes the event batch, and applies each event to the contact/message store.
// @Tags         webhook
// @Accept       json
// @Produce      json
// @Param        X-Line-Signature  header  string  true  "Base64 HMAC-SHA256 of the request body"
// @Success      200  {object}  WebhookResponse
// @Failure      400  {object}  ErrorResponse "malformed body"
// @Failure      401  {object}  ErrorResponse "signature verification failed"
// @Router       /webhook [post]
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unable to read request body")
		return
	}
	if len(body) > maxWebhookBody {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
		return
	}

	if !line.ValidateSignature(h.ChannelSecret, body, c.GetHeader(signatureHeader)) {
		middleware.LoggerFrom(c).Warn().
			Str("remote_ip", c.ClientIP()).
			Msg("webhook signature verification failed")
		fail(c, http.StatusUnauthorized, ErrCodeInvalidSignature, "signature verification failed")
		return
	}

	events, err := line.ParseWebhook(body)
	if err != nil {
		if errors.Is(err, line.ErrMalformedBody) {
			fail(c, http.StatusBadRequest, ErrCodeInvalidPayload, "malformed webhook body")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unable to decode webhook body")
		return
	}

	res := h.Ingest(c, events)
	if n := res.Failed(); n > 0 {
		middleware.LoggerFrom(c).Error().
			Int("failed", n).
			Int("processed", res.Processed()).
			Msg("webhook batch had failing events")
	}

	ok(c, http.StatusOK, WebhookResponse{
		Processed: res.Processed(),
		Failed:    res.Failed(),
		Results:   res.Results,
	})
}
