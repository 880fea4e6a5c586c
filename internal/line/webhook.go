// Webhook payload parsing.
//
// The wire structs below mirror the LINE webhook JSON body. ParseWebhook
// converts a raw body into domain.Event descriptors so that nothing past
// this package depends on the platform wire format.
package line

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tbourn/go-line-crm/internal/domain"
)

// ErrMalformedBody is returned when the webhook body is not a parseable
// event batch. It is a call-level failure: the boundary rejects the whole
// request instead of ingesting anything.
var ErrMalformedBody = errors.New("line: malformed webhook body")

// webhookBody is the top-level webhook payload.
type webhookBody struct {
	Destination string         `json:"destination"`
	Events      []webhookEvent `json:"events"`
}

// webhookEvent is one entry of the events array.
type webhookEvent struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"` // milliseconds since epoch
	Source    *webhookSource  `json:"source"`
	Message   *webhookMessage `json:"message"`
}

type webhookSource struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// webhookMessage is the kind-specific message payload. Only the fields for
// the actual kind are populated by the platform.
type webhookMessage struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	// text
	Text string `json:"text"`

	// file
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`

	// sticker
	PackageID string `json:"packageId"`
	StickerID string `json:"stickerId"`

	// location
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

// ParseWebhook decodes a raw webhook body into typed event descriptors.
//
// Unknown event types map to domain.EventUnhandled rather than failing: the
// platform adds event types over time and a batch must not be rejected for
// carrying one. A body that is not valid JSON, or a message event without a
// message object, is malformed and fails the whole call.
func ParseWebhook(body []byte) ([]domain.Event, error) {
	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if wb.Events == nil {
		return nil, fmt.Errorf("%w: missing events array", ErrMalformedBody)
	}

	out := make([]domain.Event, 0, len(wb.Events))
	for i, we := range wb.Events {
		ev := domain.Event{
			Kind:      domain.EventUnhandled,
			Timestamp: time.UnixMilli(we.Timestamp).UTC(),
		}
		if we.Source != nil {
			ev.LineUserID = we.Source.UserID
		}

		switch we.Type {
		case "message":
			if we.Message == nil {
				return nil, fmt.Errorf("%w: event %d has no message object", ErrMalformedBody, i)
			}
			msg, err := parseMessage(we.Message)
			if err != nil {
				return nil, fmt.Errorf("%w: event %d: %v", ErrMalformedBody, i, err)
			}
			ev.Kind = domain.EventMessage
			ev.Message = msg
		case "follow":
			ev.Kind = domain.EventFollow
		case "unfollow":
			ev.Kind = domain.EventUnfollow
		}

		out = append(out, ev)
	}
	return out, nil
}

// parseMessage maps the wire message payload to the typed sub-descriptor.
// Message types outside the known set are carried through so the pipeline
// can skip them; the batch is not rejected.
func parseMessage(wm *webhookMessage) (*domain.InboundMessage, error) {
	if wm.ID == "" {
		return nil, errors.New("message id is empty")
	}

	m := &domain.InboundMessage{
		LineMessageID: wm.ID,
		Kind:          domain.MessageKind(wm.Type),
	}

	switch m.Kind {
	case domain.MessageText:
		m.Text = wm.Text
	case domain.MessageImage, domain.MessageVideo, domain.MessageAudio, domain.MessageFile:
		m.File = &domain.FileRef{
			Name: wm.FileName,
			Size: wm.FileSize,
		}
	case domain.MessageSticker:
		m.Sticker = &domain.StickerRef{
			PackageID: wm.PackageID,
			StickerID: wm.StickerID,
		}
	case domain.MessageLocation:
		m.Location = &domain.LocationRef{
			Latitude:  wm.Latitude,
			Longitude: wm.Longitude,
			Address:   wm.Address,
		}
	}
	return m, nil
}
