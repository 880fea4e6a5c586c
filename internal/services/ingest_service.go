// Package services – IngestService
//
// This file implements IngestService, the webhook event-ingestion pipeline.
// Given a batch of typed event descriptors (already signature-verified at
// the HTTP boundary), it applies each event's effect to the User/Message
// data model: message events create or touch the contact and insert an
// immutable message row, follow/unfollow events flip the active flag, and
// unknown kinds are skipped. Per-event failures never abort the batch.
//
// Profile enrichment (display name, avatar, status, language) runs as a
// detached task per affected contact: it has its own timeout, its failures
// are logged and never surface to the batch caller, and the server drains
// outstanding tasks on shutdown via Wait.
//
// Observability: Ingest is OpenTelemetry-instrumented and every event
// outcome increments the webhook_events_total counter by kind and outcome.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"

	"github.com/tbourn/go-line-crm/internal/domain"
	"github.com/tbourn/go-line-crm/internal/line"
	"github.com/tbourn/go-line-crm/internal/repo"
)

// UserStore is the persistence contract the pipeline depends on. The
// concrete implementation wraps the repo package; tests substitute fakes.
//
// Implementations must return repo.ErrNotFound for missing rows and
// repo.ErrDuplicate for unique-key collisions (line_user_id on users,
// line_message_id on messages); the pipeline's idempotency and its
// creation-race handling rest on those two signals.
type UserStore interface {
	// FindUserByLineID resolves a contact by platform identity.
	FindUserByLineID(ctx context.Context, lineUserID string) (*domain.User, error)
	// CreateUser inserts a new contact row.
	CreateUser(ctx context.Context, u *domain.User) error
	// TouchUserMessage atomically increments both counters and moves
	// last_message_at; concurrent calls must not lose updates.
	TouchUserMessage(ctx context.Context, id uint, ts time.Time) error
	// SetUserActive flips the active flag.
	SetUserActive(ctx context.Context, id uint, active bool) error
	// InsertMessage inserts an immutable message row.
	InsertMessage(ctx context.Context, m *domain.Message) error
	// UpdateUserProfile stores enrichment data.
	UpdateUserProfile(ctx context.Context, id uint, displayName, pictureURL, statusMessage, lang *string) error
}

// Outcome classifies the result of one ingested event.
type Outcome string

const (
	// OutcomeApplied: the event's state transition was persisted (or was a
	// benign no-op such as an unfollow for an unknown contact).
	OutcomeApplied Outcome = "applied"
	// OutcomeDuplicate: a message event whose line_message_id was already
	// stored; redelivery, recorded as a no-op success.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeSkipped: an event or message kind outside the handled set.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed: the primary persistence write failed; siblings in the
	// batch are unaffected.
	OutcomeFailed Outcome = "failed"
)

// EventResult is the per-event entry of a BatchResult.
type EventResult struct {
	Kind    domain.EventKind `json:"kind"`
	Outcome Outcome          `json:"outcome"`
	Err     string           `json:"error,omitempty"`
}

// BatchResult aggregates the outcome of one webhook batch. The batch call
// itself only fails for structural problems; per-event failures live here.
type BatchResult struct {
	Results []EventResult `json:"results"`
}

// Processed returns the number of events evaluated, failed ones included.
func (r BatchResult) Processed() int { return len(r.Results) }

// Failed returns the number of events with OutcomeFailed.
func (r BatchResult) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			n++
		}
	}
	return n
}

var ingestEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of ingested webhook events by kind and outcome.",
	},
	[]string{"kind", "outcome"},
)

func init() {
	prometheus.MustRegister(ingestEvents)
}

// IngestService applies webhook event batches to the data model.
type IngestService struct {
	Store    UserStore
	Profiles line.ProfileClient

	// PersistTimeout bounds the primary persistence writes of one event.
	PersistTimeout time.Duration
	// EnrichTimeout bounds one detached profile-enrichment task.
	EnrichTimeout time.Duration

	bg sync.WaitGroup
}

// NewIngestService constructs an IngestService with sane timeout defaults.
func NewIngestService(store UserStore, profiles line.ProfileClient) *IngestService {
	return &IngestService{
		Store:          store,
		Profiles:       profiles,
		PersistTimeout: 10 * time.Second,
		EnrichTimeout:  10 * time.Second,
	}
}

// Ingest applies every event of the batch and reports one outcome per
// event, in input order. Events are evaluated concurrently; events for the
// same contact coordinate only through the store's atomic operations.
//
// Ingest never returns an error for per-event failures; the boundary layer
// rejects structurally invalid batches before calling it.
func (s *IngestService) Ingest(ctx context.Context, events []domain.Event) BatchResult {
	tr := otel.Tracer("services/IngestService")
	ctx, span := tr.Start(ctx, "Ingest",
		trace.WithAttributes(attribute.Int("batch.size", len(events))),
	)
	defer span.End()

	results := make([]EventResult, len(events))

	var wg sync.WaitGroup
	for i, ev := range events {
		wg.Add(1)
		go func(i int, ev domain.Event) {
			defer wg.Done()
			results[i] = s.apply(ctx, ev)
		}(i, ev)
	}
	wg.Wait()

	for _, res := range results {
		ingestEvents.WithLabelValues(string(res.Kind), string(res.Outcome)).Inc()
	}
	return BatchResult{Results: results}
}

// Wait blocks until all detached enrichment tasks have finished. The server
// calls it during graceful shutdown; tests use it to synchronize.
func (s *IngestService) Wait() { s.bg.Wait() }

// apply dispatches one event by kind.
func (s *IngestService) apply(ctx context.Context, ev domain.Event) EventResult {
	res := EventResult{Kind: ev.Kind}

	if ev.Kind != domain.EventUnhandled && ev.LineUserID == "" {
		// Group/room events carry no user identity; nothing to attribute
		// the event to.
		res.Outcome = OutcomeSkipped
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, s.persistTimeout())
	defer cancel()

	switch ev.Kind {
	case domain.EventMessage:
		res.Outcome, res.Err = s.applyMessage(ctx, ev)
	case domain.EventFollow:
		res.Outcome, res.Err = s.applyFollow(ctx, ev)
	case domain.EventUnfollow:
		res.Outcome, res.Err = s.applyUnfollow(ctx, ev)
	default:
		res.Outcome = OutcomeSkipped
	}
	return res
}

// applyMessage handles one message event: resolve-or-create the contact,
// bump its counters, and insert the message row keyed by line_message_id.
func (s *IngestService) applyMessage(ctx context.Context, ev domain.Event) (Outcome, string) {
	if ev.Message == nil || !ev.Message.Kind.Valid() {
		return OutcomeSkipped, ""
	}

	u, err := s.resolveForMessage(ctx, ev)
	if err != nil {
		return OutcomeFailed, err.Error()
	}

	msg, err := buildMessage(u.ID, ev)
	if err != nil {
		return OutcomeFailed, err.Error()
	}
	if err := s.Store.InsertMessage(ctx, msg); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			// Redelivery. The platform retries webhook deliveries; the
			// unique key makes the second attempt a no-op.
			return OutcomeDuplicate, ""
		}
		return OutcomeFailed, err.Error()
	}
	return OutcomeApplied, ""
}

// resolveForMessage returns the contact for a message event with its
// counters already advanced. Unknown contacts are created with counters at
// one; losing the creation race to a sibling event downgrades to a refetch
// plus an atomic touch, so exactly one row ever exists per line_user_id.
func (s *IngestService) resolveForMessage(ctx context.Context, ev domain.Event) (*domain.User, error) {
	u, err := s.Store.FindUserByLineID(ctx, ev.LineUserID)
	switch {
	case err == nil:
		if terr := s.Store.TouchUserMessage(ctx, u.ID, ev.Timestamp); terr != nil {
			return nil, fmt.Errorf("touch user: %w", terr)
		}
		return u, nil

	case errors.Is(err, repo.ErrNotFound):
		ts := ev.Timestamp
		nu := &domain.User{
			LineUserID:     ev.LineUserID,
			IsActive:       true,
			FirstMessageAt: &ts,
			LastMessageAt:  &ts,
			MessageCount:   1,
			UnreadCount:    1,
		}
		cerr := s.Store.CreateUser(ctx, nu)
		if cerr == nil {
			s.enrichAsync(nu.ID, ev.LineUserID)
			return nu, nil
		}
		if !errors.Is(cerr, repo.ErrDuplicate) {
			return nil, fmt.Errorf("create user: %w", cerr)
		}
		// A concurrent event created the row first; count this message on it.
		u, err = s.Store.FindUserByLineID(ctx, ev.LineUserID)
		if err != nil {
			return nil, fmt.Errorf("refetch user after race: %w", err)
		}
		if terr := s.Store.TouchUserMessage(ctx, u.ID, ev.Timestamp); terr != nil {
			return nil, fmt.Errorf("touch user: %w", terr)
		}
		return u, nil

	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}

// applyFollow reactivates a known contact or creates an unknown one with
// message-derived fields at their zero defaults. Either way the profile is
// refreshed best-effort.
func (s *IngestService) applyFollow(ctx context.Context, ev domain.Event) (Outcome, string) {
	u, err := s.Store.FindUserByLineID(ctx, ev.LineUserID)
	switch {
	case err == nil:
		if serr := s.Store.SetUserActive(ctx, u.ID, true); serr != nil {
			return OutcomeFailed, serr.Error()
		}
		s.enrichAsync(u.ID, ev.LineUserID)
		return OutcomeApplied, ""

	case errors.Is(err, repo.ErrNotFound):
		nu := &domain.User{LineUserID: ev.LineUserID, IsActive: true}
		cerr := s.Store.CreateUser(ctx, nu)
		if cerr == nil {
			s.enrichAsync(nu.ID, ev.LineUserID)
			return OutcomeApplied, ""
		}
		if errors.Is(cerr, repo.ErrDuplicate) {
			if u, err = s.Store.FindUserByLineID(ctx, ev.LineUserID); err != nil {
				return OutcomeFailed, err.Error()
			}
			if serr := s.Store.SetUserActive(ctx, u.ID, true); serr != nil {
				return OutcomeFailed, serr.Error()
			}
			s.enrichAsync(u.ID, ev.LineUserID)
			return OutcomeApplied, ""
		}
		return OutcomeFailed, cerr.Error()

	default:
		return OutcomeFailed, err.Error()
	}
}

// applyUnfollow deactivates a known contact. An unfollow for an identity
// the system never saw is a no-op, not an error.
func (s *IngestService) applyUnfollow(ctx context.Context, ev domain.Event) (Outcome, string) {
	u, err := s.Store.FindUserByLineID(ctx, ev.LineUserID)
	switch {
	case err == nil:
		if serr := s.Store.SetUserActive(ctx, u.ID, false); serr != nil {
			return OutcomeFailed, serr.Error()
		}
		return OutcomeApplied, ""
	case errors.Is(err, repo.ErrNotFound):
		return OutcomeApplied, ""
	default:
		return OutcomeFailed, err.Error()
	}
}

// enrichAsync refreshes a contact's profile as a detached task. Failures
// (blocked contact, timeout, transport) are logged and never affect the
// event that scheduled the task.
func (s *IngestService) enrichAsync(userID uint, lineUserID string) {
	if s.Profiles == nil {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.enrichTimeout())
		defer cancel()

		p, err := s.Profiles.GetProfile(ctx, lineUserID)
		if err != nil {
			log.Warn().
				Err(err).
				Uint("user_id", userID).
				Str("line_user_id", lineUserID).
				Msg("profile enrichment failed")
			return
		}
		if err := s.Store.UpdateUserProfile(ctx, userID,
			optional(p.DisplayName),
			optional(p.PictureURL),
			optional(p.StatusMessage),
			normalizeLanguage(p.Language),
		); err != nil {
			log.Warn().
				Err(err).
				Uint("user_id", userID).
				Msg("storing enriched profile failed")
		}
	}()
}

func (s *IngestService) persistTimeout() time.Duration {
	if s.PersistTimeout > 0 {
		return s.PersistTimeout
	}
	return 10 * time.Second
}

func (s *IngestService) enrichTimeout() time.Duration {
	if s.EnrichTimeout > 0 {
		return s.EnrichTimeout
	}
	return 10 * time.Second
}

// buildMessage maps the kind-specific event payload onto a message row.
func buildMessage(userID uint, ev domain.Event) (*domain.Message, error) {
	im := ev.Message
	m := &domain.Message{
		LineMessageID: im.LineMessageID,
		UserID:        userID,
		MessageType:   im.Kind,
		Timestamp:     ev.Timestamp,
	}

	switch im.Kind {
	case domain.MessageText:
		m.TextContent = &im.Text

	case domain.MessageImage, domain.MessageVideo, domain.MessageAudio, domain.MessageFile:
		// Metadata placeholder only; downloading the content into the
		// storage bucket is downstream work gated on Processed.
		if im.File != nil {
			m.FileName = optional(im.File.Name)
			m.FilePath = optional(im.File.Path)
			m.FileType = optional(im.File.MimeType)
			if im.File.Size > 0 {
				size := im.File.Size
				m.FileSize = &size
			}
		}

	case domain.MessageSticker:
		if im.Sticker == nil {
			return nil, errors.New("sticker message without sticker payload")
		}
		txt := RenderSticker(im.Sticker)
		m.TextContent = &txt
		meta := fmt.Sprintf(`{"packageId":%q,"stickerId":%q}`, im.Sticker.PackageID, im.Sticker.StickerID)
		m.Metadata = &meta

	case domain.MessageLocation:
		if im.Location == nil {
			return nil, errors.New("location message without location payload")
		}
		txt := RenderLocation(im.Location)
		m.TextContent = &txt
	}
	return m, nil
}

// RenderSticker produces the deterministic human-readable text payload
// stored for sticker messages.
func RenderSticker(st *domain.StickerRef) string {
	return fmt.Sprintf("[Sticker] package=%s sticker=%s", st.PackageID, st.StickerID)
}

// RenderLocation produces the text payload stored for location messages:
// "[Location] <lat>,<lng>" with the address appended when present.
func RenderLocation(l *domain.LocationRef) string {
	out := fmt.Sprintf("[Location] %v,%v", l.Latitude, l.Longitude)
	if l.Address != "" {
		out += " " + l.Address
	}
	return out
}

// optional converts a possibly-empty platform string into a nullable column
// value.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// normalizeLanguage canonicalizes the profile language to a BCP-47 tag, or
// NULL when the platform sent nothing parseable.
func normalizeLanguage(s string) *string {
	if s == "" {
		return nil
	}
	tag, err := language.Parse(s)
	if err != nil {
		return nil
	}
	out := tag.String()
	return &out
}
