package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-line-crm/internal/domain"
	"github.com/tbourn/go-line-crm/internal/line"
	"github.com/tbourn/go-line-crm/internal/repo"
)

// fakeStore is an in-memory UserStore. It reproduces the two signals the
// pipeline depends on (repo.ErrNotFound, repo.ErrDuplicate) and guards all
// state with a mutex so concurrent batches exercise real interleavings.
type fakeStore struct {
	mu sync.Mutex

	nextID   uint
	byLineID map[string]*domain.User
	messages map[string]*domain.Message // keyed by line_message_id

	profileCalls []uint

	insertMessageErr func(m *domain.Message) error
	createUserErr    func(u *domain.User) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byLineID: make(map[string]*domain.User),
		messages: make(map[string]*domain.Message),
	}
}

func (f *fakeStore) FindUserByLineID(_ context.Context, lineUserID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byLineID[lineUserID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) CreateUser(_ context.Context, u *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createUserErr != nil {
		if err := f.createUserErr(u); err != nil {
			return err
		}
	}
	if _, exists := f.byLineID[u.LineUserID]; exists {
		return repo.ErrDuplicate
	}
	f.nextID++
	u.ID = f.nextID
	cp := *u
	f.byLineID[u.LineUserID] = &cp
	return nil
}

func (f *fakeStore) TouchUserMessage(_ context.Context, id uint, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byLineID {
		if u.ID == id {
			u.MessageCount++
			u.UnreadCount++
			t := ts
			u.LastMessageAt = &t
			if u.FirstMessageAt == nil {
				u.FirstMessageAt = &t
			}
			return nil
		}
	}
	return repo.ErrNotFound
}

func (f *fakeStore) SetUserActive(_ context.Context, id uint, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byLineID {
		if u.ID == id {
			u.IsActive = active
			return nil
		}
	}
	return repo.ErrNotFound
}

func (f *fakeStore) InsertMessage(_ context.Context, m *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertMessageErr != nil {
		if err := f.insertMessageErr(m); err != nil {
			return err
		}
	}
	if _, exists := f.messages[m.LineMessageID]; exists {
		return repo.ErrDuplicate
	}
	cp := *m
	f.messages[m.LineMessageID] = &cp
	return nil
}

func (f *fakeStore) UpdateUserProfile(_ context.Context, id uint, displayName, _, _, _ *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileCalls = append(f.profileCalls, id)
	for _, u := range f.byLineID {
		if u.ID == id {
			u.DisplayName = displayName
			return nil
		}
	}
	return repo.ErrNotFound
}

func (f *fakeStore) user(t *testing.T, lineUserID string) domain.User {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byLineID[lineUserID]
	if !ok {
		t.Fatalf("user %q not found in fake store", lineUserID)
	}
	return *u
}

// fakeProfiles is an in-memory line.ProfileClient.
type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]line.Profile
	err      error
	calls    int
}

func (f *fakeProfiles) GetProfile(_ context.Context, lineUserID string) (*line.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[lineUserID]
	if !ok {
		return nil, line.ErrProfileNotFound
	}
	return &p, nil
}

func textEvent(lineUserID, msgID, text string, ts time.Time) domain.Event {
	return domain.Event{
		Kind:       domain.EventMessage,
		LineUserID: lineUserID,
		Timestamp:  ts,
		Message: &domain.InboundMessage{
			LineMessageID: msgID,
			Kind:          domain.MessageText,
			Text:          text,
		},
	}
}

func TestIngest_FirstMessageCreatesUser(t *testing.T) {
	store := newFakeStore()
	svc := NewIngestService(store, nil)

	ts := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	res := svc.Ingest(context.Background(), []domain.Event{textEvent("U1", "m1", "hello", ts)})

	if got := res.Results[0].Outcome; got != OutcomeApplied {
		t.Fatalf("outcome = %q, want applied (%s)", got, res.Results[0].Err)
	}
	u := store.user(t, "U1")
	if u.MessageCount != 1 || u.UnreadCount != 1 {
		t.Fatalf("counters = %d/%d, want 1/1", u.MessageCount, u.UnreadCount)
	}
	if u.FirstMessageAt == nil || !u.FirstMessageAt.Equal(ts) {
		t.Fatalf("first_message_at = %v, want %v", u.FirstMessageAt, ts)
	}
	if u.LastMessageAt == nil || !u.LastMessageAt.Equal(ts) {
		t.Fatalf("last_message_at = %v, want %v", u.LastMessageAt, ts)
	}
	if !u.IsActive {
		t.Fatal("new contact should be active")
	}
	if len(store.messages) != 1 {
		t.Fatalf("messages stored = %d, want 1", len(store.messages))
	}
}

func TestIngest_DuplicateMessageIsNoOp(t *testing.T) {
	store := newFakeStore()
	svc := NewIngestService(store, nil)
	ctx := context.Background()
	ts := time.Now().UTC()

	first := svc.Ingest(ctx, []domain.Event{textEvent("U1", "m1", "hi", ts)})
	if first.Results[0].Outcome != OutcomeApplied {
		t.Fatalf("first delivery outcome = %q", first.Results[0].Outcome)
	}

	second := svc.Ingest(ctx, []domain.Event{textEvent("U1", "m1", "hi", ts)})
	if second.Results[0].Outcome != OutcomeDuplicate {
		t.Fatalf("redelivery outcome = %q, want duplicate", second.Results[0].Outcome)
	}
	if len(store.messages) != 1 {
		t.Fatalf("messages stored = %d, want 1", len(store.messages))
	}
}

func TestIngest_ConcurrentMessagesUnseenUser(t *testing.T) {
	store := newFakeStore()
	svc := NewIngestService(store, nil)

	const n = 25
	events := make([]domain.Event, n)
	base := time.Now().UTC().Truncate(time.Second)
	for i := range events {
		events[i] = textEvent("U1", fmt.Sprintf("m%d", i), "hi", base.Add(time.Duration(i)*time.Second))
	}

	res := svc.Ingest(context.Background(), events)
	for i, r := range res.Results {
		if r.Outcome != OutcomeApplied {
			t.Fatalf("event %d outcome = %q (%s)", i, r.Outcome, r.Err)
		}
	}

	if len(store.byLineID) != 1 {
		t.Fatalf("user rows = %d, want exactly 1", len(store.byLineID))
	}
	u := store.user(t, "U1")
	if u.MessageCount != n || u.UnreadCount != n {
		t.Fatalf("counters = %d/%d, want %d/%d", u.MessageCount, u.UnreadCount, n, n)
	}
	if len(store.messages) != n {
		t.Fatalf("messages stored = %d, want %d", len(store.messages), n)
	}
}

func TestIngest_FollowAfterUnfollowReactivates(t *testing.T) {
	store := newFakeStore()
	svc := NewIngestService(store, nil)
	ctx := context.Background()

	svc.Ingest(ctx, []domain.Event{textEvent("U1", "m1", "hi", time.Now().UTC())})
	before := store.user(t, "U1")

	res := svc.Ingest(ctx, []domain.Event{{Kind: domain.EventUnfollow, LineUserID: "U1"}})
	if res.Results[0].Outcome != OutcomeApplied {
		t.Fatalf("unfollow outcome = %q", res.Results[0].Outcome)
	}
	if store.user(t, "U1").IsActive {
		t.Fatal("contact should be inactive after unfollow")
	}

	res = svc.Ingest(ctx, []domain.Event{{Kind: domain.EventFollow, LineUserID: "U1"}})
	if res.Results[0].Outcome != OutcomeApplied {
		t.Fatalf("follow outcome = %q", res.Results[0].Outcome)
	}
	after := store.user(t, "U1")
	if !after.IsActive {
		t.Fatal("contact should be active after re-follow")
	}
	if after.MessageCount != before.MessageCount || after.UnreadCount != before.UnreadCount {
		t.Fatal("follow/unfollow must not touch message counters")
	}
}

func TestIngest_FollowUnknownUserCreatesInactiveCounters(t *testing.T) {
	store := newFakeStore()
	svc := NewIngestService(store, nil)

	res := svc.Ingest(context.Background(), []domain.Event{{Kind: domain.EventFollow, LineUserID: "U9"}})
	if res.Results[0].Outcome != OutcomeApplied {
		t.Fatalf("outcome = %q", res.Results[0].Outcome)
	}
	u := store.user(t, "U9")
	if u.MessageCount != 0 || u.UnreadCount != 0 || u.FirstMessageAt != nil {
		t.Fatal("follow-created contact must have zero message state")
	}
}

func TestIngest_UnfollowUnknownUserIsNoOp(t *testing.T) {
	store := newFakeStore()
	svc := NewIngestService(store, nil)

	res := svc.Ingest(context.Background(), []domain.Event{{Kind: domain.EventUnfollow, LineUserID: "Unever"}})
	if res.Results[0].Outcome != OutcomeApplied {
		t.Fatalf("outcome = %q, want applied no-op", res.Results[0].Outcome)
	}
	if len(store.byLineID) != 0 {
		t.Fatal("unfollow must not create contacts")
	}
}

func TestIngest_BatchPartialFailure(t *testing.T) {
	store := newFakeStore()
	boom := errors.New("disk on fire")
	store.insertMessageErr = func(m *domain.Message) error {
		if m.LineMessageID == "m2" {
			return boom
		}
		return nil
	}
	svc := NewIngestService(store, nil)

	ts := time.Now().UTC()
	res := svc.Ingest(context.Background(), []domain.Event{
		textEvent("U1", "m1", "a", ts),
		textEvent("U1", "m2", "b", ts),
		textEvent("U1", "m3", "c", ts),
	})

	if res.Processed() != 3 {
		t.Fatalf("processed = %d, want 3", res.Processed())
	}
	if res.Failed() != 1 {
		t.Fatalf("failed = %d, want 1", res.Failed())
	}
	if res.Results[1].Outcome != OutcomeFailed || res.Results[1].Err == "" {
		t.Fatalf("event 2 = %+v, want failed with error text", res.Results[1])
	}
	if res.Results[0].Outcome != OutcomeApplied || res.Results[2].Outcome != OutcomeApplied {
		t.Fatal("sibling events must still apply")
	}
	if len(store.messages) != 2 {
		t.Fatalf("messages stored = %d, want 2", len(store.messages))
	}
}

func TestIngest_SkipsUnhandledAndMissingIdentity(t *testing.T) {
	store := newFakeStore()
	svc := NewIngestService(store, nil)

	res := svc.Ingest(context.Background(), []domain.Event{
		{Kind: domain.EventUnhandled},
		textEvent("", "m1", "group message", time.Now().UTC()),
	})
	for i, r := range res.Results {
		if r.Outcome != OutcomeSkipped {
			t.Fatalf("event %d outcome = %q, want skipped", i, r.Outcome)
		}
	}
	if len(store.byLineID) != 0 || len(store.messages) != 0 {
		t.Fatal("skipped events must not write")
	}
}

func TestIngest_StickerAndLocationRendering(t *testing.T) {
	store := newFakeStore()
	svc := NewIngestService(store, nil)
	ts := time.Now().UTC()

	res := svc.Ingest(context.Background(), []domain.Event{
		{
			Kind: domain.EventMessage, LineUserID: "U1", Timestamp: ts,
			Message: &domain.InboundMessage{
				LineMessageID: "s1",
				Kind:          domain.MessageSticker,
				Sticker:       &domain.StickerRef{PackageID: "11537", StickerID: "52002734"},
			},
		},
		{
			Kind: domain.EventMessage, LineUserID: "U1", Timestamp: ts,
			Message: &domain.InboundMessage{
				LineMessageID: "l1",
				Kind:          domain.MessageLocation,
				Location:      &domain.LocationRef{Latitude: 35.65, Longitude: 139.74, Address: "Tokyo Tower"},
			},
		},
	})
	for i, r := range res.Results {
		if r.Outcome != OutcomeApplied {
			t.Fatalf("event %d outcome = %q (%s)", i, r.Outcome, r.Err)
		}
	}

	st := store.messages["s1"]
	if st.TextContent == nil || *st.TextContent != "[Sticker] package=11537 sticker=52002734" {
		t.Fatalf("sticker text = %v", st.TextContent)
	}
	if st.Metadata == nil || !strings.Contains(*st.Metadata, `"packageId":"11537"`) {
		t.Fatalf("sticker metadata = %v", st.Metadata)
	}

	loc := store.messages["l1"]
	if loc.TextContent == nil || *loc.TextContent != "[Location] 35.65,139.74 Tokyo Tower" {
		t.Fatalf("location text = %v", loc.TextContent)
	}
}

func TestIngest_EnrichmentPopulatesProfile(t *testing.T) {
	store := newFakeStore()
	profiles := &fakeProfiles{profiles: map[string]line.Profile{
		"U1": {DisplayName: "Alice", Language: "ja"},
	}}
	svc := NewIngestService(store, profiles)

	res := svc.Ingest(context.Background(), []domain.Event{textEvent("U1", "m1", "hi", time.Now().UTC())})
	if res.Results[0].Outcome != OutcomeApplied {
		t.Fatalf("outcome = %q", res.Results[0].Outcome)
	}
	svc.Wait()

	u := store.user(t, "U1")
	if u.DisplayName == nil || *u.DisplayName != "Alice" {
		t.Fatalf("display name = %v, want Alice", u.DisplayName)
	}
}

func TestIngest_EnrichmentFailureIsNonFatal(t *testing.T) {
	store := newFakeStore()
	profiles := &fakeProfiles{err: errors.New("line api down")}
	svc := NewIngestService(store, profiles)

	res := svc.Ingest(context.Background(), []domain.Event{textEvent("U1", "m1", "hi", time.Now().UTC())})
	if res.Results[0].Outcome != OutcomeApplied {
		t.Fatalf("outcome = %q, enrichment failure must not fail the event", res.Results[0].Outcome)
	}
	svc.Wait()

	if u := store.user(t, "U1"); u.DisplayName != nil {
		t.Fatal("failed enrichment must leave the profile untouched")
	}
}

func TestIngest_KnownMessageKindWithoutPayloadFails(t *testing.T) {
	store := newFakeStore()
	svc := NewIngestService(store, nil)

	res := svc.Ingest(context.Background(), []domain.Event{{
		Kind: domain.EventMessage, LineUserID: "U1", Timestamp: time.Now().UTC(),
		Message: &domain.InboundMessage{LineMessageID: "s1", Kind: domain.MessageSticker},
	}})
	if res.Results[0].Outcome != OutcomeFailed {
		t.Fatalf("outcome = %q, want failed", res.Results[0].Outcome)
	}
}

func TestRenderLocation_NoAddress(t *testing.T) {
	got := RenderLocation(&domain.LocationRef{Latitude: 1.5, Longitude: -2})
	if got != "[Location] 1.5,-2" {
		t.Fatalf("RenderLocation = %q", got)
	}
}
