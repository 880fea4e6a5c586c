package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-line-crm/internal/domain"
)

func TestCreateMessage_IdempotentOnLineMessageID(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	u := &domain.User{LineUserID: "U1", IsActive: true}
	if err := CreateUser(ctx, db, u); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	txt := "hello"
	m := &domain.Message{
		LineMessageID: "m1",
		UserID:        u.ID,
		MessageType:   domain.MessageText,
		TextContent:   &txt,
		Timestamp:     time.Now().UTC(),
	}
	if err := CreateMessage(ctx, db, m); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if m.ID == 0 {
		t.Fatal("expected autoincrement ID")
	}
	if m.Processed {
		t.Fatal("processed must default to false")
	}

	// Redelivery of the same platform message is a distinguishable duplicate.
	again := &domain.Message{
		LineMessageID: "m1",
		UserID:        u.ID,
		MessageType:   domain.MessageText,
		TextContent:   &txt,
		Timestamp:     time.Now().UTC(),
	}
	if err := CreateMessage(ctx, db, again); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	total, err := CountMessages(ctx, db, u.ID)
	if err != nil || total != 1 {
		t.Fatalf("CountMessages = %d, %v; want 1", total, err)
	}
}

func TestListMessagesPage_Order(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	u := &domain.User{LineUserID: "U1", IsActive: true}
	if err := CreateUser(ctx, db, u); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	base := time.Date(2025, 11, 6, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"m3", "m1", "m2"} {
		offset := map[string]int{"m1": 0, "m2": 1, "m3": 2}[id]
		m := &domain.Message{
			LineMessageID: id,
			UserID:        u.ID,
			MessageType:   domain.MessageText,
			Timestamp:     base.Add(time.Duration(offset) * time.Minute),
		}
		if err := CreateMessage(ctx, db, m); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	page, err := ListMessagesPage(ctx, db, u.ID, 0, 2)
	if err != nil {
		t.Fatalf("ListMessagesPage: %v", err)
	}
	if len(page) != 2 || page[0].LineMessageID != "m1" || page[1].LineMessageID != "m2" {
		t.Fatalf("unexpected page: %+v", page)
	}

	rest, err := ListMessagesPage(ctx, db, u.ID, 2, 2)
	if err != nil || len(rest) != 1 || rest[0].LineMessageID != "m3" {
		t.Fatalf("unexpected second page: %+v, %v", rest, err)
	}
}
