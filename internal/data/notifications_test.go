package data

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestNotificationsListAndRead(t *testing.T) {
	c := setupDB(t)
	store := NewNotificationsStore(c.NotificationsCollection())
	ctx := context.Background()

	recipient := bson.NewObjectID()
	mk := func(typ NotificationType) *Notification {
		t.Helper()
		n := &Notification{
			RecipientID: recipient,
			Type:        typ,
			Title:       "t",
			Priority:    PriorityMedium,
			IsActive:    true,
			CreatedAt:   time.Now(),
		}
		if err := store.Insert(ctx, n); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		return n
	}

	first := mk(NotifNewMessage)
	mk(NotifJobApplication)

	items, unread, err := store.List(ctx, recipient, 1, 20, false)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 2 || unread != 2 {
		t.Fatalf("expected 2 items / 2 unread, got %d / %d", len(items), unread)
	}

	if err := store.MarkRead(ctx, first.ID, recipient); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	// unread-only listing skips the read one
	items, unread, err = store.List(ctx, recipient, 1, 20, true)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 || unread != 1 {
		t.Fatalf("expected 1 item / 1 unread, got %d / %d", len(items), unread)
	}

	// foreign recipient cannot touch it
	if err := store.MarkRead(ctx, first.ID, bson.NewObjectID()); err == nil {
		t.Fatal("expected MarkRead to fail for foreign recipient")
	}

	n, err := store.MarkAllRead(ctx, recipient)
	if err != nil {
		t.Fatalf("MarkAllRead failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 flipped, got %d", n)
	}

	if err := store.Deactivate(ctx, first.ID, recipient); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	items, _, err = store.List(ctx, recipient, 1, 20, false)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected deactivated notification filtered out, got %d", len(items))
	}
}
