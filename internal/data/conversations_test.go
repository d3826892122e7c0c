package data

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func insertConversation(t *testing.T, store *ConversationsStore, client, pro bson.ObjectID) *Conversation {
	t.Helper()
	conv := &Conversation{
		Participants: []Participant{
			{UserID: client, Role: RoleClient},
			{UserID: pro, Role: RoleProfessional},
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := store.Insert(context.Background(), conv); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	return conv
}

func TestConversationsFindByPair(t *testing.T) {
	c := setupDB(t)
	store := NewConversationsStore(c.ConversationsCollection())
	ctx := context.Background()

	client := bson.NewObjectID()
	pro := bson.NewObjectID()
	conv := insertConversation(t, store, client, pro)

	found, err := store.FindByPair(ctx, pro, client)
	if err != nil {
		t.Fatalf("FindByPair failed: %v", err)
	}
	if found == nil || found.ID != conv.ID {
		t.Fatalf("expected to find conversation regardless of argument order")
	}

	missing, err := store.FindByPair(ctx, client, bson.NewObjectID())
	if err != nil {
		t.Fatalf("FindByPair failed: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for unknown pair")
	}
}

func TestConversationsRecordMessageAndUnread(t *testing.T) {
	c := setupDB(t)
	store := NewConversationsStore(c.ConversationsCollection())
	ctx := context.Background()

	client := bson.NewObjectID()
	pro := bson.NewObjectID()
	conv := insertConversation(t, store, client, pro)

	msg := &Message{ID: bson.NewObjectID(), ConversationID: conv.ID, SenderID: client, CreatedAt: time.Now()}
	if err := store.RecordMessage(ctx, conv.ID, msg, "hello", RoleProfessional); err != nil {
		t.Fatalf("RecordMessage failed: %v", err)
	}

	got, err := store.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.LastMessagePreview != "hello" {
		t.Fatalf("unexpected preview %q", got.LastMessagePreview)
	}
	if got.Unread.Professional != 1 || got.Unread.Client != 0 {
		t.Fatalf("unexpected counters %+v", got.Unread)
	}

	if err := store.ResetUnread(ctx, conv.ID, RoleProfessional); err != nil {
		t.Fatalf("ResetUnread failed: %v", err)
	}
	got, err = store.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Unread.Professional != 0 {
		t.Fatalf("expected reset counter, got %d", got.Unread.Professional)
	}
}

func TestConversationsHideIsIdempotentPerViewer(t *testing.T) {
	c := setupDB(t)
	store := NewConversationsStore(c.ConversationsCollection())
	ctx := context.Background()

	client := bson.NewObjectID()
	pro := bson.NewObjectID()
	conv := insertConversation(t, store, client, pro)

	if err := store.HideFor(ctx, conv.ID, client); err != nil {
		t.Fatalf("HideFor failed: %v", err)
	}
	if err := store.HideFor(ctx, conv.ID, client); err != nil {
		t.Fatalf("repeated HideFor failed: %v", err)
	}

	got, err := store.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.HiddenFor) != 1 {
		t.Fatalf("expected single hidden_for entry, got %d", len(got.HiddenFor))
	}

	// hidden for the client, still listed for the professional
	mine, err := store.ListForUser(ctx, client, 1, 20)
	if err != nil {
		t.Fatalf("ListForUser failed: %v", err)
	}
	if len(mine) != 0 {
		t.Fatalf("expected conversation hidden from client, got %d", len(mine))
	}
	theirs, err := store.ListForUser(ctx, pro, 1, 20)
	if err != nil {
		t.Fatalf("ListForUser failed: %v", err)
	}
	if len(theirs) != 1 {
		t.Fatalf("expected conversation visible for professional, got %d", len(theirs))
	}
}

func TestConversationsSetJobOnce(t *testing.T) {
	c := setupDB(t)
	store := NewConversationsStore(c.ConversationsCollection())
	ctx := context.Background()

	conv := insertConversation(t, store, bson.NewObjectID(), bson.NewObjectID())

	first := bson.NewObjectID()
	if err := store.SetJob(ctx, conv.ID, first); err != nil {
		t.Fatalf("SetJob failed: %v", err)
	}
	if err := store.SetJob(ctx, conv.ID, bson.NewObjectID()); err == nil {
		t.Fatal("expected second SetJob to fail")
	}

	if err := store.ClearJob(ctx, conv.ID); err != nil {
		t.Fatalf("ClearJob failed: %v", err)
	}
	got, err := store.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.JobID != nil {
		t.Fatal("expected job link to be cleared")
	}
}
