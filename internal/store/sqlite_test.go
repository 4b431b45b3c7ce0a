// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers conversation CRUD, message persistence, and message ordering/limiting

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	return store
}

func testConversation(id, userID string) *Conversation {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &Conversation{
		ID:        id,
		Title:     "Test chat",
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestCreateAndGetConversation(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	conv := testConversation("conv-123", "user-1")

	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	got, err := store.GetConversation(ctx, "conv-123")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}

	if got.ID != conv.ID {
		t.Errorf("ID mismatch: got %q, want %q", got.ID, conv.ID)
	}
	if got.Title != conv.Title {
		t.Errorf("Title mismatch: got %q, want %q", got.Title, conv.Title)
	}
	if got.UserID != conv.UserID {
		t.Errorf("UserID mismatch: got %q, want %q", got.UserID, conv.UserID)
	}
	if !got.CreatedAt.Equal(conv.CreatedAt) {
		t.Errorf("CreatedAt mismatch: got %v, want %v", got.CreatedAt, conv.CreatedAt)
	}
	if !got.UpdatedAt.Equal(conv.UpdatedAt) {
		t.Errorf("UpdatedAt mismatch: got %v, want %v", got.UpdatedAt, conv.UpdatedAt)
	}
}

func TestCreateConversation_Duplicate(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	conv := testConversation("conv-dup", "user-1")

	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if err := store.CreateConversation(ctx, conv); err != ErrDuplicateConversation {
		t.Errorf("expected ErrDuplicateConversation, got %v", err)
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	_, err := store.GetConversation(context.Background(), "nonexistent")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListConversations_ScopedToUser(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	for i, userID := range []string{"alice", "alice", "bob"} {
		conv := testConversation(fmt.Sprintf("conv-%d", i), userID)
		if err := store.CreateConversation(ctx, conv); err != nil {
			t.Fatalf("CreateConversation failed: %v", err)
		}
	}

	convs, err := store.ListConversations(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations for alice, got %d", len(convs))
	}
	for _, conv := range convs {
		if conv.UserID != "alice" {
			t.Errorf("leaked conversation %q owned by %q", conv.ID, conv.UserID)
		}
	}
}

func TestListConversations_MostRecentFirst(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		conv := testConversation(fmt.Sprintf("conv-%d", i), "alice")
		conv.UpdatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.CreateConversation(ctx, conv); err != nil {
			t.Fatalf("CreateConversation failed: %v", err)
		}
	}

	convs, err := store.ListConversations(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(convs) != 3 {
		t.Fatalf("expected 3 conversations, got %d", len(convs))
	}
	if convs[0].ID != "conv-2" || convs[2].ID != "conv-0" {
		t.Errorf("wrong order: got %s, %s, %s", convs[0].ID, convs[1].ID, convs[2].ID)
	}
}

func TestDeleteConversation_CascadesToMessages(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	conv := testConversation("conv-del", "alice")
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if err := store.SaveMessage(ctx, &Message{
		ID:             "msg-1",
		ConversationID: "conv-del",
		UserID:         "alice",
		Content:        "hello",
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	if err := store.DeleteConversation(ctx, "conv-del"); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}

	if _, err := store.GetConversation(ctx, "conv-del"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	msgs, err := store.ListMessages(ctx, "conv-del", 0)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected 0 messages after cascade delete, got %d", len(msgs))
	}
}

func TestDeleteConversation_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	if err := store.DeleteConversation(context.Background(), "nope"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveMessage_TouchesConversation(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	conv := testConversation("conv-1", "alice")
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	later := conv.UpdatedAt.Add(time.Hour)
	if err := store.SaveMessage(ctx, &Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		UserID:         "alice",
		Content:        "hello",
		CreatedAt:      later,
	}); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	got, err := store.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("updated_at not bumped: got %v, want %v", got.UpdatedAt, later)
	}
}

func TestSaveMessage_UnknownConversation(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	err := store.SaveMessage(context.Background(), &Message{
		ID:             "msg-1",
		ConversationID: "nope",
		Content:        "hello",
		CreatedAt:      time.Now().UTC(),
	})
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListMessages_ChronologicalWithIDTieBreak(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	conv := testConversation("conv-1", "alice")
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	// Insert out of order, with two messages sharing a timestamp.
	inserts := []*Message{
		{ID: "msg-c", ConversationID: "conv-1", UserID: "alice", Content: "third", CreatedAt: at.Add(2 * time.Second)},
		{ID: "msg-b", ConversationID: "conv-1", Content: "second", IsBot: true, CreatedAt: at},
		{ID: "msg-a", ConversationID: "conv-1", UserID: "alice", Content: "first", CreatedAt: at},
	}
	for _, msg := range inserts {
		if err := store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage(%s) failed: %v", msg.ID, err)
		}
	}

	msgs, err := store.ListMessages(ctx, "conv-1", 0)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	wantOrder := []string{"msg-a", "msg-b", "msg-c"}
	for i, want := range wantOrder {
		if msgs[i].ID != want {
			t.Errorf("position %d: got %q, want %q", i, msgs[i].ID, want)
		}
	}
	if !msgs[1].IsBot {
		t.Error("msg-b should round-trip as a bot message")
	}
	if msgs[1].UserID != "" {
		t.Errorf("bot message should have empty UserID, got %q", msgs[1].UserID)
	}
}

func TestListMessages_SubSecondOrdering(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	conv := testConversation("conv-1", "alice")
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	// Whole-second timestamp followed by one half a second later. The stored
	// string form must still sort chronologically.
	at := time.Now().UTC().Truncate(time.Second)
	for i, msg := range []*Message{
		{ID: "msg-1", ConversationID: "conv-1", UserID: "alice", Content: "hi", CreatedAt: at},
		{ID: "msg-2", ConversationID: "conv-1", UserID: "alice", Content: "there", CreatedAt: at.Add(500 * time.Millisecond)},
	} {
		if err := store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage %d failed: %v", i, err)
		}
	}

	msgs, err := store.ListMessages(ctx, "conv-1", 0)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "msg-1" || msgs[1].ID != "msg-2" {
		t.Fatalf("wrong order: %+v", msgs)
	}
}

func TestListMessages_LimitKeepsMostRecent(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	conv := testConversation("conv-1", "alice")
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		msg := &Message{
			ID:             fmt.Sprintf("msg-%d", i),
			ConversationID: "conv-1",
			UserID:         "alice",
			Content:        fmt.Sprintf("message %d", i),
			CreatedAt:      at.Add(time.Duration(i) * time.Second),
		}
		if err := store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	msgs, err := store.ListMessages(ctx, "conv-1", 2)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	// The two most recent, in chronological order.
	if msgs[0].ID != "msg-3" || msgs[1].ID != "msg-4" {
		t.Errorf("wrong window: got %s, %s", msgs[0].ID, msgs[1].ID)
	}
}
