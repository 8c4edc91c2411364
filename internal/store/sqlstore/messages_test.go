package sqlstore

import (
	"errors"
	"testing"
	"time"

	"github.com/okravets/sealchat/internal/models"
	"github.com/okravets/sealchat/internal/store"
)

func appendTestMessage(t *testing.T, room, author, ciphertext string) int64 {
	t.Helper()
	id, err := testStore.AppendMessage(&models.Message{
		Room:       room,
		Author:     author,
		Ciphertext: ciphertext,
		Nonce:      "nonce",
		Time:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Failed to append message: %v", err)
	}
	return id
}

func TestAppendAndHistory(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	id1 := appendTestMessage(t, "team", "alice", "first")
	id2 := appendTestMessage(t, "team", "bob", "second")
	appendTestMessage(t, "other", "carol", "elsewhere")

	if id1 == id2 {
		t.Errorf("Expected distinct ids, got %d twice", id1)
	}

	messages, err := testStore.RoomMessages("team")
	if err != nil {
		t.Fatalf("Failed to get messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}
	if messages[0].Ciphertext != "first" || messages[1].Ciphertext != "second" {
		t.Errorf("History out of insertion order: %+v", messages)
	}
}

func TestMarkMessageDeleted(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	id := appendTestMessage(t, "team", "alice", "secret")

	if err := testStore.MarkMessageDeleted("team", id); err != nil {
		t.Fatalf("Failed to delete message: %v", err)
	}

	// Tombstoned messages never come back from history.
	messages, _ := testStore.RoomMessages("team")
	if len(messages) != 0 {
		t.Errorf("Expected deleted message excluded, got %+v", messages)
	}

	err := testStore.MarkMessageDeleted("team", 9999)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUpdateMessage(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	id := appendTestMessage(t, "team", "alice", "original")

	if err := testStore.UpdateMessage("team", id, "revised", "nonce2"); err != nil {
		t.Fatalf("Failed to update message: %v", err)
	}

	messages, _ := testStore.RoomMessages("team")
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}
	if messages[0].Ciphertext != "revised" || messages[0].Nonce != "nonce2" {
		t.Errorf("Expected revised content, got %+v", messages[0])
	}
	if !messages[0].Edited {
		t.Error("Expected edited flag to be set")
	}

	// A second edit keeps the flag set.
	testStore.UpdateMessage("team", id, "again", "nonce3")
	messages, _ = testStore.RoomMessages("team")
	if !messages[0].Edited {
		t.Error("Edited flag must never revert")
	}

	// Tombstoned messages cannot be edited.
	testStore.MarkMessageDeleted("team", id)
	err := testStore.UpdateMessage("team", id, "zombie", "nonce4")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for deleted message, got %v", err)
	}
}
