package sqlstore

import (
	"errors"
	"testing"

	"github.com/okravets/sealchat/internal/models"
	"github.com/okravets/sealchat/internal/store"
)

func TestCreateUser(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	user := &models.User{Name: "alice", PasswordHash: "hash", PublicKey: "pub"}
	if err := testStore.CreateUser(user); err != nil {
		t.Errorf("Failed to create user: %v", err)
	}

	got, err := testStore.GetUserByName("alice")
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if got.PasswordHash != "hash" || got.PublicKey != "pub" {
		t.Errorf("Unexpected user record: %+v", got)
	}

	// Duplicate names must be rejected
	err = testStore.CreateUser(&models.User{Name: "alice", PasswordHash: "other"})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
}

func TestGetUserByNameNotFound(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	_, err := testStore.GetUserByName("nobody")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUpdatePublicKey(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	testStore.CreateUser(&models.User{Name: "alice", PasswordHash: "hash"})

	if err := testStore.UpdatePublicKey("alice", "newpub"); err != nil {
		t.Errorf("Failed to update public key: %v", err)
	}

	got, _ := testStore.GetUserByName("alice")
	if got.PublicKey != "newpub" {
		t.Errorf("Expected public key 'newpub', got %q", got.PublicKey)
	}

	err := testStore.UpdatePublicKey("nobody", "pub")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
