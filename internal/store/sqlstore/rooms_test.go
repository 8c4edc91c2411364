package sqlstore

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/okravets/sealchat/internal/models"
	"github.com/okravets/sealchat/internal/store"
)

func TestCreateRoom(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	room := &models.Room{
		Name:         "team",
		PasswordHash: "hash",
		AdminContact: "admin@example.com",
		Participants: []models.Participant{{UserName: "alice", Active: true}},
	}
	if err := testStore.CreateRoom(room); err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}

	exists, err := testStore.RoomExists("team")
	if err != nil || !exists {
		t.Errorf("Expected room to exist, got exists=%v err=%v", exists, err)
	}

	got, err := testStore.GetRoom("team")
	if err != nil {
		t.Fatalf("Failed to get room: %v", err)
	}
	if got.AdminContact != "admin@example.com" {
		t.Errorf("Expected admin contact, got %q", got.AdminContact)
	}
	if len(got.Participants) != 1 || got.Participants[0].UserName != "alice" || !got.Participants[0].Active {
		t.Errorf("Unexpected participants: %+v", got.Participants)
	}

	err = testStore.CreateRoom(&models.Room{Name: "team", PasswordHash: "other"})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
}

func TestAddParticipantIfAbsent(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	testStore.CreateRoom(&models.Room{Name: "team", PasswordHash: "hash"})

	if err := testStore.AddParticipantIfAbsent("team", "bob"); err != nil {
		t.Fatalf("Failed to add participant: %v", err)
	}
	// A second add for the same name must be a no-op, not a duplicate row.
	if err := testStore.AddParticipantIfAbsent("team", "bob"); err != nil {
		t.Fatalf("Repeated add failed: %v", err)
	}

	room, _ := testStore.GetRoom("team")
	if len(room.Participants) != 1 {
		t.Errorf("Expected 1 participant, got %d", len(room.Participants))
	}
	if room.Participants[0].Active {
		t.Error("Added-but-not-joined participants must start inactive")
	}

	isParticipant, err := testStore.IsParticipant("team", "bob")
	if err != nil || !isParticipant {
		t.Errorf("Expected bob to be participant, got %v err=%v", isParticipant, err)
	}
}

func TestAddParticipantIfAbsentConcurrent(t *testing.T) {
	// A file-backed database: ":memory:" gives every pool connection its
	// own database, which would hide the race this test exercises.
	dsn := "file:" + filepath.Join(t.TempDir(), "concurrent.db") + "?_busy_timeout=5000"
	st, err := New("sqlite3", dsn)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	defer st.Close()

	st.CreateRoom(&models.Room{Name: "team", PasswordHash: "hash"})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- st.AddParticipantIfAbsent("team", "bob")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Concurrent add failed: %v", err)
		}
	}

	room, err := st.GetRoom("team")
	if err != nil {
		t.Fatalf("Failed to get room: %v", err)
	}
	if len(room.Participants) != 1 || room.Participants[0].UserName != "bob" {
		t.Errorf("Expected exactly one membership record for bob, got %+v", room.Participants)
	}
}

func TestPresence(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	testStore.CreateRoom(&models.Room{Name: "team", PasswordHash: "hash"})
	testStore.AddParticipantIfAbsent("team", "alice")
	testStore.AddParticipantIfAbsent("team", "bob")
	testStore.AddParticipantIfAbsent("team", "carol")

	testStore.SetParticipantActive("team", "bob", true)
	testStore.SetParticipantActive("team", "carol", true)

	active, err := testStore.ActiveParticipants("team")
	if err != nil {
		t.Fatalf("Failed to list active participants: %v", err)
	}
	if len(active) != 2 || active[0] != "bob" || active[1] != "carol" {
		t.Errorf("Expected [bob carol], got %v", active)
	}

	// First active follows insertion order, not activation order.
	first, err := testStore.FirstActiveParticipant("team")
	if err != nil || first != "bob" {
		t.Errorf("Expected first active 'bob', got %q err=%v", first, err)
	}

	testStore.SetParticipantActive("team", "alice", true)
	first, _ = testStore.FirstActiveParticipant("team")
	if first != "alice" {
		t.Errorf("Expected first active 'alice', got %q", first)
	}

	if err := testStore.ResetPresence(); err != nil {
		t.Fatalf("Failed to reset presence: %v", err)
	}
	active, _ = testStore.ActiveParticipants("team")
	if len(active) != 0 {
		t.Errorf("Expected no active participants after reset, got %v", active)
	}
	_, err = testStore.FirstActiveParticipant("team")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestEncryptedKey(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	testStore.CreateRoom(&models.Room{Name: "team", PasswordHash: "hash"})
	testStore.AddParticipantIfAbsent("team", "bob")

	key, err := testStore.GetEncryptedKey("team", "bob")
	if err != nil || key != "" {
		t.Errorf("Expected empty key, got %q err=%v", key, err)
	}

	if err := testStore.SetEncryptedKey("team", "bob", "ciphertext"); err != nil {
		t.Fatalf("Failed to set encrypted key: %v", err)
	}
	key, _ = testStore.GetEncryptedKey("team", "bob")
	if key != "ciphertext" {
		t.Errorf("Expected 'ciphertext', got %q", key)
	}

	_, err = testStore.GetEncryptedKey("team", "nobody")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestKeyRequestQueue(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	testStore.CreateRoom(&models.Room{Name: "team", PasswordHash: "hash"})

	testStore.EnqueueKeyRequest("team", models.KeyRequest{UserName: "bob", PublicKey: "pub1"})
	testStore.EnqueueKeyRequest("team", models.KeyRequest{UserName: "carol", PublicKey: "pub2"})
	// Re-enqueueing replaces the public key instead of queueing twice.
	testStore.EnqueueKeyRequest("team", models.KeyRequest{UserName: "bob", PublicKey: "pub3"})

	reqs, err := testStore.PendingKeyRequests("team")
	if err != nil {
		t.Fatalf("Failed to list key requests: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("Expected 2 requests, got %d", len(reqs))
	}
	if reqs[0].UserName != "bob" || reqs[0].PublicKey != "pub3" {
		t.Errorf("Unexpected first request: %+v", reqs[0])
	}

	testStore.DeleteKeyRequest("team", "bob")
	reqs, _ = testStore.PendingKeyRequests("team")
	if len(reqs) != 1 || reqs[0].UserName != "carol" {
		t.Errorf("Expected only carol queued, got %+v", reqs)
	}
}

func TestDrainKeyRequests(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	testStore.CreateRoom(&models.Room{Name: "team", PasswordHash: "hash"})
	testStore.EnqueueKeyRequest("team", models.KeyRequest{UserName: "bob", PublicKey: "pub1"})
	testStore.EnqueueKeyRequest("team", models.KeyRequest{UserName: "carol", PublicKey: "pub2"})

	reqs, err := testStore.DrainKeyRequests("team")
	if err != nil {
		t.Fatalf("Failed to drain key requests: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("Expected 2 drained requests, got %+v", reqs)
	}
	drained := map[string]string{}
	for _, r := range reqs {
		drained[r.UserName] = r.PublicKey
	}
	if drained["bob"] != "pub1" || drained["carol"] != "pub2" {
		t.Errorf("Unexpected drained requests: %+v", reqs)
	}

	pending, _ := testStore.PendingKeyRequests("team")
	if len(pending) != 0 {
		t.Errorf("Expected empty queue after drain, got %+v", pending)
	}

	// A request enqueued after a drain belongs to the next drain; every
	// queued request is handed out exactly once.
	testStore.EnqueueKeyRequest("team", models.KeyRequest{UserName: "dave", PublicKey: "pub3"})
	reqs, _ = testStore.DrainKeyRequests("team")
	if len(reqs) != 1 || reqs[0].UserName != "dave" {
		t.Errorf("Expected dave in the second drain, got %+v", reqs)
	}
	reqs, _ = testStore.DrainKeyRequests("team")
	if len(reqs) != 0 {
		t.Errorf("Expected nothing left to drain, got %+v", reqs)
	}
}

func TestSearchRooms(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	testStore.CreateRoom(&models.Room{Name: "team", PasswordHash: "h", Participants: []models.Participant{
		{UserName: "alice", Active: true},
		{UserName: "bob"},
	}})
	testStore.CreateRoom(&models.Room{Name: "Steam Fans", PasswordHash: "h", Participants: []models.Participant{
		{UserName: "carol"},
	}})
	testStore.CreateRoom(&models.Room{Name: "empty", PasswordHash: "h"})

	// Empty pattern with zero minimum matches everything.
	infos, err := testStore.SearchRooms("", 0)
	if err != nil {
		t.Fatalf("Failed to search rooms: %v", err)
	}
	if len(infos) != 3 {
		t.Errorf("Expected 3 rooms, got %d", len(infos))
	}

	// Case-insensitive substring match.
	infos, _ = testStore.SearchRooms("TEAM", 0)
	if len(infos) != 2 {
		t.Errorf("Expected 2 rooms matching 'TEAM', got %d", len(infos))
	}

	// Minimum participant count excludes smaller rooms.
	infos, _ = testStore.SearchRooms("", 2)
	if len(infos) != 1 || infos[0].RoomName != "team" {
		t.Fatalf("Expected only 'team', got %+v", infos)
	}
	if infos[0].TotalParticipants != 2 {
		t.Errorf("Expected 2 participants, got %d", infos[0].TotalParticipants)
	}
	if !infos[0].IsActive {
		t.Error("Expected 'team' to be active")
	}

	infos, _ = testStore.SearchRooms("steam", 0)
	if len(infos) != 1 || infos[0].IsActive {
		t.Errorf("Expected inactive 'Steam Fans', got %+v", infos)
	}
}
