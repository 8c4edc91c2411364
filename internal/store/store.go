package store

import (
	"errors"

	"github.com/okravets/sealchat/internal/models"
)

var (
	// ErrNotFound is returned when a user, room, participant or message
	// referenced by name/id does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("store: duplicate")
)

// Store is the credential/room/message persistence contract. Every call is
// an independent request to the backing database; callers must not assume
// atomicity across calls. The atomic primitives the protocol relies on are
// AddParticipantIfAbsent (conditional upsert, keeps the one-entry-per-user
// invariant under concurrent joins) and DrainKeyRequests (single-statement
// read-and-delete, so no queued request is lost or served twice).
type Store interface {
	// User operations
	CreateUser(user *models.User) error
	GetUserByName(name string) (*models.User, error)
	UpdatePublicKey(name, publicKey string) error

	// Room operations
	CreateRoom(room *models.Room) error
	GetRoom(name string) (*models.Room, error)
	RoomExists(name string) (bool, error)
	SearchRooms(namePattern string, minParticipants int) ([]models.RoomInfo, error)

	// Participant operations
	IsParticipant(room, user string) (bool, error)
	AddParticipantIfAbsent(room, user string) error
	SetParticipantActive(room, user string, active bool) error
	ActiveParticipants(room string) ([]string, error)
	FirstActiveParticipant(room string) (string, error)
	SetEncryptedKey(room, user, encryptedKey string) error
	GetEncryptedKey(room, user string) (string, error)
	// ResetPresence clears every active flag. Run once at startup so no
	// participant stays marked active across a process restart.
	ResetPresence() error

	// Pending key request queue
	EnqueueKeyRequest(room string, req models.KeyRequest) error
	PendingKeyRequests(room string) ([]models.KeyRequest, error)
	DeleteKeyRequest(room, user string) error
	// DrainKeyRequests removes and returns every pending request of a
	// room in one statement, so a request enqueued concurrently is either
	// returned or left for the next drain, never silently discarded.
	DrainKeyRequests(room string) ([]models.KeyRequest, error)

	// Message ledger
	AppendMessage(msg *models.Message) (int64, error)
	RoomMessages(room string) ([]models.Message, error)
	MarkMessageDeleted(room string, id int64) error
	UpdateMessage(room string, id int64, ciphertext, nonce string) error
}
