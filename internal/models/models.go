package models

import "time"

// User is the durable identity record. Transient routing state (connection
// id, current room) lives in the session registry, not on this row, so a
// restart can never leave a user pointing at a dead connection.
type User struct {
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
	PublicKey    string `json:"public_key,omitempty"`
}

// Participant is a user's membership record inside one room. EncryptedKey,
// when set, is the room's shared symmetric key encrypted under this user's
// public key.
type Participant struct {
	UserName     string `json:"userName"`
	Active       bool   `json:"active"`
	EncryptedKey string `json:"encryptedSymmetricKey,omitempty"`
}

// KeyRequest is a queued ask from a user who cannot decrypt the room key
// yet. Any active member holding the plaintext key can serve it.
type KeyRequest struct {
	UserName  string `json:"userName"`
	PublicKey string `json:"publicKey"`
}

type Room struct {
	Name         string        `json:"name"`
	PasswordHash string        `json:"-"`
	AdminContact string        `json:"adminContact,omitempty"`
	Participants []Participant `json:"participants"`
	KeyRequests  []KeyRequest  `json:"-"`
}

// Message is one ledger entry. Deleted and Edited are one-way flags:
// messages are tombstoned, never physically removed.
type Message struct {
	ID         int64     `json:"id"`
	Room       string    `json:"-"`
	Author     string    `json:"author"`
	Ciphertext string    `json:"ciphertext"`
	Nonce      string    `json:"nonce"`
	Time       time.Time `json:"time"`
	Deleted    bool      `json:"-"`
	Edited     bool      `json:"edited"`
}

// RoomInfo is a directory entry returned by room search.
type RoomInfo struct {
	RoomName          string `json:"roomName"`
	TotalParticipants int    `json:"totalParticipants"`
	IsActive          bool   `json:"isActive"`
}
