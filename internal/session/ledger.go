package session

import (
	"time"

	"github.com/okravets/sealchat/internal/models"
	"github.com/okravets/sealchat/internal/store"
)

// MessageLedger is the append-only message log for rooms. Deletion is a
// tombstone and edits set a one-way flag; rows never leave the store.
type MessageLedger struct {
	store store.Store
}

func NewMessageLedger(st store.Store) *MessageLedger {
	return &MessageLedger{store: st}
}

// Append stores a new message and returns it with its assigned id and
// server-side timestamp.
func (l *MessageLedger) Append(room, author, ciphertext, nonce string) (*models.Message, error) {
	msg := &models.Message{
		Room:       room,
		Author:     author,
		Ciphertext: ciphertext,
		Nonce:      nonce,
		Time:       time.Now().UTC(),
	}
	id, err := l.store.AppendMessage(msg)
	if err != nil {
		return nil, err
	}
	msg.ID = id
	return msg, nil
}

// History returns a point-in-time snapshot of the room's non-deleted
// messages in insertion order. Live updates arrive via broadcast, not by
// re-reading history.
func (l *MessageLedger) History(room string) ([]models.Message, error) {
	return l.store.RoomMessages(room)
}

func (l *MessageLedger) SoftDelete(room string, id int64) error {
	return l.store.MarkMessageDeleted(room, id)
}

func (l *MessageLedger) Edit(room string, id int64, ciphertext, nonce string) error {
	return l.store.UpdateMessage(room, id, ciphertext, nonce)
}
