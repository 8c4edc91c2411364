package session

import (
	"github.com/okravets/sealchat/internal/models"
	"github.com/okravets/sealchat/internal/store"
)

// RoomDirectory answers room searches and produces the listings broadcast
// to every connection after membership changes.
type RoomDirectory struct {
	store store.Store
}

func NewRoomDirectory(st store.Store) *RoomDirectory {
	return &RoomDirectory{store: st}
}

// Search matches rooms by case-insensitive substring; the empty pattern
// matches every room. Rooms with fewer than minParticipants members are
// excluded.
func (d *RoomDirectory) Search(namePattern string, minParticipants int) ([]models.RoomInfo, error) {
	return d.store.SearchRooms(namePattern, minParticipants)
}
