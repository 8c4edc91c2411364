package session

import (
	"errors"

	"github.com/okravets/sealchat/internal/store"
)

// PresenceTracker maintains the active flag on participant records. It is
// the only writer of that flag, so occupancy and first-active queries stay
// consistent with what joins and disconnects actually did.
type PresenceTracker struct {
	store store.Store
}

func NewPresenceTracker(st store.Store) *PresenceTracker {
	return &PresenceTracker{store: st}
}

// Activate marks a user active in a room, adding the membership record if
// it does not exist yet. Safe to call twice for the same user.
func (p *PresenceTracker) Activate(room, user string) error {
	if err := p.store.AddParticipantIfAbsent(room, user); err != nil {
		return err
	}
	return p.store.SetParticipantActive(room, user, true)
}

// Deactivate clears the active flag. Missing membership is not an error:
// a disconnect may race a join that never completed.
func (p *PresenceTracker) Deactivate(room, user string) error {
	err := p.store.SetParticipantActive(room, user, false)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// ListActive returns active member names in insertion order.
func (p *PresenceTracker) ListActive(room string) ([]string, error) {
	return p.store.ActiveParticipants(room)
}

// FirstActive returns the earliest-inserted active member, the default key
// holder for relays. ok is false when the room has nobody active.
func (p *PresenceTracker) FirstActive(room string) (user string, ok bool, err error) {
	user, err = p.store.FirstActiveParticipant(room)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return user, true, nil
}
