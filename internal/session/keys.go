package session

import (
	"errors"

	"github.com/okravets/sealchat/internal/models"
	"github.com/okravets/sealchat/internal/store"
)

// keyOutcome classifies how a symmetric-key request resolved.
type keyOutcome int

const (
	// keyDelivered: a ciphertext encrypted for this user already exists.
	keyDelivered keyOutcome = iota
	// keyForwarded: the request was relayed to an active key holder.
	keyForwarded
	// keyQueued: nobody active can serve it; the request stays queued
	// until some member joins and drains the queue.
	keyQueued
)

type keyResolution struct {
	Outcome    keyOutcome
	Ciphertext string // keyDelivered
	HolderUser string // keyForwarded
	HolderConn string // keyForwarded
}

// KeyDistribution decides how each joiner obtains the room's symmetric
// key. The key itself never passes through here in the clear; the server
// only ever stores and routes per-user ciphertexts.
type KeyDistribution struct {
	store    store.Store
	registry *ConnectionRegistry
	presence *PresenceTracker
}

func NewKeyDistribution(st store.Store, reg *ConnectionRegistry, presence *PresenceTracker) *KeyDistribution {
	return &KeyDistribution{store: st, registry: reg, presence: presence}
}

// Bootstrap creates a room with its creator as the first participant. The
// creator is active immediately: it is the only member able to mint the
// room key.
func (k *KeyDistribution) Bootstrap(room, creator, roomPasswordHash, adminContact string) error {
	return k.store.CreateRoom(&models.Room{
		Name:         room,
		PasswordHash: roomPasswordHash,
		AdminContact: adminContact,
		Participants: []models.Participant{{UserName: creator, Active: true}},
	})
}

// Resolve runs the key-acquisition branch for a join attempt on an
// existing room. hasPrivate tells whether the client already holds a
// personal key pair (and so could decrypt a previously stored ciphertext).
func (k *KeyDistribution) Resolve(room, user, publicKey string, hasPrivate bool) (keyResolution, error) {
	if hasPrivate {
		// The user may have been added by someone else while offline.
		ct, err := k.store.GetEncryptedKey(room, user)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return keyResolution{}, err
		}
		if ct != "" {
			return keyResolution{Outcome: keyDelivered, Ciphertext: ct}, nil
		}
	}

	if err := k.store.AddParticipantIfAbsent(room, user); err != nil {
		return keyResolution{}, err
	}
	req := models.KeyRequest{UserName: user, PublicKey: publicKey}
	if err := k.store.EnqueueKeyRequest(room, req); err != nil {
		return keyResolution{}, err
	}

	holder, ok, err := k.presence.FirstActive(room)
	if err != nil {
		return keyResolution{}, err
	}
	if ok && holder != user {
		if connID, online := k.registry.LookupUser(holder); online {
			k.registry.AssignRelay(connID, room, req)
			return keyResolution{Outcome: keyForwarded, HolderUser: holder, HolderConn: connID}, nil
		}
	}
	return keyResolution{Outcome: keyQueued}, nil
}

// Resolved reports whether a user already holds a usable ciphertext of the
// room key, which is what admits it past the Joining state.
func (k *KeyDistribution) Resolved(room, user string) (bool, error) {
	ct, err := k.store.GetEncryptedKey(room, user)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ct != "", nil
}

// WriteBack stores a ciphertext produced by a key holder for targetUser,
// creating the membership record if needed, and consumes any queued
// request for that user. Idempotent for the creator-bootstrap case.
func (k *KeyDistribution) WriteBack(room, targetUser, encryptedKey string, isCreator bool) error {
	if !isCreator {
		if err := k.store.AddParticipantIfAbsent(room, targetUser); err != nil {
			return err
		}
	}
	if err := k.store.SetEncryptedKey(room, targetUser, encryptedKey); err != nil {
		return err
	}
	if err := k.store.DeleteKeyRequest(room, targetUser); err != nil {
		return err
	}
	k.registry.CompleteRelay(room, targetUser)
	return nil
}

// DrainQueue pulls the room's pending requests for a member that just
// became active: its own entry is consumed silently, every other entry is
// returned for the member to serve. Removal and read are one store call,
// so a request enqueued mid-drain stays queued for the next drain and no
// two joiners are handed the same request. The returned requests are
// tracked as assigned relays so a disconnect re-queues them.
func (k *KeyDistribution) DrainQueue(room, joiningUser string) ([]models.KeyRequest, error) {
	reqs, err := k.store.DrainKeyRequests(room)
	if err != nil {
		return nil, err
	}

	others := make([]models.KeyRequest, 0, len(reqs))
	for _, r := range reqs {
		if r.UserName != joiningUser {
			others = append(others, r)
		}
	}
	if len(others) == 0 {
		return nil, nil
	}
	return others, nil
}

// Requeue puts a relay that was never served back on the room's queue,
// used when the assigned key holder disconnects mid-relay.
func (k *KeyDistribution) Requeue(rel pendingRelay) error {
	return k.store.EnqueueKeyRequest(rel.Room, rel.Req)
}
