package session

import (
	"encoding/json"
	"errors"
	"log"

	"golang.org/x/crypto/bcrypt"

	"github.com/okravets/sealchat/internal/models"
	"github.com/okravets/sealchat/internal/store"
)

// Transport is the connection-oriented pub/sub surface the coordinator
// drives. The websocket hub implements it; tests substitute a recorder.
type Transport interface {
	Emit(connID, event string, payload any)
	Broadcast(room, event string, payload any, exceptConn string)
	BroadcastAll(event string, payload any)
	Join(connID, room string)
	Leave(connID, room string)
}

// AdminNotifier delivers out-of-band notifications to a room's admin
// contact. May be absent.
type AdminNotifier interface {
	NotifyKeyRequest(to, room, requester string) error
}

// Coordinator drives every connection through authentication, key
// acquisition and room transitions. It owns the connection registry and is
// the only component that touches the transport.
type Coordinator struct {
	store     store.Store
	transport Transport
	registry  *ConnectionRegistry
	presence  *PresenceTracker
	ledger    *MessageLedger
	directory *RoomDirectory
	keys      *KeyDistribution
	notifier  AdminNotifier
}

func NewCoordinator(st store.Store, notifier AdminNotifier) *Coordinator {
	registry := NewConnectionRegistry()
	presence := NewPresenceTracker(st)
	return &Coordinator{
		store:     st,
		registry:  registry,
		presence:  presence,
		ledger:    NewMessageLedger(st),
		directory: NewRoomDirectory(st),
		keys:      NewKeyDistribution(st, registry, presence),
		notifier:  notifier,
	}
}

// SetTransport wires the hub in after construction; the hub needs the
// coordinator as its handler, so the two cannot be built in one step.
func (co *Coordinator) SetTransport(t Transport) {
	co.transport = t
}

func (co *Coordinator) HandleConnect(connID string) {
	infos, err := co.directory.Search("", 1)
	if err != nil {
		log.Printf("error listing rooms for %s: %v", connID, err)
		return
	}
	if len(infos) > 0 {
		co.transport.Emit(connID, EvtRoomDirectory, infos)
	}
}

func (co *Coordinator) HandleEvent(connID, event string, data json.RawMessage) {
	switch event {
	case EvtVerifyCredentials:
		var p verifyCredentialsPayload
		if decode(connID, event, data, &p) {
			co.handleVerifyCredentials(connID, p)
		}
	case EvtRequestSymmetricKey:
		var p requestSymmetricKeyPayload
		if decode(connID, event, data, &p) {
			co.handleRequestSymmetricKey(connID, p)
		}
	case EvtWriteSymmetricKey:
		var p writeSymmetricKeyPayload
		if decode(connID, event, data, &p) {
			co.handleWriteSymmetricKey(connID, p)
		}
	case EvtEnterRoom:
		var p enterRoomPayload
		if decode(connID, event, data, &p) {
			co.handleEnterRoom(connID, p)
		}
	case EvtSendMessage:
		var p sendMessagePayload
		if decode(connID, event, data, &p) {
			co.handleSendMessage(connID, p)
		}
	case EvtDeleteMessage:
		var p deleteMessagePayload
		if decode(connID, event, data, &p) {
			co.handleDeleteMessage(connID, p)
		}
	case EvtEditMessage:
		var p editMessagePayload
		if decode(connID, event, data, &p) {
			co.handleEditMessage(connID, p)
		}
	case EvtTypingActivity:
		var author string
		if decode(connID, event, data, &author) {
			co.handleTypingActivity(connID, author)
		}
	case EvtSearchRooms:
		var p searchRoomsPayload
		if decode(connID, event, data, &p) {
			co.handleSearchRooms(connID, p)
		}
	case EvtFetchAdminContact:
		var room string
		if decode(connID, event, data, &room) {
			co.handleFetchAdminContact(connID, room)
		}
	default:
		log.Printf("connection %s sent unknown event %q", connID, event)
	}
}

// handleVerifyCredentials is strictly read-only: it confirms or rejects
// both passwords but registers nothing, so a failure downstream leaves no
// partial state.
func (co *Coordinator) handleVerifyCredentials(connID string, p verifyCredentialsPayload) {
	exists, err := co.store.RoomExists(p.Room)
	if err != nil {
		log.Printf("error checking room %q: %v", p.Room, err)
		return
	}

	// Creating a room requires someone to name an admin contact first.
	if !exists && p.AdminContact == "" {
		co.transport.Emit(connID, EvtNeedsAdminContact, nil)
		return
	}

	user, err := co.store.GetUserByName(p.Name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("error loading user %q: %v", p.Name, err)
		return
	}
	if user != nil {
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(p.UserPassword)) != nil {
			co.transport.Emit(connID, EvtCredentialMismatch, credentialStatus{Kind: "user"})
			return
		}
	}
	// An unregistered name passes: the password becomes its credential on
	// first join.
	co.transport.Emit(connID, EvtCredentialConfirmed, credentialStatus{Kind: "user"})

	if !exists {
		co.transport.Emit(connID, EvtCredentialConfirmed, credentialStatus{Kind: "room", IsCreator: true})
		return
	}

	wasMember, err := co.store.IsParticipant(p.Room, p.Name)
	if err != nil {
		log.Printf("error checking membership of %q in %q: %v", p.Name, p.Room, err)
		return
	}
	if !wasMember {
		room, err := co.store.GetRoom(p.Room)
		if err != nil {
			log.Printf("error loading room %q: %v", p.Room, err)
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(room.PasswordHash), []byte(p.RoomPassword)) != nil {
			co.transport.Emit(connID, EvtCredentialMismatch, credentialStatus{Kind: "room"})
			return
		}
	}
	co.transport.Emit(connID, EvtCredentialConfirmed, credentialStatus{Kind: "room"})
}

func (co *Coordinator) handleRequestSymmetricKey(connID string, p requestSymmetricKeyPayload) {
	user, err := co.store.GetUserByName(p.UserName)
	switch {
	case errors.Is(err, store.ErrNotFound):
		hash, err := bcrypt.GenerateFromPassword([]byte(p.UserPassword), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("error hashing password for %q: %v", p.UserName, err)
			return
		}
		newUser := &models.User{Name: p.UserName, PasswordHash: string(hash), PublicKey: p.PublicKey}
		if err := co.store.CreateUser(newUser); err != nil && !errors.Is(err, store.ErrDuplicate) {
			log.Printf("error registering user %q: %v", p.UserName, err)
			return
		}
	case err != nil:
		log.Printf("error loading user %q: %v", p.UserName, err)
		return
	default:
		if p.PublicKey == "" {
			// The client kept its key pair, so the stored key still holds.
			p.PublicKey = user.PublicKey
		}
		if !p.HasPrivateKey {
			// The client regenerated its key pair; the old public key is
			// useless for it now.
			if err := co.store.UpdatePublicKey(p.UserName, p.PublicKey); err != nil {
				log.Printf("error updating public key for %q: %v", p.UserName, err)
				return
			}
		}
	}

	co.registry.BindUser(connID, p.UserName)

	exists, err := co.store.RoomExists(p.Room)
	if err != nil {
		log.Printf("error checking room %q: %v", p.Room, err)
		return
	}
	if !exists {
		hash, err := bcrypt.GenerateFromPassword([]byte(p.RoomPassword), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("error hashing room password for %q: %v", p.Room, err)
			return
		}
		if err := co.keys.Bootstrap(p.Room, p.UserName, string(hash), p.AdminContact); err != nil {
			log.Printf("error creating room %q: %v", p.Room, err)
			return
		}
		co.transport.Emit(connID, EvtBootstrapSymmetricKey, bootstrapKey{PublicKey: p.PublicKey})
		return
	}

	res, err := co.keys.Resolve(p.Room, p.UserName, p.PublicKey, p.HasPrivateKey)
	if err != nil {
		log.Printf("error resolving key for %q in %q: %v", p.UserName, p.Room, err)
		return
	}
	switch res.Outcome {
	case keyDelivered:
		co.transport.Emit(connID, EvtDeliverEncryptedKey, res.Ciphertext)
	case keyForwarded:
		co.transport.Emit(res.HolderConn, EvtRelayKeyRequest, relayKeyRequest{
			RequesterName: p.UserName,
			PublicKey:     p.PublicKey,
		})
		co.transport.Emit(connID, EvtKeyRequestPending, struct{}{})
	case keyQueued:
		co.transport.Emit(connID, EvtKeyRequestPending, struct{}{})
		co.notifyAdmin(p.Room, p.UserName)
	}
}

func (co *Coordinator) handleWriteSymmetricKey(connID string, p writeSymmetricKeyPayload) {
	if err := co.keys.WriteBack(p.Room, p.TargetUser, p.EncryptedKey, p.IsCreator); err != nil {
		log.Printf("error writing key for %q in %q: %v", p.TargetUser, p.Room, err)
		return
	}
	if p.IsCreator {
		return
	}
	// The relayed ciphertext triggers the waiting client to re-attempt its
	// join with a decryptable key in hand.
	if targetConn, ok := co.registry.LookupUser(p.TargetUser); ok {
		co.transport.Emit(targetConn, EvtDeliverEncryptedKey, p.EncryptedKey)
	}
}

func (co *Coordinator) handleEnterRoom(connID string, p enterRoomPayload) {
	resolved, err := co.keys.Resolved(p.RoomName, p.UserName)
	if err != nil {
		log.Printf("error checking key for %q in %q: %v", p.UserName, p.RoomName, err)
		return
	}
	if !resolved {
		// No usable key yet: no presence, no history, the session stays in
		// Joining until a key holder completes the relay.
		co.transport.Emit(connID, EvtKeyRequestPending, struct{}{})
		return
	}

	co.registry.BindUser(connID, p.UserName)
	prevRoom := co.registry.SetRoom(connID, p.RoomName)
	if prevRoom == p.RoomName {
		prevRoom = ""
	}

	if err := co.presence.Activate(p.RoomName, p.UserName); err != nil {
		log.Printf("error activating %q in %q: %v", p.UserName, p.RoomName, err)
		return
	}

	history, err := co.ledger.History(p.RoomName)
	if err != nil {
		log.Printf("error loading history of %q: %v", p.RoomName, err)
	} else {
		msgs := make([]chatMessage, 0, len(history))
		for i := range history {
			msgs = append(msgs, toChatMessage(&history[i]))
		}
		co.transport.Emit(connID, EvtRoomHistory, msgs)
	}

	co.transport.Join(connID, p.RoomName)

	if prevRoom != "" {
		co.transport.Leave(connID, prevRoom)
		if err := co.presence.Deactivate(prevRoom, p.UserName); err != nil {
			log.Printf("error deactivating %q in %q: %v", p.UserName, prevRoom, err)
		}
		co.transport.Broadcast(prevRoom, EvtChatMessage, notice(p.UserName+" has left the room"), "")
		co.broadcastMemberList(prevRoom)
	}

	co.transport.Broadcast(p.RoomName, EvtChatMessage, notice(p.UserName+" has joined the room"), connID)
	co.transport.Emit(connID, EvtChatMessage, notice("You have joined the "+p.RoomName+" chat room"))
	co.broadcastMemberList(p.RoomName)
	co.refreshDirectory()

	// The new active member can serve everyone still waiting for the key.
	reqs, err := co.keys.DrainQueue(p.RoomName, p.UserName)
	if err != nil {
		log.Printf("error draining key requests of %q: %v", p.RoomName, err)
		return
	}
	if len(reqs) > 0 {
		co.transport.Emit(connID, EvtPendingRequestsQueued, reqs)
		for _, r := range reqs {
			co.registry.AssignRelay(connID, p.RoomName, r)
		}
	}
}

func (co *Coordinator) handleSendMessage(connID string, p sendMessagePayload) {
	_, room, ok := co.registry.Lookup(connID)
	if !ok || room == "" {
		return
	}
	msg, err := co.ledger.Append(room, p.AuthorName, p.Ciphertext, p.Nonce)
	if err != nil {
		log.Printf("error appending message in %q: %v", room, err)
		return
	}
	// Broadcast strictly after the append is durable.
	co.transport.Broadcast(room, EvtChatMessage, toChatMessage(msg), "")
}

func (co *Coordinator) handleDeleteMessage(connID string, p deleteMessagePayload) {
	if err := co.ledger.SoftDelete(p.Room, p.ID); err != nil {
		log.Printf("error deleting message %d in %q: %v", p.ID, p.Room, err)
		return
	}
	co.transport.Broadcast(p.Room, EvtMessageDeleted, p.ID, connID)
}

func (co *Coordinator) handleEditMessage(connID string, p editMessagePayload) {
	if err := co.ledger.Edit(p.Room, p.ID, p.Ciphertext, p.Nonce); err != nil {
		log.Printf("error editing message %d in %q: %v", p.ID, p.Room, err)
		return
	}
	co.transport.Broadcast(p.Room, EvtMessageEdited, messageEdited{
		ID:         p.ID,
		Ciphertext: p.Ciphertext,
		Nonce:      p.Nonce,
	}, "")
}

func (co *Coordinator) handleTypingActivity(connID, author string) {
	_, room, ok := co.registry.Lookup(connID)
	if !ok || room == "" {
		return
	}
	co.transport.Broadcast(room, EvtTypingActivity, author, connID)
}

func (co *Coordinator) handleSearchRooms(connID string, p searchRoomsPayload) {
	infos, err := co.directory.Search(p.NamePattern, p.MinParticipants)
	if err != nil {
		log.Printf("error searching rooms: %v", err)
		return
	}
	if infos == nil {
		infos = []models.RoomInfo{}
	}
	co.transport.Emit(connID, EvtRoomDirectory, infos)
}

func (co *Coordinator) handleFetchAdminContact(connID, roomName string) {
	room, err := co.store.GetRoom(roomName)
	if errors.Is(err, store.ErrNotFound) {
		co.transport.Emit(connID, EvtAdminContactResult, "")
		return
	}
	if err != nil {
		log.Printf("error loading room %q: %v", roomName, err)
		return
	}
	co.transport.Emit(connID, EvtAdminContactResult, room.AdminContact)
}

func (co *Coordinator) HandleDisconnect(connID string) {
	state := co.registry.Unbind(connID)
	if state == nil || state.UserName == "" {
		return
	}

	if state.Room != "" {
		if err := co.presence.Deactivate(state.Room, state.UserName); err != nil {
			log.Printf("error deactivating %q in %q: %v", state.UserName, state.Room, err)
		}
		co.transport.Broadcast(state.Room, EvtChatMessage, notice(state.UserName+" has left the room"), "")
		co.broadcastMemberList(state.Room)
		co.refreshDirectory()
	}

	// Relays this connection never completed go back to the queue and, when
	// possible, straight to the next active key holder.
	for _, rel := range state.Relays {
		if err := co.keys.Requeue(rel); err != nil {
			log.Printf("error re-queueing key request of %q in %q: %v", rel.Req.UserName, rel.Room, err)
			continue
		}
		holder, ok, err := co.presence.FirstActive(rel.Room)
		if err != nil {
			log.Printf("error finding key holder for %q: %v", rel.Room, err)
			continue
		}
		if !ok || holder == rel.Req.UserName {
			continue
		}
		if holderConn, online := co.registry.LookupUser(holder); online {
			co.registry.AssignRelay(holderConn, rel.Room, rel.Req)
			co.transport.Emit(holderConn, EvtRelayKeyRequest, relayKeyRequest{
				RequesterName: rel.Req.UserName,
				PublicKey:     rel.Req.PublicKey,
			})
		}
	}
}

func (co *Coordinator) broadcastMemberList(room string) {
	users, err := co.presence.ListActive(room)
	if err != nil {
		log.Printf("error listing members of %q: %v", room, err)
		return
	}
	if users == nil {
		users = []string{}
	}
	co.transport.Broadcast(room, EvtMemberList, memberList{Users: users}, "")
}

func (co *Coordinator) refreshDirectory() {
	infos, err := co.directory.Search("", 0)
	if err != nil {
		log.Printf("error refreshing room directory: %v", err)
		return
	}
	if len(infos) > 0 {
		co.transport.BroadcastAll(EvtRoomDirectory, infos)
	}
}

func (co *Coordinator) notifyAdmin(room, requester string) {
	if co.notifier == nil {
		return
	}
	r, err := co.store.GetRoom(room)
	if err != nil || r.AdminContact == "" {
		return
	}
	go func() {
		if err := co.notifier.NotifyKeyRequest(r.AdminContact, room, requester); err != nil {
			log.Printf("error notifying admin of %q: %v", room, err)
		}
	}()
}

func decode(connID, event string, data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Printf("connection %s sent bad %s payload: %v", connID, event, err)
		return false
	}
	return true
}
