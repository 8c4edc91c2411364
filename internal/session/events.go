package session

import (
	"time"

	"github.com/okravets/sealchat/internal/models"
)

// Client -> server events.
const (
	EvtVerifyCredentials   = "verifyCredentials"
	EvtEnterRoom           = "enterRoom"
	EvtSendMessage         = "sendMessage"
	EvtDeleteMessage       = "deleteMessage"
	EvtEditMessage         = "editMessage"
	EvtTypingActivity      = "typingActivity"
	EvtSearchRooms         = "searchRooms"
	EvtWriteSymmetricKey   = "writeSymmetricKeyForUser"
	EvtRequestSymmetricKey = "requestSymmetricKey"
	EvtFetchAdminContact   = "fetchAdminContact"
)

// Server -> client events.
const (
	EvtCredentialMismatch    = "credentialMismatch"
	EvtCredentialConfirmed   = "credentialConfirmed"
	EvtNeedsAdminContact     = "needsAdminContact"
	EvtRoomHistory           = "roomHistory"
	EvtChatMessage           = "chatMessage"
	EvtMessageDeleted        = "messageDeleted"
	EvtMessageEdited         = "messageEdited"
	EvtRoomDirectory         = "roomDirectory"
	EvtMemberList            = "memberList"
	EvtRelayKeyRequest       = "relayKeyRequest"
	EvtDeliverEncryptedKey   = "deliverEncryptedKey"
	EvtPendingRequestsQueued = "pendingRequestsQueued"
	EvtAdminContactResult    = "adminContactResult"
	EvtBootstrapSymmetricKey = "bootstrapSymmetricKey"
	EvtKeyRequestPending     = "keyRequestPending"
)

type verifyCredentialsPayload struct {
	Name         string `json:"name"`
	Room         string `json:"room"`
	UserPassword string `json:"userPassword"`
	RoomPassword string `json:"roomPassword"`
	AdminContact string `json:"adminContact,omitempty"`
}

type enterRoomPayload struct {
	UserName string `json:"userName"`
	RoomName string `json:"roomName"`
}

type sendMessagePayload struct {
	AuthorName string `json:"authorName"`
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
}

type deleteMessagePayload struct {
	Room string `json:"room"`
	ID   int64  `json:"id"`
}

type editMessagePayload struct {
	Room       string `json:"room"`
	ID         int64  `json:"id"`
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
}

type searchRoomsPayload struct {
	NamePattern     string `json:"namePattern"`
	MinParticipants int    `json:"minParticipants"`
}

type writeSymmetricKeyPayload struct {
	TargetUser   string `json:"targetUser"`
	Room         string `json:"room"`
	EncryptedKey string `json:"encryptedKey"`
	IsCreator    bool   `json:"isCreator"`
}

type requestSymmetricKeyPayload struct {
	UserName      string `json:"userName"`
	Room          string `json:"room"`
	UserPassword  string `json:"userPassword"`
	RoomPassword  string `json:"roomPassword"`
	AdminContact  string `json:"adminContact,omitempty"`
	PublicKey     string `json:"publicKey"`
	HasPrivateKey bool   `json:"hasPrivateKey"`
}

type credentialStatus struct {
	Kind      string `json:"kind"`
	IsCreator bool   `json:"isCreator,omitempty"`
}

// chatMessage is the live message payload. Service notices from "Admin"
// carry plain text in Ciphertext with an empty nonce.
type chatMessage struct {
	ID         int64     `json:"id,omitempty"`
	Author     string    `json:"author"`
	Ciphertext string    `json:"ciphertext"`
	Nonce      string    `json:"nonce"`
	Time       time.Time `json:"time"`
	Edited     bool      `json:"edited"`
}

type messageEdited struct {
	ID         int64  `json:"id"`
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
}

type memberList struct {
	Users []string `json:"users"`
}

type relayKeyRequest struct {
	RequesterName string `json:"requesterName"`
	PublicKey     string `json:"publicKey"`
}

type bootstrapKey struct {
	PublicKey string `json:"publicKey"`
}

func notice(text string) chatMessage {
	return chatMessage{Author: "Admin", Ciphertext: text, Time: time.Now().UTC()}
}

func toChatMessage(m *models.Message) chatMessage {
	return chatMessage{
		ID:         m.ID,
		Author:     m.Author,
		Ciphertext: m.Ciphertext,
		Nonce:      m.Nonce,
		Time:       m.Time,
		Edited:     m.Edited,
	}
}
