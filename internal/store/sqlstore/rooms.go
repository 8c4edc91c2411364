package sqlstore

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/okravets/sealchat/internal/models"
	"github.com/okravets/sealchat/internal/store"
)

func (s *SQLStore) CreateRoom(room *models.Room) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := s.rebind("INSERT INTO rooms (name, password_hash, admin_contact) VALUES (?, ?, ?)")
	if _, err := tx.Exec(query, room.Name, room.PasswordHash, room.AdminContact); err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}

	query = s.rebind("INSERT INTO participants (room_name, user_name, active, encrypted_key) VALUES (?, ?, ?, ?)")
	for _, p := range room.Participants {
		if _, err := tx.Exec(query, room.Name, p.UserName, p.Active, p.EncryptedKey); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLStore) GetRoom(name string) (*models.Room, error) {
	var room models.Room
	query := s.rebind("SELECT name, password_hash, COALESCE(admin_contact, '') FROM rooms WHERE name = ?")
	err := s.db.QueryRow(query, name).Scan(&room.Name, &room.PasswordHash, &room.AdminContact)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	query = s.rebind("SELECT user_name, active, COALESCE(encrypted_key, '') FROM participants WHERE room_name = ? ORDER BY id")
	rows, err := s.db.Query(query, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.UserName, &p.Active, &p.EncryptedKey); err != nil {
			return nil, err
		}
		room.Participants = append(room.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reqs, err := s.PendingKeyRequests(name)
	if err != nil {
		return nil, err
	}
	room.KeyRequests = reqs
	return &room, nil
}

func (s *SQLStore) RoomExists(name string) (bool, error) {
	var exists bool
	query := s.rebind("SELECT EXISTS(SELECT 1 FROM rooms WHERE name = ?)")
	err := s.db.QueryRow(query, name).Scan(&exists)
	return exists, err
}

func (s *SQLStore) SearchRooms(namePattern string, minParticipants int) ([]models.RoomInfo, error) {
	query := s.rebind(`
		SELECT r.name,
		       COUNT(p.id),
		       COALESCE(MAX(CASE WHEN p.active THEN 1 ELSE 0 END), 0)
		FROM rooms r
		LEFT JOIN participants p ON p.room_name = r.name
		WHERE LOWER(r.name) LIKE ?
		GROUP BY r.name
		HAVING COUNT(p.id) >= ?
		ORDER BY r.name
	`)
	pattern := "%" + strings.ToLower(namePattern) + "%"
	rows, err := s.db.Query(query, pattern, minParticipants)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []models.RoomInfo
	for rows.Next() {
		var info models.RoomInfo
		var active int
		if err := rows.Scan(&info.RoomName, &info.TotalParticipants, &active); err != nil {
			return nil, err
		}
		info.IsActive = active != 0
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *SQLStore) IsParticipant(room, user string) (bool, error) {
	var exists bool
	query := s.rebind("SELECT EXISTS(SELECT 1 FROM participants WHERE room_name = ? AND user_name = ?)")
	err := s.db.QueryRow(query, room, user).Scan(&exists)
	return exists, err
}

// AddParticipantIfAbsent is the conditional upsert both joins and key
// write-backs go through. ON CONFLICT DO NOTHING makes the
// check-then-append race between two connections of the same user safe.
// New participants start inactive; only a completed join activates them.
func (s *SQLStore) AddParticipantIfAbsent(room, user string) error {
	query := s.rebind(`
		INSERT INTO participants (room_name, user_name, active)
		VALUES (?, ?, FALSE)
		ON CONFLICT (room_name, user_name) DO NOTHING
	`)
	_, err := s.db.Exec(query, room, user)
	return err
}

func (s *SQLStore) SetParticipantActive(room, user string, active bool) error {
	query := s.rebind("UPDATE participants SET active = ? WHERE room_name = ? AND user_name = ?")
	result, err := s.db.Exec(query, active, room, user)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SQLStore) ActiveParticipants(room string) ([]string, error) {
	query := s.rebind("SELECT user_name FROM participants WHERE room_name = ? AND active = TRUE ORDER BY id")
	rows, err := s.db.Query(query, room)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		users = append(users, name)
	}
	return users, rows.Err()
}

// FirstActiveParticipant returns the earliest-inserted participant that is
// currently active, the default key holder for relaying the room key.
func (s *SQLStore) FirstActiveParticipant(room string) (string, error) {
	var name string
	query := s.rebind("SELECT user_name FROM participants WHERE room_name = ? AND active = TRUE ORDER BY id LIMIT 1")
	err := s.db.QueryRow(query, room).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	return name, err
}

func (s *SQLStore) SetEncryptedKey(room, user, encryptedKey string) error {
	query := s.rebind("UPDATE participants SET encrypted_key = ? WHERE room_name = ? AND user_name = ?")
	result, err := s.db.Exec(query, encryptedKey, room, user)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SQLStore) GetEncryptedKey(room, user string) (string, error) {
	var key string
	query := s.rebind("SELECT COALESCE(encrypted_key, '') FROM participants WHERE room_name = ? AND user_name = ?")
	err := s.db.QueryRow(query, room, user).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	return key, err
}

func (s *SQLStore) ResetPresence() error {
	_, err := s.db.Exec("UPDATE participants SET active = FALSE")
	return err
}

// EnqueueKeyRequest upserts, so a requester retrying with a fresh public
// key replaces its old entry instead of queueing twice.
func (s *SQLStore) EnqueueKeyRequest(room string, req models.KeyRequest) error {
	query := s.rebind(`
		INSERT INTO key_requests (room_name, user_name, public_key)
		VALUES (?, ?, ?)
		ON CONFLICT (room_name, user_name) DO UPDATE SET public_key = excluded.public_key
	`)
	_, err := s.db.Exec(query, room, req.UserName, req.PublicKey)
	return err
}

func (s *SQLStore) PendingKeyRequests(room string) ([]models.KeyRequest, error) {
	query := s.rebind("SELECT user_name, public_key FROM key_requests WHERE room_name = ? ORDER BY id")
	rows, err := s.db.Query(query, room)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []models.KeyRequest
	for rows.Next() {
		var req models.KeyRequest
		if err := rows.Scan(&req.UserName, &req.PublicKey); err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func (s *SQLStore) DeleteKeyRequest(room, user string) error {
	query := s.rebind("DELETE FROM key_requests WHERE room_name = ? AND user_name = ?")
	_, err := s.db.Exec(query, room, user)
	return err
}

func (s *SQLStore) DrainKeyRequests(room string) ([]models.KeyRequest, error) {
	query := s.rebind("DELETE FROM key_requests WHERE room_name = ? RETURNING user_name, public_key")
	rows, err := s.db.Query(query, room)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []models.KeyRequest
	for rows.Next() {
		var req models.KeyRequest
		if err := rows.Scan(&req.UserName, &req.PublicKey); err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}
