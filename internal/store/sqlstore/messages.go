package sqlstore

import (
	"github.com/okravets/sealchat/internal/models"
	"github.com/okravets/sealchat/internal/store"
)

func (s *SQLStore) AppendMessage(msg *models.Message) (int64, error) {
	var id int64
	query := s.rebind(`
		INSERT INTO messages (room_name, author, ciphertext, nonce, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id
	`)
	err := s.db.QueryRow(query, msg.Room, msg.Author, msg.Ciphertext, msg.Nonce, msg.Time).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// RoomMessages returns the room's history in insertion order, tombstoned
// messages excluded.
func (s *SQLStore) RoomMessages(room string) ([]models.Message, error) {
	query := s.rebind(`
		SELECT id, room_name, author, ciphertext, nonce, created_at, deleted, edited
		FROM messages
		WHERE room_name = ? AND deleted = FALSE
		ORDER BY id
	`)
	rows, err := s.db.Query(query, room)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.Room, &m.Author, &m.Ciphertext, &m.Nonce, &m.Time, &m.Deleted, &m.Edited); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SQLStore) MarkMessageDeleted(room string, id int64) error {
	query := s.rebind("UPDATE messages SET deleted = TRUE WHERE room_name = ? AND id = ?")
	result, err := s.db.Exec(query, room, id)
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

func (s *SQLStore) UpdateMessage(room string, id int64, ciphertext, nonce string) error {
	query := s.rebind("UPDATE messages SET ciphertext = ?, nonce = ?, edited = TRUE WHERE room_name = ? AND id = ? AND deleted = FALSE")
	result, err := s.db.Exec(query, ciphertext, nonce, room, id)
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
