package sqlstore

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/okravets/sealchat/internal/models"
	"github.com/okravets/sealchat/internal/store"
)

func (s *SQLStore) CreateUser(user *models.User) error {
	query := s.rebind("INSERT INTO users (name, password_hash, public_key) VALUES (?, ?, ?)")
	_, err := s.db.Exec(query, user.Name, user.PasswordHash, user.PublicKey)
	if err != nil && isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *SQLStore) GetUserByName(name string) (*models.User, error) {
	var user models.User
	query := s.rebind("SELECT name, password_hash, COALESCE(public_key, '') FROM users WHERE name = ?")

	err := s.db.QueryRow(query, name).Scan(&user.Name, &user.PasswordHash, &user.PublicKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) UpdatePublicKey(name, publicKey string) error {
	query := s.rebind("UPDATE users SET public_key = ? WHERE name = ?")
	result, err := s.db.Exec(query, publicKey, name)
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

// isUniqueViolation matches unique-constraint errors from both drivers
// without importing their error types.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique")
}
