package database

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/nacl/secretbox"
)

var ErrNoToken = errors.New("no token stored for session")

// SessionStore persists one bearer token per browser session id. Tokens are
// sealed with secretbox; token_hash allows lookup by value.
type SessionStore struct {
	db       *sql.DB
	key      [32]byte
	duration time.Duration
}

func NewSessionStore(db *sql.DB, secretKey string, duration time.Duration) *SessionStore {
	return &SessionStore{
		db:       db,
		key:      sha256.Sum256([]byte(secretKey)),
		duration: duration,
	}
}

func (s *SessionStore) SaveToken(sessionID, token string) error {
	sealed, err := s.seal(token)
	if err != nil {
		return fmt.Errorf("failed to seal token: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO sessions (id, token_ciphertext, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token_ciphertext = excluded.token_ciphertext,
			token_hash = excluded.token_hash,
			expires_at = excluded.expires_at
	`
	_, err = s.db.Exec(query, sessionID, sealed, hashToken(token), now.Add(s.duration), now)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// LoadToken returns the stored token and slides its expiry forward.
func (s *SessionStore) LoadToken(sessionID string) (string, error) {
	var sealed []byte
	query := `SELECT token_ciphertext FROM sessions WHERE id = ? AND expires_at > ?`
	err := s.db.QueryRow(query, sessionID, time.Now().UTC()).Scan(&sealed)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("failed to load token: %w", err)
	}

	token, err := s.open(sealed)
	if err != nil {
		return "", err
	}

	if _, err := s.db.Exec(`UPDATE sessions SET expires_at = ? WHERE id = ?`,
		time.Now().UTC().Add(s.duration), sessionID); err != nil {
		return "", fmt.Errorf("failed to renew session: %w", err)
	}

	return token, nil
}

func (s *SessionStore) ClearToken(sessionID string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}

// ClearTokenValue removes every session holding token and returns their ids.
func (s *SessionStore) ClearTokenValue(token string) ([]string, error) {
	hash := hashToken(token)

	rows, err := s.db.Query(`SELECT id FROM sessions WHERE token_hash = ?`, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	if _, err := s.db.Exec(`DELETE FROM sessions WHERE token_hash = ?`, hash); err != nil {
		return nil, fmt.Errorf("failed to clear token: %w", err)
	}
	return ids, nil
}

func CleanupExpiredSessions(db *sql.DB) error {
	_, err := db.Exec(`DELETE FROM sessions WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to cleanup expired sessions: %w", err)
	}
	return nil
}

func (s *SessionStore) seal(token string) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], []byte(token), &nonce, &s.key), nil
}

func (s *SessionStore) open(sealed []byte) (string, error) {
	if len(sealed) < 24+secretbox.Overhead {
		return "", fmt.Errorf("stored token is corrupt")
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &s.key)
	if !ok {
		return "", fmt.Errorf("stored token could not be decrypted")
	}
	return string(plain), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
