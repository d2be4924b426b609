package database

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"wanderplan/internal/models"
)

const csrfTokenLifetime = time.Hour

// CreateCSRFToken issues a token bound to a browser session id.
func CreateCSRFToken(db *sql.DB, sessionID string) (*models.CSRFToken, error) {
	token, err := generateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSRF token: %w", err)
	}

	now := time.Now().UTC()
	expiresAt := now.Add(csrfTokenLifetime)

	query := `
		INSERT INTO csrf_tokens (token, session_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := db.Exec(query, token, sessionID, expiresAt, now); err != nil {
		return nil, fmt.Errorf("failed to create CSRF token: %w", err)
	}

	return &models.CSRFToken{
		Token:     token,
		SessionID: sessionID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

// ValidateCSRFToken checks the token belongs to the session and is unexpired.
// Tokens stay valid until expiry so a page can issue several requests.
func ValidateCSRFToken(db *sql.DB, token, sessionID string) error {
	query := `
		SELECT 1
		FROM csrf_tokens
		WHERE token = ? AND session_id = ? AND expires_at > ?
	`

	var exists int
	err := db.QueryRow(query, token, sessionID, time.Now().UTC()).Scan(&exists)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("CSRF token not found or expired")
		}
		return fmt.Errorf("failed to validate CSRF token: %w", err)
	}
	return nil
}

func DeleteCSRFTokens(db *sql.DB, sessionID string) error {
	if _, err := db.Exec(`DELETE FROM csrf_tokens WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete CSRF tokens: %w", err)
	}
	return nil
}

func CleanupExpiredCSRFTokens(db *sql.DB) error {
	_, err := db.Exec(`DELETE FROM csrf_tokens WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to cleanup expired CSRF tokens: %w", err)
	}
	return nil
}

func generateSecureToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
