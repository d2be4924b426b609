package database

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal("Failed to open test database:", err)
	}
	db.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		t.Fatal("Failed to run migrations:", err)
	}

	return db
}

func TestTokenPersistence(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewSessionStore(db, "test-secret", time.Hour)

	if _, err := store.LoadToken("browser-1"); err != ErrNoToken {
		t.Fatalf("Expected ErrNoToken for unknown session, got %v", err)
	}

	if err := store.SaveToken("browser-1", "1|plaintext-token"); err != nil {
		t.Fatal("Failed to save token:", err)
	}

	token, err := store.LoadToken("browser-1")
	if err != nil {
		t.Fatal("Failed to load token:", err)
	}
	if token != "1|plaintext-token" {
		t.Errorf("Expected stored token back, got %q", token)
	}

	var raw []byte
	if err := db.QueryRow(`SELECT token_ciphertext FROM sessions WHERE id = ?`, "browser-1").Scan(&raw); err != nil {
		t.Fatal("Failed to read raw row:", err)
	}
	if string(raw) == "1|plaintext-token" {
		t.Error("Expected token to be sealed at rest")
	}

	if err := store.SaveToken("browser-1", "2|rotated"); err != nil {
		t.Fatal("Failed to overwrite token:", err)
	}
	if token, _ := store.LoadToken("browser-1"); token != "2|rotated" {
		t.Errorf("Expected rotated token, got %q", token)
	}

	if err := store.ClearToken("browser-1"); err != nil {
		t.Fatal("Failed to clear token:", err)
	}
	if _, err := store.LoadToken("browser-1"); err != ErrNoToken {
		t.Errorf("Expected ErrNoToken after clear, got %v", err)
	}
}

func TestWrongKeyCannotOpenToken(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if err := NewSessionStore(db, "key-a", time.Hour).SaveToken("browser-1", "secret"); err != nil {
		t.Fatal("Failed to save token:", err)
	}
	if _, err := NewSessionStore(db, "key-b", time.Hour).LoadToken("browser-1"); err == nil {
		t.Error("Expected decryption failure with a different key")
	}
}

func TestClearTokenValue(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewSessionStore(db, "test-secret", time.Hour)
	store.SaveToken("tab-a", "shared")
	store.SaveToken("tab-b", "shared")
	store.SaveToken("tab-c", "other")

	ids, err := store.ClearTokenValue("shared")
	if err != nil {
		t.Fatal("Failed to clear by value:", err)
	}
	if len(ids) != 2 {
		t.Errorf("Expected 2 cleared sessions, got %v", ids)
	}
	if _, err := store.LoadToken("tab-a"); err != ErrNoToken {
		t.Error("Expected tab-a to be cleared")
	}
	if token, _ := store.LoadToken("tab-c"); token != "other" {
		t.Error("Expected tab-c to be untouched")
	}
}

func TestExpiredSessionsAreIgnoredAndCleaned(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewSessionStore(db, "test-secret", -time.Minute)
	if err := store.SaveToken("stale", "old-token"); err != nil {
		t.Fatal("Failed to save token:", err)
	}
	if _, err := store.LoadToken("stale"); err != ErrNoToken {
		t.Errorf("Expected expired token to be ignored, got %v", err)
	}

	if err := CleanupExpiredSessions(db); err != nil {
		t.Fatal("Failed to cleanup sessions:", err)
	}
	var count int
	db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count)
	if count != 0 {
		t.Errorf("Expected expired session to be removed, %d remain", count)
	}
}

func TestCSRFTokens(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	token, err := CreateCSRFToken(db, "browser-1")
	if err != nil {
		t.Fatal("Failed to create CSRF token:", err)
	}

	if err := ValidateCSRFToken(db, token.Token, "browser-1"); err != nil {
		t.Errorf("Expected token to validate: %v", err)
	}
	if err := ValidateCSRFToken(db, token.Token, "browser-1"); err != nil {
		t.Errorf("Expected token to stay valid for reuse: %v", err)
	}
	if err := ValidateCSRFToken(db, token.Token, "browser-2"); err == nil {
		t.Error("Expected token to be rejected for another session")
	}

	if err := DeleteCSRFTokens(db, "browser-1"); err != nil {
		t.Fatal("Failed to delete CSRF tokens:", err)
	}
	if err := ValidateCSRFToken(db, token.Token, "browser-1"); err == nil {
		t.Error("Expected deleted token to be rejected")
	}
}
