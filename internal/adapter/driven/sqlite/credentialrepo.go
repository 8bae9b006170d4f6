package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ericfisherdev/blocksync/internal/domain/model"
	"github.com/ericfisherdev/blocksync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// Credential values are encrypted with AES-256-GCM before write and decrypted after read.
type CredentialRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil when encryption is disabled.
	now func() time.Time
}

// NewCredentialRepo creates a new CredentialRepo. key must be 32 bytes for AES-256-GCM,
// or nil to disable credential storage (all operations will return ErrEncryptionKeyNotSet).
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, key: key, now: time.Now}
}

// Upsert writes one row per non-empty token in the bundle inside a single
// transaction. Rows for token types missing from the bundle are not touched.
func (r *CredentialRepo) Upsert(ctx context.Context, bundle model.CredentialBundle, platform model.Platform) error {
	if r.key == nil {
		return driven.ErrEncryptionKeyNotSet
	}

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin credential upsert for %q: %w", platform, err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `
		INSERT INTO credentials (key, platform, token_type, value, expires, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			expires    = excluded.expires,
			updated_at = excluded.updated_at`

	var written int
	for _, tt := range model.AllTokenTypes() {
		value := bundle.Value(tt)
		if value == "" {
			slog.Debug("no value for token type", "platform", platform, "token_type", tt)
			continue
		}

		encrypted, err := r.encrypt(value)
		if err != nil {
			return err
		}

		key := model.CredentialKey(platform, tt)
		var expires int64
		if !bundle.Expires.IsZero() {
			expires = bundle.Expires.Unix()
		}

		if _, err := tx.ExecContext(ctx, query,
			key, string(platform), string(tt), encrypted, expires, formatTime(r.now()),
		); err != nil {
			return fmt.Errorf("upsert credential %q: %w", key, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credential upsert for %q: %w", platform, err)
	}

	slog.Info("credentials upserted", "platform", platform, "token_types", written)
	return nil
}

// GetByPlatform returns all stored records for the platform with decrypted values.
func (r *CredentialRepo) GetByPlatform(ctx context.Context, platform model.Platform) ([]model.CredentialRecord, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT key, platform, token_type, value, expires, updated_at FROM credentials WHERE platform = ? ORDER BY token_type`
	rows, err := r.db.Reader.QueryContext(ctx, query, string(platform))
	if err != nil {
		return nil, fmt.Errorf("list credentials for %q: %w", platform, err)
	}
	defer rows.Close()

	creds := []model.CredentialRecord{}
	for rows.Next() {
		cred, err := r.scanCredential(rows)
		if err != nil {
			var rowErr *corruptRowError
			if errors.As(err, &rowErr) {
				slog.Warn("skipping unreadable credential", "key", rowErr.key, "error", rowErr.err)
				continue
			}
			return nil, err
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

// Get returns the record for the platform and token type, or (nil, nil) if absent.
func (r *CredentialRepo) Get(ctx context.Context, platform model.Platform, tokenType model.TokenType) (*model.CredentialRecord, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	key := model.CredentialKey(platform, tokenType)
	const query = `SELECT key, platform, token_type, value, expires, updated_at FROM credentials WHERE key = ?`
	cred, err := r.scanCredential(r.db.Reader.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *CredentialRepo) scanCredential(s rowScanner) (model.CredentialRecord, error) {
	var cred model.CredentialRecord
	var platform, tokenType, encrypted, updatedAt string
	var expires int64

	if err := s.Scan(&cred.Key, &platform, &tokenType, &encrypted, &expires, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cred, err
		}
		return cred, fmt.Errorf("scan credential: %w", err)
	}

	var err error
	cred.Platform, err = model.ParsePlatform(platform)
	if err != nil {
		return cred, &corruptRowError{key: cred.Key, err: err}
	}
	cred.TokenType, err = model.ParseTokenType(tokenType)
	if err != nil {
		return cred, &corruptRowError{key: cred.Key, err: err}
	}

	cred.Value, err = r.decrypt(encrypted)
	if err != nil {
		return cred, &corruptRowError{key: cred.Key, err: fmt.Errorf("decrypt: %w", err)}
	}

	cred.Expires = time.Unix(expires, 0)
	cred.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return cred, &corruptRowError{key: cred.Key, err: fmt.Errorf("updated_at: %w", err)}
	}

	return cred, nil
}

// encrypt encrypts plaintext using AES-256-GCM and returns a base64-encoded string
// containing the nonce (12 bytes) prepended to the ciphertext.
func (r *CredentialRepo) encrypt(plaintext string) (string, error) {
	gcm, err := r.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext.
func (r *CredentialRepo) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	gcm, err := r.aead()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}

	return string(plaintext), nil
}

func (r *CredentialRepo) aead() (cipher.AEAD, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}
	block, err := aes.NewCipher(r.key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
