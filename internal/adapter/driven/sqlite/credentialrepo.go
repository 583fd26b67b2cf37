package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kylewilkins/lifesync/internal/domain/model"
	"github.com/kylewilkins/lifesync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port.
// Values are stored as the opaque ciphertext handed to it; the repo never
// sees plaintext secrets.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

const credentialColumns = `id, platform, type, encrypted_value, metadata, is_valid,
	last_validated_at, last_error, usage_count, failure_count, auto_sync,
	sync_frequency, next_check_at, created_at, updated_at`

// Create persists a new credential.
func (r *CredentialRepo) Create(ctx context.Context, cred model.Credential) error {
	metadata := cred.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var lastValidated any
	if cred.LastValidatedAt != nil {
		lastValidated = formatTime(*cred.LastValidatedAt)
	}

	const query = `
		INSERT INTO credentials (` + credentialColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Writer.ExecContext(ctx, query,
		cred.ID, string(cred.Platform), string(cred.Type), cred.EncryptedValue,
		string(metaJSON), boolToInt(cred.IsValid), lastValidated, cred.LastError,
		cred.UsageCount, cred.FailureCount, boolToInt(cred.AutoSync),
		string(cred.SyncFrequency), formatTime(cred.NextCheckAt),
		formatTime(cred.CreatedAt), formatTime(cred.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

// GetByID returns the credential, or model.ErrCredentialNotFound.
func (r *CredentialRepo) GetByID(ctx context.Context, id string) (model.Credential, error) {
	const query = `SELECT ` + credentialColumns + ` FROM credentials WHERE id = ?`

	cred, err := scanCredential(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Credential{}, model.ErrCredentialNotFound
	}
	if err != nil {
		return model.Credential{}, fmt.Errorf("get credential %q: %w", id, err)
	}
	return cred, nil
}

// List returns credentials matching the filter, newest first.
func (r *CredentialRepo) List(ctx context.Context, filter driven.CredentialFilter) ([]model.Credential, error) {
	var (
		where []string
		args  []any
	)
	if filter.Platform != "" {
		where = append(where, "platform = ?")
		args = append(args, string(filter.Platform))
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Valid != nil {
		where = append(where, "is_valid = ?")
		args = append(args, boolToInt(*filter.Valid))
	}

	query := `SELECT ` + credentialColumns + ` FROM credentials`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return creds, nil
}

// Delete removes the credential by id.
func (r *CredentialRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.Writer.ExecContext(ctx, `DELETE FROM credentials WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete credential %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete credential %q: %w", id, err)
	}
	if n == 0 {
		return model.ErrCredentialNotFound
	}
	return nil
}

// UpdateValidation records the outcome of an explicit validation probe.
func (r *CredentialRepo) UpdateValidation(ctx context.Context, id string, isValid bool, lastError string, now time.Time) error {
	const query = `
		UPDATE credentials
		SET is_valid = ?, last_validated_at = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := r.db.Writer.ExecContext(ctx, query,
		boolToInt(isValid), formatTime(now), lastError, formatTime(now), id)
	if err != nil {
		return fmt.Errorf("update credential validation %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update credential validation %q: %w", id, err)
	}
	if n == 0 {
		return model.ErrCredentialNotFound
	}
	return nil
}

// RecordUsage increments counters after a sync run and stores the next
// scheduled check time.
func (r *CredentialRepo) RecordUsage(ctx context.Context, id string, success bool, nextCheckAt time.Time) error {
	failureInc := 0
	if !success {
		failureInc = 1
	}

	const query = `
		UPDATE credentials
		SET usage_count = usage_count + 1,
		    failure_count = failure_count + ?,
		    next_check_at = ?,
		    updated_at = ?
		WHERE id = ?
	`
	res, err := r.db.Writer.ExecContext(ctx, query,
		failureInc, formatTime(nextCheckAt), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("record credential usage %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record credential usage %q: %w", id, err)
	}
	if n == 0 {
		return model.ErrCredentialNotFound
	}
	return nil
}

// ListDue returns valid auto-sync credentials whose next check is due.
func (r *CredentialRepo) ListDue(ctx context.Context, now time.Time) ([]model.Credential, error) {
	const query = `
		SELECT ` + credentialColumns + `
		FROM credentials
		WHERE is_valid = 1 AND auto_sync = 1 AND next_check_at <= ?
		ORDER BY next_check_at
	`
	rows, err := r.db.Reader.QueryContext(ctx, query, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("list due credentials: %w", err)
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due credentials: %w", err)
	}
	return creds, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (model.Credential, error) {
	var (
		cred          model.Credential
		platform      string
		credType      string
		metaJSON      string
		isValid       int
		lastValidated sql.NullString
		autoSync      int
		frequency     string
		nextCheckAt   string
		createdAt     string
		updatedAt     string
	)
	err := row.Scan(&cred.ID, &platform, &credType, &cred.EncryptedValue, &metaJSON,
		&isValid, &lastValidated, &cred.LastError, &cred.UsageCount,
		&cred.FailureCount, &autoSync, &frequency, &nextCheckAt, &createdAt, &updatedAt)
	if err != nil {
		return model.Credential{}, err
	}

	cred.Platform = model.Platform(platform)
	cred.Type = model.CredentialType(credType)
	cred.IsValid = isValid != 0
	cred.AutoSync = autoSync != 0
	cred.SyncFrequency = model.SyncFrequency(frequency)

	if err := json.Unmarshal([]byte(metaJSON), &cred.Metadata); err != nil {
		return model.Credential{}, fmt.Errorf("unmarshal metadata: %w", err)
	}

	if lastValidated.Valid {
		t, err := parseTime(lastValidated.String)
		if err != nil {
			return model.Credential{}, err
		}
		cred.LastValidatedAt = &t
	}
	if cred.NextCheckAt, err = parseTime(nextCheckAt); err != nil {
		return model.Credential{}, err
	}
	if cred.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Credential{}, err
	}
	if cred.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Credential{}, err
	}
	return cred, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
