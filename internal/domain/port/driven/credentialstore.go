// Package driven defines the driven ports (secondary adapters) of the engine.
package driven

import (
	"context"
	"time"

	"github.com/kylewilkins/lifesync/internal/domain/model"
)

// CredentialFilter narrows a credential listing. Nil/zero fields are ignored.
type CredentialFilter struct {
	Platform model.Platform
	Type     model.CredentialType
	// Valid filters on the validity flag when non-nil.
	Valid *bool
}

// CredentialStore defines the driven port for credential persistence.
// Values cross this boundary as opaque ciphertext; encryption and
// decryption belong to the vault, not the store.
type CredentialStore interface {
	// Create persists a new credential. The ID must be set by the caller.
	Create(ctx context.Context, cred model.Credential) error

	// GetByID returns the credential, or model.ErrCredentialNotFound.
	GetByID(ctx context.Context, id string) (model.Credential, error)

	// List returns credentials matching the filter, newest first.
	List(ctx context.Context, filter CredentialFilter) ([]model.Credential, error)

	// Delete removes the credential. Deletion is always an explicit
	// administrative action; credentials never auto-expire.
	Delete(ctx context.Context, id string) error

	// UpdateValidation records the outcome of an explicit validation probe:
	// isValid, lastValidatedAt=now, and the error message (empty on success).
	UpdateValidation(ctx context.Context, id string, isValid bool, lastError string, now time.Time) error

	// RecordUsage increments the usage counter (and the failure counter when
	// success is false) and stores the next scheduled check time.
	RecordUsage(ctx context.Context, id string, success bool, nextCheckAt time.Time) error

	// ListDue returns valid auto-sync credentials whose NextCheckAt is at or
	// before now.
	ListDue(ctx context.Context, now time.Time) ([]model.Credential, error)
}
