package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kylewilkins/lifesync/internal/crypto"
	"github.com/kylewilkins/lifesync/internal/domain/model"
	"github.com/kylewilkins/lifesync/internal/domain/port/driven"
)

// CredentialService manages the lifecycle of encrypted platform credentials:
// creation, validation probes, masked listing, and deletion.
type CredentialService struct {
	creds    driven.CredentialStore
	registry *Registry
	vault    *crypto.Vault
	now      func() time.Time
}

// NewCredentialService creates a CredentialService with all required dependencies.
func NewCredentialService(creds driven.CredentialStore, registry *Registry, vault *crypto.Vault) *CredentialService {
	return &CredentialService{
		creds:    creds,
		registry: registry,
		vault:    vault,
		now:      time.Now,
	}
}

// CreateInput carries the administrative create request.
type CreateInput struct {
	Platform      model.Platform
	Type          model.CredentialType
	Secret        string
	Metadata      map[string]string
	AutoSync      bool
	SyncFrequency model.SyncFrequency
}

// Create encrypts the secret (a no-op if it already carries the ciphertext
// format) and persists the credential with its first scheduled check time.
func (s *CredentialService) Create(ctx context.Context, in CreateInput) (model.Credential, error) {
	if _, err := s.registry.Get(in.Platform); err != nil {
		return model.Credential{}, err
	}
	if in.Secret == "" {
		return model.Credential{}, fmt.Errorf("credential secret must not be empty")
	}
	if in.SyncFrequency == "" {
		in.SyncFrequency = model.FrequencyDaily
	}

	encrypted, err := s.vault.EncryptIfNeeded(in.Secret)
	if err != nil {
		return model.Credential{}, fmt.Errorf("encrypt credential: %w", err)
	}

	now := s.now().UTC()
	cred := model.Credential{
		ID:             uuid.NewString(),
		Platform:       in.Platform,
		Type:           in.Type,
		EncryptedValue: encrypted,
		Metadata:       in.Metadata,
		// New credentials count as valid until a probe or sync says otherwise.
		IsValid:       true,
		AutoSync:      in.AutoSync,
		SyncFrequency: in.SyncFrequency,
		NextCheckAt:   in.SyncFrequency.NextCheckAfter(now),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.creds.Create(ctx, cred); err != nil {
		return model.Credential{}, err
	}

	slog.Info("credential created",
		"credential_id", cred.ID,
		"platform", cred.Platform,
		"type", cred.Type,
		"auto_sync", cred.AutoSync,
		"sync_frequency", cred.SyncFrequency,
	)
	return cred, nil
}

// ValidationResult is the outcome of an explicit probe.
type ValidationResult struct {
	IsValid bool
	Error   string
}

// Validate re-runs the platform's lightweight probe and persists the outcome.
// An explicit auth rejection marks the credential invalid; a transient
// network failure is recorded but is not proof of invalidity, so the
// validity flag keeps its previous value.
func (s *CredentialService) Validate(ctx context.Context, id string) (ValidationResult, error) {
	cred, err := s.creds.GetByID(ctx, id)
	if err != nil {
		return ValidationResult{}, err
	}

	client, err := s.registry.Get(cred.Platform)
	if err != nil {
		return ValidationResult{}, err
	}

	probeErr := s.probe(ctx, client, cred)
	now := s.now().UTC()

	switch {
	case probeErr == nil:
		if err := s.creds.UpdateValidation(ctx, id, true, "", now); err != nil {
			return ValidationResult{}, err
		}
		return ValidationResult{IsValid: true}, nil

	case model.IsAuthRejected(probeErr):
		if err := s.creds.UpdateValidation(ctx, id, false, probeErr.Error(), now); err != nil {
			return ValidationResult{}, err
		}
		return ValidationResult{IsValid: false, Error: probeErr.Error()}, nil

	default:
		// Timeout, DNS, 5xx: keep the current validity verdict.
		if err := s.creds.UpdateValidation(ctx, id, cred.IsValid, probeErr.Error(), now); err != nil {
			return ValidationResult{}, err
		}
		return ValidationResult{IsValid: cred.IsValid, Error: probeErr.Error()}, nil
	}
}

// probe bounds the plaintext secret's lifetime to the probe call.
func (s *CredentialService) probe(ctx context.Context, client driven.PlatformClient, cred model.Credential) error {
	secret, err := s.vault.Decrypt(cred.EncryptedValue)
	if err != nil {
		return fmt.Errorf("decrypt credential %s: %w", cred.ID, err)
	}
	return client.Probe(ctx, secret, cred.Metadata)
}

// MaskedCredential is the external view of a credential. It never carries
// the plaintext secret.
type MaskedCredential struct {
	ID              string
	Platform        model.Platform
	Type            model.CredentialType
	MaskedValue     string
	Metadata        map[string]string
	IsValid         bool
	LastValidatedAt *time.Time
	LastError       string
	UsageCount      int
	FailureCount    int
	AutoSync        bool
	SyncFrequency   model.SyncFrequency
	NextCheckAt     time.Time
	CreatedAt       time.Time
}

// List returns credentials matching the filter with masked secret previews.
func (s *CredentialService) List(ctx context.Context, filter driven.CredentialFilter) ([]MaskedCredential, error) {
	creds, err := s.creds.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	masked := make([]MaskedCredential, 0, len(creds))
	for _, cred := range creds {
		masked = append(masked, s.mask(cred))
	}
	return masked, nil
}

// Get returns a single credential with a masked secret preview.
func (s *CredentialService) Get(ctx context.Context, id string) (MaskedCredential, error) {
	cred, err := s.creds.GetByID(ctx, id)
	if err != nil {
		return MaskedCredential{}, err
	}
	return s.mask(cred), nil
}

// Delete removes a credential. This is the only deletion path; credentials
// never auto-expire.
func (s *CredentialService) Delete(ctx context.Context, id string) error {
	if err := s.creds.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("credential deleted", "credential_id", id)
	return nil
}

func (s *CredentialService) mask(cred model.Credential) MaskedCredential {
	preview := "••••"
	if secret, err := s.vault.Decrypt(cred.EncryptedValue); err == nil {
		preview = crypto.Mask(secret)
	}
	return MaskedCredential{
		ID:              cred.ID,
		Platform:        cred.Platform,
		Type:            cred.Type,
		MaskedValue:     preview,
		Metadata:        cred.Metadata,
		IsValid:         cred.IsValid,
		LastValidatedAt: cred.LastValidatedAt,
		LastError:       cred.LastError,
		UsageCount:      cred.UsageCount,
		FailureCount:    cred.FailureCount,
		AutoSync:        cred.AutoSync,
		SyncFrequency:   cred.SyncFrequency,
		NextCheckAt:     cred.NextCheckAt,
		CreatedAt:       cred.CreatedAt,
	}
}
