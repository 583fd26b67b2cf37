// Package model contains the domain entities of the sync engine.
package model

import "time"

// Credential holds an encrypted third-party secret plus its sync bookkeeping.
// EncryptedValue is opaque ciphertext and is never stored or logged as
// plaintext. Validity fields are mutated only by explicit validation;
// usage/failure counters and NextCheckAt are mutated by sync runs.
type Credential struct {
	ID              string
	Platform        Platform
	Type            CredentialType
	EncryptedValue  string
	Metadata        map[string]string
	IsValid         bool
	LastValidatedAt *time.Time
	LastError       string
	UsageCount      int
	FailureCount    int
	AutoSync        bool
	SyncFrequency   SyncFrequency
	NextCheckAt     time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Meta returns a metadata value, or "" when absent.
func (c Credential) Meta(key string) string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}
