// Package revocation keeps the list of revoked credentials.
//
// Entries are written once, after the revocation transaction is confirmed,
// and never removed.
package revocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agentattest/attest-core/pkg/store"
)

// ErrNotRevoked is returned by Get for credentials without a revocation entry.
var ErrNotRevoked = errors.New("credential is not revoked")

const keyPrefix = "revocation/"

// Revocation is a single revocation entry.
type Revocation struct {
	// CredentialID is the revoked credential.
	CredentialID string `json:"credentialId"`

	// RevokedAt is the revocation payload timestamp.
	RevokedAt time.Time `json:"revokedAt"`

	// Reason is the revocation reason.
	Reason string `json:"reason,omitempty"`

	// TransactionID is the hash of the revocation anchor.
	TransactionID string `json:"transactionId"`

	BlockHeight int64 `json:"blockHeight"`
}

// List is the revocation list stored in a key-value store.
type List struct {
	store store.Store
}

// NewList creates a List on top of s.
func NewList(s store.Store) *List {
	return &List{store: s}
}

// Add records a revocation. Adding a credential twice keeps the first entry.
func (l *List) Add(ctx context.Context, rev Revocation) error {
	if rev.CredentialID == "" {
		return errors.New("credential id is required")
	}

	revoked, err := l.IsRevoked(ctx, rev.CredentialID)
	if err != nil {
		return err
	}
	if revoked {
		return nil
	}

	data, err := json.Marshal(rev)
	if err != nil {
		return fmt.Errorf("failed to marshal revocation: %w", err)
	}
	return l.store.Set(ctx, keyPrefix+rev.CredentialID, data)
}

// IsRevoked reports whether credentialID has a revocation entry.
func (l *List) IsRevoked(ctx context.Context, credentialID string) (bool, error) {
	_, err := l.store.Get(ctx, keyPrefix+credentialID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Get returns the entry for credentialID, or ErrNotRevoked.
func (l *List) Get(ctx context.Context, credentialID string) (*Revocation, error) {
	data, err := l.store.Get(ctx, keyPrefix+credentialID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotRevoked
	}
	if err != nil {
		return nil, err
	}

	var rev Revocation
	if err := json.Unmarshal(data, &rev); err != nil {
		return nil, fmt.Errorf("failed to unmarshal revocation: %w", err)
	}
	return &rev, nil
}

// List returns all entries revoked at or after since, ordered by credential id.
// A zero since returns everything.
func (l *List) List(ctx context.Context, since time.Time) ([]Revocation, error) {
	entries, err := l.store.List(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}

	revs := make([]Revocation, 0, len(entries))
	for _, e := range entries {
		var rev Revocation
		if err := json.Unmarshal(e.Value, &rev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", e.Key, err)
		}
		if rev.RevokedAt.Before(since) {
			continue
		}
		revs = append(revs, rev)
	}
	return revs, nil
}
