// Package authority manages the issuing authority's keys.
//
// The ledger keypair is derived from a Base58 seed on every call. When the
// seed cannot be used the manager logs the failure and hands out a freshly
// generated keypair flagged as ephemeral, so callers can refuse to anchor
// with it.
package authority

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"go.uber.org/zap"

	"github.com/agentattest/attest-core/internal/log"
	"github.com/agentattest/attest-core/pkg/did"
	"github.com/agentattest/attest-core/pkg/ledger"
)

// DefaultSeed is the development seed. Production deployments must override it.
const DefaultSeed = "4zvwRjX9q4zvwRjX9q4zvwRjX9q4zvwRjX9q4zvwRjX9q4zvwRjX9q4zvwRjX9q4zvwRjX9"

// DefaultName is the issuer name written into credentials.
const DefaultName = "AgentAttest Root Authority"

// Keypair is the authority's ledger keypair.
type Keypair struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"-"`

	// Ephemeral is set when the configured seed could not be used.
	Ephemeral bool `json:"ephemeral"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithName sets the issuer name.
func WithName(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.name = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithKeyFuncs replaces ledger key derivation and generation.
func WithKeyFuncs(derive func(seed string) (string, error), generate func() (ledger.Keypair, error)) Option {
	return func(m *Manager) {
		if derive != nil {
			m.derive = derive
		}
		if generate != nil {
			m.generate = generate
		}
	}
}

// Manager derives authority keys from a configured seed.
type Manager struct {
	seed     string
	name     string
	logger   *zap.Logger
	derive   func(string) (string, error)
	generate func() (ledger.Keypair, error)
}

// NewManager creates a Manager. An empty seed uses DefaultSeed.
func NewManager(seed string, opts ...Option) *Manager {
	if seed == "" {
		seed = DefaultSeed
	}
	m := &Manager{
		seed:     seed,
		name:     DefaultName,
		logger:   zap.NewNop(),
		derive:   ledger.DerivePublicKey,
		generate: ledger.GenerateKeypair,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the issuer name.
func (m *Manager) Name() string {
	return m.name
}

// Keypair derives the authority keypair. It never fails: if derivation fails
// an ephemeral keypair is returned and the failure is logged at error level.
func (m *Manager) Keypair() Keypair {
	pub, err := m.derive(m.seed)
	if err == nil {
		return Keypair{PublicKey: pub, PrivateKey: m.seed}
	}

	m.logger.Error("authority key derivation failed, using ephemeral keypair", log.WithError(err))

	kp, genErr := m.generate()
	if genErr != nil {
		m.logger.Error("ephemeral keypair generation failed", log.WithError(genErr))
		return Keypair{Ephemeral: true}
	}
	return Keypair{PublicKey: kp.PublicKey, PrivateKey: kp.PrivateKey, Ephemeral: true}
}

// DID returns the authority's ledger DID, or "" when the keypair is ephemeral.
func (m *Manager) DID() string {
	kp := m.Keypair()
	if kp.Ephemeral {
		return ""
	}
	return did.NewLedgerDID(kp.PublicKey)
}

// SigningKey returns the Ed25519 key used for credential proofs and its key ID.
// It is derived from the SHA-256 of the decoded seed.
func (m *Manager) SigningKey() (ed25519.PrivateKey, string, error) {
	raw, err := ledger.DecodeSeed(m.seed)
	if err != nil {
		return nil, "", fmt.Errorf("failed to derive signing key: %w", err)
	}
	sum := sha256.Sum256(raw)
	priv := ed25519.NewKeyFromSeed(sum[:])
	kid := did.NewKeyDID(priv.Public().(ed25519.PublicKey))
	return priv, kid, nil
}

// JWKS returns the public proof key as a JSON Web Key Set.
func (m *Manager) JWKS() (*jose.JSONWebKeySet, error) {
	priv, kid, err := m.SigningKey()
	if err != nil {
		return nil, err
	}
	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       priv.Public(),
			KeyID:     kid,
			Algorithm: string(jose.EdDSA),
			Use:       "sig",
		}},
	}, nil
}
