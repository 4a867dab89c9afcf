// Package ledger is a thin client library for the Amadeus ledger network.
// It covers key derivation, transaction building and signing, and the
// HTTP submission and lookup endpoints exposed by network nodes.
package ledger

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/bls"
	"github.com/mr-tron/base58"
)

// Key sizes used on the network.
const (
	// SeedSize is the size of a freshly generated seed in bytes.
	SeedSize = 64

	// MinSeedSize is the minimum accepted seed length in bytes.
	MinSeedSize = 32
)

// keyGenSalt is the IETF BLS KeyGen salt.
var keyGenSalt = []byte("BLS-SIG-KEYGEN-SALT-")

// Common key errors.
var (
	ErrInvalidSeed      = errors.New("invalid seed")
	ErrInvalidPublicKey = errors.New("invalid public key")
)

// Keypair is a Base58 encoded key pair. PrivateKey holds the seed the
// signing key is derived from.
type Keypair struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

type signingKey = bls.PrivateKey[bls.KeyG1SigG2]

type publicKey = bls.PublicKey[bls.KeyG1SigG2]

// DecodeSeed decodes a Base58 seed and checks its length.
func DecodeSeed(seed string) ([]byte, error) {
	if seed == "" {
		return nil, fmt.Errorf("%w: empty seed", ErrInvalidSeed)
	}
	raw, err := base58.Decode(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if len(raw) < MinSeedSize {
		return nil, fmt.Errorf("%w: seed must be at least %d bytes, got %d", ErrInvalidSeed, MinSeedSize, len(raw))
	}
	return raw, nil
}

func deriveSigningKey(seed string) (*signingKey, error) {
	raw, err := DecodeSeed(seed)
	if err != nil {
		return nil, err
	}
	sk, err := bls.KeyGen[bls.KeyG1SigG2](raw, keyGenSalt, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	return sk, nil
}

func encodePublicKey(pk *publicKey) (string, []byte, error) {
	raw, err := pk.MarshalBinary()
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return base58.Encode(raw), raw, nil
}

// DerivePublicKey derives the Base58 public key for a Base58 seed.
func DerivePublicKey(seed string) (string, error) {
	sk, err := deriveSigningKey(seed)
	if err != nil {
		return "", err
	}
	pub, _, err := encodePublicKey(sk.PublicKey())
	return pub, err
}

// GenerateKeypair creates a key pair from a fresh random seed.
func GenerateKeypair() (Keypair, error) {
	raw := make([]byte, SeedSize)
	if _, err := rand.Read(raw); err != nil {
		return Keypair{}, fmt.Errorf("failed to read random seed: %w", err)
	}
	seed := base58.Encode(raw)

	pub, err := DerivePublicKey(seed)
	if err != nil {
		return Keypair{}, err
	}
	return Keypair{PublicKey: pub, PrivateKey: seed}, nil
}

// DecodePublicKey decodes and validates a Base58 public key.
func DecodePublicKey(pub string) ([]byte, error) {
	raw, err := base58.Decode(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	var pk publicKey
	if err := pk.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return raw, nil
}

// VerifySignature checks a BLS signature made by the raw public key over msg.
func VerifySignature(pub, msg, sig []byte) bool {
	var pk publicKey
	if err := pk.UnmarshalBinary(pub); err != nil {
		return false
	}
	return bls.Verify(&pk, msg, sig)
}
