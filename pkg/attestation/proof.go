package attestation

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"
)

// Proof errors.
var (
	ErrProofMalformed  = errors.New("malformed proof")
	ErrUnknownProofKey = errors.New("proof signed by unknown key")
	ErrProofInvalid    = errors.New("proof signature invalid")
	ErrPayloadMismatch = errors.New("proof does not cover payload")
)

// Sign returns a compact EdDSA JWS over the canonical payload.
func Sign(payload any, key ed25519.PrivateKey, kid string) (string, error) {
	data, err := Canonical(payload)
	if err != nil {
		return "", err
	}

	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: jose.EdDSA,
		Key:       jose.JSONWebKey{Key: key, KeyID: kid},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	jws, err := signer.Sign(data)
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}
	return jws.CompactSerialize()
}

// VerifyProof checks that token is a valid signature over payload by a key in jwks.
func VerifyProof(token string, jwks *jose.JSONWebKeySet, payload any) error {
	jws, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{jose.EdDSA})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProofMalformed, err)
	}
	if len(jws.Signatures) != 1 {
		return fmt.Errorf("%w: expected one signature, got %d", ErrProofMalformed, len(jws.Signatures))
	}

	kid := jws.Signatures[0].Header.KeyID
	if jwks == nil {
		return ErrUnknownProofKey
	}
	keys := jwks.Key(kid)
	if len(keys) == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownProofKey, kid)
	}

	signed, err := jws.Verify(keys[0].Public())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProofInvalid, err)
	}

	want, err := Canonical(payload)
	if err != nil {
		return err
	}
	if !bytes.Equal(signed, want) {
		return ErrPayloadMismatch
	}
	return nil
}
