package attestation

import (
	"encoding/json"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Canonical returns the canonical JSON form of a payload: object keys sorted,
// no insignificant whitespace.
func Canonical(payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	// Round-trip through a generic value so struct field order does not matter.
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to create canonical json: %w", err)
	}
	return canonical, nil
}

// Digest returns the CIDv1 (raw, sha2-256) of the canonical payload.
func Digest(payload any) (cid.Cid, error) {
	data, err := Canonical(payload)
	if err != nil {
		return cid.Undef, err
	}
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("failed to hash payload: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}
