// Package did parses agent DID identifiers.
//
// Any method of the form did:<method>:<id> is accepted. did:key (Ed25519),
// did:web and did:amadeus (ledger public key) identifiers are also decoded.
package did

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/agentattest/attest-core/pkg/ledger"
)

// Common errors returned by this package.
var (
	ErrInvalidDID         = errors.New("invalid DID format")
	ErrInvalidKeyDID      = errors.New("invalid did:key format")
	ErrUnsupportedKeyType = errors.New("unsupported key type in did:key (only Ed25519 supported)")
	ErrInvalidLedgerDID   = errors.New("invalid did:amadeus format")
)

// DID methods with dedicated decoding.
const (
	MethodKey     = "key"
	MethodWeb     = "web"
	MethodAmadeus = "amadeus"
)

// Ed25519PublicKeySize is the size of an Ed25519 public key in bytes.
const Ed25519PublicKeySize = 32

// ed25519Multicodec is the varint encoded multicodec prefix 0xed01.
var ed25519Multicodec = []byte{0xed, 0x01}

var methodPattern = regexp.MustCompile(`^[a-z0-9]+$`)

// DID is a parsed DID identifier.
type DID struct {
	// Method is the DID method, e.g. "key" or "example".
	Method string

	// ID is the method specific identifier.
	ID string

	// Domain hosting the DID Document (did:web only).
	Domain string

	// PathSegments after the domain (did:web only).
	PathSegments []string

	// PublicKey is the Ed25519 key (did:key) or the raw ledger key (did:amadeus).
	PublicKey []byte

	// Raw is the original DID string.
	Raw string
}

// Parse parses a DID identifier.
//
// Examples:
//   - did:example:agent123
//   - did:web:agents.example.com:trading-bot
//   - did:key:z6MkhaXgBZDvotDkL5257faiztiGiC2QtKLGpbnnEGta2doK
func Parse(s string) (*DID, error) {
	if s == "" {
		return nil, ErrInvalidDID
	}

	parts := strings.Split(s, ":")
	if len(parts) < 3 {
		return nil, fmt.Errorf("%w: expected at least 3 parts, got %d", ErrInvalidDID, len(parts))
	}
	if parts[0] != "did" {
		return nil, fmt.Errorf("%w: must start with 'did:'", ErrInvalidDID)
	}
	if !methodPattern.MatchString(parts[1]) {
		return nil, fmt.Errorf("%w: invalid method %q", ErrInvalidDID, parts[1])
	}

	id := strings.Join(parts[2:], ":")
	if id == "" {
		return nil, fmt.Errorf("%w: empty method specific identifier", ErrInvalidDID)
	}

	d := &DID{Method: parts[1], ID: id, Raw: s}

	switch d.Method {
	case MethodWeb:
		return d, parseWeb(d, parts[2:])
	case MethodKey:
		return d, parseKey(d)
	case MethodAmadeus:
		raw, err := ledger.DecodePublicKey(d.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidLedgerDID, err)
		}
		d.PublicKey = raw
	}

	return d, nil
}

func parseWeb(d *DID, parts []string) error {
	domain, err := url.PathUnescape(parts[0])
	if err != nil {
		return fmt.Errorf("%w: invalid domain encoding: %v", ErrInvalidDID, err)
	}
	if domain == "" {
		return fmt.Errorf("%w: empty domain", ErrInvalidDID)
	}
	d.Domain = domain
	d.PathSegments = parts[1:]
	return nil
}

// parseKey decodes did:key:z<base58btc(0xed01 || ed25519_public_key)>.
func parseKey(d *DID) error {
	if strings.Contains(d.ID, ":") {
		return fmt.Errorf("%w: did:key must have exactly 3 parts", ErrInvalidKeyDID)
	}
	if d.ID[0] != 'z' {
		return fmt.Errorf("%w: expected 'z' (base58btc) prefix, got '%c'", ErrInvalidKeyDID, d.ID[0])
	}

	decoded, err := base58.Decode(d.ID[1:])
	if err != nil {
		return fmt.Errorf("%w: invalid base58btc encoding: %v", ErrInvalidKeyDID, err)
	}
	if len(decoded) < len(ed25519Multicodec) {
		return fmt.Errorf("%w: decoded value too short", ErrInvalidKeyDID)
	}
	if decoded[0] != ed25519Multicodec[0] || decoded[1] != ed25519Multicodec[1] {
		return fmt.Errorf("%w: got multicodec 0x%02x%02x", ErrUnsupportedKeyType, decoded[0], decoded[1])
	}

	pub := decoded[len(ed25519Multicodec):]
	if len(pub) != Ed25519PublicKeySize {
		return fmt.Errorf("%w: Ed25519 public key must be %d bytes, got %d", ErrInvalidKeyDID, Ed25519PublicKeySize, len(pub))
	}
	d.PublicKey = pub
	return nil
}

// String returns the DID string.
func (d *DID) String() string {
	if d.Raw != "" {
		return d.Raw
	}
	return "did:" + d.Method + ":" + d.ID
}

// DocumentURL returns the did.json URL of a did:web identifier, or "" for other methods.
// Localhost domains use plain HTTP.
func (d *DID) DocumentURL() string {
	if d.Method != MethodWeb {
		return ""
	}

	path := "/.well-known"
	if len(d.PathSegments) > 0 {
		path = "/" + strings.Join(d.PathSegments, "/")
	}

	scheme := "https"
	if strings.HasPrefix(d.Domain, "localhost") || strings.HasPrefix(d.Domain, "127.0.0.1") {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s%s/did.json", scheme, d.Domain, path)
}

// Ed25519Key returns the public key of a did:key identifier, or nil.
func (d *DID) Ed25519Key() ed25519.PublicKey {
	if d.Method != MethodKey || len(d.PublicKey) != Ed25519PublicKeySize {
		return nil
	}
	return ed25519.PublicKey(d.PublicKey)
}

// NewKeyDID builds a did:key identifier from an Ed25519 public key.
// It returns "" for keys of the wrong size.
func NewKeyDID(pub []byte) string {
	if len(pub) != Ed25519PublicKeySize {
		return ""
	}
	prefixed := make([]byte, 0, len(ed25519Multicodec)+len(pub))
	prefixed = append(prefixed, ed25519Multicodec...)
	prefixed = append(prefixed, pub...)
	return "did:key:z" + base58.Encode(prefixed)
}

// NewLedgerDID builds a did:amadeus identifier from a Base58 ledger public key.
func NewLedgerDID(publicKey string) string {
	return "did:" + MethodAmadeus + ":" + publicKey
}

// PublicKeyFromKeyDID extracts the Ed25519 public key from a did:key identifier.
func PublicKeyFromKeyDID(s string) (ed25519.PublicKey, error) {
	parsed, err := Parse(s)
	if err != nil {
		return nil, err
	}
	if parsed.Method != MethodKey {
		return nil, fmt.Errorf("%w: expected did:key, got did:%s", ErrInvalidKeyDID, parsed.Method)
	}
	return parsed.Ed25519Key(), nil
}
