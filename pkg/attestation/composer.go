package attestation

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/agentattest/attest-core/pkg/authority"
)

// KeySource supplies the issuing identity.
type KeySource interface {
	Keypair() authority.Keypair
	Name() string
}

// Option configures a Composer.
type Option func(*Composer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Composer) {
		c.now = now
	}
}

// Composer builds issuance and revocation payloads for one authority.
type Composer struct {
	keys KeySource
	now  func() time.Time
}

// NewComposer creates a Composer.
func NewComposer(keys KeySource, opts ...Option) *Composer {
	c := &Composer{keys: keys, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Composer) timestamp() time.Time {
	return c.now().UTC().Truncate(time.Millisecond)
}

// ComposeIssuance builds the payload for a new credential. Empty permissions
// default to DefaultPermissions; duplicates are dropped.
func (c *Composer) ComposeIssuance(applicationID, agentDID string, riskScore int, permissions []string) (*IssuancePayload, error) {
	if applicationID == "" {
		return nil, ErrMissingApplicationID
	}
	if agentDID == "" {
		return nil, ErrMissingSubject
	}
	if riskScore < 0 || riskScore > 100 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRiskScore, riskScore)
	}

	perms := lo.Uniq(lo.Compact(lo.Map(permissions, func(p string, _ int) string {
		return strings.TrimSpace(p)
	})))
	if len(perms) == 0 {
		perms = DefaultPermissions()
	}

	kp := c.keys.Keypair()
	issued := c.timestamp()

	return &IssuancePayload{
		Type:          TypeAgentCredential,
		Issuer:        c.keys.Name(),
		IssuerKey:     kp.PublicKey,
		Subject:       agentDID,
		ApplicationID: applicationID,
		IssuanceDate:  issued,
		RiskScore:     riskScore,
		Permissions:   perms,
		ValidUntil:    issued.Add(ValidityPeriod),
	}, nil
}

// ComposeRevocation builds the payload revoking credentialID.
func (c *Composer) ComposeRevocation(credentialID, reason string) (*RevocationPayload, error) {
	if credentialID == "" {
		return nil, ErrMissingCredentialID
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = DefaultRevocationReason
	}

	kp := c.keys.Keypair()

	return &RevocationPayload{
		Type:               TypeCredentialRevocation,
		Issuer:             c.keys.Name(),
		IssuerKey:          kp.PublicKey,
		TargetCredentialID: credentialID,
		RevocationDate:     c.timestamp(),
		Reason:             reason,
	}, nil
}
