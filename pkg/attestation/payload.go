// Package attestation composes credential payloads and the ledger
// transactions that anchor them. It never submits anything.
package attestation

import (
	"errors"
	"time"
)

// Payload types.
const (
	TypeAgentCredential      = "AgentCredential"
	TypeCredentialRevocation = "CredentialRevocation"
)

// ValidityPeriod is the lifetime of an issued credential.
const ValidityPeriod = 365 * 24 * time.Hour

// DefaultRevocationReason is used when a revocation gives no reason.
const DefaultRevocationReason = "Administrative Action"

// Permissions granted when the caller does not specify any.
const (
	PermissionExecuteTransaction = "EXECUTE_TRANSACTION"
	PermissionAccessMarketData   = "access_market_data"
)

// DefaultPermissions returns the permission set granted by default.
func DefaultPermissions() []string {
	return []string{PermissionExecuteTransaction, PermissionAccessMarketData}
}

// Composition errors.
var (
	ErrMissingApplicationID = errors.New("application id is required")
	ErrMissingSubject       = errors.New("agent DID is required")
	ErrMissingCredentialID  = errors.New("credential id is required")
	ErrInvalidRiskScore     = errors.New("risk score must be between 0 and 100")
)

// IssuancePayload describes a credential grant.
type IssuancePayload struct {
	Type          string    `json:"type"`
	Issuer        string    `json:"issuer"`
	IssuerKey     string    `json:"issuer_key"`
	Subject       string    `json:"subject"`
	ApplicationID string    `json:"applicationId"`
	IssuanceDate  time.Time `json:"issuanceDate"`
	RiskScore     int       `json:"riskScore"`
	Permissions   []string  `json:"permissions"`
	ValidUntil    time.Time `json:"validUntil"`
}

// Expired reports whether the credential is past its validity window at now.
func (p *IssuancePayload) Expired(now time.Time) bool {
	return !now.Before(p.ValidUntil)
}

// RevocationPayload describes the revocation of a credential.
type RevocationPayload struct {
	Type               string    `json:"type"`
	Issuer             string    `json:"issuer"`
	IssuerKey          string    `json:"issuer_key"`
	TargetCredentialID string    `json:"targetCredentialId"`
	RevocationDate     time.Time `json:"revocationDate"`
	Reason             string    `json:"reason"`
}
