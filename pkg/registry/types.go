// Package registry persists applications and credential records.
package registry

import (
	"errors"
	"time"

	"github.com/agentattest/attest-core/pkg/attestation"
)

// Common errors returned by this package.
var (
	ErrApplicationNotFound = errors.New("application not found")
	ErrCredentialNotFound  = errors.New("credential not found")
)

// ApplicationStatus is the review state of an application.
type ApplicationStatus string

// Application statuses.
const (
	ApplicationPending  ApplicationStatus = "PENDING"
	ApplicationApproved ApplicationStatus = "APPROVED"
)

// CredentialStatus is the lifecycle state of a credential.
type CredentialStatus string

// Credential statuses. EXPIRED is never stored; it is derived from the
// payload's validity window.
const (
	CredentialActive  CredentialStatus = "ACTIVE"
	CredentialRevoked CredentialStatus = "REVOKED"
	CredentialExpired CredentialStatus = "EXPIRED"
)

// Application is a request to credential an agent.
type Application struct {
	ID                 string            `json:"id"`
	AgentDID           string            `json:"agentDid"`
	ArtifactHash       string            `json:"artifactHash"`
	OwnerName          string            `json:"ownerName"`
	ContactEmail       string            `json:"contactEmail"`
	ClaimedPermissions []string          `json:"claimedPermissions"`
	Status             ApplicationStatus `json:"status"`
	SubmittedAt        time.Time         `json:"submittedAt"`
	RiskScore          int               `json:"riskScore"`
	CredentialID       string            `json:"credentialId,omitempty"`
}

// Credential is an issued, anchored credential.
type Credential struct {
	// ID is the hash of the issuance transaction.
	ID            string `json:"id"`
	TransactionID string `json:"transactionId"`
	BlockHeight   int64  `json:"blockHeight"`

	// Status is ACTIVE or REVOKED. Use EffectiveStatus for reads.
	Status CredentialStatus `json:"status"`

	Payload    attestation.IssuancePayload `json:"payload"`
	PayloadCID string                      `json:"payloadCid"`
	Proof      string                      `json:"proof,omitempty"`
	ArchiveRef string                      `json:"archiveRef,omitempty"`

	ApplicationID       string  `json:"applicationId"`
	AgentDID            string  `json:"agentDid"`
	MaxTransactionValue float64 `json:"maxTransactionValue"`

	RevokedAt        *time.Time `json:"revokedAt,omitempty"`
	RevocationReason string     `json:"revocationReason,omitempty"`
	RevocationTxID   string     `json:"revocationTxId,omitempty"`
}

// EffectiveStatus returns the status at now, deriving EXPIRED for active
// credentials past their validity window.
func (c *Credential) EffectiveStatus(now time.Time) CredentialStatus {
	if c.Status == CredentialActive && c.Payload.Expired(now) {
		return CredentialExpired
	}
	return c.Status
}
