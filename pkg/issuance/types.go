package issuance

import (
	"time"

	"github.com/agentattest/attest-core/pkg/attestation"
	"github.com/agentattest/attest-core/pkg/registry"
	"github.com/agentattest/attest-core/pkg/scoring"
)

// ApplicationRequest is a request to credential an agent.
type ApplicationRequest struct {
	AgentDID           string   `json:"agentDid"`
	ArtifactHash       string   `json:"artifactHash"`
	OwnerName          string   `json:"ownerName"`
	ContactEmail       string   `json:"contactEmail"`
	ClaimedPermissions []string `json:"claimedPermissions"`
}

// ApplicationStatus is an application with its audit report.
type ApplicationStatus struct {
	*registry.Application
	AuditReport *scoring.AuditReport `json:"audit_report"`
}

// CredentialView is the external form of a credential: the issuance payload
// fields flattened next to the anchor details.
type CredentialView struct {
	attestation.IssuancePayload

	ID                  string                    `json:"id"`
	TransactionID       string                    `json:"transactionId"`
	BlockHeight         int64                     `json:"blockHeight"`
	Status              registry.CredentialStatus `json:"status"`
	Proof               string                    `json:"proof,omitempty"`
	PayloadCID          string                    `json:"payloadCid"`
	ArchiveRef          string                    `json:"archive_ref,omitempty"`
	AgentDID            string                    `json:"agent_did"`
	MaxTransactionValue float64                   `json:"max_transaction_value"`
	RevokedAt           *time.Time                `json:"revoked_at,omitempty"`
	RevocationReason    string                    `json:"revocation_reason,omitempty"`
	RevocationTxID      string                    `json:"revocation_tx_id,omitempty"`
}

// NewCredentialView renders cred with the given effective status.
func NewCredentialView(cred *registry.Credential, status registry.CredentialStatus) *CredentialView {
	return &CredentialView{
		IssuancePayload:     cred.Payload,
		ID:                  cred.ID,
		TransactionID:       cred.TransactionID,
		BlockHeight:         cred.BlockHeight,
		Status:              status,
		Proof:               cred.Proof,
		PayloadCID:          cred.PayloadCID,
		ArchiveRef:          cred.ArchiveRef,
		AgentDID:            cred.AgentDID,
		MaxTransactionValue: cred.MaxTransactionValue,
		RevokedAt:           cred.RevokedAt,
		RevocationReason:    cred.RevocationReason,
		RevocationTxID:      cred.RevocationTxID,
	}
}

// RevocationResult is a confirmed revocation.
type RevocationResult struct {
	*attestation.RevocationPayload
	TransactionID string `json:"transactionId"`
	BlockHeight   int64  `json:"blockHeight"`
	PayloadCID    string `json:"payloadCid"`
}

// VerifiedCredential is a credential with the checks made by Verify.
type VerifiedCredential struct {
	*CredentialView
	IsAnchored bool   `json:"is_anchored"`
	ProofValid bool   `json:"proof_valid"`
	Network    string `json:"network"`
}

// Verification is the result of Verify.
type Verification struct {
	Valid      bool                `json:"valid"`
	Credential *VerifiedCredential `json:"credential"`
	Message    string              `json:"message"`
}

// SimulationRequest describes a transaction to authorize.
type SimulationRequest struct {
	AgentDID     string  `json:"agent_did"`
	CredentialID string  `json:"credential_id"`
	Amount       float64 `json:"amount"`
}

// SimulationResult is the authorization decision for a SimulationRequest.
type SimulationResult struct {
	scoring.Decision
	CredentialID string  `json:"credential_id"`
	AgentDID     string  `json:"agent_did"`
	Amount       float64 `json:"amount"`
}
