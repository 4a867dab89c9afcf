package issuance

import "errors"

// Service errors. Ledger failures are returned as *ledger.Error.
var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyIssued        = errors.New("credential already issued")
	ErrNotActive            = errors.New("credential is not active")
	ErrMissingIdentifier    = errors.New("either agent_did or credential_id is required")
	ErrAuthorityUnavailable = errors.New("authority keypair unavailable")
	ErrInvalidRequest       = errors.New("invalid request")
)
