// Package issuance implements the credential lifecycle: applications,
// issuance, revocation, verification and transaction authorization.
//
// Issuance and revocation are anchored on the ledger before anything is
// stored. A failed or unknown submission is terminal for the call; nothing
// here retries.
package issuance

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/agentattest/attest-core/internal/log"
	"github.com/agentattest/attest-core/pkg/anchor"
	"github.com/agentattest/attest-core/pkg/archive"
	"github.com/agentattest/attest-core/pkg/attestation"
	"github.com/agentattest/attest-core/pkg/authority"
	"github.com/agentattest/attest-core/pkg/did"
	"github.com/agentattest/attest-core/pkg/ledger"
	"github.com/agentattest/attest-core/pkg/registry"
	"github.com/agentattest/attest-core/pkg/revocation"
	"github.com/agentattest/attest-core/pkg/scoring"
)

// DefaultNetworkName is reported by Verify when none is configured.
const DefaultNetworkName = "Amadeus Testnet"

// Authority is the issuing identity.
type Authority interface {
	attestation.KeySource
	SigningKey() (ed25519.PrivateKey, string, error)
	JWKS() (*jose.JSONWebKeySet, error)
}

// Config holds the dependencies of a Service.
type Config struct {
	Authority   Authority
	Anchor      *anchor.Client
	Registry    *registry.Registry
	Revocations *revocation.List

	// Scoring defaults to an engine with default configuration.
	Scoring *scoring.Engine

	// Archive defaults to archive.Nop.
	Archive archive.Archive

	Logger *zap.Logger

	// AllowEphemeral permits issuing with a freshly generated authority key
	// when the configured seed cannot be used.
	AllowEphemeral bool

	// Symbol is the token used for anchor transfers.
	Symbol string

	// NetworkName is reported by Verify.
	NetworkName string

	// Now overrides the current time (for testing).
	Now func() time.Time
}

// Service runs the credential lifecycle.
type Service struct {
	authority      Authority
	anchor         *anchor.Client
	registry       *registry.Registry
	revocations    *revocation.List
	scoring        *scoring.Engine
	archive        archive.Archive
	logger         *zap.Logger
	allowEphemeral bool
	symbol         string
	networkName    string
	now            func() time.Time

	inflight singleflight.Group
}

// NewService creates a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Authority == nil || cfg.Anchor == nil || cfg.Registry == nil || cfg.Revocations == nil {
		return nil, errors.New("authority, anchor, registry and revocations are required")
	}

	s := &Service{
		authority:      cfg.Authority,
		anchor:         cfg.Anchor,
		registry:       cfg.Registry,
		revocations:    cfg.Revocations,
		scoring:        cfg.Scoring,
		archive:        cfg.Archive,
		logger:         log.OrNop(cfg.Logger),
		allowEphemeral: cfg.AllowEphemeral,
		symbol:         cfg.Symbol,
		networkName:    cfg.NetworkName,
		now:            cfg.Now,
	}
	if s.scoring == nil {
		s.scoring = scoring.NewEngine(nil)
	}
	if s.archive == nil {
		s.archive = archive.Nop{}
	}
	if s.symbol == "" {
		s.symbol = ledger.DefaultSymbol
	}
	if s.networkName == "" {
		s.networkName = DefaultNetworkName
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Apply validates and stores a new PENDING application.
func (s *Service) Apply(ctx context.Context, req ApplicationRequest) (*registry.Application, error) {
	if err := ValidateApplication(req); err != nil {
		return nil, err
	}
	if _, err := did.Parse(req.AgentDID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	app := &registry.Application{
		ID:                 "app_" + uuid.NewString(),
		AgentDID:           req.AgentDID,
		ArtifactHash:       req.ArtifactHash,
		OwnerName:          req.OwnerName,
		ContactEmail:       req.ContactEmail,
		ClaimedPermissions: req.ClaimedPermissions,
		Status:             registry.ApplicationPending,
		SubmittedAt:        s.now().UTC(),
		RiskScore:          s.scoring.ApplicationRisk(req.ClaimedPermissions),
	}

	if err := s.registry.SaveApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("failed to save application: %w", err)
	}

	s.logger.Info("application submitted",
		log.WithApplicationID(app.ID), log.WithAgentDID(app.AgentDID), zap.Int("risk_score", app.RiskScore))
	return app, nil
}

// Status returns an application and its audit report.
func (s *Service) Status(ctx context.Context, applicationID string) (*ApplicationStatus, error) {
	app, err := s.getApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	return &ApplicationStatus{
		Application: app,
		AuditReport: s.scoring.Audit(app.RiskScore, app.ClaimedPermissions),
	}, nil
}

// Issue anchors and stores a credential for a pending application.
// Concurrent calls for the same application share one issuance, which is not
// cancelled when the caller that started it goes away.
func (s *Service) Issue(ctx context.Context, applicationID string) (*registry.Credential, error) {
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.inflight.Do("issue/"+applicationID, func() (interface{}, error) {
		return s.issue(shared, applicationID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*registry.Credential), nil
}

func (s *Service) issue(ctx context.Context, applicationID string) (*registry.Credential, error) {
	app, err := s.getApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Status == registry.ApplicationApproved {
		return nil, ErrAlreadyIssued
	}

	kp, err := s.keypair()
	if err != nil {
		return nil, err
	}
	composer := attestation.NewComposer(fixedKeys{kp: kp, name: s.authority.Name()}, attestation.WithClock(s.now))

	payload, err := composer.ComposeIssuance(app.ID, app.AgentDID, app.RiskScore, app.ClaimedPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to compose credential: %w", err)
	}

	receipt, payloadCID, err := s.anchorPayload(ctx, anchor.KindIssuance, kp, payload)
	if err != nil {
		return nil, err
	}

	cred := &registry.Credential{
		ID:                  receipt.Hash,
		TransactionID:       receipt.Hash,
		BlockHeight:         receipt.BlockHeight,
		Status:              registry.CredentialActive,
		Payload:             *payload,
		PayloadCID:          payloadCID,
		Proof:               s.sign(payload, receipt.Hash),
		ApplicationID:       app.ID,
		AgentDID:            app.AgentDID,
		MaxTransactionValue: s.scoring.MaxTransactionValue(),
	}
	cred.ArchiveRef = s.archiveCredential(ctx, cred)

	if err := s.registry.SaveCredential(ctx, cred); err != nil {
		s.logger.Error("anchored credential could not be stored",
			log.WithCredentialID(cred.ID), log.WithApplicationID(app.ID), log.WithError(err))
		return nil, fmt.Errorf("failed to save credential: %w", err)
	}

	app.Status = registry.ApplicationApproved
	app.CredentialID = cred.ID
	if err := s.registry.SaveApplication(ctx, app); err != nil {
		s.logger.Error("application could not be marked approved",
			log.WithCredentialID(cred.ID), log.WithApplicationID(app.ID), log.WithError(err))
		return nil, fmt.Errorf("failed to update application: %w", err)
	}

	s.logger.Info("credential issued",
		log.WithCredentialID(cred.ID), log.WithApplicationID(app.ID), log.WithAgentDID(app.AgentDID),
		zap.Int64("block_height", cred.BlockHeight))
	return cred, nil
}

// Revoke anchors the revocation of an active credential and records it.
func (s *Service) Revoke(ctx context.Context, credentialID, reason string) (*RevocationResult, error) {
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.inflight.Do("revoke/"+credentialID, func() (interface{}, error) {
		return s.revoke(shared, credentialID, reason)
	})
	if err != nil {
		return nil, err
	}
	return v.(*RevocationResult), nil
}

func (s *Service) revoke(ctx context.Context, credentialID, reason string) (*RevocationResult, error) {
	cred, err := s.getCredential(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	status, err := s.effectiveStatus(ctx, cred)
	if err != nil {
		return nil, err
	}
	if status != registry.CredentialActive {
		return nil, fmt.Errorf("%w: status is %s", ErrNotActive, status)
	}

	kp, err := s.keypair()
	if err != nil {
		return nil, err
	}
	composer := attestation.NewComposer(fixedKeys{kp: kp, name: s.authority.Name()}, attestation.WithClock(s.now))

	payload, err := composer.ComposeRevocation(cred.ID, reason)
	if err != nil {
		return nil, fmt.Errorf("failed to compose revocation: %w", err)
	}

	receipt, payloadCID, err := s.anchorPayload(ctx, anchor.KindRevocation, kp, payload)
	if err != nil {
		return nil, err
	}

	if err := s.revocations.Add(ctx, revocation.Revocation{
		CredentialID:  cred.ID,
		RevokedAt:     payload.RevocationDate,
		Reason:        payload.Reason,
		TransactionID: receipt.Hash,
		BlockHeight:   receipt.BlockHeight,
	}); err != nil {
		s.logger.Error("anchored revocation could not be recorded", log.WithCredentialID(cred.ID), log.WithError(err))
		return nil, fmt.Errorf("failed to record revocation: %w", err)
	}

	revokedAt := payload.RevocationDate
	cred.Status = registry.CredentialRevoked
	cred.RevokedAt = &revokedAt
	cred.RevocationReason = payload.Reason
	cred.RevocationTxID = receipt.Hash
	if err := s.registry.UpdateCredential(ctx, cred); err != nil {
		s.logger.Error("credential status could not be updated", log.WithCredentialID(cred.ID), log.WithError(err))
		return nil, fmt.Errorf("failed to update credential: %w", err)
	}

	s.logger.Info("credential revoked", log.WithCredentialID(cred.ID), log.WithTxHash(receipt.Hash))

	return &RevocationResult{
		RevocationPayload: payload,
		TransactionID:     receipt.Hash,
		BlockHeight:       receipt.BlockHeight,
		PayloadCID:        payloadCID,
	}, nil
}

// Verify checks a credential by id, or the latest credential of an agent.
// Nothing is looked up when neither identifier is given.
func (s *Service) Verify(ctx context.Context, credentialID, agentDID string) (*Verification, error) {
	cred, err := s.findCredential(ctx, credentialID, agentDID)
	if err != nil {
		return nil, err
	}

	status, err := s.effectiveStatus(ctx, cred)
	if err != nil {
		return nil, err
	}

	anchored := false
	conf, err := s.anchor.GetTransaction(ctx, cred.TransactionID)
	if err != nil {
		s.logger.Warn("chain verification failed", log.WithCredentialID(cred.ID), log.WithError(err))
	} else {
		anchored = conf.Confirmed
	}

	result := &Verification{
		Valid: status == registry.CredentialActive,
		Credential: &VerifiedCredential{
			CredentialView: NewCredentialView(cred, status),
			IsAnchored:     anchored,
			ProofValid:     s.proofValid(cred),
			Network:        s.networkName,
		},
	}
	if result.Valid {
		result.Message = "Credential is valid"
	} else {
		result.Message = "Credential is " + strings.ToLower(string(status))
	}
	return result, nil
}

// SimulateTransaction decides whether the credential holder may make a
// transaction of the requested amount.
func (s *Service) SimulateTransaction(ctx context.Context, req SimulationRequest) (*SimulationResult, error) {
	if req.CredentialID == "" && req.AgentDID == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, ErrMissingIdentifier)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: valid amount is required", ErrInvalidRequest)
	}

	cred, err := s.findCredential(ctx, req.CredentialID, req.AgentDID)
	if err != nil {
		return nil, err
	}
	status, err := s.effectiveStatus(ctx, cred)
	if err != nil {
		return nil, err
	}

	return &SimulationResult{
		Decision:     s.scoring.Decide(status, req.Amount, cred.MaxTransactionValue),
		CredentialID: cred.ID,
		AgentDID:     cred.AgentDID,
		Amount:       req.Amount,
	}, nil
}

// ListApplications returns every application ordered by id.
func (s *Service) ListApplications(ctx context.Context) ([]*registry.Application, error) {
	return s.registry.ListApplications(ctx)
}

// ListCredentials returns every credential with its effective status.
func (s *Service) ListCredentials(ctx context.Context) ([]*CredentialView, error) {
	creds, err := s.registry.ListCredentials(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]*CredentialView, 0, len(creds))
	for _, cred := range creds {
		status, err := s.effectiveStatus(ctx, cred)
		if err != nil {
			return nil, err
		}
		views = append(views, NewCredentialView(cred, status))
	}
	return views, nil
}

// ListRevocations returns the revocation entries recorded at or after since.
func (s *Service) ListRevocations(ctx context.Context, since time.Time) ([]revocation.Revocation, error) {
	return s.revocations.List(ctx, since)
}

// Revocation returns the revocation entry of a credential.
func (s *Service) Revocation(ctx context.Context, credentialID string) (*revocation.Revocation, error) {
	rev, err := s.revocations.Get(ctx, credentialID)
	if errors.Is(err, revocation.ErrNotRevoked) {
		return nil, fmt.Errorf("%w: no revocation for %s", ErrNotFound, credentialID)
	}
	return rev, err
}

// NetworkName returns the name of the ledger network credentials are anchored on.
func (s *Service) NetworkName() string {
	return s.networkName
}

// JWKS returns the keys that verify credential proofs.
func (s *Service) JWKS() (*jose.JSONWebKeySet, error) {
	return s.authority.JWKS()
}

func (s *Service) keypair() (authority.Keypair, error) {
	kp := s.authority.Keypair()
	if kp.PrivateKey == "" {
		return kp, ErrAuthorityUnavailable
	}
	if kp.Ephemeral && !s.allowEphemeral {
		return kp, fmt.Errorf("%w: refusing to issue with an ephemeral key", ErrAuthorityUnavailable)
	}
	if kp.Ephemeral {
		s.logger.Warn("issuing with ephemeral authority key", zap.String("issuer_key", kp.PublicKey))
	}
	return kp, nil
}

// anchorPayload embeds the payload CID in a self-transfer and submits it.
func (s *Service) anchorPayload(ctx context.Context, kind anchor.Kind, kp authority.Keypair, payload any) (*anchor.Receipt, string, error) {
	digest, err := attestation.Digest(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to digest payload: %w", err)
	}
	payloadCID := digest.String()

	built, err := attestation.BuildAnchorTransaction(kp.PrivateKey, kp.PublicKey,
		attestation.WithMemo([]byte(payloadCID)),
		attestation.WithSymbol(s.symbol),
	)
	if err != nil {
		return nil, "", err
	}

	receipt, err := s.anchor.SubmitAndWait(ctx, kind, built)
	return receipt, payloadCID, err
}

// sign returns the JWS proof over payload, or "" when no proof key is available.
func (s *Service) sign(payload *attestation.IssuancePayload, credentialID string) string {
	key, kid, err := s.authority.SigningKey()
	if err != nil {
		s.logger.Warn("credential issued without proof", log.WithCredentialID(credentialID), log.WithError(err))
		return ""
	}
	proof, err := attestation.Sign(payload, key, kid)
	if err != nil {
		s.logger.Error("failed to sign credential", log.WithCredentialID(credentialID), log.WithError(err))
		return ""
	}
	return proof
}

func (s *Service) proofValid(cred *registry.Credential) bool {
	if cred.Proof == "" {
		return false
	}
	jwks, err := s.authority.JWKS()
	if err != nil {
		return false
	}
	if err := attestation.VerifyProof(cred.Proof, jwks, cred.Payload); err != nil {
		s.logger.Debug("credential proof rejected", log.WithCredentialID(cred.ID), log.WithError(err))
		return false
	}
	return true
}

func (s *Service) archiveCredential(ctx context.Context, cred *registry.Credential) string {
	data, err := json.Marshal(NewCredentialView(cred, cred.Status))
	if err != nil {
		s.logger.Warn("failed to encode credential for archive", log.WithCredentialID(cred.ID), log.WithError(err))
		return ""
	}
	ref, err := s.archive.Put(ctx, "credentials/"+cred.ID+".json", data)
	if err != nil {
		s.logger.Warn("failed to archive credential", log.WithCredentialID(cred.ID), log.WithError(err))
		return ""
	}
	return ref
}

// effectiveStatus derives EXPIRED and honors the revocation list.
func (s *Service) effectiveStatus(ctx context.Context, cred *registry.Credential) (registry.CredentialStatus, error) {
	revoked, err := s.revocations.IsRevoked(ctx, cred.ID)
	if err != nil {
		return "", fmt.Errorf("failed to check revocation list: %w", err)
	}
	if revoked {
		return registry.CredentialRevoked, nil
	}
	return cred.EffectiveStatus(s.now()), nil
}

func (s *Service) findCredential(ctx context.Context, credentialID, agentDID string) (*registry.Credential, error) {
	switch {
	case credentialID != "":
		return s.getCredential(ctx, credentialID)
	case agentDID != "":
		cred, err := s.registry.CredentialForAgent(ctx, agentDID)
		if errors.Is(err, registry.ErrCredentialNotFound) {
			return nil, fmt.Errorf("%w: no credential for agent %s", ErrNotFound, agentDID)
		}
		return cred, err
	default:
		return nil, ErrMissingIdentifier
	}
}

func (s *Service) getCredential(ctx context.Context, id string) (*registry.Credential, error) {
	cred, err := s.registry.GetCredential(ctx, id)
	if errors.Is(err, registry.ErrCredentialNotFound) {
		return nil, fmt.Errorf("%w: credential %s", ErrNotFound, id)
	}
	return cred, err
}

func (s *Service) getApplication(ctx context.Context, id string) (*registry.Application, error) {
	app, err := s.registry.GetApplication(ctx, id)
	if errors.Is(err, registry.ErrApplicationNotFound) {
		return nil, fmt.Errorf("%w: application %s", ErrNotFound, id)
	}
	return app, err
}

// fixedKeys pins one keypair for the duration of a request.
type fixedKeys struct {
	kp   authority.Keypair
	name string
}

func (f fixedKeys) Keypair() authority.Keypair { return f.kp }

func (f fixedKeys) Name() string { return f.name }
