package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agentattest/attest-core/pkg/store"
)

// Key prefixes.
const (
	applicationPrefix = "application/"
	credentialPrefix  = "credential/"
	agentPrefix       = "agent/"
)

// Registry stores applications and credentials in a key-value store.
// Each agent DID is indexed to its most recently issued credential.
type Registry struct {
	store store.Store
}

// New creates a Registry on top of s.
func New(s store.Store) *Registry {
	return &Registry{store: s}
}

// SaveApplication creates or replaces an application.
func (r *Registry) SaveApplication(ctx context.Context, app *Application) error {
	if app.ID == "" {
		return errors.New("application id is required")
	}
	return r.put(ctx, applicationPrefix+app.ID, app)
}

// GetApplication returns the application with id, or ErrApplicationNotFound.
func (r *Registry) GetApplication(ctx context.Context, id string) (*Application, error) {
	var app Application
	if err := r.get(ctx, applicationPrefix+id, &app); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrApplicationNotFound, id)
		}
		return nil, err
	}
	return &app, nil
}

// ListApplications returns all applications ordered by id.
func (r *Registry) ListApplications(ctx context.Context) ([]*Application, error) {
	entries, err := r.store.List(ctx, applicationPrefix)
	if err != nil {
		return nil, err
	}
	apps := make([]*Application, 0, len(entries))
	for _, e := range entries {
		var app Application
		if err := json.Unmarshal(e.Value, &app); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Key, err)
		}
		apps = append(apps, &app)
	}
	return apps, nil
}

// SaveCredential creates or replaces a credential and points its agent's
// index entry at it.
func (r *Registry) SaveCredential(ctx context.Context, cred *Credential) error {
	if cred.ID == "" {
		return errors.New("credential id is required")
	}
	if err := r.put(ctx, credentialPrefix+cred.ID, cred); err != nil {
		return err
	}
	if cred.AgentDID == "" {
		return nil
	}
	return r.store.Set(ctx, agentPrefix+cred.AgentDID, []byte(cred.ID))
}

// UpdateCredential replaces an existing credential without touching the agent index.
func (r *Registry) UpdateCredential(ctx context.Context, cred *Credential) error {
	if _, err := r.GetCredential(ctx, cred.ID); err != nil {
		return err
	}
	return r.put(ctx, credentialPrefix+cred.ID, cred)
}

// GetCredential returns the credential with id, or ErrCredentialNotFound.
func (r *Registry) GetCredential(ctx context.Context, id string) (*Credential, error) {
	var cred Credential
	if err := r.get(ctx, credentialPrefix+id, &cred); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCredentialNotFound, id)
		}
		return nil, err
	}
	return &cred, nil
}

// CredentialForAgent returns the latest credential issued to agentDID.
func (r *Registry) CredentialForAgent(ctx context.Context, agentDID string) (*Credential, error) {
	id, err := r.store.Get(ctx, agentPrefix+agentDID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: no credential for %s", ErrCredentialNotFound, agentDID)
		}
		return nil, err
	}
	return r.GetCredential(ctx, string(id))
}

// ListCredentials returns all credentials ordered by id.
func (r *Registry) ListCredentials(ctx context.Context) ([]*Credential, error) {
	entries, err := r.store.List(ctx, credentialPrefix)
	if err != nil {
		return nil, err
	}
	creds := make([]*Credential, 0, len(entries))
	for _, e := range entries {
		var cred Credential
		if err := json.Unmarshal(e.Value, &cred); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Key, err)
		}
		creds = append(creds, &cred)
	}
	return creds, nil
}

func (r *Registry) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return r.store.Set(ctx, key, data)
}

func (r *Registry) get(ctx context.Context, key string, v any) error {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
