package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentattest/attest-core/pkg/attestation"
	"github.com/agentattest/attest-core/pkg/registry"
	"github.com/agentattest/attest-core/pkg/store"
)

func TestApplications(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(store.NewMemory())

	_, err := reg.GetApplication(ctx, "app_1")
	assert.ErrorIs(t, err, registry.ErrApplicationNotFound)

	app := &registry.Application{
		ID:                 "app_1",
		AgentDID:           "did:example:agent123",
		ClaimedPermissions: []string{"read"},
		Status:             registry.ApplicationPending,
		SubmittedAt:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		RiskScore:          30,
	}
	require.NoError(t, reg.SaveApplication(ctx, app))
	require.NoError(t, reg.SaveApplication(ctx, &registry.Application{ID: "app_0"}))

	got, err := reg.GetApplication(ctx, "app_1")
	require.NoError(t, err)
	assert.Equal(t, app, got)

	all, err := reg.ListApplications(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "app_0", all[0].ID)

	assert.Error(t, reg.SaveApplication(ctx, &registry.Application{}))
}

func TestCredentials(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(store.NewMemory())

	first := &registry.Credential{ID: "tx1", AgentDID: "did:example:a", Status: registry.CredentialActive}
	second := &registry.Credential{ID: "tx2", AgentDID: "did:example:a", Status: registry.CredentialActive}

	require.NoError(t, reg.SaveCredential(ctx, first))
	require.NoError(t, reg.SaveCredential(ctx, second))

	t.Run("agent index points at latest", func(t *testing.T) {
		got, err := reg.CredentialForAgent(ctx, "did:example:a")
		require.NoError(t, err)
		assert.Equal(t, "tx2", got.ID)

		_, err = reg.CredentialForAgent(ctx, "did:example:b")
		assert.ErrorIs(t, err, registry.ErrCredentialNotFound)
	})

	t.Run("update keeps index", func(t *testing.T) {
		first.Status = registry.CredentialRevoked
		require.NoError(t, reg.UpdateCredential(ctx, first))

		got, err := reg.GetCredential(ctx, "tx1")
		require.NoError(t, err)
		assert.Equal(t, registry.CredentialRevoked, got.Status)

		latest, err := reg.CredentialForAgent(ctx, "did:example:a")
		require.NoError(t, err)
		assert.Equal(t, "tx2", latest.ID)

		err = reg.UpdateCredential(ctx, &registry.Credential{ID: "missing"})
		assert.ErrorIs(t, err, registry.ErrCredentialNotFound)
	})

	t.Run("list", func(t *testing.T) {
		all, err := reg.ListCredentials(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "tx1", all[0].ID)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := reg.GetCredential(ctx, "nope")
		assert.ErrorIs(t, err, registry.ErrCredentialNotFound)
	})
}

func TestCredential_EffectiveStatus(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cred := &registry.Credential{
		Status: registry.CredentialActive,
		Payload: attestation.IssuancePayload{
			IssuanceDate: issued,
			ValidUntil:   issued.Add(attestation.ValidityPeriod),
		},
	}

	assert.Equal(t, registry.CredentialActive, cred.EffectiveStatus(issued))
	assert.Equal(t, registry.CredentialExpired, cred.EffectiveStatus(issued.Add(attestation.ValidityPeriod)))

	cred.Status = registry.CredentialRevoked
	assert.Equal(t, registry.CredentialRevoked, cred.EffectiveStatus(issued.Add(2*attestation.ValidityPeriod)))
}
