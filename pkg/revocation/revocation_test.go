package revocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentattest/attest-core/pkg/revocation"
	"github.com/agentattest/attest-core/pkg/store"
)

func TestList(t *testing.T) {
	ctx := context.Background()
	list := revocation.NewList(store.NewMemory())
	t0 := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	revoked, err := list.IsRevoked(ctx, "cred-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	_, err = list.Get(ctx, "cred-1")
	assert.ErrorIs(t, err, revocation.ErrNotRevoked)

	require.NoError(t, list.Add(ctx, revocation.Revocation{
		CredentialID:  "cred-1",
		RevokedAt:     t0,
		Reason:        "compromised",
		TransactionID: "tx-r1",
		BlockHeight:   7,
	}))

	t.Run("lookup", func(t *testing.T) {
		revoked, err := list.IsRevoked(ctx, "cred-1")
		require.NoError(t, err)
		assert.True(t, revoked)

		rev, err := list.Get(ctx, "cred-1")
		require.NoError(t, err)
		assert.Equal(t, "tx-r1", rev.TransactionID)
		assert.Equal(t, int64(7), rev.BlockHeight)
	})

	t.Run("first entry wins", func(t *testing.T) {
		require.NoError(t, list.Add(ctx, revocation.Revocation{CredentialID: "cred-1", TransactionID: "tx-r2"}))

		rev, err := list.Get(ctx, "cred-1")
		require.NoError(t, err)
		assert.Equal(t, "tx-r1", rev.TransactionID)
	})

	t.Run("list since", func(t *testing.T) {
		require.NoError(t, list.Add(ctx, revocation.Revocation{CredentialID: "cred-2", RevokedAt: t0.Add(time.Hour)}))

		all, err := list.List(ctx, time.Time{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		recent, err := list.List(ctx, t0.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, "cred-2", recent[0].CredentialID)
	})

	t.Run("missing id", func(t *testing.T) {
		assert.Error(t, list.Add(ctx, revocation.Revocation{}))
	})
}
