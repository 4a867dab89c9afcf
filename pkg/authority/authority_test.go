package authority_test

import (
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/agentattest/attest-core/pkg/authority"
	"github.com/agentattest/attest-core/pkg/did"
	"github.com/agentattest/attest-core/pkg/ledger"
)

func TestManager_Keypair(t *testing.T) {
	t.Run("deterministic for the same seed", func(t *testing.T) {
		m := authority.NewManager(authority.DefaultSeed)

		first := m.Keypair()
		second := authority.NewManager(authority.DefaultSeed).Keypair()

		assert.False(t, first.Ephemeral)
		assert.NotEmpty(t, first.PublicKey)
		assert.Equal(t, authority.DefaultSeed, first.PrivateKey)
		assert.Equal(t, first, second)

		want, err := ledger.DerivePublicKey(authority.DefaultSeed)
		require.NoError(t, err)
		assert.Equal(t, want, first.PublicKey)
	})

	t.Run("empty seed uses default", func(t *testing.T) {
		assert.Equal(t, authority.NewManager(authority.DefaultSeed).Keypair(), authority.NewManager("").Keypair())
	})

	t.Run("different seeds give different keys", func(t *testing.T) {
		kp, err := ledger.GenerateKeypair()
		require.NoError(t, err)

		got := authority.NewManager(kp.PrivateKey).Keypair()
		assert.Equal(t, kp.PublicKey, got.PublicKey)
		assert.NotEqual(t, authority.NewManager("").Keypair().PublicKey, got.PublicKey)
	})

	t.Run("invalid seed falls back to ephemeral keys", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		m := authority.NewManager("0OIl-not-base58", authority.WithLogger(zap.New(core)))

		first := m.Keypair()
		second := m.Keypair()

		assert.True(t, first.Ephemeral)
		assert.True(t, second.Ephemeral)
		assert.NotEmpty(t, first.PublicKey)
		assert.NotEqual(t, first.PublicKey, second.PublicKey)
		assert.Equal(t, 2, logs.FilterMessage("authority key derivation failed, using ephemeral keypair").Len())
		assert.Empty(t, m.DID())
	})

	t.Run("generation failure still returns an ephemeral marker", func(t *testing.T) {
		m := authority.NewManager("seed", authority.WithKeyFuncs(
			func(string) (string, error) { return "", errors.New("derive") },
			func() (ledger.Keypair, error) { return ledger.Keypair{}, errors.New("entropy") },
		))

		kp := m.Keypair()
		assert.True(t, kp.Ephemeral)
		assert.Empty(t, kp.PublicKey)
	})
}

func TestManager_Name(t *testing.T) {
	assert.Equal(t, authority.DefaultName, authority.NewManager("").Name())
	assert.Equal(t, "Test Authority", authority.NewManager("", authority.WithName("Test Authority")).Name())
	assert.Equal(t, authority.DefaultName, authority.NewManager("", authority.WithName("")).Name())
}

func TestManager_DID(t *testing.T) {
	m := authority.NewManager("")
	parsed, err := did.Parse(m.DID())
	require.NoError(t, err)
	assert.Equal(t, did.MethodAmadeus, parsed.Method)
	assert.Equal(t, m.Keypair().PublicKey, parsed.ID)
}

func TestManager_SigningKey(t *testing.T) {
	m := authority.NewManager("")

	priv, kid, err := m.SigningKey()
	require.NoError(t, err)

	priv2, kid2, err := m.SigningKey()
	require.NoError(t, err)
	assert.True(t, priv.Equal(priv2))
	assert.Equal(t, kid, kid2)

	pub, err := did.PublicKeyFromKeyDID(kid)
	require.NoError(t, err)
	assert.True(t, pub.Equal(priv.Public()))

	t.Run("jwks publishes the verification key", func(t *testing.T) {
		jwks, err := m.JWKS()
		require.NoError(t, err)

		keys := jwks.Key(kid)
		require.Len(t, keys, 1)
		assert.True(t, keys[0].IsPublic())
		assert.Equal(t, "EdDSA", keys[0].Algorithm)
		assert.True(t, pub.Equal(keys[0].Key.(ed25519.PublicKey)))
	})

	t.Run("undecodable seed", func(t *testing.T) {
		_, _, err := authority.NewManager("0OIl").SigningKey()
		assert.ErrorIs(t, err, ledger.ErrInvalidSeed)

		_, err = authority.NewManager("0OIl").JWKS()
		assert.Error(t, err)
	})
}
