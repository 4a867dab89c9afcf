package ledger_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentattest/attest-core/pkg/ledger"
	"github.com/agentattest/attest-core/pkg/ledger/devnet"
)

func newClient(t *testing.T, url string) *ledger.Client {
	t.Helper()
	c, err := ledger.NewClient(ledger.ClientConfig{BaseURL: url, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func buildTransfer(t *testing.T, nonce int64) *ledger.BuildResult {
	t.Helper()
	b, self := newBuilder(t)
	built, err := b.Transfer(ledger.TransferInput{Recipient: self, Amount: 1000, Nonce: lo.ToPtr(nonce)})
	require.NoError(t, err)
	return built
}

func TestClient_SubmitAndWait(t *testing.T) {
	network := devnet.New()
	srv := httptest.NewServer(network.Handler())
	defer srv.Close()

	client := newClient(t, srv.URL)
	built := buildTransfer(t, 1)

	result, err := client.SubmitAndWait(context.Background(), built.Packed)
	require.NoError(t, err)
	assert.Equal(t, built.Hash, result.Hash)
	assert.True(t, result.Included)
	assert.Equal(t, int64(1), result.EntryHeight)

	t.Run("duplicate submission keeps identity", func(t *testing.T) {
		again, err := client.SubmitAndWait(context.Background(), built.Packed)
		require.NoError(t, err)
		assert.Equal(t, result.Hash, again.Hash)
		assert.Equal(t, result.EntryHeight, again.EntryHeight)
		assert.Equal(t, int64(1), network.Height())
	})

	t.Run("lookup confirms", func(t *testing.T) {
		lookup, err := client.GetTransaction(context.Background(), built.Hash)
		require.NoError(t, err)
		assert.True(t, lookup.Succeeded())
		assert.Equal(t, int64(1), lookup.EntryHeight)
	})
}

func TestClient_SubmitErrors(t *testing.T) {
	t.Run("rejected by node", func(t *testing.T) {
		network := devnet.New(devnet.WithRejectRule(func(*ledger.Transaction) string { return "insufficient_funds" }))
		srv := httptest.NewServer(network.Handler())
		defer srv.Close()

		_, err := newClient(t, srv.URL).SubmitAndWait(context.Background(), buildTransfer(t, 1).Packed)
		require.Error(t, err)
		assert.ErrorIs(t, err, ledger.ErrRejected)
		assert.Contains(t, err.Error(), "insufficient_funds")
	})

	t.Run("malformed packed transaction", func(t *testing.T) {
		srv := httptest.NewServer(devnet.New().Handler())
		defer srv.Close()

		_, err := newClient(t, srv.URL).SubmitAndWait(context.Background(), []byte("garbage"))
		assert.ErrorIs(t, err, ledger.ErrRejected)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := newClient(t, url).SubmitAndWait(context.Background(), buildTransfer(t, 1).Packed)
		assert.ErrorIs(t, err, ledger.ErrUnreachable)
		assert.Equal(t, ledger.ErrCodeUnreachable, ledger.ErrorCode(err))
	})

	t.Run("deadline is unknown, not rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := newClient(t, srv.URL).SubmitAndWait(ctx, buildTransfer(t, 1).Packed)
		assert.ErrorIs(t, err, ledger.ErrUnknown)
		assert.NotErrorIs(t, err, ledger.ErrRejected)
	})

	t.Run("gateway timeout is unknown", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusGatewayTimeout)
		}))
		defer srv.Close()

		_, err := newClient(t, srv.URL).SubmitAndWait(context.Background(), buildTransfer(t, 1).Packed)
		assert.ErrorIs(t, err, ledger.ErrUnknown)
	})

	t.Run("success status with invalid body is unknown", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}))
		defer srv.Close()

		_, err := newClient(t, srv.URL).SubmitAndWait(context.Background(), buildTransfer(t, 1).Packed)
		assert.ErrorIs(t, err, ledger.ErrUnknown)
		assert.NotErrorIs(t, err, ledger.ErrMalformed)
	})

	t.Run("empty payload", func(t *testing.T) {
		_, err := newClient(t, "http://localhost:1").SubmitAndWait(context.Background(), nil)
		assert.ErrorIs(t, err, ledger.ErrMalformed)
	})
}

func TestClient_SubmitPending(t *testing.T) {
	srv := httptest.NewServer(devnet.New(devnet.WithDeferredInclusion(1)).Handler())
	defer srv.Close()

	built := buildTransfer(t, 1)
	result, err := newClient(t, srv.URL).SubmitAndWait(context.Background(), built.Packed)
	require.NoError(t, err)
	assert.False(t, result.Included)
	assert.Equal(t, built.Hash, result.Hash)
}

func TestClient_HeightFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hash":"abc","receipt":{"block_height":77}}`))
	}))
	defer srv.Close()

	result, err := newClient(t, srv.URL).SubmitAndWait(context.Background(), []byte{1})
	require.NoError(t, err)
	assert.Equal(t, int64(77), result.EntryHeight)
	assert.True(t, result.Included)
}

func TestClient_GetTransaction(t *testing.T) {
	t.Run("never submitted", func(t *testing.T) {
		srv := httptest.NewServer(devnet.New().Handler())
		defer srv.Close()

		lookup, err := newClient(t, srv.URL).GetTransaction(context.Background(), "3yZe7d")
		require.NoError(t, err)
		assert.False(t, lookup.Found)
		assert.False(t, lookup.Succeeded())
	})

	t.Run("failed transaction", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"result":{"error":"insufficient_funds"},"metadata":{"entry_height":3}}`))
		}))
		defer srv.Close()

		lookup, err := newClient(t, srv.URL).GetTransaction(context.Background(), "abc")
		require.NoError(t, err)
		assert.True(t, lookup.Found)
		assert.False(t, lookup.Succeeded())
		assert.Equal(t, "insufficient_funds", lookup.Result)
	})

	t.Run("result without code is not yet known", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"result":{},"metadata":{"entry_height":3}}`))
		}))
		defer srv.Close()

		lookup, err := newClient(t, srv.URL).GetTransaction(context.Background(), "abc")
		require.NoError(t, err)
		assert.False(t, lookup.Found)
		assert.False(t, lookup.Succeeded())
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := newClient(t, srv.URL).GetTransaction(context.Background(), "abc")
		assert.ErrorIs(t, err, ledger.ErrUnreachable)
	})
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := ledger.NewClient(ledger.ClientConfig{BaseURL: "::not a url"})
	assert.Error(t, err)
}

func TestClient_InsecureTLS(t *testing.T) {
	network := devnet.New()
	srv := httptest.NewTLSServer(network.Handler())
	defer srv.Close()

	built := buildTransfer(t, 7)

	t.Run("verified by default", func(t *testing.T) {
		_, err := newClient(t, srv.URL).SubmitAndWait(context.Background(), built.Packed)
		assert.ErrorIs(t, err, ledger.ErrUnreachable)
		assert.Equal(t, 0, network.Submissions())
	})

	t.Run("skipped when requested", func(t *testing.T) {
		c, err := ledger.NewClient(ledger.ClientConfig{BaseURL: srv.URL, Timeout: 5 * time.Second, InsecureTLS: true})
		require.NoError(t, err)
		result, err := c.SubmitAndWait(context.Background(), built.Packed)
		require.NoError(t, err)
		assert.Equal(t, built.Hash, result.Hash)
	})

	t.Run("process default transport untouched", func(t *testing.T) {
		tr := http.DefaultTransport.(*http.Transport)
		assert.True(t, tr.TLSClientConfig == nil || !tr.TLSClientConfig.InsecureSkipVerify)
	})
}
