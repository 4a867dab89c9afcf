package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentattest/attest-core/internal/metrics"
	"github.com/agentattest/attest-core/internal/server"
	"github.com/agentattest/attest-core/pkg/anchor"
	"github.com/agentattest/attest-core/pkg/authority"
	"github.com/agentattest/attest-core/pkg/issuance"
	"github.com/agentattest/attest-core/pkg/ledger"
	"github.com/agentattest/attest-core/pkg/ledger/devnet"
	"github.com/agentattest/attest-core/pkg/registry"
	"github.com/agentattest/attest-core/pkg/revocation"
	"github.com/agentattest/attest-core/pkg/store"
)

type testEnv struct {
	handler  http.Handler
	net      *devnet.Network
	registry *registry.Registry
}

func newEnv(t *testing.T, ledgerURL string) *testEnv {
	t.Helper()

	env := &testEnv{}
	if ledgerURL == "" {
		env.net = devnet.New()
		srv := httptest.NewServer(env.net.Handler())
		t.Cleanup(srv.Close)
		ledgerURL = srv.URL
	}

	ledgerClient, err := ledger.NewClient(ledger.ClientConfig{BaseURL: ledgerURL, Timeout: 2 * time.Second})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	s := store.NewMemory()
	env.registry = registry.New(s)

	svc, err := issuance.NewService(issuance.Config{
		Authority:   authority.NewManager(authority.DefaultSeed),
		Anchor:      anchor.NewClient(ledgerClient, anchor.WithTimeout(5*time.Second), anchor.WithMetrics(m)),
		Registry:    env.registry,
		Revocations: revocation.NewList(s),
	})
	require.NoError(t, err)

	env.handler = server.New(svc, server.Options{Gatherer: reg}).Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string) (int, map[string]interface{}) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func (e *testEnv) seedApplication(t *testing.T, id string, riskScore int) {
	t.Helper()
	require.NoError(t, e.registry.SaveApplication(context.Background(), &registry.Application{
		ID:                 id,
		AgentDID:           "did:agent:" + id,
		ArtifactHash:       "a1b2c3",
		OwnerName:          "Demo Agent",
		ContactEmail:       "demo@example.com",
		ClaimedPermissions: []string{},
		Status:             registry.ApplicationPending,
		SubmittedAt:        time.Now().UTC(),
		RiskScore:          riskScore,
	}))
}

func TestIssueRevokeVerify(t *testing.T) {
	env := newEnv(t, "")
	env.seedApplication(t, "app_1", 20)

	code, body := env.do(t, http.MethodPost, "/issue/app_1", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["success"])

	cred := body["credential"].(map[string]interface{})
	id := cred["id"].(string)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, cred["transactionId"])
	assert.Equal(t, float64(1), cred["blockHeight"])
	assert.Equal(t, "ACTIVE", cred["status"])
	assert.Equal(t, float64(20), cred["riskScore"])
	assert.Equal(t, "AgentCredential", cred["type"])
	assert.Equal(t, "did:agent:app_1", cred["subject"])
	assert.Equal(t, []interface{}{"EXECUTE_TRANSACTION", "access_market_data"}, cred["permissions"])
	assert.NotEmpty(t, cred["proof"])
	assert.NotEmpty(t, cred["payloadCid"])

	code, body = env.do(t, http.MethodPost, "/admin/issue/app_1", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Already issued", body["error"])

	code, body = env.do(t, http.MethodGet, "/verify?credential_id="+id, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["valid"])
	verified := body["credential"].(map[string]interface{})
	assert.Equal(t, true, verified["is_anchored"])
	assert.Equal(t, true, verified["proof_valid"])
	assert.Equal(t, "Amadeus Testnet", verified["network"])

	code, body = env.do(t, http.MethodPost, "/revoke/"+id, `{"reason":"Key compromise"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["success"])
	rev := body["revocation"].(map[string]interface{})
	assert.Equal(t, "CredentialRevocation", rev["type"])
	assert.Equal(t, id, rev["targetCredentialId"])
	assert.Equal(t, "Key compromise", rev["reason"])
	assert.Equal(t, float64(2), rev["blockHeight"])

	code, body = env.do(t, http.MethodGet, "/verify?agent_did=did:agent:app_1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "Credential is revoked", body["message"])
	assert.Equal(t, "REVOKED", body["credential"].(map[string]interface{})["status"])

	code, _ = env.do(t, http.MethodPost, "/admin/revoke/"+id, "")
	assert.Equal(t, http.StatusBadRequest, code)

	assert.Equal(t, 2, env.net.Submissions())
}

func TestVerify_MissingIdentifier(t *testing.T) {
	env := newEnv(t, "")

	code, body := env.do(t, http.MethodGet, "/verify", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Either agent_did or credential_id is required", body["error"])

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.NotContains(t, rec.Body.String(), "agentattest_chain_lookups_total{")
}

func TestNotFound(t *testing.T) {
	env := newEnv(t, "")

	tests := []struct {
		method, target string
	}{
		{http.MethodPost, "/issue/app_missing"},
		{http.MethodPost, "/revoke/missing"},
		{http.MethodGet, "/verify?credential_id=missing"},
		{http.MethodGet, "/status/app_missing"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			code, body := env.do(t, tt.method, tt.target, "")
			assert.Equal(t, http.StatusNotFound, code)
			assert.NotEmpty(t, body["error"])
		})
	}
	assert.Equal(t, 0, env.net.Submissions())
}

func TestIssue_LedgerUnreachable(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()

	env := newEnv(t, down.URL)
	env.seedApplication(t, "app_1", 20)

	code, body := env.do(t, http.MethodPost, "/issue/app_1", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, ledger.ErrCodeUnreachable, body["code"])
	assert.True(t, strings.HasPrefix(body["error"].(string), "Failed to issue credential: "))
}

func TestApplyAndStatus(t *testing.T) {
	env := newEnv(t, "")

	code, body := env.do(t, http.MethodPost, "/apply", `{
		"agentDid": "did:web:agents.example.com",
		"artifactHash": "a1b2c3",
		"ownerName": "Demo Agent",
		"contactEmail": "demo@example.com",
		"claimedPermissions": ["high-value", "read"]
	}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, float64(60), body["risk_score"])
	assert.Equal(t, "Application submitted successfully", body["message"])

	id := body["application_id"].(string)
	code, body = env.do(t, http.MethodGet, "/status/"+id, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, body["id"])
	report := body["audit_report"].(map[string]interface{})
	assert.Equal(t, "medium", report["band"])

	t.Run("missing fields", func(t *testing.T) {
		code, body := env.do(t, http.MethodPost, "/apply", `{"agentDid":"did:web:example.com"}`)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.NotEmpty(t, body["error"])
	})

	t.Run("invalid JSON", func(t *testing.T) {
		code, _ := env.do(t, http.MethodPost, "/apply", `{`)
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

func TestSimulateTransaction(t *testing.T) {
	env := newEnv(t, "")
	env.seedApplication(t, "app_1", 20)

	code, body := env.do(t, http.MethodPost, "/issue/app_1", "")
	require.Equal(t, http.StatusOK, code)
	id := body["credential"].(map[string]interface{})["id"].(string)

	code, body = env.do(t, http.MethodPost, "/simulate-transaction", `{"credential_id":"`+id+`","amount":20000}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["allowed"])
	assert.Equal(t, float64(80), body["risk_score"])
	assert.Equal(t, "Amount $20000 exceeds credential limit of $10000", body["reason"])
	assert.Equal(t, "did:agent:app_1", body["agent_did"])

	code, _ = env.do(t, http.MethodPost, "/simulate-transaction", `{"amount":10}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodPost, "/simulate-transaction", `{"credential_id":"`+id+`","amount":0}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodPost, "/simulate-transaction", `{"credential_id":"missing","amount":10}`)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHealthJWKSAndMetrics(t *testing.T) {
	env := newEnv(t, "")

	code, body := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, body = env.do(t, http.MethodGet, "/.well-known/jwks.json", "")
	require.Equal(t, http.StatusOK, code)
	keys := body["keys"].([]interface{})
	require.Len(t, keys, 1)
	key := keys[0].(map[string]interface{})
	assert.Equal(t, "OKP", key["kty"])
	assert.True(t, strings.HasPrefix(key["kid"].(string), "did:key:"))

	env.seedApplication(t, "app_1", 20)
	code, _ = env.do(t, http.MethodPost, "/issue/app_1", "")
	require.Equal(t, http.StatusOK, code)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `agentattest_anchor_submissions_total{kind="issuance",outcome="CONFIRMED"} 1`)
}

func TestAdminListings(t *testing.T) {
	env := newEnv(t, "")
	env.seedApplication(t, "app_1", 20)
	env.seedApplication(t, "app_2", 40)

	code, body := env.do(t, http.MethodPost, "/issue/app_1", "")
	require.Equal(t, http.StatusOK, code)
	id := body["credential"].(map[string]interface{})["id"].(string)

	code, body = env.do(t, http.MethodGet, "/admin/applications", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["count"])
	apps := body["items"].([]interface{})
	assert.Equal(t, "APPROVED", apps[0].(map[string]interface{})["status"])
	assert.Equal(t, "PENDING", apps[1].(map[string]interface{})["status"])

	code, body = env.do(t, http.MethodGet, "/admin/revocations", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])

	code, _ = env.do(t, http.MethodGet, "/admin/revocations/"+id, "")
	assert.Equal(t, http.StatusNotFound, code)

	before := time.Now().UTC().Add(-time.Minute)
	code, _ = env.do(t, http.MethodPost, "/revoke/"+id, `{"reason":"Key compromise"}`)
	require.Equal(t, http.StatusOK, code)

	t.Run("credentials show effective status", func(t *testing.T) {
		code, body := env.do(t, http.MethodGet, "/admin/credentials", "")
		require.Equal(t, http.StatusOK, code)
		creds := body["items"].([]interface{})
		require.Len(t, creds, 1)
		cred := creds[0].(map[string]interface{})
		assert.Equal(t, id, cred["id"])
		assert.Equal(t, "REVOKED", cred["status"])
	})

	t.Run("revocations since", func(t *testing.T) {
		code, body := env.do(t, http.MethodGet, "/admin/revocations?since="+before.Format(time.RFC3339), "")
		require.Equal(t, http.StatusOK, code)
		revs := body["items"].([]interface{})
		require.Len(t, revs, 1)
		assert.Equal(t, id, revs[0].(map[string]interface{})["credentialId"])

		future := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
		code, body = env.do(t, http.MethodGet, "/admin/revocations?since="+future, "")
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, float64(0), body["count"])
	})

	t.Run("invalid since", func(t *testing.T) {
		code, _ := env.do(t, http.MethodGet, "/admin/revocations?since=yesterday", "")
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("single revocation", func(t *testing.T) {
		code, body := env.do(t, http.MethodGet, "/admin/revocations/"+id, "")
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "Key compromise", body["reason"])
		assert.Equal(t, float64(2), body["blockHeight"])
	})
}
