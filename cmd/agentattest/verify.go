package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/agentattest/attest-core/pkg/attestation"
	"github.com/agentattest/attest-core/pkg/issuance"
)

var (
	verifyCredentialID string
	verifyAgentDID     string
	verifyAPI          string
	verifyJSON         bool
	verifyCheckProof   bool
)

var errCredentialInvalid = errors.New("credential is not valid")

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a credential through the API",
	Long: `Ask an AgentAttest API to verify a credential by id or by agent DID.

With --check-proof the credential proof is also checked locally against the
keys the API publishes at /.well-known/jwks.json.

Exits non-zero when the credential is not valid.`,
	Example: `  agentattest verify --credential-id 7Yq3... --api http://localhost:8080
  agentattest verify --agent-did did:web:agents.example.com --json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if verifyCredentialID == "" && verifyAgentDID == "" {
			return errors.New("either --credential-id or --agent-did is required")
		}

		body, err := fetchVerification(verifyAPI, verifyCredentialID, verifyAgentDID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if verifyJSON {
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, body, "", "  "); err != nil {
				return err
			}
			fmt.Fprintln(out, pretty.String())
		} else {
			cred := gjson.GetBytes(body, "credential")
			fmt.Fprintf(out, "Credential: %s\n", cred.Get("id").String())
			fmt.Fprintf(out, "Subject:    %s\n", cred.Get("subject").String())
			fmt.Fprintf(out, "Status:     %s\n", cred.Get("status").String())
			fmt.Fprintf(out, "Anchored:   %t (%s)\n", cred.Get("is_anchored").Bool(), cred.Get("network").String())
			fmt.Fprintf(out, "Proof:      %t\n", cred.Get("proof_valid").Bool())
			fmt.Fprintf(out, "%s\n", gjson.GetBytes(body, "message").String())
		}

		if !gjson.GetBytes(body, "valid").Bool() {
			return errCredentialInvalid
		}
		if verifyCheckProof {
			if err := checkProof(cmd.Context(), attestation.NewKeySetCache(), verifyAPI, body); err != nil {
				return err
			}
			fmt.Fprintln(out, "Local proof check passed")
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyCredentialID, "credential-id", "", "Credential id (issuance transaction hash)")
	verifyCmd.Flags().StringVar(&verifyAgentDID, "agent-did", "", "Agent DID")
	verifyCmd.Flags().StringVar(&verifyAPI, "api", "http://localhost:8080", "AgentAttest API base URL")
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "Print the raw JSON response")
	verifyCmd.Flags().BoolVar(&verifyCheckProof, "check-proof", false, "Check the credential proof against the published keys")
	rootCmd.AddCommand(verifyCmd)
}

func fetchVerification(api, credentialID, agentDID string) ([]byte, error) {
	q := url.Values{}
	if credentialID != "" {
		q.Set("credential_id", credentialID)
	}
	if agentDID != "" {
		q.Set("agent_did", agentDID)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(strings.TrimSuffix(api, "/") + "/verify?" + q.Encode())
	if err != nil {
		return nil, fmt.Errorf("verification request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if msg := gjson.GetBytes(body, "error").String(); msg != "" {
			return nil, fmt.Errorf("verification failed (%d): %s", resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("verification failed with status %d", resp.StatusCode)
	}
	return body, nil
}

// checkProof verifies the proof of the credential in a /verify response
// against the key set published by the API.
func checkProof(ctx context.Context, keys attestation.KeySetFetcher, api string, body []byte) error {
	raw := gjson.GetBytes(body, "credential")
	if !raw.Exists() {
		return errors.New("response carries no credential")
	}
	var cred issuance.VerifiedCredential
	if err := json.Unmarshal([]byte(raw.Raw), &cred); err != nil {
		return fmt.Errorf("failed to decode credential: %w", err)
	}
	if cred.CredentialView == nil || cred.Proof == "" {
		return fmt.Errorf("%w: credential has no proof", errCredentialInvalid)
	}

	jwks, err := keys.Fetch(ctx, api)
	if err != nil {
		return err
	}
	if err := attestation.VerifyProof(cred.Proof, jwks, &cred.IssuancePayload); err != nil {
		return fmt.Errorf("%w: %v", errCredentialInvalid, err)
	}
	return nil
}
