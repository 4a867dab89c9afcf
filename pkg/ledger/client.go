package ledger

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// DefaultBaseURL is the public testnet node.
const DefaultBaseURL = "https://testnet.ama.one/api"

// DefaultTimeout bounds a single HTTP exchange with a node.
const DefaultTimeout = 30 * time.Second

// ResultOK is the result code of a successfully applied transaction.
const ResultOK = "ok"

const userAgent = "agentattest-core/1.0"

// Height paths in node responses, most specific first.
var heightPaths = []string{"metadata.entry_height", "receipt.block_height", "metadata.height"}

// ClientConfig configures a network Client.
type ClientConfig struct {
	// BaseURL of the node API. Defaults to DefaultBaseURL.
	BaseURL string

	// Timeout for each HTTP exchange. Defaults to DefaultTimeout.
	Timeout time.Duration

	// InsecureTLS disables certificate verification for this client only.
	InsecureTLS bool

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// SubmitResult is the node's answer to a submission.
type SubmitResult struct {
	// Hash is the transaction hash reported by the node.
	Hash string

	// EntryHeight is the height of the entry that included the transaction.
	EntryHeight int64

	// Included is false when the node accepted the transaction without reporting inclusion.
	Included bool
}

// TxLookup is the node's view of a transaction.
type TxLookup struct {
	Hash string

	// Found is false when the node does not know the hash.
	Found bool

	// Result is the execution result code; ResultOK on success.
	Result string

	EntryHeight int64
}

// Succeeded reports whether the transaction is known and applied successfully.
func (l *TxLookup) Succeeded() bool {
	return l != nil && l.Found && l.Result == ResultOK
}

// Client talks to a ledger node over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a network Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid ledger base URL %q", base)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS && parsed.Scheme == "https" {
		logger.Warn("certificate verification disabled for ledger transport", zap.String("url", base))
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &Client{
		baseURL: strings.TrimSuffix(base, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger,
	}, nil
}

// BaseURL returns the node API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SubmitAndWait submits a packed transaction and waits for the node to report inclusion.
func (c *Client) SubmitAndWait(ctx context.Context, packed []byte) (*SubmitResult, error) {
	if len(packed) == 0 {
		return nil, NewError(ErrCodeMalformed, "refusing to submit empty transaction")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tx/submit_and_wait", bytes.NewReader(packed))
	if err != nil {
		return nil, WrapError(ErrCodeMalformed, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, "submit", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		// The node may have accepted the transaction before the read failed.
		return nil, WrapError(ErrCodeUnknown, "failed to read submission response", err)
	}

	switch {
	case resp.StatusCode == http.StatusGatewayTimeout:
		return nil, NewError(ErrCodeUnknown, "node timed out waiting for inclusion")
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, NewError(ErrCodeUnreachable, fmt.Sprintf("node returned status %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, NewError(ErrCodeRejected, rejectionMessage(resp.StatusCode, body))
	}

	if !gjson.ValidBytes(body) {
		// A success status with an unreadable body does not say the transaction failed.
		return nil, NewError(ErrCodeUnknown, "node accepted the submission but returned invalid JSON")
	}

	result := &SubmitResult{
		Hash: firstString(body, "hash", "tx_hash", "metadata.tx_hash"),
	}

	switch code := gjson.GetBytes(body, "error").String(); code {
	case "", ResultOK:
	case "pending", "timeout":
		return result, nil
	default:
		return nil, NewError(ErrCodeRejected, code)
	}

	if height, ok := firstInt(body, heightPaths...); ok {
		result.EntryHeight = height
		result.Included = true
	}

	return result, nil
}

// GetTransaction looks up a transaction by hash. Unknown hashes are not an error.
func (c *Client) GetTransaction(ctx context.Context, hash string) (*TxLookup, error) {
	lookup := &TxLookup{Hash: hash}
	if hash == "" {
		return lookup, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/chain/tx/"+url.PathEscape(hash), nil)
	if err != nil {
		return nil, WrapError(ErrCodeMalformed, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, "lookup", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(ErrCodeUnreachable, "failed to read lookup response", err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, NewError(ErrCodeUnreachable, fmt.Sprintf("node returned status %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		return lookup, nil
	}

	if !gjson.ValidBytes(body) {
		return lookup, nil
	}
	if code := gjson.GetBytes(body, "error").String(); code != "" && code != ResultOK {
		return lookup, nil
	}

	code := gjson.GetBytes(body, "result.error")
	if !code.Exists() || code.String() == "" {
		return lookup, nil
	}

	lookup.Found = true
	lookup.Result = code.String()
	if height, ok := firstInt(body, heightPaths...); ok {
		lookup.EntryHeight = height
	}
	return lookup, nil
}

func (c *Client) transportError(ctx context.Context, op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return WrapError(ErrCodeUnknown, op+" timed out", err)
	}
	c.logger.Debug("ledger request failed", zap.String("op", op), zap.Error(err))
	return WrapError(ErrCodeUnreachable, op+" failed", err)
}

func rejectionMessage(status int, body []byte) string {
	if msg := firstString(body, "error", "message"); msg != "" {
		return msg
	}
	if len(body) > 0 && len(body) < 256 {
		return strings.TrimSpace(string(body))
	}
	return fmt.Sprintf("node returned status %d", status)
}

func firstString(body []byte, paths ...string) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, p := range paths {
		if r := gjson.GetBytes(body, p); r.Exists() && r.String() != "" {
			return r.String()
		}
	}
	return ""
}

func firstInt(body []byte, paths ...string) (int64, bool) {
	for _, p := range paths {
		if r := gjson.GetBytes(body, p); r.Exists() && r.Type == gjson.Number {
			return r.Int(), true
		}
	}
	return 0, false
}
