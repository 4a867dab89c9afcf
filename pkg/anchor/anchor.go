// Package anchor submits composed transactions to the ledger and confirms them.
//
// A submission moves COMPOSED -> SUBMITTED -> CONFIRMED | REJECTED | UNKNOWN.
// UNKNOWN means the outcome could not be established within the time budget;
// it is not proof of failure. Nothing in this package resubmits a transaction.
package anchor

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/agentattest/attest-core/internal/log"
	"github.com/agentattest/attest-core/pkg/ledger"
)

// Default budgets.
const (
	DefaultTimeout      = 60 * time.Second
	DefaultPollInterval = time.Second
)

// State of an anchored transaction.
type State string

// Transaction states.
const (
	StateComposed  State = "COMPOSED"
	StateSubmitted State = "SUBMITTED"
	StateConfirmed State = "CONFIRMED"
	StateRejected  State = "REJECTED"
	StateUnknown   State = "UNKNOWN"
)

// Final reports whether no further transition is possible from s.
func (s State) Final() bool {
	return s == StateConfirmed || s == StateRejected || s == StateUnknown
}

// Kind labels what a transaction anchors.
type Kind string

// Anchor kinds.
const (
	KindIssuance   Kind = "issuance"
	KindRevocation Kind = "revocation"
)

// Lookup outcomes reported to Metrics.
const (
	LookupConfirmed = "confirmed"
	LookupFailed    = "failed"
	LookupNotFound  = "not_found"
	LookupError     = "error"
)

// Network is the ledger node API.
type Network interface {
	SubmitAndWait(ctx context.Context, packed []byte) (*ledger.SubmitResult, error)
	GetTransaction(ctx context.Context, hash string) (*ledger.TxLookup, error)
}

// Metrics receives submission and lookup observations.
type Metrics interface {
	ObserveSubmission(kind, outcome string, d time.Duration)
	ObserveLookup(outcome string)
}

// Receipt is the result of a submission.
type Receipt struct {
	Hash        string `json:"hash"`
	State       State  `json:"state"`
	BlockHeight int64  `json:"blockHeight"`
}

// Confirmation is the ledger's view of a previously submitted transaction.
type Confirmation struct {
	Hash string `json:"hash"`

	// Confirmed is true when the transaction is on chain and applied successfully.
	Confirmed bool `json:"confirmed"`

	// Found is false when the ledger does not know the hash.
	Found bool `json:"found"`

	// Result is the ledger's result code.
	Result string `json:"result,omitempty"`

	BlockHeight int64 `json:"blockHeight"`
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds SubmitAndWait, polling included.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPollInterval sets the initial status polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithReachabilityListener registers fn, called after every network exchange
// with whether the ledger could be reached.
func WithReachabilityListener(fn func(reachable bool)) Option {
	return func(c *Client) {
		c.reachability = fn
	}
}

// Client submits and confirms anchor transactions.
type Client struct {
	network      Network
	timeout      time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
	metrics      Metrics
	reachability func(bool)
}

// NewClient creates a Client on top of network.
func NewClient(network Network, opts ...Option) *Client {
	c := &Client{
		network:      network,
		timeout:      DefaultTimeout,
		pollInterval: DefaultPollInterval,
		logger:       zap.NewNop(),
		metrics:      nopMetrics{},
		reachability: func(bool) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitAndWait submits built and waits for a final state within the
// configured timeout. The returned receipt is non-nil whenever built is valid
// and reports the final state, also when an error is returned.
func (c *Client) SubmitAndWait(ctx context.Context, kind Kind, built *ledger.BuildResult) (*Receipt, error) {
	if built == nil || built.Hash == "" || len(built.Packed) == 0 {
		return nil, ledger.NewError(ledger.ErrCodeMalformed, "nothing to submit")
	}

	start := time.Now()
	receipt := &Receipt{Hash: built.Hash, State: StateComposed}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.submit(ctx, built, receipt)

	c.metrics.ObserveSubmission(string(kind), string(receipt.State), time.Since(start))
	fields := []zap.Field{
		log.WithKind(string(kind)),
		log.WithTxHash(receipt.Hash),
		log.WithState(string(receipt.State)),
		log.WithDuration(time.Since(start)),
	}

	switch receipt.State {
	case StateConfirmed:
		c.logger.Info("anchor confirmed", append(fields, zap.Int64("block_height", receipt.BlockHeight))...)
	case StateRejected:
		c.logger.Error("anchor rejected", append(fields, log.WithError(err))...)
	default:
		c.logger.Warn("anchor outcome unknown", append(fields, log.WithError(err))...)
	}

	return receipt, err
}

func (c *Client) submit(ctx context.Context, built *ledger.BuildResult, receipt *Receipt) error {
	receipt.State = StateSubmitted

	res, err := c.network.SubmitAndWait(ctx, built.Packed)
	c.reachability(!errors.Is(err, ledger.ErrUnreachable))
	if err != nil {
		receipt.State = stateForError(err)
		if receipt.State == StateUnknown && ctx.Err() != nil && !errors.Is(err, ledger.ErrUnknown) {
			return ledger.WrapError(ledger.ErrCodeUnknown, "submission timed out", err)
		}
		return err
	}

	if res.Hash != "" && res.Hash != built.Hash {
		receipt.State = StateUnknown
		return ledger.NewError(ledger.ErrCodeHashMismatch, "node reported "+res.Hash+" for "+built.Hash)
	}

	if res.Included {
		receipt.State = StateConfirmed
		receipt.BlockHeight = res.EntryHeight
		return nil
	}

	return c.poll(ctx, built.Hash, receipt)
}

// poll waits for a transaction the node accepted without reporting inclusion.
func (c *Client) poll(ctx context.Context, hash string, receipt *Receipt) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.pollInterval
	b.MaxInterval = 8 * c.pollInterval
	b.MaxElapsedTime = 0

	op := func() error {
		lookup, err := c.network.GetTransaction(ctx, hash)
		c.reachability(!errors.Is(err, ledger.ErrUnreachable))
		if err != nil {
			return err
		}
		switch {
		case lookup.Succeeded():
			receipt.State = StateConfirmed
			receipt.BlockHeight = lookup.EntryHeight
			return nil
		case lookup.Found:
			receipt.State = StateRejected
			return backoff.Permanent(ledger.NewError(ledger.ErrCodeRejected, lookup.Result))
		default:
			return errNotYetIncluded
		}
	}

	notify := func(err error, next time.Duration) {
		c.logger.Debug("waiting for inclusion", log.WithTxHash(hash), log.WithError(err), log.WithDuration(next))
	}

	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	if err == nil || receipt.State == StateRejected {
		return err
	}

	receipt.State = StateUnknown
	return ledger.WrapError(ledger.ErrCodeUnknown, "transaction not confirmed within timeout", err)
}

var errNotYetIncluded = errors.New("transaction not yet included")

// stateForError maps a submission error to a final state. Only an explicit
// refusal by the node is a rejection.
func stateForError(err error) State {
	if errors.Is(err, ledger.ErrRejected) || errors.Is(err, ledger.ErrMalformed) {
		return StateRejected
	}
	return StateUnknown
}

// GetTransaction looks up hash. A hash the ledger has never seen yields a
// Confirmation with Confirmed false and a nil error; only failures to reach
// the ledger are returned as errors.
func (c *Client) GetTransaction(ctx context.Context, hash string) (*Confirmation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	lookup, err := c.network.GetTransaction(ctx, hash)
	c.reachability(!errors.Is(err, ledger.ErrUnreachable))
	if err != nil {
		c.metrics.ObserveLookup(LookupError)
		c.logger.Warn("transaction lookup failed", log.WithTxHash(hash), log.WithError(err))
		return nil, err
	}

	conf := &Confirmation{
		Hash:        hash,
		Confirmed:   lookup.Succeeded(),
		Found:       lookup.Found,
		Result:      lookup.Result,
		BlockHeight: lookup.EntryHeight,
	}

	switch {
	case conf.Confirmed:
		c.metrics.ObserveLookup(LookupConfirmed)
	case conf.Found:
		c.metrics.ObserveLookup(LookupFailed)
	default:
		c.metrics.ObserveLookup(LookupNotFound)
	}
	return conf, nil
}

type nopMetrics struct{}

func (nopMetrics) ObserveSubmission(string, string, time.Duration) {}

func (nopMetrics) ObserveLookup(string) {}
