// Package devnet simulates a ledger node in process. It serves the same HTTP
// contract as a real node and is used by tests and the devnet command.
package devnet

import (
	"io"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/agentattest/attest-core/pkg/ledger"
)

// RejectRule returns a non-empty rejection code for transactions the node refuses.
type RejectRule func(tx *ledger.Transaction) string

// Option configures a Network.
type Option func(*Network)

// WithRejectRule installs a rejection rule.
func WithRejectRule(rule RejectRule) Option {
	return func(n *Network) {
		n.reject = rule
	}
}

// WithDeferredInclusion makes submissions return "pending" and become
// visible only after the given number of lookups.
func WithDeferredInclusion(lookups int) Option {
	return func(n *Network) {
		n.deferLookups = lookups
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Network) {
		n.logger = logger
	}
}

type entry struct {
	height  int64
	pending int
}

// Network is an in-memory ledger.
type Network struct {
	mu           sync.Mutex
	entries      map[string]*entry
	height       int64
	submissions  int
	reject       RejectRule
	deferLookups int
	logger       *zap.Logger
}

// New creates an empty Network.
func New(opts ...Option) *Network {
	n := &Network{
		entries: make(map[string]*entry),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Handler returns the node HTTP API.
func (n *Network) Handler() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.POST("/tx/submit_and_wait", n.submit)
	e.GET("/chain/tx/:hash", n.lookup)
	return e
}

// Submissions returns the number of accepted submission requests, duplicates included.
func (n *Network) Submissions() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.submissions
}

// Height returns the current chain height.
func (n *Network) Height() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.height
}

func (n *Network) submit(c echo.Context) error {
	packed, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
	}

	st, tx, err := ledger.DecodePacked(packed)
	if err != nil {
		n.logger.Debug("rejecting malformed transaction", zap.Error(err))
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_transaction"})
	}

	if n.reject != nil {
		if code := n.reject(tx); code != "" {
			return c.JSON(http.StatusOK, map[string]string{"error": code, "hash": st.HashString()})
		}
	}

	hash := st.HashString()

	n.mu.Lock()
	defer n.mu.Unlock()

	n.submissions++
	e, ok := n.entries[hash]
	if !ok {
		n.height++
		e = &entry{height: n.height, pending: n.deferLookups}
		n.entries[hash] = e
		n.logger.Debug("transaction included", zap.String("hash", hash), zap.Int64("height", e.height))
	}

	if e.pending > 0 {
		return c.JSON(http.StatusOK, map[string]interface{}{"error": "pending", "hash": hash})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"error": ledger.ResultOK,
		"hash":  hash,
		"metadata": map[string]interface{}{
			"entry_hash":   hash,
			"entry_height": e.height,
		},
	})
}

func (n *Network) lookup(c echo.Context) error {
	hash := c.Param("hash")

	n.mu.Lock()
	defer n.mu.Unlock()

	e, ok := n.entries[hash]
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not_found"})
	}
	if e.pending > 0 {
		e.pending--
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not_found"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"error":  ledger.ResultOK,
		"hash":   hash,
		"result": map[string]string{"error": ledger.ResultOK},
		"metadata": map[string]interface{}{
			"entry_height": e.height,
		},
	})
}
