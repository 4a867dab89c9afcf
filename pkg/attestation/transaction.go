package attestation

import (
	"fmt"

	"github.com/agentattest/attest-core/pkg/ledger"
)

// AnchorAmount is the transfer amount used to anchor a payload (0.000001 AMA).
var AnchorAmount = ledger.ToAtomic(0.000001)

type txOptions struct {
	amount uint64
	symbol string
	memo   []byte
	nonce  *int64
}

// TxOption configures BuildAnchorTransaction.
type TxOption func(*txOptions)

// WithMemo embeds data, normally the payload CID, in the transfer.
func WithMemo(memo []byte) TxOption {
	return func(o *txOptions) {
		o.memo = memo
	}
}

// WithNonce fixes the nonce, zero included. The hash is then a pure
// function of the inputs.
func WithNonce(nonce int64) TxOption {
	return func(o *txOptions) {
		o.nonce = &nonce
	}
}

// WithAmount overrides the transfer amount in atomic units.
func WithAmount(amount uint64) TxOption {
	return func(o *txOptions) {
		o.amount = amount
	}
}

// WithSymbol overrides the token symbol.
func WithSymbol(symbol string) TxOption {
	return func(o *txOptions) {
		if symbol != "" {
			o.symbol = symbol
		}
	}
}

// BuildAnchorTransaction builds and signs a minimal transfer from the key
// derived from privateKey to recipientPublicKey.
func BuildAnchorTransaction(privateKey, recipientPublicKey string, opts ...TxOption) (*ledger.BuildResult, error) {
	o := txOptions{amount: AnchorAmount, symbol: ledger.DefaultSymbol}
	for _, opt := range opts {
		opt(&o)
	}

	builder, err := ledger.NewBuilder(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction builder: %w", err)
	}

	built, err := builder.Transfer(ledger.TransferInput{
		Recipient: recipientPublicKey,
		Amount:    o.amount,
		Symbol:    o.symbol,
		Memo:      o.memo,
		Nonce:     o.nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build anchor transaction: %w", err)
	}
	return built, nil
}
