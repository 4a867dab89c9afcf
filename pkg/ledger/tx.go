package ledger

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/cloudflare/circl/sign/bls"
	"github.com/fxamacker/cbor/v2"
	"github.com/mr-tron/base58"
)

// Transfer defaults.
const (
	// ContractCoin is the native token contract.
	ContractCoin = "Coin"

	// MethodTransfer is the transfer method of the Coin contract.
	MethodTransfer = "transfer"

	// DefaultSymbol is the native token symbol.
	DefaultSymbol = "AMA"

	// AtomicPerUnit is the number of atomic units in one token (9 decimals).
	AtomicPerUnit = 1_000_000_000

	opCall = "call"
)

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Action is a contract call carried by a transaction.
type Action struct {
	Op       string   `cbor:"op"`
	Contract string   `cbor:"contract"`
	Function string   `cbor:"function"`
	Args     [][]byte `cbor:"args"`
}

// Transaction is the signed body of a ledger transaction.
type Transaction struct {
	Signer []byte `cbor:"signer"`
	Nonce  int64  `cbor:"nonce"`
	Action Action `cbor:"action"`
}

// UnsignedTransaction is a transaction with its computed hash.
type UnsignedTransaction struct {
	Tx   Transaction
	Body []byte
	Hash []byte
}

// HashString returns the Base58 hash.
func (u *UnsignedTransaction) HashString() string {
	return base58.Encode(u.Hash)
}

// BuildResult is a signed transaction ready for submission.
type BuildResult struct {
	// Hash is the Base58 transaction hash.
	Hash string

	// Packed is the serialized signed transaction.
	Packed []byte
}

// SignedTransaction is the wire envelope of a packed transaction.
type SignedTransaction struct {
	Tx        []byte `cbor:"tx"`
	Hash      []byte `cbor:"hash"`
	Signature []byte `cbor:"signature"`
}

// TransferInput describes a token transfer.
type TransferInput struct {
	// Recipient is the Base58 public key of the receiver.
	Recipient string

	// Amount is expressed in atomic units.
	Amount uint64

	// Symbol defaults to DefaultSymbol.
	Symbol string

	// Memo is appended as an extra call argument when set.
	Memo []byte

	// Nonce overrides the builder's nonce source when set. Zero is a valid nonce.
	Nonce *int64
}

// ToAtomic converts a token amount to atomic units.
func ToAtomic(amount float64) uint64 {
	if amount <= 0 {
		return 0
	}
	return uint64(math.Round(amount * AtomicPerUnit))
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithNonceSource replaces the clock-based nonce source.
func WithNonceSource(next func() int64) BuilderOption {
	return func(b *Builder) {
		b.nonce = next
	}
}

// Builder builds and signs transactions for a single signer.
type Builder struct {
	sk       *signingKey
	signerPk []byte
	nonce    func() int64
}

// NewBuilder creates a Builder for the signer derived from a Base58 seed.
func NewBuilder(seed string, opts ...BuilderOption) (*Builder, error) {
	sk, err := deriveSigningKey(seed)
	if err != nil {
		return nil, err
	}
	_, pk, err := encodePublicKey(sk.PublicKey())
	if err != nil {
		return nil, err
	}

	b := &Builder{
		sk:       sk,
		signerPk: pk,
		nonce:    func() int64 { return time.Now().UnixNano() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// PublicKey returns the signer's Base58 public key.
func (b *Builder) PublicKey() string {
	return base58.Encode(b.signerPk)
}

// Build creates an unsigned contract call using the builder's nonce source.
func (b *Builder) Build(contract, method string, args ...[]byte) (*UnsignedTransaction, error) {
	return b.build(b.nonce(), contract, method, args)
}

func (b *Builder) build(nonce int64, contract, method string, args [][]byte) (*UnsignedTransaction, error) {
	if contract == "" || method == "" {
		return nil, NewError(ErrCodeMalformed, "contract and method are required")
	}
	if args == nil {
		args = [][]byte{}
	}

	tx := Transaction{
		Signer: b.signerPk,
		Nonce:  nonce,
		Action: Action{
			Op:       opCall,
			Contract: contract,
			Function: method,
			Args:     args,
		},
	}

	body, err := encMode.Marshal(tx)
	if err != nil {
		return nil, WrapError(ErrCodeMalformed, "failed to encode transaction", err)
	}
	sum := sha256.Sum256(body)

	return &UnsignedTransaction{Tx: tx, Body: body, Hash: sum[:]}, nil
}

// Sign signs an unsigned transaction and packs it for submission.
func (b *Builder) Sign(u *UnsignedTransaction) (*BuildResult, error) {
	if u == nil || len(u.Hash) == 0 {
		return nil, NewError(ErrCodeMalformed, "nothing to sign")
	}
	if !bytes.Equal(u.Tx.Signer, b.signerPk) {
		return nil, NewError(ErrCodeMalformed, "transaction signer does not match builder key")
	}

	sig := bls.Sign(b.sk, u.Hash)

	packed, err := encMode.Marshal(SignedTransaction{
		Tx:        u.Body,
		Hash:      u.Hash,
		Signature: sig,
	})
	if err != nil {
		return nil, WrapError(ErrCodeMalformed, "failed to pack transaction", err)
	}

	return &BuildResult{Hash: u.HashString(), Packed: packed}, nil
}

// Transfer builds and signs a Coin transfer.
func (b *Builder) Transfer(in TransferInput) (*BuildResult, error) {
	recipient, err := DecodePublicKey(in.Recipient)
	if err != nil {
		return nil, WrapError(ErrCodeMalformed, "invalid recipient", err)
	}
	symbol := in.Symbol
	if symbol == "" {
		symbol = DefaultSymbol
	}
	nonce := b.nonce
	if in.Nonce != nil {
		nonce = func() int64 { return *in.Nonce }
	}

	args := [][]byte{
		recipient,
		[]byte(strconv.FormatUint(in.Amount, 10)),
		[]byte(symbol),
	}
	if len(in.Memo) > 0 {
		args = append(args, in.Memo)
	}

	u, err := b.build(nonce(), ContractCoin, MethodTransfer, args)
	if err != nil {
		return nil, err
	}
	return b.Sign(u)
}

// DecodePacked unpacks a signed transaction and checks its hash and signature.
func DecodePacked(packed []byte) (*SignedTransaction, *Transaction, error) {
	var st SignedTransaction
	if err := cbor.Unmarshal(packed, &st); err != nil {
		return nil, nil, WrapError(ErrCodeMalformed, "failed to decode packed transaction", err)
	}

	var tx Transaction
	if err := cbor.Unmarshal(st.Tx, &tx); err != nil {
		return nil, nil, WrapError(ErrCodeMalformed, "failed to decode transaction body", err)
	}

	sum := sha256.Sum256(st.Tx)
	if !bytes.Equal(sum[:], st.Hash) {
		return nil, nil, NewError(ErrCodeMalformed, "transaction hash does not match body")
	}
	if !VerifySignature(tx.Signer, st.Hash, st.Signature) {
		return nil, nil, NewError(ErrCodeMalformed, "invalid transaction signature")
	}

	return &st, &tx, nil
}

// HashString returns the Base58 hash of a signed transaction.
func (s *SignedTransaction) HashString() string {
	return base58.Encode(s.Hash)
}

// String describes the transaction for logs.
func (t *Transaction) String() string {
	return fmt.Sprintf("%s.%s nonce=%d signer=%s", t.Action.Contract, t.Action.Function, t.Nonce, base58.Encode(t.Signer))
}
