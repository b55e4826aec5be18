package txlookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = 500 * time.Millisecond
	DefaultMaxDelay     = 5 * time.Second
	backoffMultiplier   = 2.0
)

// ErrNotFound is returned when the node has no record of a transaction.
var ErrNotFound = errors.New("transaction not found")

// OnChainError reports a transaction that executed and failed.
type OnChainError struct {
	Signature string
	Details   string
}

func (e *OnChainError) Error() string {
	return fmt.Sprintf("transaction %s failed on chain: %s", e.Signature, e.Details)
}

// TokenBalance is a post-transaction SPL token balance.
type TokenBalance struct {
	Mint     string          `json:"mint"`
	Owner    string          `json:"owner"`
	Amount   uint64          `json:"amount"`
	Decimals uint8           `json:"decimals"`
	UIAmount decimal.Decimal `json:"uiAmount"`
}

// TransactionMeta is the subset of a confirmed transaction used by rules.
type TransactionMeta struct {
	Signature         string         `json:"signature"`
	Slot              uint64         `json:"slot"`
	BlockTime         int64          `json:"blockTime"`
	Fee               uint64         `json:"fee"`
	LogMessages       []string       `json:"logMessages"`
	PreTokenBalances  []TokenBalance `json:"preTokenBalances"`
	PostTokenBalances []TokenBalance `json:"postTokenBalances"`
}

// PostBalance returns owner's balance of mint after the transaction.
// ok is false when the transaction reported no such balance.
func (m *TransactionMeta) PostBalance(owner, mint string) (TokenBalance, bool) {
	for _, b := range m.PostTokenBalances {
		if b.Owner == owner && b.Mint == mint {
			return b, true
		}
	}
	return TokenBalance{}, false
}

// TransactionGetter is the rpc call used by Client. *rpc.Client satisfies it.
type TransactionGetter interface {
	GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

// Client fetches confirmed transactions with retry on not-found, which is
// common right after a logsNotification.
type Client struct {
	rpc          TransactionGetter
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
}

// Option configures Client.
type Option func(*Client)

func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

func WithRetryDelay(initial, max time.Duration) Option {
	return func(c *Client) {
		c.initialDelay = initial
		c.maxDelay = max
	}
}

// New builds a Client over an rpc endpoint URL.
func New(endpoint string, opts ...Option) *Client {
	return NewWithGetter(rpc.New(endpoint), opts...)
}

// NewWithGetter builds a Client over an existing rpc implementation.
func NewWithGetter(getter TransactionGetter, opts ...Option) *Client {
	c := &Client{
		rpc:          getter,
		maxRetries:   DefaultMaxRetries,
		initialDelay: DefaultInitialDelay,
		maxDelay:     DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetTransaction fetches signature at confirmed commitment. It returns
// ErrNotFound once retries are exhausted and *OnChainError when the
// transaction failed.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*TransactionMeta, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature %q: %w", signature, err)
	}

	maxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	}

	delay := c.initialDelay
	for attempt := 0; ; attempt++ {
		res, err := c.rpc.GetTransaction(ctx, sig, opts)
		if err == nil && res != nil {
			if attempt > 0 {
				log.WithFields(log.Fields{
					"signature":      signature,
					"retry_attempts": attempt,
				}).Debug("Retrieved transaction after retries")
			}
			return toMeta(signature, res)
		}

		if err != nil && !isNotFound(err) {
			return nil, fmt.Errorf("get transaction %s: %w", signature, err)
		}
		if attempt >= c.maxRetries {
			log.WithFields(log.Fields{
				"signature":      signature,
				"retry_attempts": attempt + 1,
			}).Debug("Transaction not found after all retry attempts")
			return nil, ErrNotFound
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * backoffMultiplier)
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}
}

func isNotFound(err error) bool {
	if errors.Is(err, rpc.ErrNotFound) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}

func toMeta(signature string, res *rpc.GetTransactionResult) (*TransactionMeta, error) {
	if res.Meta == nil {
		return nil, ErrNotFound
	}
	if res.Meta.Err != nil {
		details, err := json.Marshal(res.Meta.Err)
		if err != nil {
			details = []byte(fmt.Sprintf("%v", res.Meta.Err))
		}
		return nil, &OnChainError{Signature: signature, Details: string(details)}
	}

	meta := &TransactionMeta{
		Signature:         signature,
		Slot:              res.Slot,
		Fee:               res.Meta.Fee,
		LogMessages:       res.Meta.LogMessages,
		PreTokenBalances:  convertBalances(res.Meta.PreTokenBalances),
		PostTokenBalances: convertBalances(res.Meta.PostTokenBalances),
	}
	if res.BlockTime != nil {
		meta.BlockTime = int64(*res.BlockTime)
	}
	return meta, nil
}

func convertBalances(in []rpc.TokenBalance) []TokenBalance {
	out := make([]TokenBalance, 0, len(in))
	for _, b := range in {
		tb := TokenBalance{Mint: b.Mint.String()}
		if b.Owner != nil {
			tb.Owner = b.Owner.String()
		}
		if b.UiTokenAmount != nil {
			tb.Decimals = b.UiTokenAmount.Decimals
			if amt, err := decimal.NewFromString(b.UiTokenAmount.Amount); err == nil {
				tb.Amount = amt.BigInt().Uint64()
				tb.UIAmount = amt.Shift(-int32(b.UiTokenAmount.Decimals))
			}
		}
		out = append(out, tb)
	}
	return out
}
