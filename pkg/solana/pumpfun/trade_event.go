package pumpfun

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

const (
	// ProgramDataPrefix marks a log line carrying a base64 event payload.
	ProgramDataPrefix = "Program data: "

	// TradeEventSize is the length of one encoded TradeEvent record.
	TradeEventSize = 129

	// Native unit decimals of the two sides of a pump.fun trade.
	SolDecimals   = 9
	TokenDecimals = 6
)

// Byte offsets inside a TradeEvent record. The leading 8 bytes are the
// event discriminator and are not surfaced.
const (
	offMint                 = 8
	offSolAmount            = 40
	offTokenAmount          = 48
	offIsBuy                = 56
	offUser                 = 57
	offTimestamp            = 89
	offVirtualSolReserves   = 97
	offVirtualTokenReserves = 105
	offRealSolReserves      = 113
	offRealTokenReserves    = 121
)

// FormatErrorKind classifies why a program data line could not be decoded.
type FormatErrorKind int

const (
	MissingPrefix FormatErrorKind = iota + 1
	InvalidEncoding
	InvalidLength
)

func (k FormatErrorKind) String() string {
	switch k {
	case MissingPrefix:
		return "missing prefix"
	case InvalidEncoding:
		return "invalid encoding"
	case InvalidLength:
		return "invalid length"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Sentinels for errors.Is matching against a *FormatError.
var (
	ErrMissingPrefix   = errors.New("pumpfun: missing program data prefix")
	ErrInvalidEncoding = errors.New("pumpfun: invalid base64 payload")
	ErrInvalidLength   = errors.New("pumpfun: payload length is not a positive multiple of 129")
)

// FormatError reports a malformed program data line. Length is set for
// InvalidLength and holds the decoded payload size.
type FormatError struct {
	Kind   FormatErrorKind
	Length int
	Err    error
}

func (e *FormatError) Error() string {
	switch e.Kind {
	case InvalidLength:
		return fmt.Sprintf("trade event format error: %s (%d bytes)", e.Kind, e.Length)
	case InvalidEncoding:
		if e.Err != nil {
			return fmt.Sprintf("trade event format error: %s: %v", e.Kind, e.Err)
		}
	}
	return fmt.Sprintf("trade event format error: %s", e.Kind)
}

func (e *FormatError) Unwrap() error { return e.Err }

func (e *FormatError) Is(target error) bool {
	switch target {
	case ErrMissingPrefix:
		return e.Kind == MissingPrefix
	case ErrInvalidEncoding:
		return e.Kind == InvalidEncoding
	case ErrInvalidLength:
		return e.Kind == InvalidLength
	}
	return false
}

// TradeEvent is one decoded pump.fun trade.
type TradeEvent struct {
	Mint                 solana.PublicKey `json:"mint"`
	SolAmount            uint64           `json:"solAmount"`
	TokenAmount          uint64           `json:"tokenAmount"`
	IsBuy                bool             `json:"isBuy"`
	User                 solana.PublicKey `json:"user"`
	Timestamp            int64            `json:"timestamp"`
	VirtualSolReserves   uint64           `json:"virtualSolReserves"`
	VirtualTokenReserves uint64           `json:"virtualTokenReserves"`
	RealSolReserves      uint64           `json:"realSolReserves"`
	RealTokenReserves    uint64           `json:"realTokenReserves"`
}

// DecodeTradeEvents decodes every TradeEvent carried by a single
// "Program data: " log line, preserving record order.
func DecodeTradeEvents(programData string) ([]TradeEvent, error) {
	if !strings.HasPrefix(programData, ProgramDataPrefix) {
		return nil, &FormatError{Kind: MissingPrefix}
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(programData[len(ProgramDataPrefix):]))
	if err != nil {
		return nil, &FormatError{Kind: InvalidEncoding, Err: err}
	}
	if len(raw) == 0 || len(raw)%TradeEventSize != 0 {
		return nil, &FormatError{Kind: InvalidLength, Length: len(raw)}
	}

	events := make([]TradeEvent, 0, len(raw)/TradeEventSize)
	for off := 0; off < len(raw); off += TradeEventSize {
		events = append(events, decodeRecord(raw[off:off+TradeEventSize]))
	}
	return events, nil
}

// decodeRecord expects exactly TradeEventSize bytes.
func decodeRecord(rec []byte) TradeEvent {
	le := binary.LittleEndian
	return TradeEvent{
		Mint:                 solana.PublicKeyFromBytes(rec[offMint:offSolAmount]),
		SolAmount:            le.Uint64(rec[offSolAmount:offTokenAmount]),
		TokenAmount:          le.Uint64(rec[offTokenAmount:offIsBuy]),
		IsBuy:                rec[offIsBuy] != 0,
		User:                 solana.PublicKeyFromBytes(rec[offUser:offTimestamp]),
		Timestamp:            int64(le.Uint64(rec[offTimestamp:offVirtualSolReserves])),
		VirtualSolReserves:   le.Uint64(rec[offVirtualSolReserves:offVirtualTokenReserves]),
		VirtualTokenReserves: le.Uint64(rec[offVirtualTokenReserves:offRealSolReserves]),
		RealSolReserves:      le.Uint64(rec[offRealSolReserves:offRealTokenReserves]),
		RealTokenReserves:    le.Uint64(rec[offRealTokenReserves:TradeEventSize]),
	}
}

// Price is the traded price in SOL per whole token, derived from the
// amounts of this trade. Zero when no tokens changed hands.
func (e TradeEvent) Price() decimal.Decimal {
	return unitPrice(e.SolAmount, e.TokenAmount)
}

// ReservePrice is the bonding curve spot price after this trade, derived
// from the virtual reserves.
func (e TradeEvent) ReservePrice() decimal.Decimal {
	return unitPrice(e.VirtualSolReserves, e.VirtualTokenReserves)
}

// Involves reports whether addr is the trader or the mint of this event.
func (e TradeEvent) Involves(addr solana.PublicKey) bool {
	return e.User.Equals(addr) || e.Mint.Equals(addr)
}

func unitPrice(lamports, tokenUnits uint64) decimal.Decimal {
	if tokenUnits == 0 {
		return decimal.Zero
	}
	sol := decimal.NewFromUint64(lamports).Shift(-SolDecimals)
	tokens := decimal.NewFromUint64(tokenUnits).Shift(-TokenDecimals)
	return sol.DivRound(tokens, 18)
}
