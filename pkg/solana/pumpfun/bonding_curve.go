package pumpfun

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

var (
	ProgramID = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")

	SeedBondingCurve = []byte("bonding-curve")
)

// BondingCurve is the on-chain state of a pump.fun bonding curve account.
type BondingCurve struct {
	Discriminator        uint64
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
	Creator              solana.PublicKey
}

// bondingCurveMinSize covers everything up to and including Complete.
const bondingCurveMinSize = 8*6 + 1

// BondingCurvePDA derives the bonding curve account of mint.
func BondingCurvePDA(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{SeedBondingCurve, mint.Bytes()}, ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to find bonding curve PDA: %w", err)
	}
	return addr, nil
}

// DecodeBondingCurve decodes raw bonding curve account data. Older curves
// predate the creator field; Creator is left zero for them.
func DecodeBondingCurve(data []byte) (*BondingCurve, error) {
	if len(data) < bondingCurveMinSize {
		return nil, fmt.Errorf("bonding curve data too short: %d bytes", len(data))
	}

	buf := bytes.NewReader(data)
	var s BondingCurve
	for _, field := range []*uint64{
		&s.Discriminator,
		&s.VirtualTokenReserves,
		&s.VirtualSolReserves,
		&s.RealTokenReserves,
		&s.RealSolReserves,
		&s.TokenTotalSupply,
	} {
		if err := binary.Read(buf, binary.LittleEndian, field); err != nil {
			return nil, fmt.Errorf("failed to read bonding curve: %w", err)
		}
	}

	complete, err := buf.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("failed to read complete flag: %w", err)
	}
	s.Complete = complete != 0

	if buf.Len() >= solana.PublicKeyLength {
		creator := make([]byte, solana.PublicKeyLength)
		if _, err := buf.Read(creator); err != nil {
			return nil, fmt.Errorf("failed to read creator: %w", err)
		}
		s.Creator = solana.PublicKeyFromBytes(creator)
	}

	return &s, nil
}

// Price is the spot price in SOL per whole token.
func (b *BondingCurve) Price() decimal.Decimal {
	return unitPrice(b.VirtualSolReserves, b.VirtualTokenReserves)
}
