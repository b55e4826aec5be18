package pumpfun

import (
	"encoding/base64"
	"encoding/binary"
)

// TradeEventDiscriminator is the Anchor event discriminator of TradeEvent.
var TradeEventDiscriminator = [8]byte{189, 219, 127, 211, 78, 230, 97, 238}

// Encode serializes e into its 129-byte on-chain layout.
func (e TradeEvent) Encode() []byte {
	rec := make([]byte, TradeEventSize)
	le := binary.LittleEndian
	copy(rec, TradeEventDiscriminator[:])
	copy(rec[offMint:offSolAmount], e.Mint.Bytes())
	le.PutUint64(rec[offSolAmount:], e.SolAmount)
	le.PutUint64(rec[offTokenAmount:], e.TokenAmount)
	if e.IsBuy {
		rec[offIsBuy] = 1
	}
	copy(rec[offUser:offTimestamp], e.User.Bytes())
	le.PutUint64(rec[offTimestamp:], uint64(e.Timestamp))
	le.PutUint64(rec[offVirtualSolReserves:], e.VirtualSolReserves)
	le.PutUint64(rec[offVirtualTokenReserves:], e.VirtualTokenReserves)
	le.PutUint64(rec[offRealSolReserves:], e.RealSolReserves)
	le.PutUint64(rec[offRealTokenReserves:], e.RealTokenReserves)
	return rec
}

// ProgramDataLine renders events as one "Program data: " log line.
func ProgramDataLine(events ...TradeEvent) string {
	raw := make([]byte, 0, len(events)*TradeEventSize)
	for _, e := range events {
		raw = append(raw, e.Encode()...)
	}
	return ProgramDataPrefix + base64.StdEncoding.EncodeToString(raw)
}
