package strategies

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"smartmonitor/pkg/solana/pumpfun"
	"smartmonitor/pkg/utils"
)

// ErrNoPrice is returned when an oracle cannot price an event.
var ErrNoPrice = errors.New("no price available")

// PriceOracle prices the mint of a trade event in SOL per whole token.
type PriceOracle interface {
	Price(ctx context.Context, ev pumpfun.TradeEvent) (decimal.Decimal, error)
}

// MintPriceOracle prices a mint without a trade of it in hand. ProfitHolding
// uses it to revalue the held mint on entries that do not trade it.
type MintPriceOracle interface {
	MintPrice(ctx context.Context, mint solana.PublicKey) (decimal.Decimal, error)
}

// TradePriceOracle uses the amounts of the trade itself.
type TradePriceOracle struct{}

func (TradePriceOracle) Price(_ context.Context, ev pumpfun.TradeEvent) (decimal.Decimal, error) {
	if ev.TokenAmount == 0 {
		return decimal.Zero, ErrNoPrice
	}
	return ev.Price(), nil
}

// ReservePriceOracle uses the post-trade virtual reserves in the event.
type ReservePriceOracle struct{}

func (ReservePriceOracle) Price(_ context.Context, ev pumpfun.TradeEvent) (decimal.Decimal, error) {
	if ev.VirtualTokenReserves == 0 {
		return decimal.Zero, ErrNoPrice
	}
	return ev.ReservePrice(), nil
}

// AccountInfoGetter is the rpc call used by BondingCurveOracle.
type AccountInfoGetter interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
}

// BondingCurveOracle reads the current spot price from the mint's bonding
// curve account. Curves that completed migration report ErrNoPrice.
type BondingCurveOracle struct {
	RPC AccountInfoGetter
}

func (o BondingCurveOracle) Price(ctx context.Context, ev pumpfun.TradeEvent) (decimal.Decimal, error) {
	return o.MintPrice(ctx, ev.Mint)
}

func (o BondingCurveOracle) MintPrice(ctx context.Context, mint solana.PublicKey) (decimal.Decimal, error) {
	pda, err := pumpfun.BondingCurvePDA(mint)
	if err != nil {
		return decimal.Zero, err
	}
	res, err := o.RPC.GetAccountInfoWithOpts(ctx, pda, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("get bonding curve %s: %w", pda, err)
	}
	if res == nil || res.Value == nil || res.Value.Data == nil {
		return decimal.Zero, fmt.Errorf("bonding curve %s: %w", pda, ErrNoPrice)
	}
	curve, err := pumpfun.DecodeBondingCurve(res.Value.Data.GetBinary())
	if err != nil {
		return decimal.Zero, err
	}
	if curve.Complete || curve.VirtualTokenReserves == 0 {
		return decimal.Zero, fmt.Errorf("bonding curve %s complete: %w", pda, ErrNoPrice)
	}
	return curve.Price(), nil
}

// TokenPricer quotes a mint in SOL. *utils.JupiterClient satisfies it.
type TokenPricer interface {
	GetTokenPrice(ctx context.Context, mint string) (decimal.Decimal, bool, error)
}

var _ TokenPricer = (*utils.JupiterClient)(nil)

// QuoteOracle prices through an external quote service.
type QuoteOracle struct {
	Pricer TokenPricer
}

func (o QuoteOracle) Price(ctx context.Context, ev pumpfun.TradeEvent) (decimal.Decimal, error) {
	return o.MintPrice(ctx, ev.Mint)
}

func (o QuoteOracle) MintPrice(ctx context.Context, mint solana.PublicKey) (decimal.Decimal, error) {
	price, cached, err := o.Pricer.GetTokenPrice(ctx, mint.String())
	if err != nil {
		return decimal.Zero, err
	}
	if cached {
		log.WithFields(log.Fields{"mint": mint.String()}).Debug("Using cached quote price")
	}
	if !price.IsPositive() {
		return decimal.Zero, ErrNoPrice
	}
	return price, nil
}

// FallbackOracle tries each oracle in order and returns the first price.
type FallbackOracle []PriceOracle

func (f FallbackOracle) Price(ctx context.Context, ev pumpfun.TradeEvent) (decimal.Decimal, error) {
	var errs []error
	for _, o := range f {
		p, err := o.Price(ctx, ev)
		if err == nil {
			return p, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return decimal.Zero, ErrNoPrice
	}
	return decimal.Zero, errors.Join(errs...)
}

// MintPrice tries the members that can price a bare mint.
func (f FallbackOracle) MintPrice(ctx context.Context, mint solana.PublicKey) (decimal.Decimal, error) {
	var errs []error
	for _, o := range f {
		mo, ok := o.(MintPriceOracle)
		if !ok {
			continue
		}
		p, err := mo.MintPrice(ctx, mint)
		if err == nil {
			return p, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return decimal.Zero, ErrNoPrice
	}
	return decimal.Zero, errors.Join(errs...)
}

// NewPriceOracle builds the oracle named by source: trade, reserve,
// bonding_curve or jupiter. The on-chain and quote sources fall back to
// the trade amounts.
func NewPriceOracle(source string, rpcClient AccountInfoGetter, pricer TokenPricer) (PriceOracle, error) {
	switch source {
	case "", "trade":
		return TradePriceOracle{}, nil
	case "reserve":
		return ReservePriceOracle{}, nil
	case "bonding_curve":
		if rpcClient == nil {
			return nil, errors.New("bonding_curve price source needs an rpc client")
		}
		return FallbackOracle{BondingCurveOracle{RPC: rpcClient}, TradePriceOracle{}}, nil
	case "jupiter":
		if pricer == nil {
			return nil, errors.New("jupiter price source needs a quote client")
		}
		return FallbackOracle{QuoteOracle{Pricer: pricer}, TradePriceOracle{}}, nil
	}
	return nil, fmt.Errorf("unknown price source %q", source)
}
