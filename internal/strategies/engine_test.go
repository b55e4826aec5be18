package strategies

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"smartmonitor/pkg/solana/logstream"
	"smartmonitor/pkg/solana/pumpfun"
	"smartmonitor/pkg/solana/txlookup"
)

func buyRule(addr string, below float64) MonitorRule {
	return MonitorRule{Name: "buy", Address: addr, Kind: RuleBuy, Conditions: MonitorCondition{PriceBelow: f64(below)}}
}

func hasLog(hook *test.Hook, level logrus.Level, msg string) bool {
	for _, e := range hook.AllEntries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

func TestNewEngineRejectsInvalidRule(t *testing.T) {
	_, err := NewEngine(newFakeSubscriber(nil), []MonitorRule{{Address: "not-a-key", Kind: RuleBuy}})
	assert.Error(t, err)
}

func TestBuyRule(t *testing.T) {
	h := startEngine(t, newFakeSubscriber(nil), []MonitorRule{buyRule(walletA.String(), 0.000002)})
	s := h.sub.next(t)
	assert.Equal(t, walletA.String(), s.address)

	// Test Case 1: cheap buy by the address fires
	s.send(t, buyEntry("sig1", trade(walletA, mintX, true, 1e9, 1e12)))
	a := h.alert(t)
	assert.Equal(t, RuleBuy, a.RuleKind)
	assert.Equal(t, "buy", a.RuleName)
	assert.Equal(t, "sig1", a.Signature)
	assert.True(t, a.Price.Equal(decimal.RequireFromString("0.000001")), a.Price.String())
	require.NotNil(t, a.Event)
	assert.Equal(t, mintX, a.Event.Mint)

	// Test Case 2: price at or above the threshold does not fire
	s.send(t, buyEntry("sig2", trade(walletA, mintX, true, 2e9, 1e12)))
	s.send(t, buyEntry("sig3", trade(walletA, mintX, true, 3e9, 1e12)))
	s.sync(t)
	h.noAlert(t)

	// Test Case 3: other traders and sells are ignored
	s.send(t, buyEntry("sig4", trade(walletB, mintY, true, 1e9, 1e12)))
	s.send(t, sellEntry("sig5", trade(walletA, mintX, false, 1e9, 1e12)))
	s.sync(t)
	h.noAlert(t)
}

func TestBuyRuleWithoutThresholdNeverFires(t *testing.T) {
	rule := MonitorRule{Address: walletA.String(), Kind: RuleBuy}
	h := startEngine(t, newFakeSubscriber(nil), []MonitorRule{rule})
	s := h.sub.next(t)

	s.send(t, buyEntry("sig1", trade(walletA, mintX, true, 1, 1e12)))
	s.sync(t)
	h.noAlert(t)
}

func TestBuyRuleMatchesMintAddress(t *testing.T) {
	h := startEngine(t, newFakeSubscriber(nil), []MonitorRule{buyRule(mintX.String(), 0.000002)})
	s := h.sub.next(t)

	s.send(t, buyEntry("sig1", trade(walletB, mintX, true, 1e9, 1e12)))
	assert.Equal(t, "sig1", h.alert(t).Signature)
}

func TestSellFirstSell(t *testing.T) {
	rule := MonitorRule{Name: "first", Address: walletA.String(), Kind: RuleSell, Conditions: MonitorCondition{IsFirstSell: bp(true)}}
	h := startEngine(t, newFakeSubscriber(nil), []MonitorRule{rule})
	s := h.sub.next(t)

	s.send(t, sellEntry("sig1", trade(walletA, mintX, false, 1e9, 1e11)))
	a := h.alert(t)
	assert.Equal(t, RuleSell, a.RuleKind)
	assert.Contains(t, a.TriggerReason, "first_sell=true")

	s.send(t, sellEntry("sig2", trade(walletA, mintX, false, 1e9, 1e11)))
	s.sync(t)
	h.noAlert(t)

	s.send(t, sellEntry("sig3", trade(walletA, mintY, false, 1e9, 1e11)))
	assert.Equal(t, "sig3", h.alert(t).Signature)

	// sells by someone else never count
	s.send(t, sellEntry("sig4", trade(walletB, testKey(12), false, 1e9, 1e11)))
	s.sync(t)
	h.noAlert(t)
}

func TestSellPartialFromLookup(t *testing.T) {
	lookup := new(mockLookup)
	lookup.On("GetTransaction", mock.Anything, "sig1").Return(&txlookup.TransactionMeta{
		Signature: "sig1",
		PostTokenBalances: []txlookup.TokenBalance{
			{Owner: walletA.String(), Mint: mintX.String(), Amount: 5_000_000},
		},
	}, nil)
	lookup.On("GetTransaction", mock.Anything, "sig2").Return(&txlookup.TransactionMeta{Signature: "sig2"}, nil)
	lookup.On("GetTransaction", mock.Anything, "sig3").Return(nil, txlookup.ErrNotFound)

	rule := MonitorRule{Address: walletA.String(), Kind: RuleSell, Conditions: MonitorCondition{PartialSell: bp(true)}}
	h := startEngine(t, newFakeSubscriber(nil), []MonitorRule{rule}, WithLookup(lookup))
	s := h.sub.next(t)

	s.send(t, sellEntry("sig1", trade(walletA, mintX, false, 1e9, 1e11)))
	a := h.alert(t)
	assert.Contains(t, a.TriggerReason, "partial_sell=true")

	// balance gone after the sale
	s.send(t, sellEntry("sig2", trade(walletA, mintX, false, 1e9, 5_000_000)))
	s.sync(t)
	h.noAlert(t)

	// unknown balance never matches
	s.send(t, sellEntry("sig3", trade(walletA, mintY, false, 1e9, 1e11)))
	s.sync(t)
	h.noAlert(t)

	lookup.AssertExpectations(t)
	assert.True(t, hasLog(h.hook, logrus.WarnLevel, "Transaction lookup failed"))
}

func TestSellPartialFromTrackedBuys(t *testing.T) {
	rule := MonitorRule{Address: walletA.String(), Kind: RuleSell, Conditions: MonitorCondition{PartialSell: bp(true)}}
	h := startEngine(t, newFakeSubscriber(nil), []MonitorRule{rule})
	s := h.sub.next(t)

	s.send(t, buyEntry("buy", trade(walletA, mintX, true, 1e9, 1e12)))
	s.send(t, sellEntry("sell1", trade(walletA, mintX, false, 4e8, 4e11)))
	assert.Equal(t, "sell1", h.alert(t).Signature)

	s.send(t, sellEntry("sell2", trade(walletA, mintX, false, 6e8, 6e11)))
	s.sync(t)
	h.noAlert(t)
}

func TestSellPriceAbove(t *testing.T) {
	rule := MonitorRule{Address: walletA.String(), Kind: RuleSell, Conditions: MonitorCondition{
		IsFirstSell: bp(true),
		PriceAbove:  f64(0.000002),
	}}
	h := startEngine(t, newFakeSubscriber(nil), []MonitorRule{rule})
	s := h.sub.next(t)

	s.send(t, sellEntry("low", trade(walletA, mintX, false, 1e9, 1e12)))
	s.sync(t)
	h.noAlert(t)

	s.send(t, sellEntry("high", trade(walletA, mintY, false, 3e9, 1e12)))
	a := h.alert(t)
	assert.Equal(t, "high", a.Signature)
	assert.Contains(t, a.TriggerReason, "above")
}

func profitRule(profit float64, holding *float64) MonitorRule {
	return MonitorRule{Name: "ph", Address: walletA.String(), Kind: RuleProfitHolding, Conditions: MonitorCondition{
		ProfitPercentage:  f64(profit),
		HoldingPercentage: holding,
	}}
}

func priceEntry(sig string, ev pumpfun.TradeEvent) logstream.LogEntry {
	return entry(sig, pumpfun.ProgramDataLine(ev))
}

func TestProfitHolding(t *testing.T) {
	tracker := new(mockTracker)
	tracker.On("RecordTrackedMint", mock.Anything, mintX.String(), walletA.String(), "ph").Return(nil).Once()

	h := startEngine(t, newFakeSubscriber(nil), []MonitorRule{profitRule(50, nil)}, WithTracker(tracker))
	s := h.sub.next(t)

	// Test Case 1: no buy marker and no position is ignored
	s.send(t, priceEntry("noise", trade(walletB, mintX, true, 5e9, 1e12)))
	s.sync(t)
	h.noAlert(t)

	// Test Case 2: buy opens the position
	s.send(t, buyEntry("buy", trade(walletA, mintX, true, 1e9, 1e12)))

	// Test Case 3: profit below the threshold
	s.send(t, priceEntry("p20", trade(walletB, mintX, true, 12e8, 1e12)))
	s.sync(t)
	h.noAlert(t)

	// Test Case 4: profit above the threshold fires once
	s.send(t, priceEntry("p100", trade(walletB, mintX, true, 2e9, 1e12)))
	a := h.alert(t)
	assert.Equal(t, RuleProfitHolding, a.RuleKind)
	assert.Equal(t, "p100", a.Signature)
	require.NotNil(t, a.ProfitPercentage)
	assert.True(t, a.ProfitPercentage.Equal(decimal.NewFromInt(100)), a.ProfitPercentage.String())

	// Test Case 5: position is closed, later profit does not re-fire
	s.send(t, priceEntry("p200", trade(walletB, mintX, true, 3e9, 1e12)))
	s.sync(t)
	h.noAlert(t)

	h.stop()
	tracker.AssertExpectations(t)
}

func TestProfitHoldingSupersedesOlderBuy(t *testing.T) {
	h := startEngine(t, newFakeSubscriber(nil), []MonitorRule{profitRule(50, nil)})
	s := h.sub.next(t)

	s.send(t, buyEntry("buyX", trade(walletA, mintX, true, 1e9, 1e12)))
	s.send(t, buyEntry("buyY", trade(walletA, mintY, true, 1e9, 1e12)))

	s.send(t, priceEntry("x", trade(walletB, mintX, true, 3e9, 1e12)))
	s.sync(t)
	h.noAlert(t)

	s.send(t, priceEntry("y", trade(walletB, mintY, true, 2e9, 1e12)))
	a := h.alert(t)
	assert.Equal(t, mintY, a.Event.Mint)
	assert.True(t, hasLog(h.hook, logrus.InfoLevel, "Tracking new buy"))
}

func TestProfitHoldingHoldingPercentage(t *testing.T) {
	t.Run("enough held", func(t *testing.T) {
		h := startEngine(t, newFakeSubscriber(nil), []MonitorRule{profitRule(10, f64(50))})
		s := h.sub.next(t)

		s.send(t, buyEntry("buy", trade(walletA, mintX, true, 1e9, 1e12)))
		s.send(t, sellEntry("sell", trade(walletA, mintX, false, 2e8, 2e11)))
		s.send(t, priceEntry("up", trade(walletB, mintX, true, 2e9, 1e12)))
		a := h.alert(t)
		assert.Equal(t, "up", a.Signature)
		assert.Contains(t, a.TriggerReason, "holding 80.00%")
	})

	t.Run("sold too much", func(t *testing.T) {
		h := startEngine(t, newFakeSubscriber(nil), []MonitorRule{profitRule(10, f64(50))})
		s := h.sub.next(t)

		s.send(t, buyEntry("buy", trade(walletA, mintX, true, 1e9, 1e12)))
		s.send(t, sellEntry("sell", trade(walletA, mintX, false, 6e8, 6e11)))
		s.send(t, priceEntry("up", trade(walletB, mintX, true, 2e9, 1e12)))
		s.sync(t)
		h.noAlert(t)

		// selling the rest holds 0%, so the position closes without an alert
		s.send(t, sellEntry("rest", trade(walletA, mintX, false, 8e8, 4e11)))
		s.send(t, priceEntry("up2", trade(walletB, mintX, true, 3e9, 1e12)))
		s.sync(t)
		h.noAlert(t)
		assert.True(t, hasLog(h.hook, logrus.InfoLevel, "Position sold out, stop tracking"))
	})
}

func TestProfitHoldingFullExit(t *testing.T) {
	t.Run("profitable exit alerts", func(t *testing.T) {
		h := startEngine(t, newFakeSubscriber(nil), []MonitorRule{profitRule(50, nil)})
		s := h.sub.next(t)

		s.send(t, buyEntry("buy", trade(walletA, mintX, true, 1e9, 1e12)))
		s.send(t, sellEntry("exit", trade(walletA, mintX, false, 3e9, 1e12)))
		a := h.alert(t)
		assert.Equal(t, "exit", a.Signature)
		assert.Equal(t, mintX.String(), a.Mint)
		require.NotNil(t, a.ProfitPercentage)
		assert.True(t, a.ProfitPercentage.Equal(decimal.NewFromInt(200)), a.ProfitPercentage.String())

		s.send(t, priceEntry("later", trade(walletB, mintX, true, 4e9, 1e12)))
		s.sync(t)
		h.noAlert(t)
	})

	t.Run("losing exit closes quietly", func(t *testing.T) {
		h := startEngine(t, newFakeSubscriber(nil), []MonitorRule{profitRule(50, nil)})
		s := h.sub.next(t)

		s.send(t, buyEntry("buy", trade(walletA, mintX, true, 1e9, 1e12)))
		s.send(t, sellEntry("exit", trade(walletA, mintX, false, 5e8, 2e12)))
		s.send(t, priceEntry("later", trade(walletB, mintX, true, 4e9, 1e12)))
		s.sync(t)
		h.noAlert(t)
		assert.True(t, hasLog(h.hook, logrus.InfoLevel, "Position sold out, stop tracking"))
	})
}

// mintOracle prices trades from their amounts and bare mints from a table.
type mintOracle struct {
	mu     sync.Mutex
	prices map[solana.PublicKey]decimal.Decimal
}

func (o *mintOracle) set(mint solana.PublicKey, price string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[mint] = decimal.RequireFromString(price)
}

func (o *mintOracle) Price(_ context.Context, ev pumpfun.TradeEvent) (decimal.Decimal, error) {
	return ev.Price(), nil
}

func (o *mintOracle) MintPrice(_ context.Context, mint solana.PublicKey) (decimal.Decimal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.prices[mint]
	if !ok {
		return decimal.Zero, ErrNoPrice
	}
	return p, nil
}

func TestProfitHoldingRevaluesHeldMint(t *testing.T) {
	oracle := &mintOracle{prices: map[solana.PublicKey]decimal.Decimal{}}
	oracle.set(mintX, "0.0000012")

	h := startEngine(t, newFakeSubscriber(nil), []MonitorRule{profitRule(50, nil)}, WithPriceOracle(oracle))
	s := h.sub.next(t)

	s.send(t, buyEntry("buy", trade(walletA, mintX, true, 1e9, 1e12)))

	// the wallet trades another mint, mintX is only up 20%
	s.send(t, sellEntry("y1", trade(walletA, mintY, false, 1e9, 1e12)))
	s.sync(t)
	h.noAlert(t)

	oracle.set(mintX, "0.000003")
	s.send(t, sellEntry("y2", trade(walletA, mintY, false, 1e9, 1e12)))
	a := h.alert(t)
	assert.Equal(t, "y2", a.Signature)
	assert.Equal(t, mintX.String(), a.Mint)
	assert.Nil(t, a.Event)
	require.NotNil(t, a.ProfitPercentage)
	assert.True(t, a.ProfitPercentage.Equal(decimal.NewFromInt(200)), a.ProfitPercentage.String())

	s.sync(t)
	h.noAlert(t)
}

func TestProfitHoldingFetchesMissingProgramData(t *testing.T) {
	lookup := new(mockLookup)
	lookup.On("GetTransaction", mock.Anything, "buy").Return(&txlookup.TransactionMeta{
		Signature: "buy",
		LogMessages: []string{
			pumpfun.InstructionBuyLog,
			pumpfun.ProgramDataLine(trade(walletA, mintX, true, 1e9, 1e12)),
		},
	}, nil)
	lookup.On("GetTransaction", mock.Anything, "failed").Return(nil, &txlookup.OnChainError{Signature: "failed", Details: "custom program error"})

	h := startEngine(t, newFakeSubscriber(nil), []MonitorRule{profitRule(50, nil)}, WithLookup(lookup))
	s := h.sub.next(t)

	s.send(t, entry("failed", pumpfun.InstructionBuyLog))
	s.send(t, entry("buy", pumpfun.InstructionBuyLog))
	s.send(t, priceEntry("up", trade(walletB, mintX, true, 2e9, 1e12)))
	assert.Equal(t, "up", h.alert(t).Signature)

	lookup.AssertExpectations(t)
	assert.True(t, hasLog(h.hook, logrus.InfoLevel, "Skipping failed transaction"))
}

func TestSlowLookupIsBounded(t *testing.T) {
	lookup := new(mockLookup)
	lookup.On("GetTransaction", mock.Anything, "slow").Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}).Return(nil, context.DeadlineExceeded)

	h := startEngine(t, newFakeSubscriber(nil), []MonitorRule{profitRule(50, nil)},
		WithLookup(lookup), WithLookupTimeout(20*time.Millisecond))
	s := h.sub.next(t)

	start := time.Now()
	s.send(t, entry("slow", pumpfun.InstructionBuyLog))
	s.send(t, buyEntry("buy", trade(walletA, mintX, true, 1e9, 1e12)))
	s.send(t, priceEntry("up", trade(walletB, mintX, true, 2e9, 1e12)))
	assert.Equal(t, "up", h.alert(t).Signature)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, hasLog(h.hook, logrus.WarnLevel, "Transaction lookup failed"))
}

func TestShutdownCancelsPendingTrackerWrites(t *testing.T) {
	called := make(chan struct{})
	tracker := new(mockTracker)
	tracker.On("RecordTrackedMint", mock.Anything, mintX.String(), walletA.String(), "ph").Run(func(args mock.Arguments) {
		close(called)
		<-args.Get(0).(context.Context).Done()
	}).Return(context.Canceled).Once()

	h := startEngine(t, newFakeSubscriber(nil), []MonitorRule{profitRule(50, nil)},
		WithTracker(tracker), WithTrackerDrain(20*time.Millisecond))
	s := h.sub.next(t)

	s.send(t, buyEntry("buy", trade(walletA, mintX, true, 1e9, 1e12)))
	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("tracker not called")
	}

	start := time.Now()
	h.stop()
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, hasLog(h.hook, logrus.WarnLevel, "Cancelling pending tracked mint records"))
	assert.True(t, hasLog(h.hook, logrus.WarnLevel, "Failed to record tracked mint"))
	tracker.AssertExpectations(t)
}

func TestDecodeErrorsDoNotStopTask(t *testing.T) {
	h := startEngine(t, newFakeSubscriber(nil), []MonitorRule{buyRule(walletA.String(), 0.000002)})
	s := h.sub.next(t)

	s.send(t, entry("bad",
		pumpfun.ProgramDataPrefix+"!!!not-base64",
		pumpfun.ProgramDataPrefix+base64.StdEncoding.EncodeToString(make([]byte, 10)),
	))
	s.send(t, buyEntry("good", trade(walletA, mintX, true, 1e9, 1e12)))
	assert.Equal(t, "good", h.alert(t).Signature)

	assert.True(t, hasLog(h.hook, logrus.WarnLevel, "Failed to decode program data"))
	assert.True(t, hasLog(h.hook, logrus.DebugLevel, "Skipping program data line"))
}

func TestResubscribeAfterFailure(t *testing.T) {
	sub := newFakeSubscriber(func(_ string, attempt int) (*fakeStream, error) {
		if attempt == 1 {
			return nil, &logstream.SubscriptionError{Address: walletA.String(), Code: -32602, Message: "rejected"}
		}
		return newFakeStream(), nil
	})
	h := startEngine(t, sub, []MonitorRule{buyRule(walletA.String(), 0.000002)})

	s := sub.next(t)
	s.send(t, buyEntry("sig1", trade(walletA, mintX, true, 1e9, 1e12)))
	h.alert(t)

	s.fail(&logstream.TransportError{Op: "read", Err: errors.New("connection reset")})
	s2 := sub.next(t)
	assert.Equal(t, 3, sub.Calls(walletA.String()))

	s2.send(t, buyEntry("sig2", trade(walletA, mintX, true, 1e9, 1e12)))
	assert.Equal(t, "sig2", h.alert(t).Signature)

	var warned int
	for _, e := range h.hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "Log subscription failed, retrying" {
			warned++
			assert.Equal(t, walletA.String(), e.Data["address"])
			assert.Equal(t, "buy", e.Data["rule"])
			assert.NotEmpty(t, e.Data["retry_in"])
		}
	}
	assert.Equal(t, 2, warned)
}

func TestGiveUpAfterMaxAttempts(t *testing.T) {
	sub := newFakeSubscriber(func(string, int) (*fakeStream, error) {
		return nil, errors.New("dial refused")
	})
	h := startEngine(t, sub, []MonitorRule{buyRule(walletA.String(), 1)}, WithMaxAttempts(3))

	assert.Eventually(t, func() bool {
		return hasLog(h.hook, logrus.ErrorLevel, "Giving up on log subscription")
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, sub.Calls(walletA.String()))
}

func TestFailingRuleDoesNotAffectOthers(t *testing.T) {
	sub := newFakeSubscriber(func(address string, _ int) (*fakeStream, error) {
		if address == walletA.String() {
			return nil, errors.New("dial refused")
		}
		return newFakeStream(), nil
	})
	h := startEngine(t, sub, []MonitorRule{
		buyRule(walletA.String(), 1),
		buyRule(walletB.String(), 1),
	})

	s := sub.next(t)
	assert.Equal(t, walletB.String(), s.address)
	s.send(t, buyEntry("b", trade(walletB, mintX, true, 1e9, 1e12)))
	assert.Equal(t, walletB.String(), h.alert(t).RuleAddress)
	assert.Eventually(t, func() bool {
		return sub.Calls(walletA.String()) > 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestReload(t *testing.T) {
	ruleA := buyRule(walletA.String(), 1)
	ruleB := buyRule(walletB.String(), 1)
	h := startEngine(t, newFakeSubscriber(nil), []MonitorRule{ruleA})
	sA := h.sub.next(t)

	// Test Case 1: adding a rule leaves the running one alone
	require.NoError(t, h.engine.Reload([]MonitorRule{ruleA, ruleB}))
	sB := h.sub.next(t)
	assert.Equal(t, walletB.String(), sB.address)
	select {
	case <-sA.closed:
		t.Fatal("unchanged rule was restarted")
	default:
	}
	assert.Len(t, h.engine.Rules(), 2)

	// Test Case 2: removing a rule stops its task
	require.NoError(t, h.engine.Reload([]MonitorRule{ruleB}))
	select {
	case <-sA.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("removed rule still subscribed")
	}
	assert.Equal(t, []MonitorRule{ruleB}, h.engine.Rules())

	// Test Case 3: changed conditions restart the task
	changed := ruleB
	changed.Conditions.PriceBelow = f64(2)
	require.NoError(t, h.engine.Reload([]MonitorRule{changed}))
	sB2 := h.sub.next(t)
	assert.Equal(t, walletB.String(), sB2.address)
	select {
	case <-sB.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("changed rule kept its old task")
	}

	// Test Case 4: invalid sets are rejected whole
	err := h.engine.Reload([]MonitorRule{ruleA, {Address: "bad", Kind: RuleBuy}})
	assert.Error(t, err)
	assert.Equal(t, []MonitorRule{changed}, h.engine.Rules())
}

func TestRunStopsEveryTask(t *testing.T) {
	h := startEngine(t, newFakeSubscriber(nil), []MonitorRule{
		buyRule(walletA.String(), 1),
		profitRule(10, nil),
	})
	s1 := h.sub.next(t)
	s2 := h.sub.next(t)

	assert.ErrorIs(t, h.engine.Run(context.Background()), ErrEngineRunning)

	h.stop()
	for _, s := range []*fakeStream{s1, s2} {
		select {
		case <-s.closed:
		default:
			t.Fatalf("stream for %s left open", s.address)
		}
	}
}

type oracleFunc func(ctx context.Context, ev pumpfun.TradeEvent) (decimal.Decimal, error)

func (f oracleFunc) Price(ctx context.Context, ev pumpfun.TradeEvent) (decimal.Decimal, error) {
	return f(ctx, ev)
}

func TestNoAlertAfterShutdown(t *testing.T) {
	var h *harness
	oracle := oracleFunc(func(_ context.Context, ev pumpfun.TradeEvent) (decimal.Decimal, error) {
		h.cancel()
		return ev.Price(), nil
	})
	h = startEngine(t, newFakeSubscriber(nil), []MonitorRule{buyRule(walletA.String(), 1)}, WithPriceOracle(oracle))
	s := h.sub.next(t)

	s.send(t, buyEntry("sig", trade(walletA, mintX, true, 1e9, 1e12)))
	h.stop()
	assert.Empty(t, h.alerts)
}

type countingMetrics struct {
	noopMetrics
	alerts chan string
}

func (m countingMetrics) AlertEmitted(kind string) { m.alerts <- kind }

func TestMetricsObserveAlerts(t *testing.T) {
	m := countingMetrics{alerts: make(chan string, 4)}
	h := startEngine(t, newFakeSubscriber(nil), []MonitorRule{buyRule(walletA.String(), 1)}, WithMetrics(m))
	s := h.sub.next(t)

	s.send(t, buyEntry("sig", trade(walletA, mintX, true, 1e9, 1e12)))
	h.alert(t)
	select {
	case kind := <-m.alerts:
		assert.Equal(t, "Buy", kind)
	case <-time.After(time.Second):
		t.Fatal("alert not counted")
	}
}
