package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultJupiterBaseURL = "https://lite-api.jup.ag/swap/v1"

	// SolMint is the wrapped SOL mint used as quote currency.
	SolMint = "So11111111111111111111111111111111111111112"

	// quoteProbeAmount is 1e6 whole tokens of a 6-decimal mint.
	quoteProbeAmount = "1000000000000"
	// quoteDivisorExp converts the lamports received for quoteProbeAmount
	// into SOL per whole token.
	quoteDivisorExp = -15
)

// JupiterQuoteResponse is the part of a Jupiter quote used here.
type JupiterQuoteResponse struct {
	InputMint      string      `json:"inputMint"`
	InAmount       string      `json:"inAmount"`
	OutputMint     string      `json:"outputMint"`
	OutAmount      string      `json:"outAmount"`
	SwapMode       string      `json:"swapMode"`
	SlippageBps    int         `json:"slippageBps"`
	PriceImpactPct string      `json:"priceImpactPct"`
	RoutePlan      []RoutePlan `json:"routePlan"`
	ContextSlot    int         `json:"contextSlot"`
}

// RoutePlan represents a route plan in the Jupiter response
type RoutePlan struct {
	SwapInfo SwapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
}

// SwapInfo represents swap information in a route plan
type SwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
}

type tokenPriceCacheEntry struct {
	price     decimal.Decimal
	updatedAt time.Time
}

// JupiterClient quotes token prices in SOL and remembers the last good
// price per mint so a failed quote can fall back to it.
type JupiterClient struct {
	baseURL    string
	httpClient *http.Client
	maxAge     time.Duration

	mu    sync.RWMutex
	cache map[string]tokenPriceCacheEntry
}

// NewJupiterClient creates a client. An empty baseURL uses the public
// lite API. maxAge bounds how old a cached fallback price may be; zero
// accepts any age.
func NewJupiterClient(baseURL string, maxAge time.Duration) *JupiterClient {
	if baseURL == "" {
		baseURL = DefaultJupiterBaseURL
	}
	return &JupiterClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		maxAge:     maxAge,
		cache:      make(map[string]tokenPriceCacheEntry),
	}
}

// GetSwapResult retrieves a swap quote for amount base units of inputMint.
func (c *JupiterClient) GetSwapResult(ctx context.Context, inputMint, outputMint, amount string, slippageBps int) (*JupiterQuoteResponse, error) {
	params := url.Values{}
	params.Add("inputMint", inputMint)
	params.Add("outputMint", outputMint)
	params.Add("amount", amount)
	params.Add("slippageBps", strconv.Itoa(slippageBps))
	params.Add("restrictIntermediateTokens", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build quote request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP request failed with status: %d", resp.StatusCode)
	}

	var quote JupiterQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, fmt.Errorf("failed to decode JSON response: %w", err)
	}
	return &quote, nil
}

// GetTokenPrice returns the price of mint in SOL per whole token. When
// the quote fails a cached price is returned with cached set to true.
func (c *JupiterClient) GetTokenPrice(ctx context.Context, mint string) (price decimal.Decimal, cached bool, err error) {
	if mint == SolMint {
		return decimal.NewFromInt(1), false, nil
	}

	quote, err := c.GetSwapResult(ctx, mint, SolMint, quoteProbeAmount, 50)
	if err == nil {
		var out decimal.Decimal
		out, err = decimal.NewFromString(quote.OutAmount)
		if err == nil {
			price = out.Shift(quoteDivisorExp)
			c.mu.Lock()
			c.cache[mint] = tokenPriceCacheEntry{price: price, updatedAt: time.Now()}
			c.mu.Unlock()
			return price, false, nil
		}
		err = fmt.Errorf("failed to parse outAmount %q: %w", quote.OutAmount, err)
	}

	c.mu.RLock()
	entry, ok := c.cache[mint]
	c.mu.RUnlock()
	if ok && (c.maxAge == 0 || time.Since(entry.updatedAt) <= c.maxAge) {
		return entry.price, true, nil
	}
	return decimal.Zero, false, fmt.Errorf("failed to get swap result and no cached price: %w", err)
}
