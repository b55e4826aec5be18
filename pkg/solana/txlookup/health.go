package txlookup

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

// EndpointCheck is the result of probing one rpc endpoint.
type EndpointCheck struct {
	URL     string        `json:"url"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// HealthChecker is the rpc call used by CheckEndpoints.
type HealthChecker interface {
	GetHealth(ctx context.Context) (string, error)
}

// CheckEndpoints calls getHealth on every url concurrently. Results keep
// the order of urls; entries not finished before ctx ends report an error.
func CheckEndpoints(ctx context.Context, urls []string, timeout time.Duration) []EndpointCheck {
	return checkEndpoints(ctx, urls, timeout, func(url string) HealthChecker { return rpc.New(url) })
}

func checkEndpoints(ctx context.Context, urls []string, timeout time.Duration, dial func(string) HealthChecker) []EndpointCheck {
	results := make([]EndpointCheck, len(urls))
	var wg sync.WaitGroup
	for i, url := range urls {
		results[i] = EndpointCheck{URL: url, Error: "not checked"}
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			status, err := dial(url).GetHealth(cctx)
			check := EndpointCheck{URL: url, Latency: time.Since(start)}
			switch {
			case err != nil:
				check.Error = err.Error()
			case status != rpc.HealthOk:
				check.Error = "unhealthy: " + status
			default:
				check.OK = true
			}
			results[i] = check
		}(i, url)
	}
	wg.Wait()
	return results
}
