package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Cache serves the SOL/USD rate from CoinGecko with a TTL. It is an
// explicit value owned by the process, not package state, so the clock and
// TTL are injectable and concurrent readers share one guarded entry. On
// fetch failure it keeps serving the last known price, however stale.
type Cache struct {
	Endpoint string
	TTL      time.Duration
	Client   *http.Client

	Now func() time.Time

	mu        sync.Mutex
	price     decimal.Decimal
	fetchedAt time.Time
}

func New(endpoint string, ttl time.Duration) *Cache {
	return &Cache{
		Endpoint: endpoint,
		TTL:      ttl,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// SOLPrice returns the current SOL/USD price. ok is false only when no
// price has ever been fetched.
func (c *Cache) SOLPrice(ctx context.Context) (decimal.Decimal, bool) {
	c.mu.Lock()
	if !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.TTL {
		price := c.price
		c.mu.Unlock()
		return price, true
	}
	c.mu.Unlock()

	price, err := c.fetch(ctx)
	if err != nil {
		log.Printf("pricing: fetch failed: %v", err)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.fetchedAt.IsZero() {
			return decimal.Zero, false
		}
		return c.price, true
	}

	c.mu.Lock()
	c.price = price
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return price, true
}

// SOLToUSD converts a SOL amount at the cached rate.
func (c *Cache) SOLToUSD(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, bool) {
	price, ok := c.SOLPrice(ctx)
	if !ok {
		return decimal.Zero, false
	}
	return amount.Mul(price), true
}

func (c *Cache) fetch(ctx context.Context) (decimal.Decimal, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return decimal.Zero, err
	}
	q := u.Query()
	q.Set("ids", "solana")
	q.Set("vs_currencies", "usd")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price http status %d", resp.StatusCode)
	}

	var body map[string]map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, err
	}
	raw, ok := body["solana"]["usd"]
	if !ok || raw.String() == "" {
		return decimal.Zero, fmt.Errorf("price response missing solana.usd")
	}
	return decimal.NewFromString(raw.String())
}
