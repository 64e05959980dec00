package pricing

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func priceServer(price string, calls *atomic.Int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprintf(w, `{"solana":{"usd":%s}}`, price)
	}))
}

func TestSOLPriceCaches(t *testing.T) {
	var calls atomic.Int64
	srv := priceServer("150.25", &calls)
	defer srv.Close()

	now := time.Now()
	c := New(srv.URL, time.Minute)
	c.Now = func() time.Time { return now }

	price, ok := c.SOLPrice(context.Background())
	require.True(t, ok)
	require.Equal(t, "150.25", price.String())
	require.Equal(t, int64(1), calls.Load())

	// Within the TTL the cached entry is served.
	price, ok = c.SOLPrice(context.Background())
	require.True(t, ok)
	require.Equal(t, "150.25", price.String())
	require.Equal(t, int64(1), calls.Load())

	// Past the TTL it refetches.
	now = now.Add(2 * time.Minute)
	_, ok = c.SOLPrice(context.Background())
	require.True(t, ok)
	require.Equal(t, int64(2), calls.Load())
}

func TestSOLPriceServesStaleOnError(t *testing.T) {
	var calls atomic.Int64
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if fail.Load() {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"solana":{"usd":100}}`)
	}))
	defer srv.Close()

	now := time.Now()
	c := New(srv.URL, time.Minute)
	c.Now = func() time.Time { return now }

	price, ok := c.SOLPrice(context.Background())
	require.True(t, ok)
	require.Equal(t, "100", price.String())

	fail.Store(true)
	now = now.Add(2 * time.Minute)
	price, ok = c.SOLPrice(context.Background())
	require.True(t, ok)
	require.Equal(t, "100", price.String())
}

func TestSOLPriceNeverFetched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Minute)
	_, ok := c.SOLPrice(context.Background())
	require.False(t, ok)

	_, ok = c.SOLToUSD(context.Background(), decimal.NewFromInt(1))
	require.False(t, ok)
}

func TestSOLToUSD(t *testing.T) {
	var calls atomic.Int64
	srv := priceServer("200", &calls)
	defer srv.Close()

	c := New(srv.URL, time.Minute)
	usd, ok := c.SOLToUSD(context.Background(), decimal.RequireFromString("2.5"))
	require.True(t, ok)
	require.Equal(t, "500", usd.String())
}
