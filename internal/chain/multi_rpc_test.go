package chain

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMultiClientFailsOver(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer bad.Close()

	var goodCalls atomic.Int64
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		goodCalls.Add(1)
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"value":{"blockhash":"EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N"}}}`)
	}))
	defer good.Close()

	m, err := NewMultiClient([]string{bad.URL, good.URL}, 3)
	require.NoError(t, err)

	hash, err := m.LatestBlockhash(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	require.Equal(t, int64(1), goodCalls.Load())
	require.Equal(t, good.URL, m.BaseURL())
}

func TestMultiClientAllEndpointsDown(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	m, err := NewMultiClient([]string{bad.URL}, 3)
	require.NoError(t, err)

	_, err = m.LatestBlockhash(context.Background())
	require.Error(t, err)
}

func TestNewMultiClientValidation(t *testing.T) {
	_, err := NewMultiClient(nil, 3)
	require.Error(t, err)

	_, err = NewMultiClient([]string{"", "  "}, 3)
	require.Error(t, err)

	m, err := NewMultiClient([]string{"http://a/", "http://a"}, 3)
	require.NoError(t, err)
	require.Len(t, m.clients, 1)
}

func TestSanitizeEndpoints(t *testing.T) {
	out := sanitizeEndpoints([]string{" http://a/ ", "http://a", "", "http://b"})
	require.Equal(t, []string{"http://a", "http://b"}, out)
}
