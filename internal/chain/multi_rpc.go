package chain

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// MultiClient fans requests over an ordered list of RPC endpoints, rotating
// to the next one after failThreshold consecutive failures. Public RPC
// endpoints rate-limit and flake independently, so a single endpoint is not
// enough for settlement traffic.
type MultiClient struct {
	clients       []*Client
	index         int
	failCount     int
	failThreshold int
	mu            sync.Mutex
}

func NewMultiClient(endpoints []string, failThreshold int) (*MultiClient, error) {
	list := sanitizeEndpoints(endpoints)
	if len(list) == 0 {
		return nil, errors.New("rpc endpoints is empty")
	}
	if failThreshold <= 0 {
		failThreshold = 3
	}
	clients := make([]*Client, 0, len(list))
	for _, ep := range list {
		clients = append(clients, NewClient(ep))
	}
	return &MultiClient{
		clients:       clients,
		failThreshold: failThreshold,
	}, nil
}

func (m *MultiClient) BaseURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[m.index].baseURL
}

func (m *MultiClient) GetTransaction(ctx context.Context, signature string) (*ParsedTransaction, error) {
	var out *ParsedTransaction
	err := m.do(ctx, func(c *Client) error {
		var err error
		out, err = c.GetTransaction(ctx, signature)
		return err
	})
	return out, err
}

func (m *MultiClient) LatestBlockhash(ctx context.Context) (string, error) {
	var out string
	err := m.do(ctx, func(c *Client) error {
		var err error
		out, err = c.LatestBlockhash(ctx)
		return err
	})
	return out, err
}

func (m *MultiClient) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := m.do(ctx, func(c *Client) error {
		var err error
		out, err = c.GetBalance(ctx, address)
		return err
	})
	return out, err
}

func (m *MultiClient) SignatureStatus(ctx context.Context, signature string) (TxStatus, error) {
	var out TxStatus
	err := m.do(ctx, func(c *Client) error {
		var err error
		out, err = c.SignatureStatus(ctx, signature)
		return err
	})
	return out, err
}

// SendTransaction is deliberately not retried across endpoints: a submit
// that times out may still have landed, and resubmitting the same signed
// bytes through another endpoint is harmless but masks the first outcome.
// It goes to the current endpoint only.
func (m *MultiClient) SendTransaction(ctx context.Context, txBase64 string) (string, error) {
	client, idx := m.currentClient()
	out, err := client.SendTransaction(ctx, txBase64)
	if err != nil {
		m.noteFailure(idx)
		return "", err
	}
	m.resetFailures(idx)
	return out, nil
}

func (m *MultiClient) do(ctx context.Context, fn func(c *Client) error) error {
	var lastErr error
	for attempts := 0; attempts < len(m.clients); attempts++ {
		client, idx := m.currentClient()
		err := fn(client)
		if err == nil {
			m.resetFailures(idx)
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return lastErr
		}
		m.noteFailure(idx)
		if m.shouldRotate() || len(m.clients) > 1 {
			m.rotate()
		}
	}
	return lastErr
}

func (m *MultiClient) currentClient() (*Client, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[m.index], m.index
}

func (m *MultiClient) resetFailures(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == idx {
		m.failCount = 0
	}
}

func (m *MultiClient) noteFailure(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == idx {
		m.failCount++
	}
}

func (m *MultiClient) shouldRotate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failCount >= m.failThreshold
}

func (m *MultiClient) rotate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = (m.index + 1) % len(m.clients)
	m.failCount = 0
}

func sanitizeEndpoints(endpoints []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		ep = strings.TrimSpace(ep)
		if ep == "" {
			continue
		}
		ep = strings.TrimRight(ep, "/")
		if _, ok := seen[ep]; ok {
			continue
		}
		seen[ep] = struct{}{}
		out = append(out, ep)
	}
	return out
}
