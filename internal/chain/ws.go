package chain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient holds one websocket connection to a Solana RPC node, used for
// signatureSubscribe waits on submitted payouts. A subscription fires once
// when the signature reaches the requested commitment and is then dropped
// by the node.
type WSClient struct {
	Endpoint string
	conn     *websocket.Conn
}

func NewWSClient(endpoint string) *WSClient {
	return &WSClient{Endpoint: endpoint}
}

func (c *WSClient) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, c.Endpoint, nil)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

func (c *WSClient) Close() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// WaitForSignature subscribes to a signature at finalized commitment and
// blocks until the node notifies, the timeout lapses, or ctx is cancelled.
// It returns true when the transaction finalized without an error, false
// when it finalized with one. Timeout is a plain error; the caller falls
// back to polling getSignatureStatuses.
func (c *WSClient) WaitForSignature(ctx context.Context, signature string, timeout time.Duration) (bool, error) {
	if c.conn == nil {
		return false, errors.New("ws not connected")
	}

	sub := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "signatureSubscribe",
		"params":  []any{signature, map[string]any{"commitment": "finalized"}},
	}
	if err := c.conn.WriteJSON(sub); err != nil {
		return false, err
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return false, err
	}

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return false, err
		}

		var envelope struct {
			Method string `json:"method"`
			Error  *struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
			Params struct {
				Result struct {
					Value struct {
						Err json.RawMessage `json:"err"`
					} `json:"value"`
				} `json:"result"`
			} `json:"params"`
		}
		if err := json.Unmarshal(msg, &envelope); err != nil {
			continue
		}
		if envelope.Error != nil {
			return false, errors.New(envelope.Error.Message)
		}
		if envelope.Method != "signatureNotification" {
			// Subscription confirmation or unrelated traffic.
			continue
		}
		failed := len(envelope.Params.Result.Value.Err) > 0 &&
			string(envelope.Params.Result.Value.Err) != "null"
		return !failed, nil
	}
}
