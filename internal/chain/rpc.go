package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TxStatus mirrors the coarse signature-status states the ledger reports.
type TxStatus string

const (
	TxStatusUnknown   TxStatus = ""
	TxStatusPending   TxStatus = "pending"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
)

// Client is a thin JSON-RPC wrapper around a Solana RPC endpoint. Network
// and HTTP failures come back as errors, never panics; a transaction that
// is not yet visible is (nil, nil) from GetTransaction.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		trimmed := strings.TrimSpace(string(msg))
		if trimmed != "" {
			return fmt.Errorf("rpc http status %d: %s", resp.StatusCode, trimmed)
		}
		return fmt.Errorf("rpc http status %d", resp.StatusCode)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out != nil {
		return json.Unmarshal(envelope.Result, out)
	}
	return nil
}

// GetTransaction fetches a transaction in jsonParsed encoding. A transaction
// the endpoint has not seen yet returns (nil, nil).
func (c *Client) GetTransaction(ctx context.Context, signature string) (*ParsedTransaction, error) {
	params := []any{
		signature,
		map[string]any{
			"encoding":                       "jsonParsed",
			"maxSupportedTransactionVersion": 0,
		},
	}
	var raw json.RawMessage
	if err := c.call(ctx, "getTransaction", params, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var tx ParsedTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// LatestBlockhash returns the most recent finalized blockhash.
func (c *Client) LatestBlockhash(ctx context.Context) (string, error) {
	params := []any{map[string]any{"commitment": "finalized"}}
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", params, &result); err != nil {
		return "", err
	}
	if result.Value.Blockhash == "" {
		return "", fmt.Errorf("getLatestBlockhash returned empty blockhash")
	}
	return result.Value.Blockhash, nil
}

// GetBalance returns the SOL balance of an address.
func (c *Client) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []any{address}, &result); err != nil {
		return decimal.Zero, err
	}
	return LamportsToSOL(result.Value), nil
}

// SignatureStatus reports the coarse status of a submitted transaction.
// TxStatusUnknown means the endpoint has no record of the signature.
func (c *Client) SignatureStatus(ctx context.Context, signature string) (TxStatus, error) {
	var result struct {
		Value []*struct {
			Err                json.RawMessage `json:"err"`
			ConfirmationStatus string          `json:"confirmationStatus"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getSignatureStatuses", []any{[]string{signature}}, &result); err != nil {
		return TxStatusUnknown, err
	}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return TxStatusUnknown, nil
	}
	v := result.Value[0]
	if len(v.Err) > 0 && string(v.Err) != "null" {
		return TxStatusFailed, nil
	}
	if v.ConfirmationStatus == "finalized" {
		return TxStatusConfirmed, nil
	}
	return TxStatusPending, nil
}

// SendTransaction submits a base64-encoded signed transaction. It returns
// the ledger signature without waiting for finality.
func (c *Client) SendTransaction(ctx context.Context, txBase64 string) (string, error) {
	params := []any{
		txBase64,
		map[string]any{"encoding": "base64", "preflightCommitment": "confirmed"},
	}
	var signature string
	if err := c.call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

// ParsedTransaction is the jsonParsed getTransaction result, reduced to the
// fields verification needs.
type ParsedTransaction struct {
	Meta struct {
		Err json.RawMessage `json:"err"`
	} `json:"meta"`
	Transaction struct {
		Message struct {
			Instructions []ParsedInstruction `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
}

// Failed reports whether on-chain execution recorded an error.
func (t *ParsedTransaction) Failed() bool {
	return len(t.Meta.Err) > 0 && string(t.Meta.Err) != "null"
}

// ParsedInstruction keeps the parsed payload raw: not every program's
// instructions decode to the same shape (the memo program parses to a bare
// string), so decoding happens lazily per instruction.
type ParsedInstruction struct {
	Program string          `json:"program"`
	Parsed  json.RawMessage `json:"parsed"`
}

// TransferInfo is the decoded payload of a system-program transfer.
type TransferInfo struct {
	Source      string
	Destination string
	Lamports    uint64
}

// Transfer decodes the instruction as a simple system transfer, reporting
// false for any other program or instruction type.
func (in *ParsedInstruction) Transfer() (*TransferInfo, bool) {
	if in.Program != "system" || len(in.Parsed) == 0 {
		return nil, false
	}
	var parsed struct {
		Type string `json:"type"`
		Info struct {
			Source      string `json:"source"`
			Destination string `json:"destination"`
			Lamports    uint64 `json:"lamports"`
		} `json:"info"`
	}
	if err := json.Unmarshal(in.Parsed, &parsed); err != nil {
		return nil, false
	}
	if parsed.Type != "transfer" {
		return nil, false
	}
	return &TransferInfo{
		Source:      parsed.Info.Source,
		Destination: parsed.Info.Destination,
		Lamports:    parsed.Info.Lamports,
	}, true
}
