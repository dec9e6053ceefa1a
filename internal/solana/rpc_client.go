package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"dex-pair-sentinel/internal/observability"
)

// Client defaults.
const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 8 * time.Second
	DefaultBackoffMult = 2.0
	DefaultCommitment  = "confirmed"
)

// HTTPClient implements RPCClient over HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	commitment  string
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.client.Timeout = d }
}

// WithMaxRetries sets how many times a transport failure is retried.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) { c.maxRetries = n }
}

// WithRetryDelay sets the initial backoff delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.retryDelay = d }
}

// WithCommitment sets the commitment level sent with every request.
func WithCommitment(level string) ClientOption {
	return func(c *HTTPClient) { c.commitment = level }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) { c.client = hc }
}

// NewHTTPClient creates a Solana RPC client for endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		commitment:  DefaultCommitment,
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is an error object returned by the node. It is never retried.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// errRetryable marks transport-level failures.
var errRetryable = errors.New("retryable")

// call performs one JSON-RPC method with exponential backoff on transport
// failures, 429 and 5xx responses.
func (c *HTTPClient) call(ctx context.Context, method string, params []any, result any) error {
	start := time.Now()
	defer func() { observability.RecordRPCLatency(method, time.Since(start).Seconds()) }()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	delay := c.retryDelay
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = min(time.Duration(float64(delay)*c.backoffMult), c.maxDelay)
		}

		raw, err := c.post(ctx, body)
		if errors.Is(err, errRetryable) {
			lastErr = err
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}

		var resp rpcResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return fmt.Errorf("%s: decode response: %w", method, err)
		}
		if resp.Error != nil {
			return fmt.Errorf("%s: %w", method, resp.Error)
		}
		if result == nil || len(resp.Result) == 0 || string(resp.Result) == "null" {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
		return nil
	}
	return fmt.Errorf("%s: retries exhausted: %w", method, lastErr)
}

func (c *HTTPClient) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", errRetryable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", errRetryable, err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", errRetryable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(raw, 200))
	}
	return raw, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// GetTransaction retrieves a confirmed transaction with json encoding.
func (c *HTTPClient) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	params := []any{signature, map[string]any{
		"encoding":                       "json",
		"commitment":                     c.commitment,
		"maxSupportedTransactionVersion": 0,
	}}

	var res *txResult
	if err := c.call(ctx, "getTransaction", params, &res); err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}

	tx := &Transaction{Slot: res.Slot, Signature: signature}
	if res.BlockTime != nil {
		tx.BlockTime = *res.BlockTime
	}
	if res.Meta != nil {
		tx.Failed = res.Meta.Err != nil
		tx.Logs = res.Meta.LogMessages
	}
	if msg := res.Transaction.Message; msg != nil {
		tx.AccountKeys = msg.AccountKeys
		if res.Meta != nil && res.Meta.LoadedAddresses != nil {
			// v0 transactions append lookup-table accounts after static keys.
			tx.AccountKeys = append(append(tx.AccountKeys, res.Meta.LoadedAddresses.Writable...), res.Meta.LoadedAddresses.Readonly...)
		}
		for _, ix := range msg.Instructions {
			tx.Instructions = append(tx.Instructions, Instruction{
				ProgramIDIndex: ix.ProgramIDIndex,
				Accounts:       ix.Accounts,
				Data:           ix.Data,
			})
		}
	}
	return tx, nil
}

type txResult struct {
	Slot        int64   `json:"slot"`
	BlockTime   *int64  `json:"blockTime"`
	Meta        *txMeta `json:"meta"`
	Transaction struct {
		Message *txMessage `json:"message"`
	} `json:"transaction"`
}

type txMeta struct {
	Err             any      `json:"err"`
	LogMessages     []string `json:"logMessages"`
	LoadedAddresses *struct {
		Writable []string `json:"writable"`
		Readonly []string `json:"readonly"`
	} `json:"loadedAddresses"`
}

type txMessage struct {
	AccountKeys  []string `json:"accountKeys"`
	Instructions []struct {
		ProgramIDIndex int    `json:"programIdIndex"`
		Accounts       []int  `json:"accounts"`
		Data           string `json:"data"`
	} `json:"instructions"`
}

// GetAccountInfo retrieves base64 account data.
func (c *HTTPClient) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	params := []any{pubkey, map[string]any{
		"encoding":   "base64",
		"commitment": c.commitment,
	}}

	var res struct {
		Value *struct {
			Lamports   uint64   `json:"lamports"`
			Owner      string   `json:"owner"`
			Data       []string `json:"data"` // [payload, encoding]
			Executable bool     `json:"executable"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getAccountInfo", params, &res); err != nil {
		return nil, err
	}
	if res.Value == nil {
		return nil, nil
	}

	info := &AccountInfo{
		Lamports:   res.Value.Lamports,
		Owner:      res.Value.Owner,
		Executable: res.Value.Executable,
	}
	if len(res.Value.Data) > 0 {
		info.Data = res.Value.Data[0]
	}
	return info, nil
}

// GetTokenSupply retrieves the supply of an SPL mint.
func (c *HTTPClient) GetTokenSupply(ctx context.Context, mint string) (*TokenAmount, error) {
	var res struct {
		Value *TokenAmount `json:"value"`
	}
	params := []any{mint, map[string]any{"commitment": c.commitment}}
	if err := c.call(ctx, "getTokenSupply", params, &res); err != nil {
		return nil, err
	}
	if res.Value == nil {
		return nil, fmt.Errorf("getTokenSupply %s: empty result", mint)
	}
	return res.Value, nil
}

// GetTokenLargestAccounts retrieves the largest token accounts of an SPL mint.
func (c *HTTPClient) GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenAccountBalance, error) {
	var res struct {
		Value []TokenAccountBalance `json:"value"`
	}
	params := []any{mint, map[string]any{"commitment": c.commitment}}
	if err := c.call(ctx, "getTokenLargestAccounts", params, &res); err != nil {
		return nil, err
	}
	return res.Value, nil
}

var _ RPCClient = (*HTTPClient)(nil)
