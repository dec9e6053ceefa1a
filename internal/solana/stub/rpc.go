package stub

import (
	"context"
	"sync"

	"dex-pair-sentinel/internal/solana"
)

// RPCClient implements solana.RPCClient from in-memory maps.
type RPCClient struct {
	mu sync.Mutex

	Transactions map[string]*solana.Transaction
	Accounts     map[string]*solana.AccountInfo
	Supplies     map[string]*solana.TokenAmount
	Holders      map[string][]solana.TokenAccountBalance

	// Errs fails every call of a method, keyed by RPC method name.
	Errs map[string]error

	calls map[string]int
}

// NewRPCClient creates an empty stub.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Accounts:     make(map[string]*solana.AccountInfo),
		Supplies:     make(map[string]*solana.TokenAmount),
		Holders:      make(map[string][]solana.TokenAccountBalance),
		Errs:         make(map[string]error),
		calls:        make(map[string]int),
	}
}

func (c *RPCClient) enter(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[method]++
	return c.Errs[method]
}

// GetTransaction returns a stored transaction or nil.
func (c *RPCClient) GetTransaction(_ context.Context, sig string) (*solana.Transaction, error) {
	if err := c.enter("getTransaction"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Transactions[sig], nil
}

// GetAccountInfo returns a stored account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	if err := c.enter("getAccountInfo"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Accounts[pubkey], nil
}

// GetTokenSupply returns a stored supply.
func (c *RPCClient) GetTokenSupply(_ context.Context, mint string) (*solana.TokenAmount, error) {
	if err := c.enter("getTokenSupply"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.Supplies[mint]
	if !ok {
		return nil, &solana.RPCError{Code: -32602, Message: "Invalid param: not a Token mint"}
	}
	return s, nil
}

// GetTokenLargestAccounts returns stored holders.
func (c *RPCClient) GetTokenLargestAccounts(_ context.Context, mint string) ([]solana.TokenAccountBalance, error) {
	if err := c.enter("getTokenLargestAccounts"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Holders[mint], nil
}

// AddTransaction stores tx by signature.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// SetAccount stores raw account data.
func (c *RPCClient) SetAccount(pubkey string, info *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = info
}

// Calls returns how many times method was invoked.
func (c *RPCClient) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

var _ solana.RPCClient = (*RPCClient)(nil)
