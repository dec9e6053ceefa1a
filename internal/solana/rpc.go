package solana

import "context"

// RPCClient is the subset of the Solana JSON-RPC API used for pool discovery
// and candidate enrichment.
type RPCClient interface {
	// GetTransaction retrieves a confirmed transaction. Returns nil, nil if not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetAccountInfo retrieves raw account data. Returns nil, nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetTokenSupply retrieves the total supply of an SPL mint.
	GetTokenSupply(ctx context.Context, mint string) (*TokenAmount, error)

	// GetTokenLargestAccounts retrieves the 20 largest holders of an SPL mint.
	GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenAccountBalance, error)
}

// Transaction is a confirmed transaction with its top-level instructions.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // unix seconds
	Failed    bool
	Logs      []string

	AccountKeys  []string
	Instructions []Instruction
}

// Instruction is a compiled instruction. Accounts index into AccountKeys.
type Instruction struct {
	ProgramIDIndex int
	Accounts       []int
	Data           string // base58
}

// Program returns the program id of ix, or "" if the index is out of range.
func (tx *Transaction) Program(ix Instruction) string {
	if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(tx.AccountKeys) {
		return ""
	}
	return tx.AccountKeys[ix.ProgramIDIndex]
}

// Account resolves the i-th account of ix to an address.
func (tx *Transaction) Account(ix Instruction, i int) string {
	if i < 0 || i >= len(ix.Accounts) {
		return ""
	}
	k := ix.Accounts[i]
	if k < 0 || k >= len(tx.AccountKeys) {
		return ""
	}
	return tx.AccountKeys[k]
}

// AccountInfo is raw account state.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       string // base64
	Executable bool
}

// TokenAmount is an SPL token amount as returned by the RPC.
type TokenAmount struct {
	Amount   string  `json:"amount"`
	Decimals int     `json:"decimals"`
	UIAmount float64 `json:"uiAmount"`
}

// TokenAccountBalance is one entry of getTokenLargestAccounts.
type TokenAccountBalance struct {
	Address  string  `json:"address"`
	Amount   string  `json:"amount"`
	Decimals int     `json:"decimals"`
	UIAmount float64 `json:"uiAmount"`
}
