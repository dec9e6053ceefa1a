package discovery

import (
	"encoding/base64"
	"encoding/binary"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"dex-pair-sentinel/internal/solana"
)

// Raydium AMM v4 layouts.
const (
	rayLogPrefix  = "ray_log: "
	rayLogInit    = 0x00 // InitLog discriminator
	rayInitLogLen = 75   // type(1) time(8) pc_dec(1) coin_dec(1) pc_lot(8) coin_lot(8) pc_amt(8) coin_amt(8) market(32)

	initialize2Tag     = 0x01
	initialize2DataLen = 26 // tag(1) nonce(1) open_time(8) init_pc(8) init_coin(8)
	initialize2MinAccs = 18

	// initialize2 account positions.
	accAMM      = 4
	accLPMint   = 7
	accCoinMint = 8
	accPCMint   = 9
)

// InitLog is the ray_log record emitted by initialize2.
type InitLog struct {
	OpenTime     uint64
	PCDecimals   uint8
	CoinDecimals uint8
	PCAmount     uint64
	CoinAmount   uint64
	Market       solana.PublicKey
}

// ParseInitLog finds the first init ray_log in logs.
func ParseInitLog(logs []string) (*InitLog, bool) {
	for _, line := range logs {
		i := strings.Index(line, rayLogPrefix)
		if i < 0 {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(line[i+len(rayLogPrefix):]))
		if err != nil || len(data) < rayInitLogLen || data[0] != rayLogInit {
			continue
		}
		l := &InitLog{
			OpenTime:     binary.LittleEndian.Uint64(data[1:9]),
			PCDecimals:   data[9],
			CoinDecimals: data[10],
			PCAmount:     binary.LittleEndian.Uint64(data[27:35]),
			CoinAmount:   binary.LittleEndian.Uint64(data[35:43]),
		}
		copy(l.Market[:], data[43:75])
		return l, true
	}
	return nil, false
}

// IsPoolInit reports whether logs look like a Raydium pool initialization.
func IsPoolInit(logs []string) bool {
	for _, line := range logs {
		if strings.Contains(line, "initialize2") {
			return true
		}
	}
	return false
}

// Initialize2 is the decoded initialize2 instruction.
type Initialize2 struct {
	Pool       string
	LPMint     string
	CoinMint   string
	PCMint     string
	OpenTime   uint64
	PCAmount   uint64
	CoinAmount uint64
}

// ParseInitialize2 finds the first initialize2 instruction of program in tx.
func ParseInitialize2(tx *solana.Transaction, program string) (*Initialize2, bool) {
	if tx == nil {
		return nil, false
	}
	for _, ix := range tx.Instructions {
		if tx.Program(ix) != program || len(ix.Accounts) < initialize2MinAccs {
			continue
		}
		data, err := base58.Decode(ix.Data)
		if err != nil || len(data) < initialize2DataLen || data[0] != initialize2Tag {
			continue
		}
		return &Initialize2{
			Pool:       tx.Account(ix, accAMM),
			LPMint:     tx.Account(ix, accLPMint),
			CoinMint:   tx.Account(ix, accCoinMint),
			PCMint:     tx.Account(ix, accPCMint),
			OpenTime:   binary.LittleEndian.Uint64(data[2:10]),
			PCAmount:   binary.LittleEndian.Uint64(data[10:18]),
			CoinAmount: binary.LittleEndian.Uint64(data[18:26]),
		}, true
	}
	return nil, false
}

// NewPoolEvent combines the instruction and, when present, the init log.
// The non-SOL side becomes the base token.
func NewPoolEvent(tx *solana.Transaction, program string, ix *Initialize2, rl *InitLog) *PoolEvent {
	coinAmt, pcAmt := ix.CoinAmount, ix.PCAmount
	coinDec, pcDec := -1, -1
	openTime := ix.OpenTime
	if rl != nil {
		coinAmt, pcAmt = rl.CoinAmount, rl.PCAmount
		coinDec, pcDec = int(rl.CoinDecimals), int(rl.PCDecimals)
		openTime = rl.OpenTime
	}

	e := &PoolEvent{
		Signature:     tx.Signature,
		Slot:          tx.Slot,
		Program:       program,
		Pool:          ix.Pool,
		BaseMint:      ix.CoinMint,
		QuoteMint:     ix.PCMint,
		BaseAmount:    coinAmt,
		QuoteAmount:   pcAmt,
		BaseDecimals:  coinDec,
		QuoteDecimals: pcDec,
	}
	if ix.CoinMint == solana.WrappedSOL {
		e.BaseMint, e.QuoteMint = ix.PCMint, ix.CoinMint
		e.BaseAmount, e.QuoteAmount = pcAmt, coinAmt
		e.BaseDecimals, e.QuoteDecimals = pcDec, coinDec
	}
	if e.QuoteMint == solana.WrappedSOL {
		e.QuoteDecimals = 9
	}
	if tx.BlockTime > 0 {
		e.BlockTime = time.Unix(tx.BlockTime, 0).UTC()
	}
	if openTime > 0 {
		e.OpenTime = time.Unix(int64(openTime), 0).UTC()
	}
	return e
}
