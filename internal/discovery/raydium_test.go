package discovery

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"testing"

	"github.com/mr-tron/base58"

	"dex-pair-sentinel/internal/solana"
)

const (
	testToken = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	testPool  = "58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2"
	testLP    = "8HoQnePLqPj4M7PUDzfw8e3Ymdwgc7NLGnaTUapubyvu"
)

func initLogLine(coinDec, pcDec uint8, coinAmt, pcAmt uint64) string {
	data := make([]byte, rayInitLogLen)
	data[0] = rayLogInit
	binary.LittleEndian.PutUint64(data[1:9], 1_700_000_000)
	data[9] = pcDec
	data[10] = coinDec
	binary.LittleEndian.PutUint64(data[27:35], pcAmt)
	binary.LittleEndian.PutUint64(data[35:43], coinAmt)
	return "Program log: ray_log: " + base64.StdEncoding.EncodeToString(data)
}

func initialize2Data(coinAmt, pcAmt uint64) string {
	data := make([]byte, initialize2DataLen)
	data[0] = initialize2Tag
	data[1] = 254
	binary.LittleEndian.PutUint64(data[2:10], 1_700_000_100)
	binary.LittleEndian.PutUint64(data[10:18], pcAmt)
	binary.LittleEndian.PutUint64(data[18:26], coinAmt)
	return base58.Encode(data)
}

// initTx builds an initialize2 transaction with coin and pc mints.
func initTx(sig, coin, pc string, logs ...string) *solana.Transaction {
	keys := make([]string, 21)
	for i := range keys {
		keys[i] = "acct" + string(rune('a'+i))
	}
	keys[accAMM] = testPool
	keys[accLPMint] = testLP
	keys[accCoinMint] = coin
	keys[accPCMint] = pc
	keys = append(keys, solana.RaydiumAMMV4)

	accounts := make([]int, 21)
	for i := range accounts {
		accounts[i] = i
	}
	return &solana.Transaction{
		Slot:        250_000_000,
		Signature:   sig,
		BlockTime:   1_700_000_050,
		Logs:        logs,
		AccountKeys: keys,
		Instructions: []solana.Instruction{
			{ProgramIDIndex: 21, Accounts: accounts, Data: initialize2Data(1_000_000_000_000, 45_000_000_000)},
		},
	}
}

func TestParseInitLog(t *testing.T) {
	logs := []string{
		"Program 675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8 invoke [1]",
		"Program log: initialize2: InitializeInstruction2 { nonce: 254 }",
		initLogLine(6, 9, 1_000_000_000_000, 45_000_000_000),
	}

	l, ok := ParseInitLog(logs)
	if !ok {
		t.Fatal("expected init log")
	}
	if l.CoinDecimals != 6 || l.PCDecimals != 9 {
		t.Errorf("decimals = %d/%d", l.CoinDecimals, l.PCDecimals)
	}
	if l.CoinAmount != 1_000_000_000_000 || l.PCAmount != 45_000_000_000 {
		t.Errorf("amounts = %d/%d", l.CoinAmount, l.PCAmount)
	}
	if l.OpenTime != 1_700_000_000 {
		t.Errorf("open time = %d", l.OpenTime)
	}
}

func TestParseInitLog_IgnoresSwapLogs(t *testing.T) {
	swap := make([]byte, 57)
	swap[0] = 0x03
	logs := []string{"Program log: ray_log: " + base64.StdEncoding.EncodeToString(swap), "Program log: ray_log: !!!"}

	if _, ok := ParseInitLog(logs); ok {
		t.Error("swap ray_log parsed as init")
	}
}

func TestParseInitialize2(t *testing.T) {
	tx := initTx("sig1", testToken, solana.WrappedSOL)

	ix, ok := ParseInitialize2(tx, solana.RaydiumAMMV4)
	if !ok {
		t.Fatal("expected initialize2")
	}
	if ix.Pool != testPool || ix.CoinMint != testToken || ix.PCMint != solana.WrappedSOL || ix.LPMint != testLP {
		t.Errorf("accounts = %+v", ix)
	}
	if ix.CoinAmount != 1_000_000_000_000 || ix.PCAmount != 45_000_000_000 {
		t.Errorf("amounts = %d/%d", ix.CoinAmount, ix.PCAmount)
	}

	if _, ok := ParseInitialize2(tx, solana.PumpFunProgram); ok {
		t.Error("matched wrong program")
	}
	tx.Instructions[0].Data = base58.Encode([]byte{0x09, 1, 2})
	if _, ok := ParseInitialize2(tx, solana.RaydiumAMMV4); ok {
		t.Error("matched swap instruction")
	}
}

func TestNewPoolEvent(t *testing.T) {
	tests := []struct {
		name     string
		coin, pc string
		withLog  bool
		wantDec  int
	}{
		{"token is coin", testToken, solana.WrappedSOL, true, 6},
		{"sol is coin", solana.WrappedSOL, testToken, true, 6},
		{"no init log", testToken, solana.WrappedSOL, false, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := initTx("sig", tt.coin, tt.pc)
			ix, _ := ParseInitialize2(tx, solana.RaydiumAMMV4)
			// Token side always holds 1,000,000 tokens and SOL side 45 SOL.
			if tt.coin == solana.WrappedSOL {
				ix.CoinAmount, ix.PCAmount = 45_000_000_000, 1_000_000_000_000
			}
			var rl *InitLog
			if tt.withLog {
				if tt.coin == solana.WrappedSOL {
					rl, _ = ParseInitLog([]string{initLogLine(9, 6, 45_000_000_000, 1_000_000_000_000)})
				} else {
					rl, _ = ParseInitLog([]string{initLogLine(6, 9, 1_000_000_000_000, 45_000_000_000)})
				}
			}

			ev := NewPoolEvent(tx, solana.RaydiumAMMV4, ix, rl)
			if ev.BaseMint != testToken || !ev.SOLQuoted() {
				t.Fatalf("base/quote = %s/%s", ev.BaseMint, ev.QuoteMint)
			}
			if ev.BaseDecimals != tt.wantDec {
				t.Errorf("base decimals = %d, want %d", ev.BaseDecimals, tt.wantDec)
			}
			if got := ev.QuoteLiquidity(); math.Abs(got-45) > 1e-9 {
				t.Errorf("liquidity = %v, want 45", got)
			}
			price, ok := ev.Price()
			if ok != tt.withLog {
				t.Fatalf("price ok = %v", ok)
			}
			if ok && math.Abs(price-0.000045) > 1e-12 {
				t.Errorf("price = %v, want 0.000045", price)
			}
			if ev.BlockTime.Unix() != 1_700_000_050 {
				t.Errorf("block time = %v", ev.BlockTime)
			}
		})
	}
}
