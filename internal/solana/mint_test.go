package solana

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"testing"
)

func mintData(mintAuth, freezeAuth *PublicKey, supply uint64, decimals uint8) string {
	raw := make([]byte, MintSize)
	if mintAuth != nil {
		binary.LittleEndian.PutUint32(raw[0:4], 1)
		copy(raw[4:36], mintAuth[:])
	}
	binary.LittleEndian.PutUint64(raw[36:44], supply)
	raw[44] = decimals
	raw[45] = 1
	if freezeAuth != nil {
		binary.LittleEndian.PutUint32(raw[46:50], 1)
		copy(raw[50:82], freezeAuth[:])
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestDecodeMint(t *testing.T) {
	auth := MustPublicKey(RaydiumAMMV4)

	m, err := DecodeMint(mintData(&auth, nil, 1_000_000_000, 6))
	if err != nil {
		t.Fatalf("DecodeMint: %v", err)
	}
	if m.MintRevoked() {
		t.Error("mint authority should be present")
	}
	if *m.MintAuthority != auth {
		t.Errorf("mint authority = %s", m.MintAuthority)
	}
	if !m.FreezeRevoked() {
		t.Error("freeze authority should be revoked")
	}
	if m.Supply != 1_000_000_000 || m.Decimals != 6 || !m.Initialized {
		t.Errorf("unexpected mint %+v", m)
	}

	m, err = DecodeMint(mintData(nil, nil, 1, 9))
	if err != nil {
		t.Fatalf("DecodeMint: %v", err)
	}
	if !m.MintRevoked() || !m.FreezeRevoked() {
		t.Error("both authorities should be revoked")
	}
}

func TestDecodeMint_Short(t *testing.T) {
	_, err := DecodeMint(base64.StdEncoding.EncodeToString(make([]byte, 40)))
	if !errors.Is(err, ErrShortAccount) {
		t.Errorf("expected ErrShortAccount, got %v", err)
	}
	if _, err := DecodeMint("!!"); err == nil {
		t.Error("expected base64 error")
	}
}

func borshString(s string) []byte {
	b := make([]byte, 4, 4+len(s))
	binary.LittleEndian.PutUint32(b, uint32(len(s)))
	return append(b, s...)
}

func TestDecodeMetadata(t *testing.T) {
	mint := MustPublicKey(WrappedSOL)
	auth := MustPublicKey(RaydiumAMMV4)

	var raw []byte
	raw = append(raw, 4)
	raw = append(raw, auth[:]...)
	raw = append(raw, mint[:]...)
	raw = append(raw, borshString("Moon Cat\x00\x00\x00")...)
	raw = append(raw, borshString("MCAT")...)
	raw = append(raw, borshString("https://example.com/mcat.json")...)
	raw = append(raw, 0, 0) // seller fee
	raw = append(raw, 1)    // creators present
	raw = append(raw, 1, 0, 0, 0)
	raw = append(raw, make([]byte, 34)...)
	raw = append(raw, 0) // primary sale
	raw = append(raw, 0) // immutable

	md, err := DecodeMetadata(base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		t.Fatalf("DecodeMetadata: %v", err)
	}
	if md.Name != "Moon Cat" || md.Symbol != "MCAT" {
		t.Errorf("name/symbol = %q/%q", md.Name, md.Symbol)
	}
	if md.Mint != mint || md.UpdateAuthority != auth {
		t.Error("keys not decoded")
	}
	if md.Mutable {
		t.Error("expected immutable")
	}

	if _, err := DecodeMetadata(base64.StdEncoding.EncodeToString(raw[:80])); !errors.Is(err, ErrShortAccount) {
		t.Errorf("expected ErrShortAccount on truncated data, got %v", err)
	}
}

// token2022Data appends the given TLV entries to a base mint.
func token2022Data(t *testing.T, entries ...[]byte) string {
	t.Helper()
	base, err := base64.StdEncoding.DecodeString(mintData(nil, nil, 1_000_000, 6))
	if err != nil {
		t.Fatal(err)
	}
	raw := make([]byte, extAccountTypeOffset+1)
	copy(raw, base)
	raw[extAccountTypeOffset] = extAccountTypeMint
	for _, e := range entries {
		raw = append(raw, e...)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func tlv(typ uint16, val []byte) []byte {
	b := make([]byte, 4, 4+len(val))
	binary.LittleEndian.PutUint16(b[0:2], typ)
	binary.LittleEndian.PutUint16(b[2:4], uint16(len(val)))
	return append(b, val...)
}

func TestDecodeMint_Token2022Extensions(t *testing.T) {
	fee := make([]byte, transferFeeConfigSize)
	binary.LittleEndian.PutUint16(fee[newerTransferFeeBps:], 250)
	delegate := MustPublicKey(RaydiumAMMV4)

	m, err := DecodeMint(token2022Data(t,
		tlv(extTransferFeeConfig, fee),
		tlv(extNonTransferable, nil),
		tlv(extPermanentDelegate, delegate[:]),
	))
	if err != nil {
		t.Fatalf("DecodeMint: %v", err)
	}
	pct, ok := m.TransferFeePercent()
	if !ok || pct != 2.5 {
		t.Errorf("TransferFeePercent = %v, %v; want 2.5", pct, ok)
	}
	if !m.NonTransferable {
		t.Error("expected non-transferable")
	}
	if m.PermanentDelegate == nil || *m.PermanentDelegate != delegate {
		t.Errorf("PermanentDelegate = %v", m.PermanentDelegate)
	}
}

func TestDecodeMint_NoExtensions(t *testing.T) {
	m, err := DecodeMint(mintData(nil, nil, 1, 9))
	if err != nil {
		t.Fatalf("DecodeMint: %v", err)
	}
	if _, ok := m.TransferFeePercent(); ok || m.NonTransferable || m.PermanentDelegate != nil {
		t.Errorf("unexpected extensions on base mint %+v", m)
	}

	// Truncated TLV is ignored rather than failing the decode.
	m, err = DecodeMint(token2022Data(t, []byte{1, 0, 200, 0, 1, 2}))
	if err != nil {
		t.Fatalf("DecodeMint truncated: %v", err)
	}
	if m.TransferFeeBps != nil {
		t.Error("truncated transfer fee should be ignored")
	}
}

func TestDecodeTokenAccount(t *testing.T) {
	mint := MustPublicKey(WrappedSOL)
	owner := MustPublicKey(RaydiumAuthority)
	raw := make([]byte, TokenAccountSize)
	copy(raw[0:32], mint[:])
	copy(raw[32:64], owner[:])
	binary.LittleEndian.PutUint64(raw[64:72], 42)

	ta, err := DecodeTokenAccount(base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		t.Fatalf("DecodeTokenAccount: %v", err)
	}
	if ta.Mint != mint || ta.Owner != owner || ta.Amount != 42 {
		t.Errorf("unexpected token account %+v", ta)
	}

	if _, err := DecodeTokenAccount(base64.StdEncoding.EncodeToString(raw[:40])); !errors.Is(err, ErrShortAccount) {
		t.Errorf("expected ErrShortAccount, got %v", err)
	}
}
