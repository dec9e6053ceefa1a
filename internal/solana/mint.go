package solana

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// MintSize is the length of the base SPL mint layout. Token-2022 mints carry
// extensions after it.
const MintSize = 82

// Token-2022 extension layout. Extensions follow the base mint padded to the
// token account length, then a one-byte account type, then TLV entries.
const (
	extAccountTypeOffset = 165
	extAccountTypeMint   = 1

	extTransferFeeConfig  = 1
	extNonTransferable    = 9
	extPermanentDelegate  = 12
	transferFeeConfigSize = 108
	newerTransferFeeBps   = 106 // offset of newer_transfer_fee.basis_points
)

// ErrShortAccount is returned when account data is too small for its layout.
var ErrShortAccount = errors.New("account data too short")

// Mint is the decoded SPL mint account.
type Mint struct {
	MintAuthority   *PublicKey // nil when revoked
	Supply          uint64
	Decimals        uint8
	Initialized     bool
	FreezeAuthority *PublicKey // nil when revoked

	// Token-2022 extensions.
	TransferFeeBps    *uint16    // nil when the mint has no transfer fee
	NonTransferable   bool       // holders can never move the token
	PermanentDelegate *PublicKey // may transfer or burn from any holder
}

// TransferFeePercent returns the transfer fee in percent, if configured.
func (m *Mint) TransferFeePercent() (float64, bool) {
	if m.TransferFeeBps == nil {
		return 0, false
	}
	return float64(*m.TransferFeeBps) / 100, true
}

// MintRevoked reports whether no one can mint more supply.
func (m *Mint) MintRevoked() bool { return m.MintAuthority == nil }

// FreezeRevoked reports whether no one can freeze holder accounts.
func (m *Mint) FreezeRevoked() bool { return m.FreezeAuthority == nil }

// DecodeMint decodes base64 mint account data.
func DecodeMint(data string) (*Mint, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode mint: %w", err)
	}
	if len(raw) < MintSize {
		return nil, fmt.Errorf("%w: mint has %d bytes", ErrShortAccount, len(raw))
	}
	m := &Mint{
		MintAuthority:   readOptionKey(raw[0:36]),
		Supply:          binary.LittleEndian.Uint64(raw[36:44]),
		Decimals:        raw[44],
		Initialized:     raw[45] != 0,
		FreezeAuthority: readOptionKey(raw[46:82]),
	}
	if len(raw) > extAccountTypeOffset && raw[extAccountTypeOffset] == extAccountTypeMint {
		m.readExtensions(raw[extAccountTypeOffset+1:])
	}
	return m, nil
}

// readExtensions walks the TLV area. A truncated entry ends the walk.
func (m *Mint) readExtensions(tlv []byte) {
	for len(tlv) >= 4 {
		typ := binary.LittleEndian.Uint16(tlv[0:2])
		n := int(binary.LittleEndian.Uint16(tlv[2:4]))
		if typ == 0 || len(tlv) < 4+n {
			return
		}
		val := tlv[4 : 4+n]
		switch typ {
		case extTransferFeeConfig:
			if n >= transferFeeConfigSize {
				bps := binary.LittleEndian.Uint16(val[newerTransferFeeBps : newerTransferFeeBps+2])
				m.TransferFeeBps = &bps
			}
		case extNonTransferable:
			m.NonTransferable = true
		case extPermanentDelegate:
			if n >= 32 {
				var pk PublicKey
				copy(pk[:], val[:32])
				if !pk.IsZero() {
					m.PermanentDelegate = &pk
				}
			}
		}
		tlv = tlv[4+n:]
	}
}

// readOptionKey reads a COption<Pubkey>: u32 tag then 32 bytes.
func readOptionKey(b []byte) *PublicKey {
	if binary.LittleEndian.Uint32(b[:4]) == 0 {
		return nil
	}
	var pk PublicKey
	copy(pk[:], b[4:36])
	return &pk
}

// TokenAccountSize is the length of the base SPL token account layout.
const TokenAccountSize = 165

// TokenAccount is the prefix of an SPL token account.
type TokenAccount struct {
	Mint   PublicKey
	Owner  PublicKey
	Amount uint64
}

// DecodeTokenAccount decodes base64 token account data.
func DecodeTokenAccount(data string) (*TokenAccount, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode token account: %w", err)
	}
	if len(raw) < 72 {
		return nil, fmt.Errorf("%w: token account has %d bytes", ErrShortAccount, len(raw))
	}
	ta := &TokenAccount{Amount: binary.LittleEndian.Uint64(raw[64:72])}
	copy(ta.Mint[:], raw[0:32])
	copy(ta.Owner[:], raw[32:64])
	return ta, nil
}

// Metadata is the prefix of a token metadata account.
type Metadata struct {
	UpdateAuthority PublicKey
	Mint            PublicKey
	Name            string
	Symbol          string
	URI             string
	Mutable         bool
}

// DecodeMetadata decodes base64 token metadata account data up to is_mutable.
func DecodeMetadata(data string) (*Metadata, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	r := &reader{buf: raw}

	r.skip(1) // key
	md := &Metadata{}
	copy(md.UpdateAuthority[:], r.bytes(32))
	copy(md.Mint[:], r.bytes(32))
	md.Name = r.str()
	md.Symbol = r.str()
	md.URI = r.str()
	r.skip(2) // seller fee basis points
	if r.u8() == 1 {
		n := int(r.u32())
		r.skip(n * 34) // creator: address, verified, share
	}
	r.skip(1) // primary sale happened
	md.Mutable = r.u8() == 1

	if r.err != nil {
		return nil, fmt.Errorf("decode metadata: %w", r.err)
	}
	return md, nil
}

// reader is a borsh cursor that records the first overrun.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil || n < 0 || r.off+n > len(r.buf) {
		if r.err == nil {
			r.err = fmt.Errorf("%w at offset %d", ErrShortAccount, r.off)
		}
		return make([]byte, min(max(n, 0), 64))
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) skip(n int) { r.bytes(n) }

func (r *reader) u8() uint8 { return r.bytes(1)[0] }

func (r *reader) u32() uint32 { return binary.LittleEndian.Uint32(r.bytes(4)) }

func (r *reader) str() string {
	n := int(r.u32())
	return strings.TrimRight(string(r.bytes(n)), "\x00 ")
}
