package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known program and mint addresses.
const (
	TokenProgram     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022Program = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	MetadataProgram  = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"
	RaydiumAMMV4     = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	PumpFunProgram   = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	RaydiumAuthority = "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"
	WrappedSOL       = "So11111111111111111111111111111111111111112"
)

const (
	pdaMarker    = "ProgramDerivedAddress"
	maxSeedLen   = 32
	publicKeyLen = 32
)

// ErrInvalidPublicKey is returned for strings that are not 32-byte base58 keys.
var ErrInvalidPublicKey = errors.New("invalid public key")

// PublicKey is a 32-byte ed25519 public key or program derived address.
type PublicKey [publicKeyLen]byte

// ParsePublicKey decodes a base58 address.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("%w %q: %v", ErrInvalidPublicKey, s, err)
	}
	if len(raw) != publicKeyLen {
		return pk, fmt.Errorf("%w %q: %d bytes", ErrInvalidPublicKey, s, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// MustPublicKey is ParsePublicKey for constants.
func MustPublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 form.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// IsZero reports whether pk is all zeroes.
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

// IsOnCurve reports whether pk is a valid ed25519 point. Program derived
// addresses are off the curve.
func (pk PublicKey) IsOnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}

// IsValidAddress reports whether s decodes to a 32-byte key.
func IsValidAddress(s string) bool {
	_, err := ParsePublicKey(s)
	return err == nil
}

// FindProgramAddress derives the canonical program address for seeds,
// searching bumps from 255 down.
func FindProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, uint8, error) {
	for _, s := range seeds {
		if len(s) > maxSeedLen {
			return PublicKey{}, 0, fmt.Errorf("seed longer than %d bytes", maxSeedLen)
		}
	}
	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, s := range seeds {
			h.Write(s)
		}
		h.Write([]byte{byte(bump)})
		h.Write(program[:])
		h.Write([]byte(pdaMarker))

		var pk PublicKey
		copy(pk[:], h.Sum(nil))
		if !pk.IsOnCurve() {
			return pk, uint8(bump), nil
		}
	}
	return PublicKey{}, 0, errors.New("no viable bump seed")
}

// MetadataAddress returns the token metadata account of mint.
func MetadataAddress(mint PublicKey) (PublicKey, error) {
	program := MustPublicKey(MetadataProgram)
	pk, _, err := FindProgramAddress([][]byte{[]byte("metadata"), program[:], mint[:]}, program)
	return pk, err
}
