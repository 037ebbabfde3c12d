package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// PubkeyLength is the size in bytes of every identity and record handle.
const PubkeyLength = 32

// Pubkey addresses a record on the ledger. Signing identities and the
// handles of stored records share the same 32-byte space.
type Pubkey [PubkeyLength]byte

var (
	// SystemProgramID owns every record that has not been assigned to a
	// program yet.
	SystemProgramID = WellKnownID("program/system")
	// NativeLoaderID owns the synthetic accounts of built-in programs.
	NativeLoaderID = WellKnownID("loader/native")
	// SysvarOwnerID owns runtime-maintained records such as rent.
	SysvarOwnerID = WellKnownID("sysvar")
	// RentSysvarID is the handle of the rent-context record.
	RentSysvarID = WellKnownID("sysvar/rent")
)

// WellKnownID derives a deterministic handle for a runtime-reserved name.
func WellKnownID(name string) Pubkey {
	return Pubkey(ethcrypto.Keccak256Hash([]byte("escrowchain:" + name)))
}

// PubkeyFromBytes copies b into a Pubkey. The slice must be exactly 32 bytes.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var key Pubkey
	if len(b) != PubkeyLength {
		return key, fmt.Errorf("pubkey must be %d bytes, got %d", PubkeyLength, len(b))
	}
	copy(key[:], b)
	return key, nil
}

// ParsePubkey decodes a hex encoded pubkey with or without 0x prefix.
func ParsePubkey(s string) (Pubkey, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return Pubkey{}, fmt.Errorf("invalid pubkey hex: %w", err)
	}
	return PubkeyFromBytes(raw)
}

func (p Pubkey) Bytes() []byte { return append([]byte(nil), p[:]...) }

func (p Pubkey) IsZero() bool { return p == Pubkey{} }

func (p Pubkey) String() string { return hex.EncodeToString(p[:]) }

// MarshalText encodes the key as lower-case hex without prefix.
func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
