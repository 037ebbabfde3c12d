package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
	"lukechampine.com/blake3"

	"escrowchain/core/types"
)

// AddressPrefix defines the human-readable part of a bech32 address.
type AddressPrefix string

const (
	IdentityPrefix AddressPrefix = "esc"
)

// Address is the bech32 rendering of a 32-byte ledger handle.
type Address struct {
	prefix AddressPrefix
	key    types.Pubkey
}

func NewAddress(prefix AddressPrefix, key types.Pubkey) Address {
	return Address{prefix: prefix, key: key}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.key[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Pubkey() types.Pubkey { return a.key }

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix { return a.prefix }

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	key, err := types.PubkeyFromBytes(conv)
	if err != nil {
		return Address{}, err
	}
	return NewAddress(AddressPrefix(prefix), key), nil
}

// ParseIdentity accepts either a bech32 address or a hex encoded handle.
func ParseIdentity(s string) (types.Pubkey, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, string(IdentityPrefix)+"1") {
		addr, err := DecodeAddress(trimmed)
		if err != nil {
			return types.Pubkey{}, err
		}
		return addr.Pubkey(), nil
	}
	return types.ParsePubkey(trimmed)
}

// DeriveAddress computes the handle of a record created on behalf of base for
// the given owner program. The same inputs always yield the same handle, so
// clients can address records before they exist.
func DeriveAddress(base types.Pubkey, seed string, owner types.Pubkey) types.Pubkey {
	h := blake3.New(types.PubkeyLength, nil)
	h.Write([]byte("escrowchain/derived"))
	h.Write(base[:])
	h.Write([]byte(seed))
	h.Write(owner[:])
	var out types.Pubkey
	copy(out[:], h.Sum(nil))
	return out
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Identity is the 32-byte handle other records use to refer to this key.
func (k *PublicKey) Identity() types.Pubkey {
	return types.IdentityFromPublicKey(k.PublicKey)
}

func (k *PublicKey) Address() Address {
	return NewAddress(IdentityPrefix, k.Identity())
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
