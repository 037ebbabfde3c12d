package token

import (
	"encoding/binary"

	"escrowchain/core/types"
)

// AccountSize is the packed size of a token account record.
const AccountSize = 32 + 32 + 8 + 1 + 32 + 8

// Account is a token holding. An account whose Owner is zero has not been
// initialized.
type Account struct {
	Mint            types.Pubkey  `json:"mint"`
	Owner           types.Pubkey  `json:"owner"`
	Amount          uint64        `json:"amount"`
	Delegate        *types.Pubkey `json:"delegate,omitempty"`
	DelegatedAmount uint64        `json:"delegatedAmount"`
}

func (a *Account) IsInitialized() bool { return !a.Owner.IsZero() }

// Pack writes the account into dst, which must be AccountSize bytes.
func (a *Account) Pack(dst []byte) error {
	if len(dst) != AccountSize {
		return ErrInvalidAccountData
	}
	copy(dst[0:32], a.Mint[:])
	copy(dst[32:64], a.Owner[:])
	binary.LittleEndian.PutUint64(dst[64:72], a.Amount)
	if a.Delegate != nil {
		dst[72] = 1
		copy(dst[73:105], a.Delegate[:])
	} else {
		dst[72] = 0
		clear(dst[73:105])
	}
	binary.LittleEndian.PutUint64(dst[105:113], a.DelegatedAmount)
	return nil
}

// UnpackAccount decodes a token account record. All-zero data decodes to an
// uninitialized account.
func UnpackAccount(data []byte) (*Account, error) {
	if len(data) != AccountSize {
		return nil, ErrInvalidAccountData
	}
	acc := &Account{
		Amount:          binary.LittleEndian.Uint64(data[64:72]),
		DelegatedAmount: binary.LittleEndian.Uint64(data[105:113]),
	}
	copy(acc.Mint[:], data[0:32])
	copy(acc.Owner[:], data[32:64])
	switch data[72] {
	case 0:
	case 1:
		var delegate types.Pubkey
		copy(delegate[:], data[73:105])
		acc.Delegate = &delegate
	default:
		return nil, ErrInvalidAccountData
	}
	return acc, nil
}
