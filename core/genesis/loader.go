// core/genesis/loader.go
package genesis

import (
	"errors"
	"fmt"

	"escrowchain/core/ledger"
	"escrowchain/core/types"
	"escrowchain/crypto"
	"escrowchain/native/token"
)

// Handle is the derived handle of the token holding.
func (ta *TokenAccountSpec) Handle() types.Pubkey {
	return crypto.DeriveAddress(ta.owner, ta.Seed, token.ProgramID)
}

// Initialized reports whether genesis has already been applied to l.
func Initialized(l *ledger.Ledger) (bool, error) {
	_, err := l.Rent()
	if errors.Is(err, ledger.ErrInvalidSysvar) {
		return false, nil
	}
	return err == nil, err
}

// Apply writes the genesis state into an empty ledger.
func Apply(spec *GenesisSpec, l *ledger.Ledger) error {
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if l == nil {
		return fmt.Errorf("ledger must not be nil")
	}
	done, err := Initialized(l)
	if err != nil {
		return err
	}
	if done {
		return fmt.Errorf("genesis already applied")
	}

	for _, a := range spec.Alloc {
		acc := &types.Account{Owner: types.SystemProgramID, Balance: a.Balance}
		if err := l.SetAccount(a.identity, acc); err != nil {
			return fmt.Errorf("alloc %s: %w", a.Address, err)
		}
	}

	rent := spec.RentValue()
	for i := range spec.TokenAccounts {
		ta := &spec.TokenAccounts[i]
		data := make([]byte, token.AccountSize)
		holding := &token.Account{Mint: ta.mint, Owner: ta.owner, Amount: ta.Amount}
		if err := holding.Pack(data); err != nil {
			return err
		}
		acc := &types.Account{
			Owner:   token.ProgramID,
			Balance: rent.MinimumBalance(token.AccountSize),
			Data:    data,
		}
		if err := l.SetAccount(ta.Handle(), acc); err != nil {
			return fmt.Errorf("token account %s/%s: %w", ta.Owner, ta.Seed, err)
		}
	}

	// Rent goes last: its presence marks genesis as complete.
	return l.SetRent(rent)
}
