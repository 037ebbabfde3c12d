// core/genesis/spec.go
package genesis

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"escrowchain/core/ledger"
	"escrowchain/core/types"
	"escrowchain/crypto"
)

type GenesisSpec struct {
	Network       string             `yaml:"network"`
	GenesisTime   string             `yaml:"genesisTime"`
	Rent          *ledger.Rent       `yaml:"rent,omitempty"`
	Alloc         []AllocSpec        `yaml:"alloc"`
	TokenAccounts []TokenAccountSpec `yaml:"tokenAccounts"`

	genesisTimestamp time.Time
}

// AllocSpec funds an identity with native balance.
type AllocSpec struct {
	Address string `yaml:"address"`
	Balance uint64 `yaml:"balance"`

	identity types.Pubkey
}

// TokenAccountSpec creates an initialized token holding. The holding lives at
// the handle derived from the owner and seed for the token program, which is
// where `escrow-cli token create-account` would have put it.
type TokenAccountSpec struct {
	Owner  string `yaml:"owner"`
	Seed   string `yaml:"seed"`
	Mint   string `yaml:"mint"`
	Amount uint64 `yaml:"amount"`

	owner types.Pubkey
	mint  types.Pubkey
}

func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec GenesisSpec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// RentValue returns the configured rent or ledger.DefaultRent.
func (s *GenesisSpec) RentValue() ledger.Rent {
	if s.Rent == nil {
		return ledger.DefaultRent
	}
	return *s.Rent
}

// ParseMint accepts a hex pubkey or a symbolic mint name. Names map to
// well-known ids so configs can say `mint: USDC`.
func ParseMint(s string) (types.Pubkey, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return types.Pubkey{}, fmt.Errorf("mint must be provided")
	}
	if key, err := types.ParsePubkey(trimmed); err == nil {
		return key, nil
	}
	return types.WellKnownID("mint/" + strings.ToUpper(trimmed)), nil
}

func (s *GenesisSpec) validate() error {
	parsedTime, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = parsedTime

	if s.Rent != nil && s.Rent.ExemptionYears == 0 {
		return fmt.Errorf("rent: exemptionYears must be greater than zero")
	}

	seen := make(map[types.Pubkey]struct{}, len(s.Alloc))
	for i := range s.Alloc {
		a := &s.Alloc[i]
		id, err := crypto.ParseIdentity(a.Address)
		if err != nil {
			return fmt.Errorf("alloc[%d]: %w", i, err)
		}
		if _, exists := seen[id]; exists {
			return fmt.Errorf("alloc[%d]: duplicate address %q", i, a.Address)
		}
		seen[id] = struct{}{}
		a.identity = id
	}

	handles := make(map[types.Pubkey]struct{}, len(s.TokenAccounts))
	for i := range s.TokenAccounts {
		ta := &s.TokenAccounts[i]
		owner, err := crypto.ParseIdentity(ta.Owner)
		if err != nil {
			return fmt.Errorf("tokenAccounts[%d]: owner: %w", i, err)
		}
		mint, err := ParseMint(ta.Mint)
		if err != nil {
			return fmt.Errorf("tokenAccounts[%d]: %w", i, err)
		}
		if strings.TrimSpace(ta.Seed) == "" {
			return fmt.Errorf("tokenAccounts[%d]: seed must be provided", i)
		}
		ta.owner, ta.mint = owner, mint
		handle := ta.Handle()
		if _, exists := handles[handle]; exists {
			return fmt.Errorf("tokenAccounts[%d]: duplicate holding %s", i, handle)
		}
		handles[handle] = struct{}{}
	}
	return nil
}

func parseGenesisTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid genesisTime %q: %w", value, err)
	}
	return ts.UTC(), nil
}
