package ledger

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"escrowchain/core/types"
)

const (
	// RentDataSize is the packed size of the rent-context record.
	RentDataSize = 16
	// AccountStorageOverhead is charged for every record on top of its data.
	AccountStorageOverhead = 128
)

// Rent is the storage-cost model. A record is rent-solvent when it holds
// enough balance to pay for its storage for ExemptionYears.
type Rent struct {
	BalancePerByteYear uint64 `yaml:"balancePerByteYear" json:"balancePerByteYear"`
	ExemptionYears     uint64 `yaml:"exemptionYears" json:"exemptionYears"`
}

// DefaultRent is used when genesis does not configure rent.
var DefaultRent = Rent{BalancePerByteYear: 3480, ExemptionYears: 2}

// MinimumBalance returns the balance a record of dataLen bytes must hold to
// stay live indefinitely. The result saturates instead of overflowing.
func (r Rent) MinimumBalance(dataLen int) uint64 {
	size := uint64(dataLen) + AccountStorageOverhead
	hi, perByte := bits.Mul64(size, r.BalancePerByteYear)
	if hi != 0 {
		return ^uint64(0)
	}
	hi, total := bits.Mul64(perByte, r.ExemptionYears)
	if hi != 0 {
		return ^uint64(0)
	}
	return total
}

func (r Rent) IsExempt(balance uint64, dataLen int) bool {
	return balance >= r.MinimumBalance(dataLen)
}

func (r Rent) Pack() []byte {
	out := make([]byte, RentDataSize)
	binary.LittleEndian.PutUint64(out[0:8], r.BalancePerByteYear)
	binary.LittleEndian.PutUint64(out[8:16], r.ExemptionYears)
	return out
}

func UnpackRent(data []byte) (Rent, error) {
	if len(data) != RentDataSize {
		return Rent{}, fmt.Errorf("%w: rent data has %d bytes", ErrInvalidSysvar, len(data))
	}
	return Rent{
		BalancePerByteYear: binary.LittleEndian.Uint64(data[0:8]),
		ExemptionYears:     binary.LittleEndian.Uint64(data[8:16]),
	}, nil
}

// RentFromAccount reads the rent model from the rent-context record passed to
// an instruction. The account must be the runtime's rent sysvar.
func RentFromAccount(info *AccountInfo) (Rent, error) {
	if info == nil || info.Key != types.RentSysvarID || info.Owner() != types.SysvarOwnerID {
		return Rent{}, ErrInvalidSysvar
	}
	return UnpackRent(info.Data())
}

// NewRentAccount returns the record stored at types.RentSysvarID.
func NewRentAccount(r Rent) *types.Account {
	return &types.Account{Owner: types.SysvarOwnerID, Data: r.Pack()}
}
