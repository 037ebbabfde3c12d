package escrow

import (
	"encoding/binary"

	"escrowchain/core/ledger"
	"escrowchain/core/types"
)

// RecordSize is the fixed size of an escrow record.
const RecordSize = 1 + types.PubkeyLength + 1 + types.PubkeyLength + types.PubkeyLength + 8

const (
	offInitialized = 0
	offMaker       = offInitialized + 1
	offTakerTag    = offMaker + types.PubkeyLength
	offTaker       = offTakerTag + 1
	offVault       = offTaker + types.PubkeyLength
	offAmount      = offVault + types.PubkeyLength
)

// Unpack decodes an escrow record. Anything but exactly RecordSize
// well-formed bytes is ErrCorruptRecord. Accepted input re-packs to the same
// bytes.
func Unpack(data []byte) (*Escrow, error) {
	if len(data) != RecordSize {
		return nil, ErrCorruptRecord
	}
	initialized, ok := decodeBool(data[offInitialized])
	if !ok {
		return nil, ErrCorruptRecord
	}
	hasTaker, ok := decodeBool(data[offTakerTag])
	if !ok {
		return nil, ErrCorruptRecord
	}
	e := &Escrow{
		IsInitialized: initialized,
		Amount:        binary.LittleEndian.Uint64(data[offAmount:]),
	}
	copy(e.Maker[:], data[offMaker:offTakerTag])
	copy(e.Vault[:], data[offVault:offAmount])
	var taker types.Pubkey
	copy(taker[:], data[offTaker:offVault])
	if hasTaker {
		e.Taker = &taker
	} else if !taker.IsZero() {
		return nil, ErrCorruptRecord
	}
	return e, nil
}

func decodeBool(b byte) (bool, bool) {
	switch b {
	case 0:
		return false, true
	case 1:
		return true, true
	}
	return false, false
}

// Pack encodes e into dst, which must already be RecordSize bytes.
func (e *Escrow) Pack(dst []byte) error {
	if len(dst) != RecordSize {
		return ErrCorruptRecord
	}
	dst[offInitialized] = encodeBool(e.IsInitialized)
	copy(dst[offMaker:offTakerTag], e.Maker[:])
	if e.Taker != nil {
		dst[offTakerTag] = 1
		copy(dst[offTaker:offVault], e.Taker[:])
	} else {
		dst[offTakerTag] = 0
		clear(dst[offTaker:offVault])
	}
	copy(dst[offVault:offAmount], e.Vault[:])
	binary.LittleEndian.PutUint64(dst[offAmount:], e.Amount)
	return nil
}

func encodeBool(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// loadRecord reads the escrow held by info. The record must belong to
// programID.
func loadRecord(programID types.Pubkey, info *ledger.AccountInfo) (*Escrow, error) {
	if info.Owner() != programID {
		return nil, ErrIllegalOwner
	}
	return Unpack(info.Data())
}

// storeRecord writes e back over the record's existing bytes.
func storeRecord(info *ledger.AccountInfo, e *Escrow) error {
	if info.Account == nil {
		return ErrCorruptRecord
	}
	return e.Pack(info.Account.Data)
}
