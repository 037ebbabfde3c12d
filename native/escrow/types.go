package escrow

import "escrowchain/core/types"

// Status is the lifecycle position of an escrow record. It is derived from
// the stored fields rather than persisted.
type Status uint8

const (
	StatusUninitialized Status = iota
	StatusInitialized
	StatusCompleted
	StatusRefunded
)

func (s Status) String() string {
	switch s {
	case StatusInitialized:
		return "initialized"
	case StatusCompleted:
		return "completed"
	case StatusRefunded:
		return "refunded"
	default:
		return "uninitialized"
	}
}

// Escrow is the state held in an escrow record.
type Escrow struct {
	IsInitialized bool
	Maker         types.Pubkey
	// Taker is nil until the record settles. A refunded record stores the
	// maker here so that it is terminal.
	Taker  *types.Pubkey
	Vault  types.Pubkey
	Amount uint64
}

func (e *Escrow) Status() Status {
	switch {
	case !e.IsInitialized:
		return StatusUninitialized
	case e.Taker == nil:
		return StatusInitialized
	case *e.Taker == e.Maker:
		return StatusRefunded
	default:
		return StatusCompleted
	}
}

// Settled reports whether funds already left the vault.
func (e *Escrow) Settled() bool { return e.Taker != nil }
