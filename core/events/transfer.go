package events

import (
	"strconv"

	"escrowchain/core/types"
)

const (
	// TypeTransfer is emitted for native balance movements.
	TypeTransfer = "transfer.native"
	// TypeTokenTransfer is emitted when token units move between holdings.
	TypeTokenTransfer = "transfer.token"
)

type Transfer struct {
	From   types.Pubkey
	To     types.Pubkey
	Amount uint64
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	return &types.Event{Type: TypeTransfer, Attributes: map[string]string{
		"from":   e.From.String(),
		"to":     e.To.String(),
		"amount": strconv.FormatUint(e.Amount, 10),
	}}
}

type TokenTransfer struct {
	Mint      types.Pubkey
	From      types.Pubkey
	To        types.Pubkey
	Authority types.Pubkey
	Amount    uint64
}

func (TokenTransfer) EventType() string { return TypeTokenTransfer }

func (e TokenTransfer) Event() *types.Event {
	return &types.Event{Type: TypeTokenTransfer, Attributes: map[string]string{
		"mint":      e.Mint.String(),
		"from":      e.From.String(),
		"to":        e.To.String(),
		"authority": e.Authority.String(),
		"amount":    strconv.FormatUint(e.Amount, 10),
	}}
}
