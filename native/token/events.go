package token

import (
	"strconv"

	"escrowchain/core/types"
)

const (
	EventTypeApproved = "token.approved"
	EventTypeRevoked  = "token.revoked"
)

type approvedEvent struct {
	account  types.Pubkey
	owner    types.Pubkey
	delegate types.Pubkey
	amount   uint64
}

func (approvedEvent) EventType() string { return EventTypeApproved }

func (e approvedEvent) Event() *types.Event {
	return &types.Event{Type: EventTypeApproved, Attributes: map[string]string{
		"account":  e.account.String(),
		"owner":    e.owner.String(),
		"delegate": e.delegate.String(),
		"amount":   strconv.FormatUint(e.amount, 10),
	}}
}

type revokedEvent struct {
	account types.Pubkey
	owner   types.Pubkey
}

func (revokedEvent) EventType() string { return EventTypeRevoked }

func (e revokedEvent) Event() *types.Event {
	return &types.Event{Type: EventTypeRevoked, Attributes: map[string]string{
		"account": e.account.String(),
		"owner":   e.owner.String(),
	}}
}
