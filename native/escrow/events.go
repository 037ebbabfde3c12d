package escrow

import (
	"strconv"

	"escrowchain/core/types"
)

const (
	EventTypeInitialized = "escrow.initialized"
	EventTypeDeposited   = "escrow.deposited"
	EventTypeCompleted   = "escrow.completed"
	EventTypeRefunded    = "escrow.refunded"
)

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

func newEvent(eventType string, record types.Pubkey, e *Escrow) escrowEvent {
	attrs := map[string]string{
		"record": record.String(),
		"maker":  e.Maker.String(),
		"vault":  e.Vault.String(),
		"amount": strconv.FormatUint(e.Amount, 10),
	}
	if e.Taker != nil {
		attrs["taker"] = e.Taker.String()
	}
	return escrowEvent{evt: &types.Event{Type: eventType, Attributes: attrs}}
}

func NewInitializedEvent(record types.Pubkey, e *Escrow) escrowEvent {
	return newEvent(EventTypeInitialized, record, e)
}

func NewDepositedEvent(record types.Pubkey, e *Escrow, source types.Pubkey) escrowEvent {
	evt := newEvent(EventTypeDeposited, record, e)
	evt.evt.Attributes["source"] = source.String()
	return evt
}

func NewCompletedEvent(record types.Pubkey, e *Escrow, destination types.Pubkey) escrowEvent {
	evt := newEvent(EventTypeCompleted, record, e)
	evt.evt.Attributes["destination"] = destination.String()
	return evt
}

func NewRefundedEvent(record types.Pubkey, e *Escrow, destination types.Pubkey) escrowEvent {
	evt := newEvent(EventTypeRefunded, record, e)
	evt.evt.Attributes["destination"] = destination.String()
	return evt
}
