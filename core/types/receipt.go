package types

import "github.com/ethereum/go-ethereum/common"

// ReceiptStatus reports whether a transaction's effects were committed.
type ReceiptStatus uint8

const (
	ReceiptFailed ReceiptStatus = iota
	ReceiptSuccess
)

func (s ReceiptStatus) String() string {
	if s == ReceiptSuccess {
		return "success"
	}
	return "failed"
}

// Receipt is the durable outcome of an executed transaction. Failed
// transactions keep their receipt but none of their state changes or events.
type Receipt struct {
	TxHash      common.Hash   `json:"txHash"`
	Status      ReceiptStatus `json:"status"`
	Code        uint32        `json:"code,omitempty"`
	Error       string        `json:"error,omitempty"`
	Instruction int           `json:"instruction,omitempty"`
	Events      []Event       `json:"events"`
}
