package types

// ReceiptStatus is the outcome of executing a transaction's messages.
type ReceiptStatus string

const (
	ReceiptSuccess ReceiptStatus = "success"
	ReceiptFailure ReceiptStatus = "failure"
)

// MessageResult captures the per-message outcome within a transaction:
// messages execute in order and a later message can observe an earlier
// one's state mutations, but a failing message aborts the rest of the
// transaction and rolls back every state mutation the transaction made,
// including earlier messages that already succeeded (see
// executor.DeliverTx). Results still record one entry per attempted
// message for diagnostics even though their mutations did not survive.
type MessageResult struct {
	Tag    byte   `json:"tag"`
	Error  string `json:"error,omitempty"`
	Events []Event `json:"events,omitempty"`
}

// Receipt is the durable record of one delivered transaction.
type Receipt struct {
	TxHash   []byte          `json:"txHash"`
	Status   ReceiptStatus   `json:"status"`
	Height   uint64          `json:"height"`
	GasUsed  uint64          `json:"gasUsed"`
	FeePaid  []byte          `json:"feePaid"`
	Results  []MessageResult `json:"results"`
	Logs     []Event         `json:"logs,omitempty"`
}
