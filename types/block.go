package types

// TxOutcome is the result of executing a single transaction.
type TxOutcome struct {
	// Position of this tx in the block (0-indexed).
	Index uint32 `cramberry:"1"`
	// Result code, see dao.ResultCode. 0 = success.
	Code uint32 `cramberry:"2"`
	// Human-readable result info (non-deterministic, for debugging).
	Info string `cramberry:"3"`
	// Operation-defined data (e.g. a new proposal ID).
	Data []byte `cramberry:"4"`
	// Events emitted by this transaction. Empty when Code != 0.
	Events []Event `cramberry:"5"`
}

// OK returns true if the transaction executed successfully.
func (t TxOutcome) OK() bool { return t.Code == 0 }

// BlockOutcome is the output of executing a finalized block.
type BlockOutcome struct {
	// Per-transaction results, in block order.
	TxOutcomes []TxOutcome `cramberry:"1"`
	// Block-level events.
	BlockEvents []Event `cramberry:"2"`
	// New app state root after this block.
	AppHash AppHash `cramberry:"3"`
}

// FinalizedBlock is a decided block delivered to the application
// for execution. Height and Time are the application's clock.
type FinalizedBlock struct {
	Height        uint64    `cramberry:"1"`
	Time          Timestamp `cramberry:"2"`
	Proposer      Address   `cramberry:"3"`
	Txs           []Tx      `cramberry:"4"`
	LastBlockHash Hash      `cramberry:"5"`
}

// CommitResult is returned after the application commits state.
type CommitResult struct {
	// Minimum height the app still needs for queries.
	// 0 = no pruning preference.
	RetainHeight uint64 `cramberry:"1"`
}
