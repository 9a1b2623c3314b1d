package types

// MempoolContext says why CheckTx is being called.
type MempoolContext uint8

const (
	// MempoolFirstSeen is a transaction the engine just received.
	MempoolFirstSeen MempoolContext = 1
	// MempoolRevalidation is a pooled transaction re-checked after a
	// commit.
	MempoolRevalidation MempoolContext = 2
)

// GateVerdict decides whether a transaction enters the mempool. Only the
// envelope is checked here; whether the operation succeeds is decided at
// execution against the state of its block.
type GateVerdict struct {
	// Result code, see dao.ResultCode. 0 = admitted.
	Code uint32 `cramberry:"1"`
	// Rejection reason, for debugging only.
	Info string `cramberry:"2"`
	// Higher goes first within the mempool.
	Priority int64 `cramberry:"3"`
	// Hex sender address, for same-sender ordering and replacement.
	Sender string `cramberry:"4"`
}

// Admit returns the verdict admitting a transaction from sender.
func Admit(sender Address) GateVerdict {
	return GateVerdict{Sender: sender.String()}
}

// Reject returns a rejecting verdict. code must be non-zero.
func Reject(code uint32, err error) GateVerdict {
	return GateVerdict{Code: code, Info: err.Error()}
}

// Accepted reports whether the transaction was admitted.
func (v GateVerdict) Accepted() bool { return v.Code == 0 }
