package types

// Clock is the time source every deadline is compared against. Within a
// block it is fixed; across blocks it never goes backwards.
type Clock interface {
	// Height is the sequence number of the block being executed.
	Height() uint64
	// Now is the block time in unix seconds.
	Now() uint64
}

// BlockClock reads the clock from a finalized block header.
type BlockClock struct {
	BlockHeight uint64
	BlockTime   uint64
}

// ClockFor returns the clock of a finalized block.
func ClockFor(b FinalizedBlock) BlockClock {
	t := b.Time.Unix()
	if t < 0 {
		t = 0
	}
	return BlockClock{BlockHeight: b.Height, BlockTime: uint64(t)}
}

func (c BlockClock) Height() uint64 { return c.BlockHeight }
func (c BlockClock) Now() uint64    { return c.BlockTime }

// Call is the context an engine operation runs in: who invoked it, when,
// and where its events go.
type Call struct {
	Caller Address
	Clock  Clock
	Events *EventLog
}

// As returns a copy of c acting as addr. Engines use it to invoke other
// engines from their module account.
func (c Call) As(addr Address) Call {
	c.Caller = addr
	return c
}

// Now is shorthand for c.Clock.Now().
func (c Call) Now() uint64 { return c.Clock.Now() }

// Height is shorthand for c.Clock.Height().
func (c Call) Height() uint64 { return c.Clock.Height() }

// Emit records an event on the call's log.
func (c Call) Emit(kind string, attrs ...EventAttribute) { c.Events.Emit(kind, attrs...) }
