package staking

import (
	"math"
	"math/bits"
)

// accScale is the fixed-point scale of the reward-per-unit accumulator.
const accScale = 1_000_000_000_000_000_000

const bpsDenom = 10_000

// Uint128 is the reward-per-unit accumulator. It only grows; checkpoints
// store a copy and pending yield is computed from the difference.
type Uint128 struct {
	Hi uint64 `cramberry:"1" yaml:"hi"`
	Lo uint64 `cramberry:"2" yaml:"lo"`
}

// Add returns a+b, wrapping on overflow.
func (a Uint128) Add(b Uint128) Uint128 {
	lo, carry := bits.Add64(a.Lo, b.Lo, 0)
	hi, _ := bits.Add64(a.Hi, b.Hi, carry)
	return Uint128{Hi: hi, Lo: lo}
}

// Sub returns a-b, wrapping on underflow.
func (a Uint128) Sub(b Uint128) Uint128 {
	lo, borrow := bits.Sub64(a.Lo, b.Lo, 0)
	hi, _ := bits.Sub64(a.Hi, b.Hi, borrow)
	return Uint128{Hi: hi, Lo: lo}
}

// IsZero reports whether a is zero.
func (a Uint128) IsZero() bool { return a.Hi == 0 && a.Lo == 0 }

// perUnit returns amount*accScale/total as a 128-bit value.
func perUnit(amount, total uint64) Uint128 {
	if total == 0 {
		return Uint128{}
	}
	hi, lo := bits.Mul64(amount, accScale)
	qHi := hi / total
	qLo, _ := bits.Div64(hi%total, lo, total)
	return Uint128{Hi: qHi, Lo: qLo}
}

// owed returns balance*delta/accScale, saturating at MaxUint64.
func owed(balance uint64, delta Uint128) uint64 {
	// 64x128 -> 192-bit product w2:w1:w0.
	h0, w0 := bits.Mul64(balance, delta.Lo)
	h1, l1 := bits.Mul64(balance, delta.Hi)
	w1, c := bits.Add64(h0, l1, 0)
	w2 := h1 + c

	if w2 >= accScale {
		return math.MaxUint64
	}
	q1, r := bits.Div64(w2, w1, accScale)
	if q1 != 0 {
		return math.MaxUint64
	}
	q0, _ := bits.Div64(r, w0, accScale)
	return q0
}

// mulDiv returns a*b/d without intermediate overflow, saturating at
// MaxUint64.
func mulDiv(a, b, d uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, d)
	return q
}

// bps applies a basis-point factor to amount.
func bps(amount uint64, factor uint32) uint64 {
	return mulDiv(amount, uint64(factor), bpsDenom)
}
