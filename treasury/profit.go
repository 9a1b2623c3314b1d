package treasury

// Profit shares in percent. The treasury share also absorbs the
// remainder of the integer divisions.
const (
	StakerSharePct    = 70
	TreasurySharePct  = 10
	RestakingSharePct = 20
)

// ProfitSplit is the distribution of a completed project's profit.
type ProfitSplit struct {
	ToStakers   uint64 `cramberry:"1"`
	ToTreasury  uint64 `cramberry:"2"`
	ToRestaking uint64 `cramberry:"3"`
}

// SplitProfit divides profit so that the three shares always sum to it.
func SplitProfit(profit uint64) ProfitSplit {
	stakers := pct(profit, StakerSharePct)
	restaking := pct(profit, RestakingSharePct)
	return ProfitSplit{
		ToStakers:   stakers,
		ToRestaking: restaking,
		ToTreasury:  profit - stakers - restaking,
	}
}

// pct is floor(v*p/100) without overflow.
func pct(v, p uint64) uint64 {
	return v/100*p + v%100*p/100
}
