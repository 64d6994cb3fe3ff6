package scoring

import "math"

// Signal weights. They sum to 100 so a score never leaves [0, 100].
const (
	KeywordWeight  = 40
	RailWeight     = 30
	MarketWeight   = 15
	DeadlineWeight = 10
	BudgetWeight   = 5
)

// Compose combines the five signals into an integer score, rounding half to
// even.
func Compose(keyword, rail, market, deadline, budget float64) int {
	s := KeywordWeight*keyword +
		RailWeight*rail +
		MarketWeight*market +
		DeadlineWeight*deadline +
		BudgetWeight*budget
	return int(math.RoundToEven(s))
}

// Score composes s.
func (s Signals) Score() int {
	return Compose(s.Keyword, s.Rail, s.Market, s.Deadline, s.Budget)
}
