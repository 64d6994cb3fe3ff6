package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/spigell/tender-monitor/internal/fuzzy"
	"github.com/spigell/tender-monitor/internal/keywords"
)

// DeadlineLeadDays is the minimum number of days between today and the
// deadline for a record to be actionable.
const DeadlineLeadDays = 7

// Signals holds the five normalized relevance signals of a record.
type Signals struct {
	Keyword  float64 `json:"keyword"`
	Rail     float64 `json:"rail_context"`
	Market   float64 `json:"market"`
	Deadline float64 `json:"deadline"`
	Budget   float64 `json:"budget"`
}

// MatchKeywords returns the keywords that fuzzy-match tokens, deduplicated in
// first-seen order across languages.
func MatchKeywords(tokens []string, set *keywords.Set, threshold float64) []string {
	matched := make([]string, 0)
	seen := make(map[string]struct{})

	set.Each(func(_ string, kw string) {
		if _, ok := seen[kw]; ok {
			return
		}
		if fuzzy.Contains(tokens, kw, threshold) {
			seen[kw] = struct{}{}
			matched = append(matched, kw)
		}
	})

	return matched
}

// KeywordSignal is 1 when at least one keyword matched.
func KeywordSignal(matched []string) float64 {
	if len(matched) > 0 {
		return 1.0
	}
	return 0.0
}

// RailContextSignal counts the distinct context words present in tokens: two
// or more give 1, one gives 0.5.
func RailContextSignal(tokens []string, lang string, vocab *keywords.Vocabulary) float64 {
	present := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		present[tok] = struct{}{}
	}

	hits := 0
	for _, word := range vocab.ContextWords(lang) {
		if _, ok := present[word]; ok {
			hits++
		}
	}

	switch {
	case hits >= 2:
		return 1.0
	case hits == 1:
		return 0.5
	default:
		return 0.0
	}
}

// MarketSignal is 1 for target-market countries.
func MarketSignal(country string, vocab *keywords.Vocabulary) float64 {
	if vocab.IsTargetMarket(country) {
		return 1.0
	}
	return 0.0
}

// DeadlineSignal is 1 when the deadline date is at least DeadlineLeadDays
// after today in UTC. Missing or malformed deadlines give 0.
func DeadlineSignal(deadline any, now time.Time) float64 {
	date, ok := deadlineDate(deadline)
	if !ok {
		return 0.0
	}

	today := now.UTC()
	earliest := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, DeadlineLeadDays)

	if !date.Before(earliest) {
		return 1.0
	}
	return 0.0
}

// deadlineDate reduces a deadline to its calendar date at UTC midnight.
func deadlineDate(v any) (time.Time, bool) {
	var t time.Time
	switch val := v.(type) {
	case time.Time:
		t = val
	case *time.Time:
		if val == nil {
			return time.Time{}, false
		}
		t = *val
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, false
		}
		parsed, err := cast.ToTimeE(s)
		if err != nil {
			return time.Time{}, false
		}
		t = parsed
	case []byte:
		return deadlineDate(string(val))
	default:
		return time.Time{}, false
	}

	if t.IsZero() {
		return time.Time{}, false
	}

	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

// BudgetSignal is 1 when the budget coerces to a number strictly above zero.
func BudgetSignal(budget any) float64 {
	if s, ok := budget.(string); ok {
		budget = strings.TrimSpace(s)
	}
	if b, ok := budget.([]byte); ok {
		budget = strings.TrimSpace(string(b))
	}

	amount, err := cast.ToFloat64E(budget)
	if err != nil || math.IsNaN(amount) {
		return 0.0
	}
	if amount > 0 {
		return 1.0
	}
	return 0.0
}
