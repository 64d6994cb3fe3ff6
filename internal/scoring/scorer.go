package scoring

import (
	"strings"
	"time"

	"github.com/spigell/tender-monitor/internal/fuzzy"
	"github.com/spigell/tender-monitor/internal/keywords"
	"github.com/spigell/tender-monitor/internal/nlp"
	"github.com/spigell/tender-monitor/internal/tender"
)

const defaultLanguage = "en"

// Result is the outcome of scoring a single record.
type Result struct {
	Score    int      `json:"score"`
	Matched  []string `json:"matched_keywords"`
	Signals  Signals  `json:"signals"`
	Language string   `json:"language"`
}

// Scorer computes relevance scores. It holds no per-run state and is safe for
// concurrent use when its tokenizer is.
type Scorer struct {
	tokenizer nlp.Tokenizer
	vocab     *keywords.Vocabulary
	now       func() time.Time
}

// NewScorer returns a scorer. A nil tokenizer means nlp.Fallback, a nil
// vocabulary the built-in one and a nil clock time.Now.
func NewScorer(tokenizer nlp.Tokenizer, vocab *keywords.Vocabulary, now func() time.Time) *Scorer {
	if tokenizer == nil {
		tokenizer = nlp.Fallback{}
	}
	if vocab == nil {
		vocab = keywords.DefaultVocabulary()
	}
	if now == nil {
		now = time.Now
	}
	return &Scorer{tokenizer: tokenizer, vocab: vocab, now: now}
}

// ResolveLanguage lowercases the record language, defaulting to "en".
func ResolveLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return defaultLanguage
	}
	return lang
}

// Score evaluates rec against the keyword set.
func (s *Scorer) Score(rec *tender.Record, set *keywords.Set) Result {
	lang := ResolveLanguage(rec.Language)
	tokens := s.tokenizer.Tokenize(rec.Text(), lang)

	matched := MatchKeywords(tokens, set, fuzzy.DefaultThreshold)

	signals := Signals{
		Keyword:  KeywordSignal(matched),
		Rail:     RailContextSignal(tokens, lang, s.vocab),
		Market:   MarketSignal(rec.Country, s.vocab),
		Deadline: DeadlineSignal(rec.Deadline, s.now()),
		Budget:   BudgetSignal(rec.Budget),
	}

	return Result{
		Score:    signals.Score(),
		Matched:  matched,
		Signals:  signals,
		Language: lang,
	}
}
