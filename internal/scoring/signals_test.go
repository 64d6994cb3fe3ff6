package scoring

import (
	"reflect"
	"testing"
	"time"

	"github.com/spigell/tender-monitor/internal/fuzzy"
	"github.com/spigell/tender-monitor/internal/keywords"
)

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestDeadlineSignal(t *testing.T) {
	sevenDays := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)

	for _, tt := range []struct {
		name     string
		deadline any
		want     float64
	}{
		{name: "missing", deadline: nil, want: 0},
		{name: "six days ahead", deadline: "2025-03-16", want: 0},
		{name: "seven days ahead", deadline: "2025-03-17", want: 1},
		{name: "far ahead with spaces", deadline: " 2030-01-31 ", want: 1},
		{name: "in the past", deadline: "2024-12-31", want: 0},
		{name: "time value", deadline: sevenDays, want: 1},
		{name: "time pointer", deadline: &sevenDays, want: 1},
		{name: "nil time pointer", deadline: (*time.Time)(nil), want: 0},
		{name: "bytes", deadline: []byte("2025-03-20"), want: 1},
		{name: "malformed", deadline: "next friday", want: 0},
		{name: "empty", deadline: "   ", want: 0},
		{name: "unsupported type", deadline: 20250320, want: 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeadlineSignal(tt.deadline, fixedNow); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDeadlineSignalUsesCalendarDays(t *testing.T) {
	lateEvening := time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)
	if got := DeadlineSignal("2025-03-17", lateEvening); got != 1 {
		t.Fatalf("expected the time of day to be ignored, got %v", got)
	}
}

func TestBudgetSignal(t *testing.T) {
	for _, tt := range []struct {
		name   string
		budget any
		want   float64
	}{
		{name: "missing", budget: nil, want: 0},
		{name: "zero", budget: 0, want: 0},
		{name: "negative", budget: -5, want: 0},
		{name: "positive int", budget: 100, want: 1},
		{name: "positive float", budget: 0.01, want: 1},
		{name: "int64", budget: int64(1_000_000), want: 1},
		{name: "numeric string", budget: " 20000 ", want: 1},
		{name: "zero string", budget: "0", want: 0},
		{name: "bytes", budget: []byte("15.5"), want: 1},
		{name: "not a number", budget: "not a number", want: 0},
		{name: "true", budget: true, want: 1},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := BudgetSignal(tt.budget); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestMarketSignal(t *testing.T) {
	vocab := keywords.DefaultVocabulary()

	for _, tt := range []struct {
		country string
		want    float64
	}{
		{country: "DE", want: 1},
		{country: "de", want: 1},
		{country: " GB ", want: 1},
		{country: "UK", want: 1},
		{country: "ZZ", want: 0},
		{country: "", want: 0},
	} {
		t.Run(tt.country, func(t *testing.T) {
			if got := MarketSignal(tt.country, vocab); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRailContextSignal(t *testing.T) {
	vocab := keywords.DefaultVocabulary()

	for _, tt := range []struct {
		name   string
		tokens []string
		lang   string
		want   float64
	}{
		{name: "two english hits", tokens: []string{"rail", "wheelset", "office"}, lang: "en", want: 1},
		{name: "repeated word counts once", tokens: []string{"depot", "depot"}, lang: "en", want: 0.5},
		{name: "no hits", tokens: []string{"office", "chairs"}, lang: "en", want: 0},
		{name: "german prefix", tokens: []string{"radsatz", "werkstatt"}, lang: "de-at", want: 1},
		{name: "german word in english text", tokens: []string{"bahn"}, lang: "en", want: 0},
		{name: "unknown language uses english", tokens: []string{"bogie"}, lang: "fr", want: 0.5},
		{name: "no tokens", tokens: nil, lang: "en", want: 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := RailContextSignal(tt.tokens, tt.lang, vocab); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestMatchKeywords(t *testing.T) {
	set := keywords.NewSet([]keywords.Entry{
		{Lang: "en", Keyword: "wheelset lathe"},
		{Lang: "en", Keyword: "bogie drop"},
		{Lang: "de", Keyword: "wheelset lathe"},
		{Lang: "de", Keyword: "Unterflurdrehmaschine"},
	})

	tokens := []string{"new", "wheelset", "lathe", "and", "unterflurdrehmaschine"}
	got := MatchKeywords(tokens, set, fuzzy.DefaultThreshold)
	want := []string{"wheelset lathe", "Unterflurdrehmaschine"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if got := MatchKeywords(nil, set, fuzzy.DefaultThreshold); len(got) != 0 {
		t.Fatalf("expected no matches without tokens, got %v", got)
	}

	if got := KeywordSignal(nil); got != 0 {
		t.Fatalf("expected 0 without matches, got %v", got)
	}
	if got := KeywordSignal(want); got != 1 {
		t.Fatalf("expected 1 with matches, got %v", got)
	}
}
