package tender

import (
	"fmt"
	"strings"
	"time"
)

const keywordSeparator = ", "

// FilteredResult is a scored record that passed the relevance threshold.
type FilteredResult struct {
	ID              int64     `json:"id,omitempty"`
	RawID           int64     `json:"raw_id"`
	RunID           string    `json:"run_id,omitempty"`
	Score           int       `json:"relevance_score"`
	MatchedKeywords []string  `json:"matched_keywords"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
}

// KeywordsString returns the matched keywords in their stored form.
func (f *FilteredResult) KeywordsString() string {
	return JoinKeywords(f.MatchedKeywords)
}

// Label is a one-line description used in interactive lists.
func (f *FilteredResult) Label(rec *Record) string {
	title := ""
	if rec != nil {
		title = rec.Title
	}
	return fmt.Sprintf("%d [%d] %s / %s", f.ID, f.Score, title, f.KeywordsString())
}

func JoinKeywords(keywords []string) string {
	return strings.Join(keywords, keywordSeparator)
}

// SplitKeywords parses the stored form back into a list. An empty string
// yields no keywords.
func SplitKeywords(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, keywordSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Results is an ordered list of filtered results.
type Results struct {
	Items []*FilteredResult
}

func (r *Results) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Items)
}

func (r *Results) FindByID(id int64) *FilteredResult {
	for _, res := range r.Items {
		if res.ID == id {
			return res
		}
	}
	return nil
}

// RawIDs returns the raw record ids in result order.
func (r *Results) RawIDs() []int64 {
	if r == nil {
		return nil
	}
	ids := make([]int64, 0, len(r.Items))
	for _, res := range r.Items {
		ids = append(ids, res.RawID)
	}
	return ids
}
