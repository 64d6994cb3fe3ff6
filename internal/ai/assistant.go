package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/spigell/tender-monitor/internal/tender"
)

// Assessment is a reviewer's opinion about a filtered tender.
type Assessment struct {
	Relevant   bool
	Confidence float64
	Note       string
	Raw        string
}

// Reviewer annotates filtered results for the human reviewer.
type Reviewer interface {
	Review(ctx context.Context, rec *tender.Record, res *tender.FilteredResult) (*Assessment, error)
}

// Notes renders the assessment in the form stored on a filtered result.
func (a *Assessment) Notes() string {
	if a == nil {
		return ""
	}
	verdict := "not relevant"
	if a.Relevant {
		verdict = "relevant"
	}
	note := strings.TrimSpace(a.Note)
	if note == "" {
		return fmt.Sprintf("%s (%.2f)", verdict, a.Confidence)
	}
	return fmt.Sprintf("%s (%.2f): %s", verdict, a.Confidence, note)
}
