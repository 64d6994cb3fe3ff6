package nlp

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var wordPattern = regexp.MustCompile(`[A-Za-zÄÖÜäöüß-]+`)

// Tokenizer turns free text into lowercase tokens. Implementations never fail:
// empty text yields no tokens.
type Tokenizer interface {
	Tokenize(text, lang string) []string
}

// Token is a single surface form with its lemma as produced by a Pipeline.
type Token struct {
	Text  string
	Lemma string
}

// Pipeline is a language-specific analysis pipeline.
type Pipeline interface {
	Analyze(text string) ([]Token, error)
}

// Fallback splits text into maximal runs of Latin letters, German umlauts,
// sharp s and hyphens.
type Fallback struct{}

func (Fallback) Tokenize(text, _ string) []string {
	if text == "" {
		return nil
	}
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// Advanced runs a per-language Pipeline for "en*" and "de*" hints and degrades
// to Fallback for anything it cannot handle.
type Advanced struct {
	pipelines map[string]Pipeline
	fallback  Fallback
	logger    *zap.Logger
}

// NewAdvanced builds an Advanced tokenizer over the given pipelines keyed by
// "en" or "de".
func NewAdvanced(pipelines map[string]Pipeline, logger *zap.Logger) *Advanced {
	if logger == nil {
		logger = zap.NewNop()
	}

	selected := make(map[string]Pipeline, len(pipelines))
	for lang, p := range pipelines {
		if p == nil {
			continue
		}
		selected[strings.ToLower(strings.TrimSpace(lang))] = p
	}

	return &Advanced{pipelines: selected, logger: logger}
}

// Languages returns the number of languages served by a pipeline.
func (a *Advanced) Languages() int {
	return len(a.pipelines)
}

func (a *Advanced) Tokenize(text, lang string) []string {
	if text == "" {
		return nil
	}

	pipeline := a.pipelineFor(lang)
	if pipeline == nil {
		return a.fallback.Tokenize(text, lang)
	}

	tokens, err := a.analyze(pipeline, text)
	if err != nil {
		a.logger.Debug("advanced tokenizer failed, using fallback",
			zap.String("lang", lang),
			zap.Error(err),
		)
		return a.fallback.Tokenize(text, lang)
	}

	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		lemma := strings.ToLower(strings.TrimSpace(tok.Lemma))
		if lemma == "" {
			lemma = strings.ToLower(tok.Text)
		}
		if lemma == "" {
			continue
		}
		out = append(out, lemma)
	}

	return out
}

func (a *Advanced) pipelineFor(lang string) Pipeline {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		lang = "en"
	}

	switch {
	case strings.HasPrefix(lang, "en"):
		return a.pipelines["en"]
	case strings.HasPrefix(lang, "de"):
		return a.pipelines["de"]
	default:
		return nil
	}
}

func (a *Advanced) analyze(p Pipeline, text string) (tokens []Token, err error) {
	defer func() {
		if r := recover(); r != nil {
			tokens = nil
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	return p.Analyze(text)
}
