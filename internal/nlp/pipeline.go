package nlp

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// Config points at the tokenizer models and optional lemma tables per language.
type Config struct {
	Models map[string]string `mapstructure:"models"`
	Lemmas map[string]string `mapstructure:"lemmas"`
}

// New loads the configured models and returns an Advanced tokenizer when at
// least one of them loads. Otherwise Fallback is returned.
func New(cfg Config, logger *zap.Logger) Tokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}

	pipelines := make(map[string]Pipeline)
	for _, lang := range []string{"en", "de"} {
		path := strings.TrimSpace(cfg.Models[lang])
		if path == "" {
			continue
		}

		p, err := loadPipeline(path, strings.TrimSpace(cfg.Lemmas[lang]))
		if err != nil {
			logger.Warn("tokenizer model is not available",
				zap.String("lang", lang),
				zap.String("path", path),
				zap.Error(err),
			)
			continue
		}

		pipelines[lang] = p
		logger.Debug("tokenizer model loaded", zap.String("lang", lang), zap.String("path", path))
	}

	if len(pipelines) == 0 {
		logger.Info("using fallback tokenizer")
		return Fallback{}
	}

	adv := NewAdvanced(pipelines, logger)
	logger.Info("advanced tokenizer ready", zap.Int("languages", adv.Languages()))

	return adv
}

type hfPipeline struct {
	mu     sync.Mutex
	tk     *tokenizer.Tokenizer
	lemmas map[string]string
}

func loadPipeline(modelPath, lemmaPath string) (p *hfPipeline, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = fmt.Errorf("loading tokenizer %q: %v", modelPath, r)
		}
	}()

	if _, err := os.Stat(modelPath); err != nil {
		return nil, err
	}

	tk, err := pretrained.FromFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer %q: %w", modelPath, err)
	}

	lemmas := map[string]string{}
	if lemmaPath != "" {
		lemmas, err = LoadLemmas(lemmaPath)
		if err != nil {
			return nil, err
		}
	}

	return &hfPipeline{tk: tk, lemmas: lemmas}, nil
}

func (p *hfPipeline) Analyze(text string) ([]Token, error) {
	text = strings.TrimSpace(norm.NFKC.String(text))
	if text == "" {
		return nil, nil
	}

	p.mu.Lock()
	enc, err := p.tk.EncodeSingle(text, false)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	if enc == nil {
		return nil, errors.New("encode: empty encoding")
	}

	words := surfaces(text, enc.Tokens, enc.Words, enc.Offsets)
	tokens := make([]Token, 0, len(words))
	for _, w := range words {
		tokens = append(tokens, Token{Text: w, Lemma: p.lemmas[strings.ToLower(w)]})
	}

	return tokens, nil
}

// surfaces returns the words of an encoding as they appear in text. Each
// word is sliced from text by the offsets of its first and last piece, so
// byte-level pieces never leak into the result. Pieces without usable offsets
// are glued together instead.
func surfaces(text string, tokens []string, words []int, offsets [][]int) []string {
	slice := offsetSlicer(text, offsets, len(tokens))

	out := make([]string, 0, len(tokens))
	for _, g := range groupPieces(tokens, words) {
		if slice != nil {
			if s, ok := slice(offsets[g.first][0], offsets[g.last][1]); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
				continue
			}
		}
		out = append(out, gluePieces(tokens[g.first:g.last+1]))
	}

	return out
}

// offsetSlicer returns a func cutting text by encoding offsets, or nil when
// offsets do not cover every token. Offsets count bytes when they reach past
// the rune count or end exactly at the byte length, and runes otherwise.
func offsetSlicer(text string, offsets [][]int, n int) func(start, end int) (string, bool) {
	if n == 0 || len(offsets) != n {
		return nil
	}

	maxEnd := 0
	for _, o := range offsets {
		if len(o) != 2 {
			return nil
		}
		if o[1] > maxEnd {
			maxEnd = o[1]
		}
	}

	runeCount := utf8.RuneCountInString(text)
	if maxEnd > runeCount || maxEnd == len(text) {
		return func(start, end int) (string, bool) {
			if start < 0 || start > end || end > len(text) {
				return "", false
			}
			s := text[start:end]
			return s, utf8.ValidString(s)
		}
	}

	runes := []rune(text)
	return func(start, end int) (string, bool) {
		if start < 0 || start > end || end > len(runes) {
			return "", false
		}
		return string(runes[start:end]), true
	}
}

// pieceGroup spans the token indices of one word.
type pieceGroup struct {
	first, last int
}

// groupPieces groups subword pieces into words. words holds the word index
// of every token and is ignored when its length does not match.
func groupPieces(tokens []string, words []int) []pieceGroup {
	useWords := len(words) == len(tokens)

	out := make([]pieceGroup, 0, len(tokens))
	last := -1
	for i, tok := range tokens {
		continuation := strings.HasPrefix(tok, "##")
		wordStart := strings.HasPrefix(tok, "Ġ") || strings.HasPrefix(tok, "▁")

		idx := -1
		if useWords {
			idx = words[i]
		}

		if trimMarkers(tok) == "" {
			last = idx
			continue
		}

		sameWord := continuation
		if useWords {
			sameWord = idx >= 0 && idx == last && !wordStart
		}

		if sameWord && len(out) > 0 {
			out[len(out)-1].last = i
		} else {
			out = append(out, pieceGroup{first: i, last: i})
		}
		last = idx
	}

	return out
}

func gluePieces(pieces []string) string {
	var b strings.Builder
	for _, p := range pieces {
		b.WriteString(trimMarkers(p))
	}
	return b.String()
}

func trimMarkers(tok string) string {
	return strings.TrimLeft(strings.TrimPrefix(tok, "##"), "Ġ▁")
}

// LoadLemmas reads a CSV lemma table with "form" and "lemma" columns.
func LoadLemmas(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening lemma table: %w", err)
	}
	defer file.Close()

	return parseLemmas(file)
}

func parseLemmas(r io.Reader) (map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	lemmas := make(map[string]string)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return lemmas, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse lemma table: %w", err)
	}

	formIdx, lemmaIdx := 0, 1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case "form":
			formIdx = i
		case "lemma":
			lemmaIdx = i
		}
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse lemma table: %w", err)
		}
		if formIdx >= len(row) || lemmaIdx >= len(row) {
			continue
		}

		form := strings.ToLower(strings.TrimSpace(row[formIdx]))
		if form == "" {
			continue
		}
		lemmas[form] = strings.TrimSpace(row[lemmaIdx])
	}

	return lemmas, nil
}
