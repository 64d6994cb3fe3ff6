package keywords

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const (
	langColumn    = "lang"
	keywordColumn = "keyword"
	defaultLang   = "en"
)

// ErrNotFound is returned when the keyword resource cannot be opened.
var ErrNotFound = errors.New("keyword resource not found")

// Entry is a single keyword row.
type Entry struct {
	Lang    string
	Keyword string
}

// Set is an immutable mapping of language code to ordered keyword phrases.
// Languages are kept in the order they were first seen.
type Set struct {
	langs  []string
	byLang map[string][]string
	size   int
}

// NewSet builds a set from entries, applying the same rules as Load.
func NewSet(entries []Entry) *Set {
	s := &Set{byLang: make(map[string][]string)}
	for _, e := range entries {
		s.add(e.Lang, e.Keyword)
	}
	return s
}

func (s *Set) add(lang, keyword string) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return
	}

	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		lang = defaultLang
	}

	if _, ok := s.byLang[lang]; !ok {
		s.langs = append(s.langs, lang)
	}
	s.byLang[lang] = append(s.byLang[lang], keyword)
	s.size++
}

// Languages returns the languages in first-seen order.
func (s *Set) Languages() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.langs...)
}

// Keywords returns a copy of the phrases configured for lang.
func (s *Set) Keywords(lang string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.byLang[lang]...)
}

// Len returns the total number of phrases across all languages.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return s.size
}

// Each calls fn for every phrase, languages first-seen order, phrases in row order.
func (s *Set) Each(fn func(lang, keyword string)) {
	if s == nil {
		return
	}
	for _, lang := range s.langs {
		for _, kw := range s.byLang[lang] {
			fn(lang, kw)
		}
	}
}

// Load reads a CSV keyword resource with "lang" and "keyword" header columns.
func Load(path string) (*Set, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	defer file.Close()

	set, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parse keywords %q: %w", path, err)
	}

	return set, nil
}

// Parse reads keyword rows from r. Rows with a blank keyword are skipped and a
// blank language defaults to "en".
func Parse(r io.Reader) (*Set, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	set := &Set{byLang: make(map[string][]string)}

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return set, nil
	}
	if err != nil {
		return nil, err
	}

	langIdx, kwIdx := -1, -1
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		switch name {
		case langColumn:
			langIdx = i
		case keywordColumn:
			kwIdx = i
		}
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		set.add(cell(row, langIdx), cell(row, kwIdx))
	}

	return set, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// Cache keeps loaded keyword sets per path for the lifetime of the process.
type Cache struct {
	mu   sync.Mutex
	sets map[string]*Set
	load func(string) (*Set, error)
}

// NewCache returns an empty cache backed by Load.
func NewCache() *Cache {
	return &Cache{sets: make(map[string]*Set), load: Load}
}

// Get returns the cached set for path, loading it on first use.
func (c *Cache) Get(path string) (*Set, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if set, ok := c.sets[path]; ok {
		return set, nil
	}

	set, err := c.load(path)
	if err != nil {
		return nil, err
	}
	c.sets[path] = set
	return set, nil
}

// Reload loads path again and replaces the cached set. The previous set stays
// cached when loading fails.
func (c *Cache) Reload(path string) (*Set, error) {
	set, err := c.load(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.sets[path] = set
	c.mu.Unlock()

	return set, nil
}
