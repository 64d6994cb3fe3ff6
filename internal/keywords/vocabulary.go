package keywords

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var defaultVocabulary []byte

const germanLang = "de"

// Vocabulary holds the rail context words and the target markets used by the
// scoring signals. It is immutable once built.
type Vocabulary struct {
	context map[string][]string
	markets map[string]struct{}
}

type vocabularyFile struct {
	Context map[string][]string `yaml:"context"`
	Markets []string            `yaml:"markets"`
}

var defaultOnce = sync.OnceValue(func() *Vocabulary {
	v, err := ParseVocabulary(defaultVocabulary)
	if err != nil {
		panic(fmt.Sprintf("embedded vocabulary: %v", err))
	}
	return v
})

// DefaultVocabulary returns the built-in vocabulary.
func DefaultVocabulary() *Vocabulary {
	return defaultOnce()
}

// LoadVocabulary reads a YAML vocabulary file. An empty path yields the
// built-in vocabulary.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultVocabulary(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vocabulary file %q: %w", path, err)
	}

	return ParseVocabulary(data)
}

// ParseVocabulary decodes a YAML vocabulary document.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var file vocabularyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}

	v := &Vocabulary{
		context: make(map[string][]string, len(file.Context)),
		markets: make(map[string]struct{}, len(file.Markets)),
	}

	for lang, words := range file.Context {
		lang = strings.ToLower(strings.TrimSpace(lang))
		seen := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w == "" {
				continue
			}
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			v.context[lang] = append(v.context[lang], w)
		}
	}

	for _, code := range file.Markets {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		v.markets[code] = struct{}{}
	}

	return v, nil
}

// ContextWords returns the German list for languages starting with "de" and
// the English list otherwise.
func (v *Vocabulary) ContextWords(lang string) []string {
	if v == nil {
		return nil
	}
	key := defaultLang
	if strings.HasPrefix(lang, germanLang) {
		key = germanLang
	}
	return append([]string(nil), v.context[key]...)
}

// IsTargetMarket reports whether the country code is a target market.
// Comparison is case-insensitive.
func (v *Vocabulary) IsTargetMarket(country string) bool {
	if v == nil {
		return false
	}
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		return false
	}
	_, ok := v.markets[country]
	return ok
}

// Markets returns the number of configured target markets.
func (v *Vocabulary) Markets() int {
	if v == nil {
		return 0
	}
	return len(v.markets)
}
