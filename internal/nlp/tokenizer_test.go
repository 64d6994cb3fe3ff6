package nlp

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubPipeline struct {
	tokens []Token
	err    error
	panics bool
	calls  int
}

func (s *stubPipeline) Analyze(string) ([]Token, error) {
	s.calls++
	if s.panics {
		panic("model crashed")
	}
	return s.tokens, s.err
}

func TestFallbackTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "empty", input: "", want: nil},
		{name: "no letters", input: "42 / 7.5", want: nil},
		{
			name:  "english",
			input: "Underfloor wheel lathe, for railway depot!",
			want:  []string{"underfloor", "wheel", "lathe", "for", "railway", "depot"},
		},
		{
			name:  "german umlauts and hyphen",
			input: "Unterflur-Radsatzdrehmaschine für Werkstätten (ÖBB)",
			want:  []string{"unterflur-radsatzdrehmaschine", "für", "werkstätten", "öbb"},
		},
		{
			name:  "digits split words",
			input: "UWL2000 Lathe",
			want:  []string{"uwl", "lathe"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Fallback{}.Tokenize(tt.input, "en")
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestAdvancedUsesPipelineByLanguage(t *testing.T) {
	en := &stubPipeline{tokens: []Token{
		{Text: "Wheels", Lemma: "Wheel"},
		{Text: "Depots", Lemma: ""},
		{Text: "", Lemma: " "},
	}}
	de := &stubPipeline{tokens: []Token{{Text: "Gleise", Lemma: "gleis"}}}

	adv := NewAdvanced(map[string]Pipeline{"en": en, "DE": de, "fr": nil}, zap.NewNop())

	if adv.Languages() != 2 {
		t.Fatalf("expected 2 languages, got %d", adv.Languages())
	}

	if got := adv.Tokenize("Wheels Depots", "en-GB"); !reflect.DeepEqual(got, []string{"wheel", "depots"}) {
		t.Fatalf("unexpected en tokens: %v", got)
	}

	if got := adv.Tokenize("Gleise", "de"); !reflect.DeepEqual(got, []string{"gleis"}) {
		t.Fatalf("unexpected de tokens: %v", got)
	}

	if got := adv.Tokenize("Wheels", ""); !reflect.DeepEqual(got, []string{"wheel", "depots"}) {
		t.Fatalf("expected empty hint to use en pipeline, got %v", got)
	}

	if got := adv.Tokenize("Rail Bogie", "fr"); !reflect.DeepEqual(got, []string{"rail", "bogie"}) {
		t.Fatalf("expected fallback for fr, got %v", got)
	}

	if got := adv.Tokenize("", "en"); len(got) != 0 {
		t.Fatalf("expected no tokens for empty text, got %v", got)
	}

	if en.calls != 2 || de.calls != 1 {
		t.Fatalf("unexpected pipeline calls: en=%d de=%d", en.calls, de.calls)
	}
}

func TestAdvancedFallsBackOnFailure(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)

	adv := NewAdvanced(map[string]Pipeline{
		"en": &stubPipeline{err: errors.New("broken model")},
		"de": &stubPipeline{panics: true},
	}, zap.New(core))

	if got := adv.Tokenize("Wheel lathe", "en"); !reflect.DeepEqual(got, []string{"wheel", "lathe"}) {
		t.Fatalf("expected fallback tokens on error, got %v", got)
	}

	if got := adv.Tokenize("Radsatz Drehmaschine", "de"); !reflect.DeepEqual(got, []string{"radsatz", "drehmaschine"}) {
		t.Fatalf("expected fallback tokens on panic, got %v", got)
	}

	if observed.FilterMessage("advanced tokenizer failed, using fallback").Len() != 2 {
		t.Fatalf("expected two fallback log entries, got %d", observed.Len())
	}
}

func TestNewWithoutModelsReturnsFallback(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)

	tok := New(Config{Models: map[string]string{
		"en": filepath.Join(t.TempDir(), "missing.json"),
	}}, zap.New(core))

	if _, ok := tok.(Fallback); !ok {
		t.Fatalf("expected fallback tokenizer, got %T", tok)
	}

	if observed.FilterMessage("tokenizer model is not available").Len() != 1 {
		t.Fatal("expected missing model warning")
	}

	if _, ok := New(Config{}, nil).(Fallback); !ok {
		t.Fatal("expected fallback tokenizer for empty config")
	}
}

func TestNewWithBrokenModelReturnsFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokenizer.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	tok := New(Config{Models: map[string]string{"de": path}}, zap.NewNop())
	if _, ok := tok.(Fallback); !ok {
		t.Fatalf("expected fallback tokenizer, got %T", tok)
	}
}

func TestNewLoadsWordLevelModel(t *testing.T) {
	dir := t.TempDir()

	model := `{
  "version": "1.0",
  "truncation": null,
  "padding": null,
  "added_tokens": [],
  "normalizer": {"type": "Lowercase"},
  "pre_tokenizer": {"type": "Whitespace"},
  "post_processor": null,
  "decoder": null,
  "model": {
    "type": "WordLevel",
    "vocab": {"[UNK]": 0, "wheels": 1, "wheel": 2, "lathe": 3, ",": 4, "railway": 5, "depots": 6, "depot": 7, "unterflur": 8},
    "unk_token": "[UNK]"
  }
}`
	modelPath := filepath.Join(dir, "tokenizer.json")
	if err := os.WriteFile(modelPath, []byte(model), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	lemmaPath := filepath.Join(dir, "lemmas.csv")
	if err := os.WriteFile(lemmaPath, []byte("form,lemma\nwheels,wheel\ndepots,depot\n"), 0o644); err != nil {
		t.Fatalf("write lemmas: %v", err)
	}

	core, observed := observer.New(zapcore.InfoLevel)
	tok := New(Config{
		Models: map[string]string{"en": modelPath},
		Lemmas: map[string]string{"en": lemmaPath},
	}, zap.New(core))

	adv, ok := tok.(*Advanced)
	if !ok {
		t.Fatalf("expected advanced tokenizer, got %T", tok)
	}

	ready := observed.FilterMessage("advanced tokenizer ready").All()
	if len(ready) != 1 || ready[0].ContextMap()["languages"] != int64(1) {
		t.Fatalf("expected one ready entry with one language, got %v", ready)
	}

	want := []string{"wheel", "lathe", ",", "railway", "depot", "unterflur"}
	if got := adv.Tokenize("Wheels lathe, railway depots Unterflur", "en"); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if got := adv.Tokenize("Radsatz Drehmaschine", "de"); !reflect.DeepEqual(got, []string{"radsatz", "drehmaschine"}) {
		t.Fatalf("expected fallback tokens for german text, got %v", got)
	}
}

func TestSurfaces(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		tokens  []string
		words   []int
		offsets [][]int
		want    []string
	}{
		{
			name:   "wordpiece with word ids",
			tokens: []string{"under", "##floor", "wheel", ",", "lat", "##he"},
			words:  []int{0, 0, 1, 2, 3, 3},
			want:   []string{"underfloor", "wheel", ",", "lathe"},
		},
		{
			name:   "wordpiece without word ids",
			tokens: []string{"rad", "##satz", "gleis"},
			words:  nil,
			want:   []string{"radsatz", "gleis"},
		},
		{
			name:   "byte level markers",
			tokens: []string{"Ġwheel", "set", "Ġdepot"},
			words:  []int{0, 0, 1},
			want:   []string{"wheelset", "depot"},
		},
		{
			name:   "sentencepiece markers",
			tokens: []string{"▁", "bogie", "▁track"},
			words:  []int{0, 0, 1},
			want:   []string{"bogie", "track"},
		},
		{
			name:    "byte level umlaut with byte offsets",
			text:    "Radsatz für Bahn",
			tokens:  []string{"Rad", "satz", "Ġf", "Ã¼", "r", "ĠBahn"},
			words:   []int{0, 0, 1, 1, 1, 2},
			offsets: [][]int{{0, 3}, {3, 7}, {8, 9}, {9, 11}, {11, 12}, {13, 17}},
			want:    []string{"Radsatz", "für", "Bahn"},
		},
		{
			name:    "byte level umlaut with rune offsets",
			text:    "Radsatz für Bahn",
			tokens:  []string{"Rad", "satz", "Ġf", "Ã¼", "r", "ĠBahn"},
			words:   []int{0, 0, 1, 1, 1, 2},
			offsets: [][]int{{0, 3}, {3, 7}, {8, 9}, {9, 10}, {10, 11}, {12, 16}},
			want:    []string{"Radsatz", "für", "Bahn"},
		},
		{
			name:    "unknown token keeps its surface",
			text:    "Unterflur lathe",
			tokens:  []string{"[UNK]", "lathe"},
			words:   []int{0, 1},
			offsets: [][]int{{0, 9}, {10, 15}},
			want:    []string{"Unterflur", "lathe"},
		},
		{
			name:    "offsets out of range are glued",
			text:    "ab",
			tokens:  []string{"wheel"},
			words:   []int{0},
			offsets: [][]int{{0, 5}},
			want:    []string{"wheel"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := surfaces(tt.text, tt.tokens, tt.words, tt.offsets); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestParseLemmas(t *testing.T) {
	lemmas, err := parseLemmas(strings.NewReader("lemma,form\nwheel,Wheels\n,depots\nbahn,\nshort\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{"wheels": "wheel", "depots": ""}
	if !reflect.DeepEqual(lemmas, want) {
		t.Fatalf("expected %v, got %v", want, lemmas)
	}

	empty, err := parseLemmas(strings.NewReader(""))
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty table, got %v, %v", empty, err)
	}

	if _, err := LoadLemmas(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatal("expected error for missing lemma table")
	}
}
