package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/spigell/tender-monitor/internal/ai"
	"github.com/spigell/tender-monitor/internal/logger"
	"github.com/spigell/tender-monitor/internal/tender"
	"github.com/spigell/tender-monitor/internal/utils"
)

const (
	providerName        = "gemini"
	defaultMaxLogLength = 200
	systemInstruction   = "You review public procurement notices for a railway equipment supplier. Reply with JSON only."
)

//go:embed prompt.md
var promptTemplate string

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, prompt string) (string, error)
}

// Reviewer asks Gemini for a second opinion on filtered tenders.
type Reviewer struct {
	generator contentGenerator
	model     string
	logger    *zap.Logger
	maxLogLen int
}

var _ ai.Reviewer = (*Reviewer)(nil)

func NewReviewer(generator *Generator, logger *zap.Logger, maxLogLength int) *Reviewer {
	return newReviewer(generator, generator.Model(), logger, maxLogLength)
}

func newReviewer(generator contentGenerator, model string, log *zap.Logger, maxLogLength int) *Reviewer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Reviewer{
		generator: generator,
		model:     model,
		logger:    logger.WithFields(log, logger.AIFields(providerName, model)...),
		maxLogLen: maxLogLength,
	}
}

func (r *Reviewer) Review(ctx context.Context, rec *tender.Record, res *tender.FilteredResult) (*ai.Assessment, error) {
	if rec == nil {
		return nil, errors.New("tender record is required")
	}
	if res == nil {
		return nil, errors.New("filtered result is required")
	}

	tenderJSON, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tender payload: %w", err)
	}

	prompt := buildPrompt(string(tenderJSON), res)

	r.logger.Debug("gemini generate content request",
		zap.Int64("filtered_id", res.ID),
		zap.Int64(logger.FieldRawID, rec.ID),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, r.maxLogLen)),
	)

	raw, err := r.generator.GenerateContent(ctx, systemInstruction, prompt)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("gemini generate content response",
		zap.Int64("filtered_id", res.ID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, r.maxLogLen)),
	)

	assessment, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}
	assessment.Raw = raw

	return assessment, nil
}

func buildPrompt(tenderJSON string, res *tender.FilteredResult) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Score: {{SCORE}}\nKeywords: {{MATCHED_KEYWORDS}}\n\nTender:\n{{TENDER_JSON}}\n\nJSON Response:"
	}

	keywords := res.KeywordsString()
	if keywords == "" {
		keywords = "none"
	}

	return strings.NewReplacer(
		"{{TENDER_JSON}}", tenderJSON,
		"{{MATCHED_KEYWORDS}}", keywords,
		"{{SCORE}}", fmt.Sprint(res.Score),
	).Replace(template)
}

func parseResponse(raw string) (*ai.Assessment, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	confidence := coerceFloat(data["confidence"])
	switch {
	case math.IsNaN(confidence), confidence < 0:
		confidence = 0
	case confidence > 1:
		confidence = 1
	}

	return &ai.Assessment{
		Relevant:   coerceBool(data["relevant"]),
		Confidence: confidence,
		Note:       coerceString(data["note"]),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	raw = strings.TrimSpace(raw)

	// Models sometimes wrap the object in prose.
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start > 0 && end > start {
		raw = raw[start : end+1]
	}
	return raw
}

func coerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "yes"
	case float64:
		return val != 0
	default:
		return false
	}
}

func coerceFloat(v any) float64 {
	if v == nil {
		return math.NaN()
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return math.NaN()
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return math.NaN()
	}
	return f
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
