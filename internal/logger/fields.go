package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldRunID is the structured log field key for the scoring run identifier.
	FieldRunID = "run_id"
	// FieldThreshold is the structured log field key for the score threshold.
	FieldThreshold = "threshold"
	// FieldRawID is the structured log field key for a raw tender id.
	FieldRawID = "raw_id"
	// FieldCountry is the structured log field key for the tender country.
	FieldCountry = "country"
	// FieldLanguage is the structured log field key for the resolved language.
	FieldLanguage = "lang"
	// FieldProvider is the structured log field key for the AI provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the AI model identifier.
	FieldModel = "ai_model"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches fields to logger, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// RunFields describes a scoring pass. An empty run id is omitted.
func RunFields(runID string, threshold int) []zap.Field {
	fields := StringFields(StringField{Key: FieldRunID, Value: runID})
	return append(fields, zap.Int(FieldThreshold, threshold))
}

// RecordFields describes a single raw tender.
func RecordFields(rawID int64, country, lang string) []zap.Field {
	fields := []zap.Field{zap.Int64(FieldRawID, rawID)}
	return append(fields, StringFields(
		StringField{Key: FieldCountry, Value: country},
		StringField{Key: FieldLanguage, Value: lang},
	)...)
}

// AIFields returns the provider and model fields, skipping empty values.
func AIFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}
