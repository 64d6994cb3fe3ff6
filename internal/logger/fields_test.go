package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStringFields(t *testing.T) {
	fields := StringFields(
		StringField{Key: "  provider  ", Value: "  Gemini  "},
		StringField{Key: "ignored", Value: "   "},
		StringField{Key: "   ", Value: "empty key"},
	)

	if len(fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(fields))
	}

	if fields[0].Key != "provider" || fields[0].String != "Gemini" {
		t.Fatalf("unexpected provider field: %+v", fields[0])
	}

	if empty := StringFields(); len(empty) != 0 {
		t.Fatalf("expected empty fields, got %d", len(empty))
	}
}

func TestWithFields(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	enriched := WithFields(logger, zap.String("foo", "bar"))
	enriched.Info("test log")

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	if ctx := entries[0].ContextMap(); ctx["foo"] != "bar" {
		t.Fatalf("expected field to be bar, got %q", ctx["foo"])
	}

	if WithFields(logger) != logger {
		t.Fatal("expected logger to be returned unchanged without fields")
	}

	fallback := WithFields(nil, zap.String("baz", "qux"))
	if fallback == nil {
		t.Fatalf("expected fallback logger when nil provided")
	}
	fallback.Info("another log")
}

func TestRunAndRecordFields(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	logger.Info("scored", append(RunFields("run-1", 60), RecordFields(7, "DE", "en")...)...)
	logger.Info("anonymous", append(RunFields("", 70), RecordFields(8, "", "")...)...)

	entries := observed.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	first := entries[0].ContextMap()
	if first[FieldRunID] != "run-1" || first[FieldThreshold] != int64(60) {
		t.Fatalf("unexpected run fields: %v", first)
	}
	if first[FieldRawID] != int64(7) || first[FieldCountry] != "DE" || first[FieldLanguage] != "en" {
		t.Fatalf("unexpected record fields: %v", first)
	}

	second := entries[1].ContextMap()
	if _, ok := second[FieldRunID]; ok {
		t.Fatalf("expected empty run id to be omitted: %v", second)
	}
	if _, ok := second[FieldCountry]; ok {
		t.Fatalf("expected empty country to be omitted: %v", second)
	}
	if len(second) != 2 {
		t.Fatalf("expected threshold and raw id only, got %v", second)
	}
}

func TestAIFields(t *testing.T) {
	fields := AIFields("  gemini  ", "model-v1")
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}

	if fields[0].Key != FieldProvider || fields[0].String != "gemini" {
		t.Fatalf("unexpected provider field: %+v", fields[0])
	}

	if fields[1].Key != FieldModel || fields[1].String != "model-v1" {
		t.Fatalf("unexpected model field: %+v", fields[1])
	}

	if empty := AIFields("", ""); len(empty) != 0 {
		t.Fatalf("expected no fields, got %d", len(empty))
	}
}

func TestNew(t *testing.T) {
	for _, tt := range []struct {
		name        string
		json, debug bool
	}{
		{name: "console info"},
		{name: "json debug", json: true, debug: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.json, tt.debug)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tt.debug {
				t.Fatalf("expected debug enabled %v, got %v", tt.debug, got)
			}
		})
	}
}
