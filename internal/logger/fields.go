package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldRunID is the structured log field key for a matching run identifier.
	FieldRunID = "run_id"
	// FieldPolicy is the structured log field key for the scoring policy name.
	FieldPolicy = "scoring_policy"
	// FieldProjectID is the structured log field key for a project identifier.
	FieldProjectID = "project_id"
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

// WithFields attaches fields to logger. A nil logger becomes a no-op logger.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// RunFields returns the fields describing a matching run.
func RunFields(runID, policy string) []zap.Field {
	return StringFields(
		StringField{Key: FieldRunID, Value: runID},
		StringField{Key: FieldPolicy, Value: policy},
	)
}

// WithRun attaches the matching run fields to logger.
func WithRun(logger *zap.Logger, runID, policy string) *zap.Logger {
	return WithFields(logger, RunFields(runID, policy)...)
}
