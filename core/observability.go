package core

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"
)

// metricTagFields are the context fields promoted to metric tags when set.
var metricTagFields = []string{"scope", "channel"}

func (s *Service) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	operation = normalizeOperation(operation)
	elapsed := time.Since(startedAt)

	record := cloneMap(fields)
	record["event_type"] = operation
	record["duration_ms"] = elapsed.Milliseconds()

	tags := map[string]string{"operation": operation}
	for _, key := range metricTagFields {
		if value := tagValue(record[key]); value != "" {
			tags[key] = value
		}
	}

	if err != nil {
		record["status"] = "failure"
		record["error"] = err.Error()
		tags["status"] = "failure"
	} else {
		record["status"] = "success"
		tags["status"] = "success"
	}

	s.recordCounter(ctx, "callpass."+operation+".total", 1, tags)
	s.recordHistogram(ctx, "callpass."+operation+".duration_ms", float64(elapsed.Milliseconds()), tags)

	if err != nil {
		s.emit(ctx, true, operation+" failed", record)
		return
	}
	s.emit(ctx, false, operation+" succeeded", record)
}

func (s *Service) logInfo(ctx context.Context, message string, fields map[string]any) {
	s.emit(ctx, false, message, fields)
}

func (s *Service) logError(ctx context.Context, message string, fields map[string]any) {
	s.emit(ctx, true, message, fields)
}

func (s *Service) emit(ctx context.Context, failed bool, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneMap(fields))
	}
	args := flattenFields(fields)
	if failed {
		logger.Error(message, args...)
		return
	}
	logger.Info(message, args...)
}

// flattenFields renders fields as ordered key/value log arguments so the
// same input always produces the same line.
func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, key, fields[key])
	}
	return args
}

func tagValue(field any) string {
	switch value := field.(type) {
	case string:
		return strings.TrimSpace(value)
	case PassScope:
		return strings.TrimSpace(string(value))
	}
	return ""
}

func cloneMap[V any](in map[string]V) map[string]V {
	if len(in) == 0 {
		return map[string]V{}
	}
	return maps.Clone(in)
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	if operation == "" {
		return "unknown"
	}
	replacer := strings.NewReplacer(" ", "_", "-", "_")
	return replacer.Replace(operation)
}
