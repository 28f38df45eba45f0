package logger

import "go.uber.org/zap"

// Standard field names for structured logging.
const (
	FieldType     = "type"
	FieldMethod   = "method"
	FieldMember   = "member"
	FieldFile     = "file"
	FieldCount    = "count"
	FieldError    = "error"
	FieldReason   = "reason"
	FieldDuration = "duration_ms"
)

// ComponentLogger returns a named logger for a specific component. Call it
// after Initialize; loggers taken earlier stay no-op.
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
