package log

import "context"

// Fields is a set of structured key/value pairs attached to a log record.
type Fields = map[string]interface{}

// Logger is the logging surface used across the persona clients.
// Applications may supply their own implementation through the client config.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Fields)
	Info(ctx context.Context, msg string, fields ...Fields)
	Warn(ctx context.Context, msg string, fields ...Fields)
	Error(ctx context.Context, msg string, err error, fields ...Fields)
	With(fields Fields) Logger
}

type nopLogger struct{}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(context.Context, string, ...Fields)       {}
func (nopLogger) Info(context.Context, string, ...Fields)        {}
func (nopLogger) Warn(context.Context, string, ...Fields)        {}
func (nopLogger) Error(context.Context, string, error, ...Fields) {}
func (n nopLogger) With(Fields) Logger                           { return n }
