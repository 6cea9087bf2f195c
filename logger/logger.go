// Package logger defines the keyval logging surface the engine emits through
// and small adapters over common backends.
package logger

// Logger takes a message and alternating key/value pairs. Odd trailing
// arguments are dropped by the adapters.
type Logger interface {
	Error(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Debug(msg string, keyvals ...any)
}

// TraceIDFunc supplies a correlation ID per decision. Must be safe for
// concurrent calls.
type TraceIDFunc func() string

// NullLogger implements Logger but does nothing (useful for tests)
type NullLogger struct{}

func NewNullLogger() *NullLogger { return &NullLogger{} }

func (n *NullLogger) Debug(msg string, keyvals ...any) {}
func (n *NullLogger) Info(msg string, keyvals ...any)  {}
func (n *NullLogger) Error(msg string, keyvals ...any) {}
