package core

// Logger is any service that can log application events.
// Error args may include a user value so the backing service can attach
// the acting user to the report.
type Logger interface {
	Info(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}
