// Package logger is the structured logging surface shared by the service,
// the diagnosis pipeline and the CLI.
package logger

// Fields carries the key/value context attached to one log entry.
type Fields = map[string]interface{}

// Logger tags every entry with the component that produced it. Error entries
// carry the error itself instead of a message.
type Logger interface {
	Info(component, message string, fields Fields)
	Error(component string, err error, fields Fields)
	Warning(component, message string, fields Fields)
	Debug(component, message string, fields Fields)
}
