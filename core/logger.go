package core

// Logger is any service that can report application logs and errors.
// Implementations may attach the acting user when a user.User is passed
// in args.
type Logger interface {
	Enable(enabled bool)
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}
