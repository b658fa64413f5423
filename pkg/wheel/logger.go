package wheel

import "log"

// Logger is the minimal logging interface the wheel needs. It keeps the
// package free of any particular logging stack; callers bridge their own.
type Logger interface {
	Printf(string, ...any)
}

// LoggerFunc is a bridge between Logger and any third party logger.
type LoggerFunc func(string, ...any)

// Printf implements Logger.
func (f LoggerFunc) Printf(msg string, args ...any) { f(msg, args...) }

// defaultLogger writes nothing.
var defaultLogger = LoggerFunc(func(string, ...any) {})

// Printf is a logger which wraps log.Printf.
var Printf = LoggerFunc(log.Printf)
