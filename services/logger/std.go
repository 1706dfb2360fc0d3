package logsvc

import (
	"log"

	"github.com/trezcool/malipo/core"
)

// StdLogger logs to the standard library logger only; used in DEV|TEST.
type StdLogger struct {
	std *log.Logger
}

var _ core.Logger = (*StdLogger)(nil)

func NewStdLogger(std *log.Logger) *StdLogger {
	return &StdLogger{std: std}
}

func (l StdLogger) Info(msg string, args ...interface{}) {
	l.print("INFO: "+msg, args)
}

func (l StdLogger) Error(msg string, args ...interface{}) {
	l.print("ERROR: "+msg, args)
}

func (l StdLogger) print(msg string, args []interface{}) {
	l.std.Println(msg)
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}
