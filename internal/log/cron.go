package log

import "github.com/robfig/cron/v3"

type cronLogger struct{}

// CronLogger returns a cron.Logger that writes through this package, so
// scheduler messages share the same line format as the rest of the service.
func CronLogger() cron.Logger {
	return cronLogger{}
}

func (cronLogger) Info(msg string, kv ...interface{}) {
	// cron logs every wake-up at info; keep that noise at debug.
	Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	Error("cron: "+msg, err, kv...)
}
