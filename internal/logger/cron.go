package logger

import "github.com/robfig/cron/v3"

type cronLogger struct{}

// CronLogger adapts the global logger to cron.Logger so skipped and
// recovered runs show up in the same log stream as the jobs.
func CronLogger() cron.Logger {
	return cronLogger{}
}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	Get().Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]any{"error", err}, keysAndValues...)
	Get().Error("cron: "+msg, args...)
}
