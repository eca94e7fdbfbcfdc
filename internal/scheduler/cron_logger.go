package scheduler

import (
	"fmt"

	"github.com/sykell/url-scraper/internal/logger"
)

// cronLogger routes cron's own log lines, including recovered job panics,
// to the service logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(fields(keysAndValues), logger.Error(err))...)
}

func fields(keysAndValues []interface{}) []logger.Field {
	out := make([]logger.Field, 0, len(keysAndValues)/2+1)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 == len(keysAndValues) {
			out = append(out, logger.Any("extra", keysAndValues[i]))
			break
		}
		out = append(out, logger.Any(key, keysAndValues[i+1]))
	}
	return out
}
