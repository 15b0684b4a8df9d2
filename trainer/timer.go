package trainer

import (
	"time"

	"go.uber.org/zap"
)

// StartTimer marks the start of a measured phase.
func StartTimer() time.Time {
	return time.Now()
}

// EndTimerAndLog logs the total wall-clock time of a measured phase.
func EndTimerAndLog(log *zap.SugaredLogger, started time.Time, msg string) {
	log.Infof("%s complete in %.3f sec", msg, time.Since(started).Seconds())
}
