package logging

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	gormlogger "gorm.io/gorm/logger"
)

type gormWriter struct{}

func (gormWriter) Printf(format string, args ...any) {
	log.Debug().Str("component", "gorm").Msg(fmt.Sprintf(format, args...))
}

// GormLogger routes gorm's statement log onto zerolog. Slow queries are
// reported at warn level, everything else at debug.
func GormLogger() gormlogger.Interface {
	return gormlogger.New(gormWriter{}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}
