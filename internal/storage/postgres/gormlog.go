package postgres

import (
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/bobmcallan/folio/internal/common"
)

// gormWriter routes gorm's printf-style output into the service logger.
type gormWriter struct {
	logger *common.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.logger.Debug().Str("component", "gorm").Msgf(format, args...)
}

func newGormLogger(logger *common.Logger) gormlogger.Interface {
	return gormlogger.New(gormWriter{logger: logger}, gormlogger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}
