package badger

import (
	"strings"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// badgerLogger routes badger's printf logging into zap. Badger is chatty at
// info level about compactions, so those are demoted to debug.
type badgerLogger struct {
	sugar *zap.SugaredLogger
}

var _ badgerdb.Logger = (*badgerLogger)(nil)

func newBadgerLogger(l *zap.Logger) *badgerLogger {
	return &badgerLogger{sugar: l.Named("badger").Sugar()}
}

func trim(format string) string {
	return strings.TrimRight(format, "\n")
}

func (b *badgerLogger) Errorf(format string, args ...interface{}) {
	b.sugar.Errorf(trim(format), args...)
}

func (b *badgerLogger) Warningf(format string, args ...interface{}) {
	b.sugar.Warnf(trim(format), args...)
}

func (b *badgerLogger) Infof(format string, args ...interface{}) {
	b.sugar.Debugf(trim(format), args...)
}

func (b *badgerLogger) Debugf(format string, args ...interface{}) {
	b.sugar.Debugf(trim(format), args...)
}
