package trust

// Logger is satisfied directly by *zap.SugaredLogger; nothing in this
// package imports zap so tests can supply a plain stub without pulling
// in the encoder/core machinery.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

// NopLogger discards everything. Used where a caller doesn't wire a
// real logger rather than forcing every constructor argument to be
// nil-checked at each call site.
type NopLogger struct{}

func (NopLogger) Debugw(string, ...interface{}) {}
func (NopLogger) Infow(string, ...interface{})  {}
func (NopLogger) Warnw(string, ...interface{})  {}
func (NopLogger) Errorw(string, ...interface{}) {}
