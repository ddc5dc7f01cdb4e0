package axlog

// Nop is a Logger that discards everything. Useful as a default so
// callers never need a nil check before logging.
type Nop struct{}

func (Nop) Info(s string, keyValues ...any)  {}
func (Nop) Error(s string, keyValues ...any) {}
func (Nop) Debug(s string, keyValues ...any) {}
func (Nop) Warn(s string, keyValues ...any)  {}
