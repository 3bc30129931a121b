package catalogcoach

// Logger is the logging capability components are given.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}

// Dispatcher runs state updates serially, in submission order.
type Dispatcher interface {
	Dispatch(fn func())
}

// PermissionRequester asks for microphone access. The callback runs exactly
// once, possibly on another goroutine.
type PermissionRequester interface {
	RequestRecordPermission(done func(granted bool))
}
