package catalogcoach

import "github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/engine"

// PermissionFunc adapts a function to PermissionRequester.
type PermissionFunc func(done func(granted bool))

func (f PermissionFunc) RequestRecordPermission(done func(granted bool)) { f(done) }

// AlwaysGranted grants every request from a new goroutine.
var AlwaysGranted PermissionRequester = PermissionFunc(func(done func(bool)) {
	go done(true)
})

// DevicePermission grants access when the engine reports at least one input
// source. Desktop systems surface their own prompt when the device opens.
func DevicePermission(e engine.Engine) PermissionRequester {
	return PermissionFunc(func(done func(bool)) {
		go func() {
			sources, err := e.InputSources()
			done(err == nil && len(sources) > 0)
		}()
	})
}
