package catalogcoach

import (
	"sync"

	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/audio"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/engine"
)

// installTap wires input -> mixer -> output and installs block on the mixer.
// It is done once per component and only for the hardware pipeline. Any
// failure is logged and leaves the engine unconfigured; nil is returned then.
func installTap(cfg *Config, block engine.TapBlock) *engine.MixerNode {
	eng, log := cfg.Engine, cfg.Logger

	sources, err := eng.InputSources()
	if err != nil {
		log.Errorf("Not configuring audio engine, listing input sources failed: %v", err)
		return nil
	}
	if len(sources) == 0 {
		log.Errorf("Not configuring audio engine, %v", engine.ErrNoInputSources)
		return nil
	}

	inputFormat := eng.InputNode().Format()
	outputFormat := audio.NewMonoFormat(cfg.TapSampleRate)
	if cfg.TapSampleRate == NativeTapSampleRate {
		outputFormat = audio.NewMonoFormat(inputFormat.SampleRate)
	}

	mixer := engine.NewMixerNode()
	eng.Attach(mixer)
	eng.Connect(eng.InputNode(), mixer, &inputFormat)
	eng.Connect(mixer, eng.OutputNode(), outputFormat)

	if err := mixer.InstallTap(0, cfg.TapBufferSize, outputFormat, block); err != nil {
		log.Errorf("Installing tap failed: %v", err)
		return nil
	}

	log.Infof("Initialized audio engine: %s in, %s tap, %d frame buffers",
		inputFormat, outputFormat, cfg.TapBufferSize)
	return mixer
}

// listener starts and stops an engine behind a permission request. A grant
// that arrives after stop or close is dropped.
type listener struct {
	engine     engine.Engine
	permission PermissionRequester
	log        Logger

	mu      sync.Mutex
	pending bool
	closed  bool
	// gen identifies the current request; stop and close bump it.
	gen uint64
}

func newListener(cfg *Config) *listener {
	return &listener{engine: cfg.Engine, permission: cfg.Permission, log: cfg.Logger}
}

// start asks for permission and starts the engine once granted. It does
// nothing while the engine runs or a request is outstanding. Start failures
// are logged, never returned.
func (l *listener) start() {
	if l.engine.IsRunning() {
		return
	}

	l.mu.Lock()
	if l.pending || l.closed {
		l.mu.Unlock()
		return
	}
	l.pending = true
	gen := l.gen
	l.mu.Unlock()

	l.permission.RequestRecordPermission(func(granted bool) {
		l.mu.Lock()
		defer l.mu.Unlock()

		if l.closed || gen != l.gen {
			l.log.Debugf("Ignoring stale microphone permission response")
			return
		}
		l.pending = false

		if !granted {
			l.log.Warnf("Microphone permission denied")
			return
		}
		if err := l.engine.Start(); err != nil {
			l.log.Errorf("Failed to start audio engine: %v", err)
			return
		}
		l.log.Infof("Started listening from microphone")
	})
}

// stop cancels an outstanding request and stops a running engine.
func (l *listener) stop() {
	l.mu.Lock()
	l.gen++
	l.pending = false
	running := l.engine.IsRunning()
	if running {
		l.engine.Stop()
	}
	l.mu.Unlock()

	if running {
		l.log.Infof("Stopped audio engine")
	}
}

// close stops the listener for good.
func (l *listener) close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.stop()
}
