package catalogcoach

import (
	"errors"
	"fmt"
	"sync"

	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/audio"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/catalog"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/engine"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/fingerprint"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/session"
)

var (
	ErrNoCatalog  = errors.New("no catalog loaded")
	ErrNilCatalog = errors.New("catalog is nil")
)

// Matcher listens to the microphone, or takes signatures directly, and
// tracks whether they match a loaded catalog.
type Matcher struct {
	cfg        *Config
	log        Logger
	engine     engine.Engine
	listener   *listener
	mixer      *engine.MixerNode
	dispatcher Dispatcher
	ownQueue   *SerialQueue

	mu        sync.Mutex
	session   *session.Session
	status    Status
	observers []func(Status)
}

// NewMatcher builds a matcher. With WithHardwareTap(true) the microphone tap
// is installed at the input's native rate unless overridden.
func NewMatcher(opts ...Option) *Matcher {
	cfg := defaultConfig(NativeTapSampleRate)
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.resolve()

	m := &Matcher{
		cfg:      cfg,
		log:      cfg.Logger,
		engine:   cfg.Engine,
		listener: newListener(cfg),
		status:   Status{Kind: Idle},
	}
	if cfg.Dispatcher != nil {
		m.dispatcher = cfg.Dispatcher
	} else {
		m.ownQueue = NewSerialQueue()
		m.dispatcher = m.ownQueue
	}
	if cfg.HardwareTap {
		m.mixer = installTap(cfg, m.addAudio)
	}
	return m
}

func (m *Matcher) Engine() engine.Engine { return m.engine }

// State returns the current status.
func (m *Matcher) State() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// OnStateChange registers fn to run on the dispatcher after every
// transition.
func (m *Matcher) OnStateChange(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// setState records s on the dispatcher.
func (m *Matcher) setState(s Status) {
	m.dispatcher.Dispatch(func() {
		m.mu.Lock()
		m.status = s
		observers := append([]func(Status){}, m.observers...)
		m.mu.Unlock()

		m.log.Infof("Matching status changed to %s", s)
		for _, fn := range observers {
			fn(s)
		}
	})
}

// LoadCatalog creates the session for cat. Only the first catalog loaded is
// used; later calls are no-ops.
func (m *Matcher) LoadCatalog(cat *catalog.Catalog) error {
	if cat == nil {
		return ErrNilCatalog
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		return nil
	}

	s, err := session.New(cat,
		session.WithLogger(m.log),
		session.WithMinScore(m.minScore()),
		session.WithMinConfidence(m.minConfidence()),
	)
	if err != nil {
		return err
	}
	s.SetObserver(sessionObserver{m})
	m.session = s
	m.log.Infof("Loaded catalog with %d references", cat.Len())
	return nil
}

func (m *Matcher) minScore() int {
	if m.cfg.MinScore > 0 {
		return m.cfg.MinScore
	}
	return session.DefaultMinScore
}

func (m *Matcher) minConfidence() float64 {
	if m.cfg.MinConfidence > 0 {
		return m.cfg.MinConfidence
	}
	return session.DefaultMinConfidence
}

// Match loads cat, starts listening and enters Matching.
func (m *Matcher) Match(cat *catalog.Catalog) error {
	if err := m.LoadCatalog(cat); err != nil {
		return err
	}
	m.StartListening()
	m.setState(Status{Kind: Matching})
	return nil
}

// MatchFile loads the catalog file at path, unless a catalog is already
// loaded. With startListening it starts listening and enters Matching,
// otherwise it goes Idle until StartListening is called.
func (m *Matcher) MatchFile(path string, startListening bool) error {
	if !m.hasSession() {
		cat, err := catalog.Load(path)
		if err != nil {
			return fmt.Errorf("loading catalog %s: %w", path, err)
		}
		if err := m.LoadCatalog(cat); err != nil {
			return err
		}
	}

	if startListening {
		m.StartListening()
		m.setState(Status{Kind: Matching})
	} else {
		m.setState(Status{Kind: Idle})
	}
	return nil
}

// MatchSignature queries the loaded catalog with sig once.
func (m *Matcher) MatchSignature(sig *fingerprint.Signature) error {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s == nil {
		return ErrNoCatalog
	}

	m.setState(Status{Kind: Matching})
	return s.Match(sig)
}

func (m *Matcher) hasSession() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// addAudio is the tap block.
func (m *Matcher) addAudio(buf *audio.PCMBuffer, at *audio.Time) {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s != nil {
		s.MatchStreamingBuffer(buf, at)
	}
}

func (m *Matcher) StartListening() {
	m.listener.start()
}

func (m *Matcher) StopListening() {
	m.listener.stop()
}

func (m *Matcher) IsListening() bool {
	return m.engine.IsRunning()
}

// Close stops listening, waits for running evaluations and releases the
// engine. Callbacks still queued on a caller-supplied dispatcher may run
// afterwards.
func (m *Matcher) Close() error {
	m.listener.close()
	if m.mixer != nil {
		m.mixer.RemoveTap(0)
	}

	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s != nil {
		s.Close()
	}

	if m.ownQueue != nil {
		m.ownQueue.Close()
	}
	return m.engine.Close()
}

// sessionObserver moves session outcomes onto the dispatcher.
type sessionObserver struct {
	m *Matcher
}

func (o sessionObserver) DidFind(match *session.Match) {
	o.m.log.Infof("Found match %v (score %d, confidence %.1f)", match.Titles(), match.Score, match.Confidence)
	o.m.setState(Status{Kind: MatchFound, Match: match})
}

func (o sessionObserver) DidNotFind(_ *fingerprint.Signature, err error) {
	if err != nil {
		o.m.log.Errorf("Did not find match for signature: %v", err)
	} else {
		o.m.log.Debugf("Did not find match for signature")
	}
	o.m.setState(Status{Kind: Failed})
}
