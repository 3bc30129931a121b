// Package session matches signatures against a catalog. Evaluations run in
// the background and report to an Observer.
package session

import (
	"errors"
	"sync"

	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/audio"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/catalog"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/fingerprint"
	"github.com/himanishpuri/CatalogCoach/pkg/models"
)

const (
	DefaultMinScore      = 20
	DefaultMinConfidence = 50.0

	// streamRate is used for streamed buffers the generator cannot take as
	// is.
	streamRate = 48000
)

var (
	ErrNilCatalog = errors.New("catalog is nil")
	ErrClosed     = errors.New("session is closed")
)

// Observer receives match outcomes. Calls come from background goroutines.
// err is nil when the query simply matched nothing.
type Observer interface {
	DidFind(match *Match)
	DidNotFind(sig *fingerprint.Signature, err error)
}

type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

// Match describes the best reference for a query signature.
type Match struct {
	ReferenceID string
	MediaItems  []models.MediaItem
	Score       int
	OffsetMs    int32
	Confidence  float64
	Query       *fingerprint.Signature
}

// Titles lists the title of every matched media item.
func (m *Match) Titles() []string {
	titles := make([]string, 0, len(m.MediaItems))
	for _, item := range m.MediaItems {
		titles = append(titles, item.Title())
	}
	return titles
}

type Option func(*Session)

// WithMinScore sets how many aligned hashes a match needs.
func WithMinScore(n int) Option {
	return func(s *Session) { s.minScore = n }
}

// WithMinConfidence sets the confidence (0-100) a match needs.
func WithMinConfidence(c float64) Option {
	return func(s *Session) { s.minConfidence = c }
}

func WithLogger(l Logger) Option {
	return func(s *Session) { s.log = l }
}

type Session struct {
	catalog       *catalog.Catalog
	minScore      int
	minConfidence float64
	log           Logger

	mu            sync.Mutex
	observer      Observer
	closed        bool
	generator     *fingerprint.Generator
	resampler     *audio.StreamResampler
	resamplerRate float64
	scratch       []float32

	wg sync.WaitGroup
}

func New(c *catalog.Catalog, opts ...Option) (*Session, error) {
	if c == nil {
		return nil, ErrNilCatalog
	}
	s := &Session{
		catalog:       c,
		minScore:      DefaultMinScore,
		minConfidence: DefaultMinConfidence,
		log:           nopLogger{},
		generator:     fingerprint.NewGenerator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Session) Catalog() *catalog.Catalog { return s.catalog }

func (s *Session) SetObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

// Match evaluates sig in the background. After Close it returns ErrClosed.
func (s *Session) Match(sig *fingerprint.Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.startLocked(sig, nil)
	return nil
}

// startLocked launches an evaluation. s.mu must be held.
func (s *Session) startLocked(sig *fingerprint.Signature, cause error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if cause != nil {
			s.notifyNotFound(sig, cause)
			return
		}
		s.evaluate(sig)
	}()
}

// MatchStreamingBuffer accumulates live audio. Every time the window reaches
// the catalog's minimum query duration a signature is taken, matched in the
// background and the window starts over.
func (s *Session) MatchStreamingBuffer(buf *audio.PCMBuffer, at *audio.Time) {
	if buf == nil || buf.FrameLength == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	buf, at = s.normalize(buf, at)
	if buf == nil {
		return
	}
	if err := s.generator.Append(buf, at); err != nil {
		s.log.Warnf("Streaming buffer rejected: %v", err)
		s.generator.Reset()
		s.startLocked(nil, err)
		return
	}

	if s.generator.Duration() < s.catalog.MinimumQuerySignatureDuration() {
		return
	}

	sig, err := s.generator.Signature()
	if d := s.generator.Discontinuities(); d > 0 {
		s.log.Debugf("Streaming window had %d discontinuities", d)
	}
	s.generator.Reset()
	if err != nil {
		s.startLocked(nil, err)
		return
	}
	s.startLocked(sig, nil)
}

// normalize turns buffers the generator cannot accept into mono, resampled
// to streamRate when needed. Resampled buffers lose their timestamp.
// s.mu must be held.
func (s *Session) normalize(buf *audio.PCMBuffer, at *audio.Time) (*audio.PCMBuffer, *audio.Time) {
	if buf.Format.Channels == 1 && fingerprint.IsSupportedSampleRate(buf.Format.SampleRate) {
		return buf, at
	}
	if !buf.Format.Valid() {
		return buf, at
	}

	mono := audio.Downmix(s.scratch[:0], buf.Data[:buf.FrameLength*buf.Format.Channels], buf.Format.Channels)
	s.scratch = mono

	if fingerprint.IsSupportedSampleRate(buf.Format.SampleRate) {
		return audio.NewPCMBufferFrom(*audio.NewMonoFormat(buf.Format.SampleRate), mono), at
	}

	if s.resampler == nil || s.resamplerRate != buf.Format.SampleRate {
		s.resampler = audio.NewStreamResampler(buf.Format.SampleRate, streamRate)
		s.resamplerRate = buf.Format.SampleRate
	}
	out := s.resampler.Process(nil, mono)
	if len(out) == 0 {
		return nil, nil
	}
	return audio.NewPCMBufferFrom(*audio.NewMonoFormat(streamRate), out), nil
}

func (s *Session) evaluate(sig *fingerprint.Signature) {
	candidates, err := s.catalog.Query(sig)
	if err != nil {
		s.notifyNotFound(sig, err)
		return
	}
	if len(candidates) == 0 {
		s.log.Debugf("No candidates for query of %v", sig.Duration())
		s.notifyNotFound(sig, nil)
		return
	}

	best := candidates[0]
	s.log.Debugf("Best candidate %s: score %d, confidence %.1f, offset %d ms",
		best.Reference.ID, best.Score, best.Confidence, best.OffsetMs)

	if best.Score < s.minScore || best.Confidence < s.minConfidence {
		s.notifyNotFound(sig, nil)
		return
	}

	match := &Match{
		ReferenceID: best.Reference.ID,
		MediaItems:  best.Reference.MediaItems,
		Score:       best.Score,
		OffsetMs:    best.OffsetMs,
		Confidence:  best.Confidence,
		Query:       sig,
	}
	if o := s.currentObserver(); o != nil {
		o.DidFind(match)
	}
}

func (s *Session) notifyNotFound(sig *fingerprint.Signature, err error) {
	if o := s.currentObserver(); o != nil {
		o.DidNotFind(sig, err)
	}
}

func (s *Session) currentObserver() Observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observer
}

// Close stops accepting work and waits for running evaluations.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Warnf(string, ...any)  {}
