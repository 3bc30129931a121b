package session

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/himanishpuri/CatalogCoach/internal/audiotest"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/audio"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/catalog"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/fingerprint"
	"github.com/himanishpuri/CatalogCoach/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testRate = 44100.0

type outcome struct {
	match *Match
	sig   *fingerprint.Signature
	err   error
}

type recorder struct {
	ch chan outcome
}

func newRecorder() *recorder { return &recorder{ch: make(chan outcome, 16)} }

func (r *recorder) DidFind(m *Match) { r.ch <- outcome{match: m} }

func (r *recorder) DidNotFind(sig *fingerprint.Signature, err error) {
	r.ch <- outcome{sig: sig, err: err}
}

func (r *recorder) next(t *testing.T) outcome {
	t.Helper()
	select {
	case o := <-r.ch:
		return o
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for a match outcome")
		return outcome{}
	}
}

func signatureOf(t *testing.T, samples []float32) *fingerprint.Signature {
	t.Helper()
	g := fingerprint.NewGenerator()
	for _, buf := range audiotest.Buffers(samples, testRate, 8192) {
		if err := g.Append(buf, nil); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	sig, err := g.Signature()
	if err != nil {
		t.Fatalf("Signature failed: %v", err)
	}
	return sig
}

func newCatalog(t *testing.T, song []float32) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	items := []models.MediaItem{models.NewMediaItem(models.MediaItemProperties{models.PropertyTitle: "song"})}
	if err := c.AddReferenceSignature(signatureOf(t, song), items); err != nil {
		t.Fatalf("AddReferenceSignature failed: %v", err)
	}
	return c
}

func TestNewRejectsNilCatalog(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNilCatalog) {
		t.Errorf("expected ErrNilCatalog, got %v", err)
	}
}

func TestMatchFindsExcerpt(t *testing.T) {
	song := audiotest.Melody(31, testRate, 25)
	s, err := New(newCatalog(t, song))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	rec := newRecorder()
	s.SetObserver(rec)

	if err := s.Match(signatureOf(t, audiotest.Excerpt(song, testRate, 12, 6))); err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	o := rec.next(t)
	if o.match == nil {
		t.Fatalf("expected a match, got not-found (err %v)", o.err)
	}
	if titles := o.match.Titles(); len(titles) != 1 || titles[0] != "song" {
		t.Errorf("unexpected titles %v", titles)
	}
	if o.match.Score < DefaultMinScore || o.match.Confidence < DefaultMinConfidence {
		t.Errorf("match below thresholds: score %d confidence %.1f", o.match.Score, o.match.Confidence)
	}
}

func TestMatchUnrelatedNotFound(t *testing.T) {
	s, err := New(newCatalog(t, audiotest.Melody(41, testRate, 20)))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	rec := newRecorder()
	s.SetObserver(rec)

	query := signatureOf(t, audiotest.Melody(42, testRate, 6))
	if err := s.Match(query); err != nil {
		t.Fatal(err)
	}

	o := rec.next(t)
	if o.match != nil {
		t.Fatalf("unrelated query matched with score %d confidence %.1f", o.match.Score, o.match.Confidence)
	}
	if o.err != nil {
		t.Errorf("plain miss should carry no error, got %v", o.err)
	}
	if o.sig != query {
		t.Error("not-found outcome should carry the query signature")
	}
}

func TestMatchAfterClose(t *testing.T) {
	s, err := New(newCatalog(t, audiotest.Melody(51, testRate, 6)))
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	if err := s.Match(signatureOf(t, audiotest.Melody(52, testRate, 4))); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestMatchStreamingBuffer(t *testing.T) {
	song := audiotest.Melody(61, testRate, 25)
	s, err := New(newCatalog(t, song))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	rec := newRecorder()
	s.SetObserver(rec)

	excerpt := audiotest.Excerpt(song, testRate, 5, 4)
	var sampleTime int64
	for _, buf := range audiotest.Buffers(excerpt, testRate, 4096) {
		s.MatchStreamingBuffer(buf, audio.NewTime(sampleTime, testRate))
		sampleTime += int64(buf.FrameLength)
	}

	o := rec.next(t)
	if o.match == nil {
		t.Fatalf("expected the streamed excerpt to match, got err %v", o.err)
	}
}

func TestMatchStreamingBufferResamplesOddRates(t *testing.T) {
	const rate = 22050.0
	song := audiotest.Melody(71, rate, 25)

	c := catalog.New()
	g := fingerprint.NewGenerator()
	for _, buf := range audiotest.Buffers(audio.Resample(song, rate, 44100), 44100, 8192) {
		if err := g.Append(buf, nil); err != nil {
			t.Fatal(err)
		}
	}
	ref, err := g.Signature()
	if err != nil {
		t.Fatal(err)
	}
	items := []models.MediaItem{models.NewMediaItem(models.MediaItemProperties{models.PropertyTitle: "odd"})}
	if err := c.AddReferenceSignature(ref, items); err != nil {
		t.Fatal(err)
	}

	s, err := New(c)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	rec := newRecorder()
	s.SetObserver(rec)

	for _, buf := range audiotest.Buffers(audiotest.Excerpt(song, rate, 6, 4), rate, 2048) {
		s.MatchStreamingBuffer(buf, nil)
	}

	o := rec.next(t)
	if o.match == nil {
		t.Fatalf("expected a match for 22.05 kHz input, got err %v", o.err)
	}
}

func TestMatchStreamingBufferWaitsForWindow(t *testing.T) {
	s, err := New(newCatalog(t, audiotest.Melody(81, testRate, 10)))
	if err != nil {
		t.Fatal(err)
	}

	rec := newRecorder()
	s.SetObserver(rec)

	for _, buf := range audiotest.Buffers(audiotest.Melody(81, testRate, 1), testRate, 4096) {
		s.MatchStreamingBuffer(buf, nil)
	}
	s.Close()

	select {
	case o := <-rec.ch:
		t.Fatalf("unexpected outcome before the window filled: %+v", o)
	default:
	}
}
