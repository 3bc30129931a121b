package catalogcoach

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/himanishpuri/CatalogCoach/internal/audiotest"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/audio"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/catalog"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/engine"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/fingerprint"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/session"
	"github.com/himanishpuri/CatalogCoach/pkg/logger"
	"github.com/himanishpuri/CatalogCoach/pkg/models"
)

const songRate = 44100.0

var grantNow = PermissionFunc(func(done func(bool)) { done(true) })

func testOptions(t *testing.T, extra ...Option) []Option {
	t.Helper()
	opts := []Option{
		WithLogger(logger.Discard()),
		WithEngine(engine.NewFakeMicrophone()),
		WithPermissionRequester(grantNow),
		WithTempDir(t.TempDir()),
	}
	return append(opts, extra...)
}

func newTestMatcher(t *testing.T, extra ...Option) *Matcher {
	t.Helper()
	m := NewMatcher(testOptions(t, extra...)...)
	t.Cleanup(func() { m.Close() })
	return m
}

// stateWatcher collects every transition a matcher reports.
func stateWatcher(m *Matcher) <-chan Status {
	ch := make(chan Status, 32)
	m.OnStateChange(func(s Status) { ch <- s })
	return ch
}

func waitFor(t *testing.T, ch <-chan Status, kind Kind, timeout time.Duration) Status {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case s := <-ch:
			if s.Kind == kind {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
			return Status{}
		}
	}
}

func matchOf(items ...models.MediaItem) *session.Match {
	return &session.Match{MediaItems: items}
}

func TestStatusString(t *testing.T) {
	item := func(title string) models.MediaItem {
		return models.NewMediaItem(models.MediaItemProperties{models.PropertyTitle: title})
	}

	tests := []struct {
		name   string
		status Status
		want   string
	}{
		{"idle", Status{Kind: Idle}, "Idle"},
		{"matching", Status{Kind: Matching}, "Matching..."},
		{"failed", Status{Kind: Failed}, "Failed"},
		{"one title", Status{Kind: MatchFound, Match: matchOf(item("Song"))}, "Song"},
		{"two titles", Status{Kind: MatchFound, Match: matchOf(item("A"), item("B"))}, "A and B"},
		{"three titles", Status{Kind: MatchFound, Match: matchOf(item("A"), item("B"), item("C"))}, "A, B, and C"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	tests := map[string]Kind{
		"Idle":        Idle,
		"Matching...": Matching,
		"Failed":      Failed,
		"Some Song":   Idle,
		"":            Idle,
	}
	for raw, want := range tests {
		if got := ParseStatus(raw).Kind; got != want {
			t.Errorf("ParseStatus(%q) = %s, want %s", raw, got, want)
		}
	}

	for _, k := range []Kind{Idle, Matching, Failed} {
		s := Status{Kind: k}
		if !ParseStatus(s.String()).Equal(s) {
			t.Errorf("%s does not round trip", k)
		}
	}
}

func TestSerialQueueRunsInOrder(t *testing.T) {
	q := NewSerialQueue()
	defer q.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		q.Dispatch(func() { got = append(got, i) })
	}
	q.Sync()

	if len(got) != 100 {
		t.Fatalf("ran %d of 100 functions", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("position %d ran %d", i, v)
		}
	}
}

func TestSerialQueueCloseDrops(t *testing.T) {
	q := NewSerialQueue()
	var ran atomic.Int32
	q.Dispatch(func() { ran.Add(1) })
	q.Close()
	q.Dispatch(func() { ran.Add(1) })
	q.Sync()

	if ran.Load() != 1 {
		t.Errorf("expected only the function queued before Close to run, ran %d", ran.Load())
	}
}

func TestGenerateSignatureNotLongerThanFile(t *testing.T) {
	dir := t.TempDir()
	samples := audiotest.Pad(audiotest.Melody(3, songRate, 6), songRate, 1.5, 2)
	path := audiotest.WriteWAV(t, dir, "padded.wav", songRate, samples)
	fileDuration := time.Duration(float64(len(samples)) / songRate * float64(time.Second))

	c := NewCreator(testOptions(t)...)
	sig, err := c.GenerateSignature(path)
	if err != nil {
		t.Fatalf("GenerateSignature failed: %v", err)
	}
	if sig.Duration() > fileDuration {
		t.Errorf("signature %v longer than file %v", sig.Duration(), fileDuration)
	}
	if sig.Duration() >= fileDuration-3*time.Second {
		t.Errorf("signature %v should exclude the %v of silence", sig.Duration(), 3500*time.Millisecond)
	}
	if len(sig.DataRepresentation()) == 0 {
		t.Error("empty data representation")
	}
}

func TestGenerateSignatureFailures(t *testing.T) {
	dir := t.TempDir()
	c := NewCreator(testOptions(t)...)

	text := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(text, []byte("not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if sig, err := c.GenerateSignature(text); sig != nil || !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Errorf("expected nil signature and ErrUnsupportedFormat, got %v, %v", sig, err)
	}

	if sig, err := c.GenerateSignature(filepath.Join(dir, "missing.wav")); sig != nil || err == nil {
		t.Errorf("expected failure for a missing file, got %v, %v", sig, err)
	}

	broken := filepath.Join(dir, "broken.wav")
	if err := os.WriteFile(broken, []byte("RIFF....WAVEjunk"), 0o644); err != nil {
		t.Fatal(err)
	}
	if sig, err := c.GenerateSignature(broken); sig != nil || err == nil {
		t.Errorf("expected failure for a corrupt wav, got %v, %v", sig, err)
	}
}

// failingSource yields its samples for a number of reads, then fails.
type failingSource struct {
	*audio.SliceSource
	reads  int
	failAt int
}

func (f *failingSource) ReadSamples(dst []float32) (int, error) {
	f.reads++
	if f.reads >= f.failAt {
		return 0, errors.New("device unplugged")
	}
	return f.SliceSource.ReadSamples(dst)
}

func TestGenerateSignatureTruncatesOnMidStreamFailure(t *testing.T) {
	samples := audiotest.Melody(5, songRate, 10)
	src := &failingSource{
		SliceSource: audio.NewSliceSource(audio.Format{SampleRate: songRate, Channels: 1}, samples),
		failAt:      12,
	}

	c := NewCreator(testOptions(t)...)
	sig, err := c.GenerateSignatureFromSource(src)
	if err != nil {
		t.Fatalf("expected a truncated signature, got %v", err)
	}
	if sig.Duration() <= 0 || sig.Duration() >= 5*time.Second {
		t.Errorf("truncated signature covers %v, want under 5s", sig.Duration())
	}
}

func TestCreateCatalog(t *testing.T) {
	c := NewCreator(testOptions(t)...)

	if cat := c.CreateCatalog(nil); cat != nil {
		t.Error("empty record list should give a nil catalog")
	}
	if cat := c.CreateCatalogFromRecords(); cat != nil {
		t.Error("no held records should give a nil catalog")
	}

	good := NewCustomSignatureRecord(signatureOf(t, audiotest.Melody(8, songRate, 6)), models.MediaItemProperties{models.PropertyTitle: "good"})
	short := NewCustomSignatureRecord(signatureOf(t, audiotest.Melody(9, songRate, 1.5)), models.MediaItemProperties{models.PropertyTitle: "short"})
	empty := NewCustomSignatureRecord(nil, models.MediaItemProperties{models.PropertyTitle: "nil"})

	c.AddRecord(good)
	c.AddRecord(short)
	c.AddRecord(empty)

	cat := c.CreateCatalogFromRecords()
	if cat == nil {
		t.Fatal("expected a partial catalog")
	}
	if cat.Len() != 1 {
		t.Errorf("expected only the valid record in the catalog, got %d", cat.Len())
	}
	if cat.MinimumQuerySignatureDuration() < time.Second {
		t.Errorf("minimum query duration %v below one second", cat.MinimumQuerySignatureDuration())
	}
	if got := len(c.Records()); got != 3 {
		t.Errorf("Records() = %d, want 3", got)
	}
}

func TestExportDefaultPath(t *testing.T) {
	tmp := t.TempDir()
	c := NewCreator(testOptions(t, WithTempDir(tmp))...)

	rec := NewCustomSignatureRecord(signatureOf(t, audiotest.Melody(10, songRate, 5)), models.MediaItemProperties{models.PropertyTitle: "x"})
	cat := c.CreateCatalog([]CustomSignatureRecord{rec})

	path, err := c.Export(cat, "")
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !filepath.IsAbs(path) {
		t.Errorf("export path %q is not absolute", path)
	}
	if !strings.HasSuffix(path, CatalogFileExtension) {
		t.Errorf("export path %q lacks %s", path, CatalogFileExtension)
	}
	absTmp, _ := filepath.Abs(tmp)
	if filepath.Dir(path) != absTmp {
		t.Errorf("export path %q not under %q", path, absTmp)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("exported file missing: %v", err)
	}

	second, err := c.Export(cat, "")
	if err != nil {
		t.Fatal(err)
	}
	if second == path {
		t.Error("default export paths should be unique")
	}
}

func TestExportPropagatesWriteErrors(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewCreator(testOptions(t)...)
	rec := NewCustomSignatureRecord(signatureOf(t, audiotest.Melody(12, songRate, 5)), models.MediaItemProperties{models.PropertyTitle: "x"})
	cat := c.CreateCatalog([]CustomSignatureRecord{rec})

	if _, err := c.Export(cat, filepath.Join(blocker, "out"+CatalogFileExtension)); err == nil {
		t.Error("expected an error exporting below a regular file")
	}
	if _, err := c.Export(nil, ""); err == nil {
		t.Error("expected an error exporting a nil catalog")
	}
}

func TestListeningLifecycle(t *testing.T) {
	mic := engine.NewFakeMicrophone()
	c := NewCreator(testOptions(t, WithEngine(mic))...)

	// stopping a stopped engine is a no-op
	c.StopListening()
	if c.IsListening() {
		t.Fatal("engine running after Stop on a stopped engine")
	}

	c.StartListening()
	if !mic.IsRunning() {
		t.Fatal("expected the engine to run after a granted start")
	}
	c.StartListening()
	c.StopListening()
	c.StopListening()
	if mic.IsRunning() {
		t.Fatal("expected the engine to stop")
	}

	denied := NewCreator(testOptions(t,
		WithEngine(engine.NewFakeMicrophone()),
		WithPermissionRequester(PermissionFunc(func(done func(bool)) { done(false) })),
	)...)
	denied.StartListening()
	if denied.IsListening() {
		t.Error("engine started without permission")
	}
}

func TestAsyncPermissionStartsEngine(t *testing.T) {
	mic := engine.NewFakeMicrophone()
	c := NewCreator(testOptions(t, WithEngine(mic), WithPermissionRequester(AlwaysGranted))...)

	c.StartListening()
	deadline := time.Now().Add(2 * time.Second)
	for !mic.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("engine did not start after asynchronous grant")
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.StopListening()
}

// heldPermission keeps every request until release is called.
type heldPermission struct {
	mu      sync.Mutex
	pending []func(bool)
}

func (h *heldPermission) RequestRecordPermission(done func(bool)) {
	h.mu.Lock()
	h.pending = append(h.pending, done)
	h.mu.Unlock()
}

func (h *heldPermission) release(granted bool) {
	h.mu.Lock()
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()
	for _, done := range pending {
		done(granted)
	}
}

func TestLateGrantAfterStopOrClose(t *testing.T) {
	perm := &heldPermission{}
	mic := engine.NewFakeMicrophone()
	c := NewCreator(testOptions(t, WithEngine(mic), WithPermissionRequester(perm))...)

	c.StartListening()
	c.StopListening()
	perm.release(true)
	if mic.IsRunning() {
		t.Fatal("engine started by a grant that arrived after StopListening")
	}

	// a fresh request after the cancelled one still works
	c.StartListening()
	perm.release(true)
	if !mic.IsRunning() {
		t.Fatal("expected the engine to run after a new granted start")
	}
	c.StopListening()

	c.StartListening()
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	perm.release(true)
	if mic.IsRunning() {
		t.Fatal("engine started after Close")
	}

	c.StartListening()
	perm.release(true)
	if mic.IsRunning() {
		t.Fatal("engine started by StartListening after Close")
	}

	mperm := &heldPermission{}
	mmic := engine.NewFakeMicrophone()
	m := NewMatcher(testOptions(t, WithEngine(mmic), WithPermissionRequester(mperm))...)
	m.StartListening()
	m.Close()
	mperm.release(true)
	if mmic.IsRunning() {
		t.Fatal("matcher engine started after Close")
	}
}

// silentEngine reports no input sources.
type silentEngine struct {
	*engine.FakeMicrophone
}

func (silentEngine) InputSources() ([]engine.InputSource, error) { return nil, nil }

func TestTapPipelineSetup(t *testing.T) {
	c := NewCreator(testOptions(t, WithHardwareTap(true))...)
	if c.mixer == nil {
		t.Fatal("expected the tap to be installed")
	}
	format, ok := c.mixer.OutputFormat()
	if !ok || format.SampleRate != CreatorTapSampleRate || format.Channels != 1 {
		t.Errorf("creator tap format %v, want mono %d Hz", format, CreatorTapSampleRate)
	}

	m := newTestMatcher(t, WithHardwareTap(true))
	if m.mixer == nil {
		t.Fatal("expected the matcher tap to be installed")
	}
	native := m.engine.InputNode().Format().SampleRate
	if format, _ := m.mixer.OutputFormat(); format.SampleRate != native {
		t.Errorf("matcher tap rate %g, want native %g", format.SampleRate, native)
	}

	none := NewCreator(testOptions(t,
		WithEngine(silentEngine{engine.NewFakeMicrophone()}),
		WithHardwareTap(true),
	)...)
	if none.mixer != nil {
		t.Error("tap installed without input sources")
	}

	fake := NewCreator(testOptions(t)...)
	if fake.mixer != nil {
		t.Error("tap installed without the hardware option")
	}
}

func TestFinalizeFromMicrophone(t *testing.T) {
	mic := engine.NewFakeMicrophone()
	c := NewCreator(testOptions(t, WithEngine(mic))...)

	c.StartListening()
	const rate = CreatorTapSampleRate
	var sampleTime int64
	for _, buf := range audiotest.Buffers(audiotest.Melody(13, rate, 5), rate, DefaultTapBufferSize) {
		c.addAudio(buf, audio.NewTime(sampleTime, rate))
		sampleTime += int64(buf.FrameLength)
	}
	c.StopListening()

	if c.RecordedDuration() < 4*time.Second {
		t.Fatalf("recorded %v, want about 5s", c.RecordedDuration())
	}

	rec, err := c.FinalizeFromMicrophone(models.MediaItemProperties{models.PropertyTitle: "recorded"})
	if err != nil {
		t.Fatalf("FinalizeFromMicrophone failed: %v", err)
	}
	if rec.MediaItem.Title() != "recorded" || rec.Signature() == nil || rec.ID == "" {
		t.Errorf("unexpected record %+v", rec)
	}
	if records := c.Records(); len(records) != 1 || records[0].ID != rec.ID {
		t.Errorf("record not appended: %v", records)
	}

	// a new recording starts empty
	c.StartListening()
	if c.RecordedDuration() != 0 {
		t.Errorf("new recording starts with %v", c.RecordedDuration())
	}
	c.StopListening()

	if _, err := c.FinalizeFromMicrophone(nil); !errors.Is(err, fingerprint.ErrInsufficientAudio) {
		t.Errorf("expected ErrInsufficientAudio for an empty recording, got %v", err)
	}
}

func signatureOf(t *testing.T, samples []float32) *fingerprint.Signature {
	t.Helper()
	c := NewCreator(testOptions(t)...)
	sig, err := c.GenerateSignatureFromSource(audio.NewSliceSource(audio.Format{SampleRate: songRate, Channels: 1}, samples))
	if err != nil {
		t.Fatalf("signature failed: %v", err)
	}
	return sig
}

func TestMatcherRequiresCatalog(t *testing.T) {
	m := newTestMatcher(t)

	if err := m.MatchSignature(signatureOf(t, audiotest.Melody(14, songRate, 4))); !errors.Is(err, ErrNoCatalog) {
		t.Errorf("expected ErrNoCatalog, got %v", err)
	}
	if err := m.LoadCatalog(nil); !errors.Is(err, ErrNilCatalog) {
		t.Errorf("expected ErrNilCatalog, got %v", err)
	}
	if err := m.MatchFile(filepath.Join(t.TempDir(), "missing"+CatalogFileExtension), false); err == nil {
		t.Error("expected an error for a missing catalog file")
	}
	if m.State().Kind != Idle {
		t.Errorf("state %s, want Idle", m.State())
	}
}

func TestMatcherUnrelatedSignatureFails(t *testing.T) {
	c := NewCreator(testOptions(t)...)
	rec := NewCustomSignatureRecord(signatureOf(t, audiotest.Melody(15, songRate, 20)), models.MediaItemProperties{models.PropertyTitle: "song"})
	cat := c.CreateCatalog([]CustomSignatureRecord{rec})

	m := newTestMatcher(t)
	states := stateWatcher(m)
	if err := m.LoadCatalog(cat); err != nil {
		t.Fatal(err)
	}
	if err := m.MatchSignature(signatureOf(t, audiotest.Melody(16, songRate, 6))); err != nil {
		t.Fatal(err)
	}

	waitFor(t, states, Matching, 5*time.Second)
	s := waitFor(t, states, Failed, 5*time.Second)
	if s.Match != nil {
		t.Error("failed status carries a match")
	}
	if m.State().Kind == MatchFound {
		t.Error("unrelated audio reached MatchFound")
	}
}

func TestMatcherStreamsTapBuffers(t *testing.T) {
	song := audiotest.Melody(17, songRate, 20)
	c := NewCreator(testOptions(t)...)
	rec := NewCustomSignatureRecord(signatureOf(t, song), models.MediaItemProperties{models.PropertyTitle: "streamed"})
	cat := c.CreateCatalog([]CustomSignatureRecord{rec})

	mic := engine.NewFakeMicrophone()
	m := newTestMatcher(t, WithEngine(mic))
	states := stateWatcher(m)
	if err := m.Match(cat); err != nil {
		t.Fatal(err)
	}
	if !mic.IsRunning() {
		t.Error("Match should start listening")
	}
	waitFor(t, states, Matching, 5*time.Second)

	var sampleTime int64
	for _, buf := range audiotest.Buffers(audiotest.Excerpt(song, songRate, 7, 4), songRate, DefaultTapBufferSize) {
		m.addAudio(buf, audio.NewTime(sampleTime, songRate))
		sampleTime += int64(buf.FrameLength)
	}

	s := waitFor(t, states, MatchFound, 10*time.Second)
	if s.String() != "streamed" {
		t.Errorf("status %q, want streamed", s.String())
	}
}

func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	song := audiotest.Melody(42, songRate, 30)
	songPath := audiotest.WriteWAV(t, dir, "song.wav", songRate, song)
	excerptPath := audiotest.WriteWAV(t, dir, "excerpt.wav", songRate, audiotest.Excerpt(song, songRate, 12, 6))
	otherPath := audiotest.WriteWAV(t, dir, "other.wav", songRate, audiotest.Melody(43, songRate, 30))

	creator := NewCreator(testOptions(t, WithTempDir(dir))...)
	for _, p := range []string{songPath, otherPath} {
		sig, err := creator.GenerateSignature(p)
		if err != nil {
			t.Fatalf("GenerateSignature(%s) failed: %v", p, err)
		}
		creator.AddRecord(NewCustomSignatureRecord(sig, models.MediaItemProperties{
			models.PropertyTitle: FileNameWithoutExtension(p),
		}))
	}

	cat := creator.CreateCatalogFromRecords()
	if cat == nil || cat.Len() != 2 {
		t.Fatalf("catalog not built: %v", cat)
	}
	exported, err := creator.Export(cat, "")
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	reopened, err := catalog.Load(exported)
	if err != nil {
		t.Fatalf("reopening exported catalog failed: %v", err)
	}
	if reopened.Len() != 2 {
		t.Fatalf("reopened catalog has %d references", reopened.Len())
	}

	m := newTestMatcher(t)
	states := stateWatcher(m)
	if err := m.MatchFile(exported, false); err != nil {
		t.Fatalf("MatchFile failed: %v", err)
	}
	waitFor(t, states, Idle, 5*time.Second)
	if m.IsListening() {
		t.Error("MatchFile without listening started the engine")
	}

	query, err := creator.GenerateSignature(excerptPath)
	if err != nil {
		t.Fatalf("GenerateSignature(excerpt) failed: %v", err)
	}
	if err := m.MatchSignature(query); err != nil {
		t.Fatalf("MatchSignature failed: %v", err)
	}

	s := waitFor(t, states, MatchFound, 10*time.Second)
	if s.Match == nil || s.Match.Titles()[0] != "song" {
		t.Fatalf("matched %v, want song", s)
	}
	if s.Match.OffsetMs < 11500 || s.Match.OffsetMs > 12500 {
		t.Errorf("offset %d ms, want about 12000", s.Match.OffsetMs)
	}
	if m.State().Kind != MatchFound {
		t.Errorf("State() = %s after MatchFound", m.State())
	}
}
