// Package catalogcoach builds custom fingerprint catalogs from audio files or
// the microphone and matches live audio against them.
package catalogcoach

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/audio"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/catalog"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/engine"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/fingerprint"
	"github.com/himanishpuri/CatalogCoach/pkg/models"
	"github.com/himanishpuri/CatalogCoach/pkg/utils"
)

// SignatureFormat is what audio files are converted to before fingerprinting.
var SignatureFormat = audio.Format{SampleRate: 44100, Channels: 1}

// Creator turns audio into signature records and records into catalogs.
type Creator struct {
	cfg      *Config
	log      Logger
	engine   engine.Engine
	listener *listener
	mixer    *engine.MixerNode

	mu        sync.Mutex
	generator *fingerprint.Generator
	records   []CustomSignatureRecord
}

// NewCreator builds a creator. With WithHardwareTap(true) the microphone tap
// is installed, capturing at CreatorTapSampleRate unless overridden.
func NewCreator(opts ...Option) *Creator {
	cfg := defaultConfig(CreatorTapSampleRate)
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.resolve()

	c := &Creator{
		cfg:       cfg,
		log:       cfg.Logger,
		engine:    cfg.Engine,
		listener:  newListener(cfg),
		generator: fingerprint.NewGenerator(),
	}
	if cfg.HardwareTap {
		c.mixer = installTap(cfg, c.addAudio)
	}
	return c
}

func (c *Creator) Engine() engine.Engine { return c.engine }

// GenerateSignature fingerprints the audio file at path.
func (c *Creator) GenerateSignature(path string) (*fingerprint.Signature, error) {
	src, err := audio.Open(path)
	if err != nil {
		c.log.Errorf("Could not open %s: %v", path, err)
		return nil, err
	}
	defer src.Close()

	sig, err := c.GenerateSignatureFromSource(src)
	if err != nil {
		c.log.Errorf("Could not generate signature from %s: %v", path, err)
		return nil, err
	}
	return sig, nil
}

// GenerateSignatureFromSource fingerprints everything src yields. A read
// failure part way through truncates the signature to what was converted.
func (c *Creator) GenerateSignatureFromSource(src audio.Source) (*fingerprint.Signature, error) {
	conv, err := audio.NewConverter(src, SignatureFormat)
	if err != nil {
		return nil, err
	}

	generator := fingerprint.NewGenerator()
	err = conv.Convert(func(buf *audio.PCMBuffer) error {
		if err := generator.Append(buf, nil); err != nil {
			c.log.Errorf("Appending converted buffer failed: %v", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, audio.ErrConversionFailed) {
			return nil, err
		}
		c.log.Warnf("Conversion stopped early after %v: %v", generator.Duration(), err)
	}

	return generator.Signature()
}

// addAudio is the tap block.
func (c *Creator) addAudio(buf *audio.PCMBuffer, at *audio.Time) {
	c.mu.Lock()
	g := c.generator
	c.mu.Unlock()

	if err := g.Append(buf, at); err != nil {
		c.log.Errorf("Error appending audio buffer at %.3fs: %v", timeSeconds(at), err)
	}
}

func timeSeconds(at *audio.Time) float64 {
	if at == nil {
		return 0
	}
	return at.Seconds()
}

// StartListening begins a new microphone recording. Earlier unfinalized
// audio is discarded. It is a no-op while the engine runs.
func (c *Creator) StartListening() {
	if c.engine.IsRunning() {
		return
	}
	c.mu.Lock()
	c.generator = fingerprint.NewGenerator()
	c.mu.Unlock()

	c.listener.start()
}

func (c *Creator) StopListening() {
	c.listener.stop()
}

func (c *Creator) IsListening() bool {
	return c.engine.IsRunning()
}

// RecordedDuration is how much microphone audio the current recording holds.
func (c *Creator) RecordedDuration() time.Duration {
	c.mu.Lock()
	g := c.generator
	c.mu.Unlock()
	return g.Duration()
}

// FinalizeFromMicrophone turns the current recording into a record, appends
// it to Records and resets the engine.
func (c *Creator) FinalizeFromMicrophone(props models.MediaItemProperties) (CustomSignatureRecord, error) {
	c.mu.Lock()
	g := c.generator
	c.mu.Unlock()

	sig, err := g.Signature()
	if err != nil {
		return CustomSignatureRecord{}, fmt.Errorf("finalizing recording: %w", err)
	}
	if d := g.Discontinuities(); d > 0 {
		c.log.Warnf("Recording had %d discontinuities", d)
	}

	rec := NewCustomSignatureRecord(sig, props)
	c.AddRecord(rec)
	c.engine.Reset()

	c.log.Infof("Appended new signature %s (%v)", rec.ID, sig.Duration())
	return rec, nil
}

func (c *Creator) AddRecord(rec CustomSignatureRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

// Records returns a copy of the held records in insertion order.
func (c *Creator) Records() []CustomSignatureRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CustomSignatureRecord(nil), c.records...)
}

// CreateCatalog builds a catalog from records. It returns nil for no
// records; entries the catalog rejects are logged and skipped.
func (c *Creator) CreateCatalog(records []CustomSignatureRecord) *catalog.Catalog {
	if len(records) == 0 {
		return nil
	}

	cat := catalog.New()
	for _, rec := range records {
		if err := cat.AddReferenceSignature(rec.Signature(), []models.MediaItem{rec.MediaItem}); err != nil {
			c.log.Errorf("Could not add %q to catalog: %v", rec.MediaItem.Title(), err)
		}
	}
	c.log.Infof("Created catalog with %d of %d signatures", cat.Len(), len(records))
	return cat
}

// CreateCatalogFromRecords builds a catalog from the held records.
func (c *Creator) CreateCatalogFromRecords() *catalog.Catalog {
	return c.CreateCatalog(c.Records())
}

// Export writes cat to dest, or to a new uniquely named file in the temp
// directory when dest is empty, and returns the absolute path written.
func (c *Creator) Export(cat *catalog.Catalog, dest string) (string, error) {
	if cat == nil {
		return "", errors.New("catalog is nil")
	}
	if dest == "" {
		dest = filepath.Join(c.cfg.TempDir, utils.GenerateUUID()+catalog.FileExtension)
	}

	abs, err := filepath.Abs(dest)
	if err != nil {
		return "", fmt.Errorf("resolving export path: %w", err)
	}
	if err := cat.Write(abs); err != nil {
		c.log.Errorf("Export error: %v", err)
		return "", err
	}

	c.log.Infof("Exported catalog to %s", abs)
	return abs, nil
}

// Close stops listening and releases the engine.
func (c *Creator) Close() error {
	c.listener.close()
	if c.mixer != nil {
		c.mixer.RemoveTap(0)
	}
	return c.engine.Close()
}
