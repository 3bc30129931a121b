// Package catalog holds reference signatures with their media items, answers
// queries against them by offset voting and persists them to a single
// catalog file.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/fingerprint"
	"github.com/himanishpuri/CatalogCoach/pkg/models"
	"github.com/himanishpuri/CatalogCoach/pkg/utils"
)

const (
	// FileExtension is the extension of exported catalog files.
	FileExtension = ".shazamcatalog"
	// TypeIdentifier is recorded in every catalog file header.
	TypeIdentifier = "com.apple.shazamcatalog"

	DefaultMinimumQueryDuration = 3 * time.Second
	DefaultMaximumQueryDuration = 12 * time.Second
)

var (
	ErrNilSignature      = errors.New("signature is nil")
	ErrEmptySignature    = errors.New("signature has no hashes")
	ErrSignatureTooShort = errors.New("signature is shorter than the minimum query duration")
	ErrNoMediaItems      = errors.New("reference needs at least one media item")
	ErrNotCatalogFile    = errors.New("not a catalog file")
	ErrInvalidDurations  = errors.New("invalid query duration bounds")
)

// Reference is one reference signature and the media it describes.
type Reference struct {
	ID         string
	Signature  *fingerprint.Signature
	MediaItems []models.MediaItem

	distinct int
}

// Candidate is a reference that shares aligned hashes with a query.
type Candidate struct {
	Reference  Reference
	Score      int
	OffsetMs   int32
	Confidence float64
}

type Option func(*Catalog)

// WithQueryDurations overrides the minimum and maximum query signature
// durations. Invalid bounds are reported by New through Err.
func WithQueryDurations(minimum, maximum time.Duration) Option {
	return func(c *Catalog) {
		c.minDuration = minimum
		c.maxDuration = maximum
	}
}

type Catalog struct {
	mu          sync.RWMutex
	minDuration time.Duration
	maxDuration time.Duration
	refs        []*Reference
	byID        map[string]*Reference
	index       fingerprint.Index
}

// New returns an empty catalog. Bounds below one second, or a maximum
// below the minimum, fall back to the defaults.
func New(opts ...Option) *Catalog {
	c := &Catalog{
		minDuration: DefaultMinimumQueryDuration,
		maxDuration: DefaultMaximumQueryDuration,
		byID:        make(map[string]*Reference),
		index:       make(fingerprint.Index),
	}
	for _, opt := range opts {
		opt(c)
	}
	if validDurations(c.minDuration, c.maxDuration) != nil {
		c.minDuration = DefaultMinimumQueryDuration
		c.maxDuration = DefaultMaximumQueryDuration
	}
	return c
}

func validDurations(minimum, maximum time.Duration) error {
	if minimum < time.Second || maximum < minimum {
		return fmt.Errorf("%w: min %v max %v", ErrInvalidDurations, minimum, maximum)
	}
	return nil
}

// Load reads a catalog file into a new catalog that keeps the query bounds
// stored in the file. Bounds that fail validation fall back to the defaults.
func Load(path string) (*Catalog, error) {
	info, loaded, err := readCatalogFile(path)
	if err != nil {
		return nil, err
	}
	minimum := time.Duration(info.MinimumDurationMs) * time.Millisecond
	maximum := time.Duration(info.MaximumDurationMs) * time.Millisecond
	c := New(WithQueryDurations(minimum, maximum))
	c.merge(loaded)
	return c, nil
}

func (c *Catalog) MinimumQuerySignatureDuration() time.Duration {
	return c.minDuration
}

func (c *Catalog) MaximumQuerySignatureDuration() time.Duration {
	return c.maxDuration
}

// Len returns the number of references.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.refs)
}

// References returns the references in insertion order.
func (c *Catalog) References() []Reference {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Reference, 0, len(c.refs))
	for _, r := range c.refs {
		out = append(out, *r)
	}
	return out
}

// AddReferenceSignature adds sig described by items under a new id.
func (c *Catalog) AddReferenceSignature(sig *fingerprint.Signature, items []models.MediaItem) error {
	if err := c.checkReference(sig, items); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insert(utils.GenerateUUID(), sig, items)
	return nil
}

func (c *Catalog) checkReference(sig *fingerprint.Signature, items []models.MediaItem) error {
	if sig == nil {
		return ErrNilSignature
	}
	if sig.HashCount() == 0 {
		return ErrEmptySignature
	}
	if sig.Duration() < c.minDuration {
		return fmt.Errorf("%w: %v < %v", ErrSignatureTooShort, sig.Duration(), c.minDuration)
	}
	if len(items) == 0 {
		return ErrNoMediaItems
	}
	return nil
}

// insert requires c.mu held for writing.
func (c *Catalog) insert(id string, sig *fingerprint.Signature, items []models.MediaItem) {
	ref := &Reference{
		ID:         id,
		Signature:  sig,
		MediaItems: append([]models.MediaItem(nil), items...),
		distinct:   sig.DistinctHashCount(),
	}
	c.refs = append(c.refs, ref)
	c.byID[id] = ref
	c.index.Add(id, sig.Hashes())
}

// Query scores every reference sharing hashes with sig, best first. Only
// the first MaximumQuerySignatureDuration of the query is considered.
func (c *Catalog) Query(sig *fingerprint.Signature) ([]Candidate, error) {
	if sig == nil {
		return nil, ErrNilSignature
	}
	if sig.HashCount() == 0 {
		return nil, ErrEmptySignature
	}

	hashes := sig.Hashes()
	limitMs := uint32(c.maxDuration / time.Millisecond)
	kept := hashes[:0]
	for _, h := range hashes {
		if h.AnchorTimeMs < limitMs {
			kept = append(kept, h)
		}
	}
	queryDistinct := fingerprint.DistinctHashCount(kept)

	c.mu.RLock()
	defer c.mu.RUnlock()

	alignments := fingerprint.Vote(kept, c.index)
	candidates := make([]Candidate, 0, len(alignments))
	for _, a := range alignments {
		ref, ok := c.byID[a.ReferenceID]
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{
			Reference:  *ref,
			Score:      a.Count,
			OffsetMs:   a.OffsetMs,
			Confidence: fingerprint.Confidence(a.Count, queryDistinct, ref.distinct),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score == candidates[j].Score {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Score > candidates[j].Score
	})
	return candidates, nil
}

// Write persists the catalog to path. The file is built next to path and
// renamed over it only after every row is committed.
func (c *Catalog) Write(path string) error {
	if path == "" {
		return fmt.Errorf("catalog path is empty")
	}
	dir := filepath.Dir(path)
	if err := utils.MakeDir(dir); err != nil {
		return fmt.Errorf("creating catalog directory: %w", err)
	}

	c.mu.RLock()
	refs := make([]storedReference, 0, len(c.refs))
	for _, r := range c.refs {
		refs = append(refs, storedReference{
			ID:         r.ID,
			DurationMs: r.Signature.Duration().Milliseconds(),
			HashCount:  r.Signature.HashCount(),
			Signature:  r.Signature.DataRepresentation(),
			MediaItems: r.MediaItems,
		})
	}
	info := catalogInfo{
		Identifier:        TypeIdentifier,
		SchemaVersion:     schemaVersion,
		MinimumDurationMs: c.minDuration.Milliseconds(),
		MaximumDurationMs: c.maxDuration.Milliseconds(),
		CreatedAt:         time.Now(),
	}
	c.mu.RUnlock()

	tmp := filepath.Join(dir, "."+filepath.Base(path)+"-"+utils.GenerateUUID()+".tmp")
	if err := writeStore(tmp, info, refs); err != nil {
		utils.DeleteFile(tmp)
		return err
	}
	if err := utils.MoveFile(tmp, path); err != nil {
		utils.DeleteFile(tmp)
		return fmt.Errorf("replacing catalog file: %w", err)
	}
	return nil
}

func writeStore(path string, info catalogInfo, refs []storedReference) error {
	s, err := openStore(path, true)
	if err != nil {
		return err
	}
	if err := s.write(info, refs); err != nil {
		s.Close()
		return err
	}
	return s.Close()
}

// Add merges the references stored in the catalog file at path. References
// already present by id are skipped. Nothing is added unless the whole file
// reads cleanly. The receiver keeps its own query bounds.
func (c *Catalog) Add(path string) error {
	_, loaded, err := readCatalogFile(path)
	if err != nil {
		return err
	}
	c.merge(loaded)
	return nil
}

type parsedReference struct {
	id    string
	sig   *fingerprint.Signature
	items []models.MediaItem
}

func readCatalogFile(path string) (catalogInfo, []parsedReference, error) {
	if !utils.FileExists(path) {
		return catalogInfo{}, nil, fmt.Errorf("catalog file %s: %w", path, os.ErrNotExist)
	}

	s, err := openStore(path, false)
	if err != nil {
		return catalogInfo{}, nil, err
	}
	defer s.Close()

	info, stored, err := s.read()
	if err != nil {
		return catalogInfo{}, nil, err
	}
	if info.Identifier != TypeIdentifier {
		return catalogInfo{}, nil, fmt.Errorf("%w: identifier %q", ErrNotCatalogFile, info.Identifier)
	}
	if info.SchemaVersion > schemaVersion {
		return catalogInfo{}, nil, fmt.Errorf("%w: schema version %d", ErrNotCatalogFile, info.SchemaVersion)
	}

	loaded := make([]parsedReference, 0, len(stored))
	for _, r := range stored {
		sig, err := fingerprint.ParseSignature(r.Signature)
		if err != nil {
			return catalogInfo{}, nil, fmt.Errorf("reference %s: %w", r.ID, err)
		}
		loaded = append(loaded, parsedReference{id: r.ID, sig: sig, items: r.MediaItems})
	}
	return info, loaded, nil
}

func (c *Catalog) merge(loaded []parsedReference) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range loaded {
		if _, dup := c.byID[p.id]; dup {
			continue
		}
		c.insert(p.id, p.sig, p.items)
	}
}
