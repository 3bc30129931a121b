package engine

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/audio"
)

// MalgoConfig selects the capture device and the format it delivers.
type MalgoConfig struct {
	SampleRate uint32
	Channels   uint32
	// DeviceName picks a capture device by ID or name substring. Empty means
	// the system default.
	DeviceName string
}

func DefaultMalgoConfig() MalgoConfig {
	return MalgoConfig{SampleRate: 48000, Channels: 1}
}

// MalgoEngine captures from a microphone through miniaudio. The malgo
// context is created on first use, so constructing an engine never touches
// the hardware.
type MalgoEngine struct {
	cfg MalgoConfig

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	graphMu sync.RWMutex
	nodes   []Node
	edges   map[Node][]Node

	input  *endpoint
	output *endpoint

	running    atomic.Bool
	sampleTime atomic.Int64
}

func NewMalgoEngine(cfg MalgoConfig) *MalgoEngine {
	def := DefaultMalgoConfig()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.Channels == 0 {
		cfg.Channels = def.Channels
	}

	format := audio.Format{SampleRate: float64(cfg.SampleRate), Channels: int(cfg.Channels)}
	return &MalgoEngine{
		cfg:    cfg,
		edges:  make(map[Node][]Node),
		input:  &endpoint{name: "input", format: format},
		output: &endpoint{name: "output", format: format},
	}
}

func (e *MalgoEngine) InputNode() InputNode { return e.input }
func (e *MalgoEngine) OutputNode() Node     { return e.output }
func (e *MalgoEngine) IsRunning() bool      { return e.running.Load() }

func (e *MalgoEngine) Attach(node Node) {
	e.graphMu.Lock()
	defer e.graphMu.Unlock()
	if !containsNode(e.nodes, node) {
		e.nodes = append(e.nodes, node)
	}
}

func (e *MalgoEngine) Connect(from, to Node, format *audio.Format) {
	e.graphMu.Lock()
	if !containsNode(e.edges[from], to) {
		e.edges[from] = append(e.edges[from], to)
	}
	e.graphMu.Unlock()

	if format == nil {
		return
	}
	if f, ok := from.(outputFormatter); ok {
		f.setOutputFormat(format)
	}
}

func containsNode(nodes []Node, node Node) bool {
	for _, n := range nodes {
		if n == node {
			return true
		}
	}
	return false
}

func (e *MalgoEngine) ensureContext() error {
	if e.ctx != nil {
		return nil
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("initializing audio context: %w", err)
	}
	e.ctx = ctx
	return nil
}

func (e *MalgoEngine) InputSources() ([]InputSource, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureContext(); err != nil {
		return nil, err
	}
	infos, err := e.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	sources := make([]InputSource, 0, len(infos))
	for _, info := range infos {
		sources = append(sources, InputSource{
			ID:        info.ID.String(),
			Name:      info.Name(),
			IsDefault: info.IsDefault == 1,
		})
	}
	return sources, nil
}

func (e *MalgoEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running.Load() {
		return nil
	}
	if err := e.ensureContext(); err != nil {
		return err
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = e.cfg.Channels
	deviceCfg.SampleRate = e.cfg.SampleRate

	if e.cfg.DeviceName != "" {
		infos, err := e.ctx.Devices(malgo.Capture)
		if err != nil {
			return fmt.Errorf("failed to get devices: %w", err)
		}
		found := false
		for _, info := range infos {
			if info.ID.String() == e.cfg.DeviceName || strings.Contains(info.Name(), e.cfg.DeviceName) {
				deviceCfg.Capture.DeviceID = info.ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, e.cfg.DeviceName)
		}
	}

	device, err := malgo.InitDevice(e.ctx.Context, deviceCfg, malgo.DeviceCallbacks{Data: e.onData})
	if err != nil {
		return fmt.Errorf("initializing capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("starting capture device: %w", err)
	}

	e.device = device
	e.running.Store(true)
	return nil
}

func (e *MalgoEngine) Stop() {
	e.mu.Lock()
	device := e.device
	e.device = nil
	e.running.Store(false)
	e.mu.Unlock()

	// Uninit waits for the callback thread, so it runs outside the lock.
	if device != nil {
		device.Uninit()
	}
}

func (e *MalgoEngine) Reset() {
	e.sampleTime.Store(0)

	e.graphMu.RLock()
	defer e.graphMu.RUnlock()
	for _, n := range e.nodes {
		if r, ok := n.(resetter); ok {
			r.reset()
		}
	}
}

func (e *MalgoEngine) Close() error {
	e.Stop()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx != nil {
		if err := e.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninitializing audio context: %w", err)
		}
		e.ctx.Free()
		e.ctx = nil
	}
	return nil
}

// onData is the malgo callback invoked when audio data is available.
func (e *MalgoEngine) onData(_, pSample []byte, frameCount uint32) {
	samples := bytesToFloat32(pSample, frameCount*e.cfg.Channels)
	buf := audio.NewPCMBufferFrom(e.input.format, samples)
	at := audio.NewTime(e.sampleTime.Add(int64(frameCount))-int64(frameCount), e.input.format.SampleRate)

	e.route(e.input, buf, at)
}

func (e *MalgoEngine) route(from Node, buf *audio.PCMBuffer, at *audio.Time) {
	e.graphMu.RLock()
	targets := append([]Node(nil), e.edges[from]...)
	e.graphMu.RUnlock()

	for _, to := range targets {
		if r, ok := to.(renderer); ok {
			r.render(buf, at)
		}
	}
}

// bytesToFloat32 converts raw bytes (little-endian float32) to a float32 slice.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	if avail := uint32(len(data) / 4); sampleCount > avail {
		sampleCount = avail
	}
	samples := make([]float32, sampleCount)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}
