// Package engine abstracts the audio capture graph: an input endpoint, an
// output endpoint and processing nodes wired between them.
package engine

import (
	"errors"

	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/audio"
)

var (
	ErrNoInputSources = errors.New("no audio input sources available")
	ErrDeviceNotFound = errors.New("capture device not found")
	ErrInvalidBus     = errors.New("invalid bus")
)

// Node is a processing node in an engine graph.
type Node interface {
	Name() string
}

// InputNode is the capture endpoint. Format is the format it delivers.
type InputNode interface {
	Node
	Format() audio.Format
}

// InputSource describes an available capture device.
type InputSource struct {
	ID        string
	Name      string
	IsDefault bool
}

// Engine is the minimal capture graph the rest of the module needs.
// Only Start reports failure; Stop is idempotent.
type Engine interface {
	InputNode() InputNode
	OutputNode() Node
	IsRunning() bool

	// Attach registers a node with the graph.
	Attach(node Node)
	// Connect routes from's output into to. A non-nil format becomes from's
	// output format.
	Connect(from, to Node, format *audio.Format)

	Start() error
	Stop()
	// Reset clears buffered state in attached nodes between recordings.
	Reset()

	InputSources() ([]InputSource, error)
	Close() error
}

// renderer is implemented by nodes that consume buffers routed to them.
type renderer interface {
	render(buf *audio.PCMBuffer, at *audio.Time)
}

// outputFormatter is implemented by nodes whose output format Connect sets.
type outputFormatter interface {
	setOutputFormat(format *audio.Format)
}

type resetter interface {
	reset()
}

type endpoint struct {
	name   string
	format audio.Format
}

func (e *endpoint) Name() string         { return e.name }
func (e *endpoint) Format() audio.Format { return e.format }
