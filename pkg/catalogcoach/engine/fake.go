package engine

import (
	"sync/atomic"

	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/audio"
)

// FakeMicrophone is an Engine with no hardware behind it. Start always
// succeeds, graph operations are no-ops and it never delivers buffers, so
// tests feed audio to the signature generator directly.
type FakeMicrophone struct {
	running atomic.Bool
	input   *endpoint
	output  *endpoint
}

func NewFakeMicrophone() *FakeMicrophone {
	return &FakeMicrophone{
		input:  &endpoint{name: "fake-input", format: audio.Format{SampleRate: 48000, Channels: 1}},
		output: &endpoint{name: "fake-output", format: audio.Format{SampleRate: 48000, Channels: 1}},
	}
}

func (f *FakeMicrophone) InputNode() InputNode { return f.input }
func (f *FakeMicrophone) OutputNode() Node     { return f.output }
func (f *FakeMicrophone) IsRunning() bool      { return f.running.Load() }

func (f *FakeMicrophone) Attach(Node)                        {}
func (f *FakeMicrophone) Connect(_, _ Node, _ *audio.Format) {}
func (f *FakeMicrophone) Reset()                             {}

func (f *FakeMicrophone) Start() error {
	f.running.Store(true)
	return nil
}

func (f *FakeMicrophone) Stop() {
	f.running.Store(false)
}

func (f *FakeMicrophone) InputSources() ([]InputSource, error) {
	return []InputSource{{ID: "fake", Name: "Fake Microphone", IsDefault: true}}, nil
}

func (f *FakeMicrophone) Close() error {
	f.Stop()
	return nil
}
