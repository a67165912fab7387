// Package remote provides layers whose configuration is published by a
// remote WMS service. A Layer is usable as soon as it is constructed and
// draws nothing until the capabilities document has arrived.
package remote

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/delta10/globe-layers/internal/globe"
	"github.com/delta10/globe-layers/internal/wms"
)

type State int

const (
	StatePending State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "pending"
}

// Descriptor identifies a layer on a remote WMS service.
type Descriptor struct {
	ServiceAddress  string `json:"serviceAddress"`
	LayerIdentifier string `json:"layerIdentifier"`
	DisplayName     string `json:"displayName"`
}

type CapabilitiesFetcher interface {
	Fetch(ctx context.Context, serviceAddress string) (*wms.Capabilities, error)
}

// LayerFactory constructs the renderable layer for a resolved configuration.
type LayerFactory func(config *wms.LayerConfiguration) (globe.Layer, error)

// Reporter receives the single diagnostic of a layer whose configuration
// could not be obtained.
type Reporter interface {
	Report(d Descriptor, err error)
}

type ReporterFunc func(d Descriptor, err error)

func (f ReporterFunc) Report(d Descriptor, err error) {
	f(d, err)
}

// LogReporter writes the diagnostic with the standard logger.
var LogReporter = ReporterFunc(func(d Descriptor, err error) {
	log.Print(Diagnostic(d, err))
})

type Option func(*Layer)

func WithFetcher(fetcher CapabilitiesFetcher) Option {
	return func(l *Layer) {
		l.fetcher = fetcher
	}
}

func WithFactory(factory LayerFactory) Option {
	return func(l *Layer) {
		l.factory = factory
	}
}

func WithReporter(reporter Reporter) Option {
	return func(l *Layer) {
		l.reporter = reporter
	}
}

// Layer stands in for a WMS layer until its configuration is known and
// delegates to it afterwards.
type Layer struct {
	descriptor Descriptor
	fetcher    CapabilitiesFetcher
	factory    LayerFactory
	reporter   Reporter

	done chan struct{}

	mu      sync.RWMutex
	wrapped globe.Layer
	config  *wms.LayerConfiguration
	err     error
}

var _ globe.Layer = (*Layer)(nil)

// New returns a pending layer and starts retrieving its configuration in
// the background. It never blocks and never fails.
func New(d Descriptor, opts ...Option) *Layer {
	l := &Layer{
		descriptor: d,
		fetcher:    wms.NewFetcher(wms.DefaultTimeout),
		factory:    NewWMSLayer,
		reporter:   LogReporter,
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	go l.load()

	return l
}

// NewWMSLayer is the default LayerFactory.
func NewWMSLayer(config *wms.LayerConfiguration) (globe.Layer, error) {
	return globe.NewWMSLayer(config)
}

func (l *Layer) load() {
	defer close(l.done)

	wrapped, config, err := l.resolve()
	if err != nil {
		capabilitiesFetchTotal.WithLabelValues(outcome(err)).Inc()

		l.mu.Lock()
		l.err = err
		l.mu.Unlock()

		l.reporter.Report(l.descriptor, err)
		return
	}

	capabilitiesFetchTotal.WithLabelValues(outcomeReady).Inc()
	layersReady.Inc()

	l.mu.Lock()
	l.wrapped = wrapped
	l.config = config
	l.mu.Unlock()
}

func (l *Layer) resolve() (globe.Layer, *wms.LayerConfiguration, error) {
	caps, err := l.fetcher.Fetch(context.Background(), l.descriptor.ServiceAddress)
	if err != nil {
		return nil, nil, err
	}

	config, err := wms.ResolveLayer(caps, l.descriptor.LayerIdentifier)
	if err != nil {
		return nil, nil, err
	}

	wrapped, err := l.factory(config)
	if err == nil && wrapped == nil {
		err = errors.New("layer factory returned no layer")
	}
	if err != nil {
		return nil, nil, &wms.ParseError{Text: "could not construct layer", Err: err}
	}

	return wrapped, config, nil
}

func (l *Layer) layer() globe.Layer {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.wrapped
}

func (l *Layer) Descriptor() Descriptor {
	return l.descriptor
}

func (l *Layer) DisplayName() string {
	if l.descriptor.DisplayName == "" {
		if wrapped := l.layer(); wrapped != nil {
			return wrapped.DisplayName()
		}
	}
	return l.descriptor.DisplayName
}

func (l *Layer) State() State {
	if l.layer() != nil {
		return StateReady
	}
	return StatePending
}

// Done is closed once the configuration attempt has finished, whether or
// not it succeeded.
func (l *Layer) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until Done is closed or ctx ends and returns the error of the
// configuration attempt.
func (l *Layer) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return l.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns why the layer stays pending, or nil.
func (l *Layer) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.err
}

func (l *Layer) Configuration() (*wms.LayerConfiguration, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.config, l.config != nil
}

func (l *Layer) LegendURL() string {
	if config, ok := l.Configuration(); ok {
		return config.LegendURL
	}
	return ""
}

func (l *Layer) Refresh() {
	if wrapped := l.layer(); wrapped != nil {
		wrapped.Refresh()
	}
}

func (l *Layer) DoRender(dc *globe.DrawContext) {
	if wrapped := l.layer(); wrapped != nil {
		wrapped.DoRender(dc)
	}
}

func (l *Layer) IsLayerInView(dc *globe.DrawContext) globe.Visibility {
	if wrapped := l.layer(); wrapped != nil {
		return wrapped.IsLayerInView(dc)
	}
	return globe.VisibilityUndetermined
}
