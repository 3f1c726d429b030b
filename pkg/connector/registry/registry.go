// Package registry maps connector names to factories. Connector
// packages register themselves in init, so importing a connector is
// enough to make it available by name.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/parallaxworks/parallax/pkg/config"
	"github.com/parallaxworks/parallax/pkg/connector/core"
	"github.com/parallaxworks/parallax/pkg/errors"
	"github.com/parallaxworks/parallax/pkg/logger"
)

// SourceFactory builds a source connector from its configuration.
type SourceFactory func(config *config.BaseConfig) (core.Source, error)

// DestinationFactory builds a destination connector from its
// configuration.
type DestinationFactory func(config *config.BaseConfig) (core.Destination, error)

// factorySet is one name-to-factory table. The kind label only feeds
// error messages.
type factorySet[T any] struct {
	kind string

	mu     sync.RWMutex
	byName map[string]func(*config.BaseConfig) (T, error)
}

func newFactorySet[T any](kind string) *factorySet[T] {
	return &factorySet[T]{
		kind:   kind,
		byName: make(map[string]func(*config.BaseConfig) (T, error)),
	}
}

func (fs *factorySet[T]) register(name string, factory func(*config.BaseConfig) (T, error)) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, dup := fs.byName[name]; dup {
		return errors.Newf(errors.ErrorTypeConfig, "%s connector %s already registered", fs.kind, name)
	}
	fs.byName[name] = factory
	return nil
}

func (fs *factorySet[T]) create(name string, cfg *config.BaseConfig) (T, error) {
	fs.mu.RLock()
	factory, ok := fs.byName[name]
	fs.mu.RUnlock()

	var zero T
	if !ok {
		return zero, errors.Newf(errors.ErrorTypeConfig, "%s connector %s not found", fs.kind, name)
	}

	built, err := factory(cfg)
	if err != nil {
		return zero, errors.Wrap(err, errors.ErrorTypeConfig,
			fmt.Sprintf("failed to create %s connector %s", fs.kind, name))
	}
	return built, nil
}

func (fs *factorySet[T]) names() []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	out := make([]string, 0, len(fs.byName))
	for name := range fs.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Registry holds the known source and destination factories.
type Registry struct {
	logger       *zap.Logger
	sources      *factorySet[core.Source]
	destinations *factorySet[core.Destination]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:       logger.Get().With(zap.String("component", "connector_registry")),
		sources:      newFactorySet[core.Source]("source"),
		destinations: newFactorySet[core.Destination]("destination"),
	}
}

// RegisterSource adds a source factory under name. Names are unique;
// registering a taken name is an error.
func (r *Registry) RegisterSource(name string, factory SourceFactory) error {
	if err := r.sources.register(name, factory); err != nil {
		return err
	}
	r.logger.Info("source connector registered", zap.String("name", name))
	return nil
}

// RegisterDestination adds a destination factory under name.
func (r *Registry) RegisterDestination(name string, factory DestinationFactory) error {
	if err := r.destinations.register(name, factory); err != nil {
		return err
	}
	r.logger.Info("destination connector registered", zap.String("name", name))
	return nil
}

// CreateSource instantiates the named source with cfg.
func (r *Registry) CreateSource(name string, cfg *config.BaseConfig) (core.Source, error) {
	return r.sources.create(name, cfg)
}

// CreateDestination instantiates the named destination with cfg.
func (r *Registry) CreateDestination(name string, cfg *config.BaseConfig) (core.Destination, error) {
	return r.destinations.create(name, cfg)
}

// ListSources returns registered source names, sorted.
func (r *Registry) ListSources() []string {
	return r.sources.names()
}

// ListDestinations returns registered destination names, sorted.
func (r *Registry) ListDestinations() []string {
	return r.destinations.names()
}

// The process-wide registry that init-time registration targets.
var globalRegistry = NewRegistry()

// RegisterSource registers a source factory in the global registry.
func RegisterSource(name string, factory SourceFactory) error {
	return globalRegistry.RegisterSource(name, factory)
}

// RegisterDestination registers a destination factory in the global
// registry.
func RegisterDestination(name string, factory DestinationFactory) error {
	return globalRegistry.RegisterDestination(name, factory)
}

// CreateSource instantiates a source from the global registry.
func CreateSource(name string, cfg *config.BaseConfig) (core.Source, error) {
	return globalRegistry.CreateSource(name, cfg)
}

// CreateDestination instantiates a destination from the global
// registry.
func CreateDestination(name string, cfg *config.BaseConfig) (core.Destination, error) {
	return globalRegistry.CreateDestination(name, cfg)
}

// ListSources returns the global registry's source names, sorted.
func ListSources() []string {
	return globalRegistry.ListSources()
}

// ListDestinations returns the global registry's destination names,
// sorted.
func ListDestinations() []string {
	return globalRegistry.ListDestinations()
}
