// Package registry manages the lifecycle of AIMS modules: registration,
// dependency ordering, initialization, start and stop.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/HerbHall/aims/pkg/plugin"
	"go.uber.org/zap"
)

// Compile-time interface guard.
var _ plugin.PluginResolver = (*Registry)(nil)

// Registry holds registered modules and their computed start order.
type Registry struct {
	mu       sync.RWMutex
	plugins  map[string]plugin.Plugin
	order    []string // Registration order until Validate, dependency order after.
	disabled map[string]string
	logger   *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		plugins:  make(map[string]plugin.Plugin),
		disabled: make(map[string]string),
		logger:   logger,
	}
}

// Register adds p. Names must be unique and non-empty.
func (r *Registry) Register(p plugin.Plugin) error {
	info := p.Info()
	if info.Name == "" {
		return errors.New("plugin name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[info.Name]; exists {
		return fmt.Errorf("plugin %q already registered", info.Name)
	}
	r.plugins[info.Name] = p
	r.order = append(r.order, info.Name)
	r.logger.Info("plugin registered",
		zap.String("name", info.Name),
		zap.String("version", info.Version),
	)
	return nil
}

// Validate checks API versions and dependencies, disables optional modules
// whose requirements cannot be met (cascading to their dependents), and
// sorts the remaining modules so dependencies come first.
func (r *Registry) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		info := r.plugins[name].Info()
		if info.APIVersion < plugin.APIVersionMin || info.APIVersion > plugin.APIVersionCurrent {
			reason := fmt.Sprintf("unsupported API version %d", info.APIVersion)
			if info.Required {
				return fmt.Errorf("plugin %q: %s", name, reason)
			}
			r.disable(name, reason)
		}
	}

	// Missing dependencies and cascades; iterate until stable.
	for changed := true; changed; {
		changed = false
		for _, name := range r.order {
			if _, off := r.disabled[name]; off {
				continue
			}
			info := r.plugins[name].Info()
			for _, dep := range info.Dependencies {
				_, exists := r.plugins[dep]
				_, depOff := r.disabled[dep]
				if exists && !depOff {
					continue
				}
				reason := fmt.Sprintf("dependency %q unavailable", dep)
				if info.Required {
					return fmt.Errorf("plugin %q: %s", name, reason)
				}
				r.disable(name, reason)
				changed = true
				break
			}
		}
	}

	sorted, err := r.topoSort()
	if err != nil {
		return err
	}
	r.order = sorted
	return nil
}

// topoSort orders modules so that every dependency precedes its dependents.
// Ties are broken by name for a stable order.
func (r *Registry) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(r.plugins))
	dependents := make(map[string][]string)
	for name, p := range r.plugins {
		if _, ok := inDegree[name]; !ok {
			inDegree[name] = 0
		}
		for _, dep := range p.Info().Dependencies {
			if _, ok := r.plugins[dep]; !ok {
				continue
			}
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, d := range inDegree {
		if d == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	out := make([]string, 0, len(r.plugins))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		out = append(out, name)

		next := dependents[name]
		sort.Strings(next)
		for _, dep := range next {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(out) != len(r.plugins) {
		return nil, errors.New("plugin dependency cycle detected")
	}
	return out, nil
}

// disable marks name disabled. Callers hold r.mu.
func (r *Registry) disable(name, reason string) {
	r.disabled[name] = reason
	r.logger.Warn("plugin disabled", zap.String("name", name), zap.String("reason", reason))
}

// IsDisabled reports whether name was disabled during validation or init.
func (r *Registry) IsDisabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, off := r.disabled[name]
	return off
}

// InitAll initializes enabled modules in dependency order. deps builds the
// Dependencies for each module by name.
func (r *Registry) InitAll(ctx context.Context, deps func(name string) plugin.Dependencies) error {
	for _, name := range r.enabled() {
		p, _ := r.Get(name)
		r.logger.Info("initializing plugin", zap.String("name", name))
		if err := p.Init(ctx, deps(name)); err != nil {
			if p.Info().Required {
				return fmt.Errorf("initialize plugin %q: %w", name, err)
			}
			r.mu.Lock()
			r.disable(name, err.Error())
			r.mu.Unlock()
		}
	}
	return nil
}

// StartAll starts enabled modules in dependency order.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, name := range r.enabled() {
		p, _ := r.Get(name)
		r.logger.Info("starting plugin", zap.String("name", name))
		if err := p.Start(ctx); err != nil {
			return fmt.Errorf("start plugin %q: %w", name, err)
		}
	}
	return nil
}

// StopAll stops enabled modules in reverse dependency order.
func (r *Registry) StopAll(ctx context.Context) {
	names := r.enabled()
	for i := len(names) - 1; i >= 0; i-- {
		p, _ := r.Get(names[i])
		r.logger.Info("stopping plugin", zap.String("name", names[i]))
		if err := p.Stop(ctx); err != nil {
			r.logger.Error("failed to stop plugin", zap.String("name", names[i]), zap.Error(err))
		}
	}
}

// Get returns a registered module by name, enabled or not.
func (r *Registry) Get(name string) (plugin.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// All returns enabled modules in order.
func (r *Registry) All() []plugin.Plugin {
	names := r.enabled()
	out := make([]plugin.Plugin, 0, len(names))
	for _, name := range names {
		p, _ := r.Get(name)
		out = append(out, p)
	}
	return out
}

// AllRoutes returns the routes of enabled modules implementing
// plugin.HTTPProvider, keyed by module name.
func (r *Registry) AllRoutes() map[string][]plugin.Route {
	routes := make(map[string][]plugin.Route)
	for _, p := range r.All() {
		hp, ok := p.(plugin.HTTPProvider)
		if !ok {
			continue
		}
		if rs := hp.Routes(); len(rs) > 0 {
			routes[p.Info().Name] = rs
		}
	}
	return routes
}

// Subscribe attaches the declared subscriptions of every enabled module
// implementing plugin.EventSubscriber to bus. An empty topic subscribes to
// all events. The returned function detaches them all.
func (r *Registry) Subscribe(bus plugin.EventBus) func() {
	var unsubs []func()
	for _, p := range r.All() {
		es, ok := p.(plugin.EventSubscriber)
		if !ok {
			continue
		}
		for _, sub := range es.Subscriptions() {
			if sub.Topic == "" {
				unsubs = append(unsubs, bus.SubscribeAll(sub.Handler))
			} else {
				unsubs = append(unsubs, bus.Subscribe(sub.Topic, sub.Handler))
			}
			r.logger.Debug("event subscription",
				zap.String("plugin", p.Info().Name),
				zap.String("topic", sub.Topic),
			)
		}
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (r *Registry) enabled() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if _, off := r.disabled[name]; !off {
			out = append(out, name)
		}
	}
	return out
}
