// Package plugin manages the lifecycle of registered server modules.
package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/perquyk/snutz/pkg/plugin"
)

// Registry manages the lifecycle of all registered modules.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]plugin.Module
	order   []string
	logger  *zap.Logger
}

// NewRegistry creates a new module registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		modules: make(map[string]plugin.Module),
		logger:  logger,
	}
}

// Register adds a module to the registry.
func (r *Registry) Register(m plugin.Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := m.Name()
	if _, exists := r.modules[name]; exists {
		return fmt.Errorf("module %q already registered", name)
	}

	r.modules[name] = m
	r.order = append(r.order, name)
	r.logger.Info("module registered", zap.String("name", name), zap.String("version", m.Version()))
	return nil
}

// InitAll initializes all registered modules with their configuration.
func (r *Registry) InitAll(config *viper.Viper) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		m := r.modules[name]

		moduleConfig := config.Sub("modules." + name)
		if moduleConfig == nil {
			moduleConfig = viper.New()
		}

		r.logger.Info("initializing module", zap.String("name", name))
		if err := m.Init(moduleConfig, r.logger.Named(name)); err != nil {
			return fmt.Errorf("failed to initialize module %q: %w", name, err)
		}
	}
	return nil
}

// StartAll starts all initialized modules.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		m := r.modules[name]
		r.logger.Info("starting module", zap.String("name", name))
		if err := m.Start(ctx); err != nil {
			return fmt.Errorf("failed to start module %q: %w", name, err)
		}
	}
	return nil
}

// StopAll stops all modules in reverse registration order.
func (r *Registry) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		m := r.modules[name]
		r.logger.Info("stopping module", zap.String("name", name))
		if err := m.Stop(); err != nil {
			r.logger.Error("failed to stop module", zap.String("name", name), zap.Error(err))
		}
	}
}

// Get returns a module by name, or nil if not registered.
func (r *Registry) Get(name string) plugin.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modules[name]
}

// All returns all registered modules in registration order.
func (r *Registry) All() []plugin.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]plugin.Module, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.modules[name])
	}
	return out
}

// AllRoutes returns every module's routes, keyed by module name.
func (r *Registry) AllRoutes() map[string][]plugin.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]plugin.Route, len(r.order))
	for _, name := range r.order {
		if hp, ok := r.modules[name].(plugin.HTTPProvider); ok {
			out[name] = hp.Routes()
		}
	}
	return out
}
