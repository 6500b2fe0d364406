// Copyright 2025 The Weft Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package registry provides the canonical implementation of [api.Registry].
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/weftlabs/weft/core/api"
	"github.com/weftlabs/weft/core/tracing"
)

// EnvVar is the environment variable that selects the runtime environment.
const EnvVar = "WEFT_ENV"

// CurrentEnvironment returns the environment the program is running in,
// as configured by the WEFT_ENV environment variable.
func CurrentEnvironment() api.Environment {
	if v := os.Getenv(EnvVar); v != "" {
		return api.Environment(v)
	}
	return api.EnvironmentProd
}

// pluginEntry memoizes a plugin's lazy initialization. The once/result pair
// guarantees Init runs at most once per registry even under concurrent
// resolution.
type pluginEntry struct {
	plugin api.Plugin
	once   sync.Once
	err    error
}

// storeProvider memoizes a lazy per-environment store constructor.
type storeProvider[T any] struct {
	f      func(context.Context) (T, error)
	once   sync.Once
	store  T
	err    error
}

func (p *storeProvider[T]) get(ctx context.Context) (T, error) {
	p.once.Do(func() {
		p.store, p.err = p.f(ctx)
	})
	return p.store, p.err
}

// Registry holds all registered actions and plugins as well as the tracing
// state and the per-environment store providers.
type Registry struct {
	tstate *tracing.State

	mu              sync.Mutex
	actions         map[string]api.Action
	plugins         map[string]*pluginEntry
	pluginOrder     []string
	traceStores     map[api.Environment]*storeProvider[tracing.Store]
	flowStateStores map[api.Environment]*storeProvider[api.FlowStateStore]
}

// New creates a new registry with a fresh tracing state.
func New() (*Registry, error) {
	r := &Registry{
		actions:         map[string]api.Action{},
		plugins:         map[string]*pluginEntry{},
		traceStores:     map[api.Environment]*storeProvider[tracing.Store]{},
		flowStateStores: map[api.Environment]*storeProvider[api.FlowStateStore]{},
	}
	r.tstate = tracing.NewState()
	return r, nil
}

// TracingState implements [api.Registry].
func (r *Registry) TracingState() *tracing.State { return r.tstate }

// RegisterSpanProcessor registers an OpenTelemetry span processor on the
// registry's tracing state.
func (r *Registry) RegisterSpanProcessor(sp sdktrace.SpanProcessor) {
	r.tstate.RegisterSpanProcessor(sp)
}

// FlushTracing implements [api.Registry].
func (r *Registry) FlushTracing(ctx context.Context) error {
	return r.tstate.Flush(ctx)
}

// RegisterPlugin implements [api.Registry]. The plugin's initializer does
// not run here; it runs on first use.
func (r *Registry) RegisterPlugin(p api.Plugin) {
	name := p.Name()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plugins[name]; ok {
		panic(fmt.Sprintf("registry: plugin %q is already registered", name))
	}
	r.plugins[name] = &pluginEntry{plugin: p}
	r.pluginOrder = append(r.pluginOrder, name)
	slog.Debug("registered plugin", "name", name)
}

// LookupPlugin implements [api.Registry].
func (r *Registry) LookupPlugin(name string) api.Plugin {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.plugins[name]; ok {
		return e.plugin
	}
	return nil
}

// ListPlugins implements [api.Registry].
func (r *Registry) ListPlugins() []api.Plugin {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps := make([]api.Plugin, 0, len(r.pluginOrder))
	for _, name := range r.pluginOrder {
		ps = append(ps, r.plugins[name].plugin)
	}
	return ps
}

// initPlugin runs the plugin's initializer exactly once and registers
// everything it contributes. Subsequent calls return the memoized error
// without re-running Init, even after a failure.
func (r *Registry) initPlugin(ctx context.Context, e *pluginEntry) error {
	e.once.Do(func() {
		ip, err := e.plugin.Init(ctx)
		if err != nil {
			e.err = fmt.Errorf("plugin %q initialization failed: %w", e.plugin.Name(), err)
			return
		}
		if ip == nil {
			return
		}
		for _, a := range ip.Actions {
			a.Register(r)
		}
		env := CurrentEnvironment()
		if ip.TraceStore != nil {
			ts := ip.TraceStore
			r.RegisterTraceStoreProvider(env, func(context.Context) (tracing.Store, error) {
				return ts, nil
			})
		}
		if ip.FlowStateStore != nil {
			fs := ip.FlowStateStore
			r.RegisterFlowStateStoreProvider(env, func(context.Context) (api.FlowStateStore, error) {
				return fs, nil
			})
		}
	})
	return e.err
}

// InitAllPlugins implements [api.Registry].
func (r *Registry) InitAllPlugins(ctx context.Context) error {
	r.mu.Lock()
	entries := make([]*pluginEntry, 0, len(r.pluginOrder))
	for _, name := range r.pluginOrder {
		entries = append(entries, r.plugins[name])
	}
	r.mu.Unlock()
	for _, e := range entries {
		if err := r.initPlugin(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// RegisterAction implements [api.Registry]. Unlike plugins, actions may be
// redefined; the newer definition wins and the collision is logged.
func (r *Registry) RegisterAction(key string, a api.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.actions[key]; ok {
		slog.Warn("overwriting existing action", "key", key)
	}
	r.actions[key] = a
	slog.Debug("registered action", "key", key)
}

// LookupAction implements [api.Registry].
func (r *Registry) LookupAction(key string) api.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.actions[key]
}

// ResolveAction implements [api.Registry]. If the key names a provider whose
// plugin has not yet been initialized, the plugin is initialized first and
// the lookup retried, so actions contributed during Init become visible.
func (r *Registry) ResolveAction(ctx context.Context, key string) (api.Action, error) {
	if a := r.LookupAction(key); a != nil {
		return a, nil
	}
	typ, provider, name := api.ParseKey(key)
	if provider == "" {
		return nil, nil
	}
	r.mu.Lock()
	e := r.plugins[provider]
	r.mu.Unlock()
	if e == nil {
		return nil, nil
	}
	if err := r.initPlugin(ctx, e); err != nil {
		return nil, err
	}
	if a := r.LookupAction(key); a != nil {
		return a, nil
	}
	// The plugin may resolve actions it did not register up front.
	if dp, ok := e.plugin.(api.DynamicPlugin); ok {
		if a := dp.ResolveAction(typ, api.NewName(provider, name)); a != nil {
			a.Register(r)
			return r.LookupAction(key), nil
		}
	}
	return nil, nil
}

// ListActions implements [api.Registry]. It initializes all plugins so the
// listing is complete, then returns a snapshot sorted by key.
func (r *Registry) ListActions(ctx context.Context) ([]api.ActionDesc, error) {
	if err := r.InitAllPlugins(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.actions))
	for key := range r.actions {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	descs := make([]api.ActionDesc, 0, len(keys))
	for _, key := range keys {
		descs = append(descs, r.actions[key].Desc())
	}
	return descs, nil
}

// RegisterTraceStoreProvider implements [api.Registry]. A later registration
// for the same environment replaces the earlier one unless the earlier
// provider already ran.
func (r *Registry) RegisterTraceStoreProvider(env api.Environment, f func(context.Context) (tracing.Store, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.traceStores[env] = &storeProvider[tracing.Store]{f: f}
}

// RegisterFlowStateStoreProvider implements [api.Registry].
func (r *Registry) RegisterFlowStateStoreProvider(env api.Environment, f func(context.Context) (api.FlowStateStore, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flowStateStores[env] = &storeProvider[api.FlowStateStore]{f: f}
}

// LookupTraceStore implements [api.Registry]. The provider for the
// environment runs at most once; an unconfigured environment yields
// (nil, nil).
func (r *Registry) LookupTraceStore(ctx context.Context, env api.Environment) (tracing.Store, error) {
	r.mu.Lock()
	p := r.traceStores[env]
	r.mu.Unlock()
	if p == nil {
		return nil, nil
	}
	return p.get(ctx)
}

// LookupFlowStateStore implements [api.Registry].
func (r *Registry) LookupFlowStateStore(ctx context.Context, env api.Environment) (api.FlowStateStore, error) {
	r.mu.Lock()
	p := r.flowStateStores[env]
	r.mu.Unlock()
	if p == nil {
		return nil, nil
	}
	return p.get(ctx)
}
