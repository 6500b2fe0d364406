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

package api

import (
	"context"

	"github.com/weftlabs/weft/core/tracing"
)

// Registry holds all registered actions, plugins, and per-environment
// stores, and provides methods to register, query, and look up actions.
//
// For internal use only. API may change without notice.
type Registry interface {
	// RegisterAction records the action under the given key. Overwriting an
	// existing key is allowed but logged at warning level.
	RegisterAction(key string, action Action)

	// LookupAction returns the action for the given key, or nil if there is
	// none. Absence is a valid result, not an error.
	LookupAction(key string) Action

	// ResolveAction looks up an action by key. On a miss, if the key
	// encodes a provider, the owning plugin's lazy initializer runs first
	// and the lookup is retried. A nil action with a nil error means the
	// action does not exist.
	ResolveAction(ctx context.Context, key string) (Action, error)

	// RegisterPlugin records the plugin in the registry. Its initializer
	// does not run until first use. It panics if a plugin with the same
	// name is already registered.
	RegisterPlugin(p Plugin)

	// LookupPlugin returns the registered plugin with the given name,
	// or nil if there is none. It does not initialize the plugin.
	LookupPlugin(name string) Plugin

	// InitAllPlugins forces initialization of every registered plugin.
	InitAllPlugins(ctx context.Context) error

	// ListActions forces initialization of every registered plugin, so the
	// listing includes every action they would contribute, then returns a
	// snapshot of all action descriptors sorted by key.
	ListActions(ctx context.Context) ([]ActionDesc, error)

	// ListPlugins returns all registered plugins.
	ListPlugins() []Plugin

	// RegisterTraceStoreProvider registers a lazy provider for the trace
	// store of the given environment. The provider runs at most once.
	RegisterTraceStoreProvider(env Environment, f func(ctx context.Context) (tracing.Store, error))

	// RegisterFlowStateStoreProvider registers a lazy provider for the flow
	// state store of the given environment. The provider runs at most once.
	RegisterFlowStateStoreProvider(env Environment, f func(ctx context.Context) (FlowStateStore, error))

	// LookupTraceStore returns the trace store for the environment,
	// initializing it if needed. An unconfigured environment yields
	// (nil, nil); default-store fallback is left to the caller.
	LookupTraceStore(ctx context.Context, env Environment) (tracing.Store, error)

	// LookupFlowStateStore returns the flow state store for the
	// environment, initializing it if needed. An unconfigured environment
	// yields (nil, nil).
	LookupFlowStateStore(ctx context.Context, env Environment) (FlowStateStore, error)

	// TracingState returns the tracing state shared by all actions
	// registered with this registry.
	TracingState() *tracing.State

	// FlushTracing force-flushes every registered span processor.
	FlushTracing(ctx context.Context) error
}
