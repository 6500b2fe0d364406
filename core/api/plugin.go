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

// Plugin is the interface implemented by types that extend the runtime's
// functionality, typically by integrating external services like model
// providers, vector databases, or monitoring tools.
//
// A plugin's Init runs lazily: the registry invokes it the first time one of
// the plugin's actions is looked up, or when all actions are listed. It runs
// at most once per registry, ever, even when concurrent lookups race.
type Plugin interface {
	// Name returns the unique identifier for the plugin.
	// This name is used for registration and lookup, and appears as the
	// provider component of the plugin's action keys.
	Name() string
	// Init initializes the plugin and reports what it contributes.
	Init(ctx context.Context) (*InitializedPlugin, error)
}

// InitializedPlugin describes what a plugin contributed during Init.
// All fields are optional.
type InitializedPlugin struct {
	// Actions contributed by the plugin. The registry registers each one.
	Actions []Action
	// TraceStore, if non-nil, is registered as the trace store for the
	// current environment.
	TraceStore tracing.Store
	// FlowStateStore, if non-nil, is registered as the flow state store for
	// the current environment.
	FlowStateStore FlowStateStore
}

// DynamicPlugin is a [Plugin] that can resolve actions it did not register
// up front.
type DynamicPlugin interface {
	Plugin
	// ListActions returns descriptors of the actions the plugin is capable
	// of resolving.
	ListActions(ctx context.Context) []ActionDesc
	// ResolveAction resolves an action type and name to an [Action],
	// or nil if the plugin cannot provide it.
	ResolveAction(atype ActionType, name string) Action
}
