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

// Package api defines the interfaces shared between the runtime's
// packages. It is primarily intended for internal use and for plugins.
package api

import (
	"context"
	"encoding/json"
)

// ActionRunResult carries an action result along with its telemetry.
type ActionRunResult[T any] struct {
	Result  T
	TraceID string
	SpanID  string
}

// Action is the interface that all runtime primitives (e.g. flows,
// background actions, plugin-contributed operations) have in common.
type Action interface {
	Registerable
	// Name returns the name of the action.
	Name() string
	// RunJSON runs the action with the given JSON input and streaming
	// callback and returns the output as JSON.
	RunJSON(ctx context.Context, input json.RawMessage, cb func(context.Context, json.RawMessage) error) (json.RawMessage, error)
	// RunJSONWithTelemetry is like RunJSON but also reports the trace and
	// span IDs of the invocation.
	RunJSONWithTelemetry(ctx context.Context, input json.RawMessage, cb func(context.Context, json.RawMessage) error) (*ActionRunResult[json.RawMessage], error)
	// Desc returns a descriptor of the action. It can be used by discovery
	// tooling without invoking the action.
	Desc() ActionDesc
}

// Registerable allows a primitive to be registered with a registry.
type Registerable interface {
	Register(r Registry)
}

// An ActionType is the kind of an action.
type ActionType string

const (
	ActionTypeFlow            ActionType = "flow"
	ActionTypeModel           ActionType = "model"
	ActionTypeRetriever       ActionType = "retriever"
	ActionTypeIndexer         ActionType = "indexer"
	ActionTypeEmbedder        ActionType = "embedder"
	ActionTypeEvaluator       ActionType = "evaluator"
	ActionTypeTool            ActionType = "tool"
	ActionTypeUtil            ActionType = "util"
	ActionTypeCustom          ActionType = "custom"
	ActionTypeBackground      ActionType = "background"
	ActionTypeCheckOperation  ActionType = "check-operation"
	ActionTypeCancelOperation ActionType = "cancel-operation"
)

// ActionDesc is a descriptor of an action.
type ActionDesc struct {
	Type         ActionType     `json:"type"`         // Type of the action.
	Key          string         `json:"key"`          // Key of the action in the registry.
	Name         string         `json:"name"`         // Name of the action.
	Description  string         `json:"description"`  // Description of the action.
	InputSchema  map[string]any `json:"inputSchema"`  // JSON schema to validate the action's input.
	OutputSchema map[string]any `json:"outputSchema"` // JSON schema to validate the action's output.
	Metadata     map[string]any `json:"metadata"`     // Metadata for the action.
}
