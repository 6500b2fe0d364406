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

package core

import (
	"context"
	"encoding/json"

	"github.com/weftlabs/weft/internal/base"
)

var actionCtxKey = base.NewContextKey[int]()

// ActionContext is side channel data carried alongside an action invocation,
// e.g. authentication information extracted from a request.
type ActionContext = map[string]any

// WithActionContext returns a new Context with the action context value set.
func WithActionContext(ctx context.Context, actionCtx ActionContext) context.Context {
	return context.WithValue(ctx, actionCtxKey, actionCtx)
}

// FromContext returns the action context from ctx, or nil if none is set.
func FromContext(ctx context.Context) ActionContext {
	val := ctx.Value(actionCtxKey)
	if val == nil {
		return nil
	}
	return val.(ActionContext)
}

// RequestData is the data associated with an incoming request.
type RequestData struct {
	Method  string            // HTTP method of the request (e.g. "GET", "POST").
	Headers map[string]string // Request headers; keys are lowercase header names.
	Input   json.RawMessage   // Body of the request.
}

// ContextProvider derives an ActionContext from an incoming request, e.g. by
// verifying an Authorization header.
type ContextProvider = func(ctx context.Context, req RequestData) (ActionContext, error)
