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
	"fmt"
	"sync"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/weftlabs/weft/core/api"
	"github.com/weftlabs/weft/core/logger"
	"github.com/weftlabs/weft/core/tracing"
	"github.com/weftlabs/weft/internal/base"
	"github.com/weftlabs/weft/internal/metrics"
)

// StreamCallback is a function that is called during streaming to return the
// next chunk of the stream.
type StreamCallback[Stream any] = func(context.Context, Stream) error

// Func is the type of function that actions and flows execute.
// It takes an input of type In and returns an output of type Out, optionally
// streaming values of type Stream incrementally by invoking a callback.
// If the callback is non-nil and the function supports streaming, it should
// stream the results by invoking the callback periodically, ultimately
// returning with a final return value; otherwise it should ignore the
// callback and just return a result.
type Func[In, Out, Stream any] = func(context.Context, In, StreamCallback[Stream]) (Out, error)

// An ActionDef is a named, observable operation that underlies all primitives
// of the runtime. It consists of a function that takes an input of type In and
// returns an output of type Out, optionally streaming values of type Stream
// incrementally by invoking a callback. It optionally has other metadata, like
// a description and JSON Schemas for its input and output.
//
// Each time an ActionDef is run, it results in a new trace span.
type ActionDef[In, Out, Stream any] struct {
	name         string
	atype        api.ActionType
	fn           Func[In, Out, Stream]
	tstate       *tracing.State
	inputSchema  *jsonschema.Schema
	outputSchema *jsonschema.Schema
	// optional
	description string
	metadata    map[string]any
}

type noStream = func(context.Context, struct{}) error

// fallbackTracingState serves actions that run without ever being registered.
var fallbackTracingState = sync.OnceValue(tracing.NewState)

// DefineAction creates a new non-streaming action and registers it.
func DefineAction[In, Out any](
	r api.Registry,
	name string,
	atype api.ActionType,
	metadata map[string]any,
	fn func(context.Context, In) (Out, error),
) *ActionDef[In, Out, struct{}] {
	return defineAction(r, name, atype, metadata, nil,
		func(ctx context.Context, in In, _ noStream) (Out, error) {
			return fn(ctx, in)
		})
}

// DefineStreamingAction creates a new streaming action and registers it.
func DefineStreamingAction[In, Out, Stream any](
	r api.Registry,
	name string,
	atype api.ActionType,
	metadata map[string]any,
	fn Func[In, Out, Stream],
) *ActionDef[In, Out, Stream] {
	return defineAction(r, name, atype, metadata, nil, fn)
}

// DefineActionWithInputSchema creates a new action and registers it.
// This differs from DefineAction in that the input schema is
// provided rather than inferred; the static input type is "any".
func DefineActionWithInputSchema[Out any](
	r api.Registry,
	name string,
	atype api.ActionType,
	metadata map[string]any,
	inputSchema *jsonschema.Schema,
	fn func(context.Context, any) (Out, error),
) *ActionDef[any, Out, struct{}] {
	return defineAction(r, name, atype, metadata, inputSchema,
		func(ctx context.Context, in any, _ noStream) (Out, error) {
			return fn(ctx, in)
		})
}

// defineAction creates an action and registers it with the given registry.
func defineAction[In, Out, Stream any](
	r api.Registry,
	name string,
	atype api.ActionType,
	metadata map[string]any,
	inputSchema *jsonschema.Schema,
	fn Func[In, Out, Stream],
) *ActionDef[In, Out, Stream] {
	a := NewAction(name, atype, metadata, inputSchema, fn)
	a.Register(r)
	return a
}

// NewAction creates a new Action without registering it.
// If inputSchema is nil, it is inferred from In.
func NewAction[In, Out, Stream any](
	name string,
	atype api.ActionType,
	metadata map[string]any,
	inputSchema *jsonschema.Schema,
	fn Func[In, Out, Stream],
) *ActionDef[In, Out, Stream] {
	var i In
	var o Out
	if inputSchema == nil {
		inputSchema = base.InferJSONSchema(i)
	}
	var description string
	if desc, ok := metadata["description"].(string); ok {
		description = desc
	}
	return &ActionDef[In, Out, Stream]{
		name:  name,
		atype: atype,
		fn: func(ctx context.Context, input In, cb StreamCallback[Stream]) (Out, error) {
			// Run always wraps fn in a span, so the attr cannot fail here.
			_ = tracing.SetCustomMetadataAttr(ctx, "subtype", string(atype))
			return fn(ctx, input, cb)
		},
		inputSchema:  inputSchema,
		outputSchema: base.InferJSONSchema(o),
		description:  description,
		metadata:     metadata,
	}
}

// Name returns the action's name.
func (a *ActionDef[In, Out, Stream]) Name() string { return a.name }

// Register records the action in the registry and attaches the registry's
// tracing state, so the action's spans reach the registry's exporters.
func (a *ActionDef[In, Out, Stream]) Register(r api.Registry) {
	a.tstate = r.TracingState()
	r.RegisterAction(api.NewKey(a.atype, "", a.name), a)
}

// Run executes the action's function in a new trace span.
// Input validation happens inside the span, so a validation failure is
// recorded as a span error.
func (a *ActionDef[In, Out, Stream]) Run(ctx context.Context, input In, cb StreamCallback[Stream]) (output Out, err error) {
	logger.FromContext(ctx).Debug("Action.Run",
		"name", a.name,
		"input", fmt.Sprintf("%#v", input))
	defer func() {
		logger.FromContext(ctx).Debug("Action.Run",
			"name", a.name,
			"output", fmt.Sprintf("%#v", output),
			"err", err)
	}()
	tstate := a.tstate
	if tstate == nil {
		// This action has probably not been registered.
		tstate = fallbackTracingState()
	}
	return tracing.RunInNewSpan(ctx, tstate, &tracing.SpanMetadata{Name: a.name, Type: "action"}, input,
		func(ctx context.Context, input In) (Out, error) {
			start := time.Now()
			var err error
			if err = base.ValidateValue(input, a.inputSchema); err != nil {
				err = fmt.Errorf("invalid input: %w", err)
			}
			var output Out
			if err == nil {
				output, err = a.fn(ctx, input, cb)
				if err == nil {
					if err = base.ValidateValue(output, a.outputSchema); err != nil {
						err = fmt.Errorf("invalid output: %w", err)
					}
				}
			}
			latency := time.Since(start)
			if err != nil {
				metrics.WriteActionFailure(ctx, a.name, latency, err)
				return base.Zero[Out](), err
			}
			metrics.WriteActionSuccess(ctx, a.name, latency)
			return output, nil
		})
}

// RunJSON runs the action with a JSON input, and returns a JSON result.
func (a *ActionDef[In, Out, Stream]) RunJSON(ctx context.Context, input json.RawMessage, cb func(context.Context, json.RawMessage) error) (json.RawMessage, error) {
	// Validate input before unmarshaling it because invalid or unknown fields
	// would be discarded in the process.
	if err := base.ValidateJSON(input, a.inputSchema); err != nil {
		return nil, NewError(INVALID_ARGUMENT, "%s", err.Error())
	}
	var in In
	if input != nil {
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, err
		}
	}
	var callback StreamCallback[Stream]
	if cb != nil {
		callback = func(ctx context.Context, s Stream) error {
			bytes, err := json.Marshal(s)
			if err != nil {
				return err
			}
			return cb(ctx, json.RawMessage(bytes))
		}
	}
	out, err := a.Run(ctx, in, callback)
	if err != nil {
		return nil, err
	}
	bytes, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(bytes), nil
}

// RunJSONWithTelemetry is like RunJSON but also reports the trace and span
// IDs of the invocation's root span.
func (a *ActionDef[In, Out, Stream]) RunJSONWithTelemetry(ctx context.Context, input json.RawMessage, cb func(context.Context, json.RawMessage) error) (*api.ActionRunResult[json.RawMessage], error) {
	res := &api.ActionRunResult[json.RawMessage]{}
	ctx = tracing.WithTraceStartCallback(ctx, func(traceID, spanID string) {
		res.TraceID = traceID
		res.SpanID = spanID
	})
	out, err := a.RunJSON(ctx, input, cb)
	if err != nil {
		return res, err
	}
	res.Result = out
	return res, nil
}

// Desc returns a descriptor of the action.
func (a *ActionDef[In, Out, Stream]) Desc() api.ActionDesc {
	ad := api.ActionDesc{
		Type:         a.atype,
		Key:          api.NewKey(a.atype, "", a.name),
		Name:         a.name,
		Description:  a.description,
		Metadata:     a.metadata,
		InputSchema:  base.SchemaAsMap(a.inputSchema),
		OutputSchema: base.SchemaAsMap(a.outputSchema),
	}
	if ad.Metadata == nil {
		ad.Metadata = map[string]any{}
	}
	return ad
}

// ResolveActionFor returns the action for the given type and name, running
// the owning plugin's initializer if necessary. It returns nil if no such
// action exists and panics if the action is of the wrong type.
func ResolveActionFor[In, Out, Stream any](ctx context.Context, r api.Registry, typ api.ActionType, name string) (*ActionDef[In, Out, Stream], error) {
	a, err := r.ResolveAction(ctx, api.NewKey(typ, "", name))
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, nil
	}
	return a.(*ActionDef[In, Out, Stream]), nil
}

// LookupActionFor returns the action for the given type and name in the
// registry, or nil if there is none. It does not trigger plugin
// initialization and panics if the action is of the wrong type.
func LookupActionFor[In, Out, Stream any](r api.Registry, typ api.ActionType, name string) *ActionDef[In, Out, Stream] {
	a := r.LookupAction(api.NewKey(typ, "", name))
	if a == nil {
		return nil
	}
	return a.(*ActionDef[In, Out, Stream])
}
