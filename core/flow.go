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
	"errors"
	"fmt"
	"time"

	"github.com/weftlabs/weft/core/api"
	"github.com/weftlabs/weft/core/tracing"
	"github.com/weftlabs/weft/internal/base"
	"github.com/weftlabs/weft/internal/metrics"
)

// A Flow is a user-defined action. A Flow[In, Out, Stream] represents a
// function from In to Out. The Stream parameter is for flows that support
// streaming: providing their results incrementally.
type Flow[In, Out, Stream any] ActionDef[In, Out, Stream]

// StreamingFlowValue is either a streamed value or a final output of a flow.
type StreamingFlowValue[Out, Stream any] struct {
	Done   bool
	Output Out    // valid if Done is true
	Stream Stream // valid if Done is false
}

// FlowAuthPolicy decides whether an invocation may proceed. It runs inside
// the flow's root span, before the flow function, with the action context
// (see [FromContext]) and the flow input. A non-nil error rejects the
// invocation.
type FlowAuthPolicy = func(ctx context.Context, input any) error

// flowOptions are the optional settings applied when defining a flow.
type flowOptions struct {
	authPolicy FlowAuthPolicy
	metadata   map[string]any
}

// FlowOption configures a flow at definition time.
type FlowOption func(*flowOptions)

// WithFlowAuth sets the auth policy for the flow. A rejected invocation
// fails with PERMISSION_DENIED and the flow function never runs.
func WithFlowAuth(policy FlowAuthPolicy) FlowOption {
	return func(o *flowOptions) { o.authPolicy = policy }
}

// WithFlowMetadata sets arbitrary metadata on the flow's descriptor.
// String-valued entries are also recorded on the flow's span on every
// invocation, so trace consumers can filter by them.
func WithFlowMetadata(m map[string]any) FlowOption {
	return func(o *flowOptions) { o.metadata = m }
}

// flowContextKey marks a context as running inside a flow.
var flowContextKey = base.NewContextKey[*flowContext]()

// flowContext carries the tracing state for steps of a flow.
type flowContext struct {
	tracingState *tracing.State
}

// DefineFlow creates a Flow that runs fn, and registers it as an action.
// fn takes an input of type In and returns an output of type Out.
func DefineFlow[In, Out any](r api.Registry, name string, fn func(context.Context, In) (Out, error), opts ...FlowOption) *Flow[In, Out, struct{}] {
	return DefineStreamingFlow(r, name, func(ctx context.Context, in In, _ noStream) (Out, error) {
		return fn(ctx, in)
	}, opts...)
}

// DefineStreamingFlow creates a streaming Flow that runs fn, and registers it
// as an action.
//
// fn takes an input of type In and returns an output of type Out, optionally
// streaming values of type Stream incrementally by invoking a callback.
//
// If the function supports streaming and the callback is non-nil, it should
// stream the results by invoking the callback periodically, ultimately
// returning with a final return value that includes all the streamed data.
// Otherwise, it should ignore the callback and just return a result.
func DefineStreamingFlow[In, Out, Stream any](r api.Registry, name string, fn Func[In, Out, Stream], opts ...FlowOption) *Flow[In, Out, Stream] {
	var o flowOptions
	for _, opt := range opts {
		opt(&o)
	}
	wrapped := func(ctx context.Context, input In, cb StreamCallback[Stream]) (Out, error) {
		fc := &flowContext{tracingState: r.TracingState()}
		ctx = flowContextKey.NewContext(ctx, fc)
		for k, v := range o.metadata {
			if s, ok := v.(string); ok {
				_ = tracing.SetCustomMetadataAttr(ctx, k, s)
			}
		}
		if o.authPolicy != nil {
			if err := o.authPolicy(ctx, input); err != nil {
				var re *Error
				if !errors.As(err, &re) {
					err = UserFacingError(PERMISSION_DENIED, err.Error(), nil)
				}
				return base.Zero[Out](), err
			}
		}
		start := time.Now()
		out, err := fn(ctx, input, cb)
		latency := time.Since(start)
		if err != nil {
			metrics.WriteFlowFailure(ctx, name, latency, err)
			return base.Zero[Out](), err
		}
		metrics.WriteFlowSuccess(ctx, name, latency)
		return out, nil
	}
	flow := (*Flow[In, Out, Stream])(NewAction(name, api.ActionTypeFlow, o.metadata, nil, wrapped))
	flow.Register(r)
	return flow
}

// Run runs the function fn in the context of the current flow
// and returns what fn returns.
// It returns an error if no flow is active.
//
// Each call to Run results in a new step in the flow.
// A step has its own span in the trace.
func Run[Out any](ctx context.Context, name string, fn func() (Out, error)) (Out, error) {
	fc := flowContextKey.FromContext(ctx)
	if fc == nil {
		var z Out
		return z, fmt.Errorf("flow.Run(%q): must be called from a flow", name)
	}
	return tracing.RunInNewSpan(ctx, fc.tracingState, &tracing.SpanMetadata{Name: name, Type: "flowStep"}, nil, func(ctx context.Context, _ any) (Out, error) {
		o, err := fn()
		if err != nil {
			return base.Zero[Out](), err
		}
		return o, nil
	})
}

// Name returns the name of the flow.
func (f *Flow[In, Out, Stream]) Name() string {
	return (*ActionDef[In, Out, Stream])(f).Name()
}

// RunJSON runs the flow with JSON input and streaming callback and returns
// the output as JSON.
func (f *Flow[In, Out, Stream]) RunJSON(ctx context.Context, input json.RawMessage, cb StreamCallback[json.RawMessage]) (json.RawMessage, error) {
	return (*ActionDef[In, Out, Stream])(f).RunJSON(ctx, input, cb)
}

// RunJSONWithTelemetry is like RunJSON but also reports the trace and span
// IDs of the invocation.
func (f *Flow[In, Out, Stream]) RunJSONWithTelemetry(ctx context.Context, input json.RawMessage, cb func(context.Context, json.RawMessage) error) (*api.ActionRunResult[json.RawMessage], error) {
	return (*ActionDef[In, Out, Stream])(f).RunJSONWithTelemetry(ctx, input, cb)
}

// Desc returns the descriptor of the flow.
func (f *Flow[In, Out, Stream]) Desc() api.ActionDesc {
	return (*ActionDef[In, Out, Stream])(f).Desc()
}

// Register records the flow in the registry.
func (f *Flow[In, Out, Stream]) Register(r api.Registry) {
	(*ActionDef[In, Out, Stream])(f).Register(r)
}

// Run runs the flow with the given input and returns the output.
func (f *Flow[In, Out, Stream]) Run(ctx context.Context, input In) (Out, error) {
	return (*ActionDef[In, Out, Stream])(f).Run(ctx, input, nil)
}

// Stream runs the flow with the given input and streams the output.
// It returns a function whose argument function (the "yield function") will
// be repeatedly called with the results.
//
// If the yield function is passed a non-nil error, the flow has failed with
// that error; the yield function will not be called again.
//
// If the yield function's [StreamingFlowValue] argument has Done == true, the
// value's Output field contains the final output; the yield function will not
// be called again.
//
// Otherwise the Stream field of the passed [StreamingFlowValue] holds a
// streamed result.
func (f *Flow[In, Out, Stream]) Stream(ctx context.Context, input In) func(func(*StreamingFlowValue[Out, Stream], error) bool) {
	return func(yield func(*StreamingFlowValue[Out, Stream], error) bool) {
		cb := func(ctx context.Context, s Stream) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !yield(&StreamingFlowValue[Out, Stream]{Stream: s}, nil) {
				return errStop
			}
			return nil
		}
		output, err := (*ActionDef[In, Out, Stream])(f).Run(ctx, input, cb)
		if err != nil {
			yield(nil, err)
		} else {
			yield(&StreamingFlowValue[Out, Stream]{Done: true, Output: output}, nil)
		}
	}
}

var errStop = errors.New("stop")
