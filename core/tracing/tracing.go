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

// Package tracing provides support for execution traces.
package tracing

import (
	"context"
	"errors"
	"sync"

	"github.com/weftlabs/weft/core/logger"
	"github.com/weftlabs/weft/internal/base"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const attrPrefix = "weft"

// State holds OpenTelemetry values for creating traces.
type State struct {
	tp     *sdktrace.TracerProvider // references span processors
	tracer trace.Tracer             // returned from tp.Tracer(), cached
}

// NewState creates a fresh tracing state with no span processors registered.
func NewState() *State {
	tp := sdktrace.NewTracerProvider()
	return &State{
		tp:     tp,
		tracer: tp.Tracer("weft-tracer", trace.WithInstrumentationVersion("v1")),
	}
}

// RegisterSpanProcessor adds an OpenTelemetry SpanProcessor to the state.
func (ts *State) RegisterSpanProcessor(sp sdktrace.SpanProcessor) {
	ts.tp.RegisterSpanProcessor(sp)
}

// WriteTelemetryImmediate adds a telemetry client to the state.
// Traces are saved as soon as they finish. Use this for a client with a
// fast Save method, such as one that writes to a local file.
func (ts *State) WriteTelemetryImmediate(client TelemetryClient) {
	e := newClientSpanExporter(client)
	ts.RegisterSpanProcessor(sdktrace.NewSimpleSpanProcessor(e))
}

// WriteTelemetryBatch adds a telemetry client to the state.
// Traces are batched before being sent for processing. Use this for a
// client with a potentially expensive Save method, such as one that makes
// an RPC. Callers must invoke the returned function at the end of the
// program to flush the final batch and perform other cleanup.
func (ts *State) WriteTelemetryBatch(client TelemetryClient) (shutdown func(context.Context) error) {
	e := newClientSpanExporter(client)
	ts.RegisterSpanProcessor(sdktrace.NewBatchSpanProcessor(e))
	return ts.tp.Shutdown
}

// Flush forces every registered span processor to export any spans it is
// holding. Callers that need trace completeness, for example before process
// exit or before closing a streamed response, must call this explicitly;
// it does not happen automatically.
func (ts *State) Flush(ctx context.Context) error {
	return ts.tp.ForceFlush(ctx)
}

// SpanMetadata configures the span created by [RunInNewSpan].
type SpanMetadata struct {
	// Name is the span name. It also becomes the final component of the span path.
	Name string
	// IsRoot forces the span to be treated as the root of a new trace,
	// ignoring any parent span in the context.
	IsRoot bool
	// Type is the kind of span (e.g. "action", "flow").
	Type string
	// Attributes are arbitrary key-value pairs set directly as span attributes.
	Attributes map[string]string
}

// RunInNewSpan runs f on input in a new span with the provided metadata.
//
// The span's path is the parent span's path plus "/" plus the span name;
// a root span's path is "/" plus the name. On normal return the span state
// is "success". If f returns an error the state is "error", the error is
// recorded on the span, and the error is returned to the caller unchanged:
// tracing never suppresses a business error.
func RunInNewSpan[I, O any](
	ctx context.Context,
	tstate *State,
	metadata *SpanMetadata,
	input I,
	f func(context.Context, I) (O, error),
) (O, error) {
	log := logger.FromContext(ctx)
	log.Debug("span start", "name", metadata.Name)
	defer log.Debug("span end", "name", metadata.Name)

	sm := &spanMetadata{
		Name:   metadata.Name,
		Input:  input,
		IsRoot: metadata.IsRoot,
		Type:   metadata.Type,
	}

	parentSpanMeta := spanMetaKey.FromContext(ctx)
	isRoot := metadata.IsRoot || parentSpanMeta == nil
	sm.IsRoot = isRoot
	if isRoot {
		sm.Path = "/" + metadata.Name
	} else {
		sm.Path = parentSpanMeta.Path + "/" + metadata.Name
	}

	var opts []trace.SpanStartOption
	if metadata.Type != "" {
		opts = append(opts, trace.WithAttributes(attribute.String(attrPrefix+":type", metadata.Type)))
	}
	for k, v := range metadata.Attributes {
		opts = append(opts, trace.WithAttributes(attribute.String(k, v)))
	}

	ctx, span := tstate.tracer.Start(ctx, metadata.Name, opts...)
	defer span.End()
	// At the end, copy the span metadata to the OpenTelemetry span.
	defer func() { span.SetAttributes(sm.attributes()...) }()
	ctx = spanMetaKey.NewContext(ctx, sm)

	if isRoot {
		for k, v := range spanLabelsKey.FromContext(ctx) {
			sm.SetAttr(k, v)
		}
		if cb := traceStartKey.FromContext(ctx); cb != nil {
			sc := span.SpanContext()
			cb(sc.TraceID().String(), sc.SpanID().String())
		}
	}

	output, err := f(ctx, input)
	if err != nil {
		sm.State = spanStateError
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return base.Zero[O](), err
	}
	sm.State = spanStateSuccess
	sm.Output = output
	return output, nil
}

// spanState is the completion status of a span.
// An empty spanState indicates that the span has not ended.
type spanState string

const (
	spanStateSuccess spanState = "success"
	spanStateError   spanState = "error"
)

// spanMetadata holds runtime-specific information about a span.
type spanMetadata struct {
	Name   string
	State  spanState
	IsRoot bool
	Input  any
	Output any
	Path   string
	Type   string
	mu     sync.Mutex
	attrs  map[string]string // custom attributes, as key-value pairs
}

// SetAttr sets a custom attribute, overwriting whatever is there.
func (sm *spanMetadata) SetAttr(k, v string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.attrs == nil {
		sm.attrs = map[string]string{}
	}
	sm.attrs[k] = v
}

// attributes returns the span metadata as a slice of OpenTelemetry
// attributes in the shape telemetry consumers expect.
func (sm *spanMetadata) attributes() []attribute.KeyValue {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	kvs := []attribute.KeyValue{
		attribute.String(attrPrefix+":name", sm.Name),
		attribute.String(attrPrefix+":state", string(sm.State)),
		attribute.String(attrPrefix+":input", base.JSONString(sm.Input)),
		attribute.String(attrPrefix+":path", sm.Path),
		attribute.String(attrPrefix+":output", base.JSONString(sm.Output)),
	}
	if sm.Type != "" {
		kvs = append(kvs, attribute.String(attrPrefix+":type", sm.Type))
	}
	if sm.IsRoot {
		kvs = append(kvs, attribute.Bool(attrPrefix+":isRoot", sm.IsRoot))
	}
	for k, v := range sm.attrs {
		kvs = append(kvs, attribute.String(attrPrefix+":metadata:"+k, v))
	}
	return kvs
}

// spanMetaKey is for storing spanMetadatas in a context.
var spanMetaKey = base.NewContextKey[*spanMetadata]()

// ErrOutsideSpan is returned when span metadata is accessed with no span active.
var ErrOutsideSpan = errors.New("tracing: running outside step context")

// SetCustomMetadataAttr records a key-value pair in the current span metadata.
// Calling it with no active span is a programming error and returns
// [ErrOutsideSpan] rather than silently doing nothing.
func SetCustomMetadataAttr(ctx context.Context, key, value string) error {
	sm := spanMetaKey.FromContext(ctx)
	if sm == nil {
		return ErrOutsideSpan
	}
	sm.SetAttr(key, value)
	return nil
}

// SpanPath returns the path recorded in the current span metadata,
// or the empty string if no span is active.
func SpanPath(ctx context.Context) string {
	sm := spanMetaKey.FromContext(ctx)
	if sm == nil {
		return ""
	}
	return sm.Path
}

// spanLabelsKey stores labels destined for the next root span.
var spanLabelsKey = base.NewContextKey[map[string]string]()

// WithSpanLabels returns ctx augmented with labels that are recorded as
// custom metadata attributes on root spans started under it. Callers that
// invoke an action on behalf of someone else, such as the reflection
// protocol, use this to attach caller-supplied labels to the run's trace.
func WithSpanLabels(ctx context.Context, labels map[string]string) context.Context {
	return spanLabelsKey.NewContext(ctx, labels)
}

// traceStartKey stores the callback invoked when a root span starts.
var traceStartKey = base.NewContextKey[func(traceID, spanID string)]()

// WithTraceStartCallback returns ctx augmented with a callback that fires
// when a root span starts, reporting the new trace and span IDs. Used by
// the reflection protocol to correlate cancellation requests with runs.
func WithTraceStartCallback(ctx context.Context, cb func(traceID, spanID string)) context.Context {
	return traceStartKey.NewContext(ctx, cb)
}
