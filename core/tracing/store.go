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

package tracing

import (
	"context"
	"errors"
)

// A Store stores trace data.
// Every trace has a unique string identifier.
type Store interface {
	// Save saves the Data to the store. If a trace with the given ID
	// already exists, the two are merged.
	Save(ctx context.Context, id string, td *Data) error
	// Load reads the Data with the given ID from the store.
	// It returns an error that is fs.ErrNotExist if there isn't one.
	Load(ctx context.Context, id string) (*Data, error)
	// List returns some of the Data in the store, and a continuation token
	// to retrieve more, if there are any.
	List(ctx context.Context, q *Query) (tds []*Data, contToken string, err error)
}

// A Query filters the result of [Store.List].
type Query struct {
	// Maximum number of traces to return. If zero, a default is used.
	Limit int
	// Where to continue the listing from. Must be either empty
	// or the result of a recent, previous call to List.
	ContinuationToken string
}

// ErrBadQuery is returned by [Store.List] for an invalid Query,
// for example one whose ContinuationToken does not come from a
// previous List call.
var ErrBadQuery = errors.New("bad query")

// Data is information about a trace.
type Data struct {
	TraceID     string               `json:"traceId"`
	DisplayName string               `json:"displayName"`
	StartTime   Milliseconds         `json:"startTime"`
	EndTime     Milliseconds         `json:"endTime"`
	Spans       map[string]*SpanData `json:"spans"`
}

// SpanData is information about a trace span.
// Most of this information comes from OpenTelemetry.
// SpanData can be passed to json.Marshal, whereas most of the OpenTelemetry
// types make no claims about JSON serializability.
type SpanData struct {
	SpanID                 string               `json:"spanId"`
	TraceID                string               `json:"traceId,omitempty"`
	ParentSpanID           string               `json:"parentSpanId,omitempty"`
	StartTime              Milliseconds         `json:"startTime"`
	EndTime                Milliseconds         `json:"endTime"`
	Attributes             map[string]any       `json:"attributes,omitempty"`
	DisplayName            string               `json:"displayName"`
	Links                  []*Link              `json:"links,omitempty"`
	InstrumentationScope   InstrumentationScope `json:"instrumentationScope,omitempty"`
	SpanKind               string               `json:"spanKind"` // trace.SpanKind as a string
	// This bool is in a separate struct to match the wire format the
	// developer tooling expects.
	SameProcessAsParentSpan BoolValue  `json:"sameProcessAsParentSpan"`
	Status                  Status     `json:"status"`
	TimeEvents              TimeEvents `json:"timeEvents,omitempty"`
}

type TimeEvents struct {
	TimeEvent []TimeEvent `json:"timeEvent,omitempty"`
}

type BoolValue struct {
	Value bool `json:"value,omitempty"`
}

type TimeEvent struct {
	Time       Milliseconds `json:"time,omitempty"`
	Annotation Annotation   `json:"annotation,omitempty"`
}

type Annotation struct {
	Attributes  map[string]any `json:"attributes,omitempty"`
	Description string         `json:"description,omitempty"`
}

// A SpanContext contains identifying trace information about a Span.
type SpanContext struct {
	TraceID    string `json:"traceId,omitempty"`
	SpanID     string `json:"spanId"`
	IsRemote   bool   `json:"isRemote"`
	TraceFlags int    `json:"traceFlags"`
}

// A Link describes the relationship between two Spans.
type Link struct {
	SpanContext            SpanContext    `json:"spanContext,omitempty"`
	Attributes             map[string]any `json:"attributes,omitempty"`
	DroppedAttributesCount int            `json:"droppedAttributesCount"`
}

// InstrumentationScope is a copy of [go.opentelemetry.io/otel/sdk/instrumentation.Scope],
// with added struct tags to match the wire format's JSON field names.
type InstrumentationScope struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	SchemaURL string `json:"schemaUrl,omitempty"`
}

// Status is a copy of [go.opentelemetry.io/otel/sdk/trace.Status],
// with added struct tags to match the wire format's JSON field names.
type Status struct {
	Code        uint32 `json:"code"` // avoid the MarshalJSON method on codes.Code
	Description string `json:"description,omitempty"`
}
