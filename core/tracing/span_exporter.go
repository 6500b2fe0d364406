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
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	otrace "go.opentelemetry.io/otel/trace"
)

// A clientSpanExporter is an OpenTelemetry SpanExporter that converts
// finished spans into [Data] records and hands them to a [TelemetryClient],
// one record per trace.
type clientSpanExporter struct {
	client TelemetryClient
}

func newClientSpanExporter(client TelemetryClient) *clientSpanExporter {
	return &clientSpanExporter{client: client}
}

// ExportSpans implements [sdktrace.SpanExporter]. Each trace present in the
// batch is saved separately, so a failure may leave earlier traces saved and
// later ones not.
func (e *clientSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if e.client == nil {
		slog.Debug("telemetry client is not configured, trace not saved")
		return nil
	}

	// Assemble one Data per trace ID. The parentless span, of which there
	// must be at most one, supplies the trace-level fields.
	traces := map[otrace.TraceID]*Data{}
	for _, span := range spans {
		tid := span.SpanContext().TraceID()
		td := traces[tid]
		if td == nil {
			td = &Data{TraceID: tid.String(), Spans: map[string]*SpanData{}}
			traces[tid] = td
		}
		sd := spanData(span)
		if sd.ParentSpanID == "" {
			if td.DisplayName != "" {
				return fmt.Errorf("trace %s has more than one parentless span", td.TraceID)
			}
			td.DisplayName = sd.DisplayName
			td.StartTime = sd.StartTime
			td.EndTime = sd.EndTime
		}
		td.Spans[sd.SpanID] = sd
	}

	for _, td := range traces {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.client.Save(ctx, td); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown implements [sdktrace.SpanExporter]. There is nothing to release,
// and it must not block: simple span processors call it inline.
func (e *clientSpanExporter) Shutdown(ctx context.Context) error {
	return nil
}

// spanData copies the parts of an OpenTelemetry span that the telemetry
// consumers understand into a JSON-serializable SpanData.
func spanData(span sdktrace.ReadOnlySpan) *SpanData {
	sc := span.SpanContext()
	sd := &SpanData{
		SpanID:                  sc.SpanID().String(),
		TraceID:                 sc.TraceID().String(),
		DisplayName:             span.Name(),
		StartTime:               ToMilliseconds(span.StartTime()),
		EndTime:                 ToMilliseconds(span.EndTime()),
		SpanKind:                strings.ToUpper(span.SpanKind().String()),
		Attributes:              attrMap(span.Attributes()),
		Links:                   linkData(span.Links()),
		InstrumentationScope:    scopeData(span.InstrumentationScope()),
		SameProcessAsParentSpan: BoolValue{!sc.IsRemote()},
		Status: Status{
			Code:        uint32(span.Status().Code),
			Description: span.Status().Description,
		},
	}
	if parent := span.Parent(); parent.HasSpanID() {
		sd.ParentSpanID = parent.SpanID().String()
	}
	for _, ev := range span.Events() {
		sd.TimeEvents.TimeEvent = append(sd.TimeEvents.TimeEvent, TimeEvent{
			Time: ToMilliseconds(ev.Time),
			Annotation: Annotation{
				Description: ev.Name,
				Attributes:  attrMap(ev.Attributes),
			},
		})
	}
	return sd
}

func attrMap(attrs []attribute.KeyValue) map[string]any {
	m := make(map[string]any, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value.AsInterface()
	}
	return m
}

func linkData(links []sdktrace.Link) []*Link {
	var out []*Link
	for _, l := range links {
		out = append(out, &Link{
			SpanContext: SpanContext{
				TraceID:    l.SpanContext.TraceID().String(),
				SpanID:     l.SpanContext.SpanID().String(),
				IsRemote:   l.SpanContext.IsRemote(),
				TraceFlags: int(l.SpanContext.TraceFlags()),
			},
			Attributes:             attrMap(l.Attributes),
			DroppedAttributesCount: l.DroppedAttributeCount,
		})
	}
	return out
}

func scopeData(s instrumentation.Scope) InstrumentationScope {
	return InstrumentationScope{
		Name:      s.Name,
		Version:   s.Version,
		SchemaURL: s.SchemaURL,
	}
}
