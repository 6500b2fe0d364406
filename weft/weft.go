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

// Package weft is the entry point for application developers. It ties
// together the registry, tracing, and the reflection protocol used by
// development tooling.
package weft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/weftlabs/weft/core"
	"github.com/weftlabs/weft/core/api"
	"github.com/weftlabs/weft/core/tracing"
	"github.com/weftlabs/weft/internal/registry"
)

// Plugin extends the runtime with lazily initialized functionality.
// See [api.Plugin] for the initialization contract.
type Plugin = api.Plugin

// Weft encapsulates a runtime instance including the registry and
// configuration. It is a required parameter for most functions in this
// package.
//
// To create a Weft instance, use [Init].
type Weft struct {
	reg *registry.Registry
}

// weftOptions are options for configuring the Weft instance.
type weftOptions struct {
	Plugins        []Plugin
	TraceStore     tracing.Store
	FlowStateStore api.FlowStateStore
	ReflectionURL  string
}

// Option configures the Weft instance.
type Option interface {
	apply(o *weftOptions) error
}

func (o *weftOptions) apply(opts *weftOptions) error {
	if len(o.Plugins) > 0 {
		if opts.Plugins != nil {
			return errors.New("cannot set plugins more than once (WithPlugins)")
		}
		opts.Plugins = o.Plugins
	}
	if o.TraceStore != nil {
		if opts.TraceStore != nil {
			return errors.New("cannot set trace store more than once (WithTraceStore)")
		}
		opts.TraceStore = o.TraceStore
	}
	if o.FlowStateStore != nil {
		if opts.FlowStateStore != nil {
			return errors.New("cannot set flow state store more than once (WithFlowStateStore)")
		}
		opts.FlowStateStore = o.FlowStateStore
	}
	if o.ReflectionURL != "" {
		if opts.ReflectionURL != "" {
			return errors.New("cannot set reflection URL more than once (WithReflectionURL)")
		}
		opts.ReflectionURL = o.ReflectionURL
	}
	return nil
}

// WithPlugins sets the plugins to register. Their initializers run lazily,
// on first lookup of one of their actions.
func WithPlugins(plugins ...Plugin) Option {
	return &weftOptions{Plugins: plugins}
}

// WithTraceStore sets the trace store for the current environment.
func WithTraceStore(ts tracing.Store) Option {
	return &weftOptions{TraceStore: ts}
}

// WithFlowStateStore sets the flow state store for the current environment.
func WithFlowStateStore(fs api.FlowStateStore) Option {
	return &weftOptions{FlowStateStore: fs}
}

// WithReflectionURL overrides the websocket URL of the runtime manager that
// the reflection client connects to in the dev environment.
func WithReflectionURL(url string) Option {
	return &weftOptions{ReflectionURL: url}
}

// reflectionURLEnvVar overrides the runtime manager websocket URL.
const reflectionURLEnvVar = "WEFT_RUNTIME_URL"

// defaultReflectionURL is where the dev runtime manager listens by default.
const defaultReflectionURL = "ws://localhost:3100/ws"

// Init creates a new [Weft] instance.
//
// During local development (WEFT_ENV=dev), it connects to the runtime
// manager's reflection endpoint as a side effect, so development tooling can
// list, run, and cancel the registered actions.
func Init(ctx context.Context, opts ...Option) (*Weft, error) {
	ctx, _ = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	r, err := registry.New()
	if err != nil {
		return nil, err
	}

	wOpts := &weftOptions{}
	for _, opt := range opts {
		if err := opt.apply(wOpts); err != nil {
			return nil, fmt.Errorf("weft.Init: error applying options: %w", err)
		}
	}

	w := &Weft{reg: r}

	for _, plugin := range wOpts.Plugins {
		r.RegisterPlugin(plugin)
	}

	env := registry.CurrentEnvironment()
	if wOpts.TraceStore != nil {
		ts := wOpts.TraceStore
		r.RegisterTraceStoreProvider(env, func(context.Context) (tracing.Store, error) {
			return ts, nil
		})
	}
	if wOpts.FlowStateStore != nil {
		fs := wOpts.FlowStateStore
		r.RegisterFlowStateStoreProvider(env, func(context.Context) (api.FlowStateStore, error) {
			return fs, nil
		})
	}

	if env == api.EnvironmentDev {
		if wOpts.TraceStore == nil {
			r.RegisterTraceStoreProvider(env, func(context.Context) (tracing.Store, error) {
				return tracing.NewFileStore(filepath.Join(os.TempDir(), "weft", "traces"))
			})
		}
		if wOpts.FlowStateStore == nil {
			r.RegisterFlowStateStoreProvider(env, func(context.Context) (api.FlowStateStore, error) {
				return core.NewFileFlowStateStore(filepath.Join(os.TempDir(), "weft", "flows"))
			})
		}

		url := wOpts.ReflectionURL
		if url == "" {
			url = os.Getenv(reflectionURLEnvVar)
		}
		if url == "" {
			url = defaultReflectionURL
		}
		startReflectionClient(ctx, w, url)
		slog.Debug("reflection client started", "url", url)
	}

	return w, nil
}

// Registry returns the registry backing this instance.
func (w *Weft) Registry() api.Registry { return w.reg }

// RegisterSpanProcessor registers an OpenTelemetry span processor that
// receives every span the runtime produces.
func (w *Weft) RegisterSpanProcessor(sp sdktrace.SpanProcessor) {
	w.reg.RegisterSpanProcessor(sp)
}

// FlushTracing blocks until all finished spans have been pushed to their
// exporters. Call it before process exit to avoid losing trace data.
func (w *Weft) FlushTracing(ctx context.Context) error {
	return w.reg.FlushTracing(ctx)
}

// DefineFlow creates a [core.Flow] that runs fn, and registers it as an
// action. fn takes an input of type In and returns an output of type Out.
//
// Example:
//
//	myFlow := weft.DefineFlow(w, "myFlow", func(ctx context.Context, input string) (string, error) {
//		return fmt.Sprintf("You say %q, I say hello!", input), nil
//	})
//
//	myFlow.Run(ctx, "Hello!")
func DefineFlow[In, Out any](w *Weft, name string, fn func(context.Context, In) (Out, error), opts ...core.FlowOption) *core.Flow[In, Out, struct{}] {
	return core.DefineFlow(w.reg, name, fn, opts...)
}

// DefineStreamingFlow creates a streaming [core.Flow] that runs fn, and
// registers it as an action.
//
// fn takes an input of type In and returns an output of type Out, optionally
// streaming values of type Stream incrementally by invoking a callback.
//
// Example:
//
//	myFlow := weft.DefineStreamingFlow(w, "countdown",
//		func(ctx context.Context, count int, cb func(context.Context, int) error) (string, error) {
//			for i := count; i > 0; i-- {
//				if cb != nil {
//					if err := cb(ctx, i); err != nil {
//						return "", err
//					}
//				}
//			}
//			return "done", nil
//		})
//
//	for result, err := range myFlow.Stream(ctx, 3) {
//		...
//	}
func DefineStreamingFlow[In, Out, Stream any](w *Weft, name string, fn core.Func[In, Out, Stream], opts ...core.FlowOption) *core.Flow[In, Out, Stream] {
	return core.DefineStreamingFlow(w.reg, name, fn, opts...)
}

// DefineBackgroundAction creates a background action from its start, check,
// and cancel functions and registers it. cancelFunc may be nil for
// operations that cannot be cancelled.
func DefineBackgroundAction[In, Out any](
	w *Weft,
	name string,
	metadata map[string]any,
	startFunc func(context.Context, In) (*core.Operation[Out], error),
	checkFunc func(context.Context, *core.Operation[Out]) (*core.Operation[Out], error),
	cancelFunc func(context.Context, *core.Operation[Out]) (*core.Operation[Out], error),
) *core.BackgroundActionDef[In, Out] {
	return core.DefineBackgroundAction(w.reg, name, metadata, startFunc, checkFunc, cancelFunc)
}

// Run runs the function fn as a step in the context of the current flow
// and returns what fn returns. It is used to add observability to sub-steps
// of flows.
func Run[Out any](ctx context.Context, name string, fn func() (Out, error)) (Out, error) {
	return core.Run(ctx, name, fn)
}

// LookupFlow returns the flow registered under the given name, or nil if
// there is none. It panics if the registered action has different type
// parameters.
func LookupFlow[In, Out, Stream any](w *Weft, name string) *core.Flow[In, Out, Stream] {
	a := core.LookupActionFor[In, Out, Stream](w.reg, api.ActionTypeFlow, name)
	if a == nil {
		return nil
	}
	return (*core.Flow[In, Out, Stream])(a)
}

// ListFlows returns the registered flows as generic actions, for exposing
// them via a server.
func ListFlows(ctx context.Context, w *Weft) ([]api.Action, error) {
	descs, err := w.reg.ListActions(ctx)
	if err != nil {
		return nil, err
	}
	var flows []api.Action
	for _, d := range descs {
		if strings.HasPrefix(d.Key, "/"+string(api.ActionTypeFlow)+"/") {
			flows = append(flows, w.reg.LookupAction(d.Key))
		}
	}
	return flows, nil
}

// ListActions returns descriptors for every registered action, initializing
// all plugins so the listing is complete.
func ListActions(ctx context.Context, w *Weft) ([]api.ActionDesc, error) {
	return w.reg.ListActions(ctx)
}
