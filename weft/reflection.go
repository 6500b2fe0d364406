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

package weft

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weftlabs/weft/core"
	"github.com/weftlabs/weft/core/api"
	"github.com/weftlabs/weft/core/tracing"
	"github.com/weftlabs/weft/internal"
)

// telemetryServerEnvVar overrides the telemetry server sent by configure.
const telemetryServerEnvVar = "WEFT_TELEMETRY_SERVER"

// jsonRpcRequest represents a JSON-RPC 2.0 request or notification.
type jsonRpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"` // number or string
}

// jsonRpcResponse represents a JSON-RPC 2.0 response.
type jsonRpcResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRpcError `json:"error,omitempty"`
	ID      any           `json:"id"`
}

// jsonRpcError represents a JSON-RPC 2.0 error.
type jsonRpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// activeAction tracks a running action so it can be cancelled remotely.
type activeAction struct {
	cancel    context.CancelFunc
	startTime time.Time
	traceID   string
}

// activeActionsMap is a concurrency-safe map of trace ID to running action.
type activeActionsMap struct {
	mu      sync.Mutex
	actions map[string]*activeAction
}

func newActiveActionsMap() *activeActionsMap {
	return &activeActionsMap{actions: map[string]*activeAction{}}
}

func (m *activeActionsMap) Set(traceID string, a *activeAction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions[traceID] = a
}

func (m *activeActionsMap) Get(traceID string) (*activeAction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[traceID]
	return a, ok
}

func (m *activeActionsMap) Delete(traceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.actions, traceID)
}

// reflectionClient speaks the reflection protocol with the runtime manager
// over a persistent websocket connection.
type reflectionClient struct {
	w             *Weft
	url           string
	runtimeID     string
	ws            *websocket.Conn
	activeActions *activeActionsMap
	mu            sync.Mutex
}

// startReflectionClient starts the reflection client. It connects to the
// runtime manager via websocket and keeps reconnecting until ctx is done.
func startReflectionClient(ctx context.Context, w *Weft, url string) *reflectionClient {
	client := &reflectionClient{
		w:             w,
		url:           url,
		runtimeID:     fmt.Sprintf("%d-%s", os.Getpid(), uuid.NewString()[:8]),
		activeActions: newActiveActionsMap(),
	}

	go client.run(ctx)

	return client
}

func (c *reflectionClient) run(ctx context.Context) {
	slog.Info("connecting to runtime manager", "url", c.url)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			slog.Debug("failed to connect to runtime manager, retrying in 1s", "error", err)
			time.Sleep(1 * time.Second)
			continue
		}

		c.mu.Lock()
		c.ws = conn
		c.mu.Unlock()

		slog.Info("connected to runtime manager")

		// Register immediately upon connection.
		if err := c.register(); err != nil {
			slog.Error("failed to register runtime", "error", err)
			conn.Close()
			time.Sleep(1 * time.Second)
			continue
		}

		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				slog.Error("websocket read error", "error", err)
				break
			}
			go c.handleMessage(ctx, message)
		}

		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		conn.Close()
		slog.Info("disconnected from runtime manager")
	}
}

func (c *reflectionClient) register() error {
	req := jsonRpcRequest{
		JSONRPC: "2.0",
		Method:  "register",
		Params: mustMarshal(map[string]any{
			"id":                       c.runtimeID,
			"name":                     c.runtimeID,
			"pid":                      os.Getpid(),
			"runtimeVersion":           "go/" + internal.Version,
			"reflectionApiSpecVersion": internal.ReflectionAPIVersion,
			"envs":                     []string{string(api.EnvironmentDev)},
		}),
	}
	return c.send(req)
}

func (c *reflectionClient) handleMessage(ctx context.Context, data []byte) {
	slog.Debug("received reflection message", "data", string(data))
	var req jsonRpcRequest
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Error("failed to unmarshal JSON-RPC message", "error", err)
		return
	}

	if req.Method != "" {
		if req.ID != nil {
			c.handleRequest(ctx, &req)
		} else {
			c.handleNotification(ctx, &req)
		}
	} else if req.ID != nil {
		// Response to one of our requests; we only send notifications and
		// register, whose response we ignore.
		slog.Debug("received response", "id", req.ID)
	}
}

func (c *reflectionClient) send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return fmt.Errorf("websocket not connected")
	}
	return c.ws.WriteJSON(msg)
}

func (c *reflectionClient) handleRequest(ctx context.Context, req *jsonRpcRequest) {
	var result any
	var rpcErr *jsonRpcError
	handled := false

	defer func() {
		if handled {
			return
		}
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			slog.Error("panic in reflection request handler", "panic", r, "stack", stack)
			rpcErr = &jsonRpcError{
				Code:    -32000,
				Message: fmt.Sprintf("Internal error: %v", r),
				Data: map[string]string{
					"stack": stack,
				},
			}
		}
		resp := jsonRpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  result,
			Error:   rpcErr,
		}
		if sendErr := c.send(resp); sendErr != nil {
			slog.Error("failed to send JSON-RPC response", "error", sendErr)
		}
	}()

	switch req.Method {
	case "listActions":
		result, rpcErr = c.handleListActions(ctx)
	case "runAction":
		// runAction sends its own response and notifications.
		c.handleRunAction(ctx, req)
		handled = true
	case "cancelAction":
		result, rpcErr = c.handleCancelAction(ctx, req.Params)
	default:
		rpcErr = &jsonRpcError{
			Code:    -32601,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		}
	}
}

func (c *reflectionClient) handleNotification(ctx context.Context, req *jsonRpcRequest) {
	switch req.Method {
	case "configure":
		c.handleConfigure(req.Params)
	default:
		slog.Debug("unknown notification", "method", req.Method)
	}
}

func (c *reflectionClient) handleListActions(ctx context.Context) (any, *jsonRpcError) {
	ads, err := c.w.reg.ListActions(ctx)
	if err != nil {
		return nil, &jsonRpcError{Code: -32000, Message: err.Error()}
	}
	descMap := map[string]api.ActionDesc{}
	for _, d := range ads {
		descMap[d.Key] = d
	}
	return descMap, nil
}

func (c *reflectionClient) handleRunAction(ctx context.Context, req *jsonRpcRequest) {
	var params struct {
		Key             string          `json:"key"`
		Input           json.RawMessage `json:"input"`
		Context         json.RawMessage `json:"context"`
		Stream          bool            `json:"stream"`
		TelemetryLabels json.RawMessage `json:"telemetryLabels"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		c.sendError(req.ID, -32602, "Invalid params", nil)
		return
	}

	action, err := c.w.reg.ResolveAction(ctx, params.Key)
	if err != nil {
		c.sendError(req.ID, -32000, err.Error(), core.ToReflectionError(err))
		return
	}
	if action == nil {
		c.sendError(req.ID, 404, fmt.Sprintf("action %q not found", params.Key), nil)
		return
	}

	actionCtx, cancel := context.WithCancel(ctx)

	// Caller-supplied labels land on the run's root span.
	if len(params.TelemetryLabels) > 0 {
		var labels map[string]string
		if err := json.Unmarshal(params.TelemetryLabels, &labels); err != nil {
			slog.Debug("ignoring malformed telemetry labels", "error", err)
		} else if len(labels) > 0 {
			actionCtx = tracing.WithSpanLabels(actionCtx, labels)
		}
	}

	var cb func(context.Context, json.RawMessage) error
	if params.Stream {
		cb = func(ctx context.Context, msg json.RawMessage) error {
			notif := jsonRpcRequest{
				JSONRPC: "2.0",
				Method:  "streamChunk",
				Params: mustMarshal(map[string]any{
					"requestId": req.ID,
					"chunk":     msg,
				}),
			}
			return c.send(notif)
		}
	}

	// Report the trace ID as soon as the root span opens, so the runtime
	// manager can cancel the invocation mid-flight.
	var mu sync.Mutex
	sentTraceIDs := make(map[string]bool)
	actionCtx = tracing.WithTraceStartCallback(actionCtx, func(traceID, spanID string) {
		mu.Lock()
		if sentTraceIDs[traceID] {
			mu.Unlock()
			return
		}
		sentTraceIDs[traceID] = true
		mu.Unlock()

		c.activeActions.Set(traceID, &activeAction{
			cancel:    cancel,
			startTime: time.Now(),
			traceID:   traceID,
		})

		notif := jsonRpcRequest{
			JSONRPC: "2.0",
			Method:  "runActionState",
			Params: mustMarshal(map[string]any{
				"requestId": req.ID,
				"state": map[string]string{
					"traceId": traceID,
				},
			}),
		}
		c.send(notif)
	})

	if params.Context != nil {
		var contextMap core.ActionContext
		if err := json.Unmarshal(params.Context, &contextMap); err == nil && contextMap != nil {
			actionCtx = core.WithActionContext(actionCtx, contextMap)
		}
	}

	resp, err := action.RunJSONWithTelemetry(actionCtx, params.Input, cb)
	cancel()

	if resp != nil && resp.TraceID != "" {
		c.activeActions.Delete(resp.TraceID)
	}

	if err != nil {
		refErr := core.ToReflectionError(err)
		if resp != nil && resp.TraceID != "" {
			if refErr.Details == nil {
				refErr.Details = &core.ReflectionErrorDetails{}
			}
			refErr.Details.TraceID = &resp.TraceID
		}
		c.sendError(req.ID, -32000, refErr.Message, refErr)
		return
	}

	c.sendResponse(req.ID, map[string]any{
		"result": resp.Result,
		"telemetry": map[string]string{
			"traceId": resp.TraceID,
		},
	})
}

func (c *reflectionClient) handleCancelAction(ctx context.Context, params json.RawMessage) (any, *jsonRpcError) {
	var p struct {
		TraceID string `json:"traceId"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &jsonRpcError{Code: -32602, Message: "Invalid params"}
	}
	if p.TraceID == "" {
		return nil, &jsonRpcError{Code: -32602, Message: "traceId is required"}
	}

	action, exists := c.activeActions.Get(p.TraceID)
	if !exists {
		return nil, &jsonRpcError{Code: 404, Message: "Action not found or already completed"}
	}

	action.cancel()
	c.activeActions.Delete(p.TraceID)

	return map[string]string{"message": "Action cancelled"}, nil
}

func (c *reflectionClient) handleConfigure(params json.RawMessage) {
	var p struct {
		TelemetryServerURL string `json:"telemetryServerUrl"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return
	}
	url := p.TelemetryServerURL
	if v := os.Getenv(telemetryServerEnvVar); v != "" {
		url = v
	}
	if url != "" {
		c.w.reg.TracingState().WriteTelemetryImmediate(tracing.NewHTTPTelemetryClient(url))
		slog.Debug("connected to telemetry server", "url", url)
	}
}

func (c *reflectionClient) sendError(id any, code int, message string, data any) error {
	return c.send(jsonRpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &jsonRpcError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
}

func (c *reflectionClient) sendResponse(id any, result any) error {
	return c.send(jsonRpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
