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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/weftlabs/weft/core/api"
	"github.com/weftlabs/weft/core/tracing"
	"github.com/weftlabs/weft/internal"
	"github.com/weftlabs/weft/internal/registry"
)

var upgrader = websocket.Upgrader{}

func newTestWeft(t *testing.T) *Weft {
	t.Helper()
	r, err := registry.New()
	if err != nil {
		t.Fatal(err)
	}
	return &Weft{reg: r}
}

func TestReflectionRoundTrip(t *testing.T) {
	serverMsgCh := make(chan map[string]any, 20)
	serverCmdCh := make(chan any, 10)

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		done := make(chan struct{})
		defer close(done)
		go func() {
			for {
				select {
				case cmd := <-serverCmdCh:
					c.WriteJSON(cmd)
				case <-done:
					return
				}
			}
		}()

		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				break
			}
			var m map[string]any
			if json.Unmarshal(message, &m) == nil {
				serverMsgCh <- m
			}
		}
	}))
	defer s.Close()

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := newTestWeft(t)

	DefineFlow(w, "greet", func(ctx context.Context, input string) (string, error) {
		return fmt.Sprintf("You say %q, I say hello!", input), nil
	})

	tc := tracing.NewTestOnlyTelemetryClient()
	w.reg.TracingState().WriteTelemetryImmediate(tc)

	client := startReflectionClient(ctx, w, wsURL)
	assert.NotNil(t, client)

	// The client registers itself immediately after connecting.
	reg := waitForMessage(t, serverMsgCh, func(m map[string]any) bool {
		return m["method"] == "register"
	})
	params, ok := reg["params"].(map[string]any)
	assert.True(t, ok)
	assert.NotEmpty(t, params["id"])
	assert.Equal(t, "go/"+internal.Version, params["runtimeVersion"])

	// Ask the runtime to run the flow.
	serverCmdCh <- jsonRpcRequest{
		JSONRPC: "2.0",
		Method:  "runAction",
		ID:      1,
		Params: mustMarshal(map[string]any{
			"key":             "/flow/greet",
			"input":           "World",
			"telemetryLabels": map[string]string{"sessionId": "s-123"},
		}),
	}

	// The trace ID is reported while the action is still running.
	state := waitForMessage(t, serverMsgCh, func(m map[string]any) bool {
		return m["method"] == "runActionState"
	})
	stateParams := state["params"].(map[string]any)
	traceID := stateParams["state"].(map[string]any)["traceId"].(string)
	assert.NotEmpty(t, traceID)

	// The response carries the result and the same trace ID.
	resp := waitForMessage(t, serverMsgCh, func(m map[string]any) bool {
		return m["id"] == float64(1) && m["method"] == nil
	})
	assert.Nil(t, resp["error"])
	result := resp["result"].(map[string]any)
	assert.Equal(t, `You say "World", I say hello!`, result["result"])
	telemetry := result["telemetry"].(map[string]any)
	assert.Equal(t, traceID, telemetry["traceId"])

	// The caller-supplied telemetry labels land on the run's root span.
	var labelled bool
	for _, td := range tc.Traces {
		for _, span := range td.Spans {
			if span.Attributes["weft:metadata:sessionId"] == "s-123" {
				labelled = true
			}
		}
	}
	assert.True(t, labelled, "telemetry label not recorded on any span")
}

// waitForMessage drains the channel until a message matches pred.
func waitForMessage(t *testing.T, ch <-chan map[string]any, pred func(map[string]any) bool) map[string]any {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case m := <-ch:
			if pred(m) {
				return m
			}
		case <-deadline:
			t.Fatal("timeout waiting for message")
			return nil
		}
	}
}

func TestHandleListActions(t *testing.T) {
	ctx := context.Background()
	w := newTestWeft(t)
	client := &reflectionClient{w: w}

	DefineFlow(w, "myFlow", func(ctx context.Context, input string) (string, error) {
		return "bar", nil
	})

	res, rpcErr := client.handleListActions(ctx)
	assert.Nil(t, rpcErr)
	resMap, ok := res.(map[string]api.ActionDesc)
	assert.True(t, ok)

	desc, ok := resMap["/flow/myFlow"]
	assert.True(t, ok, "flow 'myFlow' not found in listActions response")
	assert.Equal(t, api.ActionTypeFlow, desc.Type)
	assert.Equal(t, "myFlow", desc.Name)
}

func TestHandleCancelAction(t *testing.T) {
	ctx := context.Background()
	w := newTestWeft(t)
	client := &reflectionClient{w: w, activeActions: newActiveActionsMap()}

	// Unknown trace IDs yield a 404 error.
	_, rpcErr := client.handleCancelAction(ctx, mustMarshal(map[string]string{"traceId": "nope"}))
	assert.NotNil(t, rpcErr)
	assert.Equal(t, 404, rpcErr.Code)

	// Missing trace ID is invalid params.
	_, rpcErr = client.handleCancelAction(ctx, mustMarshal(map[string]string{}))
	assert.NotNil(t, rpcErr)
	assert.Equal(t, -32602, rpcErr.Code)

	// A tracked action gets its context cancelled.
	actionCtx, cancel := context.WithCancel(ctx)
	client.activeActions.Set("trace-1", &activeAction{
		cancel:    cancel,
		startTime: time.Now(),
		traceID:   "trace-1",
	})
	res, rpcErr := client.handleCancelAction(ctx, mustMarshal(map[string]string{"traceId": "trace-1"}))
	assert.Nil(t, rpcErr)
	assert.NotNil(t, res)
	select {
	case <-actionCtx.Done():
	default:
		t.Error("cancelled action's context is not done")
	}
	_, exists := client.activeActions.Get("trace-1")
	assert.False(t, exists)
}
