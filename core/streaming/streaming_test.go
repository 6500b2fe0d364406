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

package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/weftlabs/weft/core"
)

func TestInMemoryStreamManagerOpenAndSubscribe(t *testing.T) {
	m := NewInMemoryStreamManager()
	ctx := context.Background()
	streamID := "test-stream-1"

	writer, err := m.Open(ctx, streamID)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if writer == nil {
		t.Fatal("Open returned nil writer")
	}

	events, unsubscribe, err := m.Subscribe(ctx, streamID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsubscribe()

	if events == nil {
		t.Fatal("Subscribe returned nil channel")
	}
}

func TestInMemoryStreamManagerOpenDuplicateFails(t *testing.T) {
	m := NewInMemoryStreamManager()
	ctx := context.Background()
	streamID := "test-stream-dup"

	if _, err := m.Open(ctx, streamID); err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	_, err := m.Open(ctx, streamID)
	if err == nil {
		t.Fatal("expected error when opening duplicate stream")
	}
	var re *core.Error
	if !errors.As(err, &re) {
		t.Fatalf("expected *core.Error, got %T", err)
	}
	if re.Status != core.ALREADY_EXISTS {
		t.Errorf("expected ALREADY_EXISTS status, got %v", re.Status)
	}
}

func TestInMemoryStreamManagerSubscribeNonExistent(t *testing.T) {
	m := NewInMemoryStreamManager()
	ctx := context.Background()

	_, _, err := m.Subscribe(ctx, "non-existent")
	if err == nil {
		t.Fatal("expected error when subscribing to non-existent stream")
	}
	var re *core.Error
	if !errors.As(err, &re) {
		t.Fatalf("expected *core.Error, got %T", err)
	}
	if re.Status != core.NOT_FOUND {
		t.Errorf("expected NOT_FOUND status, got %v", re.Status)
	}
}

func TestInMemoryStreamManagerWriteAndReceiveChunks(t *testing.T) {
	m := NewInMemoryStreamManager()
	ctx := context.Background()
	streamID := "test-stream-chunks"

	writer, err := m.Open(ctx, streamID)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	events, unsubscribe, err := m.Subscribe(ctx, streamID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsubscribe()

	chunks := []string{"chunk1", "chunk2", "chunk3"}
	for _, chunk := range chunks {
		if err := writer.Write(ctx, json.RawMessage(`"`+chunk+`"`)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	for i, expected := range chunks {
		select {
		case event := <-events:
			if event.Type != StreamEventChunk {
				t.Errorf("expected chunk event, got %v", event.Type)
			}
			var got string
			if err := json.Unmarshal(event.Chunk, &got); err != nil {
				t.Fatalf("failed to unmarshal chunk: %v", err)
			}
			if got != expected {
				t.Errorf("chunk %d: expected %q, got %q", i, expected, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for chunk %d", i)
		}
	}
}

func TestInMemoryStreamManagerDone(t *testing.T) {
	m := NewInMemoryStreamManager()
	ctx := context.Background()
	streamID := "test-stream-done"

	writer, err := m.Open(ctx, streamID)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	events, unsubscribe, err := m.Subscribe(ctx, streamID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsubscribe()

	if err := writer.Write(ctx, json.RawMessage(`"test-chunk"`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	output := json.RawMessage(`{"result": "success"}`)
	if err := writer.Done(ctx, output); err != nil {
		t.Fatalf("Done failed: %v", err)
	}

	select {
	case event := <-events:
		if event.Type != StreamEventChunk {
			t.Errorf("expected chunk event first, got %v", event.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for chunk")
	}
	select {
	case event := <-events:
		if event.Type != StreamEventDone {
			t.Errorf("expected done event, got %v", event.Type)
		}
		if string(event.Output) != string(output) {
			t.Errorf("expected output %s, got %s", output, event.Output)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for done event")
	}
}

func TestInMemoryStreamManagerError(t *testing.T) {
	m := NewInMemoryStreamManager()
	ctx := context.Background()
	streamID := "test-stream-error"

	writer, err := m.Open(ctx, streamID)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	events, unsubscribe, err := m.Subscribe(ctx, streamID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsubscribe()

	streamErr := errors.New("something broke")
	if err := writer.Error(ctx, streamErr); err != nil {
		t.Fatalf("Error failed: %v", err)
	}

	select {
	case event := <-events:
		if event.Type != StreamEventError {
			t.Errorf("expected error event, got %v", event.Type)
		}
		if event.Err == nil || event.Err.Error() != streamErr.Error() {
			t.Errorf("expected error %v, got %v", streamErr, event.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for error event")
	}
}

func TestInMemoryStreamManagerLateSubscriberReplays(t *testing.T) {
	m := NewInMemoryStreamManager()
	ctx := context.Background()
	streamID := "test-stream-replay"

	writer, err := m.Open(ctx, streamID)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	chunks := []string{"a", "b", "c"}
	for _, chunk := range chunks {
		if err := writer.Write(ctx, json.RawMessage(`"`+chunk+`"`)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := writer.Done(ctx, json.RawMessage(`"final"`)); err != nil {
		t.Fatalf("Done failed: %v", err)
	}

	// A subscriber arriving after completion sees the whole stream in order.
	events, _, err := m.Subscribe(ctx, streamID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	var got []string
	var final json.RawMessage
	for event := range events {
		switch event.Type {
		case StreamEventChunk:
			var s string
			if err := json.Unmarshal(event.Chunk, &s); err != nil {
				t.Fatal(err)
			}
			got = append(got, s)
		case StreamEventDone:
			final = event.Output
		case StreamEventError:
			t.Fatalf("unexpected error event: %v", event.Err)
		}
	}
	if len(got) != len(chunks) {
		t.Fatalf("replayed %d chunks, want %d", len(got), len(chunks))
	}
	for i := range chunks {
		if got[i] != chunks[i] {
			t.Errorf("chunk %d: got %q, want %q", i, got[i], chunks[i])
		}
	}
	if string(final) != `"final"` {
		t.Errorf("final output = %s, want %q", final, `"final"`)
	}
}

func TestInMemoryStreamManagerWritesAfterCompletionAreNoOps(t *testing.T) {
	m := NewInMemoryStreamManager()
	ctx := context.Background()
	streamID := "test-stream-terminal"

	writer, err := m.Open(ctx, streamID)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := writer.Done(ctx, json.RawMessage(`"done"`)); err != nil {
		t.Fatalf("Done failed: %v", err)
	}

	// All further writes silently do nothing.
	if err := writer.Write(ctx, json.RawMessage(`"late"`)); err != nil {
		t.Errorf("Write after Done returned %v, want nil", err)
	}
	if err := writer.Done(ctx, json.RawMessage(`"again"`)); err != nil {
		t.Errorf("second Done returned %v, want nil", err)
	}
	if err := writer.Error(ctx, errors.New("late error")); err != nil {
		t.Errorf("Error after Done returned %v, want nil", err)
	}

	// The replay contains neither the late chunk nor a changed output.
	events, _, err := m.Subscribe(ctx, streamID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	event := <-events
	if event.Type != StreamEventDone {
		t.Fatalf("expected done event, got %v", event.Type)
	}
	if string(event.Output) != `"done"` {
		t.Errorf("output = %s, want %q", event.Output, `"done"`)
	}
}

func TestInMemoryStreamManagerTTLEviction(t *testing.T) {
	m := NewInMemoryStreamManager(WithTTL(time.Minute))
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	writer, err := m.Open(ctx, "old-stream")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := writer.Done(ctx, json.RawMessage(`"done"`)); err != nil {
		t.Fatalf("Done failed: %v", err)
	}

	// Still within the TTL: the stream replays.
	now = now.Add(30 * time.Second)
	if _, _, err := m.Subscribe(ctx, "old-stream"); err != nil {
		t.Fatalf("Subscribe within TTL failed: %v", err)
	}

	// Eviction happens lazily on the next Open.
	now = now.Add(2 * time.Minute)
	if _, err := m.Open(ctx, "new-stream"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	_, _, err = m.Subscribe(ctx, "old-stream")
	if err == nil {
		t.Fatal("expected NOT_FOUND after eviction")
	}
	var re *core.Error
	if !errors.As(err, &re) || re.Status != core.NOT_FOUND {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}

	// An open stream is never evicted, no matter how old.
	if _, err := m.Open(ctx, "still-open"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	now = now.Add(24 * time.Hour)
	if _, err := m.Open(ctx, "trigger-sweep"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, _, err := m.Subscribe(ctx, "still-open"); err != nil {
		t.Errorf("open stream was evicted: %v", err)
	}
}

func TestInMemoryStreamManagerUnsubscribe(t *testing.T) {
	m := NewInMemoryStreamManager()
	ctx := context.Background()
	streamID := "test-stream-unsub"

	writer, err := m.Open(ctx, streamID)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	events, unsubscribe, err := m.Subscribe(ctx, streamID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	unsubscribe()

	// The channel closes and later writes do not reach it.
	if _, ok := <-events; ok {
		t.Error("expected closed channel after unsubscribe")
	}
	if err := writer.Write(ctx, json.RawMessage(`"after"`)); err != nil {
		t.Errorf("Write after unsubscribe failed: %v", err)
	}
}
