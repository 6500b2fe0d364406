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

// Package streaming provides durable streams: named channels that buffer
// their chunks so that late subscribers can replay the full stream.
package streaming

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/weftlabs/weft/core"
)

// StreamEventType indicates the type of stream event.
type StreamEventType int

const (
	StreamEventChunk StreamEventType = iota
	StreamEventDone
	StreamEventError
)

// StreamEvent represents an event in a durable stream.
type StreamEvent struct {
	Type   StreamEventType
	Chunk  json.RawMessage // set when Type == StreamEventChunk
	Output json.RawMessage // set when Type == StreamEventDone
	Err    error           // set when Type == StreamEventError
}

// StreamInput provides methods for writing to a durable stream.
// Write, Done, and Error have no effect once the stream has completed.
type StreamInput interface {
	// Write sends a chunk to the stream and notifies all subscribers.
	Write(ctx context.Context, chunk json.RawMessage) error
	// Done marks the stream as successfully completed with the given output.
	Done(ctx context.Context, output json.RawMessage) error
	// Error marks the stream as failed with the given error.
	Error(ctx context.Context, err error) error
	// Close releases resources without marking the stream as done or errored.
	Close() error
}

// StreamManager manages durable streams, allowing creation and subscription.
// Implementations can provide different storage backends (e.g. in-memory,
// database, cache).
type StreamManager interface {
	// Open creates a new stream for writing.
	// Returns an ALREADY_EXISTS error if a stream with the given ID exists.
	Open(ctx context.Context, streamID string) (StreamInput, error)
	// Subscribe subscribes to an existing stream. It returns a channel that
	// receives stream events, an unsubscribe function, and an error.
	// If the stream has already completed, all buffered chunks are sent
	// before the done/error event. Returns a NOT_FOUND error if the stream
	// doesn't exist.
	Subscribe(ctx context.Context, streamID string) (<-chan StreamEvent, func(), error)
}

// inMemoryStreamBufferSize is the buffer size for subscriber event channels.
const inMemoryStreamBufferSize = 100

// streamStatus represents the current state of a stream.
type streamStatus int

const (
	streamStatusOpen streamStatus = iota
	streamStatusDone
	streamStatusError
)

// streamState holds the internal state of a single stream.
type streamState struct {
	status      streamStatus
	chunks      []json.RawMessage
	output      json.RawMessage
	err         error
	subscribers []chan StreamEvent
	lastTouched time.Time
	mu          sync.RWMutex
}

// InMemoryStreamManager is an in-memory implementation of StreamManager.
// Useful for testing or single-instance deployments where persistence is not
// required. Completed streams are retained for the configured TTL and evicted
// lazily: expired streams are swept on each Open, so an idle manager holds on
// to its last streams but costs no background goroutine.
type InMemoryStreamManager struct {
	streams map[string]*streamState
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time // replaceable for tests
}

// StreamManagerOption configures an InMemoryStreamManager.
type StreamManagerOption interface {
	applyInMemoryStreamManager(*streamManagerOptions)
}

// streamManagerOptions holds configuration for InMemoryStreamManager.
type streamManagerOptions struct {
	TTL time.Duration // Time-to-live for completed streams.
}

func (o *streamManagerOptions) applyInMemoryStreamManager(opts *streamManagerOptions) {
	if o.TTL > 0 {
		opts.TTL = o.TTL
	}
}

// WithTTL sets the time-to-live for completed streams.
// Streams that have completed (done or error) become eligible for eviction
// after this duration. Default is 5 minutes.
func WithTTL(ttl time.Duration) StreamManagerOption {
	return &streamManagerOptions{TTL: ttl}
}

// NewInMemoryStreamManager creates a new InMemoryStreamManager.
func NewInMemoryStreamManager(opts ...StreamManagerOption) *InMemoryStreamManager {
	options := &streamManagerOptions{
		TTL: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt.applyInMemoryStreamManager(options)
	}
	return &InMemoryStreamManager{
		streams: make(map[string]*streamState),
		ttl:     options.TTL,
		now:     time.Now,
	}
}

// evictExpiredLocked removes streams that have completed and exceeded the
// TTL. The caller must hold m.mu for writing.
func (m *InMemoryStreamManager) evictExpiredLocked() {
	now := m.now()
	for id, state := range m.streams {
		state.mu.RLock()
		expired := state.status != streamStatusOpen && now.Sub(state.lastTouched) > m.ttl
		state.mu.RUnlock()
		if expired {
			delete(m.streams, id)
		}
	}
}

// Open creates a new stream for writing.
func (m *InMemoryStreamManager) Open(ctx context.Context, streamID string) (StreamInput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evictExpiredLocked()

	if _, exists := m.streams[streamID]; exists {
		return nil, core.UserFacingError(core.ALREADY_EXISTS, "stream already exists", nil)
	}

	state := &streamState{
		status:      streamStatusOpen,
		chunks:      make([]json.RawMessage, 0),
		subscribers: make([]chan StreamEvent, 0),
		lastTouched: m.now(),
	}
	m.streams[streamID] = state

	return &inMemoryStreamInput{
		manager:  m,
		streamID: streamID,
		state:    state,
	}, nil
}

// Subscribe subscribes to an existing stream.
func (m *InMemoryStreamManager) Subscribe(ctx context.Context, streamID string) (<-chan StreamEvent, func(), error) {
	m.mu.RLock()
	state, exists := m.streams[streamID]
	m.mu.RUnlock()

	if !exists {
		return nil, nil, core.UserFacingError(core.NOT_FOUND, "stream not found", nil)
	}

	ch := make(chan StreamEvent, inMemoryStreamBufferSize)

	state.mu.Lock()
	defer state.mu.Unlock()

	// Replay all buffered chunks in write order.
	for _, chunk := range state.chunks {
		select {
		case ch <- StreamEvent{Type: StreamEventChunk, Chunk: chunk}:
		case <-ctx.Done():
			close(ch)
			return nil, nil, ctx.Err()
		}
	}

	// A completed stream delivers its terminal event immediately.
	switch state.status {
	case streamStatusDone:
		ch <- StreamEvent{Type: StreamEventDone, Output: state.output}
		close(ch)
		return ch, func() {}, nil
	case streamStatusError:
		ch <- StreamEvent{Type: StreamEventError, Err: state.err}
		close(ch)
		return ch, func() {}, nil
	}

	// Stream is still open, add subscriber.
	state.subscribers = append(state.subscribers, ch)

	unsubscribe := func() {
		state.mu.Lock()
		defer state.mu.Unlock()
		for i, sub := range state.subscribers {
			if sub == ch {
				state.subscribers = append(state.subscribers[:i], state.subscribers[i+1:]...)
				close(ch)
				break
			}
		}
	}

	return ch, unsubscribe, nil
}

// inMemoryStreamInput implements StreamInput for the in-memory manager.
type inMemoryStreamInput struct {
	manager  *InMemoryStreamManager
	streamID string
	state    *streamState
	closed   bool
	mu       sync.Mutex
}

func (s *inMemoryStreamInput) Write(_ context.Context, chunk json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	if s.closed || s.state.status != streamStatusOpen {
		return nil
	}

	s.state.chunks = append(s.state.chunks, chunk)
	s.state.lastTouched = s.manager.now()

	event := StreamEvent{Type: StreamEventChunk, Chunk: chunk}
	for _, ch := range s.state.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip (subscriber is slow).
		}
	}

	return nil
}

func (s *inMemoryStreamInput) Done(_ context.Context, output json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	if s.closed || s.state.status != streamStatusOpen {
		return nil
	}
	s.closed = true

	s.state.status = streamStatusDone
	s.state.output = output
	s.state.lastTouched = s.manager.now()

	event := StreamEvent{Type: StreamEventDone, Output: output}
	for _, ch := range s.state.subscribers {
		select {
		case ch <- event:
		default:
		}
		close(ch)
	}
	s.state.subscribers = nil

	return nil
}

func (s *inMemoryStreamInput) Error(_ context.Context, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	if s.closed || s.state.status != streamStatusOpen {
		return nil
	}
	s.closed = true

	s.state.status = streamStatusError
	s.state.err = err
	s.state.lastTouched = s.manager.now()

	event := StreamEvent{Type: StreamEventError, Err: err}
	for _, ch := range s.state.subscribers {
		select {
		case ch <- event:
		default:
		}
		close(ch)
	}
	s.state.subscribers = nil

	return nil
}

func (s *inMemoryStreamInput) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
