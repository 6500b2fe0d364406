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
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/weftlabs/weft/core/api"
)

// Operation is the durable record of a long-running background task.
// Callers hold on to it between Check calls to poll for completion.
type Operation[Out any] struct {
	Action   string         `json:"action,omitempty"`   // Key of the action that created this operation.
	ID       string         `json:"id"`                 // Unique identifier for tracking.
	Done     bool           `json:"done,omitempty"`     // Whether the operation is complete.
	Output   Out            `json:"output,omitempty"`   // Result when done.
	Error    string         `json:"error,omitempty"`    // Error message if the operation failed.
	Metadata map[string]any `json:"metadata,omitempty"` // Additional info.
}

// A BackgroundActionDef is a named operation that runs outside the lifetime
// of a single request. It is composed of three registered actions: one that
// starts the work, one that polls it, and one that requests cancellation.
type BackgroundActionDef[In, Out any] struct {
	startAction  *ActionDef[In, *Operation[Out], struct{}]
	checkAction  *ActionDef[*Operation[Out], *Operation[Out], struct{}]
	cancelAction *ActionDef[*Operation[Out], *Operation[Out], struct{}]
	hasCancel    bool
	name         string
}

// Start initiates the background operation.
func (b *BackgroundActionDef[In, Out]) Start(ctx context.Context, input In) (*Operation[Out], error) {
	return b.startAction.Run(ctx, input, nil)
}

// Check polls the status of a background operation.
func (b *BackgroundActionDef[In, Out]) Check(ctx context.Context, op *Operation[Out]) (*Operation[Out], error) {
	return b.checkAction.Run(ctx, op, nil)
}

// SupportsCancel reports whether the action was defined with a cancel
// function.
func (b *BackgroundActionDef[In, Out]) SupportsCancel() bool {
	return b.hasCancel
}

// Cancel attempts to cancel a background operation. If the action has no
// cancel function, the operation is returned unchanged.
func (b *BackgroundActionDef[In, Out]) Cancel(ctx context.Context, op *Operation[Out]) (*Operation[Out], error) {
	if !b.hasCancel {
		return op, nil
	}
	return b.cancelAction.Run(ctx, op, nil)
}

// Name returns the action name.
func (b *BackgroundActionDef[In, Out]) Name() string {
	return b.name
}

// Register records the component actions in the registry.
func (b *BackgroundActionDef[In, Out]) Register(r api.Registry) {
	b.startAction.Register(r)
	b.checkAction.Register(r)
	b.cancelAction.Register(r)
}

// DefineBackgroundAction creates a background action from its three
// component functions and registers it. startFunc and checkFunc are
// required; cancelFunc may be nil for operations that cannot be cancelled.
func DefineBackgroundAction[In, Out any](
	r api.Registry,
	name string,
	metadata map[string]any,
	startFunc func(context.Context, In) (*Operation[Out], error),
	checkFunc func(context.Context, *Operation[Out]) (*Operation[Out], error),
	cancelFunc func(context.Context, *Operation[Out]) (*Operation[Out], error),
) *BackgroundActionDef[In, Out] {
	b := NewBackgroundAction(name, metadata, startFunc, checkFunc, cancelFunc)
	b.Register(r)
	return b
}

// NewBackgroundAction creates a new background action without registering it.
func NewBackgroundAction[In, Out any](
	name string,
	metadata map[string]any,
	startFunc func(context.Context, In) (*Operation[Out], error),
	checkFunc func(context.Context, *Operation[Out]) (*Operation[Out], error),
	cancelFunc func(context.Context, *Operation[Out]) (*Operation[Out], error),
) *BackgroundActionDef[In, Out] {
	if startFunc == nil {
		panic("NewBackgroundAction requires a start function")
	}
	if checkFunc == nil {
		panic("NewBackgroundAction requires a check function")
	}

	// Record cancellation support on the start action's descriptor so that
	// LookupBackgroundAction can reassemble it from the registry.
	md := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}
	md["supportsCancel"] = cancelFunc != nil

	startAction := NewAction(name, api.ActionTypeBackground, md, nil,
		func(ctx context.Context, input In, _ noStream) (*Operation[Out], error) {
			startTime := time.Now()
			op, err := startFunc(ctx, input)
			if err != nil {
				return nil, err
			}
			if op.ID == "" {
				op.ID = uuid.NewString()
			}
			if op.Metadata == nil {
				op.Metadata = make(map[string]any)
			}
			op.Metadata["latencyMs"] = float64(time.Since(startTime).Nanoseconds()) / 1e6
			op.Action = fmt.Sprintf("/%s/%s", api.ActionTypeBackground, name)
			return op, nil
		})

	checkAction := NewAction(name, api.ActionTypeCheckOperation,
		map[string]any{"description": fmt.Sprintf("Check status of %s operation", name)},
		nil,
		func(ctx context.Context, op *Operation[Out], _ noStream) (*Operation[Out], error) {
			updatedOp, err := checkFunc(ctx, op)
			if err != nil {
				return nil, err
			}
			updatedOp.Action = fmt.Sprintf("/%s/%s", api.ActionTypeBackground, name)
			return updatedOp, nil
		})

	// The cancel action is always registered so that remote callers get a
	// well-defined failure instead of a missing action.
	cancelAction := NewAction(name, api.ActionTypeCancelOperation,
		map[string]any{"description": fmt.Sprintf("Cancel %s operation", name)},
		nil,
		func(ctx context.Context, op *Operation[Out], _ noStream) (*Operation[Out], error) {
			if cancelFunc == nil {
				return nil, NewError(UNAVAILABLE, "%s does not support cancellation", name)
			}
			cancelledOp, err := cancelFunc(ctx, op)
			if err != nil {
				return nil, err
			}
			cancelledOp.Action = fmt.Sprintf("/%s/%s", api.ActionTypeBackground, name)
			return cancelledOp, nil
		})

	return &BackgroundActionDef[In, Out]{
		startAction:  startAction,
		checkAction:  checkAction,
		cancelAction: cancelAction,
		hasCancel:    cancelFunc != nil,
		name:         name,
	}
}

// LookupBackgroundAction finds and assembles a background action from the
// registry, or returns nil if any of its component actions is missing.
func LookupBackgroundAction[In, Out any](ctx context.Context, r api.Registry, name string) (*BackgroundActionDef[In, Out], error) {
	startAction, err := ResolveActionFor[In, *Operation[Out], struct{}](ctx, r, api.ActionTypeBackground, name)
	if err != nil {
		return nil, err
	}
	if startAction == nil {
		return nil, nil
	}
	checkAction, err := ResolveActionFor[*Operation[Out], *Operation[Out], struct{}](ctx, r, api.ActionTypeCheckOperation, name)
	if err != nil {
		return nil, err
	}
	if checkAction == nil {
		return nil, nil
	}
	cancelAction, err := ResolveActionFor[*Operation[Out], *Operation[Out], struct{}](ctx, r, api.ActionTypeCancelOperation, name)
	if err != nil {
		return nil, err
	}
	// The cancel action is registered even for actions without a cancel
	// function, so its presence says nothing about cancellation support.
	// The start action's descriptor carries the truth.
	hasCancel, _ := startAction.Desc().Metadata["supportsCancel"].(bool)
	return &BackgroundActionDef[In, Out]{
		startAction:  startAction,
		checkAction:  checkAction,
		cancelAction: cancelAction,
		hasCancel:    hasCancel,
		name:         name,
	}, nil
}
