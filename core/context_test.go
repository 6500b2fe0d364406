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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWithActionContext(t *testing.T) {
	t.Run("adds action context to context", func(t *testing.T) {
		actionCtx := ActionContext{
			"userId":    "user-123",
			"sessionId": "session-456",
		}
		ctx := WithActionContext(context.Background(), actionCtx)

		retrieved := FromContext(ctx)
		if diff := cmp.Diff(actionCtx, retrieved); diff != "" {
			t.Errorf("ActionContext mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("replaces existing action context", func(t *testing.T) {
		ctx := context.Background()
		ctx = WithActionContext(ctx, ActionContext{"key": "first"})
		ctx = WithActionContext(ctx, ActionContext{"key": "second"})

		retrieved := FromContext(ctx)
		if retrieved["key"] != "second" {
			t.Errorf("key = %v, want %q", retrieved["key"], "second")
		}
	})
}

func TestFromContext(t *testing.T) {
	t.Run("returns nil when no action context", func(t *testing.T) {
		if retrieved := FromContext(context.Background()); retrieved != nil {
			t.Errorf("expected nil, got %v", retrieved)
		}
	})

	t.Run("survives context derivation", func(t *testing.T) {
		ctx := WithActionContext(context.Background(), ActionContext{"level": "root"})
		childCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		retrieved := FromContext(childCtx)
		if retrieved["level"] != "root" {
			t.Errorf("level = %v, want %q", retrieved["level"], "root")
		}
	})
}
