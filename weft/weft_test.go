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
	"strings"
	"testing"

	"github.com/weftlabs/weft/core/api"
	"github.com/weftlabs/weft/core/tracing"
)

func TestInitRejectsDuplicateOptions(t *testing.T) {
	ctx := context.Background()
	ts, err := tracing.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, err = Init(ctx, WithTraceStore(ts), WithTraceStore(ts))
	if err == nil {
		t.Fatal("Init accepted WithTraceStore twice")
	}
	if !strings.Contains(err.Error(), "more than once") {
		t.Errorf("err = %v", err)
	}
}

func TestDefineAndLookupFlow(t *testing.T) {
	ctx := context.Background()
	w := newTestWeft(t)

	DefineFlow(w, "echo", func(ctx context.Context, input string) (string, error) {
		return input, nil
	})

	f := LookupFlow[string, string, struct{}](w, "echo")
	if f == nil {
		t.Fatal("LookupFlow returned nil for a defined flow")
	}
	got, err := f.Run(ctx, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hi" {
		t.Errorf("got %q, want %q", got, "hi")
	}

	if missing := LookupFlow[string, string, struct{}](w, "absent"); missing != nil {
		t.Errorf("lookup of absent flow returned %v", missing)
	}
}

func TestListFlows(t *testing.T) {
	ctx := context.Background()
	w := newTestWeft(t)

	DefineFlow(w, "a", func(ctx context.Context, _ string) (string, error) { return "", nil })
	DefineFlow(w, "b", func(ctx context.Context, _ string) (string, error) { return "", nil })

	flows, err := ListFlows(ctx, w)
	if err != nil {
		t.Fatal(err)
	}
	if len(flows) != 2 {
		t.Fatalf("got %d flows, want 2", len(flows))
	}
	for _, f := range flows {
		if f.Desc().Type != api.ActionTypeFlow {
			t.Errorf("action %q has type %v, want flow", f.Name(), f.Desc().Type)
		}
	}
}

func TestListActions(t *testing.T) {
	ctx := context.Background()
	w := newTestWeft(t)

	DefineFlow(w, "listed", func(ctx context.Context, _ string) (string, error) { return "", nil })

	descs, err := ListActions(ctx, w)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, d := range descs {
		if d.Key == "/flow/listed" {
			found = true
		}
	}
	if !found {
		t.Errorf("flow not in listing: %v", descs)
	}
}
