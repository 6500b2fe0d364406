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
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/weftlabs/weft/core/api"
)

type testFlowState struct {
	FlowID string `json:"flowId"`
	Step   int    `json:"step"`
}

func (s *testFlowState) ToJSON() ([]byte, error) { return json.Marshal(s) }

var _ api.FlowStater = (*testFlowState)(nil)

func TestFileFlowStateStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileFlowStateStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	want := &testFlowState{FlowID: "f1", Step: 3}
	if err := store.Save(ctx, "f1", want); err != nil {
		t.Fatal(err)
	}
	var got testFlowState
	if err := store.Load(ctx, "f1", &got); err != nil {
		t.Fatal(err)
	}
	if got != *want {
		t.Errorf("got %+v, want %+v", got, *want)
	}

	if err := store.Load(ctx, "missing", &got); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestFileFlowStateStoreList(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileFlowStateStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	const n = 4
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("f%d", i)
		if err := store.Save(ctx, id, &testFlowState{FlowID: id}); err != nil {
			t.Fatal(err)
		}
	}

	items, token, err := store.List(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != n || token != "" {
		t.Errorf("got %d items, token %q; want %d, empty", len(items), token, n)
	}

	// Paginate in threes: one full page, then the remainder.
	items, token, err = store.List(ctx, &api.ListQuery{Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 || token == "" {
		t.Fatalf("got %d items, token %q; want 3 and a token", len(items), token)
	}
	items, token, err = store.List(ctx, &api.ListQuery{Limit: 3, ContinuationToken: token})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || token != "" {
		t.Errorf("got %d items, token %q; want 1, empty", len(items), token)
	}

	if _, _, err := store.List(ctx, &api.ListQuery{Limit: -1}); err == nil {
		t.Error("negative limit accepted")
	}
	if _, _, err := store.List(ctx, &api.ListQuery{ContinuationToken: "zap"}); err == nil {
		t.Error("bad continuation token accepted")
	}
}
