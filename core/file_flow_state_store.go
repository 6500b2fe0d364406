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
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/weftlabs/weft/core/api"
	"github.com/weftlabs/weft/internal/base"
)

// FlowStateStore is the interface for flow state persistence.
type FlowStateStore = api.FlowStateStore

// A FileFlowStateStore is a FlowStateStore that writes flow states to files.
// It is meant for development; production deployments should use a durable
// backend provided by a plugin.
type FileFlowStateStore struct {
	dir string
}

// NewFileFlowStateStore creates a FileFlowStateStore that writes flow states
// to the given directory. The directory is created if it does not exist.
func NewFileFlowStateStore(dir string) (*FileFlowStateStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileFlowStateStore{dir: dir}, nil
}

func (s *FileFlowStateStore) Save(ctx context.Context, id string, fs api.FlowStater) error {
	data, err := fs.ToJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, base.Clean(id)), data, 0666)
}

func (s *FileFlowStateStore) Load(ctx context.Context, id string, pfs any) error {
	return base.ReadJSONFile(filepath.Join(s.dir, base.Clean(id)), pfs)
}

func (s *FileFlowStateStore) List(ctx context.Context, q *api.ListQuery) ([]json.RawMessage, string, error) {
	const defaultLimit = 100
	limit := defaultLimit
	start := 0
	if q != nil {
		if q.Limit < 0 {
			return nil, "", errors.New("list: negative limit")
		}
		if q.Limit > 0 {
			limit = q.Limit
		}
		if q.ContinuationToken != "" {
			n, err := strconv.Atoi(q.ContinuationToken)
			if err != nil || n < 0 {
				return nil, "", errors.New("list: invalid continuation token")
			}
			start = n
		}
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, "", err
	}
	// Newest first.
	slices.SortFunc(entries, func(a, b os.DirEntry) int {
		ia, err1 := a.Info()
		ib, err2 := b.Info()
		if err1 != nil || err2 != nil {
			return 0
		}
		return ib.ModTime().Compare(ia.ModTime())
	})
	var items []json.RawMessage
	for i := start; i < len(entries); i++ {
		if len(items) >= limit {
			return items, strconv.Itoa(i), nil
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entries[i].Name()))
		if err != nil {
			return nil, "", err
		}
		items = append(items, json.RawMessage(data))
	}
	return items, "", nil
}
