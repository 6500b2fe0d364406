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

package tracing

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/weftlabs/weft/internal/base"
)

// A FileStore is a Store that writes traces to files in a directory,
// one JSON file per trace. It is meant for development; a production
// deployment should register a durable Store instead.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore that writes traces to the given
// directory. The directory is created if it does not exist.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// Save implements [Store.Save].
// It is not safe to call Save concurrently with the same ID.
func (s *FileStore) Save(ctx context.Context, id string, td *Data) error {
	existing, err := s.Load(ctx, id)
	if err == nil {
		// Merge the existing spans with the incoming ones.
		// Mutate existing because we know it has no other references.
		for k, v := range td.Spans {
			existing.Spans[k] = v
		}
		existing.DisplayName = td.DisplayName
		existing.StartTime = td.StartTime
		existing.EndTime = td.EndTime
		td = existing
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return base.WriteJSONFile(filepath.Join(s.dir, base.Clean(id)), td)
}

// Load implements [Store.Load].
func (s *FileStore) Load(ctx context.Context, id string) (*Data, error) {
	var td *Data
	if err := base.ReadJSONFile(filepath.Join(s.dir, base.Clean(id)), &td); err != nil {
		return nil, err
	}
	return td, nil
}

// List implements [Store.List].
// Traces are returned in the time order they were saved, newest first.
// The continuation token is an index into that ordering.
func (s *FileStore) List(ctx context.Context, q *Query) ([]*Data, string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, "", err
	}
	// Sort by modification time, newest first.
	slices.SortFunc(entries, func(a, b os.DirEntry) int {
		ia, err1 := a.Info()
		ib, err2 := b.Info()
		if err1 != nil || err2 != nil {
			return 0
		}
		return ib.ModTime().Compare(ia.ModTime())
	})

	start := 0
	if q != nil && q.ContinuationToken != "" {
		start, err = strconv.Atoi(q.ContinuationToken)
		if err != nil || start < 0 || start > len(entries) {
			return nil, "", fmt.Errorf("%w: invalid continuation token", ErrBadQuery)
		}
	}
	limit := len(entries)
	if q != nil && q.Limit > 0 {
		limit = q.Limit
	}
	if q != nil && q.Limit < 0 {
		return nil, "", fmt.Errorf("%w: negative limit", ErrBadQuery)
	}

	end := min(start+limit, len(entries))
	var ts []*Data
	for _, e := range entries[start:end] {
		// Entry names are already escaped; read them directly.
		var t *Data
		if err := base.ReadJSONFile(filepath.Join(s.dir, e.Name()), &t); err != nil {
			return nil, "", err
		}
		ts = append(ts, t)
	}
	contToken := ""
	if end < len(entries) {
		contToken = strconv.Itoa(end)
	}
	return ts, contToken, nil
}
