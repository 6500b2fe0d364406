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

package api

import (
	"context"
	"encoding/json"
)

// An Environment is the execution context in which the program is running.
type Environment string

const (
	EnvironmentDev  Environment = "dev"  // development: testing, debugging, etc.
	EnvironmentProd Environment = "prod" // production: user data, SLOs, etc.
)

// A FlowStater is a value that can be stored in a FlowStateStore.
type FlowStater interface {
	ToJSON() ([]byte, error)
}

// A FlowStateStore stores flow states. Every flow state has a unique string
// identifier. A durable FlowStateStore is necessary for durable flows.
// Concrete backends (file, database, etc.) are implemented outside the core.
type FlowStateStore interface {
	// Save saves the flow state to the store, overwriting an existing one.
	Save(ctx context.Context, id string, fs FlowStater) error
	// Load reads the flow state with the given ID from the store into pfs,
	// which must be a pointer of the correct type.
	// It returns an error that is fs.ErrNotExist if there isn't one.
	Load(ctx context.Context, id string, pfs any) error
	// List returns some of the flow states in the store as raw JSON, and a
	// continuation token to retrieve more, if there are any.
	List(ctx context.Context, q *ListQuery) (items []json.RawMessage, contToken string, err error)
}

// A ListQuery filters the result of a store List operation.
type ListQuery struct {
	// Maximum number of items to return. If zero, a default is used.
	Limit int
	// Where to continue the listing from. Must be either empty
	// or the result of a recent, previous List call.
	ContinuationToken string
}
