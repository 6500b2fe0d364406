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

package base

import (
	"encoding/json"
	"testing"
)

type order struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

func TestValidateValue(t *testing.T) {
	schema := InferJSONSchema(order{})

	if err := ValidateValue(order{Item: "widget", Count: 2}, schema); err != nil {
		t.Errorf("valid value rejected: %v", err)
	}
	if err := ValidateValue(map[string]any{"item": 7, "count": "two"}, schema); err == nil {
		t.Error("invalid value accepted")
	}
	// A nil schema accepts anything.
	if err := ValidateValue(map[string]any{"anything": true}, nil); err != nil {
		t.Errorf("nil schema rejected value: %v", err)
	}
}

func TestValidateJSON(t *testing.T) {
	schema := InferJSONSchema(order{})

	if err := ValidateJSON(json.RawMessage(`{"item":"widget","count":2}`), schema); err != nil {
		t.Errorf("valid JSON rejected: %v", err)
	}
	if err := ValidateJSON(json.RawMessage(`{"item":"widget","count":"two"}`), schema); err == nil {
		t.Error("invalid JSON accepted")
	}
	if err := ValidateJSON(json.RawMessage(`{not json`), schema); err == nil {
		t.Error("malformed JSON accepted")
	}
}

func TestValidateRaw(t *testing.T) {
	schemaBytes := json.RawMessage(`{"type": "integer"}`)
	if err := ValidateRaw(json.RawMessage(`3`), schemaBytes); err != nil {
		t.Errorf("valid data rejected: %v", err)
	}
	if err := ValidateRaw(json.RawMessage(`"three"`), schemaBytes); err == nil {
		t.Error("invalid data accepted")
	}
}
