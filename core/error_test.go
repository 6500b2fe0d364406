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
	"errors"
	"strings"
	"testing"
)

func TestUserFacingError(t *testing.T) {
	t.Run("creates error with all fields", func(t *testing.T) {
		details := map[string]any{"reason": "quota exceeded", "limit": 100}
		err := UserFacingError(RESOURCE_EXHAUSTED, "too many requests", details)

		if err.Status != RESOURCE_EXHAUSTED {
			t.Errorf("status = %v, want RESOURCE_EXHAUSTED", err.Status)
		}
		if err.Message != "too many requests" {
			t.Errorf("message = %q", err.Message)
		}
		if err.Details["reason"] != "quota exceeded" {
			t.Errorf("details = %v", err.Details)
		}
	})

	t.Run("nil details", func(t *testing.T) {
		err := UserFacingError(NOT_FOUND, "no such flow", nil)
		if err.Status != NOT_FOUND {
			t.Errorf("status = %v, want NOT_FOUND", err.Status)
		}
		if err.Details != nil {
			t.Errorf("details = %v, want nil", err.Details)
		}
	})

	t.Run("error message format", func(t *testing.T) {
		err := UserFacingError(PERMISSION_DENIED, "access denied", nil)
		if got, want := err.Error(), "PERMISSION_DENIED: access denied"; got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}
	})

	t.Run("source prefix", func(t *testing.T) {
		src := "upstream"
		err := UserFacingError(UNAVAILABLE, "connection refused", nil)
		err.Source = &src
		if got, want := err.Error(), "upstream: UNAVAILABLE: connection refused"; got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}
	})
}

func TestNewError(t *testing.T) {
	t.Run("formats the message", func(t *testing.T) {
		err := NewError(INVALID_ARGUMENT, "field %q has invalid value %d", "count", -1)
		want := `field "count" has invalid value -1`
		if err.Message != want {
			t.Errorf("message = %q, want %q", err.Message, want)
		}
		if err.Status != INVALID_ARGUMENT {
			t.Errorf("status = %v, want INVALID_ARGUMENT", err.Status)
		}
	})

	t.Run("captures a stack trace", func(t *testing.T) {
		err := NewError(INTERNAL, "something broke")
		stack, ok := err.Details["stack"].(string)
		if !ok || stack == "" {
			t.Fatal("missing stack in details")
		}
		if !strings.Contains(stack, "goroutine") {
			t.Errorf("stack does not look like a stack trace: %q", stack)
		}
	})
}

func TestToSerializable(t *testing.T) {
	t.Run("maps status to HTTP code", func(t *testing.T) {
		err := UserFacingError(NOT_FOUND, "missing", nil)
		w := err.ToSerializable()
		if w.Code != 404 {
			t.Errorf("code = %d, want 404", w.Code)
		}
		if w.Message != "missing" {
			t.Errorf("message = %q", w.Message)
		}
	})

	t.Run("propagates stack and trace details", func(t *testing.T) {
		err := &Error{
			Status:  INTERNAL,
			Message: "boom",
			Details: map[string]any{"stack": "fake stack", "traceId": "abc123"},
		}
		w := err.ToSerializable()
		if w.Details == nil || w.Details.Stack == nil || *w.Details.Stack != "fake stack" {
			t.Errorf("details.stack = %v", w.Details)
		}
		if w.Details.TraceID == nil || *w.Details.TraceID != "abc123" {
			t.Errorf("details.traceId = %v", w.Details)
		}
	})
}

func TestToCallableSerializable(t *testing.T) {
	err := UserFacingError(ABORTED, "conflict", map[string]any{"key": "k"})
	w := err.ToCallableSerializable()
	if w.Status != ABORTED {
		t.Errorf("status = %v, want ABORTED", w.Status)
	}
	if w.Message != "conflict" {
		t.Errorf("message = %q", w.Message)
	}
}

func TestToReflectionError(t *testing.T) {
	t.Run("runtime error keeps its status code", func(t *testing.T) {
		err := UserFacingError(UNAUTHENTICATED, "who are you", nil)
		w := ToReflectionError(err)
		if w.Code != 401 {
			t.Errorf("code = %d, want 401", w.Code)
		}
		if w.Message != "who are you" {
			t.Errorf("message = %q", w.Message)
		}
	})

	t.Run("generic error becomes internal", func(t *testing.T) {
		w := ToReflectionError(errors.New("plain failure"))
		if w.Code != StatusNameToCode[INTERNAL] {
			t.Errorf("code = %d, want %d", w.Code, StatusNameToCode[INTERNAL])
		}
		if w.Message != "plain failure" {
			t.Errorf("message = %q", w.Message)
		}
		if w.Details == nil || w.Details.Stack == nil || *w.Details.Stack == "" {
			t.Error("missing stack for generic error")
		}
	})
}
