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

// Package core provides the foundational primitives of the runtime:
// actions, flows, background operations, and their error types.
package core

import (
	"fmt"
	"runtime/debug"
)

// ReflectionErrorDetails carries optional debugging detail on the
// reflection protocol's error wire format.
type ReflectionErrorDetails struct {
	Stack   *string `json:"stack,omitempty"`
	TraceID *string `json:"traceId,omitempty"`
}

// ReflectionErrorWireFormat is the wire format for reflection protocol errors.
type ReflectionErrorWireFormat struct {
	Details *ReflectionErrorDetails `json:"details,omitempty"`
	Message string                  `json:"message"`
	Code    int                     `json:"code"`
}

// HTTPErrorWireFormat is the wire format for HTTP error responses.
type HTTPErrorWireFormat struct {
	Details any        `json:"details,omitempty"`
	Message string     `json:"message"`
	Status  StatusName `json:"status"`
}

// Error is the base error type for runtime errors. Its message is considered
// safe to show to end users.
type Error struct {
	Message  string         `json:"message"`
	Status   StatusName     `json:"status"`
	HTTPCode int            `json:"-"`
	Details  map[string]any `json:"details"`
	Source   *string        `json:"source,omitempty"`
}

// Error implements the standard error interface.
func (e *Error) Error() string {
	sourcePrefix := ""
	if e.Source != nil && *e.Source != "" {
		sourcePrefix = fmt.Sprintf("%s: ", *e.Source)
	}
	return fmt.Sprintf("%s%s: %s", sourcePrefix, e.Status, e.Message)
}

// UserFacingError creates an error whose message a web framework handler can
// safely return in a response. Other kinds of errors should result in a
// generic 500 message to avoid leaking internals.
func UserFacingError(status StatusName, message string, details map[string]any) *Error {
	return &Error{
		Status:  status,
		Details: details,
		Message: message,
	}
}

// NewError creates a runtime error with a formatted message. The stack trace
// of the caller is captured in the error details.
func NewError(status StatusName, message string, args ...any) *Error {
	return &Error{
		Status:  status,
		Message: fmt.Sprintf(message, args...),
		Details: map[string]any{
			"stack": string(debug.Stack()),
		},
	}
}

// ToCallableSerializable returns a JSON-serializable representation for
// HTTP responses.
func (e *Error) ToCallableSerializable() HTTPErrorWireFormat {
	return HTTPErrorWireFormat{
		Details: e.Details,
		Status:  e.Status,
		Message: e.Message,
	}
}

// ToSerializable returns a JSON-serializable representation for reflection
// protocol responses.
func (e *Error) ToSerializable() ReflectionErrorWireFormat {
	details := &ReflectionErrorDetails{}
	if stack, ok := e.Details["stack"].(string); ok {
		details.Stack = &stack
	}
	if traceID, ok := e.Details["traceId"].(string); ok {
		details.TraceID = &traceID
	}
	return ReflectionErrorWireFormat{
		Details: details,
		Code:    HTTPStatusCode(e.Status),
		Message: e.Message,
	}
}

// ToReflectionError gets the JSON representation for reflection protocol
// error responses.
func ToReflectionError(err error) ReflectionErrorWireFormat {
	if re, ok := err.(*Error); ok {
		return re.ToSerializable()
	}
	details := &ReflectionErrorDetails{}
	if stack := getErrorStack(err); stack != "" {
		details.Stack = &stack
	}
	return ReflectionErrorWireFormat{
		Message: err.Error(),
		Code:    StatusNameToCode[INTERNAL],
		Details: details,
	}
}

// getErrorStack captures the stack trace of the current goroutine.
func getErrorStack(err error) string {
	if err == nil {
		return ""
	}
	return string(debug.Stack())
}
