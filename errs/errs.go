// Copyright 2016 Google Inc. All Rights Reserved.
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

// Package errs defines the error kinds of spec.md §7, following trillian's
// own habit of a single typed error wrapper rather than one Go error type
// per failure mode.
package errs

import (
	"errors"
	"fmt"
)

// Kind enumerates the error kinds of spec.md §7.
type Kind int

const (
	CyclicReference Kind = iota
	ReferenceLimit
	PathKeyNotFound
	PathNotFound
	InvalidPath
	CorruptedPath
	InvalidQuery
	MissingParameter
	StorageError
	CorruptedData
	InvalidProof
	InternalError
)

func (k Kind) String() string {
	switch k {
	case CyclicReference:
		return "CyclicReference"
	case ReferenceLimit:
		return "ReferenceLimit"
	case PathKeyNotFound:
		return "PathKeyNotFound"
	case PathNotFound:
		return "PathNotFound"
	case InvalidPath:
		return "InvalidPath"
	case CorruptedPath:
		return "CorruptedPath"
	case InvalidQuery:
		return "InvalidQuery"
	case MissingParameter:
		return "MissingParameter"
	case StorageError:
		return "StorageError"
	case CorruptedData:
		return "CorruptedData"
	case InvalidProof:
		return "InvalidProof"
	case InternalError:
		return "InternalError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error wraps an error with its spec.md §7 Kind, so callers can recover the
// kind with errors.As regardless of how deep the cause was wrapped.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Cause: fmt.Errorf(format, args...)}
}

// Wrap constructs an *Error of the given kind around an existing error.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Cause: err}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
