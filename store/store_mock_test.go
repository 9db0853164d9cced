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

package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"

	"github.com/hads-project/hads/backend"
	"github.com/hads-project/hads/backend/backendmock"
	"github.com/hads-project/hads/errs"
	"github.com/hads-project/hads/scope"
	"github.com/hads-project/hads/store"
)

// TestRootHashWrapsBackendError exercises the error-wrapping path that a real
// backend rarely triggers on demand: a column read failing for a reason other
// than backend.ErrNotFound must surface as errs.StorageError, not escape raw.
func TestRootHashWrapsBackendError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	kv := backendmock.NewMockKV(ctrl)
	boom := errors.New("disk on fire")
	kv.EXPECT().Get(backend.Roots, gomock.Any()).Return(nil, boom)

	s := store.Open(kv)
	_, err := s.RootHash(scope.Path{[]byte("users")})
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	if !errs.Is(err, errs.StorageError) {
		t.Fatalf("expected errs.StorageError, got %v", err)
	}
}

// TestGetReturnsPathKeyNotFound checks that a point read against an empty
// subtree (no root pointer stored) reports PathKeyNotFound rather than a bare
// backend.ErrNotFound escaping the façade.
func TestGetReturnsPathKeyNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	kv := backendmock.NewMockKV(ctrl)
	kv.EXPECT().Get(backend.Roots, gomock.Any()).Return(nil, backend.ErrNotFound)
	kv.EXPECT().Get(backend.Data, gomock.Any()).Return(nil, backend.ErrNotFound)

	s := store.Open(kv)
	_, err := s.Get(context.Background(), scope.Path{[]byte("users")}, []byte("alice"))
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	if !errs.Is(err, errs.PathKeyNotFound) {
		t.Fatalf("expected errs.PathKeyNotFound, got %v", err)
	}
}
