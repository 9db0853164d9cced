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

// Package cost accounts for the resources consumed by a core operation: seeks
// performed against the backend, bytes written or loaded, and hashing work.
// Every operation in this module returns a value together with its Cost so
// that a caller can meter fees deterministically, the same way trillian
// threads counters through its storage and merkle packages.
package cost

import "math"

// Cost is a six-field resource vector, accumulated componentwise with
// saturating semantics at the declared bit width of each field.
type Cost struct {
	SeekCount            uint16
	StorageWrittenBytes   uint32
	StorageLoadedBytes    uint32
	LoadedBytes           uint32
	HashByteCalls         uint32
	HashNodeCalls         uint16
}

func addU16(a, b uint16) uint16 {
	sum := uint32(a) + uint32(b)
	if sum > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(sum)
}

func addU32(a, b uint32) uint32 {
	sum := uint64(a) + uint64(b)
	if sum > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(sum)
}

// Add returns the componentwise, saturating sum of c and other.
func (c Cost) Add(other Cost) Cost {
	return Cost{
		SeekCount:           addU16(c.SeekCount, other.SeekCount),
		StorageWrittenBytes: addU32(c.StorageWrittenBytes, other.StorageWrittenBytes),
		StorageLoadedBytes:  addU32(c.StorageLoadedBytes, other.StorageLoadedBytes),
		LoadedBytes:         addU32(c.LoadedBytes, other.LoadedBytes),
		HashByteCalls:       addU32(c.HashByteCalls, other.HashByteCalls),
		HashNodeCalls:       addU16(c.HashNodeCalls, other.HashNodeCalls),
	}
}

// AddSeek increments the seek counter by one and returns c.
func (c Cost) AddSeek() Cost {
	c.SeekCount = addU16(c.SeekCount, 1)
	return c
}

// AddHashNode records one node-hash computation over n input bytes.
func (c Cost) AddHashNode(n int) Cost {
	c.HashNodeCalls = addU16(c.HashNodeCalls, 1)
	c.HashByteCalls = addU32(c.HashByteCalls, uint32(n))
	return c
}

// Zero is the additive identity, equivalent to Cost{}.
var Zero = Cost{}

// Context is a value paired with the Cost incurred in producing it, the
// monadic wrapper described in spec.md §4.5 / §9 ("combined result-with-cost
// plumbing"). It mirrors trillian's habit of returning plain (value, error)
// pairs, generalized with an extra accumulated-cost field.
type Context[T any] struct {
	Value T
	Cost  Cost
	Err   error
}

// Wrap produces a Context carrying no cost.
func Wrap[T any](v T, err error) Context[T] {
	return Context[T]{Value: v, Err: err}
}

// WrapCost produces a Context carrying the given cost.
func WrapCost[T any](v T, c Cost, err error) Context[T] {
	return Context[T]{Value: v, Cost: c, Err: err}
}

// AddCost folds externally observed cost into ctx and returns the result.
func (ctx Context[T]) AddCost(c Cost) Context[T] {
	ctx.Cost = ctx.Cost.Add(c)
	return ctx
}

// Map transforms the value of ctx, preserving its cost and error. f is not
// invoked if ctx already carries an error.
func Map[T, U any](ctx Context[T], f func(T) U) Context[U] {
	if ctx.Err != nil {
		return Context[U]{Cost: ctx.Cost, Err: ctx.Err}
	}
	return Context[U]{Value: f(ctx.Value), Cost: ctx.Cost}
}

// FlatMap chains a cost-carrying computation off of ctx, adding the nested
// cost to the accumulator. f is not invoked if ctx already carries an error.
func FlatMap[T, U any](ctx Context[T], f func(T) Context[U]) Context[U] {
	if ctx.Err != nil {
		return Context[U]{Cost: ctx.Cost, Err: ctx.Err}
	}
	next := f(ctx.Value)
	return Context[U]{Value: next.Value, Cost: ctx.Cost.Add(next.Cost), Err: next.Err}
}

// Unwrap folds an externally accumulated cost and returns (value, error),
// the early-return helper of spec.md §4.5: callers do
//
//	v, err := cost.Unwrap(&acc, someOp())
//	if err != nil { return zero, err }
//
// and acc always reflects the cost incurred up to the point of failure.
func Unwrap[T any](acc *Cost, ctx Context[T]) (T, error) {
	*acc = acc.Add(ctx.Cost)
	return ctx.Value, ctx.Err
}
