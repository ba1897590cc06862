/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package atomicx is a small generic wrapper around sync/atomic.Value, giving
// readers a wait-free, type-safe load of a pointer that a single writer swaps
// atomically — the shape the backend snapshot pointer in internal/backend
// needs.
package atomicx

import "sync/atomic"

// Value is a type-safe, generic atomic box for T.
type Value[T any] struct {
	av atomic.Value
}

type box[T any] struct {
	v T
}

// Load returns the current value, or the zero value of T if Store was never called.
func (o *Value[T]) Load() T {
	v, _ := o.av.Load().(box[T])
	return v.v
}

// Store sets the current value.
func (o *Value[T]) Store(v T) {
	o.av.Store(box[T]{v: v})
}

// Swap atomically replaces the value and returns the previous one.
func (o *Value[T]) Swap(v T) T {
	old, _ := o.av.Swap(box[T]{v: v}).(box[T])
	return old.v
}
