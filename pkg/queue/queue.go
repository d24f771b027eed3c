// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package queue provides a fixed-capacity FIFO ring buffer that never refuses
// a write: when full, the oldest element is overwritten.
package queue

// Queue is a drop-oldest ring buffer. It is not safe for concurrent use.
type Queue[T any] struct {
	buf  []T
	head int // next slot to dequeue
	tail int // next slot to enqueue
	size int
}

// New creates a queue holding at most capacity elements. A capacity below 1
// is raised to 1.
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{buf: make([]T, capacity)}
}

// Enqueue appends v. If the queue is full the oldest element is discarded.
func (q *Queue[T]) Enqueue(v T) {
	q.buf[q.tail] = v
	q.tail = (q.tail + 1) % len(q.buf)
	if q.size == len(q.buf) {
		q.head = q.tail
		return
	}
	q.size++
}

// Dequeue removes and returns the oldest element, or the zero value if the
// queue is empty.
func (q *Queue[T]) Dequeue() T {
	var zero T
	if q.size == 0 {
		return zero
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return v
}

// TryDequeue is Dequeue with an explicit presence flag.
func (q *Queue[T]) TryDequeue() (T, bool) {
	if q.size == 0 {
		var zero T
		return zero, false
	}
	return q.Dequeue(), true
}

// Peek returns the element stored in absolute slot i, regardless of where
// the head currently sits. Out-of-range slots yield the zero value.
func (q *Queue[T]) Peek(i int) T {
	if i < 0 || i >= len(q.buf) {
		var zero T
		return zero
	}
	return q.buf[i]
}

// Clear drops every element.
func (q *Queue[T]) Clear() {
	var zero T
	for i := range q.buf {
		q.buf[i] = zero
	}
	q.head, q.tail, q.size = 0, 0, 0
}

func (q *Queue[T]) Size() int     { return q.size }
func (q *Queue[T]) Capacity() int { return len(q.buf) }
func (q *Queue[T]) Empty() bool   { return q.size == 0 }
func (q *Queue[T]) Full() bool    { return q.size == len(q.buf) }
