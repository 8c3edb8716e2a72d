// Copyright 2025 Certen Protocol
//
// Package staging holds upstream messages between receipt by the
// upstream consumer callback and processing by the dispatcher loop; they
// stay unacknowledged upstream until the dispatcher resolves them.
// It is the only thing standing between the upstream queue's prefetch
// window and admission control; keeping it small and bounded is what
// lets a slow validator apply backpressure all the way to the queue.

package staging

import (
	"context"
	"time"

	"github.com/airanchor/gateway/pkg/gwerrors"
)

// AckHandle is whatever the upstream adapter needs to ack, multi-ack, or
// reject-with-requeue a message later. The buffer and dispatcher never
// interpret it; they only carry it.
type AckHandle interface{}

// Entry pairs a message body with the handle needed to resolve it
// upstream once the dispatcher decides its fate.
type Entry struct {
	Ack  AckHandle
	Body []byte
}

// Buffer is a bounded FIFO of capacity B.
type Buffer struct {
	ch chan Entry
}

// New creates a Buffer with the given capacity (BUFFER_MAX_SIZE).
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{ch: make(chan Entry, capacity)}
}

// Enqueue attempts to place an entry within timeout. It returns
// gwerrors.ErrBufferFull if the buffer stays full for the whole window.
func (b *Buffer) Enqueue(ctx context.Context, entry Entry, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case b.ch <- entry:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return gwerrors.ErrBufferFull
	}
}

// Len reports the number of entries currently buffered.
func (b *Buffer) Len() int {
	return len(b.ch)
}

// Cap reports the buffer's capacity.
func (b *Buffer) Cap() int {
	return cap(b.ch)
}

// Drain removes up to n entries in FIFO order, without blocking beyond
// what is already buffered. It never returns more than what was
// available at call time.
func (b *Buffer) Drain(n int) []Entry {
	entries := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		select {
		case e := <-b.ch:
			entries = append(entries, e)
		default:
			return entries
		}
	}
	return entries
}
