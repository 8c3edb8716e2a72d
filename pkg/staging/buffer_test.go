package staging

import (
	"context"
	"testing"
	"time"

	"github.com/airanchor/gateway/pkg/gwerrors"
)

func TestEnqueueDrainFIFOOrder(t *testing.T) {
	b := New(30)
	for i := 0; i < 5; i++ {
		entry := Entry{Ack: i, Body: []byte{byte(i)}}
		if err := b.Enqueue(context.Background(), entry, time.Second); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}

	drained := b.Drain(5)
	if len(drained) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(drained))
	}
	for i, e := range drained {
		if e.Ack.(int) != i {
			t.Fatalf("FIFO order broken at %d: got ack %v", i, e.Ack)
		}
	}
}

func TestDrainNeverExceedsAvailable(t *testing.T) {
	b := New(30)
	for i := 0; i < 3; i++ {
		b.Enqueue(context.Background(), Entry{Ack: i}, time.Second)
	}
	drained := b.Drain(10)
	if len(drained) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(drained))
	}
}

func TestEnqueueTimesOutWhenFull(t *testing.T) {
	b := New(1)
	if err := b.Enqueue(context.Background(), Entry{Ack: 1}, time.Second); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	err := b.Enqueue(context.Background(), Entry{Ack: 2}, 50*time.Millisecond)
	if err != gwerrors.ErrBufferFull {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}
}

func TestEnqueueRespectsContextCancellation(t *testing.T) {
	b := New(1)
	b.Enqueue(context.Background(), Entry{Ack: 1}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Enqueue(ctx, Entry{Ack: 2}, time.Second)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLenAndCap(t *testing.T) {
	b := New(30)
	if b.Cap() != 30 {
		t.Fatalf("expected cap 30, got %d", b.Cap())
	}
	b.Enqueue(context.Background(), Entry{Ack: 1}, time.Second)
	if b.Len() != 1 {
		t.Fatalf("expected len 1, got %d", b.Len())
	}
}
