package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/airanchor/gateway/pkg/batchbuilder"
	"github.com/airanchor/gateway/pkg/gwerrors"
	"github.com/airanchor/gateway/pkg/staging"
	"github.com/airanchor/gateway/pkg/wire"
)

type fakeTokenBucket struct {
	mu    sync.Mutex
	allow bool
}

func (f *fakeTokenBucket) Consume(n float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allow
}

func (f *fakeTokenBucket) setAllow(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allow = v
}

type fakeShaper struct{}

func (fakeShaper) Shape(n int) int { return n }

type fakeBuffer struct {
	mu      sync.Mutex
	entries []staging.Entry
}

func (b *fakeBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *fakeBuffer) Drain(n int) []staging.Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > len(b.entries) {
		n = len(b.entries)
	}
	out := b.entries[:n]
	b.entries = b.entries[n:]
	return out
}

type fakeUpstream struct {
	mu       sync.Mutex
	acked    []uint64
	requeued []uint64
	dropped  []uint64
}

func (u *fakeUpstream) Ack(tag uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.acked = append(u.acked, tag)
}

func (u *fakeUpstream) RejectRequeue(tag uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.requeued = append(u.requeued, tag)
}

func (u *fakeUpstream) RejectDrop(tag uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.dropped = append(u.dropped, tag)
}

type fakeBuilder struct {
	mu   sync.Mutex
	err  error
	got  []*wire.Request
	call int
}

func (b *fakeBuilder) BuildAndSubmit(ctx context.Context, requests []*wire.Request) (*batchbuilder.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.call++
	b.got = requests
	if b.err != nil {
		return nil, b.err
	}
	return &batchbuilder.Result{Accepted: len(requests)}, nil
}

func validRequestBody(t *testing.T) []byte {
	t.Helper()
	req := &wire.Request{
		Header: wire.RequestHeader{
			SenderPublicKey: "abc",
			Data:            "hi",
		},
		Signature: "deadbeef",
	}
	body, err := req.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return body
}

func TestCycleHappyPathAcksLastDrained(t *testing.T) {
	buf := &fakeBuffer{entries: []staging.Entry{
		{Ack: uint64(1), Body: validRequestBody(t)},
		{Ack: uint64(2), Body: validRequestBody(t)},
	}}
	up := &fakeUpstream{}
	builder := &fakeBuilder{}

	d := New(Config{
		TokenBucket: &fakeTokenBucket{allow: true},
		LeakyShaper: fakeShaper{},
		Buffer:      buf,
		Upstream:    up,
		BatchBuilder: builder,
	})

	d.cycle(context.Background())

	if len(up.acked) != 1 || up.acked[0] != 2 {
		t.Fatalf("expected multi-ack of tag 2, got %v", up.acked)
	}
	if builder.call != 1 || len(builder.got) != 2 {
		t.Fatalf("expected builder called once with 2 requests, got call=%d got=%d", builder.call, len(builder.got))
	}
}

func TestCycleRejectsMalformedIndividually(t *testing.T) {
	buf := &fakeBuffer{entries: []staging.Entry{
		{Ack: uint64(1), Body: []byte("not cbor")},
		{Ack: uint64(2), Body: validRequestBody(t)},
	}}
	up := &fakeUpstream{}
	builder := &fakeBuilder{}

	d := New(Config{
		TokenBucket:  &fakeTokenBucket{allow: true},
		LeakyShaper:  fakeShaper{},
		Buffer:       buf,
		Upstream:     up,
		BatchBuilder: builder,
	})

	d.cycle(context.Background())

	if len(up.dropped) != 1 || up.dropped[0] != 1 {
		t.Fatalf("expected tag 1 dropped, got %v", up.dropped)
	}
	if len(builder.got) != 1 {
		t.Fatalf("expected 1 survivor passed to builder, got %d", len(builder.got))
	}
	if len(up.acked) != 1 || up.acked[0] != 2 {
		t.Fatalf("expected tag 2 acked, got %v", up.acked)
	}
}

func TestCycleBackPressureRequeuesAllDrained(t *testing.T) {
	buf := &fakeBuffer{entries: []staging.Entry{
		{Ack: uint64(1), Body: validRequestBody(t)},
		{Ack: uint64(2), Body: validRequestBody(t)},
	}}
	up := &fakeUpstream{}
	builder := &fakeBuilder{err: gwerrors.ErrBackPressure}

	d := New(Config{
		TokenBucket:  &fakeTokenBucket{allow: true},
		LeakyShaper:  fakeShaper{},
		Buffer:       buf,
		Upstream:     up,
		BatchBuilder: builder,
	})

	d.cycle(context.Background())

	if len(up.requeued) != 2 {
		t.Fatalf("expected both messages requeued, got %v", up.requeued)
	}
	if len(up.acked) != 0 || len(up.dropped) != 0 {
		t.Fatalf("expected no ack/drop on back pressure, got acked=%v dropped=%v", up.acked, up.dropped)
	}
}

func TestCycleOtherFailureRejectsAllWithoutRequeue(t *testing.T) {
	buf := &fakeBuffer{entries: []staging.Entry{
		{Ack: uint64(1), Body: validRequestBody(t)},
	}}
	up := &fakeUpstream{}
	builder := &fakeBuilder{err: errors.New("validator exploded")}

	d := New(Config{
		TokenBucket:  &fakeTokenBucket{allow: true},
		LeakyShaper:  fakeShaper{},
		Buffer:       buf,
		Upstream:     up,
		BatchBuilder: builder,
	})

	d.cycle(context.Background())

	if len(up.dropped) != 1 || up.dropped[0] != 1 {
		t.Fatalf("expected tag 1 rejected without requeue, got %v", up.dropped)
	}
	if len(up.requeued) != 0 || len(up.acked) != 0 {
		t.Fatalf("expected no requeue/ack, got requeue=%v acked=%v", up.requeued, up.acked)
	}
}

func TestWaitForTokensRetriesUntilAllowed(t *testing.T) {
	tb := &fakeTokenBucket{allow: false}
	d := New(Config{
		TokenBucket: tb,
		LeakyShaper: fakeShaper{},
		Buffer:      &fakeBuffer{},
		Upstream:    &fakeUpstream{},
		BatchBuilder: &fakeBuilder{},
	})
	d.stopCh = make(chan struct{})

	go func() {
		time.Sleep(3 * tokenPollInterval)
		tb.setAllow(true)
	}()

	if !d.waitForTokens(context.Background(), 1) {
		t.Fatal("expected waitForTokens to eventually succeed")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	d := New(Config{
		TokenBucket:  &fakeTokenBucket{allow: true},
		LeakyShaper:  fakeShaper{},
		Buffer:       &fakeBuffer{},
		Upstream:     &fakeUpstream{},
		BatchBuilder: &fakeBuilder{},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.Start(ctx)
	d.Start(ctx) // second Start is a no-op
	if d.State() != StateRunning {
		t.Fatalf("expected running state, got %s", d.State())
	}

	d.Stop()
	if d.State() != StateStopped {
		t.Fatalf("expected stopped state, got %s", d.State())
	}
	d.Stop() // second Stop is a no-op
}
