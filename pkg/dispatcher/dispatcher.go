// Copyright 2025 Certen Protocol
//
// Dispatcher Loop - the gateway's single long-running admission-control
// task. Grounded on the teacher's pkg/batch/scheduler.go Start/Stop/run
// idiom: a mutex-guarded state enum, a stopCh/doneCh pair, and an
// injected *log.Logger. Where the teacher's scheduler fires on a ticker
// interval, this loop instead sleep-polls an input buffer and a token
// bucket before each cycle.

package dispatcher

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/airanchor/gateway/pkg/batchbuilder"
	"github.com/airanchor/gateway/pkg/gwerrors"
	"github.com/airanchor/gateway/pkg/staging"
	"github.com/airanchor/gateway/pkg/wire"
)

// pollInterval is how often the loop checks an empty buffer for new
// arrivals.
const pollInterval = 200 * time.Millisecond

// tokenPollInterval is the bounded sleep between token-bucket consume
// attempts: spec allows a busy-wait, a bounded sleep is preferable.
const tokenPollInterval = 50 * time.Millisecond

// State is the dispatcher's run state.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// TokenBucket is the subset of *ratelimit.TokenBucket the loop depends on.
type TokenBucket interface {
	Consume(n float64) bool
}

// LeakyShaper is the subset of *ratelimit.LeakyShaper the loop depends on.
type LeakyShaper interface {
	Shape(n int) int
}

// StagingBuffer is the subset of *staging.Buffer the loop depends on.
type StagingBuffer interface {
	Len() int
	Drain(n int) []staging.Entry
}

// Upstream is the subset of *upstream.Ingestor the loop depends on to
// resolve drained messages.
type Upstream interface {
	Ack(deliveryTag uint64)
	RejectRequeue(deliveryTag uint64)
	RejectDrop(deliveryTag uint64)
}

// BatchBuilder is the subset of *batchbuilder.Builder the loop depends on.
type BatchBuilder interface {
	BuildAndSubmit(ctx context.Context, requests []*wire.Request) (*batchbuilder.Result, error)
}

// Dispatcher runs the drain-build-submit cycle described in spec.md §4.9.
type Dispatcher struct {
	mu sync.RWMutex

	tokens  TokenBucket
	shaper  LeakyShaper
	buffer  StagingBuffer
	up      Upstream
	builder BatchBuilder
	logger  *log.Logger
	metrics *metrics

	state  State
	stopCh chan struct{}
	doneCh chan struct{}
}

// Config configures a Dispatcher.
type Config struct {
	TokenBucket  TokenBucket
	LeakyShaper  LeakyShaper
	Buffer       StagingBuffer
	Upstream     Upstream
	BatchBuilder BatchBuilder
	Logger       *log.Logger
}

// New builds a Dispatcher in the stopped state.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[Dispatcher] ", log.LstdFlags)
	}
	return &Dispatcher{
		tokens:  cfg.TokenBucket,
		shaper:  cfg.LeakyShaper,
		buffer:  cfg.Buffer,
		up:      cfg.Upstream,
		builder: cfg.BatchBuilder,
		logger:  logger,
		metrics: newMetrics(),
		state:   StateStopped,
	}
}

// Registry returns the dispatcher's private prometheus registry, so the
// HTTP server can merge it into the process-wide /metrics surface.
func (d *Dispatcher) Registry() *prometheus.Registry {
	return d.metrics.registry
}

// State reports the dispatcher's current run state.
func (d *Dispatcher) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Start launches the loop in a new goroutine. It is a no-op if already
// running.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateRunning {
		return
	}
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.state = StateRunning

	go d.run(ctx)
	d.logger.Println("dispatcher started")
}

// Stop halts the loop and waits for the in-flight cycle to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.state != StateRunning {
		d.mu.Unlock()
		return
	}
	close(d.stopCh)
	d.state = StateStopped
	doneCh := d.doneCh
	d.mu.Unlock()

	<-doneCh
	d.logger.Println("dispatcher stopped")
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		default:
		}

		if !d.waitForInput(ctx) {
			return
		}

		d.cycle(ctx)
	}
}

// waitForInput sleep-polls until the buffer holds at least one message,
// or returns false if the loop should stop.
func (d *Dispatcher) waitForInput(ctx context.Context) bool {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for d.buffer.Len() == 0 {
		select {
		case <-ctx.Done():
			return false
		case <-d.stopCh:
			return false
		case <-ticker.C:
		}
	}
	return true
}

// cycle runs one drain-build-submit round: admission control, drain,
// decode, build, submit, and upstream resolution.
func (d *Dispatcher) cycle(ctx context.Context) {
	cycleID := uuid.NewString()
	start := time.Now()
	defer func() { d.metrics.cycleDuration.Observe(time.Since(start).Seconds()) }()

	size := d.buffer.Len()
	if size == 0 {
		return
	}

	if !d.waitForTokens(ctx, size) {
		return
	}

	allowance := d.shaper.Shape(size)
	entries := d.buffer.Drain(allowance)
	if len(entries) == 0 {
		return
	}

	var (
		requests []*wire.Request
		lastTag  uint64
	)

	for _, e := range entries {
		tag, _ := e.Ack.(uint64)
		if tag > lastTag {
			lastTag = tag
		}

		req, err := wire.Decode(e.Body)
		if err != nil {
			d.metrics.malformed.Inc()
			d.logger.Printf("cycle=%s %v (tag=%d): %v", cycleID, gwerrors.ErrMalformedRequest, tag, err)
			d.up.RejectDrop(tag)
			continue
		}
		requests = append(requests, req)
	}

	if len(requests) == 0 {
		return
	}

	result, err := d.builder.BuildAndSubmit(ctx, requests)
	switch {
	case err == nil:
		if result != nil && result.Accepted > 0 {
			d.metrics.batchesSubmitted.Inc()
		}
		if result != nil && result.Dropped > 0 {
			d.metrics.dropped.Add(float64(result.Dropped))
		}
		d.logger.Printf("cycle=%s submitted batch %s (%d accepted, %d dropped)", cycleID, result.BatchID, result.Accepted, result.Dropped)
		d.up.Ack(lastTag)

	case gwerrors.IsBackPressure(err):
		d.metrics.backpressure.Inc()
		d.logger.Printf("cycle=%s back pressure from validator, requeueing %d messages: %v", cycleID, len(entries), err)
		for _, e := range entries {
			if tag, ok := e.Ack.(uint64); ok {
				d.up.RejectRequeue(tag)
			}
		}

	case gwerrors.IsBatchFatal(err):
		d.logger.Printf("cycle=%s batch fatal error, rejecting %d messages without requeue: %v", cycleID, len(entries), err)
		for _, e := range entries {
			if tag, ok := e.Ack.(uint64); ok {
				d.up.RejectDrop(tag)
			}
		}

	default:
		d.logger.Printf("cycle=%s unrecognized build/submit error, rejecting %d messages without requeue: %v", cycleID, len(entries), err)
		for _, e := range entries {
			if tag, ok := e.Ack.(uint64); ok {
				d.up.RejectDrop(tag)
			}
		}
	}
}

// waitForTokens blocks until the token bucket can supply `size` tokens
// for this drain, bounded-sleeping between attempts rather than a tight
// busy-wait.
func (d *Dispatcher) waitForTokens(ctx context.Context, size int) bool {
	if d.tokens.Consume(float64(size)) {
		return true
	}

	ticker := time.NewTicker(tokenPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-d.stopCh:
			return false
		case <-ticker.C:
			if d.tokens.Consume(float64(size)) {
				return true
			}
		}
	}
}
