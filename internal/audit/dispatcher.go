package audit

import (
	"sync"
	"sync/atomic"
	"time"
)

// Config controls queueing.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Record drop instead of waiting for queue space.
	DropIfFull bool
}

// Stats counts what happened to recorded events.
type Stats struct {
	Delivered uint64
	Dropped   uint64
}

// Dispatcher moves events off the caller's goroutine into a Sink. A nil
// *Dispatcher is valid and discards everything.
type Dispatcher struct {
	cfg   Config
	sink  Sink
	queue chan Event
	stop  chan struct{}
	done  chan struct{}

	mu      sync.Mutex
	idle    *sync.Cond
	pending int
	closed  bool

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// New returns nil when cfg.Enabled is false.
func New(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = DiscardSink{}
	}

	d := &Dispatcher{
		cfg:   cfg,
		sink:  sink,
		queue: make(chan Event, cfg.BufferSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	d.idle = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case ev := <-d.queue:
			d.sink.Deliver(ev)
			d.delivered.Add(1)
			d.settle()
		case <-d.stop:
			return
		}
	}
}

// Record queues ev, stamping it when Timestamp is zero. Events recorded after
// Close are ignored.
func (d *Dispatcher) Record(ev Event) {
	if d == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.pending++
	d.mu.Unlock()

	if !d.cfg.DropIfFull {
		d.queue <- ev
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.dropped.Add(1)
		d.settle()
	}
}

func (d *Dispatcher) settle() {
	d.mu.Lock()
	d.pending--
	if d.pending == 0 {
		d.idle.Broadcast()
	}
	d.mu.Unlock()
}

// Flush blocks until every event recorded so far was delivered or dropped.
func (d *Dispatcher) Flush() {
	if d == nil {
		return
	}
	d.mu.Lock()
	for d.pending > 0 {
		d.idle.Wait()
	}
	d.mu.Unlock()
}

// Close flushes and stops the dispatcher goroutine. It is idempotent.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.Flush()
	close(d.stop)
	<-d.done
}

func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{Delivered: d.delivered.Load(), Dropped: d.dropped.Load()}
}

func (d *Dispatcher) Dropped() uint64 {
	return d.Stats().Dropped
}
