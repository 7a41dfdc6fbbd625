package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/google/uuid"
)

// Config controls dispatcher buffering.
type Config struct {
	// BufferSize is the queue length. Defaults to 1024.
	BufferSize int

	// DropIfFull drops entries immediately when the queue is full.
	// Otherwise Emit waits up to EmitTimeout before dropping.
	DropIfFull bool

	// EmitTimeout defaults to 50ms.
	EmitTimeout time.Duration

	// WriteTimeout bounds a single sink write. Defaults to 5s.
	WriteTimeout time.Duration

	// OnDrop runs once per dropped entry.
	OnDrop func(domain.AuditEntry)

	Logger *slog.Logger
}

// Dispatcher delivers audit entries to a sink from a single background
// worker. A slow or failing sink never blocks or fails the caller.
type Dispatcher struct {
	cfg  Config
	sink Sink
	ch   chan domain.AuditEntry
	errs chan error

	// mu is held shared by Emit from the closed check through the send, so
	// Close cannot slip between them.
	mu       sync.RWMutex
	closed   bool
	done     chan struct{}
	finished chan struct{}
	dropped  atomic.Uint64
	now      func() time.Time
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.EmitTimeout <= 0 {
		cfg.EmitTimeout = 50 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	d := &Dispatcher{
		cfg:      cfg,
		sink:     sink,
		ch:       make(chan domain.AuditEntry, cfg.BufferSize),
		errs:     make(chan error, 16),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		now:      time.Now,
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.finished)

	for {
		select {
		case e := <-d.ch:
			d.write(e)
		case <-d.done:
			for {
				select {
				case e := <-d.ch:
					d.write(e)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) write(e domain.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.WriteTimeout)
	defer cancel()

	if err := d.sink.Write(ctx, e); err != nil {
		err = fmt.Errorf("audit: write %s/%s: %w", e.Action, e.ID, err)
		d.cfg.Logger.Error("audit sink failed", "err", err, "action", string(e.Action))
		select {
		case d.errs <- err:
		default:
		}
	}
}

// Emit queues e. It fills in the ID and timestamp when unset and returns
// without waiting for the sink. Entries emitted after Close are dropped.
func (d *Dispatcher) Emit(ctx context.Context, e domain.AuditEntry) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(e)
		return
	}
	if e.ID == "" {
		e.ID = newEntryID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = d.now().UTC()
	}

	select {
	case d.ch <- e:
		return
	default:
	}

	if d.cfg.DropIfFull {
		d.drop(e)
		return
	}

	timer := time.NewTimer(d.cfg.EmitTimeout)
	defer timer.Stop()
	select {
	case d.ch <- e:
	case <-ctx.Done():
		d.drop(e)
	case <-timer.C:
		d.drop(e)
	}
}

func (d *Dispatcher) drop(e domain.AuditEntry) {
	d.dropped.Add(1)
	if d.cfg.OnDrop != nil {
		d.cfg.OnDrop(e)
	}
}

// Errors reports sink failures. Errors are dropped when nobody reads.
func (d *Dispatcher) Errors() <-chan error { return d.errs }

// Dropped returns how many entries never reached the sink queue, including
// those emitted after Close.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Close stops accepting entries and waits for the queue to drain or ctx
// to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.done)
	}
	d.mu.Unlock()

	select {
	case <-d.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newEntryID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
