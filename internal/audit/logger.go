package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/platform/database"
	"github.com/gatehouse-io/gatehouse/internal/platform/telemetry"
)

const flushTimeout = 5 * time.Second

// LoggerConfig sizes the event queue and controls how often it is written out.
type LoggerConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

func (c *LoggerConfig) setDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = 4096
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 500 * time.Millisecond
	}
}

// AsyncLogger queues events in memory and writes them in batches from a
// single goroutine. Callers never wait on the database.
type AsyncLogger struct {
	queue  chan Event
	store  *Store
	db     database.Querier
	cfg    LoggerConfig
	logger *slog.Logger

	closed  atomic.Bool
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	lastErr error
}

// NewAsyncLogger starts the writer goroutine. db must not be bound to a tenant
// scope; audit rows carry their own tenant id.
func NewAsyncLogger(db database.Querier, store *Store, cfg LoggerConfig, logger *slog.Logger) *AsyncLogger {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	l := &AsyncLogger{
		queue:  make(chan Event, cfg.BufferSize),
		store:  store,
		db:     db,
		cfg:    cfg,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// Log queues event. A full queue or a closed logger drops it.
func (l *AsyncLogger) Log(_ context.Context, event Event) {
	if event.Source == "" {
		event.Source = SourceAPI
	}
	if l.closed.Load() {
		l.drop(event, "audit logger closed, dropping event")
		return
	}
	select {
	case l.queue <- event:
	default:
		l.drop(event, "audit buffer full, dropping event")
	}
}

func (l *AsyncLogger) drop(event Event, msg string) {
	telemetry.AuditDroppedTotal.Inc()
	l.logger.Warn(msg, "action", event.Action)
}

// Close writes everything still queued and stops the writer. It returns the
// error of the last failed write, if any. Calling it again is a no-op.
func (l *AsyncLogger) Close() error {
	l.once.Do(func() {
		l.closed.Store(true)
		close(l.stop)
		<-l.done
	})
	return l.lastErr
}

func (l *AsyncLogger) run() {
	defer close(l.done)

	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	pending := make([]Event, 0, l.cfg.BatchSize)
	for {
		select {
		case <-l.stop:
			l.write(append(pending, l.drain()...))
			return
		case e := <-l.queue:
			pending = append(pending, e)
			if len(pending) >= l.cfg.BatchSize {
				l.write(pending)
				pending = pending[:0]
			}
		case <-ticker.C:
			l.write(pending)
			pending = pending[:0]
		}
	}
}

// write inserts events in chunks of at most BatchSize rows.
func (l *AsyncLogger) write(events []Event) {
	for len(events) > 0 {
		n := min(len(events), l.cfg.BatchSize)
		l.insert(events[:n])
		events = events[n:]
	}
}

func (l *AsyncLogger) insert(batch []Event) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := l.store.InsertBatch(ctx, l.db, batch); err != nil {
		l.lastErr = fmt.Errorf("writing audit events: %w", err)
		l.logger.Error("audit flush failed", "error", err, "count", len(batch))
	}
}

func (l *AsyncLogger) drain() []Event {
	var events []Event
	for {
		select {
		case e := <-l.queue:
			events = append(events, e)
		default:
			return events
		}
	}
}
