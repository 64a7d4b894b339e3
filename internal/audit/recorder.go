package audit

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/authguard/internal/config"
	"github.com/vyrodovalexey/authguard/internal/observability"
)

const (
	redactedValue       = "[REDACTED]"
	defaultBufferSize   = 1024
	defaultWriteTimeout = time.Second
)

var defaultRedactFields = []string{"password", "secret", "token", "authorization", "api_key", "apikey"}

// Recorder writes audit events asynchronously. Record never blocks.
type Recorder struct {
	store        Store
	events       chan Event
	writeTimeout time.Duration
	logger       observability.Logger
	metrics      *Metrics
	now          func() time.Time
	dropLog      rate.Sometimes

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// RecorderOption is a functional option for the recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the logger.
func WithRecorderLogger(logger observability.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithRecorderMetrics sets the metrics.
func WithRecorderMetrics(metrics *Metrics) RecorderOption {
	return func(r *Recorder) {
		r.metrics = metrics
	}
}

// WithRecorderClock overrides time.Now for event timestamps.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder creates a recorder over store and starts its worker.
func NewRecorder(store Store, cfg config.AuditConfig, opts ...RecorderOption) *Recorder {
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	timeout := cfg.WriteTimeout.Duration()
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	r := &Recorder{
		store:        store,
		events:       make(chan Event, size),
		writeTimeout: timeout,
		logger:       observability.NopLogger(),
		now:          time.Now,
		dropLog:      rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(nil)
	}

	r.wg.Add(1)
	go r.run()

	return r
}

// Store returns the underlying store, for queries.
func (r *Recorder) Store() Store {
	return r.store
}

// Record queues e for writing. Missing IDs and timestamps are filled in and
// sensitive additional data is redacted. The event is dropped when the
// queue is full or the recorder is closed.
func (r *Recorder) Record(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = NewEventID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}
	if e.ClientIP == "" {
		e.ClientIP = "unknown"
	}
	e.AdditionalData = redact(e.AdditionalData)
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		if e.AdditionalData == nil {
			e.AdditionalData = make(map[string]interface{}, 1)
		}
		e.AdditionalData["traceId"] = sc.TraceID().String()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.drop(e, "recorder closed")
		return
	}

	select {
	case r.events <- e:
		r.metrics.queueDepth.Inc()
	default:
		r.drop(e, "queue full")
	}
}

func (r *Recorder) drop(e Event, reason string) {
	r.metrics.droppedTotal.Inc()
	r.dropLog.Do(func() {
		r.logger.Warn("audit event dropped",
			observability.String("reason", reason),
			observability.String("event_type", string(e.Type)),
		)
	})
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for e := range r.events {
		r.metrics.queueDepth.Dec()
		r.write(e)
	}
}

func (r *Recorder) write(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	if err := r.store.Append(ctx, e); err != nil {
		r.metrics.writeErrors.Inc()
		r.logger.Warn("failed to write audit event",
			observability.String("event_id", e.ID),
			observability.String("event_type", string(e.Type)),
			observability.Error(err),
		)
		return
	}
	r.metrics.eventsTotal.WithLabelValues(string(e.Type), successLabel(e.Success)).Inc()
}

// Close stops accepting events and waits until queued events are written.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()

	r.wg.Wait()
	return nil
}

// redact returns a copy of data with sensitive keys replaced.
func redact(data map[string]interface{}) map[string]interface{} {
	if len(data) == 0 {
		return data
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		if shouldRedact(k) {
			out[k] = redactedValue
			continue
		}
		out[k] = v
	}
	return out
}

func shouldRedact(field string) bool {
	lower := strings.ToLower(field)
	for _, f := range defaultRedactFields {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}
