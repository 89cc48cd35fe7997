package stats

import (
	"context"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittoreg/internal/logger"
	"github.com/marmos91/dittoreg/pkg/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RequestContext carries per-request state from the moment a request is
// accepted until Done: the caller's client record (referenced), the start
// time and the trace span.
//
// A RequestContext is owned by the goroutine serving the request; its
// completion hooks may run concurrently with other requests for the same
// client or export.
type RequestContext struct {
	// ID uniquely identifies the request in logs and traces.
	ID uuid.UUID

	// Addr is the caller's address as given to Begin.
	Addr netip.Addr

	// ClientID is the NFSv4 client id, when known.
	ClientID    uint64
	HasClientID bool

	// Start is when the request was accepted. QueueWait is the time it
	// spent queued before that.
	Start     time.Time
	QueueWait time.Duration

	ctx       context.Context
	span      trace.Span
	client    *ClientStats
	collector *Collector
	done      atomic.Bool
}

// BeginOption configures a RequestContext.
type BeginOption func(*RequestContext)

// WithClientID records the NFSv4 client id of the caller.
func WithClientID(id uint64) BeginOption {
	return func(r *RequestContext) {
		r.ClientID = id
		r.HasClientID = true
	}
}

// WithQueueWait records how long the request waited before Begin.
func WithQueueWait(d time.Duration) BeginOption {
	return func(r *RequestContext) { r.QueueWait = d }
}

// Begin opens a request for addr.
//
// It takes a reference on the client record for addr (creating it on first
// contact) and holds it until Done. If the client is over its rate limit the
// reference is dropped immediately and ErrRateLimited is returned.
//
// Every successful Begin must be paired with Done:
//
//	req, err := collector.Begin(ctx, addr)
//	if err != nil {
//	    return err
//	}
//	defer req.Done()
func (c *Collector) Begin(ctx context.Context, addr netip.Addr, opts ...BeginOption) (*RequestContext, error) {
	if !addr.IsValid() {
		return nil, ErrInvalidAddress
	}

	cl, ok := c.clients.GetOrCreate(addr, false)
	if !ok {
		return nil, ErrUnavailable
	}

	if cl.limiter != nil && !cl.limiter.Allow() {
		cl.Client.Lock()
		cl.Throttled++
		cl.Client.Unlock()
		c.clients.Release(cl)
		logger.Debug("stats: request from %s rate limited", addr)
		return nil, ErrRateLimited
	}

	r := &RequestContext{
		ID:        uuid.New(),
		Addr:      addr,
		Start:     c.clock.Now(),
		client:    cl,
		collector: c,
	}
	for _, opt := range opts {
		opt(r)
	}

	attrs := []attribute.KeyValue{
		attribute.String("request.id", r.ID.String()),
		attribute.String("client.addr", cl.Client.Addr().String()),
	}
	if r.HasClientID {
		attrs = append(attrs, attribute.Int64("client.id", int64(r.ClientID)))
	}
	r.ctx, r.span = c.tracer.Start(ctx, "nfs.request", trace.WithAttributes(attrs...))
	return r, nil
}

// Context returns the request's context, carrying its span.
func (r *RequestContext) Context() context.Context {
	return r.ctx
}

// Client returns the referenced client record. It is valid until Done.
func (r *RequestContext) Client() *ClientStats {
	return r.client
}

// Elapsed returns the time since the request started.
func (r *RequestContext) Elapsed() time.Duration {
	return r.collector.clock.Since(r.Start)
}

func (r *RequestContext) active(hook string) bool {
	if r.done.Load() {
		logger.Warn("stats: %s called on finished request %s", hook, r.ID)
		return false
	}
	return true
}

// touchClient updates the client record under its lock and stamps
// LastUpdate.
func (r *RequestContext) touchClient(update func(*counters)) {
	now := r.collector.Uptime()

	r.client.Client.Lock()
	update(&r.client.counters)
	if now > r.client.Client.LastUpdate {
		r.client.Client.LastUpdate = now
	}
	r.client.Client.Unlock()
}

// touchExport updates the export record for id, creating it if needed. The
// export reference is released before returning.
func (r *RequestContext) touchExport(id registry.ExportID, update func(*counters)) {
	exp, ok := r.collector.exports.GetOrCreate(id, false)
	if !ok {
		logger.Warn("stats: export %d unavailable, request %s not charged to it", id, r.ID)
		return
	}
	defer r.collector.exports.Release(exp)

	exp.Export.Lock()
	update(&exp.counters)
	exp.Export.Unlock()
}

// IODone charges a READ or WRITE to the client and to export id.
func (r *RequestContext) IODone(id registry.ExportID, requested, transferred uint64, success, isWrite bool) {
	if !r.active("IODone") {
		return
	}
	latency := r.Elapsed()
	update := func(c *counters) { c.io(requested, transferred, success, isWrite, latency) }
	r.touchClient(update)
	r.touchExport(id, update)

	name := "io.read"
	if isWrite {
		name = "io.write"
	}
	r.span.AddEvent(name, trace.WithAttributes(
		attribute.Int("export.id", int(id)),
		attribute.Int64("bytes.requested", int64(requested)),
		attribute.Int64("bytes.transferred", int64(transferred)),
		attribute.Bool("success", success),
	))
	if !success {
		r.span.SetStatus(codes.Error, name+" failed")
	}
}

// OpDone charges one operation, started at start, to the client and to
// export id. Operations inside a compound carry their own start time; pass
// the zero time to use the request start.
func (r *RequestContext) OpDone(id registry.ExportID, op string, start time.Time, success bool) {
	if !r.active("OpDone") {
		return
	}
	if start.IsZero() {
		start = r.Start
	}
	latency := r.collector.clock.Since(start)
	update := func(c *counters) { c.op(op, success, latency) }
	r.touchClient(update)
	r.touchExport(id, update)

	r.span.AddEvent("op", trace.WithAttributes(
		attribute.String("op", op),
		attribute.Int("export.id", int(id)),
		attribute.Bool("success", success),
	))
	if !success {
		r.span.SetStatus(codes.Error, op+" failed")
	}
}

// CompoundDone charges a COMPOUND of numOps operations to the client and to
// export id.
func (r *RequestContext) CompoundDone(id registry.ExportID, numOps uint32, success bool) {
	if !r.active("CompoundDone") {
		return
	}
	latency := r.Elapsed()
	update := func(c *counters) { c.Compounds.record(numOps, success, latency) }
	r.touchClient(update)
	r.touchExport(id, update)

	r.span.SetAttributes(attribute.Int("compound.ops", int(numOps)))
	if !success {
		r.span.SetStatus(codes.Error, "compound failed")
	}
}

// Done ends the request and releases its client reference. Further calls
// are no-ops.
func (r *RequestContext) Done() {
	if !r.done.CompareAndSwap(false, true) {
		return
	}
	r.span.End()
	r.collector.clients.Release(r.client)
}
