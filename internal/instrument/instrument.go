package instrument

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Event is one row of the _events table: a timed span or a business event.
type Event struct {
	ID           string
	TraceID      string
	SpanID       string
	ParentSpanID *string
	EventType    string // "span" or "business"
	Source       string
	Component    string
	Action       string
	Entity       *string
	RecordID     *string
	DurationMs   *float64
	Status       *string
	Metadata     map[string]any
}

// Instrumenter starts spans and records business events for one request.
type Instrumenter interface {
	StartSpan(ctx context.Context, source, component, action string) (context.Context, Span)
	EmitBusinessEvent(ctx context.Context, action, entity, recordID string, metadata map[string]any)
}

type Span interface {
	End()
	SetStatus(status string)
	SetMetadata(key string, value any)
	SetEntity(entity, recordID string)
	TraceID() string
	SpanID() string
}

type ctxKey int

const (
	instrumenterKey ctxKey = iota
	traceKey
	spanKey
)

// WithInstrumenter attaches inst to ctx.
func WithInstrumenter(ctx context.Context, inst Instrumenter) context.Context {
	return context.WithValue(ctx, instrumenterKey, inst)
}

// GetInstrumenter returns the request's instrumenter, or a no-op one.
func GetInstrumenter(ctx context.Context) Instrumenter {
	if ctx != nil {
		if inst, ok := ctx.Value(instrumenterKey).(Instrumenter); ok && inst != nil {
			return inst
		}
	}
	return discard{}
}

// TraceIDFrom returns the trace id carried by ctx, or "".
func TraceIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(traceKey).(string)
	return id
}

func withTrace(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey, traceID)
}

// BufferedInstrumenter writes spans and events to an EventBuffer. A request
// is either fully recorded or fully dropped according to the sampling rate.
type BufferedInstrumenter struct {
	buffer       *EventBuffer
	samplingRate float64
}

func NewBufferedInstrumenter(buffer *EventBuffer, samplingRate float64) *BufferedInstrumenter {
	return &BufferedInstrumenter{buffer: buffer, samplingRate: samplingRate}
}

// ForRequest picks the instrumenter for one request after sampling.
func (b *BufferedInstrumenter) ForRequest() Instrumenter {
	if b == nil || b.buffer == nil {
		return discard{}
	}
	if b.samplingRate < 1 && rand.Float64() >= b.samplingRate {
		return discard{}
	}
	return b
}

func (b *BufferedInstrumenter) StartSpan(ctx context.Context, source, component, action string) (context.Context, Span) {
	traceID := TraceIDFrom(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
		ctx = withTrace(ctx, traceID)
	}
	s := &span{
		buffer:    b.buffer,
		traceID:   traceID,
		spanID:    uuid.NewString(),
		source:    source,
		component: component,
		action:    action,
		start:     time.Now(),
	}
	if parent, ok := ctx.Value(spanKey).(*span); ok {
		s.parentID = &parent.spanID
	}
	return context.WithValue(ctx, spanKey, s), s
}

func (b *BufferedInstrumenter) EmitBusinessEvent(ctx context.Context, action, entity, recordID string, metadata map[string]any) {
	traceID := TraceIDFrom(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	e := Event{
		ID:        uuid.NewString(),
		TraceID:   traceID,
		SpanID:    uuid.NewString(),
		EventType: "business",
		Source:    "app",
		Component: "business",
		Action:    action,
		Metadata:  metadata,
	}
	if parent, ok := ctx.Value(spanKey).(*span); ok {
		e.ParentSpanID = &parent.spanID
	}
	if entity != "" {
		e.Entity = &entity
	}
	if recordID != "" {
		e.RecordID = &recordID
	}
	b.buffer.Enqueue(e)
}

type span struct {
	buffer    *EventBuffer
	traceID   string
	spanID    string
	parentID  *string
	source    string
	component string
	action    string
	entity    *string
	recordID  *string
	status    *string
	metadata  map[string]any
	start     time.Time
	ended     bool
}

func (s *span) End() {
	if s.ended {
		return
	}
	s.ended = true
	ms := float64(time.Since(s.start).Microseconds()) / 1000
	s.buffer.Enqueue(Event{
		ID:           uuid.NewString(),
		TraceID:      s.traceID,
		SpanID:       s.spanID,
		ParentSpanID: s.parentID,
		EventType:    "span",
		Source:       s.source,
		Component:    s.component,
		Action:       s.action,
		Entity:       s.entity,
		RecordID:     s.recordID,
		DurationMs:   &ms,
		Status:       s.status,
		Metadata:     s.metadata,
	})
}

func (s *span) SetStatus(status string) { s.status = &status }

func (s *span) SetMetadata(key string, value any) {
	if s.metadata == nil {
		s.metadata = make(map[string]any)
	}
	s.metadata[key] = value
}

func (s *span) SetEntity(entity, recordID string) {
	if entity != "" {
		s.entity = &entity
	}
	if recordID != "" {
		s.recordID = &recordID
	}
}

func (s *span) TraceID() string { return s.traceID }
func (s *span) SpanID() string  { return s.spanID }

// discard is the instrumenter of unsampled requests and of code running
// without one. Its spans still report the request's trace id.
type discard struct{}

func (discard) StartSpan(ctx context.Context, _, _, _ string) (context.Context, Span) {
	return ctx, discardSpan(TraceIDFrom(ctx))
}

func (discard) EmitBusinessEvent(context.Context, string, string, string, map[string]any) {}

type discardSpan string

func (discardSpan) End()                     {}
func (discardSpan) SetStatus(string)         {}
func (discardSpan) SetMetadata(string, any)  {}
func (discardSpan) SetEntity(string, string) {}
func (s discardSpan) TraceID() string        { return string(s) }
func (discardSpan) SpanID() string           { return "" }
