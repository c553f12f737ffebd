package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	moveSpanName    = "board.move"
	moveEventName   = "task.move"
	moveEventDomain = "taskboard"
	moveRoute       = "/api/tasks/:id/move"
)

// moveRequestMetrics collects timings and outcome flags for the move route
// and emits them both as a logrus observability event and as attributes on
// an OpenTelemetry span.
type moveRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration  time.Duration
	applyDuration time.Duration
	column        string
	index         int
	applied       bool
	duplicate     bool
	errorStage    string
}

func newMoveRequestMetrics(ctx context.Context, logger *log.Logger) (*moveRequestMetrics, context.Context) {
	tracer := otel.Tracer("taskboard-api/api")
	spanCtx, span := tracer.Start(ctx, moveSpanName)
	return &moveRequestMetrics{logger: logger, span: span, start: time.Now()}, spanCtx
}

func (m *moveRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *moveRequestMetrics) ObserveApply(d time.Duration) {
	if d > 0 {
		m.applyDuration = d
	}
}

func (m *moveRequestMetrics) SetDestination(column string, index int) {
	m.column = column
	m.index = index
}

func (m *moveRequestMetrics) SetApplied(applied bool)     { m.applied = applied }
func (m *moveRequestMetrics) SetDuplicate(duplicate bool) { m.duplicate = duplicate }

func (m *moveRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log finishes the span and emits the observability event. Call exactly
// once per request.
func (m *moveRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	severityText, severityNumber := severityForStatus(status, err)
	attrs := []attribute.KeyValue{
		attribute.String("http.route", moveRoute),
		attribute.Int("http.status_code", status),
		attribute.String("taskboard.move.column", m.column),
		attribute.Int("taskboard.move.index", m.index),
		attribute.Bool("taskboard.move.applied", m.applied),
		attribute.Bool("taskboard.move.duplicate", m.duplicate),
		attribute.Float64("taskboard.move.total_ms", durationToMillis(time.Since(m.start))),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("taskboard.move.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.applyDuration > 0 {
		attrs = append(attrs, attribute.Float64("taskboard.move.apply_ms", durationToMillis(m.applyDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("taskboard.move.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", moveEventName),
		attribute.String("event.domain", moveEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, attrs...)

	m.span.SetAttributes(attrs...)
	m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
	if err != nil || status >= http.StatusInternalServerError {
		msg := http.StatusText(status)
		if err != nil {
			msg = err.Error()
		}
		m.span.SetStatus(codes.Error, msg)
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	m.span.End()

	fields := log.Fields{
		"event.name":      moveEventName,
		"event.domain":    moveEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attributesToFields(attrs),
	}
	if sc := m.span.SpanContext(); sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}
	m.logger.WithFields(fields).Info("observability.event")
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func attributesToFields(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
