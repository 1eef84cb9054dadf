package observability

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

// OTelWriter is an io.Writer that forwards zerolog's JSON lines to the
// global OTLP log provider, so an ingestion failure or a degraded-rerank
// diagnostic (with its task_id/user_id fields) correlates with the trace
// and metric data for the same task or request.
type OTelWriter struct {
	logger log.Logger
}

// NewOTelWriter returns a writer emitting under the given instrumentation
// scope name.
func NewOTelWriter(name string) *OTelWriter {
	return &OTelWriter{logger: global.GetLoggerProvider().Logger(name)}
}

// Write parses one zerolog JSON line and emits it as an OTLP log record.
// Lines that aren't JSON are forwarded as plain info-level messages. Always
// reports the full length as written: log delivery must not fail the
// zerolog pipeline.
func (w *OTelWriter) Write(p []byte) (int, error) {
	var fields map[string]any
	if err := json.Unmarshal(p, &fields); err != nil {
		var rec log.Record
		rec.SetTimestamp(time.Now())
		rec.SetSeverity(log.SeverityInfo)
		rec.SetBody(log.StringValue(string(p)))
		w.logger.Emit(context.Background(), rec)
		return len(p), nil
	}
	w.logger.Emit(context.Background(), recordFromFields(fields))
	return len(p), nil
}

// recordFromFields lifts zerolog's well-known keys (time, level, message)
// into the record's own slots and attaches everything else as attributes.
func recordFromFields(fields map[string]any) log.Record {
	var rec log.Record

	rec.SetTimestamp(time.Now())
	if ts, ok := fields["time"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.SetTimestamp(t)
		}
		delete(fields, "time")
	}

	rec.SetSeverity(log.SeverityInfo)
	rec.SetSeverityText("info")
	if lvl, ok := fields["level"].(string); ok {
		rec.SetSeverity(severityFor(lvl))
		rec.SetSeverityText(lvl)
		delete(fields, "level")
	}

	for _, key := range []string{"message", "msg"} {
		if msg, ok := fields[key].(string); ok {
			rec.SetBody(log.StringValue(msg))
			delete(fields, key)
			break
		}
	}

	attrs := make([]log.KeyValue, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, log.KeyValue{Key: k, Value: logValue(v)})
	}
	rec.AddAttributes(attrs...)
	return rec
}

func severityFor(level string) log.Severity {
	switch level {
	case "trace":
		return log.SeverityTrace
	case "debug":
		return log.SeverityDebug
	case "warn", "warning":
		return log.SeverityWarn
	case "error":
		return log.SeverityError
	case "fatal":
		return log.SeverityFatal
	case "panic":
		return log.SeverityFatal4
	default:
		return log.SeverityInfo
	}
}

func logValue(v any) log.Value {
	switch val := v.(type) {
	case string:
		return log.StringValue(val)
	case float64:
		return log.Float64Value(val)
	case bool:
		return log.BoolValue(val)
	case nil:
		return log.StringValue("")
	default:
		// Nested objects and arrays flatten to their JSON text.
		if b, err := json.Marshal(val); err == nil {
			return log.StringValue(string(b))
		}
		return log.StringValue("")
	}
}
