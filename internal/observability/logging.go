package observability

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// baseWriter is the stdout-or-file sink InitLogger configured, kept so
// EnableOTelSink can fan the same stream out to an additional OTLP log
// exporter without InitLogger and EnableOTelSink needing to share a
// plumbed-through writer argument (InitOTel in cmd/noemad runs after
// InitLogger, and may fail independently of it).
var baseWriter io.Writer = os.Stdout

// InitLogger initializes zerolog with sane defaults for noemad, the
// ingestion-worker-plus-HTTP-server process cmd/noemad starts. If
// logPath is non-empty, logs are also written to that file (append mode);
// this is what lets the worker loop and the HTTP server share one process
// log independent of which one a given request/task touches. If opening the
// file fails, logs fall back to stdout, and an error is printed to stderr.
func InitLogger(logPath string, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	var w io.Writer = os.Stdout
	if logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = f
		} else {
			// best-effort; continue with stdout
			_, _ = fmt.Fprintf(os.Stderr, "failed to open log file %q: %v\n", logPath, err)
		}
	}
	baseWriter = w
	log.Logger = log.Output(w).With().Timestamp().Logger()
	// Parse level
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl := zerolog.InfoLevel
	if level != "" {
		if l, err := zerolog.ParseLevel(level); err == nil {
			lvl = l
		}
	}
	zerolog.SetGlobalLevel(lvl)
	// Redirect the standard library logger so ALL logs are captured.
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}

// EnableOTelSink fans the process log stream out to an additional OTLP log
// record sink, on top of whatever InitLogger configured. cmd/noemad calls
// this after InitOTel succeeds, so ingestion task failures and retrieval
// diagnostics logged via LoggerWithTask/LoggerWithUser are visible in the
// same backend as traces and metrics, not only in the local log file.
func EnableOTelSink(serviceName string) {
	mw := zerolog.MultiLevelWriter(baseWriter, NewOTelWriter(serviceName))
	log.Logger = log.Output(mw).With().Timestamp().Logger()
	stdlog.SetOutput(log.Logger)
}
