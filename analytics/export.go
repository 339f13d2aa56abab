package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Exporter ships daily reports somewhere outside the process.
type Exporter interface {
	Export(ctx context.Context, r *DailyReport) error
	Flush(ctx context.Context) error
	Close() error
}

// maxPending bounds the reports an HTTPExporter keeps while its endpoint fails.
const maxPending = 100

// HTTPExporter POSTs reports as a JSON array once batchSize reports are buffered.
// Past maxPending the oldest pending report is dropped.
type HTTPExporter struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	batchSize  int

	mu     sync.Mutex
	buffer []*DailyReport
}

func NewHTTPExporter(endpoint, apiKey string, batchSize int) *HTTPExporter {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &HTTPExporter{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		batchSize:  batchSize,
		buffer:     make([]*DailyReport, 0, batchSize),
	}
}

func (e *HTTPExporter) Export(ctx context.Context, r *DailyReport) error {
	e.mu.Lock()
	e.add(r)
	full := len(e.buffer) >= e.batchSize
	e.mu.Unlock()
	if full {
		return e.Flush(ctx)
	}
	return nil
}

// add buffers r. Callers hold mu.
func (e *HTTPExporter) add(r *DailyReport) {
	e.buffer = append(e.buffer, r)
	if n := len(e.buffer) - maxPending; n > 0 {
		e.buffer = append(e.buffer[:0], e.buffer[n:]...)
	}
}

func (e *HTTPExporter) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.buffer) == 0 {
		return nil
	}

	payload, err := json.Marshal(e.buffer)
	if err != nil {
		return fmt.Errorf("marshal analytics reports: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send analytics reports: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("analytics export failed with status %d: %s", resp.StatusCode, string(body))
	}

	// keep the buffer on failure so the next flush retries it
	e.buffer = e.buffer[:0]
	return nil
}

func (e *HTTPExporter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Flush(ctx)
}

// LogExporter writes each report as a structured log line.
type LogExporter struct {
	logger *slog.Logger
}

func NewLogExporter(logger *slog.Logger) *LogExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogExporter{logger: logger}
}

func (e *LogExporter) Export(ctx context.Context, r *DailyReport) error {
	e.logger.InfoContext(ctx, "analytics report",
		"day", r.Day,
		"active_students", r.ActiveStudents,
		"scores_written", r.ScoresWritten,
		"subjects", len(r.Subjects))
	return nil
}

func (e *LogExporter) Flush(context.Context) error { return nil }
func (e *LogExporter) Close() error { return nil }

// MultiExporter fans reports out to several exporters. A failing exporter
// is logged and does not stop the others.
type MultiExporter struct {
	exporters []Exporter
	logger    *slog.Logger
}

func NewMultiExporter(logger *slog.Logger, exporters ...Exporter) *MultiExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiExporter{exporters: exporters, logger: logger}
}

func (e *MultiExporter) Export(ctx context.Context, r *DailyReport) error {
	for _, ex := range e.exporters {
		if err := ex.Export(ctx, r); err != nil {
			e.logger.Warn("analytics export failed", "exporter", fmt.Sprintf("%T", ex), "error", err)
		}
	}
	return nil
}

func (e *MultiExporter) Flush(ctx context.Context) error {
	var errs []error
	for _, ex := range e.exporters {
		if err := ex.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush %T: %w", ex, err))
		}
	}
	return errors.Join(errs...)
}

func (e *MultiExporter) Close() error {
	var errs []error
	for _, ex := range e.exporters {
		if err := ex.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
