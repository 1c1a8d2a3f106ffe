package application

import (
	"context"
	"time"

	"marketdata-service/internal/domain"
)

// CounterStore is the atomic usage counter surface of the persisted store.
// Increment must be race-free under concurrent callers.
type CounterStore interface {
	Increment(ctx context.Context, key string) (int64, error)
	GetCount(ctx context.Context, key string) (int64, error)
	// ResetCount zeroes a counter and returns its prior value.
	ResetCount(ctx context.Context, key string) (int64, error)
	CounterKeys(ctx context.Context, prefix string) ([]string, error)
}

// FailureLedger records fetch failures: a latest-failure row per
// symbol/type plus a per-day per-type counted set of failed symbols.
// The set is the counter; its cardinality always equals the count.
type FailureLedger interface {
	PutLatestFailure(ctx context.Context, rec domain.FailureRecord) error
	// AddFailedSymbol appends symbol to the day's set and returns the
	// resulting count.
	AddFailedSymbol(ctx context.Context, dateKey string, t domain.DataType, symbol string) (int64, error)
	FailedSymbols(ctx context.Context, dateKey string, t domain.DataType) ([]string, error)
	FailureCount(ctx context.Context, dateKey string, t domain.DataType) (int64, error)
}

// FallbackCache stores the per-symbol last-resort records.
type FallbackCache interface {
	GetRecord(ctx context.Context, symbol string, t domain.DataType) (domain.FallbackRecord, error)
	PutRecord(ctx context.Context, symbol string, t domain.DataType, rec domain.FallbackRecord, ttl time.Duration) error
}

// PriorityStore persists the per-type ordered source lists.
type PriorityStore interface {
	GetPriorities(ctx context.Context, t domain.DataType) ([]string, error)
	PutPriorities(ctx context.Context, t domain.DataType, sources []string) error
}

// MetricStore aggregates request outcomes per source and per symbol.
type MetricStore interface {
	RecordSample(ctx context.Context, s domain.SourceSample) error
	GetMetric(ctx context.Context, t domain.DataType, source string) (domain.SourceMetric, error)
}

// SnapshotFetcher retrieves the remote fallback dataset. A partially
// missing dataset is returned with empty categories; an error means no
// document could be fetched.
type SnapshotFetcher interface {
	Fetch(ctx context.Context) (domain.FallbackSnapshot, error)
}

// ContentsRepo is the SHA-guarded remote document store used by the
// fallback export (GitHub contents API).
type ContentsRepo interface {
	// GetFile returns the current content and SHA; domain.ErrNotFound
	// when the document does not exist yet.
	GetFile(ctx context.Context, path string) (content []byte, sha string, err error)
	PutFile(ctx context.Context, path string, content []byte, sha, message string) error
}

// FailureHistory is the durable failure log backing SQL statistics.
// Optional: services tolerate a nil history.
type FailureHistory interface {
	Append(ctx context.Context, rec domain.FailureRecord) error
	CountsSince(ctx context.Context, from time.Time) ([]domain.DayTypeCount, error)
	TopSymbols(ctx context.Context, from time.Time, limit int) ([]domain.SymbolCount, error)
}

// RateAPI is a live exchange rate provider.
type RateAPI interface {
	FetchRate(ctx context.Context, base, target string) (float64, error)
}

// Alert levels.
const (
	AlertWarning  = "warning"
	AlertCritical = "critical"
)

// Alert is a side-channel notification. Sinks must never propagate their
// own delivery failures.
type Alert struct {
	Level  string
	Title  string
	Detail string
	Fields map[string]string
}

// AlertSink delivers alerts and error notifications.
type AlertSink interface {
	SendAlert(ctx context.Context, a Alert)
	NotifyError(ctx context.Context, component string, err error)
}

// NoopAlerts discards everything; useful for tests/dev.
type NoopAlerts struct{}

func (NoopAlerts) SendAlert(context.Context, Alert)           {}
func (NoopAlerts) NotifyError(context.Context, string, error) {}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
