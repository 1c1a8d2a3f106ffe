package application

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"marketdata-service/internal/domain"
	"marketdata-service/internal/retry"

	"go.uber.org/zap"
)

// PriorityService tracks per-source success/failure/latency and maintains
// the mutable source ordering per data type. The in-flight request map is
// process-local and best-effort: it may be empty on a cold start and is
// never persisted.
type PriorityService struct {
	store   PriorityStore
	metrics MetricStore
	clock   Clock
	log     *zap.Logger

	mu       sync.Mutex
	inflight map[string]inflightRequest
}

type inflightRequest struct {
	DataType  domain.DataType
	Source    string
	Symbol    string
	StartedNS int64
}

type PriorityOption func(*PriorityService)

func WithPriorityClock(c Clock) PriorityOption {
	return func(s *PriorityService) { s.clock = c }
}
func WithPriorityLogger(l *zap.Logger) PriorityOption {
	return func(s *PriorityService) { s.log = l }
}

func NewPriorityService(store PriorityStore, metrics MetricStore, opts ...PriorityOption) *PriorityService {
	s := &PriorityService{
		store:    store,
		metrics:  metrics,
		inflight: make(map[string]inflightRequest),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// GetSourcePriority returns the ordered source list for t, reading through
// to the store and falling back to the static defaults on any read
// failure. The result always lists every known source exactly once.
func (s *PriorityService) GetSourcePriority(ctx context.Context, t domain.DataType) ([]string, error) {
	defaults, ok := domain.DefaultSourcePriorities[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownDataType, t)
	}
	stored, err := s.store.GetPriorities(ctx, t)
	if err != nil {
		if err != domain.ErrNotFound {
			s.log.Warn("priority_read_failed", zap.String("data_type", string(t)), zap.Error(err))
		}
		return append([]string(nil), defaults...), nil
	}
	return normalizePriorities(stored, defaults), nil
}

// normalizePriorities keeps the stored order, drops sources no longer
// known, and appends newly known sources at the back.
func normalizePriorities(stored, defaults []string) []string {
	known := make(map[string]bool, len(defaults))
	for _, d := range defaults {
		known[d] = true
	}
	out := make([]string, 0, len(defaults))
	seen := make(map[string]bool, len(defaults))
	for _, src := range stored {
		if known[src] && !seen[src] {
			out = append(out, src)
			seen[src] = true
		}
	}
	for _, d := range defaults {
		if !seen[d] {
			out = append(out, d)
		}
	}
	return out
}

// UpdateSourcePriority swaps source one position toward the front
// (direction>0) or the back (direction<0). It returns false with no write
// when the source is absent from the list.
func (s *PriorityService) UpdateSourcePriority(ctx context.Context, t domain.DataType, source string, direction int) (bool, error) {
	cur, err := s.GetSourcePriority(ctx, t)
	if err != nil {
		return false, err
	}
	idx := -1
	for i, src := range cur {
		if src == source {
			idx = i
			break
		}
	}
	if idx < 0 || direction == 0 {
		return false, nil
	}
	swap := idx - 1
	if direction < 0 {
		swap = idx + 1
	}
	if swap < 0 || swap >= len(cur) {
		// Already at the boundary; nothing to persist.
		return true, nil
	}
	cur[idx], cur[swap] = cur[swap], cur[idx]
	if err := s.store.PutPriorities(ctx, t, cur); err != nil {
		return false, fmt.Errorf("persist priorities: %w", err)
	}
	s.log.Info("priority_updated",
		zap.String("data_type", string(t)),
		zap.String("source", source),
		zap.Int("direction", direction),
		zap.Strings("priorities", cur),
	)
	return true, nil
}

// StartRequest registers an in-flight request and returns its tracking
// token, "{source}:{symbol}:{startNanos}".
func (s *PriorityService) StartRequest(t domain.DataType, source, symbol string) string {
	start := s.clock.Now().UnixNano()
	token := source + ":" + symbol + ":" + strconv.FormatInt(start, 10)
	s.mu.Lock()
	s.inflight[token] = inflightRequest{DataType: t, Source: source, Symbol: symbol, StartedNS: start}
	s.mu.Unlock()
	return token
}

// take removes and returns the in-flight entry; on a cold start the entry
// is reconstructed from the token itself with zero latency.
func (s *PriorityService) take(token string) (inflightRequest, bool) {
	s.mu.Lock()
	req, ok := s.inflight[token]
	if ok {
		delete(s.inflight, token)
	}
	s.mu.Unlock()
	if ok {
		return req, true
	}
	parts := strings.Split(token, ":")
	if len(parts) < 3 {
		return inflightRequest{}, false
	}
	start, _ := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	return inflightRequest{
		Source:    parts[0],
		Symbol:    strings.Join(parts[1:len(parts)-1], ":"),
		StartedNS: start,
	}, true
}

// RecordResult completes a tracked request, persisting the symbol-level
// and source-total aggregates.
func (s *PriorityService) RecordResult(ctx context.Context, token string, success bool, opErr error) error {
	req, ok := s.take(token)
	if !ok {
		return fmt.Errorf("%w: malformed request token", ErrBadRequest)
	}
	sample := domain.SourceSample{
		MetricType: req.DataType,
		Source:     req.Source,
		Symbol:     req.Symbol,
		Success:    success,
		LatencyMS:  s.latencyMS(req.StartedNS),
	}
	if opErr != nil {
		sample.ErrorKind = retry.Kind(opErr)
	}
	if err := s.metrics.RecordSample(ctx, sample); err != nil {
		// Metrics are advisory; never fail the caller's request path.
		s.log.Warn("metric_record_failed", zap.String("source", req.Source), zap.Error(err))
	}
	return nil
}

// BatchItemResult is one symbol's outcome within a batched request.
type BatchItemResult struct {
	Symbol  string
	Success bool
	Err     error
}

// RecordBatchResults completes a tracked batch request, persisting one
// per-item sample plus the shared source-total aggregation.
func (s *PriorityService) RecordBatchResults(ctx context.Context, token string, results []BatchItemResult) error {
	req, ok := s.take(token)
	if !ok {
		return fmt.Errorf("%w: malformed request token", ErrBadRequest)
	}
	latency := s.latencyMS(req.StartedNS)
	for _, r := range results {
		sample := domain.SourceSample{
			MetricType: req.DataType,
			Source:     req.Source,
			Symbol:     r.Symbol,
			Success:    r.Success,
			LatencyMS:  latency,
		}
		if r.Err != nil {
			sample.ErrorKind = retry.Kind(r.Err)
		}
		if err := s.metrics.RecordSample(ctx, sample); err != nil {
			s.log.Warn("metric_record_failed", zap.String("source", req.Source), zap.Error(err))
		}
	}
	return nil
}

// GetSourceMetrics reads the aggregated counters for one source.
func (s *PriorityService) GetSourceMetrics(ctx context.Context, t domain.DataType, source string) (domain.SourceMetric, error) {
	return s.metrics.GetMetric(ctx, t, source)
}

func (s *PriorityService) latencyMS(startNS int64) int64 {
	if startNS <= 0 {
		return 0
	}
	ms := (s.clock.Now().UnixNano() - startNS) / 1e6
	if ms < 0 {
		return 0
	}
	return ms
}
