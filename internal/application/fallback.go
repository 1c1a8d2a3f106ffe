package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"marketdata-service/internal/domain"

	"go.uber.org/zap"
)

const (
	defaultStatisticsDays = 7
	exportLookbackDays    = 7
	statisticsTopSymbols  = 20
)

// Fallback snapshot documents, one per category.
var snapshotDocs = []struct {
	Path     string
	Category domain.Category
}{
	{"fallback-stocks.json", domain.CategoryStocks},
	{"fallback-etfs.json", domain.CategoryETFs},
	{"fallback-funds.json", domain.CategoryMutualFunds},
	{"fallback-rates.json", domain.CategoryExchangeRates},
}

// TTLs are the per-type fallback cache lifetimes.
type TTLs struct {
	Stock time.Duration
	Fund  time.Duration
	Rate  time.Duration
}

// FallbackService owns the remote snapshot cache, the per-symbol fallback
// cache and the failure ledger. Lookups are fail-open: a storage error
// still yields a best-effort default.
type FallbackService struct {
	fetcher  SnapshotFetcher
	cache    FallbackCache
	ledger   FailureLedger
	history  FailureHistory // optional durable log
	contents ContentsRepo   // optional; nil disables export
	alerts   AlertSink
	clock    Clock
	log      *zap.Logger

	refreshInterval time.Duration
	ttls            TTLs

	mu       sync.RWMutex
	snapshot domain.FallbackSnapshot
}

type FallbackOption func(*FallbackService)

func WithFailureHistory(h FailureHistory) FallbackOption {
	return func(s *FallbackService) { s.history = h }
}
func WithContentsRepo(c ContentsRepo) FallbackOption {
	return func(s *FallbackService) { s.contents = c }
}
func WithFallbackClock(c Clock) FallbackOption {
	return func(s *FallbackService) { s.clock = c }
}
func WithFallbackLogger(l *zap.Logger) FallbackOption {
	return func(s *FallbackService) { s.log = l }
}

func NewFallbackService(fetcher SnapshotFetcher, cache FallbackCache, ledger FailureLedger, alerts AlertSink, refreshInterval time.Duration, ttls TTLs, opts ...FallbackOption) *FallbackService {
	s := &FallbackService{
		fetcher:         fetcher,
		cache:           cache,
		ledger:          ledger,
		alerts:          alerts,
		refreshInterval: refreshInterval,
		ttls:            ttls,
		snapshot:        domain.EmptySnapshot(),
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
	if s.alerts == nil {
		s.alerts = NoopAlerts{}
	}
	return s
}

// GetFallbackData returns the remote snapshot, refreshing it when the
// interval has elapsed or force is set. A failed refresh serves the
// last-known-good snapshot; an empty snapshot is returned only when the
// cache was never populated.
func (s *FallbackService) GetFallbackData(ctx context.Context, force bool) domain.FallbackSnapshot {
	s.mu.RLock()
	cur := s.snapshot
	s.mu.RUnlock()

	if !force && !cur.LastFetched.IsZero() && s.clock.Now().Sub(cur.LastFetched) < s.refreshInterval {
		return cur
	}

	fresh, err := s.fetcher.Fetch(ctx)
	if err != nil {
		s.log.Warn("snapshot_refresh_failed", zap.Error(err))
		s.alerts.NotifyError(ctx, "fallback-snapshot", err)
		if cur.Populated() {
			return cur
		}
		return domain.EmptySnapshot()
	}
	fresh.LastFetched = s.clock.Now()

	s.mu.Lock()
	// Concurrent refreshes may race; the last completed one wins and
	// LastFetched never moves backwards.
	if fresh.LastFetched.After(s.snapshot.LastFetched) {
		s.snapshot = fresh
	}
	cur = s.snapshot
	s.mu.Unlock()

	s.log.Info("snapshot_refreshed",
		zap.Int("stocks", len(cur.Stocks)),
		zap.Int("etfs", len(cur.ETFs)),
		zap.Int("mutual_funds", len(cur.MutualFunds)),
		zap.Int("exchange_rates", len(cur.ExchangeRates)),
	)
	return cur
}

// GetFallbackForSymbol returns a last-resort record for symbol: the symbol
// cache first, then the remote snapshot, then a synthesized per-type
// default. It is total for recognized types and returns nil only for an
// unrecognized type.
func (s *FallbackService) GetFallbackForSymbol(ctx context.Context, symbol string, t domain.DataType) *domain.FallbackRecord {
	if !domain.IsKnownDataType(t) {
		return nil
	}
	sym := strings.ToUpper(symbol)

	if rec, err := s.cache.GetRecord(ctx, sym, t); err == nil {
		rec = normalizeRecord(sym, t, rec, s.clock.Now())
		return &rec
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.log.Warn("fallback_cache_read_failed", zap.String("symbol", sym), zap.Error(err))
	}

	snap := s.GetFallbackData(ctx, false)
	if cat, ok := domain.CategoryOf(t); ok {
		if rec, ok := snap.Category(cat)[sym]; ok {
			rec = normalizeRecord(sym, t, rec, s.clock.Now())
			s.writeBack(ctx, sym, t, rec)
			return &rec
		}
	}

	rec := normalizeRecord(sym, t, defaultRecord(sym, t), s.clock.Now())
	s.writeBack(ctx, sym, t, rec)
	return &rec
}

// StoreRecord caches a freshly resolved value as the symbol's fallback.
func (s *FallbackService) StoreRecord(ctx context.Context, symbol string, t domain.DataType, rec domain.FallbackRecord) {
	if !domain.IsKnownDataType(t) {
		return
	}
	sym := strings.ToUpper(symbol)
	s.writeBack(ctx, sym, t, normalizeRecord(sym, t, rec, s.clock.Now()))
}

func (s *FallbackService) writeBack(ctx context.Context, sym string, t domain.DataType, rec domain.FallbackRecord) {
	if err := s.cache.PutRecord(ctx, sym, t, rec, s.ttlFor(t)); err != nil {
		s.log.Warn("fallback_cache_write_failed", zap.String("symbol", sym), zap.Error(err))
	}
}

func (s *FallbackService) ttlFor(t domain.DataType) time.Duration {
	switch t {
	case domain.TypeMutualFund:
		return s.ttls.Fund
	case domain.TypeExchangeRate:
		return s.ttls.Rate
	default:
		return s.ttls.Stock
	}
}

// normalizeRecord guarantees the identifying key, type, timestamp and
// source label are populated before a record is served or cached.
func normalizeRecord(sym string, t domain.DataType, rec domain.FallbackRecord, now time.Time) domain.FallbackRecord {
	rec.Type = t
	if t == domain.TypeExchangeRate {
		rec.Pair = sym
		rec.Ticker = ""
	} else {
		rec.Ticker = sym
	}
	if rec.LastUpdated.IsZero() {
		rec.LastUpdated = now.UTC()
	}
	if rec.Source == "" {
		rec.Source = domain.RateSourceDefault
	}
	return rec
}

// defaultRecord synthesizes a deterministic per-type value for a symbol
// that has no cached or snapshot data at all.
func defaultRecord(sym string, t domain.DataType) domain.FallbackRecord {
	switch t {
	case domain.TypeUSStock:
		return domain.FallbackRecord{Price: 100, Currency: "USD", Name: sym, Source: domain.RateSourceDefault}
	case domain.TypeJPStock:
		return domain.FallbackRecord{Price: 1000, Currency: "JPY", Name: sym, Source: domain.RateSourceDefault}
	case domain.TypeETF:
		return domain.FallbackRecord{Price: 50, Currency: "USD", Name: sym, Source: domain.RateSourceDefault}
	case domain.TypeMutualFund:
		return domain.FallbackRecord{Price: 10000, Currency: "JPY", Name: sym, Source: domain.RateSourceDefault}
	case domain.TypeExchangeRate:
		rate := emergencyRate
		if base, target, ok := domain.SplitPair(sym); ok {
			if r, _, found := staticRate(base, target); found {
				rate = r
			}
		}
		return domain.FallbackRecord{Rate: rate, Source: domain.RateSourceDefault}
	default:
		return domain.FallbackRecord{Source: domain.RateSourceDefault}
	}
}

// RecordFailedFetch writes the latest-failure row for symbol/type and
// appends the symbol to the same-day counted set, keeping the daily count
// equal to the set size under concurrent writers.
func (s *FallbackService) RecordFailedFetch(ctx context.Context, symbol string, t domain.DataType, cause error) error {
	if !domain.IsKnownDataType(t) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownDataType, t)
	}
	sym := strings.ToUpper(symbol)
	now := s.clock.Now()
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	rec := domain.FailureRecord{
		ID:        domain.FailureRecordID(sym, t),
		Symbol:    sym,
		Type:      t,
		Reason:    reason,
		Timestamp: now.UTC(),
		DateKey:   domain.DateKey(now),
	}
	if err := s.ledger.PutLatestFailure(ctx, rec); err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	count, err := s.ledger.AddFailedSymbol(ctx, rec.DateKey, t, sym)
	if err != nil {
		return fmt.Errorf("count failure: %w", err)
	}
	if s.history != nil {
		if err := s.history.Append(ctx, rec); err != nil {
			s.log.Warn("failure_history_append_failed", zap.Error(err))
		}
	}
	s.log.Info("fetch_failure_recorded",
		zap.String("symbol", sym),
		zap.String("data_type", string(t)),
		zap.String("reason", reason),
		zap.Int64("count", count),
	)
	return nil
}

// GetFailedSymbols returns the deduplicated failed symbols for a day: one
// type's set as a point lookup, or the union across all types when t is
// empty. An empty dateKey means today.
func (s *FallbackService) GetFailedSymbols(ctx context.Context, dateKey string, t domain.DataType) ([]string, error) {
	if dateKey == "" {
		dateKey = domain.DateKey(s.clock.Now())
	}
	if t != "" {
		if !domain.IsKnownDataType(t) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownDataType, t)
		}
		syms, err := s.ledger.FailedSymbols(ctx, dateKey, t)
		if err != nil {
			return nil, err
		}
		sort.Strings(syms)
		return syms, nil
	}

	seen := map[string]bool{}
	var union []string
	for _, kt := range domain.KnownDataTypes {
		syms, err := s.ledger.FailedSymbols(ctx, dateKey, kt)
		if err != nil {
			return nil, err
		}
		for _, sym := range syms {
			if !seen[sym] {
				seen[sym] = true
				union = append(union, sym)
			}
		}
	}
	sort.Strings(union)
	return union, nil
}

// GetFailureStatistics aggregates per-date/per-type counts over the last
// N days plus a top-20 symbol frequency ranking. On a storage error it
// returns a degraded result instead of failing.
func (s *FallbackService) GetFailureStatistics(ctx context.Context, days int) domain.FailureStatistics {
	if days <= 0 {
		days = defaultStatisticsDays
	}
	if s.history != nil {
		if stats, err := s.statsFromHistory(ctx, days); err == nil {
			return stats
		} else {
			s.log.Warn("failure_history_stats_failed", zap.Error(err))
		}
	}
	return s.statsFromLedger(ctx, days)
}

func (s *FallbackService) statsFromHistory(ctx context.Context, days int) (domain.FailureStatistics, error) {
	from := s.clock.Now().UTC().AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)
	cells, err := s.history.CountsSince(ctx, from)
	if err != nil {
		return domain.FailureStatistics{}, err
	}
	top, err := s.history.TopSymbols(ctx, from, statisticsTopSymbols)
	if err != nil {
		return domain.FailureStatistics{}, err
	}
	stats := domain.FailureStatistics{
		Days:       days,
		ByDate:     map[string]int64{},
		ByType:     map[domain.DataType]int64{},
		Cells:      cells,
		TopSymbols: top,
	}
	for _, c := range cells {
		stats.TotalFailures += c.Count
		stats.ByDate[c.DateKey] += c.Count
		stats.ByType[c.Type] += c.Count
	}
	return stats, nil
}

func (s *FallbackService) statsFromLedger(ctx context.Context, days int) domain.FailureStatistics {
	now := s.clock.Now()
	stats := domain.FailureStatistics{
		Days:   days,
		ByDate: map[string]int64{},
		ByType: map[domain.DataType]int64{},
	}
	freq := map[string]int64{}
	for i := 0; i < days; i++ {
		dateKey := domain.DateKey(now.AddDate(0, 0, -i))
		for _, t := range domain.KnownDataTypes {
			count, err := s.ledger.FailureCount(ctx, dateKey, t)
			if err != nil {
				s.log.Warn("failure_stats_read_failed", zap.String("date", dateKey), zap.Error(err))
				return domain.FailureStatistics{Days: days, Error: err.Error(), TotalFailures: 0}
			}
			if count == 0 {
				continue
			}
			symbols, err := s.ledger.FailedSymbols(ctx, dateKey, t)
			if err != nil {
				return domain.FailureStatistics{Days: days, Error: err.Error(), TotalFailures: 0}
			}
			stats.TotalFailures += count
			stats.ByDate[dateKey] += count
			stats.ByType[t] += count
			stats.Cells = append(stats.Cells, domain.DayTypeCount{
				DateKey: dateKey, Type: t, Count: count, Symbols: symbols,
			})
			for _, sym := range symbols {
				freq[sym]++
			}
		}
	}
	for sym, n := range freq {
		stats.TopSymbols = append(stats.TopSymbols, domain.SymbolCount{Symbol: sym, Count: n})
	}
	sort.Slice(stats.TopSymbols, func(i, j int) bool {
		a, b := stats.TopSymbols[i], stats.TopSymbols[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Symbol < b.Symbol
	})
	if len(stats.TopSymbols) > statisticsTopSymbols {
		stats.TopSymbols = stats.TopSymbols[:statisticsTopSymbols]
	}
	return stats
}

// ExportResult reports which snapshot documents an export touched.
type ExportResult struct {
	Updated []string `json:"updated"`
	Failed  []string `json:"failed,omitempty"`
	Symbols int      `json:"symbols"`
}

// ExportCurrentFallbacks gathers the last 7 days of failed symbols,
// re-reads each one's latest cached value, merges them into the current
// snapshot and writes the four documents back with SHA-guarded updates.
// It succeeds when at least one document updates and fails closed when no
// write credential is configured.
func (s *FallbackService) ExportCurrentFallbacks(ctx context.Context) (ExportResult, error) {
	if s.contents == nil {
		return ExportResult{}, domain.ErrExportDisabled
	}
	now := s.clock.Now()
	merged := cloneSnapshot(s.GetFallbackData(ctx, false))

	symbols := 0
	seen := map[string]bool{}
	for i := 0; i < exportLookbackDays; i++ {
		dateKey := domain.DateKey(now.AddDate(0, 0, -i))
		for _, t := range domain.KnownDataTypes {
			syms, err := s.ledger.FailedSymbols(ctx, dateKey, t)
			if err != nil {
				s.log.Warn("export_ledger_read_failed", zap.String("date", dateKey), zap.Error(err))
				continue
			}
			cat, ok := domain.CategoryOf(t)
			if !ok {
				continue
			}
			for _, sym := range syms {
				key := string(t) + ":" + sym
				if seen[key] {
					continue
				}
				seen[key] = true
				rec, err := s.cache.GetRecord(ctx, sym, t)
				if err != nil {
					continue
				}
				merged.Category(cat)[sym] = normalizeRecord(sym, t, rec, now)
				symbols++
			}
		}
	}

	res := ExportResult{Symbols: symbols}
	message := "Update fallback data " + domain.DateKey(now)
	for _, doc := range snapshotDocs {
		body, err := json.MarshalIndent(merged.Category(doc.Category), "", "  ")
		if err != nil {
			res.Failed = append(res.Failed, doc.Path)
			continue
		}
		sha := ""
		if _, curSHA, err := s.contents.GetFile(ctx, doc.Path); err == nil {
			sha = curSHA
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.log.Warn("export_head_failed", zap.String("path", doc.Path), zap.Error(err))
		}
		if err := s.contents.PutFile(ctx, doc.Path, body, sha, message); err != nil {
			res.Failed = append(res.Failed, doc.Path)
			s.log.Warn("export_put_failed", zap.String("path", doc.Path), zap.Error(err))
			continue
		}
		res.Updated = append(res.Updated, doc.Path)
	}

	if len(res.Updated) == 0 {
		err := fmt.Errorf("fallback export: no documents updated")
		s.alerts.NotifyError(ctx, "fallback-export", err)
		return res, err
	}
	s.log.Info("fallback_export_done",
		zap.Strings("updated", res.Updated),
		zap.Int("symbols", symbols),
	)
	return res, nil
}

func cloneSnapshot(in domain.FallbackSnapshot) domain.FallbackSnapshot {
	out := domain.EmptySnapshot()
	out.LastFetched = in.LastFetched
	for k, v := range in.Stocks {
		out.Stocks[k] = v
	}
	for k, v := range in.ETFs {
		out.ETFs[k] = v
	}
	for k, v := range in.MutualFunds {
		out.MutualFunds[k] = v
	}
	for k, v := range in.ExchangeRates {
		out.ExchangeRates[k] = v
	}
	return out
}
