package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"marketdata-service/internal/domain"
)

var ErrStore = errors.New("store error")

type fakeClock struct{ t time.Time }

func (f fakeClock) Now() time.Time { return f.t }

type fakeCounterStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{counts: map[string]int64{}}
}

func (f *fakeCounterStore) Increment(_ context.Context, key string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeCounterStore) GetCount(_ context.Context, key string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[key], nil
}

func (f *fakeCounterStore) ResetCount(_ context.Context, key string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	prior := f.counts[key]
	f.counts[key] = 0
	return prior, nil
}

func (f *fakeCounterStore) CounterKeys(_ context.Context, prefix string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.counts {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeCounterStore) total(key string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[key]
}

type fakeLedger struct {
	mu     sync.Mutex
	latest map[string]domain.FailureRecord
	sets   map[string]map[string]bool // "<date>|<type>" -> symbols
	err    error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{latest: map[string]domain.FailureRecord{}, sets: map[string]map[string]bool{}}
}

func dayTypeKey(dateKey string, t domain.DataType) string { return dateKey + "|" + string(t) }

func (f *fakeLedger) PutLatestFailure(_ context.Context, rec domain.FailureRecord) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest[rec.ID] = rec
	return nil
}

func (f *fakeLedger) AddFailedSymbol(_ context.Context, dateKey string, t domain.DataType, symbol string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := dayTypeKey(dateKey, t)
	if f.sets[k] == nil {
		f.sets[k] = map[string]bool{}
	}
	f.sets[k][symbol] = true
	return int64(len(f.sets[k])), nil
}

func (f *fakeLedger) FailedSymbols(_ context.Context, dateKey string, t domain.DataType) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for sym := range f.sets[dayTypeKey(dateKey, t)] {
		out = append(out, sym)
	}
	return out, nil
}

func (f *fakeLedger) FailureCount(_ context.Context, dateKey string, t domain.DataType) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.sets[dayTypeKey(dateKey, t)])), nil
}

type fakeCache struct {
	mu   sync.Mutex
	recs map[string]domain.FallbackRecord // "<symbol>|<type>"
	err  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{recs: map[string]domain.FallbackRecord{}}
}

func cacheKey(symbol string, t domain.DataType) string { return symbol + "|" + string(t) }

func (f *fakeCache) GetRecord(_ context.Context, symbol string, t domain.DataType) (domain.FallbackRecord, error) {
	if f.err != nil {
		return domain.FallbackRecord{}, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[cacheKey(symbol, t)]
	if !ok {
		return domain.FallbackRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (f *fakeCache) PutRecord(_ context.Context, symbol string, t domain.DataType, rec domain.FallbackRecord, _ time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs[cacheKey(symbol, t)] = rec
	return nil
}

type fakePriorityStore struct {
	lists  map[domain.DataType][]string
	getErr error
	putErr error
	puts   int
}

func (f *fakePriorityStore) GetPriorities(_ context.Context, t domain.DataType) ([]string, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	l, ok := f.lists[t]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]string(nil), l...), nil
}

func (f *fakePriorityStore) PutPriorities(_ context.Context, t domain.DataType, sources []string) error {
	if f.putErr != nil {
		return f.putErr
	}
	if f.lists == nil {
		f.lists = map[domain.DataType][]string{}
	}
	f.lists[t] = append([]string(nil), sources...)
	f.puts++
	return nil
}

type fakeMetricStore struct {
	mu      sync.Mutex
	samples []domain.SourceSample
}

func (f *fakeMetricStore) RecordSample(_ context.Context, s domain.SourceSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, s)
	return nil
}

func (f *fakeMetricStore) GetMetric(_ context.Context, t domain.DataType, source string) (domain.SourceMetric, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := domain.SourceMetric{MetricType: t, MetricKey: source, ErrorTypes: map[string]int64{}}
	for _, s := range f.samples {
		if s.MetricType != t || s.Source != source {
			continue
		}
		m.Requests++
		if s.Success {
			m.Successes++
		} else {
			m.Failures++
			if s.ErrorKind != "" {
				m.ErrorTypes[s.ErrorKind]++
			}
		}
		m.TotalResponseTime += s.LatencyMS
	}
	return m, nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	snap  domain.FallbackSnapshot
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(context.Context) (domain.FallbackSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.FallbackSnapshot{}, f.err
	}
	return f.snap, nil
}

type fakeFile struct {
	content []byte
	sha     string
}

type fakeContents struct {
	mu     sync.Mutex
	files  map[string]fakeFile
	putErr error
	puts   []string
}

func newFakeContents() *fakeContents {
	return &fakeContents{files: map[string]fakeFile{}}
}

func (f *fakeContents) GetFile(_ context.Context, path string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[path]
	if !ok {
		return nil, "", domain.ErrNotFound
	}
	return file.content, file.sha, nil
}

func (f *fakeContents) PutFile(_ context.Context, path string, content []byte, sha, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.files[path]; ok && cur.sha != sha {
		return errors.New("sha mismatch")
	}
	f.files[path] = fakeFile{content: content, sha: sha + "'"}
	f.puts = append(f.puts, path)
	return nil
}

type fakeAlerts struct {
	mu     sync.Mutex
	alerts []Alert
	errs   []error
}

func (f *fakeAlerts) SendAlert(_ context.Context, a Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
}

func (f *fakeAlerts) NotifyError(_ context.Context, _ string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *fakeAlerts) sent() []Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Alert(nil), f.alerts...)
}

type fakeRateAPI struct {
	rate  float64
	err   error
	calls int
	base  string
	tgt   string
}

func (f *fakeRateAPI) FetchRate(_ context.Context, base, target string) (float64, error) {
	f.calls++
	f.base, f.tgt = base, target
	if f.err != nil {
		return 0, f.err
	}
	return f.rate, nil
}
