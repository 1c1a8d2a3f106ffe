package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"marketdata-service/internal/domain"
)

// Key retention. Counters and failure sets are windowed by date, so they
// only need to outlive the statistics lookback.
const (
	counterTTL = 45 * 24 * time.Hour
	failureTTL = 35 * 24 * time.Hour
)

type Store struct {
	Client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{Client: client}
}

// --- usage counters ---

func (s *Store) Increment(ctx context.Context, key string) (int64, error) {
	pipe := s.Client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *Store) GetCount(ctx context.Context, key string) (int64, error) {
	v, err := s.Client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (s *Store) ResetCount(ctx context.Context, key string) (int64, error) {
	v, err := s.Client.GetDel(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (s *Store) CounterKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.Client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// --- failure ledger ---

func failedSetKey(dateKey string, t domain.DataType) string {
	return "failures:" + dateKey + ":" + string(t)
}

func (s *Store) PutLatestFailure(ctx context.Context, rec domain.FailureRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, rec.ID, body, failureTTL).Err()
}

// AddFailedSymbol adds symbol to the day's set and returns its new
// cardinality. SADD is idempotent, so the count can never drift from the
// set under concurrent writers.
func (s *Store) AddFailedSymbol(ctx context.Context, dateKey string, t domain.DataType, symbol string) (int64, error) {
	key := failedSetKey(dateKey, t)
	pipe := s.Client.TxPipeline()
	pipe.SAdd(ctx, key, symbol)
	card := pipe.SCard(ctx, key)
	pipe.Expire(ctx, key, failureTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return card.Val(), nil
}

func (s *Store) FailedSymbols(ctx context.Context, dateKey string, t domain.DataType) ([]string, error) {
	return s.Client.SMembers(ctx, failedSetKey(dateKey, t)).Result()
}

func (s *Store) FailureCount(ctx context.Context, dateKey string, t domain.DataType) (int64, error) {
	return s.Client.SCard(ctx, failedSetKey(dateKey, t)).Result()
}

// --- fallback record cache ---

func fallbackKey(symbol string, t domain.DataType) string {
	return "fallback:" + string(t) + ":" + symbol
}

func (s *Store) GetRecord(ctx context.Context, symbol string, t domain.DataType) (domain.FallbackRecord, error) {
	body, err := s.Client.Get(ctx, fallbackKey(symbol, t)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.FallbackRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.FallbackRecord{}, err
	}
	var rec domain.FallbackRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return domain.FallbackRecord{}, fmt.Errorf("decode fallback record: %w", err)
	}
	return rec, nil
}

func (s *Store) PutRecord(ctx context.Context, symbol string, t domain.DataType, rec domain.FallbackRecord, ttl time.Duration) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, fallbackKey(symbol, t), body, ttl).Err()
}

// --- source priorities ---

func priorityKey(t domain.DataType) string { return "priority:" + string(t) }

func (s *Store) GetPriorities(ctx context.Context, t domain.DataType) ([]string, error) {
	body, err := s.Client.Get(ctx, priorityKey(t)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var sources []string
	if err := json.Unmarshal(body, &sources); err != nil {
		return nil, fmt.Errorf("decode priorities: %w", err)
	}
	return sources, nil
}

func (s *Store) PutPriorities(ctx context.Context, t domain.DataType, sources []string) error {
	body, err := json.Marshal(sources)
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, priorityKey(t), body, 0).Err()
}

// --- source metrics ---

func metricKey(t domain.DataType, source string) string {
	return "metrics:" + string(t) + ":" + source
}

// RecordSample folds one observation into the (type, source) hash with
// atomic field increments.
func (s *Store) RecordSample(ctx context.Context, sample domain.SourceSample) error {
	key := metricKey(sample.MetricType, sample.Source)
	pipe := s.Client.TxPipeline()
	pipe.HIncrBy(ctx, key, "requests", 1)
	if sample.Success {
		pipe.HIncrBy(ctx, key, "successes", 1)
	} else {
		pipe.HIncrBy(ctx, key, "failures", 1)
		if sample.ErrorKind != "" {
			pipe.HIncrBy(ctx, key, "error:"+sample.ErrorKind, 1)
		}
	}
	pipe.HIncrBy(ctx, key, "total_response_time", sample.LatencyMS)
	if sample.Symbol != "" {
		pipe.HIncrBy(ctx, key, "symbol:"+sample.Symbol, 1)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) GetMetric(ctx context.Context, t domain.DataType, source string) (domain.SourceMetric, error) {
	fields, err := s.Client.HGetAll(ctx, metricKey(t, source)).Result()
	if err != nil {
		return domain.SourceMetric{}, err
	}
	m := domain.SourceMetric{MetricType: t, MetricKey: source, ErrorTypes: map[string]int64{}}
	for field, raw := range fields {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		switch {
		case field == "requests":
			m.Requests = v
		case field == "successes":
			m.Successes = v
		case field == "failures":
			m.Failures = v
		case field == "total_response_time":
			m.TotalResponseTime = v
		case strings.HasPrefix(field, "error:"):
			m.ErrorTypes[strings.TrimPrefix(field, "error:")] = v
		}
	}
	return m, nil
}
