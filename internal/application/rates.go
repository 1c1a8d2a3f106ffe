package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marketdata-service/internal/domain"
	"marketdata-service/internal/retry"

	"go.uber.org/zap"
)

// emergencyRate is the single global default when every stage, including
// the hardcoded table, has nothing for a pair. Its own reciprocal, so the
// inversion invariant holds trivially.
const emergencyRate = 1.0

// hardcodedRates is the static major-pair table in each pair's native
// market orientation.
var hardcodedRates = map[string]float64{
	"USD-JPY": 149.5,
	"EUR-USD": 1.08,
	"GBP-USD": 1.27,
	"USD-CHF": 0.88,
	"USD-CAD": 1.36,
	"AUD-USD": 0.66,
	"EUR-JPY": 161.4,
	"GBP-JPY": 189.9,
	"EUR-GBP": 0.85,
	"USD-CNY": 7.24,
	"USD-KRW": 1330,
	"USD-INR": 83.1,
}

// dynamicBaselines are the heavily traded pairs for which a deterministic
// daily pseudo-fluctuation of the baseline is an acceptable estimate.
// Keys must be a subset of hardcodedRates so orientation stays consistent.
var dynamicBaselines = map[string]float64{
	"USD-JPY": 149.5,
	"EUR-USD": 1.08,
	"EUR-JPY": 161.4,
}

// staticRate resolves a pair from the hardcoded table in either direction.
// The returned source is the stage label.
func staticRate(base, target string) (float64, string, bool) {
	if r, ok := hardcodedRates[domain.PairKey(base, target)]; ok {
		return r, domain.RateSourceHardcoded, true
	}
	if r, ok := hardcodedRates[domain.PairKey(target, base)]; ok {
		return 1 / r, domain.RateSourceHardcoded, true
	}
	return 0, "", false
}

// RateService resolves exchange rates through a never-failing cascade:
// same-currency, live API, dynamic calculation, hardcoded table, emergency
// constant. Every stage computes the pair's native orientation and inverts
// once, so rate(A,B)*rate(B,A) ~= 1 at every stage.
type RateService struct {
	api      RateAPI          // optional live provider
	fallback *FallbackService // optional write-back and failure ledger
	priority *PriorityService // optional source metrics
	alerts   AlertSink
	clock    Clock
	log      *zap.Logger

	timeout   time.Duration
	retryOpts retry.Options
}

type RateOption func(*RateService)

func WithRateAPI(api RateAPI) RateOption {
	return func(s *RateService) { s.api = api }
}
func WithRateFallback(f *FallbackService) RateOption {
	return func(s *RateService) { s.fallback = f }
}
func WithRatePriority(p *PriorityService) RateOption {
	return func(s *RateService) { s.priority = p }
}
func WithRateTimeout(d time.Duration) RateOption {
	return func(s *RateService) { s.timeout = d }
}
func WithRateRetry(opts retry.Options) RateOption {
	return func(s *RateService) { s.retryOpts = opts }
}
func WithRateClock(c Clock) RateOption {
	return func(s *RateService) { s.clock = c }
}
func WithRateLogger(l *zap.Logger) RateOption {
	return func(s *RateService) { s.log = l }
}

func NewRateService(alerts AlertSink, opts ...RateOption) *RateService {
	s := &RateService{alerts: alerts}
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
	if s.timeout <= 0 {
		s.timeout = 5 * time.Second
	}
	if s.retryOpts.MaxRetries == 0 && s.retryOpts.BaseDelay == 0 {
		s.retryOpts = retry.Options{MaxRetries: 2, BaseDelay: 200 * time.Millisecond}
	}
	return s
}

// GetExchangeRate resolves base->target. It only errors on malformed
// currency codes; otherwise some stage always produces a rate.
func (s *RateService) GetExchangeRate(ctx context.Context, base, target string) (domain.ExchangeRate, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	target = strings.ToUpper(strings.TrimSpace(target))
	if !domain.ValidCurrency(base) || !domain.ValidCurrency(target) {
		return domain.ExchangeRate{}, fmt.Errorf("%w: invalid currency pair %s/%s", ErrBadRequest, base, target)
	}
	now := s.clock.Now()

	if base == target {
		return s.resolved(ctx, base, target, 1, domain.RateSourceSameCurrency, now), nil
	}

	nb, nt, inverted := nativeOrientation(base, target)
	finish := func(rate float64, source string) domain.ExchangeRate {
		if inverted {
			rate = 1 / rate
		}
		return s.resolved(ctx, base, target, rate, source, now)
	}

	if rate, ok := s.liveRate(ctx, nb, nt); ok {
		return finish(rate, domain.RateSourceLiveAPI), nil
	}
	if baseline, ok := dynamicBaselines[domain.PairKey(nb, nt)]; ok {
		rate := baseline * (1 + dailyFluctuation(now))
		return finish(rate, domain.RateSourceDynamic), nil
	}
	if rate, ok := hardcodedRates[domain.PairKey(nb, nt)]; ok {
		return finish(rate, domain.RateSourceHardcoded), nil
	}

	s.log.Warn("exchange_rate_emergency_fallback",
		zap.String("base", base),
		zap.String("target", target),
	)
	s.alerts.SendAlert(ctx, Alert{
		Level:  AlertWarning,
		Title:  "exchange rate emergency fallback",
		Detail: fmt.Sprintf("no rate source available for %s/%s", base, target),
	})
	return finish(emergencyRate, domain.RateSourceEmergency), nil
}

// liveRate asks the external API for the native-orientation rate with a
// bounded timeout and local retries. All outcomes feed the source metrics
// and, on failure, the fallback failure ledger.
func (s *RateService) liveRate(ctx context.Context, nb, nt string) (float64, bool) {
	if s.api == nil {
		return 0, false
	}
	pair := domain.PairKey(nb, nt)
	var token string
	if s.priority != nil {
		token = s.priority.StartRequest(domain.TypeExchangeRate, domain.RateSourceLiveAPI, pair)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	rate, err := retry.DoValue(callCtx, func() (float64, error) {
		return s.api.FetchRate(callCtx, nb, nt)
	}, s.retryOpts)
	if err == nil && rate <= 0 {
		err = fmt.Errorf("live rate for %s is not positive: %v", pair, rate)
	}

	if s.priority != nil {
		_ = s.priority.RecordResult(ctx, token, err == nil, err)
	}
	if err != nil {
		s.log.Warn("live_rate_failed", zap.String("pair", pair), zap.Error(err))
		if s.fallback != nil {
			if recErr := s.fallback.RecordFailedFetch(ctx, pair, domain.TypeExchangeRate, err); recErr != nil {
				s.log.Warn("rate_failure_record_failed", zap.Error(recErr))
			}
		}
		return 0, false
	}
	return rate, true
}

// resolved tags the result and caches it as the pair's fallback value.
func (s *RateService) resolved(ctx context.Context, base, target string, rate float64, source string, now time.Time) domain.ExchangeRate {
	out := domain.ExchangeRate{
		Base:        base,
		Target:      target,
		Rate:        rate,
		Source:      source,
		LastUpdated: now.UTC(),
	}
	if s.fallback != nil && source != domain.RateSourceSameCurrency {
		s.fallback.StoreRecord(ctx, domain.PairKey(base, target), domain.TypeExchangeRate, domain.FallbackRecord{
			Rate:        rate,
			Source:      source,
			LastUpdated: out.LastUpdated,
		})
	}
	return out
}

// nativeOrientation picks the direction the table (and therefore every
// stage) computes in; the caller inverts once when the request is the
// reciprocal of it.
func nativeOrientation(base, target string) (nb, nt string, inverted bool) {
	if _, ok := hardcodedRates[domain.PairKey(base, target)]; ok {
		return base, target, false
	}
	if _, ok := hardcodedRates[domain.PairKey(target, base)]; ok {
		return target, base, true
	}
	return base, target, false
}

// dailyFluctuation derives a +-1% adjustment from the day of year and the
// weekday, so repeated same-day calls are stable.
func dailyFluctuation(t time.Time) float64 {
	u := t.UTC()
	seed := u.YearDay()*31 + int(u.Weekday())*7
	return float64(seed%21-10) / 1000.0
}
