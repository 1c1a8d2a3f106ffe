package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"marketdata-service/internal/domain"

	"go.uber.org/zap"
)

// usageAlertThresholds are the exact usage percentages that trigger an
// alert, highest first. Crossings at or above 90 are critical.
var usageAlertThresholds = []int64{99, 95, 90, 80, 50}

// Limits configures the admission windows.
type Limits struct {
	Daily   int64
	Monthly int64
	// DisableOnLimit rejects requests once a window is at its cap.
	// When false the service only alerts and keeps admitting.
	DisableOnLimit bool
}

// UsageService is the admission controller: it reads and atomically
// updates the time-windowed usage counters and rejects requests once hard
// caps are reached. Storage errors fail open.
type UsageService struct {
	counters CounterStore
	alerts   AlertSink
	clock    Clock
	log      *zap.Logger
	limits   Limits
}

type UsageOption func(*UsageService)

func WithUsageClock(c Clock) UsageOption        { return func(s *UsageService) { s.clock = c } }
func WithUsageLogger(l *zap.Logger) UsageOption { return func(s *UsageService) { s.log = l } }

func NewUsageService(counters CounterStore, alerts AlertSink, limits Limits, opts ...UsageOption) *UsageService {
	s := &UsageService{counters: counters, alerts: alerts, limits: limits}
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

func dailyKey(day string) string     { return "usage:daily:" + day }
func monthlyKey(month string) string { return "usage:monthly:" + month }
func typeKey(t domain.DataType, day string) string {
	return "usage:type:" + string(t) + ":" + day
}
func sessionKey(id, day string) string { return "usage:session:" + id + ":" + day }
func ipKey(ip, day string) string      { return "usage:ip:" + ip + ":" + day }

// CheckAndUpdate decides whether the request may proceed and, when
// allowed, atomically increments the daily, monthly, per-type, per-session
// and per-IP counters. A counter is never mutated on a rejection.
func (s *UsageService) CheckAndUpdate(ctx context.Context, req domain.UsageRequest) domain.UsageDecision {
	now := s.clock.Now()
	day, month := domain.DateKey(now), domain.MonthKey(now)

	daily, errD := s.counters.GetCount(ctx, dailyKey(day))
	monthly, errM := s.counters.GetCount(ctx, monthlyKey(month))
	if err := errors.Join(errD, errM); err != nil {
		return s.failOpen(ctx, "usage_precheck_failed", err)
	}

	if limitType := s.limitHit(daily, monthly); limitType != "" {
		if s.firstCrossing(limitType, daily, monthly) {
			s.alerts.SendAlert(ctx, Alert{
				Level:  AlertCritical,
				Title:  "usage limit reached",
				Detail: fmt.Sprintf("%s request limit hit", limitType),
				Fields: map[string]string{
					"limit_type": limitType,
					"daily":      strconv.FormatInt(daily, 10),
					"monthly":    strconv.FormatInt(monthly, 10),
				},
			})
		}
		if s.limits.DisableOnLimit {
			s.log.Warn("usage_rejected",
				zap.String("limit_type", limitType),
				zap.Int64("daily", daily),
				zap.Int64("monthly", monthly),
			)
			return domain.UsageDecision{
				Allowed:   false,
				LimitType: limitType,
				Usage:     domain.Usage{Daily: daily, Monthly: monthly},
			}
		}
	}

	newDaily, err := s.counters.Increment(ctx, dailyKey(day))
	if err != nil {
		return s.failOpen(ctx, "usage_increment_failed", err)
	}
	newMonthly, err := s.counters.Increment(ctx, monthlyKey(month))
	if err != nil {
		return s.failOpen(ctx, "usage_increment_failed", err)
	}
	var typeCount int64
	if req.DataType != "" {
		if typeCount, err = s.counters.Increment(ctx, typeKey(req.DataType, day)); err != nil {
			return s.failOpen(ctx, "usage_increment_failed", err)
		}
	}
	// Session and IP counters are advisory; their failures are logged only.
	if req.SessionID != "" {
		if _, err := s.counters.Increment(ctx, sessionKey(req.SessionID, day)); err != nil {
			s.log.Warn("session_counter_failed", zap.Error(err))
		}
	}
	if req.IP != "" {
		if _, err := s.counters.Increment(ctx, ipKey(req.IP, day)); err != nil {
			s.log.Warn("ip_counter_failed", zap.Error(err))
		}
	}

	s.thresholdAlert(ctx, domain.LimitDaily, newDaily, s.limits.Daily)
	s.thresholdAlert(ctx, domain.LimitMonthly, newMonthly, s.limits.Monthly)

	return domain.UsageDecision{
		Allowed: true,
		Usage:   domain.Usage{Daily: newDaily, Monthly: newMonthly, DataType: typeCount},
	}
}

// limitHit returns the exhausted window name, daily checked first.
func (s *UsageService) limitHit(daily, monthly int64) string {
	if s.limits.Daily > 0 && daily >= s.limits.Daily {
		return domain.LimitDaily
	}
	if s.limits.Monthly > 0 && monthly >= s.limits.Monthly {
		return domain.LimitMonthly
	}
	return ""
}

// firstCrossing reports whether the window is exactly at its cap, i.e.
// this is the first check to observe the limit.
func (s *UsageService) firstCrossing(limitType string, daily, monthly int64) bool {
	if limitType == domain.LimitDaily {
		return daily == s.limits.Daily
	}
	return monthly == s.limits.Monthly
}

// thresholdAlert emits one alert when value sits exactly on the highest
// crossed percentage threshold of limit.
func (s *UsageService) thresholdAlert(ctx context.Context, window string, value, limit int64) {
	if limit <= 0 {
		return
	}
	for _, t := range usageAlertThresholds {
		if value*100 == limit*t {
			level := AlertWarning
			if t >= 90 {
				level = AlertCritical
			}
			s.alerts.SendAlert(ctx, Alert{
				Level:  level,
				Title:  "usage threshold crossed",
				Detail: fmt.Sprintf("%s usage at %d%% of limit", window, t),
				Fields: map[string]string{
					"window":    window,
					"threshold": strconv.FormatInt(t, 10),
					"value":     strconv.FormatInt(value, 10),
					"limit":     strconv.FormatInt(limit, 10),
				},
			})
			return
		}
	}
}

// failOpen allows the request despite a storage error: losing accounting
// is preferred over refusing legitimate traffic.
func (s *UsageService) failOpen(ctx context.Context, event string, err error) domain.UsageDecision {
	s.log.Warn(event, zap.Error(err))
	s.alerts.NotifyError(ctx, "usage", err)
	return domain.UsageDecision{Allowed: true, StorageError: err.Error()}
}

// Reset zeroes the named window counter ("daily", "monthly") or, with an
// empty scope, every usage counter. It returns the prior values by key.
func (s *UsageService) Reset(ctx context.Context, scope string) (map[string]int64, error) {
	now := s.clock.Now()
	var keys []string
	switch scope {
	case domain.LimitDaily:
		keys = []string{dailyKey(domain.DateKey(now))}
	case domain.LimitMonthly:
		keys = []string{monthlyKey(domain.MonthKey(now))}
	case "", "all":
		all, err := s.counters.CounterKeys(ctx, "usage:")
		if err != nil {
			return nil, fmt.Errorf("list usage counters: %w", err)
		}
		keys = all
	default:
		return nil, fmt.Errorf("%w: unknown reset scope %q", ErrBadRequest, scope)
	}

	prior := make(map[string]int64, len(keys))
	for _, k := range keys {
		v, err := s.counters.ResetCount(ctx, k)
		if err != nil {
			return prior, fmt.Errorf("reset %s: %w", k, err)
		}
		prior[k] = v
	}
	s.log.Info("usage_reset", zap.String("scope", scope), zap.Int("counters", len(keys)))
	return prior, nil
}

// Stats returns the current window counts and limits.
func (s *UsageService) Stats(ctx context.Context) (domain.UsageStats, error) {
	now := s.clock.Now()
	day, month := domain.DateKey(now), domain.MonthKey(now)

	daily, err := s.counters.GetCount(ctx, dailyKey(day))
	if err != nil {
		return domain.UsageStats{}, err
	}
	monthly, err := s.counters.GetCount(ctx, monthlyKey(month))
	if err != nil {
		return domain.UsageStats{}, err
	}
	byType := make(map[domain.DataType]int64, len(domain.KnownDataTypes))
	for _, t := range domain.KnownDataTypes {
		v, err := s.counters.GetCount(ctx, typeKey(t, day))
		if err != nil {
			return domain.UsageStats{}, err
		}
		if v > 0 {
			byType[t] = v
		}
	}
	return domain.UsageStats{
		Daily:        daily,
		Monthly:      monthly,
		DailyLimit:   s.limits.Daily,
		MonthlyLimit: s.limits.Monthly,
		ByType:       byType,
	}, nil
}
