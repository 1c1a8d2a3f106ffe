// Package worker runs the background maintenance loops: periodic snapshot
// refresh and the daily fallback export.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"marketdata-service/internal/application"
	"marketdata-service/internal/domain"
)

var _ application.Worker = (*RefreshWorker)(nil)

// RefreshWorker keeps the fallback snapshot warm and, once per day at
// ExportHour UTC, publishes the accumulated fallback data.
type RefreshWorker struct {
	Fallback *application.FallbackService

	PollEvery  time.Duration
	ExportHour int
	Log        *zap.Logger

	lastExportDay string
}

func (w *RefreshWorker) Start(ctx context.Context) {
	log := w.Log
	if log == nil {
		log = zap.NewNop()
	}
	if w.PollEvery <= 0 {
		w.PollEvery = time.Minute
	}

	t := time.NewTicker(w.PollEvery)
	defer t.Stop()

	log.Info("refresh_worker_started",
		zap.Duration("poll_every", w.PollEvery),
		zap.Int("export_hour", w.ExportHour),
	)
	for {
		select {
		case <-ctx.Done():
			log.Info("refresh_worker_stopped")
			return
		case <-t.C:
			w.tick(ctx, log, time.Now().UTC())
		}
	}
}

func (w *RefreshWorker) tick(ctx context.Context, log *zap.Logger, now time.Time) {
	snap := w.Fallback.GetFallbackData(ctx, false)
	if !snap.Populated() {
		log.Warn("snapshot_still_empty")
	}

	day := domain.DateKey(now)
	if now.Hour() < w.ExportHour || w.lastExportDay == day {
		return
	}
	w.lastExportDay = day

	res, err := w.Fallback.ExportCurrentFallbacks(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrExportDisabled) {
			return
		}
		log.Warn("scheduled_export_failed", zap.Error(err))
		return
	}
	log.Info("scheduled_export_done",
		zap.Strings("updated", res.Updated),
		zap.Int("symbols", res.Symbols),
	)
}
