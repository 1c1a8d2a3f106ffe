// Package alerts delivers operational notifications to a Slack-compatible
// incoming webhook. Delivery is best-effort: a failed webhook never
// propagates to the caller.
package alerts

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"marketdata-service/internal/application"
	"marketdata-service/internal/infrastructure/httpx"
)

type WebhookSink struct {
	URL    string
	Client *httpx.Client
	Log    *zap.Logger
}

var _ application.AlertSink = (*WebhookSink)(nil)

func NewWebhookSink(url string, timeout time.Duration, log *zap.Logger) *WebhookSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookSink{URL: url, Client: httpx.New(timeout), Log: log}
}

type webhookPayload struct {
	Text string `json:"text"`
}

func (s *WebhookSink) SendAlert(ctx context.Context, a application.Alert) {
	s.post(ctx, formatAlert(a))
	s.Log.Info("alert_sent",
		zap.String("event_id", uuid.NewString()),
		zap.String("level", a.Level),
		zap.String("title", a.Title),
	)
}

func (s *WebhookSink) NotifyError(ctx context.Context, component string, err error) {
	s.post(ctx, fmt.Sprintf(":x: *%s error*\n%v", component, err))
}

func (s *WebhookSink) post(ctx context.Context, text string) {
	if s.URL == "" {
		return
	}
	if err := s.Client.PostJSON(ctx, s.URL, webhookPayload{Text: text}, nil); err != nil {
		s.Log.Warn("alert_delivery_failed", zap.Error(err))
	}
}

func formatAlert(a application.Alert) string {
	icon := ":warning:"
	if a.Level == application.AlertCritical {
		icon = ":rotating_light:"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*", icon, a.Title)
	if a.Detail != "" {
		b.WriteString("\n")
		b.WriteString(a.Detail)
	}
	keys := make([]string, 0, len(a.Fields))
	for k := range a.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n• %s: %s", k, a.Fields[k])
	}
	return b.String()
}
