package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketdata-service/internal/application"
)

func TestSendAlert_PostsFormattedText(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, 2*time.Second, nil)
	sink.SendAlert(context.Background(), application.Alert{
		Level:  application.AlertCritical,
		Title:  "usage limit reached",
		Detail: "daily request limit hit",
		Fields: map[string]string{"daily": "5000", "limit_type": "daily"},
	})

	require.Contains(t, got.Text, ":rotating_light:")
	require.Contains(t, got.Text, "usage limit reached")
	require.Contains(t, got.Text, "daily request limit hit")
	require.Contains(t, got.Text, "daily: 5000")
}

func TestNotifyError_NeverPanicsOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, 100*time.Millisecond, nil)
	// Delivery failure is swallowed.
	sink.NotifyError(context.Background(), "usage", errors.New("boom"))
}

func TestSendAlert_NoopWithoutURL(t *testing.T) {
	sink := NewWebhookSink("", time.Second, nil)
	sink.SendAlert(context.Background(), application.Alert{Level: application.AlertWarning, Title: "t"})
}
