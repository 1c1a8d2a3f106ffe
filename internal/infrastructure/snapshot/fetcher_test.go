package snapshot_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketdata-service/internal/infrastructure/httpx"
	"marketdata-service/internal/infrastructure/snapshot"
	"marketdata-service/internal/retry"
)

func newClient() *httpx.Client {
	c := httpx.New(2 * time.Second)
	c.Retry = retry.Options{}
	return c
}

func TestFetch_AllDocuments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fallback-stocks.json":
			_, _ = w.Write([]byte(`{"aapl": {"ticker": "AAPL", "type": "us-stock", "price": 182.5, "currency": "USD"}}`))
		case "/fallback-etfs.json":
			_, _ = w.Write([]byte(`{"VOO": {"ticker": "VOO", "type": "etf", "price": 430.1, "currency": "USD"}}`))
		case "/fallback-funds.json":
			_, _ = w.Write([]byte(`{}`))
		case "/fallback-rates.json":
			_, _ = w.Write([]byte(`{"USD-JPY": {"pair": "USD-JPY", "type": "exchange-rate", "rate": 150.2}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := snapshot.NewFetcher(srv.URL, newClient(), nil)
	snap, err := f.Fetch(context.Background())
	require.NoError(t, err)

	// Symbol keys are normalized to upper case.
	require.Contains(t, snap.Stocks, "AAPL")
	require.Equal(t, 182.5, snap.Stocks["AAPL"].Price)
	require.Contains(t, snap.ETFs, "VOO")
	require.Empty(t, snap.MutualFunds)
	require.Equal(t, 150.2, snap.ExchangeRates["USD-JPY"].Rate)
}

func TestFetch_PartialFailureLeavesCategoryEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fallback-stocks.json" {
			_, _ = w.Write([]byte(`{"AAPL": {"ticker": "AAPL", "type": "us-stock", "price": 182.5}}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := snapshot.NewFetcher(srv.URL, newClient(), nil)
	snap, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Stocks, 1)
	require.Empty(t, snap.ETFs)
	require.Empty(t, snap.ExchangeRates)
}

func TestFetch_AllDocumentsFailing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer srv.Close()

	f := snapshot.NewFetcher(srv.URL, newClient(), nil)
	_, err := f.Fetch(context.Background())
	require.Error(t, err)
}

func TestFetch_MissingBaseURL(t *testing.T) {
	f := snapshot.NewFetcher("", newClient(), nil)
	_, err := f.Fetch(context.Background())
	require.Error(t, err)
}
