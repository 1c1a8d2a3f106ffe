package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketdata-service/internal/domain"
)

func sampleSnapshot() domain.FallbackSnapshot {
	snap := domain.EmptySnapshot()
	snap.Stocks["AAPL"] = domain.FallbackRecord{Ticker: "AAPL", Type: domain.TypeUSStock, Price: 182.5, Currency: "USD", Name: "Apple Inc."}
	snap.ETFs["VOO"] = domain.FallbackRecord{Ticker: "VOO", Type: domain.TypeETF, Price: 430.1, Currency: "USD"}
	snap.MutualFunds["03311187"] = domain.FallbackRecord{Ticker: "03311187", Type: domain.TypeMutualFund, Price: 21544, Currency: "JPY"}
	snap.ExchangeRates["USD-JPY"] = domain.FallbackRecord{Pair: "USD-JPY", Type: domain.TypeExchangeRate, Rate: 150.2}
	return snap
}

func newFallbackService(fetcher SnapshotFetcher, cache FallbackCache, ledger FailureLedger, opts ...FallbackOption) *FallbackService {
	opts = append([]FallbackOption{WithFallbackClock(fakeClock{t: testNow})}, opts...)
	return NewFallbackService(fetcher, cache, ledger, &fakeAlerts{}, time.Hour, TTLs{
		Stock: time.Hour, Fund: 6 * time.Hour, Rate: 30 * time.Minute,
	}, opts...)
}

func TestGetFallbackData_RefreshAndReuse(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{snap: sampleSnapshot()}
	svc := newFallbackService(fetcher, newFakeCache(), newFakeLedger())
	ctx := context.Background()

	snap := svc.GetFallbackData(ctx, false)
	require.Len(t, snap.Stocks, 1)
	require.Equal(t, 1, fetcher.calls)

	// Within the refresh interval the cached snapshot is reused.
	snap = svc.GetFallbackData(ctx, false)
	require.Equal(t, 1, fetcher.calls)
	require.Equal(t, testNow, snap.LastFetched)

	// force always refetches.
	svc.GetFallbackData(ctx, true)
	require.Equal(t, 2, fetcher.calls)
}

func TestGetFallbackData_ServesStaleOnFetchError(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{snap: sampleSnapshot()}
	svc := newFallbackService(fetcher, newFakeCache(), newFakeLedger())
	ctx := context.Background()

	first := svc.GetFallbackData(ctx, false)
	require.True(t, first.Populated())

	fetcher.err = ErrStore
	stale := svc.GetFallbackData(ctx, true)
	require.Equal(t, first.Stocks, stale.Stocks)
	require.Equal(t, first.LastFetched, stale.LastFetched)
}

func TestGetFallbackData_EmptyWhenNeverPopulated(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{err: ErrStore}
	svc := newFallbackService(fetcher, newFakeCache(), newFakeLedger())

	snap := svc.GetFallbackData(context.Background(), false)
	require.False(t, snap.Populated())
	require.NotNil(t, snap.Stocks)
}

func TestGetFallbackForSymbol(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("unrecognized type is nil", func(t *testing.T) {
		t.Parallel()
		svc := newFallbackService(&fakeFetcher{snap: sampleSnapshot()}, newFakeCache(), newFakeLedger())
		require.Nil(t, svc.GetFallbackForSymbol(ctx, "BTC", domain.DataType("crypto")))
	})

	t.Run("cache hit wins over snapshot", func(t *testing.T) {
		t.Parallel()
		cache := newFakeCache()
		require.NoError(t, cache.PutRecord(ctx, "AAPL", domain.TypeUSStock, domain.FallbackRecord{
			Price: 190.0, Currency: "USD", Source: "yahoo-finance",
		}, time.Hour))
		svc := newFallbackService(&fakeFetcher{snap: sampleSnapshot()}, cache, newFakeLedger())

		rec := svc.GetFallbackForSymbol(ctx, "aapl", domain.TypeUSStock)
		require.NotNil(t, rec)
		require.Equal(t, "AAPL", rec.Ticker)
		require.Equal(t, 190.0, rec.Price)
		require.Equal(t, "yahoo-finance", rec.Source)
	})

	t.Run("snapshot hit is cached back", func(t *testing.T) {
		t.Parallel()
		cache := newFakeCache()
		svc := newFallbackService(&fakeFetcher{snap: sampleSnapshot()}, cache, newFakeLedger())

		rec := svc.GetFallbackForSymbol(ctx, "VOO", domain.TypeETF)
		require.NotNil(t, rec)
		require.Equal(t, 430.1, rec.Price)
		require.Equal(t, domain.TypeETF, rec.Type)

		cached, err := cache.GetRecord(ctx, "VOO", domain.TypeETF)
		require.NoError(t, err)
		require.Equal(t, 430.1, cached.Price)
	})

	t.Run("unknown symbol gets per-type default", func(t *testing.T) {
		t.Parallel()
		svc := newFallbackService(&fakeFetcher{snap: sampleSnapshot()}, newFakeCache(), newFakeLedger())

		rec := svc.GetFallbackForSymbol(ctx, "ZZZZ", domain.TypeJPStock)
		require.NotNil(t, rec)
		require.Equal(t, "ZZZZ", rec.Ticker)
		require.Equal(t, "JPY", rec.Currency)
		require.Equal(t, domain.RateSourceDefault, rec.Source)
		require.False(t, rec.LastUpdated.IsZero())
	})

	t.Run("exchange rate default keys by pair", func(t *testing.T) {
		t.Parallel()
		svc := newFallbackService(&fakeFetcher{snap: sampleSnapshot()}, newFakeCache(), newFakeLedger())

		rec := svc.GetFallbackForSymbol(ctx, "EUR-USD", domain.TypeExchangeRate)
		require.NotNil(t, rec)
		require.Equal(t, "EUR-USD", rec.Pair)
		require.Empty(t, rec.Ticker)
		require.Equal(t, 1.08, rec.Rate)
	})

	t.Run("cache error falls through to snapshot", func(t *testing.T) {
		t.Parallel()
		cache := newFakeCache()
		cache.err = ErrStore
		svc := newFallbackService(&fakeFetcher{snap: sampleSnapshot()}, cache, newFakeLedger())

		rec := svc.GetFallbackForSymbol(ctx, "AAPL", domain.TypeUSStock)
		require.NotNil(t, rec)
		require.Equal(t, 182.5, rec.Price)
	})
}

func TestRecordFailedFetch_CountMatchesSetSize(t *testing.T) {
	t.Parallel()
	ledger := newFakeLedger()
	svc := newFallbackService(&fakeFetcher{snap: sampleSnapshot()}, newFakeCache(), ledger)
	ctx := context.Background()

	require.NoError(t, svc.RecordFailedFetch(ctx, "aapl", domain.TypeUSStock, ErrStore))
	// Same symbol again the same day: the set deduplicates.
	require.NoError(t, svc.RecordFailedFetch(ctx, "AAPL", domain.TypeUSStock, ErrStore))
	require.NoError(t, svc.RecordFailedFetch(ctx, "MSFT", domain.TypeUSStock, ErrStore))

	day := domain.DateKey(testNow)
	count, err := ledger.FailureCount(ctx, day, domain.TypeUSStock)
	require.NoError(t, err)
	syms, err := svc.GetFailedSymbols(ctx, day, domain.TypeUSStock)
	require.NoError(t, err)
	require.Equal(t, int64(len(syms)), count)
	require.Equal(t, []string{"AAPL", "MSFT"}, syms)

	rec, ok := ledger.latest[domain.FailureRecordID("AAPL", domain.TypeUSStock)]
	require.True(t, ok)
	require.Equal(t, ErrStore.Error(), rec.Reason)
}

func TestRecordFailedFetch_UnknownType(t *testing.T) {
	t.Parallel()
	svc := newFallbackService(&fakeFetcher{}, newFakeCache(), newFakeLedger())
	err := svc.RecordFailedFetch(context.Background(), "X", domain.DataType("crypto"), ErrStore)
	require.ErrorIs(t, err, domain.ErrUnknownDataType)
}

func TestGetFailedSymbols_UnionAcrossTypes(t *testing.T) {
	t.Parallel()
	svc := newFallbackService(&fakeFetcher{snap: sampleSnapshot()}, newFakeCache(), newFakeLedger())
	ctx := context.Background()

	require.NoError(t, svc.RecordFailedFetch(ctx, "AAPL", domain.TypeUSStock, ErrStore))
	require.NoError(t, svc.RecordFailedFetch(ctx, "AAPL", domain.TypeETF, ErrStore))
	require.NoError(t, svc.RecordFailedFetch(ctx, "7203", domain.TypeJPStock, ErrStore))

	// Empty date means today; empty type means the union, deduplicated.
	union, err := svc.GetFailedSymbols(ctx, "", "")
	require.NoError(t, err)
	require.Equal(t, []string{"7203", "AAPL"}, union)
}

func TestGetFailureStatistics_FromLedger(t *testing.T) {
	t.Parallel()
	svc := newFallbackService(&fakeFetcher{snap: sampleSnapshot()}, newFakeCache(), newFakeLedger())
	ctx := context.Background()

	require.NoError(t, svc.RecordFailedFetch(ctx, "AAPL", domain.TypeUSStock, ErrStore))
	require.NoError(t, svc.RecordFailedFetch(ctx, "MSFT", domain.TypeUSStock, ErrStore))
	require.NoError(t, svc.RecordFailedFetch(ctx, "USD-TRY", domain.TypeExchangeRate, ErrStore))

	stats := svc.GetFailureStatistics(ctx, 7)
	require.Empty(t, stats.Error)
	require.Equal(t, 7, stats.Days)
	require.Equal(t, int64(3), stats.TotalFailures)
	require.Equal(t, int64(2), stats.ByType[domain.TypeUSStock])
	require.Equal(t, int64(1), stats.ByType[domain.TypeExchangeRate])
	require.Equal(t, int64(3), stats.ByDate[domain.DateKey(testNow)])
	require.Len(t, stats.TopSymbols, 3)
	require.Equal(t, int64(1), stats.TopSymbols[0].Count)
}

func TestGetFailureStatistics_DegradedOnStorageError(t *testing.T) {
	t.Parallel()
	ledger := newFakeLedger()
	ledger.err = ErrStore
	svc := newFallbackService(&fakeFetcher{snap: sampleSnapshot()}, newFakeCache(), ledger)

	stats := svc.GetFailureStatistics(context.Background(), 7)
	require.NotEmpty(t, stats.Error)
	require.Zero(t, stats.TotalFailures)
}

func TestExportCurrentFallbacks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("disabled without a contents repo", func(t *testing.T) {
		t.Parallel()
		svc := newFallbackService(&fakeFetcher{snap: sampleSnapshot()}, newFakeCache(), newFakeLedger())
		_, err := svc.ExportCurrentFallbacks(ctx)
		require.ErrorIs(t, err, domain.ErrExportDisabled)
	})

	t.Run("merges failed symbols and updates all documents", func(t *testing.T) {
		t.Parallel()
		cache := newFakeCache()
		ledger := newFakeLedger()
		contents := newFakeContents()
		contents.files["fallback-stocks.json"] = fakeFile{content: []byte("{}"), sha: "abc123"}
		svc := newFallbackService(&fakeFetcher{snap: sampleSnapshot()}, cache, ledger,
			WithContentsRepo(contents))

		require.NoError(t, svc.RecordFailedFetch(ctx, "NVDA", domain.TypeUSStock, ErrStore))
		require.NoError(t, cache.PutRecord(ctx, "NVDA", domain.TypeUSStock, domain.FallbackRecord{
			Price: 880.0, Currency: "USD", Source: "alpha-vantage",
		}, time.Hour))

		res, err := svc.ExportCurrentFallbacks(ctx)
		require.NoError(t, err)
		require.Len(t, res.Updated, 4)
		require.Empty(t, res.Failed)
		require.Equal(t, 1, res.Symbols)

		body, _, err := contents.GetFile(ctx, "fallback-stocks.json")
		require.NoError(t, err)
		require.Contains(t, string(body), "NVDA")
		require.Contains(t, string(body), "AAPL")
	})

	t.Run("failed symbol without a cached value is skipped", func(t *testing.T) {
		t.Parallel()
		ledger := newFakeLedger()
		svc := newFallbackService(&fakeFetcher{snap: sampleSnapshot()}, newFakeCache(), ledger,
			WithContentsRepo(newFakeContents()))

		require.NoError(t, svc.RecordFailedFetch(ctx, "NVDA", domain.TypeUSStock, ErrStore))

		res, err := svc.ExportCurrentFallbacks(ctx)
		require.NoError(t, err)
		require.Zero(t, res.Symbols)
		require.Len(t, res.Updated, 4)
	})

	t.Run("errors when no document updates", func(t *testing.T) {
		t.Parallel()
		contents := newFakeContents()
		contents.putErr = ErrStore
		svc := newFallbackService(&fakeFetcher{snap: sampleSnapshot()}, newFakeCache(), newFakeLedger(),
			WithContentsRepo(contents))

		res, err := svc.ExportCurrentFallbacks(ctx)
		require.Error(t, err)
		require.Empty(t, res.Updated)
		require.Len(t, res.Failed, 4)
	})
}

func TestStoreRecord_WritesThroughCache(t *testing.T) {
	t.Parallel()
	cache := newFakeCache()
	svc := newFallbackService(&fakeFetcher{snap: sampleSnapshot()}, cache, newFakeLedger())
	ctx := context.Background()

	svc.StoreRecord(ctx, "usd-jpy", domain.TypeExchangeRate, domain.FallbackRecord{Rate: 151.3, Source: "exchangerate-api"})

	rec, err := cache.GetRecord(ctx, "USD-JPY", domain.TypeExchangeRate)
	require.NoError(t, err)
	require.Equal(t, 151.3, rec.Rate)
	require.Equal(t, "USD-JPY", rec.Pair)
}
