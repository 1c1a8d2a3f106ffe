// Package snapshot fetches the remote fallback dataset: four JSON
// documents served from a public raw-content URL.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"marketdata-service/internal/application"
	"marketdata-service/internal/domain"
	"marketdata-service/internal/infrastructure/httpx"
)

var documents = []struct {
	Path     string
	Category domain.Category
}{
	{"fallback-stocks.json", domain.CategoryStocks},
	{"fallback-etfs.json", domain.CategoryETFs},
	{"fallback-funds.json", domain.CategoryMutualFunds},
	{"fallback-rates.json", domain.CategoryExchangeRates},
}

// Fetcher downloads the four snapshot documents concurrently. A document
// that fails leaves its category empty; Fetch errors only when every
// document fails.
type Fetcher struct {
	BaseURL string
	Client  *httpx.Client
	Log     *zap.Logger
}

var _ application.SnapshotFetcher = (*Fetcher)(nil)

func NewFetcher(baseURL string, client *httpx.Client, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{BaseURL: baseURL, Client: client, Log: log}
}

func (f *Fetcher) Fetch(ctx context.Context) (domain.FallbackSnapshot, error) {
	if f.BaseURL == "" {
		return domain.FallbackSnapshot{}, errors.New("snapshot: missing base url")
	}

	snap := domain.EmptySnapshot()
	var mu sync.Mutex
	var failures int

	g, gctx := errgroup.WithContext(ctx)
	for _, doc := range documents {
		doc := doc
		g.Go(func() error {
			url := strings.TrimSuffix(f.BaseURL, "/") + "/" + doc.Path
			var records map[string]domain.FallbackRecord
			if err := f.Client.GetJSON(gctx, url, &records); err != nil {
				f.Log.Warn("snapshot_document_failed",
					zap.String("path", doc.Path),
					zap.Error(err),
				)
				mu.Lock()
				failures++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			dst := snap.Category(doc.Category)
			for sym, rec := range records {
				dst[strings.ToUpper(sym)] = rec
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.FallbackSnapshot{}, err
	}
	if failures == len(documents) {
		return domain.FallbackSnapshot{}, fmt.Errorf("snapshot: all %d documents failed", len(documents))
	}
	return snap, nil
}
