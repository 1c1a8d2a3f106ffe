package domain

import "time"

// FallbackRecord is the last-resort value served for a symbol when every
// live source has failed. Stock-like records carry Ticker and Price;
// exchange rate records carry Pair and Rate.
type FallbackRecord struct {
	Ticker      string    `json:"ticker,omitempty"`
	Pair        string    `json:"pair,omitempty"`
	Type        DataType  `json:"type"`
	Price       float64   `json:"price,omitempty"`
	Rate        float64   `json:"rate,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	Name        string    `json:"name,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`
	Source      string    `json:"source"`
}

// FallbackSnapshot is the in-memory cache of the remote fallback dataset,
// one map per snapshot document keyed by ticker or pair.
type FallbackSnapshot struct {
	Stocks        map[string]FallbackRecord `json:"stocks"`
	ETFs          map[string]FallbackRecord `json:"etfs"`
	MutualFunds   map[string]FallbackRecord `json:"mutualFunds"`
	ExchangeRates map[string]FallbackRecord `json:"exchangeRates"`
	LastFetched   time.Time                 `json:"lastFetched"`
}

// EmptySnapshot returns a snapshot with all categories allocated.
func EmptySnapshot() FallbackSnapshot {
	return FallbackSnapshot{
		Stocks:        map[string]FallbackRecord{},
		ETFs:          map[string]FallbackRecord{},
		MutualFunds:   map[string]FallbackRecord{},
		ExchangeRates: map[string]FallbackRecord{},
	}
}

// Populated reports whether any category holds at least one record.
func (s FallbackSnapshot) Populated() bool {
	return len(s.Stocks)+len(s.ETFs)+len(s.MutualFunds)+len(s.ExchangeRates) > 0
}

// Category returns the document map for cat; nil when unknown.
func (s FallbackSnapshot) Category(cat Category) map[string]FallbackRecord {
	switch cat {
	case CategoryStocks:
		return s.Stocks
	case CategoryETFs:
		return s.ETFs
	case CategoryMutualFunds:
		return s.MutualFunds
	case CategoryExchangeRates:
		return s.ExchangeRates
	default:
		return nil
	}
}
