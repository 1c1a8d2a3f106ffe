package domain

import "time"

// FailureRecord is the latest fetch failure for a symbol and data type.
type FailureRecord struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Type      DataType  `json:"type"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
	DateKey   string    `json:"dateKey"`
}

// FailureRecordID builds the "failure:<symbol>:<type>" latest-row key.
func FailureRecordID(symbol string, t DataType) string {
	return "failure:" + symbol + ":" + string(t)
}

// DayTypeCount is one cell of the failure statistics grid.
type DayTypeCount struct {
	DateKey string   `json:"date"`
	Type    DataType `json:"type"`
	Count   int64    `json:"count"`
	Symbols []string `json:"symbols"`
}

// SymbolCount ranks a symbol by failure occurrences.
type SymbolCount struct {
	Symbol string `json:"symbol"`
	Count  int64  `json:"count"`
}

// FailureStatistics aggregates the ledger over a number of days.
// Error is set instead of failing when the store is unavailable.
type FailureStatistics struct {
	Days          int                `json:"days"`
	TotalFailures int64              `json:"totalFailures"`
	ByDate        map[string]int64   `json:"byDate"`
	ByType        map[DataType]int64 `json:"byType"`
	Cells         []DayTypeCount     `json:"cells,omitempty"`
	TopSymbols    []SymbolCount      `json:"topSymbols"`
	Error         string             `json:"error,omitempty"`
}

// DateKey formats t as the ledger day key.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// MonthKey formats t as the monthly usage window key.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
