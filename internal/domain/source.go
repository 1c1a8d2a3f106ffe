package domain

// DefaultSourcePriorities seeds the per-type source ordering. Every known
// source for a type appears exactly once.
var DefaultSourcePriorities = map[DataType][]string{
	TypeUSStock:      {"yahoo-finance", "alpha-vantage", "marketwatch-scrape"},
	TypeJPStock:      {"yahoo-finance-japan", "minkabu-scrape", "kabutan-scrape"},
	TypeETF:          {"yahoo-finance", "marketwatch-scrape"},
	TypeMutualFund:   {"morningstar-japan", "toushin-lib"},
	TypeExchangeRate: {"exchangerate-api", "frankfurter", "dynamic-calculation"},
}

// SourceSample is one completed request observation fed into the
// aggregated source metrics.
type SourceSample struct {
	MetricType DataType
	Source     string
	Symbol     string
	Success    bool
	LatencyMS  int64
	ErrorKind  string
}

// SourceMetric aggregates request outcomes per (metricType, source).
type SourceMetric struct {
	MetricType        DataType         `json:"metricType"`
	MetricKey         string           `json:"metricKey"`
	Requests          int64            `json:"requests"`
	Successes         int64            `json:"successes"`
	Failures          int64            `json:"failures"`
	TotalResponseTime int64            `json:"totalResponseTime"`
	ErrorTypes        map[string]int64 `json:"errorTypes,omitempty"`
}
