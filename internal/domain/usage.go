package domain

// UsageRequest describes one admission check.
type UsageRequest struct {
	DataType  DataType `json:"dataType"`
	IP        string   `json:"ip"`
	UserAgent string   `json:"userAgent"`
	SessionID string   `json:"sessionId"`
}

// Usage carries the counter values observed by an admission check.
type Usage struct {
	Daily    int64 `json:"daily"`
	Monthly  int64 `json:"monthly"`
	DataType int64 `json:"dataType"`
}

// UsageDecision is the admission verdict. StorageError marks a fail-open
// decision taken because the counter store was unavailable.
type UsageDecision struct {
	Allowed      bool   `json:"allowed"`
	LimitType    string `json:"limitType,omitempty"`
	Usage        Usage  `json:"usage"`
	StorageError string `json:"storageError,omitempty"`
}

// UsageStats is the admin view of current windows and limits.
type UsageStats struct {
	Daily        int64              `json:"daily"`
	Monthly      int64              `json:"monthly"`
	DailyLimit   int64              `json:"dailyLimit"`
	MonthlyLimit int64              `json:"monthlyLimit"`
	ByType       map[DataType]int64 `json:"byType"`
}

// Usage limit window names.
const (
	LimitDaily   = "daily"
	LimitMonthly = "monthly"
)
