package domain

import "time"

// Exchange rate source labels, one per resolver stage.
const (
	RateSourceSameCurrency = "Internal (same currencies)"
	RateSourceLiveAPI      = "exchangerate-api"
	RateSourceDynamic      = "dynamic-calculation"
	RateSourceHardcoded    = "hardcoded"
	RateSourceEmergency    = "Fallback"
	RateSourceDefault      = "default-fallback"
)

// ExchangeRate is a resolved conversion rate tagged with the stage that
// produced it.
type ExchangeRate struct {
	Base        string    `json:"base"`
	Target      string    `json:"target"`
	Rate        float64   `json:"rate"`
	Source      string    `json:"source"`
	LastUpdated time.Time `json:"lastUpdated"`
}
