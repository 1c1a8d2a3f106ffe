package provider

import (
	"context"

	"marketdata-service/internal/application"
)

// Ensure Fake implements application.RateAPI.
var _ application.RateAPI = (*Fake)(nil)

// Fake returns a fixed rate for every pair; used when no live provider is
// configured.
type Fake struct {
	rate float64
}

func NewFake(rate float64) *Fake { return &Fake{rate: rate} }

func (f *Fake) FetchRate(context.Context, string, string) (float64, error) {
	return f.rate, nil
}
