package usecase

import (
	"math/rand"
	"strings"
)

// PricingUseCase maps a free-text medicine name to a price in cents.
type PricingUseCase interface {
	// PriceCents is case-insensitive and trims the name first. Unknown
	// names get a pseudo-random placeholder price in [10.00, 60.00);
	// callers must not assume the result is deterministic for them.
	PriceCents(name string) int64
}

var _ PricingUseCase = (*pricingUC)(nil)

// Known catalog, prices in cents.
var medicinePriceTable = map[string]int64{
	"dipirona":    1290,
	"paracetamol": 1550,
	"ibuprofeno":  2230,
	"amoxicilina": 4890,
	"loratadina":  1875,
}

const defaultPriceCents = 1990

type pricingUC struct{}

// NewPricingUseCase returns the fixed-table pricing lookup.
// TODO: replace the random fallback once the real pricing service exists.
func NewPricingUseCase() PricingUseCase {
	return &pricingUC{}
}

func (p *pricingUC) PriceCents(name string) int64 {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return defaultPriceCents
	}
	if cents, ok := medicinePriceTable[key]; ok {
		return cents
	}
	// Placeholder pricing for anything not in the catalog.
	return 1000 + rand.Int63n(5000)
}
