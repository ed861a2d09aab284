package budget

import "github.com/vietddude/cogcall/internal/core/domain"

// DefaultRatePerUnit is the list price of text analytics: $2 per million characters.
const DefaultRatePerUnit = 0.000002

// PriceTable maps operation kinds to a price per volume unit, plus an
// optional flat price per successful call (image analysis is billed per
// transaction, not per byte).
type PriceTable struct {
	// Default applies to kinds without an explicit rate.
	Default float64
	Rates   map[domain.OperationKind]float64
	PerCall map[domain.OperationKind]float64
}

// DefaultPriceTable returns list prices for the supported services.
func DefaultPriceTable() PriceTable {
	return PriceTable{
		Default: DefaultRatePerUnit,
		Rates: map[domain.OperationKind]float64{
			domain.KindPing:          0,
			domain.KindJobStatus:     0,
			domain.KindLanguages:     0,
			domain.KindTranslate:     0.00001, // $10 per million characters
			domain.KindTransliterate: 0.00001,
			domain.KindDetect:        0.00001,
			domain.KindImageAnalysis: 0,
		},
		PerCall: map[domain.OperationKind]float64{
			domain.KindImageAnalysis: 0.001, // $1 per thousand transactions
		},
	}
}

// Rate returns the price per unit for kind.
func (t PriceTable) Rate(kind domain.OperationKind) float64 {
	if r, ok := t.Rates[kind]; ok {
		return r
	}
	return t.Default
}

// Cost prices volume units of kind.
func (t PriceTable) Cost(kind domain.OperationKind, volume int64) float64 {
	if volume <= 0 {
		return 0
	}
	return float64(volume) * t.Rate(kind)
}

// CallCost prices one logical operation: its volume plus the per-call price
// when it succeeded.
func (t PriceTable) CallCost(kind domain.OperationKind, success bool, volume int64) float64 {
	cost := t.Cost(kind, volume)
	if success {
		cost += t.PerCall[kind]
	}
	return cost
}
