package rates

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	tariffPlaces = 3
	flagPlaces   = 6
)

var one = decimal.NewFromInt(1)

// Taxes are fractions, 0.19 meaning 19%. The zero value means untaxed.
type Taxes struct {
	ICMS   decimal.Decimal `json:"icms"`
	PIS    decimal.Decimal `json:"pis"`
	COFINS decimal.Decimal `json:"cofins"`
}

// Validate rejects fractions outside [0, 1) and a PIS+COFINS sum that would
// leave nothing to gross up.
func (t Taxes) Validate() error {
	for _, f := range []struct {
		name string
		v    decimal.Decimal
	}{{"icms", t.ICMS}, {"pis", t.PIS}, {"cofins", t.COFINS}} {
		if f.v.IsNegative() || f.v.GreaterThanOrEqual(one) {
			return fmt.Errorf("%w: %s must be in [0, 1), got %s", ErrInvalidTaxes, f.name, f.v)
		}
	}
	if t.PIS.Add(t.COFINS).GreaterThanOrEqual(one) {
		return fmt.Errorf("%w: pis + cofins must be below 1", ErrInvalidTaxes)
	}
	return nil
}

// GrossUp embeds the taxes in a pre-tax rate:
// rate × 1/(1 − PIS − COFINS) × 1/(1 − ICMS).
// Taxes must have passed Validate.
func GrossUp(rate decimal.Decimal, t Taxes) decimal.Decimal {
	federal := one.Div(one.Sub(t.PIS).Sub(t.COFINS))
	state := one.Div(one.Sub(t.ICMS))
	return rate.Mul(federal).Mul(state)
}
