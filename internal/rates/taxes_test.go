package rates

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func taxes(icms, pis, cofins string) Taxes {
	return Taxes{
		ICMS:   decimal.RequireFromString(icms),
		PIS:    decimal.RequireFromString(pis),
		COFINS: decimal.RequireFromString(cofins),
	}
}

func TestGrossUp(t *testing.T) {
	rate := decimal.RequireFromString("100")
	assertDecimal(t, "250", GrossUp(rate, taxes("0.2", "0.1", "0.4")))
	assertDecimal(t, "125", GrossUp(rate, taxes("0.2", "0", "0")))
}

func TestGrossUp_ZeroTaxesIsIdentity(t *testing.T) {
	for _, v := range []string{"0", "0.000001", "412.345", "7.54", "1234567.891"} {
		rate := decimal.RequireFromString(v)
		assertDecimal(t, v, GrossUp(rate, Taxes{}))
	}
}

func TestTaxesValidate(t *testing.T) {
	assert.NoError(t, Taxes{}.Validate())
	assert.NoError(t, taxes("0.19", "0.0098", "0.04614").Validate())

	for name, tx := range map[string]Taxes{
		"negative icms":   taxes("-0.01", "0", "0"),
		"icms of 100%":    taxes("1", "0", "0"),
		"pis above 100%":  taxes("0", "1.5", "0"),
		"pis plus cofins": taxes("0", "0.6", "0.4"),
	} {
		assert.ErrorIs(t, tx.Validate(), ErrInvalidTaxes, name)
	}
}

func TestRoundingIsIdempotent(t *testing.T) {
	for _, v := range []string{"412.3455", "412.3454", "-0.0005", "7.5400005", "18.8500015"} {
		d := decimal.RequireFromString(v)
		once := d.Round(tariffPlaces)
		assert.True(t, once.Equal(once.Round(tariffPlaces)), v)
		f := d.Round(flagPlaces)
		assert.True(t, f.Equal(f.Round(flagPlaces)), v)
	}
	assertDecimal(t, "412.346", decimal.RequireFromString("412.3455").Round(tariffPlaces))
	assertDecimal(t, "-0.001", decimal.RequireFromString("-0.0005").Round(tariffPlaces))
}
