package rates

import (
	"time"

	"github.com/shopspring/decimal"
)

// CalcParams describes one consumer unit's billing window. Start and End are
// the two meter reading dates; only their calendar dates matter.
//
// The distributor is selected by AgentAlias when set, otherwise by
// DistributorTaxID. Distributor names a registry entry that fills in
// whichever of the two is missing.
type CalcParams struct {
	Start time.Time
	End   time.Time

	DistributorTaxID string
	SubGroup         string
	Modality         string
	SubClass         string
	AgentAlias       string
	Distributor      string

	Taxes Taxes
}

// CalcResult holds the billing-period weighted averages. Monetary values are
// serialized as decimal strings.
type CalcResult struct {
	TUSD          decimal.Decimal `json:"tusd"`
	TE            decimal.Decimal `json:"te"`
	TUSDWithTaxes decimal.Decimal `json:"tusd_with_taxes"`
	TEWithTaxes   decimal.Decimal `json:"te_with_taxes"`
	BilledDays    int             `json:"billed_days"`

	Flags                  []FlagIncidence `json:"flags"`
	FlagSurcharge          decimal.Decimal `json:"flag_surcharge"`
	FlagSurchargeWithTaxes decimal.Decimal `json:"flag_surcharge_with_taxes"`
}
