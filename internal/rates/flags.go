package rates

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bher20/kwhmedio/internal/aneel"
	"github.com/shopspring/decimal"
)

// FlagIncidence is the flag in force for the billed days of one month.
type FlagIncidence struct {
	Days      int             `json:"days"`
	Flag      string          `json:"flag"`
	Surcharge decimal.Decimal `json:"surcharge"`
}

// ParseSurcharge reads a flag surcharge in pt-BR notation ("1.234,56").
func ParseSurcharge(s string) (decimal.Decimal, error) {
	v := strings.ReplaceAll(strings.TrimSpace(s), ".", "")
	v = strings.Replace(v, ",", ".", 1)
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rates: invalid flag surcharge %q: %w", s, err)
	}
	return d, nil
}

// ResolveFlag returns the last activation whose competency month is not after
// month. series must be ordered by competency. Activations without a
// competency sort first and never cover a month.
func ResolveFlag(series []aneel.FlagActivation, month time.Time) (aneel.FlagActivation, error) {
	undated := sort.Search(len(series), func(i int) bool {
		return !series[i].Competency.IsZero()
	})
	series = series[undated:]
	if len(series) == 0 {
		return aneel.FlagActivation{}, fmt.Errorf("%w: flag series is empty", ErrNoActivationCoverage)
	}
	month = firstOfMonth(month)
	i := sort.Search(len(series), func(i int) bool {
		return firstOfMonth(series[i].Competency.Time).After(month)
	})
	if i == 0 {
		return aneel.FlagActivation{}, fmt.Errorf("%w: %s precedes the first activation (%s)",
			ErrNoActivationCoverage, month.Format("2006-01"), series[0].Competency.Format("2006-01"))
	}
	return series[i-1], nil
}

// FlagIncidences resolves the flag of every competency month of the window.
func FlagIncidences(series []aneel.FlagActivation, start, end time.Time) ([]FlagIncidence, error) {
	buckets := CompetencyBuckets(start, end)
	out := make([]FlagIncidence, 0, len(buckets))
	for _, b := range buckets {
		act, err := ResolveFlag(series, b.Month)
		if err != nil {
			return nil, err
		}
		surcharge, err := ParseSurcharge(act.Surcharge)
		if err != nil {
			return nil, err
		}
		out = append(out, FlagIncidence{Days: b.Days, Flag: act.FlagName, Surcharge: surcharge})
	}
	return out, nil
}

// BlendedFlagSurcharge weights each month's surcharge by its share of the
// billed days. The sum is divided once so no precision is lost per month.
func BlendedFlagSurcharge(incidences []FlagIncidence, billedDays int) decimal.Decimal {
	if billedDays <= 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, in := range incidences {
		sum = sum.Add(in.Surcharge.Mul(decimal.NewFromInt(int64(in.Days))))
	}
	return sum.Div(decimal.NewFromInt(int64(billedDays)))
}
