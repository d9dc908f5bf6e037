package rates

import (
	"fmt"
	"strings"
	"time"

	"github.com/bher20/kwhmedio/internal/aneel"
	"github.com/shopspring/decimal"
)

// Published validity dates are shifted before they are compared with the
// billing window: a schedule is taken to start two days before its
// DatInicioVigencia and to end the day before its DatFimVigencia.
const (
	validFromLeadDays = 2
	validToTrimDays   = 1
)

// TariffBlend is the day-weighted average of the schedules that overlap a
// billing window.
type TariffBlend struct {
	TUSD decimal.Decimal
	TE   decimal.Decimal
	// Days is the total overlap the averages were weighted by.
	Days int
}

// ParseTariffValue reads a TUSD or TE value, converting the decimal comma.
func ParseTariffValue(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.Replace(strings.TrimSpace(s), ",", ".", 1))
	if err != nil {
		return decimal.Zero, fmt.Errorf("rates: invalid tariff value %q: %w", s, err)
	}
	return d, nil
}

// effectiveInterval is the record's validity after the date shifts.
func effectiveInterval(rec aneel.TariffRecord) (time.Time, time.Time) {
	return rec.ValidFrom.AddDate(0, 0, -validFromLeadDays), rec.ValidTo.AddDate(0, 0, -validToTrimDays)
}

// BlendTariffs weights every record's rates by the calendar days its
// effective interval shares with [start, end]. A record that touches the
// window on a single day contributes zero weight. With no overlap at all
// both rates are zero.
func BlendTariffs(records []aneel.TariffRecord, start, end time.Time) (TariffBlend, error) {
	start, end = civil(start), civil(end)

	var (
		days    int
		sumTUSD = decimal.Zero
		sumTE   = decimal.Zero
	)
	for _, rec := range records {
		from, to := effectiveInterval(rec)
		lo := later(from, start)
		hi := earlier(to, end)
		if hi.Before(lo) {
			continue
		}
		n := calendarDays(lo, hi)

		tusd, err := ParseTariffValue(rec.TUSD)
		if err != nil {
			return TariffBlend{}, fmt.Errorf("record %d: %w", rec.ID, err)
		}
		te, err := ParseTariffValue(rec.TE)
		if err != nil {
			return TariffBlend{}, fmt.Errorf("record %d: %w", rec.ID, err)
		}

		w := decimal.NewFromInt(int64(n))
		days += n
		sumTUSD = sumTUSD.Add(tusd.Mul(w))
		sumTE = sumTE.Add(te.Mul(w))
	}

	if days == 0 {
		return TariffBlend{TUSD: decimal.Zero, TE: decimal.Zero}, nil
	}
	total := decimal.NewFromInt(int64(days))
	return TariffBlend{
		TUSD: sumTUSD.Div(total),
		TE:   sumTE.Div(total),
		Days: days,
	}, nil
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
