package rates

import (
	"testing"

	"github.com/bher20/kwhmedio/internal/aneel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schedule(id int, from, to, tusd, te string) aneel.TariffRecord {
	return aneel.TariffRecord{
		ID:        id,
		ValidFrom: aneel.MustDate(from),
		ValidTo:   aneel.MustDate(to),
		TUSD:      tusd,
		TE:        te,
	}
}

func TestBlendTariffs_SingleCoveringRecord(t *testing.T) {
	records := []aneel.TariffRecord{schedule(1, "2024-01-01", "2024-12-31", "412,345", "275,01")}

	got, err := BlendTariffs(records, date("2024-06-12"), date("2024-07-12"))
	require.NoError(t, err)
	assertDecimal(t, "412.345", got.TUSD)
	assertDecimal(t, "275.01", got.TE)
	assert.Equal(t, 30, got.Days)
}

func TestBlendTariffs_TwoSchedules(t *testing.T) {
	records := []aneel.TariffRecord{
		// effective 2023-06-22..2024-06-23, 11 days of the window
		schedule(1, "2023-06-24", "2024-06-24", "400,00", "270,00"),
		// effective 2024-06-22..2025-06-23, 20 days of the window
		schedule(2, "2024-06-24", "2025-06-24", "431,00", "301,00"),
	}

	got, err := BlendTariffs(records, date("2024-06-12"), date("2024-07-12"))
	require.NoError(t, err)
	assert.Equal(t, 31, got.Days)
	assertDecimal(t, "420", got.TUSD)
	assertDecimal(t, "290", got.TE)
}

func TestBlendTariffs_NoOverlapIsZero(t *testing.T) {
	records := []aneel.TariffRecord{schedule(1, "2022-06-24", "2023-06-23", "390,00", "250,00")}

	got, err := BlendTariffs(records, date("2024-06-12"), date("2024-07-12"))
	require.NoError(t, err)
	assert.Zero(t, got.Days)
	assert.True(t, got.TUSD.IsZero())
	assert.True(t, got.TE.IsZero())

	got, err = BlendTariffs(nil, date("2024-06-12"), date("2024-07-12"))
	require.NoError(t, err)
	assert.True(t, got.TUSD.IsZero())
}

func TestBlendTariffs_SingleDayTouchHasNoWeight(t *testing.T) {
	records := []aneel.TariffRecord{
		// effective interval ends exactly on the window's first day
		schedule(1, "2024-01-01", "2024-06-13", "999,00", "999,00"),
		schedule(2, "2024-06-13", "2025-06-13", "410,00", "280,00"),
	}

	got, err := BlendTariffs(records, date("2024-06-12"), date("2024-07-12"))
	require.NoError(t, err)
	assertDecimal(t, "410", got.TUSD)
	assertDecimal(t, "280", got.TE)
}

func TestBlendTariffs_InvalidValue(t *testing.T) {
	records := []aneel.TariffRecord{schedule(7, "2024-01-01", "2024-12-31", "", "275,01")}
	_, err := BlendTariffs(records, date("2024-06-12"), date("2024-07-12"))
	assert.ErrorContains(t, err, "record 7")

	// records outside the window are never parsed
	records = []aneel.TariffRecord{schedule(8, "2020-01-01", "2020-12-31", "", "")}
	_, err = BlendTariffs(records, date("2024-06-12"), date("2024-07-12"))
	assert.NoError(t, err)
}
