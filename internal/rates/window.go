package rates

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

// civil drops the time of day and zone, keeping the calendar date as seen in
// t's own location.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func firstOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// calendarDays is the number of calendar days from a to b, negative when b
// comes first.
func calendarDays(a, b time.Time) int {
	return int(civil(b).Sub(civil(a)) / day)
}

// BilledDays is the number of calendar days between the two reading dates.
func BilledDays(start, end time.Time) (int, error) {
	n := calendarDays(start, end)
	if n < 1 {
		return 0, fmt.Errorf("%w: %s to %s", ErrInvalidWindow, civil(start).Format(time.DateOnly), civil(end).Format(time.DateOnly))
	}
	return n, nil
}

// Bucket is the number of billed days that fall in one competency month.
type Bucket struct {
	Month time.Time
	Days  int
}

// CompetencyBuckets groups the billed days start+1 through end by calendar
// month. The reading day itself is not billed; the closing day is. Buckets
// come back in chronological order and their days add up to BilledDays.
func CompetencyBuckets(start, end time.Time) []Bucket {
	var out []Bucket
	last := civil(end)
	for d := civil(start).AddDate(0, 0, 1); !d.After(last); d = d.AddDate(0, 0, 1) {
		m := firstOfMonth(d)
		if n := len(out); n > 0 && out[n-1].Month.Equal(m) {
			out[n-1].Days++
			continue
		}
		out = append(out, Bucket{Month: m, Days: 1})
	}
	return out
}
