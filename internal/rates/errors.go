package rates

import "errors"

var (
	// ErrInvalidWindow is returned when a billing window covers less than one day.
	ErrInvalidWindow = errors.New("rates: billed days less than 1")

	// ErrNoActivationCoverage is returned when a billed month precedes the
	// flag series or the series is empty.
	ErrNoActivationCoverage = errors.New("rates: no flag activation covers the competency month")

	// ErrInvalidTaxes is returned for tax fractions that would make the
	// gross-up undefined or negative.
	ErrInvalidTaxes = errors.New("rates: invalid tax fractions")

	// ErrInvalidParams is returned when the tariff selector is incomplete.
	ErrInvalidParams = errors.New("rates: invalid calculation parameters")

	ErrUnknownDistributor = errors.New("rates: unknown distributor")
)
