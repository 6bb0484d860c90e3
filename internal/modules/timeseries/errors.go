package timeseries

import "errors"

var (
	// ErrMissingData is returned when a requested date has no value in a series.
	ErrMissingData = errors.New("missing data")
	// ErrDuplicateDate is returned when a calendar lists the same day twice.
	ErrDuplicateDate = errors.New("duplicate date")
	// ErrInsufficientOverlap is returned when two series share fewer than two dates.
	ErrInsufficientOverlap = errors.New("insufficient overlap")
	// ErrDegenerateSeries is returned when a statistic is undefined for a series:
	// fewer than two observations, or every value equal at 9-decimal precision.
	ErrDegenerateSeries = errors.New("degenerate series")
)
