package allocation

import (
	"errors"
	"math"
)

var ErrInvalidWeight = errors.New("invalid_weight")

// CoerceBps normalizes a participant weight supplied by upstream data as
// either an integer bps field or a fractional percent field. Percent values
// are converted at percent x 100, rounded to the nearest integer bps. When
// both fields are present the bps field wins.
func CoerceBps(bps *int64, percent *float64) (int64, error) {
	switch {
	case bps != nil:
		if *bps < 0 || *bps > BpsDenominator {
			return 0, ErrInvalidWeight
		}
		return *bps, nil
	case percent != nil:
		if *percent < 0 || *percent > 100 || math.IsNaN(*percent) {
			return 0, ErrInvalidWeight
		}
		return int64(math.Round(*percent * 100)), nil
	default:
		return 0, ErrInvalidWeight
	}
}
