// Package charge splits a payment total across the days it pays for.
package charge

import (
	"fmt"

	"github.com/frahmantamala/caz-payments/internal"
)

var ErrInvalidChargeDistribution = internal.NewValidationError(
	"total cannot be split evenly across travel dates", internal.ErrCodeInvalidChargeDistribution)

// CalculateCharge returns the per-day charge for total spread over numberOfDays.
// Uneven splits are rejected rather than rounded, so the sum of obligations
// always equals the amount actually charged.
func CalculateCharge(total int64, numberOfDays int) (int64, error) {
	if total <= 0 {
		return 0, fmt.Errorf("%w: total must be positive, got %d", ErrInvalidChargeDistribution, total)
	}
	if numberOfDays <= 0 {
		return 0, fmt.Errorf("%w: number of days must be positive, got %d", ErrInvalidChargeDistribution, numberOfDays)
	}
	days := int64(numberOfDays)
	if total%days != 0 {
		return 0, fmt.Errorf("%w: %d is not divisible by %d", ErrInvalidChargeDistribution, total, days)
	}
	return total / days, nil
}
