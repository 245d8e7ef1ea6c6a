package billing

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/ManuelReschke/ConsultLedger/app/models"
)

// DiscountCalculation is the outcome of pricing a mapping against the
// discount catalog.
type DiscountCalculation struct {
	MappingID      uint   `json:"mapping_id"`
	OriginalAmount int64  `json:"original_amount"`
	DiscountAmount int64  `json:"discount_amount"`
	FinalAmount    int64  `json:"final_amount"`
	DiscountCode   string `json:"discount_code,omitempty"`
	DiscountName   string `json:"discount_name,omitempty"`
	DiscountType   string `json:"discount_type,omitempty"`
	AutoApplied    bool   `json:"auto_applied"`
	Message        string `json:"message"`
}

// DiscountValue computes the discount a catalog entry grants on an amount.
// Percentage values are basis points rounded half up; fixed discounts never
// exceed the original amount.
func DiscountValue(d *models.PackageDiscount, original int64) int64 {
	if d == nil || original <= 0 || d.Value <= 0 {
		return 0
	}
	switch d.Type {
	case models.DiscountTypePercentage:
		bp := min(d.Value, 10000)
		hi, lo := bits.Mul64(uint64(original), uint64(bp))
		lo, carry := bits.Add64(lo, 5000, 0)
		q, _ := bits.Div64(hi+carry, lo, 10000)
		return int64(q)
	case models.DiscountTypeFixed:
		return min(d.Value, original)
	default:
		return 0
	}
}

// CheckEligibility returns nil when the discount may be used for the given
// amount at the given time. usage is the number of times it was already applied.
func CheckEligibility(d *models.PackageDiscount, original int64, usage int64, now time.Time) error {
	if d == nil {
		return invalidArgument("discount is required")
	}
	if !d.Active {
		return validationFailed("discount %s is not active", d.Code)
	}
	if d.StartDate != nil && now.Before(*d.StartDate) {
		return validationFailed("discount %s is not valid before %s", d.Code, d.StartDate.Format(time.DateOnly))
	}
	if d.EndDate != nil && now.After(*d.EndDate) {
		return validationFailed("discount %s expired on %s", d.Code, d.EndDate.Format(time.DateOnly))
	}
	if d.UsageLimit > 0 && usage >= d.UsageLimit {
		return validationFailed("discount %s reached its usage limit of %d", d.Code, d.UsageLimit)
	}
	if original < d.MinimumAmount {
		return validationFailed("discount %s requires a minimum amount of %s", d.Code, FormatAmount(d.MinimumAmount))
	}
	return nil
}

// SelectBest picks the candidate granting the largest discount on original.
// Earlier candidates win ties.
func SelectBest(original int64, candidates ...*models.PackageDiscount) (*models.PackageDiscount, int64) {
	var best *models.PackageDiscount
	var bestValue int64
	for _, c := range candidates {
		if c == nil {
			continue
		}
		v := DiscountValue(c, original)
		if best == nil || v > bestValue {
			best = c
			bestValue = v
		}
	}
	return best, bestValue
}

func newDiscountCalculation(mappingID uint, original int64, d *models.PackageDiscount, value int64, auto bool) DiscountCalculation {
	calc := DiscountCalculation{
		MappingID:      mappingID,
		OriginalAmount: original,
		FinalAmount:    original,
		Message:        "no discount applicable",
	}
	if d == nil || value <= 0 {
		return calc
	}
	calc.DiscountAmount = value
	calc.FinalAmount = original - value
	calc.DiscountCode = d.Code
	calc.DiscountName = d.Name
	calc.DiscountType = d.Type
	calc.AutoApplied = auto
	calc.Message = fmt.Sprintf("discount %s grants %s", d.Code, FormatAmount(value))
	return calc
}
