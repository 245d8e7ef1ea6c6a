package billing

import "fmt"

const (
	SourcePackageTotal    = "package_total"
	SourceDiscountedTotal = "discounted_total"
	SourceFinalAmount     = "final_amount"
	SourcePackagePrice    = "package_price"
	SourceSessionPrice    = "session_price"
	SourceUsedSessions    = "used_sessions_amount"
	SourceOutstanding     = "outstanding_balance"
)

// DetectAmounts lists the amounts an operator may legitimately record for a
// mapping. The package total is always first; every other candidate is only
// included when positive. Duplicate values keep their first source.
func DetectAmounts(m MappingBilling) []DetectedAmount {
	gross := m.GrossAmount()
	out := []DetectedAmount{{Source: SourcePackageTotal, Amount: gross}}
	seen := map[int64]struct{}{gross: {}}

	add := func(source string, amount int64) {
		if amount <= 0 {
			return
		}
		if _, ok := seen[amount]; ok {
			return
		}
		seen[amount] = struct{}{}
		out = append(out, DetectedAmount{Source: source, Amount: amount})
	}

	if m.DiscountAmount != nil {
		add(SourceDiscountedTotal, gross-*m.DiscountAmount)
	}
	if m.FinalAmount != nil {
		add(SourceFinalAmount, *m.FinalAmount)
	}
	if m.PackagePrice != nil {
		add(SourcePackagePrice, *m.PackagePrice)
	}
	add(SourceSessionPrice, m.PricePerSession)
	if used, ok := mulAmount(m.UsedSessions, m.PricePerSession); ok {
		add(SourceUsedSessions, used)
	}
	add(SourceOutstanding, m.ExpectedAmount()-m.PaidAmount)

	return out
}

// ValidateAmount checks a proposed amount against the detected amounts of a
// mapping. The recommended amount is the closest detected amount; ties go to
// the earlier candidate.
func ValidateAmount(m MappingBilling, input int64, tolerance int64) ValidationResult {
	detected := DetectAmounts(m)
	res := ValidationResult{
		MappingID:       m.MappingID,
		InputAmount:     input,
		DetectedAmounts: detected,
	}

	best := detected[0]
	for _, d := range detected[1:] {
		if abs64(d.Amount-input) < abs64(best.Amount-input) {
			best = d
		}
	}
	res.RecommendedAmount = best.Amount

	switch {
	case input < 0:
		res.Message = "amount must not be negative"
	case input > MaxAmount || !m.InRange():
		res.Message = fmt.Sprintf("amounts exceed the supported maximum of %s", FormatAmount(MaxAmount))
	case withinTolerance(best.Amount, input, tolerance):
		res.IsValid = true
		res.Message = fmt.Sprintf("amount %s matches %s", FormatAmount(input), best.Source)
	default:
		res.Message = fmt.Sprintf("amount %s does not match any expected amount, closest is %s (%s)",
			FormatAmount(input), FormatAmount(best.Amount), best.Source)
	}
	return res
}
