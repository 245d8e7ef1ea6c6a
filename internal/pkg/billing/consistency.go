package billing

import "fmt"

// CheckConsistency compares the paid amount of a mapping against the amount
// implied by its sessions, price and discount. It has no side effects.
func CheckConsistency(m MappingBilling, tolerance int64) ConsistencyResult {
	gross := m.GrossAmount()
	discount := m.Discount()
	expected := gross - discount

	res := ConsistencyResult{
		MappingID: m.MappingID,
		Breakdown: AmountBreakdown{
			Gross:      gross,
			Discount:   discount,
			Expected:   expected,
			Actual:     m.PaidAmount,
			Difference: expected - m.PaidAmount,
		},
		Recommendation: max(expected, 0),
	}

	switch {
	case m.TotalSessions < 0 || m.UsedSessions < 0 || m.UsedSessions > m.TotalSessions:
		res.Reason = ReasonSessionCountInvalid
		res.Message = fmt.Sprintf("session counts are invalid: used %d of %d", m.UsedSessions, m.TotalSessions)
	case m.PricePerSession < 0 || m.PaidAmount < 0 || discount < 0:
		res.Reason = ReasonNegativeBalance
		res.Message = "price, paid amount and discount must not be negative"
	case !m.InRange():
		res.Reason = ReasonNegativeBalance
		res.Message = fmt.Sprintf("amounts exceed the supported maximum of %s", FormatAmount(MaxAmount))
		res.Breakdown = AmountBreakdown{Actual: m.PaidAmount}
		res.Recommendation = 0
	case expected < 0:
		res.Reason = ReasonNegativeBalance
		res.Message = fmt.Sprintf("discount %s exceeds package total %s", FormatAmount(discount), FormatAmount(gross))
	case m.DiscountCode != nil && m.DiscountAmount == nil:
		res.Reason = ReasonMissingDiscountRecord
		res.Message = fmt.Sprintf("discount code %q has no discount amount on record", *m.DiscountCode)
	case !withinTolerance(expected, m.PaidAmount, tolerance):
		res.Reason = ReasonAmountMismatch
		res.Message = fmt.Sprintf("paid amount %s differs from expected %s by %s",
			FormatAmount(m.PaidAmount), FormatAmount(expected), FormatAmount(res.Breakdown.Difference))
	default:
		res.IsConsistent = true
		res.Message = "amounts are consistent"
	}

	return res
}

func missingDiscountRecord(res ConsistencyResult, code string) ConsistencyResult {
	res.IsConsistent = false
	res.Reason = ReasonMissingDiscountRecord
	res.Message = fmt.Sprintf("discount %q on mapping has no applied discount record", code)
	return res
}
