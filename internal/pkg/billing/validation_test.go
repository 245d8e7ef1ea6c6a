package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amountsOf(detected []DetectedAmount) []int64 {
	out := make([]int64, 0, len(detected))
	for _, d := range detected {
		out = append(out, d.Amount)
	}
	return out
}

func TestDetectAmounts(t *testing.T) {
	m := MappingBilling{
		TotalSessions:   10,
		UsedSessions:    4,
		PricePerSession: 50000,
		PaidAmount:      200000,
		DiscountCode:    ptr("WELCOME"),
		DiscountAmount:  ptr(int64(50000)),
		FinalAmount:     ptr(int64(450000)),
	}

	got := DetectAmounts(m)
	require.NotEmpty(t, got)
	assert.Equal(t, SourcePackageTotal, got[0].Source)
	// final amount duplicates the discounted total and is dropped
	assert.Equal(t, []int64{500000, 450000, 50000, 200000, 250000}, amountsOf(got))
}

func TestDetectAmounts_PackageTotalAlwaysPresent(t *testing.T) {
	got := DetectAmounts(MappingBilling{})
	require.Len(t, got, 1)
	assert.Equal(t, DetectedAmount{Source: SourcePackageTotal, Amount: 0}, got[0])
}

func TestValidateAmount(t *testing.T) {
	m := tenSessionPackage(0)

	tests := []struct {
		name        string
		input       int64
		valid       bool
		recommended int64
	}{
		{name: "package total", input: 500000, valid: true, recommended: 500000},
		{name: "within tolerance", input: 500001, valid: true, recommended: 500000},
		{name: "single session", input: 50000, valid: true, recommended: 50000},
		{name: "between candidates", input: 300000, valid: false, recommended: 500000},
		{name: "negative", input: -1, valid: false, recommended: 50000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateAmount(m, tt.input, DefaultTolerance)
			assert.Equal(t, tt.valid, res.IsValid, res.Message)
			assert.Equal(t, tt.recommended, res.RecommendedAmount)
			assert.Contains(t, amountsOf(res.DetectedAmounts), res.RecommendedAmount)
		})
	}
}

func TestValidateAmount_ValidIffWithinToleranceOfDetected(t *testing.T) {
	m := MappingBilling{TotalSessions: 8, UsedSessions: 3, PricePerSession: 12500, PaidAmount: 40000}
	detected := amountsOf(DetectAmounts(m))

	for input := int64(0); input <= 110000; input += 250 {
		near := false
		for _, d := range detected {
			if withinTolerance(d, input, DefaultTolerance) {
				near = true
			}
		}
		res := ValidateAmount(m, input, DefaultTolerance)
		assert.Equal(t, near, res.IsValid, "input %d", input)
		assert.Contains(t, detected, res.RecommendedAmount)
	}
}

func TestValidateAmount_TotalBeyondRange(t *testing.T) {
	m := MappingBilling{TotalSessions: 4, PricePerSession: 1 << 62}

	res := ValidateAmount(m, 0, DefaultTolerance)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Message, "maximum")

	res = ValidateAmount(tenSessionPackage(0), MaxAmount+1, DefaultTolerance)
	assert.False(t, res.IsValid)
}
