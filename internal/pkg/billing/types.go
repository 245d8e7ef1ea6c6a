package billing

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/ManuelReschke/ConsultLedger/app/models"
)

// MappingBilling is the financial projection of a consultant-client mapping
// that the consistency engine works on.
type MappingBilling struct {
	MappingID       uint    `json:"mapping_id"`
	TotalSessions   int     `json:"total_sessions"`
	UsedSessions    int     `json:"used_sessions"`
	PricePerSession int64   `json:"price_per_session"`
	PaidAmount      int64   `json:"paid_amount"`
	PackagePrice    *int64  `json:"package_price,omitempty"`
	DiscountCode    *string `json:"discount_code,omitempty"`
	DiscountAmount  *int64  `json:"discount_amount,omitempty"`
	FinalAmount     *int64  `json:"final_amount,omitempty"`
}

// FromMapping builds the billing projection of a stored mapping. Blank
// discount codes are treated as absent.
func FromMapping(m *models.ConsultantClientMapping) MappingBilling {
	b := MappingBilling{
		MappingID:       m.ID,
		TotalSessions:   m.TotalSessions,
		UsedSessions:    m.UsedSessions,
		PricePerSession: m.PricePerSession,
		PaidAmount:      m.PaidAmount,
		PackagePrice:    m.PackagePrice,
		DiscountAmount:  m.DiscountAmount,
		FinalAmount:     m.FinalAmount,
	}
	if m.DiscountCode != nil && strings.TrimSpace(*m.DiscountCode) != "" {
		code := strings.TrimSpace(*m.DiscountCode)
		b.DiscountCode = &code
	}
	return b
}

// GrossAmount is totalSessions * pricePerSession, saturated at math.MaxInt64
// when the product overflows. InRange reports that case.
func (b MappingBilling) GrossAmount() int64 {
	gross, ok := mulAmount(b.TotalSessions, b.PricePerSession)
	if !ok {
		return math.MaxInt64
	}
	return gross
}

// InRange reports whether the package total and every stored amount fit
// within MaxAmount.
func (b MappingBilling) InRange() bool {
	gross, ok := mulAmount(b.TotalSessions, b.PricePerSession)
	if !ok || gross > MaxAmount {
		return false
	}
	for _, v := range []int64{b.PricePerSession, b.PaidAmount, derefAmount(b.PackagePrice), b.Discount(), derefAmount(b.FinalAmount)} {
		if v > MaxAmount {
			return false
		}
	}
	return true
}

func derefAmount(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

// Discount returns the discount amount on record, or zero.
func (b MappingBilling) Discount() int64 {
	if b.DiscountAmount == nil {
		return 0
	}
	return *b.DiscountAmount
}

// HasDiscount reports whether a discount code or amount is present.
func (b MappingBilling) HasDiscount() bool {
	return b.DiscountCode != nil || b.DiscountAmount != nil
}

// ExpectedAmount is the amount that should have been paid.
func (b MappingBilling) ExpectedAmount() int64 {
	return b.GrossAmount() - b.Discount()
}

// InconsistencyReason classifies why a mapping failed the consistency check.
// The zero value means the mapping is consistent.
type InconsistencyReason string

const (
	ReasonAmountMismatch        InconsistencyReason = "AMOUNT_MISMATCH"
	ReasonMissingDiscountRecord InconsistencyReason = "MISSING_DISCOUNT_RECORD"
	ReasonNegativeBalance       InconsistencyReason = "NEGATIVE_BALANCE"
	ReasonSessionCountInvalid   InconsistencyReason = "SESSION_COUNT_INVALID"
)

func (r InconsistencyReason) MarshalJSON() ([]byte, error) {
	if r == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

// AmountBreakdown explains how the expected amount was derived.
// Difference is expected minus actual.
type AmountBreakdown struct {
	Gross      int64 `json:"gross"`
	Discount   int64 `json:"discount"`
	Expected   int64 `json:"expected"`
	Actual     int64 `json:"actual"`
	Difference int64 `json:"difference"`
}

type ConsistencyResult struct {
	MappingID      uint                `json:"mapping_id"`
	IsConsistent   bool                `json:"is_consistent"`
	Reason         InconsistencyReason `json:"inconsistency_reason"`
	Message        string              `json:"message"`
	Breakdown      AmountBreakdown     `json:"amount_breakdown"`
	Recommendation int64               `json:"recommendation"`
}

// DetectedAmount is one candidate amount derivable from a mapping.
type DetectedAmount struct {
	Source string `json:"source"`
	Amount int64  `json:"amount"`
}

type ValidationResult struct {
	MappingID         uint             `json:"mapping_id"`
	InputAmount       int64            `json:"input_amount"`
	IsValid           bool             `json:"is_valid"`
	Message           string           `json:"message"`
	RecommendedAmount int64            `json:"recommended_amount"`
	DetectedAmounts   []DetectedAmount `json:"detected_amounts"`
}

// AmountChange is the input for an audit ledger entry.
type AmountChange struct {
	MappingID uint
	Kind      string
	OldAmount int64
	NewAmount int64
	Reason    string
	ChangedBy string
	Snapshot  any
}

// AmountInfo is the integrated amount view of a mapping.
type AmountInfo struct {
	MappingID         uint                          `json:"mapping_id"`
	PackageName       string                        `json:"package_name"`
	BranchCode        string                        `json:"branch_code"`
	TotalSessions     int                           `json:"total_sessions"`
	UsedSessions      int                           `json:"used_sessions"`
	RemainingSessions int                           `json:"remaining_sessions"`
	PricePerSession   int64                         `json:"price_per_session"`
	GrossAmount       int64                         `json:"gross_amount"`
	PaidAmount        int64                         `json:"paid_amount"`
	AccurateAmount    int64                         `json:"accurate_amount"`
	OutstandingAmount int64                         `json:"outstanding_amount"`
	PaymentStatus     string                        `json:"payment_status"`
	Version           int64                         `json:"version"`
	Discount          *models.DiscountAccounting    `json:"discount,omitempty"`
	Consistency       ConsistencyResult             `json:"consistency"`
	Transactions      []models.FinancialTransaction `json:"transactions"`
	FormattedPaid     string                        `json:"formatted_paid"`
	CheckedAt         time.Time                     `json:"checked_at"`
}
