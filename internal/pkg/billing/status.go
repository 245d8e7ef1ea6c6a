package billing

import (
	"strings"

	"github.com/ManuelReschke/ConsultLedger/app/models"
)

type DiscountStatus string

const (
	StatusPending   DiscountStatus = models.DiscountStatusPending
	StatusApplied   DiscountStatus = models.DiscountStatusApplied
	StatusCancelled DiscountStatus = models.DiscountStatusCancelled
	StatusRefunded  DiscountStatus = models.DiscountStatusRefunded
)

var discountTransitions = map[DiscountStatus][]DiscountStatus{
	StatusPending: {StatusApplied},
	StatusApplied: {StatusCancelled, StatusRefunded},
}

// ParseDiscountStatus normalizes a status string, rejecting unknown values.
func ParseDiscountStatus(s string) (DiscountStatus, error) {
	switch st := DiscountStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusApplied, StatusCancelled, StatusRefunded:
		return st, nil
	default:
		return "", invalidArgument("unknown discount status %q", s)
	}
}

// CanTransition reports whether a discount record may move from one status to another.
func CanTransition(from, to DiscountStatus) bool {
	for _, next := range discountTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s DiscountStatus) IsTerminal() bool {
	return len(discountTransitions[s]) == 0
}

func checkTransition(from, to DiscountStatus) error {
	if !CanTransition(from, to) {
		return invalidTransition(from, to)
	}
	return nil
}
