package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/ConsultLedger/app/models"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// DiscountStatusNotCreated is reported for mappings without a discount record.
const DiscountStatusNotCreated = "NOT_CREATED"

// DiscountRequest applies a discount to a mapping. Pending records wait for a
// later transition to APPLIED before anything is booked.
type DiscountRequest struct {
	MappingID      uint
	Code           string
	OriginalAmount int64
	DiscountAmount int64
	FinalAmount    int64
	Reason         string
	AppliedBy      string
	Pending        bool
}

type DiscountResult struct {
	Discount          *models.DiscountAccounting `json:"discount"`
	PossibleDuplicate bool                       `json:"possible_duplicate"`
}

type RefundRequest struct {
	MappingID  uint
	Amount     int64
	Reason     string
	RefundedBy string
}

type StatusRequest struct {
	MappingID uint
	Status    string
	Reason    string
	ChangedBy string
}

// DiscountView is the discount accounting state of a mapping.
type DiscountView struct {
	MappingID    uint                          `json:"mapping_id"`
	Status       string                        `json:"status"`
	Discount     *models.DiscountAccounting    `json:"discount,omitempty"`
	Transactions []models.FinancialTransaction `json:"transactions"`
}

// ApplyDiscount records a discount on a mapping. The amounts must satisfy
// original - discount == final within tolerance. A mapping whose latest
// discount is still PENDING or APPLIED must have it cancelled first.
func (s *Service) ApplyDiscount(ctx context.Context, in DiscountRequest) (*DiscountResult, error) {
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if code == "" {
		return nil, invalidArgument("discount_code is required")
	}
	if strings.TrimSpace(in.AppliedBy) == "" {
		return nil, invalidArgument("applied_by is required")
	}
	if in.OriginalAmount < 0 || in.DiscountAmount < 0 || in.FinalAmount < 0 {
		return nil, invalidArgument("amounts must not be negative")
	}
	if in.OriginalAmount > MaxAmount || in.FinalAmount > MaxAmount {
		return nil, invalidArgument("amounts exceed the maximum of %s", FormatAmount(MaxAmount))
	}
	if in.DiscountAmount > in.OriginalAmount {
		return nil, validationFailed("discount %s exceeds original amount %s",
			FormatAmount(in.DiscountAmount), FormatAmount(in.OriginalAmount))
	}
	if !withinTolerance(in.OriginalAmount-in.DiscountAmount, in.FinalAmount, s.tolerance) {
		return nil, validationFailed("original %s minus discount %s is %s, not final amount %s",
			FormatAmount(in.OriginalAmount), FormatAmount(in.DiscountAmount),
			FormatAmount(in.OriginalAmount-in.DiscountAmount), FormatAmount(in.FinalAmount))
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = fmt.Sprintf("discount %s applied", code)
	}

	result := &DiscountResult{}
	var mapping *models.ConsultantClientMapping
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		m, err := tx.LockMapping(ctx, in.MappingID)
		if err != nil {
			return wrapNotFound(err, "mapping %d", in.MappingID)
		}
		before := FromMapping(m).ExpectedAmount()

		prev, err := tx.LatestDiscount(ctx, m.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if prev != nil {
			if prev.Status == models.DiscountStatusPending || prev.Status == models.DiscountStatusApplied {
				return fmt.Errorf("%w: mapping %d already has discount %s in status %s",
					ErrInconsistentState, m.ID, prev.DiscountCode, prev.Status)
			}
			result.PossibleDuplicate = prev.DiscountCode == code && prev.DiscountAmount == in.DiscountAmount
		}
		if in.Pending && m.DiscountCode != nil {
			// refunded discount fields stay on the mapping until a new discount replaces them
			m.ClearDiscount()
			m.PaymentStatus = paymentStatus(m, s.tolerance)
			if err := tx.SaveMapping(ctx, m); err != nil {
				return err
			}
		}

		d := &models.DiscountAccounting{
			MappingID:      m.ID,
			BranchCode:     m.BranchCode,
			DiscountCode:   code,
			OriginalAmount: in.OriginalAmount,
			DiscountAmount: in.DiscountAmount,
			FinalAmount:    in.FinalAmount,
			Status:         models.DiscountStatusPending,
			Reason:         reason,
			AppliedBy:      in.AppliedBy,
		}
		if err := tx.CreateDiscount(ctx, d); err != nil {
			return err
		}

		kind := models.AmountChangeKindDiscountStatus
		if !in.Pending {
			if err := s.bookDiscount(ctx, tx, m, d); err != nil {
				return err
			}
			kind = models.AmountChangeKindDiscountApplied
		}

		_, err = s.appendAudit(ctx, tx, AmountChange{
			MappingID: m.ID,
			Kind:      kind,
			OldAmount: max(before, 0),
			NewAmount: in.FinalAmount,
			Reason:    fmt.Sprintf("%s [%s]", reason, d.Status),
			ChangedBy: in.AppliedBy,
			Snapshot:  d,
		})
		result.Discount = d
		mapping = m
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.PossibleDuplicate {
		log.Warnf("[Billing] Discount %s recorded again on mapping %d with identical amounts", code, mapping.ID)
	}
	log.Infof("[Billing] Discount %s (%s) recorded on mapping %d as %s", code, FormatAmount(in.DiscountAmount), mapping.ID, result.Discount.Status)
	if result.Discount.Status == models.DiscountStatusApplied {
		s.publish(ctx, Event{
			Kind:       EventDiscountApplied,
			MappingID:  mapping.ID,
			DiscountID: result.Discount.ID,
			BranchCode: mapping.BranchCode,
			Status:     result.Discount.Status,
			Amount:     result.Discount.DiscountAmount,
		})
	}
	return result, nil
}

// bookDiscount moves a discount to APPLIED, writes its revenue and discount
// ledger entries and copies it onto the mapping.
func (s *Service) bookDiscount(ctx context.Context, tx Repository, m *models.ConsultantClientMapping, d *models.DiscountAccounting) error {
	now := s.now()
	d.Status = models.DiscountStatusApplied
	d.AppliedAt = &now
	d.StatusChangedAt = &now
	if err := tx.UpdateDiscount(ctx, d); err != nil {
		return err
	}

	discountID := d.ID
	entries := []models.FinancialTransaction{
		{
			Type:        models.TransactionTypeIncome,
			Amount:      d.OriginalAmount,
			Description: fmt.Sprintf("Package revenue before discount %s", d.DiscountCode),
		},
		{
			Type:        models.TransactionTypeDiscount,
			Amount:      ledgerAmount(models.TransactionTypeDiscount, d.DiscountAmount),
			Description: fmt.Sprintf("Discount %s", d.DiscountCode),
		},
	}
	for i := range entries {
		e := &entries[i]
		e.Reference = uuid.NewString()
		e.MappingID = m.ID
		e.DiscountID = &discountID
		e.Status = models.TransactionStatusCompleted
		e.BranchCode = m.BranchCode
		e.TransactionDate = now
		if err := tx.CreateTransaction(ctx, e); err != nil {
			return err
		}
	}

	code := d.DiscountCode
	discount := d.DiscountAmount
	original := d.OriginalAmount
	final := d.FinalAmount
	m.DiscountCode = &code
	m.DiscountAmount = &discount
	m.OriginalAmount = &original
	m.FinalAmount = &final
	m.DiscountAppliedAt = &now
	m.PaymentStatus = paymentStatus(m, s.tolerance)
	return tx.SaveMapping(ctx, m)
}

// Refund returns part of the paid amount. It decrements the paid amount and
// books a REFUND ledger entry.
func (s *Service) Refund(ctx context.Context, in RefundRequest) (*models.FinancialTransaction, error) {
	if err := requireActor(in.Reason, in.RefundedBy); err != nil {
		return nil, err
	}
	if in.Amount <= 0 {
		return nil, validationFailed("refund amount must be positive")
	}

	var entry *models.FinancialTransaction
	var mapping *models.ConsultantClientMapping
	var duplicate bool
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		m, err := tx.LockMapping(ctx, in.MappingID)
		if err != nil {
			return wrapNotFound(err, "mapping %d", in.MappingID)
		}
		if in.Amount > m.PaidAmount {
			return validationFailed("refund %s exceeds paid amount %s", FormatAmount(in.Amount), FormatAmount(m.PaidAmount))
		}
		duplicate, err = tx.ExistsTransaction(ctx, m.ID, models.TransactionTypeRefund, ledgerAmount(models.TransactionTypeRefund, in.Amount))
		if err != nil {
			return err
		}

		old := m.PaidAmount
		m.PaidAmount -= in.Amount
		m.PaymentStatus = paymentStatus(m, s.tolerance)
		if err := tx.SaveMapping(ctx, m); err != nil {
			return err
		}

		entry = &models.FinancialTransaction{
			Reference:       uuid.NewString(),
			MappingID:       m.ID,
			Type:            models.TransactionTypeRefund,
			Amount:          ledgerAmount(models.TransactionTypeRefund, in.Amount),
			Status:          models.TransactionStatusCompleted,
			BranchCode:      m.BranchCode,
			Description:     in.Reason,
			TransactionDate: s.now(),
		}
		if err := tx.CreateTransaction(ctx, entry); err != nil {
			return err
		}

		_, err = s.appendAudit(ctx, tx, AmountChange{
			MappingID: m.ID,
			Kind:      models.AmountChangeKindRefund,
			OldAmount: old,
			NewAmount: m.PaidAmount,
			Reason:    in.Reason,
			ChangedBy: in.RefundedBy,
			Snapshot:  entry,
		})
		mapping = m
		return err
	})
	if err != nil {
		return nil, err
	}

	if duplicate {
		log.Warnf("[Billing] Refund of %s on mapping %d matches an earlier refund", FormatAmount(in.Amount), mapping.ID)
	}
	log.Infof("[Billing] Refunded %s on mapping %d", FormatAmount(in.Amount), mapping.ID)
	s.publish(ctx, Event{Kind: EventRefunded, MappingID: mapping.ID, BranchCode: mapping.BranchCode, Amount: in.Amount})
	return entry, nil
}

// UpdateDiscountStatus moves the latest discount record of a mapping to a new
// status. Only PENDING->APPLIED, APPLIED->CANCELLED and APPLIED->REFUNDED are
// allowed.
func (s *Service) UpdateDiscountStatus(ctx context.Context, in StatusRequest) (*models.DiscountAccounting, error) {
	to, err := ParseDiscountStatus(in.Status)
	if err != nil {
		return nil, err
	}
	if err := requireActor(in.Reason, in.ChangedBy); err != nil {
		return nil, err
	}

	var out *models.DiscountAccounting
	var mapping *models.ConsultantClientMapping
	err = s.repo.Transaction(ctx, func(tx Repository) error {
		m, err := tx.LockMapping(ctx, in.MappingID)
		if err != nil {
			return wrapNotFound(err, "mapping %d", in.MappingID)
		}
		d, err := tx.LatestDiscount(ctx, m.ID)
		if err != nil {
			return wrapNotFound(err, "discount record for mapping %d", m.ID)
		}
		if err := checkTransition(DiscountStatus(d.Status), to); err != nil {
			return err
		}

		before := FromMapping(m).ExpectedAmount()
		now := s.now()
		switch to {
		case StatusApplied:
			if err := s.bookDiscount(ctx, tx, m, d); err != nil {
				return err
			}
		case StatusCancelled:
			if _, err := tx.UpdateTransactionsStatus(ctx, d.ID, models.TransactionStatusCancelled); err != nil {
				return err
			}
			m.ClearDiscount()
			m.PaymentStatus = paymentStatus(m, s.tolerance)
			if err := tx.SaveMapping(ctx, m); err != nil {
				return err
			}
		case StatusRefunded:
			if _, err := tx.UpdateTransactionsStatus(ctx, d.ID, models.TransactionStatusRefunded); err != nil {
				return err
			}
		}
		if to != StatusApplied {
			d.Status = string(to)
			d.StatusChangedAt = &now
			if err := tx.UpdateDiscount(ctx, d); err != nil {
				return err
			}
		}

		_, err = s.appendAudit(ctx, tx, AmountChange{
			MappingID: m.ID,
			Kind:      models.AmountChangeKindDiscountStatus,
			OldAmount: max(before, 0),
			NewAmount: max(FromMapping(m).ExpectedAmount(), 0),
			Reason:    fmt.Sprintf("discount %s %s: %s", d.DiscountCode, strings.ToLower(string(to)), in.Reason),
			ChangedBy: in.ChangedBy,
			Snapshot:  d,
		})
		out = d
		mapping = m
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Infof("[Billing] Discount %d on mapping %d is now %s", out.ID, mapping.ID, out.Status)
	s.publish(ctx, Event{
		Kind:       EventDiscountStatusChanged,
		MappingID:  mapping.ID,
		DiscountID: out.ID,
		BranchCode: mapping.BranchCode,
		Status:     out.Status,
		Amount:     out.DiscountAmount,
	})
	return out, nil
}

// GetDiscountAccounting returns the latest discount record of a mapping and
// its ledger entries.
func (s *Service) GetDiscountAccounting(ctx context.Context, id uint) (*DiscountView, error) {
	if _, err := s.GetMapping(ctx, id); err != nil {
		return nil, err
	}
	view := &DiscountView{MappingID: id, Status: DiscountStatusNotCreated, Transactions: []models.FinancialTransaction{}}

	d, err := s.repo.LatestDiscount(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return view, nil
	}
	if err != nil {
		return nil, err
	}
	view.Status = d.Status
	view.Discount = d

	txs, err := s.repo.ListTransactions(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, t := range txs {
		if t.DiscountID != nil && *t.DiscountID == d.ID {
			view.Transactions = append(view.Transactions, t)
		}
	}
	return view, nil
}

// CalculateDiscount prices a mapping against the discount catalog. A given
// code must be eligible; it competes with auto-applicable discounts and the
// larger discount wins.
func (s *Service) CalculateDiscount(ctx context.Context, id uint, code string) (DiscountCalculation, error) {
	m, err := s.GetMapping(ctx, id)
	if err != nil {
		return DiscountCalculation{}, err
	}
	original := accurateAmount(m)
	now := s.now()

	var manual *models.PackageDiscount
	if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
		manual, err = s.repo.FindPackageDiscount(ctx, code)
		if err != nil {
			return DiscountCalculation{}, wrapNotFound(err, "discount code %s", code)
		}
		usage, err := s.repo.CountDiscountUsage(ctx, manual.Code)
		if err != nil {
			return DiscountCalculation{}, err
		}
		if err := CheckEligibility(manual, original, usage, now); err != nil {
			return DiscountCalculation{}, err
		}
	}

	catalog, err := s.repo.ListPackageDiscounts(ctx, true)
	if err != nil {
		return DiscountCalculation{}, err
	}
	candidates := []*models.PackageDiscount{manual}
	for i := range catalog {
		d := &catalog[i]
		if !d.AutoApplicable || (manual != nil && d.Code == manual.Code) {
			continue
		}
		usage, err := s.repo.CountDiscountUsage(ctx, d.Code)
		if err != nil {
			return DiscountCalculation{}, err
		}
		if CheckEligibility(d, original, usage, now) == nil {
			candidates = append(candidates, d)
		}
	}

	best, value := SelectBest(original, candidates...)
	auto := best != nil && best != manual
	return newDiscountCalculation(m.ID, original, best, value, auto), nil
}

// CreatePackageDiscount adds a discount code to the catalog.
func (s *Service) CreatePackageDiscount(ctx context.Context, d *models.PackageDiscount) (*models.PackageDiscount, error) {
	if d == nil {
		return nil, invalidArgument("discount is required")
	}
	d.ID = 0
	d.Code = strings.ToUpper(strings.TrimSpace(d.Code))
	d.Type = strings.ToUpper(strings.TrimSpace(d.Type))
	if err := d.Validate(); err != nil {
		return nil, invalidArgument("%v", err)
	}
	if d.StartDate != nil && d.EndDate != nil && d.EndDate.Before(*d.StartDate) {
		return nil, invalidArgument("end_date must not be before start_date")
	}
	if _, err := s.repo.FindPackageDiscount(ctx, d.Code); err == nil {
		return nil, invalidArgument("discount code %s already exists", d.Code)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err := s.repo.CreatePackageDiscount(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) ListPackageDiscounts(ctx context.Context, activeOnly bool) ([]models.PackageDiscount, error) {
	return s.repo.ListPackageDiscounts(ctx, activeOnly)
}
