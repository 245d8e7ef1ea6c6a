package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/ConsultLedger/app/models"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type EventKind string

const (
	EventAmountChanged         EventKind = "amount.changed"
	EventDiscountApplied       EventKind = "discount.applied"
	EventDiscountStatusChanged EventKind = "discount.status_changed"
	EventRefunded              EventKind = "mapping.refunded"
)

// Event describes a committed billing change.
type Event struct {
	Kind       EventKind
	MappingID  uint
	DiscountID uint
	BranchCode string
	Status     string
	Amount     int64
	At         time.Time
}

// EventSink receives events after the change was committed. Failures are
// logged and never roll back the change.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

// SummaryCache stores rendered discount summaries.
type SummaryCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Service implements amount consistency checking, amount validation, the
// amount audit ledger and discount accounting on top of a Repository.
type Service struct {
	repo       Repository
	tolerance  int64
	now        func() time.Time
	events     EventSink
	cache      SummaryCache
	summaryTTL time.Duration
}

type Option func(*Service)

// WithTolerance sets the amount comparison tolerance. Negative values are ignored.
func WithTolerance(tolerance int64) Option {
	return func(s *Service) {
		if tolerance >= 0 {
			s.tolerance = tolerance
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithEventSink(sink EventSink) Option {
	return func(s *Service) { s.events = sink }
}

func WithSummaryCache(cache SummaryCache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		s.summaryTTL = ttl
	}
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		tolerance:  DefaultTolerance,
		now:        time.Now,
		summaryTTL: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Tolerance() int64 {
	return s.tolerance
}

func (s *Service) publish(ctx context.Context, e Event) {
	if s.events == nil {
		return
	}
	if e.At.IsZero() {
		e.At = s.now()
	}
	if err := s.events.Publish(ctx, e); err != nil {
		log.Warnf("[Billing] Failed to publish %s for mapping %d: %v", e.Kind, e.MappingID, err)
	}
}

// PaidAmountUpdate is an operator request to change the recorded paid amount.
// ExpectedVersion 0 skips the version check; Force bypasses amount validation.
type PaidAmountUpdate struct {
	MappingID       uint
	Amount          int64
	ExpectedVersion int64
	Reason          string
	ChangedBy       string
	Force           bool
}

type SessionUpdate struct {
	MappingID       uint
	TotalSessions   int
	ExpectedVersion int64
	Reason          string
	ChangedBy       string
}

// CreateMapping prices a new consultant-client mapping and records the
// initial paid amount in the audit ledger.
func (s *Service) CreateMapping(ctx context.Context, m *models.ConsultantClientMapping, changedBy string) (*models.ConsultantClientMapping, error) {
	if m == nil {
		return nil, invalidArgument("mapping is required")
	}
	if strings.TrimSpace(changedBy) == "" {
		return nil, invalidArgument("changed_by is required")
	}
	m.ID = 0
	m.Version = 1
	m.BranchCode = strings.TrimSpace(m.BranchCode)
	m.ClearDiscount()
	if err := m.Validate(); err != nil {
		return nil, invalidArgument("%v", err)
	}
	if !FromMapping(m).InRange() {
		return nil, invalidArgument("package total exceeds the maximum of %s", FormatAmount(MaxAmount))
	}
	m.PaymentStatus = paymentStatus(m, s.tolerance)

	err := s.repo.Transaction(ctx, func(tx Repository) error {
		if err := tx.CreateMapping(ctx, m); err != nil {
			return err
		}
		_, err := s.appendAudit(ctx, tx, AmountChange{
			MappingID: m.ID,
			Kind:      models.AmountChangeKindAmount,
			OldAmount: 0,
			NewAmount: m.PaidAmount,
			Reason:    "mapping created",
			ChangedBy: changedBy,
			Snapshot:  FromMapping(m),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[Billing] Created mapping %d (consultant=%d client=%d)", m.ID, m.ConsultantID, m.ClientID)
	return m, nil
}

func (s *Service) GetMapping(ctx context.Context, id uint) (*models.ConsultantClientMapping, error) {
	m, err := s.repo.FindMapping(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, "mapping %d", id)
	}
	return m, nil
}

func (s *Service) ListMappings(ctx context.Context, filter MappingFilter) ([]models.ConsultantClientMapping, error) {
	return s.repo.ListMappings(ctx, filter)
}

// CheckConsistency loads a mapping and checks its stored amounts. A discount
// on the mapping must be backed by an applied discount record.
func (s *Service) CheckConsistency(ctx context.Context, id uint) (ConsistencyResult, error) {
	m, err := s.GetMapping(ctx, id)
	if err != nil {
		return ConsistencyResult{}, err
	}
	return s.checkMapping(ctx, s.repo, m)
}

func (s *Service) checkMapping(ctx context.Context, repo Repository, m *models.ConsultantClientMapping) (ConsistencyResult, error) {
	snap := FromMapping(m)
	res := CheckConsistency(snap, s.tolerance)
	if !res.IsConsistent || snap.Discount() <= 0 {
		return res, nil
	}

	d, err := repo.LatestDiscount(ctx, m.ID)
	if errors.Is(err, ErrNotFound) {
		return missingDiscountRecord(res, discountCodeOf(snap)), nil
	}
	if err != nil {
		return ConsistencyResult{}, err
	}
	if d.Status != models.DiscountStatusApplied && d.Status != models.DiscountStatusRefunded {
		return missingDiscountRecord(res, discountCodeOf(snap)), nil
	}
	return res, nil
}

// ValidateAmount checks a proposed amount for a stored mapping. Unknown
// mappings fail with ErrNotFound.
func (s *Service) ValidateAmount(ctx context.Context, id uint, amount int64) (ValidationResult, error) {
	m, err := s.GetMapping(ctx, id)
	if err != nil {
		return ValidationResult{}, err
	}
	return ValidateAmount(FromMapping(m), amount, s.tolerance), nil
}

// RecordAmountChange appends an audit entry for an existing mapping.
func (s *Service) RecordAmountChange(ctx context.Context, change AmountChange) (*models.AmountChangeLog, error) {
	var entry *models.AmountChangeLog
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		m, err := tx.FindMapping(ctx, change.MappingID)
		if err != nil {
			return wrapNotFound(err, "mapping %d", change.MappingID)
		}
		if change.Snapshot == nil {
			change.Snapshot = FromMapping(m)
		}
		entry, err = s.appendAudit(ctx, tx, change)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) ListAmountChanges(ctx context.Context, id uint) ([]models.AmountChangeLog, error) {
	if _, err := s.GetMapping(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListAudit(ctx, id)
}

// UpdatePaidAmount changes the paid amount of a mapping under a row lock and
// a version check, writing the audit entry in the same transaction.
func (s *Service) UpdatePaidAmount(ctx context.Context, in PaidAmountUpdate) (*models.ConsultantClientMapping, error) {
	if in.Amount < 0 {
		return nil, invalidArgument("amount must not be negative")
	}
	if in.Amount > MaxAmount {
		return nil, invalidArgument("amount exceeds the maximum of %s", FormatAmount(MaxAmount))
	}
	if err := requireActor(in.Reason, in.ChangedBy); err != nil {
		return nil, err
	}

	var out *models.ConsultantClientMapping
	var old int64
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		m, err := tx.LockMapping(ctx, in.MappingID)
		if err != nil {
			return wrapNotFound(err, "mapping %d", in.MappingID)
		}
		if err := checkVersion(m, in.ExpectedVersion); err != nil {
			return err
		}
		if !in.Force {
			v := ValidateAmount(FromMapping(m), in.Amount, s.tolerance)
			if !v.IsValid {
				return validationFailed("%s", v.Message)
			}
		}

		old = m.PaidAmount
		m.PaidAmount = in.Amount
		m.PaymentStatus = paymentStatus(m, s.tolerance)
		if err := tx.SaveMapping(ctx, m); err != nil {
			return err
		}

		reason := in.Reason
		if in.Force {
			reason = "[forced] " + reason
		}
		_, err = s.appendAudit(ctx, tx, AmountChange{
			MappingID: m.ID,
			Kind:      models.AmountChangeKindAmount,
			OldAmount: old,
			NewAmount: m.PaidAmount,
			Reason:    reason,
			ChangedBy: in.ChangedBy,
			Snapshot:  FromMapping(m),
		})
		out = m
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Infof("[Billing] Mapping %d paid amount %s -> %s by %s", out.ID, FormatAmount(old), FormatAmount(out.PaidAmount), in.ChangedBy)
	s.publish(ctx, Event{Kind: EventAmountChanged, MappingID: out.ID, BranchCode: out.BranchCode, Amount: out.PaidAmount})
	return out, nil
}

// AdjustSessions changes the number of purchased sessions.
func (s *Service) AdjustSessions(ctx context.Context, in SessionUpdate) (*models.ConsultantClientMapping, error) {
	if err := requireActor(in.Reason, in.ChangedBy); err != nil {
		return nil, err
	}
	return s.mutateSessions(ctx, in.MappingID, in.ExpectedVersion, in.Reason, in.ChangedBy, func(m *models.ConsultantClientMapping) {
		m.TotalSessions = in.TotalSessions
	})
}

// ConsumeSession marks count sessions of a mapping as used.
func (s *Service) ConsumeSession(ctx context.Context, id uint, count int, changedBy string) (*models.ConsultantClientMapping, error) {
	if count <= 0 {
		return nil, invalidArgument("count must be positive")
	}
	reason := fmt.Sprintf("%d session(s) used", count)
	if err := requireActor(reason, changedBy); err != nil {
		return nil, err
	}
	return s.mutateSessions(ctx, id, 0, reason, changedBy, func(m *models.ConsultantClientMapping) {
		m.UsedSessions += count
	})
}

func (s *Service) mutateSessions(ctx context.Context, id uint, expectedVersion int64, reason, changedBy string, mutate func(m *models.ConsultantClientMapping)) (*models.ConsultantClientMapping, error) {
	var out *models.ConsultantClientMapping
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		m, err := tx.LockMapping(ctx, id)
		if err != nil {
			return wrapNotFound(err, "mapping %d", id)
		}
		if err := checkVersion(m, expectedVersion); err != nil {
			return err
		}

		oldGross := FromMapping(m).GrossAmount()
		mutate(m)
		if res := CheckConsistency(FromMapping(m), s.tolerance); res.Reason == ReasonSessionCountInvalid {
			return invalidArgument("%s", res.Message)
		}
		if !FromMapping(m).InRange() {
			return invalidArgument("package total exceeds the maximum of %s", FormatAmount(MaxAmount))
		}
		m.PaymentStatus = paymentStatus(m, s.tolerance)
		if err := tx.SaveMapping(ctx, m); err != nil {
			return err
		}

		_, err = s.appendAudit(ctx, tx, AmountChange{
			MappingID: m.ID,
			Kind:      models.AmountChangeKindSessions,
			OldAmount: max(oldGross, 0),
			NewAmount: max(FromMapping(m).GrossAmount(), 0),
			Reason:    reason,
			ChangedBy: changedBy,
			Snapshot:  FromMapping(m),
		})
		out = m
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AccurateTransactionAmount returns the amount a transaction for the mapping
// should carry: the explicit package price, else the package total, else the
// paid amount.
func (s *Service) AccurateTransactionAmount(ctx context.Context, id uint) (int64, error) {
	m, err := s.GetMapping(ctx, id)
	if err != nil {
		return 0, err
	}
	return accurateAmount(m), nil
}

func accurateAmount(m *models.ConsultantClientMapping) int64 {
	if m.PackagePrice != nil && *m.PackagePrice > 0 {
		return *m.PackagePrice
	}
	if gross := FromMapping(m).GrossAmount(); gross > 0 {
		return gross
	}
	return m.PaidAmount
}

// IsDuplicateTransaction reports whether a completed ledger entry of the
// same type and amount already exists for the mapping. amount is given as a
// positive value for every type.
func (s *Service) IsDuplicateTransaction(ctx context.Context, id uint, txType string, amount int64) (bool, error) {
	txType = strings.ToUpper(strings.TrimSpace(txType))
	switch txType {
	case models.TransactionTypeIncome, models.TransactionTypeDiscount, models.TransactionTypeRefund:
	default:
		return false, invalidArgument("unknown transaction type %q", txType)
	}
	if amount < 0 {
		return false, invalidArgument("amount must not be negative")
	}
	if _, err := s.GetMapping(ctx, id); err != nil {
		return false, err
	}
	return s.repo.ExistsTransaction(ctx, id, txType, ledgerAmount(txType, amount))
}

// ledgerAmount returns the signed amount a ledger entry of txType stores.
func ledgerAmount(txType string, amount int64) int64 {
	if txType == models.TransactionTypeIncome {
		return amount
	}
	return -amount
}

// IntegratedAmountInfo gathers amounts, discount, consistency and ledger
// entries of a mapping.
func (s *Service) IntegratedAmountInfo(ctx context.Context, id uint) (*AmountInfo, error) {
	m, err := s.GetMapping(ctx, id)
	if err != nil {
		return nil, err
	}
	consistency, err := s.checkMapping(ctx, s.repo, m)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.ListTransactions(ctx, id)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []models.FinancialTransaction{}
	}

	info := &AmountInfo{
		MappingID:         m.ID,
		PackageName:       m.PackageName,
		BranchCode:        m.BranchCode,
		TotalSessions:     m.TotalSessions,
		UsedSessions:      m.UsedSessions,
		RemainingSessions: m.RemainingSessions(),
		PricePerSession:   m.PricePerSession,
		GrossAmount:       FromMapping(m).GrossAmount(),
		PaidAmount:        m.PaidAmount,
		AccurateAmount:    accurateAmount(m),
		OutstandingAmount: max(FromMapping(m).ExpectedAmount()-m.PaidAmount, 0),
		PaymentStatus:     m.PaymentStatus,
		Version:           m.Version,
		Consistency:       consistency,
		Transactions:      txs,
		FormattedPaid:     FormatAmount(m.PaidAmount),
		CheckedAt:         s.now(),
	}

	d, err := s.repo.LatestDiscount(ctx, id)
	switch {
	case err == nil:
		info.Discount = d
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	return info, nil
}

func (s *Service) appendAudit(ctx context.Context, repo Repository, change AmountChange) (*models.AmountChangeLog, error) {
	if change.OldAmount < 0 || change.NewAmount < 0 {
		return nil, invalidArgument("audit amounts must not be negative")
	}
	if err := requireActor(change.Reason, change.ChangedBy); err != nil {
		return nil, err
	}
	kind := change.Kind
	if kind == "" {
		kind = models.AmountChangeKindAmount
	}

	entry := &models.AmountChangeLog{
		EntryID:   uuid.NewString(),
		MappingID: change.MappingID,
		Kind:      kind,
		OldAmount: change.OldAmount,
		NewAmount: change.NewAmount,
		Reason:    strings.TrimSpace(change.Reason),
		ChangedBy: strings.TrimSpace(change.ChangedBy),
		CreatedAt: s.now(),
	}
	if change.Snapshot != nil {
		raw, err := json.Marshal(change.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("marshal audit snapshot: %w", err)
		}
		entry.Snapshot = datatypes.JSON(raw)
	}
	if err := repo.AppendAudit(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func paymentStatus(m *models.ConsultantClientMapping, tolerance int64) string {
	expected := FromMapping(m).ExpectedAmount()
	switch {
	case m.PaidAmount == 0 && expected > tolerance:
		return models.PaymentStatusUnpaid
	case withinTolerance(m.PaidAmount, expected, tolerance):
		return models.PaymentStatusPaid
	case m.PaidAmount < expected:
		return models.PaymentStatusPartial
	default:
		return models.PaymentStatusOverpaid
	}
}

func checkVersion(m *models.ConsultantClientMapping, expected int64) error {
	if expected != 0 && m.Version != expected {
		return fmt.Errorf("%w (mapping %d is at version %d, expected %d)", ErrConcurrentUpdate, m.ID, m.Version, expected)
	}
	return nil
}

func requireActor(reason, changedBy string) error {
	if strings.TrimSpace(reason) == "" {
		return invalidArgument("reason is required")
	}
	if strings.TrimSpace(changedBy) == "" {
		return invalidArgument("changed_by is required")
	}
	return nil
}

func wrapNotFound(err error, format string, args ...any) error {
	if errors.Is(err, ErrNotFound) {
		return notFound(format, args...)
	}
	return err
}

func discountCodeOf(b MappingBilling) string {
	if b.DiscountCode == nil {
		return ""
	}
	return *b.DiscountCode
}
