package billing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuelReschke/ConsultLedger/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]string
}

func (c *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func newTestService(opts ...Option) (*Service, *MemoryRepository) {
	repo := NewMemoryRepository()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewService(repo, opts...), repo
}

func seedMapping(t *testing.T, svc *Service, paid int64) *models.ConsultantClientMapping {
	t.Helper()
	m, err := svc.CreateMapping(context.Background(), &models.ConsultantClientMapping{
		ConsultantID:    1,
		ClientID:        2,
		PackageName:     "10 sessions",
		BranchCode:      "HQ",
		TotalSessions:   10,
		PricePerSession: 50000,
		PaidAmount:      paid,
	}, "tester")
	require.NoError(t, err)
	return m
}

func TestService_CreateMapping(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	m := seedMapping(t, svc, 500000)
	assert.NotZero(t, m.ID)
	assert.Equal(t, int64(1), m.Version)
	assert.Equal(t, models.PaymentStatusPaid, m.PaymentStatus)

	entries, err := repo.ListAudit(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(500000), entries[0].NewAmount)
	assert.NotEmpty(t, entries[0].EntryID)

	_, err = svc.CreateMapping(ctx, &models.ConsultantClientMapping{ConsultantID: 1, ClientID: 2, TotalSessions: 1, UsedSessions: 2}, "tester")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestService_CheckConsistencyExamples(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	paid := seedMapping(t, svc, 500000)
	res, err := svc.CheckConsistency(ctx, paid.ID)
	require.NoError(t, err)
	assert.True(t, res.IsConsistent)

	short := seedMapping(t, svc, 450000)
	res, err = svc.CheckConsistency(ctx, short.ID)
	require.NoError(t, err)
	assert.False(t, res.IsConsistent)
	assert.Equal(t, int64(50000), res.Breakdown.Difference)
}

func TestService_CheckConsistencyRequiresDiscountRecord(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	m := &models.ConsultantClientMapping{
		ConsultantID:    1,
		ClientID:        2,
		TotalSessions:   10,
		PricePerSession: 50000,
		PaidAmount:      450000,
		DiscountCode:    ptr("WELCOME"),
		DiscountAmount:  ptr(int64(50000)),
	}
	require.NoError(t, repo.CreateMapping(ctx, m))

	res, err := svc.CheckConsistency(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, res.IsConsistent)
	assert.Equal(t, ReasonMissingDiscountRecord, res.Reason)
}

func TestService_UnknownMapping(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CheckConsistency(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.ValidateAmount(ctx, 404, 100)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.RecordAmountChange(ctx, AmountChange{MappingID: 404, OldAmount: 1, NewAmount: 2, Reason: "x", ChangedBy: "y"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Refund(ctx, RefundRequest{MappingID: 404, Amount: 1, Reason: "x", RefundedBy: "y"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_RecordAmountChange(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	m := seedMapping(t, svc, 0)

	entry, err := svc.RecordAmountChange(ctx, AmountChange{
		MappingID: m.ID,
		OldAmount: 0,
		NewAmount: 250000,
		Reason:    "first installment",
		ChangedBy: "front-desk",
	})
	require.NoError(t, err)
	assert.Equal(t, models.AmountChangeKindAmount, entry.Kind)
	assert.Equal(t, testNow, entry.CreatedAt)
	assert.NotEmpty(t, entry.Snapshot)

	_, err = svc.RecordAmountChange(ctx, AmountChange{MappingID: m.ID, NewAmount: 1, ChangedBy: "front-desk"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = svc.RecordAmountChange(ctx, AmountChange{MappingID: m.ID, OldAmount: -1, Reason: "x", ChangedBy: "front-desk"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	entries, err := svc.ListAmountChanges(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "mapping created", entries[0].Reason)
	assert.Equal(t, "first installment", entries[1].Reason)
}

func TestService_UpdatePaidAmount(t *testing.T) {
	sink := &recordingSink{}
	svc, repo := newTestService(WithEventSink(sink))
	ctx := context.Background()
	m := seedMapping(t, svc, 0)

	updated, err := svc.UpdatePaidAmount(ctx, PaidAmountUpdate{
		MappingID:       m.ID,
		Amount:          500000,
		ExpectedVersion: 1,
		Reason:          "paid in full",
		ChangedBy:       "front-desk",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, models.PaymentStatusPaid, updated.PaymentStatus)
	assert.Equal(t, []EventKind{EventAmountChanged}, sink.kinds())

	_, err = svc.UpdatePaidAmount(ctx, PaidAmountUpdate{
		MappingID:       m.ID,
		Amount:          50000,
		ExpectedVersion: 1,
		Reason:          "stale",
		ChangedBy:       "front-desk",
	})
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
	assert.ErrorIs(t, err, ErrInconsistentState)

	_, err = svc.UpdatePaidAmount(ctx, PaidAmountUpdate{MappingID: m.ID, Amount: 300000, Reason: "odd", ChangedBy: "front-desk"})
	assert.ErrorIs(t, err, ErrValidationFailed)

	forced, err := svc.UpdatePaidAmount(ctx, PaidAmountUpdate{MappingID: m.ID, Amount: 300000, Reason: "odd", ChangedBy: "manager", Force: true})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPartial, forced.PaymentStatus)

	entries, err := repo.ListAudit(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(0), entries[1].OldAmount)
	assert.Equal(t, int64(500000), entries[1].NewAmount)
	assert.True(t, strings.HasPrefix(entries[2].Reason, "[forced]"))
}

func TestService_UpdatePaidAmountFailureLeavesNoAudit(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	m := seedMapping(t, svc, 0)

	_, err := svc.UpdatePaidAmount(ctx, PaidAmountUpdate{MappingID: m.ID, Amount: 123, Reason: "typo", ChangedBy: "front-desk"})
	require.ErrorIs(t, err, ErrValidationFailed)

	entries, err := repo.ListAudit(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	stored, err := repo.FindMapping(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.PaidAmount)
	assert.Equal(t, int64(1), stored.Version)
}

func TestService_ConcurrentUpdatesWithSameVersion(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	m := seedMapping(t, svc, 0)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.UpdatePaidAmount(ctx, PaidAmountUpdate{
				MappingID:       m.ID,
				Amount:          500000,
				ExpectedVersion: 1,
				Reason:          "paid",
				ChangedBy:       "front-desk",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrConcurrentUpdate)
	}
	assert.Equal(t, 1, succeeded)
}

func TestService_Sessions(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	m := seedMapping(t, svc, 500000)

	used, err := svc.ConsumeSession(ctx, m.ID, 3, "consultant")
	require.NoError(t, err)
	assert.Equal(t, 3, used.UsedSessions)

	_, err = svc.ConsumeSession(ctx, m.ID, 8, "consultant")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.AdjustSessions(ctx, SessionUpdate{MappingID: m.ID, TotalSessions: 2, Reason: "shrink", ChangedBy: "manager"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	grown, err := svc.AdjustSessions(ctx, SessionUpdate{MappingID: m.ID, TotalSessions: 12, Reason: "bonus sessions", ChangedBy: "manager"})
	require.NoError(t, err)
	assert.Equal(t, 12, grown.TotalSessions)
	assert.Equal(t, models.PaymentStatusPartial, grown.PaymentStatus)
}

func TestService_ApplyDiscountExamples(t *testing.T) {
	sink := &recordingSink{}
	svc, repo := newTestService(WithEventSink(sink))
	ctx := context.Background()
	m := seedMapping(t, svc, 450000)

	res, err := svc.ApplyDiscount(ctx, DiscountRequest{
		MappingID:      m.ID,
		Code:           "welcome",
		OriginalAmount: 500000,
		DiscountAmount: 50000,
		FinalAmount:    450000,
		AppliedBy:      "front-desk",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DiscountStatusApplied, res.Discount.Status)
	assert.Equal(t, "WELCOME", res.Discount.DiscountCode)
	assert.False(t, res.PossibleDuplicate)
	assert.Contains(t, sink.kinds(), EventDiscountApplied)

	consistency, err := svc.CheckConsistency(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, consistency.IsConsistent, consistency.Message)

	txs, err := repo.ListTransactions(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, models.TransactionTypeIncome, txs[0].Type)
	assert.Equal(t, int64(500000), txs[0].Amount)
	assert.Equal(t, models.TransactionTypeDiscount, txs[1].Type)
	assert.Equal(t, int64(-50000), txs[1].Amount)

	_, err = svc.ApplyDiscount(ctx, DiscountRequest{
		MappingID:      m.ID,
		Code:           "WELCOME",
		OriginalAmount: 500000,
		DiscountAmount: 50000,
		FinalAmount:    400000,
		AppliedBy:      "front-desk",
	})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestService_ApplyDiscountRejects(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	m := seedMapping(t, svc, 0)

	tests := []struct {
		name string
		req  DiscountRequest
		want error
	}{
		{name: "missing code", req: DiscountRequest{MappingID: m.ID, OriginalAmount: 10, FinalAmount: 10, AppliedBy: "a"}, want: ErrInvalidArgument},
		{name: "missing actor", req: DiscountRequest{MappingID: m.ID, Code: "X", OriginalAmount: 10, FinalAmount: 10}, want: ErrInvalidArgument},
		{name: "negative", req: DiscountRequest{MappingID: m.ID, Code: "X", OriginalAmount: 10, DiscountAmount: -1, FinalAmount: 11, AppliedBy: "a"}, want: ErrInvalidArgument},
		{name: "discount above original", req: DiscountRequest{MappingID: m.ID, Code: "X", OriginalAmount: 10, DiscountAmount: 20, FinalAmount: 0, AppliedBy: "a"}, want: ErrValidationFailed},
		{name: "unknown mapping", req: DiscountRequest{MappingID: 999, Code: "X", OriginalAmount: 10, FinalAmount: 10, AppliedBy: "a"}, want: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ApplyDiscount(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestService_ApplyDiscountRequiresPreviousDiscountClosed(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	m := seedMapping(t, svc, 450000)
	req := DiscountRequest{MappingID: m.ID, Code: "WELCOME", OriginalAmount: 500000, DiscountAmount: 50000, FinalAmount: 450000, AppliedBy: "a"}

	first, err := svc.ApplyDiscount(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.PossibleDuplicate)

	_, err = svc.ApplyDiscount(ctx, req)
	assert.ErrorIs(t, err, ErrInconsistentState)

	other := DiscountRequest{MappingID: m.ID, Code: "OTHER", OriginalAmount: 500000, DiscountAmount: 20000, FinalAmount: 480000, AppliedBy: "a", Pending: true}
	_, err = svc.ApplyDiscount(ctx, other)
	assert.ErrorIs(t, err, ErrInconsistentState)

	consistency, err := svc.CheckConsistency(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, consistency.IsConsistent, consistency.Message)

	cancelled, err := svc.UpdateDiscountStatus(ctx, StatusRequest{MappingID: m.ID, Status: "CANCELLED", Reason: "r", ChangedBy: "a"})
	require.NoError(t, err)
	assert.Equal(t, first.Discount.ID, cancelled.ID)

	second, err := svc.ApplyDiscount(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.PossibleDuplicate)
	assert.NotEqual(t, first.Discount.ID, second.Discount.ID)

	report, err := svc.ValidateIntegrity(ctx, "HQ")
	require.NoError(t, err)
	assert.True(t, report.IsValid, "%v", report.Issues)
}

func TestService_PendingDiscountReplacesRefundedOne(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	m := seedMapping(t, svc, 450000)

	_, err := svc.ApplyDiscount(ctx, DiscountRequest{MappingID: m.ID, Code: "WELCOME", OriginalAmount: 500000, DiscountAmount: 50000, FinalAmount: 450000, AppliedBy: "a"})
	require.NoError(t, err)
	_, err = svc.UpdateDiscountStatus(ctx, StatusRequest{MappingID: m.ID, Status: "REFUNDED", Reason: "r", ChangedBy: "a"})
	require.NoError(t, err)

	pending, err := svc.ApplyDiscount(ctx, DiscountRequest{MappingID: m.ID, Code: "OTHER", OriginalAmount: 500000, DiscountAmount: 50000, FinalAmount: 450000, AppliedBy: "a", Pending: true})
	require.NoError(t, err)
	assert.False(t, pending.PossibleDuplicate)

	stored, err := repo.FindMapping(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.DiscountCode)

	consistency, err := svc.CheckConsistency(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonAmountMismatch, consistency.Reason)

	applied, err := svc.UpdateDiscountStatus(ctx, StatusRequest{MappingID: m.ID, Status: "APPLIED", Reason: "paid", ChangedBy: "a"})
	require.NoError(t, err)
	assert.Equal(t, pending.Discount.ID, applied.ID)

	consistency, err = svc.CheckConsistency(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, consistency.IsConsistent, consistency.Message)
}

func TestService_RejectsAmountsBeyondRange(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateMapping(ctx, &models.ConsultantClientMapping{
		ConsultantID: 1, ClientID: 2, TotalSessions: 4, PricePerSession: 1 << 62,
	}, "tester")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.CreateMapping(ctx, &models.ConsultantClientMapping{
		ConsultantID: 1, ClientID: 2, TotalSessions: 100, PricePerSession: MaxAmount / 10,
	}, "tester")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	m := seedMapping(t, svc, 500000)
	_, err = svc.UpdatePaidAmount(ctx, PaidAmountUpdate{MappingID: m.ID, Amount: MaxAmount + 1, Reason: "r", ChangedBy: "a", Force: true})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.AdjustSessions(ctx, SessionUpdate{MappingID: m.ID, TotalSessions: 1 << 40, Reason: "r", ChangedBy: "a"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.ApplyDiscount(ctx, DiscountRequest{MappingID: m.ID, Code: "X", OriginalAmount: MaxAmount + 1, DiscountAmount: 1, FinalAmount: MaxAmount, AppliedBy: "a"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestService_DiscountLifecycle(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	m := seedMapping(t, svc, 450000)

	view, err := svc.GetDiscountAccounting(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, DiscountStatusNotCreated, view.Status)

	_, err = svc.UpdateDiscountStatus(ctx, StatusRequest{MappingID: m.ID, Status: "APPLIED", Reason: "r", ChangedBy: "a"})
	assert.ErrorIs(t, err, ErrNotFound)

	res, err := svc.ApplyDiscount(ctx, DiscountRequest{
		MappingID: m.ID, Code: "WELCOME", OriginalAmount: 500000, DiscountAmount: 50000, FinalAmount: 450000,
		AppliedBy: "front-desk", Pending: true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DiscountStatusPending, res.Discount.Status)

	stored, err := repo.FindMapping(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.DiscountCode)

	applied, err := svc.UpdateDiscountStatus(ctx, StatusRequest{MappingID: m.ID, Status: "applied", Reason: "payment confirmed", ChangedBy: "a"})
	require.NoError(t, err)
	assert.Equal(t, models.DiscountStatusApplied, applied.Status)
	assert.NotNil(t, applied.AppliedAt)

	view, err = svc.GetDiscountAccounting(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DiscountStatusApplied, view.Status)
	assert.Len(t, view.Transactions, 2)

	cancelled, err := svc.UpdateDiscountStatus(ctx, StatusRequest{MappingID: m.ID, Status: "CANCELLED", Reason: "customer changed plan", ChangedBy: "a"})
	require.NoError(t, err)
	assert.Equal(t, models.DiscountStatusCancelled, cancelled.Status)

	stored, err = repo.FindMapping(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.DiscountCode)
	assert.Nil(t, stored.DiscountAmount)

	txs, err := repo.ListTransactions(ctx, m.ID)
	require.NoError(t, err)
	for _, tx := range txs {
		assert.Equal(t, models.TransactionStatusCancelled, tx.Status)
	}

	_, err = svc.UpdateDiscountStatus(ctx, StatusRequest{MappingID: m.ID, Status: "REFUNDED", Reason: "r", ChangedBy: "a"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, err, ErrInconsistentState)

	_, err = svc.UpdateDiscountStatus(ctx, StatusRequest{MappingID: m.ID, Status: "VOID", Reason: "r", ChangedBy: "a"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestService_DiscountRefundedKeepsMappingConsistent(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	m := seedMapping(t, svc, 450000)

	res, err := svc.ApplyDiscount(ctx, DiscountRequest{MappingID: m.ID, Code: "WELCOME", OriginalAmount: 500000, DiscountAmount: 50000, FinalAmount: 450000, AppliedBy: "a"})
	require.NoError(t, err)

	refunded, err := svc.UpdateDiscountStatus(ctx, StatusRequest{MappingID: m.ID, Status: "REFUNDED", Reason: "package returned", ChangedBy: "a"})
	require.NoError(t, err)
	assert.Equal(t, res.Discount.ID, refunded.ID)
	assert.Equal(t, models.DiscountStatusRefunded, refunded.Status)

	txs, err := repo.ListTransactions(ctx, m.ID)
	require.NoError(t, err)
	for _, tx := range txs {
		assert.Equal(t, models.TransactionStatusRefunded, tx.Status)
	}

	consistency, err := svc.CheckConsistency(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, consistency.IsConsistent)

	_, err = svc.UpdateDiscountStatus(ctx, StatusRequest{MappingID: m.ID, Status: "APPLIED", Reason: "r", ChangedBy: "a"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestService_Refund(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	m := seedMapping(t, svc, 500000)

	entry, err := svc.Refund(ctx, RefundRequest{MappingID: m.ID, Amount: 100000, Reason: "two sessions cancelled", RefundedBy: "front-desk"})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionTypeRefund, entry.Type)
	assert.Equal(t, int64(-100000), entry.Amount)

	stored, err := repo.FindMapping(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(400000), stored.PaidAmount)
	assert.Equal(t, models.PaymentStatusPartial, stored.PaymentStatus)

	_, err = svc.Refund(ctx, RefundRequest{MappingID: m.ID, Amount: 400001, Reason: "too much", RefundedBy: "front-desk"})
	assert.ErrorIs(t, err, ErrValidationFailed)
	_, err = svc.Refund(ctx, RefundRequest{MappingID: m.ID, Amount: 0, Reason: "nothing", RefundedBy: "front-desk"})
	assert.ErrorIs(t, err, ErrValidationFailed)

	entries, err := repo.ListAudit(ctx, m.ID)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, models.AmountChangeKindRefund, last.Kind)
	assert.Equal(t, int64(500000), last.OldAmount)
	assert.Equal(t, int64(400000), last.NewAmount)

	dup, err := svc.IsDuplicateTransaction(ctx, m.ID, "refund", 100000)
	require.NoError(t, err)
	assert.True(t, dup)
	dup, err = svc.IsDuplicateTransaction(ctx, m.ID, "REFUND", 50000)
	require.NoError(t, err)
	assert.False(t, dup)
	_, err = svc.IsDuplicateTransaction(ctx, m.ID, "FEE", 100000)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = svc.IsDuplicateTransaction(ctx, 999, "REFUND", 100000)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_AmountInfo(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	price := int64(480000)
	m := &models.ConsultantClientMapping{ConsultantID: 1, ClientID: 2, TotalSessions: 10, PricePerSession: 50000, PackagePrice: &price, PaidAmount: 200000}
	require.NoError(t, repo.CreateMapping(ctx, m))

	amount, err := svc.AccurateTransactionAmount(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(480000), amount)

	info, err := svc.IntegratedAmountInfo(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500000), info.GrossAmount)
	assert.Equal(t, int64(300000), info.OutstandingAmount)
	assert.Equal(t, "200,000", info.FormattedPaid)
	assert.False(t, info.Consistency.IsConsistent)
	assert.Nil(t, info.Discount)
	assert.Empty(t, info.Transactions)

	dup, err := svc.IsDuplicateTransaction(ctx, m.ID, "income", 500000)
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestService_CalculateDiscount(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	m := seedMapping(t, svc, 0)

	_, err := svc.CreatePackageDiscount(ctx, &models.PackageDiscount{Code: "ten", Name: "Ten percent", Type: "percentage", Value: 1000, AutoApplicable: true, Active: true})
	require.NoError(t, err)
	_, err = svc.CreatePackageDiscount(ctx, &models.PackageDiscount{Code: "FLAT70", Name: "Flat", Type: models.DiscountTypeFixed, Value: 70000, Active: true})
	require.NoError(t, err)
	_, err = svc.CreatePackageDiscount(ctx, &models.PackageDiscount{Code: "TEN", Name: "Again", Type: models.DiscountTypeFixed, Value: 1, Active: true})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	auto, err := svc.CalculateDiscount(ctx, m.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "TEN", auto.DiscountCode)
	assert.True(t, auto.AutoApplied)
	assert.Equal(t, int64(50000), auto.DiscountAmount)
	assert.Equal(t, int64(450000), auto.FinalAmount)

	manual, err := svc.CalculateDiscount(ctx, m.ID, "flat70")
	require.NoError(t, err)
	assert.Equal(t, "FLAT70", manual.DiscountCode)
	assert.False(t, manual.AutoApplied)
	assert.Equal(t, int64(430000), manual.FinalAmount)

	_, err = svc.CalculateDiscount(ctx, m.ID, "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_DiscountSummaryAndIntegrity(t *testing.T) {
	cache := &mapCache{data: map[string]string{}}
	svc, repo := newTestService(WithSummaryCache(cache, time.Minute))
	ctx := context.Background()
	m := seedMapping(t, svc, 450000)

	_, err := svc.ApplyDiscount(ctx, DiscountRequest{MappingID: m.ID, Code: "WELCOME", OriginalAmount: 500000, DiscountAmount: 50000, FinalAmount: 450000, AppliedBy: "a"})
	require.NoError(t, err)
	_, err = svc.Refund(ctx, RefundRequest{MappingID: m.ID, Amount: 100000, Reason: "r", RefundedBy: "a"})
	require.NoError(t, err)

	from, to := testNow.Add(-time.Hour), testNow.Add(time.Hour)
	sum, err := svc.DiscountSummary(ctx, "HQ", from, to)
	require.NoError(t, err)
	assert.False(t, sum.FromCache)
	assert.Equal(t, int64(500000), sum.TotalRevenue)
	assert.Equal(t, int64(50000), sum.TotalDiscount)
	assert.Equal(t, int64(100000), sum.TotalRefund)
	assert.Equal(t, int64(350000), sum.NetRevenue)
	assert.InDelta(t, 10.0, sum.DiscountRate, 0.001)
	assert.Equal(t, 1, sum.RefundCount)

	cached, err := svc.DiscountSummary(ctx, "HQ", from, to)
	require.NoError(t, err)
	assert.True(t, cached.FromCache)
	assert.Equal(t, sum.NetRevenue, cached.NetRevenue)

	_, err = svc.DiscountSummary(ctx, "HQ", to, from)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	report, err := svc.ValidateIntegrity(ctx, "HQ")
	require.NoError(t, err)
	assert.True(t, report.IsValid, "%v", report.Issues)
	assert.Equal(t, 1, report.MatchedPairs)

	stored, err := repo.FindMapping(ctx, m.ID)
	require.NoError(t, err)
	stored.ClearDiscount()
	require.NoError(t, repo.SaveMapping(ctx, stored))

	report, err = svc.ValidateIntegrity(ctx, "HQ")
	require.NoError(t, err)
	assert.False(t, report.IsValid)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, m.ID, report.Issues[0].MappingID)

	branches, err := svc.BranchCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"HQ"}, branches)
}

func TestMemoryRepository_TransactionRollsBack(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	m := &models.ConsultantClientMapping{ConsultantID: 1, ClientID: 1}
	require.NoError(t, repo.CreateMapping(ctx, m))

	boom := errors.New("boom")
	err := repo.Transaction(ctx, func(tx Repository) error {
		require.NoError(t, tx.AppendAudit(ctx, &models.AmountChangeLog{MappingID: m.ID, Reason: "x", ChangedBy: "y"}))
		locked, err := tx.LockMapping(ctx, m.ID)
		require.NoError(t, err)
		locked.PaidAmount = 99
		require.NoError(t, tx.SaveMapping(ctx, locked))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	entries, err := repo.ListAudit(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	stored, err := repo.FindMapping(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.PaidAmount)
	assert.Equal(t, int64(1), stored.Version)
}
