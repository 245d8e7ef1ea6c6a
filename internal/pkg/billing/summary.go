package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/ManuelReschke/ConsultLedger/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// DiscountSummary aggregates the ledger of a branch over [From, To).
// Cancelled entries are excluded.
type DiscountSummary struct {
	BranchCode    string    `json:"branch_code"`
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	TotalRevenue  int64     `json:"total_revenue"`
	TotalDiscount int64     `json:"total_discount"`
	TotalRefund   int64     `json:"total_refund"`
	NetRevenue    int64     `json:"net_revenue"`
	DiscountRate  float64   `json:"discount_rate"`
	RevenueCount  int       `json:"revenue_count"`
	DiscountCount int       `json:"discount_count"`
	RefundCount   int       `json:"refund_count"`
	GeneratedAt   time.Time `json:"generated_at"`
	FormattedNet  string    `json:"formatted_net"`
	FromCache     bool      `json:"from_cache"`
}

type IntegrityIssue struct {
	MappingID  uint   `json:"mapping_id"`
	DiscountID uint   `json:"discount_id"`
	Problem    string `json:"problem"`
}

type IntegrityReport struct {
	BranchCode   string           `json:"branch_code"`
	CheckedAt    time.Time        `json:"checked_at"`
	AppliedCount int              `json:"applied_count"`
	MatchedPairs int              `json:"matched_pairs"`
	Issues       []IntegrityIssue `json:"issues"`
	IsValid      bool             `json:"is_valid"`
}

func summaryCacheKey(branch string, from, to time.Time) string {
	if branch == "" {
		branch = "all"
	}
	return fmt.Sprintf("billing:summary:%s:%d:%d", branch, from.Unix(), to.Unix())
}

// DiscountSummary computes revenue, discount and refund totals for a branch.
// An empty branch covers all branches. Results are cached when a cache is set.
func (s *Service) DiscountSummary(ctx context.Context, branch string, from, to time.Time) (*DiscountSummary, error) {
	if !to.After(from) {
		return nil, invalidArgument("to must be after from")
	}

	key := summaryCacheKey(branch, from, to)
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			log.Warnf("[Billing] Summary cache get failed for %s: %v", key, err)
		} else if ok {
			var cached DiscountSummary
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				cached.FromCache = true
				return &cached, nil
			}
		}
	}

	txs, err := s.repo.ListTransactionsInPeriod(ctx, branch, from, to)
	if err != nil {
		return nil, err
	}

	sum := &DiscountSummary{BranchCode: branch, From: from, To: to, GeneratedAt: s.now()}
	for _, t := range txs {
		if t.Status == models.TransactionStatusCancelled {
			continue
		}
		switch t.Type {
		case models.TransactionTypeIncome:
			sum.TotalRevenue += t.Amount
			sum.RevenueCount++
		case models.TransactionTypeDiscount:
			sum.TotalDiscount += -t.Amount
			sum.DiscountCount++
		case models.TransactionTypeRefund:
			sum.TotalRefund += -t.Amount
			sum.RefundCount++
		}
	}
	sum.NetRevenue = sum.TotalRevenue - sum.TotalDiscount - sum.TotalRefund
	if sum.TotalRevenue > 0 {
		rate := float64(sum.TotalDiscount) * 100 / float64(sum.TotalRevenue)
		sum.DiscountRate = math.Round(rate*100) / 100
	}
	sum.FormattedNet = FormatAmount(sum.NetRevenue)

	if s.cache != nil {
		if raw, err := json.Marshal(sum); err == nil {
			if err := s.cache.Set(ctx, key, string(raw), s.summaryTTL); err != nil {
				log.Warnf("[Billing] Summary cache set failed for %s: %v", key, err)
			}
		}
	}
	return sum, nil
}

// ValidateIntegrity checks that every applied discount of a branch has its
// revenue and discount ledger entries and is reflected on its mapping.
func (s *Service) ValidateIntegrity(ctx context.Context, branch string) (*IntegrityReport, error) {
	applied, err := s.repo.ListDiscounts(ctx, branch, models.DiscountStatusApplied)
	if err != nil {
		return nil, err
	}

	report := &IntegrityReport{
		BranchCode:   branch,
		CheckedAt:    s.now(),
		AppliedCount: len(applied),
		Issues:       []IntegrityIssue{},
	}
	issue := func(d models.DiscountAccounting, format string, args ...any) {
		report.Issues = append(report.Issues, IntegrityIssue{
			MappingID:  d.MappingID,
			DiscountID: d.ID,
			Problem:    fmt.Sprintf(format, args...),
		})
	}

	for _, d := range applied {
		txs, err := s.repo.ListTransactions(ctx, d.MappingID)
		if err != nil {
			return nil, err
		}
		var income, discount int
		for _, t := range txs {
			if t.DiscountID == nil || *t.DiscountID != d.ID || t.Status != models.TransactionStatusCompleted {
				continue
			}
			switch {
			case t.Type == models.TransactionTypeIncome && t.Amount == d.OriginalAmount:
				income++
			case t.Type == models.TransactionTypeDiscount && t.Amount == -d.DiscountAmount:
				discount++
			}
		}
		if income == 1 && discount == 1 {
			report.MatchedPairs++
		} else {
			issue(d, "expected one revenue and one discount entry, found %d and %d", income, discount)
		}

		latest, err := s.repo.LatestDiscount(ctx, d.MappingID)
		if err != nil {
			return nil, err
		}
		if latest.ID != d.ID {
			issue(d, "superseded by discount %d while still applied", latest.ID)
			continue
		}
		m, err := s.repo.FindMapping(ctx, d.MappingID)
		if err != nil {
			issue(d, "mapping cannot be loaded: %v", err)
			continue
		}
		if m.DiscountAmount == nil || *m.DiscountAmount != d.DiscountAmount ||
			m.DiscountCode == nil || *m.DiscountCode != d.DiscountCode {
			issue(d, "mapping discount fields do not match the discount record")
		}
	}

	report.IsValid = len(report.Issues) == 0
	return report, nil
}

// BranchCodes lists the branches that have mappings.
func (s *Service) BranchCodes(ctx context.Context) ([]string, error) {
	return s.repo.ListBranchCodes(ctx)
}

// AuditLedger returns the mapping and its complete audit ledger.
func (s *Service) AuditLedger(ctx context.Context, id uint) (*models.ConsultantClientMapping, []models.AmountChangeLog, error) {
	m, err := s.GetMapping(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	entries, err := s.repo.ListAudit(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return m, entries, nil
}
