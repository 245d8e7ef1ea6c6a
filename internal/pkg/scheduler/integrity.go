package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ConsultLedger/internal/pkg/billing"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/env"
)

const DefaultIntegrityCron = "0 3 * * *"

// IntegrityChecker is the part of the billing service the sweep needs
type IntegrityChecker interface {
	BranchCodes(ctx context.Context) ([]string, error)
	ValidateIntegrity(ctx context.Context, branch string) (*billing.IntegrityReport, error)
}

// IntegritySweep validates the discount ledger of every branch on a cron schedule
type IntegritySweep struct {
	checker IntegrityChecker
	cron    string
	timeout time.Duration
}

// NewIntegritySweep creates a sweep; an empty expression falls back to INTEGRITY_CHECK_CRON
func NewIntegritySweep(checker IntegrityChecker, cronExpr string) *IntegritySweep {
	if cronExpr == "" {
		cronExpr = env.GetEnv("INTEGRITY_CHECK_CRON", DefaultIntegrityCron)
	}
	return &IntegritySweep{
		checker: checker,
		cron:    cronExpr,
		timeout: 10 * time.Minute,
	}
}

// Start registers the sweep and starts the scheduler in the background.
// The caller stops the returned scheduler on shutdown.
func (s *IntegritySweep) Start() (*gocron.Scheduler, error) {
	scheduler := gocron.NewScheduler(time.Local)
	scheduler.SingletonModeAll()

	if _, err := scheduler.Cron(s.cron).Do(s.run); err != nil {
		return nil, fmt.Errorf("invalid integrity cron %q: %w", s.cron, err)
	}

	scheduler.StartAsync()
	log.Infof("[Integrity] Nightly integrity sweep scheduled (%s)", s.cron)
	return scheduler, nil
}

func (s *IntegritySweep) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		log.Errorf("[Integrity] Sweep failed: %v", err)
	}
}

// RunOnce checks all branches and returns one report per branch. A failing
// branch is logged and skipped.
func (s *IntegritySweep) RunOnce(ctx context.Context) ([]*billing.IntegrityReport, error) {
	branches, err := s.checker.BranchCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}

	reports := make([]*billing.IntegrityReport, 0, len(branches))
	issues := 0
	for _, branch := range branches {
		report, err := s.checker.ValidateIntegrity(ctx, branch)
		if err != nil {
			log.Errorf("[Integrity] Branch %q could not be validated: %v", branch, err)
			continue
		}
		reports = append(reports, report)
		if report.IsValid {
			log.Debugf("[Integrity] Branch %q ok (%d applied discounts)", branch, report.AppliedCount)
			continue
		}
		issues += len(report.Issues)
		for _, issue := range report.Issues {
			log.Warnf("[Integrity] Branch %q mapping %d discount %d: %s", branch, issue.MappingID, issue.DiscountID, issue.Problem)
		}
	}

	log.Infof("[Integrity] Sweep finished: %d branches checked, %d issues", len(reports), issues)
	return reports, nil
}
