package jobqueue

import (
	"context"
	"errors"

	"github.com/ManuelReschke/ConsultLedger/internal/pkg/billing"
)

// Enqueuer is the part of the queue the event sink needs
type Enqueuer interface {
	EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error)
}

// EventSink turns committed billing events into background jobs.
// Discount events go to the ERP; every event refreshes the ledger archive.
type EventSink struct {
	queue   Enqueuer
	erp     bool
	archive bool
}

func NewEventSink(queue Enqueuer, erpSync, ledgerArchive bool) *EventSink {
	return &EventSink{queue: queue, erp: erpSync, archive: ledgerArchive}
}

func (s *EventSink) Publish(ctx context.Context, event billing.Event) error {
	var errs []error

	if s.erp && syncsToERP(event.Kind) {
		payload := ERPSyncJobPayload{
			Event:      string(event.Kind),
			MappingID:  event.MappingID,
			DiscountID: event.DiscountID,
			BranchCode: event.BranchCode,
			Status:     event.Status,
			Amount:     event.Amount,
			OccurredAt: event.At,
		}
		if _, err := s.queue.EnqueueJob(ctx, JobTypeERPSync, payload.ToMap()); err != nil {
			errs = append(errs, err)
		}
	}

	if s.archive {
		payload := LedgerArchiveJobPayload{
			MappingID:  event.MappingID,
			BranchCode: event.BranchCode,
			Trigger:    string(event.Kind),
		}
		if _, err := s.queue.EnqueueJob(ctx, JobTypeLedgerArchive, payload.ToMap()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func syncsToERP(kind billing.EventKind) bool {
	switch kind {
	case billing.EventDiscountApplied, billing.EventDiscountStatusChanged, billing.EventRefunded:
		return true
	}
	return false
}
