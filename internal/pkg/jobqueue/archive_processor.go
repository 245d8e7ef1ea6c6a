package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ConsultLedger/app/models"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/s3backup"
)

// LedgerSource loads a mapping together with its audit trail
type LedgerSource interface {
	AuditLedger(ctx context.Context, id uint) (*models.ConsultantClientMapping, []models.AmountChangeLog, error)
}

// ObjectUploader stores archive documents
type ObjectUploader interface {
	UploadBytes(ctx context.Context, objectKey, contentType string, body []byte) (*s3backup.UploadResult, error)
}

// LedgerArchive is the document written for one mapping
type LedgerArchive struct {
	MappingID  uint                            `json:"mapping_id"`
	BranchCode string                          `json:"branch_code"`
	Trigger    string                          `json:"trigger"`
	ArchivedAt time.Time                       `json:"archived_at"`
	Mapping    *models.ConsultantClientMapping `json:"mapping"`
	Entries    []models.AmountChangeLog        `json:"entries"`
}

// LedgerArchiver snapshots a mapping's audit ledger into object storage
type LedgerArchiver struct {
	source   LedgerSource
	uploader ObjectUploader
	keyFor   func(branch string, mappingID uint, at time.Time) string
	now      func() time.Time
}

func NewLedgerArchiver(source LedgerSource, uploader ObjectUploader, keyFor func(string, uint, time.Time) string) *LedgerArchiver {
	return &LedgerArchiver{
		source:   source,
		uploader: uploader,
		keyFor:   keyFor,
		now:      time.Now,
	}
}

// Archive uploads the current ledger of the payload's mapping.
func (a *LedgerArchiver) Archive(ctx context.Context, payload LedgerArchiveJobPayload) (*s3backup.UploadResult, error) {
	mapping, entries, err := a.source.AuditLedger(ctx, payload.MappingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger of mapping %d: %w", payload.MappingID, err)
	}

	at := a.now().UTC()
	doc := LedgerArchive{
		MappingID:  mapping.ID,
		BranchCode: mapping.BranchCode,
		Trigger:    payload.Trigger,
		ArchivedAt: at,
		Mapping:    mapping,
		Entries:    entries,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ledger archive: %w", err)
	}

	return a.uploader.UploadBytes(ctx, a.keyFor(mapping.BranchCode, mapping.ID, at), "application/json", body)
}

// processLedgerArchiveJob processes a ledger archive job
func (q *Queue) processLedgerArchiveJob(ctx context.Context, job *Job) error {
	payload, err := LedgerArchiveJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to parse ledger archive job payload: %w", err)
	}

	archiver := q.currentHandlers().Archive
	if archiver == nil {
		return fmt.Errorf("ledger archiving is not configured")
	}

	result, err := archiver.Archive(ctx, *payload)
	if err != nil {
		return err
	}
	log.Infof("[LedgerArchive] Archived mapping %d to s3://%s/%s (%d bytes)", payload.MappingID, result.BucketName, result.ObjectKey, result.Size)
	return nil
}
