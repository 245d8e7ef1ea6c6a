package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeERPSync       JobType = "erp_sync"
	JobTypeLedgerArchive JobType = "ledger_archive"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// ERPSyncJobPayload is the discount change forwarded to the ERP system
type ERPSyncJobPayload struct {
	Event      string    `json:"event"`
	MappingID  uint      `json:"mapping_id"`
	DiscountID uint      `json:"discount_id,omitempty"`
	BranchCode string    `json:"branch_code"`
	Status     string    `json:"status,omitempty"`
	Amount     int64     `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ToMap converts the payload to a map for storage
func (p ERPSyncJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"event":       p.Event,
		"mapping_id":  p.MappingID,
		"discount_id": p.DiscountID,
		"branch_code": p.BranchCode,
		"status":      p.Status,
		"amount":      p.Amount,
		"occurred_at": p.OccurredAt.UTC().Format(time.RFC3339),
	}
}

// ERPSyncJobPayloadFromMap creates a payload from a map
func ERPSyncJobPayloadFromMap(data map[string]interface{}) (*ERPSyncJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload ERPSyncJobPayload
	if err := json.Unmarshal(jsonData, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// LedgerArchiveJobPayload names the mapping whose audit ledger gets archived
type LedgerArchiveJobPayload struct {
	MappingID  uint   `json:"mapping_id"`
	BranchCode string `json:"branch_code"`
	Trigger    string `json:"trigger"`
}

func (p LedgerArchiveJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"mapping_id":  p.MappingID,
		"branch_code": p.BranchCode,
		"trigger":     p.Trigger,
	}
}

func LedgerArchiveJobPayloadFromMap(data map[string]interface{}) (*LedgerArchiveJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var payload LedgerArchiveJobPayload
	if err := json.Unmarshal(jsonData, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
