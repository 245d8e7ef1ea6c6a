package jobqueue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobType(t *testing.T) {
	tests := []struct {
		name     string
		jobType  JobType
		expected string
	}{
		{"ERP Sync", JobTypeERPSync, "erp_sync"},
		{"Ledger Archive", JobTypeLedgerArchive, "ledger_archive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.jobType))
		})
	}
}

func TestJobStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   JobStatus
		expected string
	}{
		{"Pending", JobStatusPending, "pending"},
		{"Processing", JobStatusProcessing, "processing"},
		{"Completed", JobStatusCompleted, "completed"},
		{"Failed", JobStatusFailed, "failed"},
		{"Retrying", JobStatusRetrying, "retrying"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.status))
		})
	}
}

func TestJob_IsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		job       *Job
		retryable bool
	}{
		{"Failed job with retries remaining", &Job{Status: JobStatusFailed, RetryCount: 1, MaxRetries: 3}, true},
		{"Failed job without retries remaining", &Job{Status: JobStatusFailed, RetryCount: 3, MaxRetries: 3}, false},
		{"Completed job", &Job{Status: JobStatusCompleted, RetryCount: 0, MaxRetries: 3}, false},
		{"Pending job", &Job{Status: JobStatusPending, RetryCount: 0, MaxRetries: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.job.IsRetryable())
		})
	}
}

func TestJob_StatusTransitions(t *testing.T) {
	job := &Job{Status: JobStatusPending, MaxRetries: 3}
	before := time.Now()

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)
	assert.False(t, job.UpdatedAt.Before(before))

	job.MarkAsFailed("erp unreachable")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "erp unreachable", job.ErrorMsg)
	assert.Equal(t, 1, job.RetryCount)
	assert.True(t, job.IsRetryable())

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMsg)
}

func TestERPSyncJobPayload_MapRoundTrip(t *testing.T) {
	occurred := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	payload := ERPSyncJobPayload{
		Event:      "discount.applied",
		MappingID:  7,
		DiscountID: 3,
		BranchCode: "HQ",
		Status:     "APPLIED",
		Amount:     50000,
		OccurredAt: occurred,
	}

	data := payload.ToMap()
	assert.Equal(t, "2026-03-01T10:00:00Z", data["occurred_at"])

	// Payloads travel through Redis as JSON, so numbers come back as float64.
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	var stored map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &stored))

	result, err := ERPSyncJobPayloadFromMap(stored)
	require.NoError(t, err)
	assert.True(t, occurred.Equal(result.OccurredAt))
	result.OccurredAt = occurred
	assert.Equal(t, payload, *result)
}

func TestLedgerArchiveJobPayload_MapRoundTrip(t *testing.T) {
	payload := LedgerArchiveJobPayload{MappingID: 12, BranchCode: "B1", Trigger: "mapping.refunded"}

	result, err := LedgerArchiveJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)
	assert.Equal(t, payload, *result)
}

func TestPayloadFromMapErrors(t *testing.T) {
	invalid := map[string]interface{}{"invalid": make(chan int)}

	erp, err := ERPSyncJobPayloadFromMap(invalid)
	assert.Error(t, err)
	assert.Nil(t, erp)

	archive, err := LedgerArchiveJobPayloadFromMap(map[string]interface{}{"mapping_id": "not-a-number"})
	assert.Error(t, err)
	assert.Nil(t, archive)
}

func TestJobSerialization(t *testing.T) {
	now := time.Now()
	job := &Job{
		ID:         "test-job-123",
		Type:       JobTypeLedgerArchive,
		Status:     JobStatusPending,
		Payload:    map[string]interface{}{"mapping_id": float64(1)},
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: 3,
	}

	jsonData, err := json.Marshal(job)
	require.NoError(t, err)

	var result Job
	require.NoError(t, json.Unmarshal(jsonData, &result))

	assert.Equal(t, job.ID, result.ID)
	assert.Equal(t, job.Type, result.Type)
	assert.Equal(t, job.Status, result.Status)
	assert.Equal(t, job.Payload, result.Payload)
	assert.Equal(t, job.MaxRetries, result.MaxRetries)
}
