package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	AmountChangeKindAmount          = "AMOUNT_CHANGE"
	AmountChangeKindDiscountApplied = "DISCOUNT_APPLIED"
	AmountChangeKindDiscountStatus  = "DISCOUNT_STATUS"
	AmountChangeKindRefund          = "REFUND"
	AmountChangeKindSessions        = "SESSION_CHANGE"
)

// AmountChangeLog is one entry of the append-only amount audit ledger. Entries
// are written once and never updated or deleted.
type AmountChangeLog struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	EntryID   string         `gorm:"type:varchar(36);not null;uniqueIndex" json:"entry_id"`
	MappingID uint           `gorm:"not null;index:idx_amount_change_logs_mapping_created,priority:1" json:"mapping_id"`
	Kind      string         `gorm:"type:varchar(32);not null;index" json:"kind"`
	OldAmount int64          `gorm:"not null" json:"old_amount"`
	NewAmount int64          `gorm:"not null" json:"new_amount"`
	Reason    string         `gorm:"type:text;not null" json:"reason"`
	ChangedBy string         `gorm:"type:varchar(150);not null" json:"changed_by"`
	Snapshot  datatypes.JSON `gorm:"type:json" json:"snapshot,omitempty"`
	CreatedAt time.Time      `gorm:"not null;index:idx_amount_change_logs_mapping_created,priority:2" json:"created_at"`
}
