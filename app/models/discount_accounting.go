package models

import "time"

const (
	DiscountStatusPending   = "PENDING"
	DiscountStatusApplied   = "APPLIED"
	DiscountStatusCancelled = "CANCELLED"
	DiscountStatusRefunded  = "REFUNDED"
)

// DiscountAccounting records a discount granted on a mapping's billed amount
// together with its lifecycle status.
type DiscountAccounting struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	MappingID       uint       `gorm:"not null;index" json:"mapping_id"`
	BranchCode      string     `gorm:"type:varchar(50);index:idx_discount_accountings_branch_status,priority:1" json:"branch_code"`
	DiscountCode    string     `gorm:"type:varchar(50);not null;index" json:"discount_code"`
	OriginalAmount  int64      `gorm:"not null" json:"original_amount"`
	DiscountAmount  int64      `gorm:"not null" json:"discount_amount"`
	FinalAmount     int64      `gorm:"not null" json:"final_amount"`
	Status          string     `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_discount_accountings_branch_status,priority:2" json:"status"`
	Reason          string     `gorm:"type:text" json:"reason"`
	AppliedBy       string     `gorm:"type:varchar(150)" json:"applied_by"`
	AppliedAt       *time.Time `gorm:"type:timestamp;default:null" json:"applied_at,omitempty"`
	StatusChangedAt *time.Time `gorm:"type:timestamp;default:null" json:"status_changed_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
