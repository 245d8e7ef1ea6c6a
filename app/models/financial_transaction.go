package models

import "time"

const (
	TransactionTypeIncome   = "INCOME"
	TransactionTypeDiscount = "DISCOUNT"
	TransactionTypeRefund   = "REFUND"
)

const (
	TransactionStatusCompleted = "COMPLETED"
	TransactionStatusCancelled = "CANCELLED"
	TransactionStatusRefunded  = "REFUNDED"
)

// FinancialTransaction is a ledger line booked against a mapping. Discounts and
// refunds are stored as negative amounts.
type FinancialTransaction struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Reference       string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"reference"`
	MappingID       uint      `gorm:"not null;index:idx_financial_transactions_mapping_type,priority:1" json:"mapping_id"`
	DiscountID      *uint     `gorm:"default:null;index" json:"discount_id,omitempty"`
	Type            string    `gorm:"type:varchar(20);not null;index:idx_financial_transactions_mapping_type,priority:2" json:"type"`
	Amount          int64     `gorm:"not null" json:"amount"`
	Status          string    `gorm:"type:varchar(20);not null;default:'COMPLETED'" json:"status"`
	BranchCode      string    `gorm:"type:varchar(50);index:idx_financial_transactions_branch_date,priority:1" json:"branch_code"`
	Description     string    `gorm:"type:varchar(255)" json:"description"`
	TransactionDate time.Time `gorm:"not null;index:idx_financial_transactions_branch_date,priority:2" json:"transaction_date"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
