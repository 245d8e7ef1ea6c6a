package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	PaymentStatusUnpaid   = "UNPAID"
	PaymentStatusPartial  = "PARTIAL"
	PaymentStatusPaid     = "PAID"
	PaymentStatusOverpaid = "OVERPAID"
)

// ConsultantClientMapping is the billing relationship between a consultant and
// a client. Amounts are stored in the smallest currency unit. Rows are only
// ever soft deleted so the amount history stays reconstructible.
type ConsultantClientMapping struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	ConsultantID      uint           `gorm:"not null;index" json:"consultant_id" validate:"required"`
	ClientID          uint           `gorm:"not null;index" json:"client_id" validate:"required"`
	PackageName       string         `gorm:"type:varchar(150)" json:"package_name" validate:"max=150"`
	BranchCode        string         `gorm:"type:varchar(50);index" json:"branch_code" validate:"max=50"`
	TotalSessions     int            `gorm:"not null;default:0" json:"total_sessions" validate:"gte=0"`
	UsedSessions      int            `gorm:"not null;default:0" json:"used_sessions" validate:"gte=0,ltefield=TotalSessions"`
	PricePerSession   int64          `gorm:"not null;default:0" json:"price_per_session" validate:"gte=0,lte=100000000000000"`
	PackagePrice      *int64         `gorm:"default:null" json:"package_price,omitempty" validate:"omitempty,gte=0,lte=100000000000000"`
	PaidAmount        int64          `gorm:"not null;default:0" json:"paid_amount" validate:"gte=0,lte=100000000000000"`
	PaymentStatus     string         `gorm:"type:varchar(20);not null;default:'UNPAID';index" json:"payment_status"`
	DiscountCode      *string        `gorm:"type:varchar(50);default:null;index" json:"discount_code,omitempty"`
	DiscountAmount    *int64         `gorm:"default:null" json:"discount_amount,omitempty"`
	OriginalAmount    *int64         `gorm:"default:null" json:"original_amount,omitempty"`
	FinalAmount       *int64         `gorm:"default:null" json:"final_amount,omitempty"`
	DiscountAppliedAt *time.Time     `gorm:"type:timestamp;default:null" json:"discount_applied_at,omitempty"`
	Version           int64          `gorm:"not null;default:1" json:"version"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

func (m *ConsultantClientMapping) Validate() error {
	v := validator.New()

	return v.Struct(m)
}

// RemainingSessions returns how many purchased sessions are still unused.
func (m *ConsultantClientMapping) RemainingSessions() int {
	if m.UsedSessions >= m.TotalSessions {
		return 0
	}
	return m.TotalSessions - m.UsedSessions
}

// ClearDiscount removes all discount bookkeeping from the mapping.
func (m *ConsultantClientMapping) ClearDiscount() {
	m.DiscountCode = nil
	m.DiscountAmount = nil
	m.OriginalAmount = nil
	m.FinalAmount = nil
	m.DiscountAppliedAt = nil
}
