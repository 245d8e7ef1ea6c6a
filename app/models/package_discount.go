package models

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DiscountTypePercentage = "PERCENTAGE"
	DiscountTypeFixed      = "FIXED"
)

// PackageDiscount is a discount code offered on consultation packages.
// For PERCENTAGE discounts Value is expressed in basis points (1000 = 10%),
// for FIXED discounts it is an amount in the smallest currency unit.
type PackageDiscount struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Code           string     `gorm:"type:varchar(50);not null;uniqueIndex" json:"code" validate:"required,max=50"`
	Name           string     `gorm:"type:varchar(150);not null" json:"name" validate:"required,max=150"`
	Description    string     `gorm:"type:text" json:"description"`
	Type           string     `gorm:"type:varchar(20);not null" json:"type" validate:"oneof=PERCENTAGE FIXED"`
	Value          int64      `gorm:"not null" json:"value" validate:"gt=0"`
	MinimumAmount  int64      `gorm:"not null;default:0" json:"minimum_amount" validate:"gte=0"`
	UsageLimit     int64      `gorm:"not null;default:0" json:"usage_limit" validate:"gte=0"`
	StartDate      *time.Time `gorm:"type:timestamp;default:null" json:"start_date,omitempty"`
	EndDate        *time.Time `gorm:"type:timestamp;default:null" json:"end_date,omitempty"`
	AutoApplicable bool       `gorm:"default:false;index" json:"auto_applicable"`
	Active         bool       `gorm:"not null;index" json:"active"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (d *PackageDiscount) Validate() error {
	v := validator.New()
	if err := v.Struct(d); err != nil {
		return err
	}
	if d.Type == DiscountTypePercentage && d.Value > 10000 {
		return errors.New("percentage discount cannot exceed 10000 basis points")
	}
	return nil
}
