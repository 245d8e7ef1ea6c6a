package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ConsultLedger/app/models"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/billing"
)

// UserRepository defines the interface for operator-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyID(keyID string) (*models.User, error)
	Update(user *models.User) error
	TouchAPIKeyUsage(id uint, at time.Time) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	Search(query string) ([]models.User, error)
}

// Repositories holds the operator store and the billing ledger store.
type Repositories struct {
	User    UserRepository
	Billing billing.Repository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:    NewUserRepository(db),
		Billing: billing.NewRepository(db),
	}
}
