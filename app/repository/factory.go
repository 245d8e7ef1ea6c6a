package repository

import (
	"sync"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ConsultLedger/internal/pkg/billing"
)

// Factory hands out the process-wide repository instances
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetUserRepository returns the operator repository instance
func (f *Factory) GetUserRepository() UserRepository {
	return f.GetRepositories().User
}

// GetBillingRepository returns the mapping, audit and discount store
func (f *Factory) GetBillingRepository() billing.Repository {
	return f.GetRepositories().Billing
}

// NewBillingService builds a billing service on the factory's repository.
func (f *Factory) NewBillingService(opts ...billing.Option) *billing.Service {
	return billing.NewService(f.GetBillingRepository(), opts...)
}

// Global factory instance
var globalFactory *Factory
var factoryOnce sync.Once

// InitializeFactory initializes the global repository factory
func InitializeFactory(db *gorm.DB) {
	factoryOnce.Do(func() {
		globalFactory = NewFactory(db)
	})
}

// GetGlobalFactory returns the global repository factory instance
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("Repository factory not initialized. Call InitializeFactory first.")
	}
	return globalFactory
}

// GetGlobalRepositories returns the global repositories instance
func GetGlobalRepositories() *Repositories {
	return GetGlobalFactory().GetRepositories()
}
