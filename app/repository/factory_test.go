package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/ConsultLedger/internal/pkg/billing"
)

func TestFactoryReturnsSameRepositories(t *testing.T) {
	f := NewFactory(nil)

	assert.Same(t, f.GetRepositories(), f.GetRepositories())
	assert.NotNil(t, f.GetUserRepository())
	assert.NotNil(t, f.GetBillingRepository())
	assert.Same(t, f.GetBillingRepository(), f.GetRepositories().Billing)
}

func TestFactoryBillingService(t *testing.T) {
	f := NewFactory(nil)

	svc := f.NewBillingService(billing.WithTolerance(5))
	assert.Equal(t, int64(5), svc.Tolerance())
}

func TestGlobalFactoryRequiresInitialization(t *testing.T) {
	prev := globalFactory
	t.Cleanup(func() { globalFactory = prev })

	globalFactory = nil
	assert.Panics(t, func() { GetGlobalFactory() })
}
