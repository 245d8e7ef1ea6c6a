package jobqueue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/ConsultLedger/internal/pkg/env"
)

// resetManager drops the singleton so each test starts from a fresh manager.
func resetManager(t *testing.T) {
	t.Helper()
	globalManager = nil
	managerOnce = sync.Once{}
	t.Cleanup(func() {
		globalManager = nil
		managerOnce = sync.Once{}
	})
}

func TestGetManager(t *testing.T) {
	resetManager(t)

	first := GetManager()
	assert.Same(t, first, GetManager())
	assert.Same(t, first.queue, first.GetQueue())
	assert.Equal(t, workerCount(), first.queue.workers)
	assert.False(t, first.IsRunning())

	resetManager(t)
	assert.NotSame(t, first, GetManager())
}

func TestManager_StopWithoutStart(t *testing.T) {
	resetManager(t)

	manager := GetManager()
	manager.Stop()
	assert.False(t, manager.IsRunning())
}

func TestManager_Configure(t *testing.T) {
	resetManager(t)

	manager := GetManager()
	erp := &ERPClient{URL: "http://erp.local/hook"}
	manager.Configure(Handlers{ERP: erp})

	assert.Same(t, erp, manager.queue.currentHandlers().ERP)
	assert.Nil(t, manager.queue.currentHandlers().Archive)
}

func TestWorkerCountFromEnv(t *testing.T) {
	prev := env.Env
	t.Cleanup(func() { env.Env = prev })

	tests := []struct {
		raw  string
		want int
	}{
		{"8", 8},
		{"0", defaultWorkerCount},
		{"-2", defaultWorkerCount},
		{"many", defaultWorkerCount},
		{"", defaultWorkerCount},
	}
	for _, tt := range tests {
		env.Env = map[string]string{"JOB_WORKERS": tt.raw}
		assert.Equal(t, tt.want, workerCount(), "JOB_WORKERS=%q", tt.raw)
	}
}
