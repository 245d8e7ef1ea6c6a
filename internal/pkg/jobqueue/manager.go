package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ConsultLedger/internal/pkg/env"
)

const defaultWorkerCount = 5

// Manager manages the global job queue and background tasks
type Manager struct {
	queue       *Queue
	statsTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			queue:  NewQueue(workerCount()),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Configure hands the processors their collaborators
func (m *Manager) Configure(h Handlers) {
	m.queue.SetHandlers(h)
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	interval := time.Duration(env.GetEnvInt("JOB_STATS_INTERVAL", 300)) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	m.statsTicker = time.NewTicker(interval)
	m.wg.Add(1)
	go m.statsWorker(m.stopCh, m.statsTicker.C)

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.statsTicker != nil {
		m.statsTicker.Stop()
	}

	// Signal workers to stop
	close(m.stopCh)
	m.stopCh = nil
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// statsWorker periodically logs queue depth
func (m *Manager) statsWorker(stop <-chan struct{}, tick <-chan time.Time) {
	defer m.wg.Done()
	for {
		select {
		case <-stop:
			log.Info("[JobQueue Manager] Stats worker stopping")
			return
		case <-tick:
			m.logStats(context.Background())
		}
	}
}

func (m *Manager) logStats(ctx context.Context) {
	pending, err := m.queue.GetQueueSize(ctx)
	if err != nil {
		log.Errorf("[JobQueue Manager] Failed to read queue size: %v", err)
		return
	}
	processing, err := m.queue.GetProcessingSize(ctx)
	if err != nil {
		log.Errorf("[JobQueue Manager] Failed to read processing size: %v", err)
		return
	}
	log.Debugf("[JobQueue Manager] pending=%d processing=%d", pending, processing)
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func workerCount() int {
	if n := env.GetEnvInt("JOB_WORKERS", defaultWorkerCount); n > 0 {
		return n
	}
	return defaultWorkerCount
}
