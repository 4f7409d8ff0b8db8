package memory

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"leafscan/internal/logger"
	"leafscan/internal/opencv/safe"

	"gocv.io/x/gocv"
)

const defaultMaxMemory = 512 * 1024 * 1024

// ErrBudgetExceeded means an allocation was refused because it would take
// the tracked Mats past the configured byte budget.
var ErrBudgetExceeded = errors.New("memory budget exceeded")

// Manager accounts for every Mat allocated on behalf of inference requests
// and refuses allocations past its byte budget.
type Manager struct {
	mu           sync.RWMutex
	logger       logger.Logger
	maxMemory    int64
	usedMemory   int64
	reserved     int64
	allocCount   int64
	deallocCount int64
	activeMats   map[uint64]*MatInfo
	ctx          context.Context
	cancel       context.CancelFunc
	interval     time.Duration
	done         chan struct{}
}

type MatInfo struct {
	ID        uint64
	Tag       string
	Size      int64
	Timestamp time.Time
}

// NewManager starts the background statistics monitor. maxMemory <= 0 uses
// the default budget.
func NewManager(log logger.Logger, maxMemory int64) *Manager {
	if maxMemory <= 0 {
		maxMemory = defaultMaxMemory
	}

	ctx, cancel := context.WithCancel(context.Background())
	manager := &Manager{
		logger:     log,
		maxMemory:  maxMemory,
		activeMats: make(map[uint64]*MatInfo),
		ctx:        ctx,
		cancel:     cancel,
		interval:   30 * time.Second,
		done:       make(chan struct{}),
	}

	go manager.monitorMemory()
	return manager
}

// Adopt wraps the result of a gocv operation so it is counted against the
// budget. On refusal mat is closed and the error wraps ErrBudgetExceeded.
func (m *Manager) Adopt(mat gocv.Mat, tag string) (*safe.Mat, error) {
	size := int64(mat.Rows() * mat.Cols() * mat.Channels())
	if err := m.reserve(size); err != nil {
		mat.Close()
		return nil, err
	}
	defer m.unreserve(size)
	return safe.Adopt(mat, m, tag)
}

// reserve holds size bytes against the budget until the Mat is tracked.
func (m *Manager) reserve(size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.usedMemory+m.reserved+size > m.maxMemory {
		return fmt.Errorf("%w: would use %d bytes, limit is %d",
			ErrBudgetExceeded, m.usedMemory+m.reserved+size, m.maxMemory)
	}
	m.reserved += size
	return nil
}

func (m *Manager) unreserve(size int64) {
	m.mu.Lock()
	m.reserved -= size
	m.mu.Unlock()
}

func (m *Manager) TrackAllocation(id uint64, size int64, tag string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.usedMemory += size
	m.allocCount++
	m.activeMats[id] = &MatInfo{
		ID:        id,
		Tag:       tag,
		Size:      size,
		Timestamp: time.Now(),
	}
}

func (m *Manager) TrackDeallocation(id uint64, tag string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deallocCount++
	if info, exists := m.activeMats[id]; exists {
		delete(m.activeMats, id)
		m.usedMemory -= info.Size
	}
}

func (m *Manager) GetUsedMemory() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usedMemory
}

func (m *Manager) GetStats() (allocCount, deallocCount int64, usedMemory int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allocCount, m.deallocCount, m.usedMemory
}

func (m *Manager) GetActiveMatCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.activeMats)
}

func (m *Manager) monitorMemory() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performMonitoringCheck()
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) performMonitoringCheck() {
	alloc, dealloc, used := m.GetStats()
	activeCount := m.GetActiveMatCount()

	m.logger.Debug("MemoryManager", "memory statistics", map[string]interface{}{
		"allocations":   alloc,
		"deallocations": dealloc,
		"used_bytes":    used,
		"active_mats":   activeCount,
	})

	// A finished request leaves nothing behind, so a steady population of
	// Mats means something is not being released.
	if activeCount > 50 {
		m.logOldestMats(5)
	}

	if used > m.maxMemory*8/10 {
		runtime.GC()
	}
}

func (m *Manager) logOldestMats(count int) {
	m.mu.RLock()
	infos := make([]MatInfo, 0, len(m.activeMats))
	for _, info := range m.activeMats {
		infos = append(infos, *info)
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Timestamp.Before(infos[j].Timestamp)
	})

	if len(infos) > count {
		infos = infos[:count]
	}

	now := time.Now()
	for _, info := range infos {
		m.logger.Warning("MemoryManager", "long-lived Mat detected", map[string]interface{}{
			"tag":  info.Tag,
			"size": info.Size,
			"age":  now.Sub(info.Timestamp).String(),
		})
	}
}

func (m *Manager) Shutdown() {
	m.cancel()
	<-m.done

	m.mu.RLock()
	leaked := len(m.activeMats)
	m.mu.RUnlock()

	m.logger.Info("MemoryManager", "shutdown completed", map[string]interface{}{
		"unreleased_mats": leaked,
	})
}
