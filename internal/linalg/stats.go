package linalg

import (
	"maps"
	"sync"
	"time"
)

// Stats reports device memory use and kernel activity of a Context.
type Stats struct {
	// Bytes held by live device buffers.
	TotalAllocatedBytes uint64
	// Peak of TotalAllocatedBytes since the context was created.
	PeakMemoryBytes uint64
	// Number of live device buffers.
	ActiveBuffers int64
	// Number of unreleased completion events.
	ActiveEvents int64
	// Launch counts and device time per kernel entry point.
	Kernels map[string]KernelStats
	// Operations recomputed on the host after an accelerator failure.
	Fallbacks int64
}

// KernelStats aggregates the launches of one kernel.
type KernelStats struct {
	Launches   int64
	DeviceTime time.Duration
}

type statsRecorder struct {
	mu sync.RWMutex
	s  Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{s: Stats{Kernels: make(map[string]KernelStats)}}
}

func (r *statsRecorder) bufferAllocated(size uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.TotalAllocatedBytes += size
	r.s.ActiveBuffers++
	if r.s.TotalAllocatedBytes > r.s.PeakMemoryBytes {
		r.s.PeakMemoryBytes = r.s.TotalAllocatedBytes
	}
}

func (r *statsRecorder) bufferReleased(size uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.s.TotalAllocatedBytes >= size {
		r.s.TotalAllocatedBytes -= size
	}
	r.s.ActiveBuffers--
}

func (r *statsRecorder) eventCreated()  { r.addEvents(1) }
func (r *statsRecorder) eventReleased() { r.addEvents(-1) }

func (r *statsRecorder) addEvents(n int64) {
	r.mu.Lock()
	r.s.ActiveEvents += n
	r.mu.Unlock()
}

func (r *statsRecorder) kernelRan(name string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.s.Kernels[name]
	k.Launches++
	k.DeviceTime += d
	r.s.Kernels[name] = k
}

func (r *statsRecorder) fallback() {
	r.mu.Lock()
	r.s.Fallbacks++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.s
	s.Kernels = maps.Clone(r.s.Kernels)
	return s
}
