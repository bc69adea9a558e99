package observability

import (
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// HealthSnapshot aggregates process metrics for the health endpoint.
type HealthSnapshot struct {
	Status          string  `json:"status"`
	CPUPercent      float64 `json:"cpu_percent"`
	RSSMb           uint64  `json:"rss_mb"`
	AllocMemMb      uint64  `json:"alloc_mem_mb"`
	NumGC           uint32  `json:"num_gc"`
	NumGoroutine    int     `json:"num_goroutine"`
	StoredMessages  uint64  `json:"stored_messages"`
	LiveSubscribers int     `json:"live_subscribers"`
	UptimeSeconds   int64   `json:"uptime_seconds"`
}

// Manager samples process health on demand.
// Samples are computed per request, there is no background collector.
type Manager struct {
	log       *slog.Logger
	proc      *process.Process
	startedAt time.Time
}

func NewManager(log *slog.Logger) *Manager {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		// Process introspection failing is not fatal, the snapshot
		// simply omits CPU and RSS.
		log.Warn("Process handle unavailable, system metrics disabled", "error", err)
		proc = nil
	}
	return &Manager{log: log, proc: proc, startedAt: time.Now().UTC()}
}

// Snapshot returns the current process metrics combined with the store
// and registry figures provided by the caller.
func (m *Manager) Snapshot(storedMessages uint64, liveSubscribers int) HealthSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snapshot := HealthSnapshot{
		Status:          "ok",
		AllocMemMb:      memStats.Alloc / 1024 / 1024,
		NumGC:           memStats.NumGC,
		NumGoroutine:    runtime.NumGoroutine(),
		StoredMessages:  storedMessages,
		LiveSubscribers: liveSubscribers,
		UptimeSeconds:   int64(time.Since(m.startedAt).Seconds()),
	}

	if m.proc != nil {
		if cpu, err := m.proc.CPUPercent(); err == nil {
			snapshot.CPUPercent = cpu
		}
		if mem, err := m.proc.MemoryInfo(); err == nil && mem != nil {
			snapshot.RSSMb = mem.RSS / 1024 / 1024
		}
	}
	return snapshot
}
