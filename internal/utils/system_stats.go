package utils

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"photo-indexer/internal/core/indexer"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sirupsen/logrus"
)

var (
	lastCPUTime        time.Time
	lastCPUUsage       float64
	cpuUsageMutex      sync.Mutex
	cpuUsageSampleRate = 500 * time.Millisecond
)

// SystemStats enthält aktuelle System- und Anwendungsstatistiken
type SystemStats struct {
	// CPU-Statistiken
	NumCPU     int     `json:"num_cpu"`
	GoRoutines int     `json:"go_routines"`
	CPUUsage   float64 `json:"cpu_usage"`

	// Speicher
	MemoryUsage   float64 `json:"memory_usage"` // Prozent des Systemspeichers
	MemoryTotal   uint64  `json:"memory_total"`
	MemoryAlloc   uint64  `json:"memory_alloc"`
	MemorySys     uint64  `json:"memory_sys"`
	MemoryAllocHR string  `json:"memory_alloc_hr"`

	// Worker-Pool-Statistiken
	WorkerCount int `json:"worker_count"`
	ActiveJobs  int `json:"active_jobs"`

	Timestamp time.Time `json:"timestamp"`
}

// FormatBytes formatiert Bytes in lesbare Einheiten (KB, MB, GB)
func FormatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d Bytes", bytes)
	}
}

// GetCPUUsage berechnet die CPU-Auslastung mit gopsutil.
// Innerhalb von 500ms wird der gecachte Wert zurückgegeben.
func GetCPUUsage() float64 {
	cpuUsageMutex.Lock()
	defer cpuUsageMutex.Unlock()

	if time.Since(lastCPUTime) < cpuUsageSampleRate && lastCPUTime.Unix() > 0 {
		return lastCPUUsage
	}

	percentages, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil {
		log.Warnf("Failed to measure CPU usage: %v", err)
		return 0.0
	}

	var usage float64
	if len(percentages) > 0 {
		usage = percentages[0] // Gesamtauslastung aller Kerne
	}

	lastCPUTime = time.Now()
	lastCPUUsage = usage

	return usage
}

// GetSystemStats erfasst System- und Indexierungsstatistiken
func GetSystemStats(status indexer.Status) *SystemStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := &SystemStats{
		NumCPU:        runtime.NumCPU(),
		GoRoutines:    runtime.NumGoroutine(),
		CPUUsage:      GetCPUUsage(),
		MemoryAlloc:   memStats.Alloc,
		MemorySys:     memStats.Sys,
		MemoryAllocHR: FormatBytes(memStats.Alloc),
		WorkerCount:   status.Workers,
		ActiveJobs:    status.ActiveJobs,
		Timestamp:     time.Now(),
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		log.Debugf("Failed to read virtual memory stats: %v", err)
	} else {
		stats.MemoryUsage = vm.UsedPercent
		stats.MemoryTotal = vm.Total
	}

	return stats
}
