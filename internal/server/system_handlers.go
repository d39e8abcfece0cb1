package server

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemStatsResponse is the payload of GET /api/system/stats
type SystemStatsResponse struct {
	CPUPercent    float64           `json:"cpu_percent"`
	MemoryPercent float64           `json:"memory_percent"`
	DiskFreeMB    float64           `json:"disk_free_mb"`
	DiskPercent   float64           `json:"disk_percent"`
	DataDirMB     float64           `json:"data_dir_mb"`
	Goroutines    int               `json:"goroutines"`
	Databases     []DatabaseStatDTO `json:"databases"`
	CheckedAt     string            `json:"checked_at"`
}

// DatabaseStatDTO summarises one SQLite database
type DatabaseStatDTO struct {
	Name          string  `json:"name"`
	SizeMB        float64 `json:"size_mb"`
	WALSizeMB     float64 `json:"wal_size_mb"`
	PageCount     int64   `json:"page_count"`
	FreelistCount int64   `json:"freelist_count"`
}

// handleSystemStats returns host and database statistics
// GET /api/system/stats
func (s *Server) handleSystemStats(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := s.getSystemStats()

	response := SystemStatsResponse{
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		DataDirMB:     s.getDirSize(s.dataDir),
		Goroutines:    runtime.NumGoroutine(),
		Databases:     []DatabaseStatDTO{},
		CheckedAt:     time.Now().Format(time.RFC3339),
	}

	if s.dataDir != "" {
		if usage, err := disk.Usage(s.dataDir); err == nil {
			response.DiskFreeMB = float64(usage.Free) / 1024 / 1024
			response.DiskPercent = usage.UsedPercent
		} else {
			s.log.Warn().Err(err).Msg("Failed to get disk usage")
		}
	}

	for name, db := range s.databases {
		if db == nil {
			continue
		}
		stats, err := db.Stats()
		if err != nil {
			s.log.Warn().Err(err).Str("database", name).Msg("Failed to get database stats")
			continue
		}
		response.Databases = append(response.Databases, DatabaseStatDTO{
			Name:          name,
			SizeMB:        float64(stats.SizeBytes) / 1024 / 1024,
			WALSizeMB:     float64(stats.WALSizeBytes) / 1024 / 1024,
			PageCount:     stats.PageCount,
			FreelistCount: stats.FreelistCount,
		})
	}
	sort.Slice(response.Databases, func(i, j int) bool {
		return response.Databases[i].Name < response.Databases[j].Name
	})

	s.writeJSON(w, http.StatusOK, response)
}

// getSystemStats calculates CPU and RAM usage percentages.
// CPU is sampled over 100ms to keep the call fast.
func (s *Server) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// getDirSize calculates total size of a directory in MB
func (s *Server) getDirSize(dirPath string) float64 {
	if dirPath == "" {
		return 0
	}

	var totalSize int64
	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}
