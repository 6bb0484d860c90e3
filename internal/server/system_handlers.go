package server

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/frontier/internal/database"
)

// SystemStatusResponse is the body of GET /api/system/status.
type SystemStatusResponse struct {
	Status        string          `json:"status"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	CPUPercent    float64         `json:"cpu_percent"`
	MemoryPercent float64         `json:"memory_percent"`
	SweepRunning  bool            `json:"sweep_running"`
	LastRunID     string          `json:"last_run_id,omitempty"`
	LastRunAt     *time.Time      `json:"last_run_at,omitempty"`
	Cache         *database.Stats `json:"cache,omitempty"`
}

// handleSystemStatus reports process and host health
// GET /api/system/status
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := s.getSystemStats()

	resp := SystemStatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		SweepRunning:  s.runner.Running(),
	}
	if f := s.runner.Latest(); f != nil {
		resp.LastRunID = f.RunID
		createdAt := f.CreatedAt
		resp.LastRunAt = &createdAt
	}
	if s.cacheDB != nil {
		stats, err := s.cacheDB.GetStats()
		if err != nil {
			s.log.Warn().Err(err).Msg("Failed to get cache database stats")
		} else {
			resp.Cache = stats
		}
	}

	s.writeResponse(w, r, http.StatusOK, resp)
}

// getSystemStats calculates CPU and RAM usage percentages
// Uses a short interval (100ms) to avoid blocking the request for long
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
