package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/ems-console/internal/stats"
)

// SystemMetrics is the /metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptimeSeconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	MQTT          MQTTMetrics    `json:"mqtt"`
	Console       *stats.Stats   `json:"console,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memoryAllocMb"`
	MemoryTotalMB float64 `json:"memoryTotalMb"`
	NumGC         uint32  `json:"numGc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connectedClients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// handleMetrics returns process and console metrics. It is public for
// monitoring; the console counters are omitted when storage cannot be read.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	m := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(mem.TotalAlloc) / 1024 / 1024,
			NumGC:         mem.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
	}

	if s.mqtt != nil {
		m.MQTT = MQTTMetrics{Enabled: true, Connected: s.mqtt.IsConnected()}
	}

	if st, err := s.console.Stats(r.Context()); err == nil {
		m.Console = &st
	} else {
		s.logger.Warn("metrics: console stats unavailable", "error", err)
	}

	writeJSON(w, http.StatusOK, m)
}
