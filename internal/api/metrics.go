package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/carewatch-core/internal/entity"
	"github.com/nerrad567/carewatch-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/carewatch-core/internal/infrastructure/mqtt"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string                       `json:"timestamp"`
	Version       string                       `json:"version"`
	UptimeSeconds int64                        `json:"uptime_seconds"`
	Runtime       RuntimeMetrics               `json:"runtime"`
	WebSocket     WSMetrics                    `json:"websocket"`
	MQTT          mqtt.Stats                   `json:"mqtt"`
	InfluxDB      influxdb.Stats               `json:"influxdb"`
	Cache         map[entity.Kind]CacheMetrics `json:"cache"`
	Scope         ScopeMetrics                 `json:"scope"`
	Database      *DatabaseMetrics             `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// CacheMetrics describes one cached entity collection.
type CacheMetrics struct {
	Count       int        `json:"count"`
	Stale       bool       `json:"stale"`
	Loading     bool       `json:"loading"`
	LastFetched *time.Time `json:"last_fetched,omitempty"`
}

// ScopeMetrics describes the aggregation scope.
type ScopeMetrics struct {
	Syncing      bool       `json:"syncing"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	Problems     int        `json:"problems"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
	FileBytes       int64 `json:"file_bytes"`
}

// handleMetrics returns runtime, transport, cache and scope metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     s.now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		InfluxDB: s.influx.Stats(),
		Cache:    make(map[entity.Kind]CacheMetrics, len(entity.Kinds)),
	}

	if s.mqtt != nil {
		metrics.MQTT = s.mqtt.Stats()
	}

	counts := map[entity.Kind]int{
		entity.KindPersons:  len(s.cache.Persons()),
		entity.KindDevices:  len(s.cache.Devices()),
		entity.KindMappings: len(s.cache.Mappings()),
	}
	for _, kind := range entity.Kinds {
		cm := CacheMetrics{
			Count:   counts[kind],
			Stale:   s.cache.IsStale(kind),
			Loading: s.cache.Loading(kind),
		}
		if t := s.cache.LastFetched(kind); !t.IsZero() {
			cm.LastFetched = &t
		}
		metrics.Cache[kind] = cm
	}

	metrics.Scope = ScopeMetrics{
		Syncing:  s.scope.Syncing(),
		Problems: len(s.scope.Problems()),
	}
	if t := s.scope.LastSyncedAt(); !t.IsZero() {
		metrics.Scope.LastSyncedAt = &t
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
			FileBytes:       s.db.FileSize(),
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
