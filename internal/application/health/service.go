// Package health reports dependency status and request traffic for /health/json.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"strconv"
	"time"

	"certverify-backend/internal/middleware"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	StatusOK    = "ok"
	StatusIssue = "issue"

	DepConnected    = "connected"
	DepDisconnected = "disconnected"
	DepError        = "error"
	DepConfigured   = "configured"
	DepDisabled     = "disabled"
)

var ErrRedisNotConfigured = errors.New("Redis is not configured")

// DBPinger is optional for health check. If nil, database is reported as disconnected.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// GormPinger pings the pool behind a gorm handle.
type GormPinger struct{ DB *gorm.DB }

func (g GormPinger) Ping(ctx context.Context) error {
	sqlDB, err := g.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type Report struct {
	Status       string               `json:"status"`
	Runtime      RuntimeInfo          `json:"runtime"`
	Traffic      TrafficInfo          `json:"traffic"`
	Dependencies map[string]DepStatus `json:"dependencies"`
}

type RuntimeInfo struct {
	UptimeSeconds int64  `json:"uptimeSeconds"`
	HeapMB        int    `json:"heapMb"`
	Goroutines    int    `json:"goroutines"`
	Platform      string `json:"platform"`
	GoVersion     string `json:"goVersion"`
}

type TrafficInfo struct {
	TotalRequests   int         `json:"totalRequests"`
	SuccessCount    int         `json:"successCount"`
	FailedCount     int         `json:"failedCount"`
	SuccessRate     string      `json:"successRate"`
	AvgResponseTime interface{} `json:"avgResponseTime"`
	LastRequest     interface{} `json:"lastRequest"`
}

type DepStatus struct {
	Status string `json:"status"`
	PingMs *int64 `json:"pingMs"`
}

// Service collects health data. The ledger is reported by configuration only; it is never called.
type Service struct {
	DB            DBPinger
	Rdb           *redis.Client
	LedgerEnabled bool
	StartedAt     time.Time
	Now           func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func ping(ctx context.Context, fn func(context.Context) error) DepStatus {
	start := time.Now()
	if err := fn(ctx); err != nil {
		return DepStatus{Status: DepError}
	}
	ms := time.Since(start).Milliseconds()
	return DepStatus{Status: DepConnected, PingMs: &ms}
}

// Collect gathers health data. Status is "ok" only when the database and Redis both answer.
func (s *Service) Collect(ctx context.Context) Report {
	r := Report{Dependencies: make(map[string]DepStatus)}

	db := DepStatus{Status: DepDisconnected}
	if s.DB != nil {
		db = ping(ctx, s.DB.Ping)
	}
	r.Dependencies["database"] = db

	cache := DepStatus{Status: DepDisconnected}
	started := s.StartedAt
	r.Traffic = TrafficInfo{SuccessRate: "100", AvgResponseTime: 0}
	if s.Rdb != nil {
		cache = ping(ctx, func(ctx context.Context) error { return s.Rdb.Ping(ctx).Err() })
		if cache.Status == DepConnected {
			r.Traffic, started = s.traffic(ctx, started)
		}
	}
	r.Dependencies["redis"] = cache

	ledger := DepStatus{Status: DepDisabled}
	if s.LedgerEnabled {
		ledger.Status = DepConfigured
	}
	r.Dependencies["ledger"] = ledger

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	uptime := int64(0)
	if !started.IsZero() {
		uptime = int64(s.now().Sub(started) / time.Second)
	}
	if uptime < 0 {
		uptime = 0
	}
	r.Runtime = RuntimeInfo{
		UptimeSeconds: uptime,
		HeapMB:        int(m.HeapInuse / 1024 / 1024),
		Goroutines:    runtime.NumGoroutine(),
		Platform:      runtime.GOOS + " (" + runtime.GOARCH + ")",
		GoVersion:     runtime.Version(),
	}

	r.Status = StatusIssue
	if db.Status == DepConnected && cache.Status == DepConnected {
		r.Status = StatusOK
	}
	return r
}

// traffic reads the request marker counters. The shared start time is seeded on first read.
func (s *Service) traffic(ctx context.Context, fallback time.Time) (TrafficInfo, time.Time) {
	vals, _ := s.Rdb.MGet(ctx,
		middleware.KeyReqTotal, middleware.KeyReqErrors, middleware.KeyResTime,
		middleware.KeyResCount, middleware.KeyStartTime, middleware.KeyLastReq,
	).Result()
	str := func(i int) string {
		if i < len(vals) {
			if v, ok := vals[i].(string); ok {
				return v
			}
		}
		return ""
	}

	started := fallback
	if ms, err := strconv.ParseInt(str(4), 10, 64); err == nil {
		started = time.UnixMilli(ms)
	} else {
		if started.IsZero() {
			started = s.now()
		}
		s.Rdb.SetNX(ctx, middleware.KeyStartTime, started.UnixMilli(), 0)
	}

	t := TrafficInfo{SuccessRate: "100", AvgResponseTime: 0}
	t.TotalRequests, _ = strconv.Atoi(str(0))
	t.FailedCount, _ = strconv.Atoi(str(1))
	t.SuccessCount = t.TotalRequests - t.FailedCount
	if t.TotalRequests > 0 {
		t.SuccessRate = strconv.FormatFloat(float64(t.SuccessCount)/float64(t.TotalRequests)*100, 'f', 1, 64)
	}
	timeSum, _ := strconv.ParseFloat(str(2), 64)
	if count, _ := strconv.Atoi(str(3)); count > 0 {
		t.AvgResponseTime = strconv.FormatFloat(timeSum/float64(count), 'f', 2, 64)
	}
	if raw := str(5); raw != "" {
		var last map[string]interface{}
		if json.Unmarshal([]byte(raw), &last) == nil {
			t.LastRequest = last
		}
	}
	return t, started
}

// Reset clears the marker counters and restarts the uptime clock.
func (s *Service) Reset(ctx context.Context) error {
	if s.Rdb == nil {
		return ErrRedisNotConfigured
	}
	if err := s.Rdb.Del(ctx, middleware.MarkerKeys...).Err(); err != nil {
		return err
	}
	return s.Rdb.Set(ctx, middleware.KeyStartTime, strconv.FormatInt(s.now().UnixMilli(), 10), 0).Err()
}

// RecentErrors returns up to n logged 5xx entries, newest first.
func (s *Service) RecentErrors(ctx context.Context, n int64) ([]map[string]interface{}, error) {
	out := []map[string]interface{}{}
	if s.Rdb == nil {
		return out, nil
	}
	entries, err := s.Rdb.LRange(ctx, middleware.KeyErrorLog, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	for _, raw := range entries {
		var m map[string]interface{}
		if json.Unmarshal([]byte(raw), &m) == nil && m != nil {
			out = append(out, m)
		}
	}
	return out, nil
}
