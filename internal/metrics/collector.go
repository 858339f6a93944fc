// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpLLMGenerate = "llm_generate"
	OpSearch      = "search"
	OpDBQuery     = "db_query"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Token metrics (only for LLM operations)
	TotalInputTokens  int64
	TotalOutputTokens int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	// Token stats (nil if not applicable)
	TotalInputTokens  *int64 `json:"total_input_tokens,omitempty"`
	TotalOutputTokens *int64 `json:"total_output_tokens,omitempty"`
}

// Snapshot represents the full server statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	LLMGenerate   *OperationSnapshot `json:"llm_generate,omitempty"`
	Search        *OperationSnapshot `json:"search,omitempty"`
	DBQuery       *OperationSnapshot `json:"db_query,omitempty"`
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe and safe on a nil receiver.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordLLMUsage records timing and token usage for an LLM operation.
func (c *Collector) RecordLLMUsage(op string, duration time.Duration, inputTokens, outputTokens int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}

	m.TotalInputTokens += inputTokens
	m.TotalOutputTokens += outputTokens
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includeTokens bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}

	if includeTokens && (m.TotalInputTokens > 0 || m.TotalOutputTokens > 0) {
		totalIn := m.TotalInputTokens
		totalOut := m.TotalOutputTokens
		snap.TotalInputTokens = &totalIn
		snap.TotalOutputTokens = &totalOut
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		LLMGenerate:   snapshotOp(c.ops[OpLLMGenerate], true),
		Search:        snapshotOp(c.ops[OpSearch], false),
		DBQuery:       snapshotOp(c.ops[OpDBQuery], false),
	}
}
