// Package metrics provides in-memory runtime statistics for the pipeline.
package metrics

import (
	"math"
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpClaim    = "claim"
	OpPlan     = "plan"
	OpGenerate = "generate"
	OpSemantic = "semantic_check"
	OpRepair   = "repair"
	OpRecovery = "recovery_sweep"
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

	TotalInputTokens  int64 `json:"total_input_tokens,omitempty"`
	TotalOutputTokens int64 `json:"total_output_tokens,omitempty"`
}

// Snapshot represents the full worker statistics at a point in time.
type Snapshot struct {
	UptimeSeconds   float64                       `json:"uptime_seconds"`
	JobsCompleted   int64                         `json:"jobs_completed"`
	JobsFailed      int64                         `json:"jobs_failed"`
	Operations      map[string]OperationSnapshot  `json:"operations"`
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	completed int64
	failed    int64
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

// RecordJobCompleted counts a job reaching the completed state.
func (c *Collector) RecordJobCompleted() {
	c.mu.Lock()
	c.completed++
	c.mu.Unlock()
}

// RecordJobFailed counts a job reaching the failed state.
func (c *Collector) RecordJobFailed() {
	c.mu.Lock()
	c.failed++
	c.mu.Unlock()
}

// GetSnapshot returns the current statistics.
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		JobsCompleted: c.completed,
		JobsFailed:    c.failed,
		Operations:    make(map[string]OperationSnapshot, len(c.ops)),
	}

	for op, m := range c.ops {
		os := OperationSnapshot{
			Count:             m.Count,
			TotalTimeMs:       m.TotalTime.Milliseconds(),
			MaxTimeMs:         m.MaxTime.Milliseconds(),
			TotalInputTokens:  m.TotalInputTokens,
			TotalOutputTokens: m.TotalOutputTokens,
		}
		if m.Count > 0 {
			os.AvgTimeMs = float64(m.TotalTime.Milliseconds()) / float64(m.Count)
			os.MinTimeMs = m.MinTime.Milliseconds()
		}
		snap.Operations[op] = os
	}
	return snap
}
