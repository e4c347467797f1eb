package metrics

import (
	"sort"
	"sync"
	"time"
)

// Operation names recorded by the controller.
const (
	OpQuery   = "query"
	OpPreview = "preview"
	OpSave    = "save"
	OpInclude = "include"
	OpDrag    = "drag"
	OpEdit    = "edit"
)

// Collector aggregates session counters per controller operation.
type Collector struct {
	mu         sync.RWMutex
	enabled    bool
	started    time.Time
	operations map[string]*OperationMetrics
}

// OperationMetrics captures per-operation counters tracked by the collector.
type OperationMetrics struct {
	Operation     string    `json:"operation"`
	Succeeded     uint64    `json:"succeeded"`
	Failed        uint64    `json:"failed"`
	Rejected      uint64    `json:"rejected"`
	LastSucceeded time.Time `json:"lastSucceeded,omitempty"`
	LastFailed    time.Time `json:"lastFailed,omitempty"`
	LastError     string    `json:"lastError,omitempty"`
}

// Totals aggregates counters across all operations in a snapshot.
type Totals struct {
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Rejected  uint64 `json:"rejected"`
}

// Snapshot is the serializable view of the current metrics state.
type Snapshot struct {
	Enabled    bool               `json:"enabled"`
	Started    time.Time          `json:"started,omitempty"`
	Totals     Totals             `json:"totals"`
	Operations []OperationMetrics `json:"operations,omitempty"`
}

// NewCollector returns a collector with the provided opt-in state.
func NewCollector(enabled bool) *Collector {
	c := &Collector{}
	c.SetEnabled(enabled)
	return c
}

// Enabled reports whether collection is currently active.
func (c *Collector) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// SetEnabled toggles collection, resetting counters when enabling.
func (c *Collector) SetEnabled(enabled bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled == enabled {
		return
	}
	c.enabled = enabled
	if !enabled {
		c.operations = nil
		c.started = time.Time{}
		return
	}
	c.started = time.Now()
	c.operations = make(map[string]*OperationMetrics)
}

// RecordSuccess increments the success counter for op.
func (c *Collector) RecordSuccess(op string) {
	c.update(op, func(m *OperationMetrics, now time.Time) {
		m.Succeeded++
		m.LastSucceeded = now
	})
}

// RecordFailure increments the failure counter for op and keeps err's text.
func (c *Collector) RecordFailure(op string, err error) {
	c.update(op, func(m *OperationMetrics, now time.Time) {
		m.Failed++
		m.LastFailed = now
		if err != nil {
			m.LastError = err.Error()
		}
	})
}

// RecordRejected counts an edit or drag step refused by validation.
func (c *Collector) RecordRejected(op string) {
	c.update(op, func(m *OperationMetrics, _ time.Time) {
		m.Rejected++
	})
}

// Record counts err against op as a failure, or a success when err is nil.
func (c *Collector) Record(op string, err error) {
	if err != nil {
		c.RecordFailure(op, err)
		return
	}
	c.RecordSuccess(op)
}

func (c *Collector) update(op string, mutate func(*OperationMetrics, time.Time)) {
	if c == nil || mutate == nil {
		return
	}
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	if c.operations == nil {
		c.operations = make(map[string]*OperationMetrics)
	}
	m, exists := c.operations[op]
	if !exists {
		m = &OperationMetrics{Operation: op}
		c.operations[op] = m
	}
	mutate(m, now)
}

// Snapshot returns the current counters for serialization or display.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := Snapshot{Enabled: c.enabled}
	if !c.enabled {
		return snap
	}
	snap.Started = c.started
	if len(c.operations) == 0 {
		return snap
	}
	snap.Operations = make([]OperationMetrics, 0, len(c.operations))
	for _, m := range c.operations {
		if m == nil {
			continue
		}
		clone := *m
		snap.Operations = append(snap.Operations, clone)
		snap.Totals.Succeeded += clone.Succeeded
		snap.Totals.Failed += clone.Failed
		snap.Totals.Rejected += clone.Rejected
	}
	sort.Slice(snap.Operations, func(i, j int) bool {
		return snap.Operations[i].Operation < snap.Operations[j].Operation
	})
	return snap
}
