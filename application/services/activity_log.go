package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// LogTone grades a log entry for display
type LogTone string

const (
	ToneInfo    LogTone = "info"
	ToneWarning LogTone = "warning"
	ToneError   LogTone = "error"
	ToneSuccess LogTone = "success"
)

// LogKind names the subsystem a log entry came from
type LogKind string

const (
	KindCapsuleRun LogKind = "capsule"
	KindGeneration LogKind = "generation"
	KindSystem     LogKind = "system"
)

// LogContext ties a log entry back to the run that produced it
type LogContext struct {
	Kind      LogKind `json:"kind"`
	RunID     string  `json:"run_id,omitempty"`
	CapsuleID string  `json:"capsule_id,omitempty"`
}

// LogMetrics carries optional cost/latency figures
type LogMetrics struct {
	LatencyMS int64   `json:"latency_ms,omitempty"`
	CostUSD   float64 `json:"cost_usd,omitempty"`
}

// LogEntry is one line of run activity
type LogEntry struct {
	ID      string      `json:"id"`
	Tone    LogTone     `json:"tone"`
	Message string      `json:"message"`
	Time    time.Time   `json:"time"`
	Context *LogContext `json:"context,omitempty"`
	Metrics *LogMetrics `json:"metrics,omitempty"`
}

// LogFilter narrows an activity listing
type LogFilter struct {
	Kind       LogKind
	ErrorsOnly bool
}

// ActivityLog is an append-only, capped activity buffer. Newest entries come
// first; once the cap is reached the oldest entry is silently dropped.
// Entries are never individually removable, only bulk-cleared.
type ActivityLog struct {
	mu      sync.Mutex
	entries []LogEntry
	cap     int
}

// NewActivityLog creates a log capped at the given number of entries
func NewActivityLog(capacity int) *ActivityLog {
	if capacity <= 0 {
		capacity = 40
	}
	return &ActivityLog{cap: capacity}
}

// Push prepends an entry, evicting the oldest past the cap
func (l *ActivityLog) Push(tone LogTone, message string, logCtx *LogContext, metrics *LogMetrics) LogEntry {
	entry := LogEntry{
		ID:      uuid.New().String(),
		Tone:    tone,
		Message: message,
		Time:    time.Now(),
		Context: logCtx,
		Metrics: metrics,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append([]LogEntry{entry}, l.entries...)
	if len(l.entries) > l.cap {
		l.entries = l.entries[:l.cap]
	}
	return entry
}

// Entries returns a filtered snapshot, newest first
func (l *ActivityLog) Entries(filter LogFilter) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]LogEntry, 0, len(l.entries))
	for _, entry := range l.entries {
		if filter.Kind != "" {
			if entry.Context == nil || entry.Context.Kind != filter.Kind {
				continue
			}
		}
		if filter.ErrorsOnly && entry.Tone != ToneWarning && entry.Tone != ToneError {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// Len returns the current number of entries
func (l *ActivityLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear empties the buffer
func (l *ActivityLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
