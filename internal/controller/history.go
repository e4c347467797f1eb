package controller

import (
	"sync"
	"time"
)

// ActivityStatus is the outcome of a recorded activity.
type ActivityStatus string

const (
	ActivityStatusOK    ActivityStatus = "ok"
	ActivityStatusError ActivityStatus = "error"
)

const defaultHistorySize = 128

// Activity is one external call or file write made by the controller.
// Commands holds the wlr-randr directives sent by a preview.
type Activity struct {
	Timestamp time.Time      `json:"timestamp"`
	Operation string         `json:"operation"`
	Status    ActivityStatus `json:"status"`
	Duration  time.Duration  `json:"duration"`
	Commands  [][]string     `json:"commands,omitempty"`
	Path      string         `json:"path,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func newActivity(op string, started time.Time, err error) Activity {
	a := Activity{
		Timestamp: started,
		Operation: op,
		Status:    ActivityStatusOK,
		Duration:  time.Since(started),
	}
	if err != nil {
		a.Status = ActivityStatusError
		a.Error = err.Error()
	}
	return a
}

// activityLog is a fixed-size ring; the oldest entry is overwritten first.
type activityLog struct {
	mu    sync.Mutex
	ring  []Activity
	next  int
	count int
}

func newActivityLog(size int) *activityLog {
	if size <= 0 {
		size = defaultHistorySize
	}
	return &activityLog{ring: make([]Activity, size)}
}

func (l *activityLog) record(a Activity) {
	a.Commands = copyDirectives(a.Commands)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ring[l.next] = a
	l.next = (l.next + 1) % len(l.ring)
	if l.count < len(l.ring) {
		l.count++
	}
}

// snapshot returns the entries oldest first.
func (l *activityLog) snapshot() []Activity {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 {
		return nil
	}
	out := make([]Activity, 0, l.count)
	start := (l.next - l.count + len(l.ring)) % len(l.ring)
	for i := 0; i < l.count; i++ {
		a := l.ring[(start+i)%len(l.ring)]
		a.Commands = copyDirectives(a.Commands)
		out = append(out, a)
	}
	return out
}

func copyDirectives(src [][]string) [][]string {
	if len(src) == 0 {
		return nil
	}
	out := make([][]string, len(src))
	for i, d := range src {
		out[i] = append([]string(nil), d...)
	}
	return out
}
