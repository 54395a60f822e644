// Package notify is the user-facing notice channel: four severities and a
// badge counter bound to the pending-queue length. The core calls into it;
// rendering belongs to the outer layer.
package notify

import (
	"log"
	"sync"
	"time"
)

type Severity string

const (
	Success Severity = "success"
	Error   Severity = "error"
	Warning Severity = "warning"
	Info    Severity = "info"
)

type Notice struct {
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

type Notifier interface {
	Notify(severity Severity, message string)
	SetBadge(count int)
}

// Log writes notices to the process log and keeps a bounded ring of recent
// notices so the sync-status endpoint can hand them to the rendering layer.
type Log struct {
	mu      sync.Mutex
	recent  []Notice
	badge   int
	maxKept int
}

func NewLog() *Log {
	return &Log{maxKept: 50}
}

func (l *Log) Notify(severity Severity, message string) {
	log.Printf("[notify] %s: %s", severity, message)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.recent = append(l.recent, Notice{Severity: severity, Message: message, At: time.Now().UTC()})
	if len(l.recent) > l.maxKept {
		l.recent = l.recent[len(l.recent)-l.maxKept:]
	}
}

func (l *Log) SetBadge(count int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.badge = count
}

func (l *Log) Badge() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.badge
}

// Recent returns the kept notices, oldest first.
func (l *Log) Recent() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Notice, len(l.recent))
	copy(out, l.recent)
	return out
}

// Recorder captures notices for test assertions.
type Recorder struct {
	mu      sync.Mutex
	Notices []Notice
	Badges  []int
}

func (r *Recorder) Notify(severity Severity, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Notices = append(r.Notices, Notice{Severity: severity, Message: message, At: time.Now().UTC()})
}

func (r *Recorder) SetBadge(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Badges = append(r.Badges, count)
}

// BySeverity returns the captured messages with the given severity.
func (r *Recorder) BySeverity(severity Severity) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for _, n := range r.Notices {
		if n.Severity == severity {
			out = append(out, n.Message)
		}
	}
	return out
}
