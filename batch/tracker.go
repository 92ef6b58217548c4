package batch

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Tracker is the single owned coordination structure for per-job progress
// and status. All reads and writes from workers or timer callbacks go
// through its methods; callers never see the maps themselves.
type Tracker struct {
	mu       sync.Mutex
	progress map[string]float64
	status   map[string]string
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		progress: make(map[string]float64),
		status:   make(map[string]string),
	}
}

// Register adds a job in the Queued state at 0%.
func (t *Tracker) Register(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress[name] = 0
	t.status[name] = "Queued"
}

// SetStatus updates a job's status text.
func (t *Tracker) SetStatus(name, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status[name] = status
}

// SetProgress updates a job's percentage.
func (t *Tracker) SetProgress(name string, pct float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress[name] = pct
}

// Set updates both status and percentage in one critical section.
func (t *Tracker) Set(name, status string, pct float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status[name] = status
	t.progress[name] = pct
}

// Get returns a job's current percentage and status.
func (t *Tracker) Get(name string) (float64, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress[name], t.status[name]
}

// Average returns the arithmetic mean of all jobs' last-known percentages.
func (t *Tracker) Average() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.progress) == 0 {
		return 0
	}
	sum := 0.0
	for _, pct := range t.progress {
		sum += pct
	}
	return sum / float64(len(t.progress))
}

// Snapshot renders a "name: pct% - status" line per job, sorted by name.
func (t *Tracker) Snapshot() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.progress))
	for name := range t.progress {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("%s: %.2f%% - %s", name, t.progress[name], t.status[name]))
	}
	return strings.Join(lines, "\n")
}

// Counts returns how many jobs uploaded and how many were processed
// (uploaded or skipped), judged from status text the way the workers
// write it.
func (t *Tracker) Counts() (uploaded, processed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, status := range t.status {
		if strings.Contains(status, "Uploaded") {
			uploaded++
		}
		if strings.Contains(status, "Uploaded") || strings.Contains(status, "Skipped") {
			processed++
		}
	}
	return uploaded, processed
}
