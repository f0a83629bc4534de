package outputmeta

import (
	"maps"
	"slices"
	"sync"
)

// Manager tracks the frame history of every display output.
// It provides command-query separation for that history.
type Manager struct {
	mu     sync.RWMutex
	last   map[int]*FrameInfo // output -> most recent frame
	frames map[int]uint64     // output -> frames recorded
	issues map[int][]string   // output -> pending anomalies
}

// NewManager creates an empty output registry.
func NewManager() *Manager {
	return &Manager{
		last:   make(map[int]*FrameInfo),
		frames: make(map[int]uint64),
		issues: make(map[int][]string),
	}
}

// Get returns the most recent frame of an output (query).
// Returns nil if the output has not produced a frame yet.
func (m *Manager) Get(output int) *FrameInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last[output]
}

// Frames returns how many frames an output has produced (query).
func (m *Manager) Frames(output int) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frames[output]
}

// GetIssues returns the pending anomalies of an output (query).
func (m *Manager) GetIssues(output int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.issues[output])
}

// Outputs returns the outputs that have produced frames, in ascending order (query).
func (m *Manager) Outputs() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.last))
}

// Record stores frame as its output's most recent frame and returns the
// frame it replaced, or nil for the first frame (command).
func (m *Manager) Record(frame *FrameInfo) *FrameInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.last[frame.Output]
	m.last[frame.Output] = frame
	m.frames[frame.Output]++
	return prev
}

// AddIssue adds an anomaly for an output (command).
func (m *Manager) AddIssue(output int, issue string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues[output] = append(m.issues[output], issue)
}

// AddIssues adds multiple anomalies for an output (command).
func (m *Manager) AddIssues(output int, issues []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues[output] = append(m.issues[output], issues...)
}

// TakeIssues returns and clears the pending anomalies of an output (command).
func (m *Manager) TakeIssues(output int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	issues := m.issues[output]
	delete(m.issues, output)
	return issues
}

// Delete forgets everything about an output (command).
func (m *Manager) Delete(output int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.last, output)
	delete(m.frames, output)
	delete(m.issues, output)
}
