package engine

import "sync"

// Stage is one phase of a conversion run.
type Stage string

const (
	StagePending    Stage = "pending"
	StageAnalyzing  Stage = "analyzing"
	StageExtracting Stage = "extracting"
	StagePackaging  Stage = "packaging"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// stageRank enforces monotonic transitions; a stage is never revisited
// once left. Done and Failed are both terminal.
var stageRank = map[Stage]int{
	StagePending:    0,
	StageAnalyzing:  1,
	StageExtracting: 2,
	StagePackaging:  3,
	StageDone:       4,
	StageFailed:     4,
}

// PageError is one failed page, recorded in submission order.
type PageError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// ProgressState is a point-in-time view of a conversion run. Snapshots are
// copies; holding one never observes later mutation.
type ProgressState struct {
	Stage   Stage       `json:"stage"`
	Current int         `json:"current"`
	Total   int         `json:"total"`
	Errors  []PageError `json:"errors,omitempty"`
}

// Terminal reports whether the run reached Done or Failed.
func (s ProgressState) Terminal() bool {
	return s.Stage == StageDone || s.Stage == StageFailed
}

// ProgressTracker is the one piece of state mutated by multiple workers.
// All mutation goes through the lock; readers get consistent copies, so a
// current count is never visible without the stage that produced it.
type ProgressTracker struct {
	mu    sync.Mutex
	state ProgressState
}

// NewProgressTracker returns a tracker in the Pending stage.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{state: ProgressState{Stage: StagePending}}
}

// Update moves the tracker to a stage and resets the counters for it.
// Attempts to move backwards are ignored.
func (t *ProgressTracker) Update(stage Stage, current, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if stageRank[stage] < stageRank[t.state.Stage] {
		return
	}
	t.state.Stage = stage
	t.state.Current = current
	t.state.Total = total
}

// Increment bumps the current count by one.
func (t *ProgressTracker) Increment() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Current++
}

// RecordError appends a failed page.
func (t *ProgressTracker) RecordError(index int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Errors = append(t.state.Errors, PageError{Index: index, Message: message})
}

// Snapshot returns an immutable copy of the current state.
func (t *ProgressTracker) Snapshot() ProgressState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.state
	if len(t.state.Errors) > 0 {
		out.Errors = make([]PageError, len(t.state.Errors))
		copy(out.Errors, t.state.Errors)
	}
	return out
}
