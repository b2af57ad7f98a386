package session

import (
	"container/heap"
	"time"
)

type taskKind int

const (
	// taskReconnect completes a session-level reconnect (auto or manual).
	taskReconnect taskKind = iota
	// taskConnected moves a sub-session from connecting to ready.
	taskConnected
	// taskResponse appends a terminal command response.
	taskResponse
)

func (k taskKind) String() string {
	switch k {
	case taskReconnect:
		return "reconnect"
	case taskConnected:
		return "connected"
	case taskResponse:
		return "response"
	default:
		return "unknown"
	}
}

// task is a one-shot delayed action owned by a session loop. gen ties the
// task to the state that scheduled it; a task whose gen no longer matches is
// stale and dropped when it fires.
type task struct {
	at    time.Time
	seq   uint64
	kind  taskKind
	view  ViewKind
	gen   uint64
	lines []string
	clear bool
}

type taskHeap []task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(task)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = task{}
	*h = old[:n-1]
	return t
}

// scheduler orders pending one-shot tasks by deadline. The session loop
// keeps a single timer armed for next().
type scheduler struct {
	tasks taskHeap
	seq   uint64
}

func (s *scheduler) schedule(t task) {
	s.seq++
	t.seq = s.seq
	heap.Push(&s.tasks, t)
}

// next returns the earliest deadline, if any task is pending.
func (s *scheduler) next() (time.Time, bool) {
	if len(s.tasks) == 0 {
		return time.Time{}, false
	}
	return s.tasks[0].at, true
}

// popDue removes and returns every task due at or before now, earliest first.
func (s *scheduler) popDue(now time.Time) []task {
	var due []task
	for len(s.tasks) > 0 && !s.tasks[0].at.After(now) {
		due = append(due, heap.Pop(&s.tasks).(task))
	}
	return due
}

func (s *scheduler) len() int { return len(s.tasks) }

// reset drops every pending task.
func (s *scheduler) reset() {
	s.tasks = nil
}
