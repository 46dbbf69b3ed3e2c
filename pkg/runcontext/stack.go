// Package runcontext models the caller's open-run stack as an explicit value
// passed to every operation that needs an ambient "current run", instead of a
// process-wide global. Hosts that keep their own notion of an active run
// adapt it by pushing onto a Stack before calling into the SDK.
package runcontext

import (
	"sync"

	"github.com/wehubfusion/Daedalus/pkg/tracking"
)

// Stack is an explicit stack of open runs. Safe for concurrent use.
type Stack struct {
	mu   sync.Mutex
	runs []*tracking.Run
}

// NewStack returns an empty run stack.
func NewStack() *Stack {
	return &Stack{}
}

// Push records a run as opened.
func (s *Stack) Push(run *tracking.Run) {
	if run == nil {
		return
	}
	s.mu.Lock()
	s.runs = append(s.runs, run)
	s.mu.Unlock()
}

// Pop removes and returns the most recently opened run, or nil when empty.
func (s *Stack) Pop() *tracking.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) == 0 {
		return nil
	}
	run := s.runs[len(s.runs)-1]
	s.runs = s.runs[:len(s.runs)-1]
	return run
}

// Bottom returns the first-opened run, or nil when empty. Parent resolution
// reads the bottom rather than the top: with concurrently nested child runs
// the top of the stack is unstable, the bottom is not.
func (s *Stack) Bottom() *tracking.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) == 0 {
		return nil
	}
	return s.runs[0]
}

// Top returns the most recently opened run without removing it.
func (s *Stack) Top() *tracking.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) == 0 {
		return nil
	}
	return s.runs[len(s.runs)-1]
}

// Len returns the number of open runs.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// Active reports whether any run is open.
func (s *Stack) Active() bool {
	return s.Len() > 0
}
