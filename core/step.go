package core

// StepBudget enforces the maximum number of node executions per run. It is
// owned by a single run goroutine and is not safe for concurrent use.
type StepBudget struct {
	max   int
	count int
}

// NewStepBudget creates a budget of max node executions. A max <= 0 allows
// unlimited steps.
func NewStepBudget(max int) *StepBudget {
	return &StepBudget{max: max}
}

// Enter accounts for one node execution. It returns *StepBudgetExceeded
// without incrementing when the budget is already spent.
func (b *StepBudget) Enter() error {
	if b.max > 0 && b.count >= b.max {
		return &StepBudgetExceeded{MaxSteps: b.max}
	}
	b.count++
	return nil
}

// Count returns the number of node executions so far.
func (b *StepBudget) Count() int { return b.count }

// Remaining returns how many executions are left, or -1 when unlimited.
func (b *StepBudget) Remaining() int {
	if b.max <= 0 {
		return -1
	}
	return b.max - b.count
}
