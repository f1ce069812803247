package engine

import "fmt"

// RecursionPolicy bounds one turn's model rounds and recursion depth. It is
// created fresh per turn and is not safe for concurrent use; a turn is a
// single logical flow.
type RecursionPolicy struct {
	maxSteps int
	maxDepth int
	steps    int
	depth    int
}

func NewRecursionPolicy(maxSteps, maxDepth int) *RecursionPolicy {
	return &RecursionPolicy{maxSteps: maxSteps, maxDepth: maxDepth}
}

// TryAdvance consumes one step and one depth unit, refusing once either
// ceiling is reached.
func (p *RecursionPolicy) TryAdvance() error {
	if p.steps >= p.maxSteps {
		return fmt.Errorf("step budget exhausted after %d steps", p.maxSteps)
	}
	if p.depth >= p.maxDepth {
		return fmt.Errorf("recursion depth limit of %d reached", p.maxDepth)
	}
	p.steps++
	p.depth++
	return nil
}

// Steps reports how many advances succeeded this turn.
func (p *RecursionPolicy) Steps() int {
	return p.steps
}
