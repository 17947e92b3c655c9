// ABOUTME: Approval and input gates: blocking prompts that resolve exactly once
// ABOUTME: Input values are coerced by declared kind before delivery

package gates

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// InputKind declares how a raw operator answer is interpreted.
type InputKind string

const (
	KindText    InputKind = "text"
	KindNumber  InputKind = "number"
	KindBoolean InputKind = "boolean"
	KindSelect  InputKind = "select"
)

// ApprovalPrompt is what the operator sees when an action needs sign-off.
type ApprovalPrompt struct {
	ActionID          string
	ActionType        string
	Description       string
	Risk              string
	EstimatedCost     *float64
	EstimatedDuration *int
	AgentInvolved     string
}

// ApprovalDecision is the operator's answer to an approval prompt.
type ApprovalDecision struct {
	Approved bool
	Reason   string
}

// InputPrompt asks the operator for a value mid-flow.
type InputPrompt struct {
	ID      string
	Kind    InputKind
	Label   string
	Options []string // for KindSelect
	Default string
}

// InputResult carries the coerced answer. Cancelled is distinct from an
// empty value: a cancelled prompt produces no value at all.
type InputResult struct {
	Value     any
	Cancelled bool
}

// Prompter collects decisions and values from the operator.
type Prompter interface {
	Approve(ctx context.Context, p ApprovalPrompt) (ApprovalDecision, error)
	Input(ctx context.Context, p InputPrompt) (InputResult, error)
}

// CoerceInput converts a raw answer string according to kind.
//
//   - number: parsed as float64; unparseable input is an error
//   - boolean: true exactly when the answer equals "true" ignoring case
//   - text, select: the raw string unchanged
func CoerceInput(kind InputKind, raw string) (any, error) {
	switch kind {
	case KindNumber:
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return v, nil
	case KindBoolean:
		return strings.EqualFold(strings.TrimSpace(raw), "true"), nil
	default:
		return raw, nil
	}
}

// Gate delivers a single answer to a single waiter. Resolve wins exactly
// once; later calls are no-ops. Used to bridge asynchronous prompt UIs to
// the flow blocked on the answer.
type Gate[T any] struct {
	mu       sync.Mutex
	resolved bool
	ch       chan T
}

// NewGate creates an unresolved gate.
func NewGate[T any]() *Gate[T] {
	return &Gate[T]{ch: make(chan T, 1)}
}

// Resolve delivers the answer. Returns false when the gate was already
// resolved, in which case the value is discarded.
func (g *Gate[T]) Resolve(v T) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resolved {
		return false
	}
	g.resolved = true
	g.ch <- v
	return true
}

// Resolved reports whether an answer has been delivered.
func (g *Gate[T]) Resolved() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resolved
}

// Wait blocks until the gate resolves or ctx is done.
func (g *Gate[T]) Wait(ctx context.Context) (T, error) {
	select {
	case v := <-g.ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
