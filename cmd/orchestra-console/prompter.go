// ABOUTME: Terminal prompter: approval gates answered by command, inputs inline
// ABOUTME: A single stdin broker keeps the loop and prompts from fighting over input

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/orchestra-console/internal/gates"
)

// inputBroker owns stdin. Every reader pulls whole lines through ReadLine so
// only one consumer sees each line.
type inputBroker struct {
	lines chan string
	errs  chan error
}

func newInputBroker(r io.Reader) *inputBroker {
	b := &inputBroker{
		lines: make(chan string),
		errs:  make(chan error, 1),
	}
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			b.lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			b.errs <- err
		} else {
			b.errs <- io.EOF
		}
	}()
	return b
}

// ReadLine returns the next line of input, or the reader's terminal error.
func (b *inputBroker) ReadLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-b.errs:
		return "", err
	case line := <-b.lines:
		return line, nil
	}
}

// consolePrompter implements gates.Prompter for the terminal.
//
// Approvals arrive asynchronously over the realtime channel while the
// operator owns the prompt, so they are not modal: the request is announced,
// a gate is parked under its action ID, and the operator answers with
// /approve or /reject whenever they're ready.
//
// Inputs are synchronous: they only happen inside a command the operator is
// already running, so they read the next line directly.
type consolePrompter struct {
	broker *inputBroker

	mu      sync.Mutex
	pending map[string]*gates.Gate[gates.ApprovalDecision]
}

func newConsolePrompter(broker *inputBroker) *consolePrompter {
	return &consolePrompter{
		broker:  broker,
		pending: make(map[string]*gates.Gate[gates.ApprovalDecision]),
	}
}

// Approve announces the request and blocks until the operator answers with
// /approve or /reject, or ctx ends.
func (p *consolePrompter) Approve(ctx context.Context, prompt gates.ApprovalPrompt) (gates.ApprovalDecision, error) {
	gate := gates.NewGate[gates.ApprovalDecision]()

	p.mu.Lock()
	p.pending[prompt.ActionID] = gate
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, prompt.ActionID)
		p.mu.Unlock()
	}()

	riskColor := color.New(color.FgYellow)
	if prompt.Risk == "high" || prompt.Risk == "critical" {
		riskColor = color.New(color.FgRed, color.Bold)
	}

	fmt.Println()
	color.Yellow("⚠ Approval required: %s", prompt.Description)
	fmt.Printf("  action: %s  risk: %s", prompt.ActionType, riskColor.Sprint(prompt.Risk))
	if prompt.AgentInvolved != "" {
		fmt.Printf("  agent: %s", prompt.AgentInvolved)
	}
	fmt.Println()
	if prompt.EstimatedCost != nil {
		fmt.Printf("  estimated cost: $%.2f\n", *prompt.EstimatedCost)
	}
	if prompt.EstimatedDuration != nil {
		fmt.Printf("  estimated duration: %d min\n", *prompt.EstimatedDuration)
	}
	fmt.Printf("  answer with: /approve %s [reason]  or  /reject %s <reason>\n", prompt.ActionID, prompt.ActionID)

	return gate.Wait(ctx)
}

// Resolve answers a parked approval. Returns false when no prompt with that
// action ID is waiting (or it was already answered).
func (p *consolePrompter) Resolve(actionID string, decision gates.ApprovalDecision) bool {
	p.mu.Lock()
	gate, ok := p.pending[actionID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	return gate.Resolve(decision)
}

// PendingIDs lists action IDs with unanswered approval prompts.
func (p *consolePrompter) PendingIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.pending))
	for id := range p.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Input asks for one value on the spot and coerces it by kind. An empty
// answer takes the default when one exists; "/cancel" cancels. Unparseable
// numbers re-prompt.
func (p *consolePrompter) Input(ctx context.Context, prompt gates.InputPrompt) (gates.InputResult, error) {
	for {
		fmt.Printf("%s", prompt.Label)
		if len(prompt.Options) > 0 {
			fmt.Printf(" (%s)", strings.Join(prompt.Options, ", "))
		}
		if prompt.Default != "" {
			fmt.Printf(" [%s]", prompt.Default)
		}
		fmt.Print(": ")

		line, err := p.broker.ReadLine(ctx)
		if err != nil {
			return gates.InputResult{}, err
		}
		raw := strings.TrimSpace(line)
		if raw == "/cancel" {
			return gates.InputResult{Cancelled: true}, nil
		}
		if raw == "" && prompt.Default != "" {
			raw = prompt.Default
		}
		if prompt.Kind == gates.KindSelect && raw != "" && !containsOption(prompt.Options, raw) {
			color.Red("Choose one of: %s", strings.Join(prompt.Options, ", "))
			continue
		}

		value, err := gates.CoerceInput(prompt.Kind, raw)
		if err != nil {
			color.Red("%v", err)
			continue
		}
		return gates.InputResult{Value: value}, nil
	}
}

func containsOption(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}
