// ABOUTME: Controller wiring backend events to the store and commands to the API
// ABOUTME: Owns the approval flow: prompt the operator, record, answer the backend

package console

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/orchestra-console/internal/api"
	"github.com/2389/orchestra-console/internal/gates"
	"github.com/2389/orchestra-console/internal/realtime"
	"github.com/2389/orchestra-console/internal/state"
)

// Executor is the slice of the API client the controller drives.
type Executor interface {
	ExecuteAgentTask(ctx context.Context, req api.AgentTaskRequest) (*api.AgentTaskResult, error)
	ExecuteWorkflow(ctx context.Context, req api.WorkflowRequest) (*api.WorkflowResult, error)
	SendMessages(ctx context.Context, messages []api.ChatMessage, chatContext map[string]any) (*api.MessagesResponse, error)
}

// Events is the slice of the realtime manager the controller uses.
type Events interface {
	Send(ctx context.Context, eventType string, data any) error
	On(eventType string, h realtime.Handler) string
	Off(eventType, id string)
	OnStateChange(fn func(realtime.State))
}

// ApprovalResolver is implemented by prompters that can answer a parked
// approval prompt out of band. The controller uses it to release the prompt
// when a resolution arrives over the realtime channel instead of from the
// operator.
type ApprovalResolver interface {
	Resolve(actionID string, decision gates.ApprovalDecision) bool
}

// Controller coordinates the store, the API client, the realtime channel,
// and the operator prompter.
type Controller struct {
	exec     Executor
	events   Events
	store    *state.Store
	prompter gates.Prompter
	logger   *slog.Logger

	mu        sync.Mutex
	history   []api.ChatMessage
	listeners map[string]string // event type -> listener id
	baseCtx   context.Context
}

// New creates a controller. Start must be called before backend events are
// applied.
func New(exec Executor, events Events, store *state.Store, prompter gates.Prompter, logger *slog.Logger) *Controller {
	return &Controller{
		exec:      exec,
		events:    events,
		store:     store,
		prompter:  prompter,
		logger:    logger.With("component", "console"),
		listeners: make(map[string]string),
	}
}

// Start registers the event listeners. ctx bounds the lifetime of prompts
// triggered by pushed events.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()

	c.listen(realtime.EventAgentStatusUpdate, c.onAgentStatus)
	c.listen(realtime.EventWorkflowUpdate, c.onWorkflowUpdate)
	c.listen(realtime.EventSystemNotification, c.onNotification)
	c.listen(realtime.EventApprovalRequest, c.onApprovalRequest)
	c.listen(realtime.EventApprovalResponse, c.onApprovalResponse)

	c.events.OnStateChange(func(s realtime.State) {
		c.store.SetConnected(s == realtime.StateConnected)
	})
}

// Stop removes the event listeners.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for eventType, id := range c.listeners {
		c.events.Off(eventType, id)
		delete(c.listeners, eventType)
	}
}

func (c *Controller) listen(eventType string, h realtime.Handler) {
	id := c.events.On(eventType, h)
	c.mu.Lock()
	c.listeners[eventType] = id
	c.mu.Unlock()
}

func (c *Controller) onAgentStatus(data json.RawMessage) {
	var p realtime.AgentStatusUpdate
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn("bad agent status payload", "error", err)
		return
	}
	c.store.UpdateAgentStatus(p.AgentID, state.AgentStatus(p.Status), p.Task, p.Error)
	if p.Progress != nil {
		// Explicit progress from the backend overrides the status-derived
		// default.
		c.store.UpdateAgentProgress(p.AgentID, *p.Progress)
	}
}

func (c *Controller) onWorkflowUpdate(data json.RawMessage) {
	var p realtime.WorkflowUpdate
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn("bad workflow payload", "error", err)
		return
	}
	switch state.WorkflowStatus(p.Status) {
	case state.WorkflowCompleted:
		c.store.CompleteWorkflow(p.WorkflowID, p.Result)
	case state.WorkflowError:
		c.store.FailWorkflow(p.WorkflowID, p.Error)
	default:
		c.store.UpdateWorkflowStatus(p.WorkflowID, state.WorkflowStatus(p.Status), p.CurrentStep)
	}
}

func (c *Controller) onNotification(data json.RawMessage) {
	var p realtime.SystemNotification
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn("bad notification payload", "error", err)
		return
	}
	c.store.AddNotification(state.Notification{
		Severity:   p.Level,
		Title:      p.Title,
		Message:    p.Message,
		Persistent: p.Persistent,
	})
}

// onApprovalRequest records the pending approval and prompts the operator in
// the background; the read loop is never blocked on a human.
func (c *Controller) onApprovalRequest(data json.RawMessage) {
	var p realtime.ApprovalRequestEvent
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn("bad approval payload", "error", err)
		return
	}

	req := c.store.AddApprovalRequest(state.ApprovalRequest{
		ID:                p.ActionID,
		ActionType:        p.ActionType,
		Description:       p.Description,
		Risk:              state.RiskLevel(p.Risk),
		EstimatedCost:     p.EstimatedCost,
		EstimatedDuration: p.EstimatedDuration,
		AgentInvolved:     p.AgentInvolved,
	})

	c.mu.Lock()
	ctx := c.baseCtx
	c.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	go c.resolveApproval(ctx, req, p)
}

func (c *Controller) resolveApproval(ctx context.Context, req state.ApprovalRequest, p realtime.ApprovalRequestEvent) {
	decision, err := c.prompter.Approve(ctx, gates.ApprovalPrompt{
		ActionID:          req.ID,
		ActionType:        req.ActionType,
		Description:       req.Description,
		Risk:              string(req.Risk),
		EstimatedCost:     req.EstimatedCost,
		EstimatedDuration: req.EstimatedDuration,
		AgentInvolved:     req.AgentInvolved,
	})
	if err != nil {
		// An unanswered prompt rejects: dangerous actions never proceed
		// on silence.
		c.logger.Warn("approval prompt failed, rejecting", "action_id", req.ID, "error", err)
		decision = gates.ApprovalDecision{Approved: false, Reason: "prompt unavailable"}
	}

	if !c.store.ResolveApprovalRequest(req.ID, decision.Approved, decision.Reason) {
		// Already settled by a pushed approval_response; no answer is owed.
		return
	}

	if err := c.events.Send(ctx, realtime.EventApprovalResponse, realtime.ApprovalResponseEvent{
		ActionID: req.ID,
		Approved: decision.Approved,
		Reason:   decision.Reason,
	}); err != nil {
		c.logger.Warn("failed to send approval response", "action_id", req.ID, "error", err)
	}
}

// onApprovalResponse applies a resolution pushed by the backend: the store
// record settles and any prompt still parked on the action is released with
// the pushed decision so the operator isn't asked about a settled action.
func (c *Controller) onApprovalResponse(data json.RawMessage) {
	var p realtime.ApprovalResponseEvent
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn("bad approval response payload", "error", err)
		return
	}

	if !c.store.ResolveApprovalRequest(p.ActionID, p.Approved, p.Reason) {
		c.logger.Debug("approval response for unknown or settled action", "action_id", p.ActionID)
		return
	}
	c.logger.Info("approval resolved remotely", "action_id", p.ActionID, "approved", p.Approved)

	if resolver, ok := c.prompter.(ApprovalResolver); ok {
		resolver.Resolve(p.ActionID, gates.ApprovalDecision{Approved: p.Approved, Reason: p.Reason})
	}
}

// RunAgentTask executes one agent with store bookkeeping: running while the
// call is in flight, completed or error afterwards.
func (c *Controller) RunAgentTask(ctx context.Context, req api.AgentTaskRequest) (*api.AgentTaskResult, error) {
	if !state.KnownAgent(req.AgentType) {
		return nil, fmt.Errorf("unknown agent type %q", req.AgentType)
	}

	c.store.UpdateAgentStatus(req.AgentType, state.AgentRunning, req.TaskDescription, "")

	res, err := c.exec.ExecuteAgentTask(ctx, req)
	if err != nil {
		c.store.UpdateAgentStatus(req.AgentType, state.AgentError, req.TaskDescription, err.Error())
		return nil, err
	}
	if !res.Success {
		c.store.UpdateAgentStatus(req.AgentType, state.AgentError, req.TaskDescription, res.Error)
		return res, nil
	}

	c.store.UpdateAgentStatus(req.AgentType, state.AgentCompleted, req.TaskDescription, "")
	return res, nil
}

// RunWorkflow executes a workflow with a store record tracking it from start
// to completion or failure.
func (c *Controller) RunWorkflow(ctx context.Context, req api.WorkflowRequest) (*api.WorkflowResult, error) {
	if !state.KnownWorkflow(req.WorkflowType) {
		return nil, fmt.Errorf("unknown workflow type %q", req.WorkflowType)
	}

	rec := c.store.StartWorkflow(req.WorkflowType, state.WorkflowSteps[req.WorkflowType])

	res, err := c.exec.ExecuteWorkflow(ctx, req)
	if err != nil {
		c.store.FailWorkflow(rec.ID, err.Error())
		return nil, err
	}
	if !res.Success {
		c.store.FailWorkflow(rec.ID, res.Error)
		return res, nil
	}

	c.store.CompleteWorkflow(rec.ID, res.Results)
	return res, nil
}

// SendChat posts a user message with the accumulated conversation and returns
// the assistant's reply messages. Both sides of the exchange extend the
// retained history.
func (c *Controller) SendChat(ctx context.Context, content string) ([]api.ChatMessage, error) {
	c.mu.Lock()
	c.history = append(c.history, api.ChatMessage{Role: "user", Content: content})
	messages := append([]api.ChatMessage(nil), c.history...)
	c.mu.Unlock()

	resp, err := c.exec.SendMessages(ctx, messages, nil)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.history = append(c.history, resp.Messages...)
	c.mu.Unlock()
	return resp.Messages, nil
}

// History returns a copy of the chat history.
func (c *Controller) History() []api.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]api.ChatMessage(nil), c.history...)
}

// RequestInput asks the operator for one value via the prompter.
func (c *Controller) RequestInput(ctx context.Context, prompt gates.InputPrompt) (gates.InputResult, error) {
	return c.prompter.Input(ctx, prompt)
}
