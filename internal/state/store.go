// ABOUTME: Observable in-memory store holding agent, workflow, and approval state
// ABOUTME: Mutated only through named actions; readers subscribe per topic

package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// activityCapacity bounds the activity log; oldest entries are evicted.
	activityCapacity = 100

	// subscriberBufferSize is the channel buffer for each topic subscriber.
	subscriberBufferSize = 64
)

// Topic identifies one independently observable slice of store state.
// Subscribers of one topic are not notified for mutations of another.
type Topic string

const (
	TopicAgents        Topic = "agents"
	TopicWorkflows     Topic = "workflows"
	TopicApprovals     Topic = "approvals"
	TopicActivity      Topic = "activity"
	TopicNotifications Topic = "notifications"
	TopicConnection    Topic = "connection"
)

// Store is the single source of truth for the console's orchestration view.
// All mutations go through named actions; direct field access is not exposed.
type Store struct {
	mu            sync.RWMutex
	agents        map[string]*AgentRecord
	workflows     []*WorkflowRecord
	approvals     []*ApprovalRequest
	activity      []ActivityEntry // newest first
	notifications []Notification
	executing     bool
	connected     bool

	subMu  sync.RWMutex
	subs   map[Topic]map[string]chan Topic
	logger *slog.Logger
}

// NewStore creates a store seeded with idle records for every catalog agent.
// Pass nil logger for default.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		agents: make(map[string]*AgentRecord, len(AgentCatalog)),
		subs:   make(map[Topic]map[string]chan Topic),
		logger: logger.With("component", "state"),
	}
	for _, a := range AgentCatalog {
		s.agents[a.ID] = &AgentRecord{ID: a.ID, Name: a.Name, Status: AgentIdle}
	}
	return s
}

// Subscribe registers a subscriber for mutations on the given topic. The
// returned channel receives the topic after each mutation. The subscription
// is cleaned up when ctx is cancelled or Unsubscribe is called with the
// returned ID.
func (s *Store) Subscribe(ctx context.Context, topic Topic) (<-chan Topic, string) {
	subID := uuid.New().String()
	ch := make(chan Topic, subscriberBufferSize)

	s.subMu.Lock()
	if _, ok := s.subs[topic]; !ok {
		s.subs[topic] = make(map[string]chan Topic)
	}
	s.subs[topic][subID] = ch
	s.subMu.Unlock()

	go func() {
		<-ctx.Done()
		s.Unsubscribe(topic, subID)
	}()

	return ch, subID
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(topic Topic, subID string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	subs, ok := s.subs[topic]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}
	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(s.subs, topic)
	}
}

// notify signals all subscribers of a topic. Non-blocking: the signal is
// dropped for subscribers whose channels are full (they are already due for
// a re-read).
func (s *Store) notify(topic Topic) {
	s.subMu.RLock()
	targets := make([]chan Topic, 0, len(s.subs[topic]))
	for _, ch := range s.subs[topic] {
		targets = append(targets, ch)
	}
	s.subMu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- topic:
		default:
			s.logger.Debug("dropped notification for slow subscriber", "topic", topic)
		}
	}
}

// UpdateAgentStatus replaces the matching agent's status, task, and error.
// Progress is reset to 100 when the new status is completed and 0 otherwise;
// this coupling matches the backend dashboard contract and is intentional.
// Unknown agent IDs are ignored with a warning (the catalog is closed).
func (s *Store) UpdateAgentStatus(id string, status AgentStatus, task, errText string) {
	s.mu.Lock()
	rec, ok := s.agents[id]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("status update for unknown agent", "agent_id", id)
		return
	}
	rec.Status = status
	rec.CurrentTask = task
	rec.Error = errText
	if status == AgentCompleted {
		rec.Progress = 100
		rec.LastCompleted = time.Now()
	} else {
		rec.Progress = 0
	}
	s.mu.Unlock()

	s.notify(TopicAgents)
	s.AddActivity(id, "status "+string(status), detailMap("task", task, "error", errText))
}

// UpdateAgentProgress sets an agent's progress percentage without touching
// its status.
func (s *Store) UpdateAgentProgress(id string, progress int) {
	s.mu.Lock()
	rec, ok := s.agents[id]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("progress update for unknown agent", "agent_id", id)
		return
	}
	rec.Progress = progress
	s.mu.Unlock()

	s.notify(TopicAgents)
}

// ResetAgent returns an agent to idle with no task, error, or progress.
func (s *Store) ResetAgent(id string) {
	s.mu.Lock()
	rec, ok := s.agents[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	rec.Status = AgentIdle
	rec.CurrentTask = ""
	rec.Error = ""
	rec.Progress = 0
	s.mu.Unlock()

	s.notify(TopicAgents)
}

// StartWorkflow creates a new running workflow record with a generated ID,
// sets its current step to the first of steps, and raises the global
// executing flag. The created record is returned by value.
func (s *Store) StartWorkflow(workflowType string, steps []string) WorkflowRecord {
	rec := &WorkflowRecord{
		ID:        uuid.New().String(),
		Type:      workflowType,
		Status:    WorkflowRunning,
		StartedAt: time.Now(),
		Steps:     append([]string(nil), steps...),
	}
	if len(steps) > 0 {
		rec.CurrentStep = steps[0]
	}

	s.mu.Lock()
	s.workflows = append(s.workflows, rec)
	s.executing = true
	s.mu.Unlock()

	s.notify(TopicWorkflows)
	s.AddActivity("workflow", "started "+workflowType, detailMap("workflow_id", rec.ID))
	return *rec
}

// UpdateWorkflowStatus updates a workflow's status and, when step is
// non-empty, its current step. A step outside the workflow's declared
// sequence is rejected: the record's steps are the only valid positions.
func (s *Store) UpdateWorkflowStatus(id string, status WorkflowStatus, step string) {
	s.mu.Lock()
	rec := s.findWorkflowLocked(id)
	if rec == nil {
		s.mu.Unlock()
		s.logger.Warn("update for unknown workflow", "workflow_id", id)
		return
	}
	rec.Status = status
	if step != "" {
		if containsStep(rec.Steps, step) {
			rec.CurrentStep = step
		} else {
			s.logger.Warn("workflow step not in declared sequence",
				"workflow_id", id, "step", step)
		}
	}
	s.mu.Unlock()

	s.notify(TopicWorkflows)
	s.AddActivity("workflow", "status "+string(status), detailMap("workflow_id", id, "step", step))
}

// CompleteWorkflow marks a workflow completed, stamps its end time, stores
// the result payload, and clears the global executing flag.
func (s *Store) CompleteWorkflow(id string, result map[string]any) {
	s.mu.Lock()
	rec := s.findWorkflowLocked(id)
	if rec == nil {
		s.mu.Unlock()
		s.logger.Warn("completion for unknown workflow", "workflow_id", id)
		return
	}
	rec.Status = WorkflowCompleted
	rec.EndedAt = time.Now()
	rec.Result = result
	s.executing = false
	s.mu.Unlock()

	s.notify(TopicWorkflows)
	s.AddActivity("workflow", "completed", detailMap("workflow_id", id))
}

// FailWorkflow marks a workflow as terminally errored, stamps its end time,
// and clears the global executing flag.
func (s *Store) FailWorkflow(id, errText string) {
	s.mu.Lock()
	rec := s.findWorkflowLocked(id)
	if rec == nil {
		s.mu.Unlock()
		s.logger.Warn("failure for unknown workflow", "workflow_id", id)
		return
	}
	rec.Status = WorkflowError
	rec.EndedAt = time.Now()
	rec.Error = errText
	s.executing = false
	s.mu.Unlock()

	s.notify(TopicWorkflows)
	s.AddActivity("workflow", "failed", detailMap("workflow_id", id, "error", errText))
}

// ClearWorkflows drops all retained workflow records.
func (s *Store) ClearWorkflows() {
	s.mu.Lock()
	s.workflows = nil
	s.mu.Unlock()
	s.notify(TopicWorkflows)
}

// AddApprovalRequest appends a new pending approval. A missing ID or
// creation timestamp is generated; status is always forced to pending.
// The stored record is returned by value.
func (s *Store) AddApprovalRequest(req ApprovalRequest) ApprovalRequest {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	req.Status = ApprovalPending

	rec := req
	s.mu.Lock()
	s.approvals = append(s.approvals, &rec)
	s.mu.Unlock()

	s.notify(TopicApprovals)
	s.AddActivity("system", "approval requested",
		detailMap("approval_id", req.ID, "risk", string(req.Risk), "action_type", req.ActionType))
	return req
}

// ResolveApprovalRequest flips a pending approval to approved or rejected.
// An unknown identifier, or one already resolved, is a no-op: no error, no
// new record. Reports whether this call settled the request, so callers can
// tell their own resolution apart from one that raced ahead of them.
func (s *Store) ResolveApprovalRequest(id string, approved bool, reason string) bool {
	s.mu.Lock()
	var rec *ApprovalRequest
	for _, a := range s.approvals {
		if a.ID == id && a.Status == ApprovalPending {
			rec = a
			break
		}
	}
	if rec == nil {
		s.mu.Unlock()
		return false
	}
	if approved {
		rec.Status = ApprovalApproved
	} else {
		rec.Status = ApprovalRejected
	}
	rec.Reason = reason
	s.mu.Unlock()

	s.notify(TopicApprovals)
	s.AddActivity("system", "approval resolved",
		detailMap("approval_id", id, "approved", approved))
	return true
}

// AddActivity prepends an audit entry and truncates the log to its capacity.
// Entries are kept newest first.
func (s *Store) AddActivity(subject, action string, details map[string]any) {
	entry := ActivityEntry{
		ID:        uuid.New().String(),
		Subject:   subject,
		Action:    action,
		Timestamp: time.Now(),
		Details:   details,
	}

	s.mu.Lock()
	s.activity = append([]ActivityEntry{entry}, s.activity...)
	if len(s.activity) > activityCapacity {
		s.activity = s.activity[:activityCapacity]
	}
	s.mu.Unlock()

	s.notify(TopicActivity)
}

// AddNotification records a system notification from the backend.
func (s *Store) AddNotification(n Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	s.mu.Lock()
	s.notifications = append(s.notifications, n)
	s.mu.Unlock()
	s.notify(TopicNotifications)
}

// ClearNotifications drops all non-persistent notifications.
func (s *Store) ClearNotifications() {
	s.mu.Lock()
	kept := s.notifications[:0]
	for _, n := range s.notifications {
		if n.Persistent {
			kept = append(kept, n)
		}
	}
	s.notifications = kept
	s.mu.Unlock()
	s.notify(TopicNotifications)
}

// SetConnected records the real-time channel's connectivity.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	changed := s.connected != connected
	s.connected = connected
	s.mu.Unlock()
	if changed {
		s.notify(TopicConnection)
	}
}

// Agents returns a copy of every agent record in catalog order.
func (s *Store) Agents() []AgentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AgentRecord, 0, len(AgentCatalog))
	for _, a := range AgentCatalog {
		out = append(out, *s.agents[a.ID])
	}
	return out
}

// Agent returns a copy of one agent record by ID.
func (s *Store) Agent(id string) (AgentRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.agents[id]
	if !ok {
		return AgentRecord{}, false
	}
	return *rec, true
}

// Workflows returns copies of all retained workflow records, oldest first.
func (s *Store) Workflows() []WorkflowRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]WorkflowRecord, 0, len(s.workflows))
	for _, w := range s.workflows {
		out = append(out, *w)
	}
	return out
}

// Workflow returns a copy of one workflow record by ID.
func (s *Store) Workflow(id string) (WorkflowRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec := s.findWorkflowLocked(id); rec != nil {
		return *rec, true
	}
	return WorkflowRecord{}, false
}

// Approvals returns copies of all approval requests, oldest first.
func (s *Store) Approvals() []ApprovalRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ApprovalRequest, 0, len(s.approvals))
	for _, a := range s.approvals {
		out = append(out, *a)
	}
	return out
}

// PendingApprovals returns copies of unresolved approval requests.
func (s *Store) PendingApprovals() []ApprovalRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ApprovalRequest
	for _, a := range s.approvals {
		if a.Status == ApprovalPending {
			out = append(out, *a)
		}
	}
	return out
}

// Activity returns a copy of the activity log, newest first.
func (s *Store) Activity() []ActivityEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ActivityEntry(nil), s.activity...)
}

// Notifications returns a copy of recorded notifications, oldest first.
func (s *Store) Notifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Notification(nil), s.notifications...)
}

// IsExecuting reports whether a workflow is currently running.
func (s *Store) IsExecuting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.executing
}

// Connected reports the last recorded real-time channel connectivity.
func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// findWorkflowLocked returns the workflow with the given ID. Must be called
// with mu held.
func (s *Store) findWorkflowLocked(id string) *WorkflowRecord {
	for _, w := range s.workflows {
		if w.ID == id {
			return w
		}
	}
	return nil
}

func containsStep(steps []string, step string) bool {
	for _, st := range steps {
		if st == step {
			return true
		}
	}
	return false
}

// detailMap builds a details map from key/value pairs, skipping empty string
// values so activity entries stay compact.
func detailMap(pairs ...any) map[string]any {
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			continue
		}
		if s, isStr := pairs[i+1].(string); isStr && s == "" {
			continue
		}
		m[key] = pairs[i+1]
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
