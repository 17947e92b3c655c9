// ABOUTME: Tests for the observable state store's named actions and invariants
// ABOUTME: Covers progress coupling, activity eviction, approval no-ops, and topics

package state

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return NewStore(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNewStore_SeedsCatalog(t *testing.T) {
	s := newTestStore()

	agents := s.Agents()
	require.Len(t, agents, len(AgentCatalog))
	for i, a := range agents {
		assert.Equal(t, AgentCatalog[i].ID, a.ID)
		assert.Equal(t, AgentIdle, a.Status)
		assert.Equal(t, 0, a.Progress)
	}
}

func TestUpdateAgentStatus_CompletedSetsProgress(t *testing.T) {
	s := newTestStore()

	s.UpdateAgentStatus(AgentRepositoryAnalyzer, AgentCompleted, "", "")

	rec, ok := s.Agent(AgentRepositoryAnalyzer)
	require.True(t, ok)
	assert.Equal(t, AgentCompleted, rec.Status)
	assert.Equal(t, 100, rec.Progress)
	assert.False(t, rec.LastCompleted.IsZero())

	// All other agents are untouched.
	for _, a := range s.Agents() {
		if a.ID == AgentRepositoryAnalyzer {
			continue
		}
		assert.Equal(t, AgentIdle, a.Status, "agent %s", a.ID)
		assert.Equal(t, 0, a.Progress, "agent %s", a.ID)
	}
}

func TestUpdateAgentStatus_NonCompletedResetsProgress(t *testing.T) {
	s := newTestStore()

	// A granular progress value set just before a status change is lost.
	// This mirrors the dashboard contract; the coupling is deliberate.
	s.UpdateAgentProgress(AgentValidator, 70)
	s.UpdateAgentStatus(AgentValidator, AgentRunning, "validating plan", "")

	rec, ok := s.Agent(AgentValidator)
	require.True(t, ok)
	assert.Equal(t, AgentRunning, rec.Status)
	assert.Equal(t, "validating plan", rec.CurrentTask)
	assert.Equal(t, 0, rec.Progress)
}

func TestUpdateAgentStatus_UnknownAgentIgnored(t *testing.T) {
	s := newTestStore()

	s.UpdateAgentStatus("not-in-catalog", AgentRunning, "", "")

	assert.Len(t, s.Agents(), len(AgentCatalog))
}

func TestUpdateAgentProgress_LeavesStatusAlone(t *testing.T) {
	s := newTestStore()

	s.UpdateAgentStatus(AgentValidator, AgentRunning, "task", "")
	s.UpdateAgentProgress(AgentValidator, 40)

	rec, _ := s.Agent(AgentValidator)
	assert.Equal(t, AgentRunning, rec.Status)
	assert.Equal(t, 40, rec.Progress)
}

func TestWorkflowLifecycle(t *testing.T) {
	s := newTestStore()
	steps := []string{"analyze", "extract", "design", "plan", "validate"}

	rec := s.StartWorkflow("full_analysis", steps)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, WorkflowRunning, rec.Status)
	assert.Equal(t, "analyze", rec.CurrentStep)
	assert.False(t, rec.StartedAt.IsZero())
	assert.True(t, s.IsExecuting())

	s.UpdateWorkflowStatus(rec.ID, WorkflowRunning, "design")
	got, ok := s.Workflow(rec.ID)
	require.True(t, ok)
	assert.Equal(t, "design", got.CurrentStep)

	s.CompleteWorkflow(rec.ID, map[string]any{"ok": true})
	got, ok = s.Workflow(rec.ID)
	require.True(t, ok)
	assert.Equal(t, WorkflowCompleted, got.Status)
	assert.False(t, got.EndedAt.IsZero())
	assert.Equal(t, map[string]any{"ok": true}, got.Result)
	assert.False(t, s.IsExecuting())
}

func TestUpdateWorkflowStatus_RejectsForeignStep(t *testing.T) {
	s := newTestStore()
	rec := s.StartWorkflow("validation_only", []string{"validation"})

	s.UpdateWorkflowStatus(rec.ID, WorkflowRunning, "not-a-step")

	got, _ := s.Workflow(rec.ID)
	assert.Equal(t, "validation", got.CurrentStep)
}

func TestFailWorkflow(t *testing.T) {
	s := newTestStore()
	rec := s.StartWorkflow("full_analysis", WorkflowSteps[WorkflowFullAnalysis])

	s.FailWorkflow(rec.ID, "step timed out")

	got, _ := s.Workflow(rec.ID)
	assert.Equal(t, WorkflowError, got.Status)
	assert.Equal(t, "step timed out", got.Error)
	assert.False(t, got.EndedAt.IsZero())
	assert.False(t, s.IsExecuting())
}

func TestAddApprovalRequest_GeneratesFields(t *testing.T) {
	s := newTestStore()

	req := s.AddApprovalRequest(ApprovalRequest{
		ActionType:  ActionDeployment,
		Description: "deploy to staging",
		Risk:        RiskHigh,
		Status:      ApprovalApproved, // must be forced back to pending
	})

	assert.NotEmpty(t, req.ID)
	assert.False(t, req.CreatedAt.IsZero())
	assert.Equal(t, ApprovalPending, req.Status)
	assert.Len(t, s.PendingApprovals(), 1)
}

func TestResolveApprovalRequest(t *testing.T) {
	s := newTestStore()
	req := s.AddApprovalRequest(ApprovalRequest{ActionType: ActionDeployment, Risk: RiskLow})

	assert.True(t, s.ResolveApprovalRequest(req.ID, false, "too risky today"))

	all := s.Approvals()
	require.Len(t, all, 1)
	assert.Equal(t, ApprovalRejected, all[0].Status)
	assert.Equal(t, "too risky today", all[0].Reason)
	assert.Empty(t, s.PendingApprovals())

	// Resolution is one-way: a second resolve is a no-op and reports it.
	assert.False(t, s.ResolveApprovalRequest(req.ID, true, ""))
	all = s.Approvals()
	assert.Equal(t, ApprovalRejected, all[0].Status)
}

func TestResolveApprovalRequest_UnknownIDIsNoOp(t *testing.T) {
	s := newTestStore()
	s.AddApprovalRequest(ApprovalRequest{ActionType: ActionCriticalChange})

	before := s.Approvals()
	assert.False(t, s.ResolveApprovalRequest("no-such-id", true, ""))
	after := s.Approvals()

	assert.Equal(t, before, after)
}

func TestAddActivity_BoundedNewestFirst(t *testing.T) {
	s := newTestStore()

	for i := 0; i < 105; i++ {
		s.AddActivity("system", fmt.Sprintf("entry %d", i), nil)
	}

	activity := s.Activity()
	require.Len(t, activity, 100)
	assert.Equal(t, "entry 104", activity[0].Action)
	assert.Equal(t, "entry 5", activity[99].Action)
	for _, e := range activity {
		assert.NotContains(t, []string{"entry 0", "entry 1", "entry 2", "entry 3", "entry 4"}, e.Action)
	}
}

func TestSubscribe_TopicIsolation(t *testing.T) {
	s := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agentCh, _ := s.Subscribe(ctx, TopicAgents)
	approvalCh, _ := s.Subscribe(ctx, TopicApprovals)

	s.UpdateAgentProgress(AgentValidator, 10)

	select {
	case topic := <-agentCh:
		assert.Equal(t, TopicAgents, topic)
	default:
		t.Fatal("expected agents notification")
	}

	select {
	case <-approvalCh:
		t.Fatal("approvals subscriber must not see agent mutations")
	default:
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	s := newTestStore()
	ch, id := s.Subscribe(context.Background(), TopicActivity)

	s.Unsubscribe(TopicActivity, id)

	_, open := <-ch
	assert.False(t, open)
}

func TestSetConnected_NotifiesOnChange(t *testing.T) {
	s := newTestStore()
	ch, _ := s.Subscribe(context.Background(), TopicConnection)

	s.SetConnected(true)
	select {
	case <-ch:
	default:
		t.Fatal("expected connection notification")
	}

	// Same value again: no notification.
	s.SetConnected(true)
	select {
	case <-ch:
		t.Fatal("unchanged connectivity must not notify")
	default:
	}
	assert.True(t, s.Connected())
}
