// ABOUTME: Data types for the console's client-side view of orchestration state
// ABOUTME: Defines AgentRecord, WorkflowRecord, ApprovalRequest, ActivityEntry and enums

package state

import "time"

// AgentStatus is the lifecycle status of an agent record.
type AgentStatus string

const (
	AgentIdle      AgentStatus = "idle"
	AgentRunning   AgentStatus = "running"
	AgentCompleted AgentStatus = "completed"
	AgentError     AgentStatus = "error"
)

// WorkflowStatus is the lifecycle status of a workflow record.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowError     WorkflowStatus = "error"
)

// RiskLevel classifies how dangerous an action awaiting approval is.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Action types that arrive on approval requests.
const (
	ActionDeployment         = "deployment"
	ActionCriticalChange     = "critical_change"
	ActionResourceIntensive  = "resource_intensive"
	ActionMultiAgentWorkflow = "multi_agent_workflow"
)

// ApprovalStatus is the resolution state of an approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// AgentRecord tracks one orchestrable unit of work type. Records are seeded
// from the fixed catalog at store creation and are mutated in place by
// status-update events; they are never deleted, only reset to idle.
type AgentRecord struct {
	ID            string
	Name          string
	Status        AgentStatus
	CurrentTask   string
	LastCompleted time.Time
	Error         string
	Progress      int
}

// WorkflowRecord tracks one multi-agent execution instance.
type WorkflowRecord struct {
	ID          string
	Type        string
	Status      WorkflowStatus
	StartedAt   time.Time
	EndedAt     time.Time
	Steps       []string
	CurrentStep string
	Result      map[string]any
	Error       string
}

// ApprovalRequest is a pending human decision gate pushed by the backend.
// A request resolves exactly once (approved or rejected) and is retained
// afterwards for audit display.
type ApprovalRequest struct {
	ID                string
	ActionType        string
	Description       string
	Risk              RiskLevel
	EstimatedCost     *float64
	EstimatedDuration *int // minutes
	AgentInvolved     string
	Status            ApprovalStatus
	Reason            string
	CreatedAt         time.Time
}

// ActivityEntry is one immutable audit-trail line for the UI. Subject is an
// agent ID, "workflow", or "system".
type ActivityEntry struct {
	ID        string
	Subject   string
	Action    string
	Timestamp time.Time
	Details   map[string]any
}

// Notification is a system notification pushed by the backend.
type Notification struct {
	Severity   string
	Title      string
	Message    string
	Persistent bool
	Timestamp  time.Time
}
