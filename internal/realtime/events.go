// ABOUTME: Wire envelope, event type constants, and typed payload shapes
// ABOUTME: Each inbound event type carries a shape check applied before dispatch

package realtime

import (
	"encoding/json"
	"errors"
	"time"
)

// Event types exchanged with the backend.
const (
	EventAgentStatusUpdate  = "agent_status_update"
	EventWorkflowUpdate     = "workflow_update"
	EventSystemNotification = "system_notification"
	EventApprovalRequest    = "approval_request"
	EventApprovalResponse   = "approval_response"
	EventMessage            = "message"
)

// Envelope is the frame format on the wire.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// AgentStatusUpdate reports a change in a single agent's state.
type AgentStatusUpdate struct {
	AgentID  string `json:"agent_id"`
	Status   string `json:"status"`
	Task     string `json:"task,omitempty"`
	Error    string `json:"error,omitempty"`
	Progress *int   `json:"progress,omitempty"`
}

// WorkflowUpdate reports workflow progress or completion.
type WorkflowUpdate struct {
	WorkflowID  string         `json:"workflow_id"`
	Status      string         `json:"status"`
	CurrentStep string         `json:"current_step,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// SystemNotification is a broadcast informational message.
type SystemNotification struct {
	Level      string `json:"level"`
	Title      string `json:"title,omitempty"`
	Message    string `json:"message"`
	Persistent bool   `json:"persistent,omitempty"`
}

// ApprovalRequestEvent asks the operator to approve or reject an action.
type ApprovalRequestEvent struct {
	ActionID          string   `json:"action_id"`
	ActionType        string   `json:"action_type"`
	Description       string   `json:"description"`
	Risk              string   `json:"risk"`
	EstimatedCost     *float64 `json:"estimated_cost,omitempty"`
	EstimatedDuration *int     `json:"estimated_duration,omitempty"`
	AgentInvolved     string   `json:"agent_involved,omitempty"`
}

// ApprovalResponseEvent carries an approval resolution in either direction:
// the operator's decision out to the backend, or a resolution made elsewhere
// (backend policy, another operator) pushed in.
type ApprovalResponseEvent struct {
	ActionID string `json:"action_id"`
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// shapeChecks validate the payload of known inbound event types before any
// listener sees it. Unknown types pass through unchecked.
var shapeChecks = map[string]func(json.RawMessage) error{
	EventAgentStatusUpdate: func(data json.RawMessage) error {
		var p AgentStatusUpdate
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.AgentID == "" || p.Status == "" {
			return errors.New("agent_status_update requires agent_id and status")
		}
		return nil
	},
	EventWorkflowUpdate: func(data json.RawMessage) error {
		var p WorkflowUpdate
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.WorkflowID == "" || p.Status == "" {
			return errors.New("workflow_update requires workflow_id and status")
		}
		return nil
	},
	EventSystemNotification: func(data json.RawMessage) error {
		var p SystemNotification
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.Message == "" {
			return errors.New("system_notification requires message")
		}
		return nil
	},
	EventApprovalRequest: func(data json.RawMessage) error {
		var p ApprovalRequestEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.ActionID == "" || p.Description == "" {
			return errors.New("approval_request requires action_id and description")
		}
		return nil
	},
	EventApprovalResponse: func(data json.RawMessage) error {
		var p ApprovalResponseEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.ActionID == "" {
			return errors.New("approval_response requires action_id")
		}
		return nil
	},
}
