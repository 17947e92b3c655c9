// ABOUTME: Typed /copilotkit operations: agent tasks, workflows, and chat messages
// ABOUTME: Requests are validated client-side before anything leaves the process

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Action names recognized by POST {chat}/actions.
const (
	ActionExecuteAgentTask = "executeAgentTask"
	ActionExecuteWorkflow  = "executeWorkflow"
)

// dangerousParamKeys are substrings rejected in parameter keys. Mirrors the
// backend's own request validation so bad requests fail before the wire.
var dangerousParamKeys = []string{"__import__", "eval", "exec", "open", "file"}

// actionRequest is the generic envelope for POST {chat}/actions.
type actionRequest struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// AgentTaskRequest describes a single agent execution.
type AgentTaskRequest struct {
	AgentType       string         `json:"agent_type"`
	TaskDescription string         `json:"task_description"`
	Parameters      map[string]any `json:"parameters,omitempty"`
}

// Validate normalizes and checks the request against the configured limits.
func (r *AgentTaskRequest) Validate(limits Limits) error {
	if r.AgentType == "" {
		return fmt.Errorf("agent_type is required")
	}
	r.TaskDescription = strings.TrimSpace(r.TaskDescription)
	if r.TaskDescription == "" {
		return fmt.Errorf("task description cannot be empty")
	}
	if limits.MaxTaskDescriptionLength > 0 && len(r.TaskDescription) > limits.MaxTaskDescriptionLength {
		return fmt.Errorf("task description exceeds %d characters", limits.MaxTaskDescriptionLength)
	}
	for key := range r.Parameters {
		lower := strings.ToLower(key)
		for _, danger := range dangerousParamKeys {
			if strings.Contains(lower, danger) {
				return fmt.Errorf("parameter key %q contains potentially dangerous content", key)
			}
		}
	}
	return nil
}

// WorkflowRequest describes a multi-agent workflow execution.
type WorkflowRequest struct {
	WorkflowType   string `json:"workflow_type"`
	RepositoryPath string `json:"repository_path,omitempty"`
	Requirements   string `json:"requirements,omitempty"`
}

// Validate normalizes and checks the request against the configured limits.
func (r *WorkflowRequest) Validate(limits Limits) error {
	if r.WorkflowType == "" {
		return fmt.Errorf("workflow_type is required")
	}
	if r.RepositoryPath != "" {
		if strings.Contains(r.RepositoryPath, "..") {
			return fmt.Errorf("repository path cannot contain '..'")
		}
		r.RepositoryPath = strings.TrimPrefix(r.RepositoryPath, "/")
		if r.RepositoryPath == "" {
			return fmt.Errorf("repository path cannot be empty")
		}
		if limits.MaxRepositoryPathLength > 0 && len(r.RepositoryPath) > limits.MaxRepositoryPathLength {
			return fmt.Errorf("repository path exceeds %d characters", limits.MaxRepositoryPathLength)
		}
	}
	r.Requirements = strings.TrimSpace(r.Requirements)
	if limits.MaxRequirementsLength > 0 && len(r.Requirements) > limits.MaxRequirementsLength {
		return fmt.Errorf("requirements exceed %d characters", limits.MaxRequirementsLength)
	}
	return nil
}

// AgentTaskResult is the backend's response to executeAgentTask.
type AgentTaskResult struct {
	Success         bool           `json:"success"`
	AgentType       string         `json:"agent_type"`
	TaskDescription string         `json:"task_description"`
	Result          map[string]any `json:"result,omitempty"`
	Error           string         `json:"error,omitempty"`
	Timestamp       string         `json:"timestamp,omitempty"`
	ExecutionTimeMS int64          `json:"execution_time_ms,omitempty"`
}

// WorkflowResult is the backend's response to executeWorkflow.
type WorkflowResult struct {
	Success         bool           `json:"success"`
	WorkflowType    string         `json:"workflow_type"`
	Results         map[string]any `json:"results,omitempty"`
	Error           string         `json:"error,omitempty"`
	Timestamp       string         `json:"timestamp,omitempty"`
	ExecutionTimeMS int64          `json:"execution_time_ms,omitempty"`
	StepsCompleted  []string       `json:"steps_completed,omitempty"`
}

// ExecuteAgentTask runs a single agent task. The call uses the per-agent
// execution timeout, not the default request timeout.
func (c *Client) ExecuteAgentTask(ctx context.Context, req AgentTaskRequest) (*AgentTaskResult, error) {
	if err := req.Validate(c.limits); err != nil {
		return nil, &Error{Message: err.Error(), Code: CodeValidation}
	}

	params := map[string]any{
		"agent_type":       req.AgentType,
		"task_description": req.TaskDescription,
	}
	if len(req.Parameters) > 0 {
		params["parameters"] = req.Parameters
	}

	var out AgentTaskResult
	err := c.do(ctx, http.MethodPost, c.chatEndpoint+"/actions",
		actionRequest{Name: ActionExecuteAgentTask, Parameters: params},
		&out, withTimeout(c.agentTimeout))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ExecuteWorkflow runs a multi-agent workflow. The call uses the per-workflow
// execution timeout, not the default request timeout.
func (c *Client) ExecuteWorkflow(ctx context.Context, req WorkflowRequest) (*WorkflowResult, error) {
	if err := req.Validate(c.limits); err != nil {
		return nil, &Error{Message: err.Error(), Code: CodeValidation}
	}

	params := map[string]any{"workflow_type": req.WorkflowType}
	if req.RepositoryPath != "" {
		params["repository_path"] = req.RepositoryPath
	}
	if req.Requirements != "" {
		params["requirements"] = req.Requirements
	}

	var out WorkflowResult
	err := c.do(ctx, http.MethodPost, c.chatEndpoint+"/actions",
		actionRequest{Name: ActionExecuteWorkflow, Parameters: params},
		&out, withTimeout(c.workflowTimeout))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatMessage is one turn in a chat exchange.
type ChatMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// MessagesRequest is the payload of POST {chat}/messages.
type MessagesRequest struct {
	Messages []ChatMessage  `json:"messages"`
	Context  map[string]any `json:"context,omitempty"`
}

// MessagesResponse is the backend's chat reply.
type MessagesResponse struct {
	Messages  []ChatMessage  `json:"messages"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// SendMessages posts a chat exchange. At least one user message is required,
// and user message content is capped at the configured length.
func (c *Client) SendMessages(ctx context.Context, messages []ChatMessage, chatContext map[string]any) (*MessagesResponse, error) {
	hasUser := false
	for _, m := range messages {
		if m.Role == "user" {
			hasUser = true
			if c.limits.MaxMessageLength > 0 && len(m.Content) > c.limits.MaxMessageLength {
				return nil, &Error{
					Message: fmt.Sprintf("message exceeds %d characters", c.limits.MaxMessageLength),
					Code:    CodeValidation,
				}
			}
		}
	}
	if !hasUser {
		return nil, &Error{Message: "at least one user message is required", Code: CodeValidation}
	}

	var out MessagesResponse
	err := c.do(ctx, http.MethodPost, c.chatEndpoint+"/messages",
		MessagesRequest{Messages: messages, Context: chatContext}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
