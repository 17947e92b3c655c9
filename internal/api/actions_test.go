// ABOUTME: Tests for typed action/message operations and their client-side validation
// ABOUTME: Mirrors the backend schema rules for descriptions, paths, and parameters

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentTaskRequest_Validate(t *testing.T) {
	limits := DefaultLimits()

	tests := []struct {
		name    string
		req     AgentTaskRequest
		wantErr string
	}{
		{
			name: "valid",
			req:  AgentTaskRequest{AgentType: "validator", TaskDescription: "check the plan"},
		},
		{
			name:    "missing agent type",
			req:     AgentTaskRequest{TaskDescription: "x"},
			wantErr: "agent_type",
		},
		{
			name:    "blank description",
			req:     AgentTaskRequest{AgentType: "validator", TaskDescription: "   "},
			wantErr: "empty",
		},
		{
			name: "description too long",
			req: AgentTaskRequest{
				AgentType:       "validator",
				TaskDescription: strings.Repeat("x", 501),
			},
			wantErr: "500",
		},
		{
			name: "dangerous parameter key",
			req: AgentTaskRequest{
				AgentType:       "validator",
				TaskDescription: "ok",
				Parameters:      map[string]any{"eval_mode": true},
			},
			wantErr: "dangerous",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(limits)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestAgentTaskRequest_Validate_TrimsDescription(t *testing.T) {
	req := AgentTaskRequest{AgentType: "validator", TaskDescription: "  review  "}
	require.NoError(t, req.Validate(DefaultLimits()))
	assert.Equal(t, "review", req.TaskDescription)
}

func TestWorkflowRequest_Validate(t *testing.T) {
	limits := DefaultLimits()

	req := WorkflowRequest{WorkflowType: "full_analysis", RepositoryPath: "/srv/repo"}
	require.NoError(t, req.Validate(limits))
	assert.Equal(t, "srv/repo", req.RepositoryPath, "leading slash stripped")

	req = WorkflowRequest{WorkflowType: "full_analysis", RepositoryPath: "a/../b"}
	assert.Error(t, req.Validate(limits))

	req = WorkflowRequest{WorkflowType: "full_analysis", RepositoryPath: "/"}
	assert.Error(t, req.Validate(limits))

	req = WorkflowRequest{WorkflowType: "full_analysis", RepositoryPath: strings.Repeat("p", 256)}
	assert.Error(t, req.Validate(limits))

	req = WorkflowRequest{}
	assert.Error(t, req.Validate(limits))
}

func TestExecuteAgentTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/copilotkit/actions", r.URL.Path)

		var req actionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, ActionExecuteAgentTask, req.Name)
		assert.Equal(t, "repository_analyzer", req.Parameters["agent_type"])
		assert.Equal(t, "map the module layout", req.Parameters["task_description"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"agent_type": "repository_analyzer",
			"task_description": "map the module layout",
			"result": {"summary": "three packages"},
			"execution_time_ms": 1234
		}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, DefaultRetryPolicy())
	res, err := c.ExecuteAgentTask(context.Background(), AgentTaskRequest{
		AgentType:       "repository_analyzer",
		TaskDescription: "map the module layout",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(1234), res.ExecutionTimeMS)
	assert.Equal(t, "three packages", res.Result["summary"])
}

func TestExecuteAgentTask_ValidationErrorNoRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, DefaultRetryPolicy())
	_, err := c.ExecuteAgentTask(context.Background(), AgentTaskRequest{AgentType: "validator"})

	require.Error(t, err)
	apiErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeValidation, apiErr.Code)
	assert.False(t, called, "invalid requests must not reach the backend")
}

func TestExecuteWorkflow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req actionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, ActionExecuteWorkflow, req.Name)
		assert.Equal(t, "full_analysis", req.Parameters["workflow_type"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"workflow_type": "full_analysis",
			"steps_completed": ["repository_analysis", "requirements_extraction"],
			"results": {"validation": {"passed": true}}
		}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, DefaultRetryPolicy())
	res, err := c.ExecuteWorkflow(context.Background(), WorkflowRequest{WorkflowType: "full_analysis"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"repository_analysis", "requirements_extraction"}, res.StepsCompleted)
}

func TestSendMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/copilotkit/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messages":[{"role":"assistant","content":"requirements extracted"}]}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, DefaultRetryPolicy())
	resp, err := c.SendMessages(context.Background(),
		[]ChatMessage{{Role: "user", Content: "extract requirements"}}, nil)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "assistant", resp.Messages[0].Role)
}

func TestSendMessages_Validation(t *testing.T) {
	c, _ := newTestClient(t, "http://unused", DefaultRetryPolicy())

	_, err := c.SendMessages(context.Background(),
		[]ChatMessage{{Role: "assistant", Content: "hi"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user message")

	_, err = c.SendMessages(context.Background(),
		[]ChatMessage{{Role: "user", Content: strings.Repeat("m", 1001)}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1000")
}
