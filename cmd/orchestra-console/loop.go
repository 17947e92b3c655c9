// ABOUTME: Interactive command loop: slash commands over the store and controller
// ABOUTME: Free text goes to the backend chat; /commands inspect and act

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/2389/orchestra-console/internal/api"
	"github.com/2389/orchestra-console/internal/auth"
	"github.com/2389/orchestra-console/internal/console"
	"github.com/2389/orchestra-console/internal/gates"
	"github.com/2389/orchestra-console/internal/realtime"
	"github.com/2389/orchestra-console/internal/state"
)

type consoleLoop struct {
	ctrl     *console.Controller
	store    *state.Store
	rt       *realtime.Manager
	auth     *auth.Manager
	prompter *consolePrompter
	broker   *inputBroker
}

func (l *consoleLoop) run(ctx context.Context) error {
	fmt.Println("Type a message to chat, or /help for commands. Ctrl+C to quit.")
	fmt.Println()

	for {
		fmt.Print("orchestra> ")
		input, err := l.broker.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		l.dispatch(ctx, input)
		fmt.Println()
	}
}

func (l *consoleLoop) dispatch(ctx context.Context, input string) {
	cmd, args, _ := strings.Cut(input, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/help":
		l.printHelp()
	case "/status":
		l.printStatus()
	case "/agents":
		l.printAgents()
	case "/workflows":
		l.printWorkflows()
	case "/approvals":
		l.printApprovals()
	case "/approve":
		l.answerApproval(args, true)
	case "/reject":
		l.answerApproval(args, false)
	case "/activity":
		l.printActivity(args)
	case "/notifications":
		l.printNotifications()
	case "/clear":
		l.store.ClearNotifications()
		fmt.Println("Cleared non-persistent notifications.")
	case "/task":
		l.runTask(ctx, args)
	case "/workflow":
		l.runWorkflow(ctx, args)
	case "/suspend":
		l.rt.Suspend()
		fmt.Println("Realtime channel suspended.")
	case "/resume":
		if err := l.rt.Resume(ctx); err != nil {
			color.Red("resume failed: %v", err)
		} else {
			fmt.Println("Realtime channel resumed.")
		}
	default:
		if strings.HasPrefix(cmd, "/") {
			fmt.Printf("Unknown command %s. Try /help.\n", cmd)
			return
		}
		l.chat(ctx, input)
	}
}

func (l *consoleLoop) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /agents                    Show the agent dashboard")
	fmt.Println("  /workflows                 Show workflow records")
	fmt.Println("  /approvals                 Show approval requests")
	fmt.Println("  /approve <id> [reason]     Approve a pending request")
	fmt.Println("  /reject <id> <reason>      Reject a pending request")
	fmt.Println("  /task <agent> <desc>       Execute a single agent task")
	fmt.Println("  /workflow [type]           Execute a workflow (prompts if no type)")
	fmt.Println("  /activity [n]              Show recent activity (default 10)")
	fmt.Println("  /notifications             Show system notifications")
	fmt.Println("  /clear                     Clear non-persistent notifications")
	fmt.Println("  /status                    Connection and session status")
	fmt.Println("  /suspend, /resume          Pause/resume the realtime channel")
	fmt.Println("  /quit                      Exit")
	fmt.Println()
	fmt.Println("Anything else is sent to the backend as a chat message.")
}

func (l *consoleLoop) printStatus() {
	if l.store.Connected() {
		color.Green("realtime:  connected")
	} else {
		color.Red("realtime:  %s", l.rt.State())
	}
	if user := l.auth.CurrentUser(); user != nil {
		fmt.Printf("signed in: %s (%s)\n", user.Email, user.Role)
	} else {
		fmt.Println("signed in: no")
	}
	fmt.Printf("executing: %v\n", l.store.IsExecuting())
	fmt.Printf("pending approvals: %d\n", len(l.store.PendingApprovals()))
}

func (l *consoleLoop) printAgents() {
	for _, a := range l.store.Agents() {
		fmt.Printf("  %-25s %s", a.Name, agentStatusColor(a.Status).Sprintf("%-10s", a.Status))
		if a.Status == state.AgentRunning {
			fmt.Printf(" %3d%%", a.Progress)
		}
		if a.CurrentTask != "" {
			fmt.Printf("  %s", truncate(a.CurrentTask, 50))
		}
		if a.Error != "" {
			color.New(color.FgRed).Printf("  %s", truncate(a.Error, 50))
		}
		if a.Status == state.AgentCompleted && !a.LastCompleted.IsZero() {
			color.New(color.FgHiBlack).Printf("  done %s", a.LastCompleted.Format("15:04:05"))
		}
		fmt.Println()
	}
}

func (l *consoleLoop) printWorkflows() {
	wfs := l.store.Workflows()
	if len(wfs) == 0 {
		fmt.Println("No workflows.")
		return
	}
	for _, w := range wfs {
		fmt.Printf("  %s  %s  %s", w.ID[:8], w.Type,
			workflowStatusColor(w.Status).Sprint(w.Status))
		if w.Status == state.WorkflowRunning && w.CurrentStep != "" {
			fmt.Printf("  step: %s", w.CurrentStep)
		}
		if !w.EndedAt.IsZero() {
			fmt.Printf("  took %s", w.EndedAt.Sub(w.StartedAt).Round(time.Second))
		}
		if w.Error != "" {
			color.New(color.FgRed).Printf("  %s", truncate(w.Error, 60))
		}
		fmt.Println()
	}
}

func (l *consoleLoop) printApprovals() {
	approvals := l.store.Approvals()
	if len(approvals) == 0 {
		fmt.Println("No approval requests.")
		return
	}
	for _, a := range approvals {
		marker := color.YellowString("pending")
		switch a.Status {
		case state.ApprovalApproved:
			marker = color.GreenString("approved")
		case state.ApprovalRejected:
			marker = color.RedString("rejected")
		}
		fmt.Printf("  %s  [%s]  %s  risk=%s", a.ID, marker, truncate(a.Description, 50), a.Risk)
		if a.Reason != "" {
			fmt.Printf("  (%s)", a.Reason)
		}
		fmt.Println()
	}
}

func (l *consoleLoop) answerApproval(args string, approved bool) {
	id, reason, _ := strings.Cut(args, " ")
	reason = strings.TrimSpace(reason)
	if id == "" {
		fmt.Println("Usage: /approve <id> [reason]  or  /reject <id> <reason>")
		if pending := l.prompter.PendingIDs(); len(pending) > 0 {
			fmt.Printf("Pending: %s\n", strings.Join(pending, ", "))
		}
		return
	}
	if !approved && reason == "" {
		fmt.Println("A rejection needs a reason.")
		return
	}

	if !l.prompter.Resolve(id, gates.ApprovalDecision{Approved: approved, Reason: reason}) {
		fmt.Printf("No pending approval %q.\n", id)
		return
	}
	if approved {
		color.Green("Approved %s", id)
	} else {
		color.Yellow("Rejected %s", id)
	}
}

func (l *consoleLoop) printActivity(args string) {
	limit := 10
	if args != "" {
		if n, err := strconv.Atoi(args); err == nil && n > 0 {
			limit = n
		}
	}
	entries := l.store.Activity()
	if len(entries) == 0 {
		fmt.Println("No activity.")
		return
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for _, e := range entries {
		fmt.Printf("  %s  %-22s %s\n",
			color.New(color.FgHiBlack).Sprint(e.Timestamp.Format("15:04:05")),
			e.Subject, e.Action)
	}
}

func (l *consoleLoop) printNotifications() {
	ns := l.store.Notifications()
	if len(ns) == 0 {
		fmt.Println("No notifications.")
		return
	}
	for _, n := range ns {
		sev := color.CyanString(n.Severity)
		switch n.Severity {
		case "warning":
			sev = color.YellowString(n.Severity)
		case "error", "critical":
			sev = color.RedString(n.Severity)
		}
		fmt.Printf("  [%s]", sev)
		if n.Title != "" {
			color.New(color.Bold).Printf(" %s:", n.Title)
		}
		fmt.Printf(" %s", n.Message)
		if n.Persistent {
			color.New(color.FgHiBlack).Print("  (persistent)")
		}
		fmt.Println()
	}
}

func (l *consoleLoop) runTask(ctx context.Context, args string) {
	agentID, desc, _ := strings.Cut(args, " ")
	desc = strings.TrimSpace(desc)
	if agentID == "" || desc == "" {
		fmt.Println("Usage: /task <agent_id> <description>")
		fmt.Println("Agents:")
		for _, a := range state.AgentCatalog {
			fmt.Printf("  %s\n", a.ID)
		}
		return
	}

	fmt.Printf("Running %s...\n", agentID)
	res, err := l.ctrl.RunAgentTask(ctx, api.AgentTaskRequest{
		AgentType:       agentID,
		TaskDescription: desc,
	})
	if err != nil {
		color.Red("task failed: %v", err)
		return
	}
	if !res.Success {
		color.Red("task failed: %s", res.Error)
		return
	}
	color.Green("Completed in %dms", res.ExecutionTimeMS)
	for key, val := range res.Result {
		fmt.Printf("  %s: %s\n", key, truncate(fmt.Sprint(val), 100))
	}
}

func (l *consoleLoop) runWorkflow(ctx context.Context, args string) {
	workflowType := args

	if workflowType == "" {
		types := make([]string, 0, len(state.WorkflowSteps))
		for t := range state.WorkflowSteps {
			types = append(types, t)
		}
		sort.Strings(types)

		res, err := l.ctrl.RequestInput(ctx, gates.InputPrompt{
			ID:      "workflow_type",
			Kind:    gates.KindSelect,
			Label:   "Workflow type",
			Options: types,
			Default: state.WorkflowFullAnalysis,
		})
		if err != nil || res.Cancelled {
			fmt.Println("Cancelled.")
			return
		}
		workflowType = res.Value.(string)
	}

	pathRes, err := l.ctrl.RequestInput(ctx, gates.InputPrompt{
		ID:    "repository_path",
		Kind:  gates.KindText,
		Label: "Repository path (empty for none)",
	})
	if err != nil || pathRes.Cancelled {
		fmt.Println("Cancelled.")
		return
	}
	reqRes, err := l.ctrl.RequestInput(ctx, gates.InputPrompt{
		ID:    "requirements",
		Kind:  gates.KindText,
		Label: "Requirements (empty for none)",
	})
	if err != nil || reqRes.Cancelled {
		fmt.Println("Cancelled.")
		return
	}

	fmt.Printf("Running workflow %s...\n", workflowType)
	res, err := l.ctrl.RunWorkflow(ctx, api.WorkflowRequest{
		WorkflowType:   workflowType,
		RepositoryPath: strings.TrimSpace(pathRes.Value.(string)),
		Requirements:   strings.TrimSpace(reqRes.Value.(string)),
	})
	if err != nil {
		color.Red("workflow failed: %v", err)
		return
	}
	if !res.Success {
		color.Red("workflow failed: %s", res.Error)
		return
	}
	color.Green("Workflow completed: %d steps", len(res.StepsCompleted))
	for _, step := range res.StepsCompleted {
		fmt.Printf("  ✓ %s\n", step)
	}
}

func (l *consoleLoop) chat(ctx context.Context, content string) {
	reply, err := l.ctrl.SendChat(ctx, content)
	if err != nil {
		color.Red("chat failed: %v", err)
		return
	}
	for _, msg := range reply {
		if msg.Role == "assistant" {
			fmt.Println(msg.Content)
		}
	}
}

func agentStatusColor(s state.AgentStatus) *color.Color {
	switch s {
	case state.AgentRunning:
		return color.New(color.FgYellow)
	case state.AgentCompleted:
		return color.New(color.FgGreen)
	case state.AgentError:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgHiBlack)
	}
}

func workflowStatusColor(s state.WorkflowStatus) *color.Color {
	switch s {
	case state.WorkflowRunning:
		return color.New(color.FgYellow)
	case state.WorkflowCompleted:
		return color.New(color.FgGreen)
	case state.WorkflowError:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgHiBlack)
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
