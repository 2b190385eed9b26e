// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package agents

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"axonflow/agentline/credentials"
	"axonflow/agentline/llm"
)

// Completer is the slice of the LLM orchestrator the executor needs.
// llm.Orchestrator satisfies it.
type Completer interface {
	ChatCompletion(ctx context.Context, tenantID string, req llm.ChatRequest, preferredProvider credentials.Provider, preferredModel string) (*llm.Response, error)
}

// Executor runs tasks and crews against agents through the LLM
// orchestrator, owning the task state machine and the agent availability
// invariant. It is safe for concurrent use.
type Executor struct {
	agents AgentStore
	tasks  TaskStore
	crews  CrewStore
	llm    Completer
	logger *log.Logger

	// busy holds an advisory in-process lock per agent so two concurrent
	// executions cannot race on the same agent's state. Entries are never
	// removed; the map is bounded by the number of distinct agents seen.
	mu   sync.Mutex
	busy map[string]bool
}

// ExecutorOption configures the executor during creation.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets a custom logger.
func WithExecutorLogger(l *log.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor creates an executor over the given stores and orchestrator.
func NewExecutor(agents AgentStore, tasks TaskStore, crews CrewStore, completer Completer, opts ...ExecutorOption) *Executor {
	e := &Executor{
		agents: agents,
		tasks:  tasks,
		crews:  crews,
		llm:    completer,
		logger: log.New(os.Stdout, "[EXECUTOR] ", log.LstdFlags),
		busy:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// acquire takes the advisory per-agent lock, failing fast when the agent
// is already executing in this process.
func (e *Executor) acquire(agentID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy[agentID] {
		return &BusyError{AgentID: agentID}
	}
	e.busy[agentID] = true
	return nil
}

func (e *Executor) release(agentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy[agentID] = false
}

// ExecuteTask runs one pending task to a terminal state:
//
//	pending -> running -> completed | failed
//
// Whatever happens inside the provider call, the agent is never left
// "active" afterward; its totals are updated and its availability is reset
// on every path out.
func (e *Executor) ExecuteTask(ctx context.Context, tenantID, taskID string) (*Task, error) {
	task, err := e.tasks.Get(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return nil, &InvalidTransitionError{TaskID: task.ID, From: task.Status, To: TaskRunning}
	}

	agent, err := e.agents.Get(ctx, tenantID, task.AgentID)
	if err != nil {
		return nil, err
	}
	if !agent.Available() {
		return nil, &UnavailableError{AgentID: agent.ID, Status: agent.Status}
	}

	if err := e.acquire(agent.ID); err != nil {
		return nil, err
	}
	defer e.release(agent.ID)

	return e.runTask(ctx, agent, task)
}

// runTask performs the provider call for a task the caller has already
// validated and locked.
func (e *Executor) runTask(ctx context.Context, agent *Agent, task *Task) (*Task, error) {
	start := time.Now()
	task.Status = TaskRunning
	task.StartedAt = &start
	if err := e.tasks.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to mark task running: %w", err)
	}

	if err := e.agents.SetStatus(ctx, agent.TenantID, agent.ID, AgentActive); err != nil {
		e.logger.Printf("Failed to mark agent %s active: %v", agent.ID, err)
	}

	resp, callErr := e.complete(ctx, agent, task)

	finished := time.Now()
	task.ExecutionTime = finished.Sub(start).Seconds()
	task.CompletedAt = &finished

	completed := callErr == nil
	if completed {
		task.Status = TaskCompleted
		task.Output = resp.Content
		task.TokensUsed = resp.TokensUsed
		task.CostUSD = resp.Cost
	} else {
		task.Status = TaskFailed
		task.ErrorMessage = callErr.Error()
	}

	// Agent totals and availability are written even when the task update
	// below fails; the agent must never stay "active" after a task ends.
	tokens, cost := 0, 0.0
	if resp != nil {
		tokens, cost = resp.TokensUsed, resp.Cost
	}
	if err := e.agents.RecordResult(ctx, agent.TenantID, agent.ID, completed, tokens, cost, AgentIdle); err != nil {
		e.logger.Printf("Failed to record result for agent %s: %v", agent.ID, err)
	}

	if err := e.tasks.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to persist task result: %w", err)
	}

	if completed {
		e.logger.Printf("Task %s completed by agent %s (%d tokens, $%.6f, %.2fs)",
			task.ID, agent.ID, task.TokensUsed, task.CostUSD, task.ExecutionTime)
	} else {
		e.logger.Printf("Task %s failed on agent %s: %v", task.ID, agent.ID, callErr)
	}
	return task, nil
}

// complete builds the message list from the agent persona and invokes the
// orchestrator with the agent's preferred provider, model, and settings.
func (e *Executor) complete(ctx context.Context, agent *Agent, task *Task) (*llm.Response, error) {
	var prompt strings.Builder
	prompt.WriteString(agent.SystemPrompt)
	if agent.Role != "" {
		prompt.WriteString("\n\nYour role: ")
		prompt.WriteString(agent.Role)
	}
	if agent.Instructions != "" {
		prompt.WriteString("\n\n")
		prompt.WriteString(agent.Instructions)
	}

	userContent := task.Description
	if task.Input != "" {
		userContent = task.Description + "\n\nInput:\n" + task.Input
	}

	req := llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompt.String()},
			{Role: llm.RoleUser, Content: userContent},
		},
		Temperature: agent.Temperature(),
		MaxTokens:   agent.MaxTokens(),
	}

	return e.llm.ChatCompletion(ctx, agent.TenantID, req, agent.Provider, agent.Model)
}

// ExecuteCrew runs a crew's tasks in order. Sequential is the only
// supported process; each task uses its assigned agent, falling back to
// the crew's first agent when the assignment is missing or invalid.
// The crew completes only when no child task failed; cost and time
// aggregate over every attempted task, failed ones included.
func (e *Executor) ExecuteCrew(ctx context.Context, tenantID, crewID string) (*Crew, error) {
	crew, err := e.crews.Get(ctx, tenantID, crewID)
	if err != nil {
		return nil, err
	}
	if crew.Process == ProcessHierarchical {
		return nil, ErrHierarchicalNotSupported
	}
	if crew.Status.Terminal() {
		return nil, &InvalidTransitionError{TaskID: crew.ID, From: crew.Status, To: TaskRunning}
	}

	tasks, err := e.tasks.ListByCrew(ctx, tenantID, crewID)
	if err != nil {
		return nil, err
	}

	crew.Status = TaskRunning
	if err := e.crews.Update(ctx, crew); err != nil {
		return nil, fmt.Errorf("failed to mark crew running: %w", err)
	}

	validAgents := make(map[string]bool, len(crew.AgentIDs))
	for _, id := range crew.AgentIDs {
		validAgents[id] = true
	}

	anyFailed := false
	totalCost := 0.0
	totalTime := 0.0

	for i := range tasks {
		task := &tasks[i]
		if task.Status.Terminal() {
			totalCost += task.CostUSD
			totalTime += task.ExecutionTime
			if task.Status == TaskFailed {
				anyFailed = true
			}
			continue
		}

		if !validAgents[task.AgentID] && len(crew.AgentIDs) > 0 {
			e.logger.Printf("Task %s assigned to agent outside crew %s; using first crew agent", task.ID, crew.ID)
			task.AgentID = crew.AgentIDs[0]
		}

		done, err := e.ExecuteTask(ctx, tenantID, task.ID)
		if err != nil {
			// Executor-level failure (agent gone, unavailable, busy): the
			// task never ran, so record it failed and keep going like any
			// other child failure.
			e.logger.Printf("Crew %s: task %s could not run: %v", crew.ID, task.ID, err)
			task.Status = TaskFailed
			task.ErrorMessage = err.Error()
			if updateErr := e.tasks.Update(ctx, task); updateErr != nil {
				e.logger.Printf("Failed to persist task failure: %v", updateErr)
			}
			anyFailed = true
			continue
		}

		totalCost += done.CostUSD
		totalTime += done.ExecutionTime
		if done.Status != TaskCompleted {
			anyFailed = true
		}
	}

	finished := time.Now()
	crew.TotalCostUSD = totalCost
	crew.TotalTimeSecs = totalTime
	crew.CompletedAt = &finished
	if anyFailed {
		crew.Status = TaskFailed
	} else {
		crew.Status = TaskCompleted
	}

	if err := e.crews.Update(ctx, crew); err != nil {
		return nil, fmt.Errorf("failed to persist crew result: %w", err)
	}

	e.logger.Printf("Crew %s finished with status %s (%d tasks, $%.6f, %.2fs)",
		crew.ID, crew.Status, len(tasks), totalCost, totalTime)
	return crew, nil
}

// CancelTask moves a pending or running task to cancelled. Terminal tasks
// reject the request rather than silently ignoring it. Cancellation is
// best-effort; a provider call already in flight is not aborted.
func (e *Executor) CancelTask(ctx context.Context, tenantID, taskID string) (*Task, error) {
	task, err := e.tasks.Get(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return nil, &InvalidTransitionError{TaskID: task.ID, From: task.Status, To: TaskCancelled}
	}

	now := time.Now()
	task.Status = TaskCancelled
	task.CompletedAt = &now
	if task.StartedAt != nil {
		task.ExecutionTime = now.Sub(*task.StartedAt).Seconds()
	}

	if err := e.tasks.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to cancel task: %w", err)
	}

	e.logger.Printf("Task %s cancelled", task.ID)
	return task, nil
}
