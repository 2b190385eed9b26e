// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package agents holds the tenant-configured agent personas, the task and
// crew execution records, and the Executor that runs tasks through the
// LLM orchestrator.
package agents

import (
	"time"

	"axonflow/agentline/credentials"
)

// AgentStatus is the availability state of an agent. Only active and idle
// count as available for new work.
type AgentStatus string

const (
	AgentActive   AgentStatus = "active"
	AgentIdle     AgentStatus = "idle"
	AgentPaused   AgentStatus = "paused"
	AgentError    AgentStatus = "error"
	AgentTraining AgentStatus = "training"
)

// Category groups agents by the kind of work they handle. The auto-responder
// prefers support and general agents when picking one for a conversation.
type Category string

const (
	CategoryMarketing Category = "marketing"
	CategorySupport   Category = "support"
	CategoryContent   Category = "content"
	CategoryAnalytics Category = "analytics"
	CategorySales     Category = "sales"
	CategoryGeneral   Category = "general"
)

// Agent is a tenant-configured persona: who it is, how it talks, and which
// provider/model it prefers. Running totals accumulate across executions.
type Agent struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`

	Role         string   `json:"role"`
	SystemPrompt string   `json:"system_prompt"`
	Instructions string   `json:"instructions,omitempty"`
	Category     Category `json:"category"`

	Provider credentials.Provider `json:"provider"`
	Model    string               `json:"model,omitempty"`

	// Settings carries sampling parameters (temperature, max_tokens) and
	// any provider passthrough options.
	Settings map[string]any `json:"settings,omitempty"`

	Status AgentStatus `json:"status"`

	TasksCompleted int     `json:"tasks_completed"`
	TasksFailed    int     `json:"tasks_failed"`
	TokensUsed     int     `json:"tokens_used"`
	CostUSD        float64 `json:"cost_usd"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Available reports whether the agent may take on new work.
func (a *Agent) Available() bool {
	return a.Status == AgentActive || a.Status == AgentIdle
}

// SuccessRate returns the fraction of completed tasks over all finished
// tasks, as a percentage. An agent with no history reads as 100.
func (a *Agent) SuccessRate() float64 {
	total := a.TasksCompleted + a.TasksFailed
	if total == 0 {
		return 100.0
	}
	return float64(a.TasksCompleted) / float64(total) * 100.0
}

// Temperature returns the configured sampling temperature, or -1 to signal
// the adapter default.
func (a *Agent) Temperature() float64 {
	if v, ok := a.Settings["temperature"]; ok {
		switch t := v.(type) {
		case float64:
			return t
		case int:
			return float64(t)
		}
	}
	return -1
}

// MaxTokens returns the configured completion budget, or 0 to signal the
// adapter default.
func (a *Agent) MaxTokens() int {
	if v, ok := a.Settings["max_tokens"]; ok {
		switch t := v.(type) {
		case int:
			return t
		case float64:
			return int(t)
		}
	}
	return 0
}

// TaskStatus is the lifecycle state of a task execution. Transitions are
// one-directional; terminal states are immutable.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// TaskPriority orders pending work for display; execution itself is
// request-driven and does not schedule by priority.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// Task is one attempt to produce output for a described unit of work
// against one agent.
type Task struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	AgentID  string `json:"agent_id"`
	CrewID   string `json:"crew_id,omitempty"`

	Description string       `json:"description"`
	Input       string       `json:"input,omitempty"`
	Priority    TaskPriority `json:"priority"`
	Status      TaskStatus   `json:"status"`

	Output       string  `json:"output,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
	TokensUsed   int     `json:"tokens_used"`
	CostUSD      float64 `json:"cost_usd"`

	// ExecutionTime is wall-clock seconds from start to finish.
	ExecutionTime float64 `json:"execution_time"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Process selects how a crew schedules its tasks.
type Process string

const (
	ProcessSequential   Process = "sequential"
	ProcessHierarchical Process = "hierarchical"
)

// Crew is an ordered group of tasks sharing a set of agents. Its status is
// a roll-up: failed if any child hard-fails, completed only when all
// children complete.
type Crew struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`

	Process  Process  `json:"process"`
	AgentIDs []string `json:"agent_ids"`
	TaskIDs  []string `json:"task_ids"`

	Status        TaskStatus `json:"status"`
	TotalCostUSD  float64    `json:"total_cost_usd"`
	TotalTimeSecs float64    `json:"total_time_secs"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
