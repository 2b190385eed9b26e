// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package agents

import (
	"context"
	"errors"
	"fmt"
)

// Not-found conditions surfaced as 404-equivalent outcomes at the boundary.
var (
	ErrAgentNotFound = errors.New("agent not found")
	ErrTaskNotFound  = errors.New("task not found")
	ErrCrewNotFound  = errors.New("crew not found")
)

// ErrHierarchicalNotSupported marks the hierarchical crew process as an
// extension point without scheduling semantics yet.
var ErrHierarchicalNotSupported = errors.New("hierarchical crew process is not supported; use sequential")

// UnavailableError reports an agent that cannot take on new work.
type UnavailableError struct {
	AgentID string
	Status  AgentStatus
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("agent %s is unavailable (status %s)", e.AgentID, e.Status)
}

// BusyError reports an agent already executing a task in this process.
type BusyError struct {
	AgentID string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("agent %s is busy with another task", e.AgentID)
}

// InvalidTransitionError reports a rejected task state change.
type InvalidTransitionError struct {
	TaskID string
	From   TaskStatus
	To     TaskStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("task %s cannot transition %s -> %s", e.TaskID, e.From, e.To)
}

// AgentStore persists agents.
type AgentStore interface {
	Create(ctx context.Context, agent *Agent) error
	Get(ctx context.Context, tenantID, id string) (*Agent, error)
	List(ctx context.Context, tenantID string) ([]Agent, error)
	Update(ctx context.Context, agent *Agent) error
	SetStatus(ctx context.Context, tenantID, id string, status AgentStatus) error
	Delete(ctx context.Context, tenantID, id string) error

	// RecordResult folds one finished task into the agent's running totals
	// and resets availability in a single write.
	RecordResult(ctx context.Context, tenantID, id string, completed bool, tokens int, costUSD float64, status AgentStatus) error
}

// TaskStore persists task executions.
type TaskStore interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, tenantID, id string) (*Task, error)
	ListByCrew(ctx context.Context, tenantID, crewID string) ([]Task, error)
	Update(ctx context.Context, task *Task) error
}

// CrewStore persists crews.
type CrewStore interface {
	Create(ctx context.Context, crew *Crew) error
	Get(ctx context.Context, tenantID, id string) (*Crew, error)
	Update(ctx context.Context, crew *Crew) error
}

// ValidateNewAgent checks the fields required before persisting an agent.
func ValidateNewAgent(agent *Agent) error {
	if agent.TenantID == "" {
		return errors.New("tenant id is required")
	}
	if agent.Name == "" {
		return errors.New("agent name is required")
	}
	if agent.SystemPrompt == "" {
		return errors.New("system prompt is required")
	}
	if agent.Provider != "" && !agent.Provider.Valid() {
		return fmt.Errorf("unknown provider %q", agent.Provider)
	}
	return nil
}

// ValidateNewTask checks the fields required before persisting a task.
func ValidateNewTask(task *Task) error {
	if task.TenantID == "" {
		return errors.New("tenant id is required")
	}
	if task.AgentID == "" {
		return errors.New("agent id is required")
	}
	if task.Description == "" {
		return errors.New("task description is required")
	}
	return nil
}
