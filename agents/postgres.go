// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package agents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresAgentStore implements AgentStore using PostgreSQL.
type PostgresAgentStore struct {
	db *sql.DB
}

// NewPostgresAgentStore creates a new PostgreSQL-backed agent store.
func NewPostgresAgentStore(db *sql.DB) *PostgresAgentStore {
	return &PostgresAgentStore{db: db}
}

const agentColumns = `
	id, tenant_id, name, role, system_prompt, instructions, category,
	provider, model, settings, status, tasks_completed, tasks_failed,
	tokens_used, cost_usd, created_at, updated_at
`

// Create persists a new agent.
func (s *PostgresAgentStore) Create(ctx context.Context, agent *Agent) error {
	if err := ValidateNewAgent(agent); err != nil {
		return err
	}

	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	if agent.Status == "" {
		agent.Status = AgentIdle
	}
	if agent.Category == "" {
		agent.Category = CategoryGeneral
	}

	settings, err := json.Marshal(agent.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal agent settings: %w", err)
	}

	query := `
		INSERT INTO agents (
			id, tenant_id, name, role, system_prompt, instructions, category,
			provider, model, settings, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = s.db.ExecContext(ctx, query,
		agent.ID,
		agent.TenantID,
		agent.Name,
		agent.Role,
		agent.SystemPrompt,
		agent.Instructions,
		agent.Category,
		agent.Provider,
		agent.Model,
		settings,
		agent.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	return nil
}

// Get retrieves one agent by id, scoped to the tenant.
func (s *PostgresAgentStore) Get(ctx context.Context, tenantID, id string) (*Agent, error) {
	query := `
		SELECT ` + agentColumns + `
		FROM agents
		WHERE id = $1 AND tenant_id = $2
	`

	agent, err := scanAgent(s.db.QueryRowContext(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return agent, nil
}

// List returns all of a tenant's agents.
func (s *PostgresAgentStore) List(ctx context.Context, tenantID string) ([]Agent, error) {
	query := `
		SELECT ` + agentColumns + `
		FROM agents
		WHERE tenant_id = $1
		ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, *agent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agents: %w", err)
	}
	return agents, nil
}

// Update rewrites an agent's mutable configuration.
func (s *PostgresAgentStore) Update(ctx context.Context, agent *Agent) error {
	settings, err := json.Marshal(agent.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal agent settings: %w", err)
	}

	query := `
		UPDATE agents SET
			name = $1, role = $2, system_prompt = $3, instructions = $4,
			category = $5, provider = $6, model = $7, settings = $8,
			status = $9, updated_at = NOW()
		WHERE id = $10 AND tenant_id = $11
	`

	result, err := s.db.ExecContext(ctx, query,
		agent.Name,
		agent.Role,
		agent.SystemPrompt,
		agent.Instructions,
		agent.Category,
		agent.Provider,
		agent.Model,
		settings,
		agent.Status,
		agent.ID,
		agent.TenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update agent: %w", err)
	}
	return requireRow(result, ErrAgentNotFound)
}

// SetStatus changes the availability state only.
func (s *PostgresAgentStore) SetStatus(ctx context.Context, tenantID, id string, status AgentStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE agents SET status = $1, updated_at = NOW() WHERE id = $2 AND tenant_id = $3`,
		status, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to set agent status: %w", err)
	}
	return requireRow(result, ErrAgentNotFound)
}

// Delete removes an agent.
func (s *PostgresAgentStore) Delete(ctx context.Context, tenantID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM agents WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	return requireRow(result, ErrAgentNotFound)
}

// RecordResult folds one finished task into the agent's totals and resets
// its availability in a single write, so concurrent executions cannot
// interleave a read-modify-write on the counters.
func (s *PostgresAgentStore) RecordResult(ctx context.Context, tenantID, id string, completed bool, tokens int, costUSD float64, status AgentStatus) error {
	completedDelta := 0
	failedDelta := 0
	if completed {
		completedDelta = 1
	} else {
		failedDelta = 1
	}

	query := `
		UPDATE agents SET
			tasks_completed = tasks_completed + $1,
			tasks_failed = tasks_failed + $2,
			tokens_used = tokens_used + $3,
			cost_usd = cost_usd + $4,
			status = $5,
			updated_at = NOW()
		WHERE id = $6 AND tenant_id = $7
	`

	result, err := s.db.ExecContext(ctx, query,
		completedDelta, failedDelta, tokens, costUSD, status, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to record agent result: %w", err)
	}
	return requireRow(result, ErrAgentNotFound)
}

func scanAgent(row rowScanner) (*Agent, error) {
	var agent Agent
	var settings []byte
	var instructions, model sql.NullString

	err := row.Scan(
		&agent.ID,
		&agent.TenantID,
		&agent.Name,
		&agent.Role,
		&agent.SystemPrompt,
		&instructions,
		&agent.Category,
		&agent.Provider,
		&model,
		&settings,
		&agent.Status,
		&agent.TasksCompleted,
		&agent.TasksFailed,
		&agent.TokensUsed,
		&agent.CostUSD,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	agent.Instructions = instructions.String
	agent.Model = model.String

	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &agent.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal agent settings: %w", err)
		}
	}
	return &agent, nil
}

// PostgresTaskStore implements TaskStore using PostgreSQL.
type PostgresTaskStore struct {
	db *sql.DB
}

// NewPostgresTaskStore creates a new PostgreSQL-backed task store.
func NewPostgresTaskStore(db *sql.DB) *PostgresTaskStore {
	return &PostgresTaskStore{db: db}
}

const taskColumns = `
	id, tenant_id, agent_id, crew_id, description, input, priority, status,
	output, error_message, tokens_used, cost_usd, execution_time,
	created_at, started_at, completed_at
`

// Create persists a new task in pending state.
func (s *PostgresTaskStore) Create(ctx context.Context, task *Task) error {
	if err := ValidateNewTask(task); err != nil {
		return err
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = TaskPending
	}
	if task.Priority == "" {
		task.Priority = PriorityMedium
	}

	query := `
		INSERT INTO tasks (
			id, tenant_id, agent_id, crew_id, description, input, priority, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.TenantID,
		task.AgentID,
		nullString(task.CrewID),
		task.Description,
		task.Input,
		task.Priority,
		task.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// Get retrieves one task by id, scoped to the tenant.
func (s *PostgresTaskStore) Get(ctx context.Context, tenantID, id string) (*Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE id = $1 AND tenant_id = $2
	`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// ListByCrew returns a crew's tasks in creation order.
func (s *PostgresTaskStore) ListByCrew(ctx context.Context, tenantID, crewID string) ([]Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE tenant_id = $1 AND crew_id = $2
		ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID, crewID)
	if err != nil {
		return nil, fmt.Errorf("failed to list crew tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// Update rewrites a task's execution state.
func (s *PostgresTaskStore) Update(ctx context.Context, task *Task) error {
	query := `
		UPDATE tasks SET
			status = $1, output = $2, error_message = $3, tokens_used = $4,
			cost_usd = $5, execution_time = $6, started_at = $7, completed_at = $8
		WHERE id = $9 AND tenant_id = $10
	`

	result, err := s.db.ExecContext(ctx, query,
		task.Status,
		task.Output,
		task.ErrorMessage,
		task.TokensUsed,
		task.CostUSD,
		task.ExecutionTime,
		task.StartedAt,
		task.CompletedAt,
		task.ID,
		task.TenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return requireRow(result, ErrTaskNotFound)
}

func scanTask(row rowScanner) (*Task, error) {
	var task Task
	var crewID, input, output, errMsg sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&task.ID,
		&task.TenantID,
		&task.AgentID,
		&crewID,
		&task.Description,
		&input,
		&task.Priority,
		&task.Status,
		&output,
		&errMsg,
		&task.TokensUsed,
		&task.CostUSD,
		&task.ExecutionTime,
		&task.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	task.CrewID = crewID.String
	task.Input = input.String
	task.Output = output.String
	task.ErrorMessage = errMsg.String
	if startedAt.Valid {
		task.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	return &task, nil
}

// PostgresCrewStore implements CrewStore using PostgreSQL.
type PostgresCrewStore struct {
	db *sql.DB
}

// NewPostgresCrewStore creates a new PostgreSQL-backed crew store.
func NewPostgresCrewStore(db *sql.DB) *PostgresCrewStore {
	return &PostgresCrewStore{db: db}
}

const crewColumns = `
	id, tenant_id, name, process, agent_ids, task_ids, status,
	total_cost_usd, total_time_secs, created_at, completed_at
`

// Create persists a new crew in pending state.
func (s *PostgresCrewStore) Create(ctx context.Context, crew *Crew) error {
	if crew.TenantID == "" {
		return errors.New("tenant id is required")
	}
	if len(crew.AgentIDs) == 0 {
		return errors.New("crew needs at least one agent")
	}

	if crew.ID == "" {
		crew.ID = uuid.NewString()
	}
	if crew.Status == "" {
		crew.Status = TaskPending
	}
	if crew.Process == "" {
		crew.Process = ProcessSequential
	}

	query := `
		INSERT INTO crews (
			id, tenant_id, name, process, agent_ids, task_ids, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		crew.ID,
		crew.TenantID,
		crew.Name,
		crew.Process,
		pq.Array(crew.AgentIDs),
		pq.Array(crew.TaskIDs),
		crew.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create crew: %w", err)
	}
	return nil
}

// Get retrieves one crew by id, scoped to the tenant.
func (s *PostgresCrewStore) Get(ctx context.Context, tenantID, id string) (*Crew, error) {
	query := `
		SELECT ` + crewColumns + `
		FROM crews
		WHERE id = $1 AND tenant_id = $2
	`

	var crew Crew
	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, id, tenantID).Scan(
		&crew.ID,
		&crew.TenantID,
		&crew.Name,
		&crew.Process,
		pq.Array(&crew.AgentIDs),
		pq.Array(&crew.TaskIDs),
		&crew.Status,
		&crew.TotalCostUSD,
		&crew.TotalTimeSecs,
		&crew.CreatedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCrewNotFound
		}
		return nil, fmt.Errorf("failed to get crew: %w", err)
	}

	if completedAt.Valid {
		crew.CompletedAt = &completedAt.Time
	}
	return &crew, nil
}

// Update rewrites a crew's execution state.
func (s *PostgresCrewStore) Update(ctx context.Context, crew *Crew) error {
	query := `
		UPDATE crews SET
			task_ids = $1, status = $2, total_cost_usd = $3,
			total_time_secs = $4, completed_at = $5
		WHERE id = $6 AND tenant_id = $7
	`

	result, err := s.db.ExecContext(ctx, query,
		pq.Array(crew.TaskIDs),
		crew.Status,
		crew.TotalCostUSD,
		crew.TotalTimeSecs,
		crew.CompletedAt,
		crew.ID,
		crew.TenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update crew: %w", err)
	}
	return requireRow(result, ErrCrewNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func requireRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Ensure the Postgres stores implement their interfaces.
var (
	_ AgentStore = (*PostgresAgentStore)(nil)
	_ TaskStore  = (*PostgresTaskStore)(nil)
	_ CrewStore  = (*PostgresCrewStore)(nil)
)
