// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"axonflow/agentline/agents"
	"axonflow/agentline/llm"
)

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var agent agents.Agent
	if !decodeBody(w, r, &agent) {
		return
	}
	agent.TenantID = tenantID(r)

	if err := s.agents.Create(r.Context(), &agent); err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, agent)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	list, err := s.agents.List(r.Context(), tenantID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to list agents")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.agents.Get(r.Context(), tenantID(r), mux.Vars(r)["id"])
	if err != nil {
		s.respondAgentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var agent agents.Agent
	if !decodeBody(w, r, &agent) {
		return
	}
	agent.ID = mux.Vars(r)["id"]
	agent.TenantID = tenantID(r)

	if err := s.agents.Update(r.Context(), &agent); err != nil {
		s.respondAgentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.agents.Delete(r.Context(), tenantID(r), mux.Vars(r)["id"]); err != nil {
		s.respondAgentError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var task agents.Task
	if !decodeBody(w, r, &task) {
		return
	}
	task.TenantID = tenantID(r)
	task.Status = agents.TaskPending

	if err := s.tasks.Create(r.Context(), &task); err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.Get(r.Context(), tenantID(r), mux.Vars(r)["id"])
	if err != nil {
		s.respondTaskError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// handleExecuteTask runs a pending task synchronously and returns its
// terminal state. A task that ran and failed is still a 200; the failure
// lives in the task record.
func (s *Server) handleExecuteTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.executor.ExecuteTask(r.Context(), tenantID(r), mux.Vars(r)["id"])
	if err != nil {
		s.respondExecutionError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.executor.CancelTask(r.Context(), tenantID(r), mux.Vars(r)["id"])
	if err != nil {
		s.respondExecutionError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleCreateCrew(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string         `json:"name"`
		Process  agents.Process `json:"process"`
		AgentIDs []string       `json:"agent_ids"`
		Tasks    []agents.Task  `json:"tasks"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	crew := &agents.Crew{
		TenantID: tenantID(r),
		Name:     req.Name,
		Process:  req.Process,
		AgentIDs: req.AgentIDs,
	}
	if err := s.crews.Create(r.Context(), crew); err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	for i := range req.Tasks {
		task := &req.Tasks[i]
		task.TenantID = crew.TenantID
		task.CrewID = crew.ID
		task.Status = agents.TaskPending
		if task.AgentID == "" && len(crew.AgentIDs) > 0 {
			task.AgentID = crew.AgentIDs[0]
		}
		if err := s.tasks.Create(r.Context(), task); err != nil {
			respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}
		crew.TaskIDs = append(crew.TaskIDs, task.ID)
	}

	if err := s.crews.Update(r.Context(), crew); err != nil {
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to attach crew tasks")
		return
	}
	respondJSON(w, http.StatusCreated, crew)
}

func (s *Server) handleGetCrew(w http.ResponseWriter, r *http.Request) {
	crew, err := s.crews.Get(r.Context(), tenantID(r), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, agents.ErrCrewNotFound) {
			respondError(w, http.StatusNotFound, codeNotFound, "crew not found")
			return
		}
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to load crew")
		return
	}
	respondJSON(w, http.StatusOK, crew)
}

func (s *Server) handleExecuteCrew(w http.ResponseWriter, r *http.Request) {
	crew, err := s.executor.ExecuteCrew(r.Context(), tenantID(r), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, agents.ErrHierarchicalNotSupported) {
			respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}
		if errors.Is(err, agents.ErrCrewNotFound) {
			respondError(w, http.StatusNotFound, codeNotFound, "crew not found")
			return
		}
		s.respondExecutionError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, crew)
}

func (s *Server) respondAgentError(w http.ResponseWriter, err error) {
	if errors.Is(err, agents.ErrAgentNotFound) {
		respondError(w, http.StatusNotFound, codeNotFound, "agent not found")
		return
	}
	respondError(w, http.StatusInternalServerError, codeInternal, "agent operation failed")
}

func (s *Server) respondTaskError(w http.ResponseWriter, err error) {
	if errors.Is(err, agents.ErrTaskNotFound) {
		respondError(w, http.StatusNotFound, codeNotFound, "task not found")
		return
	}
	respondError(w, http.StatusInternalServerError, codeInternal, "task operation failed")
}

// respondExecutionError maps executor failures onto the error envelope.
func (s *Server) respondExecutionError(w http.ResponseWriter, r *http.Request, err error) {
	var unavailable *agents.UnavailableError
	var busy *agents.BusyError
	var transition *agents.InvalidTransitionError
	var exhausted *llm.ExhaustedError

	switch {
	case errors.Is(err, agents.ErrTaskNotFound):
		respondError(w, http.StatusNotFound, codeNotFound, "task not found")
	case errors.Is(err, agents.ErrAgentNotFound):
		respondError(w, http.StatusNotFound, codeNotFound, "agent not found")
	case errors.As(err, &unavailable), errors.As(err, &busy):
		respondError(w, http.StatusConflict, codeAgentUnavailable, err.Error())
	case errors.As(err, &transition):
		respondError(w, http.StatusConflict, codeConflict, err.Error())
	case errors.As(err, &exhausted):
		respondError(w, http.StatusServiceUnavailable, codeInternal, err.Error())
	default:
		s.log.ErrorWithCode(tenantID(r), requestID(r), "Execution failed", http.StatusInternalServerError, err, nil)
		respondError(w, http.StatusInternalServerError, codeInternal, "execution failed")
	}
}
