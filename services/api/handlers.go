package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"nodeflow/services/engine"
	"nodeflow/services/node"
	"nodeflow/services/supervisor"
	"nodeflow/services/workflow"
)

const maxBodyBytes = 1 << 20

// StorageRequest selects the storage handle of a run.
type StorageRequest struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// StartRunRequest starts a run of a stored workflow or of an inline document.
type StartRunRequest struct {
	WorkflowID     string          `json:"workflowId"`
	Workflow       *workflow.Graph `json:"workflow"`
	Variables      map[string]any  `json:"variables"`
	Storage        *StorageRequest `json:"storage"`
	TickIntervalMs int             `json:"tickIntervalMs"`
}

// StartRunResponse acknowledges a started run.
type StartRunResponse struct {
	RunID     string `json:"run_id"`
	StatusURL string `json:"status_url"`
}

// HandleListWorkflows returns a summary of every stored workflow.
func (s *Service) HandleListWorkflows(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.List(r.Context())
	if err != nil {
		slog.Error("Failed to list workflows", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if summaries == nil {
		summaries = []workflow.Summary{}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(summaries)
}

// HandleGetWorkflow loads a workflow document and returns it as JSON.
func (s *Service) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	slog.Debug("Getting workflow", "id", id)

	wf, err := s.store.Get(r.Context(), id)
	if err != nil {
		slog.Error("Failed to get workflow", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if wf == nil {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(wf)
}

// HandlePutWorkflow validates a JSON or YAML workflow document and stores it
// under the id in the path.
func (s *Service) HandlePutWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	g, err := workflow.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if g.ID != "" && g.ID != id {
		writeError(w, http.StatusBadRequest, "workflow id does not match path")
		return
	}
	g.ID = id

	if err := engine.Validate(s.registry, g); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.Save(r.Context(), g); err != nil {
		slog.Error("Failed to save workflow", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	slog.Info("Workflow saved", "id", id, "nodes", len(g.Nodes))

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(g)
}

// HandleStartRun starts a run of the workflow named by workflowId, or of the
// inline workflow document, and returns its id without waiting for results.
func (s *Service) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.startRun(w, r, req)
}

// HandleStartWorkflowRun starts a run of the stored workflow in the path. The
// body is optional.
func (s *Service) HandleStartWorkflowRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.WorkflowID = mux.Vars(r)["id"]
	req.Workflow = nil
	s.startRun(w, r, req)
}

func (s *Service) startRun(w http.ResponseWriter, r *http.Request, req StartRunRequest) {
	g := req.Workflow
	switch {
	case g != nil && req.WorkflowID != "":
		writeError(w, http.StatusBadRequest, "workflowId and workflow are mutually exclusive")
		return
	case g == nil && req.WorkflowID == "":
		writeError(w, http.StatusBadRequest, "workflowId or workflow is required")
		return
	case g == nil:
		wf, err := s.store.Get(r.Context(), req.WorkflowID)
		if err != nil {
			slog.Error("Failed to get workflow for run", "id", req.WorkflowID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if wf == nil {
			writeError(w, http.StatusNotFound, "workflow not found")
			return
		}
		g = wf
	}
	if req.TickIntervalMs < 0 {
		writeError(w, http.StatusBadRequest, "tickIntervalMs must not be negative")
		return
	}

	opts := s.defaults
	opts.Variables = req.Variables
	if req.Storage != nil {
		opts.StorageType = req.Storage.Type
		opts.StoragePath = req.Storage.Path
	}
	if req.TickIntervalMs > 0 {
		opts.TickInterval = time.Duration(req.TickIntervalMs) * time.Millisecond
	}

	id, err := s.supervisor.Start(r.Context(), g, opts)
	if err != nil {
		writeRunError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(StartRunResponse{RunID: id, StatusURL: "/api/v1/runs/" + id})
}

// HandleListRuns lists the runs of this process without their results.
func (s *Service) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s.supervisor.List())
}

// HandleRunStatus reports a run's state and results version. With
// ?since=N the latest results are omitted unless the version moved past N.
func (s *Service) HandleRunStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be a non-negative integer")
			return
		}
		since = v
	}

	st, err := s.supervisor.Status(r.Context(), id, since)
	if err != nil {
		writeRunError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(st)
}

// HandleStopRun stops a run. Stopping a stopped run succeeds.
func (s *Service) HandleStopRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	st, err := s.supervisor.Stop(id)
	if err != nil {
		writeRunError(w, err)
		return
	}
	slog.Info("Run stop requested", "run_id", id)

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(st)
}

// HandleTriggerNode arms a triggered node of a running run.
func (s *Service) HandleTriggerNode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, nodeID := vars["id"], vars["nodeId"]

	if err := s.supervisor.Trigger(id, nodeID); err != nil {
		writeRunError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"message": fmt.Sprintf("node %s triggered", nodeID)})
}

// HandleNodeTypes lists the registered node types and aliases.
func (s *Service) HandleNodeTypes(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s.registry.Types())
}

func writeRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, supervisor.ErrRunNotFound), errors.Is(err, engine.ErrNodeNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrNotTriggerable), errors.Is(err, supervisor.ErrRunNotRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, node.ErrConfiguration):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("Run request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}
