package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"

	"github.com/gorilla/mux"

	"github.com/filecoin-project/taskcoord/lib/harmony/localsched"
	"github.com/filecoin-project/taskcoord/lib/harmony/taskorch"
	"github.com/filecoin-project/taskcoord/metrics"
)

// TaskStatus is what the admin api reports about one task.
type TaskStatus struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Coordinated bool   `json:"coordinated"`
	Local       string `json:"local"`
	Running     bool   `json:"running"`
	Deactivated bool   `json:"deactivated"`
	Error       string `json:"error,omitempty"`
}

type apiHandler struct {
	orch *taskorch.Orchestrator
	repo *localsched.Repository
}

func newAPIHandler(orch *taskorch.Orchestrator, repo *localsched.Repository) http.Handler {
	a := &apiHandler{orch: orch, repo: repo}

	// names may contain '/', clients send it as %2F
	m := mux.NewRouter().UseEncodedPath()
	m.HandleFunc("/tasks", a.listTasks).Methods(http.MethodGet)
	m.HandleFunc("/tasks/{name}", a.getTask).Methods(http.MethodGet)
	m.HandleFunc("/tasks/{name}", a.deleteTask).Methods(http.MethodDelete)
	m.HandleFunc("/tasks/{name}/pause", a.pauseTask).Methods(http.MethodPost)
	m.HandleFunc("/tasks/{name}/resume", a.resumeTask).Methods(http.MethodPost)
	m.Handle("/debug/metrics", metrics.Exporter())
	return m
}

func (a *apiHandler) status(ctx context.Context, info localsched.TaskInfo) TaskStatus {
	st := TaskStatus{
		Name:        info.Name,
		Kind:        info.Kind,
		Coordinated: a.orch.IsCoordinated(info.Name),
		Local:       a.orch.LocalState(info.Name).String(),
	}
	running, err := a.orch.IsTaskRunning(ctx, info.Name)
	if err != nil {
		st.Error = err.Error()
	}
	st.Running = running
	deactivated, err := a.orch.IsDeactivated(ctx, info.Name)
	if err != nil {
		st.Error = err.Error()
	}
	st.Deactivated = deactivated
	return st
}

func (a *apiHandler) listTasks(w http.ResponseWriter, r *http.Request) {
	infos, err := a.repo.AllTasks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	out := make([]TaskStatus, 0, len(infos))
	for _, info := range infos {
		out = append(out, a.status(r.Context(), info))
	}
	writeJSON(w, http.StatusOK, out)
}

// lookup writes a 404 and returns false when the task isn't known here.
func (a *apiHandler) lookup(w http.ResponseWriter, r *http.Request) (localsched.TaskInfo, bool) {
	name, err := url.PathUnescape(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return localsched.TaskInfo{}, false
	}
	info, err := a.repo.GetTask(r.Context(), name)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, localsched.ErrTaskNotFound) {
			code = http.StatusNotFound
		}
		writeError(w, code, err)
		return localsched.TaskInfo{}, false
	}
	return info, true
}

func (a *apiHandler) getTask(w http.ResponseWriter, r *http.Request) {
	info, ok := a.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.status(r.Context(), info))
}

func (a *apiHandler) pauseTask(w http.ResponseWriter, r *http.Request) {
	info, ok := a.lookup(w, r)
	if !ok {
		return
	}
	if err := a.orch.HandleTaskPause(r.Context(), info.Name); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, a.status(r.Context(), info))
}

func (a *apiHandler) resumeTask(w http.ResponseWriter, r *http.Request) {
	info, ok := a.lookup(w, r)
	if !ok {
		return
	}
	if err := a.orch.HandleTaskResume(r.Context(), info.Name); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, a.status(r.Context(), info))
}

func (a *apiHandler) deleteTask(w http.ResponseWriter, r *http.Request) {
	info, ok := a.lookup(w, r)
	if !ok {
		return
	}
	wasScheduled, err := a.orch.DeleteTask(r.Context(), info.Name)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	log.Infow("deleted task", "task", info.Name, "wasScheduled", wasScheduled)
	w.WriteHeader(http.StatusNoContent)
}

func statusOf(err error) int {
	switch taskorch.CodeOf(err) {
	case taskorch.CodeNoTaskExists:
		return http.StatusNotFound
	case taskorch.CodeTaskNodeNotAvailable:
		return http.StatusConflict
	case taskorch.CodeDatabaseError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnw("writing api response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
