package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/clipreel/internal/clips"
	"github.com/MimeLyc/clipreel/internal/config"
	"github.com/MimeLyc/clipreel/internal/pipeline"
)

const defaultRunsLimit = 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type enqueueJobRequest struct {
	Source    string `json:"source"`
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Amount    int    `json:"amount"`
	TimeFrame string `json:"time_frame"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.queue.List())
	case http.MethodPost:
		var req enqueueJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if req.Source == "" {
			req.Source = "manual"
		}
		kind, err := clips.ParseScopeKind(req.Kind)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		if req.Amount < 0 {
			writeError(w, http.StatusBadRequest, "amount must not be negative")
			return
		}

		job, created, err := s.enqueuer.Enqueue(req.Source, config.Target{Kind: kind, Name: req.Name}, req.Amount, req.TimeFrame)
		if err != nil {
			status := http.StatusInternalServerError
			if pipeline.IsErrorType(err, pipeline.ErrValidation) {
				status = http.StatusBadRequest
			}
			writeError(w, status, err.Error())
			return
		}
		code := http.StatusCreated
		if !created {
			code = http.StatusOK
		}
		writeJSON(w, code, map[string]any{
			"created": created,
			"job":     job,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/jobs/"), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}
	job, ok := s.queue.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type droppedResponse struct {
	Index  int    `json:"index"`
	Step   string `json:"step"`
	Reason string `json:"reason"`
}

type runResponse struct {
	ID               string            `json:"id"`
	JobID            string            `json:"job_id,omitempty"`
	ScopeKind        string            `json:"scope_kind"`
	ScopeID          string            `json:"scope_id"`
	ScopeName        string            `json:"scope_name"`
	Amount           int               `json:"amount"`
	TimeFrameSeconds int64             `json:"time_frame_seconds"`
	Status           string            `json:"status"`
	Clips            int               `json:"clips"`
	DownloadedBytes  int64             `json:"downloaded_bytes"`
	Output           string            `json:"output,omitempty"`
	Error            string            `json:"error,omitempty"`
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       time.Time         `json:"finished_at"`
	Dropped          []droppedResponse `json:"dropped"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.runs == nil {
		writeError(w, http.StatusNotImplemented, "run ledger is not configured")
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ret := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		item := runResponse{
			ID:               run.ID,
			JobID:            run.JobID,
			ScopeKind:        run.ScopeKind,
			ScopeID:          run.ScopeID,
			ScopeName:        run.ScopeName,
			Amount:           run.Amount,
			TimeFrameSeconds: int64(run.TimeFrame / time.Second),
			Status:           string(run.Status),
			Clips:            run.Clips,
			DownloadedBytes:  run.DownloadedBytes,
			Output:           run.Output,
			Error:            run.Error,
			StartedAt:        run.StartedAt,
			FinishedAt:       run.FinishedAt,
			Dropped:          make([]droppedResponse, 0, len(run.Dropped)),
		}
		for _, d := range run.Dropped {
			item.Dropped = append(item.Dropped, droppedResponse{Index: d.Index, Step: d.Step, Reason: d.Reason})
		}
		ret = append(ret, item)
	}
	writeJSON(w, http.StatusOK, ret)
}

type clipResponse struct {
	Index  int      `json:"index"`
	Stages []string `json:"stages"`
	Input  string   `json:"input,omitempty"`
}

type workdirResponse struct {
	Dir     string         `json:"dir"`
	Clips   []clipResponse `json:"clips"`
	Ignored []string       `json:"ignored"`
}

func (s *Server) handleWorkdir(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.workdir == nil {
		writeError(w, http.StatusNotImplemented, "working directory is not configured")
		return
	}

	ins, err := pipeline.Inspect(s.workdir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := workdirResponse{Dir: ins.Dir, Clips: []clipResponse{}, Ignored: []string{}}
	for _, a := range ins.State.All() {
		if n := len(resp.Clips); n == 0 || resp.Clips[n-1].Index != a.Index {
			clip := clipResponse{Index: a.Index}
			if input, ok := ins.State.Input(a.Index); ok {
				clip.Input = input.Name()
			}
			resp.Clips = append(resp.Clips, clip)
		}
		last := &resp.Clips[len(resp.Clips)-1]
		last.Stages = append(last.Stages, a.Stage.String())
	}
	for _, e := range ins.Foreign {
		if name, ok := e.Context["name"].(string); ok {
			resp.Ignored = append(resp.Ignored, name)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
