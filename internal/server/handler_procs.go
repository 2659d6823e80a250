package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/me/pmcore/pkg/model"
)

// MaxTicksPerCall bounds POST /tick.
const MaxTicksPerCall = 10000

// pidParam parses the {pid} URL parameter.
func pidParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	pid, err := strconv.Atoi(chi.URLParam(r, "pid"))
	if err != nil || pid < 0 {
		respondError(w, RequestIDFromContext(r.Context()), http.StatusBadRequest,
			model.NewValidationError("Invalid pid", model.FieldError{Field: "pid", Message: "expected a non-negative integer"}))
		return 0, false
	}
	return pid, true
}

func (s *Server) handleListProcs(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	procs := s.kernel.Processes()

	if state := r.URL.Query().Get("state"); state != "" {
		filtered := procs[:0]
		for _, p := range procs {
			if string(p.State) == state {
				filtered = append(filtered, p)
			}
		}
		procs = filtered
	}

	respondList(w, reqID, procs, &model.Pagination{
		Total:  len(procs),
		Limit:  len(procs),
		Offset: 0,
	})
}

func (s *Server) handleGetProc(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	pid, ok := pidParam(w, r)
	if !ok {
		return
	}
	info, err := s.kernel.Process(pid)
	if err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	respondOK(w, reqID, info)
}

func (s *Server) handleFork(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	pid, ok := pidParam(w, r)
	if !ok {
		return
	}
	child, err := s.kernel.ForkFrom(pid)
	if err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	info, err := s.kernel.Process(child)
	if err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	s.logger.Info("fork", "parent", pid, "child", child)
	respondCreated(w, reqID, info)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	pid, ok := pidParam(w, r)
	if !ok {
		return
	}
	if err := s.kernel.Resume(pid); err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	s.respondProc(w, reqID, pid)
}

type signalRequest struct {
	Signal string `json:"signal"`
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	pid, ok := pidParam(w, r)
	if !ok {
		return
	}
	var req signalRequest
	if apiErr := decodeBody(r, &req); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	if req.Signal == "" {
		req.Signal = model.SIGTERM.String()
	}
	sig, err := model.ParseSignal(req.Signal)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("Invalid signal", model.FieldError{Field: "signal", Message: err.Error()}))
		return
	}
	if err := s.kernel.Signal(pid, sig); err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	s.logger.Info("signal", "pid", pid, "signal", sig)
	s.respondProc(w, reqID, pid)
}

type alarmRequest struct {
	Ticks uint64 `json:"ticks"`
}

type alarmResponse struct {
	PID  int    `json:"pid"`
	Left uint64 `json:"previous_left"`
}

func (s *Server) handleAlarm(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	pid, ok := pidParam(w, r)
	if !ok {
		return
	}
	var req alarmRequest
	if apiErr := decodeBody(r, &req); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	left, err := s.kernel.SetAlarm(pid, req.Ticks)
	if err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	respondOK(w, reqID, alarmResponse{PID: pid, Left: left})
}

type niceRequest struct {
	Nice *int `json:"nice"`
}

func (s *Server) handleNice(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	pid, ok := pidParam(w, r)
	if !ok {
		return
	}
	var req niceRequest
	if apiErr := decodeBody(r, &req); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	if req.Nice == nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("Missing nice value", model.FieldError{Field: "nice", Message: "required"}))
		return
	}
	if err := s.kernel.SetNice(pid, *req.Nice); err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	s.respondProc(w, reqID, pid)
}

type stopResponse struct {
	Stopped int `json:"stopped"`
	Current int `json:"current"`
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	stopped, err := s.kernel.Stop()
	if err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	s.logger.Info("stop", "pid", stopped)
	respondOK(w, reqID, stopResponse{Stopped: stopped, Current: s.kernel.Stats().Current})
}

type tickRequest struct {
	Count int `json:"count"`
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	req := tickRequest{Count: 1}
	if apiErr := decodeBody(r, &req); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	if req.Count < 1 || req.Count > MaxTicksPerCall {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("Invalid tick count",
				model.FieldError{Field: "count", Message: "must be between 1 and " + strconv.Itoa(MaxTicksPerCall)}))
		return
	}
	for range req.Count {
		s.kernel.Tick()
	}
	respondOK(w, reqID, s.kernel.Stats())
}

// respondProc answers with the current snapshot of pid.
func (s *Server) respondProc(w http.ResponseWriter, reqID string, pid int) {
	info, err := s.kernel.Process(pid)
	if err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	respondOK(w, reqID, info)
}
