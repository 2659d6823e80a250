package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/me/pmcore/pkg/model"
)

// Version is the monitor API version string.
const Version = "0.1.0"

type healthResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	GoVersion string           `json:"go_version"`
	Uptime    string           `json:"uptime"`
	Policy    model.PolicyName `json:"policy"`
	Ticks     uint64           `json:"ticks"`
	Store     string           `json:"store"`
	RunID     string           `json:"run_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	st := s.kernel.Stats()
	storeState := "none"
	if s.store != nil {
		storeState = "sqlite"
	}
	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Policy:    st.Policy,
		Ticks:     st.Ticks,
		Store:     storeState,
		RunID:     s.runID,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondOK(w, RequestIDFromContext(r.Context()), s.kernel.Stats())
}
