package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "pmcore API",
		Version:     "v1",
		Description: "Process table monitor and control for a running pmcore kernel",
		Endpoints: []endpointInfo{
			{"/api/v1/health", []string{"GET"}, "Server health, policy and tick count"},
			{"/api/v1/stats", []string{"GET"}, "Kernel summary"},
			{"/api/v1/procs", []string{"GET"}, "Process table snapshot"},
			{"/api/v1/procs/{pid}", []string{"GET"}, "Single process detail"},
			{"/api/v1/procs/{pid}/fork", []string{"POST"}, "Fork pid; returns the child"},
			{"/api/v1/procs/{pid}/resume", []string{"POST"}, "Continue a stopped process"},
			{"/api/v1/procs/{pid}/signal", []string{"POST"}, "Send a signal, body {\"signal\": \"SIGTERM\"}"},
			{"/api/v1/procs/{pid}/alarm", []string{"POST"}, "Arm an alarm, body {\"ticks\": n}"},
			{"/api/v1/procs/{pid}/nice", []string{"POST"}, "Set nice, body {\"nice\": n}"},
			{"/api/v1/stop", []string{"POST"}, "Stop the running process"},
			{"/api/v1/tick", []string{"POST"}, "Deliver timer ticks, body {\"count\": n}"},
			{"/api/v1/runs", []string{"GET"}, "Recorded runs"},
			{"/api/v1/runs/{id}", []string{"GET"}, "Single run detail"},
			{"/api/v1/runs/{id}/events", []string{"GET"}, "Trace events of a run; ?kind=&pid=&limit=&offset="},
			{"/api/v1/sse/procs", []string{"GET"}, "Process table stream (Server-Sent Events)"},
		},
	})
}
