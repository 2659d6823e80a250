// Package ui serves a read-only HTML view of a live kernel and its run history.
package ui

import (
	"bytes"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/me/pmcore/internal/store"
	"github.com/me/pmcore/pkg/model"
)

// Kernel is the read side of a kernel the pages render.
type Kernel interface {
	Stats() model.KernelStats
	Processes() []model.ProcessInfo
	Process(pid int) (model.ProcessInfo, error)
}

// UI handles the web user interface.
type UI struct {
	kernel    Kernel
	store     store.Store // optional; run pages render a notice without it
	runID     string
	logger    *slog.Logger
	startTime time.Time
}

// New creates a new UI handler.
func New(k Kernel, st store.Store, runID string, logger *slog.Logger) *UI {
	return &UI{
		kernel:    k,
		store:     st,
		runID:     runID,
		logger:    logger.With("component", "ui"),
		startTime: time.Now(),
	}
}

// RegisterRoutes registers all UI routes on the given router.
func (ui *UI) RegisterRoutes(r chi.Router) {
	r.Get("/", ui.HandleDashboard)
	r.Get("/procs/{pid}", ui.HandleProcess)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", ui.HandleRunList)
		r.Get("/{id}", ui.HandleRunDetail)
	})
}

// HandleDashboard renders kernel stats and the process table.
func (ui *UI) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	stats := ui.kernel.Stats()
	procs := ui.kernel.Processes()
	sort.Slice(procs, func(i, j int) bool { return procs[i].PID < procs[j].PID })

	byState := map[string]int{}
	for _, p := range procs {
		byState[string(p.State)]++
	}

	data := map[string]any{
		"Title":     "Dashboard - pmcore",
		"Stats":     stats,
		"Processes": procs,
		"ByState":   byState,
		"RunID":     ui.runID,
		"Uptime":    time.Since(ui.startTime).Round(time.Second).String(),
	}
	ui.render(w, http.StatusOK, "dashboard", data)
}

// HandleProcess renders one process table entry.
func (ui *UI) HandleProcess(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.Atoi(chi.URLParam(r, "pid"))
	if err != nil || pid < 0 {
		ui.renderNotFound(w, "Process not found")
		return
	}
	p, err := ui.kernel.Process(pid)
	if err != nil {
		ui.renderNotFound(w, "Process not found")
		return
	}

	data := map[string]any{
		"Title":   "Process " + strconv.Itoa(pid) + " - pmcore",
		"Process": p,
	}
	ui.render(w, http.StatusOK, "procs/detail", data)
}

// HandleRunList renders the recorded runs.
func (ui *UI) HandleRunList(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"Title": "Runs - pmcore", "HasStore": ui.store != nil}
	if ui.store != nil {
		opts := ui.parseListOptions(r)
		runs, total, err := ui.store.ListRuns(r.Context(), opts)
		if err != nil {
			ui.renderError(w, "Failed to load runs", err)
			return
		}
		data["Runs"] = runs
		data["Pagination"] = ui.buildPagination(opts, total)
	}
	ui.render(w, http.StatusOK, "runs/list", data)
}

// HandleRunDetail renders one run with a page of its trace.
func (ui *UI) HandleRunDetail(w http.ResponseWriter, r *http.Request) {
	if ui.store == nil {
		ui.renderNotFound(w, "Run history is not available")
		return
	}
	id := chi.URLParam(r, "id")

	run, err := ui.store.GetRun(r.Context(), id)
	if err != nil {
		ui.renderError(w, "Failed to load run", err)
		return
	}
	if run == nil {
		ui.renderNotFound(w, "Run not found")
		return
	}

	opts := ui.parseListOptions(r)
	events, total, err := ui.store.ListEvents(r.Context(), id, opts)
	if err != nil {
		ui.renderError(w, "Failed to load events", err)
		return
	}
	counts, err := ui.store.CountEventsByKind(r.Context(), id)
	if err != nil {
		ui.renderError(w, "Failed to count events", err)
		return
	}

	data := map[string]any{
		"Title":      run.ID + " - pmcore",
		"Run":        run,
		"Live":       run.ID == ui.runID,
		"Events":     events,
		"Counts":     counts,
		"Pagination": ui.buildPagination(opts, total),
	}
	ui.render(w, http.StatusOK, "runs/detail", data)
}

func (ui *UI) parseListOptions(r *http.Request) model.ListOptions {
	opts := model.DefaultListOptions()

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 && n <= 100 {
			opts.Limit = n
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n >= 0 {
			opts.Offset = n
		}
	}
	if pid := r.URL.Query().Get("pid"); pid != "" {
		if n, err := strconv.Atoi(pid); err == nil && n >= 0 {
			opts.PID = n
		}
	}
	opts.Kind = model.EventKind(r.URL.Query().Get("kind"))

	return opts
}

func (ui *UI) buildPagination(opts model.ListOptions, total int) map[string]any {
	return map[string]any{
		"Total":      total,
		"Limit":      opts.Limit,
		"Offset":     opts.Offset,
		"HasMore":    opts.Offset+opts.Limit < total,
		"HasPrev":    opts.Offset > 0,
		"NextOffset": opts.Offset + opts.Limit,
		"PrevOffset": max(0, opts.Offset-opts.Limit),
	}
}

func (ui *UI) render(w http.ResponseWriter, status int, template string, data map[string]any) {
	var buf bytes.Buffer
	if err := renderTemplate(&buf, template, data); err != nil {
		ui.logger.Error("template render failed", "template", template, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (ui *UI) renderError(w http.ResponseWriter, message string, err error) {
	ui.logger.Error(message, "error", err)
	ui.render(w, http.StatusInternalServerError, "error", map[string]any{
		"Title":   "Error - pmcore",
		"Message": message,
	})
}

func (ui *UI) renderNotFound(w http.ResponseWriter, message string) {
	ui.render(w, http.StatusNotFound, "error", map[string]any{
		"Title":   "Not Found - pmcore",
		"Message": message,
	})
}
