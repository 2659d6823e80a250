package ui

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"
)

// Template functions available in all templates.
var templateFuncs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02 15:04:05")
	},
	"formatTimePtr": func(t *time.Time) string {
		if t == nil || t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02 15:04:05")
	},
	"stateColor": func(state string) string {
		switch strings.ToUpper(state) {
		case "READY":
			return "bg-yellow-100 text-yellow-800"
		case "RUNNING":
			return "bg-blue-100 text-blue-800"
		case "STOPPED":
			return "bg-gray-100 text-gray-800"
		case "ZOMBIE":
			return "bg-red-100 text-red-800"
		default:
			return "bg-gray-100 text-gray-800"
		}
	},
	"kindColor": func(kind string) string {
		switch kind {
		case "fork", "resume":
			return "text-green-700"
		case "fork_failed", "exit":
			return "text-red-700"
		case "signal", "alarm", "stop":
			return "text-orange-700"
		default:
			return "text-gray-700"
		}
	},
	"percent": func(a, b int) int {
		if b == 0 {
			return 0
		}
		return (a * 100) / b
	},
	"join": func(s []string) string {
		return strings.Join(s, ", ")
	},
}

// renderTemplate renders a page template inside the layout.
func renderTemplate(w io.Writer, name string, data map[string]any) error {
	content, ok := templates[name]
	if !ok {
		return fmt.Errorf("template not found: %s", name)
	}

	tmpl, err := template.New("layout").Funcs(templateFuncs).Parse(templates["layout"])
	if err != nil {
		return fmt.Errorf("parse layout: %w", err)
	}
	if _, err = tmpl.New("content").Parse(content); err != nil {
		return fmt.Errorf("parse content: %w", err)
	}
	if _, err = tmpl.New("pagination").Parse(templates["components/pagination"]); err != nil {
		return fmt.Errorf("parse pagination: %w", err)
	}

	return tmpl.Execute(w, data)
}

var templates = map[string]string{
	"layout": `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <script src="https://cdn.tailwindcss.com"></script>
</head>
<body class="bg-gray-50 min-h-screen">
    <nav class="bg-white shadow-sm border-b">
        <div class="max-w-7xl mx-auto px-4 sm:px-6 lg:px-8">
            <div class="flex h-16">
                <a href="/" class="flex items-center px-2 py-2 text-xl font-bold text-indigo-600">pmcore</a>
                <div class="ml-6 flex space-x-8">
                    <a href="/" class="text-gray-500 hover:text-gray-700 inline-flex items-center px-1 pt-1 text-sm font-medium">Processes</a>
                    <a href="/runs" class="text-gray-500 hover:text-gray-700 inline-flex items-center px-1 pt-1 text-sm font-medium">Runs</a>
                </div>
            </div>
        </div>
    </nav>

    <main class="max-w-7xl mx-auto py-6 sm:px-6 lg:px-8">
        {{template "content" .}}
    </main>
</body>
</html>`,

	"components/pagination": `{{with .Pagination}}
<div class="flex justify-between items-center mt-4 text-sm text-gray-600">
    <span>{{.Offset}} - {{.NextOffset}} of {{.Total}}</span>
    <div class="space-x-4">
        {{if .HasPrev}}<a href="?offset={{.PrevOffset}}&limit={{.Limit}}" class="text-indigo-600">Previous</a>{{end}}
        {{if .HasMore}}<a href="?offset={{.NextOffset}}&limit={{.Limit}}" class="text-indigo-600">Next</a>{{end}}
    </div>
</div>
{{end}}`,

	"dashboard": `{{define "content"}}
<div class="px-4 py-6 sm:px-0">
    <div class="mb-8">
        <h1 class="text-2xl font-semibold text-gray-900">Processes</h1>
        <p class="mt-1 text-sm text-gray-500">Policy {{.Stats.Policy}}, up {{.Uptime}}{{if .RunID}}, recording <a href="/runs/{{.RunID}}" class="text-indigo-600">{{.RunID}}</a>{{end}}</p>
    </div>

    <div class="grid grid-cols-1 gap-5 sm:grid-cols-2 lg:grid-cols-4 mb-8">
        <div class="bg-white shadow rounded-lg p-5">
            <dt class="text-sm text-gray-500">Ticks</dt>
            <dd class="text-2xl font-semibold text-gray-900">{{.Stats.Ticks}}</dd>
        </div>
        <div class="bg-white shadow rounded-lg p-5">
            <dt class="text-sm text-gray-500">Table</dt>
            <dd class="text-2xl font-semibold text-gray-900">{{.Stats.InUse}} / {{.Stats.TableSize}}</dd>
        </div>
        <div class="bg-white shadow rounded-lg p-5">
            <dt class="text-sm text-gray-500">Frames</dt>
            <dd class="text-2xl font-semibold text-gray-900">{{.Stats.FramesUsed}} / {{.Stats.FramesTotal}}</dd>
            <dd class="text-sm text-gray-500">{{percent .Stats.FramesUsed .Stats.FramesTotal}}% used</dd>
        </div>
        <div class="bg-white shadow rounded-lg p-5">
            <dt class="text-sm text-gray-500">Switches</dt>
            <dd class="text-2xl font-semibold text-gray-900">{{.Stats.Switches}}</dd>
            <dd class="text-sm text-gray-500">current pid {{.Stats.Current}}, last {{.Stats.Last}}</dd>
        </div>
    </div>

    <div class="mb-4 text-sm text-gray-600">
        {{range $state, $n := .ByState}}<span class="mr-4">{{$state}}: {{$n}}</span>{{end}}
    </div>

    <div class="bg-white shadow overflow-hidden sm:rounded-md">
        <table class="min-w-full divide-y divide-gray-200">
            <thead class="bg-gray-50">
                <tr>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">PID</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Name</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Father</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">State</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Priority</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Nice</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Counter</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">UTime</th>
                </tr>
            </thead>
            <tbody class="bg-white divide-y divide-gray-200">
                {{range .Processes}}
                <tr>
                    <td class="px-6 py-4 text-sm"><a href="/procs/{{.PID}}" class="text-indigo-600">{{.PID}}</a></td>
                    <td class="px-6 py-4 text-sm text-gray-900">{{.Name}}</td>
                    <td class="px-6 py-4 text-sm text-gray-500">{{.Father}}</td>
                    <td class="px-6 py-4 text-sm"><span class="px-2 rounded-full text-xs font-semibold {{stateColor (print .State)}}">{{.State}}</span></td>
                    <td class="px-6 py-4 text-sm text-gray-500">{{.Priority}}</td>
                    <td class="px-6 py-4 text-sm text-gray-500">{{.Nice}}</td>
                    <td class="px-6 py-4 text-sm text-gray-500">{{.Counter}}</td>
                    <td class="px-6 py-4 text-sm text-gray-500">{{.UTime}}</td>
                </tr>
                {{end}}
            </tbody>
        </table>
    </div>
</div>
{{end}}`,

	"procs/detail": `{{define "content"}}
{{with .Process}}
<div class="px-4 py-6 sm:px-0">
    <h1 class="text-2xl font-semibold text-gray-900 mb-6">Process {{.PID}}{{if .Name}} ({{.Name}}){{end}}</h1>
    <div class="bg-white shadow rounded-lg p-6 mb-6">
        <dl class="grid grid-cols-2 gap-4 sm:grid-cols-4 text-sm">
            <div><dt class="text-gray-500">State</dt><dd><span class="px-2 rounded-full text-xs font-semibold {{stateColor (print .State)}}">{{.State}}</span></dd></div>
            <div><dt class="text-gray-500">Father</dt><dd>{{.Father}}</dd></div>
            <div><dt class="text-gray-500">Slot</dt><dd>{{.Slot}}</dd></div>
            <div><dt class="text-gray-500">Group</dt><dd>{{.Pgrp}}</dd></div>
            <div><dt class="text-gray-500">Priority</dt><dd>{{.Priority}}</dd></div>
            <div><dt class="text-gray-500">Nice</dt><dd>{{.Nice}}</dd></div>
            <div><dt class="text-gray-500">Counter</dt><dd>{{.Counter}}</dd></div>
            <div><dt class="text-gray-500">Alarm</dt><dd>{{.Alarm}}</dd></div>
            <div><dt class="text-gray-500">UTime</dt><dd>{{.UTime}}</dd></div>
            <div><dt class="text-gray-500">KTime</dt><dd>{{.KTime}}</dd></div>
            <div><dt class="text-gray-500">Children</dt><dd>{{.NChildren}}</dd></div>
            <div><dt class="text-gray-500">Pending</dt><dd>{{if .Pending}}{{join .Pending}}{{else}}-{{end}}</dd></div>
        </dl>
    </div>

    <h2 class="text-lg font-medium text-gray-900 mb-2">Regions</h2>
    <div class="bg-white shadow rounded-lg mb-6">
        <ul class="divide-y divide-gray-200 text-sm">
            {{range .Regions}}
            <li class="px-4 py-3">slot {{.Slot}} at {{printf "%#x" .Start}}, {{.Pages}} pages{{if .Shared}}, shared{{end}}, count {{.Count}}</li>
            {{else}}
            <li class="px-4 py-3 text-gray-500">No regions attached</li>
            {{end}}
        </ul>
    </div>

    <h2 class="text-lg font-medium text-gray-900 mb-2">Files</h2>
    <div class="bg-white shadow rounded-lg">
        <ul class="divide-y divide-gray-200 text-sm">
            {{range .Files}}
            <li class="px-4 py-3">fd {{.FD}} {{.Path}} (count {{.Count}})</li>
            {{else}}
            <li class="px-4 py-3 text-gray-500">No open files</li>
            {{end}}
        </ul>
    </div>
</div>
{{end}}
{{end}}`,

	"runs/list": `{{define "content"}}
<div class="px-4 py-6 sm:px-0">
    <h1 class="text-2xl font-semibold text-gray-900 mb-6">Runs</h1>
    {{if not .HasStore}}
    <p class="text-sm text-gray-500">Run history is not available.</p>
    {{else}}
    <div class="bg-white shadow overflow-hidden sm:rounded-md">
        <table class="min-w-full divide-y divide-gray-200">
            <thead class="bg-gray-50">
                <tr>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">ID</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Name</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Policy</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Ticks</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Events</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Started</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Finished</th>
                </tr>
            </thead>
            <tbody class="bg-white divide-y divide-gray-200">
                {{range .Runs}}
                <tr>
                    <td class="px-6 py-4 text-sm"><a href="/runs/{{.ID}}" class="text-indigo-600">{{.ID}}</a></td>
                    <td class="px-6 py-4 text-sm text-gray-900">{{.Name}}</td>
                    <td class="px-6 py-4 text-sm text-gray-500">{{.Policy}}</td>
                    <td class="px-6 py-4 text-sm text-gray-500">{{.Ticks}}</td>
                    <td class="px-6 py-4 text-sm text-gray-500">{{.Events}}</td>
                    <td class="px-6 py-4 text-sm text-gray-500">{{formatTime .StartedAt}}</td>
                    <td class="px-6 py-4 text-sm text-gray-500">{{formatTimePtr .FinishedAt}}</td>
                </tr>
                {{else}}
                <tr><td colspan="7" class="px-6 py-4 text-sm text-gray-500 text-center">No runs recorded</td></tr>
                {{end}}
            </tbody>
        </table>
    </div>
    {{template "pagination" .}}
    {{end}}
</div>
{{end}}`,

	"runs/detail": `{{define "content"}}
<div class="px-4 py-6 sm:px-0">
    {{with .Run}}
    <h1 class="text-2xl font-semibold text-gray-900">{{.Name}}</h1>
    <p class="mt-1 mb-6 text-sm text-gray-500">{{.ID}}, policy {{.Policy}}, seed {{.Seed}}, table {{.TableSize}}, quantum {{.Quantum}}</p>
    <div class="bg-white shadow rounded-lg p-6 mb-6">
        <dl class="grid grid-cols-2 gap-4 sm:grid-cols-4 text-sm">
            <div><dt class="text-gray-500">Ticks</dt><dd>{{.Ticks}}</dd></div>
            <div><dt class="text-gray-500">Events</dt><dd>{{.Events}}</dd></div>
            <div><dt class="text-gray-500">Started</dt><dd>{{formatTime .StartedAt}}</dd></div>
            <div><dt class="text-gray-500">Finished</dt><dd>{{formatTimePtr .FinishedAt}}</dd></div>
        </dl>
        {{if .Summary}}
        <h2 class="mt-6 text-sm font-medium text-gray-900">Dispatches</h2>
        <div class="mt-2 text-sm text-gray-600">{{range $proc, $n := .Summary}}<span class="mr-4">{{$proc}}: {{$n}}</span>{{end}}</div>
        {{end}}
    </div>
    {{end}}
    {{if .Live}}<p class="mb-4 text-sm text-blue-700">This run is still recording.</p>{{end}}

    <div class="mb-4 text-sm text-gray-600">
        {{range $kind, $n := .Counts}}<span class="mr-4 {{kindColor (print $kind)}}">{{$kind}}: {{$n}}</span>{{end}}
    </div>

    <div class="bg-white shadow overflow-hidden sm:rounded-md">
        <table class="min-w-full divide-y divide-gray-200">
            <thead class="bg-gray-50">
                <tr>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Seq</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Tick</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Kind</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">PID</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Target</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Detail</th>
                </tr>
            </thead>
            <tbody class="bg-white divide-y divide-gray-200">
                {{range .Events}}
                <tr>
                    <td class="px-6 py-2 text-sm text-gray-500">{{.Seq}}</td>
                    <td class="px-6 py-2 text-sm text-gray-500">{{.Tick}}</td>
                    <td class="px-6 py-2 text-sm {{kindColor (print .Kind)}}">{{.Kind}}</td>
                    <td class="px-6 py-2 text-sm text-gray-900">{{.PID}}</td>
                    <td class="px-6 py-2 text-sm text-gray-500">{{if ge .Target 0}}{{.Target}}{{else}}-{{end}}</td>
                    <td class="px-6 py-2 text-sm text-gray-500">{{.Detail}}</td>
                </tr>
                {{else}}
                <tr><td colspan="6" class="px-6 py-4 text-sm text-gray-500 text-center">No events</td></tr>
                {{end}}
            </tbody>
        </table>
    </div>
    {{template "pagination" .}}
</div>
{{end}}`,

	"error": `{{define "content"}}
<div class="flex items-center justify-center py-24">
    <div class="text-center">
        <h1 class="text-4xl font-bold text-gray-900 mb-4">Error</h1>
        <p class="text-gray-600 mb-8">{{.Message}}</p>
        <a href="/" class="text-indigo-600 hover:text-indigo-500">Return to Processes</a>
    </div>
</div>
{{end}}`,
}
