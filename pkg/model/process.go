package model

// ProcessInfo is a read-only snapshot of one process table entry.
type ProcessInfo struct {
	Slot      int          `json:"slot"`
	PID       int          `json:"pid"`
	Father    int          `json:"father"` // -1 when the entry has no father
	Name      string       `json:"name,omitempty"`
	Flags     ProcFlag     `json:"flags"`
	State     ProcState    `json:"state"`
	Priority  int          `json:"priority"`
	Nice      int          `json:"nice"`
	Counter   int          `json:"counter"`
	Alarm     uint64       `json:"alarm"`
	Pgrp      int          `json:"pgrp"`
	UID       int          `json:"uid"`
	GID       int          `json:"gid"`
	Pending   []string     `json:"pending,omitempty"`
	Regions   []RegionInfo `json:"regions,omitempty"`
	Files     []FileInfo   `json:"files,omitempty"`
	NChildren int          `json:"nchildren"`
	UTime     uint64       `json:"utime"`
	KTime     uint64       `json:"ktime"`
	Status    int          `json:"status"`
}

// RegionInfo describes one region attachment of a process.
type RegionInfo struct {
	Slot   int    `json:"slot"`
	Start  uint64 `json:"start"`
	Pages  int    `json:"pages"`
	Shared bool   `json:"shared"`
	Count  int    `json:"count"`
}

// FileInfo describes one open-file slot of a process.
type FileInfo struct {
	FD    int    `json:"fd"`
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// KernelStats summarizes the state of a kernel instance.
type KernelStats struct {
	Ticks       uint64     `json:"ticks"`
	Current     int        `json:"current"`
	Last        int        `json:"last"` // pid that ran before the latest reschedule; -1 before the first
	Policy      PolicyName `json:"policy"`
	TableSize   int        `json:"table_size"`
	InUse       int        `json:"in_use"`
	FramesUsed  int        `json:"frames_used"`
	FramesTotal int        `json:"frames_total"`
	Switches    int        `json:"switches"`
}
