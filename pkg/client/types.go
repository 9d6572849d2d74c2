package client

import "time"

// Status is the answer of GET /status.
type Status struct {
	App           string       `json:"app"`
	State         string       `json:"state"`
	Pid           int          `json:"pid"`
	PidAlive      bool         `json:"pid_alive"`
	AdminAlive    bool         `json:"admin_alive"`
	RuntimeStatus string       `json:"runtime_status,omitempty"`
	CriticalLogs  []string     `json:"critical_logs,omitempty"`
	LoggedInUsers int          `json:"logged_in_users"`
	Process       *ProcessInfo `json:"process,omitempty"`
	Problem       string       `json:"problem,omitempty"`
}

// ProcessInfo describes the runtime process as seen by the server host.
type ProcessInfo struct {
	Pid        int       `json:"pid"`
	CreateTime time.Time `json:"create_time"`
	RSSBytes   uint64    `json:"rss_bytes"`
	Threads    int32     `json:"threads"`
	Cmdline    string    `json:"cmdline"`
}

// StartResult is the answer of a successful POST /start.
type StartResult struct {
	OK    bool   `json:"ok"`
	State string `json:"state"`
}

// StopResult is the answer of POST /stop. Stopped is false when every tier
// was tried, or escalation halted, and the process still lives.
type StopResult struct {
	Tier    string `json:"tier"`
	Stopped bool   `json:"stopped"`
	Halted  bool   `json:"halted"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Output string `json:"output,omitempty"`
}
