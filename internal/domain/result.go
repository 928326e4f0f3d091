package domain

import (
	"net"
	"strconv"
	"time"
)

// OversizeThreshold is the output length above which a result is delivered
// as a file attachment instead of inline.
const OversizeThreshold = 1024

// Outcome is the terminal classification of a workflow.
type Outcome string

const (
	OutcomeSettled           Outcome = "settled"
	OutcomeFailed            Outcome = "failed"
	OutcomeTimedOut          Outcome = "timed_out"
	OutcomeAlreadyInProgress Outcome = "already_in_progress"
)

// Endpoint is what a client needs to connect to a started service. Address
// is empty when the public address could not be determined.
type Endpoint struct {
	Address  string `json:"address,omitempty"`
	Port     int    `json:"port,omitempty"`
	Password string `json:"password,omitempty"`
}

// NewEndpoint joins a public address with the service port. Port and
// password are kept even without an address.
func NewEndpoint(publicAddr string, info *ConnectionInfo) *Endpoint {
	if info == nil {
		return nil
	}
	ep := &Endpoint{Port: info.Port, Password: info.Password}
	switch {
	case publicAddr == "":
	case info.Port > 0:
		ep.Address = net.JoinHostPort(publicAddr, strconv.Itoa(info.Port))
	default:
		ep.Address = publicAddr
	}
	return ep
}

// String renders the endpoint for progress messages.
func (e *Endpoint) String() string {
	switch {
	case e.Address != "":
		return e.Address
	case e.Port > 0:
		return "port " + strconv.Itoa(e.Port)
	default:
		return ""
	}
}

// Result summarizes a finished workflow.
type Result struct {
	// ─────────────────────────────
	// Identity
	// ─────────────────────────────

	RequestID string `json:"request_id"`
	ServiceID string `json:"service,omitempty"`
	Action    string `json:"action"`

	// ─────────────────────────────
	// Outcome
	// ─────────────────────────────

	Outcome Outcome `json:"outcome"`

	// Phases is the path taken through the state machine, in order.
	Phases []Phase `json:"phases"`

	// Message is the user facing summary; for failures it holds the
	// verbatim cause.
	Message string `json:"message,omitempty"`

	// Err is the underlying cause for failed and timed out outcomes.
	Err error `json:"-"`

	// ─────────────────────────────
	// Payload
	// ─────────────────────────────

	// Output is the full command output with escape sequences removed.
	// It is never truncated.
	Output string `json:"-"`

	// Oversized is set when Output exceeds OversizeThreshold.
	Oversized bool `json:"oversized,omitempty"`

	Endpoint *Endpoint `json:"endpoint,omitempty"`

	// PowerDown holds the independent power-down outcome of a stop
	// with shutdown requested.
	PowerDown *Result `json:"power_down,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Succeeded reports whether the workflow settled.
func (r *Result) Succeeded() bool {
	return r != nil && r.Outcome == OutcomeSettled
}

// ResourceStats is a snapshot of host utilisation.
type ResourceStats struct {
	CPUPercent     float64 `json:"cpu_percent"`
	MemUsedBytes   uint64  `json:"mem_used_bytes"`
	MemTotalBytes  uint64  `json:"mem_total_bytes"`
	DiskUsedBytes  uint64  `json:"disk_used_bytes"`
	DiskTotalBytes uint64  `json:"disk_total_bytes"`
	Uptime         string  `json:"uptime"`
}

// MemPercent returns used/total memory as a percentage.
func (s ResourceStats) MemPercent() float64 {
	return percent(s.MemUsedBytes, s.MemTotalBytes)
}

// DiskPercent returns used/total disk as a percentage.
func (s ResourceStats) DiskPercent() float64 {
	return percent(s.DiskUsedBytes, s.DiskTotalBytes)
}

func percent(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(used) * 100 / float64(total)
}
