package domain

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// ServiceProfile describes one hosted service the orchestrator can drive.
// Profiles are loaded once from the registry and are read-only afterwards.
type ServiceProfile struct {
	// ID is the unique registry key.
	ID string `json:"id"`

	// Name is the display name.
	Name string `json:"name"`

	// Managed services follow the helper-script convention
	// <base>/<id>/<script> <action>; unmanaged ones use Commands.
	Managed bool `json:"managed"`

	// Commands maps an action to the remote command line. Only set for
	// unmanaged services.
	Commands map[Action]string `json:"-"`

	// Info carries the client-facing endpoint reported after a start.
	// Nil when the service exposes nothing.
	Info *ConnectionInfo `json:"-"`
}

// ConnectionInfo is descriptive metadata; the orchestrator never derives it.
type ConnectionInfo struct {
	Port     int
	Password string
}

// ManagedConvention locates helper scripts of managed services.
type ManagedConvention struct {
	BasePath string
	Script   string
}

// ScriptPath returns <base>/<id>/<script>.
func (c ManagedConvention) ScriptPath(serviceID string) string {
	return path.Join(c.BasePath, serviceID, c.Script)
}

// Supports reports whether the profile can run action.
func (p *ServiceProfile) Supports(action Action) bool {
	if p.Managed {
		return true
	}
	_, ok := p.Commands[action]
	return ok
}

// SupportedActions lists what the profile accepts, sorted.
func (p *ServiceProfile) SupportedActions() []Action {
	if p.Managed {
		all := make([]Action, 0, len(actionCatalog))
		for _, a := range actionCatalog {
			all = append(all, a.Action)
		}
		return all
	}
	out := make([]Action, 0, len(p.Commands))
	for a := range p.Commands {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CommandFor resolves the concrete remote command for action.
func (p *ServiceProfile) CommandFor(action Action, conv ManagedConvention) (string, error) {
	if p.Managed {
		return ShellQuote(conv.ScriptPath(p.ID)) + " " + string(action), nil
	}
	cmd, ok := p.Commands[action]
	if !ok || strings.TrimSpace(cmd) == "" {
		return "", fmt.Errorf("%w: %s does not define %q", ErrActionNotSupported, p.ID, action)
	}
	return cmd, nil
}

// ReadinessFor picks how to decide that the service can accept commands.
func (p *ServiceProfile) ReadinessFor(conv ManagedConvention) ReadinessProbe {
	if p.Managed {
		return ReadinessProbe{Kind: ProbePathExists, Path: conv.ScriptPath(p.ID)}
	}
	return ReadinessProbe{Kind: ProbeLiveness}
}

// ProbeKind selects the readiness check.
type ProbeKind int

const (
	// ProbeLiveness succeeds on any successful remote command.
	ProbeLiveness ProbeKind = iota
	// ProbePathExists requires Path to exist on the host.
	ProbePathExists
)

// ReadinessProbe distinguishes "host reachable" from "service ready".
type ReadinessProbe struct {
	Kind ProbeKind
	Path string
}

func (r ReadinessProbe) String() string {
	if r.Kind == ProbePathExists {
		return "path " + r.Path
	}
	return "ssh liveness"
}

// ShellQuote wraps s in single quotes for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
