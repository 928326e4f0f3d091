package domain

import (
	"fmt"
	"strings"
)

// Action is one of the closed set of operations a service profile can
// expose. Names match the helper-script verbs of managed services.
type Action string

const (
	ActionStart       Action = "start"
	ActionStop        Action = "stop"
	ActionRestart     Action = "restart"
	ActionDetails     Action = "details"
	ActionPostDetails Action = "postdetails"
	ActionSkeleton    Action = "skeleton"
	ActionBackup      Action = "backup"
	ActionUpdateLGSM  Action = "update-lgsm"
	ActionMonitor     Action = "monitor"
	ActionTestAlert   Action = "test-alert"
	ActionUpdate      Action = "update"
	ActionCheckUpdate Action = "check-update"
	ActionForceUpdate Action = "force-update"
	ActionValidate    Action = "validate"
)

// ActionInfo pairs an action with its display label.
type ActionInfo struct {
	Action Action `json:"action"`
	Label  string `json:"label"`
}

var actionCatalog = []ActionInfo{
	{ActionStart, "Start"},
	{ActionStop, "Stop"},
	{ActionRestart, "Restart"},
	{ActionDetails, "Details"},
	{ActionPostDetails, "Post Details"},
	{ActionSkeleton, "Skeleton"},
	{ActionBackup, "Backup"},
	{ActionUpdateLGSM, "Update LinuxGSM"},
	{ActionMonitor, "Monitor"},
	{ActionTestAlert, "Test Alert"},
	{ActionUpdate, "Update"},
	{ActionCheckUpdate, "Check Update"},
	{ActionForceUpdate, "Force Update"},
	{ActionValidate, "Validate"},
}

// Actions returns the catalog in display order.
func Actions() []ActionInfo {
	out := make([]ActionInfo, len(actionCatalog))
	copy(out, actionCatalog)
	return out
}

// ParseAction validates a user or file supplied action name.
func ParseAction(name string) (Action, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, a := range actionCatalog {
		if string(a.Action) == n {
			return a.Action, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

// Label returns the display label, or the raw name for unknown values.
func (a Action) Label() string {
	for _, info := range actionCatalog {
		if info.Action == a {
			return info.Label
		}
	}
	return string(a)
}
