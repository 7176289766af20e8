// Package dispatch turns operator actions into registry, scanner and system
// info calls and describes the reply to send back.
package dispatch

import (
	"strings"

	"github.com/basket/scriptbot/internal/process"
)

// Action is the closed set of things an operator can ask for. Raw callback
// data and commands are decoded into an Action once, at the gateway.
type Action interface {
	// Encode returns the callback data that decodes back to this action.
	Encode() string
	// Name is a stable label for logs and metrics.
	Name() string
	isAction()
}

type (
	ListScripts struct{}
	BeginRun    struct{}
	RunScript   struct{ Script string }
	BeginStop   struct{}
	StopScript  struct{ ID process.ID }
	ShowInfo    struct{}
	ShowMenu    struct{}
	ShowRunning struct{}
	// Unrecognized carries input that matched no action.
	Unrecognized struct{ Raw string }
)

const (
	dataListScripts = "list_scripts"
	dataBeginRun    = "run_script"
	dataBeginStop   = "stop_script"
	dataShowInfo    = "system_info"
	dataShowMenu    = "menu"
	dataShowRunning = "running"
	prefixRun       = "run_"
	prefixStop      = "stop_"
)

func (ListScripts) Encode() string    { return dataListScripts }
func (BeginRun) Encode() string       { return dataBeginRun }
func (a RunScript) Encode() string    { return prefixRun + a.Script }
func (BeginStop) Encode() string      { return dataBeginStop }
func (a StopScript) Encode() string   { return prefixStop + a.ID.String() }
func (ShowInfo) Encode() string       { return dataShowInfo }
func (ShowMenu) Encode() string       { return dataShowMenu }
func (ShowRunning) Encode() string    { return dataShowRunning }
func (a Unrecognized) Encode() string { return a.Raw }

func (ListScripts) Name() string  { return "list_scripts" }
func (BeginRun) Name() string     { return "begin_run" }
func (RunScript) Name() string    { return "run_script" }
func (BeginStop) Name() string    { return "begin_stop" }
func (StopScript) Name() string   { return "stop_script" }
func (ShowInfo) Name() string     { return "system_info" }
func (ShowMenu) Name() string     { return "menu" }
func (ShowRunning) Name() string  { return "running" }
func (Unrecognized) Name() string { return "unrecognized" }

func (ListScripts) isAction()  {}
func (BeginRun) isAction()     {}
func (RunScript) isAction()    {}
func (BeginStop) isAction()    {}
func (StopScript) isAction()   {}
func (ShowInfo) isAction()     {}
func (ShowMenu) isAction()     {}
func (ShowRunning) isAction()  {}
func (Unrecognized) isAction() {}

// DecodeAction parses inline-button callback data. Exact keywords win over
// the run_/stop_ prefixes, so "run_script" is BeginRun and never a script
// called "script".
func DecodeAction(data string) Action {
	switch data {
	case dataListScripts:
		return ListScripts{}
	case dataBeginRun:
		return BeginRun{}
	case dataBeginStop:
		return BeginStop{}
	case dataShowInfo:
		return ShowInfo{}
	case dataShowMenu:
		return ShowMenu{}
	case dataShowRunning:
		return ShowRunning{}
	}
	if name, ok := strings.CutPrefix(data, prefixRun); ok && name != "" {
		return RunScript{Script: name}
	}
	if raw, ok := strings.CutPrefix(data, prefixStop); ok {
		if id, err := process.ParseID(raw); err == nil {
			return StopScript{ID: id}
		}
	}
	return Unrecognized{Raw: data}
}

// DecodeCommand maps a slash command name (without the slash or @botname)
// to an action.
func DecodeCommand(command string) Action {
	switch strings.ToLower(command) {
	case "start", "menu", "help":
		return ShowMenu{}
	case "list":
		return ListScripts{}
	case "run":
		return BeginRun{}
	case "stop":
		return BeginStop{}
	case "ps":
		return ShowRunning{}
	case "info":
		return ShowInfo{}
	default:
		return Unrecognized{Raw: "/" + command}
	}
}
