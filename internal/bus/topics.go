package bus

import "time"

// Process lifecycle topics. Subscribing to "process." receives all of them.
const (
	TopicProcessLaunched   = "process.launched"
	TopicProcessTerminated = "process.terminated"
	TopicProcessExited     = "process.exited"
	TopicProcessReconciled = "process.reconciled"
)

// TopicScriptsChanged is published by the script directory watcher.
const TopicScriptsChanged = "scripts.changed"

// ProcessEvent describes a launched script at a lifecycle transition.
type ProcessEvent struct {
	PID        int
	ScriptName string
	OperatorID int64     // 0 when the transition was not operator-initiated
	ExitCode   int       // only meaningful for TopicProcessExited
	At         time.Time
}

// ScriptsChangedEvent is published when a script file appears, disappears or
// is renamed in the script directory.
type ScriptsChangedEvent struct {
	Name string
	Op   string // "created", "removed", "renamed", "written"
}
