package process

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/basket/scriptbot/internal/bus"
	"github.com/basket/scriptbot/internal/otel"
	"github.com/basket/scriptbot/internal/scripts"
	"github.com/basket/scriptbot/internal/shared"
)

// Entry is the externally visible view of a tracked process.
type Entry struct {
	ID         ID
	ScriptName string
	StartedAt  time.Time
	OperatorID int64
}

type record struct {
	Entry
	handle Handle
}

// RegistryOptions configures a Registry. Zero values are usable.
type RegistryOptions struct {
	// Interpreter runs each script; defaults to python3.
	Interpreter string
	Bus         *bus.Bus
	Metrics     *otel.Metrics
	Logger      *slog.Logger
	Now         func() time.Time
}

// Registry tracks launched processes by ID. At most one entry exists per ID.
// Entries are added only by Launch and removed only by Terminate,
// TerminateAll or an explicit Reconcile. A process that exits on its own
// stays listed until one of those runs.
type Registry struct {
	launcher    Launcher
	interpreter string
	bus         *bus.Bus
	metrics     *otel.Metrics
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.RWMutex
	entries map[ID]*record
}

func NewRegistry(launcher Launcher, opts RegistryOptions) *Registry {
	if opts.Interpreter == "" {
		opts.Interpreter = "python3"
	}
	if opts.Metrics == nil {
		opts.Metrics = otel.NoopMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		launcher:    launcher,
		interpreter: opts.Interpreter,
		bus:         opts.Bus,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		now:         opts.Now,
		entries:     make(map[ID]*record),
	}
}

// Launch starts script under the interpreter and tracks it. Spawn failures
// come back as *SpawnError and leave the registry unchanged.
func (r *Registry) Launch(ctx context.Context, script scripts.Script) (ID, error) {
	scriptAttr := metric.WithAttributes(otel.AttrScript.String(script.Name))
	h, err := r.launcher.Spawn(ctx, r.interpreter, []string{script.Path})
	if err != nil {
		r.metrics.LaunchErrors.Add(ctx, 1, scriptAttr)
		return 0, &SpawnError{Script: script.Name, Err: err}
	}

	rec := &record{
		Entry: Entry{
			ID:         ID(h.PID()),
			ScriptName: script.Name,
			StartedAt:  r.now(),
			OperatorID: shared.OperatorID(ctx),
		},
		handle: h,
	}

	r.mu.Lock()
	_, replaced := r.entries[rec.ID]
	r.entries[rec.ID] = rec
	r.mu.Unlock()

	if replaced {
		// The OS reused the PID of an entry whose process already exited.
		r.logger.Warn("replaced stale registry entry", "pid", int(rec.ID), "script", script.Name)
	} else {
		r.metrics.TrackedProcesses.Add(ctx, 1)
	}
	r.metrics.ProcessLaunches.Add(ctx, 1, scriptAttr)
	r.bus.Publish(bus.TopicProcessLaunched, r.event(rec.Entry, 0))

	if done := h.Exited(); done != nil {
		go r.watchExit(rec, done)
	}
	return rec.ID, nil
}

// watchExit reports a natural exit. The entry stays in the registry.
func (r *Registry) watchExit(rec *record, done <-chan struct{}) {
	<-done
	r.mu.RLock()
	current, tracked := r.entries[rec.ID]
	r.mu.RUnlock()
	if !tracked || current != rec {
		return
	}
	code := rec.handle.ExitCode()
	r.logger.Info("tracked script exited", "pid", int(rec.ID), "script", rec.ScriptName, "exit_code", code)
	r.bus.Publish(bus.TopicProcessExited, r.event(rec.Entry, code))
}

// List returns an iterator over a copy of the entries taken when List is
// called, in ascending ID order. Writers are blocked only while copying.
func (r *Registry) List() iter.Seq[Entry] {
	snap := r.Snapshot()
	return func(yield func(Entry) bool) {
		for _, e := range snap {
			if !yield(e) {
				return
			}
		}
	}
}

// Snapshot returns the entries sorted by ID.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, rec := range r.entries {
		out = append(out, rec.Entry)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of tracked entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Terminate removes id and sends it SIGTERM without waiting for exit.
// Untracked ids return ErrNotFound and change nothing. A signal failure
// (the process is already gone) is logged; the entry is removed either way.
func (r *Registry) Terminate(ctx context.Context, id ID) error {
	r.mu.Lock()
	rec, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	r.metrics.TrackedProcesses.Add(ctx, -1)
	r.metrics.ProcessStops.Add(ctx, 1, metric.WithAttributes(otel.AttrScript.String(rec.ScriptName)))
	r.signal(rec)
	r.bus.Publish(bus.TopicProcessTerminated, r.eventFrom(ctx, rec.Entry))
	return nil
}

// Reconcile drops entries whose process is no longer alive and returns them.
// It only runs when called; nothing invokes it implicitly.
func (r *Registry) Reconcile(ctx context.Context) []Entry {
	var removed []Entry
	r.mu.Lock()
	for id, rec := range r.entries {
		if rec.handle.Alive() {
			continue
		}
		delete(r.entries, id)
		removed = append(removed, rec.Entry)
	}
	r.mu.Unlock()

	sort.Slice(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })
	if n := int64(len(removed)); n > 0 {
		r.metrics.TrackedProcesses.Add(ctx, -n)
		r.metrics.ReconcileRemovals.Add(ctx, n)
	}
	for _, e := range removed {
		r.logger.Info("reconciled stale entry", "pid", int(e.ID), "script", e.ScriptName)
		r.bus.Publish(bus.TopicProcessReconciled, r.event(e, 0))
	}
	return removed
}

// TerminateAll signals every tracked process and empties the registry.
// Used on shutdown.
func (r *Registry) TerminateAll(ctx context.Context) int {
	r.mu.Lock()
	recs := make([]*record, 0, len(r.entries))
	for _, rec := range r.entries {
		recs = append(recs, rec)
	}
	clear(r.entries)
	r.mu.Unlock()

	if len(recs) > 0 {
		r.metrics.TrackedProcesses.Add(ctx, -int64(len(recs)))
	}
	for _, rec := range recs {
		r.signal(rec)
		r.bus.Publish(bus.TopicProcessTerminated, r.event(rec.Entry, 0))
	}
	return len(recs)
}

func (r *Registry) signal(rec *record) {
	if err := rec.handle.Terminate(); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, os.ErrProcessDone) {
			level = slog.LevelInfo
		}
		r.logger.Log(context.Background(), level, "terminate signal failed",
			"pid", int(rec.ID), "script", rec.ScriptName, "error", err)
	}
}

func (r *Registry) event(e Entry, exitCode int) bus.ProcessEvent {
	return bus.ProcessEvent{
		PID:        int(e.ID),
		ScriptName: e.ScriptName,
		OperatorID: e.OperatorID,
		ExitCode:   exitCode,
		At:         r.now(),
	}
}

// eventFrom attributes the event to the operator in ctx rather than the one
// who launched the process.
func (r *Registry) eventFrom(ctx context.Context, e Entry) bus.ProcessEvent {
	ev := r.event(e, 0)
	ev.OperatorID = shared.OperatorID(ctx)
	return ev
}

