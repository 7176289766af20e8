package dispatch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/basket/scriptbot/internal/audit"
	"github.com/basket/scriptbot/internal/otel"
	"github.com/basket/scriptbot/internal/process"
	"github.com/basket/scriptbot/internal/scripts"
	"github.com/basket/scriptbot/internal/shared"
	"github.com/basket/scriptbot/internal/sysinfo"
	"github.com/basket/scriptbot/internal/telemetry"
)

// DeniedText is the only reply an operator outside the allowlist ever sees.
const DeniedText = "Access denied."

// Telegram rejects callback data longer than this many bytes.
const maxCallbackData = 64

const buttonsPerRow = 3

// ScriptSource lists and resolves launchable scripts.
type ScriptSource interface {
	List() ([]scripts.Script, error)
	Resolve(name string) (scripts.Script, error)
}

// ProcessTable starts, stops and enumerates tracked processes.
type ProcessTable interface {
	Launch(ctx context.Context, script scripts.Script) (process.ID, error)
	Terminate(ctx context.Context, id process.ID) error
	List() iter.Seq[process.Entry]
}

// InfoCollector produces the host report.
type InfoCollector interface {
	Collect(ctx context.Context) (sysinfo.Report, error)
}

// Options holds optional Dispatcher dependencies.
type Options struct {
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *otel.Metrics
}

// Dispatcher executes actions on behalf of operators.
type Dispatcher struct {
	allow   Allowlist
	scripts ScriptSource
	procs   ProcessTable
	info    InfoCollector

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *otel.Metrics
}

func New(allow Allowlist, src ScriptSource, procs ProcessTable, info InfoCollector, opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = nooptrace.NewTracerProvider().Tracer(otel.TracerName)
	}
	if opts.Metrics == nil {
		opts.Metrics = otel.NoopMetrics()
	}
	return &Dispatcher{
		allow:   allow,
		scripts: src,
		procs:   procs,
		info:    info,
		logger:  opts.Logger,
		tracer:  opts.Tracer,
		metrics: opts.Metrics,
	}
}

// Allowlist returns the operators this dispatcher serves.
func (d *Dispatcher) Allowlist() Allowlist { return d.allow }

// Dispatch checks the operator against the allowlist before anything else and
// then performs the action. Unauthorized operators get DeniedText and cause no
// scanner, registry or collector calls.
func (d *Dispatcher) Dispatch(ctx context.Context, operator int64, action Action) Response {
	start := time.Now()
	ctx = shared.WithOperatorID(ctx, operator)
	ctx, span := otel.StartSpan(ctx, d.tracer, "dispatch."+action.Name(),
		otel.AttrOperatorID.Int64(operator),
		otel.AttrAction.String(action.Name()),
	)
	defer span.End()
	logger := telemetry.WithTrace(ctx, d.logger)

	outcome := "ok"
	defer func() {
		d.metrics.DispatchDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			otel.AttrAction.String(action.Name()),
			otel.AttrOutcome.String(outcome),
		))
	}()

	if err := d.allow.Authorize(operator); err != nil {
		outcome = "denied"
		span.SetStatus(codes.Error, err.Error())
		d.metrics.AccessDenials.Add(ctx, 1)
		audit.Record(audit.DecisionDeny, "dispatch."+action.Name(), "operator_not_allowlisted", "", operator)
		logger.Warn("access denied", "action", action.Name())
		return answer(DeniedText)
	}

	var resp Response
	switch a := action.(type) {
	case ListScripts:
		resp = d.listScripts()
	case BeginRun:
		resp = d.beginRun()
	case RunScript:
		resp = d.runScript(ctx, logger, a)
	case BeginStop:
		resp = d.beginStop()
	case StopScript:
		resp = d.stopScript(ctx, logger, a)
	case ShowInfo:
		resp = d.showInfo(ctx, logger)
	case ShowMenu:
		resp = Menu()
	case ShowRunning:
		resp = d.showRunning()
	case Unrecognized:
		outcome = "ignored"
		logger.Debug("ignoring unrecognized action", "raw", a.Raw)
		resp = Response{Kind: ReplyNone}
	default:
		panic(fmt.Sprintf("dispatch: unhandled action %T", action))
	}
	return resp
}

// Menu is the main keyboard shown for /start.
func Menu() Response {
	return Response{
		Kind: ReplyMessage,
		Text: "Choose an action:",
		Keyboard: [][]Button{
			{{Label: "List", Data: ListScripts{}.Encode()}, {Label: "Run", Data: BeginRun{}.Encode()}},
			{{Label: "Stop", Data: BeginStop{}.Encode()}, {Label: "Running", Data: ShowRunning{}.Encode()}},
			{{Label: "System Info", Data: ShowInfo{}.Encode()}},
		},
	}
}

func (d *Dispatcher) listScripts() Response {
	list, err := d.scripts.List()
	if err != nil {
		return directoryError(err)
	}
	if len(list) == 0 {
		return answer("No scripts found.")
	}
	names := make([]string, 0, len(list))
	for _, s := range list {
		names = append(names, s.Name)
	}
	return answer("Available scripts:\n" + strings.Join(names, "\n"))
}

func (d *Dispatcher) beginRun() Response {
	list, err := d.scripts.List()
	if err != nil {
		return directoryError(err)
	}
	if len(list) == 0 {
		return answer("No scripts found.")
	}
	buttons := make([]Button, 0, len(list))
	for _, s := range list {
		data := RunScript{Script: s.Name}.Encode()
		if len(data) > maxCallbackData {
			d.logger.Debug("script name too long for a button", "script", s.Name)
			continue
		}
		buttons = append(buttons, Button{Label: s.Name, Data: data})
	}
	if len(buttons) == 0 {
		return answer("No scripts found.")
	}
	return Response{Kind: ReplyKeyboard, Text: "Choose a script to run:", Keyboard: rows(buttons)}
}

func (d *Dispatcher) runScript(ctx context.Context, logger *slog.Logger, a RunScript) Response {
	script, err := d.scripts.Resolve(a.Script)
	if err != nil {
		var dirErr *scripts.DirectoryAccessError
		if errors.As(err, &dirErr) {
			return directoryError(err)
		}
		audit.Record(audit.DecisionFail, "process.launch", "unknown_script", a.Script, shared.OperatorID(ctx))
		return answer(fmt.Sprintf("Failed to start %s: %v", a.Script, err))
	}

	trace.SpanFromContext(ctx).SetAttributes(otel.AttrScript.String(script.Name))
	id, err := d.procs.Launch(ctx, script)
	if err != nil {
		cause := err
		var spawnErr *process.SpawnError
		if errors.As(err, &spawnErr) {
			cause = spawnErr.Err
		}
		logger.Error("script launch failed", "script", script.Name, "error", err)
		audit.Record(audit.DecisionFail, "process.launch", "spawn_failed", script.Name, shared.OperatorID(ctx))
		return answer(fmt.Sprintf("Failed to start %s: %v", script.Name, cause))
	}
	trace.SpanFromContext(ctx).SetAttributes(otel.AttrPID.Int(int(id)))
	logger.Info("script launched", "script", script.Name, "pid", int(id))
	audit.Record(audit.DecisionAllow, "process.launch", "", script.Name, shared.OperatorID(ctx))
	return answer(fmt.Sprintf("Script %s started with PID %s.", script.Name, id))
}

func (d *Dispatcher) beginStop() Response {
	var buttons []Button
	for e := range d.procs.List() {
		buttons = append(buttons, Button{
			Label: "PID: " + e.ID.String(),
			Data:  StopScript{ID: e.ID}.Encode(),
		})
	}
	if len(buttons) == 0 {
		return answer("No running scripts.")
	}
	return Response{Kind: ReplyKeyboard, Text: "Choose a process to stop:", Keyboard: rows(buttons)}
}

func (d *Dispatcher) stopScript(ctx context.Context, logger *slog.Logger, a StopScript) Response {
	trace.SpanFromContext(ctx).SetAttributes(otel.AttrPID.Int(int(a.ID)))
	err := d.procs.Terminate(ctx, a.ID)
	if errors.Is(err, process.ErrNotFound) {
		logger.Info("stop requested for untracked process", "pid", int(a.ID))
		return answer(fmt.Sprintf("Script with PID %s is not running.", a.ID))
	}
	if err != nil {
		logger.Error("script stop failed", "pid", int(a.ID), "error", err)
		return answer(fmt.Sprintf("Failed to stop PID %s: %v", a.ID, err))
	}
	logger.Info("script stopped", "pid", int(a.ID))
	audit.Record(audit.DecisionAllow, "process.terminate", "", a.ID.String(), shared.OperatorID(ctx))
	return answer(fmt.Sprintf("Script with PID %s stopped.", a.ID))
}

func (d *Dispatcher) showInfo(ctx context.Context, logger *slog.Logger) Response {
	start := time.Now()
	report, err := d.info.Collect(ctx)
	d.metrics.InfoSampleDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		logger.Error("system info collection failed", "error", err)
		return message(fmt.Sprintf("System information unavailable: %v", err))
	}
	return message(report.String())
}

func (d *Dispatcher) showRunning() Response {
	var lines []string
	for e := range d.procs.List() {
		lines = append(lines, fmt.Sprintf("PID %s: %s", e.ID, e.ScriptName))
	}
	if len(lines) == 0 {
		return message("No running scripts.")
	}
	return message("Running scripts:\n" + strings.Join(lines, "\n"))
}

func directoryError(err error) Response {
	return answer(fmt.Sprintf("Script directory unavailable: %v", err))
}

func rows(buttons []Button) [][]Button {
	var out [][]Button
	for len(buttons) > 0 {
		n := min(buttonsPerRow, len(buttons))
		out = append(out, buttons[:n])
		buttons = buttons[n:]
	}
	return out
}
