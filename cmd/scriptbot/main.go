package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/basket/scriptbot/internal/audit"
	"github.com/basket/scriptbot/internal/bus"
	"github.com/basket/scriptbot/internal/channels"
	"github.com/basket/scriptbot/internal/config"
	"github.com/basket/scriptbot/internal/cron"
	"github.com/basket/scriptbot/internal/dispatch"
	otelPkg "github.com/basket/scriptbot/internal/otel"
	"github.com/basket/scriptbot/internal/process"
	"github.com/basket/scriptbot/internal/scripts"
	"github.com/basket/scriptbot/internal/sysinfo"
	"github.com/basket/scriptbot/internal/telemetry"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.3-dev"

func printUsage() {
	writeUsage(os.Stderr, os.Args[0])
	flag.PrintDefaults()
}

func writeUsage(w io.Writer, prog string) {
	fmt.Fprintf(w, `Usage of %[1]s:

  %[1]s [-quiet]              Run the bot (long-polls Telegram until interrupted)

SUBCOMMANDS:
  %[1]s doctor [-json]        Run diagnostic checks
  %[1]s import [options]      Import the legacy config.ini and .env into config.yaml
                              Reads [telegram] token, allowed_users and scripts_path
                              Options: --ini <file> (default: config.ini),
                                       --path <file> (default: .env), --force
  %[1]s version               Print the version
  %[1]s help                  Show this help

ENVIRONMENT VARIABLES:
  SCRIPTBOT_HOME          Data directory holding config.yaml and logs/ (default: .)
  TELEGRAM_TOKEN          Bot token (overrides telegram.token)
  SCRIPTBOT_ALLOWED_IDS   Comma-separated operator IDs (overrides telegram.allowed_ids)
  SCRIPTBOT_SCRIPTS_DIR   Script directory (overrides scripts.dir)
  SCRIPTBOT_INTERPRETER   Interpreter used to run scripts (overrides scripts.interpreter)
  SCRIPTBOT_LOG_LEVEL     debug, info, warn or error

FLAGS:
`, prog)
}

func main() {
	loadDotEnv(".env")

	quiet := flag.Bool("quiet", false, "write logs to the log file only")
	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args := flag.Args(); len(args) > 0 {
		switch strings.ToLower(strings.TrimSpace(args[0])) {
		case "help", "-h", "--help":
			printUsage()
			os.Exit(0)
		case "version":
			fmt.Println(Version)
			os.Exit(0)
		case "doctor":
			os.Exit(runDoctorCommand(ctx, args[1:]))
		case "import":
			os.Exit(runImportCommand(ctx, args[1:]))
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
			printUsage()
			os.Exit(2)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	// Audit comes up before the logger so E_LOGGER_INIT is still recorded.
	if err := audit.Init(cfg.HomeDir); err != nil {
		fatalStartup(nil, "E_AUDIT_INIT", err)
	}
	defer func() { _ = audit.Close() }()

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, *quiet)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "fingerprint", cfg.Fingerprint(), "file_missing", cfg.FileMissing)

	if err := cfg.Validate(); err != nil {
		fatalStartup(logger, "E_CONFIG_INVALID", err)
	}
	if len(cfg.Telegram.AllowedIDs) == 0 {
		logger.Warn("allowlist is empty; every request will be denied")
	}

	otelProvider, err := otelPkg.Init(ctx, cfg.Telemetry)
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer otelProvider.Shutdown(context.Background())

	metrics, err := otelPkg.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger, "E_METRICS_INIT", err)
	}

	// Children run with the script directory as cwd, so script paths must
	// not be relative to ours.
	scriptDir, err := filepath.Abs(cfg.Scripts.Dir)
	if err != nil {
		fatalStartup(logger, "E_SCRIPT_DIR", err)
	}

	eventBus := bus.New()
	scanner := scripts.NewScanner(scriptDir, cfg.Scripts.Extension)
	if _, err := scanner.List(); err != nil {
		// Not fatal: the operator sees the error on every listing until fixed.
		logger.Warn("script directory unavailable", "dir", scriptDir, "error", err)
	}

	registry := process.NewRegistry(process.ExecLauncher{Dir: scriptDir}, process.RegistryOptions{
		Interpreter: cfg.Scripts.Interpreter,
		Bus:         eventBus,
		Metrics:     metrics,
		Logger:      logger,
	})

	collector := sysinfo.NewCollector()
	allow := dispatch.NewAllowlist(cfg.Telegram.AllowedIDs)
	dispatcher := dispatch.New(allow, scanner, registry, collector, dispatch.Options{
		Logger:  logger,
		Tracer:  otelProvider.Tracer,
		Metrics: metrics,
	})
	logger.Info("startup phase", "phase", "dispatcher_ready", "operators", allow.Len(), "scripts_dir", scriptDir)

	if cfg.Scripts.Watch {
		watcher := scripts.NewWatcher(scanner, eventBus, logger)
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("script watcher not started", "dir", scriptDir, "error", err)
		}
	}

	if expr := strings.TrimSpace(cfg.Processes.ReconcileSchedule); expr != "" {
		sched, err := cron.NewScheduler(cron.Config{
			Logger: logger,
			Jobs: []cron.Job{{
				Name: "reconcile",
				Expr: expr,
				Run: func(ctx context.Context) {
					removed := registry.Reconcile(ctx)
					if len(removed) > 0 {
						logger.Info("reconciled exited processes", "removed", len(removed), "tracked", registry.Len())
					}
				},
			}},
		})
		if err != nil {
			fatalStartup(logger, "E_CRON_INIT", err)
		}
		sched.Start(ctx)
		defer sched.Stop()
	}

	tg := channels.NewTelegramChannel(cfg.Telegram.Token, dispatcher, channels.TelegramOptions{
		Logger: logger,
		Bus:    eventBus,
		Tracer: otelProvider.Tracer,
		Notify: allow.IDs(),
	})
	chanErr := make(chan error, 1)
	go func() {
		chanErr <- tg.Start(ctx)
	}()
	logger.Info("startup phase", "phase", "polling", "channel", tg.Name())

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-chanErr:
		if err != nil {
			logger.Error("telegram channel failed", "error", err)
		}
		stop()
	}

	if cfg.Processes.TerminateOnShutdown {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		n := registry.TerminateAll(shutdownCtx)
		cancel()
		logger.Info("terminated tracked processes", "count", n)
	} else if n := registry.Len(); n > 0 {
		logger.Info("leaving tracked processes running", "count", n)
	}
	logger.Info("shutdown complete")
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	audit.Record(audit.DecisionFatal, "runtime.startup", reasonCode, message, 0)

	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(
			os.Stderr,
			`{"timestamp":"%s","level":"ERROR","component":"runtime","trace_id":"-","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano),
			reasonCode,
			message,
		)
	}
	os.Exit(1)
}

// loadDotEnv sets variables from path that are not already in the environment.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, val, ok := parseEnvLine(scanner.Text())
		if !ok || os.Getenv(key) != "" {
			continue
		}
		_ = os.Setenv(key, val)
	}
}

// parseEnvLine splits a KEY=VALUE line. Comments, blanks and lines without a
// key are rejected. Matching surrounding quotes are stripped from the value.
func parseEnvLine(line string) (key, val string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")
	eq := strings.Index(line, "=")
	if eq <= 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:eq])
	val = strings.TrimSpace(line[eq+1:])
	if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
		val = val[1 : len(val)-1]
	}
	return key, val, key != ""
}
