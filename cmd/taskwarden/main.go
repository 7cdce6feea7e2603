package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mattjoyce/taskwarden/internal/api"
	"github.com/mattjoyce/taskwarden/internal/cmdrunner"
	"github.com/mattjoyce/taskwarden/internal/config"
	"github.com/mattjoyce/taskwarden/internal/doctor"
	"github.com/mattjoyce/taskwarden/internal/events"
	"github.com/mattjoyce/taskwarden/internal/history"
	"github.com/mattjoyce/taskwarden/internal/lock"
	"github.com/mattjoyce/taskwarden/internal/log"
	"github.com/mattjoyce/taskwarden/internal/logsink"
	"github.com/mattjoyce/taskwarden/internal/storage"
	"github.com/mattjoyce/taskwarden/internal/supervisor"
	"github.com/mattjoyce/taskwarden/internal/tasks"
	"github.com/mattjoyce/taskwarden/internal/tui"
	"github.com/mattjoyce/taskwarden/internal/worker"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "serve":
		os.Exit(runServe(args))
	case "run":
		os.Exit(runTask(args))
	case "worker":
		os.Exit(runWorker(args))
	case "logs":
		os.Exit(runLogs(args))
	case "watch":
		os.Exit(runWatch(args))
	case "history":
		os.Exit(runHistory(args))
	case "config":
		os.Exit(runConfig(args))
	case "doctor":
		os.Exit(runDoctor(args))
	case "version":
		fmt.Printf("taskwarden version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`taskwarden - Supervised execution of risky system tasks in an isolated worker

Usage:
  taskwarden <command> [flags]

Commands:
  serve       Run the supervisor daemon (worker + optional HTTP API)
  run         Execute a single task and print its result
  worker      Worker process entrypoint (spawned by the supervisor)
  logs        Print the trailing lines of a session log
  watch       Live session log viewer
  history     Show recorded task runs
  config      Config integrity: check | lock
  doctor      Run environment preflight checks
  version     Show version information
  help        Show this help message
`)
}

// loadConfig loads the config at path, or defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Defaults(), nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	locked, err := config.Verify(path)
	if err != nil {
		return nil, fmt.Errorf("config integrity: %w", err)
	}
	if !locked {
		log.Warn("config is not locked; run 'taskwarden config lock' to record its fingerprint", "path", path)
	}
	return cfg, nil
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat, os.Stderr)

	pidLock, err := lock.Acquire(cfg.Service.LockPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer pidLock.Release()

	sink, err := logsink.New(cfg.Service.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer sink.Close()

	// Serve-level records are mirrored into the session log; the
	// supervisor writes its own lines there directly.
	mirror := logsink.NewHandler(sink, logsink.RoleSupervisor, log.ParseLevel(cfg.Service.LogLevel))
	serveLog := slog.New(log.Fanout(log.Get().Handler(), mirror))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var hist *history.Store
	if cfg.History.Path != "" {
		db, err := storage.OpenSQLite(ctx, cfg.History.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer db.Close()
		hist = history.NewStore(db)
	}

	hub := events.NewHub(256)
	sup := supervisor.New(cfg.Worker, sink, hub, hist)
	defer sup.Dispose()

	serveLog.Info("taskwarden serving", "log_file", sup.LogFilePath(), "worker_state", string(sup.State()))
	fmt.Printf("Session log: %s\n", sup.LogFilePath())

	if cfg.API.Enabled {
		// A typed-nil *history.Store must not reach the RunReader
		// interface, or the disabled-history check cannot see it.
		var runs api.RunReader
		if hist != nil {
			runs = hist
		}
		srv := api.New(api.Config{Listen: cfg.API.Listen, APIKey: cfg.API.APIKey},
			sup, runs, hub, serveLog.With("component", "api"))
		if err := srv.Start(ctx); err != nil && ctx.Err() == nil {
			serveLog.Error("api server failed", "error", err)
			return 1
		}
		return 0
	}

	<-ctx.Done()
	serveLog.Info("shutting down")
	return 0
}

func runTask(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	timeoutS := fs.Int("timeout", 0, "supervisor wait in seconds (0 = task default)")
	_ = fs.Parse(args)

	rest := fs.Args()
	if len(rest) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: taskwarden run [flags] <task> [args...]")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat, os.Stderr)

	sink, err := logsink.New(cfg.Service.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer sink.Close()

	sup := supervisor.New(cfg.Worker, sink, nil, nil)
	defer sup.Dispose()

	// The worker-ready handshake races a fast first dispatch; give it a
	// moment before failing fast with unavailable.
	waitUntil := time.Now().Add(3 * time.Second)
	for !sup.IsAvailable() && time.Now().Before(waitUntil) {
		time.Sleep(50 * time.Millisecond)
	}

	var opts supervisor.Options
	if *timeoutS > 0 {
		opts.Timeout = time.Duration(*timeoutS) * time.Second
	}

	taskArgs := make([]any, 0, len(rest)-1)
	for _, a := range rest[1:] {
		taskArgs = append(taskArgs, a)
	}

	res := sup.ExecuteWithOptions(context.Background(), rest[0], opts, taskArgs...)
	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))

	if !res.Success {
		return 1
	}
	return 0
}

func runWorker(args []string) int {
	// The worker logs to stderr; the supervisor mirrors it into the
	// session log. Stdout is reserved for the protocol.
	log.Setup(os.Getenv("TASKWARDEN_LOG_LEVEL"), "text", os.Stderr)

	runner := &cmdrunner.Runner{}
	if v := os.Getenv("TASKWARDEN_COMMAND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			runner.DefaultTimeout = d
		}
	}
	if v := os.Getenv("TASKWARDEN_MAX_OUTPUT_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			runner.DefaultMaxOutputBytes = n
		}
	}

	registry := tasks.NewRegistry(runner)
	w := worker.New(registry, log.WithComponent("worker"))

	if err := w.Run(context.Background(), os.Stdin, os.Stdout); err != nil {
		log.Error("worker failed", "error", err)
		return 1
	}
	return 0
}

// resolveLogFile picks an explicit file, or the most recent session log in
// the configured log directory.
func resolveLogFile(cfg *config.Config, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	entries, err := os.ReadDir(cfg.Service.LogDir)
	if err != nil {
		return "", fmt.Errorf("read log directory %s: %w", cfg.Service.LogDir, err)
	}

	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = cfg.Service.LogDir + "/" + e.Name()
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no session logs found in %s", cfg.Service.LogDir)
	}
	return newest, nil
}

func runLogs(args []string) int {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	file := fs.String("f", "", "session log file (default: most recent)")
	n := fs.Int("n", 50, "number of trailing lines")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	path, err := resolveLogFile(cfg, *file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	sink, err := logsink.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	lines, err := sink.Tail(*n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	file := fs.String("f", "", "session log file (default: most recent)")
	n := fs.Int("n", 200, "number of trailing lines to keep on screen")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	path, err := resolveLogFile(cfg, *file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if err := tui.Run(path, *n); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	n := fs.Int("n", 20, "number of runs to show")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.History.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()

	runs, err := history.NewStore(db).Recent(ctx, *n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if len(runs) == 0 {
		fmt.Println("No recorded task runs.")
		return 0
	}
	for _, run := range runs {
		detail := run.Result
		if run.Status != history.StatusSucceeded {
			detail = run.Error
		}
		fmt.Printf("%s  %-16s %-12s %6dms  %s\n",
			run.StartedAt.Local().Format(time.RFC3339), run.Task, run.Status,
			run.Duration.Milliseconds(), detail)
	}
	return 0
}

func runConfig(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: taskwarden config <check|lock> [flags]")
		return 1
	}
	action := args[0]

	fs := flag.NewFlagSet("config "+action, flag.ExitOnError)
	configPath := fs.String("config", "taskwarden.yaml", "path to config file")
	_ = fs.Parse(args[1:])

	switch action {
	case "check":
		if _, err := config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		locked, err := config.Verify(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		if !locked {
			fmt.Println("Config is valid but not locked; run 'taskwarden config lock'.")
			return 0
		}
		fmt.Println("Config is valid and matches its recorded fingerprint.")
		return 0

	case "lock":
		if _, err := config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		hash, err := config.Lock(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("Locked %s (blake3 %s)\n", *configPath, hash)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	report := doctor.Run(context.Background(), cfg)
	for _, c := range report.Checks {
		mark := "ok  "
		if !c.OK {
			mark = "FAIL"
		}
		fmt.Printf("[%s] %-28s %s\n", mark, c.Name, c.Detail)
	}
	if !report.Passed() {
		return 1
	}
	return 0
}
