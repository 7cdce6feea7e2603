package tasks

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mattjoyce/taskwarden/internal/cmdrunner"
)

// packageCommandTimeout bounds apt-get runs inside the worker. Independent
// of the supervisor-side wait for the same task.
const packageCommandTimeout = 300 * time.Second

// serviceActions is the closed set accepted by manage-service.
var serviceActions = map[string]bool{
	"start":   true,
	"stop":    true,
	"restart": true,
	"reload":  true,
	"enable":  true,
	"disable": true,
}

// safeToken rejects arguments that could splice into the shell line.
var safeToken = regexp.MustCompile(`^[A-Za-z0-9._+:@/-]+$`)

type handlers struct {
	run Runner
}

func (h handlers) installPackage(ctx context.Context, args []any) (any, error) {
	pkg, err := stringArg(args, 0, "package")
	if err != nil {
		return nil, err
	}
	cmd := fmt.Sprintf("DEBIAN_FRONTEND=noninteractive apt-get install -y %s", pkg)
	if _, err := h.run.Run(ctx, cmd, cmdrunner.Options{Timeout: packageCommandTimeout}); err != nil {
		return nil, fmt.Errorf("install %s: %w", pkg, err)
	}
	return fmt.Sprintf("Package %s installed", pkg), nil
}

func (h handlers) removePackage(ctx context.Context, args []any) (any, error) {
	pkg, err := stringArg(args, 0, "package")
	if err != nil {
		return nil, err
	}
	cmd := fmt.Sprintf("DEBIAN_FRONTEND=noninteractive apt-get remove -y %s", pkg)
	if _, err := h.run.Run(ctx, cmd, cmdrunner.Options{Timeout: packageCommandTimeout}); err != nil {
		return nil, fmt.Errorf("remove %s: %w", pkg, err)
	}
	return fmt.Sprintf("Package %s removed", pkg), nil
}

func (h handlers) manageService(ctx context.Context, args []any) (any, error) {
	service, err := stringArg(args, 0, "service")
	if err != nil {
		return nil, err
	}
	action, err := stringArg(args, 1, "action")
	if err != nil {
		return nil, err
	}
	if !serviceActions[action] {
		return nil, fmt.Errorf("Invalid action %q: must be one of start, stop, restart, reload, enable, disable", action)
	}

	if _, err := h.run.Run(ctx, fmt.Sprintf("systemctl %s %s", action, service), cmdrunner.Options{}); err != nil {
		return nil, fmt.Errorf("%s %s: %w", action, service, err)
	}
	return fmt.Sprintf("Service %s %s completed", service, action), nil
}

func (h handlers) serviceStatus(ctx context.Context, args []any) (any, error) {
	service, err := stringArg(args, 0, "service")
	if err != nil {
		return nil, err
	}
	// status exits non-zero for inactive units; --no-pager output on stdout
	// is still what we want, so fold the exit code into the text instead.
	out, err := h.run.Run(ctx, fmt.Sprintf("systemctl status %s --no-pager || true", service), cmdrunner.Options{})
	if err != nil {
		return nil, fmt.Errorf("status %s: %w", service, err)
	}
	return out, nil
}

func (h handlers) systemInfo(ctx context.Context, args []any) (any, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("system-info takes no arguments, got %d", len(args))
	}
	out, err := h.run.Run(ctx, "uname -a && echo --- && df -h / && echo --- && free -m", cmdrunner.Options{})
	if err != nil {
		return nil, fmt.Errorf("collect system info: %w", err)
	}
	return out, nil
}

func (h handlers) diskUsage(ctx context.Context, args []any) (any, error) {
	path, err := stringArg(args, 0, "path")
	if err != nil {
		return nil, err
	}
	out, err := h.run.Run(ctx, fmt.Sprintf("df -h %s", path), cmdrunner.Options{})
	if err != nil {
		return nil, fmt.Errorf("disk usage for %s: %w", path, err)
	}
	return out, nil
}

func (h handlers) listProcesses(ctx context.Context, args []any) (any, error) {
	cmd := "ps aux --sort=-pcpu | head -n 40"
	if len(args) > 0 {
		filter, err := stringArg(args, 0, "filter")
		if err != nil {
			return nil, err
		}
		cmd = fmt.Sprintf("ps aux | grep -F -- %s | grep -v grep || true", filter)
	}
	out, err := h.run.Run(ctx, cmd, cmdrunner.Options{})
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	return out, nil
}

func (h handlers) tailFile(ctx context.Context, args []any) (any, error) {
	path, err := stringArg(args, 0, "path")
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".log") {
		return nil, fmt.Errorf("refusing to tail %q: path must end in .log", path)
	}

	lines := 50
	if len(args) > 1 {
		n, err := intArg(args, 1, "lines")
		if err != nil {
			return nil, err
		}
		if n <= 0 || n > 10000 {
			return nil, fmt.Errorf("lines must be between 1 and 10000, got %d", n)
		}
		lines = n
	}

	out, err := h.run.Run(ctx, fmt.Sprintf("tail -n %d %s", lines, path), cmdrunner.Options{})
	if err != nil {
		return nil, fmt.Errorf("tail %s: %w", path, err)
	}
	return out, nil
}

// stringArg extracts a required shell-safe string argument.
func stringArg(args []any, i int, name string) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing argument %q at position %d", name, i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", name, args[i])
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("argument %q is empty", name)
	}
	if !safeToken.MatchString(s) {
		return "", fmt.Errorf("argument %q contains unsafe characters: %q", name, s)
	}
	return s, nil
}

// intArg extracts a required integer argument. JSON numbers decode as
// float64, so both forms are accepted.
func intArg(args []any, i int, name string) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument %q at position %d", name, i)
	}
	switch v := args[i].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("argument %q must be a number, got %T", name, args[i])
	}
}
