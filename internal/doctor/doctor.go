// Package doctor runs environment preflight checks for the serve command.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/mattjoyce/taskwarden/internal/config"
	"github.com/mattjoyce/taskwarden/internal/storage"
)

// Check is one preflight result.
type Check struct {
	Name   string
	OK     bool
	Detail string
}

// Report is the outcome of a doctor run.
type Report struct {
	Checks []Check
}

// Passed reports whether every check succeeded.
func (r *Report) Passed() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// Run executes all preflight checks against cfg.
func Run(ctx context.Context, cfg *config.Config) *Report {
	r := &Report{}
	r.add(checkLogDir(cfg.Service.LogDir))
	r.add(checkWorkerCommand(cfg.Worker.Command))
	r.add(checkHistoryDB(ctx, cfg.History.Path))
	r.add(checkShell())
	return r
}

func (r *Report) add(c Check) {
	r.Checks = append(r.Checks, c)
}

func checkLogDir(dir string) Check {
	c := Check{Name: "log directory writable"}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.Detail = err.Error()
		return c
	}

	probe := filepath.Join(dir, fmt.Sprintf(".doctor-%d", os.Getpid()))
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		c.Detail = err.Error()
		return c
	}
	_ = os.Remove(probe)

	c.OK = true
	c.Detail = dir
	return c
}

func checkWorkerCommand(command []string) Check {
	c := Check{Name: "worker command resolvable"}
	if len(command) == 0 {
		self, err := os.Executable()
		if err != nil {
			c.Detail = fmt.Sprintf("resolve own executable: %v", err)
			return c
		}
		c.OK = true
		c.Detail = self + " worker"
		return c
	}

	path, err := exec.LookPath(command[0])
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	c.OK = true
	c.Detail = path
	return c
}

func checkHistoryDB(ctx context.Context, path string) Check {
	c := Check{Name: "history database opens"}
	if path == "" {
		c.OK = true
		c.Detail = "disabled"
		return c
	}

	octx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := storage.OpenSQLite(octx, path)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	_ = db.Close()

	c.OK = true
	c.Detail = path
	return c
}

func checkShell() Check {
	c := Check{Name: "sh available"}
	path, err := exec.LookPath("sh")
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	c.OK = true
	c.Detail = path
	return c
}
