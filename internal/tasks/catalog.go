// Package tasks defines the closed set of operations the worker can run.
// The catalog is compile-time checked: one typed name and one Descriptor
// per task, assembled once at worker boot and never mutated after.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/mattjoyce/taskwarden/internal/cmdrunner"
)

// Name identifies a task variant on the wire and in the registry.
type Name string

const (
	InstallPackage Name = "install-package"
	RemovePackage  Name = "remove-package"
	ManageService  Name = "manage-service"
	ServiceStatus  Name = "service-status"
	SystemInfo     Name = "system-info"
	DiskUsage      Name = "disk-usage"
	ListProcesses  Name = "list-processes"
	TailFile       Name = "tail-file"
)

// DefaultWaitTimeout is the supervisor-side wait used when neither a
// per-call option, a catalog override, nor a configured default supplies
// one.
const DefaultWaitTimeout = 30 * time.Second

// longWaitTimeout covers package operations, which routinely outlive the
// default window.
const longWaitTimeout = 300 * time.Second

// Handler executes one task with positionally spread args. Args arrive as
// decoded JSON values; handlers own their validation and arity checks.
type Handler func(ctx context.Context, args []any) (any, error)

// Descriptor binds a task name to its handler and an optional
// supervisor-side wait override; zero defers to the configured default.
// The command-level timeout inside a handler is a separate knob and may
// disagree with WaitTimeout; both are preserved deliberately.
type Descriptor struct {
	Name        Name
	WaitTimeout time.Duration
	Handler     Handler
}

// Runner abstracts shell execution so handler tests can stub it.
type Runner interface {
	Run(ctx context.Context, commandLine string, opts cmdrunner.Options) (string, error)
}

// Registry is the immutable name-to-descriptor mapping.
type Registry struct {
	byName map[Name]Descriptor
	order  []Name
}

// NewRegistry builds the full catalog backed by run.
func NewRegistry(run Runner) *Registry {
	h := handlers{run: run}
	return newRegistry(
		Descriptor{Name: InstallPackage, WaitTimeout: longWaitTimeout, Handler: h.installPackage},
		Descriptor{Name: RemovePackage, WaitTimeout: longWaitTimeout, Handler: h.removePackage},
		Descriptor{Name: ManageService, Handler: h.manageService},
		Descriptor{Name: ServiceStatus, Handler: h.serviceStatus},
		Descriptor{Name: SystemInfo, Handler: h.systemInfo},
		Descriptor{Name: DiskUsage, Handler: h.diskUsage},
		Descriptor{Name: ListProcesses, Handler: h.listProcesses},
		Descriptor{Name: TailFile, Handler: h.tailFile},
	)
}

func newRegistry(descs ...Descriptor) *Registry {
	r := &Registry{byName: make(map[Name]Descriptor, len(descs))}
	for _, d := range descs {
		if _, dup := r.byName[d.Name]; dup {
			panic(fmt.Sprintf("tasks: duplicate descriptor for %q", d.Name))
		}
		r.byName[d.Name] = d
		r.order = append(r.order, d.Name)
	}
	return r
}

// Lookup returns the descriptor for name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.byName[Name(name)]
	return d, ok
}

// Names lists the catalog in declaration order.
func (r *Registry) Names() []Name {
	out := make([]Name, len(r.order))
	copy(out, r.order)
	return out
}

// WaitTimeout returns the catalog's supervisor-side wait override for name,
// or zero when the task (or an unknown name) defers to the configured
// default.
func (r *Registry) WaitTimeout(name string) time.Duration {
	if d, ok := r.byName[Name(name)]; ok {
		return d.WaitTimeout
	}
	return 0
}
