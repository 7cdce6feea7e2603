package tasks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCoversTheFullCatalog(t *testing.T) {
	r := NewRegistry(nil)

	want := []Name{
		InstallPackage, RemovePackage, ManageService, ServiceStatus,
		SystemInfo, DiskUsage, ListProcesses, TailFile,
	}
	assert.Equal(t, want, r.Names())

	for _, name := range want {
		d, ok := r.Lookup(string(name))
		require.True(t, ok, "missing descriptor for %s", name)
		assert.Equal(t, name, d.Name)
		assert.NotNil(t, d.Handler)
	}
}

func TestLookupUnknownName(t *testing.T) {
	r := NewRegistry(nil)
	_, ok := r.Lookup("format-disk")
	assert.False(t, ok)
}

func TestWaitTimeouts(t *testing.T) {
	r := NewRegistry(nil)

	// Package operations get the long override; everything else reports
	// zero so the caller's configured default applies.
	assert.Equal(t, 300*time.Second, r.WaitTimeout(string(InstallPackage)))
	assert.Equal(t, 300*time.Second, r.WaitTimeout(string(RemovePackage)))
	assert.Equal(t, time.Duration(0), r.WaitTimeout(string(ManageService)))
	assert.Equal(t, time.Duration(0), r.WaitTimeout("no-such-task"))
}

func TestDuplicateDescriptorPanics(t *testing.T) {
	assert.Panics(t, func() {
		newRegistry(
			Descriptor{Name: SystemInfo, WaitTimeout: DefaultWaitTimeout},
			Descriptor{Name: SystemInfo, WaitTimeout: DefaultWaitTimeout},
		)
	})
}
