package monitors

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDefinition(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func testTree(t *testing.T) (string, string, string) {
	t.Helper()
	checksDir := t.TempDir()
	contactsDir := t.TempDir()
	monitorsDir := t.TempDir()

	writeDefinition(t, checksDir, "base.yml", `
checks:
  - name: Load average
    path: load_average.py
    args: -w 1.5 -s 3.0
  - name: Free RAM
    path: free_ram.py
groups:
  - name: unix boxes
    checks:
      - Load average
      - Free RAM
`)
	writeDefinition(t, contactsDir, "ops.yml", `
contacts:
  - name: ops
    email: ops@example.com
    phone: "555-0100"
`)
	writeDefinition(t, monitorsDir, "web.yml", `
monitors:
  - monitor: web servers
    hosts:
      - "10.0.0.*"
      - web-1
    watch:
      - unix boxes
    notify:
      - ops
`)
	return checksDir, contactsDir, monitorsDir
}

func TestLoadResolvesReferences(t *testing.T) {
	checksDir, contactsDir, monitorsDir := testTree(t)

	defs, err := Load(checksDir, contactsDir, monitorsDir)
	require.NoError(t, err)

	assert.Len(t, defs.Checks, 2)
	assert.Len(t, defs.Groups, 1)
	assert.Len(t, defs.Contacts, 1)
	require.Len(t, defs.Monitors, 1)

	m := defs.Monitors[0]
	assert.Equal(t, "web servers", m.Name)
	require.Len(t, m.Checks, 1)
	assert.Equal(t, 2, len(m.Checks[0].AsList()))
	require.Len(t, m.Contacts, 1)
	assert.Equal(t, "ops@example.com", m.Contacts[0].Email)
}

func TestLoadChecksParseArgs(t *testing.T) {
	checksDir, contactsDir, monitorsDir := testTree(t)
	defs, err := Load(checksDir, contactsDir, monitorsDir)
	require.NoError(t, err)

	c := defs.Checks["Load average"]
	require.NotNil(t, c)
	assert.Equal(t, "load_average.py", c.Path)
	assert.Equal(t, "-w 1.5 -s 3.0", c.Args)
}

func TestMonitorsForMatchesGlobs(t *testing.T) {
	checksDir, contactsDir, monitorsDir := testTree(t)
	defs, err := Load(checksDir, contactsDir, monitorsDir)
	require.NoError(t, err)

	assert.Len(t, defs.MonitorsFor("10.0.0.12"), 1)
	assert.Len(t, defs.MonitorsFor("web-1"), 1)
	assert.Empty(t, defs.MonitorsFor("192.168.1.1"))
}

func TestDisabledMonitorNeverMatches(t *testing.T) {
	checksDir, contactsDir, monitorsDir := testTree(t)
	defs, err := Load(checksDir, contactsDir, monitorsDir)
	require.NoError(t, err)

	defs.Monitors[0].Disable()
	assert.Empty(t, defs.MonitorsFor("10.0.0.12"))
}

func TestLoadFailsOnUnknownCheckReference(t *testing.T) {
	checksDir := t.TempDir()
	contactsDir := t.TempDir()
	monitorsDir := t.TempDir()
	writeDefinition(t, monitorsDir, "bad.yml", `
monitors:
  - monitor: broken
    hosts: ["*"]
    watch: ["no such check"]
`)

	_, err := Load(checksDir, contactsDir, monitorsDir)
	var monitorErr *MonitorError
	require.ErrorAs(t, err, &monitorErr)
	assert.Contains(t, err.Error(), "unknown check")
}

func TestLoadFailsOnUnknownContactReference(t *testing.T) {
	checksDir, contactsDir, monitorsDir := testTree(t)
	writeDefinition(t, monitorsDir, "zz.yml", `
monitors:
  - monitor: broken
    hosts: ["*"]
    watch: ["Free RAM"]
    notify: ["no such contact"]
`)

	_, err := Load(checksDir, contactsDir, monitorsDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown contact")
}

func TestLoadGroupFailsOnUnknownMember(t *testing.T) {
	checksDir := t.TempDir()
	writeDefinition(t, checksDir, "groups.yml", `
groups:
  - name: unix boxes
    checks: ["missing"]
`)

	_, err := Load(checksDir, t.TempDir(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown check")
}

func TestLoadMissingDirectoriesIsEmpty(t *testing.T) {
	defs, err := Load(filepath.Join(t.TempDir(), "absent"), "", "")
	require.NoError(t, err)
	assert.Empty(t, defs.Checks)
	assert.Empty(t, defs.Monitors)
}

func TestNewMonitorValidation(t *testing.T) {
	_, err := NewMonitor("", []string{"*"}, nil, nil)
	var monitorErr *MonitorError
	assert.ErrorAs(t, err, &monitorErr)
}
