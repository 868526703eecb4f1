package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `{
	"router_id": "10.0.0.1",
	"control_socket": "/tmp/does-not-exist/eigrpd.sock",
	"instances": [{
		"as": 1, "af": "inet",
		"interfaces": [{"name": "em0", "index": 1, "address": "10.0.0.1/24"}],
		"neighbors": [{"address": "10.0.0.2", "interface": "em0"}]
	}]
}`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("1.2.3")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "eigrpd 1.2.3\n", out)
}

func TestConfigCheck(t *testing.T) {
	path := writeFile(t, "eigrpd.json", validConfig)
	out, err := execute(t, "config", "check", path)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration OK (1 instances, 1 interfaces, 1 neighbors)")

	bad := writeFile(t, "bad.json", `{"instances": [{"as": 0, "af": "inet"}]}`)
	_, err = execute(t, "-c", bad, "config", "check")
	assert.Error(t, err)
}

func TestConfigShow_AppliesDefaults(t *testing.T) {
	path := writeFile(t, "eigrpd.json", validConfig)
	out, err := execute(t, "config", "show", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Config: "+path)
	assert.Contains(t, out, `"hello_interval": "5s"`)
	assert.Contains(t, out, `"log_level": "info"`)
}

func TestResolveConfigPath_Default(t *testing.T) {
	root := NewRootCmd("dev")
	assert.Equal(t, DefaultConfigPath, resolveConfigPath(root, nil))
	assert.Equal(t, "x.json", resolveConfigPath(root, []string{"x.json"}))
}

func TestStatus_NotRunning(t *testing.T) {
	t.Setenv("EIGRPD_RUNDIR", t.TempDir())
	path := writeFile(t, "eigrpd.json", validConfig)

	out, err := execute(t, "status", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "stopped (no PID file)")
}

func TestStop_NotRunning(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EIGRPD_RUNDIR", dir)
	// A PID that cannot belong to a live process.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "eigrpd.pid"), []byte("999999999\n"), 0o600))

	out, err := execute(t, "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "stale PID 999999999 removed")
	_, err = os.Stat(filepath.Join(dir, "eigrpd.pid"))
	assert.True(t, os.IsNotExist(err))
}

func TestLogs_Tail(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EIGRPD_RUNDIR", dir)
	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, strings.Repeat("x", i+1))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "eigrpd.log"), []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	out, err := execute(t, "logs", "-n", "2")
	require.NoError(t, err)
	assert.Equal(t, "xxxxxxxxx\nxxxxxxxxxx\n", out)
}

func TestLogs_Missing(t *testing.T) {
	t.Setenv("EIGRPD_RUNDIR", t.TempDir())
	_, err := execute(t, "logs")
	assert.ErrorContains(t, err, "no log file found")
}

func TestRun_InvalidConfig(t *testing.T) {
	_, err := execute(t, "run", filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "read config")
}
