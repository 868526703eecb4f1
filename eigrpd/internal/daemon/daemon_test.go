package daemon

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func TestPIDFileRoundTrip(t *testing.T) {
	p := Paths{Dir: filepath.Join(t.TempDir(), "run")}

	pid, err := p.ReadPID()
	if err != nil || pid != 0 {
		t.Fatalf("expected 0, nil for missing file; got %d, %v", pid, err)
	}
	if err := p.WritePID(4242); err != nil {
		t.Fatal(err)
	}
	pid, err = p.ReadPID()
	if err != nil {
		t.Fatal(err)
	}
	if pid != 4242 {
		t.Errorf("expected 4242, got %d", pid)
	}
	if err := p.RemovePID(); err != nil {
		t.Fatal(err)
	}
	if err := p.RemovePID(); err != nil {
		t.Errorf("second remove should be a no-op, got %v", err)
	}
}

func TestReadPID_Garbage(t *testing.T) {
	p := Paths{Dir: t.TempDir()}
	if err := os.WriteFile(p.PIDPath(), []byte("nope\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ReadPID(); err == nil {
		t.Error("expected parse error")
	}
}

func TestDefaultPaths_Override(t *testing.T) {
	t.Setenv("EIGRPD_RUNDIR", "/tmp/eigrpd-test")
	if got := DefaultPaths().LogPath(); got != "/tmp/eigrpd-test/eigrpd.log" {
		t.Errorf("unexpected log path %q", got)
	}
}

func TestOpenLogFile_Appends(t *testing.T) {
	p := Paths{Dir: filepath.Join(t.TempDir(), "run")}
	for _, line := range []string{"a\n", "b\n"} {
		f, err := p.OpenLogFile()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.WriteString(line); err != nil {
			t.Fatal(err)
		}
		_ = f.Close()
	}
	data, err := os.ReadFile(p.LogPath())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "a\nb\n" {
		t.Errorf("unexpected log contents %q", data)
	}
}

func TestIsRunningAndStop(t *testing.T) {
	if !IsRunning(os.Getpid()) {
		t.Error("own process should be running")
	}
	if IsRunning(0) {
		t.Error("pid 0 is never running")
	}

	child := exec.Command("sleep", "30")
	if err := child.Start(); err != nil {
		t.Skipf("sleep unavailable: %v", err)
	}
	done := make(chan struct{})
	go func() {
		_ = child.Wait()
		close(done)
	}()

	if err := StopProcess(child.Process.Pid, 2*time.Second); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("child not stopped")
	}
}
