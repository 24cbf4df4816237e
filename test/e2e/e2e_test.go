package e2e

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	treefsBin string
	projRoot  string
)

func TestMain(m *testing.M) {
	if _, err := os.Stat("/dev/fuse"); err != nil {
		fmt.Println("skipping e2e tests: /dev/fuse not available")
		os.Exit(0)
	}

	// Build treefs binary once for all tests
	tmpBinDir, err := os.MkdirTemp("", "treefs-bin")
	if err != nil {
		panic(err)
	}

	treefsBin = filepath.Join(tmpBinDir, "treefs")

	// Determine project root
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		panic("cannot determine current file path")
	}
	projRoot = filepath.Join(filepath.Dir(thisFile), "..", "..")

	// Build with debug symbols
	cmd := exec.Command("go", "build", "-o", treefsBin, "-gcflags=all=-N -l", "./cmd/treefs")
	cmd.Dir = projRoot
	if out, err := cmd.CombinedOutput(); err != nil {
		panic(string(out))
	}

	code := m.Run()
	_ = os.RemoveAll(tmpBinDir) // Best effort cleanup
	os.Exit(code)
}

func TestE2EWriteReadAcrossRemount(t *testing.T) {
	env := newTestEnv(t)

	fs := env.Mount(t)
	require.NoError(t, os.Mkdir(filepath.Join(fs.MountDir, "docs"), 0o755))
	path := filepath.Join(fs.MountDir, "docs", "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("Hello, treefs!"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Hello, treefs!", string(data))
	fs.Stop(t)

	fs = env.Mount(t)
	defer fs.Stop(t)

	entries, err := os.ReadDir(fs.MountDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "docs", entries[0].Name())
	assert.True(t, entries[0].IsDir())

	data, err = os.ReadFile(filepath.Join(fs.MountDir, "docs", "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Hello, treefs!", string(data))
}

func TestE2ERemoveTree(t *testing.T) {
	env := newTestEnv(t)
	fs := env.Mount(t)
	defer fs.Stop(t)

	nested := filepath.Join(fs.MountDir, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "f"), []byte("x"), 0o644))

	require.NoError(t, os.Remove(filepath.Join(nested, "f")))
	require.NoError(t, os.Remove(nested))
	_, err := os.Stat(nested)
	assert.ErrorIs(t, err, os.ErrNotExist)

	err = os.Remove(filepath.Join(fs.MountDir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestE2EStatfs(t *testing.T) {
	env := newTestEnv(t)
	fs := env.Mount(t)
	defer fs.Stop(t)

	var st syscall.Statfs_t
	require.NoError(t, syscall.Statfs(fs.MountDir, &st))
	before := st.Bfree

	require.NoError(t, os.WriteFile(filepath.Join(fs.MountDir, "f"), bytes.Repeat([]byte("z"), 8192), 0o644))
	require.NoError(t, syscall.Statfs(fs.MountDir, &st))
	assert.Less(t, st.Bfree, before)
}

// testEnv holds the per-test image and mount directory
type testEnv struct {
	BaseDir    string
	MountDir   string
	ConfigFile string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	base := t.TempDir()
	env := &testEnv{
		BaseDir:    base,
		MountDir:   filepath.Join(base, "mnt"),
		ConfigFile: filepath.Join(base, "treefs.yaml"),
	}
	require.NoError(t, os.MkdirAll(env.MountDir, 0o755))

	config := fmt.Sprintf(`verbose: 4
open_policy: permissive
backend: file
image_path: %s
block_size: 4096
block_count: 1024
`, filepath.Join(base, "treefs.img"))
	require.NoError(t, os.WriteFile(env.ConfigFile, []byte(config), 0o644))
	return env
}

// treefsInstance is a running treefs mount process
type treefsInstance struct {
	cmd      *exec.Cmd
	MountDir string
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
}

// Mount starts treefs on the env mount dir and waits until the kernel sees it
func (env *testEnv) Mount(t *testing.T) *treefsInstance {
	t.Helper()
	cmd := exec.Command(treefsBin, "mount", "--config", env.ConfigFile, "-u", env.MountDir)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	require.NoError(t, cmd.Start(), "Failed to start treefs")

	instance := &treefsInstance{
		cmd:      cmd,
		MountDir: env.MountDir,
		stdout:   &stdout,
		stderr:   &stderr,
	}
	if err := instance.WaitForMount(15 * time.Second); err != nil {
		instance.Stop(t)
		t.Fatalf("treefs mount failed: %v\n%s", err, stderr.String())
	}
	return instance
}

// Stop gracefully stops the treefs instance
func (w *treefsInstance) Stop(t *testing.T) {
	t.Helper()
	if w.cmd == nil || w.cmd.Process == nil {
		return
	}
	_ = w.cmd.Process.Signal(os.Interrupt) // Process may have already exited

	done := make(chan error, 1)
	go func() {
		done <- w.cmd.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		// Force kill if graceful shutdown takes too long
		_ = w.cmd.Process.Kill() // Process may have already exited
		<-done
		_ = exec.Command("fusermount", "-u", w.MountDir).Run()
		t.Logf("treefs did not stop in time\n%s", w.stderr.String())
	}
	w.cmd = nil
}

// WaitForMount polls until the mount dir sits on a different device than its parent
func (w *treefsInstance) WaitForMount(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if mounted(w.MountDir) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for treefs mount to be ready")
}

func mounted(dir string) bool {
	var st, parent syscall.Stat_t
	if err := syscall.Stat(dir, &st); err != nil {
		return false
	}
	if err := syscall.Stat(filepath.Dir(dir), &parent); err != nil {
		return false
	}
	return st.Dev != parent.Dev
}
