package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskbell/internal/task"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func runCmd(t *testing.T, dataDir, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	full := append([]string{"-data-dir", dataDir}, args...)
	code := run(context.Background(), full, strings.NewReader(stdin), &out, &errOut)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func storedTasks(t *testing.T, dataDir string) []map[string]any {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dataDir, "tasks.json"))
	require.NoError(t, err)
	var tasks []map[string]any
	require.NoError(t, json.Unmarshal(b, &tasks))
	return tasks
}

func TestRun_Usage(t *testing.T) {
	dir := t.TempDir()

	var out, errOut bytes.Buffer
	assert.Equal(t, 2, run(context.Background(), nil, strings.NewReader(""), &out, &errOut))
	assert.Contains(t, errOut.String(), "usage: taskbell")

	res := runCmd(t, dir, "", "frobnicate")
	assert.Equal(t, 2, res.code)
	assert.Contains(t, res.stderr, `unknown command "frobnicate"`)

	res = runCmd(t, dir, "", "add", "25/12")
	assert.Equal(t, 2, res.code)
	assert.Contains(t, res.stderr, "usage: add")

	res = runCmd(t, dir, "", "help")
	assert.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "REF is a row number")
}

func TestAddListEditDone(t *testing.T) {
	dir := t.TempDir()

	res := runCmd(t, dir, "", "add", "-hours", "1", "-minutes", "30", "25/12", "09:00", "buy", "gifts")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, `"buy gifts": deadline 25/12 09:00, reminder 25/12 07:30`)

	res = runCmd(t, dir, "", "add", "01/12", "18:00", "book train")
	require.Equal(t, 0, res.code, res.stderr)

	tasks := storedTasks(t, dir)
	require.Len(t, tasks, 2)
	assert.Equal(t, "buy gifts", tasks[0]["task"])
	assert.Equal(t, false, tasks[0]["reminded"])

	res = runCmd(t, dir, "", "list")
	require.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "buy gifts")
	assert.Contains(t, res.stdout, "book train")
	assert.Contains(t, res.stdout, "Pending")

	res = runCmd(t, dir, "", "edit", "2", "book", "sleeper", "train")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "book sleeper train", storedTasks(t, dir)[1]["task"])

	id := tasks[0]["id"].(string)
	res = runCmd(t, dir, "", "done", id[:8])
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "completed")
	assert.Equal(t, true, storedTasks(t, dir)[0]["completed"])

	res = runCmd(t, dir, "", "done", "1")
	require.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "reopened")
}

func TestAdd_ValidationExitCode(t *testing.T) {
	dir := t.TempDir()

	res := runCmd(t, dir, "", "add", "31/02", "10:00", "impossible")
	assert.Equal(t, 2, res.code)
	assert.Contains(t, res.stderr, "invalid task input")

	res = runCmd(t, dir, "", "add", "-hours", "-1", "01/03", "10:00", "negative")
	assert.Equal(t, 2, res.code)

	_, err := os.Stat(filepath.Join(dir, "tasks.json"))
	assert.True(t, os.IsNotExist(err), "nothing was saved")
}

func TestSortAndReset(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, 0, runCmd(t, dir, "", "add", "20/11", "10:00", "later").code)
	require.Equal(t, 0, runCmd(t, dir, "", "add", "10/11", "10:00", "sooner").code)

	res := runCmd(t, dir, "", "sort")
	require.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "Sorted 2 tasks")
	tasks := storedTasks(t, dir)
	assert.Equal(t, "sooner", tasks[0]["task"])
	assert.Equal(t, "later", tasks[1]["task"])

	res = runCmd(t, dir, "", "reset", "1")
	require.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "has not fired yet")
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, 0, runCmd(t, dir, "", "add", "10/11", "10:00", "keep me").code)

	res := runCmd(t, dir, "n\n", "rm", "1")
	require.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, `Delete "keep me"?`)
	assert.Contains(t, res.stdout, "Kept.")
	assert.Len(t, storedTasks(t, dir), 1)

	res = runCmd(t, dir, "", "rm", "-y", "1")
	require.Equal(t, 0, res.code)
	assert.Empty(t, storedTasks(t, dir))

	res = runCmd(t, dir, "", "rm", "-y", "1")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "task not found")
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, 0, runCmd(t, dir, "", "add", "-minutes", "15", "10/11", "10:00", "dentist").code)

	res := runCmd(t, dir, "", "export", "-ics", "-")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "BEGIN:VCALENDAR")
	assert.Contains(t, res.stdout, "SUMMARY:dentist")

	htmlPath := filepath.Join(t.TempDir(), "agenda.html")
	res = runCmd(t, dir, "", "export", "-html", htmlPath)
	require.Equal(t, 0, res.code, res.stderr)
	b, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "dentist")

	assert.Equal(t, 2, runCmd(t, dir, "", "export").code)
	assert.Equal(t, 2, runCmd(t, dir, "", "export", "-ics", "-", "-html", "-").code)
}

func TestStoreBusy(t *testing.T) {
	dir := t.TempDir()
	holder, err := task.NewStore(task.Options{Path: filepath.Join(dir, "tasks.json")})
	require.NoError(t, err)
	require.NoError(t, holder.TryLock())
	defer holder.Unlock()

	res := runCmd(t, dir, "", "list")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "in use by another process")
}

func TestCorruptStoreWarns(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tasks.json"), []byte("[{"), 0o644))

	res := runCmd(t, dir, "", "list")
	assert.Equal(t, 0, res.code)
	assert.Contains(t, res.stderr, "warning:")
	assert.Contains(t, res.stdout, "No tasks.")
}

func TestBackupRestore(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, 0, runCmd(t, dir, "", "add", "10/11", "10:00", "archived").code)

	archive := filepath.Join(t.TempDir(), "b.tar.gz")
	res := runCmd(t, dir, "", "backup", "-out", archive, "-verify")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "verified")

	target := t.TempDir()
	res = runCmd(t, target, "", "restore", "-archive", archive)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "restored tasks.json")
	assert.Equal(t, "archived", storedTasks(t, target)[0]["task"])

	res = runCmd(t, target, "", "restore", "-archive", archive)
	assert.Equal(t, 1, res.code)
	res = runCmd(t, target, "", "restore", "-force", "-archive", archive)
	assert.Equal(t, 0, res.code, res.stderr)

	assert.Equal(t, 2, runCmd(t, target, "", "restore").code)
}

func TestBackupRestore_StoreOutsideDataDir(t *testing.T) {
	dir := t.TempDir()
	elsewhere := filepath.Join(t.TempDir(), "tasks.json")
	cfgPath := filepath.Join(t.TempDir(), "taskbell.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("store_file: "+elsewhere+"\n"), 0o644))

	res := runCmd(t, dir, "", "-config", cfgPath, "add", "10/11", "10:00", "kept elsewhere")
	require.Equal(t, 0, res.code, res.stderr)
	_, err := os.Stat(elsewhere)
	require.NoError(t, err)

	archive := filepath.Join(t.TempDir(), "b.tar.gz")
	res = runCmd(t, dir, "", "-config", cfgPath, "backup", "-out", archive)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "is outside data_dir")
	_, err = os.Stat(archive)
	assert.True(t, os.IsNotExist(err), "no archive written")

	res = runCmd(t, dir, "", "-config", cfgPath, "restore", "-archive", archive)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "is outside data_dir")

	inside := filepath.Join(dir, "sub", "tasks.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte("store_file: "+inside+"\n"), 0o644))
	require.Equal(t, 0, runCmd(t, dir, "", "-config", cfgPath, "add", "10/11", "10:00", "inside").code)
	res = runCmd(t, dir, "", "-config", cfgPath, "backup", "-out", archive)
	assert.Equal(t, 0, res.code, res.stderr)
}

func TestResolveRef(t *testing.T) {
	tasks := []task.Task{{ID: "abc123"}, {ID: "abd456"}, {ID: "9f00"}}

	id, err := resolveRef(tasks, "2")
	require.NoError(t, err)
	assert.Equal(t, "abd456", id)

	id, err = resolveRef(tasks, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)

	id, err = resolveRef(tasks, "9f00")
	require.NoError(t, err)
	assert.Equal(t, "9f00", id)

	_, err = resolveRef(tasks, "ab")
	assert.ErrorAs(t, err, &usageError{})

	_, err = resolveRef(tasks, "7")
	assert.ErrorIs(t, err, task.ErrNotFound)

	_, err = resolveRef(tasks, " ")
	assert.Error(t, err)
}

type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func TestRunShell_FiresReminderAndQuits(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "taskbell.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
scheduler:
  interval: 20ms
notify:
  sound:
    enabled: false
  desktop:
    enabled: false
`), 0o644))

	stdinR, stdinW := io.Pipe()
	out := &lockedBuffer{}
	var errOut bytes.Buffer

	done := make(chan int, 1)
	go func() {
		done <- run(context.Background(), []string{"-config", cfgPath, "-data-dir", dir, "run"}, stdinR, out, &errOut)
	}()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "No tasks.") }, 2*time.Second, 10*time.Millisecond)

	// Jan 1st of the current year is always in the past.
	_, err := io.WriteString(stdinW, "add 01/01 00:00 overdue thing\n")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "REMINDER") }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "Task: overdue thing")

	_, err = io.WriteString(stdinW, "quit\n")
	require.NoError(t, err)

	select {
	case code := <-done:
		assert.Equal(t, 0, code, errOut.String())
	case <-time.After(2 * time.Second):
		t.Fatal("run did not exit after quit")
	}
	_ = stdinW.Close()

	tasks := storedTasks(t, dir)
	require.Len(t, tasks, 1)
	assert.Equal(t, true, tasks[0]["reminded"])
}
