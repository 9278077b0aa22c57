package intake

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
	fail  bool
}

func (r *recorder) handle(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, filepath.Base(path))
	if r.fail {
		return errors.New("boom")
	}
	return nil
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestIsCSV(t *testing.T) {
	cases := map[string]bool{
		"data.csv":        true,
		"/tmp/x/DATA.CSV": true,
		"notes.txt":       false,
		".partial.csv":    false,
		"archive.csv.gz":  false,
		"csv":             false,
	}
	for name, want := range cases {
		assert.Equal(t, want, IsCSV(name), name)
	}
}

func TestListCSV(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.csv"), "x\n1\n")
	writeFile(t, filepath.Join(dir, "a.csv"), "x\n1\n")
	writeFile(t, filepath.Join(dir, "c.txt"), "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0755))

	got, err := ListCSV(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.csv"), filepath.Join(dir, "b.csv")}, got)
}

func TestWatcherHandlesNewCSV(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w, err := New(dir, rec.handle, Options{Debounce: 30 * time.Millisecond, Parallel: 2})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "ignored.txt"), "nope")
	writeFile(t, filepath.Join(dir, "sales.csv"), "a,b\n1,2\n")

	require.Eventually(t, func() bool { return len(rec.got()) == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"sales.csv"}, rec.got())

	stats := w.Stats()
	assert.Equal(t, 1, stats.Handled)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, filepath.Join(dir, "sales.csv"), stats.LastPath)
}

func TestWatcherProcessExisting(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "one.csv"), "a\n1\n")
	writeFile(t, filepath.Join(dir, "two.csv"), "a\n2\n")

	rec := &recorder{fail: true}
	w, err := New(dir, rec.handle, Options{Debounce: 20 * time.Millisecond, ProcessExisting: true})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.Eventually(t, func() bool { return w.Stats().Failed == 2 }, 5*time.Second, 20*time.Millisecond)
	assert.ElementsMatch(t, []string{"one.csv", "two.csv"}, rec.got())
	assert.Equal(t, "boom", w.Stats().LastError)
}

func TestWatcherStopCancelsHandlers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "slow.csv"), "a\n1\n")

	started := make(chan struct{})
	var once sync.Once
	handler := func(ctx context.Context, _ string) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	}
	w, err := New(dir, handler, Options{Debounce: 10 * time.Millisecond, ProcessExisting: true})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never started")
	}

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	w.Stop()
}

func TestNewRejectsNilHandler(t *testing.T) {
	_, err := New(t.TempDir(), nil, Options{})
	assert.Error(t, err)
}
