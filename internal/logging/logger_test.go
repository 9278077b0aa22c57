package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, o Options) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	InitializeWithLogger(zap.New(core), o)
	t.Cleanup(func() { InitializeWithLogger(nil, Options{}) })
	return logs
}

func TestDisabledLoggingIsNoop(t *testing.T) {
	require.NoError(t, Initialize(Options{DebugMode: false}))

	assert.False(t, IsDebugMode())
	assert.False(t, IsCategoryEnabled(CategoryGraph))

	l := Get(CategoryGraph)
	require.NotNil(t, l)
	// Must not panic.
	l.Info("hello %d", 1)
	l.With("k", "v").Error("boom")
	Graph("convenience %s", "call")
}

func TestCategoryFieldAttached(t *testing.T) {
	logs := observe(t, Options{})

	Planner("planned %d tasks", 3)
	Get(CategorySandbox).Warn("attempt %d failed", 2)

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, "planned 3 tasks", entries[0].Message)
	assert.Equal(t, "planner", entries[0].ContextMap()["category"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "sandbox", entries[1].ContextMap()["category"])
}

func TestCategoryToggles(t *testing.T) {
	tests := []struct {
		name     string
		cats     map[string]bool
		category Category
		want     bool
	}{
		{"nil map enables all", nil, CategoryCoder, true},
		{"explicit enable", map[string]bool{"coder": true}, CategoryCoder, true},
		{"explicit disable", map[string]bool{"coder": false}, CategoryCoder, false},
		{"missing key defaults on", map[string]bool{"routing": false}, CategoryCoder, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := observe(t, Options{Categories: tt.cats})
			assert.Equal(t, tt.want, IsCategoryEnabled(tt.category))

			Get(tt.category).Info("x")
			if tt.want {
				assert.Equal(t, 1, logs.Len())
			} else {
				assert.Equal(t, 0, logs.Len())
			}
		})
	}
}

func TestWithAddsContext(t *testing.T) {
	logs := observe(t, Options{})

	Get(CategoryGraph).With("run_id", "r-1").Info("step")
	entries := logs.FilterField(zap.String("run_id", "r-1")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "step", entries[0].Message)
}

func TestInitializeWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datanerd.log")
	require.NoError(t, Initialize(Options{DebugMode: true, Level: "debug", Format: "json", File: path}))
	t.Cleanup(func() { InitializeWithLogger(nil, Options{}) })

	Data("loaded %d rows", 42)
	Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), `"category":"data"`), string(raw))
	assert.Contains(t, string(raw), "loaded 42 rows")
}

func TestConcurrentGet(t *testing.T) {
	observe(t, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			Get(CategoryRouting).Debug("route %d", i)
		}(i)
	}
	wg.Wait()
	assert.Same(t, Get(CategoryRouting), Get(CategoryRouting))
}
