package watch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/pathmap/internal/remap"
)

const testDebounce = 200 * time.Millisecond

func writeMapping(t *testing.T, storageDir string, rules map[string]string) {
	t.Helper()
	data, err := json.Marshal(rules)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(storageDir, remap.MappingFileName), data, 0644))
}

// newTestController builds a remapper plus controller over a temp storage
// dir and registers cleanup. The mapping document is not created.
func newTestController(t *testing.T, policy Policy) (string, *remap.Remapper, *Controller) {
	t.Helper()
	storage := t.TempDir()
	remapper := remap.NewRemapper(storage, nil)
	controller := NewController(remapper, policy, testDebounce)
	t.Cleanup(func() { controller.Close() })
	return storage, remapper, controller
}

// waitQuiet sleeps long enough for any armed debounce timer to have fired.
func waitQuiet() {
	time.Sleep(3 * testDebounce)
}

func TestDebounceCoalescesRapidWrites(t *testing.T) {
	storage, remapper, controller := newTestController(t, PolicyPrompt)
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "a.h"), nil, 0644))

	require.NoError(t, controller.Start())

	// Two writes well inside one debounce window.
	writeMapping(t, storage, map[string]string{"/sandbox/old": target})
	time.Sleep(50 * time.Millisecond)
	writeMapping(t, storage, map[string]string{"/sandbox/src": target})

	require.Eventually(t, func() bool {
		return controller.GetStats().Reloads == 1
	}, 5*time.Second, 20*time.Millisecond, "expected exactly one reload after the quiet period")

	// The last write won: only the second document's rules are loaded.
	assert.Equal(t, 1, remapper.RuleCount())
	assert.Equal(t, filepath.Join(target, "a.h"), remapper.Resolve("/sandbox/src/a.h"))
	assert.Equal(t, "/sandbox/old/a.h", remapper.Resolve("/sandbox/old/a.h"))

	waitQuiet()
	assert.EqualValues(t, 1, controller.GetStats().Reloads, "no further reloads without further writes")
}

func TestEmptyWriteDoesNotReload(t *testing.T) {
	storage, remapper, controller := newTestController(t, PolicyPrompt)
	target := t.TempDir()

	writeMapping(t, storage, map[string]string{"/sandbox/src": target})
	require.NoError(t, remapper.Reload())
	require.Equal(t, 1, remapper.RuleCount())

	require.NoError(t, controller.Start())

	// Truncation artifact: tools clear the file before regenerating it.
	require.NoError(t, os.WriteFile(filepath.Join(storage, remap.MappingFileName), nil, 0644))

	waitQuiet()
	assert.EqualValues(t, 0, controller.GetStats().Reloads)
	assert.Equal(t, 1, remapper.RuleCount(), "prior rules retained across the truncation")
}

func TestDeletedFileAtFireTimeIsNoOp(t *testing.T) {
	storage, _, controller := newTestController(t, PolicyPrompt)

	require.NoError(t, controller.Start())

	writeMapping(t, storage, map[string]string{"/sandbox/src": "/tmp"})
	require.NoError(t, os.Remove(filepath.Join(storage, remap.MappingFileName)))

	waitQuiet()
	assert.EqualValues(t, 0, controller.GetStats().Reloads)
}

func TestPolicyIgnoreTakesNoAction(t *testing.T) {
	storage, remapper, controller := newTestController(t, PolicyIgnore)
	target := t.TempDir()

	require.NoError(t, controller.Start())
	writeMapping(t, storage, map[string]string{"/sandbox/src": target})

	waitQuiet()
	stats := controller.GetStats()
	assert.Greater(t, stats.EventsSeen, int64(0), "notification was observed")
	assert.EqualValues(t, 0, stats.Reloads)
	assert.Equal(t, 0, remapper.RuleCount())
}

func TestPolicyRestartDispatchesHookOnce(t *testing.T) {
	storage, remapper, controller := newTestController(t, PolicyRestart)

	var restarts atomic.Int64
	controller.SetRestartHook(func() { restarts.Add(1) })

	require.NoError(t, controller.Start())

	writeMapping(t, storage, map[string]string{"/sandbox/src": "/tmp"})
	time.Sleep(30 * time.Millisecond)
	writeMapping(t, storage, map[string]string{"/sandbox/src": "/tmp/x"})

	require.Eventually(t, func() bool {
		return restarts.Load() == 1
	}, 5*time.Second, 20*time.Millisecond)

	waitQuiet()
	assert.EqualValues(t, 1, restarts.Load(), "one debounce window, one dispatch")
	assert.Equal(t, 0, remapper.RuleCount(), "restart policy never reloads in-process")
}

func TestCloseCancelsPendingTimer(t *testing.T) {
	storage, _, controller := newTestController(t, PolicyPrompt)

	require.NoError(t, controller.Start())
	writeMapping(t, storage, map[string]string{"/sandbox/src": "/tmp"})

	// Close before the debounce window elapses.
	require.NoError(t, controller.Close())
	waitQuiet()
	assert.EqualValues(t, 0, controller.GetStats().Reloads)
}

func TestRewatchMovesSubscription(t *testing.T) {
	storage1, remapper, controller := newTestController(t, PolicyPrompt)
	storage2 := t.TempDir()
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "a.h"), nil, 0644))

	require.NoError(t, controller.Start())

	// Workspace roots changed: the storage dir moves.
	require.NoError(t, remapper.SetStorageDir(storage2))
	require.NoError(t, controller.Rewatch(storage2))

	// The old location is no longer observed.
	writeMapping(t, storage1, map[string]string{"/sandbox/src": target})
	waitQuiet()
	assert.EqualValues(t, 0, controller.GetStats().Reloads)

	// The new one is.
	writeMapping(t, storage2, map[string]string{"/sandbox/src": target})
	require.Eventually(t, func() bool {
		return controller.GetStats().Reloads == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, filepath.Join(target, "a.h"), remapper.Resolve("/sandbox/src/a.h"))
}

func TestStartFailureDegradesGracefully(t *testing.T) {
	remapper := remap.NewRemapper(filepath.Join(t.TempDir(), "does-not-exist"), nil)
	controller := NewController(remapper, PolicyPrompt, testDebounce)
	defer controller.Close()

	err := controller.Start()
	require.Error(t, err, "watch cannot be established on a missing directory")
	assert.False(t, controller.GetStats().Watching)

	// Degraded mode: resolution still behaves, just without reactivity.
	assert.Equal(t, "/sandbox/src/a.h", remapper.Resolve("/sandbox/src/a.h"))
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"restart", PolicyRestart, false},
		{"ignore", PolicyIgnore, false},
		{"prompt", PolicyPrompt, false},
		{"", PolicyPrompt, false},
		{"reload", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}
