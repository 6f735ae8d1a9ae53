package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeHistory(t *testing.T, path string, lines ...string) {
	t.Helper()
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestOpen_ParsesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	writeHistory(t, path,
		`{"index":0,"code":"int x = 1;"}`,
		`not json`,
		``,
		`{"index":1,"code":"x++;"}`,
		`{"index":-4,"code":"bad"}`,
		`{"index":2,"code":"int x = 1;"}`,
	)

	h, err := Open(path, 77, logr.Discard())
	require.NoError(t, err)

	assert.Equal(t, 77, h.ProcessID())
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, []int{0, 2}, h.ExecutionCounts("int x = 1;"))
	assert.Empty(t, h.ExecutionCounts("never ran"))

	code, ok := h.CodeForExecution(1)
	require.True(t, ok)
	assert.Equal(t, "x++;", code)

	_, ok = h.CodeForExecution(9)
	assert.False(t, ok)
}

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	h, err := Open(filepath.Join(t.TempDir(), "absent.jsonl"), 1, logr.Discard())
	require.NoError(t, err)
	assert.Equal(t, 0, h.Len())
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("", 1, logr.Discard())
	assert.Error(t, err)
}

func TestReload_LaterEntriesWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	writeHistory(t, path, `{"index":0,"code":"a"}`, `{"index":0,"code":"b"}`)

	h, err := Open(path, 1, logr.Discard())
	require.NoError(t, err)

	code, _ := h.CodeForExecution(0)
	assert.Equal(t, "b", code)
}

func TestWatch_PicksUpAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	writeHistory(t, path, `{"index":0,"code":"a"}`)

	h, err := Open(path, 1, logr.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Watch(ctx) }()

	writeHistory(t, path, `{"index":0,"code":"a"}`, `{"index":1,"code":"b"}`)

	require.Eventually(t, func() bool {
		_, ok := h.CodeForExecution(1)
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancellation")
	}
}
