package workspace

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesStateDir(t *testing.T) {
	root := t.TempDir()

	ws, err := Open(root)
	require.NoError(t, err)

	info, err := os.Stat(ws.StatePath())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Join(ws.Root(), ".assemble", "task-cache"), ws.CachePath())
	assert.Equal(t, filepath.Join(ws.Root(), ".assemble", "assemble.db"), ws.DatabasePath())
}

func TestLock_SecondLockFails(t *testing.T) {
	ws, err := Open(t.TempDir())
	require.NoError(t, err)

	release, err := ws.Lock()
	require.NoError(t, err)

	_, err = ws.Lock()
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, release())

	release, err = ws.Lock()
	require.NoError(t, err)
	assert.NoError(t, release())
}

func TestAtomicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "file.json")

	require.NoError(t, AtomicWrite(path, []byte("first")))
	require.NoError(t, AtomicWrite(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files should not be left behind")
}

func TestAtomicWrite_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, AtomicWrite(path, []byte("payload")))
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}
