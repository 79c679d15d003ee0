package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

type batchCollector struct {
	mu      sync.Mutex
	batches [][]ChangeEvent
	signal  chan struct{}
}

func newBatchCollector() *batchCollector {
	return &batchCollector{signal: make(chan struct{}, 16)}
}

func (c *batchCollector) handle(events []ChangeEvent) {
	c.mu.Lock()
	c.batches = append(c.batches, events)
	c.mu.Unlock()
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *batchCollector) waitForBatch(t *testing.T) []ChangeEvent {
	t.Helper()
	select {
	case <-c.signal:
	case <-time.After(5 * time.Second):
		t.Fatal("no change batch arrived")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches[len(c.batches)-1]
}

func startWatcher(t *testing.T, root string) *batchCollector {
	t.Helper()

	fw, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	t.Cleanup(func() { fw.Stop() })

	collector := newBatchCollector()
	fw.AddHandler(collector.handle)
	require.NoError(t, fw.AddRecursive(root))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	fw.Start(ctx)

	// fsnotify needs a moment before events flow on some platforms.
	time.Sleep(50 * time.Millisecond)
	return collector
}

func TestWriteInRootDetected(t *testing.T) {
	root := t.TempDir()
	collector := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<p>v1</p>"), 0644))

	events := collector.waitForBatch(t)
	require.NotEmpty(t, events)
	assert.Contains(t, events[0].Path, "index.html")
}

func TestWriteInNestedSubdirectoryDetected(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "assets", "css")
	require.NoError(t, os.MkdirAll(nested, 0755))

	collector := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(nested, "site.css"), []byte("body{}"), 0644))

	events := collector.waitForBatch(t)
	require.NotEmpty(t, events)
	assert.Contains(t, events[len(events)-1].Path, "site.css")
}

func TestRenameDetected(t *testing.T) {
	root := t.TempDir()
	oldPath := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(oldPath, []byte("x"), 0644))

	collector := startWatcher(t, root)

	require.NoError(t, os.Rename(oldPath, filepath.Join(root, "b.txt")))

	events := collector.waitForBatch(t)
	assert.NotEmpty(t, events)
}

func TestDirectoryCreatedAfterStartIsWatched(t *testing.T) {
	root := t.TempDir()
	collector := startWatcher(t, root)

	newDir := filepath.Join(root, "pages")
	require.NoError(t, os.Mkdir(newDir, 0755))
	collector.waitForBatch(t)

	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(newDir, "about.html"), []byte("<p>about</p>"), 0644))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		collector.mu.Lock()
		for _, batch := range collector.batches {
			for _, event := range batch {
				if filepath.Base(event.Path) == "about.html" {
					collector.mu.Unlock()
					return
				}
			}
		}
		collector.mu.Unlock()
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("write in newly created directory never detected")
}

func TestRapidWritesDebouncedIntoOneBatch(t *testing.T) {
	root := t.TempDir()
	collector := startWatcher(t, root)

	path := filepath.Join(root, "file.html")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte('a' + i)}, 0644))
	}

	events := collector.waitForBatch(t)
	// Events for the same path are deduplicated within a batch.
	seen := map[string]int{}
	for _, event := range events {
		seen[event.Path]++
	}
	for path, count := range seen {
		assert.Equal(t, 1, count, "duplicate events for %s in one batch", path)
	}
}

func TestStopClosesWatcher(t *testing.T) {
	fw, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	assert.NoError(t, fw.Stop())
}
