package registry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
)

func newTestRegistry(dir string) *Registry {
	return New(newMockLoader(nil), Config{Dir: dir, Metric: MetricCosine, Threshold: 0.42}, discardLogger())
}

func TestRegistry_StartsEmpty(t *testing.T) {
	r := newTestRegistry(t.TempDir())

	id, _ := r.Match([]float64{1, 2, 3})
	assert.Equal(t, domain.UnknownIdentity, id)
	assert.Equal(t, 0, r.Snapshot().Len())
}

func TestRegistry_Reload(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "alice.jpg", facePicture(10))
	writeImage(t, dir, "bob.png", facePicture(90))
	r := newTestRegistry(dir)

	report, err := r.Reload(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, report.Loaded)
	assert.Equal(t, 2, report.ImageFiles)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, 2, r.Snapshot().Len())
}

func TestRegistry_ReloadIsFullReplace(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "alice.jpg", facePicture(10))
	writeImage(t, dir, "bob.png", facePicture(90))
	r := newTestRegistry(dir)

	_, err := r.Reload(context.Background())
	require.NoError(t, err)
	old := r.Snapshot()
	bobEmbedding := old.entries[1].Embedding

	require.NoError(t, os.Remove(filepath.Join(dir, "bob.png")))
	_, err = r.Reload(context.Background())
	require.NoError(t, err)

	id, _ := r.Match(bobEmbedding)
	assert.Equal(t, domain.UnknownIdentity, id, "removed reference must not survive a reload")

	// a snapshot held across the reload is unchanged
	id, _ = old.Match(bobEmbedding)
	assert.Equal(t, "bob", id)
}

func TestRegistry_FailedReloadKeepsSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "alice.jpg", facePicture(10))
	r := newTestRegistry(dir)

	_, err := r.Reload(context.Background())
	require.NoError(t, err)
	before := r.Snapshot()

	require.NoError(t, os.RemoveAll(dir))
	_, err = r.Reload(context.Background())

	assert.ErrorIs(t, err, ErrSourceUnreadable)
	assert.Same(t, before, r.Snapshot())
}

func TestRegistry_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "alice.jpg", facePicture(10))
	writeImage(t, dir, "bob.png", facePicture(90))
	writeImage(t, dir, "carol.png", facePicture(170))
	r := newTestRegistry(dir)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				n := r.Snapshot().Len()
				assert.Contains(t, []int{0, 3}, n)
			}
		}()
	}

	for range 3 {
		_, err := r.Reload(context.Background())
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}
