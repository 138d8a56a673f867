package registry

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/extractor"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider/providertest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func facePicture(seed uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x*4) ^ seed, uint8(y*4) + seed, seed, 255})
		}
	}
	return img
}

func writeImage(t *testing.T, dir, name string, img image.Image) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()

	switch filepath.Ext(name) {
	case ".png":
		require.NoError(t, png.Encode(f, img))
	default:
		require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 90}))
	}
}

func newMockLoader(cache EmbeddingCache) *Loader {
	return NewLoader(extractor.New(mock.New(), 1), cache, LoaderConfig{Workers: 3, Model: "ArcFace"}, discardLogger())
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "bob.png", facePicture(90))
	writeImage(t, dir, "alice.jpg", facePicture(10))
	writeImage(t, dir, "blank.png", image.NewRGBA(image.Rect(0, 0, 32, 32)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corrupt.jpg"), []byte("not a jpeg"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive.jpg"), 0o700))

	result, err := newMockLoader(nil).Load(context.Background(), dir)

	require.NoError(t, err)
	assert.Equal(t, 4, result.ImageFiles)
	require.Len(t, result.Identities, 2)
	assert.Equal(t, "alice", result.Identities[0].IdentityID)
	assert.Equal(t, "bob", result.Identities[1].IdentityID)
	assert.NotEmpty(t, result.Identities[0].Embedding)
	require.Len(t, result.ContentHashes, 2)
	assert.Len(t, result.ContentHashes[0], 64)
	assert.NotEqual(t, result.ContentHashes[0], result.ContentHashes[1])

	require.Len(t, result.Skipped, 2)
	assert.Equal(t, "blank.png", result.Skipped[0].File)
	assert.Equal(t, "no face detected", result.Skipped[0].Reason)
	assert.Equal(t, "corrupt.jpg", result.Skipped[1].File)
	assert.LessOrEqual(t, len(result.Identities), result.ImageFiles)
}

func TestLoader_Load_MatchesOwnEmbedding(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "alice.jpg", facePicture(10))
	writeImage(t, dir, "bob.png", facePicture(90))

	result, err := newMockLoader(nil).Load(context.Background(), dir)
	require.NoError(t, err)

	s := NewSnapshot(result.Identities, MetricCosine, 0.42)
	id, dist := s.Match(result.Identities[0].Embedding)

	assert.Equal(t, "alice", id)
	assert.InDelta(t, 0, dist, 1e-9)
	assert.Equal(t, 100.0, MetricCosine.Confidence(dist, 0.42))
}

func TestLoader_Load_EmptyDirectory(t *testing.T) {
	result, err := newMockLoader(nil).Load(context.Background(), t.TempDir())

	require.NoError(t, err)
	assert.Empty(t, result.Identities)
	assert.Empty(t, result.Skipped)
}

func TestLoader_Load_UnreadableDirectory(t *testing.T) {
	_, err := newMockLoader(nil).Load(context.Background(), filepath.Join(t.TempDir(), "missing"))

	assert.ErrorIs(t, err, ErrSourceUnreadable)
}

func TestImageFiles(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "carol.JPG", facePicture(1))
	writeImage(t, dir, "alice.png", facePicture(2))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("x"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "bob.jpg"), 0o700))

	files, err := ImageFiles(dir)

	require.NoError(t, err)
	assert.Equal(t, []string{"alice.png", "carol.JPG"}, files)
}

func TestLoader_Load_DuplicateIdentityKeepsFirst(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "alice.jpg", facePicture(10))
	writeImage(t, dir, "alice.png", facePicture(20))

	result, err := newMockLoader(nil).Load(context.Background(), dir)

	require.NoError(t, err)
	require.Len(t, result.Identities, 1)
	assert.Equal(t, "alice.jpg", result.Identities[0].Source)
	require.Len(t, result.Skipped, 1)
	assert.Contains(t, result.Skipped[0].Reason, "duplicate identity")
}

func TestLoader_Load_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "alice.jpg", facePicture(10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newMockLoader(nil).Load(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]float64
	puts int
}

func (c *memoryCache) GetEmbedding(_ context.Context, hash, model string) ([]float64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	emb, ok := c.data[hash+"/"+model]
	return emb, ok, nil
}

func (c *memoryCache) PutEmbedding(_ context.Context, hash, model, _ string, embedding []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[hash+"/"+model] = embedding
	c.puts++
	return nil
}

func TestLoader_Load_UsesEmbeddingCache(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "alice.jpg", facePicture(10))

	cache := &memoryCache{data: map[string][]float64{}}
	first, err := newMockLoader(cache).Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.puts)

	// a provider with no expectations fails the test if it is called
	fp := new(providertest.MockFaceProvider)
	cached := NewLoader(extractor.New(fp, 1), cache, LoaderConfig{Model: "ArcFace"}, discardLogger())

	second, err := cached.Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, second.Identities, 1)
	assert.Equal(t, first.Identities[0].Embedding, second.Identities[0].Embedding)
	fp.AssertNotCalled(t, "DetectFaces")
}

// float32Cache narrows embeddings the way the pgvector column does.
type float32Cache struct {
	memoryCache
}

func (c *float32Cache) PutEmbedding(ctx context.Context, hash, model, identityID string, embedding []float64) error {
	narrowed := make([]float64, len(embedding))
	for i, v := range embedding {
		narrowed[i] = float64(float32(v))
	}
	return c.memoryCache.PutEmbedding(ctx, hash, model, identityID, narrowed)
}

func TestLoader_Load_CachedReloadMatchesColdLoad(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "alice.jpg", facePicture(10))

	cache := &float32Cache{memoryCache{data: map[string][]float64{}}}
	cold, err := newMockLoader(cache).Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, cold.Identities, 1)

	warm, err := newMockLoader(cache).Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, warm.Identities, 1)
	assert.Equal(t, 1, cache.puts)
	assert.Equal(t, cold.Identities[0].Embedding, warm.Identities[0].Embedding)

	coldSnap := NewSnapshot(cold.Identities, MetricCosine, 0.42)
	warmSnap := NewSnapshot(warm.Identities, MetricCosine, 0.42)
	query := []float64{0.3, -0.1, 0.7}
	query = append(query, make([]float64, len(cold.Identities[0].Embedding)-len(query))...)

	_, coldDist := coldSnap.Match(query)
	_, warmDist := warmSnap.Match(query)
	assert.Equal(t, coldDist, warmDist)
}

func TestStoredPrecision(t *testing.T) {
	in := []float64{0.1, -1.0 / 3, 0}
	out := storedPrecision(in)

	require.Len(t, out, len(in))
	for i := range in {
		assert.InDelta(t, in[i], out[i], 1e-7)
		assert.Equal(t, float64(float32(in[i])), out[i])
	}
	assert.Equal(t, out, storedPrecision(out))
	assert.Equal(t, 0.1, in[0])
}

func TestLoader_Load_ReportsProgress(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "alice.jpg", facePicture(10))
	writeImage(t, dir, "bob.jpg", facePicture(90))

	var mu sync.Mutex
	var seen []string
	loader := NewLoader(extractor.New(mock.New(), 1), nil, LoaderConfig{
		Workers: 2,
		OnFile: func(file string) {
			mu.Lock()
			seen = append(seen, file)
			mu.Unlock()
		},
	}, discardLogger())

	_, err := loader.Load(context.Background(), dir)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice.jpg", "bob.jpg"}, seen)
}

