package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/extractor"
)

// ErrSourceUnreadable means the reference directory itself could not be
// listed. Per-file failures never produce it.
var ErrSourceUnreadable = errors.New("registry source unreadable")

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

// EmbeddingCache stores reference embeddings keyed by file content hash and
// model name. Implementations may keep float32 precision; the loader rounds
// fresh embeddings the same way so a cached reload matches a cold one.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, contentHash, model string) ([]float64, bool, error)
	PutEmbedding(ctx context.Context, contentHash, model, identityID string, embedding []float64) error
}

// SkippedFile records why a reference image did not become an identity.
type SkippedFile struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

type LoadResult struct {
	Identities []domain.KnownIdentity
	Skipped    []SkippedFile
	ImageFiles int
	// ContentHashes holds the SHA-256 of every image that became an
	// identity, in identity order.
	ContentHashes []string
}

type LoaderConfig struct {
	Workers int
	Model   string
	// OnFile is called once per image file after it is processed.
	OnFile func(file string)
}

type Loader struct {
	extractor *extractor.Extractor
	cache     EmbeddingCache
	config    LoaderConfig
	logger    *slog.Logger
}

// NewLoader creates a Loader. cache may be nil.
func NewLoader(ex *extractor.Extractor, cache EmbeddingCache, config LoaderConfig, logger *slog.Logger) *Loader {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	return &Loader{
		extractor: ex,
		cache:     cache,
		config:    config,
		logger:    logger.With("component", "registry_loader"),
	}
}

// ImageFiles lists the reference image names in dir in sorted order.
// Subdirectories and non-image files are ignored.
func ImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnreadable, dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, e.Name())
	}
	return files, nil
}

type fileOutcome struct {
	identity *domain.KnownIdentity
	hash     string
	reason   string
}

// Load builds one identity per image file in dir that has a detectable
// face. The identity id is the file name without extension. Files are
// processed concurrently but results keep sorted file name order.
func (l *Loader) Load(ctx context.Context, dir string) (*LoadResult, error) {
	files, err := ImageFiles(dir)
	if err != nil {
		return nil, err
	}

	outcomes := make([]fileOutcome, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.config.Workers)

	for i, name := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = l.loadFile(gctx, dir, name)
			if l.config.OnFile != nil {
				l.config.OnFile(name)
			}
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}

	result := &LoadResult{ImageFiles: len(files)}
	seen := make(map[string]string, len(files))

	for i, out := range outcomes {
		name := files[i]
		if out.identity == nil {
			l.logger.Warn("reference image skipped", "file", name, "reason", out.reason)
			result.Skipped = append(result.Skipped, SkippedFile{File: name, Reason: out.reason})
			continue
		}

		id := out.identity.IdentityID
		if first, dup := seen[id]; dup {
			reason := fmt.Sprintf("duplicate identity %q, already loaded from %s", id, first)
			l.logger.Warn("reference image skipped", "file", name, "reason", reason)
			result.Skipped = append(result.Skipped, SkippedFile{File: name, Reason: reason})
			continue
		}

		seen[id] = name
		result.Identities = append(result.Identities, *out.identity)
		result.ContentHashes = append(result.ContentHashes, out.hash)
	}

	return result, nil
}

func (l *Loader) loadFile(ctx context.Context, dir, name string) fileOutcome {
	identityID := strings.TrimSuffix(name, filepath.Ext(name))

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fileOutcome{reason: fmt.Sprintf("read: %v", err)}
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if l.cache != nil {
		embedding, ok, err := l.cache.GetEmbedding(ctx, hash, l.config.Model)
		if err != nil {
			l.logger.Warn("embedding cache lookup failed", "file", name, "error", err)
		} else if ok {
			return fileOutcome{identity: &domain.KnownIdentity{IdentityID: identityID, Embedding: storedPrecision(embedding), Source: name}, hash: hash}
		}
	}

	img, err := extractor.Decode(data)
	if err != nil {
		return fileOutcome{reason: err.Error()}
	}

	boxes, err := l.extractor.Detect(ctx, img)
	if err != nil {
		return fileOutcome{reason: err.Error()}
	}
	if len(boxes) == 0 {
		return fileOutcome{reason: "no face detected"}
	}

	idx := extractor.Largest(boxes)
	if len(boxes) > 1 {
		l.logger.Warn("multiple faces in reference image, using the largest", "file", name, "faces", len(boxes))
	}

	embedding, err := l.extractor.Embed(ctx, img, boxes[idx])
	if err != nil {
		return fileOutcome{reason: err.Error()}
	}
	embedding = storedPrecision(embedding)

	if l.cache != nil {
		if err := l.cache.PutEmbedding(ctx, hash, l.config.Model, identityID, embedding); err != nil {
			l.logger.Warn("embedding cache store failed", "file", name, "error", err)
		}
	}

	return fileOutcome{identity: &domain.KnownIdentity{IdentityID: identityID, Embedding: embedding, Source: name}, hash: hash}
}

// storedPrecision rounds an embedding to float32, the precision of the
// pgvector column.
func storedPrecision(embedding []float64) []float64 {
	out := make([]float64, len(embedding))
	for i, v := range embedding {
		out[i] = float64(float32(v))
	}
	return out
}
