// Command registry inspects a known faces directory offline: it loads the
// directory the same way the API does and reports what became an identity.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/config"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/extractor"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/face"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/registry"
)

// Options holds the recognition settings shared by all subcommands.
type Options struct {
	Dir             string
	ProviderType    string
	DeepFaceURL     string
	Model           string
	DetectorBackend string
	Metric          string
	Threshold       float64
	Workers         int
	Verbose         bool
}

var opts Options

var rootCmd = &cobra.Command{
	Use:          "registry",
	Short:        "Inspect and test a known faces directory",
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.Dir, "dir", envOr("KNOWN_FACES_DIR", "known_faces"), "Known faces directory")
	flags.StringVar(&opts.ProviderType, "provider", envOr("PROVIDER_TYPE", "deepface"), "Face provider: deepface or mock")
	flags.StringVar(&opts.DeepFaceURL, "deepface-url", envOr("DEEPFACE_URL", "http://localhost:5000"), "DeepFace service URL")
	flags.StringVar(&opts.Model, "model", envOr("DEEPFACE_MODEL", "ArcFace"), "Embedding model")
	flags.StringVar(&opts.DetectorBackend, "detector", envOr("DETECTOR_BACKEND", "opencv"), "Face detector backend")
	flags.StringVar(&opts.Metric, "metric", envOr("DISTANCE_METRIC", "cosine"), "Distance metric: cosine or euclidean")
	flags.Float64Var(&opts.Threshold, "threshold", 0.42, "Match threshold")
	flags.IntVar(&opts.Workers, "workers", 4, "Parallel reference image workers")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "Log per-file warnings")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (o Options) config() *config.Config {
	return &config.Config{
		ProviderType:    o.ProviderType,
		DeepFaceURL:     o.DeepFaceURL,
		DeepFaceModel:   o.Model,
		DetectorBackend: o.DetectorBackend,
		DeepFaceRetries: 1,
	}
}

func (o Options) logger() *slog.Logger {
	if !o.Verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return config.NewLogger("development")
}

// newRegistry builds a registry over opts.Dir without the embedding cache.
// onFile may be nil.
func newRegistry(o Options, onFile func(string)) (*registry.Registry, *extractor.Extractor, error) {
	metric, err := registry.ParseMetric(o.Metric)
	if err != nil {
		return nil, nil, err
	}

	cfg := o.config()
	p, err := face.NewFaceProvider(cfg)
	if err != nil {
		return nil, nil, err
	}

	ex := extractor.New(p, 1)
	logger := o.logger()
	loader := registry.NewLoader(ex, nil, registry.LoaderConfig{
		Workers: o.Workers,
		Model:   face.ModelName(cfg),
		OnFile:  onFile,
	}, logger)

	reg := registry.New(loader, registry.Config{
		Dir:       o.Dir,
		Metric:    metric,
		Threshold: o.Threshold,
	}, logger)
	return reg, ex, nil
}
