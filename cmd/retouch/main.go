package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/beauty-retouch/internal/boot"
	"github.com/fpang/beauty-retouch/internal/cli"
	"github.com/fpang/beauty-retouch/internal/codec"
	"github.com/fpang/beauty-retouch/internal/config"
	"github.com/fpang/beauty-retouch/internal/engine"
	"github.com/fpang/beauty-retouch/internal/faceregion"
	"github.com/fpang/beauty-retouch/internal/kernel"
	"github.com/fpang/beauty-retouch/internal/logging"
	"github.com/fpang/beauty-retouch/internal/metrics"
	"github.com/fpang/beauty-retouch/internal/palette"
	"github.com/fpang/beauty-retouch/internal/raster"
	"github.com/fpang/beauty-retouch/internal/session"
	"github.com/fpang/beauty-retouch/internal/store"
)

// Set at build time via -ldflags.
var version = "dev"

// Global flags
var (
	configFlag    string
	logLevelFlag  string
	logFormatFlag string
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "retouch",
	Short: "Brush-based portrait retouching with replayable edit history",
	Long: `Retouch applies brush strokes (skin smoothing, whitening, color and shape
tools) to a photo and keeps an edit log that can be undone, saved, resumed
and replayed exactly.

Settings come from retouch.yaml in the working directory (or --config),
overridden by RETOUCH_* environment variables.

Examples:
  retouch edit portrait.jpg --script strokes.json --out retouched.jpg
  retouch edit --pick --script strokes.json --faces faces.json
  retouch replay portrait.jpg --out replayed.png
  retouch palette portrait.jpg --faces faces.json --tool lipColor
  retouch inspect portrait.jpg`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to the config file (default ./"+config.FileName+")")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override the log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "Override the log format (console, json)")
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env is what every subcommand needs after startup.
type env struct {
	cfg     *config.Config
	store   store.EditStore
	metrics *metrics.Sink
}

// setup loads configuration, initializes logging and opens the edit store.
func setup(ctx context.Context, name string) (*env, error) {
	start := time.Now()
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	if logFormatFlag != "" {
		cfg.Log.Format = logFormatFlag
	}
	logging.Init(cfg.Log.Level, cfg.Log.Format)

	st, err := boot.NewStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	boot.StartupLog(name, start, cfg).Version(version).Log()
	return &env{cfg: cfg, store: st, metrics: boot.NewMetrics(cfg, os.Stdout)}, nil
}

// resolveImage picks the input image from the argument, the native file
// picker or an interactive prompt, in that order of preference.
func resolveImage(args []string, pick bool) (string, error) {
	var path string
	var err error
	switch {
	case pick:
		path, err = cli.PickImage()
	case len(args) > 0:
		path = args[0]
	default:
		path, err = cli.PromptForImage()
	}
	if err != nil {
		return "", err
	}
	return cli.ValidateAndResolveFile(path)
}

// loadedImage is a decoded input image with its provenance.
type loadedImage struct {
	path   string
	img    *raster.Image
	format string
	meta   *codec.Metadata
}

func loadImage(path string) (*loadedImage, error) {
	start := time.Now()
	img, format, err := codec.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	meta, err := codec.ReadMetadataFile(path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("No EXIF metadata")
		meta = nil
	}
	log.Info().
		Str("path", path).
		Str("format", format).
		Int("width", img.Width).
		Int("height", img.Height).
		Str("elapsed", cli.FormatDurationShort(time.Since(start))).
		Msg("Image loaded")
	return &loadedImage{path: path, img: img, format: format, meta: meta}, nil
}

func loadFaces(path string) (faceregion.Detector, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open face description: %w", err)
	}
	defer f.Close()
	desc, err := faceregion.ReadDescription(f)
	if err != nil {
		return nil, err
	}
	m, err := desc.Build()
	if err != nil {
		return nil, err
	}
	log.Debug().Str("path", path).Int("regions", len(m.Names())).Msg("Face description loaded")
	return faceregion.StaticDetector{Map: m}, nil
}

// newSession wires the engine, kernels, palette and store around one image.
func newSession(e *env, in *loadedImage, facesPath string) (*session.Controller, error) {
	det, err := loadFaces(facesPath)
	if err != nil {
		return nil, err
	}
	eng := engine.New(kernel.NewRegistry(), engine.WithMetrics(e.metrics))
	gen := palette.NewGenerator(
		palette.WithColors(e.cfg.Palette.Colors),
		palette.WithMaxSamples(e.cfg.Palette.MaxSamples),
	)
	opts := []session.Option{
		session.WithStore(e.store),
		session.WithPalette(gen),
		session.WithFormat(codec.OutputFormat(in.format)),
		session.WithSource(in.path, in.meta),
		session.WithBrush(e.cfg.Brush),
		session.WithMetrics(e.metrics),
	}
	if det != nil {
		opts = append(opts, session.WithDetector(det))
	}
	return session.New(eng, in.img, opts...)
}

func writeOutputs(c *session.Controller, out, thumb string) error {
	if out != "" {
		if err := codec.EncodeFile(out, c.Working(), codec.FormatFor(out)); err != nil {
			return err
		}
		log.Info().Str("path", out).Msg("Working image written")
	}
	if thumb != "" {
		t := codec.Thumbnail(c.Working(), codec.DefaultThumbnailSize)
		if err := codec.EncodeFile(thumb, t, codec.FormatFor(thumb)); err != nil {
			return err
		}
		log.Info().Str("path", thumb).Int("width", t.Width).Int("height", t.Height).Msg("Thumbnail written")
	}
	return nil
}
