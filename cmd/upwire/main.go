package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openflux/upwire/internal/coord"
	"github.com/openflux/upwire/internal/upload"
	"github.com/openflux/upwire/internal/version"
)

var cyan = color.New(color.FgHiCyan).SprintFunc()

var rootCmd = &cobra.Command{
	Use:     "upwire",
	Short:   "Upwire multipart upload client",
	Version: version.Detailed(),
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a file through a coordination server or directly to S3",
	Args:  cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		viper.SetEnvPrefix("UPWIRE")
		viper.AutomaticEnv()
		for _, flag := range []string{"server", "token", "bucket", "region", "endpoint", "key", "chunk-size", "concurrency", "retries", "lazy"} {
			if err := viper.BindPFlag(flag, cmd.Flags().Lookup(flag)); err != nil {
				return err
			}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runUpload(cmd.Context(), args[0])
	},
}

func init() {
	uploadCmd.Flags().SortFlags = false
	uploadCmd.Flags().StringP("server", "s", "", "coordination server URL")
	uploadCmd.Flags().String("token", "", "bearer token for the coordination server")
	uploadCmd.Flags().String("bucket", "", "S3 bucket (self-issuing mode, no server)")
	uploadCmd.Flags().String("region", "", "S3 region (self-issuing mode)")
	uploadCmd.Flags().String("endpoint", "", "S3-compatible endpoint (self-issuing mode)")
	uploadCmd.Flags().StringP("key", "k", "", "object key (defaults to the file's base name)")
	uploadCmd.Flags().Int64("chunk-size", upload.DefaultChunkSize, "part size in bytes")
	uploadCmd.Flags().Int("concurrency", upload.DefaultMaxConcurrentParts, "max concurrent part transfers")
	uploadCmd.Flags().Int("retries", upload.DefaultMaxRetries, "retries per part")
	uploadCmd.Flags().Bool("lazy", false, "fetch part tokens lazily, one per part")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(ctx context.Context, path string) error {
	coordinator, err := buildCoordinator(ctx)
	if err != nil {
		return err
	}

	opts := upload.Options{
		ChunkSize:          viper.GetInt64("chunk-size"),
		MaxConcurrentParts: viper.GetInt("concurrency"),
		MaxRetries:         viper.GetInt("retries"),
		Mode:               upload.ModeUpfront,
		Observer: upload.ProgressFunc(func(ev upload.ProgressEvent) {
			switch ev.Phase {
			case upload.PhaseError:
				slog.Error("upload", "phase", ev.Phase, "error", ev.Err)
			default:
				slog.Info("upload", "phase", ev.Phase,
					"progress", fmt.Sprintf("%.0f%%", ev.Percent),
					"parts", fmt.Sprintf("%d/%d", ev.CompletedParts, ev.TotalParts))
			}
		}),
	}
	if viper.GetBool("lazy") {
		opts.Mode = upload.ModeLazy
	}

	uploader, err := upload.New(coordinator, opts)
	if err != nil {
		return err
	}

	// Ctrl+C cancels the session server-side before exiting.
	go func() {
		<-ctx.Done()
		uploader.Abort()
	}()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	key := viper.GetString("key")
	if key == "" {
		key = filepath.Base(path)
	}

	start := time.Now()
	result, err := uploader.Upload(ctx, &upload.File{
		Name: key,
		Size: info.Size(),
		Data: f,
	})
	if err != nil {
		return err
	}

	slog.Info("upload done",
		"key", cyan(key),
		"location", result.Location,
		"etag", result.ETag,
		"parts", result.TotalParts,
		"took", time.Since(start).Round(time.Millisecond))
	return nil
}

func buildCoordinator(ctx context.Context) (coord.Coordinator, error) {
	server := viper.GetString("server")
	bucket := viper.GetString("bucket")

	switch {
	case server != "" && bucket != "":
		return nil, fmt.Errorf("--server and --bucket are mutually exclusive")
	case server != "":
		c := coord.NewHTTPCoordinator(server)
		if token := viper.GetString("token"); token != "" {
			c.SetAuthToken(token)
		}
		return c, nil
	case bucket != "":
		return coord.NewS3Issuer(ctx, &coord.S3Config{
			Bucket:   bucket,
			Region:   viper.GetString("region"),
			Endpoint: viper.GetString("endpoint"),
		})
	default:
		return nil, fmt.Errorf("either --server or --bucket is required")
	}
}

func main() {
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "15:04:05",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
