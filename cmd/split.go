package cmd

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	pathpkg "path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"golang.org/x/term"

	"github.com/kiesman99/tilegrid/internal/extract"
	"github.com/kiesman99/tilegrid/internal/sink"
	"github.com/kiesman99/tilegrid/internal/source"
	"github.com/kiesman99/tilegrid/internal/tiler"
)

var splitCmd = &cobra.Command{
	Use:   "split <image>",
	Short: "Split an image into PNG tiles",
	Long: `Split an image into a grid of PNG tiles.

The output target decides where tiles go:
  a directory          one file per tile (default: <image>_tiles next to the image)
  a path ending .zip   a single archive
  s3://bucket/prefix   one object per tile in S3 or an S3-compatible store

Tiles are named <image>_tile_rRR_cCC.png with 1-based row and column.`,
	Args: cobra.ExactArgs(1),
	PreRun: func(cmd *cobra.Command, args []string) {
		bindGridFlags(cmd)
	},
	RunE: runSplit,
}

func init() {
	rootCmd.AddCommand(splitCmd)

	addGridFlags(splitCmd)

	// Output options
	splitCmd.Flags().StringP("out", "o", "", "output directory, .zip file or s3://bucket/prefix")
	splitCmd.Flags().String("background", "white", "fill colour of padded tiles (name or #rrggbb[aa])")
	splitCmd.Flags().String("compression", "default", "PNG compression (none|speed|default|best)")
	splitCmd.Flags().String("zip-method", "store", "ZIP entry method (store|deflate|zstd)")
	splitCmd.Flags().Bool("no-orient", false, "ignore EXIF orientation")
	splitCmd.Flags().BoolP("quiet", "q", false, "do not report progress")
	splitCmd.Flags().String("user-agent", source.DefaultUserAgent, "HTTP User-Agent header when the image is a URL")
	splitCmd.Flags().Int64("max-pixels", source.DefaultMaxPixels, "largest accepted image in pixels, 0 for unlimited")

	// Tuning
	splitCmd.Flags().IntP("workers", "j", 1, "tiles rendered concurrently")
	splitCmd.Flags().Int("pixel-budget", extract.DefaultPixelBudget, "tile pixels produced between two yields")

	// S3 options
	splitCmd.Flags().String("s3-endpoint", "", "S3-compatible endpoint URL, e.g. MinIO")
	splitCmd.Flags().String("s3-region", "us-east-1", "S3 region")
	splitCmd.Flags().String("s3-access-key", "", "S3 access key (default: AWS credential chain)")
	splitCmd.Flags().String("s3-secret-key", "", "S3 secret key")
	splitCmd.Flags().Bool("s3-create-bucket", false, "create the bucket if it does not exist")

	// Bind flags to viper
	viper.BindPFlag("out", splitCmd.Flags().Lookup("out"))
	viper.BindPFlag("background", splitCmd.Flags().Lookup("background"))
	viper.BindPFlag("compression", splitCmd.Flags().Lookup("compression"))
	viper.BindPFlag("zip-method", splitCmd.Flags().Lookup("zip-method"))
	viper.BindPFlag("no-orient", splitCmd.Flags().Lookup("no-orient"))
	viper.BindPFlag("quiet", splitCmd.Flags().Lookup("quiet"))
	viper.BindPFlag("user-agent", splitCmd.Flags().Lookup("user-agent"))
	viper.BindPFlag("max-pixels", splitCmd.Flags().Lookup("max-pixels"))
	viper.BindPFlag("workers", splitCmd.Flags().Lookup("workers"))
	viper.BindPFlag("pixel-budget", splitCmd.Flags().Lookup("pixel-budget"))
	viper.BindPFlag("s3.endpoint", splitCmd.Flags().Lookup("s3-endpoint"))
	viper.BindPFlag("s3.region", splitCmd.Flags().Lookup("s3-region"))
	viper.BindPFlag("s3.access-key", splitCmd.Flags().Lookup("s3-access-key"))
	viper.BindPFlag("s3.secret-key", splitCmd.Flags().Lookup("s3-secret-key"))
	viper.BindPFlag("s3.create-bucket", splitCmd.Flags().Lookup("s3-create-bucket"))
}

func runSplit(cmd *cobra.Command, args []string) (err error) {
	path := args[0]

	cfg, err := gridConfig()
	if err != nil {
		return err
	}
	background, err := extract.ParseColor(viper.GetString("background"))
	if err != nil {
		return err
	}
	level, err := extract.ParseCompression(viper.GetString("compression"))
	if err != nil {
		return err
	}
	if _, err := sink.ParseMethod(viper.GetString("zip-method")); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	img, err := openImage(ctx, path)
	if err != nil {
		return err
	}

	t := tiler.New(newLogger())
	req := &tiler.Request{
		Source:      img,
		Name:        imageName(path),
		Config:      cfg,
		Background:  background,
		Compression: level,
		Workers:     viper.GetInt("workers"),
		PixelBudget: viper.GetInt("pixel-budget"),
	}

	// Plan before creating any output so a bad configuration leaves
	// nothing behind.
	grid, err := t.Plan(req)
	if err != nil {
		return err
	}

	out := viper.GetString("out")
	if out == "" {
		out = defaultOutput(path)
	}
	dst, err := sink.Open(ctx, out, sink.Config{
		Compression: viper.GetString("zip-method"),
		S3: sink.S3Config{
			Endpoint:     viper.GetString("s3.endpoint"),
			Region:       viper.GetString("s3.region"),
			AccessKey:    viper.GetString("s3.access-key"),
			SecretKey:    viper.GetString("s3.secret-key"),
			CreateBucket: viper.GetBool("s3.create-bucket"),
		},
	})
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dst.Close())
	}()

	stderr := cmd.ErrOrStderr()
	tty := isTerminal(stderr)
	if !viper.GetBool("quiet") {
		req.Progress = progressReporter(stderr, tty)
	}
	req.Sink = dst

	fmt.Fprintf(stderr, "Splitting %s (%dx%d) into %d x %d tiles of %dx%d px\n",
		path, grid.SourceWidth, grid.SourceHeight, grid.Columns, grid.Rows, grid.TileWidth, grid.TileHeight)

	result, err := t.Split(ctx, req)
	if req.Progress != nil && tty {
		fmt.Fprintln(stderr)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d tiles (%s) to %s in %s\n",
		len(result.Files), formatBytes(result.Bytes), out, result.Elapsed.Round(time.Millisecond))
	return nil
}

// openImage reads a local file or downloads an http(s) URL
func openImage(ctx context.Context, path string) (*source.Image, error) {
	autoOrient := !viper.GetBool("no-orient")
	maxPixels := viper.GetInt64("max-pixels")
	if !source.IsURL(path) {
		return source.OpenLimit(path, autoOrient, maxPixels)
	}
	f := source.NewFetcher()
	f.UserAgent = viper.GetString("user-agent")
	f.MaxPixels = maxPixels
	return f.Fetch(ctx, path, autoOrient)
}

// imageName is the file name tiles are named after
func imageName(path string) string {
	if source.IsURL(path) {
		if u, err := url.Parse(path); err == nil && u.Path != "" {
			return pathpkg.Base(u.Path)
		}
		return "image"
	}
	return filepath.Base(path)
}

// defaultOutput is a directory named after the image, next to it. URLs
// go to the working directory.
func defaultOutput(path string) string {
	base := imageName(path)
	dir := "."
	if !source.IsURL(path) {
		dir = filepath.Dir(path)
	}
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+"_tiles")
}

// progressReporter redraws a single status line on terminals and prints
// every tenth of the way otherwise.
func progressReporter(w io.Writer, tty bool) func(current, total int) {
	last := -1
	return func(current, total int) {
		if tty {
			fmt.Fprintf(w, "\r  tile %d/%d (%d%%)", current, total, current*100/total)
			return
		}
		if step := current * 10 / total; step != last {
			last = step
			fmt.Fprintf(w, "  tile %d/%d\n", current, total)
		}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
