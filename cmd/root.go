package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/tilegrid/pkg/tile"
)

// Version is reported by the server and the version flag
var Version = "1.0.0"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "tilegrid",
	Short:   "Split raster images into a grid of printable PNG tiles",
	Version: Version,
	Long: `tilegrid partitions a raster image into a regular grid of square tiles
and writes every tile as a lossless PNG.

Tiles are sized in pixels, in millimetres or inches at a given resolution,
or by the number of tiles per side. When the image does not divide evenly
the remainder is either cropped away or padded with a background colour.

Examples:
  # 10 cm tiles of a 300 dpi scan, padding the last row and column
  tilegrid split scan.tif --unit mm --value 100 --dpi 300 --strategy pad

  # A 4x4 grid written straight into a ZIP archive
  tilegrid split poster.png --unit count --value 4 --out poster_tiles.zip

  # Upload 512 px tiles to a MinIO bucket
  tilegrid split map.png --value 512 --out s3://tiles/map --s3-endpoint http://localhost:9000

  # Preview the grid without writing anything
  tilegrid grid scan.tif --unit in --value 2 --dpi 600

  # Start HTTP server
  tilegrid serve --port 8080`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tilegrid.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log every batch and tile failure")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".tilegrid" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tilegrid")
	}

	// TILEGRID_PIXEL_BUDGET, TILEGRID_S3_ENDPOINT, ...
	viper.SetEnvPrefix("tilegrid")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger writes to stderr; --verbose lowers the level to debug
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// addGridFlags registers the grid parameters shared by split and grid
func addGridFlags(cmd *cobra.Command) {
	cmd.Flags().String("unit", "px", "tile size unit (px|mm|in|count)")
	cmd.Flags().Float64("value", 0, "tile edge length in unit, or tiles per side for count (required)")
	cmd.Flags().Int("dpi", 0, "image resolution, required for mm and in")
	cmd.Flags().String("strategy", "crop", "remainder handling (crop|pad)")
}

// bindGridFlags binds the grid parameters of cmd to viper. Called from
// PreRun so split and grid do not overwrite each other's bindings.
func bindGridFlags(cmd *cobra.Command) {
	for _, name := range []string{"unit", "value", "dpi", "strategy"} {
		viper.BindPFlag(name, cmd.Flags().Lookup(name))
	}
}

// gridConfig reads the tile configuration from viper
func gridConfig() (tile.Config, error) {
	unit, err := tile.ParseUnit(viper.GetString("unit"))
	if err != nil {
		return tile.Config{}, err
	}
	strategy, err := tile.ParseStrategy(viper.GetString("strategy"))
	if err != nil {
		return tile.Config{}, err
	}
	if !viper.IsSet("value") {
		return tile.Config{}, fmt.Errorf("tile size is required (use --value)")
	}
	return tile.Config{
		Unit:     unit,
		Value:    viper.GetFloat64("value"),
		DPI:      viper.GetInt("dpi"),
		Strategy: strategy,
	}, nil
}
