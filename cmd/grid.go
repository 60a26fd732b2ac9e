package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/kiesman99/tilegrid/pkg/tile"
)

var gridCmd = &cobra.Command{
	Use:   "grid [image]",
	Short: "Show the tile grid for an image without extracting anything",
	Long: `Show the tile grid an image would be split into.

Pass an image, or its dimensions with --width and --height. The report
lists the tile size (also in millimetres when --dpi is given), the number
of columns and rows, how much of the image the grid covers, the remainder
that is cropped or padded, and the uncompressed size of all tiles.`,
	Args: cobra.MaximumNArgs(1),
	PreRun: func(cmd *cobra.Command, args []string) {
		bindGridFlags(cmd)
	},
	RunE: runGrid,
}

func init() {
	rootCmd.AddCommand(gridCmd)

	addGridFlags(gridCmd)
	gridCmd.Flags().Int("width", 0, "image width in pixels, instead of an image")
	gridCmd.Flags().Int("height", 0, "image height in pixels, instead of an image")
	gridCmd.Flags().Bool("json", false, "print the grid as JSON")
}

func runGrid(cmd *cobra.Command, args []string) error {
	cfg, err := gridConfig()
	if err != nil {
		return err
	}

	// Local flags only; width and height mean something else elsewhere.
	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")
	asJSON, _ := cmd.Flags().GetBool("json")

	switch {
	case len(args) == 1:
		img, err := openImage(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		width, height = img.Size()
	case width == 0 || height == 0:
		return fmt.Errorf("either pass an image or both --width and --height")
	}

	g, err := tile.ComputeGrid(width, height, cfg)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(g)
	}
	printGrid(cmd.OutOrStdout(), g, cfg)
	return nil
}

func printGrid(w io.Writer, g tile.Grid, cfg tile.Config) {
	p := message.NewPrinter(language.English)

	p.Fprintf(w, "Source:     %d x %d px\n", g.SourceWidth, g.SourceHeight)
	p.Fprintf(w, "Tile:       %d x %d px", g.TileWidth, g.TileHeight)
	if cfg.DPI > 0 {
		p.Fprintf(w, " (%.2f x %.2f mm, %.3f x %.3f in at %d dpi)",
			tile.PixelsToMillimeters(g.TileWidth, cfg.DPI), tile.PixelsToMillimeters(g.TileHeight, cfg.DPI),
			tile.PixelsToInches(g.TileWidth, cfg.DPI), tile.PixelsToInches(g.TileHeight, cfg.DPI), cfg.DPI)
	}
	p.Fprintln(w)
	p.Fprintf(w, "Grid:       %d columns x %d rows = %d tiles\n", g.Columns, g.Rows, g.TotalTiles)

	covW, covH := g.Coverage()
	p.Fprintf(w, "Coverage:   %d x %d px\n", covW, covH)
	if g.Padded() {
		p.Fprintf(w, "Padding:    %d px right, %d px bottom\n", max(0, covW-g.SourceWidth), max(0, covH-g.SourceHeight))
	} else if remW, remH := g.Remainder(); remW > 0 || remH > 0 {
		p.Fprintf(w, "Cropped:    %d px right, %d px bottom\n", remW, remH)
	}
	p.Fprintf(w, "Estimated:  %s uncompressed\n", formatBytes(g.EstimatedBytes()))
}

// formatBytes renders n with a binary unit, e.g. "1.5 MiB"
func formatBytes(n int64) string {
	return humanize.IBytes(uint64(max(0, n)))
}
