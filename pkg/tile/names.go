package tile

import (
	"fmt"
	"path"
	"strings"
)

// Filename returns the export name of the tile at index, e.g.
// "scan_tile_r01_c03.png" for the third tile of the first row.
func Filename(base string, index int, g Grid) string {
	row, col := g.Position(index)
	return fmt.Sprintf("%s_tile_r%02d_c%02d.png", stem(base), row, col)
}

// ArchiveName returns the name used for a ZIP of every tile of base
func ArchiveName(base string) string {
	return stem(base) + "_tiles.zip"
}

// stem drops any directory and the last extension from name
func stem(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return "image"
	}
	return strings.TrimSuffix(name, path.Ext(name))
}
