package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/exposure-cli/internal/config"
	"github.com/sells-group/exposure-cli/internal/raster"
	"github.com/sells-group/exposure-cli/internal/risk"
)

var layersCmd = &cobra.Command{
	Use:   "layers",
	Short: "List configured hazard layers",
	Long:  "Lists the hazard catalog with its bands and, for the file gateway, whether each raster is present.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		refs, err := cfg.LayerRefs()
		if err != nil {
			return err
		}
		var files *raster.FileGateway
		if cfg.Gateway.Driver == "file" {
			files = raster.NewFileGateway(cfg.Gateway.RasterDir, config.LayerSources(refs))
		}
		printLayers(cmd.OutOrStdout(), refs, files)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(layersCmd)
}

// printLayers writes one line per layer. Availability is only known for
// file-backed layers.
func printLayers(out io.Writer, refs []risk.HazardLayerRef, files *raster.FileGateway) {
	fmt.Fprintf(out, "%-22s  %-24s  %-8s  %-9s  %s\n", "LAYER", "UNIT", "ORDER", "AVAILABLE", "BANDS")
	for _, r := range refs {
		order := "asc"
		if r.Reversed {
			order = "desc"
		}
		avail := "-"
		if files != nil {
			avail = "no"
			if path, ok := files.Path(r.Name); ok {
				if _, err := os.Stat(path); err == nil {
					avail = "yes"
				}
			}
		}
		fmt.Fprintf(out, "%-22s  %-24s  %-8s  %-9s  %s\n", r.Name, r.Unit, order, avail, strings.Join(r.Bands(), " / "))
	}
}
