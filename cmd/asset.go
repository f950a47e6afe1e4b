package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/exposure-cli/internal/asset"
	"github.com/sells-group/exposure-cli/internal/export"
	"github.com/sells-group/exposure-cli/internal/geometry"
)

var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Manage stored polygon assets",
}

var assetAddCmd = &cobra.Command{
	Use:   "add <geojson|->",
	Short: "Validate and store polygons",
	Long:  "Stores every valid polygon in a GeoJSON file. Invalid polygons are reported and skipped; the command exits non-zero if any were skipped.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(args[0])
		if err != nil {
			return err
		}
		return withStore(cmd, func(ctx context.Context, st asset.Store) error {
			return addAssets(ctx, cmd.OutOrStdout(), st, geometry.NewValidator(cfg.Validation), data)
		})
	},
}

var (
	assetListLimit  int
	assetListOffset int
)

var assetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored assets",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd, func(ctx context.Context, st asset.Store) error {
			return listAssets(ctx, cmd.OutOrStdout(), st, assetListLimit, assetListOffset)
		})
	},
}

var assetGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a stored asset as GeoJSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st asset.Store) error {
			a, err := st.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), a.Feature())
		})
	},
}

var assetDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st asset.Store) error {
			if err := st.Delete(ctx, args[0]); err != nil {
				return err
			}
			zap.L().Info("asset deleted", zap.String("asset_id", args[0]))
			return nil
		})
	},
}

var (
	assetExportOut string
	assetExportIDs []string
)

var assetExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export asset boundaries as a zipped shapefile",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd, func(ctx context.Context, st asset.Store) error {
			f, err := os.Create(assetExportOut)
			if err != nil {
				return eris.Wrapf(err, "create %s", assetExportOut)
			}
			defer f.Close() //nolint:errcheck
			return exportAssets(ctx, f, st, assetExportIDs)
		})
	},
}

func init() {
	assetListCmd.Flags().IntVar(&assetListLimit, "limit", 100, "max assets to list")
	assetListCmd.Flags().IntVar(&assetListOffset, "offset", 0, "assets to skip")
	assetExportCmd.Flags().StringVarP(&assetExportOut, "out", "o", "assets.zip", "output zip path")
	assetExportCmd.Flags().StringSliceVar(&assetExportIDs, "id", nil, "asset ids to export (default all)")

	assetCmd.AddCommand(assetAddCmd, assetListCmd, assetGetCmd, assetDeleteCmd, assetExportCmd)
	rootCmd.AddCommand(assetCmd)
}

// withStore opens and migrates the configured store around fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, st asset.Store) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate("store"); err != nil {
		return err
	}
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	if err := st.Migrate(ctx); err != nil {
		return eris.Wrap(err, "migrate store")
	}
	return fn(ctx, st)
}

func addAssets(ctx context.Context, out io.Writer, st asset.Store, v *geometry.Validator, data []byte) error {
	drafts, err := asset.ParseGeoJSON(data)
	if err != nil {
		return err
	}

	var skipped int
	for i, d := range drafts {
		a, res, err := d.Build(v)
		if err != nil {
			skipped++
			zap.L().Warn("polygon failed validation",
				zap.Int("index", i),
				zap.String("name", d.Name),
				zap.String("violations", violations(res)),
			)
			continue
		}
		if err := st.Save(ctx, a); err != nil {
			return eris.Wrapf(err, "save polygon %d", i)
		}
		fmt.Fprintf(out, "%s\t%s\t%.4f km²\n", a.ID(), a.Name(), a.AreaKm2())
	}

	if skipped > 0 {
		return eris.Errorf("asset add: %d of %d polygon(s) failed validation", skipped, len(drafts))
	}
	return nil
}

func listAssets(ctx context.Context, out io.Writer, st asset.Store, limit, offset int) error {
	assets, err := st.List(ctx, limit, offset)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%-36s  %-24s  %-14s  %12s  %s\n", "ID", "NAME", "ARCHETYPE", "AREA_KM2", "CREATED")
	for _, a := range assets {
		fmt.Fprintf(out, "%-36s  %-24s  %-14s  %12.4f  %s\n",
			a.ID(), a.Name(), a.Archetype(), a.AreaKm2(), a.CreatedAt().Format("2006-01-02 15:04"))
	}
	return nil
}

// exportAssets writes the selected assets' boundaries as a zipped shapefile.
func exportAssets(ctx context.Context, out io.Writer, st asset.Store, ids []string) error {
	var assets []*asset.PolygonAsset
	if len(ids) == 0 {
		for offset := 0; ; {
			page, err := st.List(ctx, 500, offset)
			if err != nil {
				return err
			}
			assets = append(assets, page...)
			if len(page) < 500 {
				break
			}
			offset += len(page)
		}
	} else {
		for _, id := range ids {
			a, err := st.Get(ctx, id)
			if err != nil {
				return eris.Wrapf(err, "export: load asset %s", id)
			}
			assets = append(assets, a)
		}
	}
	if len(assets) == 0 {
		return eris.New("export: no assets to export")
	}

	dir, err := os.MkdirTemp("", "exposure-export-*")
	if err != nil {
		return eris.Wrap(err, "export: temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	if _, err := export.WriteBoundaries(dir, "assets", assets); err != nil {
		return err
	}
	if err := export.ZipShapefile(dir, "assets", out); err != nil {
		return err
	}
	zap.L().Info("assets exported", zap.Int("assets", len(assets)))
	return nil
}
