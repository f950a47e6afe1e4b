package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/exposure-cli/internal/asset"
	"github.com/sells-group/exposure-cli/internal/config"
	"github.com/sells-group/exposure-cli/internal/export"
	"github.com/sells-group/exposure-cli/internal/geometry"
	"github.com/sells-group/exposure-cli/internal/profile"
)

var (
	profileHazards    []string
	profileAssetIDs   []string
	profileOut        string
	profileSamplesOut string
)

var profileCmd = &cobra.Command{
	Use:   "profile [geojson|-]",
	Short: "Profile polygons against hazard layers",
	Long: "Builds risk profiles for every polygon in a GeoJSON file, or for stored assets given with --asset. " +
		"Per-hazard failures are reported in the output without failing the run.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && len(profileAssetIDs) == 0 {
			return eris.New("profile: provide a geojson file or --asset")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "profile", len(profileAssetIDs) > 0)
		if err != nil {
			return err
		}
		defer env.Close()

		var assets []*asset.PolygonAsset
		if len(args) == 1 {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			built, err := buildAssets(data, env.Validator)
			if err != nil {
				return err
			}
			assets = append(assets, built...)
		}
		for _, id := range profileAssetIDs {
			a, err := env.Store.Get(ctx, id)
			if err != nil {
				return eris.Wrapf(err, "profile: load asset %s", id)
			}
			assets = append(assets, a)
		}

		out := cmd.OutOrStdout()
		if profileOut != "" {
			f, err := os.Create(profileOut)
			if err != nil {
				return eris.Wrapf(err, "profile: create %s", profileOut)
			}
			defer f.Close() //nolint:errcheck
			out = f
		}
		return runProfiles(ctx, env, assets, profileHazards, out, profileSamplesOut)
	},
}

func init() {
	profileCmd.Flags().StringSliceVar(&profileHazards, "hazard", nil, "hazard layers to profile (default all)")
	profileCmd.Flags().StringSliceVar(&profileAssetIDs, "asset", nil, "stored asset ids to profile")
	profileCmd.Flags().StringVarP(&profileOut, "out", "o", "", "write reports to this file instead of stdout")
	profileCmd.Flags().StringVar(&profileSamplesOut, "samples-out", "", "directory for a sample point shapefile")
	rootCmd.AddCommand(profileCmd)
}

// buildAssets validates every polygon in data. Any invalid polygon fails
// the whole batch with its violations in the error.
func buildAssets(data []byte, v *geometry.Validator) ([]*asset.PolygonAsset, error) {
	drafts, err := asset.ParseGeoJSON(data)
	if err != nil {
		return nil, err
	}
	assets := make([]*asset.PolygonAsset, 0, len(drafts))
	for i, d := range drafts {
		a, res, err := d.Build(v)
		if err != nil {
			return nil, eris.Wrapf(err, "polygon %d (%s): %s", i, d.Name, violations(res))
		}
		assets = append(assets, a)
	}
	return assets, nil
}

func violations(res *geometry.Result) string {
	if res == nil {
		return ""
	}
	msgs := make([]string, len(res.Errors))
	for i, e := range res.Errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

func runProfiles(ctx context.Context, env *exposureEnv, assets []*asset.PolygonAsset, hazards []string, out io.Writer, samplesDir string) error {
	refs, err := config.SelectLayers(env.Layers, hazards)
	if err != nil {
		return err
	}

	reports, err := env.Engine.ProfileAssets(ctx, assets, refs)
	if err != nil {
		return eris.Wrap(err, "profile assets")
	}

	var failed int
	for _, rep := range reports {
		if rep.Failed() {
			failed++
		}
	}
	if failed > 0 {
		zap.L().Warn("some hazards could not be profiled",
			zap.Int("assets_affected", failed),
			zap.Int("assets", len(reports)),
		)
	}

	if samplesDir != "" {
		if err := os.MkdirAll(samplesDir, 0o755); err != nil {
			return eris.Wrapf(err, "profile: create %s", samplesDir)
		}
		path, err := export.WriteSamples(samplesDir, "samples", reports)
		if err != nil {
			return err
		}
		zap.L().Info("sample points written", zap.String("path", path))
	}

	return writeJSON(out, reportsOutput(reports))
}

// reportsOutput unwraps a single report so one polygon prints as an object.
func reportsOutput(reports []*profile.Report) any {
	if len(reports) == 1 {
		return reports[0]
	}
	return reports
}
