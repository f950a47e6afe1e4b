package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/exposure-cli/internal/asset"
	"github.com/sells-group/exposure-cli/internal/geometry"
)

var validateCmd = &cobra.Command{
	Use:   "validate <geojson|->",
	Short: "Validate polygon geometry",
	Long:  "Checks every polygon in a GeoJSON file (or stdin) and prints the validation results. Exits non-zero when any polygon is invalid.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(args[0])
		if err != nil {
			return err
		}
		invalid, err := validateGeoJSON(cmd.OutOrStdout(), geometry.NewValidator(cfg.Validation), data)
		if err != nil {
			return err
		}
		if invalid > 0 {
			return eris.Errorf("validate: %d polygon(s) failed validation", invalid)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

type validationOutput struct {
	Index  int              `json:"index"`
	Name   string           `json:"name,omitempty"`
	Result *geometry.Result `json:"result"`
}

// validateGeoJSON writes one result per polygon and returns the number of
// invalid polygons.
func validateGeoJSON(out io.Writer, v *geometry.Validator, data []byte) (int, error) {
	drafts, err := asset.ParseGeoJSON(data)
	if err != nil {
		return 0, err
	}

	results := make([]validationOutput, len(drafts))
	var invalid int
	for i, d := range drafts {
		res := v.Validate(d.Ring)
		if !res.Valid {
			invalid++
		}
		results[i] = validationOutput{Index: i, Name: d.Name, Result: res}
	}
	return invalid, writeJSON(out, results)
}

// readInput reads a file, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return data, eris.Wrap(err, "read stdin")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	return data, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}
