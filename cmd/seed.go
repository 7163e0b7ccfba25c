package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/countrysync/internal/country"
	"github.com/sells-group/countrysync/internal/model"
	"github.com/sells-group/countrysync/internal/store"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Add manual countries from a YAML file",
	Long:  "Reads a YAML list of countries and adds each one as a manual record. Existing codes are skipped; each add publishes a country_added event.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(seedFile)
		if err != nil {
			return eris.Wrap(err, "seed: open file")
		}
		defer f.Close() //nolint:errcheck

		inputs, err := readSeed(f)
		if err != nil {
			return err
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		bus, err := openBus(ctx, cfg)
		if err != nil {
			return err
		}
		defer bus.Close() //nolint:errcheck

		m, _ := newMetrics()
		added, skipped, err := seedCountries(ctx, newService(st, bus, m), inputs)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "added %d, skipped %d\n", added, skipped)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "YAML file with a list of countries")
	_ = seedCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(seedCmd)
}

// readSeed decodes a YAML sequence of country inputs.
func readSeed(r io.Reader) ([]model.CountryInput, error) {
	var inputs []model.CountryInput
	if err := yaml.NewDecoder(r).Decode(&inputs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "seed: decode yaml")
	}
	return inputs, nil
}

// seedCountries adds every input, skipping codes that already exist.
// Validation failures stop the run before later entries are written.
func seedCountries(ctx context.Context, svc *country.Service, inputs []model.CountryInput) (added, skipped int, err error) {
	for i, in := range inputs {
		c, err := svc.AddManual(ctx, in)
		switch {
		case errors.Is(err, store.ErrDuplicateCode):
			zap.L().Info("seed: code exists, skipping", zap.String("alpha2_code", in.Alpha2Code))
			skipped++
		case err != nil:
			return added, skipped, eris.Wrapf(err, "seed: entry %d", i+1)
		default:
			zap.L().Debug("seed: added", zap.String("id", c.ID), zap.String("alpha2_code", c.Alpha2Code))
			added++
		}
	}
	return added, skipped, nil
}
